package platform

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmdmdm-nz/intfreactor/internal/netmon"
	"github.com/dmdmdm-nz/intfreactor/internal/options"
	"github.com/dmdmdm-nz/intfreactor/internal/runtime"
	"github.com/dmdmdm-nz/intfreactor/internal/status"
)

type fakeOptions struct {
	mu      sync.Mutex
	values  map[string]string
	enabled bool
	changes *runtime.Broadcaster[options.Change]
}

func newFakeOptions(enabled bool, values map[string]string) *fakeOptions {
	if values == nil {
		values = map[string]string{}
	}
	return &fakeOptions{values: values, enabled: enabled, changes: runtime.NewBroadcaster[options.Change]()}
}

func (f *fakeOptions) Option(name string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[name]
}

func (f *fakeOptions) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.enabled
}

func (f *fakeOptions) Subscribe() (<-chan options.Change, func()) {
	return f.changes.Subscribe(nil)
}

func (f *fakeOptions) set(name, value string) {
	f.mu.Lock()
	f.values[name] = value
	f.mu.Unlock()
	f.changes.Publish(options.Change{Kind: options.OptionChanged, Name: name, Value: value})
}

func (f *fakeOptions) setEnabled(enabled bool) {
	f.mu.Lock()
	f.enabled = enabled
	f.mu.Unlock()
	f.changes.Publish(options.Change{Kind: options.EnabledChanged, Enabled: enabled})
}

type fakeEvents struct {
	events *runtime.Broadcaster[netmon.OperStatusEvent]
}

func (f *fakeEvents) Subscribe() (<-chan netmon.OperStatusEvent, func()) {
	return f.events.Subscribe(nil)
}

// recordingAgent records every callback it receives, in order.
type recordingAgent struct {
	mgr      AgentMgr
	intfMgr  IntfMgr
	watchAll bool

	mu    sync.Mutex
	calls []string
}

func (a *recordingAgent) record(call string) {
	a.mu.Lock()
	a.calls = append(a.calls, call)
	a.mu.Unlock()
}

func (a *recordingAgent) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}

func (a *recordingAgent) OnInitialized() {
	a.record("initialized")
	a.mgr.StatusSet("Status:", "Administratively Up")
	if a.watchAll {
		a.intfMgr.WatchAllIntfs(true)
	}
}

func (a *recordingAgent) OnAgentOption(name, value string) {
	a.record(fmt.Sprintf("option %s=%s", name, value))
}

func (a *recordingAgent) OnAgentEnabled(enabled bool) {
	a.record(fmt.Sprintf("enabled %t", enabled))
	a.mgr.AgentShutdownCompleteIs(!enabled)
}

func (a *recordingAgent) OnOperStatus(intf string, state netmon.OperState) {
	a.record(fmt.Sprintf("oper %s %s", intf, state))
}

type hostFixture struct {
	host    *Host
	opts    *fakeOptions
	events  *fakeEvents
	store   *status.Store
	agent   *recordingAgent
	cancel  context.CancelFunc
	done    chan error
	notesMu sync.Mutex
	notes   []string
}

func (f *hostFixture) Notes() []string {
	f.notesMu.Lock()
	defer f.notesMu.Unlock()
	return append([]string(nil), f.notes...)
}

func startHost(t *testing.T, enabled, watchAll bool) *hostFixture {
	t.Helper()

	f := &hostFixture{
		opts:   newFakeOptions(enabled, map[string]string{"interfacelist": "Ethernet1"}),
		events: &fakeEvents{events: runtime.NewBroadcaster[netmon.OperStatusEvent]()},
		store:  status.NewStore(),
		done:   make(chan error, 1),
	}
	f.host = NewHost(f.opts, f.events, f.store)
	f.host.notify = func(state string) {
		f.notesMu.Lock()
		f.notes = append(f.notes, state)
		f.notesMu.Unlock()
	}
	f.agent = &recordingAgent{mgr: f.host, intfMgr: f.host, watchAll: watchAll}
	f.host.Register(f.agent, f.agent)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	go func() { f.done <- f.host.Start(ctx) }()

	require.Eventually(t, f.host.Initialized, time.Second, 5*time.Millisecond)
	return f
}

func (f *hostFixture) stop(t *testing.T) {
	t.Helper()
	f.cancel()
	select {
	case err := <-f.done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for host to stop")
	}
}

func (f *hostFixture) waitCalls(t *testing.T, n int) []string {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.agent.Calls()) >= n }, time.Second, 5*time.Millisecond)
	return f.agent.Calls()
}

func TestHost_StartWithoutAgent(t *testing.T) {
	h := NewHost(newFakeOptions(true, nil), &fakeEvents{events: runtime.NewBroadcaster[netmon.OperStatusEvent]()}, status.NewStore())
	assert.Error(t, h.Start(context.Background()))
}

func TestHost_InitializesFirstAndNotifiesReady(t *testing.T) {
	f := startHost(t, true, true)
	defer f.stop(t)

	assert.Equal(t, []string{"initialized"}, f.agent.Calls())
	assert.True(t, f.host.Enabled())
	assert.True(t, f.host.WatchingAll())
	assert.Contains(t, f.Notes(), daemon.SdNotifyReady)
	assert.Contains(t, f.Notes(), "STATUS=Status: Administratively Up")
}

func TestHost_DeliversEveryNotification(t *testing.T) {
	f := startHost(t, true, true)
	defer f.stop(t)

	f.opts.set("interfacelist", "Ethernet2")
	f.events.events.Publish(netmon.OperStatusEvent{InterfaceName: "Ethernet2", State: netmon.OperUp})
	f.opts.set("script2execute", "")

	calls := f.waitCalls(t, 4)
	assert.Contains(t, calls, "option interfacelist=Ethernet2")
	assert.Contains(t, calls, "oper Ethernet2 up")
	assert.Contains(t, calls, "option script2execute=")
	assert.Equal(t, "initialized", calls[0])

	// Changes from one source keep their order.
	var optionCalls []string
	for _, c := range calls {
		if strings.HasPrefix(c, "option ") {
			optionCalls = append(optionCalls, c)
		}
	}
	assert.Equal(t, []string{"option interfacelist=Ethernet2", "option script2execute="}, optionCalls)
}

func TestHost_AgentOptionReadsThrough(t *testing.T) {
	f := startHost(t, true, false)
	defer f.stop(t)

	assert.Equal(t, "Ethernet1", f.host.AgentOption("interfacelist"))
	f.opts.set("interfacelist", "Ethernet7")
	assert.Equal(t, "Ethernet7", f.host.AgentOption("interfacelist"))
}

func TestHost_NoInterfaceEventsWithoutWatchAll(t *testing.T) {
	f := startHost(t, true, false)
	defer f.stop(t)

	f.events.events.Publish(netmon.OperStatusEvent{InterfaceName: "Ethernet1", State: netmon.OperUp})
	require.Eventually(t, func() bool { return f.host.Undelivered() == 1 }, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"initialized"}, f.agent.Calls())
}

func TestHost_DisabledDropsInterfaceEvents(t *testing.T) {
	f := startHost(t, true, true)
	defer f.stop(t)

	// Options and interface events arrive on different channels, so each
	// step waits for the previous one to be handled.
	f.opts.setEnabled(false)
	f.waitCalls(t, 2)

	f.events.events.Publish(netmon.OperStatusEvent{InterfaceName: "Ethernet1", State: netmon.OperDown})
	require.Eventually(t, func() bool { return f.host.Undelivered() == 1 }, time.Second, 5*time.Millisecond)

	f.opts.setEnabled(true)
	f.waitCalls(t, 3)

	f.events.events.Publish(netmon.OperStatusEvent{InterfaceName: "Ethernet1", State: netmon.OperUp})
	calls := f.waitCalls(t, 4)

	assert.Equal(t, []string{
		"initialized",
		"enabled false",
		"enabled true",
		"oper Ethernet1 up",
	}, calls)
	assert.False(t, f.host.ShutdownComplete())
}

func TestHost_RepeatedEnableIgnored(t *testing.T) {
	f := startHost(t, true, true)
	defer f.stop(t)

	f.opts.setEnabled(true)
	f.opts.set("interfacelist", "y")

	calls := f.waitCalls(t, 2)
	assert.Equal(t, []string{"initialized", "option interfacelist=y"}, calls)
}

func TestHost_StartsDisabled(t *testing.T) {
	f := startHost(t, false, true)
	defer f.stop(t)

	calls := f.waitCalls(t, 2)
	assert.Equal(t, []string{"initialized", "enabled false"}, calls)
	assert.True(t, f.host.ShutdownComplete())
}

func TestHost_ShutdownDisablesAgent(t *testing.T) {
	f := startHost(t, true, true)
	f.stop(t)

	assert.Equal(t, []string{"initialized", "enabled false"}, f.agent.Calls())
	assert.True(t, f.host.ShutdownComplete())
	assert.Contains(t, f.Notes(), daemon.SdNotifyStopping)
}

func TestHost_StatusMirrorsStore(t *testing.T) {
	f := startHost(t, true, false)
	defer f.stop(t)

	f.host.StatusSet("Monitoring Interfaces:", "None")
	f.host.StatusDel("Status:")

	v, ok := f.store.Get("Monitoring Interfaces:")
	assert.True(t, ok)
	assert.Equal(t, "None", v)
	_, ok = f.store.Get("Status:")
	assert.False(t, ok)

	notes := f.Notes()
	assert.Equal(t, "STATUS=Monitoring Interfaces: None", notes[len(notes)-1])
}

func TestHost_QueuesEventsPublishedBeforeStart(t *testing.T) {
	opts := newFakeOptions(true, nil)
	events := &fakeEvents{events: runtime.NewBroadcaster[netmon.OperStatusEvent]()}
	h := NewHost(opts, events, status.NewStore())
	h.notify = func(string) {}
	agent := &recordingAgent{mgr: h, intfMgr: h, watchAll: true}
	h.Register(agent, agent)

	// Producers may start before the host loop does.
	events.events.Publish(netmon.OperStatusEvent{InterfaceName: "Ethernet1", State: netmon.OperDown})
	opts.set("interfacelist", "Ethernet1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return len(agent.Calls()) >= 3 }, time.Second, 5*time.Millisecond)
	calls := agent.Calls()
	assert.Equal(t, "initialized", calls[0])
	assert.ElementsMatch(t, []string{"oper Ethernet1 down", "option interfacelist=Ethernet1"}, calls[1:3])
	assert.Zero(t, h.Undelivered())
}
