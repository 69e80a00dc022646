package platform

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/intfreactor/internal/netmon"
	"github.com/dmdmdm-nz/intfreactor/internal/options"
	"github.com/dmdmdm-nz/intfreactor/internal/status"
)

// OptionSource supplies options and reports changes to them.
type OptionSource interface {
	Option(name string) string
	Enabled() bool
	Subscribe() (<-chan options.Change, func())
}

// EventSource supplies interface operational state transitions.
type EventSource interface {
	Subscribe() (<-chan netmon.OperStatusEvent, func())
}

// Host implements AgentMgr and IntfMgr and runs the notification loop.
// Handlers are only ever called from the goroutine running Start, so an
// agent needs no locking of its own.
type Host struct {
	opts   OptionSource
	intfs  EventSource
	status *status.Store
	notify func(state string)

	agent AgentHandler
	intf  IntfHandler

	optCh     <-chan options.Change
	optUnsub  func()
	intfCh    <-chan netmon.OperStatusEvent
	intfUnsub func()

	mu               sync.RWMutex
	initialized      bool
	enabled          bool
	watchAll         bool
	shutdownComplete bool

	undelivered atomic.Uint64
}

// NewHost subscribes to both sources immediately, so anything they publish
// before Start runs is queued for the loop rather than lost.
func NewHost(opts OptionSource, intfs EventSource, store *status.Store) *Host {
	h := &Host{
		opts:   opts,
		intfs:  intfs,
		status: store,
		notify: sdNotify,
	}
	h.optCh, h.optUnsub = opts.Subscribe()
	h.intfCh, h.intfUnsub = intfs.Subscribe()
	return h
}

// Register attaches the agent. intf may be nil for agents that do not watch
// interfaces. Must be called before Start.
func (h *Host) Register(agent AgentHandler, intf IntfHandler) {
	h.agent = agent
	h.intf = intf
}

func (h *Host) Start(ctx context.Context) error {
	defer h.optUnsub()
	defer h.intfUnsub()
	if h.agent == nil {
		return errors.New("no agent registered")
	}

	log.Info("Starting agent host")
	defer log.Info("Stopping agent host")

	optCh, intfCh := h.optCh, h.intfCh

	h.setEnabled(h.opts.Enabled())
	h.agent.OnInitialized()
	h.mu.Lock()
	h.initialized = true
	h.mu.Unlock()
	h.notify(daemon.SdNotifyReady)

	if !h.Enabled() {
		log.Info("Agent is configured as shut down")
		h.agent.OnAgentEnabled(false)
	}

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return nil

		case c, ok := <-optCh:
			if !ok {
				optCh = nil
				continue
			}
			h.handleOptionChange(c)

		case ev, ok := <-intfCh:
			if !ok {
				intfCh = nil
				continue
			}
			h.handleOperStatus(ev)
		}
	}
}

func (h *Host) handleOptionChange(c options.Change) {
	switch c.Kind {
	case options.EnabledChanged:
		if c.Enabled == h.Enabled() {
			return
		}
		h.setEnabled(c.Enabled)
		log.WithField("enabled", c.Enabled).Info("Agent administrative state changed")
		h.agent.OnAgentEnabled(c.Enabled)

	case options.OptionChanged:
		log.WithFields(log.Fields{
			"option": c.Name,
			"value":  c.Value,
		}).Info("Agent option changed")
		h.agent.OnAgentOption(c.Name, c.Value)
	}
}

func (h *Host) handleOperStatus(ev netmon.OperStatusEvent) {
	h.mu.RLock()
	deliver := h.intf != nil && h.watchAll && h.enabled
	h.mu.RUnlock()

	if !deliver {
		h.undelivered.Add(1)
		log.WithFields(log.Fields{
			"interface": ev.InterfaceName,
			"state":     ev.State,
		}).Trace("Interface event not delivered")
		return
	}
	h.intf.OnOperStatus(ev.InterfaceName, ev.State)
}

func (h *Host) shutdown() {
	h.notify(daemon.SdNotifyStopping)

	if h.Enabled() {
		h.setEnabled(false)
		h.agent.OnAgentEnabled(false)
	}

	if h.ShutdownComplete() {
		log.Info("Agent shutdown complete")
	} else {
		log.Warn("Agent did not report shutdown complete")
	}
}

func (h *Host) setEnabled(enabled bool) {
	h.mu.Lock()
	h.enabled = enabled
	h.mu.Unlock()
}

// AgentOption always reads through to the option source.
func (h *Host) AgentOption(name string) string {
	return h.opts.Option(name)
}

func (h *Host) StatusSet(key, value string) {
	h.status.Set(key, value)
	h.publishStatus()
}

func (h *Host) StatusDel(key string) {
	h.status.Del(key)
	h.publishStatus()
}

func (h *Host) AgentShutdownCompleteIs(complete bool) {
	h.mu.Lock()
	h.shutdownComplete = complete
	h.mu.Unlock()
}

func (h *Host) WatchAllIntfs(all bool) {
	h.mu.Lock()
	h.watchAll = all
	h.mu.Unlock()
	log.WithField("all", all).Debug("Interface watch mode changed")
}

func (h *Host) Initialized() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.initialized
}

func (h *Host) Enabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.enabled
}

func (h *Host) WatchingAll() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.watchAll
}

// Undelivered counts interface events dropped because the agent was
// disabled or not watching.
func (h *Host) Undelivered() uint64 {
	return h.undelivered.Load()
}

func (h *Host) ShutdownComplete() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.shutdownComplete
}

// publishStatus mirrors the status display into systemd's unit status line.
func (h *Host) publishStatus() {
	entries := h.status.Entries()
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, e.Key+" "+e.Value)
	}
	h.notify("STATUS=" + strings.Join(parts, ", "))
}

func sdNotify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.WithError(err).WithField("state", state).Debug("sd_notify failed")
		return
	}
	if sent {
		log.WithField("state", state).Trace("sd_notify sent")
	}
}
