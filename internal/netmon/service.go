package netmon

import (
	"context"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/intfreactor/internal/runtime"
)

// InterfaceState is the last known operational state of a link.
type InterfaceState struct {
	Name  string    `json:"name"`
	State OperState `json:"state"`
}

// Service turns raw watcher reports into operational state transitions and
// fans them out to subscribers. Every link is always tracked; filtering is
// left to subscribers.
type Service struct {
	watcher Watcher

	mu     sync.RWMutex
	states map[string]OperState

	events *runtime.Broadcaster[OperStatusEvent]
}

func NewService(watcher Watcher) *Service {
	return &Service{
		watcher: watcher,
		states:  make(map[string]OperState),
		events:  runtime.NewBroadcaster[OperStatusEvent](),
	}
}

// Subscribe returns live transitions only. Baseline states are available via
// States.
func (s *Service) Subscribe() (<-chan OperStatusEvent, func()) {
	return s.events.Subscribe(nil)
}

// States returns the tracked links sorted by name.
func (s *Service) States() []InterfaceState {
	s.mu.RLock()
	out := make([]InterfaceState, 0, len(s.states))
	for name, state := range s.states {
		out = append(out, InterfaceState{Name: name, State: state})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// State returns the last known state of a link.
func (s *Service) State(name string) (OperState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[name]
	return state, ok
}

func (s *Service) Start(ctx context.Context) error {
	log.Info("Starting interface operational state monitoring")
	defer log.Info("Stopping interface operational state monitoring")

	return s.watcher.Start(ctx, s.handleWatcherEvent)
}

func (s *Service) Close() error {
	s.events.Close()
	return nil
}

func (s *Service) handleWatcherEvent(ev OperStatusEvent) {
	fields := log.Fields{
		"interface": ev.InterfaceName,
		"state":     ev.State,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, known := s.states[ev.InterfaceName]
	if ev.Removed {
		delete(s.states, ev.InterfaceName)
	} else {
		s.states[ev.InterfaceName] = ev.State
	}

	if ev.Baseline {
		log.WithFields(fields).Debug("Recorded initial interface state")
		return
	}

	// A link seen for the first time is compared against down, so a new
	// link coming up is a transition and a new link that is down is not.
	if !known {
		prev = OperDown
	}
	if prev == ev.State {
		log.WithFields(fields).Trace("Interface state unchanged")
		return
	}

	log.WithFields(fields).Debug("Interface operational state changed")
	s.events.Publish(OperStatusEvent{InterfaceName: ev.InterfaceName, State: ev.State})
}
