// Package status holds the key/value status an agent reports to operators.
package status

import (
	"sync"

	"github.com/dmdmdm-nz/intfreactor/internal/runtime"
)

// Entry is one line of the status display.
type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Change describes a single Set or Del.
type Change struct {
	Key     string `json:"key"`
	Value   string `json:"value,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

// Store keeps entries in insertion order. A key is held at most once;
// deleting and setting it again moves it to the end.
type Store struct {
	mu      sync.RWMutex
	keys    []string
	values  map[string]string
	changes *runtime.Broadcaster[Change]
}

func NewStore() *Store {
	return &Store{
		values:  make(map[string]string),
		changes: runtime.NewBroadcaster[Change](),
	}
}

func (s *Store) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = value
	s.changes.Publish(Change{Key: key, Value: value})
}

// Del removes key. Deleting a missing key is a no-op and publishes nothing.
func (s *Store) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	s.changes.Publish(Change{Key: key, Deleted: true})
}

func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// Entries returns the current status in insertion order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entriesLocked()
}

func (s *Store) entriesLocked() []Entry {
	out := make([]Entry, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Entry{Key: k, Value: s.values[k]})
	}
	return out
}

// Subscribe delivers the current entries as Changes, then every later change.
func (s *Store) Subscribe() (<-chan Change, func()) {
	// Holding the read lock keeps Set/Del out until the subscriber is registered.
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.entriesLocked()
	snapshot := make([]Change, 0, len(entries))
	for _, e := range entries {
		snapshot = append(snapshot, Change{Key: e.Key, Value: e.Value})
	}
	return s.changes.Subscribe(snapshot)
}

func (s *Store) Close() error {
	s.changes.Close()
	return nil
}
