package runtime

import "sync"

// Broadcaster fans messages out to any number of SubQueue subscribers.
// Each subscriber receives an optional snapshot first, then live messages in
// publish order.
type Broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[int]*SubQueue[T]
	nextID int
	closed bool
}

func NewBroadcaster[T any]() *Broadcaster[T] {
	return &Broadcaster[T]{
		subs: make(map[int]*SubQueue[T]),
	}
}

// Subscribe registers a subscriber and primes it with snapshot before any
// live message is delivered. Live messages published while the snapshot is
// being primed are queued, not lost.
func (b *Broadcaster[T]) Subscribe(snapshot []T) (<-chan T, func()) {
	sub := NewSubQueue[T](len(snapshot) + 8)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		sub.Close()
		return sub.Chan(), func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	for _, msg := range snapshot {
		sub.Prime(msg)
	}
	sub.SetPaused(false)

	unsub := func() {
		b.mu.Lock()
		if q, ok := b.subs[id]; ok {
			delete(b.subs, id)
			q.Close()
		}
		b.mu.Unlock()
	}
	return sub.Chan(), unsub
}

// Publish enqueues msg on every current subscriber.
func (b *Broadcaster[T]) Publish(msg T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		sub.Enqueue(msg)
	}
}

// Subscribers returns the number of live subscribers.
func (b *Broadcaster[T]) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close closes every subscriber channel. It is safe to call more than once.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, q := range b.subs {
		q.Close()
		delete(b.subs, id)
	}
}
