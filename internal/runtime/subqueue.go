package runtime

import (
	"sync"
)

// SubQueue is an unbounded, ordered queue feeding a single consumer channel.
// Producers never block on Enqueue; a slow consumer only grows the queue.
type SubQueue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []T
	closed bool

	outCh  chan T // consumer reads from this
	done   chan struct{}
	paused bool // gate dispatch until the snapshot is primed
}

// NewSubQueue starts the dispatcher in paused mode.
func NewSubQueue[T any](outBuf int) *SubQueue[T] {
	sq := &SubQueue[T]{
		outCh:  make(chan T, outBuf),
		done:   make(chan struct{}),
		paused: true,
	}
	sq.cond = sync.NewCond(&sq.mu)
	go sq.dispatch()
	return sq
}

// Chan is the channel exposed to the subscriber.
func (sq *SubQueue[T]) Chan() <-chan T { return sq.outCh }

// Enqueue appends to the in-memory queue and wakes the dispatcher.
func (sq *SubQueue[T]) Enqueue(ev T) {
	sq.mu.Lock()
	if !sq.closed {
		sq.queue = append(sq.queue, ev)
		sq.cond.Signal()
	}
	sq.mu.Unlock()
}

// Prime pushes a message straight to the subscriber channel, bypassing the
// queue. Only valid while paused and when outBuf can hold the whole snapshot.
func (sq *SubQueue[T]) Prime(ev T) {
	sq.outCh <- ev
}

// Pending reports how many messages are waiting for the consumer.
func (sq *SubQueue[T]) Pending() int {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	return len(sq.queue)
}

// SetPaused gates dispatching.
func (sq *SubQueue[T]) SetPaused(v bool) {
	sq.mu.Lock()
	sq.paused = v
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

// Close stops the dispatcher and closes the out channel. Queued messages
// that were not yet dispatched are dropped.
func (sq *SubQueue[T]) Close() {
	sq.mu.Lock()
	if !sq.closed {
		sq.closed = true
		close(sq.done)
	}
	sq.cond.Broadcast()
	sq.mu.Unlock()
}

func (sq *SubQueue[T]) dispatch() {
	for {
		sq.mu.Lock()
		for !sq.closed && (sq.paused || len(sq.queue) == 0) {
			sq.cond.Wait()
		}
		if sq.closed {
			sq.queue = nil
			sq.mu.Unlock()
			close(sq.outCh)
			return
		}
		ev := sq.queue[0]
		var zero T
		sq.queue[0] = zero
		sq.queue = sq.queue[1:]
		sq.mu.Unlock()

		// A consumer that stopped reading must not pin the dispatcher after Close.
		select {
		case sq.outCh <- ev:
		case <-sq.done:
		}
	}
}
