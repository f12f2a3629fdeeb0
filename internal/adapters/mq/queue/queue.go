// Package queue is a bounded in-memory FIFO between pipeline stages.
//
// A full queue never blocks the producer: the oldest buffered item is dropped
// to make room, so a slow consumer loses stale input instead of stalling
// ingestion.
package queue

import (
	"context"
	"sync"

	"github.com/okian/kitchenbeat/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item. It reports false when the queue is closed.
	// When the queue is full the oldest item is evicted first.
	Enqueue(ctx context.Context, item T) bool

	// Dequeue returns the queue's receive channel. Every call returns the same
	// channel, so items never leave the bound before a consumer takes them.
	// The channel is closed once the queue is closed and drained; consumers
	// watch their own context for cancellation.
	Dequeue(ctx context.Context) <-chan T

	// Len returns the current number of queued items.
	Len(ctx context.Context) int

	// Close stops accepting items. Buffered items can still be drained.
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	items    chan T
	name     string
	capacity int

	mu      sync.Mutex
	closed  bool
	dropped int64
}

// NewInMemoryQueue creates a queue.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	s := settings{name: "default", capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(&s)
	}
	q := &InMemoryQueue[T]{
		items:    make(chan T, s.capacity),
		name:     s.name,
		capacity: s.capacity,
	}
	metrics.UpdateQueueCapacity(q.name, q.capacity)
	metrics.UpdateQueueSize(q.name, 0)
	return q
}

// Enqueue adds an item, evicting the oldest when full.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	if ctx.Err() != nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	for {
		select {
		case q.items <- item:
			metrics.RecordQueueEnqueue(q.name)
			metrics.UpdateQueueSize(q.name, len(q.items))
			return true
		default:
		}
		// Full: a consumer may race us to the head, so only count a drop
		// when we actually took something.
		select {
		case <-q.items:
			q.dropped++
			metrics.RecordQueueOverflow(q.name)
		default:
		}
	}
}

// Dequeue returns the shared receive channel.
func (q *InMemoryQueue[T]) Dequeue(_ context.Context) <-chan T {
	return q.items
}

// Len returns the current number of queued items and refreshes the size gauge.
func (q *InMemoryQueue[T]) Len(_ context.Context) int {
	n := len(q.items)
	metrics.UpdateQueueSize(q.name, n)
	return n
}

// Dropped returns how many items were evicted by overflow.
func (q *InMemoryQueue[T]) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Drain discards every buffered item and returns how many were removed.
func (q *InMemoryQueue[T]) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for {
		select {
		case _, ok := <-q.items:
			if !ok {
				return n
			}
			n++
		default:
			metrics.UpdateQueueSize(q.name, 0)
			return n
		}
	}
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
