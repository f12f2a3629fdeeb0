// Package dedupe filters transport redeliveries of node messages.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

// Deduper remembers recently seen message keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Reset forgets every recorded key.
	Reset(ctx context.Context)

	Size() int64
}

// windowDeduper keeps the last maxSize keys in a ring; the oldest key is
// forgotten when a new one arrives at capacity. maxSize <= 0 keeps every key.
type windowDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	ring    []string
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &windowDeduper{
		maxSize: 4096,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{})
	if d.maxSize > 0 {
		d.ring = make([]string, 0, d.maxSize)
	}
	return d
}

func (d *windowDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	d.seen[key] = struct{}{}

	if d.maxSize <= 0 {
		d.size.Add(1)
		return false
	}
	if len(d.ring) < d.maxSize {
		d.ring = append(d.ring, key)
		d.size.Add(1)
		return false
	}
	// at capacity: overwrite the oldest slot
	delete(d.seen, d.ring[d.next])
	d.ring[d.next] = key
	d.next = (d.next + 1) % d.maxSize
	return false
}

func (d *windowDeduper) Reset(_ context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seen = make(map[string]struct{})
	d.ring = d.ring[:0]
	d.next = 0
	d.size.Store(0)
}

func (d *windowDeduper) Size() int64 {
	return d.size.Load()
}
