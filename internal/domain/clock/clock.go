// Package clock provides the session clock: virtual time that starts at zero,
// advances at real-time rate while running and freezes while paused.
//
// The clock has a single writer (the session loop). Readers on any goroutine
// observe immutable snapshots published through an atomic pointer.
package clock

import (
	"sync/atomic"
	"time"
)

type state struct {
	base    time.Duration // elapsed at the last start/resume/pause
	since   time.Time     // wall time base was taken at; zero when stopped
	running bool
	epoch   uint64
}

func (s *state) at(wall time.Time) time.Duration {
	if !s.running {
		return s.base
	}
	return s.base + wall.Sub(s.since)
}

// Snapshot is a consistent read of the clock.
type Snapshot struct {
	Elapsed time.Duration
	Running bool
	Epoch   uint64
	Wall    time.Time

	st *state
}

// At projects a host wall instant into the session time frame of the
// snapshot. While paused every instant maps to the frozen time.
func (s Snapshot) At(wall time.Time) time.Duration {
	if s.st == nil {
		return 0
	}
	return s.st.at(wall)
}

// Option configures a SessionClock.
type Option func(*SessionClock)

// WithNow replaces the wall clock source.
func WithNow(now func() time.Time) Option {
	return func(c *SessionClock) {
		if now != nil {
			c.now = now
		}
	}
}

// SessionClock is the authoritative game clock.
type SessionClock struct {
	now func() time.Time
	cur atomic.Pointer[state]
}

// New returns a stopped clock at zero.
func New(opts ...Option) *SessionClock {
	c := &SessionClock{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.cur.Store(&state{})
	return c
}

// Start resets the clock to zero, opens a new epoch and runs it.
func (c *SessionClock) Start() {
	prev := c.cur.Load()
	c.cur.Store(&state{since: c.now(), running: true, epoch: prev.epoch + 1})
}

// Pause freezes the clock. Pausing a stopped clock is a no-op.
func (c *SessionClock) Pause() {
	prev := c.cur.Load()
	if !prev.running {
		return
	}
	c.cur.Store(&state{base: prev.at(c.now()), epoch: prev.epoch})
}

// Resume continues a paused clock from where it froze.
func (c *SessionClock) Resume() {
	prev := c.cur.Load()
	if prev.running {
		return
	}
	c.cur.Store(&state{base: prev.base, since: c.now(), running: true, epoch: prev.epoch})
}

// Reset stops the clock at zero and opens a new epoch so readers can tell
// pre-reset timestamps apart.
func (c *SessionClock) Reset() {
	prev := c.cur.Load()
	c.cur.Store(&state{epoch: prev.epoch + 1})
}

// Now returns the current session time.
func (c *SessionClock) Now() time.Duration {
	return c.cur.Load().at(c.now())
}

// At projects a host wall instant into the current session time frame.
func (c *SessionClock) At(wall time.Time) (time.Duration, uint64) {
	s := c.cur.Load()
	return s.at(wall), s.epoch
}

// Snapshot returns a consistent view of the clock.
func (c *SessionClock) Snapshot() Snapshot {
	s := c.cur.Load()
	wall := c.now()
	return Snapshot{Elapsed: s.at(wall), Running: s.running, Epoch: s.epoch, Wall: wall, st: s}
}

// Epoch returns the current epoch.
func (c *SessionClock) Epoch() uint64 { return c.cur.Load().epoch }

// Running reports whether the clock is advancing.
func (c *SessionClock) Running() bool { return c.cur.Load().running }
