// Package dispatch fans playback commands and display updates out to the
// connected output sinks.
package dispatch

import (
	"context"
	"time"

	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/pkg/logger"
	"github.com/okian/kitchenbeat/pkg/metrics"
)

const defaultDisplayInterval = 100 * time.Millisecond

// Sink is an output channel. Implementations must not block the caller for
// long: the dispatcher runs on the session loop.
type Sink interface {
	Name() string
	Playback(ctx context.Context, cmd PlaybackCommand) error
	Display(ctx context.Context, u DisplayUpdate) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithDisplayInterval sets the minimum spacing of periodic frames.
func WithDisplayInterval(d time.Duration) Option {
	return func(p *Dispatcher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Dispatcher) {
		if l != nil {
			p.log = l
		}
	}
}

// WithNow replaces the wall clock used for throttling.
func WithNow(now func() time.Time) Option {
	return func(p *Dispatcher) {
		if now != nil {
			p.now = now
		}
	}
}

// Dispatcher is owned by the session loop and is not goroutine-safe.
type Dispatcher struct {
	sinks    []Sink
	interval time.Duration
	last     time.Time
	now      func() time.Time
	log      logger.Logger
}

// New creates a dispatcher over the given sinks.
func New(sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:    sinks,
		interval: defaultDisplayInterval,
		now:      time.Now,
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Frame sends a periodic display update unless one went out less than the
// display interval ago. It reports whether the frame was sent.
func (d *Dispatcher) Frame(ctx context.Context, u DisplayUpdate) bool {
	now := d.now()
	if !d.last.IsZero() && now.Sub(d.last) < d.interval {
		return false
	}
	u.Type = TypeFrame
	d.display(ctx, u)
	d.last = now
	return true
}

// ForceFrame sends a display update regardless of throttling, used on state
// changes.
func (d *Dispatcher) ForceFrame(ctx context.Context, u DisplayUpdate) {
	u.Type = TypeFrame
	d.display(ctx, u)
	d.last = d.now()
}

// Judgment emits the playback command for a hit and an immediate display
// notice. base carries the current score fields. The command is stamped with
// the time the performer acted, not the scheduled note time.
func (d *Dispatcher) Judgment(ctx context.Context, j model.Judgment, points float64, base DisplayUpdate) {
	if j.Grade.Hit() && j.Sound != "" {
		d.playback(ctx, PlaybackCommand{
			SoundID: j.Sound,
			AtMS:    (j.NoteTime + j.Delta).Milliseconds(),
			Kind:    KindNote,
			Track:   j.Track,
			RunID:   base.RunID,
		})
	}
	base.Type = TypeJudgment
	base.Judgment = NewNotice(j, points)
	base.Lanes = nil
	d.display(ctx, base)
}

// Music asks the player to start the backing track.
func (d *Dispatcher) Music(ctx context.Context, sound string, at time.Duration, runID string) {
	if sound == "" {
		return
	}
	d.playback(ctx, PlaybackCommand{SoundID: sound, AtMS: at.Milliseconds(), Kind: KindMusic, RunID: runID})
}

func (d *Dispatcher) playback(ctx context.Context, cmd PlaybackCommand) {
	metrics.RecordDispatch("playback")
	for _, s := range d.sinks {
		if err := s.Playback(ctx, cmd); err != nil {
			metrics.RecordDispatchError(s.Name())
			d.log.Debug(ctx, "playback dispatch failed", logger.String("sink", s.Name()), logger.Error(err))
		}
	}
}

func (d *Dispatcher) display(ctx context.Context, u DisplayUpdate) {
	metrics.RecordDispatch(u.Type)
	for _, s := range d.sinks {
		if err := s.Display(ctx, u); err != nil {
			metrics.RecordDispatchError(s.Name())
			d.log.Debug(ctx, "display dispatch failed", logger.String("sink", s.Name()), logger.Error(err))
		}
	}
}
