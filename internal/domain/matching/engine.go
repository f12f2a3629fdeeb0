// Package matching is the note matching engine: it owns the per-track note
// windows of a chart and turns action events, or their absence, into
// judgments.
//
// The engine is not safe for concurrent use. A single goroutine (the session
// loop) must own it.
package matching

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/kitchenbeat/internal/domain/chart"
	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/pkg/metrics"
)

// Config holds the timing tolerances.
type Config struct {
	PerfectTolerance time.Duration
	GoodTolerance    time.Duration
	EarlyWindow      time.Duration // how far ahead of the clock a note may be hit
	LateWindow       time.Duration // how long after its time a note stays hittable
	HoldGrace        time.Duration // gap in activity tolerated during a sustained note
	HoldGoodCoverage float64       // minimum coverage for a Good sustained note
}

// DefaultConfig returns the stock tolerances.
func DefaultConfig() Config {
	return Config{
		PerfectTolerance: 50 * time.Millisecond,
		GoodTolerance:    150 * time.Millisecond,
		EarlyWindow:      200 * time.Millisecond,
		LateWindow:       200 * time.Millisecond,
		HoldGrace:        150 * time.Millisecond,
		HoldGoodCoverage: 0.9,
	}
}

// Validate checks the tolerances are usable.
func (c Config) Validate() error {
	switch {
	case c.PerfectTolerance < 0 || c.GoodTolerance < c.PerfectTolerance:
		return fmt.Errorf("%w: need 0 <= perfect <= good", ErrInvalidConfig)
	case c.EarlyWindow <= 0 || c.LateWindow <= 0:
		return fmt.Errorf("%w: windows must be positive", ErrInvalidConfig)
	case c.HoldGrace < 0:
		return fmt.Errorf("%w: negative hold grace", ErrInvalidConfig)
	case c.HoldGoodCoverage <= 0 || c.HoldGoodCoverage > 1:
		return fmt.Errorf("%w: hold coverage must be in (0,1]", ErrInvalidConfig)
	}
	return nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithIDGenerator replaces the judgment id source.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

type noteState struct {
	note     chart.Note
	resolved bool

	// sustained notes only
	active     bool
	startGrade model.Grade
	startDelta time.Duration
	started    time.Duration // event time of the matched start
	lastActive time.Duration
}

type lane struct {
	id     string
	notes  []noteState
	cursor int // earliest unresolved note; everything before it is resolved
}

// Stats are engine counters since the last Reset.
type Stats struct {
	Resolved map[string]int `json:"resolved"`
	Dropped  map[string]int `json:"dropped"`
	Pending  int            `json:"pending"`
}

// Engine matches action events against a chart.
type Engine struct {
	cfg     Config
	chart   *chart.Chart
	lanes   []*lane
	byTrack map[string]*lane
	newID   func() string

	pending  int
	resolved map[model.Grade]int
	dropped  map[string]int
}

// NewEngine builds an engine with every note pending.
func NewEngine(c *chart.Chart, cfg Config, opts ...Option) (*Engine, error) {
	if c == nil {
		return nil, ErrNoChart
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		chart:   c,
		byTrack: make(map[string]*lane, len(c.Tracks)),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, t := range c.Tracks {
		l := &lane{id: t.ID, notes: make([]noteState, len(t.Notes))}
		e.lanes = append(e.lanes, l)
		e.byTrack[t.ID] = l
	}
	e.Reset()
	return e, nil
}

// Reset returns every note to pending.
func (e *Engine) Reset() {
	e.pending = 0
	for i, l := range e.lanes {
		t := e.chart.Tracks[i]
		for j := range t.Notes {
			l.notes[j] = noteState{note: t.Notes[j]}
		}
		l.cursor = 0
		e.pending += len(t.Notes)
	}
	e.resolved = make(map[model.Grade]int)
	e.dropped = make(map[string]int)
}

// Chart returns the chart the engine plays.
func (e *Engine) Chart() *chart.Chart { return e.chart }

// Done reports whether every note has been resolved.
func (e *Engine) Done() bool { return e.pending == 0 }

// Tick resolves notes whose window closed by now: pending notes more than
// LateWindow in the past become Miss, sustained notes that ended or ceased
// are graded.
func (e *Engine) Tick(now time.Duration) []model.Judgment {
	var out []model.Judgment
	for _, l := range e.lanes {
		out = e.expire(l, now, out)
	}
	return out
}

// Submit matches one action event. now is the session clock at processing
// time. The returned judgments include notes that expired on the event's
// track before it was matched. An event that matches nothing is dropped and
// produces no judgment.
func (e *Engine) Submit(ev model.ActionEvent, now time.Duration) []model.Judgment {
	l, ok := e.byTrack[ev.Track]
	if !ok {
		e.drop(DropUnknownTrack)
		return nil
	}
	out := e.expire(l, now, nil)

	if l.cursor < len(l.notes) && l.notes[l.cursor].active {
		hold := &l.notes[l.cursor]
		switch {
		case ev.Action == hold.note.Action && ev.Time < hold.note.End():
			if ev.Time > hold.lastActive {
				hold.lastActive = ev.Time
			}
			return out
		case ev.Action == hold.note.Action:
			// activity past the end completes the hold and is consumed by it
			hold.lastActive = ev.Time
			return append(out, e.resolveHold(l, hold, now))
		default:
			// another action on the track releases the hold
			out = append(out, e.resolveHold(l, hold, now))
		}
	}

	lo := now - e.cfg.LateWindow
	hi := max(now, ev.Time) + e.cfg.EarlyWindow
	best := -1
	var bestDelta time.Duration
	for i := l.cursor; i < len(l.notes); i++ {
		n := l.notes[i].note
		if n.Time > hi {
			break
		}
		if l.notes[i].resolved || n.Time < lo || n.Action != ev.Action {
			continue
		}
		d := absDuration(ev.Time - n.Time)
		if best < 0 || d < bestDelta {
			best, bestDelta = i, d
		}
	}
	if best < 0 {
		e.drop(DropNoCandidate)
		return out
	}

	grade := e.grade(bestDelta)
	if grade == model.Miss {
		e.drop(DropOutOfTolerance)
		return out
	}

	for i := l.cursor; i < best; i++ {
		if !l.notes[i].resolved {
			out = append(out, e.resolve(l, i, model.Miss, 0, 0, now))
		}
	}

	ns := &l.notes[best]
	delta := ev.Time - ns.note.Time
	if ns.note.Category == model.Sustained {
		ns.active = true
		ns.startGrade = grade
		ns.startDelta = delta
		ns.started = ev.Time
		ns.lastActive = ev.Time
		l.cursor = best
		return out
	}
	return append(out, e.resolve(l, best, grade, delta, 0, now))
}

// Flush resolves everything still open, used when the session ends.
// Sustained notes in progress are graded on the activity seen so far.
func (e *Engine) Flush(now time.Duration) []model.Judgment {
	var out []model.Judgment
	for _, l := range e.lanes {
		out = e.expire(l, now, out)
		for i := l.cursor; i < len(l.notes); i++ {
			ns := &l.notes[i]
			switch {
			case ns.resolved:
			case ns.active:
				out = append(out, e.resolveHold(l, ns, now))
			default:
				out = append(out, e.resolve(l, i, model.Miss, 0, 0, now))
			}
		}
	}
	return out
}

func (e *Engine) expire(l *lane, now time.Duration, out []model.Judgment) []model.Judgment {
	for l.cursor < len(l.notes) {
		ns := &l.notes[l.cursor]
		switch {
		case ns.resolved:
			l.cursor++
		case ns.active:
			if !e.holdSettled(ns, now) {
				return out
			}
			out = append(out, e.resolveHold(l, ns, now))
		case ns.note.Time < now-e.cfg.LateWindow:
			out = append(out, e.resolve(l, l.cursor, model.Miss, 0, 0, now))
		default:
			return out
		}
	}
	return out
}

// holdSettled reports whether a sustained note in progress can be graded at
// now: activity reached the note end, or it ceased for longer than the grace
// period.
func (e *Engine) holdSettled(ns *noteState, now time.Duration) bool {
	return ns.lastActive >= ns.note.End() || now-ns.lastActive > e.cfg.HoldGrace
}

// coverage is the share of the scheduled duration actually held: from the
// later of the start event and the note time, to the earlier of the last
// activity and the note end.
func coverage(ns *noteState) float64 {
	from := max(ns.started, ns.note.Time)
	to := min(ns.lastActive, ns.note.End())
	if to <= from || ns.note.Duration <= 0 {
		return 0
	}
	return float64(to-from) / float64(ns.note.Duration)
}

// heldToEnd reports whether a hold that began before the note end was
// sustained up to it.
func heldToEnd(ns *noteState) bool {
	return ns.started < ns.note.End() && ns.lastActive >= ns.note.End()
}

func (e *Engine) resolveHold(l *lane, ns *noteState, now time.Duration) model.Judgment {
	cov := coverage(ns)
	grade := model.Miss
	switch {
	case heldToEnd(ns) && ns.startGrade == model.Perfect:
		grade = model.Perfect
	case cov >= e.cfg.HoldGoodCoverage:
		grade = model.Good
	}
	ns.active = false
	return e.resolve(l, ns.note.Index, grade, ns.startDelta, cov, now)
}

func (e *Engine) resolve(l *lane, idx int, grade model.Grade, delta time.Duration, cov float64, now time.Duration) model.Judgment {
	ns := &l.notes[idx]
	ns.resolved = true
	ns.active = false
	e.pending--
	e.resolved[grade]++
	for l.cursor < len(l.notes) && l.notes[l.cursor].resolved {
		l.cursor++
	}
	return model.Judgment{
		ID:         e.newID(),
		Track:      l.id,
		NoteIndex:  idx,
		NoteTime:   ns.note.Time,
		Action:     ns.note.Action,
		Category:   ns.note.Category,
		Grade:      grade,
		Delta:      delta,
		Coverage:   cov,
		ResolvedAt: now,
		Sound:      ns.note.Sound,
	}
}

func (e *Engine) grade(d time.Duration) model.Grade {
	switch {
	case d <= e.cfg.PerfectTolerance:
		return model.Perfect
	case d <= e.cfg.GoodTolerance:
		return model.Good
	default:
		return model.Miss
	}
}

// Stats returns resolution and drop counters.
func (e *Engine) Stats() Stats {
	s := Stats{
		Resolved: make(map[string]int, len(e.resolved)),
		Dropped:  make(map[string]int, len(e.dropped)),
		Pending:  e.pending,
	}
	for g, n := range e.resolved {
		s.Resolved[g.String()] = n
	}
	for r, n := range e.dropped {
		s.Dropped[r] = n
	}
	return s
}

func (e *Engine) drop(reason string) {
	e.dropped[reason]++
	metrics.RecordEventDropped(reason)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
