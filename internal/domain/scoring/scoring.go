// Package scoring turns judgments into a session score.
package scoring

import (
	"sync"

	"github.com/okian/kitchenbeat/internal/domain/model"
)

// Weights are the points awarded per grade.
type Weights struct {
	Perfect float64
	Good    float64
	Miss    float64
}

// DefaultWeights returns 2/1/0.
func DefaultWeights() Weights {
	return Weights{Perfect: 2, Good: 1, Miss: 0}
}

func (w Weights) of(g model.Grade) float64 {
	switch g {
	case model.Perfect:
		return w.Perfect
	case model.Good:
		return w.Good
	default:
		return w.Miss
	}
}

// Option applies a configuration option to the Tally.
type Option func(*Tally)

// WithWeights sets the per-grade weights.
func WithWeights(w Weights) Option {
	return func(t *Tally) {
		t.weights = w
	}
}

// Counts is the number of judgments per grade.
type Counts struct {
	Perfect int `json:"perfect"`
	Good    int `json:"good"`
	Miss    int `json:"miss"`
}

// Total returns the number of judged notes.
func (c Counts) Total() int { return c.Perfect + c.Good + c.Miss }

func (c *Counts) add(g model.Grade) {
	switch g {
	case model.Perfect:
		c.Perfect++
	case model.Good:
		c.Good++
	default:
		c.Miss++
	}
}

// Summary is a point-in-time view of a Tally.
type Summary struct {
	Score    float64            `json:"score"`
	Combo    int                `json:"combo"`
	MaxCombo int                `json:"max_combo"`
	Accuracy float64            `json:"accuracy"`
	Counts   Counts             `json:"counts"`
	ByTrack  map[string]Counts  `json:"by_track"`
	Scores   map[string]float64 `json:"track_scores"`
}

// Tally accumulates judgments. Safe for concurrent use so HTTP handlers can
// read it while the session loop writes.
type Tally struct {
	mu       sync.RWMutex
	weights  Weights
	score    float64
	combo    int
	maxCombo int
	counts   Counts
	byTrack  map[string]Counts
	scores   map[string]float64
}

// NewTally creates an empty tally.
func NewTally(opts ...Option) *Tally {
	t := &Tally{weights: DefaultWeights()}
	for _, opt := range opts {
		opt(t)
	}
	t.reset()
	return t
}

// Add folds one judgment into the tally and returns the points it earned.
func (t *Tally) Add(j model.Judgment) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	pts := t.weights.of(j.Grade)
	t.score += pts
	t.scores[j.Track] += pts
	t.counts.add(j.Grade)
	c := t.byTrack[j.Track]
	c.add(j.Grade)
	t.byTrack[j.Track] = c
	if j.Grade.Hit() {
		t.combo++
		if t.combo > t.maxCombo {
			t.maxCombo = t.combo
		}
	} else {
		t.combo = 0
	}
	return pts
}

// Reset clears the tally.
func (t *Tally) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

func (t *Tally) reset() {
	t.score, t.combo, t.maxCombo = 0, 0, 0
	t.counts = Counts{}
	t.byTrack = make(map[string]Counts)
	t.scores = make(map[string]float64)
}

// Summary returns a copy of the current state.
func (t *Tally) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Summary{
		Score:    t.score,
		Combo:    t.combo,
		MaxCombo: t.maxCombo,
		Counts:   t.counts,
		ByTrack:  make(map[string]Counts, len(t.byTrack)),
		Scores:   make(map[string]float64, len(t.scores)),
	}
	for k, v := range t.byTrack {
		s.ByTrack[k] = v
	}
	for k, v := range t.scores {
		s.Scores[k] = v
	}
	if n := t.counts.Total(); n > 0 && t.weights.Perfect > 0 {
		s.Accuracy = t.score / (float64(n) * t.weights.Perfect)
	}
	return s
}
