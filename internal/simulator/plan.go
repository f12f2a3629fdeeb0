// Package simulator drives a running game host with synthetic instrument
// input generated from a chart.
package simulator

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/okian/kitchenbeat/internal/domain/chart"
	"github.com/okian/kitchenbeat/internal/domain/model"
)

// Profile shapes how well the simulated cook plays.
type Profile struct {
	// MissRate is the chance a note is not played at all.
	MissRate float64
	// Spread bounds the timing error applied to each played note.
	Spread time.Duration
	// HoldInterval is the gap between activity reports during a sustained
	// note. It must stay under the host's hold grace.
	HoldInterval time.Duration
	// HoldCoverage is the fraction of a sustained note actually held.
	HoldCoverage float64
}

// DefaultProfile plays every note within perfect tolerance.
func DefaultProfile() Profile {
	return Profile{Spread: 30 * time.Millisecond, HoldInterval: 80 * time.Millisecond, HoldCoverage: 1}
}

// Validate checks the profile ranges.
func (p Profile) Validate() error {
	switch {
	case p.MissRate < 0 || p.MissRate > 1:
		return fmt.Errorf("%w: miss rate %.2f", ErrInvalidProfile, p.MissRate)
	case p.Spread < 0:
		return fmt.Errorf("%w: negative spread", ErrInvalidProfile)
	case p.HoldInterval <= 0:
		return fmt.Errorf("%w: hold interval must be positive", ErrInvalidProfile)
	case p.HoldCoverage < 0 || p.HoldCoverage > 1:
		return fmt.Errorf("%w: hold coverage %.2f", ErrInvalidProfile, p.HoldCoverage)
	}
	return nil
}

// Shot is one message to send at a session time.
type Shot struct {
	At       time.Duration
	Track    string
	Topic    string
	ActionID string
	Note     int
}

// Plan turns a chart into a time-ordered list of shots. topics maps a track
// to the node topic that plays it. The same seed always yields the same plan.
func Plan(ch *chart.Chart, topics map[string]string, p Profile, seed uint64) ([]Shot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	var shots []Shot
	for _, t := range ch.Tracks {
		topic, ok := topics[t.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrNoTopic, t.ID)
		}
		for _, n := range t.Notes {
			if rng.Float64() < p.MissRate {
				continue
			}
			at := n.Time + jitter(rng, p.Spread)
			if at < 0 {
				at = 0
			}
			shot := Shot{At: at, Track: t.ID, Topic: topic, ActionID: n.Action, Note: n.Index}
			if n.Category != model.Sustained || n.Duration <= 0 {
				shots = append(shots, shot)
				continue
			}
			end := at + time.Duration(float64(n.Duration)*p.HoldCoverage)
			for ; shot.At < end; shot.At += p.HoldInterval {
				shots = append(shots, shot)
			}
			shot.At = end
			shots = append(shots, shot)
		}
	}
	sort.SliceStable(shots, func(i, j int) bool { return shots[i].At < shots[j].At })
	return shots, nil
}

func jitter(rng *rand.Rand, spread time.Duration) time.Duration {
	if spread <= 0 {
		return 0
	}
	return time.Duration(rng.Int64N(int64(2*spread)+1)) - spread
}

// TopicIndex is the view of the action mapping Topics needs.
type TopicIndex interface {
	Tracks() []string
	TopicForTrack(track string) (string, bool)
}

// Topics inverts a mapping into track -> topic.
func Topics(m TopicIndex) map[string]string {
	out := make(map[string]string)
	for _, t := range m.Tracks() {
		if topic, ok := m.TopicForTrack(t); ok {
			out[t] = topic
		}
	}
	return out
}
