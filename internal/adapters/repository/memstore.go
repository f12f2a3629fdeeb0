package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/okian/kitchenbeat/internal/domain/model"
)

type record struct {
	score   float64
	perfect int
	good    int
	miss    int
}

type snapshot struct {
	ranked []Standing
	byID   map[string]int // track -> index in ranked
}

// MemoryStore keeps standings in memory. Writes are serialized by a mutex and
// publish an immutable ranked snapshot; reads never take the lock.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*record
	tracks  []string
	perfect float64
	snap    atomic.Pointer[snapshot]
}

// NewMemoryStore builds an empty scoreboard.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{records: make(map[string]*record), perfect: 2}
	for _, opt := range opts {
		opt(s)
	}
	for _, t := range s.tracks {
		s.records[t] = &record{}
	}
	s.publish()
	return s
}

func (s *MemoryStore) Record(_ context.Context, track string, grade model.Grade, points float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[track]
	if !ok {
		r = &record{}
		s.records[track] = r
	}
	r.score += points
	switch grade {
	case model.Perfect:
		r.perfect++
	case model.Good:
		r.good++
	default:
		r.miss++
	}
	s.publish()
	return nil
}

func (s *MemoryStore) Rank(_ context.Context, track string) (Standing, error) {
	snap := s.snap.Load()
	i, ok := snap.byID[track]
	if !ok {
		return Standing{}, ErrNotFound
	}
	return snap.ranked[i], nil
}

func (s *MemoryStore) TopN(_ context.Context, n int) ([]Standing, error) {
	if n < 1 {
		return nil, ErrInvalidLimit
	}
	ranked := s.snap.Load().ranked
	if n > len(ranked) {
		n = len(ranked)
	}
	out := make([]Standing, n)
	copy(out, ranked[:n])
	return out, nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	return len(s.snap.Load().ranked)
}

func (s *MemoryStore) Reset(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.records {
		s.records[id] = &record{}
	}
	s.publish()
}

// publish rebuilds the ranked snapshot. Caller holds mu (or owns s).
func (s *MemoryStore) publish() {
	ranked := make([]Standing, 0, len(s.records))
	for id, r := range s.records {
		st := Standing{
			Track:   id,
			Score:   r.score,
			Perfect: r.perfect,
			Good:    r.good,
			Miss:    r.miss,
		}
		if n := r.perfect + r.good + r.miss; n > 0 && s.perfect > 0 {
			st.Accuracy = r.score / (float64(n) * s.perfect)
		}
		ranked = append(ranked, st)
	}
	sortStandings(ranked)
	assignRanksWithTies(ranked)
	byID := make(map[string]int, len(ranked))
	for i, st := range ranked {
		byID[st.Track] = i
	}
	s.snap.Store(&snapshot{ranked: ranked, byID: byID})
}

// sortStandings orders by score desc, then track id asc.
func sortStandings(entries []Standing) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Track < entries[j].Track
	})
}

// assignRanksWithTies gives equal scores the same rank; ranks stay
// consecutive (1, 1, 2).
func assignRanksWithTies(entries []Standing) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
}
