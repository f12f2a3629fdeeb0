package repository

// Option applies a configuration option to the MemoryStore.
type Option func(*MemoryStore)

// WithTracks pre-registers tracks so they rank before their first judgment.
func WithTracks(tracks ...string) Option {
	return func(s *MemoryStore) {
		s.tracks = append(s.tracks, tracks...)
	}
}

// WithPerfectPoints sets the points of a Perfect judgment, the accuracy
// denominator. Defaults to 2.
func WithPerfectPoints(p float64) Option {
	return func(s *MemoryStore) {
		s.perfect = p
	}
}
