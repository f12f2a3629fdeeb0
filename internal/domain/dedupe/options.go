package dedupe

// Option applies a configuration option to the deduper.
type Option func(*windowDeduper)

// WithMaxSize sets the number of recent keys to remember.
// If maxSize > 0 the oldest key is forgotten once the window is full.
// If maxSize <= 0 every key is kept.
func WithMaxSize(maxSize int) Option {
	return func(d *windowDeduper) {
		d.maxSize = maxSize
	}
}
