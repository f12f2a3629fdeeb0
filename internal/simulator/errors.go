package simulator

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTopic is returned when a chart track has no instrument topic.
	ErrNoTopic = errors.New("no topic for track")
	// ErrInvalidProfile is returned for out-of-range accuracy settings.
	ErrInvalidProfile = errors.New("invalid accuracy profile")
	// ErrTimeout is returned when the session does not reach the awaited
	// state in time.
	ErrTimeout = errors.New("timed out waiting for session state")
)

// StatusError reports an unexpected HTTP status from the game host.
type StatusError struct {
	Path   string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Path, e.Status)
}
