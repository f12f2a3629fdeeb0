package matching

import "errors"

var (
	// ErrInvalidConfig is returned for inconsistent tolerances or windows.
	ErrInvalidConfig = errors.New("invalid matching config")
	// ErrNoChart is returned when the engine is built without a chart.
	ErrNoChart = errors.New("no chart")
)

// Drop reasons reported in Stats.
const (
	DropUnknownTrack   = "unknown_track"
	DropNoCandidate    = "no_candidate"
	DropOutOfTolerance = "out_of_tolerance"
)
