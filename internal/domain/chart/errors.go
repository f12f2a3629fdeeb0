package chart

import (
	"errors"
	"fmt"
)

// ErrChartFormat is matched by every FormatError.
var ErrChartFormat = errors.New("chart format error")

// FormatError describes why a chart was rejected.
type FormatError struct {
	Track  string
	Note   int // index within the track, -1 when not note specific
	Reason string
}

func (e *FormatError) Error() string {
	switch {
	case e.Track == "":
		return fmt.Sprintf("chart format error: %s", e.Reason)
	case e.Note < 0:
		return fmt.Sprintf("chart format error: track %q: %s", e.Track, e.Reason)
	default:
		return fmt.Sprintf("chart format error: track %q note %d: %s", e.Track, e.Note, e.Reason)
	}
}

func (e *FormatError) Unwrap() error { return ErrChartFormat }

func formatErr(track string, note int, format string, args ...any) error {
	return &FormatError{Track: track, Note: note, Reason: fmt.Sprintf(format, args...)}
}
