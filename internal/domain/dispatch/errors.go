package dispatch

import "errors"

// Sentinel kinds for dispatch errors.
var (
	ErrSinkClosed = errors.New("sink closed")
)
