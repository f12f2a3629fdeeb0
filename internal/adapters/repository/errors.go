package repository

import "errors"

// Sentinel kinds for scoreboard errors.
var (
	ErrNotFound     = errors.New("track not found")
	ErrInvalidLimit = errors.New("invalid scoreboard limit")
)
