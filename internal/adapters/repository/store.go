// Package repository holds the per-instrument scoreboard of the current run.
package repository

import (
	"context"

	"github.com/okian/kitchenbeat/internal/domain/model"
)

// Standing is one scoreboard row.
type Standing struct {
	Rank     int     `json:"rank"`
	Track    string  `json:"track"`
	Score    float64 `json:"score"`
	Perfect  int     `json:"perfect"`
	Good     int     `json:"good"`
	Miss     int     `json:"miss"`
	Accuracy float64 `json:"accuracy"`
}

// Store provides read/write access to the scoreboard.
type Store interface {
	// Record adds a judgment worth points to its track.
	Record(ctx context.Context, track string, grade model.Grade, points float64) error

	// Rank returns the standing of one track.
	// Returns ErrNotFound if the track is unknown.
	Rank(ctx context.Context, track string) (Standing, error)

	// TopN returns the top-N standings ordered by score desc.
	TopN(ctx context.Context, n int) ([]Standing, error)

	// Count returns the number of tracks on the board.
	Count(ctx context.Context) int

	// Reset zeroes every standing, keeping registered tracks.
	Reset(ctx context.Context)
}
