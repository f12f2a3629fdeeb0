package dispatch

import (
	"time"

	"github.com/okian/kitchenbeat/internal/domain/ingress"
	"github.com/okian/kitchenbeat/internal/domain/matching"
	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/internal/domain/scoring"
)

// Playback kinds.
const (
	KindNote  = "note"
	KindMusic = "music"
)

// Display update types.
const (
	TypeFrame    = "frame"
	TypeJudgment = "judgment"
)

// PlaybackCommand asks the audio player to sound a sample at a session time.
type PlaybackCommand struct {
	SoundID string `json:"sound_id"`
	AtMS    int64  `json:"at_ms"`
	Kind    string `json:"kind"`
	Track   string `json:"track,omitempty"`
	RunID   string `json:"run_id,omitempty"`
}

// JudgmentNotice is the display form of a judgment.
type JudgmentNotice struct {
	ID        string  `json:"id"`
	Track     string  `json:"track"`
	NoteIndex int     `json:"note_index"`
	NoteMS    int64   `json:"note_ms"`
	Action    string  `json:"action"`
	Grade     string  `json:"grade"`
	DeltaMS   float64 `json:"delta_ms"`
	Coverage  float64 `json:"coverage,omitempty"`
	Points    float64 `json:"points"`
}

// DisplayUpdate is one message on the display stream.
type DisplayUpdate struct {
	Type       string               `json:"type"`
	RunID      string               `json:"run_id"`
	State      string               `json:"state"`
	ClockMS    int64                `json:"clock_ms"`
	Countdown  int                  `json:"countdown,omitempty"`
	Lanes      []matching.LaneView  `json:"lanes,omitempty"`
	Score      float64              `json:"score"`
	Combo      int                  `json:"combo"`
	MaxCombo   int                  `json:"max_combo"`
	Accuracy   float64              `json:"accuracy"`
	Counts     scoring.Counts       `json:"counts"`
	NodeHealth []ingress.NodeHealth `json:"node_health,omitempty"`
	Judgment   *JudgmentNotice      `json:"judgment,omitempty"`
}

// NewNotice converts a judgment for display.
func NewNotice(j model.Judgment, points float64) *JudgmentNotice {
	return &JudgmentNotice{
		ID:        j.ID,
		Track:     j.Track,
		NoteIndex: j.NoteIndex,
		NoteMS:    j.NoteTime.Milliseconds(),
		Action:    j.Action,
		Grade:     j.Grade.String(),
		DeltaMS:   float64(j.Delta) / float64(time.Millisecond),
		Coverage:  j.Coverage,
		Points:    points,
	}
}
