// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Category distinguishes instantaneous notes from notes held over a duration.
type Category int

const (
	Strike Category = iota
	Sustained
)

func (c Category) String() string {
	if c == Sustained {
		return "sustained"
	}
	return "strike"
}

// ParseCategory accepts strike/tap and sustained/hold. An empty string is ok
// with false.
func ParseCategory(s string) (Category, bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Strike, false, nil
	case "strike", "tap":
		return Strike, true, nil
	case "sustained", "hold":
		return Sustained, true, nil
	}
	return Strike, false, fmt.Errorf("unknown note category %q", s)
}

// Grade is the outcome of a resolved note.
type Grade int

const (
	Miss Grade = iota
	Good
	Perfect
)

func (g Grade) String() string {
	switch g {
	case Perfect:
		return "perfect"
	case Good:
		return "good"
	default:
		return "miss"
	}
}

// Hit reports whether the grade counts as a successful hit.
func (g Grade) Hit() bool { return g != Miss }

// Message is a raw action message as published by an instrument node.
type Message struct {
	NodeID        string    // publishing node; falls back to Topic when empty
	Topic         string    // instrument topic, e.g. kitchen/pan
	ActionID      string    // node-level action identifier
	NodeTimestamp int64     // node-local clock in milliseconds
	ReceivedAt    time.Time // host wall clock at receipt
}

// Node returns the node identity used for clock tracking.
func (m Message) Node() string {
	if m.NodeID != "" {
		return m.NodeID
	}
	return m.Topic
}

// Key identifies a message for redelivery detection.
func (m Message) Key() string {
	return fmt.Sprintf("%s|%s|%s|%d", m.Node(), m.Topic, m.ActionID, m.NodeTimestamp)
}

// ActionEvent is a normalized action on a track, stamped in the session
// clock frame.
type ActionEvent struct {
	Track      string
	Action     string
	Time       time.Duration // session clock
	Epoch      uint64        // clock epoch the Time belongs to
	Sound      string
	Category   Category
	NodeID     string
	ReceivedAt time.Time
}

// Judgment is the resolution of one chart note.
type Judgment struct {
	ID         string
	Track      string
	NoteIndex  int
	NoteTime   time.Duration
	Action     string
	Category   Category
	Grade      Grade
	Delta      time.Duration // event time minus note time; zero for misses
	Coverage   float64       // sustained notes only
	ResolvedAt time.Duration // session clock at resolution
	Sound      string
}
