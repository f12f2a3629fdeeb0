// Package chart loads and validates note charts.
//
// A chart file is YAML (JSON is accepted as a YAML subset):
//
//	title: Omelette
//	bpm: 120
//	offset_ms: 0
//	music: omelette.mp3
//	tracks:
//	  - id: board
//	    notes:
//	      - {time: 1000, action: chop}
//	      - {time: 2000, action: chop}
//	  - id: stove
//	    notes:
//	      - {time: 1500, action: low, duration: 2000}
//
// Times and durations are milliseconds. A note with a positive duration is
// sustained unless its type says otherwise.
package chart

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/okian/kitchenbeat/internal/domain/model"
)

// Chart is an immutable, validated note chart.
type Chart struct {
	Title  string
	BPM    float64
	Offset time.Duration
	Music  string
	Tracks []Track
}

// Track is the ordered note sequence of one instrument.
type Track struct {
	ID    string
	Notes []Note
}

// Note is one scheduled action.
type Note struct {
	Index    int
	Track    string
	Time     time.Duration
	Action   string
	Sound    string
	Category model.Category
	Duration time.Duration
}

// End returns the scheduled end of the note.
func (n Note) End() time.Duration { return n.Time + n.Duration }

// Catalog is the view of the action mapping the loader validates against.
type Catalog interface {
	HasTrack(track string) bool
	Action(track, actionID string) (sound string, category model.Category, ok bool)
}

// Option configures parsing.
type Option func(*parser)

// WithCatalog rejects tracks and actions unknown to c and fills note sounds
// from it.
func WithCatalog(c Catalog) Option {
	return func(p *parser) { p.catalog = c }
}

type parser struct {
	catalog Catalog
}

type fileChart struct {
	Title    string      `yaml:"title"`
	BPM      float64     `yaml:"bpm"`
	OffsetMS float64     `yaml:"offset_ms"`
	Music    string      `yaml:"music"`
	Tracks   []fileTrack `yaml:"tracks"`
}

type fileTrack struct {
	ID    string     `yaml:"id"`
	Notes []fileNote `yaml:"notes"`
}

type fileNote struct {
	Time     *float64 `yaml:"time"`
	Action   string   `yaml:"action"`
	Type     string   `yaml:"type"`
	Duration float64  `yaml:"duration"`
}

// LoadFile reads and parses the chart at path.
func LoadFile(path string, opts ...Option) (*Chart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chart %s: %w", path, err)
	}
	return Parse(bytes.NewReader(data), opts...)
}

// Parse decodes and validates a chart.
func Parse(r io.Reader, opts ...Option) (*Chart, error) {
	p := &parser{}
	for _, opt := range opts {
		opt(p)
	}

	var fc fileChart
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, formatErr("", -1, "empty document")
		}
		return nil, &FormatError{Note: -1, Reason: err.Error()}
	}
	return p.build(fc)
}

func (p *parser) build(fc fileChart) (*Chart, error) {
	if len(fc.Tracks) == 0 {
		return nil, formatErr("", -1, "no tracks")
	}
	if !validMillis(fc.OffsetMS) {
		return nil, formatErr("", -1, "offset_ms out of range: %v", fc.OffsetMS)
	}
	c := &Chart{
		Title:  fc.Title,
		BPM:    fc.BPM,
		Offset: millis(fc.OffsetMS),
		Music:  fc.Music,
		Tracks: make([]Track, 0, len(fc.Tracks)),
	}
	seen := make(map[string]bool, len(fc.Tracks))
	for _, ft := range fc.Tracks {
		if ft.ID == "" {
			return nil, formatErr("", -1, "track without id")
		}
		if seen[ft.ID] {
			return nil, formatErr(ft.ID, -1, "duplicate track")
		}
		seen[ft.ID] = true
		if p.catalog != nil && !p.catalog.HasTrack(ft.ID) {
			return nil, formatErr(ft.ID, -1, "unknown track")
		}
		t, err := p.buildTrack(ft, fc.OffsetMS)
		if err != nil {
			return nil, err
		}
		c.Tracks = append(c.Tracks, t)
	}
	return c, nil
}

func (p *parser) buildTrack(ft fileTrack, offsetMS float64) (Track, error) {
	t := Track{ID: ft.ID, Notes: make([]Note, 0, len(ft.Notes))}
	for i, fn := range ft.Notes {
		if fn.Time == nil {
			return Track{}, formatErr(ft.ID, i, "missing time")
		}
		if !validMillis(*fn.Time) {
			return Track{}, formatErr(ft.ID, i, "time out of range: %v", *fn.Time)
		}
		if fn.Action == "" {
			return Track{}, formatErr(ft.ID, i, "missing action")
		}
		if !validMillis(fn.Duration) {
			return Track{}, formatErr(ft.ID, i, "duration out of range: %v", fn.Duration)
		}
		if offsetMS+*fn.Time+fn.Duration > maxMillis {
			return Track{}, formatErr(ft.ID, i, "note end out of range")
		}
		n := Note{
			Index:    i,
			Track:    ft.ID,
			Time:     millis(offsetMS + *fn.Time),
			Action:   fn.Action,
			Duration: millis(fn.Duration),
		}
		var (
			catalogCat model.Category
			cataloged  bool
		)
		if p.catalog != nil {
			sound, c, ok := p.catalog.Action(ft.ID, fn.Action)
			if !ok {
				return Track{}, formatErr(ft.ID, i, "unknown action %q", fn.Action)
			}
			n.Sound = sound
			catalogCat, cataloged = c, true
		}
		cat, explicit, err := model.ParseCategory(fn.Type)
		if err != nil {
			return Track{}, formatErr(ft.ID, i, "%v", err)
		}
		switch {
		case explicit:
			n.Category = cat
		case cataloged:
			n.Category = catalogCat
		case n.Duration > 0:
			n.Category = model.Sustained
		default:
			n.Category = model.Strike
		}
		if n.Category == model.Sustained && n.Duration <= 0 {
			return Track{}, formatErr(ft.ID, i, "sustained note without duration")
		}
		if n.Category == model.Strike {
			n.Duration = 0
		}
		if i > 0 {
			prev := t.Notes[i-1]
			switch {
			case n.Time < prev.Time:
				return Track{}, formatErr(ft.ID, i, "notes out of order")
			case n.Time == prev.Time:
				return Track{}, formatErr(ft.ID, i, "duplicate note time")
			case prev.Category == model.Sustained && prev.End() > n.Time:
				return Track{}, formatErr(ft.ID, i, "overlaps sustained note %d", i-1)
			}
		}
		t.Notes = append(t.Notes, n)
	}
	return t, nil
}

// maxMillis is the largest millisecond value a time.Duration can hold.
const maxMillis = float64(math.MaxInt64 / int64(time.Millisecond))

func validMillis(ms float64) bool {
	return !math.IsNaN(ms) && !math.IsInf(ms, 0) && ms >= 0 && ms <= maxMillis
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// Track returns the track with the given id.
func (c *Chart) Track(id string) (Track, bool) {
	for _, t := range c.Tracks {
		if t.ID == id {
			return t, true
		}
	}
	return Track{}, false
}

// End returns the latest scheduled note end across all tracks.
func (c *Chart) End() time.Duration {
	var end time.Duration
	for _, t := range c.Tracks {
		if n := len(t.Notes); n > 0 && t.Notes[n-1].End() > end {
			end = t.Notes[n-1].End()
		}
	}
	return end
}

// NoteCount returns the number of notes in the chart.
func (c *Chart) NoteCount() int {
	total := 0
	for _, t := range c.Tracks {
		total += len(t.Notes)
	}
	return total
}
