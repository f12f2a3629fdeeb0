// Package mapping translates node topics and action identifiers into chart
// tracks and sounds.
package mapping

import (
	"fmt"
	"sort"

	"github.com/okian/kitchenbeat/internal/domain/model"
)

// Table is the static mapping as it appears in configuration.
type Table struct {
	Topics  map[string]string            // topic -> track
	Actions map[string]map[string]Action // track -> action id -> action
}

// Action describes one action id of a track.
type Action struct {
	Sound    string
	Category string
}

// Resolution is what a (topic, action) pair resolves to.
type Resolution struct {
	Track    string
	Action   string
	Sound    string
	Category model.Category
}

type entry struct {
	sound    string
	category model.Category
}

// Mapper resolves messages against an immutable copy of a Table. It is safe
// for concurrent use.
type Mapper struct {
	topics  map[string]string
	tracks  map[string]string // track -> topic
	actions map[string]map[string]entry
}

// New validates table and builds a Mapper from a private copy of it.
func New(table Table) (*Mapper, error) {
	m := &Mapper{
		topics:  make(map[string]string, len(table.Topics)),
		tracks:  make(map[string]string, len(table.Topics)),
		actions: make(map[string]map[string]entry, len(table.Actions)),
	}
	for topic, track := range table.Topics {
		if topic == "" || track == "" {
			return nil, fmt.Errorf("%w: empty topic or track", ErrInvalidTable)
		}
		if other, dup := m.tracks[track]; dup {
			return nil, fmt.Errorf("%w: track %q bound to both %q and %q", ErrInvalidTable, track, other, topic)
		}
		m.topics[topic] = track
		m.tracks[track] = topic
	}
	for track, actions := range table.Actions {
		if _, ok := m.tracks[track]; !ok {
			return nil, fmt.Errorf("%w: actions for track %q without a topic", ErrInvalidTable, track)
		}
		m.actions[track] = make(map[string]entry, len(actions))
		for id, a := range actions {
			cat, _, err := model.ParseCategory(a.Category)
			if err != nil {
				return nil, fmt.Errorf("%w: %s/%s: %w", ErrInvalidTable, track, id, err)
			}
			m.actions[track][id] = entry{sound: a.Sound, category: cat}
		}
	}
	return m, nil
}

// Resolve maps a node topic and action id to a track, sound and category.
func (m *Mapper) Resolve(topic, actionID string) (Resolution, error) {
	track, ok := m.topics[topic]
	if !ok {
		return Resolution{}, &UnknownMappingError{Topic: topic}
	}
	e, ok := m.actions[track][actionID]
	if !ok {
		return Resolution{}, &UnknownMappingError{Topic: topic, Action: actionID}
	}
	return Resolution{Track: track, Action: actionID, Sound: e.sound, Category: e.category}, nil
}

// TrackForTopic returns the track bound to topic.
func (m *Mapper) TrackForTopic(topic string) (string, bool) {
	t, ok := m.topics[topic]
	return t, ok
}

// TopicForTrack returns the topic bound to track.
func (m *Mapper) TopicForTrack(track string) (string, bool) {
	t, ok := m.tracks[track]
	return t, ok
}

// HasTrack reports whether track is known.
func (m *Mapper) HasTrack(track string) bool {
	_, ok := m.tracks[track]
	return ok
}

// Action looks up an action of a track. Used by the chart loader to validate
// notes and infer categories.
func (m *Mapper) Action(track, actionID string) (sound string, category model.Category, ok bool) {
	e, ok := m.actions[track][actionID]
	return e.sound, e.category, ok
}

// Topics returns every mapped topic, sorted.
func (m *Mapper) Topics() []string {
	out := make([]string, 0, len(m.topics))
	for t := range m.topics {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Tracks returns every mapped track, sorted.
func (m *Mapper) Tracks() []string {
	out := make([]string, 0, len(m.tracks))
	for t := range m.tracks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
