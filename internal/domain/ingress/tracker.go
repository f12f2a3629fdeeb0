package ingress

import (
	"sort"
	"sync"
	"time"
)

const (
	defaultSkewThreshold = 250 * time.Millisecond
	defaultSmoothing     = 0.1
	defaultLiveness      = 5 * time.Second
)

// NodeHealth is the liveness and clock view of one node.
type NodeHealth struct {
	Node         string        `json:"node"`
	Topic        string        `json:"topic"`
	LastSeen     time.Time     `json:"last_seen"`
	Silent       bool          `json:"silent"`
	Offset       time.Duration `json:"offset_ns"`
	SkewWarnings int           `json:"skew_warnings"`
	Messages     int64         `json:"messages"`
}

type nodeState struct {
	topic        string
	offset       time.Duration
	calibrated   bool
	lastSeen     time.Time
	skewWarnings int
	messages     int64
}

// TrackerOption configures a NodeTracker.
type TrackerOption func(*NodeTracker)

// WithSkewThreshold sets the offset jump that triggers a ClockSkewWarning.
func WithSkewThreshold(d time.Duration) TrackerOption {
	return func(t *NodeTracker) {
		if d > 0 {
			t.skewThreshold = d
		}
	}
}

// WithSmoothing sets the weight of a new sample in the running offset.
func WithSmoothing(alpha float64) TrackerOption {
	return func(t *NodeTracker) {
		if alpha > 0 && alpha <= 1 {
			t.smoothing = alpha
		}
	}
}

// WithLivenessTimeout sets how long a node may stay quiet before it is
// reported silent.
func WithLivenessTimeout(d time.Duration) TrackerOption {
	return func(t *NodeTracker) {
		if d > 0 {
			t.liveness = d
		}
	}
}

// NodeTracker estimates each node's clock offset to the host and tracks
// liveness. Safe for concurrent use.
type NodeTracker struct {
	mu            sync.Mutex
	nodes         map[string]*nodeState
	skewThreshold time.Duration
	smoothing     float64
	liveness      time.Duration
}

// NewNodeTracker builds a tracker with no known nodes.
func NewNodeTracker(opts ...TrackerOption) *NodeTracker {
	t := &NodeTracker{
		nodes:         make(map[string]*nodeState),
		skewThreshold: defaultSkewThreshold,
		smoothing:     defaultSmoothing,
		liveness:      defaultLiveness,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Expect pre-registers instrument topics so that an instrument that never
// reports is still listed as silent.
func (t *NodeTracker) Expect(topics ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, topic := range topics {
		if _, ok := t.nodes[topic]; !ok {
			t.nodes[topic] = &nodeState{topic: topic}
		}
	}
}

// Observe folds a message timestamp into the node's offset estimate and
// returns the host wall instant the action happened at. A non-nil warning
// is a *ClockSkewWarning; the returned instant is still valid.
func (t *NodeTracker) Observe(node, topic string, nodeMillis int64, receivedAt time.Time) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.nodes[node]
	if !ok {
		st = &nodeState{topic: topic}
		t.nodes[node] = st
		// the instrument identified itself under its own id
		if node != topic {
			if placeholder, ok := t.nodes[topic]; ok && placeholder.messages == 0 {
				delete(t.nodes, topic)
			}
		}
	}
	st.messages++
	st.lastSeen = receivedAt
	st.topic = topic

	sample := receivedAt.Sub(time.UnixMilli(nodeMillis))
	var warn error
	switch {
	case !st.calibrated:
		st.offset = sample
		st.calibrated = true
	case absDuration(sample-st.offset) > t.skewThreshold:
		warn = &ClockSkewWarning{Node: node, Jump: sample - st.offset}
		st.skewWarnings++
		st.offset = sample
	case sample < st.offset:
		// lower transit delay; the smaller sample is the better estimate
		st.offset = sample
	default:
		st.offset += time.Duration(t.smoothing * float64(sample-st.offset))
	}

	at := time.UnixMilli(nodeMillis).Add(st.offset)
	if at.After(receivedAt) {
		at = receivedAt
	}
	return at, warn
}

// Health reports every known node as of now, sorted by node id.
func (t *NodeTracker) Health(now time.Time) []NodeHealth {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]NodeHealth, 0, len(t.nodes))
	for id, st := range t.nodes {
		out = append(out, NodeHealth{
			Node:         id,
			Topic:        st.topic,
			LastSeen:     st.lastSeen,
			Silent:       st.lastSeen.IsZero() || now.Sub(st.lastSeen) > t.liveness,
			Offset:       st.offset,
			SkewWarnings: st.skewWarnings,
			Messages:     st.messages,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
