// Package ingress turns raw node messages into normalized action events in
// the session clock frame.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/okian/kitchenbeat/internal/domain/dedupe"
	"github.com/okian/kitchenbeat/internal/domain/mapping"
	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/pkg/logger"
	"github.com/okian/kitchenbeat/pkg/metrics"
)

// Drop reasons used for counters and metrics.
const (
	ReasonMalformed = "malformed"
	ReasonDuplicate = "duplicate"
	ReasonUnmapped  = "unmapped"
)

// Resolver maps topics and action ids to tracks.
type Resolver interface {
	Resolve(topic, actionID string) (mapping.Resolution, error)
}

// Projector projects host wall instants onto the session clock.
type Projector interface {
	At(wall time.Time) (time.Duration, uint64)
}

// Stats are cumulative normalizer counters.
type Stats struct {
	Normalized   int64 `json:"normalized"`
	Malformed    int64 `json:"malformed"`
	Duplicate    int64 `json:"duplicate"`
	Unmapped     int64 `json:"unmapped"`
	SkewWarnings int64 `json:"skew_warnings"`
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(n *Normalizer) {
		if l != nil {
			n.log = l
		}
	}
}

// WithNow replaces the wall clock used for messages without a receipt time.
func WithNow(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// Normalizer validates, deduplicates, maps and time-stamps messages. It is
// safe for concurrent use by several workers.
type Normalizer struct {
	resolver Resolver
	deduper  dedupe.Deduper
	tracker  *NodeTracker
	clock    Projector
	log      logger.Logger
	now      func() time.Time

	normalized atomic.Int64
	malformed  atomic.Int64
	duplicate  atomic.Int64
	unmapped   atomic.Int64
	skew       atomic.Int64
}

// NewNormalizer wires a normalizer from its collaborators.
func NewNormalizer(resolver Resolver, deduper dedupe.Deduper, tracker *NodeTracker, clock Projector, opts ...Option) *Normalizer {
	n := &Normalizer{
		resolver: resolver,
		deduper:  deduper,
		tracker:  tracker,
		clock:    clock,
		log:      logger.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize converts one raw message. Malformed, duplicate and unmapped
// messages return an error and must be dropped by the caller; clock skew is
// logged and counted but does not fail the message.
func (n *Normalizer) Normalize(ctx context.Context, msg model.Message) (model.ActionEvent, error) {
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = n.now()
	}
	if msg.Topic == "" || msg.ActionID == "" || msg.NodeTimestamp < 0 {
		n.malformed.Add(1)
		metrics.RecordEventDropped(ReasonMalformed)
		return model.ActionEvent{}, fmt.Errorf("%w: topic=%q action=%q ts=%d", ErrMalformed, msg.Topic, msg.ActionID, msg.NodeTimestamp)
	}

	if n.deduper.SeenAndRecord(ctx, msg.Key()) {
		n.duplicate.Add(1)
		metrics.RecordEventDropped(ReasonDuplicate)
		return model.ActionEvent{}, ErrDuplicate
	}

	res, err := n.resolver.Resolve(msg.Topic, msg.ActionID)
	if err != nil {
		n.unmapped.Add(1)
		metrics.RecordEventDropped(ReasonUnmapped)
		return model.ActionEvent{}, err
	}

	node := msg.Node()
	at, warn := n.tracker.Observe(node, msg.Topic, msg.NodeTimestamp, msg.ReceivedAt)
	var skew *ClockSkewWarning
	if errors.As(warn, &skew) {
		n.skew.Add(1)
		metrics.RecordClockSkew(node)
		n.log.Warn(ctx, "node clock skew, offset recalibrated",
			logger.String("node", node),
			logger.Duration("jump", skew.Jump))
	}

	sessionTime, epoch := n.clock.At(at)
	n.normalized.Add(1)
	metrics.RecordEventIngested(res.Track)
	return model.ActionEvent{
		Track:      res.Track,
		Action:     res.Action,
		Time:       sessionTime,
		Epoch:      epoch,
		Sound:      res.Sound,
		Category:   res.Category,
		NodeID:     node,
		ReceivedAt: msg.ReceivedAt,
	}, nil
}

// Reset forgets redelivery history, used when a session restarts.
func (n *Normalizer) Reset(ctx context.Context) {
	n.deduper.Reset(ctx)
}

// Stats returns the cumulative counters.
func (n *Normalizer) Stats() Stats {
	return Stats{
		Normalized:   n.normalized.Load(),
		Malformed:    n.malformed.Load(),
		Duplicate:    n.duplicate.Load(),
		Unmapped:     n.unmapped.Load(),
		SkewWarnings: n.skew.Load(),
	}
}

// Tracker exposes the node tracker for health reporting.
func (n *Normalizer) Tracker() *NodeTracker { return n.tracker }
