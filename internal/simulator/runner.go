package simulator

import (
	"context"
	"time"

	service "github.com/okian/kitchenbeat/internal/app"
	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/pkg/logger"
)

// Host is the part of the game host the runner drives.
type Host interface {
	Send(ctx context.Context, msg model.WireMessage) error
	Command(ctx context.Context, cmd service.Command) (service.View, error)
	Session(ctx context.Context) (service.View, error)
}

// Report summarizes a run.
type Report struct {
	Planned int
	Sent    int
	Failed  int
	Final   service.View
}

// Runner replays a plan against a host in real time.
type Runner struct {
	host     Host
	log      logger.Logger
	poll     time.Duration
	nodeBase int64
	now      func() time.Time
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets the runner logger.
func WithLogger(l logger.Logger) RunnerOption {
	return func(r *Runner) { r.log = l }
}

// WithPollInterval sets how often the session is polled while waiting.
func WithPollInterval(d time.Duration) RunnerOption {
	return func(r *Runner) { r.poll = d }
}

// WithNodeClock sets the node clock reading at the start of the run, in ms.
func WithNodeClock(ms int64) RunnerOption {
	return func(r *Runner) { r.nodeBase = ms }
}

// NewRunner creates a runner for host.
func NewRunner(host Host, opts ...RunnerOption) *Runner {
	r := &Runner{host: host, log: logger.Discard(), poll: 20 * time.Millisecond, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts a session, waits out the countdown and plays shots on time.
// The session clock is anchored on the first running view, so shots land at
// their chart time give or take one poll interval.
func (r *Runner) Run(ctx context.Context, shots []Shot, timeout time.Duration) (Report, error) {
	rep := Report{Planned: len(shots)}
	origin := r.now()
	if _, err := r.host.Command(ctx, service.CmdStart); err != nil {
		return rep, err
	}
	zero, err := r.awaitRunning(ctx, timeout)
	if err != nil {
		return rep, err
	}
	r.log.Info(ctx, "session running, playing", logger.Int("shots", len(shots)))

	for _, s := range shots {
		wait := time.Until(zero.Add(s.At))
		if wait > 0 {
			select {
			case <-ctx.Done():
				return rep, ctx.Err()
			case <-time.After(wait):
			}
		}
		ts := r.nodeBase + r.now().Sub(origin).Milliseconds()
		msg := model.WireMessage{NodeID: "sim-" + s.Track, Topic: s.Topic, ActionID: s.ActionID, NodeTimestamp: &ts}
		if err := r.host.Send(ctx, msg); err != nil {
			rep.Failed++
			r.log.Warn(ctx, "send failed", logger.String("track", s.Track), logger.Error(err))
			continue
		}
		rep.Sent++
	}

	final, err := r.awaitEnded(ctx, timeout)
	rep.Final = final
	return rep, err
}

// awaitRunning polls until the session runs and returns the wall time its
// clock read zero.
func (r *Runner) awaitRunning(ctx context.Context, timeout time.Duration) (time.Time, error) {
	v, err := r.await(ctx, timeout, func(v service.View) bool { return v.State == service.Running.String() })
	if err != nil {
		return time.Time{}, err
	}
	return r.now().Add(-time.Duration(v.ClockMS) * time.Millisecond), nil
}

func (r *Runner) awaitEnded(ctx context.Context, timeout time.Duration) (service.View, error) {
	return r.await(ctx, timeout, func(v service.View) bool { return v.State == service.Ended.String() })
}

func (r *Runner) await(ctx context.Context, timeout time.Duration, done func(service.View) bool) (service.View, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	t := time.NewTicker(r.poll)
	defer t.Stop()
	for {
		v, err := r.host.Session(ctx)
		if err == nil && done(v) {
			return v, nil
		}
		select {
		case <-ctx.Done():
			return v, ErrTimeout
		case <-t.C:
		}
	}
}
