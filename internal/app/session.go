package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/okian/kitchenbeat/internal/adapters/repository"
	"github.com/okian/kitchenbeat/internal/domain/chart"
	"github.com/okian/kitchenbeat/internal/domain/clock"
	"github.com/okian/kitchenbeat/internal/domain/dispatch"
	"github.com/okian/kitchenbeat/internal/domain/ingress"
	"github.com/okian/kitchenbeat/internal/domain/matching"
	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/internal/domain/scoring"
	"github.com/okian/kitchenbeat/pkg/logger"
	"github.com/okian/kitchenbeat/pkg/metrics"
)

// Session-level drop reasons.
const (
	ReasonNotRunning = "not_running"
	ReasonStaleEpoch = "stale_epoch"
)

// View is a read-only snapshot of the session for HTTP readers.
type View struct {
	RunID      string          `json:"run_id"`
	State      string          `json:"state"`
	ClockMS    int64           `json:"clock_ms"`
	Countdown  int             `json:"countdown,omitempty"`
	Chart      string          `json:"chart"`
	Notes      int             `json:"notes"`
	Summary    scoring.Summary `json:"summary"`
	Engine     matching.Stats  `json:"engine"`
	NotRunning int64           `json:"dropped_not_running"`
	StaleEpoch int64           `json:"dropped_stale_epoch"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type resetter interface {
	Reset(ctx context.Context)
}

// session is the state owned by the service loop. Nothing here is safe for
// concurrent use except the published view.
type session struct {
	state  State
	runID  string
	chart  *chart.Chart
	engine *matching.Engine
	clock  *clock.SessionClock
	tally  *scoring.Tally
	board  repository.Store
	out    *dispatch.Dispatcher
	health func(time.Time) []ingress.NodeHealth
	newID  func() string
	log    logger.Logger

	// cleared on every new run
	resetters []resetter

	countdown     time.Duration
	lookahead     time.Duration
	lateWindow    time.Duration
	countdownFrom time.Time

	notRunning int64
	staleEpoch int64

	view atomic.Pointer[View]
}

func (s *session) apply(ctx context.Context, cmd Command, now time.Time) (View, error) {
	to, err := next(s.state, cmd)
	if err != nil {
		metrics.RecordSessionCommand(string(cmd), "rejected")
		return *s.view.Load(), err
	}
	from := s.state
	switch cmd {
	case CmdStart, CmdRestart:
		s.reset(ctx)
		s.countdownFrom = now
		if cmd == CmdRestart {
			metrics.RecordSessionRestart()
		}
	case CmdPause:
		s.clock.Pause()
	case CmdResume:
		s.clock.Resume()
	case CmdEnd:
		s.finish(ctx, now)
	}
	s.state = to
	metrics.RecordSessionCommand(string(cmd), "ok")
	metrics.UpdateSessionState(int(to))
	s.log.Info(ctx, "session transition",
		logger.String("command", string(cmd)),
		logger.String("from", from.String()),
		logger.String("to", to.String()),
		logger.String("run_id", s.runID))

	s.out.ForceFrame(ctx, s.update(now, true))
	return s.publish(now), nil
}

func (s *session) reset(ctx context.Context) {
	s.engine.Reset()
	s.tally.Reset()
	s.board.Reset(ctx)
	s.clock.Reset()
	for _, r := range s.resetters {
		r.Reset(ctx)
	}
	s.runID = s.newID()
	s.notRunning, s.staleEpoch = 0, 0
}

// finish flushes the engine and freezes the clock.
func (s *session) finish(ctx context.Context, now time.Time) {
	s.emit(ctx, s.engine.Flush(s.clock.Now()), now)
	s.clock.Pause()
}

func (s *session) begin(ctx context.Context, now time.Time) {
	s.clock.Start()
	s.state = Running
	metrics.UpdateSessionState(int(Running))
	s.log.Info(ctx, "session running", logger.String("run_id", s.runID), logger.String("chart", s.chart.Title))
	s.out.Music(ctx, s.chart.Music, 0, s.runID)
	s.out.ForceFrame(ctx, s.update(now, true))
	s.publish(now)
}

func (s *session) tick(ctx context.Context, now time.Time) {
	switch s.state {
	case Countdown:
		if now.Sub(s.countdownFrom) >= s.countdown {
			s.begin(ctx, now)
			return
		}
	case Running:
		t := s.clock.Now()
		s.emit(ctx, s.engine.Tick(t), now)
		if s.engine.Done() && t >= s.chart.End()+s.lateWindow {
			s.clock.Pause()
			s.state = Ended
			metrics.UpdateSessionState(int(Ended))
			s.log.Info(ctx, "session complete", logger.String("run_id", s.runID),
				logger.Float64("score", s.tally.Summary().Score))
			s.out.ForceFrame(ctx, s.update(now, true))
			s.publish(now)
			return
		}
		metrics.UpdateSessionClock(t)
	}
	if s.out.Frame(ctx, s.update(now, true)) {
		s.publish(now)
	}
}

func (s *session) submit(ctx context.Context, ev model.ActionEvent, now time.Time) {
	if s.state != Running {
		s.notRunning++
		metrics.RecordEventDropped(ReasonNotRunning)
		return
	}
	if ev.Epoch != s.clock.Epoch() {
		s.staleEpoch++
		metrics.RecordEventDropped(ReasonStaleEpoch)
		return
	}
	s.emit(ctx, s.engine.Submit(ev, s.clock.Now()), now)
}

func (s *session) emit(ctx context.Context, js []model.Judgment, now time.Time) {
	if len(js) == 0 {
		return
	}
	for _, j := range js {
		pts := s.tally.Add(j)
		if err := s.board.Record(ctx, j.Track, j.Grade, pts); err != nil {
			s.log.Error(ctx, "scoreboard update failed", logger.String("track", j.Track), logger.Error(err))
		}
		metrics.RecordJudgment(j.Track, j.Grade.String())
		if j.Grade.Hit() {
			metrics.RecordJudgmentDelta(float64(j.Delta) / float64(time.Millisecond))
		}
		if j.Category == model.Sustained {
			metrics.RecordHoldCoverage(j.Coverage)
		}
		s.out.Judgment(ctx, j, pts, s.update(now, false))
	}
	sum := s.tally.Summary()
	metrics.UpdateSessionScore(sum.Score, sum.Combo)
	s.publish(now)
}

// update builds a display update from current state.
func (s *session) update(now time.Time, lanes bool) dispatch.DisplayUpdate {
	t := s.clock.Now()
	sum := s.tally.Summary()
	u := dispatch.DisplayUpdate{
		RunID:      s.runID,
		State:      s.state.String(),
		ClockMS:    t.Milliseconds(),
		Score:      sum.Score,
		Combo:      sum.Combo,
		MaxCombo:   sum.MaxCombo,
		Accuracy:   sum.Accuracy,
		Counts:     sum.Counts,
		NodeHealth: s.health(now),
	}
	if s.state == Countdown {
		u.Countdown = s.remaining(now)
	}
	if lanes && s.state != Idle {
		u.Lanes = s.engine.Lanes(t, s.lookahead)
	}
	return u
}

// remaining returns whole countdown seconds left, rounded up.
func (s *session) remaining(now time.Time) int {
	left := s.countdown - now.Sub(s.countdownFrom)
	if left <= 0 {
		return 0
	}
	return int((left + time.Second - 1) / time.Second)
}

func (s *session) publish(now time.Time) View {
	v := &View{
		RunID:      s.runID,
		State:      s.state.String(),
		ClockMS:    s.clock.Now().Milliseconds(),
		Chart:      s.chart.Title,
		Notes:      s.chart.NoteCount(),
		Summary:    s.tally.Summary(),
		Engine:     s.engine.Stats(),
		NotRunning: s.notRunning,
		StaleEpoch: s.staleEpoch,
		UpdatedAt:  now,
	}
	if s.state == Countdown {
		v.Countdown = s.remaining(now)
	}
	s.view.Store(v)
	return *v
}
