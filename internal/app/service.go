// Package service wires the game pipeline: ingress queues, normalization
// workers, the session loop that owns the matching engine, and the output
// sinks. It implements the dependencies of the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/kitchenbeat/internal/adapters/http/ws"
	"github.com/okian/kitchenbeat/internal/adapters/mq/mqtt"
	"github.com/okian/kitchenbeat/internal/adapters/mq/queue"
	"github.com/okian/kitchenbeat/internal/adapters/mq/worker"
	"github.com/okian/kitchenbeat/internal/adapters/repository"
	"github.com/okian/kitchenbeat/internal/config"
	"github.com/okian/kitchenbeat/internal/domain/chart"
	"github.com/okian/kitchenbeat/internal/domain/clock"
	"github.com/okian/kitchenbeat/internal/domain/dedupe"
	"github.com/okian/kitchenbeat/internal/domain/dispatch"
	"github.com/okian/kitchenbeat/internal/domain/ingress"
	"github.com/okian/kitchenbeat/internal/domain/mapping"
	"github.com/okian/kitchenbeat/internal/domain/matching"
	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/internal/domain/scoring"
	"github.com/okian/kitchenbeat/pkg/logger"
)

// QueueStats describes one pipeline queue.
type QueueStats struct {
	Length  int   `json:"length"`
	Dropped int64 `json:"dropped"`
}

// Stats is the service snapshot served on /stats.
type Stats struct {
	Started   bool                 `json:"started"`
	Workers   int                  `json:"workers"`
	RawQueue  QueueStats           `json:"raw_queue"`
	Inbox     QueueStats           `json:"inbox"`
	Ingress   ingress.Stats        `json:"ingress"`
	Session   View                 `json:"session"`
	Nodes     []ingress.NodeHealth `json:"nodes"`
	WSClients int                  `json:"ws_clients"`
	MQTT      bool                 `json:"mqtt"`
}

type request struct {
	cmd   Command
	reply chan result
}

type result struct {
	view View
	err  error
}

// Service implements the API dependencies for the game host.
type Service struct {
	mu      sync.RWMutex
	cfg     *config.Config
	started bool

	logger logger.Logger
	now    func() time.Time
	newID  func() string
	preset *chart.Chart
	extra  []dispatch.Sink

	mapper     *mapping.Mapper
	tracker    *ingress.NodeTracker
	normalizer *ingress.Normalizer
	raw        *queue.InMemoryQueue[model.Message]
	inbox      *queue.InMemoryQueue[model.ActionEvent]
	pool       *worker.Pool
	hub        *ws.Hub
	mq         *mqtt.Client
	board      *repository.MemoryStore
	sess       *session

	cmds   chan request
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a Service. Nothing is loaded until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{
		cfg:    cfg,
		logger: logger.Discard(),
		now:    time.Now,
		newID:  uuid.NewString,
		cmds:   make(chan request),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MatchingConfig converts configured tolerances.
func MatchingConfig(cfg *config.Config) matching.Config {
	return matching.Config{
		PerfectTolerance: config.Millis(cfg.PerfectToleranceMS),
		GoodTolerance:    config.Millis(cfg.GoodToleranceMS),
		EarlyWindow:      config.Millis(cfg.EarlyWindowMS),
		LateWindow:       config.Millis(cfg.LateWindowMS),
		HoldGrace:        config.Millis(cfg.HoldGraceMS),
		HoldGoodCoverage: cfg.HoldGoodCoverage,
	}
}

// MappingTable converts the configured mapping.
func MappingTable(mc config.MappingConfig) mapping.Table {
	t := mapping.Table{
		Topics:  make(map[string]string, len(mc.Topics)),
		Actions: make(map[string]map[string]mapping.Action, len(mc.Actions)),
	}
	for topic, track := range mc.Topics {
		t.Topics[topic] = track
	}
	for track, actions := range mc.Actions {
		m := make(map[string]mapping.Action, len(actions))
		for id, a := range actions {
			m[id] = mapping.Action{Sound: a.Sound, Category: a.Category}
		}
		t.Actions[track] = m
	}
	return t
}

// build constructs every component without starting goroutines.
func (s *Service) build(ctx context.Context) error {
	cfg := s.cfg
	mapper, err := mapping.New(MappingTable(cfg.Mapping))
	if err != nil {
		return fmt.Errorf("mapping: %w", err)
	}
	ch := s.preset
	if ch == nil {
		ch, err = chart.LoadFile(cfg.ChartPath, chart.WithCatalog(mapper))
		if err != nil {
			return fmt.Errorf("chart: %w", err)
		}
	}
	engine, err := matching.NewEngine(ch, MatchingConfig(cfg), matching.WithIDGenerator(s.newID))
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	sessionClock := clock.New(clock.WithNow(s.now))
	s.tracker = ingress.NewNodeTracker(
		ingress.WithSkewThreshold(config.Millis(cfg.ClockSkewThresholdMS)),
		ingress.WithSmoothing(cfg.ClockSmoothing),
		ingress.WithLivenessTimeout(config.Millis(cfg.LivenessTimeoutMS)),
	)
	s.tracker.Expect(mapper.Topics()...)
	s.normalizer = ingress.NewNormalizer(mapper,
		dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(cfg.DedupeSize)),
		s.tracker, sessionClock,
		ingress.WithLogger(s.logger.Named("ingress")),
		ingress.WithNow(s.now),
	)
	s.mapper = mapper

	s.raw = queue.NewInMemoryQueue[model.Message](queue.WithCapacity(cfg.QueueSize), queue.WithName("raw"))
	s.inbox = queue.NewInMemoryQueue[model.ActionEvent](queue.WithCapacity(cfg.InboxSize), queue.WithName("inbox"))
	s.pool = worker.NewPool(cfg.WorkerCount, s.raw, s.normalizer, s.inbox, s.logger)

	s.hub = ws.NewHub(ws.WithLogger(s.logger.Named("ws")))
	sinks := []dispatch.Sink{s.hub}
	if cfg.MQTTBroker != "" {
		s.mq = mqtt.New(mqtt.Config{
			Broker:        cfg.MQTTBroker,
			ClientID:      cfg.MQTTClientID,
			Username:      cfg.MQTTUsername,
			Password:      cfg.MQTTPassword,
			QoS:           byte(cfg.MQTTQoS),
			Topics:        mapper.Topics(),
			PlaybackTopic: cfg.MQTTPlaybackTopic,
			DisplayTopic:  cfg.MQTTDisplayTopic,
		}, s.raw, mqtt.WithLogger(s.logger.Named("mqtt")), mqtt.WithNow(s.now))
		sinks = append(sinks, s.mq)
	}
	sinks = append(sinks, s.extra...)

	trackIDs := make([]string, 0, len(ch.Tracks))
	for _, t := range ch.Tracks {
		trackIDs = append(trackIDs, t.ID)
	}
	weights := scoring.Weights{Perfect: cfg.ScoreWeights.Perfect, Good: cfg.ScoreWeights.Good, Miss: cfg.ScoreWeights.Miss}
	s.board = repository.NewMemoryStore(
		repository.WithTracks(trackIDs...),
		repository.WithPerfectPoints(weights.Perfect),
	)

	s.sess = &session{
		chart:  ch,
		engine: engine,
		clock:  sessionClock,
		tally:  scoring.NewTally(scoring.WithWeights(weights)),
		board:  s.board,
		out: dispatch.New(sinks,
			dispatch.WithDisplayInterval(config.Millis(cfg.DisplayIntervalMS)),
			dispatch.WithLogger(s.logger.Named("dispatch")),
			dispatch.WithNow(s.now)),
		health:     s.tracker.Health,
		newID:      s.newID,
		log:        s.logger.Named("session"),
		resetters:  []resetter{s.normalizer},
		countdown:  config.Millis(cfg.CountdownMS),
		lookahead:  config.Millis(cfg.LaneLookaheadMS),
		lateWindow: config.Millis(cfg.LateWindowMS),
	}
	s.sess.publish(s.now())

	s.logger.Info(ctx, "chart loaded",
		logger.String("title", ch.Title),
		logger.Int("tracks", len(ch.Tracks)),
		logger.Int("notes", ch.NoteCount()),
		logger.Duration("length", ch.End()))
	return nil
}

// Start loads the chart and mapping and starts the pipeline. Load-time
// errors abort the start.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}
	s.logger.Info(ctx, "starting kitchenbeat service...")
	if err := s.build(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.pool.Start(loopCtx)
	if s.mq != nil {
		if err := s.mq.Connect(loopCtx); err != nil {
			cancel()
			_ = s.pool.Shutdown(ctx)
			return err
		}
	}
	go s.run(loopCtx)

	s.started = true
	s.logger.Info(ctx, "kitchenbeat service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.cfg.QueueSize),
		logger.Int("inboxSize", s.cfg.InboxSize),
		logger.Bool("mqtt", s.mq != nil))
	return nil
}

// run is the serialized session loop. It alone touches engine state.
func (s *Service) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(config.Millis(s.cfg.TickIntervalMS))
	defer ticker.Stop()
	events := s.inbox.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-s.cmds:
			v, err := s.sess.apply(ctx, req.cmd, s.now())
			req.reply <- result{view: v, err: err}
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.sess.submit(ctx, ev, s.now())
		case <-ticker.C:
			s.sess.tick(ctx, s.now())
		}
	}
}

// Stop gracefully shuts down the service.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping kitchenbeat service...")

	var errs []error
	if s.mq != nil {
		errs = append(errs, s.mq.Close())
	}
	errs = append(errs, s.pool.Shutdown(ctx))
	s.cancel()
	select {
	case <-s.done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("session loop: %w", ctx.Err()))
	}
	errs = append(errs, s.inbox.Close(), s.hub.Close())

	s.started = false
	s.logger.Info(ctx, "kitchenbeat service stopped")
	return errors.Join(errs...)
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Ingest submits a raw node message for normalization. It reports false when
// the service is not accepting input.
func (s *Service) Ingest(ctx context.Context, msg model.Message) bool {
	if !s.running() {
		return false
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}
	return s.raw.Enqueue(ctx, msg)
}

// Command runs a session command on the loop and waits for its outcome.
func (s *Service) Command(ctx context.Context, cmd Command) (View, error) {
	s.mu.RLock()
	started, done := s.started, s.done
	s.mu.RUnlock()
	if !started {
		return View{}, ErrNotStarted
	}
	req := request{cmd: cmd, reply: make(chan result, 1)}
	select {
	case s.cmds <- req:
	case <-done:
		return View{}, ErrNotStarted
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.view, r.err
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Session returns the last published session view.
func (s *Service) Session() (View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sess == nil {
		return View{}, ErrNotStarted
	}
	return *s.sess.view.Load(), nil
}

// TopN returns the top n track standings.
func (s *Service) TopN(ctx context.Context, n int) ([]repository.Standing, error) {
	board := s.scoreboard()
	if board == nil {
		return nil, ErrNotStarted
	}
	return board.TopN(ctx, n)
}

// Rank returns the standing of one track.
func (s *Service) Rank(ctx context.Context, track string) (repository.Standing, error) {
	board := s.scoreboard()
	if board == nil {
		return repository.Standing{}, ErrNotStarted
	}
	return board.Rank(ctx, track)
}

func (s *Service) scoreboard() repository.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.board == nil {
		return nil
	}
	return s.board
}

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{Started: s.started}
	if s.sess == nil {
		return st
	}
	st.Workers = s.pool.Size()
	st.RawQueue = QueueStats{Length: s.raw.Len(ctx), Dropped: s.raw.Dropped()}
	st.Inbox = QueueStats{Length: s.inbox.Len(ctx), Dropped: s.inbox.Dropped()}
	st.Ingress = s.normalizer.Stats()
	st.Session = *s.sess.view.Load()
	st.Nodes = s.tracker.Health(s.now())
	st.WSClients = s.hub.Clients()
	st.MQTT = s.mq != nil
	return st
}

// Stream returns the websocket endpoint.
func (s *Service) Stream() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.hub == nil {
		return http.NotFoundHandler()
	}
	return s.hub
}
