package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/kitchenbeat/internal/domain/ingress"
	"github.com/okian/kitchenbeat/internal/domain/model"
	"github.com/okian/kitchenbeat/pkg/logger"
	"github.com/okian/kitchenbeat/pkg/metrics"
)

const poolShutdownTimeout = 5 * time.Second

// Normalizer turns raw messages into action events.
type Normalizer interface {
	Normalize(ctx context.Context, msg model.Message) (model.ActionEvent, error)
}

// Source is where workers read raw messages.
type Source interface {
	Dequeue(ctx context.Context) <-chan model.Message
}

// Sink receives normalized events.
type Sink interface {
	Enqueue(ctx context.Context, ev model.ActionEvent) bool
}

// Worker processes messages until its source closes or ctx ends.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	source     Source
	normalizer Normalizer
	sink       Sink
	name       string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(source Source, normalizer Normalizer, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:     source,
		normalizer: normalizer,
		sink:       sink,
		name:       "worker",
		shutdown:   make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	msgs := w.source.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if err := w.process(ctx, msg); err != nil {
				w.logger.Debug(ctx, "message dropped", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the worker and waits for its loop to return.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, msg model.Message) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	ev, err := w.normalizer.Normalize(ctx, msg)
	if err != nil {
		// Duplicates are routine redeliveries.
		if !errors.Is(err, ingress.ErrDuplicate) {
			metrics.RecordWorkerError()
		}
		return fmt.Errorf("normalize %s/%s: %w", msg.Topic, msg.ActionID, err)
	}
	if !w.sink.Enqueue(ctx, ev) {
		metrics.RecordWorkerError()
		return fmt.Errorf("inbox rejected event for %s", ev.Track)
	}
	return nil
}

// Pool manages multiple workers over one source.
type Pool struct {
	workers []*InMemoryWorker
	source  Source
	logger  logger.Logger
}

// NewPool creates a pool; workerCount < 1 means one per CPU.
func NewPool(workerCount int, source Source, normalizer Normalizer, sink Sink, l logger.Logger) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	if l == nil {
		l = logger.Discard()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		source:  source,
		logger:  l.Named("worker-pool"),
	}
	for i := 0; i < workerCount; i++ {
		p.workers[i] = NewInMemoryWorker(source, normalizer, sink,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(l),
		)
	}
	metrics.UpdateWorkerActiveCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the source, if it can be closed, and waits for every
// worker to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.source.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			errs = append(errs, fmt.Errorf("worker %d: %w", i, shutdownCtx.Err()))
		}
	}
	metrics.UpdateWorkerActiveCount(0)
	return errors.Join(errs...)
}
