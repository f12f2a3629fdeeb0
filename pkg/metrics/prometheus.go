package metrics

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager manages all Prometheus metrics for the game host.
type Manager struct {
	namespace       string
	subsystem       string
	refreshInterval time.Duration
	registry        prometheus.Registerer
	collecting      atomic.Bool

	// Ingress
	eventsIngested    *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	clockSkewWarnings *prometheus.CounterVec
	nodeLastSeenAge   *prometheus.GaugeVec
	nodeSilent        *prometheus.GaugeVec
	nodeClockOffset   *prometheus.GaugeVec

	// Matching
	judgments     *prometheus.CounterVec
	judgmentDelta prometheus.Histogram
	holdCoverage  prometheus.Histogram

	// Session
	sessionState    prometheus.Gauge
	sessionClockMs  prometheus.Gauge
	sessionScore    prometheus.Gauge
	sessionCombo    prometheus.Gauge
	sessionRestarts prometheus.Counter
	sessionCommands *prometheus.CounterVec

	// Queues
	queueSize     *prometheus.GaugeVec
	queueCapacity *prometheus.GaugeVec
	queueEnqueue  *prometheus.CounterVec
	queueOverflow *prometheus.CounterVec

	// Workers
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Output
	dispatchCommands *prometheus.CounterVec
	dispatchErrors   *prometheus.CounterVec
	wsClients        prometheus.Gauge
	wsFramesDropped  *prometheus.CounterVec
	mqttConnected    prometheus.Gauge
	mqttReceived     prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// Configure replaces the global manager with one built from opts on a fresh
// registry, which GetRegistry then returns. Call it at startup before any
// metric is recorded or scraped.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	opts = append(opts[:len(opts):len(opts)], WithPrometheusRegistry(registry))
	globalManager = NewManager(opts...)
	customRegistry = registry
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       "kitchenbeat",
		subsystem:       "game",
		refreshInterval: defaultRefreshInterval,
		registry:        prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) gaugeVec(name, help string, labels ...string) *prometheus.GaugeVec {
	return promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	})
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every metric
	m.eventsIngested = m.counterVec("events_ingested_total",
		"Action events normalized and handed to the matching engine", "track")
	m.eventsDropped = m.counterVec("events_dropped_total",
		"Messages or events dropped before producing a judgment", "reason")
	m.clockSkewWarnings = m.counterVec("clock_skew_warnings_total",
		"Node clock offsets that jumped beyond the skew threshold", "node")
	m.nodeLastSeenAge = m.gaugeVec("node_last_seen_age_seconds",
		"Seconds since the last message from a node", "node")
	m.nodeSilent = m.gaugeVec("node_silent",
		"1 when a node has exceeded the liveness timeout", "node")
	m.nodeClockOffset = m.gaugeVec("node_clock_offset_milliseconds",
		"Estimated offset between a node clock and the host clock", "node")

	m.judgments = m.counterVec("judgments_total",
		"Resolved notes by track and grade", "track", "grade")
	m.judgmentDelta = m.histogram("judgment_delta_milliseconds",
		"Absolute timing error of matched notes",
		[]float64{5, 10, 20, 35, 50, 75, 100, 150, 200})
	m.holdCoverage = m.histogram("hold_coverage_ratio",
		"Coverage fraction of resolved sustained notes",
		[]float64{0.1, 0.25, 0.5, 0.75, 0.9, 0.95, 1})

	m.sessionState = m.gauge("session_state",
		"Session state (0 idle, 1 countdown, 2 running, 3 paused, 4 ended)")
	m.sessionClockMs = m.gauge("session_clock_milliseconds", "Current session clock")
	m.sessionScore = m.gauge("session_score", "Current session score")
	m.sessionCombo = m.gauge("session_combo", "Current consecutive hit combo")
	m.sessionRestarts = m.counter("session_restarts_total", "Session restarts")
	m.sessionCommands = m.counterVec("session_commands_total",
		"Session commands by name and outcome", "command", "outcome")

	m.queueSize = m.gaugeVec("queue_size", "Current queue depth", "queue")
	m.queueCapacity = m.gaugeVec("queue_capacity", "Maximum queue capacity", "queue")
	m.queueEnqueue = m.counterVec("queue_enqueue_total", "Items enqueued", "queue")
	m.queueOverflow = m.counterVec("queue_overflow_total",
		"Oldest items discarded because the queue was full", "queue")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of running normalization workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Time to normalize one raw message", prometheus.DefBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Worker hand-off errors")

	m.dispatchCommands = m.counterVec("dispatch_commands_total",
		"Output commands emitted by kind", "kind")
	m.dispatchErrors = m.counterVec("dispatch_errors_total",
		"Output sink failures", "sink")
	m.wsClients = m.gauge("ws_clients", "Connected websocket display clients")
	m.wsFramesDropped = m.counterVec("ws_frames_dropped_total",
		"Frames skipped for websocket clients whose send buffer was full", "channel")
	m.mqttConnected = m.gauge("mqtt_connected", "1 while the MQTT client is connected")
	m.mqttReceived = m.counter("mqtt_messages_received_total", "MQTT messages received on instrument topics")

	m.httpRequests = m.counterVec("http_requests_total",
		"Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "http_request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Total number of errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
}

// StartSystemCollector samples runtime memory and goroutine counts until ctx
// is done.
func (m *Manager) StartSystemCollector(ctx context.Context) error {
	if !m.collecting.CompareAndSwap(false, true) {
		return ErrCollectorRunning
	}
	go func() {
		defer m.collecting.Store(false)
		t := time.NewTicker(m.refreshInterval)
		defer t.Stop()
		for {
			m.sampleSystem()
			select {
			case <-ctx.Done():
				return
			case <-t.C:
			}
		}
	}()
	return nil
}

func (m *Manager) sampleSystem() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.systemMemoryUsage.Set(float64(ms.HeapInuse))
	m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
}

// StartSystemCollector runs the global manager's system collector.
func StartSystemCollector(ctx context.Context) error {
	return globalManager.StartSystemCollector(ctx)
}

// RecordEventIngested counts an event handed to the engine.
func RecordEventIngested(track string) {
	globalManager.eventsIngested.WithLabelValues(track).Inc()
}

// RecordEventDropped counts a dropped message or event.
func RecordEventDropped(reason string) {
	globalManager.eventsDropped.WithLabelValues(reason).Inc()
}

// RecordClockSkew counts a clock skew warning for a node.
func RecordClockSkew(node string) {
	globalManager.clockSkewWarnings.WithLabelValues(node).Inc()
}

// UpdateNodeHealth publishes liveness gauges for a node.
func UpdateNodeHealth(node string, lastSeenAge time.Duration, silent bool, offsetMs float64) {
	globalManager.nodeLastSeenAge.WithLabelValues(node).Set(lastSeenAge.Seconds())
	s := 0.0
	if silent {
		s = 1
	}
	globalManager.nodeSilent.WithLabelValues(node).Set(s)
	globalManager.nodeClockOffset.WithLabelValues(node).Set(offsetMs)
}

// RecordJudgment counts a resolved note.
func RecordJudgment(track, grade string) {
	globalManager.judgments.WithLabelValues(track, grade).Inc()
}

// RecordJudgmentDelta records the absolute timing error of a matched note.
func RecordJudgmentDelta(deltaMs float64) {
	if deltaMs < 0 {
		deltaMs = -deltaMs
	}
	globalManager.judgmentDelta.Observe(deltaMs)
}

// RecordHoldCoverage records the coverage of a resolved sustained note.
func RecordHoldCoverage(coverage float64) {
	globalManager.holdCoverage.Observe(coverage)
}

// UpdateSessionState sets the numeric session state.
func UpdateSessionState(state int) {
	globalManager.sessionState.Set(float64(state))
}

// UpdateSessionClock sets the session clock gauge.
func UpdateSessionClock(clock time.Duration) {
	globalManager.sessionClockMs.Set(float64(clock.Milliseconds()))
}

// UpdateSessionScore sets the score and combo gauges.
func UpdateSessionScore(score float64, combo int) {
	globalManager.sessionScore.Set(score)
	globalManager.sessionCombo.Set(float64(combo))
}

// RecordSessionRestart counts a restart.
func RecordSessionRestart() {
	globalManager.sessionRestarts.Inc()
}

// RecordSessionCommand counts a session command with its outcome.
func RecordSessionCommand(command, outcome string) {
	globalManager.sessionCommands.WithLabelValues(command, outcome).Inc()
}

// UpdateQueueSize sets the current depth of a queue.
func UpdateQueueSize(queue string, size int) {
	globalManager.queueSize.WithLabelValues(queue).Set(float64(size))
}

// UpdateQueueCapacity sets the maximum capacity of a queue.
func UpdateQueueCapacity(queue string, capacity int) {
	globalManager.queueCapacity.WithLabelValues(queue).Set(float64(capacity))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue(queue string) {
	globalManager.queueEnqueue.WithLabelValues(queue).Inc()
}

// RecordQueueOverflow counts an item discarded on overflow.
func RecordQueueOverflow(queue string) {
	globalManager.queueOverflow.WithLabelValues(queue).Inc()
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordDispatch counts an emitted output command.
func RecordDispatch(kind string) {
	globalManager.dispatchCommands.WithLabelValues(kind).Inc()
}

// RecordDispatchError counts an output sink failure.
func RecordDispatchError(sink string) {
	globalManager.dispatchErrors.WithLabelValues(sink).Inc()
}

// UpdateWSClients sets the number of connected websocket clients.
func UpdateWSClients(count int) {
	globalManager.wsClients.Set(float64(count))
}

// RecordWSFrameDropped counts a frame skipped for a slow websocket client.
func RecordWSFrameDropped(channel string) {
	globalManager.wsFramesDropped.WithLabelValues(channel).Inc()
}

// UpdateMQTTConnected reports the MQTT connection state.
func UpdateMQTTConnected(connected bool) {
	v := 0.0
	if connected {
		v = 1
	}
	globalManager.mqttConnected.Set(v)
}

// RecordMQTTMessage counts a message received from the broker.
func RecordMQTTMessage() {
	globalManager.mqttReceived.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
