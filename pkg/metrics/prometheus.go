// Package metrics provides Prometheus metrics for the retake service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Engine
	takesFinalized       prometheus.Counter
	takeDuration         prometheus.Histogram
	samples              *prometheus.CounterVec
	renders              *prometheus.CounterVec
	loops                prometheus.Counter
	playbackStops        prometheus.Counter
	rejectedTransitions  *prometheus.CounterVec
	clockDiscontinuities prometheus.Counter
	snapshotErrors       *prometheus.CounterVec
	tickLatency          prometheus.Histogram
	activeSessions       prometheus.Gauge
	sessionCommands      *prometheus.CounterVec
	duplicateBatches     prometheus.Counter

	// Take store
	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec

	// Command queue
	queueSize         prometheus.Gauge
	queueCapacity     prometheus.Gauge
	queueUtilization  prometheus.Gauge
	queueEnqueued     prometheus.Counter
	queueDequeued     prometheus.Counter
	queueEnqueueError *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorsByEndpoint    *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "retake",
		subsystem:        "engine",
		histogramBuckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 1000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, Buckets: m.histogramBuckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.takesFinalized = m.counter("takes_finalized_total", "Takes finalized into a Recording")
	m.takeDuration = m.histogram("take_duration_milliseconds", "Duration of finalized takes",
		prometheus.ExponentialBuckets(100, 2, 12))
	m.samples = m.counterVec("samples_total", "Input samples by capture outcome", "outcome")
	m.renders = m.counterVec("renders_total", "Render sink invocations by event kind", "kind", "interpolated")
	m.loops = m.counter("loops_total", "Loop seams crossed during playback")
	m.playbackStops = m.counter("playback_stops_total", "Playback passes ended by stop or natural end")
	m.rejectedTransitions = m.counterVec("rejected_transitions_total", "Control operations rejected as invalid transitions", "op", "state")
	m.clockDiscontinuities = m.counter("clock_discontinuities_total", "Host clock jumps absorbed by re-anchoring")
	m.snapshotErrors = m.counterVec("snapshot_errors_total", "Snapshot load and save failures", "kind")
	m.tickLatency = m.histogram("tick_latency_milliseconds", "Time spent inside one engine tick", m.histogramBuckets)
	m.activeSessions = m.gauge("active_sessions", "Sessions currently hosted")
	m.sessionCommands = m.counterVec("session_commands_total", "Commands dispatched to engines", "op")
	m.duplicateBatches = m.counter("duplicate_batches_total", "Input batches skipped as duplicates")

	m.storeOperations = m.counterVec("store_operations_total", "Take store operations", "driver", "op", "result")
	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Take store operation latency", "driver", "op")

	m.queueSize = m.gauge("queue_size", "Commands waiting across session queues")
	m.queueCapacity = m.gauge("queue_capacity", "Capacity of a session command queue")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Last observed queue fill ratio")
	m.queueEnqueued = m.counter("queue_enqueued_total", "Commands enqueued")
	m.queueDequeued = m.counter("queue_dequeued_total", "Commands dequeued")
	m.queueEnqueueError = m.counterVec("queue_enqueue_errors_total", "Commands refused by the queue", "reason")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration", "endpoint", "method", "status_code")
	m.errorsByEndpoint = m.counterVec("http_errors_total", "HTTP error responses by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutines", "Goroutines running")
	m.systemGCPauseTime = m.histogram("system_gc_pause_milliseconds", "Average GC pause", m.histogramBuckets)
}

// RecordTakeFinalized counts a finished take and observes its duration.
func RecordTakeFinalized(durationMs float64) {
	globalManager.takesFinalized.Inc()
	globalManager.takeDuration.Observe(durationMs)
}

// RecordSample counts one input sample by its capture outcome.
func RecordSample(outcome string) {
	globalManager.samples.WithLabelValues(outcome).Inc()
}

// RecordRender counts one render sink invocation.
func RecordRender(kind string, interpolated bool) {
	label := "false"
	if interpolated {
		label = "true"
	}
	globalManager.renders.WithLabelValues(kind, label).Inc()
}

func RecordLoop() {
	globalManager.loops.Inc()
}

func RecordPlaybackStop() {
	globalManager.playbackStops.Inc()
}

// RecordRejectedTransition counts an invalid control operation.
func RecordRejectedTransition(op, state string) {
	globalManager.rejectedTransitions.WithLabelValues(op, state).Inc()
}

func RecordClockDiscontinuity() {
	globalManager.clockDiscontinuities.Inc()
}

// RecordSnapshotError counts a failed snapshot load or save by error kind.
func RecordSnapshotError(kind string) {
	globalManager.snapshotErrors.WithLabelValues(kind).Inc()
}

func RecordTickLatency(latencyMs float64) {
	globalManager.tickLatency.Observe(latencyMs)
}

func UpdateActiveSessions(count int) {
	globalManager.activeSessions.Set(float64(count))
}

func RecordSessionCommand(op string) {
	globalManager.sessionCommands.WithLabelValues(op).Inc()
}

func RecordDuplicateBatch() {
	globalManager.duplicateBatches.Inc()
}

// RecordStoreOperation counts a take store call and its latency.
func RecordStoreOperation(driver, op, result string, latencyMs float64) {
	globalManager.storeOperations.WithLabelValues(driver, op, result).Inc()
	globalManager.storeLatency.WithLabelValues(driver, op).Observe(latencyMs)
}

func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueError.WithLabelValues(reason).Inc()
}

func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the registry the global manager writes to.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
