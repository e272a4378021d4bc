// Package metrics provides Prometheus metrics for the sitestats analytics service.
package metrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

var defaultLatencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 2500} //nolint:gochecknoglobals // milliseconds

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Tracking
	eventsTracked   *prometheus.CounterVec
	commandsApplied *prometheus.CounterVec
	eventsDuplicate prometheus.Counter
	sessionsStarted prometheus.Counter
	sessionsEnded   prometheus.Counter
	sessionsBounced prometheus.Counter
	activeTrackers  prometheus.Gauge

	// Queries
	summaryLatency *prometheus.HistogramVec
	summaryEvents  prometheus.Histogram

	// Store
	storeCorruptRecords *prometheus.CounterVec
	storeReadFallbacks  *prometheus.CounterVec
	storeWriteErrors    *prometheus.CounterVec
	storeWriteLatency   prometheus.Histogram
	storeReadLatency    prometheus.Histogram

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    *prometheus.CounterVec

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // package-level recorder functions need one manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // private registry without default Go collectors

func init() { //nolint:gochecknoinits // metrics must exist before any component records
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "sitestats",
		subsystem:        "analytics",
		histogramBuckets: defaultLatencyBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	return m.metricPrefix + n
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place that declares every collector
	auto := promauto.With(m.registry)
	ms := m.histogramBuckets

	m.eventsTracked = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("events_tracked_total"),
		Help: "Tracked events persisted, by kind",
	}, []string{"kind"})
	m.commandsApplied = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("commands_applied_total"),
		Help: "Track commands applied to visitor sessions, by type",
	}, []string{"type"})
	m.eventsDuplicate = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("events_duplicate_total"),
		Help: "Track requests dropped because their event id was already seen",
	})
	m.sessionsStarted = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("sessions_started_total"),
		Help: "Visitor sessions started",
	})
	m.sessionsEnded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("sessions_ended_total"),
		Help: "Visitor sessions finalized",
	})
	m.sessionsBounced = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("sessions_bounced_total"),
		Help: "Finalized sessions classified as bounced",
	})
	m.activeTrackers = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("active_trackers"),
		Help: "Visitors with an in-memory session tracker",
	})

	m.summaryLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("summary_duration_milliseconds"),
		Help:    "Time to build an analytics view from the event store",
		Buckets: ms,
	}, []string{"view"})
	m.summaryEvents = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("summary_snapshot_events"),
		Help:    "Number of events in the snapshot scanned per summary",
		Buckets: prometheus.ExponentialBuckets(10, 4, 10),
	})

	m.storeCorruptRecords = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("store_corrupt_records_total"),
		Help: "Stored records skipped because they could not be decoded",
	}, []string{"collection"})
	m.storeReadFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("store_read_fallbacks_total"),
		Help: "Collection reads that failed and degraded to an empty result",
	}, []string{"collection"})
	m.storeWriteErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("store_write_errors_total"),
		Help: "Failed writes to the durable store",
	}, []string{"collection"})
	m.storeWriteLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("store_write_latency_milliseconds"),
		Help:    "Durable store write latency",
		Buckets: ms,
	})
	m.storeReadLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("store_read_latency_milliseconds"),
		Help:    "Durable store collection scan latency",
		Buckets: ms,
	})

	m.queueSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_size"),
		Help: "Track commands waiting to be applied",
	})
	m.queueCapacity = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_capacity"),
		Help: "Maximum queued track commands",
	})
	m.queueUtilization = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_utilization_ratio"),
		Help: "Queue size divided by capacity",
	})
	m.queueEnqueued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_enqueued_total"),
		Help: "Track commands enqueued",
	})
	m.queueDequeued = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_dequeued_total"),
		Help: "Track commands handed to workers",
	})
	m.queueRejected = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("queue_rejected_total"),
		Help: "Track commands rejected by the queue, by reason",
	}, []string{"reason"})

	m.workerCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("worker_count"),
		Help: "Workers applying track commands",
	})
	m.workerProcessingLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("worker_processing_latency_milliseconds"),
		Help:    "Time to apply one track command",
		Buckets: ms,
	})
	m.workerErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("worker_errors_total"),
		Help: "Track commands that failed to apply",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("http_requests_total"),
		Help: "HTTP requests by endpoint, method and status",
	}, []string{"endpoint", "method", "status_code"})
	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "HTTP request duration",
		Buckets: ms,
	}, []string{"endpoint", "method", "status_code"})

	m.errorsByComponent = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("errors_by_component_total"),
		Help: "Errors by component and type",
	}, []string{"component", "error_type"})
	m.errorsByEndpoint = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("errors_by_endpoint_total"),
		Help: "HTTP errors by endpoint, method and type",
	}, []string{"endpoint", "method", "error_type"})

	m.systemMemoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("system_memory_usage_bytes"),
		Help: "Heap bytes allocated",
	})
	m.systemGoroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name: m.name("system_goroutine_count"),
		Help: "Number of goroutines",
	})
	m.systemGCPauseTime = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: m.customLabels,
		Name:    m.name("system_gc_pause_time_milliseconds"),
		Help:    "Average GC pause time in milliseconds",
		Buckets: ms,
	})
}

// Tracking.

// RecordEventTracked counts one persisted event of the given kind.
func RecordEventTracked(kind string) {
	globalManager.eventsTracked.WithLabelValues(kind).Inc()
}

// RecordCommandApplied counts one track command applied by a worker.
func RecordCommandApplied(commandType string) {
	globalManager.commandsApplied.WithLabelValues(commandType).Inc()
}

// RecordEventDuplicate counts a dropped duplicate track request.
func RecordEventDuplicate() {
	globalManager.eventsDuplicate.Inc()
}

// RecordSessionStarted counts a started session.
func RecordSessionStarted() {
	globalManager.sessionsStarted.Inc()
}

// RecordSessionEnded counts a finalized session and whether it bounced.
func RecordSessionEnded(bounced bool) {
	globalManager.sessionsEnded.Inc()
	if bounced {
		globalManager.sessionsBounced.Inc()
	}
}

// UpdateActiveTrackers sets the number of in-memory visitor trackers.
func UpdateActiveTrackers(n int) {
	globalManager.activeTrackers.Set(float64(n))
}

// Queries.

// RecordSummaryLatency records how long building a view took.
func RecordSummaryLatency(view string, latencyMs float64) {
	globalManager.summaryLatency.WithLabelValues(view).Observe(latencyMs)
}

// RecordSummarySnapshotSize records the number of events scanned for one summary.
func RecordSummarySnapshotSize(events int) {
	globalManager.summaryEvents.Observe(float64(events))
}

// Store.

// RecordStoreCorruptRecord counts a record skipped during decoding.
func RecordStoreCorruptRecord(collection string) {
	globalManager.storeCorruptRecords.WithLabelValues(collection).Inc()
}

// RecordStoreReadFallback counts a failed scan that degraded to an empty collection.
func RecordStoreReadFallback(collection string) {
	globalManager.storeReadFallbacks.WithLabelValues(collection).Inc()
}

// RecordStoreWriteError counts a failed write.
func RecordStoreWriteError(collection string) {
	globalManager.storeWriteErrors.WithLabelValues(collection).Inc()
}

// RecordStoreWriteLatency records a write latency in milliseconds.
func RecordStoreWriteLatency(latencyMs float64) {
	globalManager.storeWriteLatency.Observe(latencyMs)
}

// RecordStoreReadLatency records a scan latency in milliseconds.
func RecordStoreReadLatency(latencyMs float64) {
	globalManager.storeReadLatency.Observe(latencyMs)
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueRejected counts a rejected enqueue.
func RecordQueueRejected(reason string) {
	globalManager.queueRejected.WithLabelValues(reason).Inc()
}

// Workers.

// UpdateWorkerCount sets the current worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, durationMs float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// CollectSystemMetrics samples runtime memory, goroutine and GC stats every
// refresh interval until ctx is done. It returns immediately when disabled.
func CollectSystemMetrics(ctx context.Context) {
	globalManager.collectSystem(ctx)
}

func (m *Manager) collectSystem(ctx context.Context) {
	if !m.enabled {
		return
	}
	ticker := time.NewTicker(m.refreshInterval)
	defer ticker.Stop()
	var lastNumGC uint32
	for {
		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)
		m.systemMemoryUsage.Set(float64(ms.HeapAlloc))
		m.systemGoroutineCount.Set(float64(runtime.NumGoroutine()))
		if ms.NumGC > lastNumGC {
			// PauseNs is a ring buffer of the most recent 256 pauses.
			idx := (ms.NumGC + 255) % 256
			m.systemGCPauseTime.Observe(float64(ms.PauseNs[idx]) / float64(time.Millisecond))
			lastNumGC = ms.NumGC
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// GetRegistry returns the private Prometheus registry.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
