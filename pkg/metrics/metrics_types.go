package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the engine
type Registry struct {
	// HTTP Metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestsInFlight  prometheus.Gauge
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Store Metrics (merge log)
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec
	StoreKeysTotal         *prometheus.GaugeVec
	StoreWALRecordsTotal   prometheus.Counter
	StoreWALBytesTotal     *prometheus.CounterVec
	StoreFlushesTotal      prometheus.Counter
	StoreDiskUsageBytes    prometheus.Gauge

	// Region Metrics (sweep and finalize)
	MarksInsertedTotal    prometheus.Counter
	SweepEventsTotal      prometheus.Counter
	SweepRegionsTotal     prometheus.Counter
	SweepUnderflowsTotal  prometheus.Counter
	FinalizeScopesTotal   *prometheus.CounterVec
	FinalizeDuration      *prometheus.HistogramVec
	ReferenceQueriesTotal prometheus.Counter

	// Ingest Metrics
	IngestMarksTotal    *prometheus.CounterVec
	IngestFilesTotal    *prometheus.CounterVec
	IngestDuration      *prometheus.HistogramVec
	IngestBusFramesTotal *prometheus.CounterVec

	// System Metrics
	UptimeSeconds    prometheus.Gauge
	GoRoutines       prometheus.Gauge
	MemoryAllocBytes prometheus.Gauge
	MemorySysBytes   prometheus.Gauge

	registry *prometheus.Registry
	mu       sync.RWMutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initHTTPMetrics()
	r.initStoreMetrics()
	r.initRegionMetrics()
	r.initIngestMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}
