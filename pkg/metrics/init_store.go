package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initStoreMetrics() {
	r.StoreOperationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "duvet_store_operations_total",
			Help: "Total number of merge log operations",
		},
		[]string{"tree", "operation", "status"},
	)

	r.StoreOperationDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duvet_store_operation_duration_seconds",
			Help:    "Merge log operation duration in seconds",
			Buckets: []float64{0.0001, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
		},
		[]string{"operation"},
	)

	r.StoreKeysTotal = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "duvet_store_keys_total",
			Help: "Number of live keys per tree",
		},
		[]string{"tree"},
	)

	r.StoreWALRecordsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "duvet_store_wal_records_total",
			Help: "Total number of records appended to the write-ahead log",
		},
	)

	r.StoreWALBytesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "duvet_store_wal_bytes_total",
			Help: "Bytes written to the write-ahead log before and after compression",
		},
		[]string{"state"},
	)

	r.StoreFlushesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "duvet_store_flushes_total",
			Help: "Total number of memtable flushes to segment files",
		},
	)

	r.StoreDiskUsageBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "duvet_store_disk_usage_bytes",
			Help: "Disk space used by the merge log in bytes",
		},
	)
}
