package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initIngestMetrics() {
	r.IngestMarksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "duvet_ingest_marks_total",
			Help: "Total number of marks produced per producer",
		},
		[]string{"producer"},
	)

	r.IngestFilesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "duvet_ingest_files_total",
			Help: "Total number of files processed per producer",
		},
		[]string{"producer"},
	)

	r.IngestDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duvet_ingest_duration_seconds",
			Help:    "Producer run duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
		},
		[]string{"producer", "status"},
	)

	r.IngestBusFramesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "duvet_ingest_bus_frames_total",
			Help: "Total number of mark frames received on the ingest bus",
		},
		[]string{"status"},
	)
}
