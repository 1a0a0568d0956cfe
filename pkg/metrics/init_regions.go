package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initRegionMetrics() {
	r.MarksInsertedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "duvet_marks_inserted_total",
			Help: "Total number of marks inserted",
		},
	)

	r.SweepEventsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "duvet_sweep_events_total",
			Help: "Total number of boundary events consumed by sweeps",
		},
	)

	r.SweepRegionsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "duvet_sweep_regions_total",
			Help: "Total number of consolidated regions emitted by sweeps",
		},
	)

	r.SweepUnderflowsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "duvet_sweep_underflows_total",
			Help: "Total number of sweeps aborted by refcount underflow",
		},
	)

	r.FinalizeScopesTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "duvet_finalize_scopes_total",
			Help: "Total number of scope finalizations",
		},
		[]string{"status"},
	)

	r.FinalizeDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duvet_finalize_duration_seconds",
			Help:    "Scope finalization duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"status"},
	)

	r.ReferenceQueriesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "duvet_reference_queries_total",
			Help: "Total number of reference index queries",
		},
	)
}
