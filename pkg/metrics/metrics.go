package metrics

import (
	"time"
)

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordStoreOperation records a merge log operation
func (r *Registry) RecordStoreOperation(tree, operation, status string, duration time.Duration) {
	r.StoreOperationsTotal.WithLabelValues(tree, operation, status).Inc()
	r.StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordWALAppend records a write-ahead log append
func (r *Registry) RecordWALAppend(uncompressed, compressed int) {
	r.StoreWALRecordsTotal.Inc()
	r.StoreWALBytesTotal.WithLabelValues("uncompressed").Add(float64(uncompressed))
	r.StoreWALBytesTotal.WithLabelValues("compressed").Add(float64(compressed))
}

// RecordSweep records one sweep pass over a scope
func (r *Registry) RecordSweep(events, regions int) {
	r.SweepEventsTotal.Add(float64(events))
	r.SweepRegionsTotal.Add(float64(regions))
}

// RecordFinalize records a scope finalization
func (r *Registry) RecordFinalize(status string, duration time.Duration) {
	r.FinalizeScopesTotal.WithLabelValues(status).Inc()
	r.FinalizeDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordIngest records a producer run
func (r *Registry) RecordIngest(producer, status string, duration time.Duration, marks int) {
	r.IngestMarksTotal.WithLabelValues(producer).Add(float64(marks))
	r.IngestDuration.WithLabelValues(producer, status).Observe(duration.Seconds())
}
