package regions

import (
	"errors"
	"sync"
	"time"

	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/parallel"
)

// FinishFile consolidates one scope: it sweeps the scope's boundary
// records and publishes every resulting region to the regions tree and,
// once per label it carries, to the reference index.
//
// Idempotent: re-finalizing an unchanged scope rewrites byte-identical
// rows. Must not run concurrently with Insert on the same scope;
// independent scopes finalize in parallel freely. On a malformed
// boundary stream (ErrUnderflow, ErrUnclosed) nothing is written and
// the scope stays unfinalized.
func (e *Engine) FinishFile(file FileID, run RunID) error {
	scope := Scope{File: file, Run: run}
	start := time.Now()

	it := e.marks.ScanPrefix(scopeKey(scope))
	if err := it.Err(); err != nil {
		return NewError("FinishFile").Scope(scope).Cause(err).Err()
	}

	// Materialize the whole partition before writing anything, so a
	// sweep failure leaves the stored state untouched.
	sw := newSweep(it)
	var regions []Region
	for sw.Next() {
		rs, re, labels := sw.Region()
		regions = append(regions, Region{
			Scope:  scope,
			Span:   Span{Start: rs, End: re},
			Labels: append([]Label(nil), labels...),
		})
	}
	if err := sw.Err(); err != nil {
		if IsInvariantViolation(err) {
			e.metrics.SweepUnderflowsTotal.Inc()
		}
		e.metrics.RecordFinalize("error", time.Since(start))
		return NewError("FinishFile").Scope(scope).Cause(err).Err()
	}

	for _, r := range regions {
		val := encodeRegionValue(r.Span.End, r.Labels)
		if err := e.regions.Set(scopeOffsetKey(scope, r.Span.Start), val); err != nil {
			e.metrics.RecordFinalize("error", time.Since(start))
			return NewError("FinishFile").Scope(scope).Offset(r.Span.Start).Cause(err).Err()
		}
		for _, l := range r.Labels {
			if err := e.refs.Set(refKey(l, scope, r.Span.Start), val); err != nil {
				e.metrics.RecordFinalize("error", time.Since(start))
				return NewError("FinishFile").Scope(scope).Label(l).Offset(r.Span.Start).Cause(err).Err()
			}
		}
	}

	if err := e.scopes.Set(scopeKey(scope), encodeScopeState(len(regions))); err != nil {
		e.metrics.RecordFinalize("error", time.Since(start))
		return NewError("FinishFile").Scope(scope).Cause(err).Err()
	}

	e.metrics.RecordSweep(sw.Events(), len(regions))
	e.metrics.RecordFinalize("success", time.Since(start))
	e.log.Debug("scope finalized",
		logging.File(uint32(file)),
		logging.Run(uint32(run)),
		logging.Count(len(regions)),
		logging.Latency(time.Since(start)))
	return nil
}

// FinishAll finalizes every scope that has marks, in parallel on a
// worker pool. Scope failures are isolated: one bad scope does not stop
// the others, and the joined error reports each failure.
func (e *Engine) FinishAll() error {
	scopes, err := e.markScopes()
	if err != nil {
		return NewError("FinishAll").Cause(err).Err()
	}
	if len(scopes) == 0 {
		return nil
	}

	pool, err := parallel.NewWorkerPool(e.workers)
	if err != nil {
		return NewError("FinishAll").Cause(err).Err()
	}

	var mu sync.Mutex
	var errs []error
	for _, scope := range scopes {
		scope := scope
		pool.Submit(func() {
			if err := e.FinishFile(scope.File, scope.Run); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	pool.Wait()

	return errors.Join(errs...)
}

// markScopes scans the mark keyspace and returns every distinct scope,
// ordered. Keys arrive sorted, so a scope ends exactly when its 8-byte
// prefix changes.
func (e *Engine) markScopes() ([]Scope, error) {
	it := e.marks.Scan(nil, nil)
	if err := it.Err(); err != nil {
		return nil, err
	}

	var scopes []Scope
	for it.Next() {
		scope, _, err := parseScopeOffsetKey(it.Key())
		if err != nil {
			return nil, err
		}
		if n := len(scopes); n == 0 || scopes[n-1] != scope {
			scopes = append(scopes, scope)
		}
	}
	return scopes, nil
}
