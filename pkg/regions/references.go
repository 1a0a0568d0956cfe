package regions

import (
	"github.com/imabhichow/duvet/pkg/mergelog"
)

// RegionIterator walks reference-index rows for one label in ascending
// (file, run, start) order.
type RegionIterator struct {
	it    *mergelog.Iterator
	label Label
	cur   Region
	err   error
}

// References returns every consolidated region containing label, in
// ascending (scope, start) order. A label nothing has finalized yields
// an empty iterator, not an error.
func (e *Engine) References(label Label) *RegionIterator {
	e.metrics.ReferenceQueriesTotal.Inc()
	return &RegionIterator{
		it:    e.refs.ScanPrefix(refPrefix(label)),
		label: label,
	}
}

// Next advances the iterator. Returns false when exhausted or failed.
func (ri *RegionIterator) Next() bool {
	if ri.err != nil {
		return false
	}
	if !ri.it.Next() {
		ri.err = ri.it.Err()
		return false
	}

	label, scope, start, err := parseRefKey(ri.it.Key())
	if err != nil {
		ri.err = err
		return false
	}
	end, labels, err := decodeRegionValue(ri.it.Value())
	if err != nil {
		ri.err = err
		return false
	}

	ri.cur = Region{Scope: scope, Span: Span{Start: start, End: end}, Labels: labels}
	if !ri.cur.HasLabel(label) {
		ri.err = NewError("References").Scope(scope).Label(label).Offset(start).
			Context("index row missing its own label").Cause(ErrCorruptRecord).Err()
		return false
	}
	return true
}

// Region returns the current region. Only valid after a true Next.
func (ri *RegionIterator) Region() Region {
	return ri.cur
}

// Err returns the error that stopped iteration, if any.
func (ri *RegionIterator) Err() error {
	return ri.err
}

// Collect drains the iterator into a slice.
func (ri *RegionIterator) Collect() ([]Region, error) {
	var out []Region
	for ri.Next() {
		out = append(out, ri.Region())
	}
	return out, ri.Err()
}

// FileRegions returns one scope's consolidated partition in start
// order. Querying a scope that was never finalized fails with
// ErrScopeNotFinalized rather than returning a partial view.
func (e *Engine) FileRegions(file FileID, run RunID) ([]Region, error) {
	scope := Scope{File: file, Run: run}

	_, found, err := e.scopes.Get(scopeKey(scope))
	if err != nil {
		return nil, NewError("FileRegions").Scope(scope).Cause(err).Err()
	}
	if !found {
		return nil, NewError("FileRegions").Scope(scope).Cause(ErrScopeNotFinalized).Err()
	}

	it := e.regions.ScanPrefix(scopeKey(scope))
	var out []Region
	for it.Next() {
		_, start, err := parseScopeOffsetKey(it.Key())
		if err != nil {
			return nil, NewError("FileRegions").Scope(scope).Cause(err).Err()
		}
		end, labels, err := decodeRegionValue(it.Value())
		if err != nil {
			return nil, NewError("FileRegions").Scope(scope).Offset(start).Cause(err).Err()
		}
		out = append(out, Region{Scope: scope, Span: Span{Start: start, End: end}, Labels: labels})
	}
	if err := it.Err(); err != nil {
		return nil, NewError("FileRegions").Scope(scope).Cause(err).Err()
	}
	return out, nil
}

// Finalized reports whether a scope has a published partition and, if
// so, how many regions it holds.
func (e *Engine) Finalized(file FileID, run RunID) (bool, int, error) {
	scope := Scope{File: file, Run: run}

	val, found, err := e.scopes.Get(scopeKey(scope))
	if err != nil {
		return false, 0, NewError("Finalized").Scope(scope).Cause(err).Err()
	}
	if !found {
		return false, 0, nil
	}
	count, err := decodeScopeState(val)
	if err != nil {
		return false, 0, NewError("Finalized").Scope(scope).Cause(err).Err()
	}
	return true, count, nil
}

// Scopes returns every finalized scope in (file, run) order.
func (e *Engine) Scopes() ([]Scope, error) {
	it := e.scopes.Scan(nil, nil)
	var out []Scope
	for it.Next() {
		scope, err := parseScopeKey(it.Key())
		if err != nil {
			return nil, NewError("Scopes").Cause(err).Err()
		}
		out = append(out, scope)
	}
	if err := it.Err(); err != nil {
		return nil, NewError("Scopes").Cause(err).Err()
	}
	return out, nil
}
