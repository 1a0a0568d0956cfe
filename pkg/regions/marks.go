package regions

// Insert records that label is active over span within scope. Safe for
// arbitrary concurrent callers on the same or different scopes: the
// write path appends through the marks tree's merge operator and never
// reads, so arrival order does not matter.
//
// A span with Start >= End is accepted as a no-op. Inserting into a
// scope that has already been finalized is not detected and leaves the
// scope's published regions stale.
func (e *Engine) Insert(scope Scope, span Span, label Label) error {
	if span.Start >= span.End {
		return nil
	}

	rec := encodeBoundary(label, span.End)
	if err := e.marks.Merge(scopeOffsetKey(scope, span.Start), rec); err != nil {
		return NewError("Insert").Scope(scope).Label(label).Offset(span.Start).Cause(err).Err()
	}
	if err := e.marks.Merge(scopeOffsetKey(scope, span.End), rec); err != nil {
		return NewError("Insert").Scope(scope).Label(label).Offset(span.End).Cause(err).Err()
	}

	e.metrics.MarksInsertedTotal.Inc()
	return nil
}

// InsertAll inserts a batch of marks into one scope, stopping at the
// first storage failure.
func (e *Engine) InsertAll(scope Scope, marks []Mark) error {
	for _, m := range marks {
		if err := e.Insert(scope, m.Span, m.Label); err != nil {
			return err
		}
	}
	return nil
}
