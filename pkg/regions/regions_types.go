package regions

// Label identifies what a mark asserts about a byte range: an entity,
// requirement, executed test, or syntax scope. Opaque at this layer.
type Label uint32

// FileID identifies a registered source artifact.
type FileID uint32

// RunID identifies the producer run a mark came from. Zero is the
// default run.
type RunID uint32

// Scope is the unit of consolidation: marks never interact across
// scopes and every query is scoped.
type Scope struct {
	File FileID
	Run  RunID
}

// Span is a half-open byte range [Start, End).
type Span struct {
	Start uint32
	End   uint32
}

// Len returns the span's width in bytes.
func (s Span) Len() uint32 {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Contains reports whether offset falls inside the span.
func (s Span) Contains(offset uint32) bool {
	return offset >= s.Start && offset < s.End
}

// Overlaps reports whether two spans share at least one byte.
func (s Span) Overlaps(o Span) bool {
	return s.Start < o.End && o.Start < s.End
}

// Mark is one (range, label) contribution to a scope.
type Mark struct {
	Span  Span
	Label Label
}

// Region is a maximal sub-range over which a constant, non-empty label
// set is active. Regions of one scope are ordered by start and never
// overlap; adjacent regions always differ in label set. Labels is
// sorted ascending and duplicate-free.
type Region struct {
	Scope  Scope
	Span   Span
	Labels []Label
}

// HasLabel reports whether the region's label set contains l.
func (r Region) HasLabel(l Label) bool {
	for _, x := range r.Labels {
		if x == l {
			return true
		}
	}
	return false
}
