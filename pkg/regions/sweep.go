package regions

import (
	"fmt"
	"sort"

	"github.com/imabhichow/duvet/pkg/mergelog"
)

// boundaryEvent is one folded (offset, label) entry of a scope's event
// stream. delta is the net reference-count change at that point, never
// zero.
type boundaryEvent struct {
	offset uint32
	label  Label
	delta  int32
}

// eventCursor turns a marks-tree iterator into a two-phase event
// stream: Peek exposes the next event without consuming it, Commit
// consumes it. The records stored at one key fold into per-label signed
// deltas first, so opposite-polarity coincidences cancel away entirely
// and repeated same-polarity records keep their true multiplicity.
type eventCursor struct {
	it       *mergelog.Iterator
	queue    []boundaryEvent
	consumed int
	err      error
}

func newEventCursor(it *mergelog.Iterator) *eventCursor {
	return &eventCursor{it: it}
}

// Peek returns the next event without consuming it, or nil at stream
// end.
func (c *eventCursor) Peek() (*boundaryEvent, error) {
	if c.err != nil {
		return nil, c.err
	}
	for len(c.queue) == 0 {
		if !c.it.Next() {
			if err := c.it.Err(); err != nil {
				c.err = err
				return nil, err
			}
			return nil, nil
		}
		_, offset, err := parseScopeOffsetKey(c.it.Key())
		if err != nil {
			c.err = err
			return nil, err
		}
		events, err := foldRecords(offset, c.it.Value())
		if err != nil {
			c.err = err
			return nil, err
		}
		c.queue = events
	}
	return &c.queue[0], nil
}

// Commit consumes the event Peek returned.
func (c *eventCursor) Commit() {
	if len(c.queue) > 0 {
		c.queue = c.queue[1:]
		c.consumed++
	}
}

// foldRecords collapses the records stored at one key into at most one
// event per label, ordered by label. A record opens iff its end lies
// beyond the key's offset; an end before the offset cannot occur in a
// well-formed store.
func foldRecords(offset uint32, val []byte) ([]boundaryEvent, error) {
	if len(val) == 0 || len(val)%boundaryRecordSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes of boundary records at offset %d",
			ErrCorruptRecord, len(val), offset)
	}

	deltas := make(map[Label]int32)
	for i := 0; i < len(val); i += boundaryRecordSize {
		label, end := decodeBoundary(val[i:])
		switch {
		case end > offset:
			deltas[label]++
		case end == offset:
			deltas[label]--
		default:
			return nil, fmt.Errorf("%w: record end %d before key offset %d",
				ErrCorruptRecord, end, offset)
		}
	}

	labels := make([]Label, 0, len(deltas))
	for l, d := range deltas {
		if d != 0 {
			labels = append(labels, l)
		}
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	events := make([]boundaryEvent, 0, len(labels))
	for _, l := range labels {
		events = append(events, boundaryEvent{offset: offset, label: l, delta: deltas[l]})
	}
	return events, nil
}

// sweep lazily converts one scope's boundary events into consolidated
// regions. It is pure and restartable: a fresh sweep over the same
// stored marks always yields the same sequence, and abandoning one
// mid-stream leaves nothing behind.
type sweep struct {
	cur    *eventCursor
	active map[Label]int32
	done   bool
	err    error

	start  uint32
	end    uint32
	labels []Label
}

func newSweep(it *mergelog.Iterator) *sweep {
	return &sweep{
		cur:    newEventCursor(it),
		active: make(map[Label]int32),
	}
}

// Next advances to the next region. Every event at the region's start
// offset is applied unconditionally (together they define the region's
// label set); the region then extends over events that only adjust
// refcounts without changing membership. The first membership-changing
// event stays uncommitted and opens the next region.
func (s *sweep) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	for {
		ev, err := s.cur.Peek()
		if err != nil {
			return s.fail(err)
		}
		if ev == nil {
			if len(s.active) != 0 {
				return s.fail(leakError(s.active))
			}
			s.done = true
			return false
		}

		segStart := ev.offset
		for ev != nil && ev.offset == segStart {
			if err := s.apply(ev); err != nil {
				return s.fail(err)
			}
			s.cur.Commit()
			if ev, err = s.cur.Peek(); err != nil {
				return s.fail(err)
			}
		}

		if len(s.active) == 0 {
			// Everything closed at segStart: a gap, nothing to emit.
			continue
		}
		if ev == nil {
			return s.fail(leakError(s.active))
		}

		// The region always extends to the peeked offset, whether or
		// not the event there ends up applied.
		segEnd := ev.offset
		for ev != nil && !s.flipsMembership(ev) {
			if err := s.apply(ev); err != nil {
				return s.fail(err)
			}
			s.cur.Commit()
			if ev, err = s.cur.Peek(); err != nil {
				return s.fail(err)
			}
			if ev != nil {
				segEnd = ev.offset
			}
		}

		s.start = segStart
		s.end = segEnd
		s.labels = activeLabels(s.active, s.labels)
		return true
	}
}

// Region returns the current region's bounds and sorted label set. The
// labels slice is reused by the next Next call; callers keep it only by
// copying.
func (s *sweep) Region() (start, end uint32, labels []Label) {
	return s.start, s.end, s.labels
}

// Err returns the error that stopped the sweep, if any.
func (s *sweep) Err() error {
	return s.err
}

// Events returns how many folded events the sweep has consumed.
func (s *sweep) Events() int {
	return s.cur.consumed
}

// flipsMembership reports whether applying ev would change its label's
// presence in the active set. An event that would drive the count to
// zero or below counts as a flip; underflows among them are rejected
// when the event is applied as the next region's opener.
func (s *sweep) flipsMembership(ev *boundaryEvent) bool {
	old := s.active[ev.label]
	return old == 0 || old+ev.delta <= 0
}

func (s *sweep) apply(ev *boundaryEvent) error {
	next := s.active[ev.label] + ev.delta
	switch {
	case next < 0:
		return NewError("sweep").Label(ev.label).Offset(ev.offset).Cause(ErrUnderflow).Err()
	case next == 0:
		delete(s.active, ev.label)
	default:
		s.active[ev.label] = next
	}
	return nil
}

func (s *sweep) fail(err error) bool {
	s.err = err
	s.done = true
	return false
}

func leakError(active map[Label]int32) error {
	return NewError("sweep").
		Context(fmt.Sprintf("%d labels still open at stream end", len(active))).
		Cause(ErrUnclosed).
		Err()
}

// activeLabels fills buf with the active set in ascending label order.
func activeLabels(active map[Label]int32, buf []Label) []Label {
	buf = buf[:0]
	for l := range active {
		buf = append(buf, l)
	}
	sort.Slice(buf, func(i, j int) bool { return buf[i] < buf[j] })
	return buf
}
