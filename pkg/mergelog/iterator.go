package mergelog

// Iterator walks a snapshot of one tree's keyspace in ascending
// lexicographic order. Keys and values are copies; the iterator stays
// valid regardless of later writes.
type Iterator struct {
	entries []kvPair
	idx     int
	err     error
}

// Scan returns an iterator over keys in [start, end). A nil end scans to
// the end of the keyspace.
func (t *Tree) Scan(start, end []byte) *Iterator {
	if t.store.closed.Load() {
		return &Iterator{err: ErrStoreClosed, idx: -1}
	}

	t.store.stats.Scans.Add(1)

	t.mu.Lock()
	t.sortKeys()

	startStr := string(start)
	endStr := string(end)

	entries := make([]kvPair, 0)
	for _, key := range t.keys {
		if key < startStr {
			continue
		}
		if end != nil && key >= endStr {
			break
		}
		val := t.data[key]
		cp := make([]byte, len(val))
		copy(cp, val)
		entries = append(entries, kvPair{key: key, val: cp})
	}
	t.mu.Unlock()

	return &Iterator{entries: entries, idx: -1}
}

// ScanPrefix returns an iterator over every key beginning with prefix.
func (t *Tree) ScanPrefix(prefix []byte) *Iterator {
	return t.Scan(prefix, prefixSuccessor(prefix))
}

// Next advances the iterator. Returns false when exhausted or failed.
func (it *Iterator) Next() bool {
	if it.err != nil {
		return false
	}
	if it.idx+1 >= len(it.entries) {
		return false
	}
	it.idx++
	return true
}

// Key returns the current key. Only valid after a true Next.
func (it *Iterator) Key() []byte {
	return []byte(it.entries[it.idx].key)
}

// Value returns the current value. Only valid after a true Next.
func (it *Iterator) Value() []byte {
	return it.entries[it.idx].val
}

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error {
	return it.err
}

// Len returns the number of entries in the snapshot.
func (it *Iterator) Len() int {
	return len(it.entries)
}

// prefixSuccessor returns the smallest key greater than every key with
// the given prefix, or nil when no such key exists (all-0xff prefix).
func prefixSuccessor(prefix []byte) []byte {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i] != 0xff {
			out := make([]byte, i+1)
			copy(out, prefix[:i+1])
			out[i]++
			return out
		}
	}
	return nil
}
