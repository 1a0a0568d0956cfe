package mergelog

import (
	"sort"
)

// Name returns the tree's name.
func (t *Tree) Name() string {
	return t.name
}

// Set stores value under key, replacing any existing value.
func (t *Tree) Set(key, value []byte) error {
	if t.store.closed.Load() {
		return ErrStoreClosed
	}

	t.store.commitMu.RLock()
	if err := t.store.wal.Append(opSet, t.name, key, value); err != nil {
		t.store.commitMu.RUnlock()
		return err
	}
	t.applySet(key, value)
	t.store.commitMu.RUnlock()

	t.store.stats.Sets.Add(1)
	t.store.dirty.Add(int64(len(key) + len(value)))
	t.store.maybeFlush()
	return nil
}

// Merge combines operand into the value stored under key using the
// tree's merge operator. There is no read-modify-write visible to the
// caller; arrival order of concurrent merges does not matter as long as
// the operator is commutative in effect.
func (t *Tree) Merge(key, operand []byte) error {
	if t.store.closed.Load() {
		return ErrStoreClosed
	}
	if t.merge == nil {
		return ErrNoMergeOperator
	}

	t.store.commitMu.RLock()
	if err := t.store.wal.Append(opMerge, t.name, key, operand); err != nil {
		t.store.commitMu.RUnlock()
		return err
	}
	t.applyMerge(key, operand)
	t.store.commitMu.RUnlock()

	t.store.stats.Merges.Add(1)
	t.store.dirty.Add(int64(len(key) + len(operand)))
	t.store.maybeFlush()
	return nil
}

// Get returns a copy of the value stored under key.
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	if t.store.closed.Load() {
		return nil, false, ErrStoreClosed
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	t.store.stats.Gets.Add(1)

	val, ok := t.data[string(key)]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(val))
	copy(out, val)
	return out, true, nil
}

// Len returns the number of live keys.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

// applySet updates the in-memory table. Callers hold no tree lock.
func (t *Tree) applySet(key, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keyStr := string(key)
	if existing, ok := t.data[keyStr]; ok {
		t.bytes -= len(existing)
	} else {
		t.keys = append(t.keys, keyStr)
		t.sorted = false
		t.bytes += len(keyStr)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	t.data[keyStr] = stored
	t.bytes += len(value)
}

// applyMerge combines operand into the stored value under the tree lock.
func (t *Tree) applyMerge(key, operand []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	keyStr := string(key)
	existing, ok := t.data[keyStr]
	if ok {
		t.bytes -= len(existing)
	} else {
		t.keys = append(t.keys, keyStr)
		t.sorted = false
		t.bytes += len(keyStr)
		existing = nil
	}

	merged := t.merge(key, existing, operand)
	t.data[keyStr] = merged
	t.bytes += len(merged)
}

// applyReplay re-applies a write-ahead log record during recovery.
func (t *Tree) applyReplay(op walOp, key, val []byte) error {
	switch op {
	case opSet:
		t.applySet(key, val)
	case opMerge:
		if t.merge == nil {
			return ErrNoMergeOperator
		}
		t.applyMerge(key, val)
	}
	return nil
}

// sortKeys orders the key index if needed. Caller holds the write lock.
func (t *Tree) sortKeys() {
	if !t.sorted {
		sort.Strings(t.keys)
		t.sorted = true
	}
}

// snapshot returns all entries in key order. Values are the live slices;
// callers must copy before handing them out.
func (t *Tree) snapshot() []kvPair {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sortKeys()

	entries := make([]kvPair, 0, len(t.keys))
	for _, key := range t.keys {
		entries = append(entries, kvPair{key: key, val: t.data[key]})
	}
	return entries
}

// liveBytes returns the approximate size of the tree's live data.
func (t *Tree) liveBytes() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.bytes
}
