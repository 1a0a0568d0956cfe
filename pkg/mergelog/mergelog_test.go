package mergelog

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/metrics"
)

func concatOp(key, existing, operand []byte) []byte {
	out := make([]byte, 0, len(existing)+len(operand))
	out = append(out, existing...)
	out = append(out, operand...)
	return out
}

func testConfigs() []TreeConfig {
	return []TreeConfig{
		{Name: "events", Merge: concatOp},
		{Name: "plain"},
	}
}

func newTestStore(t *testing.T, dir string) *Store {
	t.Helper()

	opts := DefaultOptions(dir)
	opts.Logger = logging.NopLogger{}
	opts.Metrics = metrics.NewRegistry()

	store, err := Open(opts, testConfigs()...)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return store
}

func TestSetGet(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("plain")
	if err := tree.Set([]byte("alpha"), []byte("one")); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	val, found, err := tree.Get([]byte("alpha"))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key to be found")
	}
	if !bytes.Equal(val, []byte("one")) {
		t.Errorf("expected value 'one', got %q", val)
	}

	if _, found, _ := tree.Get([]byte("missing")); found {
		t.Error("expected missing key to not be found")
	}
}

func TestSetOverwrites(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("plain")
	tree.Set([]byte("k"), []byte("first"))
	tree.Set([]byte("k"), []byte("second"))

	val, _, _ := tree.Get([]byte("k"))
	if !bytes.Equal(val, []byte("second")) {
		t.Errorf("expected overwrite to win, got %q", val)
	}
	if tree.Len() != 1 {
		t.Errorf("expected 1 key, got %d", tree.Len())
	}
}

func TestMergeConcatenates(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("events")
	for _, part := range []string{"ab", "cd", "ef"} {
		if err := tree.Merge([]byte("k"), []byte(part)); err != nil {
			t.Fatalf("merge failed: %v", err)
		}
	}

	val, found, err := tree.Get([]byte("k"))
	if err != nil || !found {
		t.Fatalf("get after merge: found=%v err=%v", found, err)
	}
	if !bytes.Equal(val, []byte("abcdef")) {
		t.Errorf("expected 'abcdef', got %q", val)
	}
}

func TestMergeWithoutOperator(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	err := store.Tree("plain").Merge([]byte("k"), []byte("v"))
	if err != ErrNoMergeOperator {
		t.Errorf("expected ErrNoMergeOperator, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("plain")
	tree.Set([]byte("k"), []byte("value"))

	val, _, _ := tree.Get([]byte("k"))
	val[0] = 'X'

	again, _, _ := tree.Get([]byte("k"))
	if !bytes.Equal(again, []byte("value")) {
		t.Error("mutating a returned value leaked into the store")
	}
}

func TestScanOrdered(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("plain")
	for _, k := range []string{"delta", "alpha", "charlie", "bravo"} {
		tree.Set([]byte(k), []byte("v-"+k))
	}

	it := tree.Scan(nil, nil)
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	if it.Err() != nil {
		t.Fatalf("scan failed: %v", it.Err())
	}

	want := []string{"alpha", "bravo", "charlie", "delta"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestScanRange(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("plain")
	for _, k := range []string{"a", "b", "c", "d"} {
		tree.Set([]byte(k), []byte(k))
	}

	it := tree.Scan([]byte("b"), []byte("d"))
	var got []string
	for it.Next() {
		got = append(got, string(it.Key()))
	}
	if len(got) != 2 || got[0] != "b" || got[1] != "c" {
		t.Errorf("expected [b c], got %v", got)
	}
}

func TestScanPrefix(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("plain")
	for _, k := range []string{"file:1:a", "file:1:b", "file:2:a", "other"} {
		tree.Set([]byte(k), []byte("v"))
	}

	it := tree.ScanPrefix([]byte("file:1:"))
	count := 0
	for it.Next() {
		if !bytes.HasPrefix(it.Key(), []byte("file:1:")) {
			t.Errorf("unexpected key %q in prefix scan", it.Key())
		}
		count++
	}
	if count != 2 {
		t.Errorf("expected 2 keys, got %d", count)
	}
}

func TestScanSnapshotUnaffectedByWrites(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("plain")
	tree.Set([]byte("a"), []byte("1"))
	tree.Set([]byte("b"), []byte("2"))

	it := tree.Scan(nil, nil)
	tree.Set([]byte("c"), []byte("3"))

	if it.Len() != 2 {
		t.Errorf("expected snapshot of 2 entries, got %d", it.Len())
	}
}

func TestRecoveryFromWAL(t *testing.T) {
	dir := t.TempDir()

	// Write without closing to simulate a crash before any checkpoint.
	store := newTestStore(t, dir)
	store.Tree("plain").Set([]byte("k1"), []byte("v1"))
	store.Tree("events").Merge([]byte("k2"), []byte("aa"))
	store.Tree("events").Merge([]byte("k2"), []byte("bb"))

	reopened := newTestStore(t, dir)
	defer reopened.Close()

	val, found, _ := reopened.Tree("plain").Get([]byte("k1"))
	if !found || !bytes.Equal(val, []byte("v1")) {
		t.Errorf("set not recovered: found=%v val=%q", found, val)
	}

	val, found, _ = reopened.Tree("events").Get([]byte("k2"))
	if !found || !bytes.Equal(val, []byte("aabb")) {
		t.Errorf("merges not recovered: found=%v val=%q", found, val)
	}
}

func TestCheckpointAndReopen(t *testing.T) {
	dir := t.TempDir()

	store := newTestStore(t, dir)
	store.Tree("plain").Set([]byte("before"), []byte("1"))
	if err := store.Flush(); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	store.Tree("plain").Set([]byte("after"), []byte("2"))
	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened := newTestStore(t, dir)
	defer reopened.Close()

	for _, k := range []string{"before", "after"} {
		if _, found, _ := reopened.Tree("plain").Get([]byte(k)); !found {
			t.Errorf("key %q lost across checkpoint and reopen", k)
		}
	}
}

func TestOperationsAfterClose(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	tree := store.Tree("plain")

	if err := store.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	if err := tree.Set([]byte("k"), []byte("v")); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed from Set, got %v", err)
	}
	if _, _, err := tree.Get([]byte("k")); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed from Get, got %v", err)
	}
	if err := store.Flush(); err != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed from Flush, got %v", err)
	}
	if it := tree.Scan(nil, nil); it.Err() != ErrStoreClosed {
		t.Errorf("expected ErrStoreClosed from Scan, got %v", it.Err())
	}
}

func TestNextSequence(t *testing.T) {
	dir := t.TempDir()

	store := newTestStore(t, dir)
	var last uint64
	for i := 0; i < 10; i++ {
		seq, err := store.NextSequence()
		if err != nil {
			t.Fatalf("next sequence failed: %v", err)
		}
		if seq <= last {
			t.Fatalf("sequence not monotonic: %d after %d", seq, last)
		}
		last = seq
	}
	store.Close()

	reopened := newTestStore(t, dir)
	defer reopened.Close()

	seq, err := reopened.NextSequence()
	if err != nil {
		t.Fatalf("next sequence after reopen failed: %v", err)
	}
	if seq <= last {
		t.Errorf("sequence regressed across reopen: %d after %d", seq, last)
	}
}

func TestConcurrentMerges(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("events")
	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				if err := tree.Merge([]byte("shared"), []byte{0xAB}); err != nil {
					t.Errorf("merge failed: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	val, found, err := tree.Get([]byte("shared"))
	if err != nil || !found {
		t.Fatalf("get failed: found=%v err=%v", found, err)
	}
	if len(val) != goroutines*perGoroutine {
		t.Errorf("expected %d merged bytes, got %d", goroutines*perGoroutine, len(val))
	}
}

func TestConcurrentWritersDistinctKeys(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("plain")
	const writers = 4
	const keys = 100

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < keys; i++ {
				key := fmt.Sprintf("w%d-k%03d", w, i)
				if err := tree.Set([]byte(key), []byte("v")); err != nil {
					t.Errorf("set failed: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if tree.Len() != writers*keys {
		t.Errorf("expected %d keys, got %d", writers*keys, tree.Len())
	}
}

func TestAutoCheckpoint(t *testing.T) {
	opts := DefaultOptions(t.TempDir())
	opts.FlushThreshold = 64
	opts.Logger = logging.NopLogger{}
	opts.Metrics = metrics.NewRegistry()

	store, err := Open(opts, testConfigs()...)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	tree := store.Tree("plain")
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key-%02d", i)
		tree.Set([]byte(key), bytes.Repeat([]byte("x"), 32))
	}

	if flushes := store.Stats().Flushes; flushes == 0 {
		t.Error("expected automatic checkpoints, saw none")
	}
}

func TestStatsCounts(t *testing.T) {
	store := newTestStore(t, t.TempDir())
	defer store.Close()

	tree := store.Tree("events")
	tree.Merge([]byte("k"), []byte("a"))
	tree.Get([]byte("k"))
	tree.Scan(nil, nil)
	store.Tree("plain").Set([]byte("p"), []byte("q"))

	stats := store.Stats()
	if stats.Merges != 1 || stats.Gets != 1 || stats.Scans != 1 || stats.Sets != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
