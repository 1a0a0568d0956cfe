package mergelog

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/imabhichow/duvet/pkg/logging"
)

func newTestWAL(t *testing.T, path string) *walWriter {
	t.Helper()
	w, err := openWAL(path, false, logging.NopLogger{}, nil)
	if err != nil {
		t.Fatalf("failed to open WAL: %v", err)
	}
	return w
}

func TestWALAppendReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w := newTestWAL(t, path)
	w.Append(opSet, "plain", []byte("k1"), []byte("v1"))
	w.Append(opMerge, "events", []byte("k2"), []byte("operand"))
	w.Append(opSet, "plain", []byte("k3"), nil)
	if err := w.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	reopened := newTestWAL(t, path)
	defer reopened.Close()

	var records []walRecord
	n, err := reopened.Replay(func(rec walRecord) error {
		records = append(records, rec)
		return nil
	})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 records, got %d", n)
	}

	if records[0].Seq != 1 || records[0].Op != opSet || records[0].Tree != "plain" {
		t.Errorf("unexpected first record: %+v", records[0])
	}
	if !bytes.Equal(records[0].Key, []byte("k1")) || !bytes.Equal(records[0].Val, []byte("v1")) {
		t.Errorf("first record payload mismatch: %+v", records[0])
	}
	if records[1].Op != opMerge || records[1].Tree != "events" {
		t.Errorf("unexpected second record: %+v", records[1])
	}
	if !bytes.Equal(records[1].Val, []byte("operand")) {
		t.Errorf("second record operand mismatch: %q", records[1].Val)
	}
	if records[2].Seq != 3 || len(records[2].Val) != 0 {
		t.Errorf("unexpected third record: %+v", records[2])
	}
}

func TestWALCorruptTailTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w := newTestWAL(t, path)
	w.Append(opSet, "plain", []byte("k1"), []byte("v1"))
	w.Append(opSet, "plain", []byte("k2"), []byte("v2"))
	w.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	validSize := info.Size()

	// A torn final write leaves a partial frame at the tail.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("open for corruption failed: %v", err)
	}
	f.Write([]byte("garbagegarbage"))
	f.Close()

	reopened := newTestWAL(t, path)
	n, err := reopened.Replay(func(rec walRecord) error { return nil })
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 valid records, got %d", n)
	}

	info, err = os.Stat(path)
	if err != nil {
		t.Fatalf("stat after replay failed: %v", err)
	}
	if info.Size() != validSize {
		t.Errorf("expected tail truncated to %d bytes, got %d", validSize, info.Size())
	}

	// The log must be appendable again after truncation.
	if err := reopened.Append(opSet, "plain", []byte("k3"), []byte("v3")); err != nil {
		t.Fatalf("append after truncation failed: %v", err)
	}
	reopened.Close()

	final := newTestWAL(t, path)
	defer final.Close()
	n, err = final.Replay(func(rec walRecord) error { return nil })
	if err != nil {
		t.Fatalf("final replay failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 records after recovery append, got %d", n)
	}
}

func TestWALCorruptChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w := newTestWAL(t, path)
	w.Append(opSet, "plain", []byte("key"), []byte("value"))
	w.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	// Flip a payload byte; the stored checksum no longer matches.
	data[8+1+4] ^= 0xFF
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	reopened := newTestWAL(t, path)
	defer reopened.Close()
	n, err := reopened.Replay(func(rec walRecord) error { return nil })
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected corrupt record to be discarded, got %d records", n)
	}
}

func TestWALTruncateResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wal.log")

	w := newTestWAL(t, path)
	defer w.Close()

	w.Append(opSet, "plain", []byte("k1"), []byte("v1"))
	w.Append(opSet, "plain", []byte("k2"), []byte("v2"))

	if err := w.Truncate(); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("expected empty log after truncate, got %d bytes", info.Size())
	}

	// Sequence numbering restarts in the fresh log.
	w.Append(opSet, "plain", []byte("k3"), []byte("v3"))

	var seqs []uint64
	if _, err := w.Replay(func(rec walRecord) error {
		seqs = append(seqs, rec.Seq)
		return nil
	}); err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if len(seqs) != 1 || seqs[0] != 1 {
		t.Errorf("expected single record with seq 1, got %v", seqs)
	}
}
