package mergelog

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/metrics"
)

// sysTree holds store-internal state such as the sequence counter. The
// leading '!' keeps it clear of user tree names.
const sysTree = "!sys"

var seqKey = []byte("seq")

// Open opens or creates a store in opts.Dir. Tree configs declare merge
// operators up front; write-ahead log replay needs them before the
// first record is applied.
func Open(opts Options, trees ...TreeConfig) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("store directory cannot be empty")
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = DefaultFlushThreshold
	}
	if opts.Logger == nil {
		opts.Logger = logging.DefaultLogger().With(logging.Component("mergelog"))
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.DefaultRegistry()
	}

	segDir := filepath.Join(opts.Dir, "segments")
	if err := os.MkdirAll(segDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &Store{
		opts:    opts,
		dir:     opts.Dir,
		log:     opts.Logger,
		metrics: opts.Metrics,
		trees:   make(map[string]*Tree),
	}

	for _, cfg := range trees {
		if cfg.Name == "" {
			return nil, ErrEmptyTreeName
		}
		s.trees[cfg.Name] = s.newTree(cfg.Name, cfg.Merge)
	}

	timer := logging.StartTimer(s.log, "store opened", logging.Path(opts.Dir))

	segID, err := loadNewestSegment(segDir, func(tree string, key, val []byte) error {
		s.treeOrCreate(tree).applySet(key, val)
		return nil
	}, s.log)
	if err != nil {
		return nil, fmt.Errorf("failed to load segment: %w", err)
	}
	s.segID = segID

	wal, err := openWAL(filepath.Join(opts.Dir, "wal.log"), opts.SyncWrites, s.log, opts.Metrics)
	if err != nil {
		return nil, err
	}
	s.wal = wal

	recovered, err := wal.Replay(func(rec walRecord) error {
		return s.treeOrCreate(rec.Tree).applyReplay(rec.Op, rec.Key, rec.Val)
	})
	if err != nil {
		wal.Close()
		return nil, fmt.Errorf("failed to replay WAL: %w", err)
	}

	timer.End()
	if recovered > 0 {
		s.log.Info("recovered WAL records", logging.Count(recovered))
	}

	return s, nil
}

func (s *Store) newTree(name string, merge MergeOperator) *Tree {
	return &Tree{
		name:  name,
		store: s,
		merge: merge,
		data:  make(map[string][]byte),
		keys:  make([]string, 0),
	}
}

// Tree returns the named tree, creating it without a merge operator if
// it was not declared at Open.
func (s *Store) Tree(name string) *Tree {
	return s.treeOrCreate(name)
}

func (s *Store) treeOrCreate(name string) *Tree {
	s.mu.RLock()
	t, ok := s.trees[name]
	s.mu.RUnlock()
	if ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.trees[name]; ok {
		return t
	}
	t = s.newTree(name, nil)
	s.trees[name] = t
	return t
}

// NextSequence allocates the next value of the store's monotonic
// counter. The counter survives restarts.
func (s *Store) NextSequence() (uint64, error) {
	if s.closed.Load() {
		return 0, ErrStoreClosed
	}

	s.seqMu.Lock()
	defer s.seqMu.Unlock()

	t := s.treeOrCreate(sysTree)

	var current uint64
	val, ok, err := t.Get(seqKey)
	if err != nil {
		return 0, err
	}
	if ok && len(val) == 8 {
		current = binary.BigEndian.Uint64(val)
	}

	next := current + 1
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next)
	if err := t.Set(seqKey, buf); err != nil {
		return 0, err
	}
	return next, nil
}

// LiveBytes returns the approximate live size across trees.
func (s *Store) LiveBytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := 0
	for _, t := range s.trees {
		total += t.liveBytes()
	}
	return total
}

// maybeFlush checkpoints when enough has been written since the last
// one. Bounds write-ahead log growth and with it recovery time.
func (s *Store) maybeFlush() {
	if s.dirty.Load() < int64(s.opts.FlushThreshold) {
		return
	}
	if err := s.Flush(); err != nil && err != ErrStoreClosed {
		s.log.Error("automatic checkpoint failed", logging.Error(err))
	}
}

// Flush checkpoints every tree into a segment file and truncates the
// write-ahead log. Safe to call at any time.
func (s *Store) Flush() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	return s.flushLocked()
}

// flushLocked does the checkpoint. Caller holds commitMu exclusively.
func (s *Store) flushLocked() error {
	start := time.Now()

	s.mu.RLock()
	names := make([]string, 0, len(s.trees))
	for name := range s.trees {
		names = append(names, name)
	}
	sort.Strings(names)

	snaps := make([]treeSnapshot, 0, len(names))
	for _, name := range names {
		t := s.trees[name]
		snaps = append(snaps, treeSnapshot{name: name, entries: t.snapshot()})
	}
	s.mu.RUnlock()

	segDir := filepath.Join(s.dir, "segments")
	nextID := s.segID + 1
	if _, err := writeSegment(segDir, nextID, snaps); err != nil {
		return fmt.Errorf("failed to write segment: %w", err)
	}
	s.segID = nextID

	if err := s.wal.Truncate(); err != nil {
		return fmt.Errorf("failed to truncate WAL after checkpoint: %w", err)
	}

	removeSegmentsBefore(segDir, nextID, s.log)

	s.dirty.Store(0)
	s.stats.Flushes.Add(1)
	s.metrics.StoreFlushesTotal.Inc()
	s.metrics.StoreDiskUsageBytes.Set(float64(diskUsage(s.dir)))
	for _, snap := range snaps {
		s.metrics.StoreKeysTotal.WithLabelValues(snap.name).Set(float64(len(snap.entries)))
	}

	s.log.Debug("checkpoint written",
		logging.Uint64("segment", nextID),
		logging.Latency(time.Since(start)))
	return nil
}

// Close checkpoints and closes the store. Further operations return
// ErrStoreClosed.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	flushErr := s.flushLocked()
	closeErr := s.wal.Close()

	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Dir returns the store's data directory.
func (s *Store) Dir() string {
	return s.dir
}

// Stats returns a snapshot of the store's counters.
func (s *Store) Stats() StatsSnapshot {
	return s.stats.Snapshot()
}
