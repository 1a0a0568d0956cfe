package mergelog

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/metrics"
)

// Common sentinel errors
var (
	ErrStoreClosed     = errors.New("store is closed")
	ErrNoMergeOperator = errors.New("tree has no merge operator")
	ErrCorruptSegment  = errors.New("segment file is corrupt")
	ErrEmptyTreeName   = errors.New("tree name cannot be empty")
)

// MergeOperator combines an operand into the existing value for a key.
// existing is nil when the key has no value yet. The operator must be
// associative; concurrent writers rely on it.
type MergeOperator func(key, existing, operand []byte) []byte

// TreeConfig declares a tree and its optional merge operator.
// Operators are not persisted, so every Open must pass the same configs
// or write-ahead log replay of merge records will fail.
type TreeConfig struct {
	Name  string
	Merge MergeOperator
}

// Options configures a Store
type Options struct {
	// Dir is the data directory. Created if missing.
	Dir string
	// FlushThreshold is the number of bytes written since the last
	// checkpoint that triggers an automatic one. 0 uses
	// DefaultFlushThreshold.
	FlushThreshold int
	// SyncWrites fsyncs the write-ahead log on every append.
	SyncWrites bool
	// Logger defaults to the package default logger.
	Logger logging.Logger
	// Metrics defaults to the global registry.
	Metrics *metrics.Registry
}

// DefaultFlushThreshold is the auto-checkpoint watermark in bytes.
const DefaultFlushThreshold = 64 << 20

// DefaultOptions returns Options for the given directory.
func DefaultOptions(dir string) Options {
	return Options{
		Dir:            dir,
		FlushThreshold: DefaultFlushThreshold,
	}
}

// Store is an ordered key-value log partitioned into named trees.
// Writes go to a shared write-ahead log and an in-memory sorted table
// per tree; Flush checkpoints every tree into a segment file and
// truncates the log. Colliding writes combine through the tree's merge
// operator instead of read-modify-write.
type Store struct {
	opts  Options
	dir   string
	wal   *walWriter
	log   logging.Logger
	stats Stats

	// commitMu serializes checkpoints against writers: writers hold the
	// read side, Flush and Close the write side.
	commitMu sync.RWMutex

	mu    sync.RWMutex // guards trees
	trees map[string]*Tree

	segID   uint64       // newest checkpoint segment, guarded by commitMu
	dirty   atomic.Int64 // bytes written since the last checkpoint
	seqMu   sync.Mutex
	closed  atomic.Bool
	metrics *metrics.Registry
}

// Tree is one ordered keyspace inside a Store.
type Tree struct {
	name  string
	store *Store
	merge MergeOperator

	mu     sync.RWMutex
	data   map[string][]byte
	keys   []string
	sorted bool
	bytes  int // approximate live size
}

// Stats holds store-level counters.
type Stats struct {
	Sets    atomic.Uint64
	Merges  atomic.Uint64
	Gets    atomic.Uint64
	Scans   atomic.Uint64
	Flushes atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Sets    uint64
	Merges  uint64
	Gets    uint64
	Scans   uint64
	Flushes uint64
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Sets:    s.Sets.Load(),
		Merges:  s.Merges.Load(),
		Gets:    s.Gets.Load(),
		Scans:   s.Scans.Load(),
		Flushes: s.Flushes.Load(),
	}
}
