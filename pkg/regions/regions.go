// Package regions consolidates byte-range marks into canonical
// partitions of maximal, label-set-tagged sub-ranges.
//
// Producers insert (range, label) marks into a scope concurrently and
// in any order; the write path appends boundary records through the
// store's merge operator and never reads. Once a scope's marks are
// complete, finalizing it sweeps the boundary records into regions and
// publishes them to a reference index answering "where is label L
// active, and with whom."
package regions

import (
	"runtime"

	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/mergelog"
	"github.com/imabhichow/duvet/pkg/metrics"
)

// Tree names within the backing store.
const (
	// TreeMarks holds raw boundary records keyed (file, run, offset).
	TreeMarks = "marks"
	// TreeRegions holds consolidated regions keyed (file, run, start).
	TreeRegions = "regions"
	// TreeRefs is the reference index keyed (label, file, run, start).
	TreeRefs = "refs"
	// TreeScopes holds one state row per finalized scope.
	TreeScopes = "scopes"
)

// TreeConfigs declares the trees the engine needs. Pass these to
// mergelog.Open; the marks tree's merge operator must be registered
// before the store replays its write-ahead log.
func TreeConfigs() []mergelog.TreeConfig {
	return []mergelog.TreeConfig{
		{Name: TreeMarks, Merge: concatRecords},
		{Name: TreeRegions},
		{Name: TreeRefs},
		{Name: TreeScopes},
	}
}

// concatRecords appends boundary records. Concatenation is associative
// and effect-commutative, which is what makes concurrent inserts to one
// key safe without coordination.
func concatRecords(key, existing, operand []byte) []byte {
	out := make([]byte, 0, len(existing)+len(operand))
	out = append(out, existing...)
	out = append(out, operand...)
	return out
}

// Config tunes an Engine. The zero value is usable.
type Config struct {
	// Logger defaults to the package default logger.
	Logger logging.Logger
	// Metrics defaults to the global registry.
	Metrics *metrics.Registry
	// Workers bounds FinishAll parallelism. Defaults to GOMAXPROCS.
	Workers int
}

// Engine is the region consolidation engine over one backing store.
type Engine struct {
	marks   *mergelog.Tree
	regions *mergelog.Tree
	refs    *mergelog.Tree
	scopes  *mergelog.Tree
	log     logging.Logger
	metrics *metrics.Registry
	workers int
}

// New creates an engine over db. The db must have been opened with
// TreeConfigs.
func New(db *mergelog.Store, cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger().With(logging.Component("regions"))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultRegistry()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}

	return &Engine{
		marks:   db.Tree(TreeMarks),
		regions: db.Tree(TreeRegions),
		refs:    db.Tree(TreeRefs),
		scopes:  db.Tree(TreeScopes),
		log:     cfg.Logger,
		metrics: cfg.Metrics,
		workers: cfg.Workers,
	}
}
