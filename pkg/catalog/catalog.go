// Package catalog registers the identities marks refer to: source
// files (with line/offset translation and content digests), label
// entities with attributes, and producer runs.
package catalog

import (
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/mergelog"
)

// Tree names within the backing store.
const (
	// TreeFiles holds path/id/contents/digest rows.
	TreeFiles = "files"
	// TreeLines holds per-file line start offsets.
	TreeLines = "lines"
	// TreeAttrs holds entity attribute rows, keyed both ways.
	TreeAttrs = "attrs"
	// TreeRuns holds producer run registrations.
	TreeRuns = "runs"
)

// TreeConfigs declares the trees the catalog needs. Pass these to
// mergelog.Open alongside the engine's.
func TreeConfigs() []mergelog.TreeConfig {
	return []mergelog.TreeConfig{
		{Name: TreeFiles},
		{Name: TreeLines},
		{Name: TreeAttrs},
		{Name: TreeRuns},
	}
}

// Catalog bundles the registries over one backing store.
type Catalog struct {
	Files    *Files
	Entities *Entities
	Runs     *Runs
}

// New creates a catalog over db. The db must have been opened with
// TreeConfigs.
func New(db *mergelog.Store) *Catalog {
	log := logging.DefaultLogger().With(logging.Component("catalog"))
	return &Catalog{
		Files: &Files{
			store:  db,
			files:  db.Tree(TreeFiles),
			lines:  db.Tree(TreeLines),
			log:    log,
			starts: make(map[uint32][]uint32),
		},
		Entities: &Entities{store: db, attrs: db.Tree(TreeAttrs)},
		Runs:     &Runs{store: db, runs: db.Tree(TreeRuns)},
	}
}
