// Package ingest produces marks: coverage import, Go AST span
// extraction, and citation scanning all translate their findings into
// (range, label) inserts against the region engine, plus a network bus
// for marks produced on other machines.
package ingest

import (
	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/metrics"
	"github.com/imabhichow/duvet/pkg/regions"
)

// Ingestor runs mark producers against one catalog and engine.
type Ingestor struct {
	cat     *catalog.Catalog
	eng     *regions.Engine
	log     logging.Logger
	metrics *metrics.Registry
}

// Config tunes an Ingestor. The zero value is usable.
type Config struct {
	Logger  logging.Logger
	Metrics *metrics.Registry
}

// New creates an ingestor.
func New(cat *catalog.Catalog, eng *regions.Engine, cfg Config) *Ingestor {
	if cfg.Logger == nil {
		cfg.Logger = logging.DefaultLogger().With(logging.Component("ingest"))
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultRegistry()
	}
	return &Ingestor{cat: cat, eng: eng, log: cfg.Logger, metrics: cfg.Metrics}
}

// newEntity allocates a label and sets its attributes in one step.
func (in *Ingestor) newEntity(attrs map[string]string) (regions.Label, error) {
	id, err := in.cat.Entities.Create()
	if err != nil {
		return 0, err
	}
	for name, value := range attrs {
		if err := in.cat.Entities.SetAttr(id, name, value); err != nil {
			return 0, err
		}
	}
	return regions.Label(id), nil
}
