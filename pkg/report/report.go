package report

import (
	"time"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/regions"
)

// Builder assembles the rendering model from the engine's finalized
// partitions and the catalog's registries.
type Builder struct {
	cat *catalog.Catalog
	eng *regions.Engine
	log logging.Logger
}

// Config carries the builder's dependencies.
type Config struct {
	Logger logging.Logger
}

// New creates a report builder.
func New(cat *catalog.Catalog, eng *regions.Engine, cfg Config) *Builder {
	log := cfg.Logger
	if log == nil {
		log = logging.DefaultLogger().With(logging.Component("report"))
	}
	return &Builder{cat: cat, eng: eng, log: log}
}

// Build walks every finalized scope and decorates each region's labels
// with their attributes. Scopes whose file is not in the catalog (marks
// streamed for unregistered files) are reported with an empty path.
func (b *Builder) Build(project string) (*Report, error) {
	started := time.Now()

	scopes, err := b.eng.Scopes()
	if err != nil {
		return nil, err
	}

	attrCache := make(map[regions.Label]map[string]string)
	rep := &Report{
		Project:     project,
		GeneratedAt: time.Now().UTC(),
	}

	for _, scope := range scopes {
		regs, err := b.eng.FileRegions(scope.File, scope.Run)
		if err != nil {
			return nil, err
		}

		fr := FileReport{
			ID:      uint32(scope.File),
			Run:     uint32(scope.Run),
			Regions: make([]RegionReport, 0, len(regs)),
		}
		if path, err := b.cat.Files.Path(uint32(scope.File)); err == nil {
			fr.Path = path
		}

		for _, r := range regs {
			rr := RegionReport{
				Start:  r.Span.Start,
				End:    r.Span.End,
				Labels: make([]LabelReport, 0, len(r.Labels)),
			}
			for _, l := range r.Labels {
				attrs, ok := attrCache[l]
				if !ok {
					attrs, err = b.cat.Entities.Attrs(uint32(l))
					if err != nil {
						return nil, err
					}
					attrCache[l] = attrs
				}
				rr.Labels = append(rr.Labels, LabelReport{ID: uint32(l), Attrs: attrs})
			}
			fr.Regions = append(fr.Regions, rr)
		}
		rep.Files = append(rep.Files, fr)
	}

	b.log.Info("report model built",
		logging.Count(len(rep.Files)),
		logging.Int("labels", len(attrCache)),
		logging.Latency(time.Since(started)))
	return rep, nil
}

// Contents returns a file's registered contents for the HTML renderer.
func (b *Builder) Contents(file uint32) ([]byte, error) {
	return b.cat.Files.Contents(file)
}

// Totals folds the report into renderer-independent summary numbers.
func (r *Report) Totals() Totals {
	var t Totals
	labels := make(map[uint32]struct{})
	t.Files = len(r.Files)
	for _, f := range r.Files {
		t.Regions += len(f.Regions)
		for _, reg := range f.Regions {
			t.CoveredBytes += uint64(reg.End - reg.Start)
			for _, l := range reg.Labels {
				labels[l.ID] = struct{}{}
			}
		}
	}
	t.Labels = len(labels)
	return t
}
