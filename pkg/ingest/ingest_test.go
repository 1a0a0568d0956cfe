package ingest

import (
	"testing"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/mergelog"
	"github.com/imabhichow/duvet/pkg/metrics"
	"github.com/imabhichow/duvet/pkg/regions"
)

func newTestIngestor(t *testing.T) (*Ingestor, *catalog.Catalog, *regions.Engine) {
	t.Helper()

	opts := mergelog.DefaultOptions(t.TempDir())
	opts.Logger = logging.NopLogger{}
	opts.Metrics = metrics.NewRegistry()

	trees := append(regions.TreeConfigs(), catalog.TreeConfigs()...)
	db, err := mergelog.Open(opts, trees...)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cat := catalog.New(db)
	eng := regions.New(db, regions.Config{
		Logger:  logging.NopLogger{},
		Metrics: metrics.NewRegistry(),
		Workers: 2,
	})
	in := New(cat, eng, Config{
		Logger:  logging.NopLogger{},
		Metrics: metrics.NewRegistry(),
	})
	return in, cat, eng
}

// finalizedRegions finalizes the file's default scope and returns its
// partition.
func finalizedRegions(t *testing.T, eng *regions.Engine, file uint32) []regions.Region {
	t.Helper()

	if err := eng.FinishFile(regions.FileID(file), 0); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	out, err := eng.FileRegions(regions.FileID(file), 0)
	if err != nil {
		t.Fatalf("FileRegions failed: %v", err)
	}
	return out
}
