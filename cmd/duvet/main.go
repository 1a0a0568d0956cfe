// duvet consolidates (byte-range, label) marks over source files into
// canonical region partitions, verifies rule expressions against them,
// and renders reports.
//
// Usage:
//
//	duvet extract -manifest duvet.yaml
//	duvet report  -manifest duvet.yaml [-upload] [-archive]
//	duvet serve   -manifest duvet.yaml
//	duvet ingest  -manifest duvet.yaml
package main

import (
	"fmt"
	"os"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/manifest"
	"github.com/imabhichow/duvet/pkg/mergelog"
	"github.com/imabhichow/duvet/pkg/metrics"
	"github.com/imabhichow/duvet/pkg/regions"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "extract":
		err = runExtract(os.Args[2:])
	case "report":
		err = runReport(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "ingest":
		err = runIngest(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "duvet: unknown command %q\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		logging.ErrorLog("command failed", logging.Error(err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: duvet <command> [flags]

commands:
  extract   scan sources and coverage inputs, consolidate, verify rules
  report    render json/html/text reports, optionally upload or archive
  serve     run the query API
  ingest    run the mark bus collector`)
}

// openStore opens the backing store with every tree the engine and
// catalog need.
func openStore(m *manifest.Manifest) (*mergelog.Store, *catalog.Catalog, *regions.Engine, error) {
	opts := mergelog.DefaultOptions(m.Store.Dir)
	opts.SyncWrites = m.Store.SyncWrites

	trees := append(regions.TreeConfigs(), catalog.TreeConfigs()...)
	db, err := mergelog.Open(opts, trees...)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open store at %s: %w", m.Store.Dir, err)
	}

	cat := catalog.New(db)
	eng := regions.New(db, regions.Config{
		Logger:  logging.DefaultLogger().With(logging.Component("regions")),
		Metrics: metrics.DefaultRegistry(),
	})
	return db, cat, eng, nil
}
