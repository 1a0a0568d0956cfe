package main

import (
	"flag"
	"fmt"
	"path/filepath"

	"github.com/imabhichow/duvet/pkg/ingest"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/manifest"
)

func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	manifestPath := fs.String("manifest", "duvet.yaml", "Manifest file")
	addr := fs.String("addr", "", "Bus listen address (overrides manifest)")
	fs.Parse(args)

	m, err := manifest.Load(*manifestPath)
	if err != nil {
		return err
	}
	base := filepath.Dir(*manifestPath)

	listen := m.Ingest.BusAddr
	if *addr != "" {
		listen = *addr
	}
	if listen == "" {
		return fmt.Errorf("no bus address configured")
	}

	db, cat, eng, err := openStore(resolved(m, base))
	if err != nil {
		return err
	}
	defer db.Close()

	l, err := ingest.NewListener(listen)
	if err != nil {
		return err
	}
	defer l.Close()

	logging.Info("mark bus listening", logging.String("addr", listen))
	in := ingest.New(cat, eng, ingest.Config{})
	return in.NewCollector().Run(l)
}
