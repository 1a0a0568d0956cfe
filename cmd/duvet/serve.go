package main

import (
	"flag"
	"path/filepath"

	"github.com/imabhichow/duvet/pkg/manifest"
	"github.com/imabhichow/duvet/pkg/server"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	manifestPath := fs.String("manifest", "duvet.yaml", "Manifest file")
	addr := fs.String("addr", "", "Listen address (overrides manifest)")
	fs.Parse(args)

	m, err := manifest.Load(*manifestPath)
	if err != nil {
		return err
	}
	base := filepath.Dir(*manifestPath)

	db, cat, eng, err := openStore(resolved(m, base))
	if err != nil {
		return err
	}
	defer db.Close()

	listen := m.Server.Addr
	if *addr != "" {
		listen = *addr
	}

	srv, err := server.NewServer(cat, eng, server.Config{
		Addr:      listen,
		JWTSecret: m.Server.JWTSecret,
	})
	if err != nil {
		return err
	}
	return srv.Start()
}
