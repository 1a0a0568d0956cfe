package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/imabhichow/duvet/pkg/archive"
	"github.com/imabhichow/duvet/pkg/export"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/manifest"
	"github.com/imabhichow/duvet/pkg/report"
)

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	manifestPath := fs.String("manifest", "duvet.yaml", "Manifest file")
	upload := fs.Bool("upload", false, "Upload rendered artifacts to S3")
	archiveIt := fs.Bool("archive", false, "Archive the snapshot to PostgreSQL")
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

	builder := report.New(cat, eng, report.Config{})
	rep, err := builder.Build(m.Project)
	if err != nil {
		return err
	}

	if m.Report.JSON != "" {
		path := filepath.Join(base, m.Report.JSON)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := rep.WriteJSON(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	if m.Report.HTML != "" {
		if err := builder.WriteHTML(rep, filepath.Join(base, m.Report.HTML)); err != nil {
			return err
		}
	}
	if m.Report.Text != "" {
		f, err := os.Create(filepath.Join(base, m.Report.Text))
		if err != nil {
			return err
		}
		if err := rep.WriteText(f); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	} else {
		if err := rep.WriteText(os.Stdout); err != nil {
			return err
		}
	}

	ctx := context.Background()

	if *upload {
		if m.Export.Bucket == "" {
			return fmt.Errorf("upload requested but no export bucket configured")
		}
		up, err := export.New(ctx, export.Config{
			Bucket: m.Export.Bucket,
			Prefix: m.Export.Prefix,
			Region: m.Export.Region,
		})
		if err != nil {
			return err
		}
		if m.Report.JSON != "" {
			f, err := os.Open(filepath.Join(base, m.Report.JSON))
			if err != nil {
				return err
			}
			err = up.Put(ctx, filepath.Base(m.Report.JSON), "application/json", f)
			f.Close()
			if err != nil {
				return err
			}
		}
		if m.Report.HTML != "" {
			n, err := up.PutDir(ctx, filepath.Join(base, m.Report.HTML))
			if err != nil {
				return err
			}
			logging.Info("report uploaded", logging.Count(n))
		}
	}

	if *archiveIt {
		if m.Archive.DSN == "" {
			return fmt.Errorf("archive requested but no archive DSN configured")
		}
		store, err := archive.NewPGStore(ctx, m.Archive.DSN)
		if err != nil {
			return err
		}
		defer store.Close()

		id, err := store.Archive(ctx, rep)
		if err != nil {
			return err
		}
		logging.Info("snapshot archived", logging.Int64("snapshot", id))
	}
	return nil
}
