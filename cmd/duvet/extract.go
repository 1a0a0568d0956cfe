package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/imabhichow/duvet/pkg/ingest"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/manifest"
	"github.com/imabhichow/duvet/pkg/verify"
)

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	manifestPath := fs.String("manifest", "duvet.yaml", "Manifest file")
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

	log := logging.DefaultLogger().With(logging.Component("extract"))
	in := ingest.New(cat, eng, ingest.Config{})

	// Scan source sets.
	for _, set := range m.Sources {
		matches, err := filepath.Glob(filepath.Join(base, set.Pattern))
		if err != nil {
			return fmt.Errorf("bad pattern %q: %w", set.Pattern, err)
		}
		cfg := ingest.CitationConfig{
			MetaPrefix:    set.MetaPrefix,
			ContentPrefix: set.ContentPrefix,
			DefaultType:   set.DefaultType,
		}
		for _, match := range matches {
			rel, err := filepath.Rel(base, match)
			if err != nil {
				rel = match
			}
			contents, err := os.ReadFile(match)
			if err != nil {
				return err
			}
			file, err := cat.Files.LoadBytes(filepath.ToSlash(rel), contents)
			if err != nil {
				return err
			}

			if _, err := in.Citations(file, cfg); err != nil {
				return fmt.Errorf("citations in %s: %w", rel, err)
			}
			if set.Syntactic && strings.HasSuffix(match, ".go") {
				if _, err := in.Syntactic(file); err != nil {
					return fmt.Errorf("syntax spans in %s: %w", rel, err)
				}
			}
		}
		log.Info("source set scanned", logging.String("pattern", set.Pattern), logging.Count(len(matches)))
	}

	// Import coverage.
	if len(m.Coverage.Profiles) > 0 || len(m.Coverage.LLVMJSON) > 0 {
		resolve, err := in.SuffixResolver()
		if err != nil {
			return err
		}
		for _, p := range m.Coverage.Profiles {
			if _, err := in.CoverProfile(filepath.Join(base, p), resolve); err != nil {
				return err
			}
		}
		for _, p := range m.Coverage.LLVMJSON {
			if _, err := in.LLVMCov(filepath.Join(base, p), resolve); err != nil {
				return err
			}
		}
	}

	// Consolidate everything.
	if err := eng.FinishAll(); err != nil {
		return err
	}

	// Verify rules.
	rules, err := m.ParsedRules()
	if err != nil {
		return err
	}
	failed := 0
	for _, rule := range rules {
		summary := verify.NewSummary()
		if err := verify.Check(cat, eng, rule, summary); err != nil {
			return err
		}
		status := "ok"
		if !summary.Satisfied() {
			status = "FAILED"
			failed++
		}
		fmt.Printf("%-8s %s: %s (%d subjects, %d/%d regions failed)\n",
			status, rule.Subject, rule.Expr, len(summary.Subjects),
			summary.RegionsFailed, summary.RegionsChecked)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d rules failed", failed, len(rules))
	}
	return nil
}

// resolved returns a copy of the manifest with the store directory
// anchored at the manifest's directory.
func resolved(m *manifest.Manifest, base string) *manifest.Manifest {
	out := *m
	if !filepath.IsAbs(out.Store.Dir) {
		out.Store.Dir = filepath.Join(base, out.Store.Dir)
	}
	return &out
}
