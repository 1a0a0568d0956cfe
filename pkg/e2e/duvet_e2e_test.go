package e2e

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/ingest"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/manifest"
	"github.com/imabhichow/duvet/pkg/mergelog"
	"github.com/imabhichow/duvet/pkg/metrics"
	"github.com/imabhichow/duvet/pkg/regions"
	"github.com/imabhichow/duvet/pkg/report"
	"github.com/imabhichow/duvet/pkg/server"
	"github.com/imabhichow/duvet/pkg/verify"
)

// TestFullPipeline walks the whole system the way the CLI does: load a
// manifest, scan sources for citations and function spans, import a
// coverage profile, consolidate, verify rules, render reports, and
// query the HTTP API.
func TestFullPipeline(t *testing.T) {
	projectDir := t.TempDir()

	// A source file with a cited function. The citation block sits
	// inside the function body, so citation, function span, and
	// coverage all overlap.
	mainGo := strings.Join([]string{
		"package demo",
		"",
		"func Reset() {",
		"\t//= rfc9000#section-4.1",
		"\t//# The stream MUST be reset.",
		"\tdrain()",
		"}",
		"",
		"func drain() {}",
		"",
	}, "\n")
	require.NoError(t, os.MkdirAll(filepath.Join(projectDir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "src", "demo.go"), []byte(mainGo), 0o644))

	// Coverage says lines 3-7 (the Reset body) ran.
	profile := strings.Join([]string{
		"mode: count",
		"github.com/acme/demo/src/demo.go:3.1,7.2 3 11",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "cover.out"), []byte(profile), 0o644))

	manifestYAML := `
project: demo
store:
  dir: .duvet
sources:
  - pattern: "src/*.go"
    syntactic: true
coverage:
  profiles:
    - cover.out
rules:
  - subject: citation
    expr: all(test, function)
`
	manifestPath := filepath.Join(projectDir, "duvet.yaml")
	require.NoError(t, os.WriteFile(manifestPath, []byte(manifestYAML), 0o644))

	t.Log("Step 1: Loading the manifest...")
	m, err := manifest.Load(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, "demo", m.Project)
	assert.Equal(t, "//=", m.Sources[0].MetaPrefix)

	t.Log("Step 2: Opening the store...")
	opts := mergelog.DefaultOptions(filepath.Join(projectDir, m.Store.Dir))
	opts.Logger = logging.NopLogger{}
	opts.Metrics = metrics.NewRegistry()
	db, err := mergelog.Open(opts, append(regions.TreeConfigs(), catalog.TreeConfigs()...)...)
	require.NoError(t, err)
	defer db.Close()

	cat := catalog.New(db)
	eng := regions.New(db, regions.Config{
		Logger:  logging.NopLogger{},
		Metrics: metrics.NewRegistry(),
		Workers: 2,
	})
	in := ingest.New(cat, eng, ingest.Config{
		Logger:  logging.NopLogger{},
		Metrics: metrics.NewRegistry(),
	})

	t.Log("Step 3: Scanning sources...")
	set := m.Sources[0]
	matches, err := filepath.Glob(filepath.Join(projectDir, set.Pattern))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	contents, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	rel, err := filepath.Rel(projectDir, matches[0])
	require.NoError(t, err)
	file, err := cat.Files.LoadBytes(filepath.ToSlash(rel), contents)
	require.NoError(t, err)

	citations, err := in.Citations(file, ingest.CitationConfig{
		MetaPrefix:    set.MetaPrefix,
		ContentPrefix: set.ContentPrefix,
		DefaultType:   set.DefaultType,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, citations, "one citation block")

	spans, err := in.Syntactic(file)
	require.NoError(t, err)
	assert.Equal(t, 2, spans, "Reset and drain")

	t.Log("Step 4: Importing coverage...")
	resolve, err := in.SuffixResolver()
	require.NoError(t, err)
	covered, err := in.CoverProfile(filepath.Join(projectDir, "cover.out"), resolve)
	require.NoError(t, err)
	assert.Equal(t, 1, covered)

	t.Log("Step 5: Consolidating...")
	require.NoError(t, eng.FinishAll())

	finalized, count, err := eng.Finalized(regions.FileID(file), 0)
	require.NoError(t, err)
	require.True(t, finalized)
	assert.Greater(t, count, 0)

	t.Log("Step 6: Verifying rules...")
	rules, err := m.ParsedRules()
	require.NoError(t, err)
	require.Len(t, rules, 1)

	summary := verify.NewSummary()
	require.NoError(t, verify.Check(cat, eng, rules[0], summary))
	assert.True(t, summary.Satisfied(),
		"the citation sits inside a covered function, failures: %v", summary.Failures)
	assert.Len(t, summary.Subjects, 1)

	t.Log("Step 7: Rendering reports...")
	builder := report.New(cat, eng, report.Config{Logger: logging.NopLogger{}})
	rep, err := builder.Build(m.Project)
	require.NoError(t, err)
	require.NotEmpty(t, rep.Files)

	jsonPath := filepath.Join(projectDir, "report.json")
	jsonFile, err := os.Create(jsonPath)
	require.NoError(t, err)
	require.NoError(t, rep.WriteJSON(jsonFile))
	require.NoError(t, jsonFile.Close())

	raw, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var decoded report.Report
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "demo", decoded.Project)

	htmlDir := filepath.Join(projectDir, "report")
	require.NoError(t, builder.WriteHTML(rep, htmlDir))
	page, err := os.ReadFile(filepath.Join(htmlDir, "src", "demo.go.html"))
	require.NoError(t, err)
	assert.Contains(t, string(page), "data-l=")

	t.Log("Step 8: Querying the HTTP API...")
	srv, err := server.NewServer(cat, eng, server.Config{
		Addr:    ":0",
		Logger:  logging.NopLogger{},
		Metrics: metrics.NewRegistry(),
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	res, err := http.Get(fmt.Sprintf("%s/files/%d/regions", ts.URL, file))
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var fileRegions struct {
		Path    string `json:"path"`
		Count   int    `json:"count"`
		Regions []struct {
			Start  uint32   `json:"start"`
			End    uint32   `json:"end"`
			Labels []uint32 `json:"labels"`
		} `json:"regions"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&fileRegions))
	assert.Equal(t, "src/demo.go", fileRegions.Path)
	assert.Equal(t, count, fileRegions.Count)

	// Partition invariants hold over the wire too: ordered, disjoint,
	// non-empty.
	for i, r := range fileRegions.Regions {
		assert.Less(t, r.Start, r.End)
		assert.NotEmpty(t, r.Labels)
		if i > 0 {
			assert.GreaterOrEqual(t, r.Start, fileRegions.Regions[i-1].End)
		}
	}

	verifyBody := strings.NewReader(`{"subject": "citation", "expr": "all(test, function)"}`)
	res2, err := http.Post(ts.URL+"/verify", "application/json", verifyBody)
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, http.StatusOK, res2.StatusCode)

	var verdict struct {
		Satisfied bool `json:"satisfied"`
	}
	require.NoError(t, json.NewDecoder(res2.Body).Decode(&verdict))
	assert.True(t, verdict.Satisfied)
}
