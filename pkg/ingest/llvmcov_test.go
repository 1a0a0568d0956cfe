package ingest

import (
	"errors"
	"strings"
	"testing"

	"github.com/imabhichow/duvet/pkg/catalog"
)

func TestLLVMCovImport(t *testing.T) {
	in, cat, eng := newTestIngestor(t)

	src := strings.Join([]string{
		"int main() {",
		"  return 0;",
		"}",
		"",
	}, "\n")
	file, err := cat.Files.LoadBytes("src/main.c", []byte(src))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	export := `{
		"type": "llvm.coverage.json.export",
		"version": "2.0.1",
		"data": [{
			"functions": [
				{
					"name": "main",
					"count": 3,
					"regions": [
						[1, 12, 3, 2, 3, 0, 0, 0],
						[2, 3, 2, 12, 0, 0, 0, 0]
					],
					"filenames": ["/build/src/main.c"]
				},
				{
					"name": "unused",
					"count": 0,
					"regions": [[1, 1, 1, 2, 0, 0, 0, 0]],
					"filenames": ["/build/src/main.c"]
				}
			]
		}]
	}`
	path := writeTempFile(t, "export.json", export)

	resolve, err := in.SuffixResolver()
	if err != nil {
		t.Fatalf("resolver failed: %v", err)
	}

	n, err := in.LLVMCov(path, resolve)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("marks = %d, want 1", n)
	}

	regs := finalizedRegions(t, eng, file)
	if len(regs) != 1 {
		t.Fatalf("regions = %d, want 1", len(regs))
	}
	// Line 1 col 12 (the brace) through line 3 col 2.
	wantStart := uint32(strings.Index(src, "{"))
	wantEnd := uint32(strings.Index(src, "}")) + 1
	if regs[0].Span.Start != wantStart || regs[0].Span.End != wantEnd {
		t.Errorf("span = %v, want [%d,%d)", regs[0].Span, wantStart, wantEnd)
	}

	label := uint32(regs[0].Labels[0])
	name, _, err := cat.Entities.Attr(label, catalog.AttrName)
	if err != nil || name != "main" {
		t.Errorf("name = %q, %v", name, err)
	}
	execs, _, _ := cat.Entities.Attr(label, catalog.AttrExecutions)
	if execs != "3" {
		t.Errorf("executions = %q", execs)
	}
}

func TestLLVMCovBadJSON(t *testing.T) {
	in, _, _ := newTestIngestor(t)

	path := writeTempFile(t, "export.json", "{not json")
	_, err := in.LLVMCov(path, func(string) (string, bool) { return "", false })
	if !errors.Is(err, ErrBadProfile) {
		t.Fatalf("err = %v, want ErrBadProfile", err)
	}
}

func TestLLVMCovShortRegion(t *testing.T) {
	in, _, _ := newTestIngestor(t)

	export := `{"data": [{"functions": [
		{"name": "f", "count": 1, "regions": [[1, 1, 1]], "filenames": ["a.c"]}
	]}]}`
	path := writeTempFile(t, "export.json", export)
	_, err := in.LLVMCov(path, func(string) (string, bool) { return "", false })
	if !errors.Is(err, ErrBadProfile) {
		t.Fatalf("err = %v, want ErrBadProfile", err)
	}
}

func TestLLVMCovUnresolvedFileSkipped(t *testing.T) {
	in, _, _ := newTestIngestor(t)

	export := `{"data": [{"functions": [
		{"name": "f", "count": 1, "regions": [[1, 1, 1, 2, 1, 0, 0, 0]], "filenames": ["gone.c"]}
	]}]}`
	path := writeTempFile(t, "export.json", export)

	n, err := in.LLVMCov(path, func(string) (string, bool) { return "", false })
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("marks = %d, want 0", n)
	}
}
