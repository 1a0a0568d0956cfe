package ingest

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
	"time"
	"unicode"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/regions"
)

// Syntactic extracts function and method spans from a registered Go
// file and inserts one mark per declaration. Test functions in _test.go
// files become "test" entities; everything else becomes "function".
// Returns how many marks were produced.
func (in *Ingestor) Syntactic(file uint32) (int, error) {
	started := time.Now()

	path, err := in.cat.Files.Path(file)
	if err != nil {
		in.metrics.RecordIngest("syntactic", "error", time.Since(started), 0)
		return 0, err
	}
	contents, err := in.cat.Files.Contents(file)
	if err != nil {
		in.metrics.RecordIngest("syntactic", "error", time.Since(started), 0)
		return 0, err
	}

	fset := token.NewFileSet()
	parsed, err := parser.ParseFile(fset, path, contents, parser.ParseComments)
	if err != nil {
		in.metrics.RecordIngest("syntactic", "error", time.Since(started), 0)
		return 0, err
	}

	isTestFile := strings.HasSuffix(path, "_test.go")
	scope := regions.Scope{File: regions.FileID(file)}

	marks := 0
	for _, decl := range parsed.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}

		typ := "function"
		if isTestFile && isTestFunc(fn) {
			typ = "test"
		}

		label, err := in.newEntity(map[string]string{
			catalog.AttrType: typ,
			catalog.AttrName: funcName(fn),
		})
		if err != nil {
			in.metrics.RecordIngest("syntactic", "error", time.Since(started), marks)
			return marks, err
		}

		span := regions.Span{
			Start: uint32(fset.Position(fn.Pos()).Offset),
			End:   uint32(fset.Position(fn.End()).Offset),
		}
		if err := in.eng.Insert(scope, span, label); err != nil {
			in.metrics.RecordIngest("syntactic", "error", time.Since(started), marks)
			return marks, err
		}
		marks++
	}

	in.metrics.RecordIngest("syntactic", "success", time.Since(started), marks)
	in.metrics.IngestFilesTotal.WithLabelValues("syntactic").Inc()
	in.log.Debug("spans extracted", logging.File(file), logging.Count(marks))
	return marks, nil
}

// isTestFunc matches the go test naming contract: TestXxx, BenchmarkXxx,
// or FuzzXxx with a single *testing.T/B/F parameter and no receiver.
func isTestFunc(fn *ast.FuncDecl) bool {
	if fn.Recv != nil || fn.Type.Params == nil || len(fn.Type.Params.List) != 1 {
		return false
	}

	name := fn.Name.Name
	for _, prefix := range []string{"Test", "Benchmark", "Fuzz"} {
		if rest, ok := strings.CutPrefix(name, prefix); ok {
			return rest == "" || !unicode.IsLower([]rune(rest)[0])
		}
	}
	return false
}

// funcName renders a declaration's name, with its receiver type for
// methods.
func funcName(fn *ast.FuncDecl) string {
	if fn.Recv == nil || len(fn.Recv.List) == 0 {
		return fn.Name.Name
	}
	return receiverType(fn.Recv.List[0].Type) + "." + fn.Name.Name
}

func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return receiverType(t.X)
	case *ast.IndexExpr:
		return receiverType(t.X)
	case *ast.IndexListExpr:
		return receiverType(t.X)
	default:
		return ""
	}
}
