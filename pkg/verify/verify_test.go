package verify

import (
	"testing"

	"github.com/imabhichow/duvet/pkg/catalog"
	"github.com/imabhichow/duvet/pkg/logging"
	"github.com/imabhichow/duvet/pkg/mergelog"
	"github.com/imabhichow/duvet/pkg/metrics"
	"github.com/imabhichow/duvet/pkg/regions"
)

func newTestSystem(t *testing.T) (*catalog.Catalog, *regions.Engine) {
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

	eng := regions.New(db, regions.Config{
		Logger:  logging.NopLogger{},
		Metrics: metrics.NewRegistry(),
		Workers: 2,
	})
	return catalog.New(db), eng
}

func newEntity(t *testing.T, cat *catalog.Catalog, ty string) regions.Label {
	t.Helper()
	id, err := cat.Entities.Create()
	if err != nil {
		t.Fatalf("create entity failed: %v", err)
	}
	if err := cat.Entities.SetAttr(id, catalog.AttrType, ty); err != nil {
		t.Fatalf("set type failed: %v", err)
	}
	return regions.Label(id)
}

func TestCheckClassifiesRegions(t *testing.T) {
	cat, eng := newTestSystem(t)
	scope := regions.Scope{File: 1}

	citation := newEntity(t, cat, "citation")
	test := newEntity(t, cat, "test")

	// The citation spans 0..20; a test covers only 0..10. The uncovered
	// half must fail any(test).
	if err := eng.Insert(scope, regions.Span{Start: 0, End: 20}, citation); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := eng.Insert(scope, regions.Span{Start: 0, End: 10}, test); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if err := eng.FinishFile(scope.File, scope.Run); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	expr, err := Parse("any(test, exception)")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	sum := NewSummary()
	if err := Check(cat, eng, Rule{Subject: "citation", Expr: expr}, sum); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	if sum.RegionsChecked != 2 {
		t.Errorf("RegionsChecked = %d, want 2", sum.RegionsChecked)
	}
	if sum.RegionsFailed != 1 {
		t.Errorf("RegionsFailed = %d, want 1", sum.RegionsFailed)
	}
	if sum.Subjects[citation] {
		t.Error("partially covered citation reported satisfied")
	}
	if sum.Satisfied() {
		t.Error("summary reports satisfied despite a failing region")
	}

	failed := sum.Failures[citation]
	if len(failed) != 1 || failed[0].Span != (regions.Span{Start: 10, End: 20}) {
		t.Errorf("unexpected failing regions: %v", failed)
	}
}

func TestCheckFullyCoveredSubject(t *testing.T) {
	cat, eng := newTestSystem(t)
	scope := regions.Scope{File: 1}

	citation := newEntity(t, cat, "citation")
	test := newEntity(t, cat, "test")

	eng.Insert(scope, regions.Span{Start: 0, End: 20}, citation)
	eng.Insert(scope, regions.Span{Start: 0, End: 20}, test)
	if err := eng.FinishFile(scope.File, scope.Run); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	expr, _ := Parse("any(test, exception)")
	sum := NewSummary()
	if err := Check(cat, eng, Rule{Subject: "citation", Expr: expr}, sum); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	if !sum.Subjects[citation] || !sum.Satisfied() {
		t.Error("fully covered citation reported unsatisfied")
	}
}

func TestCheckSubjectWithoutRegionsFails(t *testing.T) {
	cat, eng := newTestSystem(t)

	// A citation entity that produced no marks: nothing to point at, so
	// the subject cannot be satisfied.
	citation := newEntity(t, cat, "citation")

	expr, _ := Parse("any(test)")
	sum := NewSummary()
	if err := Check(cat, eng, Rule{Subject: "citation", Expr: expr}, sum); err != nil {
		t.Fatalf("check failed: %v", err)
	}

	if got, ok := sum.Subjects[citation]; !ok || got {
		t.Errorf("markless subject = %v (present %v), want unsatisfied", got, ok)
	}
}

func TestCheckExceptionSatisfies(t *testing.T) {
	cat, eng := newTestSystem(t)
	scope := regions.Scope{File: 1}

	citation := newEntity(t, cat, "citation")
	exception := newEntity(t, cat, "exception")

	eng.Insert(scope, regions.Span{Start: 5, End: 9}, citation)
	eng.Insert(scope, regions.Span{Start: 5, End: 9}, exception)
	if err := eng.FinishFile(scope.File, scope.Run); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	expr, _ := Parse("any(test, exception)")
	sum := NewSummary()
	if err := Check(cat, eng, Rule{Subject: "citation", Expr: expr}, sum); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !sum.Subjects[citation] {
		t.Error("excepted citation reported unsatisfied")
	}
}
