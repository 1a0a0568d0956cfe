package verify

import (
	"errors"
	"testing"
)

func setOf(types ...string) func(string) bool {
	m := make(map[string]bool, len(types))
	for _, t := range types {
		m[t] = true
	}
	return func(t string) bool { return m[t] }
}

func TestParseAndEval(t *testing.T) {
	cases := []struct {
		expr    string
		present []string
		want    bool
	}{
		{"citation", []string{"citation"}, true},
		{"citation", []string{"test"}, false},
		{"all(citation, test)", []string{"citation", "test"}, true},
		{"all(citation, test)", []string{"citation"}, false},
		{"any(test, exception)", []string{"exception"}, true},
		{"any(test, exception)", []string{"citation"}, false},
		{"not(todo)", []string{"citation"}, true},
		{"not(todo)", []string{"todo"}, false},
		{"xor(test, exception)", []string{"test"}, true},
		{"xor(test, exception)", []string{"test", "exception"}, false},
		{"xor(test, exception)", nil, false},
		{"all(citation, any(test, exception), not(todo))",
			[]string{"citation", "test"}, true},
		{"all(citation, any(test, exception), not(todo))",
			[]string{"citation", "test", "todo"}, false},
		// Op names without parens are plain type idents.
		{"all", []string{"all"}, true},
		{" all( citation , test ) ", []string{"citation", "test"}, true},
	}

	for _, tc := range cases {
		expr, err := Parse(tc.expr)
		if err != nil {
			t.Errorf("Parse(%q) failed: %v", tc.expr, err)
			continue
		}
		if got := expr.Eval(setOf(tc.present...)); got != tc.want {
			t.Errorf("Eval(%q) with %v = %v, want %v", tc.expr, tc.present, got, tc.want)
		}
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"all(",
		"all()",
		"all(citation",
		"all(citation,)",
		"not(a, b)",
		"citation extra",
		"(citation)",
	} {
		if _, err := Parse(s); !errors.Is(err, ErrBadExpr) {
			t.Errorf("Parse(%q): expected ErrBadExpr, got %v", s, err)
		}
	}
}

func TestStringRoundtrip(t *testing.T) {
	for _, s := range []string{
		"citation",
		"not(todo)",
		"all(citation, any(test, exception))",
		"xor(a, b, c)",
	} {
		expr, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", s, err)
		}
		if expr.String() != s {
			t.Errorf("String() = %q, want %q", expr.String(), s)
		}
	}
}

func TestEvalDeepExpression(t *testing.T) {
	// Deep nesting must not recurse: build not(not(...(citation)...)).
	expr := &Expr{Op: OpType, Type: "citation"}
	for i := 0; i < 100000; i++ {
		expr = &Expr{Op: OpNot, Args: []*Expr{expr}}
	}
	// Even number of nots preserves the value.
	if got := expr.Eval(setOf("citation")); got != true {
		t.Fatalf("deep Eval = %v, want true", got)
	}
}
