package filter

import (
	"errors"
	"testing"

	"github.com/stellarlab/lcsearch/internal/domain"
	"github.com/stellarlab/lcsearch/internal/domain/collection/column"
)

// testResolver serves a small fixed schema.
func testResolver() Resolver {
	schema := map[string]column.Column{
		"mag":      column.Reconstruct("mag", column.Float, "%.3f", true, false),
		"nepochs":  column.Reconstruct("nepochs", column.Integer, "%d", false, false),
		"objectid": column.Reconstruct("objectid", column.String, "%s", true, false),
		"vartype":  column.Reconstruct("vartype", column.String, "%s", false, true),
	}
	return func(name string) (column.Column, bool) {
		c, ok := schema[name]
		return c, ok
	}
}

func TestParse_EmptyInput(t *testing.T) {
	node, err := Parse("   ", testResolver())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if node != nil {
		t.Fatal("expected nil tree for empty input")
	}
}

func TestParse_SingleClause(t *testing.T) {
	node, err := Parse("(mag lt 15.5)", testResolver())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cmp, ok := node.(*Comparison)
	if !ok {
		t.Fatalf("expected *Comparison, got %T", node)
	}
	if cmp.Col() != "mag" || cmp.Operator() != OpLT {
		t.Errorf("got (%s %s), want (mag lt)", cmp.Col(), cmp.Operator())
	}
	if cmp.NumericValue() != 15.5 {
		t.Errorf("value = %g, want 15.5", cmp.NumericValue())
	}
}

func TestParse_Chain(t *testing.T) {
	node, err := Parse("(mag lt 15.5) and (nepochs ge 40) and (vartype eq 'RR Lyr')", testResolver())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g, ok := node.(*Group)
	if !ok {
		t.Fatalf("expected *Group, got %T", node)
	}
	if g.BoolOperator() != BoolAnd {
		t.Errorf("joiner = %s, want and", g.BoolOperator())
	}
	if len(g.Children()) != 3 {
		t.Fatalf("same-operator chain should flatten to 3 children, got %d", len(g.Children()))
	}

	last, ok := g.Children()[2].(*Comparison)
	if !ok {
		t.Fatalf("expected comparison leaf, got %T", g.Children()[2])
	}
	if last.StringValue() != "RR Lyr" {
		t.Errorf("quoted value = %q, want %q", last.StringValue(), "RR Lyr")
	}
}

func TestParse_MixedChainNests(t *testing.T) {
	node, err := Parse("(mag lt 15) or (mag gt 20) and (nepochs ge 10)", testResolver())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g, ok := node.(*Group)
	if !ok {
		t.Fatalf("expected *Group, got %T", node)
	}
	// left-associative: ((a or b) and c)
	if g.BoolOperator() != BoolAnd || len(g.Children()) != 2 {
		t.Fatalf("expected two-child and-group, got %s/%d", g.BoolOperator(), len(g.Children()))
	}
	inner, ok := g.Children()[0].(*Group)
	if !ok || inner.BoolOperator() != BoolOr {
		t.Errorf("expected or-group on the left")
	}
}

func TestParse_Canonical(t *testing.T) {
	node, err := Parse("(mag lt 15.5) and (vartype ct \"Lyr\")", testResolver())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := `((mag lt 15.5) and (vartype ct "Lyr"))`
	if got := node.Canonical(); got != want {
		t.Errorf("Canonical() = %s, want %s", got, want)
	}
}

func TestParse_Errors(t *testing.T) {
	cases := []struct {
		name   string
		in     string
		clause string
	}{
		{"unknown column", "(flux lt 10)", "(flux lt 10)"},
		{"unknown operator", "(mag near 10)", "(mag near 10)"},
		{"ct on numeric", "(mag ct 15)", "(mag ct 15)"},
		{"non-numeric literal", "(nepochs ge many)", "(nepochs ge many)"},
		{"short clause", "(mag lt)", "(mag lt)"},
		{"unterminated", "(mag lt 15", ""},
		{"missing parens", "mag lt 15", ""},
		{"trailing input", "(mag lt 15) garbage", ""},
		{"nested parens", "((mag lt 15))", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(tc.in, testResolver())
			if err == nil {
				t.Fatalf("Parse(%q) succeeded, want error", tc.in)
			}
			if !errors.Is(err, domain.ErrFilterSyntax) {
				t.Errorf("error %v does not wrap ErrFilterSyntax", err)
			}
			if tc.clause != "" {
				var fse *domain.FilterSyntaxError
				if !errors.As(err, &fse) {
					t.Fatalf("error %v is not a FilterSyntaxError", err)
				}
				if fse.Clause != tc.clause {
					t.Errorf("reported clause %q, want %q", fse.Clause, tc.clause)
				}
			}
		})
	}
}

func TestColumnsOf(t *testing.T) {
	node, err := Parse("(vartype eq 'EB') and (mag lt 15) or (mag gt 20)", testResolver())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cols := ColumnsOf(node)
	if len(cols) != 2 || cols[0] != "mag" || cols[1] != "vartype" {
		t.Errorf("ColumnsOf = %v, want [mag vartype]", cols)
	}
}

func TestColumnsOf_Nil(t *testing.T) {
	if cols := ColumnsOf(nil); cols != nil {
		t.Errorf("ColumnsOf(nil) = %v, want nil", cols)
	}
}
