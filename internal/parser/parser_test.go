package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"gridcalc/internal/cell"
	gcerrors "gridcalc/internal/errors"
	"gridcalc/internal/value"
)

func mustParse(t *testing.T, formula string) Expr {
	t.Helper()
	expr, err := Parse(formula)
	if err != nil {
		t.Fatalf("parse %q: %v", formula, err)
	}
	return expr
}

func TestPrecedence(t *testing.T) {
	// 1+2*3 groups the product under the sum.
	expr := mustParse(t, "=1+2*3")
	want := &Binary{
		Op:   "+",
		Left: &NumberLit{Value: 1},
		Right: &Binary{
			Op:    "*",
			Left:  &NumberLit{Value: 2},
			Right: &NumberLit{Value: 3},
		},
	}
	if diff := cmp.Diff(want, expr); diff != "" {
		t.Errorf("ast mismatch (-want +got):\n%s", diff)
	}
}

func TestExponentLeftAssociative(t *testing.T) {
	// Excel evaluates 2^3^2 as (2^3)^2 = 64.
	expr := mustParse(t, "=2^3^2")
	b, ok := expr.(*Binary)
	if !ok || b.Op != "^" {
		t.Fatalf("want ^ at root, got %T", expr)
	}
	if _, ok := b.Left.(*Binary); !ok {
		t.Errorf("want left-nested ^, got %T", b.Left)
	}
}

func TestUnaryMinusBindsTighterThanExponentBase(t *testing.T) {
	// Excel: -2^2 is (-2)^2 = 4.
	expr := mustParse(t, "=-2^2")
	b, ok := expr.(*Binary)
	if !ok || b.Op != "^" {
		t.Fatalf("want ^ at root, got %T", expr)
	}
	if _, ok := b.Left.(*Unary); !ok {
		t.Errorf("want unary minus as base, got %T", b.Left)
	}
}

func TestReferences(t *testing.T) {
	cases := []struct {
		formula string
		want    Expr
	}{
		{"=B3", &Ref{Row: 2, Col: 1}},
		{"=$B$3", &Ref{Row: 2, Col: 1, AbsRow: true, AbsCol: true}},
		{"=Sheet2!A1", &Ref{Sheet: "Sheet2", HasSheet: true}},
		{"='My Data'!A1", &Ref{Sheet: "My Data", HasSheet: true}},
		{"=A1:B2", &Area{EndRow: 1, EndCol: 1}},
		{"=A:A", &Area{EndRow: cell.DefaultRows - 1, WholeCol: true}},
		{"=3:5", &Area{StartRow: 2, EndRow: 4, EndCol: cell.DefaultCols - 1, WholeRow: true}},
		{"=Sheet1:Sheet3!A1", &Ref3D{FirstSheet: "Sheet1", LastSheet: "Sheet3"}},
	}
	for _, tc := range cases {
		got := mustParse(t, tc.formula)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("%s: (-want +got):\n%s", tc.formula, diff)
		}
	}
}

func TestExternalBookRef(t *testing.T) {
	expr := mustParse(t, "=[Book2.xlsx]Sheet1!A1")
	ext, ok := expr.(*ExternalRef)
	if !ok {
		t.Fatalf("want ExternalRef, got %T", expr)
	}
	if ext.Book != "Book2.xlsx" {
		t.Errorf("book = %q", ext.Book)
	}
}

func TestStructuredRef(t *testing.T) {
	expr := mustParse(t, "=Sales[[#Headers],[Units]:[Price]]")
	sr, ok := expr.(*StructuredRef)
	if !ok {
		t.Fatalf("want StructuredRef, got %T", expr)
	}
	if sr.Table != "Sales" || len(sr.Items) != 1 || sr.Items[0] != ItemHeaders {
		t.Errorf("parsed %+v", sr)
	}
	if len(sr.Columns) != 1 || sr.Columns[0].First != "Units" || sr.Columns[0].Last != "Price" {
		t.Errorf("columns %+v", sr.Columns)
	}
}

func TestArrayLiteral(t *testing.T) {
	expr := mustParse(t, "={1,2;3,4}")
	arr, ok := expr.(*ArrayLit)
	if !ok {
		t.Fatalf("want ArrayLit, got %T", expr)
	}
	if arr.Rows != 2 || arr.Cols != 2 || len(arr.Elems) != 4 {
		t.Errorf("shape %dx%d len %d", arr.Rows, arr.Cols, len(arr.Elems))
	}
}

func TestSpillAndIntersectOperators(t *testing.T) {
	if _, ok := mustParse(t, "=A1#").(*SpillRef); !ok {
		t.Error("A1# should be a spill reference")
	}
	if _, ok := mustParse(t, "=@A1:A3").(*ImplicitIntersect); !ok {
		t.Error("@ should wrap in implicit intersection")
	}
}

func TestPercentPostfix(t *testing.T) {
	expr := mustParse(t, "=50%%")
	p, ok := expr.(*Percent)
	if !ok {
		t.Fatalf("want Percent, got %T", expr)
	}
	if _, ok := p.Operand.(*Percent); !ok {
		t.Errorf("percent should stack, got %T", p.Operand)
	}
}

func TestErrorLiterals(t *testing.T) {
	expr := mustParse(t, "=#DIV/0!")
	e, ok := expr.(*ErrorLit)
	if !ok || e.Kind != value.KindDiv0 {
		t.Errorf("got %#v", expr)
	}
}

func TestOmittedArguments(t *testing.T) {
	expr := mustParse(t, "=IF(A1,,3)")
	call, ok := expr.(*FuncCall)
	if !ok || len(call.Args) != 3 {
		t.Fatalf("got %#v", expr)
	}
	if call.Args[1] != nil {
		t.Errorf("omitted arg should be nil, got %T", call.Args[1])
	}
}

func TestLambdaInvoke(t *testing.T) {
	expr := mustParse(t, "=LAMBDA(x,x+1)(5)")
	inv, ok := expr.(*Invoke)
	if !ok {
		t.Fatalf("want Invoke, got %T", expr)
	}
	lam, ok := inv.Callee.(*LambdaLit)
	if !ok || len(lam.Params) != 1 || lam.Params[0] != "x" {
		t.Errorf("callee %#v", inv.Callee)
	}
}

func TestR1C1(t *testing.T) {
	anchor := cell.Address{Row: 4, Col: 2} // C5
	opts := Options{R1C1: true, Anchor: anchor}

	expr, err := ParseWith("=R3C5", opts)
	if err != nil {
		t.Fatal(err)
	}
	want := &Ref{Row: 2, Col: 4, AbsRow: true, AbsCol: true}
	if diff := cmp.Diff(want, expr); diff != "" {
		t.Errorf("absolute: (-want +got):\n%s", diff)
	}

	expr, err = ParseWith("=R[-1]C[2]", opts)
	if err != nil {
		t.Fatal(err)
	}
	want = &Ref{Row: 3, Col: 4}
	if diff := cmp.Diff(want, expr); diff != "" {
		t.Errorf("relative: (-want +got):\n%s", diff)
	}
}

func TestDecimalCommaLocale(t *testing.T) {
	expr, err := ParseWith("=SUM(1,5;2)", Options{DecimalComma: true})
	if err != nil {
		t.Fatal(err)
	}
	call, ok := expr.(*FuncCall)
	if !ok || len(call.Args) != 2 {
		t.Fatalf("got %#v", expr)
	}
	n, ok := call.Args[0].(*NumberLit)
	if !ok || n.Value != 1.5 {
		t.Errorf("first arg %#v", call.Args[0])
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"=",
		"=1+",
		"=SUM(1,2",
		"=)",
		"={1,2;3}",
		"='Unterminated!A1",
	}
	for _, formula := range bad {
		_, err := Parse(formula)
		if err == nil {
			t.Errorf("%q: expected error", formula)
			continue
		}
		if !gcerrors.IsType(err, gcerrors.ParseError) {
			t.Errorf("%q: wrong error type: %v", formula, err)
		}
	}
}

func TestWalkVisitsAll(t *testing.T) {
	expr := mustParse(t, "=SUM(A1:A3,Sheet2!B1)+COUNT(C1)")
	refs := 0
	Walk(expr, func(e Expr) bool {
		switch e.(type) {
		case *Ref, *Area:
			refs++
		}
		return true
	})
	if refs != 3 {
		t.Errorf("visited %d references, want 3", refs)
	}
}
