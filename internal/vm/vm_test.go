// internal/vm/vm_test.go
package vm

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gridcalc/internal/cell"
	"gridcalc/internal/compiler"
	"gridcalc/internal/eval"
	"gridcalc/internal/parser"
	"gridcalc/internal/stdlib"
	"gridcalc/internal/value"
)

// testHost backs the VM, the compiler and the AST walker with one
// in-memory workbook so the two execution paths can be compared.
type testHost struct {
	cells map[cell.Address]value.Value
	names map[string]parser.Expr
	gens  map[cell.SheetID]uint64
	dims  [2]uint32
	ev    *eval.Evaluator
}

func newHost() *testHost {
	h := &testHost{
		cells: map[cell.Address]value.Value{},
		names: map[string]parser.Expr{},
		gens:  map[cell.SheetID]uint64{},
		dims:  [2]uint32{cell.DefaultRows, cell.DefaultCols},
	}
	h.ev = eval.New(stdlib.NewRegistry(), h, eval.Config{
		Now:  time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Rand: rand.New(rand.NewSource(1)),
	})
	return h
}

func (h *testHost) set(t *testing.T, ref string, v value.Value) {
	t.Helper()
	addr, ok := cell.ParseA1(ref)
	if !ok {
		t.Fatalf("bad address %q", ref)
	}
	h.cells[addr] = v
}

func (h *testHost) CellValue(addr cell.Address) value.Value {
	if v, ok := h.cells[addr]; ok {
		return v
	}
	return value.Blank{}
}

func (h *testHost) Dims(sheet cell.SheetID) (uint32, uint32) { return h.dims[0], h.dims[1] }

func (h *testHost) UsedRange(sheet cell.SheetID) cell.Range {
	r := cell.Range{Sheet: sheet}
	for addr := range h.cells {
		if addr.Sheet != sheet {
			continue
		}
		if addr.Row > r.EndRow {
			r.EndRow = addr.Row
		}
		if addr.Col > r.EndCol {
			r.EndCol = addr.Col
		}
	}
	return r
}

func (h *testHost) SheetID(name string) (cell.SheetID, bool) {
	if strings.EqualFold(name, "Sheet1") {
		return 0, true
	}
	return 0, false
}

func (h *testHost) SheetSpan(first, last string) ([]cell.SheetID, bool) { return nil, false }
func (h *testHost) SheetCount() int                                     { return 1 }

func (h *testHost) NameExpr(name string, sheet cell.SheetID) (parser.Expr, bool) {
	e, ok := h.names[strings.ToUpper(name)]
	return e, ok
}

func (h *testHost) TableByName(name string) (*eval.Table, bool)   { return nil, false }
func (h *testHost) TableAt(addr cell.Address) (*eval.Table, bool) { return nil, false }
func (h *testHost) SpillRange(a cell.Address) (cell.Range, bool)  { return cell.Range{}, false }
func (h *testHost) FormulaAt(addr cell.Address) (string, bool)    { return "", false }
func (h *testHost) Generation(sheet cell.SheetID) uint64          { return h.gens[sheet] }

func (h *testHost) Context(caller cell.Address) *stdlib.Context {
	return &stdlib.Context{
		Caller: caller,
		Now:    time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Rand:   rand.New(rand.NewSource(1)),
		Source: h,
	}
}

func (h *testHost) NameValue(name string, caller cell.Address) value.Value {
	e, ok := h.names[strings.ToUpper(name)]
	if !ok {
		return value.Err(value.KindName)
	}
	return h.ev.EvalDeferred(e, caller)
}

func TestVMEquivalence(t *testing.T) {
	h := newHost()
	for i, v := range []float64{3, 1, 4, 1, 5, 9, 2, 6} {
		h.cells[cell.Address{Row: uint32(i), Col: 0}] = value.Number(v)
	}
	h.set(t, "B1", value.Text("left"))
	h.set(t, "B2", value.Text("right"))
	h.set(t, "C1", value.Bool(true))

	formulas := []string{
		"1+2*3-4/2^2",
		"-A1+A2",
		"50%*A3",
		"A1&\"-\"&B1",
		"A1>A2",
		"A1=3",
		"B1<>B2",
		"SUM(A1:A8)",
		"AVERAGE(A1:A8)",
		"MAX(A1:A8)-MIN(A1:A8)",
		"ROUND(A5/A6,3)",
		"IF(A1>2,\"big\",\"small\")",
		"IF(C1,SUM(A1:A4),0)",
		"IF(A1>100,1/0,42)",
		"COUNTIF(A1:A8,\">3\")",
		"SUMIF(A1:A8,\"<5\")",
		"LEN(B1)&LEN(B2)",
		"UPPER(B1)",
		"CONCAT(B1,B2)",
		"{1,2;3,4}",
		"SUM({1,2,3}*2)",
		"ABS(-A1)",
		"1/0",
		"A1+#REF!",
		"MOD(A6,A7)",
		"SQRT(A3*A3)",
	}

	caller, _ := cell.ParseA1("Z100")
	comp := compiler.New(h.ev.Reg, h)
	machine := New(h.ev.Reg, h)

	for _, f := range formulas {
		expr, err := parser.Parse(f)
		if err != nil {
			t.Fatalf("parse %q: %v", f, err)
		}
		prog, reason := comp.Compile(expr, caller)
		if reason != compiler.ReasonNone {
			t.Fatalf("compile %q: %v", f, reason)
		}
		got, ok := machine.Run(prog, caller)
		if !ok {
			t.Fatalf("run %q: unexpected bailout", f)
		}
		want := h.ev.Eval(expr, caller)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%q: vm and walker disagree (-walker +vm):\n%s", f, diff)
		}
	}
}

func TestVMNameLoad(t *testing.T) {
	h := newHost()
	h.set(t, "A1", value.Number(21))
	expr, err := parser.Parse("A1*2")
	if err != nil {
		t.Fatal(err)
	}
	h.names["DOUBLED"] = expr

	caller, _ := cell.ParseA1("Z100")
	f, _ := parser.Parse("doubled+1")
	prog, reason := compiler.New(h.ev.Reg, h).Compile(f, caller)
	if reason != compiler.ReasonNone {
		t.Fatalf("compile: %v", reason)
	}
	got, ok := New(h.ev.Reg, h).Run(prog, caller)
	if !ok {
		t.Fatal("unexpected bailout")
	}
	if got != value.Number(43) {
		t.Fatalf("got %#v, want 43", got)
	}
}

func TestCompileReasons(t *testing.T) {
	h := newHost()
	caller, _ := cell.ParseA1("Z100")
	comp := compiler.New(h.ev.Reg, h)

	cases := []struct {
		formula string
		want    compiler.Reason
	}{
		{"NOW()", compiler.ReasonVolatileBlackbox},
		{"RAND()+1", compiler.ReasonVolatileBlackbox},
		{"LET(x,1,x)", compiler.ReasonLambdaBody},
		{"LAMBDA(x,x)(1)", compiler.ReasonLambdaBody},
		{"MAP({1,2},LAMBDA(x,x))", compiler.ReasonLambdaBody},
		{"INDIRECT(\"A1\")", compiler.ReasonDynamicReferenceNeeded},
		{"OFFSET(A1,1,1)", compiler.ReasonDynamicReferenceNeeded},
		{"SUM(A1:A2:A4)", compiler.ReasonDynamicReferenceNeeded},
		{"B1#", compiler.ReasonDynamicReferenceNeeded},
		{"NOSUCHFN(1)", compiler.ReasonUnsupportedFunction},
		{"A1:Z99999*2", compiler.ReasonLargeRangeMaterialization},
		{"A:A*2", compiler.ReasonLargeRangeMaterialization},
		{"@A1:A3", compiler.ReasonUnsupportedExpression},
	}
	for _, tc := range cases {
		expr, err := parser.Parse(tc.formula)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.formula, err)
		}
		if _, got := comp.Compile(expr, caller); got != tc.want {
			t.Errorf("Compile(%q) = %v, want %v", tc.formula, got, tc.want)
		}
	}

	// lazy aggregate positions keep whole-column refs compilable
	expr, err := parser.Parse("SUM(A:A)")
	if err != nil {
		t.Fatal(err)
	}
	if _, got := comp.Compile(expr, caller); got != compiler.ReasonNone {
		t.Errorf("Compile(SUM(A:A)) = %v, want ok", got)
	}
}

func TestNonDefaultDims(t *testing.T) {
	h := newHost()
	h.dims = [2]uint32{100, 26}
	caller, _ := cell.ParseA1("Z100")
	expr, err := parser.Parse("SUM(A:A)")
	if err != nil {
		t.Fatal(err)
	}
	if _, got := compiler.New(h.ev.Reg, h).Compile(expr, caller); got != compiler.ReasonNonDefaultSheetDimensions {
		t.Fatalf("got %v, want non-default dims", got)
	}
}

func TestStampInvalidation(t *testing.T) {
	h := newHost()
	h.set(t, "A1", value.Number(1))
	caller, _ := cell.ParseA1("Z100")
	expr, err := parser.Parse("A1+1")
	if err != nil {
		t.Fatal(err)
	}
	prog, reason := compiler.New(h.ev.Reg, h).Compile(expr, caller)
	if reason != compiler.ReasonNone {
		t.Fatalf("compile: %v", reason)
	}
	machine := New(h.ev.Reg, h)
	if _, ok := machine.Run(prog, caller); !ok {
		t.Fatal("fresh program should run")
	}
	h.gens[0]++
	if _, ok := machine.Run(prog, caller); ok {
		t.Fatal("stale program must bail out")
	}
}

func TestArrayConditionBailout(t *testing.T) {
	h := newHost()
	caller, _ := cell.ParseA1("Z100")
	expr, err := parser.Parse("IF({TRUE,FALSE},1,2)")
	if err != nil {
		t.Fatal(err)
	}
	prog, reason := compiler.New(h.ev.Reg, h).Compile(expr, caller)
	if reason != compiler.ReasonNone {
		t.Fatalf("compile: %v", reason)
	}
	if _, ok := New(h.ev.Reg, h).Run(prog, caller); ok {
		t.Fatal("array condition must bail out to the walker")
	}
}

func BenchmarkVMArithmetic(b *testing.B) {
	h := newHost()
	caller, _ := cell.ParseA1("Z100")
	expr, _ := parser.Parse("1+2*3-4/2^2")
	prog, _ := compiler.New(h.ev.Reg, h).Compile(expr, caller)
	machine := New(h.ev.Reg, h)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		machine.Run(prog, caller)
	}
}

func BenchmarkVMSum(b *testing.B) {
	h := newHost()
	for i := 0; i < 1000; i++ {
		h.cells[cell.Address{Row: uint32(i), Col: 0}] = value.Number(float64(i))
	}
	caller, _ := cell.ParseA1("Z100")
	expr, _ := parser.Parse("SUM(A1:A1000)")
	prog, _ := compiler.New(h.ev.Reg, h).Compile(expr, caller)
	machine := New(h.ev.Reg, h)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		machine.Run(prog, caller)
	}
}

func BenchmarkWalkerSum(b *testing.B) {
	h := newHost()
	for i := 0; i < 1000; i++ {
		h.cells[cell.Address{Row: uint32(i), Col: 0}] = value.Number(float64(i))
	}
	caller, _ := cell.ParseA1("Z100")
	expr, _ := parser.Parse("SUM(A1:A1000)")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.ev.Eval(expr, caller)
	}
}

// wideHost resolves one extra sheet with an id past the 16-bit range.
type wideHost struct{ *testHost }

func (h wideHost) SheetID(name string) (cell.SheetID, bool) {
	if strings.EqualFold(name, "Archive") {
		return 70000, true
	}
	return h.testHost.SheetID(name)
}

func TestVMLargeSheetID(t *testing.T) {
	h := wideHost{newHost()}
	h.cells[cell.Address{Sheet: 70000, Row: 0, Col: 0}] = value.Number(7)
	h.cells[cell.Address{Sheet: 70000, Row: 1, Col: 0}] = value.Number(35)

	caller, _ := cell.ParseA1("Z100")
	comp := compiler.New(h.ev.Reg, h)
	machine := New(h.ev.Reg, h)
	for _, tc := range []struct {
		formula string
		want    value.Value
	}{
		{"Archive!A1+1", value.Number(8)},
		{"SUM(Archive!A1:A2)", value.Number(42)},
	} {
		expr, err := parser.Parse(tc.formula)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.formula, err)
		}
		prog, reason := comp.Compile(expr, caller)
		if reason != compiler.ReasonNone {
			t.Fatalf("compile %q: %v", tc.formula, reason)
		}
		got, ok := machine.Run(prog, caller)
		if !ok {
			t.Fatalf("run %q: unexpected bailout", tc.formula)
		}
		if got != tc.want {
			t.Fatalf("%q = %#v, want %#v", tc.formula, got, tc.want)
		}
	}
}
