// internal/eval/eval_test.go
package eval

import (
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"gridcalc/internal/cell"
	"gridcalc/internal/parser"
	"gridcalc/internal/stdlib"
	"gridcalc/internal/value"
)

// testBook is an in-memory Resolver for evaluator tests.
type testBook struct {
	sheets   []string
	cells    map[cell.Address]value.Value
	names    map[string]parser.Expr
	tables   []*Table
	spills   map[cell.Address]cell.Range
	formulas map[cell.Address]string
}

func newBook(sheets ...string) *testBook {
	if len(sheets) == 0 {
		sheets = []string{"Sheet1"}
	}
	return &testBook{
		sheets:   sheets,
		cells:    map[cell.Address]value.Value{},
		names:    map[string]parser.Expr{},
		spills:   map[cell.Address]cell.Range{},
		formulas: map[cell.Address]string{},
	}
}

func (b *testBook) set(t *testing.T, ref string, v value.Value) {
	t.Helper()
	b.setOn(t, 0, ref, v)
}

func (b *testBook) setOn(t *testing.T, sheet cell.SheetID, ref string, v value.Value) {
	t.Helper()
	addr, ok := cell.ParseA1(ref)
	if !ok {
		t.Fatalf("bad address %q", ref)
	}
	addr.Sheet = sheet
	b.cells[addr] = v
}

func (b *testBook) define(t *testing.T, name, formula string) {
	t.Helper()
	expr, err := parser.Parse(formula)
	if err != nil {
		t.Fatalf("parse name %s: %v", name, err)
	}
	b.names[strings.ToUpper(name)] = expr
}

func (b *testBook) CellValue(addr cell.Address) value.Value {
	if v, ok := b.cells[addr]; ok {
		return v
	}
	return value.Blank{}
}

func (b *testBook) Dims(sheet cell.SheetID) (uint32, uint32) {
	return cell.DefaultRows, cell.DefaultCols
}

func (b *testBook) UsedRange(sheet cell.SheetID) cell.Range {
	r := cell.Range{Sheet: sheet}
	for addr := range b.cells {
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

func (b *testBook) SheetID(name string) (cell.SheetID, bool) {
	for i, s := range b.sheets {
		if strings.EqualFold(s, name) {
			return cell.SheetID(i), true
		}
	}
	return 0, false
}

func (b *testBook) SheetSpan(first, last string) ([]cell.SheetID, bool) {
	lo, ok1 := b.SheetID(first)
	hi, ok2 := b.SheetID(last)
	if !ok1 || !ok2 {
		return nil, false
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	ids := make([]cell.SheetID, 0, hi-lo+1)
	for id := lo; id <= hi; id++ {
		ids = append(ids, id)
	}
	return ids, true
}

func (b *testBook) SheetCount() int { return len(b.sheets) }

func (b *testBook) NameExpr(name string, sheet cell.SheetID) (parser.Expr, bool) {
	e, ok := b.names[strings.ToUpper(name)]
	return e, ok
}

func (b *testBook) TableByName(name string) (*Table, bool) {
	for _, tbl := range b.tables {
		if strings.EqualFold(tbl.Name, name) {
			return tbl, true
		}
	}
	return nil, false
}

func (b *testBook) TableAt(addr cell.Address) (*Table, bool) {
	for _, tbl := range b.tables {
		if tbl.Range.Contains(addr) {
			return tbl, true
		}
	}
	return nil, false
}

func (b *testBook) SpillRange(anchor cell.Address) (cell.Range, bool) {
	r, ok := b.spills[anchor]
	return r, ok
}

func (b *testBook) FormulaAt(addr cell.Address) (string, bool) {
	f, ok := b.formulas[addr]
	return f, ok
}

func testEval(b *testBook) *Evaluator {
	return New(stdlib.NewRegistry(), b, Config{
		Now:  time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Rand: rand.New(rand.NewSource(1)),
	})
}

func evalAt(t *testing.T, b *testBook, formula, caller string) value.Value {
	t.Helper()
	addr, ok := cell.ParseA1(caller)
	if !ok {
		t.Fatalf("bad caller %q", caller)
	}
	expr, err := parser.Parse(formula)
	if err != nil {
		t.Fatalf("parse %q: %v", formula, err)
	}
	return testEval(b).Eval(expr, addr)
}

func evalStr(t *testing.T, b *testBook, formula string) value.Value {
	t.Helper()
	return evalAt(t, b, formula, "Z100")
}

func wantNum(t *testing.T, got value.Value, want float64) {
	t.Helper()
	n, ok := got.(value.Number)
	if !ok {
		t.Fatalf("got %#v, want number %v", got, want)
	}
	if math.Abs(float64(n)-want) > 1e-9 {
		t.Fatalf("got %v, want %v", float64(n), want)
	}
}

func wantText(t *testing.T, got value.Value, want string) {
	t.Helper()
	s, ok := got.(value.Text)
	if !ok {
		t.Fatalf("got %#v, want text %q", got, want)
	}
	if string(s) != want {
		t.Fatalf("got %q, want %q", string(s), want)
	}
}

func wantErrKind(t *testing.T, got value.Value, kind value.ErrorKind) {
	t.Helper()
	e, ok := got.(value.Error)
	if !ok {
		t.Fatalf("got %#v, want error %v", got, kind)
	}
	if e.Kind != kind {
		t.Fatalf("got %v, want %v", e.Kind, kind)
	}
}

func wantBool(t *testing.T, got value.Value, want bool) {
	t.Helper()
	bv, ok := got.(value.Bool)
	if !ok {
		t.Fatalf("got %#v, want bool %v", got, want)
	}
	if bool(bv) != want {
		t.Fatalf("got %v, want %v", bool(bv), want)
	}
}

func TestOperators(t *testing.T) {
	b := newBook()
	cases := []struct {
		formula string
		want    float64
	}{
		{"1+2*3", 7},
		{"(1+2)*3", 9},
		{"2^10", 1024},
		{"-2^2", 4}, // unary minus binds tighter than ^
		{"10/4", 2.5},
		{"50%", 0.5},
		{"10%%", 0.001},
		{"-(3+4)", -7},
		{"1+TRUE", 2},
		{"\"3\"+\"4\"", 7},
	}
	for _, tc := range cases {
		wantNum(t, evalStr(t, b, tc.formula), tc.want)
	}
}

func TestOperatorErrors(t *testing.T) {
	b := newBook()
	wantErrKind(t, evalStr(t, b, "1/0"), value.KindDiv0)
	wantErrKind(t, evalStr(t, b, "0^0"), value.KindNum)
	wantErrKind(t, evalStr(t, b, "1+\"abc\""), value.KindValue)
	wantErrKind(t, evalStr(t, b, "1+#REF!"), value.KindRef)
	// left error wins over right
	wantErrKind(t, evalStr(t, b, "#NUM!+#DIV/0!"), value.KindNum)
}

func TestConcat(t *testing.T) {
	b := newBook()
	wantText(t, evalStr(t, b, "\"a\"&\"b\""), "ab")
	wantText(t, evalStr(t, b, "1&2"), "12")
	wantText(t, evalStr(t, b, "TRUE&\"!\""), "TRUE!")
	b.set(t, "A1", value.Blank{})
	wantText(t, evalStr(t, b, "A1&\"x\""), "x")
}

func TestComparisons(t *testing.T) {
	b := newBook()
	wantBool(t, evalStr(t, b, "1<2"), true)
	wantBool(t, evalStr(t, b, "\"a\"<\"B\""), true) // case-insensitive text
	wantBool(t, evalStr(t, b, "\"a\"=\"A\""), true)
	wantBool(t, evalStr(t, b, "2>\"1\""), false) // numbers sort before text
	wantBool(t, evalStr(t, b, "TRUE>\"z\""), true)
	wantBool(t, evalStr(t, b, "1<>2"), true)
	// blank compares as the zero of the other side's type
	wantBool(t, evalStr(t, b, "A1=0"), true)
	wantBool(t, evalStr(t, b, "A1=\"\""), true)
	wantBool(t, evalStr(t, b, "A1=FALSE"), true)
}

func TestReferenceDeref(t *testing.T) {
	b := newBook()
	b.set(t, "A1", value.Number(10))
	b.set(t, "A2", value.Number(20))
	b.set(t, "B1", value.Text("hi"))
	wantNum(t, evalStr(t, b, "A1+A2"), 30)
	wantText(t, evalStr(t, b, "B1"), "hi")
	// a 1x1 range collapses to its cell
	wantNum(t, evalStr(t, b, "A1:A1*2"), 20)
	// empty cell dereferences to blank, coerces to 0
	wantNum(t, evalStr(t, b, "C9+1"), 1)
}

func TestRangeAggregation(t *testing.T) {
	b := newBook()
	b.set(t, "A1", value.Number(1))
	b.set(t, "A2", value.Number(2))
	b.set(t, "A3", value.Number(3))
	b.set(t, "B2", value.Number(10))
	wantNum(t, evalStr(t, b, "SUM(A1:A3)"), 6)
	wantNum(t, evalStr(t, b, "SUM(A1:B3)"), 16)
	// whole-column references clip to the used extent
	wantNum(t, evalStr(t, b, "SUM(A:A)"), 6)
	wantNum(t, evalStr(t, b, "SUM(1:1)"), 1)
	wantNum(t, evalStr(t, b, "COUNT(A:B)"), 4)
}

func TestRangeOperator(t *testing.T) {
	b := newBook()
	for i, v := range []float64{1, 2, 3, 4, 5} {
		b.set(t, "A"+string(rune('1'+i)), value.Number(v))
	}
	wantNum(t, evalStr(t, b, "SUM(A1:A5)"), 15)
	// the bounding box of two sub-ranges
	wantNum(t, evalStr(t, b, "SUM(A1:A2:A4)"), 10)
	// INDEX returns a reference usable as a range endpoint
	wantNum(t, evalStr(t, b, "SUM(A1:INDEX(A1:A5,3))"), 6)
}

func TestUnionArgument(t *testing.T) {
	b := newBook()
	b.set(t, "A1", value.Number(1))
	b.set(t, "A3", value.Number(3))
	b.set(t, "C1", value.Number(5))
	wantNum(t, evalStr(t, b, "SUM((A1,A3,C1))"), 9)
	wantNum(t, evalStr(t, b, "COUNT((A1:A3,C1))"), 3)
}

func TestCrossSheet(t *testing.T) {
	b := newBook("Sheet1", "Sheet2", "Sheet3")
	b.setOn(t, 0, "A1", value.Number(1))
	b.setOn(t, 1, "A1", value.Number(2))
	b.setOn(t, 2, "A1", value.Number(4))
	wantNum(t, evalStr(t, b, "Sheet2!A1*10"), 20)
	wantNum(t, evalStr(t, b, "SUM(Sheet1:Sheet3!A1)"), 7)
	wantErrKind(t, evalStr(t, b, "Missing!A1"), value.KindRef)
}

func TestBroadcasting(t *testing.T) {
	b := newBook()
	got := evalStr(t, b, "{1,2,3}*2")
	arr, ok := got.(*value.Array)
	if !ok {
		t.Fatalf("got %#v, want array", got)
	}
	if arr.Rows != 1 || arr.Cols != 3 {
		t.Fatalf("got %dx%d, want 1x3", arr.Rows, arr.Cols)
	}
	wantNum(t, arr.At(0, 2), 6)

	// column vector x row vector broadcasts to the outer product shape
	got = evalStr(t, b, "{1;2}+{10,20,30}")
	arr = got.(*value.Array)
	if arr.Rows != 2 || arr.Cols != 3 {
		t.Fatalf("got %dx%d, want 2x3", arr.Rows, arr.Cols)
	}
	wantNum(t, arr.At(1, 2), 32)

	// mismatched extents fill with #N/A
	got = evalStr(t, b, "{1,2,3}+{10,20}")
	arr = got.(*value.Array)
	wantNum(t, arr.At(0, 1), 22)
	wantErrKind(t, arr.At(0, 2), value.KindNA)
}

func TestElementwiseFunc(t *testing.T) {
	b := newBook()
	got := evalStr(t, b, "ABS({-1,2,-3})")
	arr, ok := got.(*value.Array)
	if !ok {
		t.Fatalf("got %#v, want array", got)
	}
	wantNum(t, arr.At(0, 0), 1)
	wantNum(t, arr.At(0, 2), 3)
}

func TestLazyIf(t *testing.T) {
	b := newBook()
	// the untaken branch is never evaluated
	wantNum(t, evalStr(t, b, "IF(TRUE,1,1/0)"), 1)
	wantNum(t, evalStr(t, b, "IF(FALSE,1/0,2)"), 2)
	wantBool(t, evalStr(t, b, "IF(FALSE,1/0)"), false)
}

func TestIfDefaults(t *testing.T) {
	b := newBook()
	wantNum(t, evalStr(t, b, "IF(TRUE,7)"), 7)
	wantBool(t, evalStr(t, b, "IF(FALSE,7)"), false)
	wantNum(t, evalStr(t, b, "IF(2,1,0)"), 1)
	wantErrKind(t, evalStr(t, b, "IF(\"x\",1,0)"), value.KindValue)
	// array condition broadcasts
	got := evalStr(t, b, "IF({TRUE,FALSE},1,2)")
	arr := got.(*value.Array)
	wantNum(t, arr.At(0, 0), 1)
	wantNum(t, arr.At(0, 1), 2)
}

func TestIfErrorLazy(t *testing.T) {
	b := newBook()
	wantNum(t, evalStr(t, b, "IFERROR(1/0,42)"), 42)
	wantNum(t, evalStr(t, b, "IFERROR(5,1/0)"), 5)
	wantErrKind(t, evalStr(t, b, "IFNA(#REF!,1)"), value.KindRef)
	wantNum(t, evalStr(t, b, "IFNA(#N/A,1)"), 1)
}

func TestLetScoping(t *testing.T) {
	b := newBook()
	wantNum(t, evalStr(t, b, "LET(x,2,x*x)"), 4)
	wantNum(t, evalStr(t, b, "LET(x,2,y,x+1,x*y)"), 6)
	// inner LET shadows the outer binding
	wantNum(t, evalStr(t, b, "LET(x,1,LET(x,10,x)+x)"), 11)
	// binding names are case-insensitive
	wantNum(t, evalStr(t, b, "LET(Total,5,tOtAl+1)"), 6)
	wantErrKind(t, evalStr(t, b, "LET(x,1)"), value.KindValue)
}

func TestLetShadowsDefinedName(t *testing.T) {
	b := newBook()
	b.define(t, "rate", "0.05")
	wantNum(t, evalStr(t, b, "rate*100"), 5)
	wantNum(t, evalStr(t, b, "LET(rate,0.5,rate*100)"), 50)
}

func TestDefinedNames(t *testing.T) {
	b := newBook()
	b.set(t, "A1", value.Number(3))
	b.set(t, "A2", value.Number(4))
	b.define(t, "data", "A1:A2")
	b.define(t, "total", "SUM(data)")
	wantNum(t, evalStr(t, b, "total"), 7)
	wantErrKind(t, evalStr(t, b, "nosuchname"), value.KindName)
	// self-referential names bottom out instead of recursing forever
	b.define(t, "loop", "loop+1")
	wantErrKind(t, evalStr(t, b, "loop"), value.KindNum)
}

func TestLambdaInvoke(t *testing.T) {
	b := newBook()
	wantNum(t, evalStr(t, b, "LAMBDA(x,x+1)(41)"), 42)
	wantNum(t, evalStr(t, b, "LAMBDA(x,y,x*y)(6,7)"), 42)
	// arity mismatch
	wantErrKind(t, evalStr(t, b, "LAMBDA(x,y,x*y)(6)"), value.KindValue)
	// a lambda value escaping to a cell is #CALC!
	wantErrKind(t, evalStr(t, b, "LAMBDA(x,x)"), value.KindCalc)
}

func TestLambdaClosure(t *testing.T) {
	b := newBook()
	// the inner lambda captures the LET binding
	wantNum(t, evalStr(t, b, "LET(n,10,f,LAMBDA(x,x+n),f(5))"), 15)
	wantNum(t, evalStr(t, b, "LET(f,LAMBDA(x,LAMBDA(y,x+y)),f(1)(2))"), 3)
}

func TestLambdaHigherOrder(t *testing.T) {
	b := newBook()
	got := evalStr(t, b, "MAP({1,2,3},LAMBDA(x,x*x))")
	arr, ok := got.(*value.Array)
	if !ok {
		t.Fatalf("got %#v, want array", got)
	}
	wantNum(t, arr.At(0, 2), 9)
	wantNum(t, evalStr(t, b, "REDUCE(0,{1,2,3,4},LAMBDA(acc,v,acc+v))"), 10)
	wantNum(t, evalStr(t, b, "LET(twice,LAMBDA(f,x,f(f(x))),twice(LAMBDA(n,n*3),2))"), 18)
}

func TestRecursionDepth(t *testing.T) {
	b := newBook()
	b.define(t, "down", "LAMBDA(n,IF(n<=0,0,down(n-1)))")
	wantNum(t, evalStr(t, b, "down(100)"), 0)
	wantErrKind(t, evalStr(t, b, "down(100000)"), value.KindNum)
}

func TestIndirect(t *testing.T) {
	b := newBook()
	b.set(t, "A1", value.Number(9))
	b.set(t, "A2", value.Number(1))
	wantNum(t, evalStr(t, b, "INDIRECT(\"A1\")"), 9)
	wantNum(t, evalStr(t, b, "SUM(INDIRECT(\"A1:A2\"))"), 10)
	wantErrKind(t, evalStr(t, b, "INDIRECT(\"SUM(A1)\")"), value.KindRef)
	wantErrKind(t, evalStr(t, b, "INDIRECT(\"garbage!!\")"), value.KindRef)
	wantErrKind(t, evalStr(t, b, "INDIRECT(\"Nope!A1\")"), value.KindRef)
	// R1C1 mode resolves relative to the caller
	wantNum(t, evalAt(t, b, "INDIRECT(\"R1C1\",FALSE)", "C3"), 9)
}

func TestImplicitIntersection(t *testing.T) {
	b := newBook()
	b.set(t, "A1", value.Number(10))
	b.set(t, "A2", value.Number(20))
	b.set(t, "A3", value.Number(30))
	// caller in row 2 picks the row-2 element of a column range
	wantNum(t, evalAt(t, b, "@A1:A3", "C2"), 20)
	wantNum(t, evalAt(t, b, "@A1:A3+1", "C3"), 31)
	// no intersection with the caller position
	wantErrKind(t, evalAt(t, b, "@A1:A3", "C9"), value.KindValue)
	// scalars pass through
	wantNum(t, evalStr(t, b, "@5"), 5)
}

func TestSpillRef(t *testing.T) {
	b := newBook()
	b.set(t, "B1", value.Number(1))
	b.set(t, "B2", value.Number(2))
	b.set(t, "B3", value.Number(3))
	r, _ := cell.ParseA1("B1")
	end, _ := cell.ParseA1("B3")
	b.spills[r] = cell.RangeOf(r, end)
	wantNum(t, evalStr(t, b, "SUM(B1#)"), 6)
	// an anchor with no spill is just itself
	wantNum(t, evalStr(t, b, "SUM(C1#)+1"), 1)
	wantErrKind(t, evalStr(t, b, "B1:B2#"), value.KindRef)
}

func TestStructuredRefs(t *testing.T) {
	b := newBook()
	// Sales in A1:C4, header row plus three data rows
	b.set(t, "A1", value.Text("Region"))
	b.set(t, "B1", value.Text("Units"))
	b.set(t, "C1", value.Text("Price"))
	b.set(t, "A2", value.Text("East"))
	b.set(t, "B2", value.Number(10))
	b.set(t, "C2", value.Number(2))
	b.set(t, "A3", value.Text("West"))
	b.set(t, "B3", value.Number(20))
	b.set(t, "C3", value.Number(3))
	b.set(t, "A4", value.Text("North"))
	b.set(t, "B4", value.Number(30))
	b.set(t, "C4", value.Number(4))
	tl, _ := cell.ParseA1("A1")
	br, _ := cell.ParseA1("C4")
	b.tables = append(b.tables, &Table{
		Name:    "Sales",
		Range:   cell.RangeOf(tl, br),
		Headers: true,
		Columns: []string{"Region", "Units", "Price"},
	})

	wantNum(t, evalStr(t, b, "SUM(Sales[Units])"), 60)
	wantNum(t, evalStr(t, b, "SUM(Sales[[Units]:[Price]])"), 69)
	wantNum(t, evalStr(t, b, "COUNTA(Sales[#All])"), 12)
	wantText(t, evalStr(t, b, "Sales[[#Headers],[Units]]"), "Units")
	wantErrKind(t, evalStr(t, b, "SUM(Sales[#Totals])"), value.KindRef)
	wantErrKind(t, evalStr(t, b, "SUM(Sales[Nope])"), value.KindRef)
	wantErrKind(t, evalStr(t, b, "SUM(Nada[Units])"), value.KindName)

	// [@Col] projects onto the caller's row inside the table
	wantNum(t, evalAt(t, b, "Sales[@Units]*Sales[@Price]", "D3"), 60)
	wantErrKind(t, evalAt(t, b, "Sales[@Units]", "D9"), value.KindValue)
}

func TestThisRowFromAnotherSheet(t *testing.T) {
	b := newBook("Sheet1", "Sheet2")
	b.set(t, "A1", value.Text("Units"))
	b.set(t, "A2", value.Number(10))
	tl, _ := cell.ParseA1("A1")
	br, _ := cell.ParseA1("A2")
	b.tables = append(b.tables, &Table{
		Name:    "Sales",
		Range:   cell.RangeOf(tl, br),
		Headers: true,
		Columns: []string{"Units"},
	})
	expr, err := parser.Parse("Sales[@Units]")
	if err != nil {
		t.Fatal(err)
	}
	got := testEval(b).Eval(expr, cell.Address{Sheet: 1, Row: 1, Col: 0})
	wantErrKind(t, got, value.KindName)
}

func TestFormulaText(t *testing.T) {
	b := newBook()
	addr, _ := cell.ParseA1("A1")
	b.formulas[addr] = "=1+1"
	b.set(t, "A1", value.Number(2))
	wantText(t, evalStr(t, b, "FORMULATEXT(A1)"), "=1+1")
	wantErrKind(t, evalStr(t, b, "FORMULATEXT(B1)"), value.KindNA)
	wantBool(t, evalStr(t, b, "ISFORMULA(A1)"), true)
	wantBool(t, evalStr(t, b, "ISFORMULA(B1)"), false)
}

func TestSheetFunctions(t *testing.T) {
	b := newBook("Alpha", "Beta")
	wantNum(t, evalStr(t, b, "SHEETS()"), 2)
	wantNum(t, evalStr(t, b, "SHEET(Beta!A1)"), 2)
}

func TestExternalRef(t *testing.T) {
	b := newBook()
	wantErrKind(t, evalStr(t, b, "[Book2.xlsx]Sheet1!A1"), value.KindRef)
}

func TestVolatileDetection(t *testing.T) {
	b := newBook()
	ev := testEval(b)
	cases := []struct {
		formula string
		want    bool
	}{
		{"1+2", false},
		{"SUM(A1:A3)", false},
		{"NOW()", true},
		{"A1+RAND()", true},
		{"IF(TRUE,TODAY(),1)", true},
		{"OFFSET(A1,1,1)", true},
	}
	for _, tc := range cases {
		expr, err := parser.Parse(tc.formula)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.formula, err)
		}
		if got := ev.Volatile(expr); got != tc.want {
			t.Errorf("Volatile(%q) = %v, want %v", tc.formula, got, tc.want)
		}
	}
}

func TestPrecedents(t *testing.T) {
	b := newBook("Sheet1", "Sheet2")
	b.define(t, "data", "Sheet2!B1:B5")
	ev := testEval(b)
	caller, _ := cell.ParseA1("Z100")

	expr, err := parser.Parse("A1+SUM(data)")
	if err != nil {
		t.Fatal(err)
	}
	p := ev.Precedents(expr, caller)
	if len(p.Ranges) != 2 {
		t.Fatalf("got %d ranges, want 2", len(p.Ranges))
	}
	if len(p.Names) != 1 || p.Names[0] != "DATA" {
		t.Fatalf("names = %v, want [DATA]", p.Names)
	}
	if p.Dynamic || p.Volatile {
		t.Fatalf("unexpected dynamic/volatile flags: %+v", p)
	}

	expr, _ = parser.Parse("INDIRECT(\"A\"&1)")
	p = ev.Precedents(expr, caller)
	if !p.Dynamic {
		t.Fatal("INDIRECT should be dynamic")
	}

	expr, _ = parser.Parse("RAND()")
	p = ev.Precedents(expr, caller)
	if !p.Volatile {
		t.Fatal("RAND should be volatile")
	}
}

func TestEvalDeferred(t *testing.T) {
	b := newBook()
	b.set(t, "A1", value.Number(5))
	expr, err := parser.Parse("A1:A3")
	if err != nil {
		t.Fatal(err)
	}
	caller, _ := cell.ParseA1("Z100")
	got := testEval(b).EvalDeferred(expr, caller)
	ref, ok := got.(*value.Reference)
	if !ok {
		t.Fatalf("got %#v, want reference", got)
	}
	if ref.Range.Rows() != 3 {
		t.Fatalf("rows = %d, want 3", ref.Range.Rows())
	}
}
