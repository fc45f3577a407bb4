package stdlib

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"gridcalc/internal/value"
)

func testContext() *Context {
	return &Context{
		Now:  time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Rand: rand.New(rand.NewSource(1)),
	}
}

func call(t *testing.T, name string, args ...value.Value) value.Value {
	t.Helper()
	r := NewRegistry()
	spec, ok := r.Lookup(name)
	if !ok {
		t.Fatalf("function %s not registered", name)
	}
	if !spec.CheckArity(len(args)) {
		t.Fatalf("%s: arity %d rejected", name, len(args))
	}
	return spec.Handler(testContext(), args)
}

func wantNumber(t *testing.T, got value.Value, want float64) {
	t.Helper()
	n, ok := got.(value.Number)
	if !ok {
		t.Fatalf("got %s %v, want number %g", value.TypeName(got), got, want)
	}
	if math.Abs(float64(n)-want) > 1e-9 {
		t.Fatalf("got %v, want %g", float64(n), want)
	}
}

func wantNumberTol(t *testing.T, got value.Value, want, tol float64) {
	t.Helper()
	n, ok := got.(value.Number)
	if !ok {
		t.Fatalf("got %s %v, want number %g", value.TypeName(got), got, want)
	}
	if math.Abs(float64(n)-want) > tol {
		t.Fatalf("got %v, want %g", float64(n), want)
	}
}

func wantError(t *testing.T, got value.Value, kind value.ErrorKind) {
	t.Helper()
	e, ok := got.(value.Error)
	if !ok || e.Kind != kind {
		t.Fatalf("got %v, want %s", got, value.Error{Kind: kind})
	}
}

func arr(rows, cols int, vals ...value.Value) *value.Array {
	a := value.NewArray(rows, cols)
	copy(a.Data, vals)
	return a
}

func nums(vals ...float64) *value.Array {
	a := value.NewArray(len(vals), 1)
	for i, f := range vals {
		a.Data[i] = value.Number(f)
	}
	return a
}

func TestSumSkipsRangeText(t *testing.T) {
	got := call(t, "SUM", arr(3, 1, value.Number(1), value.Text("oops"), value.Number(2)))
	wantNumber(t, got, 3)
}

func TestSumScalarTextCoerces(t *testing.T) {
	wantNumber(t, call(t, "SUM", value.Text("5"), value.Number(2)), 7)
	wantError(t, call(t, "SUM", value.Text("abc")), value.KindValue)
}

func TestSumPropagatesError(t *testing.T) {
	got := call(t, "SUM", arr(2, 1, value.Number(1), value.Err(value.KindDiv0)))
	wantError(t, got, value.KindDiv0)
}

func TestAverageEmptyIsDiv0(t *testing.T) {
	wantError(t, call(t, "AVERAGE", arr(2, 1, value.Text("a"), value.Blank{})), value.KindDiv0)
}

func TestRounding(t *testing.T) {
	cases := []struct {
		name string
		x, d float64
		want float64
	}{
		{"ROUND", 2.149, 1, 2.1},
		{"ROUND", -1.5, 0, -2},
		{"ROUNDUP", 3.2, 0, 4},
		{"ROUNDDOWN", 3.79, 0, 3},
		{"ROUNDUP", -3.14159, 1, -3.2},
	}
	for _, tc := range cases {
		got := call(t, tc.name, value.Number(tc.x), value.Number(tc.d))
		wantNumber(t, got, tc.want)
	}
}

func TestModFollowsDivisorSign(t *testing.T) {
	wantNumber(t, call(t, "MOD", value.Number(3), value.Number(-2)), -1)
	wantNumber(t, call(t, "MOD", value.Number(-3), value.Number(2)), 1)
	wantError(t, call(t, "MOD", value.Number(3), value.Number(0)), value.KindNum)
}

func TestEvenOdd(t *testing.T) {
	wantNumber(t, call(t, "EVEN", value.Number(1.5)), 2)
	wantNumber(t, call(t, "EVEN", value.Number(-1)), -2)
	wantNumber(t, call(t, "ODD", value.Number(1.5)), 3)
	wantNumber(t, call(t, "ODD", value.Number(-2)), -3)
	wantNumber(t, call(t, "ODD", value.Number(0)), 1)
}

func TestMedian(t *testing.T) {
	wantNumber(t, call(t, "MEDIAN", nums(3, 1, 2)), 2)
	wantNumber(t, call(t, "MEDIAN", nums(4, 1, 2, 3)), 2.5)
}

func TestStdev(t *testing.T) {
	wantNumber(t, call(t, "STDEV.S", nums(2, 4, 4, 4, 5, 5, 7, 9)), 2.13808993529939)
	wantNumber(t, call(t, "STDEV.P", nums(2, 4, 4, 4, 5, 5, 7, 9)), 2)
}

func TestLargeSmall(t *testing.T) {
	wantNumber(t, call(t, "LARGE", nums(3, 5, 1), value.Number(2)), 3)
	wantNumber(t, call(t, "SMALL", nums(3, 5, 1), value.Number(1)), 1)
	wantError(t, call(t, "LARGE", nums(3, 5, 1), value.Number(4)), value.KindNum)
}

func TestCountIfCriteria(t *testing.T) {
	data := arr(5, 1, value.Number(10), value.Number(20), value.Text("apple"), value.Text("apricot"), value.Blank{})
	cases := []struct {
		crit value.Value
		want float64
	}{
		{value.Text(">=10"), 2},
		{value.Text(">10"), 1},
		{value.Text("ap*"), 2},
		{value.Text("a?ple"), 1},
		{value.Number(10), 1},
		{value.Text("<>10"), 4},
	}
	for _, tc := range cases {
		got := call(t, "COUNTIF", data, tc.crit)
		wantNumber(t, got, tc.want)
	}
}

func TestSumIfWithSumRange(t *testing.T) {
	keys := arr(3, 1, value.Text("a"), value.Text("b"), value.Text("a"))
	vals := nums(1, 10, 100)
	wantNumber(t, call(t, "SUMIF", keys, value.Text("a"), vals), 101)
}

func TestSumIfsMultipleCriteria(t *testing.T) {
	vals := nums(1, 2, 3, 4)
	k1 := arr(4, 1, value.Text("x"), value.Text("x"), value.Text("y"), value.Text("x"))
	k2 := nums(1, 2, 1, 2)
	got := call(t, "SUMIFS", vals, k1, value.Text("x"), k2, value.Text(">=2"))
	wantNumber(t, got, 6)
}

func TestTildeEscapesWildcard(t *testing.T) {
	data := arr(2, 1, value.Text("a*b"), value.Text("axb"))
	wantNumber(t, call(t, "COUNTIF", data, value.Text("a~*b")), 1)
}

func TestVLookup(t *testing.T) {
	table := arr(3, 2,
		value.Number(1), value.Text("one"),
		value.Number(5), value.Text("five"),
		value.Number(9), value.Text("nine"))
	wantNumber(t, call(t, "VLOOKUP", value.Number(5), table, value.Number(1), value.Bool(false)), 5)
	got := call(t, "VLOOKUP", value.Number(5), table, value.Number(2), value.Bool(false))
	if got != value.Value(value.Text("five")) {
		t.Fatalf("got %v", got)
	}
	// approximate: last key <= 7 is 5
	got = call(t, "VLOOKUP", value.Number(7), table, value.Number(2))
	if got != value.Value(value.Text("five")) {
		t.Fatalf("approx got %v", got)
	}
	wantError(t, call(t, "VLOOKUP", value.Number(0), table, value.Number(2)), value.KindNA)
}

func TestMatchModes(t *testing.T) {
	asc := nums(1, 3, 5)
	wantNumber(t, call(t, "MATCH", value.Number(3), asc, value.Number(0)), 2)
	wantNumber(t, call(t, "MATCH", value.Number(4), asc, value.Number(1)), 2)
	desc := nums(5, 3, 1)
	wantNumber(t, call(t, "MATCH", value.Number(4), desc, value.Number(-1)), 1)
	wantError(t, call(t, "MATCH", value.Number(9), asc, value.Number(0)), value.KindNA)
}

func TestXLookupDefault(t *testing.T) {
	keys := nums(1, 2, 3)
	vals := arr(3, 1, value.Text("a"), value.Text("b"), value.Text("c"))
	got := call(t, "XLOOKUP", value.Number(2), keys, vals)
	if got != value.Value(value.Text("b")) {
		t.Fatalf("got %v", got)
	}
	got = call(t, "XLOOKUP", value.Number(9), keys, vals, value.Text("missing"))
	if got != value.Value(value.Text("missing")) {
		t.Fatalf("got %v", got)
	}
}

func TestIndexArray(t *testing.T) {
	table := arr(2, 2, value.Number(1), value.Number(2), value.Number(3), value.Number(4))
	wantNumber(t, call(t, "INDEX", table, value.Number(2), value.Number(1)), 3)
	wantError(t, call(t, "INDEX", table, value.Number(3), value.Number(1)), value.KindRef)
}

func TestTextFunctions(t *testing.T) {
	cases := []struct {
		name string
		args []value.Value
		want string
	}{
		{"LEFT", []value.Value{value.Text("hello"), value.Number(2)}, "he"},
		{"RIGHT", []value.Value{value.Text("hello"), value.Number(3)}, "llo"},
		{"MID", []value.Value{value.Text("hello"), value.Number(2), value.Number(3)}, "ell"},
		{"UPPER", []value.Value{value.Text("abc")}, "ABC"},
		{"PROPER", []value.Value{value.Text("hello world")}, "Hello World"},
		{"TRIM", []value.Value{value.Text("  a   b  ")}, "a b"},
		{"SUBSTITUTE", []value.Value{value.Text("aaa"), value.Text("a"), value.Text("b"), value.Number(2)}, "aba"},
		{"REPT", []value.Value{value.Text("ab"), value.Number(3)}, "ababab"},
		{"TEXTJOIN", []value.Value{value.Text("-"), value.Bool(true), arr(3, 1, value.Text("a"), value.Text(""), value.Text("c"))}, "a-c"},
	}
	for _, tc := range cases {
		got := call(t, tc.name, tc.args...)
		s, ok := got.(value.Text)
		if !ok || string(s) != tc.want {
			t.Errorf("%s: got %v, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFindSearch(t *testing.T) {
	wantNumber(t, call(t, "FIND", value.Text("b"), value.Text("abc")), 2)
	wantError(t, call(t, "FIND", value.Text("B"), value.Text("abc")), value.KindValue)
	wantNumber(t, call(t, "SEARCH", value.Text("B"), value.Text("abc")), 2)
	wantNumber(t, call(t, "SEARCH", value.Text("a?c"), value.Text("xabc")), 2)
}

func TestLenCountsRunes(t *testing.T) {
	wantNumber(t, call(t, "LEN", value.Text("héllo")), 5)
}

func TestDateSerials(t *testing.T) {
	// the 1900 system keeps serial 60 for the fictitious leap day
	wantNumber(t, call(t, "DATE", value.Number(1900), value.Number(1), value.Number(1)), 1)
	wantNumber(t, call(t, "DATE", value.Number(1900), value.Number(2), value.Number(28)), 59)
	wantNumber(t, call(t, "DATE", value.Number(1900), value.Number(3), value.Number(1)), 61)
	wantNumber(t, call(t, "DATE", value.Number(2024), value.Number(1), value.Number(1)), 45292)
}

func TestDateParts(t *testing.T) {
	serial := value.Number(45292) // 2024-01-01
	wantNumber(t, call(t, "YEAR", serial), 2024)
	wantNumber(t, call(t, "MONTH", serial), 1)
	wantNumber(t, call(t, "DAY", serial), 1)
	wantNumber(t, call(t, "WEEKDAY", serial), 2) // Monday
}

func TestEDateClampsDay(t *testing.T) {
	jan31 := call(t, "DATE", value.Number(2023), value.Number(1), value.Number(31))
	feb28 := call(t, "DATE", value.Number(2023), value.Number(2), value.Number(28))
	got := call(t, "EDATE", jan31, value.Number(1))
	wantNumber(t, got, float64(feb28.(value.Number)))
}

func TestEOMonth(t *testing.T) {
	d := call(t, "DATE", value.Number(2024), value.Number(2), value.Number(10))
	want := call(t, "DATE", value.Number(2024), value.Number(2), value.Number(29))
	wantNumber(t, call(t, "EOMONTH", d, value.Number(0)), float64(want.(value.Number)))
}

func TestNetworkdays(t *testing.T) {
	start := call(t, "DATE", value.Number(2024), value.Number(6), value.Number(3)) // Monday
	end := call(t, "DATE", value.Number(2024), value.Number(6), value.Number(14))  // Friday
	wantNumber(t, call(t, "NETWORKDAYS", start, end), 10)
}

func TestPMT(t *testing.T) {
	got := call(t, "PMT", value.Number(0.08/12), value.Number(10), value.Number(10000))
	wantNumberTol(t, got, -1037.0321, 1e-4)
}

func TestFVZeroRate(t *testing.T) {
	wantNumber(t, call(t, "FV", value.Number(0), value.Number(10), value.Number(-100)), 1000)
}

func TestNPV(t *testing.T) {
	got := call(t, "NPV", value.Number(0.1), nums(-10000, 3000, 4200, 6800))
	wantNumber(t, got, 1188.4434123352)
}

func TestIRRBracketsRoot(t *testing.T) {
	got := call(t, "IRR", nums(-70000, 12000, 15000, 18000, 21000, 26000))
	wantNumberTol(t, got, 0.086631, 1e-5)
	wantError(t, call(t, "IRR", nums(100, 200)), value.KindNum)
}

func TestSLN(t *testing.T) {
	wantNumber(t, call(t, "SLN", value.Number(30000), value.Number(7500), value.Number(10)), 2250)
}

func TestBaseConversions(t *testing.T) {
	got := call(t, "DEC2BIN", value.Number(9), value.Number(6))
	if got != value.Value(value.Text("001001")) {
		t.Fatalf("got %v", got)
	}
	wantNumber(t, call(t, "BIN2DEC", value.Text("1100100")), 100)
	wantNumber(t, call(t, "HEX2DEC", value.Text("FF")), 255)
	// negative numbers use 40-bit two's complement
	got = call(t, "DEC2HEX", value.Number(-1))
	if got != value.Value(value.Text("FFFFFFFFFF")) {
		t.Fatalf("got %v", got)
	}
	wantNumber(t, call(t, "BIN2DEC", value.Text("1111111110")), -2)
}

func TestBitOps(t *testing.T) {
	wantNumber(t, call(t, "BITAND", value.Number(13), value.Number(25)), 9)
	wantNumber(t, call(t, "BITLSHIFT", value.Number(4), value.Number(2)), 16)
	wantError(t, call(t, "BITAND", value.Number(-1), value.Number(2)), value.KindNum)
}

func TestComplexArithmetic(t *testing.T) {
	got := call(t, "IMSUM", arr(2, 1, value.Text("3+4i"), value.Text("1-2i")))
	if got != value.Value(value.Text("4+2i")) {
		t.Fatalf("got %v", got)
	}
	wantNumber(t, call(t, "IMABS", value.Text("3+4i")), 5)
}

func TestSequence(t *testing.T) {
	got := call(t, "SEQUENCE", value.Number(2), value.Number(3), value.Number(10), value.Number(5))
	a, ok := got.(*value.Array)
	if !ok || a.Rows != 2 || a.Cols != 3 {
		t.Fatalf("got %v", got)
	}
	wantNumber(t, a.At(0, 0), 10)
	wantNumber(t, a.At(1, 2), 35)
}

func TestUnique(t *testing.T) {
	got := call(t, "UNIQUE", nums(1, 2, 1, 3, 2))
	a, ok := got.(*value.Array)
	if !ok || a.Rows != 3 {
		t.Fatalf("got %v", got)
	}
	wantNumber(t, a.At(0, 0), 1)
	wantNumber(t, a.At(2, 0), 3)

	// a single surviving row collapses to a scalar like FILTER does
	once := call(t, "UNIQUE", nums(1, 2, 1, 3, 2), value.Bool(false), value.Bool(true))
	wantNumber(t, once, 3)
}

func TestUniqueKeepsTypeIdentity(t *testing.T) {
	// the number 1 and the text "1" are distinct rows
	got := call(t, "UNIQUE", arr(2, 1, value.Number(1), value.Text("1")))
	a := got.(*value.Array)
	if a.Rows != 2 {
		t.Fatalf("rows = %d, want 2", a.Rows)
	}
}

func TestSortDescending(t *testing.T) {
	got := call(t, "SORT", nums(2, 9, 4), value.Number(1), value.Number(-1))
	a := got.(*value.Array)
	wantNumber(t, a.At(0, 0), 9)
	wantNumber(t, a.At(2, 0), 2)
}

func TestFilterFallback(t *testing.T) {
	data := nums(1, 2, 3)
	mask := arr(3, 1, value.Bool(false), value.Bool(true), value.Bool(false))
	wantNumber(t, call(t, "FILTER", data, mask), 2)
	noHits := arr(3, 1, value.Bool(false), value.Bool(false), value.Bool(false))
	wantError(t, call(t, "FILTER", data, noHits), value.KindCalc)
	got := call(t, "FILTER", data, noHits, value.Text("none"))
	if got != value.Value(value.Text("none")) {
		t.Fatalf("got %v", got)
	}
}

func TestTakeDrop(t *testing.T) {
	data := nums(1, 2, 3, 4)
	got := call(t, "TAKE", data, value.Number(2)).(*value.Array)
	if got.Rows != 2 {
		t.Fatalf("TAKE rows = %d", got.Rows)
	}
	wantNumber(t, got.At(1, 0), 2)
	wantNumber(t, call(t, "TAKE", data, value.Number(-1)), 4)
	dropped := call(t, "DROP", data, value.Number(3))
	wantNumber(t, dropped, 4)
}

func TestStackPadding(t *testing.T) {
	left := nums(1, 2)
	right := value.NewArray(1, 1)
	right.Data[0] = value.Number(9)
	got := call(t, "HSTACK", left, right).(*value.Array)
	if got.Rows != 2 || got.Cols != 2 {
		t.Fatalf("shape %dx%d", got.Rows, got.Cols)
	}
	wantError(t, got.At(1, 1), value.KindNA)
}

func TestIfErrorPassThrough(t *testing.T) {
	wantNumber(t, call(t, "IFERROR", value.Number(3), value.Number(0)), 3)
	wantNumber(t, call(t, "IFERROR", value.Err(value.KindDiv0), value.Number(0)), 0)
	wantError(t, call(t, "IFNA", value.Err(value.KindDiv0), value.Number(0)), value.KindDiv0)
	wantNumber(t, call(t, "IFNA", value.Err(value.KindNA), value.Number(7)), 7)
}

func TestAndOrSkipRangeText(t *testing.T) {
	mixed := arr(3, 1, value.Bool(true), value.Text("yes"), value.Number(0))
	got := call(t, "AND", mixed)
	if got != value.Value(value.Bool(false)) {
		t.Fatalf("AND got %v", got)
	}
	wantError(t, call(t, "AND", arr(1, 1, value.Text("x"))), value.KindValue)
}

func TestSubtotalDispatch(t *testing.T) {
	data := nums(1, 2, 3, 4)
	wantNumber(t, call(t, "SUBTOTAL", value.Number(9), data), 10)
	wantNumber(t, call(t, "SUBTOTAL", value.Number(109), data), 10)
	wantNumber(t, call(t, "SUBTOTAL", value.Number(1), data), 2.5)
	wantError(t, call(t, "SUBTOTAL", value.Number(99), data), value.KindValue)
}

func TestAggregateIgnoresErrors(t *testing.T) {
	data := arr(3, 1, value.Number(1), value.Err(value.KindDiv0), value.Number(3))
	wantNumber(t, call(t, "AGGREGATE", value.Number(9), value.Number(6), data), 4)
	wantError(t, call(t, "AGGREGATE", value.Number(9), value.Number(4), data), value.KindDiv0)
}

func TestTypeCodes(t *testing.T) {
	wantNumber(t, call(t, "TYPE", value.Number(1)), 1)
	wantNumber(t, call(t, "TYPE", value.Text("x")), 2)
	wantNumber(t, call(t, "TYPE", value.Bool(true)), 4)
	wantNumber(t, call(t, "TYPE", value.Err(value.KindNA)), 16)
	wantNumber(t, call(t, "TYPE", nums(1, 2)), 64)
}

func TestErrorTypeCodes(t *testing.T) {
	wantNumber(t, call(t, "ERROR.TYPE", value.Err(value.KindDiv0)), 2)
	wantNumber(t, call(t, "ERROR.TYPE", value.Err(value.KindNA)), 7)
	wantError(t, call(t, "ERROR.TYPE", value.Number(1)), value.KindNA)
}

func TestLookupIsCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"sum", "Sum", "SUM", "sUm"} {
		if _, ok := r.Lookup(name); !ok {
			t.Fatalf("Lookup(%q) failed", name)
		}
	}
}

func TestLegacyIDs(t *testing.T) {
	r := NewRegistry()
	spec, ok := r.LookupLegacy(4)
	if !ok || spec.Name != "SUM" {
		t.Fatalf("id 4: got %v, %v", spec, ok)
	}
	if _, ok := r.LookupLegacy(9999); ok {
		t.Fatal("unknown id resolved")
	}
}

func TestVolatileFlags(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"RAND", "NOW", "TODAY", "OFFSET", "INDIRECT", "RANDBETWEEN", "RANDARRAY"} {
		spec, ok := r.Lookup(name)
		if !ok || !spec.Volatile {
			t.Errorf("%s should be volatile", name)
		}
	}
	if spec, _ := r.Lookup("SUM"); spec.Volatile {
		t.Error("SUM should not be volatile")
	}
}

func TestRandDeterministicWithSeed(t *testing.T) {
	r := NewRegistry()
	spec, _ := r.Lookup("RAND")
	ctx1 := &Context{Rand: rand.New(rand.NewSource(42))}
	ctx2 := &Context{Rand: rand.New(rand.NewSource(42))}
	a := spec.Handler(ctx1, nil)
	b := spec.Handler(ctx2, nil)
	if a != b {
		t.Fatalf("seeded RAND differs: %v vs %v", a, b)
	}
}

func TestTextFormatPatterns(t *testing.T) {
	cases := []struct {
		num     float64
		pattern string
		want    string
	}{
		{1234.567, "0.00", "1234.57"},
		{1234.567, "#,##0", "1,235"},
		{0.825, "0.0%", "82.5%"},
		{1, "General", "1"},
	}
	for _, tc := range cases {
		got := call(t, "TEXT", value.Number(tc.num), value.Text(tc.pattern))
		s, ok := got.(value.Text)
		if !ok || string(s) != tc.want {
			t.Errorf("TEXT(%g, %q) = %v, want %q", tc.num, tc.pattern, got, tc.want)
		}
	}
}

func TestConvertUnits(t *testing.T) {
	wantNumber(t, call(t, "CONVERT", value.Number(1), value.Text("mi"), value.Text("km")), 1.609344)
	wantNumber(t, call(t, "CONVERT", value.Number(100), value.Text("C"), value.Text("F")), 212)
	wantError(t, call(t, "CONVERT", value.Number(1), value.Text("kg"), value.Text("m")), value.KindNA)
}

func TestTrimMean(t *testing.T) {
	// 20% trims one value from each end of ten
	wantNumber(t, call(t, "TRIMMEAN", nums(1, 2, 3, 4, 5, 6, 7, 8, 9, 10), value.Number(0.2)), 5.5)
	wantError(t, call(t, "TRIMMEAN", nums(1, 2, 3), value.Number(1)), value.KindNum)
}

func TestRankAvg(t *testing.T) {
	data := nums(1, 2, 3, 3, 4)
	wantNumber(t, call(t, "RANK.AVG", value.Number(3), data), 2.5)
	wantNumber(t, call(t, "RANK.AVG", value.Number(3), data, value.Number(1)), 3.5)
	wantError(t, call(t, "RANK.AVG", value.Number(9), data), value.KindNA)
}

func TestPercentileExc(t *testing.T) {
	data := nums(1, 2, 3, 4)
	wantNumber(t, call(t, "PERCENTILE.EXC", data, value.Number(0.5)), 2.5)
	// position 0.5*(n+1) falls before the first value
	wantError(t, call(t, "PERCENTILE.EXC", data, value.Number(0.1)), value.KindNum)
	wantNumber(t, call(t, "QUARTILE.EXC", nums(1, 2, 3, 4, 5, 6, 7), value.Number(1)), 2)
	wantError(t, call(t, "QUARTILE.EXC", nums(1, 2, 3, 4, 5, 6, 7), value.Number(0)), value.KindNum)
}

func TestPercentRank(t *testing.T) {
	data := nums(1, 2, 3, 4, 5)
	wantNumber(t, call(t, "PERCENTRANK", data, value.Number(3)), 0.5)
	wantNumber(t, call(t, "PERCENTRANK.INC", data, value.Number(3.5)), 0.875)
	wantNumber(t, call(t, "PERCENTRANK.EXC", data, value.Number(3)), 0.5)
	wantError(t, call(t, "PERCENTRANK", data, value.Number(0)), value.KindNA)
}

func TestWorkdayIntl(t *testing.T) {
	fri := call(t, "DATE", value.Number(2024), value.Number(1), value.Number(5))
	mon := call(t, "DATE", value.Number(2024), value.Number(1), value.Number(8))
	sat := call(t, "DATE", value.Number(2024), value.Number(1), value.Number(6))
	wantNumber(t, call(t, "WORKDAY.INTL", fri, value.Number(1)), float64(mon.(value.Number)))
	// Sunday-only weekend makes Saturday a workday
	wantNumber(t, call(t, "WORKDAY.INTL", fri, value.Number(1), value.Number(11)), float64(sat.(value.Number)))
	wantError(t, call(t, "WORKDAY.INTL", fri, value.Number(1), value.Text("1111111")), value.KindValue)
}

func TestNetworkdaysIntl(t *testing.T) {
	start := call(t, "DATE", value.Number(2024), value.Number(1), value.Number(1)) // Monday
	end := call(t, "DATE", value.Number(2024), value.Number(1), value.Number(7))
	wantNumber(t, call(t, "NETWORKDAYS.INTL", start, end), 5)
	wantNumber(t, call(t, "NETWORKDAYS.INTL", start, end, value.Text("1000000")), 6)
	wantError(t, call(t, "NETWORKDAYS.INTL", start, end, value.Number(8)), value.KindNum)
}

func TestBessel(t *testing.T) {
	wantNumberTol(t, call(t, "BESSELJ", value.Number(1), value.Number(0)), 0.7651976866, 1e-6)
	wantNumberTol(t, call(t, "BESSELY", value.Number(1), value.Number(0)), 0.0882569642, 1e-6)
	wantNumberTol(t, call(t, "BESSELI", value.Number(1), value.Number(0)), 1.2660658778, 1e-6)
	wantNumberTol(t, call(t, "BESSELK", value.Number(1), value.Number(0)), 0.4210244382, 1e-6)
	wantNumberTol(t, call(t, "BESSELI", value.Number(1.5), value.Number(2)), 0.3378346, 1e-5)
	wantNumberTol(t, call(t, "BESSELK", value.Number(1.5), value.Number(2)), 0.5836560, 1e-5)
	wantError(t, call(t, "BESSELY", value.Number(-1), value.Number(0)), value.KindNum)
	wantError(t, call(t, "BESSELJ", value.Number(1), value.Number(-1)), value.KindNum)
}

func TestCouponSchedule(t *testing.T) {
	settle := call(t, "DATE", value.Number(2024), value.Number(1), value.Number(1))
	mat := call(t, "DATE", value.Number(2026), value.Number(1), value.Number(1))
	july := call(t, "DATE", value.Number(2024), value.Number(7), value.Number(1))
	two := value.Number(2)
	wantNumber(t, call(t, "COUPNUM", settle, mat, two), 4)
	wantNumber(t, call(t, "COUPPCD", settle, mat, two), float64(settle.(value.Number)))
	wantNumber(t, call(t, "COUPNCD", settle, mat, two), float64(july.(value.Number)))
	wantNumber(t, call(t, "COUPDAYS", settle, mat, two), 180)
	wantNumber(t, call(t, "COUPDAYBS", settle, mat, two), 0)
	wantNumber(t, call(t, "COUPDAYSNC", settle, mat, two), 180)
	wantNumber(t, call(t, "COUPDAYS", settle, mat, two, value.Number(1)), 182)
	wantError(t, call(t, "COUPNUM", mat, settle, two), value.KindNum)
	wantError(t, call(t, "COUPNUM", settle, mat, value.Number(3)), value.KindNum)
}

func TestBondPriceYield(t *testing.T) {
	settle := call(t, "DATE", value.Number(2024), value.Number(1), value.Number(1))
	mat := call(t, "DATE", value.Number(2026), value.Number(1), value.Number(1))
	rate := value.Number(0.05)
	// coupon equal to yield prices at par
	price := call(t, "PRICE", settle, mat, rate, value.Number(0.05), value.Number(100), value.Number(2))
	wantNumberTol(t, price, 100, 1e-9)
	yld := call(t, "YIELD", settle, mat, rate, value.Number(100), value.Number(100), value.Number(2))
	wantNumberTol(t, yld, 0.05, 1e-6)
	lower := call(t, "PRICE", settle, mat, rate, value.Number(0.06), value.Number(100), value.Number(2))
	if float64(lower.(value.Number)) >= 100 {
		t.Fatalf("price at higher yield = %v, want below par", lower)
	}
}

func TestBondDuration(t *testing.T) {
	settle := call(t, "DATE", value.Number(2024), value.Number(1), value.Number(1))
	mat := call(t, "DATE", value.Number(2026), value.Number(1), value.Number(1))
	dur := call(t, "DURATION", settle, mat, value.Number(0.05), value.Number(0.05), value.Number(2))
	wantNumberTol(t, dur, 1.9280117816, 1e-6)
	mdur := call(t, "MDURATION", settle, mat, value.Number(0.05), value.Number(0.05), value.Number(2))
	wantNumberTol(t, mdur, 1.9280117816/1.025, 1e-6)
}
