// internal/engine/engine_test.go
package engine

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"gridcalc/internal/compiler"
	"gridcalc/internal/value"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	return New(Config{
		Now:  time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC),
		Rand: rand.New(rand.NewSource(1)),
	})
}

func set(t *testing.T, e *Engine, ref string, input any) {
	t.Helper()
	if err := e.SetCell("", ref, input); err != nil {
		t.Fatalf("SetCell(%s, %v): %v", ref, input, err)
	}
}

func recalc(t *testing.T, e *Engine) []Delta {
	t.Helper()
	deltas, err := e.Recalculate(context.Background())
	if err != nil {
		t.Fatalf("Recalculate: %v", err)
	}
	return deltas
}

func wantDeltas(t *testing.T, got []Delta, want ...Delta) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("deltas mismatch (-want +got):\n%s", diff)
	}
}

func d(ref string, v value.Value) Delta {
	return Delta{Sheet: "Sheet1", Ref: ref, Value: v}
}

func valueAt(t *testing.T, e *Engine, ref string) value.Value {
	t.Helper()
	v, err := e.GetCellValue("", ref)
	if err != nil {
		t.Fatalf("GetCellValue(%s): %v", ref, err)
	}
	return v
}

func TestSimpleDependency(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 1)
	set(t, e, "A2", "=A1*2")
	wantDeltas(t, recalc(t, e), d("A2", value.Number(2)))

	set(t, e, "A1", 2)
	wantDeltas(t, recalc(t, e), d("A2", value.Number(4)))
}

func TestRowMajorOrdering(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 1)
	set(t, e, "B1", "=A1+1")
	set(t, e, "A2", "=A1*2")
	recalc(t, e)

	set(t, e, "A1", 2)
	wantDeltas(t, recalc(t, e),
		d("B1", value.Number(3)),
		d("A2", value.Number(4)))
}

func TestSpillShrink(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "=SEQUENCE(1,3)")
	wantDeltas(t, recalc(t, e),
		d("A1", value.Number(1)),
		d("B1", value.Number(2)),
		d("C1", value.Number(3)))

	set(t, e, "A1", "=SEQUENCE(1,2)")
	wantDeltas(t, recalc(t, e),
		d("A1", value.Number(1)),
		d("B1", value.Number(2)),
		d("C1", value.Blank{}))
}

func TestSpillBlock(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "=SEQUENCE(1,3)")
	recalc(t, e)

	set(t, e, "B1", 99)
	wantDeltas(t, recalc(t, e),
		d("A1", value.Err(value.KindSpill)),
		d("C1", value.Blank{}))

	if v := valueAt(t, e, "B1"); v != value.Number(99) {
		t.Fatalf("B1 = %v", v)
	}
}

func TestSumIfs(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 1)
	set(t, e, "A2", 2)
	set(t, e, "A3", 3)
	set(t, e, "B1", "x")
	set(t, e, "B2", "y")
	set(t, e, "B3", "x")
	set(t, e, "C1", `=SUMIFS(A1:A3,B1:B3,"x")`)
	wantDeltas(t, recalc(t, e), d("C1", value.Number(4)))
}

func TestCircularClearedOnEdit(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "=A2")
	set(t, e, "A2", "=A1")
	wantDeltas(t, recalc(t, e),
		d("A1", value.Err(value.KindNum)),
		d("A2", value.Err(value.KindNum)))

	set(t, e, "A1", 1)
	wantDeltas(t, recalc(t, e), d("A2", value.Number(1)))
}

func TestIterativeCycle(t *testing.T) {
	e := New(Config{Iterative: true, MaxIterations: 200, MaxChange: 1e-9})
	// x = (x+10)/2 converges to 10
	set(t, e, "A1", "=(A1+10)/2")
	recalc(t, e)
	v, ok := valueAt(t, e, "A1").(value.Number)
	if !ok || float64(v) < 9.999 || float64(v) > 10.001 {
		t.Fatalf("A1 = %v, want ~10", v)
	}
}

func TestClearRoundTrip(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "=SEQUENCE(1,3)")
	recalc(t, e)

	if err := e.ClearCell("", "A1"); err != nil {
		t.Fatal(err)
	}
	recalc(t, e)
	for _, ref := range []string{"A1", "B1", "C1"} {
		if v := valueAt(t, e, ref); !isBlank(v) {
			t.Fatalf("%s = %v after clear", ref, v)
		}
	}
	if dirty, _ := e.IsDirty("", "A1"); dirty {
		t.Fatal("A1 still dirty after recalc")
	}
	if _, ok, _ := e.SpillRangeAt("", "A1"); ok {
		t.Fatal("spill survived clearing its origin")
	}
}

func TestDirtyMonotone(t *testing.T) {
	// the same pair of writes in either order yields the same state
	run := func(flip bool) []Delta {
		e := newEngine(t)
		set(t, e, "A1", 1)
		set(t, e, "B1", 2)
		set(t, e, "C1", "=A1+B1")
		set(t, e, "D1", "=C1*2")
		recalc(t, e)
		writes := [][2]any{{"A1", 10}, {"B1", 20}}
		if flip {
			writes[0], writes[1] = writes[1], writes[0]
		}
		for _, w := range writes {
			set(t, e, w[0].(string), w[1])
		}
		return recalc(t, e)
	}
	if diff := cmp.Diff(run(false), run(true)); diff != "" {
		t.Fatalf("write order changed the outcome:\n%s", diff)
	}
}

func TestDeltaMinimality(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 5)
	set(t, e, "B1", "=A1>0")
	set(t, e, "C1", "=A1*2")
	recalc(t, e)

	// B1 stays TRUE, only C1 changes
	set(t, e, "A1", 7)
	wantDeltas(t, recalc(t, e), d("C1", value.Number(14)))
}

func TestNoRecomputeWhenClean(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 1)
	set(t, e, "B1", "=A1+1")
	recalc(t, e)
	wantDeltas(t, recalc(t, e))
}

func TestVolatileRecomputes(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "=RAND()")
	recalc(t, e)
	first := valueAt(t, e, "A1")
	recalc(t, e)
	second := valueAt(t, e, "A1")
	if sameDisplayed(first, second) {
		t.Fatalf("RAND did not recompute: %v then %v", first, second)
	}
}

func TestCancellation(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 1)
	set(t, e, "A2", "=A1+1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Recalculate(ctx); err == nil {
		t.Fatal("cancelled recalc returned nil error")
	}
	if dirty, _ := e.IsDirty("", "A2"); !dirty {
		t.Fatal("cancelled cell lost its dirty mark")
	}
	// a later recalc finishes the work
	deltas, err := e.Recalculate(context.Background())
	if err != nil || len(deltas) == 0 {
		t.Fatalf("follow-up recalc: %v %v", deltas, err)
	}
}

func TestCrossSheet(t *testing.T) {
	e := newEngine(t)
	if err := e.AddSheet("Data"); err != nil {
		t.Fatal(err)
	}
	if err := e.SetCell("Data", "A1", 5); err != nil {
		t.Fatal(err)
	}
	set(t, e, "A1", "=Data!A1*3")
	recalc(t, e)
	if v := valueAt(t, e, "A1"); v != value.Number(15) {
		t.Fatalf("A1 = %v", v)
	}

	// editing the other sheet propagates across
	if err := e.SetCell("Data", "A1", 7); err != nil {
		t.Fatal(err)
	}
	wantDeltas(t, recalc(t, e), d("A1", value.Number(21)))
}

func TestRenameSheetRewrites(t *testing.T) {
	e := newEngine(t)
	e.AddSheet("Data")
	e.SetCell("Data", "A1", 5)
	set(t, e, "A1", "=Data!A1*2")
	recalc(t, e)

	if err := e.RenameSheet("Data", "Numbers"); err != nil {
		t.Fatal(err)
	}
	info, _ := e.GetCell("", "A1")
	if info.Input != "=Numbers!A1*2" {
		t.Fatalf("input after rename = %q", info.Input)
	}
	e.SetCell("Numbers", "A1", 6)
	recalc(t, e)
	if v := valueAt(t, e, "A1"); v != value.Number(12) {
		t.Fatalf("A1 = %v", v)
	}
}

func TestDeleteSheetRefs(t *testing.T) {
	e := newEngine(t)
	e.AddSheet("Gone")
	e.SetCell("Gone", "A1", 5)
	set(t, e, "A1", "=Gone!A1*2")
	recalc(t, e)

	if err := e.DeleteSheet("Gone"); err != nil {
		t.Fatal(err)
	}
	recalc(t, e)
	v := valueAt(t, e, "A1")
	errv, ok := v.(value.Error)
	if !ok || errv.Kind != value.KindRef {
		t.Fatalf("A1 = %v, want #REF!", v)
	}
}

func TestInsertRows(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 1)
	set(t, e, "A3", 3)
	set(t, e, "B1", "=A1+A3")
	recalc(t, e)

	if err := e.InsertRows("", 1, 2); err != nil {
		t.Fatal(err)
	}
	recalc(t, e)
	// A3 moved to A5, the formula follows
	if v := valueAt(t, e, "A5"); v != value.Number(3) {
		t.Fatalf("A5 = %v", v)
	}
	info, _ := e.GetCell("", "B1")
	if info.Input != "=A1+A5" {
		t.Fatalf("rewritten input = %q", info.Input)
	}
	if v := valueAt(t, e, "B1"); v != value.Number(4) {
		t.Fatalf("B1 = %v", v)
	}
}

func TestDeleteRowsRefError(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 1)
	set(t, e, "A2", 2)
	set(t, e, "B1", "=A2*10")
	recalc(t, e)

	if err := e.DeleteRows("", 1, 1); err != nil {
		t.Fatal(err)
	}
	recalc(t, e)
	v := valueAt(t, e, "B1")
	errv, ok := v.(value.Error)
	if !ok || errv.Kind != value.KindRef {
		t.Fatalf("B1 = %v, want #REF!", v)
	}
}

func TestDeleteRowsShiftsRange(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 1)
	set(t, e, "A2", 2)
	set(t, e, "A3", 3)
	set(t, e, "B1", "=SUM(A1:A3)")
	recalc(t, e)

	if err := e.DeleteRows("", 1, 1); err != nil {
		t.Fatal(err)
	}
	recalc(t, e)
	if v := valueAt(t, e, "B1"); v != value.Number(4) {
		t.Fatalf("B1 = %v, want 4", v)
	}
	info, _ := e.GetCell("", "B1")
	if info.Input != "=SUM(A1:A2)" {
		t.Fatalf("rewritten input = %q", info.Input)
	}
}

func TestDefinedNames(t *testing.T) {
	e := newEngine(t)
	if err := e.DefineName("", "Rate", "0.5"); err != nil {
		t.Fatal(err)
	}
	set(t, e, "A1", "=Rate*10")
	recalc(t, e)
	if v := valueAt(t, e, "A1"); v != value.Number(5) {
		t.Fatalf("A1 = %v", v)
	}

	// redefinition dirties dependents
	if err := e.DefineName("", "Rate", "0.7"); err != nil {
		t.Fatal(err)
	}
	wantDeltas(t, recalc(t, e), d("A1", value.Number(7)))
}

func TestTables(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "Region")
	set(t, e, "B1", "Units")
	set(t, e, "A2", "east")
	set(t, e, "B2", 10)
	set(t, e, "A3", "west")
	set(t, e, "B3", 20)
	if err := e.SetTable("", "Sales", "A1:B3", true, false, []string{"Region", "Units"}); err != nil {
		t.Fatal(err)
	}
	set(t, e, "D1", "=SUM(Sales[Units])")
	recalc(t, e)
	if v := valueAt(t, e, "D1"); v != value.Number(30) {
		t.Fatalf("D1 = %v", v)
	}
}

func TestDerivedCellReads(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "=SEQUENCE(2,2)")
	recalc(t, e)

	if v := valueAt(t, e, "B2"); v != value.Number(4) {
		t.Fatalf("B2 = %v", v)
	}
	r, ok, err := e.SpillRangeAt("", "A1")
	if err != nil || !ok {
		t.Fatalf("SpillRangeAt: %v %v", ok, err)
	}
	if r.Rows() != 2 || r.Cols() != 2 {
		t.Fatalf("spill rect = %v", r)
	}

	// a formula reading a derived cell sees the projection
	set(t, e, "D1", "=B2*10")
	recalc(t, e)
	if v := valueAt(t, e, "D1"); v != value.Number(40) {
		t.Fatalf("D1 = %v", v)
	}
}

func TestAggregateOverSpillCells(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "=SEQUENCE(1,3)")
	set(t, e, "A2", "=SUM(A1:C1)")
	set(t, e, "A3", "=SUM(C:C)")
	recalc(t, e)
	// B1 and C1 are spill-derived, not stored; the range reads must
	// still see them.
	if v := valueAt(t, e, "A2"); v != value.Number(6) {
		t.Fatalf("A2 = %v", v)
	}
	if v := valueAt(t, e, "A3"); v != value.Number(3) {
		t.Fatalf("A3 = %v", v)
	}
}

func TestSpillRefOperator(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "=SEQUENCE(1,3)")
	set(t, e, "A2", "=SUM(A1#)")
	recalc(t, e)
	if v := valueAt(t, e, "A2"); v != value.Number(6) {
		t.Fatalf("A2 = %v", v)
	}
}

func TestBytecodeReport(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", "=1+2")
	set(t, e, "A2", "=INDIRECT(\"A1\")")
	set(t, e, "A3", "=LET(x,1,x+1)")
	recalc(t, e)

	report := e.BytecodeReport(0)
	if len(report) != 2 {
		t.Fatalf("report = %v", report)
	}
	if report[0].Ref != "A2" || report[0].Reason != compiler.ReasonDynamicReferenceNeeded {
		t.Fatalf("report[0] = %v", report[0])
	}
	if report[1].Ref != "A3" || report[1].Reason != compiler.ReasonLambdaBody {
		t.Fatalf("report[1] = %v", report[1])
	}
}

func TestVMAndWalkerAgreeInEngine(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 3)
	set(t, e, "A2", 4)
	// compiled path
	set(t, e, "B1", "=A1*A2+1")
	// walker path (LET is never compiled)
	set(t, e, "B2", "=LET(x,A1*A2,x+1)")
	recalc(t, e)
	if v1, v2 := valueAt(t, e, "B1"), valueAt(t, e, "B2"); !sameDisplayed(v1, v2) {
		t.Fatalf("paths disagree: %v vs %v", v1, v2)
	}
}

func TestStampInvalidationInEngine(t *testing.T) {
	e := newEngine(t)
	set(t, e, "A1", 2)
	set(t, e, "B1", "=A1*10")
	recalc(t, e)

	if err := e.SetSheetDimensions("", 1000, 100); err != nil {
		t.Fatal(err)
	}
	set(t, e, "A1", 3)
	wantDeltas(t, recalc(t, e), d("B1", value.Number(30)))
}

func TestDimensionValidation(t *testing.T) {
	e := newEngine(t)
	if err := e.SetSheetDimensions("", 10, 10); err != nil {
		t.Fatal(err)
	}
	if err := e.SetCell("", "A11", 1); err == nil {
		t.Fatal("write outside dimensions accepted")
	}
	if err := e.SetCell("", "ZZ1", 1); err == nil {
		t.Fatal("write outside dimensions accepted")
	}
}

func TestParseErrorRejected(t *testing.T) {
	e := newEngine(t)
	if err := e.SetCellFormula("", "A1", "=SUM(1,"); err == nil {
		t.Fatal("malformed formula accepted")
	}
	// the failed write left no cell behind
	if v := valueAt(t, e, "A1"); !isBlank(v) {
		t.Fatalf("A1 = %v", v)
	}
}

func TestSetRange(t *testing.T) {
	e := newEngine(t)
	err := e.SetRange("", "A1:B2", [][]any{
		{1, 2},
		{3, nil},
	})
	if err != nil {
		t.Fatal(err)
	}
	set(t, e, "C1", "=SUM(A1:B2)")
	recalc(t, e)
	if v := valueAt(t, e, "C1"); v != value.Number(6) {
		t.Fatalf("C1 = %v", v)
	}
	if v := valueAt(t, e, "B2"); !isBlank(v) {
		t.Fatalf("B2 = %v", v)
	}
}
