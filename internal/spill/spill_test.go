// internal/spill/spill_test.go
package spill

import (
	"testing"

	"gridcalc/internal/cell"
)

func at(row, col uint32) cell.Address {
	return cell.Address{Row: row, Col: col}
}

func none(cell.Address) bool { return false }

func TestClaimAndRead(t *testing.T) {
	x := New()
	rect, cleared, ok := x.Claim(at(0, 0), 2, 3, cell.DefaultRows, cell.DefaultCols, none)
	if !ok || len(cleared) != 0 {
		t.Fatalf("claim failed: ok=%v cleared=%v", ok, cleared)
	}
	want := cell.Range{StartRow: 0, StartCol: 0, EndRow: 1, EndCol: 2}
	if rect != want {
		t.Fatalf("rect = %v, want %v", rect, want)
	}
	if !x.IsDerived(at(1, 2)) {
		t.Fatal("B2 region should be derived")
	}
	if x.IsDerived(at(0, 0)) {
		t.Fatal("origin is not derived")
	}
	if o, ok := x.RootOf(at(1, 1)); !ok || o != at(0, 0) {
		t.Fatalf("RootOf = %v, %v", o, ok)
	}
	if x.IsDerived(at(2, 0)) {
		t.Fatal("outside footprint")
	}
}

func TestClaimBlockedByContent(t *testing.T) {
	x := New()
	busy := func(a cell.Address) bool { return a == at(0, 1) }
	_, _, ok := x.Claim(at(0, 0), 1, 3, cell.DefaultRows, cell.DefaultCols, busy)
	if ok {
		t.Fatal("claim over occupied cell should fail")
	}
	if _, has := x.Rect(at(0, 0)); has {
		t.Fatal("failed claim must not record a footprint")
	}
}

func TestClaimBlockedByOtherSpill(t *testing.T) {
	x := New()
	if _, _, ok := x.Claim(at(0, 0), 1, 3, cell.DefaultRows, cell.DefaultCols, none); !ok {
		t.Fatal("first claim failed")
	}
	if _, _, ok := x.Claim(at(0, 2), 2, 1, cell.DefaultRows, cell.DefaultCols, none); ok {
		t.Fatal("overlapping claim should fail")
	}
}

func TestShrinkReportsCleared(t *testing.T) {
	x := New()
	x.Claim(at(0, 0), 1, 3, cell.DefaultRows, cell.DefaultCols, none)
	_, cleared, ok := x.Claim(at(0, 0), 1, 2, cell.DefaultRows, cell.DefaultCols, none)
	if !ok {
		t.Fatal("shrink failed")
	}
	if len(cleared) != 1 || cleared[0] != at(0, 2) {
		t.Fatalf("cleared = %v, want [C1]", cleared)
	}
	if x.IsDerived(at(0, 2)) {
		t.Fatal("C1 should have left the footprint")
	}
}

func TestGrow(t *testing.T) {
	x := New()
	x.Claim(at(0, 0), 1, 2, cell.DefaultRows, cell.DefaultCols, none)
	_, cleared, ok := x.Claim(at(0, 0), 2, 2, cell.DefaultRows, cell.DefaultCols, none)
	if !ok || len(cleared) != 0 {
		t.Fatalf("grow: ok=%v cleared=%v", ok, cleared)
	}
	if !x.IsDerived(at(1, 1)) {
		t.Fatal("grown cell missing")
	}
}

func TestFailureReleasesPriorClaim(t *testing.T) {
	x := New()
	x.Claim(at(0, 0), 1, 3, cell.DefaultRows, cell.DefaultCols, none)
	busy := func(a cell.Address) bool { return a == at(0, 1) }
	_, cleared, ok := x.Claim(at(0, 0), 1, 3, cell.DefaultRows, cell.DefaultCols, busy)
	if ok {
		t.Fatal("claim should fail")
	}
	if len(cleared) != 2 {
		t.Fatalf("prior footprint should be released, cleared = %v", cleared)
	}
	if x.IsDerived(at(0, 2)) {
		t.Fatal("stale derived cell")
	}
}

func TestClipFailure(t *testing.T) {
	x := New()
	origin := at(0, cell.DefaultCols-1)
	if _, _, ok := x.Claim(origin, 1, 2, cell.DefaultRows, cell.DefaultCols, none); ok {
		t.Fatal("claim past the sheet edge should fail")
	}
}

func TestRelease(t *testing.T) {
	x := New()
	x.Claim(at(0, 0), 1, 3, cell.DefaultRows, cell.DefaultCols, none)
	cleared := x.Release(at(0, 0))
	if len(cleared) != 2 {
		t.Fatalf("cleared = %v, want B1 and C1", cleared)
	}
	if _, has := x.RootOf(at(0, 0)); has {
		t.Fatal("origin still indexed after release")
	}
	if x.Release(at(0, 0)) != nil {
		t.Fatal("double release should be a no-op")
	}
}

func TestBlockers(t *testing.T) {
	x := New()
	x.Claim(at(0, 2), 1, 1, cell.DefaultRows, cell.DefaultCols, none)
	busy := func(a cell.Address) bool { return a == at(0, 1) }
	got := x.Blockers(at(0, 0), 1, 3, busy)
	if len(got) != 2 {
		t.Fatalf("blockers = %v, want B1 and C1", got)
	}
}
