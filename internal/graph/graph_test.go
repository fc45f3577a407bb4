// internal/graph/graph_test.go
package graph

import (
	"testing"

	"gridcalc/internal/cell"
)

func addr(row, col uint32) cell.Address {
	return cell.Address{Row: row, Col: col}
}

func rng(r1, c1, r2, c2 uint32) cell.Range {
	return cell.Range{StartRow: r1, StartCol: c1, EndRow: r2, EndCol: c2}
}

func TestCellEdges(t *testing.T) {
	g := New()
	// B1 = A1+A2
	b1 := addr(0, 1)
	g.SetPrecedents(b1, []cell.Address{addr(0, 0), addr(1, 0)}, nil)

	obs := g.Observers(addr(0, 0))
	if len(obs) != 1 || obs[0] != b1 {
		t.Fatalf("observers of A1 = %v, want [B1]", obs)
	}
	pres := g.Precedents(b1)
	if len(pres) != 2 {
		t.Fatalf("precedents = %v, want 2", pres)
	}
}

func TestReplacePrecedents(t *testing.T) {
	g := New()
	b1 := addr(0, 1)
	g.SetPrecedents(b1, []cell.Address{addr(0, 0)}, nil)
	g.SetPrecedents(b1, []cell.Address{addr(5, 0)}, nil)

	if obs := g.Observers(addr(0, 0)); len(obs) != 0 {
		t.Fatalf("stale edge survived: %v", obs)
	}
	if obs := g.Observers(addr(5, 0)); len(obs) != 1 {
		t.Fatalf("new edge missing: %v", obs)
	}
}

func TestRangeObservers(t *testing.T) {
	g := New()
	c1 := addr(0, 2)
	g.SetPrecedents(c1, nil, []cell.Range{rng(0, 0, 999, 0)})

	if obs := g.Observers(addr(500, 0)); len(obs) != 1 || obs[0] != c1 {
		t.Fatalf("range point query = %v, want [C1]", obs)
	}
	if obs := g.Observers(addr(500, 1)); len(obs) != 0 {
		t.Fatalf("column B should have no observers, got %v", obs)
	}
	if obs := g.Observers(addr(1000, 0)); len(obs) != 0 {
		t.Fatalf("row past the range should have no observers, got %v", obs)
	}
}

func TestOpenBandWholeColumn(t *testing.T) {
	g := New()
	c1 := addr(0, 2)
	g.SetPrecedents(c1, nil, []cell.Range{rng(0, 0, cell.DefaultRows-1, 0)})

	if obs := g.Observers(addr(1_000_000, 0)); len(obs) != 1 {
		t.Fatalf("whole-column observer missing: %v", obs)
	}
	g.ClearPrecedents(c1)
	if obs := g.Observers(addr(1_000_000, 0)); len(obs) != 0 {
		t.Fatalf("open band not released: %v", obs)
	}
}

func TestSingleCellRangeFolds(t *testing.T) {
	g := New()
	b1 := addr(0, 1)
	g.SetPrecedents(b1, nil, []cell.Range{rng(3, 3, 3, 3)})
	if pres := g.Precedents(b1); len(pres) != 1 || pres[0] != addr(3, 3) {
		t.Fatalf("1x1 range should fold to a cell edge, got %v", pres)
	}
	if rp := g.RangePrecedents(b1); len(rp) != 0 {
		t.Fatalf("no range precedents expected, got %v", rp)
	}
}

func TestDirtyPropagation(t *testing.T) {
	g := New()
	// A1 -> B1 -> C1, and D1 watches A1:A10
	g.SetPrecedents(addr(0, 1), []cell.Address{addr(0, 0)}, nil)
	g.SetPrecedents(addr(0, 2), []cell.Address{addr(0, 1)}, nil)
	g.SetPrecedents(addr(0, 3), nil, []cell.Range{rng(0, 0, 9, 0)})

	g.MarkDirty(addr(0, 0))
	want := []cell.Address{addr(0, 0), addr(0, 1), addr(0, 2), addr(0, 3)}
	got := g.Dirty()
	if len(got) != len(want) {
		t.Fatalf("dirty = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("dirty = %v, want %v", got, want)
		}
	}
}

func TestDirtyMonotone(t *testing.T) {
	build := func() *Graph {
		g := New()
		g.SetPrecedents(addr(0, 1), []cell.Address{addr(0, 0)}, nil)
		g.SetPrecedents(addr(1, 1), []cell.Address{addr(1, 0)}, nil)
		g.SetPrecedents(addr(2, 1), []cell.Address{addr(0, 1), addr(1, 1)}, nil)
		return g
	}
	g1 := build()
	g1.MarkDirty(addr(0, 0))
	g1.MarkDirty(addr(1, 0))
	g2 := build()
	g2.MarkDirty(addr(1, 0))
	g2.MarkDirty(addr(0, 0))

	d1, d2 := g1.Dirty(), g2.Dirty()
	if len(d1) != len(d2) {
		t.Fatalf("order dependence: %v vs %v", d1, d2)
	}
	for i := range d1 {
		if d1[i] != d2[i] {
			t.Fatalf("order dependence: %v vs %v", d1, d2)
		}
	}
}

func TestTopoOrder(t *testing.T) {
	g := New()
	// C1 = B1+1, B1 = A1+1
	g.SetPrecedents(addr(0, 1), []cell.Address{addr(0, 0)}, nil)
	g.SetPrecedents(addr(0, 2), []cell.Address{addr(0, 1)}, nil)
	g.MarkDirty(addr(0, 0))

	order, cycles := g.Order()
	if len(cycles) != 0 {
		t.Fatalf("unexpected cycles %v", cycles)
	}
	pos := map[cell.Address]int{}
	for i, a := range order {
		pos[a] = i
	}
	if !(pos[addr(0, 0)] < pos[addr(0, 1)] && pos[addr(0, 1)] < pos[addr(0, 2)]) {
		t.Fatalf("bad order %v", order)
	}
}

func TestCycleDetection(t *testing.T) {
	g := New()
	// A1 = B1, B1 = A1, C1 = B1
	g.SetPrecedents(addr(0, 0), []cell.Address{addr(0, 1)}, nil)
	g.SetPrecedents(addr(0, 1), []cell.Address{addr(0, 0)}, nil)
	g.SetPrecedents(addr(0, 2), []cell.Address{addr(0, 1)}, nil)
	g.MarkDirty(addr(0, 0))

	order, cycles := g.Order()
	if len(cycles) != 2 {
		t.Fatalf("cycles = %v, want A1 and B1", cycles)
	}
	for _, a := range order {
		if a == addr(0, 0) || a == addr(0, 1) {
			t.Fatalf("cycle member %v left in order", a)
		}
	}
	// C1 still evaluates (against the cycle members' error values)
	found := false
	for _, a := range order {
		if a == addr(0, 2) {
			found = true
		}
	}
	if !found {
		t.Fatal("C1 missing from order")
	}
}

func TestSelfReferenceCycle(t *testing.T) {
	g := New()
	g.SetPrecedents(addr(0, 0), []cell.Address{addr(0, 0)}, nil)
	g.MarkDirty(addr(0, 0))
	_, cycles := g.Order()
	if len(cycles) != 1 || cycles[0] != addr(0, 0) {
		t.Fatalf("cycles = %v, want [A1]", cycles)
	}
}

func TestVolatileSeeding(t *testing.T) {
	g := New()
	g.SetPrecedents(addr(0, 1), []cell.Address{addr(0, 0)}, nil)
	g.SetVolatile(addr(0, 0), true)

	g.SeedVolatile()
	if !g.IsDirty(addr(0, 0)) || !g.IsDirty(addr(0, 1)) {
		t.Fatalf("volatile seeding missed cells: %v", g.Dirty())
	}

	for _, a := range g.Dirty() {
		g.ClearDirty(a)
	}
	g.SetVolatile(addr(0, 0), false)
	g.SeedVolatile()
	if len(g.Dirty()) != 0 {
		t.Fatalf("unmarked volatile still seeds: %v", g.Dirty())
	}
}

func TestRemove(t *testing.T) {
	g := New()
	g.SetPrecedents(addr(0, 1), []cell.Address{addr(0, 0)}, nil)
	g.Remove(addr(0, 1))
	if obs := g.Observers(addr(0, 0)); len(obs) != 0 {
		t.Fatalf("edges survived removal: %v", obs)
	}
}
