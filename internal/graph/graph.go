// internal/graph/graph.go
package graph

import (
	"sort"

	"gridcalc/internal/cell"
)

// bandShift sets the row-tile size of the range index: ranges are
// bucketed into 256-row bands so a point query touches one band.
const bandShift = 8

// openRowThreshold: ranges taller than this (whole columns, huge
// rectangles) are kept in a per-sheet open list instead of being
// fanned out across thousands of bands.
const openRowThreshold = 1 << 16

// node is one formula cell's edge set.
type node struct {
	precedents map[cell.Address]struct{}
	dependents map[cell.Address]struct{}
	ranges     map[cell.Range]struct{}
}

// rangeEntry is an observed range and the formulas watching it.
type rangeEntry struct {
	rng       cell.Range
	observers map[cell.Address]struct{}
}

// sheetIndex answers "which ranges on this sheet cover a point".
type sheetIndex struct {
	bands map[uint32][]*rangeEntry
	open  []*rangeEntry
}

// Graph tracks cell-to-cell and cell-to-range dependencies plus the
// dirty and volatile sets the scheduler works from.
type Graph struct {
	nodes    map[cell.Address]*node
	entries  map[cell.Range]*rangeEntry
	sheets   map[cell.SheetID]*sheetIndex
	dirty    map[cell.Address]struct{}
	volatile map[cell.Address]struct{}
}

func New() *Graph {
	return &Graph{
		nodes:    map[cell.Address]*node{},
		entries:  map[cell.Range]*rangeEntry{},
		sheets:   map[cell.SheetID]*sheetIndex{},
		dirty:    map[cell.Address]struct{}{},
		volatile: map[cell.Address]struct{}{},
	}
}

func (g *Graph) getOrCreate(addr cell.Address) *node {
	if n, ok := g.nodes[addr]; ok {
		return n
	}
	n := &node{
		precedents: map[cell.Address]struct{}{},
		dependents: map[cell.Address]struct{}{},
		ranges:     map[cell.Range]struct{}{},
	}
	g.nodes[addr] = n
	return n
}

// SetPrecedents replaces a formula cell's input edges. Single-cell
// ranges are folded into plain cell edges.
func (g *Graph) SetPrecedents(addr cell.Address, cells []cell.Address, ranges []cell.Range) {
	g.ClearPrecedents(addr)
	n := g.getOrCreate(addr)
	for _, r := range ranges {
		if r.IsCell() {
			cells = append(cells, r.TopLeft())
			continue
		}
		n.ranges[r] = struct{}{}
		g.observeRange(addr, r)
	}
	for _, p := range cells {
		n.precedents[p] = struct{}{}
		g.getOrCreate(p).dependents[addr] = struct{}{}
	}
}

// ClearPrecedents drops a cell's input edges, leaving edges pointing
// at it intact.
func (g *Graph) ClearPrecedents(addr cell.Address) {
	n, ok := g.nodes[addr]
	if !ok {
		return
	}
	for p := range n.precedents {
		if pn, ok := g.nodes[p]; ok {
			delete(pn.dependents, addr)
			g.cleanup(p)
		}
	}
	n.precedents = map[cell.Address]struct{}{}
	for r := range n.ranges {
		g.unobserveRange(addr, r)
	}
	n.ranges = map[cell.Range]struct{}{}
	g.cleanup(addr)
}

// Remove drops a cell from the graph entirely.
func (g *Graph) Remove(addr cell.Address) {
	g.ClearPrecedents(addr)
	if n, ok := g.nodes[addr]; ok {
		for d := range n.dependents {
			if dn, ok := g.nodes[d]; ok {
				delete(dn.precedents, addr)
			}
		}
		delete(g.nodes, addr)
	}
	delete(g.dirty, addr)
	delete(g.volatile, addr)
}

func (g *Graph) cleanup(addr cell.Address) {
	n, ok := g.nodes[addr]
	if !ok {
		return
	}
	if len(n.precedents) == 0 && len(n.dependents) == 0 && len(n.ranges) == 0 {
		delete(g.nodes, addr)
	}
}

func (g *Graph) sheet(id cell.SheetID) *sheetIndex {
	si, ok := g.sheets[id]
	if !ok {
		si = &sheetIndex{bands: map[uint32][]*rangeEntry{}}
		g.sheets[id] = si
	}
	return si
}

func (g *Graph) observeRange(addr cell.Address, r cell.Range) {
	e, ok := g.entries[r]
	if ok {
		e.observers[addr] = struct{}{}
		return
	}
	e = &rangeEntry{rng: r, observers: map[cell.Address]struct{}{addr: {}}}
	g.entries[r] = e
	si := g.sheet(r.Sheet)
	if r.Rows() > openRowThreshold {
		si.open = append(si.open, e)
		return
	}
	for band := r.StartRow >> bandShift; band <= r.EndRow>>bandShift; band++ {
		si.bands[band] = append(si.bands[band], e)
	}
}

func (g *Graph) unobserveRange(addr cell.Address, r cell.Range) {
	e, ok := g.entries[r]
	if !ok {
		return
	}
	delete(e.observers, addr)
	if len(e.observers) > 0 {
		return
	}
	delete(g.entries, r)
	si := g.sheet(r.Sheet)
	if r.Rows() > openRowThreshold {
		si.open = dropEntry(si.open, e)
		return
	}
	for band := r.StartRow >> bandShift; band <= r.EndRow>>bandShift; band++ {
		si.bands[band] = dropEntry(si.bands[band], e)
		if len(si.bands[band]) == 0 {
			delete(si.bands, band)
		}
	}
}

func dropEntry(list []*rangeEntry, e *rangeEntry) []*rangeEntry {
	for i, x := range list {
		if x == e {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// Observers returns the formulas that directly read addr: plain cell
// dependents plus observers of any range covering addr.
func (g *Graph) Observers(addr cell.Address) []cell.Address {
	seen := map[cell.Address]struct{}{}
	if n, ok := g.nodes[addr]; ok {
		for d := range n.dependents {
			seen[d] = struct{}{}
		}
	}
	if si, ok := g.sheets[addr.Sheet]; ok {
		for _, e := range si.bands[addr.Row>>bandShift] {
			if e.rng.Contains(addr) {
				for o := range e.observers {
					seen[o] = struct{}{}
				}
			}
		}
		for _, e := range si.open {
			if e.rng.Contains(addr) {
				for o := range e.observers {
					seen[o] = struct{}{}
				}
			}
		}
	}
	out := make([]cell.Address, 0, len(seen))
	for a := range seen {
		out = append(out, a)
	}
	SortAddresses(out)
	return out
}

// Precedents lists a cell's direct inputs, single cells only.
func (g *Graph) Precedents(addr cell.Address) []cell.Address {
	n, ok := g.nodes[addr]
	if !ok {
		return nil
	}
	out := make([]cell.Address, 0, len(n.precedents))
	for p := range n.precedents {
		out = append(out, p)
	}
	SortAddresses(out)
	return out
}

// RangePrecedents lists the ranges a cell reads.
func (g *Graph) RangePrecedents(addr cell.Address) []cell.Range {
	n, ok := g.nodes[addr]
	if !ok {
		return nil
	}
	out := make([]cell.Range, 0, len(n.ranges))
	for r := range n.ranges {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool {
		x, y := out[a], out[b]
		if x.Sheet != y.Sheet {
			return x.Sheet < y.Sheet
		}
		if x.StartRow != y.StartRow {
			return x.StartRow < y.StartRow
		}
		return x.StartCol < y.StartCol
	})
	return out
}

// MarkDirty marks addr and, transitively, everything observing it.
func (g *Graph) MarkDirty(addr cell.Address) {
	if _, done := g.dirty[addr]; done {
		return
	}
	queue := []cell.Address{addr}
	g.dirty[addr] = struct{}{}
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]
		for _, o := range g.Observers(a) {
			if _, done := g.dirty[o]; !done {
				g.dirty[o] = struct{}{}
				queue = append(queue, o)
			}
		}
	}
}

// IsDirty reports whether a cell awaits recalculation.
func (g *Graph) IsDirty(addr cell.Address) bool {
	_, ok := g.dirty[addr]
	return ok
}

// ClearDirty removes one cell from the dirty set.
func (g *Graph) ClearDirty(addr cell.Address) {
	delete(g.dirty, addr)
}

// Dirty returns the dirty set in deterministic order.
func (g *Graph) Dirty() []cell.Address {
	out := make([]cell.Address, 0, len(g.dirty))
	for a := range g.dirty {
		out = append(out, a)
	}
	SortAddresses(out)
	return out
}

// SetVolatile marks or unmarks a cell as volatile.
func (g *Graph) SetVolatile(addr cell.Address, v bool) {
	if v {
		g.volatile[addr] = struct{}{}
	} else {
		delete(g.volatile, addr)
	}
}

// SeedVolatile adds every volatile cell (and its observers) to the
// dirty set; called at the start of each recalc pass.
func (g *Graph) SeedVolatile() {
	for a := range g.volatile {
		g.MarkDirty(a)
	}
}

// Order produces an evaluation order for the current dirty set:
// precedent-first DFS restricted to dirty cells. Cells on a
// dependency cycle are returned separately and removed from the
// order.
func (g *Graph) Order() (order []cell.Address, cycles []cell.Address) {
	const (
		visiting = 1
		done     = 2
	)
	state := map[cell.Address]int{}
	onCycle := map[cell.Address]struct{}{}
	var stack []cell.Address

	var visit func(a cell.Address)
	visit = func(a cell.Address) {
		switch state[a] {
		case done:
			return
		case visiting:
			// everything from a's stack position onward is cyclic
			for i := len(stack) - 1; i >= 0; i-- {
				onCycle[stack[i]] = struct{}{}
				if stack[i] == a {
					break
				}
			}
			return
		}
		state[a] = visiting
		stack = append(stack, a)
		if n, ok := g.nodes[a]; ok {
			var pres []cell.Address
			for p := range n.precedents {
				if g.IsDirty(p) {
					pres = append(pres, p)
				}
			}
			for r := range n.ranges {
				for d := range g.dirty {
					if r.Contains(d) {
						pres = append(pres, d)
					}
				}
			}
			SortAddresses(pres)
			for _, p := range pres {
				visit(p)
			}
		}
		stack = stack[:len(stack)-1]
		state[a] = done
		order = append(order, a)
	}

	for _, a := range g.Dirty() {
		visit(a)
	}

	if len(onCycle) == 0 {
		return order, nil
	}
	clean := order[:0]
	for _, a := range order {
		if _, bad := onCycle[a]; !bad {
			clean = append(clean, a)
		}
	}
	for a := range onCycle {
		cycles = append(cycles, a)
	}
	SortAddresses(cycles)
	return clean, cycles
}

// SortAddresses orders addresses by sheet, then row, then column.
func SortAddresses(addrs []cell.Address) {
	sort.Slice(addrs, func(a, b int) bool {
		x, y := addrs[a], addrs[b]
		if x.Sheet != y.Sheet {
			return x.Sheet < y.Sheet
		}
		if x.Row != y.Row {
			return x.Row < y.Row
		}
		return x.Col < y.Col
	})
}
