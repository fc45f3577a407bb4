// internal/engine/recalc.go
package engine

import (
	"context"
	"math"
	"sort"

	"gridcalc/internal/cell"
	"gridcalc/internal/value"
	"gridcalc/internal/vm"
	"gridcalc/internal/workbook"
)

// maxRecalcPasses bounds spill-driven re-marking. Each pass drains the
// dirty set; spill footprint changes can seed the next one.
const maxRecalcPasses = 64

// Delta is one visible change produced by a recalc pass.
type Delta struct {
	Sheet string
	Ref   string
	Value value.Value
}

type calcState struct {
	pre        map[cell.Address]value.Value
	cleared    map[cell.Address]struct{}
	done       map[cell.Address]struct{}
	inProgress map[cell.Address]struct{}
}

func newCalcState() *calcState {
	return &calcState{
		pre:        make(map[cell.Address]value.Value),
		cleared:    make(map[cell.Address]struct{}),
		done:       make(map[cell.Address]struct{}),
		inProgress: make(map[cell.Address]struct{}),
	}
}

// notePre records the displayed value of addr before its first
// modification this pass.
func (cs *calcState) notePre(addr cell.Address, v value.Value) {
	if _, seen := cs.pre[addr]; !seen {
		cs.pre[addr] = v
	}
}

// Recalculate drains the dirty set in dependency order and returns the
// visible changes. Cancellation between cells leaves the remaining
// cells dirty; the deltas produced so far are still returned.
func (e *Engine) Recalculate(ctx context.Context) ([]Delta, error) {
	e.calc = newCalcState()
	defer func() { e.calc = nil }()

	e.g.SeedVolatile()

	var cancelErr error
passes:
	for pass := 0; pass < maxRecalcPasses; pass++ {
		order, cycles := e.g.Order()
		if len(order) == 0 && len(cycles) == 0 {
			break
		}
		e.resolveCycles(cycles)
		for _, addr := range order {
			if ctx != nil && ctx.Err() != nil {
				cancelErr = ctx.Err()
				break passes
			}
			e.force(addr)
		}
	}
	return e.collectDeltas(), cancelErr
}

// force recomputes addr now if it is still dirty. Re-entry through a
// dynamic reference reads the last stored value instead of recursing.
func (e *Engine) force(addr cell.Address) {
	cs := e.calc
	if cs == nil {
		return
	}
	if _, ok := cs.done[addr]; ok {
		return
	}
	if !e.g.IsDirty(addr) {
		return
	}
	if _, ok := cs.inProgress[addr]; ok {
		return
	}
	e.recompute(addr)
}

func (e *Engine) recompute(addr cell.Address) {
	cs := e.calc
	cs.inProgress[addr] = struct{}{}
	defer delete(cs.inProgress, addr)

	cs.notePre(addr, e.displayed(addr))
	if s, ok := e.wb.SheetByID(addr.Sheet); ok {
		if c, exists := s.Cell(addr.Row, addr.Col); exists {
			if c.IsFormula() {
				e.applyResult(addr, c, e.evalFormula(addr, c))
			} else {
				e.releaseSpill(addr)
				c.Value = c.Literal
			}
		} else {
			e.releaseSpill(addr)
		}
	}
	cs.done[addr] = struct{}{}
	e.g.ClearDirty(addr)
}

// evalFormula runs the bytecode fast path when a program is cached,
// falling back to the tree walker on a bailout and recompiling so the
// next pass can try again.
func (e *Engine) evalFormula(addr cell.Address, c *workbook.Cell) value.Value {
	if c.Program != nil {
		if v, ok := vm.New(e.reg, e).Run(c.Program, addr); ok {
			return v
		}
		c.Program, c.Reason = e.comp.Compile(c.Formula, addr)
	}
	return e.ev.Eval(c.Formula, addr)
}

// applyResult stores an evaluation result, claiming or releasing spill
// footprints as the shape demands.
func (e *Engine) applyResult(addr cell.Address, c *workbook.Cell, v value.Value) {
	arr, isArr := v.(*value.Array)
	if isArr && arr.Rows == 1 && arr.Cols == 1 {
		v, isArr = arr.At(0, 0), false
	}
	if !isArr {
		e.releaseSpill(addr)
		c.Value = v
		return
	}

	cs := e.calc
	if old, had := e.spills.Rect(addr); had {
		e.noteRect(old)
	}
	s, ok := e.wb.SheetByID(addr.Sheet)
	if !ok {
		c.Value = value.Err(value.KindRef)
		return
	}
	e.noteCandidate(addr, arr, s)

	occupied := func(a cell.Address) bool {
		sh, ok := e.wb.SheetByID(a.Sheet)
		if !ok {
			return true
		}
		_, exists := sh.Cell(a.Row, a.Col)
		return exists
	}
	rect, cleared, ok := e.spills.Claim(addr, arr.Rows, arr.Cols, s.Rows, s.Cols, occupied)
	e.markCleared(cleared, occupied)
	if !ok {
		c.Value = value.Err(value.KindSpill)
		return
	}
	c.Value = arr
	// wake observers of derived cells whose projection changed
	rect.Cells(func(a cell.Address) bool {
		if a != addr {
			if pre, seen := cs.pre[a]; !seen || !sameDisplayed(pre, e.displayed(a)) {
				e.g.MarkDirty(a)
			}
		}
		return true
	})
}

// releaseSpill drops any footprint anchored at addr, recording the
// freed cells for delta emission and waking their observers.
func (e *Engine) releaseSpill(addr cell.Address) {
	rect, ok := e.spills.Rect(addr)
	if !ok {
		return
	}
	e.noteRect(rect)
	occupied := func(a cell.Address) bool {
		sh, ok := e.wb.SheetByID(a.Sheet)
		if !ok {
			return true
		}
		_, exists := sh.Cell(a.Row, a.Col)
		return exists
	}
	e.markCleared(e.spills.Release(addr), occupied)
}

func (e *Engine) markCleared(cleared []cell.Address, occupied func(cell.Address) bool) {
	for _, a := range cleared {
		if !occupied(a) {
			e.calc.cleared[a] = struct{}{}
		}
		e.g.MarkDirty(a)
	}
}

// noteRect records pre-values for every cell of a footprint before it
// is disturbed.
func (e *Engine) noteRect(r cell.Range) {
	cs := e.calc
	r.Cells(func(a cell.Address) bool {
		cs.notePre(a, e.displayed(a))
		return true
	})
}

// noteCandidate records pre-values for the rectangle a claim is about
// to cover, clipped to the sheet.
func (e *Engine) noteCandidate(origin cell.Address, arr *value.Array, s *workbook.Sheet) {
	endRow := origin.Row + uint32(arr.Rows) - 1
	endCol := origin.Col + uint32(arr.Cols) - 1
	if endRow >= s.Rows || endCol >= s.Cols || endRow < origin.Row || endCol < origin.Col {
		return
	}
	e.noteRect(cell.Range{Sheet: origin.Sheet, StartRow: origin.Row, StartCol: origin.Col, EndRow: endRow, EndCol: endCol})
}

// resolveCycles settles circular cells: #NUM! when iteration is off,
// fixed-point iteration otherwise.
func (e *Engine) resolveCycles(cycles []cell.Address) {
	if len(cycles) == 0 {
		return
	}
	cs := e.calc
	for _, a := range cycles {
		cs.notePre(a, e.displayed(a))
		cs.done[a] = struct{}{}
		e.g.ClearDirty(a)
	}
	if !e.cfg.Iterative {
		for _, a := range cycles {
			if s, ok := e.wb.SheetByID(a.Sheet); ok {
				if c, exists := s.Cell(a.Row, a.Col); exists && c.IsFormula() {
					e.releaseSpill(a)
					c.Value = value.Err(value.KindNum)
				}
			}
		}
		return
	}
	for iter := 0; iter < e.cfg.MaxIterations; iter++ {
		worst := 0.0
		for _, a := range cycles {
			s, ok := e.wb.SheetByID(a.Sheet)
			if !ok {
				continue
			}
			c, exists := s.Cell(a.Row, a.Col)
			if !exists || !c.IsFormula() {
				continue
			}
			old := e.displayed(a)
			e.applyResult(a, c, e.evalFormula(a, c))
			if d := changeBetween(old, e.displayed(a)); d > worst {
				worst = d
			}
		}
		if worst <= e.cfg.MaxChange {
			break
		}
	}
}

func changeBetween(a, b value.Value) float64 {
	an, aok := a.(value.Number)
	bn, bok := b.(value.Number)
	if aok && bok {
		return math.Abs(float64(an) - float64(bn))
	}
	if sameDisplayed(a, b) {
		return 0
	}
	return math.Inf(1)
}

// collectDeltas compares pre-values against current displayed values.
// Cells that left a spill footprint always report, so observers hear
// "value became blank" even when both sides read blank.
func (e *Engine) collectDeltas() []Delta {
	cs := e.calc
	var addrs []cell.Address
	for a := range cs.pre {
		addrs = append(addrs, a)
	}
	tab := make(map[cell.SheetID]int)
	for i, s := range e.wb.Sheets() {
		tab[s.ID] = i
	}
	sort.Slice(addrs, func(i, j int) bool {
		a, b := addrs[i], addrs[j]
		if a.Sheet != b.Sheet {
			return tab[a.Sheet] < tab[b.Sheet]
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	var out []Delta
	for _, a := range addrs {
		post := e.displayed(a)
		_, forced := cs.cleared[a]
		if !forced && sameDisplayed(cs.pre[a], post) {
			continue
		}
		if forced && !isBlank(post) && sameDisplayed(cs.pre[a], post) {
			continue
		}
		out = append(out, Delta{Sheet: e.sheetName(a.Sheet), Ref: a.A1(), Value: post})
	}
	return out
}

func isBlank(v value.Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(value.Blank)
	return ok
}

// sameDisplayed is strict identity for delta purposes: same type, same
// content. The looser comparison rules of formula equality do not
// apply here.
func sameDisplayed(a, b value.Value) bool {
	if isBlank(a) && isBlank(b) {
		return true
	}
	switch x := a.(type) {
	case value.Number:
		y, ok := b.(value.Number)
		return ok && x == y
	case value.Text:
		y, ok := b.(value.Text)
		return ok && x == y
	case value.Bool:
		y, ok := b.(value.Bool)
		return ok && x == y
	case value.Error:
		y, ok := b.(value.Error)
		return ok && x.Kind == y.Kind
	case *value.Array:
		y, ok := b.(*value.Array)
		if !ok || x.Rows != y.Rows || x.Cols != y.Cols {
			return false
		}
		for i := range x.Data {
			if !sameDisplayed(x.Data[i], y.Data[i]) {
				return false
			}
		}
		return true
	case *value.Lambda:
		return false
	}
	return false
}
