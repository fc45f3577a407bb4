// internal/eval/deps.go
package eval

import (
	"strings"

	"gridcalc/internal/cell"
	"gridcalc/internal/parser"
	"gridcalc/internal/value"
)

// Precedents is the statically known input set of a formula, feeding
// the dependency graph.
type Precedents struct {
	Ranges []cell.Range
	Names  []string
	// Dynamic marks formulas whose true inputs can only be known at
	// evaluation time (INDIRECT, OFFSET); the scheduler treats them
	// like volatile cells.
	Dynamic  bool
	Volatile bool
}

// Precedents walks a formula and resolves every static reference it
// contains against the current workbook layout.
func (e *Evaluator) Precedents(expr parser.Expr, caller cell.Address) Precedents {
	p := Precedents{}
	seen := map[string]bool{}
	e.collect(expr, caller, &p, seen, 0)
	return p
}

func (e *Evaluator) collect(expr parser.Expr, caller cell.Address, p *Precedents, seenNames map[string]bool, depth int) {
	if depth > maxCallDepth {
		return
	}
	parser.Walk(expr, func(n parser.Expr) bool {
		switch n := n.(type) {
		case *parser.Ref:
			if r, ok := e.staticRange(n.Sheet, n.HasSheet, caller, n.Row, n.Col, n.Row, n.Col, false, false); ok {
				p.Ranges = append(p.Ranges, r)
			}
		case *parser.Area:
			if r, ok := e.staticRange(n.Sheet, n.HasSheet, caller, n.StartRow, n.StartCol, n.EndRow, n.EndCol, n.WholeRow, n.WholeCol); ok {
				p.Ranges = append(p.Ranges, r)
			}
		case *parser.Ref3D:
			if ids, ok := e.Res.SheetSpan(n.FirstSheet, n.LastSheet); ok {
				for _, id := range ids {
					r := cell.Range{Sheet: id, StartRow: n.StartRow, StartCol: n.StartCol, EndRow: n.EndRow, EndCol: n.EndCol}
					p.Ranges = append(p.Ranges, r.Normalize())
				}
			}
		case *parser.StructuredRef:
			e.collectStructured(n, caller, p)
			return false
		case *parser.Name:
			key := strings.ToUpper(n.Name)
			if seenNames[key] {
				return true
			}
			seenNames[key] = true
			p.Names = append(p.Names, key)
			scope := caller.Sheet
			if n.HasSheet {
				if id, ok := e.Res.SheetID(n.Sheet); ok {
					scope = id
				}
			}
			if def, ok := e.Res.NameExpr(n.Name, scope); ok {
				e.collect(def, caller, p, seenNames, depth+1)
			}
		case *parser.FuncCall:
			switch n.Name {
			case "INDIRECT", "OFFSET":
				p.Dynamic = true
			}
			if spec, ok := e.Reg.Lookup(n.Name); ok && spec.Volatile {
				p.Volatile = true
			}
		case *parser.SpillRef:
			// the spill extent changes with its anchor, so depend on
			// the anchor and treat the extent as dynamic
			p.Dynamic = true
		}
		return true
	})
}

func (e *Evaluator) staticRange(sheet string, hasSheet bool, caller cell.Address, sr, sc, er, ec uint32, wholeRow, wholeCol bool) (cell.Range, bool) {
	id := caller.Sheet
	if hasSheet {
		var ok bool
		id, ok = e.Res.SheetID(sheet)
		if !ok {
			return cell.Range{}, false
		}
	}
	r := cell.Range{Sheet: id, StartRow: sr, StartCol: sc, EndRow: er, EndCol: ec}
	rows, cols := e.Res.Dims(id)
	if wholeRow {
		r.StartCol, r.EndCol = 0, cols-1
	}
	if wholeCol {
		r.StartRow, r.EndRow = 0, rows-1
	}
	return r.Normalize(), true
}

func (e *Evaluator) collectStructured(n *parser.StructuredRef, caller cell.Address, p *Precedents) {
	st := &state{ev: e, caller: caller}
	switch v := st.evalStructured(n).(type) {
	case *value.Reference:
		p.Ranges = append(p.Ranges, v.Range)
	case *value.ReferenceUnion:
		p.Ranges = append(p.Ranges, v.Ranges...)
	}
}
