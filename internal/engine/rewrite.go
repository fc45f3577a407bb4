// internal/engine/rewrite.go
// AST rewriting for structural edits: sheet renames, sheet deletion,
// and row/column insertion or deletion.
package engine

import (
	"gridcalc/internal/cell"
	"gridcalc/internal/parser"
	"gridcalc/internal/value"
	"gridcalc/internal/workbook"
)

// gridEdit describes one row or column insertion or deletion.
type gridEdit struct {
	sheet string // name of the edited sheet
	rows  bool   // rows when true, columns otherwise
	at    uint32
	n     uint32
	del   bool
}

// shift maps a row or column index through the edit. gone is true when
// the index fell inside a deleted band.
func (ed gridEdit) shift(idx uint32) (next uint32, gone bool) {
	if ed.del {
		if idx >= ed.at && idx < ed.at+ed.n {
			return 0, true
		}
		if idx >= ed.at+ed.n {
			return idx - ed.n, false
		}
		return idx, false
	}
	if idx >= ed.at {
		return idx + ed.n, false
	}
	return idx, false
}

// shiftSpan maps an inclusive start/end pair, clamping partial overlap
// with a deleted band. gone is true when the whole span was deleted.
func (ed gridEdit) shiftSpan(start, end uint32) (a, b uint32, gone bool) {
	if ed.del {
		delEnd := ed.at + ed.n // exclusive
		if start >= ed.at && end < delEnd {
			return 0, 0, true
		}
		a, b = start, end
		if a >= delEnd {
			a -= ed.n
		} else if a >= ed.at {
			a = ed.at
		}
		if b >= delEnd {
			b -= ed.n
		} else if b >= ed.at {
			if ed.at == 0 {
				return 0, 0, true
			}
			b = ed.at - 1
		}
		return a, b, false
	}
	a, b = start, end
	if a >= ed.at {
		a += ed.n
	}
	if b >= ed.at {
		b += ed.n
	}
	return a, b, false
}

// shiftRange maps a stored range (used for table extents).
func (ed gridEdit) shiftRange(r cell.Range) cell.Range {
	if ed.rows {
		a, b, gone := ed.shiftSpan(r.StartRow, r.EndRow)
		if !gone {
			r.StartRow, r.EndRow = a, b
		}
	} else {
		a, b, gone := ed.shiftSpan(r.StartCol, r.EndCol)
		if !gone {
			r.StartCol, r.EndCol = a, b
		}
	}
	return r
}

func sameSheet(a, b string) bool {
	return workbook.NormalizeSheetName(a) == workbook.NormalizeSheetName(b)
}

// transform rebuilds expr bottom-up. fn may replace a node outright by
// returning (replacement, true); otherwise children are visited.
func transform(expr parser.Expr, fn func(parser.Expr) (parser.Expr, bool)) (parser.Expr, bool) {
	if expr == nil {
		return nil, false
	}
	if out, replaced := fn(expr); replaced {
		return out, true
	}
	switch e := expr.(type) {
	case *parser.FuncCall:
		args, changed := transformList(e.Args, fn)
		if changed {
			return &parser.FuncCall{Name: e.Name, Args: args}, true
		}
	case *parser.Invoke:
		callee, c1 := transform(e.Callee, fn)
		args, c2 := transformList(e.Args, fn)
		if c1 || c2 {
			return &parser.Invoke{Callee: callee, Args: args}, true
		}
	case *parser.Binary:
		l, c1 := transform(e.Left, fn)
		r, c2 := transform(e.Right, fn)
		if c1 || c2 {
			return &parser.Binary{Op: e.Op, Left: l, Right: r}, true
		}
	case *parser.Unary:
		op, changed := transform(e.Operand, fn)
		if changed {
			return &parser.Unary{Op: e.Op, Operand: op}, true
		}
	case *parser.Percent:
		op, changed := transform(e.Operand, fn)
		if changed {
			return &parser.Percent{Operand: op}, true
		}
	case *parser.SpillRef:
		op, changed := transform(e.Operand, fn)
		if changed {
			return &parser.SpillRef{Operand: op}, true
		}
	case *parser.ImplicitIntersect:
		op, changed := transform(e.Operand, fn)
		if changed {
			return &parser.ImplicitIntersect{Operand: op}, true
		}
	case *parser.ExternalRef:
		inner, changed := transform(e.Inner, fn)
		if changed {
			return &parser.ExternalRef{Book: e.Book, Inner: inner}, true
		}
	case *parser.ArrayLit:
		elems, changed := transformList(e.Elems, fn)
		if changed {
			return &parser.ArrayLit{Rows: e.Rows, Cols: e.Cols, Elems: elems}, true
		}
	case *parser.Union:
		items, changed := transformList(e.Items, fn)
		if changed {
			return &parser.Union{Items: items}, true
		}
	case *parser.LambdaLit:
		body, changed := transform(e.Body, fn)
		if changed {
			return &parser.LambdaLit{Params: e.Params, Body: body}, true
		}
	}
	return expr, false
}

func transformList(in []parser.Expr, fn func(parser.Expr) (parser.Expr, bool)) ([]parser.Expr, bool) {
	changed := false
	out := in
	for i, el := range in {
		next, c := transform(el, fn)
		if c && !changed {
			out = make([]parser.Expr, len(in))
			copy(out, in)
			changed = true
		}
		if changed {
			out[i] = next
		}
	}
	return out, changed
}

// renameSheetRefs rewrites sheet qualifiers from old to new.
func renameSheetRefs(expr parser.Expr, old, new string) (parser.Expr, bool) {
	return transform(expr, func(n parser.Expr) (parser.Expr, bool) {
		switch e := n.(type) {
		case *parser.Ref:
			if e.HasSheet && sameSheet(e.Sheet, old) {
				out := *e
				out.Sheet = new
				return &out, true
			}
		case *parser.Area:
			if e.HasSheet && sameSheet(e.Sheet, old) {
				out := *e
				out.Sheet = new
				return &out, true
			}
		case *parser.Ref3D:
			if sameSheet(e.FirstSheet, old) || sameSheet(e.LastSheet, old) {
				out := *e
				if sameSheet(out.FirstSheet, old) {
					out.FirstSheet = new
				}
				if sameSheet(out.LastSheet, old) {
					out.LastSheet = new
				}
				return &out, true
			}
		case *parser.Name:
			if e.HasSheet && sameSheet(e.Sheet, old) {
				out := *e
				out.Sheet = new
				return &out, true
			}
		}
		return nil, false
	})
}

// deleteSheetRefs degrades references into a deleted sheet to #REF!.
func deleteSheetRefs(expr parser.Expr, name string) (parser.Expr, bool) {
	refErr := &parser.ErrorLit{Kind: value.KindRef}
	return transform(expr, func(n parser.Expr) (parser.Expr, bool) {
		switch e := n.(type) {
		case *parser.Ref:
			if e.HasSheet && sameSheet(e.Sheet, name) {
				return refErr, true
			}
		case *parser.Area:
			if e.HasSheet && sameSheet(e.Sheet, name) {
				return refErr, true
			}
		case *parser.Ref3D:
			if sameSheet(e.FirstSheet, name) || sameSheet(e.LastSheet, name) {
				return refErr, true
			}
		case *parser.Name:
			if e.HasSheet && sameSheet(e.Sheet, name) {
				return refErr, true
			}
		}
		return nil, false
	})
}

// shiftRefs adjusts references for a row/column edit. home is the
// sheet the formula lives on, binding unqualified references.
func shiftRefs(expr parser.Expr, ed gridEdit, home string) (parser.Expr, bool) {
	refErr := &parser.ErrorLit{Kind: value.KindRef}
	targets := func(sheet string, has bool) bool {
		if has {
			return sameSheet(sheet, ed.sheet)
		}
		return sameSheet(home, ed.sheet)
	}
	return transform(expr, func(n parser.Expr) (parser.Expr, bool) {
		switch e := n.(type) {
		case *parser.Ref:
			if !targets(e.Sheet, e.HasSheet) {
				return nil, false
			}
			idx := e.Row
			if !ed.rows {
				idx = e.Col
			}
			next, gone := ed.shift(idx)
			if gone {
				return refErr, true
			}
			if next == idx {
				return nil, false
			}
			out := *e
			if ed.rows {
				out.Row = next
			} else {
				out.Col = next
			}
			return &out, true
		case *parser.Area:
			if !targets(e.Sheet, e.HasSheet) {
				return nil, false
			}
			// whole-column areas are unaffected by row edits and
			// vice versa
			if (ed.rows && e.WholeCol) || (!ed.rows && e.WholeRow) {
				return nil, false
			}
			var a, b uint32
			var gone bool
			if ed.rows {
				a, b, gone = ed.shiftSpan(e.StartRow, e.EndRow)
			} else {
				a, b, gone = ed.shiftSpan(e.StartCol, e.EndCol)
			}
			if gone {
				return refErr, true
			}
			if ed.rows && a == e.StartRow && b == e.EndRow {
				return nil, false
			}
			if !ed.rows && a == e.StartCol && b == e.EndCol {
				return nil, false
			}
			out := *e
			if ed.rows {
				out.StartRow, out.EndRow = a, b
			} else {
				out.StartCol, out.EndCol = a, b
			}
			return &out, true
		case *parser.Ref3D:
			if !sameSheet(e.FirstSheet, ed.sheet) && !sameSheet(e.LastSheet, ed.sheet) {
				return nil, false
			}
			var a, b uint32
			var gone bool
			if ed.rows {
				a, b, gone = ed.shiftSpan(e.StartRow, e.EndRow)
			} else {
				a, b, gone = ed.shiftSpan(e.StartCol, e.EndCol)
			}
			if gone {
				return refErr, true
			}
			out := *e
			if ed.rows {
				out.StartRow, out.EndRow = a, b
			} else {
				out.StartCol, out.EndCol = a, b
			}
			if out == *e {
				return nil, false
			}
			return &out, true
		}
		return nil, false
	})
}
