// internal/spill/spill.go
// Package spill tracks dynamic-array footprints: which cells are claimed
// by which spill origin, and whether a new claim collides with existing
// content.
package spill

import (
	"gridcalc/internal/cell"
)

// Occupied reports whether a cell holds independent content (a literal
// or a formula) that would block a spill. The spill index itself does
// not know cell contents; the workbook supplies this.
type Occupied func(cell.Address) bool

// Index maps spill origins to their claimed rectangles and each claimed
// cell back to its origin.
type Index struct {
	roots map[cell.Address]cell.Range
	cells map[cell.Address]cell.Address
}

func New() *Index {
	return &Index{
		roots: make(map[cell.Address]cell.Range),
		cells: make(map[cell.Address]cell.Address),
	}
}

// Rect returns the rectangle currently claimed by origin.
func (x *Index) Rect(origin cell.Address) (cell.Range, bool) {
	r, ok := x.roots[origin]
	return r, ok
}

// RootOf returns the spill origin whose footprint covers addr. The
// origin itself is part of its own footprint.
func (x *Index) RootOf(addr cell.Address) (cell.Address, bool) {
	o, ok := x.cells[addr]
	return o, ok
}

// IsDerived reports whether addr lies inside a spill footprint without
// being the origin. Derived cells have no content of their own.
func (x *Index) IsDerived(addr cell.Address) bool {
	o, ok := x.cells[addr]
	return ok && o != addr
}

// Claim attempts to place an h-by-w result anchored at origin.
//
// On success it records the footprint and returns the claimed rectangle
// plus the cells of any prior footprint of this origin that fall outside
// the new one (they became blank and observers must hear about it).
//
// On failure (rectangle leaves the sheet, or a target cell is occupied
// or belongs to another spill) any prior claim of this origin is
// released and ok is false; the caller assigns the origin #SPILL!.
func (x *Index) Claim(origin cell.Address, h, w int, rows, cols uint32, occupied Occupied) (rect cell.Range, cleared []cell.Address, ok bool) {
	endRow := origin.Row + uint32(h) - 1
	endCol := origin.Col + uint32(w) - 1
	if endRow >= rows || endCol >= cols || endRow < origin.Row || endCol < origin.Col {
		return cell.Range{}, x.Release(origin), false
	}
	rect = cell.Range{Sheet: origin.Sheet, StartRow: origin.Row, StartCol: origin.Col, EndRow: endRow, EndCol: endCol}

	// The origin may not sit inside another spill's footprint either;
	// only the content-occupancy test is skipped for it.
	if o, taken := x.cells[origin]; taken && o != origin {
		return cell.Range{}, x.Release(origin), false
	}
	for r := rect.StartRow; r <= rect.EndRow; r++ {
		for c := rect.StartCol; c <= rect.EndCol; c++ {
			a := cell.Address{Sheet: origin.Sheet, Row: r, Col: c}
			if a == origin {
				continue
			}
			if o, taken := x.cells[a]; taken && o != origin {
				return cell.Range{}, x.Release(origin), false
			}
			if occupied != nil && occupied(a) {
				return cell.Range{}, x.Release(origin), false
			}
		}
	}

	prior, had := x.roots[origin]
	if had {
		for r := prior.StartRow; r <= prior.EndRow; r++ {
			for c := prior.StartCol; c <= prior.EndCol; c++ {
				a := cell.Address{Sheet: origin.Sheet, Row: r, Col: c}
				if !rect.Contains(a) {
					delete(x.cells, a)
					if a != origin {
						cleared = append(cleared, a)
					}
				}
			}
		}
	}
	x.roots[origin] = rect
	for r := rect.StartRow; r <= rect.EndRow; r++ {
		for c := rect.StartCol; c <= rect.EndCol; c++ {
			x.cells[cell.Address{Sheet: origin.Sheet, Row: r, Col: c}] = origin
		}
	}
	return rect, cleared, true
}

// SheetRects lists the claimed rectangles on one sheet.
func (x *Index) SheetRects(sheet cell.SheetID) []cell.Range {
	var out []cell.Range
	for _, r := range x.roots {
		if r.Sheet == sheet {
			out = append(out, r)
		}
	}
	return out
}

// Release drops the footprint of origin, if any, and returns the
// derived cells that are no longer covered.
func (x *Index) Release(origin cell.Address) (cleared []cell.Address) {
	rect, ok := x.roots[origin]
	if !ok {
		return nil
	}
	delete(x.roots, origin)
	for r := rect.StartRow; r <= rect.EndRow; r++ {
		for c := rect.StartCol; c <= rect.EndCol; c++ {
			a := cell.Address{Sheet: origin.Sheet, Row: r, Col: c}
			delete(x.cells, a)
			if a != origin {
				cleared = append(cleared, a)
			}
		}
	}
	return cleared
}

// Blockers lists the cells that prevent an h-by-w claim at origin.
// Useful for diagnostics; Claim does not need it.
func (x *Index) Blockers(origin cell.Address, h, w int, occupied Occupied) []cell.Address {
	var out []cell.Address
	if o, taken := x.cells[origin]; taken && o != origin {
		out = append(out, origin)
	}
	endRow := origin.Row + uint32(h) - 1
	endCol := origin.Col + uint32(w) - 1
	for r := origin.Row; r <= endRow; r++ {
		for c := origin.Col; c <= endCol; c++ {
			a := cell.Address{Sheet: origin.Sheet, Row: r, Col: c}
			if a == origin {
				continue
			}
			if o, taken := x.cells[a]; taken && o != origin {
				out = append(out, a)
				continue
			}
			if occupied != nil && occupied(a) {
				out = append(out, a)
			}
		}
	}
	return out
}
