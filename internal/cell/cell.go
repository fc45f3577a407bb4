package cell

// SheetID identifies a sheet within a workbook. IDs are assigned in
// insertion order and never reused.
type SheetID uint32

// Default sheet dimensions (Excel grid).
const (
	DefaultRows = 1 << 20 // 1048576
	DefaultCols = 1 << 14 // 16384
)

// Address identifies a single cell. Row and Col are zero-based.
type Address struct {
	Sheet SheetID
	Row   uint32
	Col   uint32
}

// Range is a rectangular cell range within a single sheet. Bounds are
// inclusive and normalized (StartRow <= EndRow, StartCol <= EndCol).
type Range struct {
	Sheet    SheetID
	StartRow uint32
	StartCol uint32
	EndRow   uint32
	EndCol   uint32
}

// RangeOf builds a normalized range from two corner addresses on the
// same sheet.
func RangeOf(a, b Address) Range {
	r := Range{Sheet: a.Sheet, StartRow: a.Row, StartCol: a.Col, EndRow: b.Row, EndCol: b.Col}
	return r.Normalize()
}

// CellRange is the 1x1 range covering addr.
func CellRange(addr Address) Range {
	return Range{Sheet: addr.Sheet, StartRow: addr.Row, StartCol: addr.Col, EndRow: addr.Row, EndCol: addr.Col}
}

func (r Range) Normalize() Range {
	if r.StartRow > r.EndRow {
		r.StartRow, r.EndRow = r.EndRow, r.StartRow
	}
	if r.StartCol > r.EndCol {
		r.StartCol, r.EndCol = r.EndCol, r.StartCol
	}
	return r
}

// Rows returns the height of the range.
func (r Range) Rows() uint32 { return r.EndRow - r.StartRow + 1 }

// Cols returns the width of the range.
func (r Range) Cols() uint32 { return r.EndCol - r.StartCol + 1 }

// Count returns the number of cells covered.
func (r Range) Count() uint64 {
	return uint64(r.Rows()) * uint64(r.Cols())
}

// IsCell reports whether the range covers exactly one cell.
func (r Range) IsCell() bool {
	return r.StartRow == r.EndRow && r.StartCol == r.EndCol
}

// TopLeft returns the first cell of the range.
func (r Range) TopLeft() Address {
	return Address{Sheet: r.Sheet, Row: r.StartRow, Col: r.StartCol}
}

// Contains reports whether addr falls inside the range.
func (r Range) Contains(addr Address) bool {
	return addr.Sheet == r.Sheet &&
		addr.Row >= r.StartRow && addr.Row <= r.EndRow &&
		addr.Col >= r.StartCol && addr.Col <= r.EndCol
}

// Overlaps reports whether two ranges share at least one cell.
func (r Range) Overlaps(o Range) bool {
	return r.Sheet == o.Sheet &&
		r.StartRow <= o.EndRow && o.StartRow <= r.EndRow &&
		r.StartCol <= o.EndCol && o.StartCol <= r.EndCol
}

// Intersect returns the overlapping rectangle, if any.
func (r Range) Intersect(o Range) (Range, bool) {
	if !r.Overlaps(o) {
		return Range{}, false
	}
	return Range{
		Sheet:    r.Sheet,
		StartRow: max32(r.StartRow, o.StartRow),
		StartCol: max32(r.StartCol, o.StartCol),
		EndRow:   min32(r.EndRow, o.EndRow),
		EndCol:   min32(r.EndCol, o.EndCol),
	}, true
}

// Cells iterates the range in row-major order.
func (r Range) Cells(yield func(Address) bool) {
	for row := r.StartRow; ; row++ {
		for col := r.StartCol; ; col++ {
			if !yield(Address{Sheet: r.Sheet, Row: row, Col: col}) {
				return
			}
			if col == r.EndCol {
				break
			}
		}
		if row == r.EndRow {
			break
		}
	}
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
