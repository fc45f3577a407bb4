// internal/stdlib/args.go
//
// Shared argument iteration helpers. Aggregates accept scalars, arrays
// and deferred references interchangeably; references iterate lazily
// over the stored cells, clipped to the sheet's used extent for
// whole-row/column refs.
package stdlib

import (
	"gridcalc/internal/cell"
	"gridcalc/internal/value"
)

// clipToUsed bounds an open-ended range by the sheet's used extent so
// SUM(A:A) never walks a million rows. Finite ranges pass through
// untouched: their cells may be spill-derived and the used extent only
// tracks stored content.
func (ctx *Context) clipToUsed(r cell.Range) cell.Range {
	rows, cols := ctx.Source.Dims(r.Sheet)
	if rows == 0 || cols == 0 {
		return r
	}
	openRows := r.EndRow >= rows-1
	openCols := r.EndCol >= cols-1
	if !openRows && !openCols {
		return r
	}
	used := ctx.Source.UsedRange(r.Sheet)
	if openRows && r.EndRow > used.EndRow {
		r.EndRow = used.EndRow
	}
	if openCols && r.EndCol > used.EndCol {
		r.EndCol = used.EndCol
	}
	if r.StartRow > r.EndRow || r.StartCol > r.EndCol {
		// nothing stored in the referenced band
		r.EndRow = r.StartRow
		r.EndCol = r.StartCol
	}
	return r
}

// eachValue yields every scalar inside v: array elements row-major,
// reference cells row-major, scalars once. Returns false if the walk
// was stopped.
func (ctx *Context) eachValue(v value.Value, yield func(value.Value) bool) bool {
	switch v := v.(type) {
	case *value.Array:
		for _, el := range v.Data {
			if !yield(el) {
				return false
			}
		}
	case *value.Reference:
		return ctx.eachRangeValue(v.Range, yield)
	case *value.ReferenceUnion:
		for _, r := range dedupRanges(v.Ranges) {
			if !ctx.eachRangeValue(r, yield) {
				return false
			}
		}
	default:
		return yield(v)
	}
	return true
}

func (ctx *Context) eachRangeValue(r cell.Range, yield func(value.Value) bool) bool {
	clipped := ctx.clipToUsed(r)
	ok := true
	clipped.Cells(func(addr cell.Address) bool {
		if !yield(ctx.Source.CellValue(addr)) {
			ok = false
			return false
		}
		return true
	})
	return ok
}

// dedupRanges removes overlaps from a union so aggregate functions do
// not count shared cells twice: overlapping rows across #Headers/#Data
// unions collapse into disjoint rectangles.
func dedupRanges(ranges []cell.Range) []cell.Range {
	if len(ranges) <= 1 {
		return ranges
	}
	out := make([]cell.Range, 0, len(ranges))
	for _, r := range ranges {
		pieces := []cell.Range{r}
		for _, prev := range out {
			var next []cell.Range
			for _, p := range pieces {
				next = append(next, subtractRange(p, prev)...)
			}
			pieces = next
		}
		out = append(out, pieces...)
	}
	return out
}

// subtractRange returns r minus the cells it shares with cut, as up to
// four disjoint rectangles.
func subtractRange(r, cut cell.Range) []cell.Range {
	inter, ok := r.Intersect(cut)
	if !ok {
		return []cell.Range{r}
	}
	var out []cell.Range
	if inter.StartRow > r.StartRow {
		out = append(out, cell.Range{Sheet: r.Sheet, StartRow: r.StartRow, EndRow: inter.StartRow - 1, StartCol: r.StartCol, EndCol: r.EndCol})
	}
	if inter.EndRow < r.EndRow {
		out = append(out, cell.Range{Sheet: r.Sheet, StartRow: inter.EndRow + 1, EndRow: r.EndRow, StartCol: r.StartCol, EndCol: r.EndCol})
	}
	if inter.StartCol > r.StartCol {
		out = append(out, cell.Range{Sheet: r.Sheet, StartRow: inter.StartRow, EndRow: inter.EndRow, StartCol: r.StartCol, EndCol: inter.StartCol - 1})
	}
	if inter.EndCol < r.EndCol {
		out = append(out, cell.Range{Sheet: r.Sheet, StartRow: inter.StartRow, EndRow: inter.EndRow, StartCol: inter.EndCol + 1, EndCol: r.EndCol})
	}
	return out
}

// numbersOf collects numeric values the way SUM does: numbers count,
// blanks and text inside ranges are skipped, text scalars coerce,
// errors abort. The returned error value is the first error seen.
func (ctx *Context) numbersOf(args []value.Value, includeBool bool, yield func(float64) bool) (value.Error, bool) {
	var errv value.Error
	hasErr := false
	for _, arg := range args {
		fromRange := isRangeLike(arg)
		cont := ctx.eachValue(arg, func(v value.Value) bool {
			switch v := v.(type) {
			case value.Error:
				errv, hasErr = v, true
				return false
			case value.Number:
				return yield(float64(v))
			case value.Bool:
				if fromRange && !includeBool {
					return true
				}
				if v {
					return yield(1)
				}
				return yield(0)
			case value.Text:
				if fromRange {
					return true
				}
				f, ok := value.ParseNumber(string(v))
				if !ok {
					errv, hasErr = value.Err(value.KindValue), true
					return false
				}
				return yield(f)
			case nil, value.Blank:
				return true
			default:
				return true
			}
		})
		if !cont && hasErr {
			return errv, true
		}
		if !cont {
			break
		}
	}
	return errv, hasErr
}

func isRangeLike(v value.Value) bool {
	switch v.(type) {
	case *value.Array, *value.Reference, *value.ReferenceUnion:
		return true
	}
	return false
}

// Materialize converts a deferred reference into a scalar (1x1) or an
// array. Non-references pass through.
func (ctx *Context) Materialize(v value.Value) value.Value {
	switch v := v.(type) {
	case *value.Reference:
		return ctx.MaterializeRange(v.Range)
	case *value.ReferenceUnion:
		if len(v.Ranges) == 1 {
			return ctx.MaterializeRange(v.Ranges[0])
		}
		// multi-area unions have no single rectangular value
		return value.Err(value.KindValue)
	default:
		return v
	}
}

// MaterializeRange loads a range into an Array (or a scalar for 1x1).
func (ctx *Context) MaterializeRange(r cell.Range) value.Value {
	if r.IsCell() {
		return ctx.Source.CellValue(r.TopLeft())
	}
	if r.Count() > MaxMaterializedCells {
		return value.Err(value.KindNum)
	}
	arr := value.NewArray(int(r.Rows()), int(r.Cols()))
	i := 0
	r.Cells(func(addr cell.Address) bool {
		arr.Data[i] = ctx.Source.CellValue(addr)
		i++
		return true
	})
	return arr
}

// MaxMaterializedCells guards whole-column materialization.
const MaxMaterializedCells = 1 << 22

// toShape reports rows/cols for a value: scalars are 1x1.
func shapeOf(ctx *Context, v value.Value) (rows, cols int) {
	switch v := v.(type) {
	case *value.Array:
		return v.Rows, v.Cols
	case *value.Reference:
		return int(v.Range.Rows()), int(v.Range.Cols())
	default:
		return 1, 1
	}
}

// elemAt fetches (r,c) from an array/reference with 1xN / Nx1 / 1x1
// broadcast semantics; out-of-shape access yields #N/A.
func elemAt(ctx *Context, v value.Value, r, c int) value.Value {
	switch v := v.(type) {
	case *value.Array:
		return arrayElem(v, r, c)
	case *value.Reference:
		rows, cols := int(v.Range.Rows()), int(v.Range.Cols())
		rr, cc, ok := broadcastIndex(r, c, rows, cols)
		if !ok {
			return value.Err(value.KindNA)
		}
		return ctx.Source.CellValue(cell.Address{
			Sheet: v.Range.Sheet,
			Row:   v.Range.StartRow + uint32(rr),
			Col:   v.Range.StartCol + uint32(cc),
		})
	default:
		return v
	}
}

func arrayElem(a *value.Array, r, c int) value.Value {
	rr, cc, ok := broadcastIndex(r, c, a.Rows, a.Cols)
	if !ok {
		return value.Err(value.KindNA)
	}
	return a.At(rr, cc)
}

func broadcastIndex(r, c, rows, cols int) (int, int, bool) {
	switch {
	case rows == 1:
		r = 0
	case r >= rows:
		return 0, 0, false
	}
	switch {
	case cols == 1:
		c = 0
	case c >= cols:
		return 0, 0, false
	}
	return r, c, true
}
