// internal/eval/structured.go
package eval

import (
	"sort"
	"strings"

	"gridcalc/internal/cell"
	"gridcalc/internal/parser"
	"gridcalc/internal/value"
)

// dataRows returns the first and last data row of a table.
func (t *Table) dataRows() (uint32, uint32) {
	start, end := t.Range.StartRow, t.Range.EndRow
	if t.Headers {
		start++
	}
	if t.Totals {
		end--
	}
	return start, end
}

// columnSpan resolves a column name range to absolute sheet columns.
func (t *Table) columnSpan(first, last string) (uint32, uint32, bool) {
	find := func(name string) (int, bool) {
		for i, c := range t.Columns {
			if strings.EqualFold(c, name) {
				return i, true
			}
		}
		return 0, false
	}
	fi, ok := find(first)
	if !ok {
		return 0, 0, false
	}
	li := fi
	if last != "" && last != first {
		li, ok = find(last)
		if !ok {
			return 0, 0, false
		}
	}
	if li < fi {
		fi, li = li, fi
	}
	return t.Range.StartCol + uint32(fi), t.Range.StartCol + uint32(li), true
}

func (st *state) evalStructured(n *parser.StructuredRef) value.Value {
	var tbl *Table
	var ok bool
	if n.Table == "" {
		tbl, ok = st.ev.Res.TableAt(st.caller)
	} else {
		tbl, ok = st.ev.Res.TableByName(n.Table)
	}
	if !ok {
		return value.Err(value.KindName)
	}
	rowStart, rowEnd, errv := st.structuredRows(tbl, n)
	if errv != nil {
		return errv
	}
	colSpans, errv := structuredCols(tbl, n)
	if errv != nil {
		return errv
	}
	var ranges []cell.Range
	for _, span := range colSpans {
		ranges = append(ranges, cell.Range{
			Sheet:    tbl.Sheet,
			StartRow: rowStart, StartCol: span[0],
			EndRow: rowEnd, EndCol: span[1],
		})
	}
	if len(ranges) == 1 {
		return &value.Reference{Range: ranges[0]}
	}
	return &value.ReferenceUnion{Ranges: ranges}
}

// structuredRows picks the vertical region named by the item
// specifiers. Multiple items must form a contiguous block.
func (st *state) structuredRows(tbl *Table, n *parser.StructuredRef) (uint32, uint32, value.Value) {
	items := n.Items
	if len(items) == 0 {
		items = []parser.StructuredItem{parser.ItemData}
	}
	if n.ThisRowAt {
		items = []parser.StructuredItem{parser.ItemThisRow}
	}
	dataStart, dataEnd := tbl.dataRows()
	type span struct{ start, end uint32 }
	var spans []span
	for _, item := range items {
		switch item {
		case parser.ItemAll:
			spans = append(spans, span{tbl.Range.StartRow, tbl.Range.EndRow})
		case parser.ItemData:
			spans = append(spans, span{dataStart, dataEnd})
		case parser.ItemHeaders:
			if !tbl.Headers {
				return 0, 0, value.Err(value.KindRef)
			}
			spans = append(spans, span{tbl.Range.StartRow, tbl.Range.StartRow})
		case parser.ItemTotals:
			if !tbl.Totals {
				return 0, 0, value.Err(value.KindRef)
			}
			spans = append(spans, span{tbl.Range.EndRow, tbl.Range.EndRow})
		case parser.ItemThisRow:
			// off the table's sheet there is no current row to name
			if st.caller.Sheet != tbl.Sheet {
				return 0, 0, value.Err(value.KindName)
			}
			if st.caller.Row < dataStart || st.caller.Row > dataEnd {
				return 0, 0, value.Err(value.KindValue)
			}
			spans = append(spans, span{st.caller.Row, st.caller.Row})
		default:
			return 0, 0, value.Err(value.KindRef)
		}
	}
	sort.Slice(spans, func(a, b int) bool { return spans[a].start < spans[b].start })
	cur := spans[0]
	for _, s := range spans[1:] {
		if s.start > cur.end+1 {
			return 0, 0, value.Err(value.KindRef)
		}
		if s.end > cur.end {
			cur.end = s.end
		}
	}
	return cur.start, cur.end, nil
}

// structuredCols resolves the column selectors into absolute column
// spans, merging adjacent ones.
func structuredCols(tbl *Table, n *parser.StructuredRef) ([][2]uint32, value.Value) {
	if len(n.Columns) == 0 {
		return [][2]uint32{{tbl.Range.StartCol, tbl.Range.EndCol}}, nil
	}
	var spans [][2]uint32
	for _, cr := range n.Columns {
		start, end, ok := tbl.columnSpan(cr.First, cr.Last)
		if !ok {
			return nil, value.Err(value.KindRef)
		}
		spans = append(spans, [2]uint32{start, end})
	}
	sort.Slice(spans, func(a, b int) bool { return spans[a][0] < spans[b][0] })
	var merged [][2]uint32
	for _, s := range spans {
		if len(merged) > 0 && s[0] <= merged[len(merged)-1][1]+1 {
			if s[1] > merged[len(merged)-1][1] {
				merged[len(merged)-1][1] = s[1]
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged, nil
}
