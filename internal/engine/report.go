// internal/engine/report.go
package engine

import (
	"sort"

	"gridcalc/internal/cell"
	"gridcalc/internal/compiler"
	"gridcalc/internal/workbook"
)

// ReportEntry describes one formula the bytecode compiler refused.
type ReportEntry struct {
	Sheet  string
	Ref    string
	Reason compiler.Reason
}

// BytecodeReport lists the cells running on the tree walker and why,
// in sheet/row/column order. A non-positive limit means no limit.
func (e *Engine) BytecodeReport(limit int) []ReportEntry {
	type row struct {
		addr   cell.Address
		reason compiler.Reason
	}
	var rows []row
	tab := make(map[cell.SheetID]int)
	for i, s := range e.wb.Sheets() {
		tab[s.ID] = i
	}
	for _, s := range e.wb.Sheets() {
		s.EachCell(func(addr cell.Address, c *workbook.Cell) {
			if c.IsFormula() && c.Program == nil && c.Reason != compiler.ReasonNone {
				rows = append(rows, row{addr, c.Reason})
			}
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i].addr, rows[j].addr
		if a.Sheet != b.Sheet {
			return tab[a.Sheet] < tab[b.Sheet]
		}
		if a.Row != b.Row {
			return a.Row < b.Row
		}
		return a.Col < b.Col
	})
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]ReportEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, ReportEntry{Sheet: e.sheetName(r.addr.Sheet), Ref: r.addr.A1(), Reason: r.reason})
	}
	return out
}
