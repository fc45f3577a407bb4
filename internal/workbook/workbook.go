// internal/workbook/workbook.go
// Package workbook holds the document model: sheets in tab order,
// sparse cells, defined names and tables. It stores state only; the
// engine package drives parsing, dependency tracking and recalc.
package workbook

import (
	"gridcalc/internal/bytecode"
	"gridcalc/internal/cell"
	"gridcalc/internal/compiler"
	gcerrors "gridcalc/internal/errors"
	"gridcalc/internal/eval"
	"gridcalc/internal/parser"
	"gridcalc/internal/value"
)

// Cell is one stored cell. Exactly one of Literal and Formula is
// meaningful: formula cells keep their parsed AST plus an optional
// compiled program, literal cells keep the typed value.
type Cell struct {
	Input   string // raw input as entered, formulas include the "="
	Formula parser.Expr
	Literal value.Value

	// Value is the cached result of the last evaluation. For a spill
	// origin it is the origin's scalar projection, not the array.
	Value value.Value

	// Program caches the bytecode lowering of Formula. Reason records
	// why lowering was refused when Program is nil.
	Program *bytecode.Program
	Reason  compiler.Reason

	Volatile bool
	Dynamic  bool // precedents depend on runtime values (INDIRECT, OFFSET)
}

// IsFormula reports whether the cell holds a formula.
func (c *Cell) IsFormula() bool { return c.Formula != nil }

type coord struct{ row, col uint32 }

// Sheet is one tab: a sparse cell grid with explicit dimensions and a
// generation counter that advances whenever the dimensions change.
type Sheet struct {
	ID   cell.SheetID
	Name string
	Rows uint32
	Cols uint32
	Gen  uint64

	cells map[coord]*Cell
}

func (s *Sheet) Cell(row, col uint32) (*Cell, bool) {
	c, ok := s.cells[coord{row, col}]
	return c, ok
}

func (s *Sheet) SetCell(row, col uint32, c *Cell) {
	s.cells[coord{row, col}] = c
}

func (s *Sheet) ClearCell(row, col uint32) {
	delete(s.cells, coord{row, col})
}

func (s *Sheet) CellCount() int { return len(s.cells) }

// EachCell visits every stored cell in unspecified order.
func (s *Sheet) EachCell(fn func(addr cell.Address, c *Cell)) {
	for k, c := range s.cells {
		fn(cell.Address{Sheet: s.ID, Row: k.row, Col: k.col}, c)
	}
}

// SetDims resizes the sheet and bumps the generation counter, which
// invalidates every compiled program stamped against this sheet.
func (s *Sheet) SetDims(rows, cols uint32) error {
	if rows == 0 || cols == 0 || rows > cell.DefaultRows || cols > cell.DefaultCols {
		return gcerrors.New(gcerrors.DimensionError, "invalid dimensions %dx%d", rows, cols)
	}
	if rows == s.Rows && cols == s.Cols {
		return nil
	}
	s.Rows, s.Cols = rows, cols
	s.Gen++
	return nil
}

// UsedRange bounds the stored cells, for clipping open-ended
// references. An empty sheet reports the single cell A1.
func (s *Sheet) UsedRange() cell.Range {
	r := cell.Range{Sheet: s.ID}
	first := true
	for k := range s.cells {
		if first {
			r.StartRow, r.EndRow = k.row, k.row
			r.StartCol, r.EndCol = k.col, k.col
			first = false
			continue
		}
		if k.row < r.StartRow {
			r.StartRow = k.row
		}
		if k.row > r.EndRow {
			r.EndRow = k.row
		}
		if k.col < r.StartCol {
			r.StartCol = k.col
		}
		if k.col > r.EndCol {
			r.EndCol = k.col
		}
	}
	return r
}

// DefinedName is a named expression, workbook-scoped unless Scoped is
// set, in which case it belongs to one sheet and shadows any
// workbook-scoped name of the same spelling there.
type DefinedName struct {
	Name   string
	Source string
	Expr   parser.Expr
	Sheet  cell.SheetID
	Scoped bool
}

// Workbook is the root document object.
type Workbook struct {
	sheets []*Sheet
	byName map[string]*Sheet
	byID   map[cell.SheetID]*Sheet
	nextID cell.SheetID

	names  map[string][]*DefinedName
	tables map[string]*eval.Table
}

// New creates a workbook with a single default sheet.
func New() *Workbook {
	wb := &Workbook{
		byName: make(map[string]*Sheet),
		byID:   make(map[cell.SheetID]*Sheet),
		names:  make(map[string][]*DefinedName),
		tables: make(map[string]*eval.Table),
	}
	wb.AddSheet("Sheet1")
	return wb
}

// AddSheet appends a sheet at the end of the tab order.
func (wb *Workbook) AddSheet(name string) (*Sheet, error) {
	if err := ValidateSheetName(name); err != nil {
		return nil, err
	}
	key := NormalizeSheetName(name)
	if _, dup := wb.byName[key]; dup {
		return nil, gcerrors.New(gcerrors.SheetError, "sheet %q already exists", name)
	}
	s := &Sheet{
		ID:    wb.nextID,
		Name:  name,
		Rows:  cell.DefaultRows,
		Cols:  cell.DefaultCols,
		cells: make(map[coord]*Cell),
	}
	wb.nextID++
	wb.sheets = append(wb.sheets, s)
	wb.byName[key] = s
	wb.byID[s.ID] = s
	return s, nil
}

// RenameSheet keeps the sheet id; callers rewrite nothing because all
// internal references are by id.
func (wb *Workbook) RenameSheet(old, new string) error {
	s, ok := wb.SheetByName(old)
	if !ok {
		return gcerrors.New(gcerrors.SheetError, "no sheet named %q", old)
	}
	if err := ValidateSheetName(new); err != nil {
		return err
	}
	key := NormalizeSheetName(new)
	if cur, dup := wb.byName[key]; dup && cur != s {
		return gcerrors.New(gcerrors.SheetError, "sheet %q already exists", new)
	}
	delete(wb.byName, NormalizeSheetName(s.Name))
	s.Name = new
	wb.byName[key] = s
	return nil
}

// DeleteSheet removes a sheet from the tab order. The last sheet of a
// workbook cannot be deleted.
func (wb *Workbook) DeleteSheet(name string) (*Sheet, error) {
	s, ok := wb.SheetByName(name)
	if !ok {
		return nil, gcerrors.New(gcerrors.SheetError, "no sheet named %q", name)
	}
	if len(wb.sheets) == 1 {
		return nil, gcerrors.New(gcerrors.SheetError, "cannot delete the only sheet")
	}
	delete(wb.byName, NormalizeSheetName(s.Name))
	delete(wb.byID, s.ID)
	for i, t := range wb.sheets {
		if t == s {
			wb.sheets = append(wb.sheets[:i], wb.sheets[i+1:]...)
			break
		}
	}
	for key, t := range wb.tables {
		if t.Sheet == s.ID {
			delete(wb.tables, key)
		}
	}
	for key, list := range wb.names {
		kept := list[:0]
		for _, dn := range list {
			if !(dn.Scoped && dn.Sheet == s.ID) {
				kept = append(kept, dn)
			}
		}
		if len(kept) == 0 {
			delete(wb.names, key)
		} else {
			wb.names[key] = kept
		}
	}
	return s, nil
}

// SheetByName resolves a sheet case-insensitively.
func (wb *Workbook) SheetByName(name string) (*Sheet, bool) {
	s, ok := wb.byName[NormalizeSheetName(name)]
	return s, ok
}

func (wb *Workbook) SheetByID(id cell.SheetID) (*Sheet, bool) {
	s, ok := wb.byID[id]
	return s, ok
}

// Sheets returns the tab order. Callers must not mutate the slice.
func (wb *Workbook) Sheets() []*Sheet { return wb.sheets }

// First returns the leftmost sheet.
func (wb *Workbook) First() *Sheet { return wb.sheets[0] }

// Span lists the sheet ids between two named tabs, inclusive, in tab
// order. Either endpoint missing fails the lookup.
func (wb *Workbook) Span(first, last string) ([]cell.SheetID, bool) {
	a, ok := wb.SheetByName(first)
	if !ok {
		return nil, false
	}
	b, ok := wb.SheetByName(last)
	if !ok {
		return nil, false
	}
	ai, bi := -1, -1
	for i, s := range wb.sheets {
		if s == a {
			ai = i
		}
		if s == b {
			bi = i
		}
	}
	if ai > bi {
		ai, bi = bi, ai
	}
	ids := make([]cell.SheetID, 0, bi-ai+1)
	for _, s := range wb.sheets[ai : bi+1] {
		ids = append(ids, s.ID)
	}
	return ids, true
}

// DefineName registers or replaces a defined name in the given scope.
func (wb *Workbook) DefineName(dn *DefinedName) error {
	if dn.Name == "" {
		return gcerrors.New(gcerrors.NameError, "defined name must not be empty")
	}
	key := normalizeDefinedName(dn.Name)
	list := wb.names[key]
	for i, cur := range list {
		if cur.Scoped == dn.Scoped && (!cur.Scoped || cur.Sheet == dn.Sheet) {
			list[i] = dn
			return nil
		}
	}
	wb.names[key] = append(list, dn)
	return nil
}

// LookupName resolves a defined name from a sheet's context: a name
// scoped to that sheet shadows a workbook-scoped one.
func (wb *Workbook) LookupName(name string, sheet cell.SheetID) (*DefinedName, bool) {
	list := wb.names[normalizeDefinedName(name)]
	var global *DefinedName
	for _, dn := range list {
		if dn.Scoped && dn.Sheet == sheet {
			return dn, true
		}
		if !dn.Scoped {
			global = dn
		}
	}
	if global != nil {
		return global, true
	}
	return nil, false
}

// Names lists every defined name in registration order per key.
func (wb *Workbook) Names() []*DefinedName {
	var out []*DefinedName
	for _, list := range wb.names {
		out = append(out, list...)
	}
	return out
}

// SetTable registers or replaces a table by name.
func (wb *Workbook) SetTable(t *eval.Table) error {
	if t.Name == "" {
		return gcerrors.New(gcerrors.TableError, "table name must not be empty")
	}
	if _, ok := wb.byID[t.Sheet]; !ok {
		return gcerrors.New(gcerrors.TableError, "table %q references an unknown sheet", t.Name)
	}
	wb.tables[normalizeDefinedName(t.Name)] = t
	return nil
}

// DropTable removes a table by name.
func (wb *Workbook) DropTable(name string) {
	delete(wb.tables, normalizeDefinedName(name))
}

func (wb *Workbook) TableByName(name string) (*eval.Table, bool) {
	t, ok := wb.tables[normalizeDefinedName(name)]
	return t, ok
}

// Tables lists every registered table.
func (wb *Workbook) Tables() []*eval.Table {
	var out []*eval.Table
	for _, t := range wb.tables {
		out = append(out, t)
	}
	return out
}

// TableAt finds the table whose full extent contains addr.
func (wb *Workbook) TableAt(addr cell.Address) (*eval.Table, bool) {
	for _, t := range wb.tables {
		if t.Sheet == addr.Sheet && t.Range.Contains(addr) {
			return t, true
		}
	}
	return nil, false
}
