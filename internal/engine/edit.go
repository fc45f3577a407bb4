// internal/engine/edit.go
package engine

import (
	"strconv"
	"strings"

	"gridcalc/internal/cell"
	gcerrors "gridcalc/internal/errors"
	"gridcalc/internal/eval"
	"gridcalc/internal/formatter"
	"gridcalc/internal/graph"
	"gridcalc/internal/parser"
	"gridcalc/internal/spill"
	"gridcalc/internal/value"
	"gridcalc/internal/workbook"
)

// SetCell dispatches on the input shape: nil clears, a string starting
// with "=" is a formula, anything else is a literal.
func (e *Engine) SetCell(sheetName, ref string, input any) error {
	if input == nil {
		return e.ClearCell(sheetName, ref)
	}
	if s, ok := input.(string); ok && strings.HasPrefix(s, "=") {
		return e.SetCellFormula(sheetName, ref, s)
	}
	return e.SetCellValue(sheetName, ref, input)
}

// SetCellFormula parses and installs a formula. The cell recomputes on
// the next Recalculate.
func (e *Engine) SetCellFormula(sheetName, ref, formula string) error {
	s, addr, err := e.resolve(sheetName, ref)
	if err != nil {
		return err
	}
	expr, err := parser.Parse(formula)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(formula, "=") {
		formula = "=" + formula
	}
	c := &workbook.Cell{Input: formula, Formula: expr}
	c.Program, c.Reason = e.comp.Compile(expr, addr)
	s.SetCell(addr.Row, addr.Col, c)
	e.wire(addr, c)
	e.g.MarkDirty(addr)
	return nil
}

// SetCellValue installs a literal. Literals display immediately; only
// dependent formulas wait for Recalculate.
func (e *Engine) SetCellValue(sheetName, ref string, input any) error {
	s, addr, err := e.resolve(sheetName, ref)
	if err != nil {
		return err
	}
	lit, text := literalOf(input)
	c := &workbook.Cell{Input: text, Literal: lit, Value: lit}
	s.SetCell(addr.Row, addr.Col, c)
	e.unwire(addr)
	e.g.MarkDirty(addr)
	if origin, ok := e.spills.RootOf(addr); ok && origin != addr {
		// new content blocks the covering spill
		e.g.MarkDirty(origin)
	}
	return nil
}

// ClearCell removes a cell. Clearing a spill origin releases its
// footprint at the next recalc; clearing a derived cell is a no-op.
func (e *Engine) ClearCell(sheetName, ref string) error {
	s, addr, err := e.resolve(sheetName, ref)
	if err != nil {
		return err
	}
	if _, ok := s.Cell(addr.Row, addr.Col); !ok {
		return nil
	}
	s.ClearCell(addr.Row, addr.Col)
	e.unwire(addr)
	e.g.MarkDirty(addr)
	return nil
}

// SetRange writes a rectangular block anchored at the range's top-left
// corner. Nil entries clear.
func (e *Engine) SetRange(sheetName, rangeRef string, values [][]any) error {
	s, rng, err := e.resolveRange(sheetName, rangeRef)
	if err != nil {
		return err
	}
	for i, row := range values {
		r := rng.StartRow + uint32(i)
		if r > rng.EndRow || r >= s.Rows {
			return gcerrors.New(gcerrors.DimensionError, "row %d outside target range", i)
		}
		for j, v := range row {
			cc := rng.StartCol + uint32(j)
			if cc > rng.EndCol || cc >= s.Cols {
				return gcerrors.New(gcerrors.DimensionError, "column %d outside target range", j)
			}
			a := cell.Address{Sheet: s.ID, Row: r, Col: cc}
			if err := e.SetCell(s.Name, a.A1(), v); err != nil {
				return err
			}
		}
	}
	return nil
}

// literalOf converts API input into a typed value plus its raw text.
func literalOf(input any) (value.Value, string) {
	switch v := input.(type) {
	case value.Value:
		return v, DisplayText(v)
	case float64:
		return value.Num(v), strconv.FormatFloat(v, 'G', -1, 64)
	case int:
		return value.Number(float64(v)), strconv.Itoa(v)
	case int64:
		return value.Number(float64(v)), strconv.FormatInt(v, 10)
	case bool:
		return value.Bool(v), strings.ToUpper(strconv.FormatBool(v))
	case string:
		return parseLiteralText(v), v
	default:
		return value.Blank{}, ""
	}
}

// parseLiteralText applies Excel's input coercion: numbers, booleans
// and error literals convert; everything else stays text.
func parseLiteralText(s string) value.Value {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return value.Num(f)
	}
	switch strings.ToUpper(s) {
	case "TRUE":
		return value.Bool(true)
	case "FALSE":
		return value.Bool(false)
	}
	if k, ok := value.ParseErrorKind(s); ok {
		return value.Err(k)
	}
	return value.Text(s)
}

// DisplayText renders a scalar the way a cell would show it.
func DisplayText(v value.Value) string {
	switch x := v.(type) {
	case value.Number:
		return strconv.FormatFloat(float64(x), 'G', -1, 64)
	case value.Text:
		return string(x)
	case value.Bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case value.Error:
		return x.Kind.String()
	default:
		return ""
	}
}

// wire installs dependency edges and volatility for a formula cell.
func (e *Engine) wire(addr cell.Address, c *workbook.Cell) {
	e.dropNameEdges(addr)
	prec := e.ev.Precedents(c.Formula, addr)
	e.g.SetPrecedents(addr, nil, prec.Ranges)
	c.Volatile = prec.Volatile
	c.Dynamic = prec.Dynamic
	e.g.SetVolatile(addr, prec.Volatile || prec.Dynamic)
	for _, n := range prec.Names {
		key := strings.ToUpper(n)
		set := e.nameObservers[key]
		if set == nil {
			set = make(map[cell.Address]struct{})
			e.nameObservers[key] = set
		}
		set[addr] = struct{}{}
		e.cellNames[addr] = append(e.cellNames[addr], key)
	}
}

// unwire removes a cell's outgoing edges while keeping its observers.
func (e *Engine) unwire(addr cell.Address) {
	e.dropNameEdges(addr)
	e.g.ClearPrecedents(addr)
	e.g.SetVolatile(addr, false)
}

func (e *Engine) dropNameEdges(addr cell.Address) {
	for _, key := range e.cellNames[addr] {
		if set := e.nameObservers[key]; set != nil {
			delete(set, addr)
			if len(set) == 0 {
				delete(e.nameObservers, key)
			}
		}
	}
	delete(e.cellNames, addr)
}

// --- sheets ---

// AddSheet appends a sheet at the end of the tab order.
func (e *Engine) AddSheet(name string) error {
	_, err := e.wb.AddSheet(name)
	return err
}

// RenameSheet renames a tab and rewrites every formula that mentions
// the old name.
func (e *Engine) RenameSheet(old, new string) error {
	s, ok := e.wb.SheetByName(old)
	if !ok {
		return gcerrors.New(gcerrors.SheetError, "no sheet named %q", old)
	}
	oldName := s.Name
	if err := e.wb.RenameSheet(old, new); err != nil {
		return err
	}
	e.rewriteAll(func(expr parser.Expr, _ string) (parser.Expr, bool) {
		return renameSheetRefs(expr, oldName, new)
	})
	return nil
}

// DeleteSheet drops a tab. Formulas referencing it degrade to #REF!.
func (e *Engine) DeleteSheet(name string) error {
	s, err := e.wb.DeleteSheet(name)
	if err != nil {
		return err
	}
	e.rewriteAll(func(expr parser.Expr, _ string) (parser.Expr, bool) {
		return deleteSheetRefs(expr, s.Name)
	})
	e.rebuild()
	return nil
}

// SetSheetDimensions resizes a sheet, bumping its generation so stale
// compiled programs fall back and recompile.
func (e *Engine) SetSheetDimensions(sheetName string, rows, cols uint32) error {
	var s *workbook.Sheet
	if sheetName == "" {
		s = e.wb.First()
	} else {
		var ok bool
		s, ok = e.wb.SheetByName(sheetName)
		if !ok {
			return gcerrors.New(gcerrors.SheetError, "no sheet named %q", sheetName)
		}
	}
	return s.SetDims(rows, cols)
}

// --- row and column edits ---

// InsertRows shifts rows at and below `at` down by n, rewriting every
// affected reference.
func (e *Engine) InsertRows(sheetName string, at, n uint32) error {
	return e.editGrid(sheetName, gridEdit{rows: true, at: at, n: n})
}

// DeleteRows removes n rows starting at `at`. References into the
// removed band become #REF!.
func (e *Engine) DeleteRows(sheetName string, at, n uint32) error {
	return e.editGrid(sheetName, gridEdit{rows: true, at: at, n: n, del: true})
}

// InsertCols shifts columns at and right of `at` right by n.
func (e *Engine) InsertCols(sheetName string, at, n uint32) error {
	return e.editGrid(sheetName, gridEdit{at: at, n: n})
}

// DeleteCols removes n columns starting at `at`.
func (e *Engine) DeleteCols(sheetName string, at, n uint32) error {
	return e.editGrid(sheetName, gridEdit{at: at, n: n, del: true})
}

func (e *Engine) editGrid(sheetName string, ed gridEdit) error {
	var s *workbook.Sheet
	if sheetName == "" {
		s = e.wb.First()
	} else {
		var ok bool
		s, ok = e.wb.SheetByName(sheetName)
		if !ok {
			return gcerrors.New(gcerrors.SheetError, "no sheet named %q", sheetName)
		}
	}
	if ed.n == 0 {
		return nil
	}
	limit := s.Rows
	if !ed.rows {
		limit = s.Cols
	}
	if ed.at >= limit || (ed.del && ed.at+ed.n > limit) {
		return gcerrors.New(gcerrors.DimensionError, "edit outside sheet bounds")
	}
	ed.sheet = s.Name

	// move stored cells on the edited sheet
	moved := make(map[cell.Address]*workbook.Cell)
	var dropped []cell.Address
	s.EachCell(func(addr cell.Address, c *workbook.Cell) {
		idx := addr.Row
		if !ed.rows {
			idx = addr.Col
		}
		next, gone := ed.shift(idx)
		if gone {
			dropped = append(dropped, addr)
			return
		}
		if next != idx {
			na := addr
			if ed.rows {
				na.Row = next
			} else {
				na.Col = next
			}
			moved[na] = c
			dropped = append(dropped, addr)
		}
	})
	for _, a := range dropped {
		s.ClearCell(a.Row, a.Col)
	}
	for a, c := range moved {
		s.SetCell(a.Row, a.Col, c)
	}

	// rewrite formulas everywhere; unqualified refs bind to the
	// formula's own sheet
	e.rewriteAll(func(expr parser.Expr, home string) (parser.Expr, bool) {
		return shiftRefs(expr, ed, home)
	})

	// adjust tables and defined names on the edited sheet
	for _, t := range e.tablesOn(s.ID) {
		t.Range = ed.shiftRange(t.Range)
	}
	e.rebuild()
	return nil
}

func (e *Engine) tablesOn(id cell.SheetID) []*eval.Table {
	var out []*eval.Table
	for _, t := range e.wb.Tables() {
		if t.Sheet == id {
			out = append(out, t)
		}
	}
	return out
}

// rewriteAll applies fn to every formula AST in the workbook,
// regenerating input text for the ones that change. fn receives the
// name of the sheet the formula lives on, for binding unqualified
// references.
func (e *Engine) rewriteAll(fn func(parser.Expr, string) (parser.Expr, bool)) {
	for _, s := range e.wb.Sheets() {
		var touched []cell.Address
		s.EachCell(func(addr cell.Address, c *workbook.Cell) {
			if !c.IsFormula() {
				return
			}
			next, changed := fn(c.Formula, s.Name)
			if !changed {
				return
			}
			c.Formula = next
			c.Input = formatter.Formula(next)
			c.Program, c.Reason = e.comp.Compile(next, addr)
			touched = append(touched, addr)
		})
		for _, addr := range touched {
			if c, ok := s.Cell(addr.Row, addr.Col); ok {
				e.wire(addr, c)
				e.g.MarkDirty(addr)
			}
		}
	}
}

// rebuild reconstructs the dependency graph and spill index from the
// stored cells after a structural edit, marking every formula dirty.
func (e *Engine) rebuild() {
	e.g = graph.New()
	e.spills = spill.New()
	e.nameObservers = make(map[string]map[cell.Address]struct{})
	e.cellNames = make(map[cell.Address][]string)
	for _, s := range e.wb.Sheets() {
		s.EachCell(func(addr cell.Address, c *workbook.Cell) {
			if !c.IsFormula() {
				return
			}
			c.Value = nil
			e.wire(addr, c)
			e.g.MarkDirty(addr)
		})
	}
}

// --- names and tables ---

// DefineName registers a named expression. An empty scope means
// workbook scope. Dependent formulas are rewired and marked dirty.
func (e *Engine) DefineName(scopeSheet, name, source string) error {
	expr, err := parser.Parse(source)
	if err != nil {
		return err
	}
	dn := &workbook.DefinedName{Name: name, Source: source, Expr: expr}
	if scopeSheet != "" {
		s, ok := e.wb.SheetByName(scopeSheet)
		if !ok {
			return gcerrors.New(gcerrors.SheetError, "no sheet named %q", scopeSheet)
		}
		dn.Scoped = true
		dn.Sheet = s.ID
	}
	if err := e.wb.DefineName(dn); err != nil {
		return err
	}
	key := strings.ToUpper(name)
	for addr := range e.nameObservers[key] {
		if s, ok := e.wb.SheetByID(addr.Sheet); ok {
			if c, ok := s.Cell(addr.Row, addr.Col); ok && c.IsFormula() {
				e.wire(addr, c)
			}
		}
		e.g.MarkDirty(addr)
	}
	return nil
}

// SetTable registers a table over an A1 range on a sheet.
func (e *Engine) SetTable(sheetName, name, rangeRef string, headers, totals bool, columns []string) error {
	s, rng, err := e.resolveRange(sheetName, rangeRef)
	if err != nil {
		return err
	}
	t := &eval.Table{
		Name:    name,
		Sheet:   s.ID,
		Range:   rng,
		Headers: headers,
		Totals:  totals,
		Columns: columns,
	}
	return e.wb.SetTable(t)
}

func (e *Engine) resolveRange(sheetName, rangeRef string) (*workbook.Sheet, cell.Range, error) {
	var s *workbook.Sheet
	if sheetName == "" {
		s = e.wb.First()
	} else {
		var ok bool
		s, ok = e.wb.SheetByName(sheetName)
		if !ok {
			return nil, cell.Range{}, gcerrors.New(gcerrors.SheetError, "no sheet named %q", sheetName)
		}
	}
	first, rest, found := strings.Cut(rangeRef, ":")
	a, ok := cell.ParseA1(first)
	if !ok {
		return nil, cell.Range{}, gcerrors.New(gcerrors.AddressError, "invalid range %q", rangeRef)
	}
	b := a
	if found {
		b, ok = cell.ParseA1(rest)
		if !ok {
			return nil, cell.Range{}, gcerrors.New(gcerrors.AddressError, "invalid range %q", rangeRef)
		}
	}
	a.Sheet, b.Sheet = s.ID, s.ID
	rng := cell.RangeOf(a, b)
	if rng.EndRow >= s.Rows || rng.EndCol >= s.Cols {
		return nil, cell.Range{}, gcerrors.New(gcerrors.DimensionError, "%s is outside the %dx%d sheet", rangeRef, s.Rows, s.Cols)
	}
	return s, rng, nil
}
