// internal/engine/engine.go
// Package engine ties the pieces together: the workbook model, the
// dependency graph, the spill index, the AST evaluator and the bytecode
// fast path, behind the public calculation API.
package engine

import (
	"math/rand"
	"time"

	"gridcalc/internal/cell"
	"gridcalc/internal/compiler"
	gcerrors "gridcalc/internal/errors"
	"gridcalc/internal/eval"
	"gridcalc/internal/graph"
	"gridcalc/internal/parser"
	"gridcalc/internal/spill"
	"gridcalc/internal/stdlib"
	"gridcalc/internal/value"
	"gridcalc/internal/workbook"
)

// Config carries engine-wide calculation settings.
type Config struct {
	Date1904 bool
	// Now pins volatile date functions for a run; zero means wall clock.
	Now time.Time
	// Rand seeds RAND/RANDBETWEEN; nil means a time-seeded source.
	Rand *rand.Rand

	// Iterative enables circular-reference iteration instead of #NUM!.
	Iterative     bool
	MaxIterations int     // default 100
	MaxChange     float64 // convergence threshold, default 0.001
}

// Engine is a single-workbook calculation engine. All methods require
// external serialization; nothing here is safe for concurrent use.
type Engine struct {
	cfg    Config
	wb     *workbook.Workbook
	g      *graph.Graph
	spills *spill.Index
	reg    *stdlib.Registry
	ev     *eval.Evaluator
	comp   *compiler.Compiler

	// nameObservers maps a defined name to the formula cells that
	// mention it, so redefinition can rewire and dirty them.
	nameObservers map[string]map[cell.Address]struct{}
	cellNames     map[cell.Address][]string

	calc *calcState // non-nil while Recalculate runs
}

func New(cfg Config) *Engine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 100
	}
	if cfg.MaxChange <= 0 {
		cfg.MaxChange = 0.001
	}
	e := &Engine{
		cfg:           cfg,
		wb:            workbook.New(),
		g:             graph.New(),
		spills:        spill.New(),
		reg:           stdlib.NewRegistry(),
		nameObservers: make(map[string]map[cell.Address]struct{}),
		cellNames:     make(map[cell.Address][]string),
	}
	e.ev = eval.New(e.reg, e, eval.Config{Date1904: cfg.Date1904, Now: cfg.Now, Rand: cfg.Rand})
	e.comp = compiler.New(e.reg, e)
	return e
}

// Registry exposes the function registry, for UDF installation.
func (e *Engine) Registry() *stdlib.Registry { return e.reg }

// --- eval.Resolver / stdlib.Source ---

// CellValue returns the displayed value of a cell. During a recalc pass
// a dirty precedent is recomputed on demand before being read.
func (e *Engine) CellValue(addr cell.Address) value.Value {
	if e.calc != nil {
		e.force(addr)
	}
	return e.displayed(addr)
}

func (e *Engine) Dims(sheet cell.SheetID) (rows, cols uint32) {
	if s, ok := e.wb.SheetByID(sheet); ok {
		return s.Rows, s.Cols
	}
	return 0, 0
}

// UsedRange covers the stored cells plus any spill footprints, which
// extend past stored content.
func (e *Engine) UsedRange(sheet cell.SheetID) cell.Range {
	s, ok := e.wb.SheetByID(sheet)
	if !ok {
		return cell.Range{Sheet: sheet}
	}
	used := s.UsedRange()
	for _, r := range e.spills.SheetRects(sheet) {
		if r.EndRow > used.EndRow {
			used.EndRow = r.EndRow
		}
		if r.EndCol > used.EndCol {
			used.EndCol = r.EndCol
		}
	}
	return used
}

func (e *Engine) SheetID(name string) (cell.SheetID, bool) {
	s, ok := e.wb.SheetByName(name)
	if !ok {
		return 0, false
	}
	return s.ID, true
}

func (e *Engine) SheetSpan(first, last string) ([]cell.SheetID, bool) {
	return e.wb.Span(first, last)
}

func (e *Engine) SheetCount() int { return len(e.wb.Sheets()) }

func (e *Engine) NameExpr(name string, sheet cell.SheetID) (parser.Expr, bool) {
	dn, ok := e.wb.LookupName(name, sheet)
	if !ok {
		return nil, false
	}
	return dn.Expr, true
}

func (e *Engine) TableByName(name string) (*eval.Table, bool) {
	return e.wb.TableByName(name)
}

func (e *Engine) TableAt(addr cell.Address) (*eval.Table, bool) {
	return e.wb.TableAt(addr)
}

func (e *Engine) SpillRange(anchor cell.Address) (cell.Range, bool) {
	return e.spills.Rect(anchor)
}

func (e *Engine) FormulaAt(addr cell.Address) (string, bool) {
	s, ok := e.wb.SheetByID(addr.Sheet)
	if !ok {
		return "", false
	}
	c, ok := s.Cell(addr.Row, addr.Col)
	if !ok || !c.IsFormula() {
		return "", false
	}
	return c.Input, true
}

// --- vm.Host / compiler.Layout ---

func (e *Engine) Context(caller cell.Address) *stdlib.Context {
	return e.ev.Context(caller)
}

func (e *Engine) Generation(sheet cell.SheetID) uint64 {
	if s, ok := e.wb.SheetByID(sheet); ok {
		return s.Gen
	}
	return 0
}

func (e *Engine) NameValue(name string, caller cell.Address) value.Value {
	dn, ok := e.wb.LookupName(name, caller.Sheet)
	if !ok {
		return value.Err(value.KindName)
	}
	return e.ev.EvalDeferred(dn.Expr, caller)
}

// --- reads ---

// displayed computes the visible value of an address: cell content
// first, then the spill projection covering it, then blank.
func (e *Engine) displayed(addr cell.Address) value.Value {
	s, ok := e.wb.SheetByID(addr.Sheet)
	if ok {
		if c, exists := s.Cell(addr.Row, addr.Col); exists {
			return e.displayedCell(addr, c)
		}
	}
	if origin, covered := e.spills.RootOf(addr); covered && origin != addr {
		return e.projection(origin, addr)
	}
	return value.Blank{}
}

func (e *Engine) displayedCell(addr cell.Address, c *workbook.Cell) value.Value {
	if _, ok := c.Value.(*value.Array); ok {
		// a spill origin displays its top-left element
		return e.projection(addr, addr)
	}
	if c.Value != nil {
		return c.Value
	}
	if c.Literal != nil {
		return c.Literal
	}
	return value.Blank{}
}

func (e *Engine) projection(origin, at cell.Address) value.Value {
	s, ok := e.wb.SheetByID(origin.Sheet)
	if !ok {
		return value.Blank{}
	}
	c, ok := s.Cell(origin.Row, origin.Col)
	if !ok {
		return value.Blank{}
	}
	arr, ok := c.Value.(*value.Array)
	if !ok {
		return value.Blank{}
	}
	r := int(at.Row) - int(origin.Row)
	col := int(at.Col) - int(origin.Col)
	if r < 0 || col < 0 || r >= arr.Rows || col >= arr.Cols {
		return value.Blank{}
	}
	return arr.At(r, col)
}

// CellInfo pairs a cell's raw input with its displayed value.
type CellInfo struct {
	Input string
	Value value.Value
}

// GetCell returns the raw input and displayed value at a reference.
func (e *Engine) GetCell(sheetName, ref string) (CellInfo, error) {
	s, addr, err := e.resolve(sheetName, ref)
	if err != nil {
		return CellInfo{}, err
	}
	info := CellInfo{Value: e.displayed(addr)}
	if c, ok := s.Cell(addr.Row, addr.Col); ok {
		info.Input = c.Input
	}
	return info, nil
}

// GetCellValue returns the displayed value at a reference.
func (e *Engine) GetCellValue(sheetName, ref string) (value.Value, error) {
	_, addr, err := e.resolve(sheetName, ref)
	if err != nil {
		return nil, err
	}
	return e.displayed(addr), nil
}

// SpillRangeAt reports the claimed rectangle of a spill origin.
func (e *Engine) SpillRangeAt(sheetName, ref string) (cell.Range, bool, error) {
	_, addr, err := e.resolve(sheetName, ref)
	if err != nil {
		return cell.Range{}, false, err
	}
	r, ok := e.spills.Rect(addr)
	return r, ok, nil
}

// IsDirty reports whether a cell awaits recomputation.
func (e *Engine) IsDirty(sheetName, ref string) (bool, error) {
	_, addr, err := e.resolve(sheetName, ref)
	if err != nil {
		return false, err
	}
	return e.g.IsDirty(addr), nil
}

// Sheets lists the sheet names in tab order.
func (e *Engine) Sheets() []string {
	var out []string
	for _, s := range e.wb.Sheets() {
		out = append(out, s.Name)
	}
	return out
}

// resolve maps a sheet name (empty means the first sheet) and an A1
// reference to a validated address.
func (e *Engine) resolve(sheetName, ref string) (*workbook.Sheet, cell.Address, error) {
	var s *workbook.Sheet
	if sheetName == "" {
		s = e.wb.First()
	} else {
		var ok bool
		s, ok = e.wb.SheetByName(sheetName)
		if !ok {
			return nil, cell.Address{}, gcerrors.New(gcerrors.SheetError, "no sheet named %q", sheetName)
		}
	}
	addr, ok := cell.ParseA1(ref)
	if !ok {
		return nil, cell.Address{}, gcerrors.New(gcerrors.AddressError, "invalid cell reference %q", ref)
	}
	if addr.Row >= s.Rows || addr.Col >= s.Cols {
		return nil, cell.Address{}, gcerrors.New(gcerrors.DimensionError, "%s is outside the %dx%d sheet", ref, s.Rows, s.Cols)
	}
	addr.Sheet = s.ID
	return s, addr, nil
}

// sheetName resolves an id back to its display name.
func (e *Engine) sheetName(id cell.SheetID) string {
	if s, ok := e.wb.SheetByID(id); ok {
		return s.Name
	}
	return ""
}
