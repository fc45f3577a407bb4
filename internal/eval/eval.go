// internal/eval/eval.go
package eval

import (
	"math"
	"math/rand"
	"strings"
	"time"

	"gridcalc/internal/cell"
	"gridcalc/internal/parser"
	"gridcalc/internal/stdlib"
	"gridcalc/internal/value"
)

// maxCallDepth bounds lambda and name recursion.
const maxCallDepth = 512

// maxBroadcastCells caps operator result shapes.
const maxBroadcastCells = stdlib.MaxMaterializedCells

// Table describes a structured-reference target.
type Table struct {
	Name    string
	Sheet   cell.SheetID
	Range   cell.Range // full extent including header and total rows
	Headers bool
	Totals  bool
	Columns []string
}

// Resolver is the evaluator's view of the workbook. The engine
// implements it; stdlib.Source covers raw cell access.
type Resolver interface {
	stdlib.Source

	// SheetID maps a sheet name to its id.
	SheetID(name string) (cell.SheetID, bool)
	// SheetSpan lists the ids between two sheets in tab order.
	SheetSpan(first, last string) ([]cell.SheetID, bool)
	// SheetCount reports the number of sheets.
	SheetCount() int
	// NameExpr returns the parsed definition of a defined name. Sheet
	// scope is consulted before workbook scope.
	NameExpr(name string, sheet cell.SheetID) (parser.Expr, bool)
	// TableByName finds a structured-reference table.
	TableByName(name string) (*Table, bool)
	// TableAt finds the table containing an address, for bare
	// [@Column] references.
	TableAt(addr cell.Address) (*Table, bool)
	// SpillRange reports the spill extent anchored at addr.
	SpillRange(anchor cell.Address) (cell.Range, bool)
	// FormulaAt reports a cell's stored formula text.
	FormulaAt(addr cell.Address) (string, bool)
}

// Config carries evaluation-wide settings.
type Config struct {
	Date1904 bool
	Now      time.Time
	Rand     *rand.Rand
}

// Evaluator walks parsed formulas against a resolver.
type Evaluator struct {
	Reg *stdlib.Registry
	Res Resolver
	Cfg Config
}

func New(reg *stdlib.Registry, res Resolver, cfg Config) *Evaluator {
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	return &Evaluator{Reg: reg, Res: res, Cfg: cfg}
}

// frame is one lexical scope for LET and lambda parameters.
type frame struct {
	vars   map[string]value.Value
	parent *frame
}

func (f *frame) lookup(name string) (value.Value, bool) {
	for s := f; s != nil; s = s.parent {
		if v, ok := s.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (f *frame) flatten() map[string]value.Value {
	out := map[string]value.Value{}
	var walk func(*frame)
	walk = func(s *frame) {
		if s == nil {
			return
		}
		walk(s.parent)
		for k, v := range s.vars {
			out[k] = v
		}
	}
	walk(f)
	return out
}

// state is the per-evaluation mutable context.
type state struct {
	ev     *Evaluator
	caller cell.Address
	env    *frame
	depth  int
}

// Eval evaluates a formula body for the given calling cell. The result
// may be a scalar, an array (spill candidate), or an error.
func (e *Evaluator) Eval(expr parser.Expr, caller cell.Address) value.Value {
	st := &state{ev: e, caller: caller}
	v := st.deref(st.eval(expr))
	// a lambda that escapes to the grid has no cell representation
	if _, ok := v.(*value.Lambda); ok {
		return value.Err(value.KindCalc)
	}
	return v
}

// EvalDeferred is Eval without the final reference materialization,
// for callers that care about the reference itself.
func (e *Evaluator) EvalDeferred(expr parser.Expr, caller cell.Address) value.Value {
	st := &state{ev: e, caller: caller}
	return st.eval(expr)
}

// Context builds a handler context rooted at caller, for code that
// dispatches registry functions outside a tree walk.
func (e *Evaluator) Context(caller cell.Address) *stdlib.Context {
	st := &state{ev: e, caller: caller}
	return st.context()
}

// Volatile reports whether the formula must recalculate on every pass.
func (e *Evaluator) Volatile(expr parser.Expr) bool {
	volatile := false
	parser.Walk(expr, func(n parser.Expr) bool {
		if fc, ok := n.(*parser.FuncCall); ok {
			if spec, found := e.Reg.Lookup(fc.Name); found && spec.Volatile {
				volatile = true
				return false
			}
		}
		return true
	})
	return volatile
}

// context builds the stdlib invocation context, wiring the engine
// hooks back through this evaluator.
func (st *state) context() *stdlib.Context {
	e := st.ev
	return &stdlib.Context{
		Caller:   st.caller,
		Date1904: e.Cfg.Date1904,
		Now:      e.Cfg.Now,
		Rand:     e.Cfg.Rand,
		Source:   e.Res,
		CallLambda: func(lam *value.Lambda, args []value.Value) value.Value {
			return st.callLambda(lam, args)
		},
		ResolveText: func(text string, r1c1 bool) value.Value {
			return st.resolveIndirect(text, r1c1)
		},
		FormulaAt:  e.Res.FormulaAt,
		SheetCount: e.Res.SheetCount,
	}
}

func (st *state) eval(expr parser.Expr) value.Value {
	switch n := expr.(type) {
	case *parser.NumberLit:
		return value.Number(n.Value)
	case *parser.TextLit:
		return value.Text(n.Value)
	case *parser.BoolLit:
		return value.Bool(n.Value)
	case *parser.ErrorLit:
		return value.Err(n.Kind)
	case *parser.Ref:
		return st.evalRef(n)
	case *parser.Area:
		return st.evalArea(n)
	case *parser.Ref3D:
		return st.evalRef3D(n)
	case *parser.ExternalRef:
		// external workbooks are not linked in this engine
		return value.Err(value.KindRef)
	case *parser.Name:
		return st.evalName(n)
	case *parser.FuncCall:
		return st.evalCall(n)
	case *parser.Invoke:
		return st.evalInvoke(n)
	case *parser.Binary:
		return st.evalBinary(n)
	case *parser.Unary:
		return st.evalUnary(n)
	case *parser.Percent:
		return st.evalPercent(n)
	case *parser.SpillRef:
		return st.evalSpillRef(n)
	case *parser.ImplicitIntersect:
		return st.evalIntersect(n)
	case *parser.ArrayLit:
		return st.evalArrayLit(n)
	case *parser.Union:
		return st.evalUnion(n)
	case *parser.StructuredRef:
		return st.evalStructured(n)
	case *parser.LambdaLit:
		return &value.Lambda{Params: n.Params, Body: n.Body, Env: st.env.flatten()}
	}
	return value.Err(value.KindValue)
}

func (st *state) sheetOf(name string, has bool) (cell.SheetID, bool) {
	if !has {
		return st.caller.Sheet, true
	}
	return st.ev.Res.SheetID(name)
}

func (st *state) evalRef(n *parser.Ref) value.Value {
	sheet, ok := st.sheetOf(n.Sheet, n.HasSheet)
	if !ok {
		return value.Err(value.KindRef)
	}
	return &value.Reference{Range: cell.CellRange(cell.Address{Sheet: sheet, Row: n.Row, Col: n.Col})}
}

func (st *state) evalArea(n *parser.Area) value.Value {
	sheet, ok := st.sheetOf(n.Sheet, n.HasSheet)
	if !ok {
		return value.Err(value.KindRef)
	}
	r := cell.Range{
		Sheet:    sheet,
		StartRow: n.StartRow, StartCol: n.StartCol,
		EndRow: n.EndRow, EndCol: n.EndCol,
	}
	rows, cols := st.ev.Res.Dims(sheet)
	if n.WholeRow {
		r.StartCol, r.EndCol = 0, cols-1
	}
	if n.WholeCol {
		r.StartRow, r.EndRow = 0, rows-1
	}
	return &value.Reference{Range: r.Normalize()}
}

func (st *state) evalRef3D(n *parser.Ref3D) value.Value {
	ids, ok := st.ev.Res.SheetSpan(n.FirstSheet, n.LastSheet)
	if !ok || len(ids) == 0 {
		return value.Err(value.KindRef)
	}
	ranges := make([]cell.Range, 0, len(ids))
	for _, id := range ids {
		r := cell.Range{
			Sheet:    id,
			StartRow: n.StartRow, StartCol: n.StartCol,
			EndRow: n.EndRow, EndCol: n.EndCol,
		}
		ranges = append(ranges, r.Normalize())
	}
	if len(ranges) == 1 {
		return &value.Reference{Range: ranges[0]}
	}
	return &value.ReferenceUnion{Ranges: ranges}
}

func (st *state) evalName(n *parser.Name) value.Value {
	// LET bindings and lambda parameters shadow defined names
	if v, ok := st.env.lookup(strings.ToUpper(n.Name)); ok && !n.HasSheet {
		return v
	}
	scope := st.caller.Sheet
	if n.HasSheet {
		id, ok := st.ev.Res.SheetID(n.Sheet)
		if !ok {
			return value.Err(value.KindRef)
		}
		scope = id
	}
	expr, ok := st.ev.Res.NameExpr(n.Name, scope)
	if !ok {
		return value.Err(value.KindName)
	}
	if st.depth >= maxCallDepth {
		return value.Err(value.KindNum)
	}
	st.depth++
	v := st.eval(expr)
	st.depth--
	return v
}

func (st *state) evalInvoke(n *parser.Invoke) value.Value {
	callee := st.deref(st.eval(n.Callee))
	if e, ok := callee.(value.Error); ok {
		return e
	}
	lam, ok := callee.(*value.Lambda)
	if !ok {
		return value.Err(value.KindValue)
	}
	args := make([]value.Value, len(n.Args))
	for i, a := range n.Args {
		if a == nil {
			continue
		}
		args[i] = st.eval(a)
	}
	return st.callLambda(lam, args)
}

func (st *state) callLambda(lam *value.Lambda, args []value.Value) value.Value {
	if len(args) != len(lam.Params) {
		return value.Err(value.KindValue)
	}
	body, ok := lam.Body.(parser.Expr)
	if !ok {
		return value.Err(value.KindValue)
	}
	if st.depth >= maxCallDepth {
		return value.Err(value.KindNum)
	}
	vars := map[string]value.Value{}
	for k, v := range lam.Env {
		vars[k] = v
	}
	for i, p := range lam.Params {
		vars[strings.ToUpper(p)] = args[i]
	}
	sub := &state{ev: st.ev, caller: st.caller, env: &frame{vars: vars}, depth: st.depth + 1}
	return sub.deref(sub.eval(body))
}

// resolveIndirect parses reference text on behalf of INDIRECT.
func (st *state) resolveIndirect(text string, r1c1 bool) value.Value {
	expr, err := parser.ParseWith(text, parser.Options{R1C1: r1c1, Anchor: st.caller})
	if err != nil {
		return value.Err(value.KindRef)
	}
	switch expr.(type) {
	case *parser.Ref, *parser.Area, *parser.Name, *parser.StructuredRef:
	default:
		return value.Err(value.KindRef)
	}
	v := st.eval(expr)
	switch v.(type) {
	case *value.Reference, *value.ReferenceUnion:
		return v
	}
	return value.Err(value.KindRef)
}

// deref materializes a reference result into values; unions stay
// errors since a union has no single rectangular materialization.
func (st *state) deref(v value.Value) value.Value {
	return Deref(st.context(), v)
}

// Deref materializes a reference through a stdlib context. The VM
// shares this with the AST walker so both paths agree.
func Deref(ctx *stdlib.Context, v value.Value) value.Value {
	switch ref := v.(type) {
	case *value.Reference:
		m := ctx.MaterializeRange(ref.Range)
		if a, ok := m.(*value.Array); ok {
			return a.Scalar()
		}
		return m
	case *value.ReferenceUnion:
		return value.Err(value.KindValue)
	}
	return v
}

func (st *state) evalArrayLit(n *parser.ArrayLit) value.Value {
	out := value.NewArray(n.Rows, n.Cols)
	for i, el := range n.Elems {
		v := st.deref(st.eval(el))
		if a, ok := v.(*value.Array); ok {
			if len(a.Data) == 1 {
				v = a.Data[0]
			} else {
				return value.Err(value.KindValue)
			}
		}
		if _, isLam := v.(*value.Lambda); isLam {
			return value.Err(value.KindValue)
		}
		out.Data[i] = v
	}
	return out
}

func (st *state) evalUnion(n *parser.Union) value.Value {
	var ranges []cell.Range
	for _, item := range n.Items {
		v := st.eval(item)
		switch v := v.(type) {
		case *value.Reference:
			ranges = append(ranges, v.Range)
		case *value.ReferenceUnion:
			ranges = append(ranges, v.Ranges...)
		case value.Error:
			return v
		default:
			return value.Err(value.KindValue)
		}
	}
	if len(ranges) == 1 {
		return &value.Reference{Range: ranges[0]}
	}
	return &value.ReferenceUnion{Ranges: ranges}
}

func (st *state) evalSpillRef(n *parser.SpillRef) value.Value {
	v := st.eval(n.Operand)
	ref, ok := v.(*value.Reference)
	if !ok {
		if e, isErr := v.(value.Error); isErr {
			return e
		}
		return value.Err(value.KindRef)
	}
	if !ref.Range.IsCell() {
		return value.Err(value.KindRef)
	}
	spill, ok := st.ev.Res.SpillRange(ref.Range.TopLeft())
	if !ok {
		// an unspilled anchor refers to just itself
		return ref
	}
	return &value.Reference{Range: spill}
}

// evalIntersect applies @: project a reference onto the caller's row
// or column, or take the top-left of an array.
func (st *state) evalIntersect(n *parser.ImplicitIntersect) value.Value {
	v := st.eval(n.Operand)
	switch v := v.(type) {
	case *value.Reference:
		r := v.Range
		if r.IsCell() {
			return v
		}
		if r.Sheet == st.caller.Sheet {
			// single column: pick the caller's row; single row: the column
			if r.Cols() == 1 && st.caller.Row >= r.StartRow && st.caller.Row <= r.EndRow {
				return &value.Reference{Range: cell.CellRange(cell.Address{Sheet: r.Sheet, Row: st.caller.Row, Col: r.StartCol})}
			}
			if r.Rows() == 1 && st.caller.Col >= r.StartCol && st.caller.Col <= r.EndCol {
				return &value.Reference{Range: cell.CellRange(cell.Address{Sheet: r.Sheet, Row: r.StartRow, Col: st.caller.Col})}
			}
		}
		return value.Err(value.KindValue)
	case *value.Array:
		if len(v.Data) == 0 {
			return value.Err(value.KindValue)
		}
		return v.Data[0]
	case *value.ReferenceUnion:
		return value.Err(value.KindValue)
	}
	return v
}

func (st *state) evalPercent(n *parser.Percent) value.Value {
	return PercentValue(st.context(), st.eval(n.Operand))
}

func (st *state) evalUnary(n *parser.Unary) value.Value {
	v := st.eval(n.Operand)
	switch n.Op {
	case "-":
		return NegateValue(st.context(), v)
	case "+":
		// unary plus passes anything through untouched
		return v
	}
	return value.Err(value.KindValue)
}

// PercentValue applies the % postfix with broadcast over arrays.
func PercentValue(ctx *stdlib.Context, v value.Value) value.Value {
	return mapNumeric(ctx, v, func(f float64) value.Value { return value.Num(f / 100) })
}

// NegateValue applies unary minus with broadcast over arrays.
func NegateValue(ctx *stdlib.Context, v value.Value) value.Value {
	return mapNumeric(ctx, v, func(f float64) value.Value { return value.Num(-f) })
}

// mapNumeric applies a scalar numeric op with broadcast over arrays.
func mapNumeric(ctx *stdlib.Context, v value.Value, fn func(float64) value.Value) value.Value {
	v = Deref(ctx, v)
	if arr, ok := v.(*value.Array); ok {
		out := value.NewArray(arr.Rows, arr.Cols)
		for i, el := range arr.Data {
			out.Data[i] = mapNumeric(ctx, el, fn)
		}
		return out
	}
	f, errv, ok := value.CoerceNumber(v)
	if !ok {
		return errv
	}
	return fn(f)
}

func (st *state) evalBinary(n *parser.Binary) value.Value {
	if n.Op == ":" {
		return st.evalRangeOp(n)
	}
	return BinaryValue(st.context(), n.Op, st.eval(n.Left), st.eval(n.Right))
}

// BinaryValue applies an infix operator with elementwise broadcast,
// materializing reference operands through ctx.
func BinaryValue(ctx *stdlib.Context, op string, left, right value.Value) value.Value {
	left = Deref(ctx, left)
	right = Deref(ctx, right)
	la, lok := left.(*value.Array)
	ra, rok := right.(*value.Array)
	if !lok && !rok {
		return applyBinary(op, left, right)
	}
	rows, cols := 1, 1
	if lok {
		rows, cols = la.Rows, la.Cols
	}
	if rok {
		if ra.Rows > rows {
			rows = ra.Rows
		}
		if ra.Cols > cols {
			cols = ra.Cols
		}
	}
	if rows*cols > maxBroadcastCells {
		return value.Err(value.KindNum)
	}
	out := value.NewArray(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			lv := broadcastAt(left, r, c)
			rv := broadcastAt(right, r, c)
			out.Set(r, c, applyBinary(op, lv, rv))
		}
	}
	return out
}

// broadcastAt picks the element of v for position (r, c), expanding
// length-1 dimensions.
func broadcastAt(v value.Value, r, c int) value.Value {
	arr, ok := v.(*value.Array)
	if !ok {
		return v
	}
	rr, cc := r, c
	if arr.Rows == 1 {
		rr = 0
	}
	if arr.Cols == 1 {
		cc = 0
	}
	if rr >= arr.Rows || cc >= arr.Cols {
		return value.Err(value.KindNA)
	}
	return arr.At(rr, cc)
}

// evalRangeOp joins two computed references into their bounding box.
func (st *state) evalRangeOp(n *parser.Binary) value.Value {
	left := st.eval(n.Left)
	right := st.eval(n.Right)
	lr, lok := left.(*value.Reference)
	rr, rok := right.(*value.Reference)
	if !lok || !rok {
		if e, ok := left.(value.Error); ok {
			return e
		}
		if e, ok := right.(value.Error); ok {
			return e
		}
		return value.Err(value.KindValue)
	}
	if lr.Range.Sheet != rr.Range.Sheet {
		return value.Err(value.KindValue)
	}
	out := lr.Range
	if rr.Range.StartRow < out.StartRow {
		out.StartRow = rr.Range.StartRow
	}
	if rr.Range.StartCol < out.StartCol {
		out.StartCol = rr.Range.StartCol
	}
	if rr.Range.EndRow > out.EndRow {
		out.EndRow = rr.Range.EndRow
	}
	if rr.Range.EndCol > out.EndCol {
		out.EndCol = rr.Range.EndCol
	}
	return &value.Reference{Range: out}
}

func applyBinary(op string, left, right value.Value) value.Value {
	if e, ok := left.(value.Error); ok {
		return e
	}
	if e, ok := right.(value.Error); ok {
		return e
	}
	switch op {
	case "+", "-", "*", "/", "^":
		lf, errv, ok := value.CoerceNumber(left)
		if !ok {
			return errv
		}
		rf, errv, ok := value.CoerceNumber(right)
		if !ok {
			return errv
		}
		switch op {
		case "+":
			return value.Num(lf + rf)
		case "-":
			return value.Num(lf - rf)
		case "*":
			return value.Num(lf * rf)
		case "/":
			if rf == 0 {
				return value.Err(value.KindDiv0)
			}
			return value.Num(lf / rf)
		case "^":
			if lf == 0 && rf == 0 {
				return value.Err(value.KindNum)
			}
			return value.Num(math.Pow(lf, rf))
		}
	case "&":
		ls, errv, ok := value.CoerceText(left)
		if !ok {
			return errv
		}
		rs, errv, ok := value.CoerceText(right)
		if !ok {
			return errv
		}
		return value.Text(ls + rs)
	case "=", "<>", "<", "<=", ">", ">=":
		return compareValues(op, left, right)
	}
	return value.Err(value.KindValue)
}

// compareValues applies the cross-type ordering: numbers < text <
// booleans, text case-insensitive, blanks equal the other side's zero
// value.
func compareValues(op string, left, right value.Value) value.Value {
	if op == "=" {
		return value.Bool(value.EqualValues(left, right))
	}
	if op == "<>" {
		return value.Bool(!value.EqualValues(left, right))
	}
	left = fillBlank(left, right)
	right = fillBlank(right, left)
	c := value.Compare(left, right)
	switch op {
	case "<":
		return value.Bool(c < 0)
	case "<=":
		return value.Bool(c <= 0)
	case ">":
		return value.Bool(c > 0)
	case ">=":
		return value.Bool(c >= 0)
	}
	return value.Err(value.KindValue)
}

// fillBlank substitutes a blank with the zero value of the other
// side's type so ordering comparisons behave like the grid.
func fillBlank(v, other value.Value) value.Value {
	if _, ok := v.(value.Blank); !ok {
		return v
	}
	switch other.(type) {
	case value.Text:
		return value.Text("")
	case value.Bool:
		return value.Bool(false)
	}
	return value.Number(0)
}
