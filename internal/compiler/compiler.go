// internal/compiler/compiler.go
package compiler

import (
	"gridcalc/internal/bytecode"
	"gridcalc/internal/cell"
	"gridcalc/internal/parser"
	"gridcalc/internal/stdlib"
	"gridcalc/internal/value"
)

// Reason classifies why an AST could not be lowered to bytecode. The
// evaluator falls back to tree walking for such cells.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnsupportedFunction
	ReasonUnsupportedExpression
	ReasonNonDefaultSheetDimensions
	ReasonLargeRangeMaterialization
	ReasonDynamicReferenceNeeded
	ReasonLambdaBody
	ReasonVolatileBlackbox
	ReasonArrayLiteralTooLarge
	ReasonTooManyArgs
)

var reasonNames = map[Reason]string{
	ReasonNone:                      "ok",
	ReasonUnsupportedFunction:       "unsupported function",
	ReasonUnsupportedExpression:     "unsupported expression",
	ReasonNonDefaultSheetDimensions: "non-default sheet dimensions",
	ReasonLargeRangeMaterialization: "large range materialization",
	ReasonDynamicReferenceNeeded:    "dynamic reference needed",
	ReasonLambdaBody:                "lambda body",
	ReasonVolatileBlackbox:          "volatile blackbox",
	ReasonArrayLiteralTooLarge:      "array literal too large",
	ReasonTooManyArgs:               "too many arguments",
}

func (r Reason) String() string {
	if s, ok := reasonNames[r]; ok {
		return s
	}
	return "unknown"
}

// Layout is the compiler's view of the workbook geometry.
type Layout interface {
	SheetID(name string) (cell.SheetID, bool)
	Dims(sheet cell.SheetID) (rows, cols uint32)
	Generation(sheet cell.SheetID) uint64
}

const (
	// maxArrayLitCells bounds inline array constants.
	maxArrayLitCells = 1 << 12
	// maxEagerRangeCells bounds ranges materialized outside lazy
	// (reference-mode) argument positions.
	maxEagerRangeCells = 1 << 16
)

type Compiler struct {
	reg *stdlib.Registry
	lay Layout
}

func New(reg *stdlib.Registry, lay Layout) *Compiler {
	return &Compiler{reg: reg, lay: lay}
}

// Compile lowers a formula for the given calling cell. On failure the
// returned program is nil and the reason says why.
func (c *Compiler) Compile(expr parser.Expr, caller cell.Address) (*bytecode.Program, Reason) {
	r := &run{c: c, prog: bytecode.New(), caller: caller}
	if !r.emit(expr, false) {
		return nil, r.reason
	}
	r.prog.WriteOp(bytecode.OpReturn)
	return r.prog, ReasonNone
}

type run struct {
	c      *Compiler
	prog   *bytecode.Program
	caller cell.Address
	reason Reason
}

func (r *run) fail(reason Reason) bool {
	if r.reason == ReasonNone {
		r.reason = reason
	}
	return false
}

// emit lowers one node. lazy is true when the result feeds a
// reference-mode argument, where ranges stay unmaterialized.
func (r *run) emit(e parser.Expr, lazy bool) bool {
	switch n := e.(type) {
	case *parser.NumberLit:
		r.prog.WriteOp(bytecode.OpPushNum)
		r.prog.WriteF64(n.Value)
	case *parser.TextLit:
		idx := r.prog.AddConstant(value.Text(n.Value))
		r.prog.WriteOp(bytecode.OpPushText)
		r.prog.WriteU16(uint16(idx))
	case *parser.BoolLit:
		r.prog.WriteOp(bytecode.OpPushBool)
		if n.Value {
			r.prog.WriteByte(1)
		} else {
			r.prog.WriteByte(0)
		}
	case *parser.ErrorLit:
		r.prog.WriteOp(bytecode.OpPushError)
		r.prog.WriteByte(byte(n.Kind))
	case *parser.Ref:
		return r.emitRef(n)
	case *parser.Area:
		return r.emitArea(n, lazy)
	case *parser.Name:
		if n.HasSheet {
			return r.fail(ReasonUnsupportedExpression)
		}
		idx := r.prog.AddConstant(value.Text(n.Name))
		r.prog.WriteOp(bytecode.OpLoadName)
		r.prog.WriteU16(uint16(idx))
	case *parser.FuncCall:
		return r.emitCall(n)
	case *parser.Binary:
		return r.emitBinary(n)
	case *parser.Unary:
		switch n.Op {
		case "+":
			return r.emit(n.Operand, lazy)
		case "-":
			if !r.emit(n.Operand, false) {
				return false
			}
			r.prog.WriteOp(bytecode.OpNeg)
		default:
			return r.fail(ReasonUnsupportedExpression)
		}
	case *parser.Percent:
		if !r.emit(n.Operand, false) {
			return false
		}
		r.prog.WriteOp(bytecode.OpPercent)
	case *parser.ArrayLit:
		return r.emitArrayLit(n)
	case *parser.SpillRef:
		return r.fail(ReasonDynamicReferenceNeeded)
	case *parser.LambdaLit, *parser.Invoke:
		return r.fail(ReasonLambdaBody)
	default:
		// 3-D refs, unions, structured refs, external refs,
		// implicit intersection
		return r.fail(ReasonUnsupportedExpression)
	}
	return true
}

func (r *run) sheetOf(name string, has bool) (cell.SheetID, bool) {
	if !has {
		return r.caller.Sheet, true
	}
	return r.c.lay.SheetID(name)
}

func (r *run) stamp(sheet cell.SheetID) {
	r.prog.AddStamp(sheet, r.c.lay.Generation(sheet))
}

func (r *run) emitRef(n *parser.Ref) bool {
	sheet, ok := r.sheetOf(n.Sheet, n.HasSheet)
	if !ok {
		// same result the walker produces for an unknown sheet
		r.prog.WriteOp(bytecode.OpPushError)
		r.prog.WriteByte(byte(value.KindRef))
		return true
	}
	r.stamp(sheet)
	r.prog.WriteOp(bytecode.OpLoadCell)
	r.prog.WriteU32(uint32(sheet))
	r.prog.WriteU32(n.Row)
	r.prog.WriteU32(n.Col)
	return true
}

func (r *run) emitArea(n *parser.Area, lazy bool) bool {
	sheet, ok := r.sheetOf(n.Sheet, n.HasSheet)
	if !ok {
		r.prog.WriteOp(bytecode.OpPushError)
		r.prog.WriteByte(byte(value.KindRef))
		return true
	}
	rows, cols := r.c.lay.Dims(sheet)
	if n.WholeRow || n.WholeCol {
		// whole-row/col expansion math assumes the stock grid
		if rows != cell.DefaultRows || cols != cell.DefaultCols {
			return r.fail(ReasonNonDefaultSheetDimensions)
		}
		if !lazy {
			return r.fail(ReasonLargeRangeMaterialization)
		}
		r.stamp(sheet)
		if n.WholeRow {
			r.prog.WriteOp(bytecode.OpExpandWholeRow)
			r.prog.WriteU32(uint32(sheet))
			r.prog.WriteU32(min32(n.StartRow, n.EndRow))
			r.prog.WriteU32(max32(n.StartRow, n.EndRow))
		} else {
			r.prog.WriteOp(bytecode.OpExpandWholeCol)
			r.prog.WriteU32(uint32(sheet))
			r.prog.WriteU32(min32(n.StartCol, n.EndCol))
			r.prog.WriteU32(max32(n.StartCol, n.EndCol))
		}
		return true
	}
	rng := cell.Range{
		Sheet:    sheet,
		StartRow: n.StartRow, StartCol: n.StartCol,
		EndRow: n.EndRow, EndCol: n.EndCol,
	}.Normalize()
	if !lazy && rng.Count() > maxEagerRangeCells {
		return r.fail(ReasonLargeRangeMaterialization)
	}
	r.stamp(sheet)
	r.prog.WriteOp(bytecode.OpLoadRange)
	r.prog.WriteU32(uint32(sheet))
	r.prog.WriteU32(rng.StartRow)
	r.prog.WriteU32(rng.StartCol)
	r.prog.WriteU32(rng.EndRow)
	r.prog.WriteU32(rng.EndCol)
	return true
}

var compareOps = map[string]byte{
	"=":  bytecode.CmpEq,
	"<>": bytecode.CmpNe,
	"<":  bytecode.CmpLt,
	"<=": bytecode.CmpLe,
	">":  bytecode.CmpGt,
	">=": bytecode.CmpGe,
}

func (r *run) emitBinary(n *parser.Binary) bool {
	if n.Op == ":" {
		return r.fail(ReasonDynamicReferenceNeeded)
	}
	if !r.emit(n.Left, false) || !r.emit(n.Right, false) {
		return false
	}
	switch n.Op {
	case "+":
		r.prog.WriteOp(bytecode.OpAdd)
	case "-":
		r.prog.WriteOp(bytecode.OpSub)
	case "*":
		r.prog.WriteOp(bytecode.OpMul)
	case "/":
		r.prog.WriteOp(bytecode.OpDiv)
	case "^":
		r.prog.WriteOp(bytecode.OpPow)
	case "&":
		r.prog.WriteOp(bytecode.OpConcat)
	default:
		op, ok := compareOps[n.Op]
		if !ok {
			return r.fail(ReasonUnsupportedExpression)
		}
		r.prog.WriteOp(bytecode.OpCompare)
		r.prog.WriteByte(op)
	}
	return true
}

func (r *run) emitCall(n *parser.FuncCall) bool {
	switch n.Name {
	case "LET", "LAMBDA":
		return r.fail(ReasonLambdaBody)
	case "INDIRECT", "OFFSET":
		return r.fail(ReasonDynamicReferenceNeeded)
	case "IF":
		return r.emitIf(n)
	}
	spec, ok := r.c.reg.Lookup(n.Name)
	if !ok {
		return r.fail(ReasonUnsupportedFunction)
	}
	if spec.Volatile {
		return r.fail(ReasonVolatileBlackbox)
	}
	if len(n.Args) > 255 {
		return r.fail(ReasonTooManyArgs)
	}
	for i := range n.Args {
		switch spec.Mode(i) {
		case stdlib.ArgLambda:
			return r.fail(ReasonLambdaBody)
		case stdlib.ArgRaw:
			return r.fail(ReasonUnsupportedFunction)
		}
	}
	if !spec.CheckArity(len(n.Args)) {
		r.prog.WriteOp(bytecode.OpPushError)
		r.prog.WriteByte(byte(value.KindValue))
		return true
	}
	for i, a := range n.Args {
		if a == nil {
			// omitted arguments need the walker's nil handling
			return r.fail(ReasonUnsupportedExpression)
		}
		if !r.emit(a, spec.Mode(i) == stdlib.ArgReference) {
			return false
		}
	}
	fidx := r.prog.AddFunc(spec.Name)
	r.prog.WriteOp(bytecode.OpCall)
	r.prog.WriteU16(uint16(fidx))
	r.prog.WriteByte(byte(len(n.Args)))
	return true
}

// emitIf lowers IF as a scalar branch; the VM bails out to the walker
// when the condition turns out to be an array.
func (r *run) emitIf(n *parser.FuncCall) bool {
	if len(n.Args) < 2 || len(n.Args) > 3 {
		r.prog.WriteOp(bytecode.OpPushError)
		r.prog.WriteByte(byte(value.KindValue))
		return true
	}
	for _, a := range n.Args {
		if a == nil {
			return r.fail(ReasonUnsupportedExpression)
		}
	}
	if !r.emit(n.Args[0], false) {
		return false
	}
	r.prog.WriteOp(bytecode.OpJumpIfFalse)
	elseJump := len(r.prog.Code)
	r.prog.WriteU16(0)
	if !r.emit(n.Args[1], false) {
		return false
	}
	r.prog.WriteOp(bytecode.OpJump)
	endJump := len(r.prog.Code)
	r.prog.WriteU16(0)
	r.prog.PatchU16(elseJump, uint16(len(r.prog.Code)))
	if len(n.Args) == 3 {
		if !r.emit(n.Args[2], false) {
			return false
		}
	} else {
		r.prog.WriteOp(bytecode.OpPushBool)
		r.prog.WriteByte(0)
	}
	r.prog.PatchU16(endJump, uint16(len(r.prog.Code)))
	return true
}

func (r *run) emitArrayLit(n *parser.ArrayLit) bool {
	if n.Rows*n.Cols > maxArrayLitCells {
		return r.fail(ReasonArrayLiteralTooLarge)
	}
	arr := value.NewArray(n.Rows, n.Cols)
	for i, el := range n.Elems {
		switch lit := el.(type) {
		case *parser.NumberLit:
			arr.Data[i] = value.Number(lit.Value)
		case *parser.TextLit:
			arr.Data[i] = value.Text(lit.Value)
		case *parser.BoolLit:
			arr.Data[i] = value.Bool(lit.Value)
		case *parser.ErrorLit:
			arr.Data[i] = value.Err(lit.Kind)
		case *parser.Unary:
			num, ok := lit.Operand.(*parser.NumberLit)
			if !ok || lit.Op != "-" {
				return r.fail(ReasonUnsupportedExpression)
			}
			arr.Data[i] = value.Number(-num.Value)
		default:
			return r.fail(ReasonUnsupportedExpression)
		}
	}
	idx := r.prog.AddConstant(arr)
	r.prog.WriteOp(bytecode.OpPushConst)
	r.prog.WriteU16(uint16(idx))
	return true
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
