// internal/vm/vm.go
package vm

import (
	"math"

	"gridcalc/internal/bytecode"
	"gridcalc/internal/cell"
	"gridcalc/internal/eval"
	"gridcalc/internal/stdlib"
	"gridcalc/internal/value"
)

// Host supplies the workbook-side services a program needs at run time.
type Host interface {
	// Context builds the stdlib invocation context for a calling cell.
	Context(caller cell.Address) *stdlib.Context
	// Generation reports the current dimension generation of a sheet.
	Generation(sheet cell.SheetID) uint64
	// NameValue evaluates a defined name for a calling cell.
	NameValue(name string, caller cell.Address) value.Value
}

// VM executes compiled formula programs. A zero-argument result of
// ok=false means the program could not run (stale stamps or a shape
// the compiler could not predict) and the caller must fall back to
// the AST walker.
type VM struct {
	Reg  *stdlib.Registry
	Host Host

	stack []value.Value
}

func New(reg *stdlib.Registry, host Host) *VM {
	return &VM{Reg: reg, Host: host, stack: make([]value.Value, 0, 16)}
}

func (m *VM) push(v value.Value) {
	m.stack = append(m.stack, v)
}

func (m *VM) pop() value.Value {
	v := m.stack[len(m.stack)-1]
	m.stack = m.stack[:len(m.stack)-1]
	return v
}

// Run executes a program for the given calling cell.
func (m *VM) Run(p *bytecode.Program, caller cell.Address) (value.Value, bool) {
	for _, s := range p.Stamps {
		if m.Host.Generation(s.Sheet) != s.Generation {
			return nil, false
		}
	}
	ctx := m.Host.Context(caller)
	m.stack = m.stack[:0]
	ip := 0

	for ip < len(p.Code) {
		op := bytecode.OpCode(p.Code[ip])
		ip++

		switch op {
		case bytecode.OpPushNum:
			m.push(value.Number(p.ReadF64(ip)))
			ip += 8

		case bytecode.OpPushText, bytecode.OpPushConst:
			m.push(p.Constants[p.ReadU16(ip)])
			ip += 2

		case bytecode.OpPushBool:
			m.push(value.Bool(p.Code[ip] != 0))
			ip++

		case bytecode.OpPushBlank:
			m.push(value.Blank{})

		case bytecode.OpPushError:
			m.push(value.Err(value.ErrorKind(p.Code[ip])))
			ip++

		case bytecode.OpLoadCell:
			sheet := cell.SheetID(p.ReadU32(ip))
			row := p.ReadU32(ip + 4)
			col := p.ReadU32(ip + 8)
			ip += 12
			m.push(ctx.Source.CellValue(cell.Address{Sheet: sheet, Row: row, Col: col}))

		case bytecode.OpLoadRange:
			sheet := cell.SheetID(p.ReadU32(ip))
			rng := cell.Range{
				Sheet:    sheet,
				StartRow: p.ReadU32(ip + 4), StartCol: p.ReadU32(ip + 8),
				EndRow: p.ReadU32(ip + 12), EndCol: p.ReadU32(ip + 16),
			}
			ip += 20
			m.push(&value.Reference{Range: rng})

		case bytecode.OpExpandWholeRow:
			sheet := cell.SheetID(p.ReadU32(ip))
			r1 := p.ReadU32(ip + 4)
			r2 := p.ReadU32(ip + 8)
			ip += 12
			_, cols := ctx.Source.Dims(sheet)
			m.push(&value.Reference{Range: cell.Range{
				Sheet: sheet, StartRow: r1, EndRow: r2, StartCol: 0, EndCol: cols - 1,
			}})

		case bytecode.OpExpandWholeCol:
			sheet := cell.SheetID(p.ReadU32(ip))
			c1 := p.ReadU32(ip + 4)
			c2 := p.ReadU32(ip + 8)
			ip += 12
			rows, _ := ctx.Source.Dims(sheet)
			m.push(&value.Reference{Range: cell.Range{
				Sheet: sheet, StartCol: c1, EndCol: c2, StartRow: 0, EndRow: rows - 1,
			}})

		case bytecode.OpLoadName:
			name := string(p.Constants[p.ReadU16(ip)].(value.Text))
			ip += 2
			m.push(m.Host.NameValue(name, caller))

		case bytecode.OpAdd, bytecode.OpSub, bytecode.OpMul, bytecode.OpDiv, bytecode.OpPow:
			b := m.pop()
			a := m.pop()
			if an, aok := a.(value.Number); aok {
				if bn, bok := b.(value.Number); bok {
					m.push(fastArith(op, float64(an), float64(bn)))
					continue
				}
			}
			m.push(eval.BinaryValue(ctx, arithOp(op), a, b))

		case bytecode.OpConcat:
			b := m.pop()
			a := m.pop()
			m.push(eval.BinaryValue(ctx, "&", a, b))

		case bytecode.OpCompare:
			cmp := p.Code[ip]
			ip++
			b := m.pop()
			a := m.pop()
			m.push(eval.BinaryValue(ctx, compareOp(cmp), a, b))

		case bytecode.OpNeg:
			v := m.pop()
			if n, ok := v.(value.Number); ok {
				m.push(value.Number(-n))
				continue
			}
			m.push(eval.NegateValue(ctx, v))

		case bytecode.OpPercent:
			v := m.pop()
			if n, ok := v.(value.Number); ok {
				m.push(value.Number(n / 100))
				continue
			}
			m.push(eval.PercentValue(ctx, v))

		case bytecode.OpCall:
			fidx := p.ReadU16(ip)
			argc := int(p.Code[ip+2])
			ip += 3
			spec, ok := m.Reg.Lookup(p.Funcs[fidx])
			if !ok {
				return nil, false
			}
			args := make([]value.Value, argc)
			for i := argc - 1; i >= 0; i-- {
				args[i] = m.pop()
			}
			m.push(eval.DispatchSpec(ctx, spec, args))

		case bytecode.OpJump:
			ip = int(p.ReadU16(ip))

		case bytecode.OpJumpIfFalse:
			target := int(p.ReadU16(ip))
			ip += 2
			cond := eval.Deref(ctx, m.pop())
			if e, isErr := cond.(value.Error); isErr {
				return e, true
			}
			if _, isArr := cond.(*value.Array); isArr {
				// the walker handles elementwise IF
				return nil, false
			}
			b, errv, ok := value.CoerceBool(cond)
			if !ok {
				return errv, true
			}
			if !b {
				ip = target
			}

		case bytecode.OpReturn:
			return eval.Deref(ctx, m.pop()), true

		default:
			return nil, false
		}
	}
	return nil, false
}

func fastArith(op bytecode.OpCode, a, b float64) value.Value {
	switch op {
	case bytecode.OpAdd:
		return value.Num(a + b)
	case bytecode.OpSub:
		return value.Num(a - b)
	case bytecode.OpMul:
		return value.Num(a * b)
	case bytecode.OpDiv:
		if b == 0 {
			return value.Err(value.KindDiv0)
		}
		return value.Num(a / b)
	default:
		if a == 0 && b == 0 {
			return value.Err(value.KindNum)
		}
		return value.Num(math.Pow(a, b))
	}
}

func arithOp(op bytecode.OpCode) string {
	switch op {
	case bytecode.OpAdd:
		return "+"
	case bytecode.OpSub:
		return "-"
	case bytecode.OpMul:
		return "*"
	case bytecode.OpDiv:
		return "/"
	}
	return "^"
}

func compareOp(cmp byte) string {
	switch cmp {
	case bytecode.CmpEq:
		return "="
	case bytecode.CmpNe:
		return "<>"
	case bytecode.CmpLt:
		return "<"
	case bytecode.CmpLe:
		return "<="
	case bytecode.CmpGt:
		return ">"
	}
	return ">="
}
