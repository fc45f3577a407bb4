package bytecode

type OpCode byte

const (
	OpPushNum   OpCode = iota // f64 inline
	OpPushText                // constant index u16
	OpPushConst               // constant index u16 (arrays)
	OpPushBool                // 1 byte
	OpPushBlank
	OpPushError // error kind byte
	OpLoadCell  // sheet u32, row u32, col u32
	OpLoadRange // sheet u32, r1 c1 r2 c2 u32
	OpLoadName  // constant index u16
	OpExpandWholeRow
	OpExpandWholeCol
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpPow
	OpConcat
	OpNeg
	OpPercent
	OpCompare // compare op byte
	OpCall    // func index u16, argc byte
	OpJump
	OpJumpIfFalse
	OpReturn
)

// Comparison operand values for OpCompare.
const (
	CmpEq byte = iota
	CmpNe
	CmpLt
	CmpLe
	CmpGt
	CmpGe
)

var opNames = map[OpCode]string{
	OpPushNum:        "PUSH_NUM",
	OpPushText:       "PUSH_TEXT",
	OpPushConst:      "PUSH_CONST",
	OpPushBool:       "PUSH_BOOL",
	OpPushBlank:      "PUSH_BLANK",
	OpPushError:      "PUSH_ERROR",
	OpLoadCell:       "LOAD_CELL",
	OpLoadRange:      "LOAD_RANGE",
	OpLoadName:       "LOAD_NAME",
	OpExpandWholeRow: "EXPAND_WHOLE_ROW",
	OpExpandWholeCol: "EXPAND_WHOLE_COL",
	OpAdd:            "ADD",
	OpSub:            "SUB",
	OpMul:            "MUL",
	OpDiv:            "DIV",
	OpPow:            "POW",
	OpConcat:         "CONCAT",
	OpNeg:            "NEG",
	OpPercent:        "PERCENT",
	OpCompare:        "COMPARE",
	OpCall:           "CALL",
	OpJump:           "JUMP",
	OpJumpIfFalse:    "JUMP_IF_FALSE",
	OpReturn:         "RETURN",
}

func (op OpCode) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return "UNKNOWN"
}
