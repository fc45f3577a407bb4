package parser

import (
	"gridcalc/internal/value"
)

// Expr is a node of a parsed formula.
type Expr interface {
	exprNode()
}

// NumberLit is a numeric literal.
type NumberLit struct {
	Value float64
}

// TextLit is a string literal.
type TextLit struct {
	Value string
}

// BoolLit is TRUE or FALSE.
type BoolLit struct {
	Value bool
}

// ErrorLit is an error literal such as #REF!.
type ErrorLit struct {
	Kind value.ErrorKind
}

// Ref is a single-cell reference. Sheet is empty for the current
// sheet. Row/Col are zero-based absolute grid coordinates.
type Ref struct {
	Sheet    string
	HasSheet bool
	Row, Col uint32
	AbsRow   bool
	AbsCol   bool
}

// Area is a rectangular range reference. Whole-column refs (A:A) set
// WholeCol and leave rows at the full sheet extent; whole-row refs
// (1:1) set WholeRow likewise.
type Area struct {
	Sheet              string
	HasSheet           bool
	StartRow, StartCol uint32
	EndRow, EndCol     uint32
	AbsStartRow        bool
	AbsStartCol        bool
	AbsEndRow          bool
	AbsEndCol          bool
	WholeRow           bool
	WholeCol           bool
}

// Ref3D is a reference spanning a contiguous sheet range:
// Sheet1:Sheet3!A1 or Sheet1:Sheet3!A1:B2.
type Ref3D struct {
	FirstSheet, LastSheet string
	StartRow, StartCol    uint32
	EndRow, EndCol        uint32
}

// ExternalRef is a reference into another workbook: [Book2.xlsx]Sheet1!A1.
// Parsed for fidelity; resolution yields #REF! in this engine.
type ExternalRef struct {
	Book  string
	Inner Expr
}

// Name references a defined name or late-bound identifier. Sheet is a
// sheet qualifier (Sheet1!name) when present.
type Name struct {
	Name     string
	Sheet    string
	HasSheet bool
}

// FuncCall calls a registered or late-bound function by name.
type FuncCall struct {
	Name string
	Args []Expr
}

// Invoke calls a computed callee (a lambda value): LAMBDA(x,x+1)(2).
type Invoke struct {
	Callee Expr
	Args   []Expr
}

// Binary is an infix operation; Op is one of
// + - * / ^ & = <> < <= > >= :
type Binary struct {
	Op    string
	Left  Expr
	Right Expr
}

// Unary is prefix + or -.
type Unary struct {
	Op      string
	Operand Expr
}

// Percent is the postfix % operator.
type Percent struct {
	Operand Expr
}

// SpillRef is the postfix # operator: A1# refers to the spill range
// anchored at A1.
type SpillRef struct {
	Operand Expr
}

// ImplicitIntersect is the @ operator: reduce an array or range to the
// scalar intersecting the caller's row/column.
type ImplicitIntersect struct {
	Operand Expr
}

// ArrayLit is {1,2;3,4}: Rows x Cols elements in row-major order.
type ArrayLit struct {
	Rows  int
	Cols  int
	Elems []Expr
}

// Union is a parenthesized reference union: (A1:A2,B1:B2).
type Union struct {
	Items []Expr
}

// StructuredItem selects a table region in a structured reference.
type StructuredItem uint8

const (
	ItemData StructuredItem = iota
	ItemHeaders
	ItemTotals
	ItemAll
	ItemThisRow
)

func (i StructuredItem) String() string {
	switch i {
	case ItemHeaders:
		return "#Headers"
	case ItemTotals:
		return "#Totals"
	case ItemAll:
		return "#All"
	case ItemThisRow:
		return "#This Row"
	default:
		return "#Data"
	}
}

// ColRange selects table columns: a single column (First == Last) or a
// contiguous span.
type ColRange struct {
	First string
	Last  string
}

// StructuredRef is a table reference such as Table1[[#Headers],[Col]].
// An empty Table means the enclosing table ([@Col] inside a table).
type StructuredRef struct {
	Table   string
	Items   []StructuredItem
	Columns []ColRange
	// ThisRowAt marks the [@Col] shorthand so the serializer can
	// round-trip the compact form.
	ThisRowAt bool
}

// LambdaLit is LAMBDA(p1, ..., body) parsed into its parts.
type LambdaLit struct {
	Params []string
	Body   Expr
}

func (*NumberLit) exprNode()         {}
func (*TextLit) exprNode()           {}
func (*BoolLit) exprNode()           {}
func (*ErrorLit) exprNode()          {}
func (*Ref) exprNode()               {}
func (*Area) exprNode()              {}
func (*Ref3D) exprNode()             {}
func (*ExternalRef) exprNode()       {}
func (*Name) exprNode()              {}
func (*FuncCall) exprNode()          {}
func (*Invoke) exprNode()            {}
func (*Binary) exprNode()            {}
func (*Unary) exprNode()             {}
func (*Percent) exprNode()           {}
func (*SpillRef) exprNode()          {}
func (*ImplicitIntersect) exprNode() {}
func (*ArrayLit) exprNode()          {}
func (*Union) exprNode()             {}
func (*StructuredRef) exprNode()     {}
func (*LambdaLit) exprNode()         {}

// Walk visits expr and every sub-expression in depth-first order.
// Visiting stops when fn returns false.
func Walk(expr Expr, fn func(Expr) bool) bool {
	if expr == nil {
		return true
	}
	if !fn(expr) {
		return false
	}
	switch e := expr.(type) {
	case *FuncCall:
		for _, a := range e.Args {
			if !Walk(a, fn) {
				return false
			}
		}
	case *Invoke:
		if !Walk(e.Callee, fn) {
			return false
		}
		for _, a := range e.Args {
			if !Walk(a, fn) {
				return false
			}
		}
	case *Binary:
		if !Walk(e.Left, fn) {
			return false
		}
		if !Walk(e.Right, fn) {
			return false
		}
	case *Unary:
		if !Walk(e.Operand, fn) {
			return false
		}
	case *Percent:
		if !Walk(e.Operand, fn) {
			return false
		}
	case *SpillRef:
		if !Walk(e.Operand, fn) {
			return false
		}
	case *ImplicitIntersect:
		if !Walk(e.Operand, fn) {
			return false
		}
	case *ExternalRef:
		if !Walk(e.Inner, fn) {
			return false
		}
	case *ArrayLit:
		for _, el := range e.Elems {
			if !Walk(el, fn) {
				return false
			}
		}
	case *Union:
		for _, it := range e.Items {
			if !Walk(it, fn) {
				return false
			}
		}
	case *LambdaLit:
		if !Walk(e.Body, fn) {
			return false
		}
	}
	return true
}
