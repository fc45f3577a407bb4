// internal/formatter/formatter.go
// Package formatter renders a parsed formula back to its text form.
// The engine uses it to regenerate cell input after reference rewrites
// (sheet renames, row and column edits).
package formatter

import (
	"strconv"
	"strings"

	"gridcalc/internal/cell"
	"gridcalc/internal/parser"
)

// Format renders expr as formula text without the leading "=".
func Format(expr parser.Expr) string {
	var sb strings.Builder
	write(&sb, expr, 0)
	return sb.String()
}

// Formula renders expr as enterable cell input, with the leading "=".
func Formula(expr parser.Expr) string {
	return "=" + Format(expr)
}

// Binding strengths, loosest first. The colon range operator binds
// tightest of the binaries.
const (
	precNone = iota
	precCompare
	precConcat
	precAdd
	precMul
	precPow
	precUnary
	precPostfix
	precRange
)

func opPrec(op string) int {
	switch op {
	case "=", "<>", "<", "<=", ">", ">=":
		return precCompare
	case "&":
		return precConcat
	case "+", "-":
		return precAdd
	case "*", "/":
		return precMul
	case "^":
		return precPow
	case ":":
		return precRange
	default:
		return precNone
	}
}

func write(sb *strings.Builder, expr parser.Expr, outer int) {
	switch e := expr.(type) {
	case *parser.NumberLit:
		sb.WriteString(strconv.FormatFloat(e.Value, 'G', -1, 64))
	case *parser.TextLit:
		sb.WriteByte('"')
		sb.WriteString(strings.ReplaceAll(e.Value, `"`, `""`))
		sb.WriteByte('"')
	case *parser.BoolLit:
		if e.Value {
			sb.WriteString("TRUE")
		} else {
			sb.WriteString("FALSE")
		}
	case *parser.ErrorLit:
		sb.WriteString(e.Kind.String())
	case *parser.Ref:
		writeSheetPrefix(sb, e.Sheet, e.HasSheet)
		writeCell(sb, e.Row, e.Col, e.AbsRow, e.AbsCol)
	case *parser.Area:
		writeSheetPrefix(sb, e.Sheet, e.HasSheet)
		writeArea(sb, e)
	case *parser.Ref3D:
		sb.WriteString(QuoteSheetSpan(e.FirstSheet, e.LastSheet))
		sb.WriteByte('!')
		writeCell(sb, e.StartRow, e.StartCol, false, false)
		if e.EndRow != e.StartRow || e.EndCol != e.StartCol {
			sb.WriteByte(':')
			writeCell(sb, e.EndRow, e.EndCol, false, false)
		}
	case *parser.ExternalRef:
		sb.WriteByte('[')
		sb.WriteString(e.Book)
		sb.WriteByte(']')
		write(sb, e.Inner, outer)
	case *parser.Name:
		writeSheetPrefix(sb, e.Sheet, e.HasSheet)
		sb.WriteString(e.Name)
	case *parser.FuncCall:
		sb.WriteString(e.Name)
		sb.WriteByte('(')
		writeArgs(sb, e.Args)
		sb.WriteByte(')')
	case *parser.Invoke:
		write(sb, e.Callee, precPostfix)
		sb.WriteByte('(')
		writeArgs(sb, e.Args)
		sb.WriteByte(')')
	case *parser.Binary:
		p := opPrec(e.Op)
		if p < outer {
			sb.WriteByte('(')
		}
		write(sb, e.Left, p)
		sb.WriteString(e.Op)
		// left-associative: the right operand needs one level more
		write(sb, e.Right, p+1)
		if p < outer {
			sb.WriteByte(')')
		}
	case *parser.Unary:
		if precUnary < outer {
			sb.WriteByte('(')
		}
		sb.WriteString(e.Op)
		write(sb, e.Operand, precUnary)
		if precUnary < outer {
			sb.WriteByte(')')
		}
	case *parser.Percent:
		write(sb, e.Operand, precPostfix)
		sb.WriteByte('%')
	case *parser.SpillRef:
		write(sb, e.Operand, precPostfix)
		sb.WriteByte('#')
	case *parser.ImplicitIntersect:
		sb.WriteByte('@')
		write(sb, e.Operand, precUnary)
	case *parser.ArrayLit:
		sb.WriteByte('{')
		for i, el := range e.Elems {
			if i > 0 {
				if i%e.Cols == 0 {
					sb.WriteByte(';')
				} else {
					sb.WriteByte(',')
				}
			}
			write(sb, el, 0)
		}
		sb.WriteByte('}')
	case *parser.Union:
		sb.WriteByte('(')
		for i, it := range e.Items {
			if i > 0 {
				sb.WriteByte(',')
			}
			write(sb, it, 0)
		}
		sb.WriteByte(')')
	case *parser.StructuredRef:
		writeStructured(sb, e)
	case *parser.LambdaLit:
		sb.WriteString("LAMBDA(")
		for _, p := range e.Params {
			sb.WriteString(p)
			sb.WriteByte(',')
		}
		write(sb, e.Body, 0)
		sb.WriteByte(')')
	}
}

func writeArgs(sb *strings.Builder, args []parser.Expr) {
	for i, a := range args {
		if i > 0 {
			sb.WriteByte(',')
		}
		if a != nil {
			write(sb, a, 0)
		}
	}
}

func writeCell(sb *strings.Builder, row, col uint32, absRow, absCol bool) {
	if absCol {
		sb.WriteByte('$')
	}
	sb.WriteString(cell.ColumnName(col))
	if absRow {
		sb.WriteByte('$')
	}
	sb.WriteString(strconv.FormatUint(uint64(row)+1, 10))
}

func writeArea(sb *strings.Builder, e *parser.Area) {
	switch {
	case e.WholeCol:
		if e.AbsStartCol {
			sb.WriteByte('$')
		}
		sb.WriteString(cell.ColumnName(e.StartCol))
		sb.WriteByte(':')
		if e.AbsEndCol {
			sb.WriteByte('$')
		}
		sb.WriteString(cell.ColumnName(e.EndCol))
	case e.WholeRow:
		if e.AbsStartRow {
			sb.WriteByte('$')
		}
		sb.WriteString(strconv.FormatUint(uint64(e.StartRow)+1, 10))
		sb.WriteByte(':')
		if e.AbsEndRow {
			sb.WriteByte('$')
		}
		sb.WriteString(strconv.FormatUint(uint64(e.EndRow)+1, 10))
	default:
		writeCell(sb, e.StartRow, e.StartCol, e.AbsStartRow, e.AbsStartCol)
		sb.WriteByte(':')
		writeCell(sb, e.EndRow, e.EndCol, e.AbsEndRow, e.AbsEndCol)
	}
}

func writeStructured(sb *strings.Builder, e *parser.StructuredRef) {
	sb.WriteString(e.Table)
	if e.ThisRowAt && len(e.Columns) == 1 && e.Columns[0].First == e.Columns[0].Last {
		sb.WriteString("[@")
		sb.WriteString(e.Columns[0].First)
		sb.WriteByte(']')
		return
	}
	// a lone #Data item is the default and prints in the short form
	dataOnly := len(e.Items) == 0 ||
		(len(e.Items) == 1 && e.Items[0] == parser.ItemData)
	if dataOnly && len(e.Columns) == 1 && e.Columns[0].First == e.Columns[0].Last {
		sb.WriteByte('[')
		sb.WriteString(e.Columns[0].First)
		sb.WriteByte(']')
		return
	}
	sb.WriteByte('[')
	n := 0
	for _, it := range e.Items {
		if n > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('[')
		sb.WriteString(it.String())
		sb.WriteByte(']')
		n++
	}
	for _, c := range e.Columns {
		if n > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('[')
		sb.WriteString(c.First)
		sb.WriteByte(']')
		if c.Last != c.First {
			sb.WriteString(":[")
			sb.WriteString(c.Last)
			sb.WriteByte(']')
		}
		n++
	}
	sb.WriteByte(']')
}

func writeSheetPrefix(sb *strings.Builder, sheet string, has bool) {
	if !has {
		return
	}
	sb.WriteString(QuoteSheet(sheet))
	sb.WriteByte('!')
}

// QuoteSheet wraps a sheet name in single quotes when reference syntax
// requires it: embedded whitespace or punctuation, a name that looks
// like a cell reference, or a boolean literal.
func QuoteSheet(name string) string {
	if !needsQuotes(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// QuoteSheetSpan renders the Sheet1:Sheet3 part of a 3-D reference,
// quoting the whole span as a unit the way Excel does.
func QuoteSheetSpan(first, last string) string {
	if !needsQuotes(first) && !needsQuotes(last) {
		return first + ":" + last
	}
	esc := func(s string) string { return strings.ReplaceAll(s, "'", "''") }
	return "'" + esc(first) + ":" + esc(last) + "'"
}

func needsQuotes(name string) bool {
	if name == "" {
		return true
	}
	up := strings.ToUpper(name)
	if up == "TRUE" || up == "FALSE" {
		return true
	}
	if _, ok := cell.ParseA1(name); ok {
		return true
	}
	if looksR1C1(up) {
		return true
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '.', r > 127:
		case r >= '0' && r <= '9':
		default:
			return true
		}
	}
	// a leading digit needs quoting even with valid characters
	c := name[0]
	return c >= '0' && c <= '9'
}

func looksR1C1(up string) bool {
	if !strings.HasPrefix(up, "R") {
		return false
	}
	i := 1
	for i < len(up) && up[i] >= '0' && up[i] <= '9' {
		i++
	}
	if i >= len(up) || up[i] != 'C' {
		return false
	}
	i++
	for i < len(up) && up[i] >= '0' && up[i] <= '9' {
		i++
	}
	return i == len(up)
}
