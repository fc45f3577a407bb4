package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gridcalc/internal/cell"
)

// Value is the engine's tagged value domain.
// Concrete kinds:
//   - Blank: semantic empty, coerces to 0 / "" contextually
//   - Number: float64, NaN never escapes (mapped to #NUM!)
//   - Bool
//   - Text
//   - Error: first-class error value
//   - *Array: rectangular 2-D dynamic array
//   - *Reference / *ReferenceUnion: deferred range values
//   - *Lambda: first-class function value
type Value interface{ value() }

type Blank struct{}

type Number float64

type Bool bool

type Text string

// Error is a first-class spreadsheet error value.
type Error struct {
	Kind ErrorKind
}

// Array is a rectangular 2-D block of scalar values.
type Array struct {
	Rows int
	Cols int
	Data []Value // row-major, len == Rows*Cols
}

// Reference is a deferred range; it is only materialized when an
// operator needs a value.
type Reference struct {
	Range cell.Range
}

// ReferenceUnion is a union of ranges, as produced by the union
// operator and by structured references selecting multiple items.
type ReferenceUnion struct {
	Ranges []cell.Range
}

// Lambda is a first-class function value. Body is the captured AST
// (opaque here to keep the package a leaf); Env carries by-value
// captures resolved at the definition site.
type Lambda struct {
	Params []string
	Body   any
	Env    map[string]Value
}

func (Blank) value()           {}
func (Number) value()          {}
func (Bool) value()            {}
func (Text) value()            {}
func (Error) value()           {}
func (*Array) value()          {}
func (*Reference) value()      {}
func (*ReferenceUnion) value() {}
func (*Lambda) value()         {}

// NewArray allocates a Rows x Cols array filled with Blank.
func NewArray(rows, cols int) *Array {
	data := make([]Value, rows*cols)
	for i := range data {
		data[i] = Blank{}
	}
	return &Array{Rows: rows, Cols: cols, Data: data}
}

// At returns the element at (row, col).
func (a *Array) At(row, col int) Value {
	return a.Data[row*a.Cols+col]
}

// Set stores v at (row, col).
func (a *Array) Set(row, col int, v Value) {
	a.Data[row*a.Cols+col] = v
}

// Scalar collapses a 1x1 array to its element; other shapes return the
// array unchanged.
func (a *Array) Scalar() Value {
	if a.Rows == 1 && a.Cols == 1 {
		return a.Data[0]
	}
	return a
}

// Err builds an error value of the given kind.
func Err(kind ErrorKind) Error {
	return Error{Kind: kind}
}

// Num builds a Number, mapping NaN and infinities to #NUM!.
func Num(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Err(KindNum)
	}
	return Number(f)
}

// TypeName returns the display name of a value's kind.
func TypeName(v Value) string {
	switch v.(type) {
	case nil, Blank:
		return "blank"
	case Number:
		return "number"
	case Bool:
		return "bool"
	case Text:
		return "text"
	case Error:
		return "error"
	case *Array:
		return "array"
	case *Reference, *ReferenceUnion:
		return "reference"
	case *Lambda:
		return "lambda"
	default:
		return "unknown"
	}
}

// ToDisplay renders the canonical display string for a value: the form
// surfaced over the API boundary and used by the concat operator.
func ToDisplay(v Value) string {
	switch v := v.(type) {
	case nil, Blank:
		return ""
	case Number:
		return FormatNumber(float64(v))
	case Bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case Text:
		return string(v)
	case Error:
		return v.Kind.String()
	case *Array:
		// arrays display their top-left element
		if len(v.Data) > 0 {
			return ToDisplay(v.Data[0])
		}
		return ""
	case *Lambda:
		return "<LAMBDA>"
	case *Reference:
		return v.Range.A1()
	case *ReferenceUnion:
		parts := make([]string, len(v.Ranges))
		for i, r := range v.Ranges {
			parts[i] = r.A1()
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatNumber renders a float the way cells display it: integers
// without a decimal point, up to 15 significant digits otherwise.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', 15, 64)
}
