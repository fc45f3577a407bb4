// internal/errors/errors.go
package errors

import (
	"fmt"
	"strings"
)

// ErrorType classifies engine-level (API) errors. Value-level errors
// such as #DIV/0! are not Go errors; they live in internal/value.
type ErrorType string

const (
	ParseError     ErrorType = "ParseError"
	AddressError   ErrorType = "AddressError"
	SheetError     ErrorType = "SheetError"
	DimensionError ErrorType = "DimensionError"
	NameError      ErrorType = "NameError"
	TableError     ErrorType = "TableError"
	EditError      ErrorType = "EditError"
)

// EngineError is an API error with an optional position into the
// offending formula text.
type EngineError struct {
	Type    ErrorType
	Message string
	Pos     int    // byte offset into Source, -1 when unknown
	Source  string // the formula or input the error refers to
}

func (e *EngineError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s: %s", e.Type, e.Message))
	if e.Source != "" && e.Pos >= 0 {
		pad := e.Pos
		if pad > len(e.Source) {
			pad = len(e.Source)
		}
		sb.WriteString(fmt.Sprintf("\n  %s\n  %s^", e.Source, strings.Repeat(" ", pad)))
	}
	return sb.String()
}

// New creates an engine error without position information.
func New(t ErrorType, format string, args ...any) *EngineError {
	return &EngineError{Type: t, Message: fmt.Sprintf(format, args...), Pos: -1}
}

// NewParse creates a parse error pointing at a byte offset in source.
func NewParse(message, source string, pos int) *EngineError {
	return &EngineError{Type: ParseError, Message: message, Pos: pos, Source: source}
}

// WithSource attaches the input text the error refers to.
func (e *EngineError) WithSource(source string) *EngineError {
	e.Source = source
	return e
}

// IsType reports whether err is an EngineError of the given type.
func IsType(err error, t ErrorType) bool {
	ee, ok := err.(*EngineError)
	return ok && ee.Type == t
}
