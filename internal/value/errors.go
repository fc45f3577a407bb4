package value

// ErrorKind enumerates the spreadsheet error values, following Excel
// conventions.
type ErrorKind uint8

const (
	KindNull        ErrorKind = iota + 1 // #NULL! - no cells in common between ranges
	KindDiv0                             // #DIV/0! - division by zero
	KindValue                            // #VALUE! - wrong type of argument or operand
	KindRef                              // #REF! - invalid cell reference
	KindName                             // #NAME? - unrecognized name
	KindNum                              // #NUM! - number invalid or out of range
	KindNA                               // #N/A - value not available
	KindGettingData                      // #GETTING_DATA - async value still pending
	KindSpill                            // #SPILL! - spill range blocked
	KindCalc                             // #CALC! - calculation engine error
)

var errorNames = map[ErrorKind]string{
	KindNull:        "#NULL!",
	KindDiv0:        "#DIV/0!",
	KindValue:       "#VALUE!",
	KindRef:         "#REF!",
	KindName:        "#NAME?",
	KindNum:         "#NUM!",
	KindNA:          "#N/A",
	KindGettingData: "#GETTING_DATA",
	KindSpill:       "#SPILL!",
	KindCalc:        "#CALC!",
}

func (k ErrorKind) String() string {
	if s, ok := errorNames[k]; ok {
		return s
	}
	return "#VALUE!"
}

// ParseErrorKind recognizes an error literal in formula text.
func ParseErrorKind(s string) (ErrorKind, bool) {
	for k, name := range errorNames {
		if s == name {
			return k, true
		}
	}
	// Excel also accepts #N/A without the trailing detail
	return 0, false
}

// ErrorTypeCode is the ERROR.TYPE ordinal for a kind, or 0 when the
// kind has no legacy ordinal.
func ErrorTypeCode(k ErrorKind) int {
	switch k {
	case KindNull:
		return 1
	case KindDiv0:
		return 2
	case KindValue:
		return 3
	case KindRef:
		return 4
	case KindName:
		return 5
	case KindNum:
		return 6
	case KindNA:
		return 7
	case KindGettingData:
		return 8
	case KindSpill:
		return 9
	case KindCalc:
		return 14
	}
	return 0
}

// FirstError returns the leftmost error among vs, if any. Operators use
// this for the propagate-left-to-right rule.
func FirstError(vs ...Value) (Error, bool) {
	for _, v := range vs {
		if e, ok := v.(Error); ok {
			return e, true
		}
	}
	return Error{}, false
}
