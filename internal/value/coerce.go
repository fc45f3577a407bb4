package value

import (
	"strconv"
	"strings"
)

// CoerceNumber applies the numeric coercion lattice: Blank -> 0,
// Bool -> 0/1, Text -> parsed number or #VALUE!, Error propagates.
func CoerceNumber(v Value) (float64, Error, bool) {
	switch v := v.(type) {
	case nil, Blank:
		return 0, Error{}, true
	case Number:
		return float64(v), Error{}, true
	case Bool:
		if v {
			return 1, Error{}, true
		}
		return 0, Error{}, true
	case Text:
		f, ok := ParseNumber(string(v))
		if !ok {
			return 0, Err(KindValue), false
		}
		return f, Error{}, true
	case Error:
		return 0, v, false
	case *Array:
		if s := v.Scalar(); s != Value(v) {
			return CoerceNumber(s)
		}
		return 0, Err(KindValue), false
	default:
		return 0, Err(KindValue), false
	}
}

// CoerceText renders a value for the concat operator: Blank -> "",
// errors propagate.
func CoerceText(v Value) (string, Error, bool) {
	if e, ok := v.(Error); ok {
		return "", e, false
	}
	if a, ok := v.(*Array); ok {
		if s := a.Scalar(); s != Value(a) {
			return CoerceText(s)
		}
		return "", Err(KindValue), false
	}
	return ToDisplay(v), Error{}, true
}

// CoerceBool interprets a value as a condition: numbers are nonzero,
// text must read TRUE/FALSE, Blank is false.
func CoerceBool(v Value) (bool, Error, bool) {
	switch v := v.(type) {
	case nil, Blank:
		return false, Error{}, true
	case Bool:
		return bool(v), Error{}, true
	case Number:
		return v != 0, Error{}, true
	case Text:
		switch strings.ToUpper(strings.TrimSpace(string(v))) {
		case "TRUE":
			return true, Error{}, true
		case "FALSE":
			return false, Error{}, true
		}
		return false, Err(KindValue), false
	case Error:
		return false, v, false
	case *Array:
		if s := v.Scalar(); s != Value(v) {
			return CoerceBool(s)
		}
		return false, Err(KindValue), false
	default:
		return false, Err(KindValue), false
	}
}

// ParseNumber parses text as a number the way cell input does:
// optional leading/trailing space, percent suffix, no thousands
// separators by default.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	percent := false
	if strings.HasSuffix(s, "%") {
		percent = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if percent {
		f /= 100
	}
	return f, true
}

// Compare orders two scalar values with Excel's type precedence:
// Number < Text < Bool. Text compares case-insensitively. Returns
// -1, 0 or 1. Errors must be handled by the caller beforehand.
func Compare(a, b Value) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case rankNumber:
		fa := asNumberForCompare(a)
		fb := asNumberForCompare(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case rankText:
		sa := strings.ToUpper(string(a.(Text)))
		sb := strings.ToUpper(string(b.(Text)))
		return strings.Compare(sa, sb)
	default: // bool
		ba := bool(a.(Bool))
		bb := bool(b.(Bool))
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		}
		return 1
	}
}

// EqualValues implements the = operator on scalars: Blank equals 0 and
// "", text comparison is case-insensitive.
func EqualValues(a, b Value) bool {
	if _, isBlankA := a.(Blank); isBlankA {
		return blankEquals(b)
	}
	if a == nil {
		return blankEquals(b)
	}
	if _, isBlankB := b.(Blank); isBlankB || b == nil {
		return blankEquals(a)
	}
	if typeRank(a) != typeRank(b) {
		return false
	}
	return Compare(a, b) == 0
}

func blankEquals(v Value) bool {
	switch v := v.(type) {
	case nil, Blank:
		return true
	case Number:
		return v == 0
	case Text:
		return v == ""
	case Bool:
		return !bool(v)
	}
	return false
}

const (
	rankNumber = iota
	rankText
	rankBool
)

func typeRank(v Value) int {
	switch v.(type) {
	case Text:
		return rankText
	case Bool:
		return rankBool
	default:
		return rankNumber
	}
}

func asNumberForCompare(v Value) float64 {
	switch v := v.(type) {
	case Number:
		return float64(v)
	case nil, Blank:
		return 0
	}
	return 0
}
