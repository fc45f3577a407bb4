package cell

import (
	"fmt"
	"strings"
)

// ColumnName converts a zero-based column index to its letter form
// (0 -> "A", 25 -> "Z", 26 -> "AA").
func ColumnName(col uint32) string {
	var buf [8]byte
	i := len(buf)
	n := int64(col)
	for {
		i--
		buf[i] = byte('A' + n%26)
		n = n/26 - 1
		if n < 0 {
			break
		}
	}
	return string(buf[i:])
}

// ParseColumn converts column letters to a zero-based index. The input
// must be 1..3 ASCII letters.
func ParseColumn(s string) (uint32, bool) {
	if s == "" || len(s) > 3 {
		return 0, false
	}
	n := uint32(0)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		if c < 'A' || c > 'Z' {
			return 0, false
		}
		n = n*26 + uint32(c-'A') + 1
	}
	if n > DefaultCols {
		return 0, false
	}
	return n - 1, true
}

// A1 renders the address in A1 form without a sheet prefix.
func (a Address) A1() string {
	return fmt.Sprintf("%s%d", ColumnName(a.Col), a.Row+1)
}

// A1 renders the range in A1 form; single cells collapse to one address.
func (r Range) A1() string {
	if r.IsCell() {
		return r.TopLeft().A1()
	}
	return fmt.Sprintf("%s%d:%s%d", ColumnName(r.StartCol), r.StartRow+1, ColumnName(r.EndCol), r.EndRow+1)
}

// ParseA1 parses a bare A1 reference like "B12". Absolute markers ($)
// are accepted and ignored.
func ParseA1(s string) (Address, bool) {
	s = strings.TrimPrefix(s, "$")
	i := 0
	for i < len(s) && isLetter(s[i]) {
		i++
	}
	if i == 0 || i > 3 {
		return Address{}, false
	}
	col, ok := ParseColumn(s[:i])
	if !ok {
		return Address{}, false
	}
	rest := strings.TrimPrefix(s[i:], "$")
	if rest == "" {
		return Address{}, false
	}
	row := uint32(0)
	for j := 0; j < len(rest); j++ {
		c := rest[j]
		if c < '0' || c > '9' {
			return Address{}, false
		}
		row = row*10 + uint32(c-'0')
		if row > DefaultRows {
			return Address{}, false
		}
	}
	if row == 0 {
		return Address{}, false
	}
	return Address{Row: row - 1, Col: col}, true
}

func isLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
