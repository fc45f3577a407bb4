// internal/stdlib/text.go
package stdlib

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"gridcalc/internal/value"
)

var titleCaser = cases.Title(language.Und)

func registerText(r *Registry) {
	r.add(&Spec{Name: "CONCATENATE", MinArgs: 1, MaxArgs: -1, Elementwise: true, Handler: fnConcatenate})
	r.add(&Spec{Name: "CONCAT", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fnConcat})
	r.add(&Spec{Name: "TEXTJOIN", MinArgs: 3, MaxArgs: -1, ArgModes: []ArgMode{ArgScalar, ArgScalar, ArgReference}, Handler: fnTextJoin})
	r.add(&Spec{Name: "LEFT", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnLeft})
	r.add(&Spec{Name: "RIGHT", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnRight})
	r.add(&Spec{Name: "MID", MinArgs: 3, MaxArgs: 3, Elementwise: true, Handler: fnMid})
	r.add(&Spec{Name: "LEN", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnLen})
	r.add(&Spec{Name: "LOWER", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: textMap(strings.ToLower)})
	r.add(&Spec{Name: "UPPER", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: textMap(strings.ToUpper)})
	r.add(&Spec{Name: "PROPER", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: textMap(titleCaser.String)})
	r.add(&Spec{Name: "TRIM", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: textMap(excelTrim)})
	r.add(&Spec{Name: "CLEAN", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: textMap(excelClean)})
	r.add(&Spec{Name: "SUBSTITUTE", MinArgs: 3, MaxArgs: 4, Elementwise: true, Handler: fnSubstitute})
	r.add(&Spec{Name: "REPLACE", MinArgs: 4, MaxArgs: 4, Elementwise: true, Handler: fnReplace})
	r.add(&Spec{Name: "FIND", MinArgs: 2, MaxArgs: 3, Elementwise: true, Handler: fnFind})
	r.add(&Spec{Name: "SEARCH", MinArgs: 2, MaxArgs: 3, Elementwise: true, Handler: fnSearch})
	r.add(&Spec{Name: "EXACT", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnExact})
	r.add(&Spec{Name: "REPT", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnRept})
	r.add(&Spec{Name: "CHAR", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnChar})
	r.add(&Spec{Name: "CODE", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnCode})
	r.add(&Spec{Name: "UNICHAR", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnUnichar})
	r.add(&Spec{Name: "UNICODE", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnUnicode})
	r.add(&Spec{Name: "VALUE", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnValue})
	r.add(&Spec{Name: "NUMBERVALUE", MinArgs: 1, MaxArgs: 3, Elementwise: true, Handler: fnNumberValue})
	r.add(&Spec{Name: "T", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnT})
	r.add(&Spec{Name: "N", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnN})
	r.add(&Spec{Name: "TEXT", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnText})
	r.add(&Spec{Name: "DOLLAR", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnDollar})
	r.add(&Spec{Name: "FIXED", MinArgs: 1, MaxArgs: 3, Elementwise: true, Handler: fnFixed})
	r.add(&Spec{Name: "TEXTBEFORE", MinArgs: 2, MaxArgs: 3, Elementwise: true, Handler: fnTextBefore})
	r.add(&Spec{Name: "TEXTAFTER", MinArgs: 2, MaxArgs: 3, Elementwise: true, Handler: fnTextAfter})
	r.add(&Spec{Name: "TEXTSPLIT", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar}, Handler: fnTextSplit})
}

func textMap(fn func(string) string) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		s, ev, ok := value.CoerceText(args[0])
		if !ok {
			return ev
		}
		return value.Text(fn(s))
	}
}

// excelTrim collapses interior space runs as well as trimming ends.
func excelTrim(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func excelClean(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= 32 && r != 127 {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func fnConcatenate(ctx *Context, args []value.Value) value.Value {
	var sb strings.Builder
	for _, a := range args {
		if a == nil {
			continue
		}
		s, ev, ok := value.CoerceText(a)
		if !ok {
			return ev
		}
		sb.WriteString(s)
	}
	return value.Text(sb.String())
}

func fnConcat(ctx *Context, args []value.Value) value.Value {
	var sb strings.Builder
	var errv value.Value
	for _, a := range args {
		if a == nil {
			continue
		}
		ctx.eachValue(a, func(v value.Value) bool {
			s, ev, ok := value.CoerceText(v)
			if !ok {
				errv = ev
				return false
			}
			sb.WriteString(s)
			return true
		})
		if errv != nil {
			return errv
		}
	}
	return value.Text(sb.String())
}

func fnTextJoin(ctx *Context, args []value.Value) value.Value {
	delim, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	skipEmpty, ev, ok := value.CoerceBool(args[1])
	if !ok {
		return ev
	}
	var parts []string
	var errv value.Value
	for _, a := range args[2:] {
		if a == nil {
			continue
		}
		ctx.eachValue(a, func(v value.Value) bool {
			s, ev, ok := value.CoerceText(v)
			if !ok {
				errv = ev
				return false
			}
			if skipEmpty && s == "" {
				return true
			}
			parts = append(parts, s)
			return true
		})
		if errv != nil {
			return errv
		}
	}
	return value.Text(strings.Join(parts, delim))
}

func fnLeft(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	n := 1
	if len(args) > 1 && args[1] != nil {
		f, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		if f < 0 {
			return value.Err(value.KindValue)
		}
		n = int(f)
	}
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	return value.Text(string(runes[:n]))
}

func fnRight(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	n := 1
	if len(args) > 1 && args[1] != nil {
		f, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		if f < 0 {
			return value.Err(value.KindValue)
		}
		n = int(f)
	}
	runes := []rune(s)
	if n > len(runes) {
		n = len(runes)
	}
	return value.Text(string(runes[len(runes)-n:]))
}

func fnMid(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	startF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	lenF, ev, ok := value.CoerceNumber(args[2])
	if !ok {
		return ev
	}
	start, n := int(startF), int(lenF)
	if start < 1 || n < 0 {
		return value.Err(value.KindValue)
	}
	runes := []rune(s)
	if start > len(runes) {
		return value.Text("")
	}
	end := start - 1 + n
	if end > len(runes) {
		end = len(runes)
	}
	return value.Text(string(runes[start-1 : end]))
}

func fnLen(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	return value.Number(float64(utf8.RuneCountInString(s)))
}

func fnSubstitute(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	old, ev, ok := value.CoerceText(args[1])
	if !ok {
		return ev
	}
	repl, ev, ok := value.CoerceText(args[2])
	if !ok {
		return ev
	}
	if old == "" {
		return value.Text(s)
	}
	if len(args) < 4 || args[3] == nil {
		return value.Text(strings.ReplaceAll(s, old, repl))
	}
	nthF, ev, ok := value.CoerceNumber(args[3])
	if !ok {
		return ev
	}
	nth := int(nthF)
	if nth < 1 {
		return value.Err(value.KindValue)
	}
	pos := 0
	for i := 0; i < nth; i++ {
		idx := strings.Index(s[pos:], old)
		if idx < 0 {
			return value.Text(s)
		}
		pos += idx
		if i < nth-1 {
			pos += len(old)
		}
	}
	return value.Text(s[:pos] + repl + s[pos+len(old):])
}

func fnReplace(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	startF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	countF, ev, ok := value.CoerceNumber(args[2])
	if !ok {
		return ev
	}
	repl, ev, ok := value.CoerceText(args[3])
	if !ok {
		return ev
	}
	start, count := int(startF), int(countF)
	if start < 1 || count < 0 {
		return value.Err(value.KindValue)
	}
	runes := []rune(s)
	if start > len(runes)+1 {
		start = len(runes) + 1
	}
	end := start - 1 + count
	if end > len(runes) {
		end = len(runes)
	}
	return value.Text(string(runes[:start-1]) + repl + string(runes[end:]))
}

func findCore(ctx *Context, args []value.Value, caseless, wild bool) value.Value {
	needle, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	hay, ev, ok := value.CoerceText(args[1])
	if !ok {
		return ev
	}
	start := 1
	if len(args) > 2 && args[2] != nil {
		f, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		start = int(f)
	}
	hayRunes := []rune(hay)
	if start < 1 || start > len(hayRunes)+1 {
		return value.Err(value.KindValue)
	}
	if caseless {
		needle = strings.ToUpper(needle)
	}
	for i := start - 1; i <= len(hayRunes); i++ {
		rest := string(hayRunes[i:])
		if caseless {
			rest = strings.ToUpper(rest)
		}
		if wild {
			// anchor the pattern at this offset
			if wildPrefix([]rune(needle), []rune(rest)) {
				return value.Number(float64(i + 1))
			}
		} else if strings.HasPrefix(rest, needle) {
			return value.Number(float64(i + 1))
		}
	}
	return value.Err(value.KindValue)
}

// wildPrefix reports whether the pattern matches some prefix of s.
func wildPrefix(p, s []rune) bool {
	if len(p) == 0 {
		return true
	}
	switch p[0] {
	case '*':
		for i := 0; i <= len(s); i++ {
			if wildPrefix(p[1:], s[i:]) {
				return true
			}
		}
		return false
	case '?':
		return len(s) > 0 && wildPrefix(p[1:], s[1:])
	case '~':
		if len(p) < 2 {
			return len(s) > 0 && s[0] == '~'
		}
		return len(s) > 0 && s[0] == p[1] && wildPrefix(p[2:], s[1:])
	}
	return len(s) > 0 && s[0] == p[0] && wildPrefix(p[1:], s[1:])
}

func fnFind(ctx *Context, args []value.Value) value.Value {
	return findCore(ctx, args, false, false)
}

func fnSearch(ctx *Context, args []value.Value) value.Value {
	return findCore(ctx, args, true, true)
}

func fnExact(ctx *Context, args []value.Value) value.Value {
	a, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	b, ev, ok := value.CoerceText(args[1])
	if !ok {
		return ev
	}
	return value.Bool(a == b)
}

func fnRept(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	nF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	n := int(nF)
	if n < 0 || n*len(s) > 32767 {
		return value.Err(value.KindValue)
	}
	return value.Text(strings.Repeat(s, n))
}

func fnChar(ctx *Context, args []value.Value) value.Value {
	f, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	n := int(f)
	if n < 1 || n > 255 {
		return value.Err(value.KindValue)
	}
	return value.Text(string(rune(n)))
}

func fnCode(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	if s == "" {
		return value.Err(value.KindValue)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return value.Number(float64(r))
}

func fnUnichar(ctx *Context, args []value.Value) value.Value {
	f, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	n := int64(f)
	if n < 1 || n > 0x10FFFF || (n >= 0xD800 && n <= 0xDFFF) {
		return value.Err(value.KindValue)
	}
	return value.Text(string(rune(n)))
}

func fnUnicode(ctx *Context, args []value.Value) value.Value {
	return fnCode(ctx, args)
}

func fnValue(ctx *Context, args []value.Value) value.Value {
	if n, ok := args[0].(value.Number); ok {
		return n
	}
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	if f, ok := value.ParseNumber(s); ok {
		return value.Num(f)
	}
	if serial, ok := parseDateText(ctx, s); ok {
		return value.Num(serial)
	}
	return value.Err(value.KindValue)
}

func fnNumberValue(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	dec := "."
	if len(args) > 1 && args[1] != nil {
		d, ev, ok := value.CoerceText(args[1])
		if !ok {
			return ev
		}
		if d == "" {
			return value.Err(value.KindValue)
		}
		dec = d[:1]
	}
	group := ","
	if len(args) > 2 && args[2] != nil {
		g, ev, ok := value.CoerceText(args[2])
		if !ok {
			return ev
		}
		if g == "" {
			return value.Err(value.KindValue)
		}
		group = g[:1]
	}
	if dec == group {
		return value.Err(value.KindValue)
	}
	s = strings.TrimSpace(s)
	pct := 0
	for strings.HasSuffix(s, "%") {
		pct++
		s = strings.TrimSuffix(s, "%")
	}
	s = strings.ReplaceAll(s, group, "")
	s = strings.Replace(s, dec, ".", 1)
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return value.Err(value.KindValue)
	}
	for ; pct > 0; pct-- {
		f /= 100
	}
	return value.Num(f)
}

func fnT(ctx *Context, args []value.Value) value.Value {
	if t, ok := args[0].(value.Text); ok {
		return t
	}
	if e, ok := args[0].(value.Error); ok {
		return e
	}
	return value.Text("")
}

func fnN(ctx *Context, args []value.Value) value.Value {
	switch v := args[0].(type) {
	case value.Number:
		return v
	case value.Bool:
		if v {
			return value.Number(1)
		}
		return value.Number(0)
	case value.Error:
		return v
	}
	return value.Number(0)
}

func fnText(ctx *Context, args []value.Value) value.Value {
	fmtStr, ev, ok := value.CoerceText(args[1])
	if !ok {
		return ev
	}
	if e, isErr := args[0].(value.Error); isErr {
		return e
	}
	f, _, ok := value.CoerceNumber(args[0])
	if !ok {
		// non-numeric text passes through unchanged
		s, ev, ok := value.CoerceText(args[0])
		if !ok {
			return ev
		}
		return value.Text(s)
	}
	return value.Text(formatWithPattern(ctx, f, fmtStr))
}

func fnDollar(ctx *Context, args []value.Value) value.Value {
	f, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	dec := 2
	if len(args) > 1 && args[1] != nil {
		d, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		dec = int(d)
	}
	s := fixedFormat(math.Abs(f), dec, true)
	if f < 0 {
		return value.Text("($" + s + ")")
	}
	return value.Text("$" + s)
}

func fnFixed(ctx *Context, args []value.Value) value.Value {
	f, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	dec := 2
	if len(args) > 1 && args[1] != nil {
		d, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		dec = int(d)
	}
	noCommas := false
	if len(args) > 2 && args[2] != nil {
		b, ev, ok := value.CoerceBool(args[2])
		if !ok {
			return ev
		}
		noCommas = b
	}
	return value.Text(fixedFormat(f, dec, !noCommas))
}

// fixedFormat renders f with dec decimals; negative dec rounds left of
// the decimal point.
func fixedFormat(f float64, dec int, commas bool) string {
	if dec < 0 {
		scale := math.Pow(10, float64(-dec))
		f = math.Round(f/scale) * scale
		dec = 0
	}
	s := strconv.FormatFloat(f, 'f', dec, 64)
	if !commas {
		return s
	}
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}
	var sb strings.Builder
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}
	out := sb.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}

// formatWithPattern covers the common TEXT patterns: digit
// placeholders with optional thousands separator and percent, plus the
// date and time tokens.
func formatWithPattern(ctx *Context, f float64, pattern string) string {
	if pattern == "" || strings.EqualFold(pattern, "general") {
		return value.FormatNumber(f)
	}
	if isDatePattern(pattern) {
		return formatSerialDate(ctx, f, pattern)
	}
	pct := strings.Count(pattern, "%")
	for i := 0; i < pct; i++ {
		f *= 100
	}
	commas := strings.Contains(pattern, ",")
	core := strings.Map(func(r rune) rune {
		if r == ',' || r == '%' {
			return -1
		}
		return r
	}, pattern)
	dec := 0
	if i := strings.IndexByte(core, '.'); i >= 0 {
		for _, c := range core[i+1:] {
			if c == '0' || c == '#' {
				dec++
			}
		}
	}
	s := fixedFormat(f, dec, commas)
	if pct > 0 {
		s += strings.Repeat("%", pct)
	}
	return s
}

func isDatePattern(pattern string) bool {
	lower := strings.ToLower(pattern)
	for _, tok := range []string{"yy", "mm", "dd", "hh", "ss", "d", "m", "h", "y"} {
		if strings.Contains(lower, tok) {
			// "#" and "0" patterns never contain letters
			return true
		}
	}
	return false
}

// formatSerialDate renders a date serial using the y/m/d/h/s tokens.
func formatSerialDate(ctx *Context, serial float64, pattern string) string {
	t, ok := serialToTime(ctx, serial)
	if !ok {
		return value.FormatNumber(serial)
	}
	lower := strings.ToLower(pattern)
	var sb strings.Builder
	i := 0
	for i < len(lower) {
		switch {
		case strings.HasPrefix(lower[i:], "yyyy"):
			fmt.Fprintf(&sb, "%04d", t.Year())
			i += 4
		case strings.HasPrefix(lower[i:], "yy"):
			fmt.Fprintf(&sb, "%02d", t.Year()%100)
			i += 2
		case strings.HasPrefix(lower[i:], "mmmm"):
			sb.WriteString(t.Month().String())
			i += 4
		case strings.HasPrefix(lower[i:], "mmm"):
			sb.WriteString(t.Month().String()[:3])
			i += 3
		case strings.HasPrefix(lower[i:], "mm"):
			fmt.Fprintf(&sb, "%02d", int(t.Month()))
			i += 2
		case strings.HasPrefix(lower[i:], "m"):
			fmt.Fprintf(&sb, "%d", int(t.Month()))
			i++
		case strings.HasPrefix(lower[i:], "dddd"):
			sb.WriteString(t.Weekday().String())
			i += 4
		case strings.HasPrefix(lower[i:], "ddd"):
			sb.WriteString(t.Weekday().String()[:3])
			i += 3
		case strings.HasPrefix(lower[i:], "dd"):
			fmt.Fprintf(&sb, "%02d", t.Day())
			i += 2
		case strings.HasPrefix(lower[i:], "d"):
			fmt.Fprintf(&sb, "%d", t.Day())
			i++
		case strings.HasPrefix(lower[i:], "hh"):
			fmt.Fprintf(&sb, "%02d", t.Hour())
			i += 2
		case strings.HasPrefix(lower[i:], "h"):
			fmt.Fprintf(&sb, "%d", t.Hour())
			i++
		case strings.HasPrefix(lower[i:], "ss"):
			fmt.Fprintf(&sb, "%02d", t.Second())
			i += 2
		case strings.HasPrefix(lower[i:], "s"):
			fmt.Fprintf(&sb, "%d", t.Second())
			i++
		default:
			sb.WriteByte(lower[i])
			i++
		}
	}
	// minutes: rewrite m tokens between h and s after the fact is
	// messy; handled above as months, so accept h:mm via special case
	return fixMinuteTokens(sb.String(), t.Minute(), lower)
}

// fixMinuteTokens swaps month renderings for minutes when the token
// directly follows an hour token, the usual h:mm case.
func fixMinuteTokens(rendered string, minute int, lower string) string {
	if !strings.Contains(lower, "h") {
		return rendered
	}
	if i := strings.Index(lower, "h:mm"); i >= 0 {
		// rendered month at that slot is 2 digits too
		idx := strings.Index(rendered, ":")
		if idx >= 0 && idx+3 <= len(rendered) {
			return rendered[:idx+1] + fmt.Sprintf("%02d", minute) + rendered[idx+3:]
		}
	}
	return rendered
}

func fnTextBefore(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	delim, ev, ok := value.CoerceText(args[1])
	if !ok {
		return ev
	}
	n := 1
	if len(args) > 2 && args[2] != nil {
		f, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		n = int(f)
	}
	idx, ok := nthIndex(s, delim, n)
	if !ok {
		return value.Err(value.KindNA)
	}
	return value.Text(s[:idx])
}

func fnTextAfter(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	delim, ev, ok := value.CoerceText(args[1])
	if !ok {
		return ev
	}
	n := 1
	if len(args) > 2 && args[2] != nil {
		f, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		n = int(f)
	}
	idx, ok := nthIndex(s, delim, n)
	if !ok {
		return value.Err(value.KindNA)
	}
	return value.Text(s[idx+len(delim):])
}

// nthIndex finds the nth occurrence of delim; negative n counts from
// the end.
func nthIndex(s, delim string, n int) (int, bool) {
	if delim == "" || n == 0 {
		return 0, false
	}
	var hits []int
	pos := 0
	for {
		i := strings.Index(s[pos:], delim)
		if i < 0 {
			break
		}
		hits = append(hits, pos+i)
		pos += i + len(delim)
	}
	if n > 0 {
		if n > len(hits) {
			return 0, false
		}
		return hits[n-1], true
	}
	if -n > len(hits) {
		return 0, false
	}
	return hits[len(hits)+n], true
}

func fnTextSplit(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	colDelim, ev, ok := value.CoerceText(args[1])
	if !ok {
		return ev
	}
	rowDelim := ""
	if len(args) > 2 && args[2] != nil {
		d, ev, ok := value.CoerceText(args[2])
		if !ok {
			return ev
		}
		rowDelim = d
	}
	if colDelim == "" && rowDelim == "" {
		return value.Err(value.KindValue)
	}
	lines := []string{s}
	if rowDelim != "" {
		lines = strings.Split(s, rowDelim)
	}
	grid := make([][]string, len(lines))
	cols := 0
	for i, line := range lines {
		if colDelim != "" {
			grid[i] = strings.Split(line, colDelim)
		} else {
			grid[i] = []string{line}
		}
		if len(grid[i]) > cols {
			cols = len(grid[i])
		}
	}
	out := value.NewArray(len(lines), cols)
	for r, row := range grid {
		for c := 0; c < cols; c++ {
			if c < len(row) {
				if f, ok := value.ParseNumber(row[c]); ok {
					out.Set(r, c, value.Number(f))
				} else {
					out.Set(r, c, value.Text(row[c]))
				}
			} else {
				out.Set(r, c, value.Err(value.KindNA))
			}
		}
	}
	return out.Scalar()
}
