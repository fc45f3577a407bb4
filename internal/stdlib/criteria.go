// internal/stdlib/criteria.go
package stdlib

import (
	"strings"

	"gridcalc/internal/value"
)

func registerCriteria(r *Registry) {
	r.add(&Spec{Name: "COUNTIF", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnCountIf})
	r.add(&Spec{Name: "SUMIF", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgReference}, Handler: fnSumIf})
	r.add(&Spec{Name: "AVERAGEIF", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgReference}, Handler: fnAverageIf})
	r.add(&Spec{Name: "COUNTIFS", MinArgs: 2, MaxArgs: -1, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnCountIfs})
	r.add(&Spec{Name: "SUMIFS", MinArgs: 3, MaxArgs: -1, ArgModes: []ArgMode{ArgReference, ArgReference, ArgScalar}, Handler: fnSumIfs})
	r.add(&Spec{Name: "AVERAGEIFS", MinArgs: 3, MaxArgs: -1, ArgModes: []ArgMode{ArgReference, ArgReference, ArgScalar}, Handler: fnAverageIfs})
	r.add(&Spec{Name: "MINIFS", MinArgs: 3, MaxArgs: -1, ArgModes: []ArgMode{ArgReference, ArgReference, ArgScalar}, Handler: fnMinIfs})
	r.add(&Spec{Name: "MAXIFS", MinArgs: 3, MaxArgs: -1, ArgModes: []ArgMode{ArgReference, ArgReference, ArgScalar}, Handler: fnMaxIfs})
}

type criterionOp uint8

const (
	critEq criterionOp = iota
	critNe
	critLt
	critLe
	critGt
	critGe
)

// criterion is a parsed condition like ">=10", "<>", "app*" or a bare
// value. Text comparisons are case-insensitive and support the ? and *
// wildcards with ~ as the escape.
type criterion struct {
	op      criterionOp
	num     float64
	isNum   bool
	text    string
	errKind value.ErrorKind
	isErr   bool
	isBool  bool
	b       bool
	blank   bool
}

func parseCriterion(v value.Value) criterion {
	switch v := v.(type) {
	case value.Blank:
		return criterion{op: critEq, blank: true}
	case value.Number:
		return criterion{op: critEq, num: float64(v), isNum: true}
	case value.Bool:
		return criterion{op: critEq, isBool: true, b: bool(v)}
	case value.Error:
		return criterion{op: critEq, isErr: true, errKind: v.Kind}
	case value.Text:
		s := string(v)
		op := critEq
		switch {
		case strings.HasPrefix(s, ">="):
			op, s = critGe, s[2:]
		case strings.HasPrefix(s, "<="):
			op, s = critLe, s[2:]
		case strings.HasPrefix(s, "<>"):
			op, s = critNe, s[2:]
		case strings.HasPrefix(s, ">"):
			op, s = critGt, s[1:]
		case strings.HasPrefix(s, "<"):
			op, s = critLt, s[1:]
		case strings.HasPrefix(s, "="):
			op, s = critEq, s[1:]
		}
		if s == "" {
			return criterion{op: op, blank: true}
		}
		if f, ok := value.ParseNumber(s); ok {
			return criterion{op: op, num: f, isNum: true}
		}
		if k, ok := value.ParseErrorKind(s); ok {
			return criterion{op: op, isErr: true, errKind: k}
		}
		switch strings.ToUpper(s) {
		case "TRUE":
			return criterion{op: op, isBool: true, b: true}
		case "FALSE":
			return criterion{op: op, isBool: true, b: false}
		}
		return criterion{op: op, text: s}
	}
	return criterion{op: critEq, blank: true}
}

func (c criterion) matches(v value.Value) bool {
	if c.isErr {
		e, ok := v.(value.Error)
		match := ok && e.Kind == c.errKind
		if c.op == critNe {
			return !match
		}
		return match
	}
	if _, ok := v.(value.Error); ok {
		return false
	}
	if c.blank {
		_, isBlank := v.(value.Blank)
		if t, ok := v.(value.Text); ok && t == "" {
			isBlank = true
		}
		switch c.op {
		case critNe:
			return !isBlank
		default:
			return isBlank
		}
	}
	if c.isBool {
		b, ok := v.(value.Bool)
		match := ok && bool(b) == c.b
		if c.op == critNe {
			return !match
		}
		return match
	}
	if c.isNum {
		n, ok := v.(value.Number)
		if !ok {
			return c.op == critNe
		}
		return cmpMatches(c.op, float64(n), c.num)
	}
	// text criterion
	t, ok := v.(value.Text)
	if !ok {
		return c.op == critNe
	}
	switch c.op {
	case critEq:
		return wildMatch(c.text, string(t))
	case critNe:
		return !wildMatch(c.text, string(t))
	}
	return cmpMatchesText(c.op, string(t), c.text)
}

func cmpMatches(op criterionOp, got, want float64) bool {
	switch op {
	case critEq:
		return got == want
	case critNe:
		return got != want
	case critLt:
		return got < want
	case critLe:
		return got <= want
	case critGt:
		return got > want
	case critGe:
		return got >= want
	}
	return false
}

func cmpMatchesText(op criterionOp, got, want string) bool {
	c := strings.Compare(strings.ToUpper(got), strings.ToUpper(want))
	switch op {
	case critLt:
		return c < 0
	case critLe:
		return c <= 0
	case critGt:
		return c > 0
	case critGe:
		return c >= 0
	}
	return false
}

// wildMatch matches pattern against s, case-insensitive. '?' matches
// one rune, '*' any run, '~' escapes the next character.
func wildMatch(pattern, s string) bool {
	return wildMatchFold([]rune(strings.ToUpper(pattern)), []rune(strings.ToUpper(s)))
}

func wildMatchFold(p, s []rune) bool {
	for len(p) > 0 {
		switch p[0] {
		case '*':
			for i := 0; i <= len(s); i++ {
				if wildMatchFold(p[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			p, s = p[1:], s[1:]
		case '~':
			if len(p) < 2 {
				return len(s) == 1 && s[0] == '~'
			}
			if len(s) == 0 || s[0] != p[1] {
				return false
			}
			p, s = p[2:], s[1:]
		default:
			if len(s) == 0 || s[0] != p[0] {
				return false
			}
			p, s = p[1:], s[1:]
		}
	}
	return len(s) == 0
}

// criteriaPair is one (range, criterion) condition of the *IFS family.
type criteriaPair struct {
	rng  value.Value
	crit criterion
}

// forMatches walks the base range and yields the flat index of every
// position where all paired criteria hold. Shapes must agree.
func forMatches(ctx *Context, base value.Value, pairs []criteriaPair, yield func(idx int) bool) value.Value {
	rows, cols := shapeOf(ctx, base)
	flat := make([][]value.Value, len(pairs))
	for i, p := range pairs {
		r2, c2 := shapeOf(ctx, p.rng)
		if r2 != rows || c2 != cols {
			return value.Err(value.KindValue)
		}
		vals := make([]value.Value, 0, rows*cols)
		ctx.eachValue(p.rng, func(v value.Value) bool {
			vals = append(vals, v)
			return true
		})
		if len(vals) != rows*cols {
			return value.Err(value.KindValue)
		}
		flat[i] = vals
	}
	for idx := 0; idx < rows*cols; idx++ {
		all := true
		for i, p := range pairs {
			if !p.crit.matches(flat[i][idx]) {
				all = false
				break
			}
		}
		if all && !yield(idx) {
			break
		}
	}
	return nil
}

func fnCountIf(ctx *Context, args []value.Value) value.Value {
	crit := parseCriterion(args[1])
	n := 0
	if errv := forMatches(ctx, args[0], []criteriaPair{{args[0], crit}}, func(int) bool {
		n++
		return true
	}); errv != nil {
		return errv
	}
	return value.Number(float64(n))
}

func fnCountIfs(ctx *Context, args []value.Value) value.Value {
	pairs, errv := gatherPairs(args)
	if errv != nil {
		return errv
	}
	n := 0
	if errv := forMatches(ctx, pairs[0].rng, pairs, func(int) bool {
		n++
		return true
	}); errv != nil {
		return errv
	}
	return value.Number(float64(n))
}

func gatherPairs(args []value.Value) ([]criteriaPair, value.Value) {
	if len(args)%2 != 0 {
		return nil, value.Err(value.KindValue)
	}
	pairs := make([]criteriaPair, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		pairs = append(pairs, criteriaPair{args[i], parseCriterion(args[i+1])})
	}
	return pairs, nil
}

// sumIfCore drives SUMIF/AVERAGEIF. values defaults to the criteria
// range when the third argument is omitted.
func sumIfCore(ctx *Context, rng, critV, sumRng value.Value) (total float64, n int, errv value.Value) {
	crit := parseCriterion(critV)
	if sumRng == nil {
		sumRng = rng
	}
	var vals []value.Value
	ctx.eachValue(sumRng, func(v value.Value) bool {
		vals = append(vals, v)
		return true
	})
	rows, cols := shapeOf(ctx, rng)
	if len(vals) != rows*cols {
		return 0, 0, value.Err(value.KindValue)
	}
	var inner value.Value
	if e := forMatches(ctx, rng, []criteriaPair{{rng, crit}}, func(idx int) bool {
		switch v := vals[idx].(type) {
		case value.Error:
			inner = v
			return false
		case value.Number:
			total += float64(v)
			n++
		}
		return true
	}); e != nil {
		return 0, 0, e
	}
	if inner != nil {
		return 0, 0, inner
	}
	return total, n, nil
}

func fnSumIf(ctx *Context, args []value.Value) value.Value {
	var sumRng value.Value
	if len(args) > 2 && args[2] != nil {
		sumRng = args[2]
	}
	total, _, errv := sumIfCore(ctx, args[0], args[1], sumRng)
	if errv != nil {
		return errv
	}
	return value.Num(total)
}

func fnAverageIf(ctx *Context, args []value.Value) value.Value {
	var sumRng value.Value
	if len(args) > 2 && args[2] != nil {
		sumRng = args[2]
	}
	total, n, errv := sumIfCore(ctx, args[0], args[1], sumRng)
	if errv != nil {
		return errv
	}
	if n == 0 {
		return value.Err(value.KindDiv0)
	}
	return value.Num(total / float64(n))
}

// ifsCore drives the SUMIFS-shaped functions: first argument is the
// value range, then alternating criteria range / criterion pairs.
func ifsCore(ctx *Context, args []value.Value, each func(float64)) value.Value {
	pairs, errv := gatherPairs(args[1:])
	if errv != nil {
		return errv
	}
	var vals []value.Value
	ctx.eachValue(args[0], func(v value.Value) bool {
		vals = append(vals, v)
		return true
	})
	rows, cols := shapeOf(ctx, args[0])
	if len(vals) != rows*cols {
		return value.Err(value.KindValue)
	}
	var inner value.Value
	if e := forMatches(ctx, args[0], pairs, func(idx int) bool {
		switch v := vals[idx].(type) {
		case value.Error:
			inner = v
			return false
		case value.Number:
			each(float64(v))
		}
		return true
	}); e != nil {
		return e
	}
	return inner
}

func fnSumIfs(ctx *Context, args []value.Value) value.Value {
	total := 0.0
	if errv := ifsCore(ctx, args, func(f float64) { total += f }); errv != nil {
		return errv
	}
	return value.Num(total)
}

func fnAverageIfs(ctx *Context, args []value.Value) value.Value {
	total, n := 0.0, 0
	if errv := ifsCore(ctx, args, func(f float64) { total += f; n++ }); errv != nil {
		return errv
	}
	if n == 0 {
		return value.Err(value.KindDiv0)
	}
	return value.Num(total / float64(n))
}

func fnMinIfs(ctx *Context, args []value.Value) value.Value {
	m, seen := 0.0, false
	if errv := ifsCore(ctx, args, func(f float64) {
		if !seen || f < m {
			m, seen = f, true
		}
	}); errv != nil {
		return errv
	}
	return value.Number(m)
}

func fnMaxIfs(ctx *Context, args []value.Value) value.Value {
	m, seen := 0.0, false
	if errv := ifsCore(ctx, args, func(f float64) {
		if !seen || f > m {
			m, seen = f, true
		}
	}); errv != nil {
		return errv
	}
	return value.Number(m)
}
