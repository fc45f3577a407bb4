// internal/stdlib/math.go
package stdlib

import (
	"math"

	"gridcalc/internal/value"
)

func registerMath(r *Registry) {
	unaryNum(r, "ABS", math.Abs)
	unaryNum(r, "SQRT", func(f float64) float64 {
		if f < 0 {
			return math.NaN()
		}
		return math.Sqrt(f)
	})
	unaryNum(r, "EXP", math.Exp)
	unaryNum(r, "LN", func(f float64) float64 {
		if f <= 0 {
			return math.NaN()
		}
		return math.Log(f)
	})
	unaryNum(r, "LOG10", func(f float64) float64 {
		if f <= 0 {
			return math.NaN()
		}
		return math.Log10(f)
	})
	unaryNum(r, "SIN", math.Sin)
	unaryNum(r, "COS", math.Cos)
	unaryNum(r, "TAN", math.Tan)
	unaryNum(r, "ASIN", math.Asin)
	unaryNum(r, "ACOS", math.Acos)
	unaryNum(r, "ATAN", math.Atan)
	unaryNum(r, "SINH", math.Sinh)
	unaryNum(r, "COSH", math.Cosh)
	unaryNum(r, "TANH", math.Tanh)
	unaryNum(r, "DEGREES", func(f float64) float64 { return f * 180 / math.Pi })
	unaryNum(r, "RADIANS", func(f float64) float64 { return f * math.Pi / 180 })
	unaryNum(r, "INT", math.Floor)
	unaryNum(r, "EVEN", func(f float64) float64 { return roundAway(f, 2) })
	unaryNum(r, "ODD", func(f float64) float64 {
		n := math.Ceil(math.Abs(f))
		if math.Mod(n, 2) == 0 {
			n++
		}
		if f < 0 {
			return -n
		}
		return n
	})
	unaryNum(r, "SIGN", func(f float64) float64 {
		switch {
		case f > 0:
			return 1
		case f < 0:
			return -1
		}
		return 0
	})
	unaryNum(r, "FACT", func(f float64) float64 {
		n := math.Floor(f)
		if n < 0 || n > 170 {
			return math.NaN()
		}
		out := 1.0
		for i := 2.0; i <= n; i++ {
			out *= i
		}
		return out
	})
	unaryNum(r, "SQRTPI", func(f float64) float64 {
		if f < 0 {
			return math.NaN()
		}
		return math.Sqrt(f * math.Pi)
	})

	r.add(&Spec{Name: "PI", MinArgs: 0, MaxArgs: 0, Handler: func(ctx *Context, args []value.Value) value.Value {
		return value.Number(math.Pi)
	}})

	binaryNum(r, "POWER", func(a, b float64) float64 { return math.Pow(a, b) })
	binaryNum(r, "ATAN2", func(a, b float64) float64 {
		if a == 0 && b == 0 {
			return math.NaN()
		}
		return math.Atan2(b, a)
	})
	binaryNum(r, "MOD", func(a, b float64) float64 {
		if b == 0 {
			return math.NaN()
		}
		m := math.Mod(a, b)
		if m != 0 && (m < 0) != (b < 0) {
			m += b
		}
		return m
	})
	binaryNum(r, "QUOTIENT", func(a, b float64) float64 {
		if b == 0 {
			return math.NaN()
		}
		return math.Trunc(a / b)
	})
	binaryNum(r, "COMBIN", func(n, k float64) float64 {
		n, k = math.Floor(n), math.Floor(k)
		if n < 0 || k < 0 || k > n {
			return math.NaN()
		}
		return math.Round(binomial(n, k))
	})
	binaryNum(r, "PERMUT", func(n, k float64) float64 {
		n, k = math.Floor(n), math.Floor(k)
		if n < 0 || k < 0 || k > n {
			return math.NaN()
		}
		out := 1.0
		for i := 0.0; i < k; i++ {
			out *= n - i
		}
		return out
	})
	binaryNum(r, "MROUND", func(f, m float64) float64 {
		if m == 0 {
			return 0
		}
		if (f < 0) != (m < 0) {
			return math.NaN()
		}
		return math.Round(f/m) * m
	})

	r.add(&Spec{Name: "LOG", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnLog})
	r.add(&Spec{Name: "ROUND", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: roundHandler(math.Round)})
	r.add(&Spec{Name: "ROUNDUP", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: roundHandler(func(f float64) float64 { return roundAway(f, 1) })})
	r.add(&Spec{Name: "ROUNDDOWN", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: roundHandler(math.Trunc)})
	r.add(&Spec{Name: "TRUNC", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnTrunc})
	r.add(&Spec{Name: "CEILING", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnCeiling})
	r.add(&Spec{Name: "CEILING.MATH", MinArgs: 1, MaxArgs: 3, Elementwise: true, Handler: fnCeilingMath})
	r.add(&Spec{Name: "FLOOR", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnFloor})
	r.add(&Spec{Name: "FLOOR.MATH", MinArgs: 1, MaxArgs: 3, Elementwise: true, Handler: fnFloorMath})
	r.add(&Spec{Name: "GCD", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fnGCD})
	r.add(&Spec{Name: "LCM", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fnLCM})

	r.add(&Spec{Name: "RAND", MinArgs: 0, MaxArgs: 0, Volatile: true, Handler: func(ctx *Context, args []value.Value) value.Value {
		return value.Number(ctx.Rand.Float64())
	}})
	r.add(&Spec{Name: "RANDBETWEEN", MinArgs: 2, MaxArgs: 2, Volatile: true, Elementwise: true, Handler: fnRandBetween})

	r.add(&Spec{Name: "SUM", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fnSum})
	r.add(&Spec{Name: "PRODUCT", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fnProduct})
	r.add(&Spec{Name: "SUMSQ", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fnSumSq})
	r.add(&Spec{Name: "SUMPRODUCT", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgAny}, Handler: fnSumProduct})
	r.add(&Spec{Name: "SUBTOTAL", MinArgs: 2, MaxArgs: -1, ArgModes: []ArgMode{ArgScalar, ArgReference}, Handler: fnSubtotal})
	r.add(&Spec{Name: "AGGREGATE", MinArgs: 3, MaxArgs: -1, ArgModes: []ArgMode{ArgScalar, ArgScalar, ArgReference}, Handler: fnAggregate})
}

// unaryNum registers a one-argument elementwise numeric function.
// NaN results surface as #NUM!.
func unaryNum(r *Registry, name string, fn func(float64) float64) {
	r.add(&Spec{Name: name, MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: func(ctx *Context, args []value.Value) value.Value {
		f, errv, ok := value.CoerceNumber(args[0])
		if !ok {
			return errv
		}
		return value.Num(fn(f))
	}})
}

func binaryNum(r *Registry, name string, fn func(a, b float64) float64) {
	r.add(&Spec{Name: name, MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: func(ctx *Context, args []value.Value) value.Value {
		a, errv, ok := value.CoerceNumber(args[0])
		if !ok {
			return errv
		}
		b, errv, ok := value.CoerceNumber(args[1])
		if !ok {
			return errv
		}
		return value.Num(fn(a, b))
	}})
}

func binomial(n, k float64) float64 {
	if k > n-k {
		k = n - k
	}
	out := 1.0
	for i := 0.0; i < k; i++ {
		out = out * (n - i) / (i + 1)
	}
	return out
}

// roundAway rounds |f| up to the nearest multiple of unit, away from 0.
func roundAway(f, unit float64) float64 {
	if f >= 0 {
		return math.Ceil(f/unit) * unit
	}
	return math.Floor(f/unit) * unit
}

func fnLog(ctx *Context, args []value.Value) value.Value {
	f, errv, ok := value.CoerceNumber(args[0])
	if !ok {
		return errv
	}
	base := 10.0
	if len(args) > 1 && args[1] != nil {
		b, errv, ok := value.CoerceNumber(args[1])
		if !ok {
			return errv
		}
		base = b
	}
	if f <= 0 || base <= 0 || base == 1 {
		return value.Err(value.KindNum)
	}
	return value.Num(math.Log(f) / math.Log(base))
}

func roundHandler(rounder func(float64) float64) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		f, errv, ok := value.CoerceNumber(args[0])
		if !ok {
			return errv
		}
		d, errv, ok := value.CoerceNumber(args[1])
		if !ok {
			return errv
		}
		scale := math.Pow(10, math.Trunc(d))
		return value.Num(rounder(f*scale) / scale)
	}
}

func fnTrunc(ctx *Context, args []value.Value) value.Value {
	f, errv, ok := value.CoerceNumber(args[0])
	if !ok {
		return errv
	}
	d := 0.0
	if len(args) > 1 && args[1] != nil {
		dd, errv, ok := value.CoerceNumber(args[1])
		if !ok {
			return errv
		}
		d = math.Trunc(dd)
	}
	scale := math.Pow(10, d)
	return value.Num(math.Trunc(f*scale) / scale)
}

func fnCeiling(ctx *Context, args []value.Value) value.Value {
	f, errv, ok := value.CoerceNumber(args[0])
	if !ok {
		return errv
	}
	sig := 1.0
	if len(args) > 1 && args[1] != nil {
		s, errv, ok := value.CoerceNumber(args[1])
		if !ok {
			return errv
		}
		sig = s
	}
	if sig == 0 {
		return value.Number(0)
	}
	if f > 0 && sig < 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(math.Ceil(f/sig) * sig)
}

func fnCeilingMath(ctx *Context, args []value.Value) value.Value {
	f, errv, ok := value.CoerceNumber(args[0])
	if !ok {
		return errv
	}
	sig := 1.0
	if len(args) > 1 && args[1] != nil {
		s, errv, ok := value.CoerceNumber(args[1])
		if !ok {
			return errv
		}
		sig = math.Abs(s)
	}
	mode := 0.0
	if len(args) > 2 && args[2] != nil {
		m, errv, ok := value.CoerceNumber(args[2])
		if !ok {
			return errv
		}
		mode = m
	}
	if sig == 0 {
		return value.Number(0)
	}
	if f < 0 && mode != 0 {
		return value.Num(math.Floor(f/sig) * sig)
	}
	return value.Num(math.Ceil(f/sig) * sig)
}

func fnFloor(ctx *Context, args []value.Value) value.Value {
	f, errv, ok := value.CoerceNumber(args[0])
	if !ok {
		return errv
	}
	sig := 1.0
	if len(args) > 1 && args[1] != nil {
		s, errv, ok := value.CoerceNumber(args[1])
		if !ok {
			return errv
		}
		sig = s
	}
	if sig == 0 {
		return value.Err(value.KindDiv0)
	}
	if f > 0 && sig < 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(math.Floor(f/sig) * sig)
}

func fnFloorMath(ctx *Context, args []value.Value) value.Value {
	f, errv, ok := value.CoerceNumber(args[0])
	if !ok {
		return errv
	}
	sig := 1.0
	if len(args) > 1 && args[1] != nil {
		s, errv, ok := value.CoerceNumber(args[1])
		if !ok {
			return errv
		}
		sig = math.Abs(s)
	}
	mode := 0.0
	if len(args) > 2 && args[2] != nil {
		m, errv, ok := value.CoerceNumber(args[2])
		if !ok {
			return errv
		}
		mode = m
	}
	if sig == 0 {
		return value.Number(0)
	}
	if f < 0 && mode != 0 {
		return value.Num(math.Ceil(f/sig) * sig)
	}
	return value.Num(math.Floor(f/sig) * sig)
}

func fnGCD(ctx *Context, args []value.Value) value.Value {
	g := uint64(0)
	if errv, hasErr := ctx.numbersOf(args, false, func(f float64) bool {
		if f < 0 {
			g = ^uint64(0)
			return false
		}
		g = gcd(g, uint64(f))
		return true
	}); hasErr {
		return errv
	}
	if g == ^uint64(0) {
		return value.Err(value.KindNum)
	}
	return value.Number(float64(g))
}

func fnLCM(ctx *Context, args []value.Value) value.Value {
	l := uint64(1)
	bad := false
	if errv, hasErr := ctx.numbersOf(args, false, func(f float64) bool {
		if f < 0 {
			bad = true
			return false
		}
		n := uint64(f)
		if n == 0 {
			l = 0
			return true
		}
		if l != 0 {
			l = l / gcd(l, n) * n
		}
		return true
	}); hasErr {
		return errv
	}
	if bad {
		return value.Err(value.KindNum)
	}
	return value.Number(float64(l))
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func fnRandBetween(ctx *Context, args []value.Value) value.Value {
	lo, errv, ok := value.CoerceNumber(args[0])
	if !ok {
		return errv
	}
	hi, errv, ok := value.CoerceNumber(args[1])
	if !ok {
		return errv
	}
	lo, hi = math.Ceil(lo), math.Floor(hi)
	if hi < lo {
		return value.Err(value.KindNum)
	}
	return value.Number(lo + float64(ctx.Rand.Int63n(int64(hi-lo)+1)))
}

func fnSum(ctx *Context, args []value.Value) value.Value {
	total := 0.0
	if errv, hasErr := ctx.numbersOf(args, false, func(f float64) bool {
		total += f
		return true
	}); hasErr {
		return errv
	}
	return value.Num(total)
}

func fnSumSq(ctx *Context, args []value.Value) value.Value {
	total := 0.0
	if errv, hasErr := ctx.numbersOf(args, false, func(f float64) bool {
		total += f * f
		return true
	}); hasErr {
		return errv
	}
	return value.Num(total)
}

func fnProduct(ctx *Context, args []value.Value) value.Value {
	total := 1.0
	seen := false
	if errv, hasErr := ctx.numbersOf(args, false, func(f float64) bool {
		total *= f
		seen = true
		return true
	}); hasErr {
		return errv
	}
	if !seen {
		return value.Number(0)
	}
	return value.Num(total)
}

// fnSumProduct multiplies same-shaped arrays element-wise and sums the
// products. Non-numeric elements count as zero, matching Excel.
func fnSumProduct(ctx *Context, args []value.Value) value.Value {
	rows, cols := shapeOf(ctx, args[0])
	for _, a := range args[1:] {
		r2, c2 := shapeOf(ctx, a)
		if r2 != rows || c2 != cols {
			return value.Err(value.KindValue)
		}
	}
	// block-coerce into f64 buffers; non-numbers become 0
	bufs := make([][]float64, len(args))
	for i, a := range args {
		buf := make([]float64, rows*cols)
		idx := 0
		var errv value.Error
		hasErr := false
		ok := ctx.eachValue(a, func(v value.Value) bool {
			switch v := v.(type) {
			case value.Error:
				errv, hasErr = v, true
				return false
			case value.Number:
				buf[idx] = float64(v)
			case value.Bool:
				// booleans do not count in SUMPRODUCT
			}
			idx++
			return idx <= len(buf)
		})
		if hasErr {
			return errv
		}
		if !ok || idx != len(buf) {
			return value.Err(value.KindValue)
		}
		bufs[i] = buf
	}
	return value.Num(sumProductF64(bufs))
}

// sumProductF64 is the hot loop shared with the VM's fast path.
func sumProductF64(bufs [][]float64) float64 {
	if len(bufs) == 0 {
		return 0
	}
	total := 0.0
	n := len(bufs[0])
	for i := 0; i < n; i++ {
		p := bufs[0][i]
		for _, b := range bufs[1:] {
			p *= b[i]
		}
		total += p
	}
	return total
}

// fnSubtotal dispatches to an aggregate by function number; 100+n
// variants skip nothing here (hidden-row state is not modeled) but
// still ignore nested SUBTOTAL results by construction.
func fnSubtotal(ctx *Context, args []value.Value) value.Value {
	fnum, errv, ok := value.CoerceNumber(args[0])
	if !ok {
		return errv
	}
	n := int(fnum)
	if n > 100 {
		n -= 100
	}
	rest := args[1:]
	switch n {
	case 1:
		return fnAverage(ctx, rest)
	case 2:
		return fnCount(ctx, rest)
	case 3:
		return fnCountA(ctx, rest)
	case 4:
		return fnMax(ctx, rest)
	case 5:
		return fnMin(ctx, rest)
	case 6:
		return fnProduct(ctx, rest)
	case 7:
		return fnStdevS(ctx, rest)
	case 8:
		return fnStdevP(ctx, rest)
	case 9:
		return fnSum(ctx, rest)
	case 10:
		return fnVarS(ctx, rest)
	case 11:
		return fnVarP(ctx, rest)
	}
	return value.Err(value.KindValue)
}

// fnAggregate is SUBTOTAL with an options argument; option bit 2
// (ignore errors) filters error cells before aggregation.
func fnAggregate(ctx *Context, args []value.Value) value.Value {
	fnum, errv, ok := value.CoerceNumber(args[0])
	if !ok {
		return errv
	}
	opts, errv, ok := value.CoerceNumber(args[1])
	if !ok {
		return errv
	}
	rest := args[2:]
	ignoreErrors := int(opts) == 2 || int(opts) == 3 || int(opts) == 6 || int(opts) == 7
	if ignoreErrors {
		filtered := make([]value.Value, len(rest))
		for i, a := range rest {
			filtered[i] = stripErrors(ctx, a)
		}
		rest = filtered
	}
	sub := []value.Value{value.Number(fnum)}
	sub = append(sub, rest...)
	switch int(fnum) {
	case 12:
		return fnMedian(ctx, rest)
	case 14:
		return fnLarge(ctx, rest)
	case 15:
		return fnSmall(ctx, rest)
	}
	return fnSubtotal(ctx, sub)
}

// stripErrors materializes v with error elements replaced by blanks.
func stripErrors(ctx *Context, v value.Value) value.Value {
	var vals []value.Value
	ctx.eachValue(v, func(e value.Value) bool {
		if _, isErr := e.(value.Error); !isErr {
			vals = append(vals, e)
		}
		return true
	})
	arr := value.NewArray(1, maxInt(len(vals), 1))
	copy(arr.Data, vals)
	return arr
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
