// internal/stdlib/engineering.go
package stdlib

import (
	"math"
	"strconv"
	"strings"

	"gridcalc/internal/value"
)

func registerEngineering(r *Registry) {
	r.add(&Spec{Name: "DEC2BIN", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: decToBase(2)})
	r.add(&Spec{Name: "DEC2OCT", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: decToBase(8)})
	r.add(&Spec{Name: "DEC2HEX", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: decToBase(16)})
	r.add(&Spec{Name: "BIN2DEC", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: baseToDec(2)})
	r.add(&Spec{Name: "OCT2DEC", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: baseToDec(8)})
	r.add(&Spec{Name: "HEX2DEC", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: baseToDec(16)})
	r.add(&Spec{Name: "BIN2HEX", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: baseToBase(2, 16)})
	r.add(&Spec{Name: "BIN2OCT", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: baseToBase(2, 8)})
	r.add(&Spec{Name: "HEX2BIN", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: baseToBase(16, 2)})
	r.add(&Spec{Name: "HEX2OCT", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: baseToBase(16, 8)})
	r.add(&Spec{Name: "OCT2BIN", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: baseToBase(8, 2)})
	r.add(&Spec{Name: "OCT2HEX", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: baseToBase(8, 16)})
	r.add(&Spec{Name: "BASE", MinArgs: 2, MaxArgs: 3, Elementwise: true, Handler: fnBase})
	r.add(&Spec{Name: "DECIMAL", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnDecimal})
	r.add(&Spec{Name: "BITAND", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: bitOp(func(a, b uint64) uint64 { return a & b })})
	r.add(&Spec{Name: "BITOR", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: bitOp(func(a, b uint64) uint64 { return a | b })})
	r.add(&Spec{Name: "BITXOR", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: bitOp(func(a, b uint64) uint64 { return a ^ b })})
	r.add(&Spec{Name: "BITLSHIFT", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnBitLShift})
	r.add(&Spec{Name: "BITRSHIFT", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnBitRShift})
	r.add(&Spec{Name: "DELTA", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnDelta})
	r.add(&Spec{Name: "GESTEP", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnGestep})
	unaryNum(r, "ERF", math.Erf)
	unaryNum(r, "ERFC", math.Erfc)
	r.add(&Spec{Name: "BESSELJ", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnBesselJ})
	r.add(&Spec{Name: "BESSELY", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnBesselY})
	r.add(&Spec{Name: "BESSELI", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnBesselI})
	r.add(&Spec{Name: "BESSELK", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnBesselK})
	r.add(&Spec{Name: "COMPLEX", MinArgs: 2, MaxArgs: 3, Elementwise: true, Handler: fnComplex})
	r.add(&Spec{Name: "IMREAL", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: imPart(func(z complex128) float64 { return real(z) })})
	r.add(&Spec{Name: "IMAGINARY", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: imPart(func(z complex128) float64 { return imag(z) })})
	r.add(&Spec{Name: "IMABS", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: imPart(func(z complex128) float64 { return cmplxAbs(z) })})
	r.add(&Spec{Name: "IMSUM", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: imFold(func(a, b complex128) complex128 { return a + b })})
	r.add(&Spec{Name: "IMSUB", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: imBinary(func(a, b complex128) complex128 { return a - b })})
	r.add(&Spec{Name: "IMPRODUCT", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: imFold(func(a, b complex128) complex128 { return a * b })})
	r.add(&Spec{Name: "IMDIV", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: imBinary(func(a, b complex128) complex128 { return a / b })})
	r.add(&Spec{Name: "IMCONJUGATE", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: imUnary(func(z complex128) complex128 { return complex(real(z), -imag(z)) })})
	r.add(&Spec{Name: "CONVERT", MinArgs: 3, MaxArgs: 3, Elementwise: true, Handler: fnConvert})
}

// Conversions carry ten digits of the target base, with negative
// numbers in two's complement: 10 bits for binary, 30 for octal, 40
// for hex.
func baseBits(base int) uint {
	switch base {
	case 2:
		return 10
	case 8:
		return 30
	}
	return 40
}

func decToBase(base int) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		f, ev, ok := value.CoerceNumber(args[0])
		if !ok {
			return ev
		}
		n := int64(math.Trunc(f))
		bits := baseBits(base)
		limit := int64(1) << (bits - 1)
		if n < -limit || n >= limit {
			return value.Err(value.KindNum)
		}
		var s string
		if n < 0 {
			s = strconv.FormatUint(uint64(n)&((1<<bits)-1), base)
		} else {
			s = strconv.FormatInt(n, base)
		}
		s = strings.ToUpper(s)
		if len(args) > 1 && args[1] != nil {
			pF, ev, ok := value.CoerceNumber(args[1])
			if !ok {
				return ev
			}
			places := int(pF)
			if n >= 0 {
				if places < len(s) || places > 10 {
					return value.Err(value.KindNum)
				}
				s = strings.Repeat("0", places-len(s)) + s
			}
		}
		if len(s) > 10 {
			return value.Err(value.KindNum)
		}
		return value.Text(s)
	}
}

func baseToDec(base int) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		s, ev, ok := value.CoerceText(args[0])
		if !ok {
			return ev
		}
		if s == "" {
			return value.Number(0)
		}
		if len(s) > 10 {
			return value.Err(value.KindNum)
		}
		u, err := strconv.ParseUint(strings.ToLower(s), base, 64)
		if err != nil {
			return value.Err(value.KindNum)
		}
		bits := baseBits(base)
		if u >= 1<<(bits-1) {
			return value.Number(float64(int64(u) - (1 << bits)))
		}
		return value.Number(float64(u))
	}
}

func baseToBase(from, to int) Handler {
	dec := baseToDec(from)
	enc := decToBase(to)
	return func(ctx *Context, args []value.Value) value.Value {
		v := dec(ctx, args[:1])
		if _, isErr := v.(value.Error); isErr {
			return v
		}
		out := []value.Value{v}
		if len(args) > 1 {
			out = append(out, args[1])
		}
		return enc(ctx, out)
	}
}

func fnBase(ctx *Context, args []value.Value) value.Value {
	f, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	bF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	base := int(bF)
	if f < 0 || base < 2 || base > 36 {
		return value.Err(value.KindNum)
	}
	s := strings.ToUpper(strconv.FormatUint(uint64(f), base))
	if len(args) > 2 && args[2] != nil {
		pF, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		places := int(pF)
		if places < 0 {
			return value.Err(value.KindNum)
		}
		if places > len(s) {
			s = strings.Repeat("0", places-len(s)) + s
		}
	}
	return value.Text(s)
}

func fnDecimal(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	bF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	base := int(bF)
	if base < 2 || base > 36 {
		return value.Err(value.KindNum)
	}
	if s == "" {
		return value.Number(0)
	}
	u, err := strconv.ParseUint(strings.ToLower(s), base, 64)
	if err != nil {
		return value.Err(value.KindNum)
	}
	return value.Number(float64(u))
}

func bitOp(op func(a, b uint64) uint64) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		a, errv := bitArg(args[0])
		if errv != nil {
			return errv
		}
		b, errv := bitArg(args[1])
		if errv != nil {
			return errv
		}
		return value.Number(float64(op(a, b)))
	}
}

func bitArg(v value.Value) (uint64, value.Value) {
	f, ev, ok := value.CoerceNumber(v)
	if !ok {
		return 0, ev
	}
	if f < 0 || f != math.Trunc(f) || f >= 1<<48 {
		return 0, value.Err(value.KindNum)
	}
	return uint64(f), nil
}

func fnBitLShift(ctx *Context, args []value.Value) value.Value {
	return bitShift(args, false)
}

func fnBitRShift(ctx *Context, args []value.Value) value.Value {
	return bitShift(args, true)
}

func bitShift(args []value.Value, right bool) value.Value {
	a, errv := bitArg(args[0])
	if errv != nil {
		return errv
	}
	sF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	shift := int(sF)
	if right {
		shift = -shift
	}
	if shift > 53 || shift < -53 {
		return value.Err(value.KindNum)
	}
	var out uint64
	if shift >= 0 {
		out = a << uint(shift)
	} else {
		out = a >> uint(-shift)
	}
	if out >= 1<<48 {
		return value.Err(value.KindNum)
	}
	return value.Number(float64(out))
}

func fnDelta(ctx *Context, args []value.Value) value.Value {
	a, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	b := 0.0
	if len(args) > 1 && args[1] != nil {
		f, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		b = f
	}
	if a == b {
		return value.Number(1)
	}
	return value.Number(0)
}

func fnGestep(ctx *Context, args []value.Value) value.Value {
	a, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	step := 0.0
	if len(args) > 1 && args[1] != nil {
		f, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		step = f
	}
	if a >= step {
		return value.Number(1)
	}
	return value.Number(0)
}

func besselArgs(args []value.Value) (float64, int, value.Value) {
	x, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return 0, 0, ev
	}
	nF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return 0, 0, ev
	}
	if nF < 0 {
		return 0, 0, value.Err(value.KindNum)
	}
	return x, int(nF), nil
}

func fnBesselJ(ctx *Context, args []value.Value) value.Value {
	x, n, errv := besselArgs(args)
	if errv != nil {
		return errv
	}
	return value.Num(math.Jn(n, x))
}

func fnBesselY(ctx *Context, args []value.Value) value.Value {
	x, n, errv := besselArgs(args)
	if errv != nil {
		return errv
	}
	if x <= 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(math.Yn(n, x))
}

func fnBesselI(ctx *Context, args []value.Value) value.Value {
	x, n, errv := besselArgs(args)
	if errv != nil {
		return errv
	}
	return value.Num(bessi(n, x))
}

func fnBesselK(ctx *Context, args []value.Value) value.Value {
	x, n, errv := besselArgs(args)
	if errv != nil {
		return errv
	}
	if x <= 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(bessk(n, x))
}

// Modified Bessel functions via the Abramowitz & Stegun polynomial
// fits, good to about 1e-7 relative error.
func bessi0(x float64) float64 {
	ax := math.Abs(x)
	if ax < 3.75 {
		y := x / 3.75
		y *= y
		return 1.0 + y*(3.5156229+y*(3.0899424+y*(1.2067492+y*(0.2659732+y*(0.360768e-1+y*0.45813e-2)))))
	}
	y := 3.75 / ax
	return math.Exp(ax) / math.Sqrt(ax) *
		(0.39894228 + y*(0.1328592e-1+y*(0.225319e-2+y*(-0.157565e-2+y*(0.916281e-2+
			y*(-0.2057706e-1+y*(0.2635537e-1+y*(-0.1647633e-1+y*0.392377e-2))))))))
}

func bessi1(x float64) float64 {
	ax := math.Abs(x)
	var ans float64
	if ax < 3.75 {
		y := x / 3.75
		y *= y
		ans = ax * (0.5 + y*(0.87890594+y*(0.51498869+y*(0.15084934+y*(0.2658733e-1+y*(0.301532e-2+y*0.32411e-3))))))
	} else {
		y := 3.75 / ax
		ans = 0.2282967e-1 + y*(-0.2895312e-1+y*(0.1787654e-1-y*0.420059e-2))
		ans = 0.39894228 + y*(-0.3988024e-1+y*(-0.362018e-2+y*(0.163801e-2+y*(-0.1031555e-1+y*ans))))
		ans *= math.Exp(ax) / math.Sqrt(ax)
	}
	if x < 0 {
		return -ans
	}
	return ans
}

// bessi evaluates I_n by downward recurrence seeded well above n, then
// rescales against I_0.
func bessi(n int, x float64) float64 {
	if n == 0 {
		return bessi0(x)
	}
	if n == 1 {
		return bessi1(x)
	}
	if x == 0 {
		return 0
	}
	const acc, bigno, bigni = 40.0, 1e10, 1e-10
	tox := 2 / math.Abs(x)
	bip, bi, ans := 0.0, 1.0, 0.0
	for j := 2 * (n + int(math.Sqrt(acc*float64(n)))); j > 0; j-- {
		bim := bip + float64(j)*tox*bi
		bip = bi
		bi = bim
		if math.Abs(bi) > bigno {
			ans *= bigni
			bi *= bigni
			bip *= bigni
		}
		if j == n {
			ans = bip
		}
	}
	ans *= bessi0(x) / bi
	if x < 0 && n%2 == 1 {
		return -ans
	}
	return ans
}

func bessk0(x float64) float64 {
	if x <= 2 {
		y := x * x / 4
		return -math.Log(x/2)*bessi0(x) +
			(-0.57721566 + y*(0.42278420+y*(0.23069756+y*(0.3488590e-1+y*(0.262698e-2+y*(0.10750e-3+y*0.74e-5))))))
	}
	y := 2 / x
	return math.Exp(-x) / math.Sqrt(x) *
		(1.25331414 + y*(-0.7832358e-1+y*(0.2189568e-1+y*(-0.1062446e-1+y*(0.587872e-2+y*(-0.251540e-2+y*0.53208e-3))))))
}

func bessk1(x float64) float64 {
	if x <= 2 {
		y := x * x / 4
		return math.Log(x/2)*bessi1(x) +
			1/x*(1+y*(0.15443144+y*(-0.67278579+y*(-0.18156897+y*(-0.1919402e-1+y*(-0.110404e-2+y*-0.4686e-4))))))
	}
	y := 2 / x
	return math.Exp(-x) / math.Sqrt(x) *
		(1.25331414 + y*(0.23498619+y*(-0.3655620e-1+y*(0.1504268e-1+y*(-0.780353e-2+y*(0.325614e-2+y*-0.68245e-3))))))
}

// bessk climbs from K_0 and K_1 by the stable upward recurrence.
func bessk(n int, x float64) float64 {
	if n == 0 {
		return bessk0(x)
	}
	if n == 1 {
		return bessk1(x)
	}
	tox := 2 / x
	bkm, bk := bessk0(x), bessk1(x)
	for j := 1; j < n; j++ {
		bkm, bk = bk, bkm+float64(j)*tox*bk
	}
	return bk
}

// Complex values travel as text in the "a+bi" form.
func parseComplex(v value.Value) (complex128, string, value.Value) {
	if n, ok := v.(value.Number); ok {
		return complex(float64(n), 0), "i", nil
	}
	s, ev, ok := value.CoerceText(v)
	if !ok {
		return 0, "", ev
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "i", nil
	}
	suffix := "i"
	if strings.HasSuffix(s, "j") {
		suffix = "j"
	}
	unit := strings.HasSuffix(s, "i") || strings.HasSuffix(s, "j")
	if !unit {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, "", value.Err(value.KindNum)
		}
		return complex(f, 0), suffix, nil
	}
	body := s[:len(s)-1]
	// split real and imaginary at the last +/- not part of an exponent
	split := -1
	for i := len(body) - 1; i > 0; i-- {
		c := body[i]
		if (c == '+' || c == '-') && body[i-1] != 'e' && body[i-1] != 'E' {
			split = i
			break
		}
	}
	imagStr := body
	realStr := ""
	if split > 0 {
		realStr, imagStr = body[:split], body[split:]
	}
	im := 1.0
	switch imagStr {
	case "", "+":
		im = 1
	case "-":
		im = -1
	default:
		f, err := strconv.ParseFloat(imagStr, 64)
		if err != nil {
			return 0, "", value.Err(value.KindNum)
		}
		im = f
	}
	re := 0.0
	if realStr != "" {
		f, err := strconv.ParseFloat(realStr, 64)
		if err != nil {
			return 0, "", value.Err(value.KindNum)
		}
		re = f
	}
	return complex(re, im), suffix, nil
}

func formatComplex(z complex128, suffix string) value.Value {
	re, im := real(z), imag(z)
	if im == 0 {
		return value.Text(value.FormatNumber(re))
	}
	var sb strings.Builder
	if re != 0 {
		sb.WriteString(value.FormatNumber(re))
	}
	switch {
	case im == 1:
		if re != 0 {
			sb.WriteString("+")
		}
	case im == -1:
		sb.WriteString("-")
	default:
		if im > 0 && re != 0 {
			sb.WriteString("+")
		}
		sb.WriteString(value.FormatNumber(im))
	}
	sb.WriteString(suffix)
	return value.Text(sb.String())
}

func cmplxAbs(z complex128) float64 {
	return math.Hypot(real(z), imag(z))
}

func fnComplex(ctx *Context, args []value.Value) value.Value {
	re, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	im, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	suffix := "i"
	if len(args) > 2 && args[2] != nil {
		s, ev, ok := value.CoerceText(args[2])
		if !ok {
			return ev
		}
		if s != "i" && s != "j" {
			return value.Err(value.KindValue)
		}
		suffix = s
	}
	return formatComplex(complex(re, im), suffix)
}

func imPart(part func(complex128) float64) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		z, _, errv := parseComplex(args[0])
		if errv != nil {
			return errv
		}
		return value.Num(part(z))
	}
}

func imUnary(fn func(complex128) complex128) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		z, suffix, errv := parseComplex(args[0])
		if errv != nil {
			return errv
		}
		return formatComplex(fn(z), suffix)
	}
}

func imBinary(fn func(a, b complex128) complex128) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		a, suffix, errv := parseComplex(args[0])
		if errv != nil {
			return errv
		}
		b, _, errv := parseComplex(args[1])
		if errv != nil {
			return errv
		}
		return formatComplex(fn(a, b), suffix)
	}
}

func imFold(fn func(a, b complex128) complex128) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		var acc complex128
		suffix := "i"
		first := true
		var errv value.Value
		for _, a := range args {
			if a == nil {
				continue
			}
			ctx.eachValue(a, func(v value.Value) bool {
				if _, blank := v.(value.Blank); blank {
					return true
				}
				z, sfx, e := parseComplex(v)
				if e != nil {
					errv = e
					return false
				}
				if first {
					acc, suffix, first = z, sfx, false
				} else {
					acc = fn(acc, z)
				}
				return true
			})
			if errv != nil {
				return errv
			}
		}
		return formatComplex(acc, suffix)
	}
}

// convertFactors maps unit symbols to a base quantity per category.
var convertFactors = map[string]struct {
	category string
	factor   float64
	offset   float64
}{
	"g":     {"mass", 1, 0},
	"kg":    {"mass", 1000, 0},
	"lbm":   {"mass", 453.59237, 0},
	"ozm":   {"mass", 28.349523125, 0},
	"stone": {"mass", 6350.29318, 0},

	"m":   {"length", 1, 0},
	"km":  {"length", 1000, 0},
	"cm":  {"length", 0.01, 0},
	"mm":  {"length", 0.001, 0},
	"in":  {"length", 0.0254, 0},
	"ft":  {"length", 0.3048, 0},
	"yd":  {"length", 0.9144, 0},
	"mi":  {"length", 1609.344, 0},
	"Nmi": {"length", 1852, 0},

	"sec": {"time", 1, 0},
	"s":   {"time", 1, 0},
	"min": {"time", 60, 0},
	"hr":  {"time", 3600, 0},
	"day": {"time", 86400, 0},
	"yr":  {"time", 31557600, 0},

	"C": {"temperature", 1, 273.15},
	"F": {"temperature", 5.0 / 9.0, 255.372222222222},
	"K": {"temperature", 1, 0},

	"l":   {"volume", 1, 0},
	"L":   {"volume", 1, 0},
	"ml":  {"volume", 0.001, 0},
	"gal": {"volume", 3.785411784, 0},
	"qt":  {"volume", 0.946352946, 0},
	"pt":  {"volume", 0.473176473, 0},
	"cup": {"volume", 0.2365882365, 0},
	"oz":  {"volume", 0.0295735295625, 0},

	"Pa":   {"pressure", 1, 0},
	"atm":  {"pressure", 101325, 0},
	"mmHg": {"pressure", 133.322, 0},

	"J":   {"energy", 1, 0},
	"kJ":  {"energy", 1000, 0},
	"cal": {"energy", 4.1868, 0},
	"Wh":  {"energy", 3600, 0},
	"BTU": {"energy", 1055.05585262, 0},
}

func fnConvert(ctx *Context, args []value.Value) value.Value {
	f, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	from, ev, ok := value.CoerceText(args[1])
	if !ok {
		return ev
	}
	to, ev, ok := value.CoerceText(args[2])
	if !ok {
		return ev
	}
	fu, okF := convertFactors[from]
	tu, okT := convertFactors[to]
	if !okF || !okT || fu.category != tu.category {
		return value.Err(value.KindNA)
	}
	if fu.category == "temperature" {
		kelvin := f*fu.factor + fu.offset
		return value.Num((kelvin - tu.offset) / tu.factor)
	}
	return value.Num(f * fu.factor / tu.factor)
}
