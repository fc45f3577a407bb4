// internal/stdlib/financial.go
package stdlib

import (
	"math"
	"sort"
	"time"

	"gridcalc/internal/value"
)

func registerFinancial(r *Registry) {
	r.add(&Spec{Name: "PMT", MinArgs: 3, MaxArgs: 5, Elementwise: true, Handler: fnPMT})
	r.add(&Spec{Name: "IPMT", MinArgs: 4, MaxArgs: 6, Elementwise: true, Handler: fnIPMT})
	r.add(&Spec{Name: "PPMT", MinArgs: 4, MaxArgs: 6, Elementwise: true, Handler: fnPPMT})
	r.add(&Spec{Name: "FV", MinArgs: 3, MaxArgs: 5, Elementwise: true, Handler: fnFV})
	r.add(&Spec{Name: "PV", MinArgs: 3, MaxArgs: 5, Elementwise: true, Handler: fnPV})
	r.add(&Spec{Name: "NPER", MinArgs: 3, MaxArgs: 5, Elementwise: true, Handler: fnNPER})
	r.add(&Spec{Name: "RATE", MinArgs: 3, MaxArgs: 6, Elementwise: true, Handler: fnRATE})
	r.add(&Spec{Name: "NPV", MinArgs: 2, MaxArgs: -1, ArgModes: []ArgMode{ArgScalar, ArgReference}, Handler: fnNPV})
	r.add(&Spec{Name: "IRR", MinArgs: 1, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnIRR})
	r.add(&Spec{Name: "XNPV", MinArgs: 3, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgReference}, Handler: fnXNPV})
	r.add(&Spec{Name: "XIRR", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgReference, ArgScalar}, Handler: fnXIRR})
	r.add(&Spec{Name: "MIRR", MinArgs: 3, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnMIRR})
	r.add(&Spec{Name: "SLN", MinArgs: 3, MaxArgs: 3, Elementwise: true, Handler: fnSLN})
	r.add(&Spec{Name: "SYD", MinArgs: 4, MaxArgs: 4, Elementwise: true, Handler: fnSYD})
	r.add(&Spec{Name: "DDB", MinArgs: 4, MaxArgs: 5, Elementwise: true, Handler: fnDDB})
	r.add(&Spec{Name: "DB", MinArgs: 4, MaxArgs: 5, Elementwise: true, Handler: fnDB})
	r.add(&Spec{Name: "EFFECT", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnEffect})
	r.add(&Spec{Name: "NOMINAL", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnNominal})
	r.add(&Spec{Name: "CUMIPMT", MinArgs: 6, MaxArgs: 6, Elementwise: true, Handler: fnCumIPMT})
	r.add(&Spec{Name: "CUMPRINC", MinArgs: 6, MaxArgs: 6, Elementwise: true, Handler: fnCumPrinc})
	r.add(&Spec{Name: "COUPPCD", MinArgs: 3, MaxArgs: 4, Elementwise: true, Handler: fnCoupPCD})
	r.add(&Spec{Name: "COUPNCD", MinArgs: 3, MaxArgs: 4, Elementwise: true, Handler: fnCoupNCD})
	r.add(&Spec{Name: "COUPNUM", MinArgs: 3, MaxArgs: 4, Elementwise: true, Handler: fnCoupNum})
	r.add(&Spec{Name: "COUPDAYS", MinArgs: 3, MaxArgs: 4, Elementwise: true, Handler: fnCoupDays})
	r.add(&Spec{Name: "COUPDAYBS", MinArgs: 3, MaxArgs: 4, Elementwise: true, Handler: fnCoupDayBS})
	r.add(&Spec{Name: "COUPDAYSNC", MinArgs: 3, MaxArgs: 4, Elementwise: true, Handler: fnCoupDaysNC})
	r.add(&Spec{Name: "PRICE", MinArgs: 6, MaxArgs: 7, Elementwise: true, Handler: fnPrice})
	r.add(&Spec{Name: "YIELD", MinArgs: 6, MaxArgs: 7, Elementwise: true, Handler: fnYield})
	r.add(&Spec{Name: "DURATION", MinArgs: 5, MaxArgs: 6, Elementwise: true, Handler: fnDuration})
	r.add(&Spec{Name: "MDURATION", MinArgs: 5, MaxArgs: 6, Elementwise: true, Handler: fnMDuration})
}

// numArgs coerces a fixed run of scalar args, using defaults for
// omitted trailing ones.
func numArgs(args []value.Value, defaults []float64) ([]float64, value.Value) {
	out := make([]float64, len(defaults))
	copy(out, defaults)
	for i := range defaults {
		if i >= len(args) || args[i] == nil {
			continue
		}
		f, ev, ok := value.CoerceNumber(args[i])
		if !ok {
			return nil, ev
		}
		out[i] = f
	}
	return out, nil
}

// annuity computes the payment for the standard time-value equation
// pv*(1+r)^n + pmt*(1+r*type)*((1+r)^n - 1)/r + fv = 0.
func annuityPMT(rate, nper, pv, fv, typ float64) float64 {
	if rate == 0 {
		return -(pv + fv) / nper
	}
	g := math.Pow(1+rate, nper)
	return -(pv*g + fv) * rate / ((g - 1) * (1 + rate*typ))
}

func annuityFV(rate, nper, pmt, pv, typ float64) float64 {
	if rate == 0 {
		return -(pv + pmt*nper)
	}
	g := math.Pow(1+rate, nper)
	return -(pv*g + pmt*(1+rate*typ)*(g-1)/rate)
}

func fnPMT(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 0})
	if errv != nil {
		return errv
	}
	rate, nper, pv, fv, typ := v[0], v[1], v[2], v[3], v[4]
	if nper == 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(annuityPMT(rate, nper, pv, fv, typ))
}

func fnIPMT(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 0, 0})
	if errv != nil {
		return errv
	}
	rate, per, nper, pv, fv, typ := v[0], v[1], v[2], v[3], v[4], v[5]
	if per < 1 || per > nper || nper == 0 {
		return value.Err(value.KindNum)
	}
	pmt := annuityPMT(rate, nper, pv, fv, typ)
	// balance after per-1 payments
	bal := annuityFV(rate, per-1, pmt, pv, typ)
	ip := -bal * rate
	if typ != 0 && per == 1 {
		ip = 0
	}
	return value.Num(-ip)
}

func fnPPMT(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 0, 0})
	if errv != nil {
		return errv
	}
	rate, per, nper, pv, fv, typ := v[0], v[1], v[2], v[3], v[4], v[5]
	if per < 1 || per > nper || nper == 0 {
		return value.Err(value.KindNum)
	}
	pmt := value.Value(fnPMT(ctx, []value.Value{value.Number(rate), value.Number(nper), value.Number(pv), value.Number(fv), value.Number(typ)}))
	ip := fnIPMT(ctx, args)
	pn, ok1 := pmt.(value.Number)
	in, ok2 := ip.(value.Number)
	if !ok1 {
		return pmt
	}
	if !ok2 {
		return ip
	}
	return value.Num(float64(pn) - float64(in))
}

func fnFV(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 0})
	if errv != nil {
		return errv
	}
	rate, nper, pmt, pv, typ := v[0], v[1], v[2], v[3], v[4]
	return value.Num(annuityFV(rate, nper, pmt, pv, typ))
}

func fnPV(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 0})
	if errv != nil {
		return errv
	}
	rate, nper, pmt, fv, typ := v[0], v[1], v[2], v[3], v[4]
	if rate == 0 {
		return value.Num(-(fv + pmt*nper))
	}
	g := math.Pow(1+rate, nper)
	return value.Num(-(fv + pmt*(1+rate*typ)*(g-1)/rate) / g)
}

func fnNPER(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 0})
	if errv != nil {
		return errv
	}
	rate, pmt, pv, fv, typ := v[0], v[1], v[2], v[3], v[4]
	if rate == 0 {
		if pmt == 0 {
			return value.Err(value.KindDiv0)
		}
		return value.Num(-(pv + fv) / pmt)
	}
	adj := pmt * (1 + rate*typ) / rate
	num := adj - fv
	den := pv + adj
	if num/den <= 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(math.Log(num/den) / math.Log(1+rate))
}

// fnRATE solves the annuity equation for rate by Newton iteration
// with a bisection fallback.
func fnRATE(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 0, 0.1})
	if errv != nil {
		return errv
	}
	nper, pmt, pv, fv, typ, guess := v[0], v[1], v[2], v[3], v[4], v[5]
	if nper <= 0 {
		return value.Err(value.KindNum)
	}
	f := func(rate float64) float64 {
		if rate == 0 {
			return pv + pmt*nper + fv
		}
		g := math.Pow(1+rate, nper)
		return pv*g + pmt*(1+rate*typ)*(g-1)/rate + fv
	}
	rate := guess
	for i := 0; i < 50; i++ {
		y := f(rate)
		if math.Abs(y) < 1e-10 {
			return value.Num(rate)
		}
		dy := (f(rate+1e-6) - y) / 1e-6
		if dy == 0 {
			break
		}
		next := rate - y/dy
		if math.Abs(next-rate) < 1e-12 {
			return value.Num(next)
		}
		rate = next
	}
	// bisection over a wide bracket
	lo, hi := -0.999999, 10.0
	if f(lo)*f(hi) > 0 {
		return value.Err(value.KindNum)
	}
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if f(lo)*f(mid) <= 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return value.Num((lo + hi) / 2)
}

func fnNPV(ctx *Context, args []value.Value) value.Value {
	rate, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	if rate == -1 {
		return value.Err(value.KindDiv0)
	}
	total, i := 0.0, 1
	if errv, hasErr := ctx.numbersOf(args[1:], false, func(f float64) bool {
		total += f / math.Pow(1+rate, float64(i))
		i++
		return true
	}); hasErr {
		return errv
	}
	return value.Num(total)
}

func fnIRR(ctx *Context, args []value.Value) value.Value {
	var flows []float64
	if errv, hasErr := ctx.numbersOf(args[:1], false, func(f float64) bool {
		flows = append(flows, f)
		return true
	}); hasErr {
		return errv
	}
	guess := 0.1
	if len(args) > 1 && args[1] != nil {
		g, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		guess = g
	}
	pos, neg := false, false
	for _, f := range flows {
		if f > 0 {
			pos = true
		}
		if f < 0 {
			neg = true
		}
	}
	if !pos || !neg {
		return value.Err(value.KindNum)
	}
	npv := func(rate float64) float64 {
		total := 0.0
		for i, f := range flows {
			total += f / math.Pow(1+rate, float64(i))
		}
		return total
	}
	return solveRate(npv, guess)
}

// solveRate runs Newton then bisection on a discount-rate equation.
func solveRate(f func(float64) float64, guess float64) value.Value {
	rate := guess
	for i := 0; i < 60; i++ {
		y := f(rate)
		if math.Abs(y) < 1e-9 {
			return value.Num(rate)
		}
		dy := (f(rate+1e-6) - y) / 1e-6
		if dy == 0 || math.IsNaN(dy) {
			break
		}
		next := rate - y/dy
		if next <= -1 {
			next = (rate - 1) / 2
		}
		if math.Abs(next-rate) < 1e-12 {
			return value.Num(next)
		}
		rate = next
	}
	lo, hi := -0.999999, 100.0
	if f(lo)*f(hi) > 0 {
		return value.Err(value.KindNum)
	}
	for i := 0; i < 300; i++ {
		mid := (lo + hi) / 2
		if f(lo)*f(mid) <= 0 {
			hi = mid
		} else {
			lo = mid
		}
	}
	return value.Num((lo + hi) / 2)
}

// flowsAndDates pairs cashflow and date vectors for XNPV/XIRR.
func flowsAndDates(ctx *Context, flowsV, datesV value.Value) (flows, dates []float64, errv value.Value) {
	if e, hasErr := ctx.numbersOf([]value.Value{flowsV}, false, func(f float64) bool {
		flows = append(flows, f)
		return true
	}); hasErr {
		return nil, nil, e
	}
	if e, hasErr := ctx.numbersOf([]value.Value{datesV}, false, func(f float64) bool {
		dates = append(dates, math.Floor(f))
		return true
	}); hasErr {
		return nil, nil, e
	}
	if len(flows) != len(dates) || len(flows) == 0 {
		return nil, nil, value.Err(value.KindNum)
	}
	return flows, dates, nil
}

func xnpv(rate float64, flows, dates []float64) float64 {
	d0 := dates[0]
	total := 0.0
	for i := range flows {
		total += flows[i] / math.Pow(1+rate, (dates[i]-d0)/365)
	}
	return total
}

func fnXNPV(ctx *Context, args []value.Value) value.Value {
	rate, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	flows, dates, errv := flowsAndDates(ctx, args[1], args[2])
	if errv != nil {
		return errv
	}
	if rate <= -1 {
		return value.Err(value.KindNum)
	}
	return value.Num(xnpv(rate, flows, dates))
}

func fnXIRR(ctx *Context, args []value.Value) value.Value {
	flows, dates, errv := flowsAndDates(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	guess := 0.1
	if len(args) > 2 && args[2] != nil {
		g, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		guess = g
	}
	// dates need not arrive sorted
	idx := make([]int, len(dates))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return dates[idx[a]] < dates[idx[b]] })
	sf := make([]float64, len(flows))
	sd := make([]float64, len(dates))
	for i, j := range idx {
		sf[i], sd[i] = flows[j], dates[j]
	}
	return solveRate(func(rate float64) float64 { return xnpv(rate, sf, sd) }, guess)
}

func fnMIRR(ctx *Context, args []value.Value) value.Value {
	var flows []float64
	if errv, hasErr := ctx.numbersOf(args[:1], false, func(f float64) bool {
		flows = append(flows, f)
		return true
	}); hasErr {
		return errv
	}
	finRate, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	reinvRate, ev, ok := value.CoerceNumber(args[2])
	if !ok {
		return ev
	}
	n := float64(len(flows))
	npvPos, npvNeg := 0.0, 0.0
	for i, f := range flows {
		if f > 0 {
			npvPos += f / math.Pow(1+reinvRate, float64(i))
		} else {
			npvNeg += f / math.Pow(1+finRate, float64(i))
		}
	}
	if npvPos == 0 || npvNeg == 0 || n < 2 {
		return value.Err(value.KindDiv0)
	}
	fvPos := npvPos * math.Pow(1+reinvRate, n-1)
	return value.Num(math.Pow(-fvPos/npvNeg, 1/(n-1)) - 1)
}

func fnSLN(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0})
	if errv != nil {
		return errv
	}
	cost, salvage, life := v[0], v[1], v[2]
	if life == 0 {
		return value.Err(value.KindDiv0)
	}
	return value.Num((cost - salvage) / life)
}

func fnSYD(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0})
	if errv != nil {
		return errv
	}
	cost, salvage, life, per := v[0], v[1], v[2], v[3]
	if life <= 0 || per < 1 || per > life {
		return value.Err(value.KindNum)
	}
	return value.Num((cost - salvage) * (life - per + 1) * 2 / (life * (life + 1)))
}

func fnDDB(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 2})
	if errv != nil {
		return errv
	}
	cost, salvage, life, per, factor := v[0], v[1], v[2], v[3], v[4]
	if cost < 0 || salvage < 0 || life <= 0 || per < 1 || per > life || factor <= 0 {
		return value.Err(value.KindNum)
	}
	rate := factor / life
	book := cost
	dep := 0.0
	for i := 1.0; i <= per; i++ {
		dep = book * rate
		if book-dep < salvage {
			dep = book - salvage
			if dep < 0 {
				dep = 0
			}
		}
		book -= dep
	}
	return value.Num(dep)
}

func fnDB(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 12})
	if errv != nil {
		return errv
	}
	cost, salvage, life, per, month := v[0], v[1], v[2], v[3], v[4]
	if cost <= 0 || salvage < 0 || life <= 0 || per < 1 || month < 1 || month > 12 {
		return value.Err(value.KindNum)
	}
	rate := 1 - math.Pow(salvage/cost, 1/life)
	rate = math.Round(rate*1000) / 1000
	book := cost
	dep := 0.0
	for i := 1.0; i <= per; i++ {
		switch {
		case i == 1:
			dep = cost * rate * month / 12
		case i == life+1:
			dep = book * rate * (12 - month) / 12
		default:
			dep = book * rate
		}
		book -= dep
	}
	return value.Num(dep)
}

func fnEffect(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0})
	if errv != nil {
		return errv
	}
	nominal, npery := v[0], math.Trunc(v[1])
	if nominal <= 0 || npery < 1 {
		return value.Err(value.KindNum)
	}
	return value.Num(math.Pow(1+nominal/npery, npery) - 1)
}

func fnNominal(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 0})
	if errv != nil {
		return errv
	}
	effect, npery := v[0], math.Trunc(v[1])
	if effect <= 0 || npery < 1 {
		return value.Err(value.KindNum)
	}
	return value.Num((math.Pow(1+effect, 1/npery) - 1) * npery)
}

func cumCore(ctx *Context, args []value.Value, interest bool) value.Value {
	v, errv := numArgs(args, []float64{0, 0, 0, 0, 0, 0})
	if errv != nil {
		return errv
	}
	rate, nper, pv, start, end, typ := v[0], v[1], v[2], v[3], v[4], v[5]
	if rate <= 0 || nper <= 0 || pv <= 0 || start < 1 || end < start || end > nper || (typ != 0 && typ != 1) {
		return value.Err(value.KindNum)
	}
	pmt := annuityPMT(rate, nper, pv, 0, typ)
	total := 0.0
	for per := start; per <= end; per++ {
		bal := annuityFV(rate, per-1, pmt, pv, typ)
		ip := -bal * rate
		if typ != 0 && per == 1 {
			ip = 0
		}
		if interest {
			total += -ip
		} else {
			total += pmt + ip
		}
	}
	return value.Num(total)
}

func fnCumIPMT(ctx *Context, args []value.Value) value.Value {
	return cumCore(ctx, args, true)
}

func fnCumPrinc(ctx *Context, args []value.Value) value.Value {
	return cumCore(ctx, args, false)
}

func bondDates(ctx *Context, sv, mv value.Value) (settle, mat time.Time, errv value.Value) {
	settle, errv = coerceSerial(ctx, sv)
	if errv != nil {
		return
	}
	mat, errv = coerceSerial(ctx, mv)
	if errv != nil {
		return
	}
	if !settle.Before(mat) {
		return settle, mat, value.Err(value.KindNum)
	}
	return settle, mat, nil
}

// bondFreqBasis reads the coupon frequency at args[i] and the optional
// day-count basis right after it.
func bondFreqBasis(args []value.Value, i int) (freq, basis int, errv value.Value) {
	f, ev, ok := value.CoerceNumber(args[i])
	if !ok {
		return 0, 0, ev
	}
	freq = int(f)
	if freq != 1 && freq != 2 && freq != 4 {
		return 0, 0, value.Err(value.KindNum)
	}
	if v := argOr(args, i+1); v != nil {
		b, ev, ok := value.CoerceNumber(v)
		if !ok {
			return 0, 0, ev
		}
		basis = int(b)
		if basis < 0 || basis > 4 {
			return 0, 0, value.Err(value.KindNum)
		}
	}
	return freq, basis, nil
}

// couponStep lands months away from maturity, pinning to month end
// when the maturity itself falls on one.
func couponStep(maturity time.Time, months int, eom bool) time.Time {
	t := addMonthsClamped(maturity, months)
	if eom {
		t = time.Date(t.Year(), t.Month(), daysInMonth(t.Year(), int(t.Month())), 0, 0, 0, 0, time.UTC)
	}
	return t
}

// couponWalk steps back from maturity one coupon period at a time
// until it reaches the settlement date, giving the surrounding coupon
// dates and the count of coupons still to be paid.
func couponWalk(settle, maturity time.Time, freq int) (pcd, ncd time.Time, num int) {
	step := 12 / freq
	eom := maturity.Day() == daysInMonth(maturity.Year(), int(maturity.Month()))
	d := maturity
	for d.After(settle) {
		num++
		d = couponStep(maturity, -num*step, eom)
	}
	return d, couponStep(maturity, -(num-1)*step, eom), num
}

// coupPeriodDays is the coupon period length E under the given basis.
func coupPeriodDays(pcd, ncd time.Time, freq, basis int) float64 {
	switch basis {
	case 1:
		return ncd.Sub(pcd).Hours() / 24
	case 3:
		return 365 / float64(freq)
	}
	return 360 / float64(freq)
}

func coupDayCount(a, b time.Time, basis int) float64 {
	switch basis {
	case 0:
		return float64(days360(a, b, false))
	case 4:
		return float64(days360(a, b, true))
	}
	return b.Sub(a).Hours() / 24
}

func coupCore(ctx *Context, args []value.Value, part func(ctx *Context, pcd, ncd time.Time, num, freq, basis int) float64) value.Value {
	settle, mat, errv := bondDates(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	freq, basis, errv := bondFreqBasis(args, 2)
	if errv != nil {
		return errv
	}
	pcd, ncd, num := couponWalk(settle, mat, freq)
	return value.Num(part(ctx, pcd, ncd, num, freq, basis))
}

func fnCoupPCD(ctx *Context, args []value.Value) value.Value {
	return coupCore(ctx, args, func(ctx *Context, pcd, ncd time.Time, num, freq, basis int) float64 {
		return timeToSerial(ctx, pcd)
	})
}

func fnCoupNCD(ctx *Context, args []value.Value) value.Value {
	return coupCore(ctx, args, func(ctx *Context, pcd, ncd time.Time, num, freq, basis int) float64 {
		return timeToSerial(ctx, ncd)
	})
}

func fnCoupNum(ctx *Context, args []value.Value) value.Value {
	return coupCore(ctx, args, func(ctx *Context, pcd, ncd time.Time, num, freq, basis int) float64 {
		return float64(num)
	})
}

func fnCoupDays(ctx *Context, args []value.Value) value.Value {
	return coupCore(ctx, args, func(ctx *Context, pcd, ncd time.Time, num, freq, basis int) float64 {
		return coupPeriodDays(pcd, ncd, freq, basis)
	})
}

func fnCoupDayBS(ctx *Context, args []value.Value) value.Value {
	settle, mat, errv := bondDates(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	freq, basis, errv := bondFreqBasis(args, 2)
	if errv != nil {
		return errv
	}
	pcd, _, _ := couponWalk(settle, mat, freq)
	return value.Num(coupDayCount(pcd, settle, basis))
}

func fnCoupDaysNC(ctx *Context, args []value.Value) value.Value {
	settle, mat, errv := bondDates(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	freq, basis, errv := bondFreqBasis(args, 2)
	if errv != nil {
		return errv
	}
	pcd, ncd, _ := couponWalk(settle, mat, freq)
	return value.Num(coupPeriodDays(pcd, ncd, freq, basis) - coupDayCount(pcd, settle, basis))
}

// bondPrice discounts the remaining coupons and the redemption back to
// settlement, less the accrued interest the buyer owes the seller.
func bondPrice(settle, mat time.Time, rate, yld, redemption float64, freq, basis int) float64 {
	pcd, ncd, num := couponWalk(settle, mat, freq)
	f := float64(freq)
	e := coupPeriodDays(pcd, ncd, freq, basis)
	a := coupDayCount(pcd, settle, basis)
	dsc := (e - a) / e
	coupon := 100 * rate / f
	accrued := coupon * a / e
	if num == 1 {
		return (redemption+coupon)/(1+dsc*yld/f) - accrued
	}
	price := redemption / math.Pow(1+yld/f, float64(num-1)+dsc)
	for k := 1; k <= num; k++ {
		price += coupon / math.Pow(1+yld/f, float64(k-1)+dsc)
	}
	return price - accrued
}

func fnPrice(ctx *Context, args []value.Value) value.Value {
	settle, mat, errv := bondDates(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	v, errv := numArgs(args[2:5], []float64{0, 0, 0})
	if errv != nil {
		return errv
	}
	rate, yld, redemption := v[0], v[1], v[2]
	freq, basis, errv := bondFreqBasis(args, 5)
	if errv != nil {
		return errv
	}
	if rate < 0 || yld < 0 || redemption <= 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(bondPrice(settle, mat, rate, yld, redemption, freq, basis))
}

func fnYield(ctx *Context, args []value.Value) value.Value {
	settle, mat, errv := bondDates(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	v, errv := numArgs(args[2:5], []float64{0, 0, 0})
	if errv != nil {
		return errv
	}
	rate, pr, redemption := v[0], v[1], v[2]
	freq, basis, errv := bondFreqBasis(args, 5)
	if errv != nil {
		return errv
	}
	if rate < 0 || pr <= 0 || redemption <= 0 {
		return value.Err(value.KindNum)
	}
	return solveRate(func(y float64) float64 {
		return bondPrice(settle, mat, rate, y, redemption, freq, basis) - pr
	}, 0.05)
}

func bondDuration(settle, mat time.Time, rate, yld float64, freq, basis int) float64 {
	pcd, ncd, num := couponWalk(settle, mat, freq)
	f := float64(freq)
	e := coupPeriodDays(pcd, ncd, freq, basis)
	a := coupDayCount(pcd, settle, basis)
	dsc := (e - a) / e
	sumPV, sumT := 0.0, 0.0
	for k := 1; k <= num; k++ {
		t := float64(k-1) + dsc
		cf := 100 * rate / f
		if k == num {
			cf += 100
		}
		pv := cf / math.Pow(1+yld/f, t)
		sumPV += pv
		sumT += t * pv
	}
	return sumT / sumPV / f
}

func durationArgs(ctx *Context, args []value.Value) (settle, mat time.Time, rate, yld float64, freq, basis int, errv value.Value) {
	settle, mat, errv = bondDates(ctx, args[0], args[1])
	if errv != nil {
		return
	}
	v, errv := numArgs(args[2:4], []float64{0, 0})
	if errv != nil {
		return settle, mat, 0, 0, 0, 0, errv
	}
	rate, yld = v[0], v[1]
	freq, basis, errv = bondFreqBasis(args, 4)
	if errv != nil {
		return
	}
	if rate < 0 || yld < 0 {
		errv = value.Err(value.KindNum)
	}
	return
}

func fnDuration(ctx *Context, args []value.Value) value.Value {
	settle, mat, rate, yld, freq, basis, errv := durationArgs(ctx, args)
	if errv != nil {
		return errv
	}
	return value.Num(bondDuration(settle, mat, rate, yld, freq, basis))
}

func fnMDuration(ctx *Context, args []value.Value) value.Value {
	settle, mat, rate, yld, freq, basis, errv := durationArgs(ctx, args)
	if errv != nil {
		return errv
	}
	return value.Num(bondDuration(settle, mat, rate, yld, freq, basis) / (1 + yld/float64(freq)))
}
