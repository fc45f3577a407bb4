// internal/stdlib/stats.go
package stdlib

import (
	"math"
	"sort"

	"gridcalc/internal/value"
)

func registerStats(r *Registry) {
	agg := func(name string, fn Handler) {
		r.add(&Spec{Name: name, MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fn})
	}
	agg("AVERAGE", fnAverage)
	agg("AVERAGEA", fnAverageA)
	agg("COUNT", fnCount)
	agg("COUNTA", fnCountA)
	agg("MIN", fnMin)
	agg("MAX", fnMax)
	agg("MINA", fnMinA)
	agg("MAXA", fnMaxA)
	agg("MEDIAN", fnMedian)
	agg("STDEV", fnStdevS)
	agg("STDEV.S", fnStdevS)
	agg("STDEVP", fnStdevP)
	agg("STDEV.P", fnStdevP)
	agg("VAR", fnVarS)
	agg("VAR.S", fnVarS)
	agg("VARP", fnVarP)
	agg("VAR.P", fnVarP)
	agg("GEOMEAN", fnGeoMean)
	agg("HARMEAN", fnHarMean)
	agg("DEVSQ", fnDevSq)
	agg("AVEDEV", fnAveDev)
	agg("SKEW", fnSkew)
	agg("KURT", fnKurt)
	agg("MODE", fnMode)
	agg("MODE.SNGL", fnMode)

	r.add(&Spec{Name: "COUNTBLANK", MinArgs: 1, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnCountBlank})
	r.add(&Spec{Name: "LARGE", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnLarge})
	r.add(&Spec{Name: "SMALL", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnSmall})
	r.add(&Spec{Name: "RANK", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgScalar}, Handler: fnRank})
	r.add(&Spec{Name: "RANK.EQ", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgScalar}, Handler: fnRank})
	r.add(&Spec{Name: "RANK.AVG", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgScalar}, Handler: fnRankAvg})
	r.add(&Spec{Name: "PERCENTILE", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnPercentileInc})
	r.add(&Spec{Name: "PERCENTILE.INC", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnPercentileInc})
	r.add(&Spec{Name: "PERCENTILE.EXC", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnPercentileExc})
	r.add(&Spec{Name: "QUARTILE", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnQuartile})
	r.add(&Spec{Name: "QUARTILE.INC", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnQuartile})
	r.add(&Spec{Name: "QUARTILE.EXC", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnQuartileExc})
	r.add(&Spec{Name: "PERCENTRANK", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnPercentRankInc})
	r.add(&Spec{Name: "PERCENTRANK.INC", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnPercentRankInc})
	r.add(&Spec{Name: "PERCENTRANK.EXC", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnPercentRankExc})
	r.add(&Spec{Name: "TRIMMEAN", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnTrimMean})
	r.add(&Spec{Name: "CORREL", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference}, Handler: fnCorrel})
	r.add(&Spec{Name: "PEARSON", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference}, Handler: fnCorrel})
	r.add(&Spec{Name: "RSQ", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference}, Handler: fnRSQ})
	r.add(&Spec{Name: "SLOPE", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference}, Handler: fnSlope})
	r.add(&Spec{Name: "INTERCEPT", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference}, Handler: fnIntercept})
	r.add(&Spec{Name: "COVARIANCE.P", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference}, Handler: fnCovarP})
	r.add(&Spec{Name: "COVAR", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference}, Handler: fnCovarP})
	r.add(&Spec{Name: "FORECAST", MinArgs: 3, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgReference}, Handler: fnForecast})
	r.add(&Spec{Name: "FORECAST.LINEAR", MinArgs: 3, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgReference}, Handler: fnForecast})
	r.add(&Spec{Name: "NORM.DIST", MinArgs: 4, MaxArgs: 4, Elementwise: true, Handler: fnNormDist})
	r.add(&Spec{Name: "NORMDIST", MinArgs: 4, MaxArgs: 4, Elementwise: true, Handler: fnNormDist})
	r.add(&Spec{Name: "NORM.S.DIST", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnNormSDist})
	r.add(&Spec{Name: "NORM.INV", MinArgs: 3, MaxArgs: 3, Elementwise: true, Handler: fnNormInv})
	r.add(&Spec{Name: "NORM.S.INV", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnNormSInv})
	r.add(&Spec{Name: "STANDARDIZE", MinArgs: 3, MaxArgs: 3, Elementwise: true, Handler: fnStandardize})
}

// collectNumbers gathers the numeric population of the arguments,
// skipping text and blanks inside ranges like SUM does.
func collectNumbers(ctx *Context, args []value.Value) ([]float64, value.Value) {
	var out []float64
	if errv, hasErr := ctx.numbersOf(args, false, func(f float64) bool {
		out = append(out, f)
		return true
	}); hasErr {
		return nil, errv
	}
	return out, nil
}

func fnAverage(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Err(value.KindDiv0)
	}
	total := 0.0
	for _, f := range nums {
		total += f
	}
	return value.Num(total / float64(len(nums)))
}

// fnAverageA counts text as 0 and booleans as 0/1.
func fnAverageA(ctx *Context, args []value.Value) value.Value {
	total, n := 0.0, 0
	var errv value.Value
	for _, a := range args {
		ctx.eachValue(a, func(v value.Value) bool {
			switch v := v.(type) {
			case value.Error:
				errv = v
				return false
			case value.Number:
				total += float64(v)
				n++
			case value.Bool:
				if v {
					total++
				}
				n++
			case value.Text:
				n++
			}
			return true
		})
		if errv != nil {
			return errv
		}
	}
	if n == 0 {
		return value.Err(value.KindDiv0)
	}
	return value.Num(total / float64(n))
}

func fnCount(ctx *Context, args []value.Value) value.Value {
	n := 0
	for _, a := range args {
		if isRangeLike(a) {
			ctx.eachValue(a, func(v value.Value) bool {
				if _, ok := v.(value.Number); ok {
					n++
				}
				return true
			})
			continue
		}
		// scalar arguments count if coercible
		switch v := a.(type) {
		case value.Number, value.Bool:
			n++
		case value.Text:
			if _, ok := value.ParseNumber(string(v)); ok {
				n++
			}
		}
	}
	return value.Number(float64(n))
}

func fnCountA(ctx *Context, args []value.Value) value.Value {
	n := 0
	for _, a := range args {
		ctx.eachValue(a, func(v value.Value) bool {
			if _, blank := v.(value.Blank); !blank {
				n++
			}
			return true
		})
	}
	return value.Number(float64(n))
}

func fnCountBlank(ctx *Context, args []value.Value) value.Value {
	n := 0
	ctx.eachValue(args[0], func(v value.Value) bool {
		switch v := v.(type) {
		case value.Blank:
			n++
		case value.Text:
			if v == "" {
				n++
			}
		}
		return true
	})
	return value.Number(float64(n))
}

func fnMin(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	m := nums[0]
	for _, f := range nums[1:] {
		if f < m {
			m = f
		}
	}
	return value.Number(m)
}

func fnMax(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	m := nums[0]
	for _, f := range nums[1:] {
		if f > m {
			m = f
		}
	}
	return value.Number(m)
}

func collectNumbersA(ctx *Context, args []value.Value) ([]float64, value.Value) {
	var out []float64
	var errv value.Value
	for _, a := range args {
		ctx.eachValue(a, func(v value.Value) bool {
			switch v := v.(type) {
			case value.Error:
				errv = v
				return false
			case value.Number:
				out = append(out, float64(v))
			case value.Bool:
				if v {
					out = append(out, 1)
				} else {
					out = append(out, 0)
				}
			case value.Text:
				out = append(out, 0)
			}
			return true
		})
		if errv != nil {
			return nil, errv
		}
	}
	return out, nil
}

func fnMinA(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbersA(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	m := nums[0]
	for _, f := range nums[1:] {
		if f < m {
			m = f
		}
	}
	return value.Number(m)
}

func fnMaxA(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbersA(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Number(0)
	}
	m := nums[0]
	for _, f := range nums[1:] {
		if f > m {
			m = f
		}
	}
	return value.Number(m)
}

func fnMedian(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Err(value.KindNum)
	}
	sort.Float64s(nums)
	n := len(nums)
	if n%2 == 1 {
		return value.Number(nums[n/2])
	}
	return value.Num((nums[n/2-1] + nums[n/2]) / 2)
}

func variance(nums []float64) (float64, int) {
	n := len(nums)
	if n == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, f := range nums {
		mean += f
	}
	mean /= float64(n)
	ss := 0.0
	for _, f := range nums {
		d := f - mean
		ss += d * d
	}
	return ss, n
}

func fnVarS(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	ss, n := variance(nums)
	if n < 2 {
		return value.Err(value.KindDiv0)
	}
	return value.Num(ss / float64(n-1))
}

func fnVarP(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	ss, n := variance(nums)
	if n < 1 {
		return value.Err(value.KindDiv0)
	}
	return value.Num(ss / float64(n))
}

func fnStdevS(ctx *Context, args []value.Value) value.Value {
	v := fnVarS(ctx, args)
	if n, ok := v.(value.Number); ok {
		return value.Num(math.Sqrt(float64(n)))
	}
	return v
}

func fnStdevP(ctx *Context, args []value.Value) value.Value {
	v := fnVarP(ctx, args)
	if n, ok := v.(value.Number); ok {
		return value.Num(math.Sqrt(float64(n)))
	}
	return v
}

func fnGeoMean(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Err(value.KindNum)
	}
	logSum := 0.0
	for _, f := range nums {
		if f <= 0 {
			return value.Err(value.KindNum)
		}
		logSum += math.Log(f)
	}
	return value.Num(math.Exp(logSum / float64(len(nums))))
}

func fnHarMean(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Err(value.KindNum)
	}
	inv := 0.0
	for _, f := range nums {
		if f <= 0 {
			return value.Err(value.KindNum)
		}
		inv += 1 / f
	}
	return value.Num(float64(len(nums)) / inv)
}

func fnDevSq(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Err(value.KindNum)
	}
	ss, _ := variance(nums)
	return value.Num(ss)
}

func fnAveDev(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	if len(nums) == 0 {
		return value.Err(value.KindNum)
	}
	mean := 0.0
	for _, f := range nums {
		mean += f
	}
	mean /= float64(len(nums))
	dev := 0.0
	for _, f := range nums {
		dev += math.Abs(f - mean)
	}
	return value.Num(dev / float64(len(nums)))
}

func fnSkew(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	n := float64(len(nums))
	if n < 3 {
		return value.Err(value.KindDiv0)
	}
	ss, _ := variance(nums)
	s := math.Sqrt(ss / (n - 1))
	if s == 0 {
		return value.Err(value.KindDiv0)
	}
	mean := 0.0
	for _, f := range nums {
		mean += f
	}
	mean /= n
	m3 := 0.0
	for _, f := range nums {
		d := (f - mean) / s
		m3 += d * d * d
	}
	return value.Num(n / ((n - 1) * (n - 2)) * m3)
}

func fnKurt(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	n := float64(len(nums))
	if n < 4 {
		return value.Err(value.KindDiv0)
	}
	ss, _ := variance(nums)
	s := math.Sqrt(ss / (n - 1))
	if s == 0 {
		return value.Err(value.KindDiv0)
	}
	mean := 0.0
	for _, f := range nums {
		mean += f
	}
	mean /= n
	m4 := 0.0
	for _, f := range nums {
		d := (f - mean) / s
		m4 += d * d * d * d
	}
	k := n * (n + 1) / ((n - 1) * (n - 2) * (n - 3)) * m4
	k -= 3 * (n - 1) * (n - 1) / ((n - 2) * (n - 3))
	return value.Num(k)
}

func fnMode(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args)
	if errv != nil {
		return errv
	}
	counts := make(map[float64]int, len(nums))
	best, bestN := 0.0, 0
	for _, f := range nums {
		counts[f]++
		if counts[f] > bestN {
			best, bestN = f, counts[f]
		}
	}
	if bestN < 2 {
		return value.Err(value.KindNA)
	}
	return value.Number(best)
}

func fnLarge(ctx *Context, args []value.Value) value.Value {
	return kth(ctx, args, true)
}

func fnSmall(ctx *Context, args []value.Value) value.Value {
	return kth(ctx, args, false)
}

func kth(ctx *Context, args []value.Value, largest bool) value.Value {
	if len(args) < 2 {
		return value.Err(value.KindValue)
	}
	nums, errv := collectNumbers(ctx, args[:1])
	if errv != nil {
		return errv
	}
	kf, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	k := int(kf)
	if k < 1 || k > len(nums) {
		return value.Err(value.KindNum)
	}
	sort.Float64s(nums)
	if largest {
		return value.Number(nums[len(nums)-k])
	}
	return value.Number(nums[k-1])
}

func fnRank(ctx *Context, args []value.Value) value.Value {
	x, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	nums, errv := collectNumbers(ctx, args[1:2])
	if errv != nil {
		return errv
	}
	ascending := false
	if len(args) > 2 && args[2] != nil {
		o, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		ascending = o != 0
	}
	rank, found := 1, false
	for _, f := range nums {
		if f == x {
			found = true
		}
		if ascending && f < x {
			rank++
		}
		if !ascending && f > x {
			rank++
		}
	}
	if !found {
		return value.Err(value.KindNA)
	}
	return value.Number(float64(rank))
}

func fnPercentileInc(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args[:1])
	if errv != nil {
		return errv
	}
	p, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	return percentileInc(nums, p)
}

func percentileInc(nums []float64, p float64) value.Value {
	if len(nums) == 0 || p < 0 || p > 1 {
		return value.Err(value.KindNum)
	}
	sort.Float64s(nums)
	pos := p * float64(len(nums)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return value.Number(nums[lo])
	}
	frac := pos - float64(lo)
	return value.Num(nums[lo] + frac*(nums[hi]-nums[lo]))
}

func fnQuartile(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args[:1])
	if errv != nil {
		return errv
	}
	q, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	n := int(q)
	if n < 0 || n > 4 {
		return value.Err(value.KindNum)
	}
	return percentileInc(nums, float64(n)/4)
}

func fnRankAvg(ctx *Context, args []value.Value) value.Value {
	x, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	nums, errv := collectNumbers(ctx, args[1:2])
	if errv != nil {
		return errv
	}
	ascending := false
	if len(args) > 2 && args[2] != nil {
		o, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		ascending = o != 0
	}
	rank, ties := 1, 0
	for _, f := range nums {
		if f == x {
			ties++
		}
		if ascending && f < x {
			rank++
		}
		if !ascending && f > x {
			rank++
		}
	}
	if ties == 0 {
		return value.Err(value.KindNA)
	}
	// Tied values share the mean of the ranks they span.
	return value.Num(float64(rank) + float64(ties-1)/2)
}

func fnPercentileExc(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args[:1])
	if errv != nil {
		return errv
	}
	p, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	return percentileExc(nums, p)
}

// percentileExc interpolates at position p*(n+1) over the sorted set;
// positions outside [1, n] have no neighbors to interpolate between.
func percentileExc(nums []float64, p float64) value.Value {
	n := len(nums)
	if n == 0 {
		return value.Err(value.KindNum)
	}
	pos := p * float64(n+1)
	if pos < 1 || pos > float64(n) {
		return value.Err(value.KindNum)
	}
	sort.Float64s(nums)
	lo := int(math.Floor(pos))
	frac := pos - float64(lo)
	if lo >= n {
		return value.Number(nums[n-1])
	}
	return value.Num(nums[lo-1] + frac*(nums[lo]-nums[lo-1]))
}

func fnQuartileExc(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args[:1])
	if errv != nil {
		return errv
	}
	q, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	n := int(q)
	if n < 1 || n > 3 {
		return value.Err(value.KindNum)
	}
	return percentileExc(nums, float64(n)/4)
}

func fnPercentRankInc(ctx *Context, args []value.Value) value.Value {
	return percentRank(ctx, args, false)
}

func fnPercentRankExc(ctx *Context, args []value.Value) value.Value {
	return percentRank(ctx, args, true)
}

func percentRank(ctx *Context, args []value.Value, exclusive bool) value.Value {
	nums, errv := collectNumbers(ctx, args[:1])
	if errv != nil {
		return errv
	}
	x, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	digits := 3
	if len(args) > 2 && args[2] != nil {
		d, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		digits = int(d)
		if digits < 1 {
			return value.Err(value.KindNum)
		}
	}
	n := len(nums)
	if n == 0 {
		return value.Err(value.KindNum)
	}
	sort.Float64s(nums)
	if x < nums[0] || x > nums[n-1] {
		return value.Err(value.KindNA)
	}
	less, exact := 0, false
	for _, f := range nums {
		if f < x {
			less++
		}
		if f == x {
			exact = true
		}
	}
	frac := 0.0
	if !exact {
		a, b := nums[less-1], nums[less]
		frac = (x - a) / (b - a)
	}
	var rank float64
	if exclusive {
		rank = (float64(less) + 1 + frac) / float64(n+1)
	} else {
		if n < 2 {
			return value.Err(value.KindDiv0)
		}
		rank = (float64(less) + frac) / float64(n-1)
	}
	scale := math.Pow(10, float64(digits))
	return value.Num(math.Trunc(rank*scale) / scale)
}

func fnTrimMean(ctx *Context, args []value.Value) value.Value {
	nums, errv := collectNumbers(ctx, args[:1])
	if errv != nil {
		return errv
	}
	p, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	if p < 0 || p >= 1 || len(nums) == 0 {
		return value.Err(value.KindNum)
	}
	sort.Float64s(nums)
	trim := int(float64(len(nums)) * p / 2)
	kept := nums[trim : len(nums)-trim]
	total := 0.0
	for _, f := range kept {
		total += f
	}
	return value.Num(total / float64(len(kept)))
}

// pairedNumbers collects two equally shaped sets, keeping only
// positions where both sides are numeric.
func pairedNumbers(ctx *Context, a, b value.Value) (xs, ys []float64, errv value.Value) {
	ra, ca := shapeOf(ctx, a)
	rb, cb := shapeOf(ctx, b)
	if ra != rb || ca != cb {
		return nil, nil, value.Err(value.KindNA)
	}
	for r := 0; r < ra; r++ {
		for c := 0; c < ca; c++ {
			va := elemAt(ctx, a, r, c)
			vb := elemAt(ctx, b, r, c)
			if e, ok := va.(value.Error); ok {
				return nil, nil, e
			}
			if e, ok := vb.(value.Error); ok {
				return nil, nil, e
			}
			na, aok := va.(value.Number)
			nb, bok := vb.(value.Number)
			if aok && bok {
				xs = append(xs, float64(na))
				ys = append(ys, float64(nb))
			}
		}
	}
	return xs, ys, nil
}

func linstats(xs, ys []float64) (mx, my, sxx, syy, sxy float64) {
	n := float64(len(xs))
	for i := range xs {
		mx += xs[i]
		my += ys[i]
	}
	mx /= n
	my /= n
	for i := range xs {
		dx, dy := xs[i]-mx, ys[i]-my
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	return
}

func fnCorrel(ctx *Context, args []value.Value) value.Value {
	xs, ys, errv := pairedNumbers(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	if len(xs) == 0 {
		return value.Err(value.KindDiv0)
	}
	_, _, sxx, syy, sxy := linstats(xs, ys)
	if sxx == 0 || syy == 0 {
		return value.Err(value.KindDiv0)
	}
	return value.Num(sxy / math.Sqrt(sxx*syy))
}

func fnRSQ(ctx *Context, args []value.Value) value.Value {
	v := fnCorrel(ctx, args)
	if n, ok := v.(value.Number); ok {
		return value.Num(float64(n) * float64(n))
	}
	return v
}

func fnSlope(ctx *Context, args []value.Value) value.Value {
	ys, xs, errv := pairedNumbers(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	if len(xs) == 0 {
		return value.Err(value.KindDiv0)
	}
	_, _, sxx, _, sxy := linstats(xs, ys)
	if sxx == 0 {
		return value.Err(value.KindDiv0)
	}
	return value.Num(sxy / sxx)
}

func fnIntercept(ctx *Context, args []value.Value) value.Value {
	ys, xs, errv := pairedNumbers(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	if len(xs) == 0 {
		return value.Err(value.KindDiv0)
	}
	mx, my, sxx, _, sxy := linstats(xs, ys)
	if sxx == 0 {
		return value.Err(value.KindDiv0)
	}
	return value.Num(my - sxy/sxx*mx)
}

func fnCovarP(ctx *Context, args []value.Value) value.Value {
	xs, ys, errv := pairedNumbers(ctx, args[0], args[1])
	if errv != nil {
		return errv
	}
	if len(xs) == 0 {
		return value.Err(value.KindDiv0)
	}
	_, _, _, _, sxy := linstats(xs, ys)
	return value.Num(sxy / float64(len(xs)))
}

func fnForecast(ctx *Context, args []value.Value) value.Value {
	x, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	ys, xs, errv := pairedNumbers(ctx, args[1], args[2])
	if errv != nil {
		return errv
	}
	if len(xs) == 0 {
		return value.Err(value.KindDiv0)
	}
	mx, my, sxx, _, sxy := linstats(xs, ys)
	if sxx == 0 {
		return value.Err(value.KindDiv0)
	}
	b := sxy / sxx
	return value.Num(my - b*mx + b*x)
}

func normPDF(x, mean, sd float64) float64 {
	d := (x - mean) / sd
	return math.Exp(-d*d/2) / (sd * math.Sqrt(2*math.Pi))
}

func normCDF(x, mean, sd float64) float64 {
	return 0.5 * math.Erfc(-(x-mean)/(sd*math.Sqrt2))
}

func fnNormDist(ctx *Context, args []value.Value) value.Value {
	x, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	mean, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	sd, ev, ok := value.CoerceNumber(args[2])
	if !ok {
		return ev
	}
	cum, ev, ok := value.CoerceBool(args[3])
	if !ok {
		return ev
	}
	if sd <= 0 {
		return value.Err(value.KindNum)
	}
	if cum {
		return value.Num(normCDF(x, mean, sd))
	}
	return value.Num(normPDF(x, mean, sd))
}

func fnNormSDist(ctx *Context, args []value.Value) value.Value {
	x, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	cum, ev, ok := value.CoerceBool(args[1])
	if !ok {
		return ev
	}
	if cum {
		return value.Num(normCDF(x, 0, 1))
	}
	return value.Num(normPDF(x, 0, 1))
}

// normSInv inverts the standard normal CDF by bisection. Accurate to
// about 1e-12 over the open unit interval.
func normSInv(p float64) float64 {
	lo, hi := -40.0, 40.0
	for i := 0; i < 200; i++ {
		mid := (lo + hi) / 2
		if normCDF(mid, 0, 1) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return (lo + hi) / 2
}

func fnNormSInv(ctx *Context, args []value.Value) value.Value {
	p, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	if p <= 0 || p >= 1 {
		return value.Err(value.KindNum)
	}
	return value.Num(normSInv(p))
}

func fnNormInv(ctx *Context, args []value.Value) value.Value {
	p, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	mean, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	sd, ev, ok := value.CoerceNumber(args[2])
	if !ok {
		return ev
	}
	if p <= 0 || p >= 1 || sd <= 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(mean + sd*normSInv(p))
}

func fnStandardize(ctx *Context, args []value.Value) value.Value {
	x, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	mean, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	sd, ev, ok := value.CoerceNumber(args[2])
	if !ok {
		return ev
	}
	if sd <= 0 {
		return value.Err(value.KindNum)
	}
	return value.Num((x - mean) / sd)
}
