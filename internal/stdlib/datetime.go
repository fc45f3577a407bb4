// internal/stdlib/datetime.go
package stdlib

import (
	"math"
	"strings"
	"time"

	"gridcalc/internal/value"
)

// Serial numbers count days from the workbook epoch. The 1900 system
// keeps the fictitious Feb 29 1900 at serial 60 for file
// compatibility, so conversions skip over it.
const ghostDay = 60

var epoch1900 = time.Date(1899, 12, 31, 0, 0, 0, 0, time.UTC)
var epoch1904 = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

func registerDateTime(r *Registry) {
	r.add(&Spec{Name: "DATE", MinArgs: 3, MaxArgs: 3, Elementwise: true, Handler: fnDate})
	r.add(&Spec{Name: "TIME", MinArgs: 3, MaxArgs: 3, Elementwise: true, Handler: fnTime})
	r.add(&Spec{Name: "NOW", MinArgs: 0, MaxArgs: 0, Volatile: true, Handler: fnNow})
	r.add(&Spec{Name: "TODAY", MinArgs: 0, MaxArgs: 0, Volatile: true, Handler: fnToday})
	r.add(&Spec{Name: "YEAR", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: datePart(func(t time.Time) int { return t.Year() })})
	r.add(&Spec{Name: "MONTH", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: datePart(func(t time.Time) int { return int(t.Month()) })})
	r.add(&Spec{Name: "DAY", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: datePart(func(t time.Time) int { return t.Day() })})
	r.add(&Spec{Name: "HOUR", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: timePart(3600)})
	r.add(&Spec{Name: "MINUTE", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: timePart(60)})
	r.add(&Spec{Name: "SECOND", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: timePart(1)})
	r.add(&Spec{Name: "WEEKDAY", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnWeekday})
	r.add(&Spec{Name: "WEEKNUM", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnWeekNum})
	r.add(&Spec{Name: "ISOWEEKNUM", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnISOWeekNum})
	r.add(&Spec{Name: "DATEVALUE", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnDateValue})
	r.add(&Spec{Name: "TIMEVALUE", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: fnTimeValue})
	r.add(&Spec{Name: "EDATE", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnEDate})
	r.add(&Spec{Name: "EOMONTH", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnEOMonth})
	r.add(&Spec{Name: "DAYS", MinArgs: 2, MaxArgs: 2, Elementwise: true, Handler: fnDays})
	r.add(&Spec{Name: "DAYS360", MinArgs: 2, MaxArgs: 3, Elementwise: true, Handler: fnDays360})
	r.add(&Spec{Name: "DATEDIF", MinArgs: 3, MaxArgs: 3, Elementwise: true, Handler: fnDateDif})
	r.add(&Spec{Name: "YEARFRAC", MinArgs: 2, MaxArgs: 3, Elementwise: true, Handler: fnYearFrac})
	r.add(&Spec{Name: "WORKDAY", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgScalar, ArgReference}, Handler: fnWorkday})
	r.add(&Spec{Name: "NETWORKDAYS", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgScalar, ArgReference}, Handler: fnNetworkdays})
	r.add(&Spec{Name: "WORKDAY.INTL", MinArgs: 2, MaxArgs: 4, ArgModes: []ArgMode{ArgScalar, ArgScalar, ArgScalar, ArgReference}, Handler: fnWorkdayIntl})
	r.add(&Spec{Name: "NETWORKDAYS.INTL", MinArgs: 2, MaxArgs: 4, ArgModes: []ArgMode{ArgScalar, ArgScalar, ArgScalar, ArgReference}, Handler: fnNetworkdaysIntl})
}

// timeToSerial converts t (UTC) to a workbook serial.
func timeToSerial(ctx *Context, t time.Time) float64 {
	if ctx.Date1904 {
		return t.Sub(epoch1904).Hours() / 24
	}
	days := t.Sub(epoch1900).Hours() / 24
	if days >= ghostDay {
		days++
	}
	return days
}

// serialToTime is the inverse; serial 60 in the 1900 system maps to
// Feb 28 1900 since the ghost day never existed.
func serialToTime(ctx *Context, serial float64) (time.Time, bool) {
	if serial < 0 {
		return time.Time{}, false
	}
	if ctx.Date1904 {
		return epoch1904.Add(time.Duration(serial * 24 * float64(time.Hour))), true
	}
	if serial > ghostDay {
		serial--
	}
	return epoch1900.Add(time.Duration(serial * 24 * float64(time.Hour))), true
}

func dateSerial(ctx *Context, y, m, d int) float64 {
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	return timeToSerial(ctx, t)
}

func coerceSerial(ctx *Context, v value.Value) (time.Time, value.Value) {
	f, ev, ok := value.CoerceNumber(v)
	if !ok {
		if t, ok2 := v.(value.Text); ok2 {
			if serial, ok3 := parseDateText(ctx, string(t)); ok3 {
				f = serial
			} else {
				return time.Time{}, value.Err(value.KindValue)
			}
		} else {
			return time.Time{}, ev
		}
	}
	t, ok := serialToTime(ctx, math.Floor(f))
	if !ok {
		return time.Time{}, value.Err(value.KindNum)
	}
	return t, nil
}

// parseDateText recognizes the ISO and slash forms used in formulas.
func parseDateText(ctx *Context, s string) (float64, bool) {
	s = strings.TrimSpace(s)
	layouts := []string{
		"2006-01-02", "2006/01/02",
		"1/2/2006", "01/02/2006",
		"2-Jan-2006", "2 Jan 2006", "Jan 2, 2006",
		"2006-01-02 15:04:05", "2006-01-02T15:04:05",
		"1/2/2006 15:04", "1/2/2006 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return timeToSerial(ctx, t), true
		}
	}
	if frac, ok := parseClock(s); ok {
		return frac, true
	}
	return 0, false
}

// parseClock handles bare times like "9:30" or "14:05:09".
func parseClock(s string) (float64, bool) {
	for _, layout := range []string{"15:04:05", "15:04", "3:04 PM", "3:04:05 PM"} {
		if t, err := time.Parse(layout, s); err == nil {
			return float64(t.Hour()*3600+t.Minute()*60+t.Second()) / 86400, true
		}
	}
	return 0, false
}

func fnDate(ctx *Context, args []value.Value) value.Value {
	y, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	m, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	d, ev, ok := value.CoerceNumber(args[2])
	if !ok {
		return ev
	}
	year := int(y)
	if year < 1900 {
		if year < 0 {
			return value.Err(value.KindNum)
		}
		year += 1900
	}
	serial := dateSerial(ctx, year, int(m), int(d))
	if serial < 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(serial)
}

func fnTime(ctx *Context, args []value.Value) value.Value {
	h, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	m, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	s, ev, ok := value.CoerceNumber(args[2])
	if !ok {
		return ev
	}
	total := int(h)*3600 + int(m)*60 + int(s)
	if total < 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(float64(total%86400) / 86400)
}

func fnNow(ctx *Context, args []value.Value) value.Value {
	return value.Num(timeToSerial(ctx, ctx.Now.UTC()))
}

func fnToday(ctx *Context, args []value.Value) value.Value {
	t := ctx.Now.UTC()
	return value.Num(dateSerial(ctx, t.Year(), int(t.Month()), t.Day()))
}

func datePart(part func(time.Time) int) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		t, errv := coerceSerial(ctx, args[0])
		if errv != nil {
			return errv
		}
		return value.Number(float64(part(t)))
	}
}

// timePart extracts hours, minutes or seconds from the day fraction.
func timePart(unit int) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		f, ev, ok := value.CoerceNumber(args[0])
		if !ok {
			return ev
		}
		if f < 0 {
			return value.Err(value.KindNum)
		}
		frac := f - math.Floor(f)
		secs := int(math.Round(frac * 86400))
		switch unit {
		case 3600:
			return value.Number(float64(secs / 3600 % 24))
		case 60:
			return value.Number(float64(secs / 60 % 60))
		}
		return value.Number(float64(secs % 60))
	}
}

func fnWeekday(ctx *Context, args []value.Value) value.Value {
	t, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	mode := 1.0
	if len(args) > 1 && args[1] != nil {
		m, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		mode = m
	}
	wd := int(t.Weekday()) // Sunday = 0
	switch int(mode) {
	case 1, 17:
		return value.Number(float64(wd + 1))
	case 2, 11:
		return value.Number(float64((wd+6)%7 + 1))
	case 3:
		return value.Number(float64((wd + 6) % 7))
	case 12, 13, 14, 15, 16:
		shift := int(mode) - 11 // weeks starting Tuesday..Saturday
		return value.Number(float64((wd+6-shift)%7 + 1))
	}
	return value.Err(value.KindNum)
}

func fnWeekNum(ctx *Context, args []value.Value) value.Value {
	t, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	mode := 1
	if len(args) > 1 && args[1] != nil {
		m, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		mode = int(m)
	}
	if mode == 21 {
		_, wk := t.ISOWeek()
		return value.Number(float64(wk))
	}
	weekStart := time.Sunday
	if mode == 2 || (mode >= 11 && mode <= 17) {
		starts := map[int]time.Weekday{2: time.Monday, 11: time.Monday, 12: time.Tuesday,
			13: time.Wednesday, 14: time.Thursday, 15: time.Friday, 16: time.Saturday, 17: time.Sunday}
		weekStart = starts[mode]
	}
	jan1 := time.Date(t.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(jan1.Weekday()) - int(weekStart) + 7) % 7
	days := int(t.Sub(jan1).Hours() / 24)
	return value.Number(float64((days+offset)/7 + 1))
}

func fnISOWeekNum(ctx *Context, args []value.Value) value.Value {
	t, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	_, wk := t.ISOWeek()
	return value.Number(float64(wk))
}

func fnDateValue(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	serial, ok := parseDateText(ctx, s)
	if !ok {
		return value.Err(value.KindValue)
	}
	return value.Num(math.Floor(serial))
}

func fnTimeValue(ctx *Context, args []value.Value) value.Value {
	s, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	if frac, ok := parseClock(s); ok {
		return value.Num(frac)
	}
	if serial, ok := parseDateText(ctx, s); ok {
		return value.Num(serial - math.Floor(serial))
	}
	return value.Err(value.KindValue)
}

func fnEDate(ctx *Context, args []value.Value) value.Value {
	t, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	mF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	out := addMonthsClamped(t, int(mF))
	serial := timeToSerial(ctx, out)
	if serial < 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(serial)
}

// addMonthsClamped shifts by months keeping the day in range, so
// Jan 31 + 1 month is Feb 28 rather than Mar 3.
func addMonthsClamped(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	m2 := int(m) + months
	y2 := y + (m2-1)/12
	m2 = (m2-1)%12 + 1
	if m2 < 1 {
		m2 += 12
		y2--
	}
	last := daysInMonth(y2, m2)
	if d > last {
		d = last
	}
	return time.Date(y2, time.Month(m2), d, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(y, m int) int {
	return time.Date(y, time.Month(m)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func fnEOMonth(ctx *Context, args []value.Value) value.Value {
	t, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	mF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	shifted := addMonthsClamped(t, int(mF))
	eom := time.Date(shifted.Year(), shifted.Month(), daysInMonth(shifted.Year(), int(shifted.Month())), 0, 0, 0, 0, time.UTC)
	serial := timeToSerial(ctx, eom)
	if serial < 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(serial)
}

func fnDays(ctx *Context, args []value.Value) value.Value {
	end, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	start, errv := coerceSerial(ctx, args[1])
	if errv != nil {
		return errv
	}
	return value.Num(math.Round(end.Sub(start).Hours() / 24))
}

func fnDays360(ctx *Context, args []value.Value) value.Value {
	start, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	end, errv := coerceSerial(ctx, args[1])
	if errv != nil {
		return errv
	}
	european := false
	if len(args) > 2 && args[2] != nil {
		b, ev, ok := value.CoerceBool(args[2])
		if !ok {
			return ev
		}
		european = b
	}
	return value.Num(float64(days360(start, end, european)))
}

func days360(start, end time.Time, european bool) int {
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	if european {
		if sd == 31 {
			sd = 30
		}
		if ed == 31 {
			ed = 30
		}
	} else {
		if sd == daysInMonth(sy, int(sm)) {
			sd = 30
		}
		if ed == 31 && sd == 30 {
			ed = 30
		}
	}
	return (ey-sy)*360 + (int(em)-int(sm))*30 + (ed - sd)
}

func fnDateDif(ctx *Context, args []value.Value) value.Value {
	start, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	end, errv := coerceSerial(ctx, args[1])
	if errv != nil {
		return errv
	}
	unit, ev, ok := value.CoerceText(args[2])
	if !ok {
		return ev
	}
	if end.Before(start) {
		return value.Err(value.KindNum)
	}
	sy, sm, sd := start.Date()
	ey, em, ed := end.Date()
	months := (ey-sy)*12 + int(em) - int(sm)
	if ed < sd {
		months--
	}
	switch strings.ToUpper(unit) {
	case "Y":
		return value.Number(float64(months / 12))
	case "M":
		return value.Number(float64(months))
	case "D":
		return value.Num(math.Round(end.Sub(start).Hours() / 24))
	case "MD":
		anchor := addMonthsClamped(start, months)
		return value.Num(math.Round(end.Sub(anchor).Hours() / 24))
	case "YM":
		return value.Number(float64(months % 12))
	case "YD":
		anchor := addMonthsClamped(start, months/12*12)
		return value.Num(math.Round(end.Sub(anchor).Hours() / 24))
	}
	return value.Err(value.KindNum)
}

func fnYearFrac(ctx *Context, args []value.Value) value.Value {
	start, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	end, errv := coerceSerial(ctx, args[1])
	if errv != nil {
		return errv
	}
	basis := 0
	if len(args) > 2 && args[2] != nil {
		b, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		basis = int(b)
	}
	if end.Before(start) {
		start, end = end, start
	}
	days := end.Sub(start).Hours() / 24
	switch basis {
	case 0:
		return value.Num(float64(days360(start, end, false)) / 360)
	case 1:
		// actual/actual: average year length over the span
		years := float64(end.Year()-start.Year()) + 1
		total := 0.0
		for y := start.Year(); y <= end.Year(); y++ {
			total += float64(time.Date(y+1, 1, 1, 0, 0, 0, 0, time.UTC).Sub(time.Date(y, 1, 1, 0, 0, 0, 0, time.UTC)).Hours() / 24)
		}
		return value.Num(days / (total / years))
	case 2:
		return value.Num(days / 360)
	case 3:
		return value.Num(days / 365)
	case 4:
		return value.Num(float64(days360(start, end, true)) / 360)
	}
	return value.Err(value.KindNum)
}

func holidaySet(ctx *Context, v value.Value) (map[int]bool, value.Value) {
	set := map[int]bool{}
	if v == nil {
		return set, nil
	}
	var errv value.Value
	ctx.eachValue(v, func(e value.Value) bool {
		switch e := e.(type) {
		case value.Error:
			errv = e
			return false
		case value.Number:
			set[int(e)] = true
		}
		return true
	})
	return set, errv
}

func fnWorkday(ctx *Context, args []value.Value) value.Value {
	start, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	nF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	holidays, errv := holidaySet(ctx, argOr(args, 2))
	if errv != nil {
		return errv
	}
	n := int(nF)
	step := 1
	if n < 0 {
		step = -1
	}
	t := start
	for n != 0 {
		t = t.AddDate(0, 0, step)
		wd := t.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if holidays[int(timeToSerial(ctx, t))] {
			continue
		}
		n -= step
	}
	serial := timeToSerial(ctx, t)
	if serial < 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(serial)
}

// weekendMask decodes the weekend argument into per-weekday flags
// indexed by time.Weekday. Text patterns run Monday through Sunday.
func weekendMask(v value.Value) ([7]bool, value.Value) {
	var mask [7]bool
	if v == nil {
		mask[time.Saturday] = true
		mask[time.Sunday] = true
		return mask, nil
	}
	if t, ok := v.(value.Text); ok {
		s := string(t)
		if len(s) != 7 {
			return mask, value.Err(value.KindValue)
		}
		rest := false
		for i := 0; i < 7; i++ {
			switch s[i] {
			case '1':
				mask[(i+1)%7] = true
			case '0':
				rest = true
			default:
				return mask, value.Err(value.KindValue)
			}
		}
		if !rest {
			// every day off means no workday can ever be found
			return mask, value.Err(value.KindValue)
		}
		return mask, nil
	}
	f, ev, ok := value.CoerceNumber(v)
	if !ok {
		return mask, ev
	}
	switch n := int(f); {
	case n >= 1 && n <= 7:
		first := time.Weekday((n + 5) % 7)
		mask[first] = true
		mask[(first+1)%7] = true
	case n >= 11 && n <= 17:
		mask[time.Weekday(n-11)] = true
	default:
		return mask, value.Err(value.KindNum)
	}
	return mask, nil
}

func fnWorkdayIntl(ctx *Context, args []value.Value) value.Value {
	start, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	nF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	mask, errv := weekendMask(argOr(args, 2))
	if errv != nil {
		return errv
	}
	holidays, errv := holidaySet(ctx, argOr(args, 3))
	if errv != nil {
		return errv
	}
	n := int(nF)
	step := 1
	if n < 0 {
		step = -1
	}
	t := start
	for n != 0 {
		t = t.AddDate(0, 0, step)
		if mask[t.Weekday()] {
			continue
		}
		if holidays[int(timeToSerial(ctx, t))] {
			continue
		}
		n -= step
	}
	serial := timeToSerial(ctx, t)
	if serial < 0 {
		return value.Err(value.KindNum)
	}
	return value.Num(serial)
}

func fnNetworkdaysIntl(ctx *Context, args []value.Value) value.Value {
	start, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	end, errv := coerceSerial(ctx, args[1])
	if errv != nil {
		return errv
	}
	mask, errv := weekendMask(argOr(args, 2))
	if errv != nil {
		return errv
	}
	holidays, errv := holidaySet(ctx, argOr(args, 3))
	if errv != nil {
		return errv
	}
	sign := 1
	if end.Before(start) {
		start, end = end, start
		sign = -1
	}
	n := 0
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		if mask[t.Weekday()] {
			continue
		}
		if holidays[int(timeToSerial(ctx, t))] {
			continue
		}
		n++
	}
	return value.Number(float64(sign * n))
}

func fnNetworkdays(ctx *Context, args []value.Value) value.Value {
	start, errv := coerceSerial(ctx, args[0])
	if errv != nil {
		return errv
	}
	end, errv := coerceSerial(ctx, args[1])
	if errv != nil {
		return errv
	}
	holidays, errv := holidaySet(ctx, argOr(args, 2))
	if errv != nil {
		return errv
	}
	sign := 1
	if end.Before(start) {
		start, end = end, start
		sign = -1
	}
	n := 0
	for t := start; !t.After(end); t = t.AddDate(0, 0, 1) {
		wd := t.Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			continue
		}
		if holidays[int(timeToSerial(ctx, t))] {
			continue
		}
		n++
	}
	return value.Number(float64(sign * n))
}
