// internal/stdlib/lookup.go
package stdlib

import (
	"gridcalc/internal/cell"
	"gridcalc/internal/value"
)

func registerLookup(r *Registry) {
	r.add(&Spec{Name: "VLOOKUP", MinArgs: 3, MaxArgs: 4, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgScalar, ArgScalar}, Handler: fnVLookup})
	r.add(&Spec{Name: "HLOOKUP", MinArgs: 3, MaxArgs: 4, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgScalar, ArgScalar}, Handler: fnHLookup})
	r.add(&Spec{Name: "LOOKUP", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgReference}, Handler: fnLookup})
	r.add(&Spec{Name: "MATCH", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgScalar}, Handler: fnMatch})
	r.add(&Spec{Name: "XMATCH", MinArgs: 2, MaxArgs: 4, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgScalar, ArgScalar}, Handler: fnXMatch})
	r.add(&Spec{Name: "XLOOKUP", MinArgs: 3, MaxArgs: 6, ArgModes: []ArgMode{ArgScalar, ArgReference, ArgReference, ArgAny, ArgScalar, ArgScalar}, Handler: fnXLookup})
	r.add(&Spec{Name: "INDEX", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnIndex})
	r.add(&Spec{Name: "CHOOSE", MinArgs: 2, MaxArgs: -1, ArgModes: []ArgMode{ArgScalar, ArgAny}, Handler: fnChoose})
	r.add(&Spec{Name: "OFFSET", MinArgs: 3, MaxArgs: 5, Volatile: true, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar, ArgScalar, ArgScalar}, Handler: fnOffset})
	r.add(&Spec{Name: "INDIRECT", MinArgs: 1, MaxArgs: 2, Volatile: true, ArgModes: []ArgMode{ArgScalar, ArgScalar}, Handler: fnIndirect})
	r.add(&Spec{Name: "ROW", MinArgs: 0, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnRow})
	r.add(&Spec{Name: "COLUMN", MinArgs: 0, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnColumn})
	r.add(&Spec{Name: "ROWS", MinArgs: 1, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnRows})
	r.add(&Spec{Name: "COLUMNS", MinArgs: 1, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnColumns})
	r.add(&Spec{Name: "ADDRESS", MinArgs: 2, MaxArgs: 5, Elementwise: true, Handler: fnAddress})
	r.add(&Spec{Name: "TRANSPOSE", MinArgs: 1, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnTranspose})
	r.add(&Spec{Name: "HYPERLINK", MinArgs: 1, MaxArgs: 2, Elementwise: true, Handler: fnHyperlink})
	r.add(&Spec{Name: "FORMULATEXT", MinArgs: 1, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnFormulaText})
}

// tableOf materializes a lookup table into a dense array.
func tableOf(ctx *Context, v value.Value) (*value.Array, value.Value) {
	m := ctx.Materialize(v)
	switch m := m.(type) {
	case value.Error:
		return nil, m
	case *value.Array:
		return m, nil
	}
	a := value.NewArray(1, 1)
	a.Data[0] = m
	return a, nil
}

// lookupEq finds target in a vector with Excel's exact-match rules:
// type must agree, text compares case-insensitive, wildcards apply to
// text targets.
func lookupEq(target value.Value, get func(i int) value.Value, n int) int {
	crit := parseCriterion(target)
	if t, ok := target.(value.Text); ok {
		crit = criterion{op: critEq, text: string(t)}
	}
	for i := 0; i < n; i++ {
		if crit.matches(get(i)) {
			return i
		}
	}
	return -1
}

// lookupApprox finds the last element <= target assuming ascending
// order, comparing only same-typed elements.
func lookupApprox(target value.Value, get func(i int) value.Value, n int) int {
	best := -1
	for i := 0; i < n; i++ {
		v := get(i)
		if !sameType(target, v) {
			continue
		}
		c := value.Compare(v, target)
		if c == 0 {
			return i
		}
		if c < 0 {
			best = i
		} else {
			break
		}
	}
	return best
}

func sameType(a, b value.Value) bool {
	switch a.(type) {
	case value.Number:
		_, ok := b.(value.Number)
		return ok
	case value.Text:
		_, ok := b.(value.Text)
		return ok
	case value.Bool:
		_, ok := b.(value.Bool)
		return ok
	}
	return false
}

func fnVLookup(ctx *Context, args []value.Value) value.Value {
	return tableLookup(ctx, args, true)
}

func fnHLookup(ctx *Context, args []value.Value) value.Value {
	return tableLookup(ctx, args, false)
}

func tableLookup(ctx *Context, args []value.Value, vertical bool) value.Value {
	target := args[0]
	if e, ok := target.(value.Error); ok {
		return e
	}
	table, errv := tableOf(ctx, args[1])
	if errv != nil {
		return errv
	}
	idxF, ev, ok := value.CoerceNumber(args[2])
	if !ok {
		return ev
	}
	approx := true
	if len(args) > 3 && args[3] != nil {
		b, ev, ok := value.CoerceBool(args[3])
		if !ok {
			return ev
		}
		approx = b
	}
	pick := int(idxF) - 1
	n := table.Rows
	span := table.Cols
	if !vertical {
		n, span = table.Cols, table.Rows
	}
	if pick < 0 || pick >= span {
		return value.Err(value.KindRef)
	}
	get := func(i int) value.Value {
		if vertical {
			return table.At(i, 0)
		}
		return table.At(0, i)
	}
	var hit int
	if approx {
		hit = lookupApprox(target, get, n)
	} else {
		hit = lookupEq(target, get, n)
	}
	if hit < 0 {
		return value.Err(value.KindNA)
	}
	if vertical {
		return table.At(hit, pick)
	}
	return table.At(pick, hit)
}

// fnLookup is the vector form: value, lookup vector, optional result
// vector. Always approximate.
func fnLookup(ctx *Context, args []value.Value) value.Value {
	target := args[0]
	if e, ok := target.(value.Error); ok {
		return e
	}
	vec, errv := tableOf(ctx, args[1])
	if errv != nil {
		return errv
	}
	result := vec
	if len(args) > 2 && args[2] != nil {
		result, errv = tableOf(ctx, args[2])
		if errv != nil {
			return errv
		}
	}
	n := len(vec.Data)
	hit := lookupApprox(target, func(i int) value.Value { return vec.Data[i] }, n)
	if hit < 0 {
		return value.Err(value.KindNA)
	}
	if hit >= len(result.Data) {
		return value.Err(value.KindRef)
	}
	return result.Data[hit]
}

func fnMatch(ctx *Context, args []value.Value) value.Value {
	target := args[0]
	if e, ok := target.(value.Error); ok {
		return e
	}
	vec, errv := tableOf(ctx, args[1])
	if errv != nil {
		return errv
	}
	if vec.Rows != 1 && vec.Cols != 1 {
		return value.Err(value.KindNA)
	}
	mode := 1.0
	if len(args) > 2 && args[2] != nil {
		m, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		mode = m
	}
	n := len(vec.Data)
	get := func(i int) value.Value { return vec.Data[i] }
	var hit int
	switch {
	case mode > 0:
		hit = lookupApprox(target, get, n)
	case mode == 0:
		hit = lookupEq(target, get, n)
	default:
		// descending: last element >= target
		hit = -1
		for i := 0; i < n; i++ {
			v := get(i)
			if !sameType(target, v) {
				continue
			}
			c := value.Compare(v, target)
			if c == 0 {
				hit = i
				break
			}
			if c > 0 {
				hit = i
			} else {
				break
			}
		}
	}
	if hit < 0 {
		return value.Err(value.KindNA)
	}
	return value.Number(float64(hit + 1))
}

func fnXMatch(ctx *Context, args []value.Value) value.Value {
	hit, errv := xmatchIndex(ctx, args[0], args[1], argOr(args, 2), argOr(args, 3))
	if errv != nil {
		return errv
	}
	return value.Number(float64(hit + 1))
}

func argOr(args []value.Value, i int) value.Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

// xmatchIndex implements the XMATCH search modes over a vector.
func xmatchIndex(ctx *Context, target, vector, matchMode, searchMode value.Value) (int, value.Value) {
	if e, ok := target.(value.Error); ok {
		return 0, e
	}
	vec, errv := tableOf(ctx, vector)
	if errv != nil {
		return 0, errv
	}
	if vec.Rows != 1 && vec.Cols != 1 {
		return 0, value.Err(value.KindValue)
	}
	mm := 0.0
	if matchMode != nil {
		m, ev, ok := value.CoerceNumber(matchMode)
		if !ok {
			return 0, ev
		}
		mm = m
	}
	sm := 1.0
	if searchMode != nil {
		s, ev, ok := value.CoerceNumber(searchMode)
		if !ok {
			return 0, ev
		}
		sm = s
	}
	n := len(vec.Data)
	order := make([]int, n)
	for i := range order {
		if sm == -1 {
			order[i] = n - 1 - i
		} else {
			order[i] = i
		}
	}
	crit := parseCriterion(target)
	if t, ok := target.(value.Text); ok && mm != 2 {
		// wildcards only apply in mode 2
		crit = criterion{op: critEq, text: escapeWild(string(t))}
	}
	bestIdx, bestVal := -1, value.Value(nil)
	for _, i := range order {
		v := vec.Data[i]
		if mm == 0 || mm == 2 {
			if crit.matches(v) {
				return i, nil
			}
			continue
		}
		if crit.matches(v) {
			return i, nil
		}
		if !sameType(target, v) {
			continue
		}
		c := value.Compare(v, target)
		if mm == -1 && c < 0 {
			if bestIdx < 0 || value.Compare(v, bestVal) > 0 {
				bestIdx, bestVal = i, v
			}
		}
		if mm == 1 && c > 0 {
			if bestIdx < 0 || value.Compare(v, bestVal) < 0 {
				bestIdx, bestVal = i, v
			}
		}
	}
	if bestIdx < 0 {
		return 0, value.Err(value.KindNA)
	}
	return bestIdx, nil
}

// escapeWild neutralizes wildcard characters for exact text matching.
func escapeWild(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '~':
			out = append(out, '~')
		}
		out = append(out, s[i])
	}
	return string(out)
}

func fnXLookup(ctx *Context, args []value.Value) value.Value {
	hit, errv := xmatchIndex(ctx, args[0], args[1], argOr(args, 4), argOr(args, 5))
	if errv != nil {
		if e, ok := errv.(value.Error); ok && e.Kind == value.KindNA {
			if len(args) > 3 && args[3] != nil {
				return args[3]
			}
		}
		return errv
	}
	result, rerr := tableOf(ctx, args[2])
	if rerr != nil {
		return rerr
	}
	lookupVec, _ := tableOf(ctx, args[1])
	vertical := lookupVec.Cols == 1 && lookupVec.Rows > 1
	if vertical {
		if hit >= result.Rows {
			return value.Err(value.KindRef)
		}
		row := value.NewArray(1, result.Cols)
		for c := 0; c < result.Cols; c++ {
			row.Set(0, c, result.At(hit, c))
		}
		return row.Scalar()
	}
	if hit >= result.Cols {
		return value.Err(value.KindRef)
	}
	col := value.NewArray(result.Rows, 1)
	for r := 0; r < result.Rows; r++ {
		col.Set(r, 0, result.At(r, hit))
	}
	return col.Scalar()
}

// fnIndex keeps reference arguments as references so INDEX(...):B5
// style ranges still work downstream.
func fnIndex(ctx *Context, args []value.Value) value.Value {
	rowF := 0.0
	if len(args) > 1 && args[1] != nil {
		f, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		rowF = f
	}
	colF := 0.0
	if len(args) > 2 && args[2] != nil {
		f, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		colF = f
	}
	ri, ci := int(rowF), int(colF)
	if ref, ok := args[0].(*value.Reference); ok {
		r := ref.Range
		rows, cols := int(r.Rows()), int(r.Cols())
		if ri < 0 || ci < 0 || ri > rows || ci > cols {
			return value.Err(value.KindRef)
		}
		out := r
		if ri > 0 {
			out.StartRow = r.StartRow + uint32(ri) - 1
			out.EndRow = out.StartRow
		}
		if ci > 0 {
			out.StartCol = r.StartCol + uint32(ci) - 1
			out.EndCol = out.StartCol
		}
		return &value.Reference{Range: out}
	}
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	if ri < 0 || ci < 0 || ri > arr.Rows || ci > arr.Cols {
		return value.Err(value.KindRef)
	}
	switch {
	case ri == 0 && ci == 0:
		return arr
	case ri == 0:
		col := value.NewArray(arr.Rows, 1)
		for r := 0; r < arr.Rows; r++ {
			col.Set(r, 0, arr.At(r, ci-1))
		}
		return col.Scalar()
	case ci == 0:
		if arr.Cols == 1 {
			return arr.At(ri-1, 0)
		}
		row := value.NewArray(1, arr.Cols)
		for c := 0; c < arr.Cols; c++ {
			row.Set(0, c, arr.At(ri-1, c))
		}
		return row
	}
	return arr.At(ri-1, ci-1)
}

func fnChoose(ctx *Context, args []value.Value) value.Value {
	idxF, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	idx := int(idxF)
	if idx < 1 || idx >= len(args) {
		return value.Err(value.KindValue)
	}
	if args[idx] == nil {
		return value.Err(value.KindValue)
	}
	return args[idx]
}

func fnOffset(ctx *Context, args []value.Value) value.Value {
	ref, ok := args[0].(*value.Reference)
	if !ok {
		return value.Err(value.KindValue)
	}
	rowsF, ev, okN := value.CoerceNumber(args[1])
	if !okN {
		return ev
	}
	colsF, ev, okN := value.CoerceNumber(args[2])
	if !okN {
		return ev
	}
	r := ref.Range
	height := int64(r.Rows())
	width := int64(r.Cols())
	if len(args) > 3 && args[3] != nil {
		h, ev, ok := value.CoerceNumber(args[3])
		if !ok {
			return ev
		}
		height = int64(h)
	}
	if len(args) > 4 && args[4] != nil {
		w, ev, ok := value.CoerceNumber(args[4])
		if !ok {
			return ev
		}
		width = int64(w)
	}
	if height <= 0 || width <= 0 {
		return value.Err(value.KindRef)
	}
	startRow := int64(r.StartRow) + int64(rowsF)
	startCol := int64(r.StartCol) + int64(colsF)
	endRow := startRow + height - 1
	endCol := startCol + width - 1
	if startRow < 0 || startCol < 0 || endRow >= int64(cell.DefaultRows) || endCol >= int64(cell.DefaultCols) {
		return value.Err(value.KindRef)
	}
	return &value.Reference{Range: cell.Range{
		Sheet:    r.Sheet,
		StartRow: uint32(startRow), StartCol: uint32(startCol),
		EndRow: uint32(endRow), EndCol: uint32(endCol),
	}}
}

// fnIndirect resolves a textual reference through the engine hook so
// sheet names and defined names stay out of this package.
func fnIndirect(ctx *Context, args []value.Value) value.Value {
	text, ev, ok := value.CoerceText(args[0])
	if !ok {
		return ev
	}
	a1 := true
	if len(args) > 1 && args[1] != nil {
		b, ev, ok := value.CoerceBool(args[1])
		if !ok {
			return ev
		}
		a1 = b
	}
	if ctx.ResolveText == nil {
		return value.Err(value.KindRef)
	}
	return ctx.ResolveText(text, !a1)
}

func fnRow(ctx *Context, args []value.Value) value.Value {
	if len(args) == 0 || args[0] == nil {
		return value.Number(float64(ctx.Caller.Row + 1))
	}
	ref, ok := args[0].(*value.Reference)
	if !ok {
		return value.Err(value.KindValue)
	}
	r := ref.Range
	if r.Rows() == 1 {
		return value.Number(float64(r.StartRow + 1))
	}
	out := value.NewArray(int(r.Rows()), 1)
	for i := 0; i < out.Rows; i++ {
		out.Data[i] = value.Number(float64(r.StartRow + uint32(i) + 1))
	}
	return out
}

func fnColumn(ctx *Context, args []value.Value) value.Value {
	if len(args) == 0 || args[0] == nil {
		return value.Number(float64(ctx.Caller.Col + 1))
	}
	ref, ok := args[0].(*value.Reference)
	if !ok {
		return value.Err(value.KindValue)
	}
	r := ref.Range
	if r.Cols() == 1 {
		return value.Number(float64(r.StartCol + 1))
	}
	out := value.NewArray(1, int(r.Cols()))
	for i := 0; i < out.Cols; i++ {
		out.Data[i] = value.Number(float64(r.StartCol + uint32(i) + 1))
	}
	return out
}

func fnRows(ctx *Context, args []value.Value) value.Value {
	switch v := args[0].(type) {
	case *value.Reference:
		return value.Number(float64(v.Range.Rows()))
	case *value.Array:
		return value.Number(float64(v.Rows))
	case value.Error:
		return v
	}
	return value.Number(1)
}

func fnColumns(ctx *Context, args []value.Value) value.Value {
	switch v := args[0].(type) {
	case *value.Reference:
		return value.Number(float64(v.Range.Cols()))
	case *value.Array:
		return value.Number(float64(v.Cols))
	case value.Error:
		return v
	}
	return value.Number(1)
}

func fnAddress(ctx *Context, args []value.Value) value.Value {
	rowF, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	colF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	absMode := 1.0
	if len(args) > 2 && args[2] != nil {
		m, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		absMode = m
	}
	a1 := true
	if len(args) > 3 && args[3] != nil {
		b, ev, ok := value.CoerceBool(args[3])
		if !ok {
			return ev
		}
		a1 = b
	}
	sheet := ""
	if len(args) > 4 && args[4] != nil {
		s, ev, ok := value.CoerceText(args[4])
		if !ok {
			return ev
		}
		sheet = s
	}
	row, col := int64(rowF), int64(colF)
	if row < 1 || col < 1 || row > int64(cell.DefaultRows) || col > int64(cell.DefaultCols) {
		return value.Err(value.KindValue)
	}
	absRow := absMode == 1 || absMode == 2
	absCol := absMode == 1 || absMode == 3
	var s string
	if a1 {
		if absCol {
			s += "$"
		}
		s += cell.ColumnName(uint32(col - 1))
		if absRow {
			s += "$"
		}
		s += value.FormatNumber(float64(row))
	} else {
		s = "R"
		if absRow {
			s += value.FormatNumber(float64(row))
		} else {
			s += "[" + value.FormatNumber(float64(row)) + "]"
		}
		s += "C"
		if absCol {
			s += value.FormatNumber(float64(col))
		} else {
			s += "[" + value.FormatNumber(float64(col)) + "]"
		}
	}
	if sheet != "" {
		s = sheet + "!" + s
	}
	return value.Text(s)
}

func fnTranspose(ctx *Context, args []value.Value) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	out := value.NewArray(arr.Cols, arr.Rows)
	for r := 0; r < arr.Rows; r++ {
		for c := 0; c < arr.Cols; c++ {
			out.Set(c, r, arr.At(r, c))
		}
	}
	return out.Scalar()
}

// fnHyperlink has no UI here so it just yields the friendly text, or
// the link itself when no label is given.
func fnHyperlink(ctx *Context, args []value.Value) value.Value {
	if len(args) > 1 && args[1] != nil {
		return args[1]
	}
	return args[0]
}

func fnFormulaText(ctx *Context, args []value.Value) value.Value {
	ref, ok := args[0].(*value.Reference)
	if !ok {
		return value.Err(value.KindValue)
	}
	if ctx.FormulaAt == nil {
		return value.Err(value.KindNA)
	}
	text, ok := ctx.FormulaAt(ref.Range.TopLeft())
	if !ok {
		return value.Err(value.KindNA)
	}
	return value.Text(text)
}
