// internal/stdlib/dynamic.go
package stdlib

import (
	"sort"

	"gridcalc/internal/value"
)

func registerDynamic(r *Registry) {
	r.add(&Spec{Name: "SEQUENCE", MinArgs: 1, MaxArgs: 4, Elementwise: false, Handler: fnSequence})
	r.add(&Spec{Name: "RANDARRAY", MinArgs: 0, MaxArgs: 5, Volatile: true, Handler: fnRandArray})
	r.add(&Spec{Name: "UNIQUE", MinArgs: 1, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnUnique})
	r.add(&Spec{Name: "SORT", MinArgs: 1, MaxArgs: 4, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar, ArgScalar}, Handler: fnSort})
	r.add(&Spec{Name: "SORTBY", MinArgs: 2, MaxArgs: -1, ArgModes: []ArgMode{ArgReference, ArgReference, ArgScalar}, Handler: fnSortBy})
	r.add(&Spec{Name: "FILTER", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgReference, ArgAny}, Handler: fnFilter})
	r.add(&Spec{Name: "TAKE", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnTake})
	r.add(&Spec{Name: "DROP", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnDrop})
	r.add(&Spec{Name: "TOCOL", MinArgs: 1, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnToCol})
	r.add(&Spec{Name: "TOROW", MinArgs: 1, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar}, Handler: fnToRow})
	r.add(&Spec{Name: "WRAPROWS", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgAny}, Handler: fnWrapRows})
	r.add(&Spec{Name: "WRAPCOLS", MinArgs: 2, MaxArgs: 3, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgAny}, Handler: fnWrapCols})
	r.add(&Spec{Name: "HSTACK", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fnHStack})
	r.add(&Spec{Name: "VSTACK", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fnVStack})
	r.add(&Spec{Name: "EXPAND", MinArgs: 2, MaxArgs: 4, ArgModes: []ArgMode{ArgReference, ArgScalar, ArgScalar, ArgAny}, Handler: fnExpand})
	r.add(&Spec{Name: "CHOOSEROWS", MinArgs: 2, MaxArgs: -1, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnChooseRows})
	r.add(&Spec{Name: "CHOOSECOLS", MinArgs: 2, MaxArgs: -1, ArgModes: []ArgMode{ArgReference, ArgScalar}, Handler: fnChooseCols})

	r.add(&Spec{Name: "MAP", MinArgs: 2, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: fnMap})
	r.add(&Spec{Name: "REDUCE", MinArgs: 3, MaxArgs: 3, ArgModes: []ArgMode{ArgAny, ArgReference, ArgLambda}, Handler: fnReduce})
	r.add(&Spec{Name: "SCAN", MinArgs: 3, MaxArgs: 3, ArgModes: []ArgMode{ArgAny, ArgReference, ArgLambda}, Handler: fnScan})
	r.add(&Spec{Name: "BYROW", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgLambda}, Handler: fnByRow})
	r.add(&Spec{Name: "BYCOL", MinArgs: 2, MaxArgs: 2, ArgModes: []ArgMode{ArgReference, ArgLambda}, Handler: fnByCol})
	r.add(&Spec{Name: "MAKEARRAY", MinArgs: 3, MaxArgs: 3, ArgModes: []ArgMode{ArgScalar, ArgScalar, ArgLambda}, Handler: fnMakeArray})
}

func fnSequence(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{0, 1, 1, 1})
	if errv != nil {
		return errv
	}
	rows, cols := int(v[0]), int(v[1])
	start, step := v[2], v[3]
	if rows < 1 || cols < 1 || rows*cols > MaxMaterializedCells {
		return value.Err(value.KindValue)
	}
	out := value.NewArray(rows, cols)
	cur := start
	for i := range out.Data {
		out.Data[i] = value.Number(cur)
		cur += step
	}
	return out.Scalar()
}

func fnRandArray(ctx *Context, args []value.Value) value.Value {
	v, errv := numArgs(args, []float64{1, 1, 0, 1, 0})
	if errv != nil {
		return errv
	}
	rows, cols := int(v[0]), int(v[1])
	lo, hi := v[2], v[3]
	whole := v[4] != 0
	if len(args) > 4 && args[4] != nil {
		b, ev, ok := value.CoerceBool(args[4])
		if !ok {
			return ev
		}
		whole = b
	}
	if rows < 1 || cols < 1 || rows*cols > MaxMaterializedCells || hi < lo {
		return value.Err(value.KindValue)
	}
	out := value.NewArray(rows, cols)
	for i := range out.Data {
		if whole {
			out.Data[i] = value.Number(float64(int64(lo) + ctx.Rand.Int63n(int64(hi-lo)+1)))
		} else {
			out.Data[i] = value.Number(lo + ctx.Rand.Float64()*(hi-lo))
		}
	}
	return out.Scalar()
}

// rowKey builds a comparable identity for UNIQUE row matching.
func rowKey(arr *value.Array, r int) string {
	key := ""
	for c := 0; c < arr.Cols; c++ {
		key += value.TypeName(arr.At(r, c)) + "\x00" + canonicalText(arr.At(r, c)) + "\x01"
	}
	return key
}

func canonicalText(v value.Value) string {
	if t, ok := v.(value.Text); ok {
		return "s:" + string(t)
	}
	return value.ToDisplay(v)
}

func fnUnique(ctx *Context, args []value.Value) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	byCol := false
	if len(args) > 1 && args[1] != nil {
		b, ev, ok := value.CoerceBool(args[1])
		if !ok {
			return ev
		}
		byCol = b
	}
	exactlyOnce := false
	if len(args) > 2 && args[2] != nil {
		b, ev, ok := value.CoerceBool(args[2])
		if !ok {
			return ev
		}
		exactlyOnce = b
	}
	if byCol {
		arr = transposeArray(arr)
	}
	counts := map[string]int{}
	for r := 0; r < arr.Rows; r++ {
		counts[rowKey(arr, r)]++
	}
	var keep []int
	seen := map[string]bool{}
	for r := 0; r < arr.Rows; r++ {
		k := rowKey(arr, r)
		if exactlyOnce {
			if counts[k] == 1 {
				keep = append(keep, r)
			}
			continue
		}
		if !seen[k] {
			seen[k] = true
			keep = append(keep, r)
		}
	}
	if len(keep) == 0 {
		return value.Err(value.KindCalc)
	}
	out := value.NewArray(len(keep), arr.Cols)
	for i, r := range keep {
		for c := 0; c < arr.Cols; c++ {
			out.Set(i, c, arr.At(r, c))
		}
	}
	if byCol {
		out = transposeArray(out)
	}
	return out.Scalar()
}

func transposeArray(arr *value.Array) *value.Array {
	out := value.NewArray(arr.Cols, arr.Rows)
	for r := 0; r < arr.Rows; r++ {
		for c := 0; c < arr.Cols; c++ {
			out.Set(c, r, arr.At(r, c))
		}
	}
	return out
}

func fnSort(ctx *Context, args []value.Value) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	sortIdx := 1
	if len(args) > 1 && args[1] != nil {
		f, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		sortIdx = int(f)
	}
	order := 1
	if len(args) > 2 && args[2] != nil {
		f, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		order = int(f)
	}
	byCol := false
	if len(args) > 3 && args[3] != nil {
		b, ev, ok := value.CoerceBool(args[3])
		if !ok {
			return ev
		}
		byCol = b
	}
	if order != 1 && order != -1 {
		return value.Err(value.KindValue)
	}
	if byCol {
		arr = transposeArray(arr)
	}
	if sortIdx < 1 || sortIdx > arr.Cols {
		return value.Err(value.KindValue)
	}
	idx := make([]int, arr.Rows)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		c := value.Compare(arr.At(idx[a], sortIdx-1), arr.At(idx[b], sortIdx-1))
		if order < 0 {
			return c > 0
		}
		return c < 0
	})
	out := permuteRows(arr, idx)
	if byCol {
		out = transposeArray(out)
	}
	return out.Scalar()
}

func permuteRows(arr *value.Array, idx []int) *value.Array {
	out := value.NewArray(len(idx), arr.Cols)
	for i, r := range idx {
		for c := 0; c < arr.Cols; c++ {
			out.Set(i, c, arr.At(r, c))
		}
	}
	return out
}

func fnSortBy(ctx *Context, args []value.Value) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	type keyCol struct {
		vals  *value.Array
		order int
	}
	var keys []keyCol
	rest := args[1:]
	for len(rest) > 0 {
		k, errv := tableOf(ctx, rest[0])
		if errv != nil {
			return errv
		}
		if len(k.Data) != arr.Rows {
			return value.Err(value.KindValue)
		}
		order := 1
		if len(rest) > 1 && rest[1] != nil {
			f, ev, ok := value.CoerceNumber(rest[1])
			if !ok {
				return ev
			}
			order = int(f)
			if order != 1 && order != -1 {
				return value.Err(value.KindValue)
			}
		}
		keys = append(keys, keyCol{k, order})
		if len(rest) > 1 {
			rest = rest[2:]
		} else {
			rest = nil
		}
	}
	idx := make([]int, arr.Rows)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		for _, k := range keys {
			c := value.Compare(k.vals.Data[idx[a]], k.vals.Data[idx[b]])
			if c == 0 {
				continue
			}
			if k.order < 0 {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return permuteRows(arr, idx).Scalar()
}

func fnFilter(ctx *Context, args []value.Value) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	cond, errv := tableOf(ctx, args[1])
	if errv != nil {
		return errv
	}
	// the mask is a row or column vector matching one dimension
	var keepRows []int
	switch {
	case cond.Cols == 1 && len(cond.Data) == arr.Rows:
		for r := 0; r < arr.Rows; r++ {
			b, ev, ok := value.CoerceBool(cond.Data[r])
			if !ok {
				return ev
			}
			if b {
				keepRows = append(keepRows, r)
			}
		}
		if len(keepRows) == 0 {
			if len(args) > 2 && args[2] != nil {
				return args[2]
			}
			return value.Err(value.KindCalc)
		}
		return permuteRows(arr, keepRows).Scalar()
	case cond.Rows == 1 && len(cond.Data) == arr.Cols:
		var keepCols []int
		for c := 0; c < arr.Cols; c++ {
			b, ev, ok := value.CoerceBool(cond.Data[c])
			if !ok {
				return ev
			}
			if b {
				keepCols = append(keepCols, c)
			}
		}
		if len(keepCols) == 0 {
			if len(args) > 2 && args[2] != nil {
				return args[2]
			}
			return value.Err(value.KindCalc)
		}
		out := value.NewArray(arr.Rows, len(keepCols))
		for r := 0; r < arr.Rows; r++ {
			for i, c := range keepCols {
				out.Set(r, i, arr.At(r, c))
			}
		}
		return out.Scalar()
	}
	return value.Err(value.KindValue)
}

func fnTake(ctx *Context, args []value.Value) value.Value {
	return takeDrop(ctx, args, true)
}

func fnDrop(ctx *Context, args []value.Value) value.Value {
	return takeDrop(ctx, args, false)
}

func takeDrop(ctx *Context, args []value.Value, take bool) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	span := func(n, want int, take bool) (int, int, bool) {
		if want == 0 {
			if take {
				return 0, 0, false
			}
			return 0, n, true
		}
		k := want
		if k < 0 {
			k = -k
		}
		if k > n {
			k = n
		}
		if take {
			if want > 0 {
				return 0, k, true
			}
			return n - k, n, true
		}
		if want > 0 {
			return k, n, k < n
		}
		return 0, n - k, k < n
	}
	rowWant := 0
	rowSet := false
	if args[1] != nil {
		f, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		rowWant, rowSet = int(f), true
	}
	colWant := 0
	colSet := false
	if len(args) > 2 && args[2] != nil {
		f, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		colWant, colSet = int(f), true
	}
	r0, r1 := 0, arr.Rows
	if rowSet {
		var ok bool
		r0, r1, ok = span(arr.Rows, rowWant, take)
		if !ok {
			return value.Err(value.KindCalc)
		}
	} else if take {
		r0, r1 = 0, arr.Rows
	}
	c0, c1 := 0, arr.Cols
	if colSet {
		var ok bool
		c0, c1, ok = span(arr.Cols, colWant, take)
		if !ok {
			return value.Err(value.KindCalc)
		}
	}
	out := value.NewArray(r1-r0, c1-c0)
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			out.Set(r-r0, c-c0, arr.At(r, c))
		}
	}
	return out.Scalar()
}

// flatten orders elements for TOCOL/TOROW; scan is row-major.
func flatten(arr *value.Array, ignore int) []value.Value {
	var out []value.Value
	for _, v := range arr.Data {
		switch v.(type) {
		case value.Blank:
			if ignore == 1 || ignore == 3 {
				continue
			}
		case value.Error:
			if ignore == 2 || ignore == 3 {
				continue
			}
		}
		out = append(out, v)
	}
	return out
}

func toVector(ctx *Context, args []value.Value, column bool) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	ignore := 0
	if len(args) > 1 && args[1] != nil {
		f, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		ignore = int(f)
	}
	byCol := false
	if len(args) > 2 && args[2] != nil {
		b, ev, ok := value.CoerceBool(args[2])
		if !ok {
			return ev
		}
		byCol = b
	}
	if byCol {
		arr = transposeArray(arr)
	}
	vals := flatten(arr, ignore)
	if len(vals) == 0 {
		return value.Err(value.KindCalc)
	}
	var out *value.Array
	if column {
		out = value.NewArray(len(vals), 1)
	} else {
		out = value.NewArray(1, len(vals))
	}
	copy(out.Data, vals)
	return out.Scalar()
}

func fnToCol(ctx *Context, args []value.Value) value.Value {
	return toVector(ctx, args, true)
}

func fnToRow(ctx *Context, args []value.Value) value.Value {
	return toVector(ctx, args, false)
}

func wrapVector(ctx *Context, args []value.Value, byRows bool) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	if arr.Rows != 1 && arr.Cols != 1 {
		return value.Err(value.KindValue)
	}
	wrapF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	wrap := int(wrapF)
	if wrap < 1 {
		return value.Err(value.KindNum)
	}
	pad := value.Value(value.Err(value.KindNA))
	if len(args) > 2 && args[2] != nil {
		pad = args[2]
	}
	n := len(arr.Data)
	lines := (n + wrap - 1) / wrap
	var out *value.Array
	if byRows {
		out = value.NewArray(lines, wrap)
	} else {
		out = value.NewArray(wrap, lines)
	}
	for i := 0; i < lines*wrap; i++ {
		v := pad
		if i < n {
			v = arr.Data[i]
		}
		if byRows {
			out.Set(i/wrap, i%wrap, v)
		} else {
			out.Set(i%wrap, i/wrap, v)
		}
	}
	return out.Scalar()
}

func fnWrapRows(ctx *Context, args []value.Value) value.Value {
	return wrapVector(ctx, args, true)
}

func fnWrapCols(ctx *Context, args []value.Value) value.Value {
	return wrapVector(ctx, args, false)
}

func fnHStack(ctx *Context, args []value.Value) value.Value {
	return stack(ctx, args, true)
}

func fnVStack(ctx *Context, args []value.Value) value.Value {
	return stack(ctx, args, false)
}

func stack(ctx *Context, args []value.Value, horizontal bool) value.Value {
	arrs := make([]*value.Array, 0, len(args))
	rows, cols := 0, 0
	for _, a := range args {
		if a == nil {
			continue
		}
		arr, errv := tableOf(ctx, a)
		if errv != nil {
			return errv
		}
		arrs = append(arrs, arr)
		if horizontal {
			if arr.Rows > rows {
				rows = arr.Rows
			}
			cols += arr.Cols
		} else {
			rows += arr.Rows
			if arr.Cols > cols {
				cols = arr.Cols
			}
		}
	}
	if len(arrs) == 0 {
		return value.Err(value.KindValue)
	}
	out := value.NewArray(rows, cols)
	for i := range out.Data {
		out.Data[i] = value.Err(value.KindNA)
	}
	off := 0
	for _, arr := range arrs {
		for r := 0; r < arr.Rows; r++ {
			for c := 0; c < arr.Cols; c++ {
				if horizontal {
					out.Set(r, off+c, arr.At(r, c))
				} else {
					out.Set(off+r, c, arr.At(r, c))
				}
			}
		}
		if horizontal {
			off += arr.Cols
		} else {
			off += arr.Rows
		}
	}
	return out.Scalar()
}

func fnExpand(ctx *Context, args []value.Value) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	rows := arr.Rows
	if args[1] != nil {
		f, ev, ok := value.CoerceNumber(args[1])
		if !ok {
			return ev
		}
		rows = int(f)
	}
	cols := arr.Cols
	if len(args) > 2 && args[2] != nil {
		f, ev, ok := value.CoerceNumber(args[2])
		if !ok {
			return ev
		}
		cols = int(f)
	}
	if rows < arr.Rows || cols < arr.Cols {
		return value.Err(value.KindValue)
	}
	pad := value.Value(value.Err(value.KindNA))
	if len(args) > 3 && args[3] != nil {
		pad = args[3]
	}
	out := value.NewArray(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			if r < arr.Rows && c < arr.Cols {
				out.Set(r, c, arr.At(r, c))
			} else {
				out.Set(r, c, pad)
			}
		}
	}
	return out.Scalar()
}

func chooseAxis(ctx *Context, args []value.Value, rows bool) value.Value {
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	n := arr.Cols
	if rows {
		n = arr.Rows
	}
	var picks []int
	for _, a := range args[1:] {
		if a == nil {
			return value.Err(value.KindValue)
		}
		var errv value.Value
		ctx.eachValue(a, func(v value.Value) bool {
			f, ev, ok := value.CoerceNumber(v)
			if !ok {
				errv = ev
				return false
			}
			i := int(f)
			if i < 0 {
				i = n + i + 1
			}
			if i < 1 || i > n {
				errv = value.Err(value.KindValue)
				return false
			}
			picks = append(picks, i-1)
			return true
		})
		if errv != nil {
			return errv
		}
	}
	if rows {
		return permuteRows(arr, picks).Scalar()
	}
	out := value.NewArray(arr.Rows, len(picks))
	for r := 0; r < arr.Rows; r++ {
		for i, c := range picks {
			out.Set(r, i, arr.At(r, c))
		}
	}
	return out.Scalar()
}

func fnChooseRows(ctx *Context, args []value.Value) value.Value {
	return chooseAxis(ctx, args, true)
}

func fnChooseCols(ctx *Context, args []value.Value) value.Value {
	return chooseAxis(ctx, args, false)
}

func lambdaArg(ctx *Context, v value.Value) (*value.Lambda, value.Value) {
	lam, ok := v.(*value.Lambda)
	if !ok || ctx.CallLambda == nil {
		return nil, value.Err(value.KindValue)
	}
	return lam, nil
}

// fnMap applies the trailing lambda across one or more equally shaped
// arrays.
func fnMap(ctx *Context, args []value.Value) value.Value {
	lam, errv := lambdaArg(ctx, args[len(args)-1])
	if errv != nil {
		return errv
	}
	inputs := args[:len(args)-1]
	arrs := make([]*value.Array, len(inputs))
	for i, in := range inputs {
		arr, errv := tableOf(ctx, in)
		if errv != nil {
			return errv
		}
		arrs[i] = arr
		if arr.Rows != arrs[0].Rows || arr.Cols != arrs[0].Cols {
			return value.Err(value.KindValue)
		}
	}
	out := value.NewArray(arrs[0].Rows, arrs[0].Cols)
	callArgs := make([]value.Value, len(arrs))
	for i := range out.Data {
		for j, arr := range arrs {
			callArgs[j] = arr.Data[i]
		}
		out.Data[i] = ctx.CallLambda(lam, callArgs)
	}
	return out.Scalar()
}

func fnReduce(ctx *Context, args []value.Value) value.Value {
	lam, errv := lambdaArg(ctx, args[2])
	if errv != nil {
		return errv
	}
	arr, errv := tableOf(ctx, args[1])
	if errv != nil {
		return errv
	}
	acc := args[0]
	if acc == nil {
		acc = value.Number(0)
	}
	for _, v := range arr.Data {
		acc = ctx.CallLambda(lam, []value.Value{acc, v})
	}
	return acc
}

func fnScan(ctx *Context, args []value.Value) value.Value {
	lam, errv := lambdaArg(ctx, args[2])
	if errv != nil {
		return errv
	}
	arr, errv := tableOf(ctx, args[1])
	if errv != nil {
		return errv
	}
	acc := args[0]
	if acc == nil {
		acc = value.Number(0)
	}
	out := value.NewArray(arr.Rows, arr.Cols)
	for i, v := range arr.Data {
		acc = ctx.CallLambda(lam, []value.Value{acc, v})
		out.Data[i] = acc
	}
	return out.Scalar()
}

func fnByRow(ctx *Context, args []value.Value) value.Value {
	return byAxis(ctx, args, true)
}

func fnByCol(ctx *Context, args []value.Value) value.Value {
	return byAxis(ctx, args, false)
}

func byAxis(ctx *Context, args []value.Value, rows bool) value.Value {
	lam, errv := lambdaArg(ctx, args[1])
	if errv != nil {
		return errv
	}
	arr, errv := tableOf(ctx, args[0])
	if errv != nil {
		return errv
	}
	if !rows {
		arr = transposeArray(arr)
	}
	out := value.NewArray(arr.Rows, 1)
	for r := 0; r < arr.Rows; r++ {
		line := value.NewArray(1, arr.Cols)
		for c := 0; c < arr.Cols; c++ {
			line.Set(0, c, arr.At(r, c))
		}
		v := ctx.CallLambda(lam, []value.Value{line})
		if a, ok := v.(*value.Array); ok {
			// each call must collapse to a scalar
			if len(a.Data) != 1 {
				v = value.Err(value.KindCalc)
			} else {
				v = a.Data[0]
			}
		}
		out.Data[r] = v
	}
	if !rows {
		out = transposeArray(out)
	}
	return out.Scalar()
}

func fnMakeArray(ctx *Context, args []value.Value) value.Value {
	lam, errv := lambdaArg(ctx, args[2])
	if errv != nil {
		return errv
	}
	rF, ev, ok := value.CoerceNumber(args[0])
	if !ok {
		return ev
	}
	cF, ev, ok := value.CoerceNumber(args[1])
	if !ok {
		return ev
	}
	rows, cols := int(rF), int(cF)
	if rows < 1 || cols < 1 || rows*cols > MaxMaterializedCells {
		return value.Err(value.KindValue)
	}
	out := value.NewArray(rows, cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Set(r, c, ctx.CallLambda(lam, []value.Value{value.Number(float64(r + 1)), value.Number(float64(c + 1))}))
		}
	}
	return out.Scalar()
}
