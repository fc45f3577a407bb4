// internal/stdlib/info.go
package stdlib

import (
	"math"

	"gridcalc/internal/value"
)

func registerInfo(r *Registry) {
	typeTest := func(name string, test func(value.Value) bool) {
		r.add(&Spec{Name: name, MinArgs: 1, MaxArgs: 1, ArgModes: []ArgMode{ArgAny}, Handler: func(ctx *Context, args []value.Value) value.Value {
			v := args[0]
			if ref, ok := v.(*value.Reference); ok && name != "ISREF" {
				v = ctx.Materialize(ref)
				if a, ok := v.(*value.Array); ok {
					v = a.Scalar()
				}
			}
			return value.Bool(test(v))
		}})
	}
	typeTest("ISBLANK", func(v value.Value) bool { _, ok := v.(value.Blank); return ok })
	typeTest("ISNUMBER", func(v value.Value) bool { _, ok := v.(value.Number); return ok })
	typeTest("ISTEXT", func(v value.Value) bool { _, ok := v.(value.Text); return ok })
	typeTest("ISNONTEXT", func(v value.Value) bool { _, ok := v.(value.Text); return !ok })
	typeTest("ISLOGICAL", func(v value.Value) bool { _, ok := v.(value.Bool); return ok })
	typeTest("ISERROR", func(v value.Value) bool { _, ok := v.(value.Error); return ok })
	typeTest("ISERR", func(v value.Value) bool {
		e, ok := v.(value.Error)
		return ok && e.Kind != value.KindNA
	})
	typeTest("ISNA", func(v value.Value) bool {
		e, ok := v.(value.Error)
		return ok && e.Kind == value.KindNA
	})
	typeTest("ISREF", func(v value.Value) bool {
		switch v.(type) {
		case *value.Reference, *value.ReferenceUnion:
			return true
		}
		return false
	})

	r.add(&Spec{Name: "ISEVEN", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: parityTest(0)})
	r.add(&Spec{Name: "ISODD", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: parityTest(1)})
	r.add(&Spec{Name: "ISFORMULA", MinArgs: 1, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnIsFormula})
	r.add(&Spec{Name: "TYPE", MinArgs: 1, MaxArgs: 1, ArgModes: []ArgMode{ArgAny}, Handler: fnType})
	r.add(&Spec{Name: "ERROR.TYPE", MinArgs: 1, MaxArgs: 1, ArgModes: []ArgMode{ArgAny}, Handler: fnErrorType})
	r.add(&Spec{Name: "NA", MinArgs: 0, MaxArgs: 0, Handler: func(ctx *Context, args []value.Value) value.Value {
		return value.Err(value.KindNA)
	}})
	r.add(&Spec{Name: "SHEET", MinArgs: 0, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnSheet})
	r.add(&Spec{Name: "SHEETS", MinArgs: 0, MaxArgs: 1, ArgModes: []ArgMode{ArgReference}, Handler: fnSheets})
}

func parityTest(want int) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		f, ev, ok := value.CoerceNumber(args[0])
		if !ok {
			return ev
		}
		n := int64(math.Trunc(f))
		if n < 0 {
			n = -n
		}
		return value.Bool(int(n%2) == want)
	}
}

func fnIsFormula(ctx *Context, args []value.Value) value.Value {
	ref, ok := args[0].(*value.Reference)
	if !ok {
		return value.Err(value.KindValue)
	}
	if ctx.FormulaAt == nil {
		return value.Bool(false)
	}
	_, has := ctx.FormulaAt(ref.Range.TopLeft())
	return value.Bool(has)
}

func fnType(ctx *Context, args []value.Value) value.Value {
	v := args[0]
	if ref, ok := v.(*value.Reference); ok {
		v = ctx.Materialize(ref)
	}
	switch v := v.(type) {
	case *value.Array:
		if v.Rows == 1 && v.Cols == 1 {
			return fnType(ctx, []value.Value{v.Data[0]})
		}
		return value.Number(64)
	case value.Number, value.Blank:
		return value.Number(1)
	case value.Text:
		return value.Number(2)
	case value.Bool:
		return value.Number(4)
	case value.Error:
		return value.Number(16)
	}
	return value.Number(1)
}

func fnErrorType(ctx *Context, args []value.Value) value.Value {
	v := args[0]
	if ref, ok := v.(*value.Reference); ok {
		m := ctx.Materialize(ref)
		if a, ok := m.(*value.Array); ok {
			v = a.Scalar()
		} else {
			v = m
		}
	}
	e, ok := v.(value.Error)
	if !ok {
		return value.Err(value.KindNA)
	}
	return value.Number(float64(value.ErrorTypeCode(e.Kind)))
}

func fnSheet(ctx *Context, args []value.Value) value.Value {
	if len(args) == 0 || args[0] == nil {
		return value.Number(float64(ctx.Caller.Sheet + 1))
	}
	if ref, ok := args[0].(*value.Reference); ok {
		return value.Number(float64(ref.Range.Sheet + 1))
	}
	return value.Err(value.KindNA)
}

func fnSheets(ctx *Context, args []value.Value) value.Value {
	if ctx.SheetCount == nil {
		return value.Err(value.KindNA)
	}
	if len(args) > 0 && args[0] != nil {
		if _, ok := args[0].(*value.Reference); ok {
			return value.Number(1)
		}
		return value.Err(value.KindNA)
	}
	return value.Number(float64(ctx.SheetCount()))
}
