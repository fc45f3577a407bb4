// internal/stdlib/logical.go
package stdlib

import "gridcalc/internal/value"

// IF, IFS and SWITCH get eager handlers here; the evaluator shortcuts
// them lazily when it can and only falls back to these for array
// conditions.
func registerLogical(r *Registry) {
	r.add(&Spec{Name: "TRUE", MinArgs: 0, MaxArgs: 0, Handler: func(ctx *Context, args []value.Value) value.Value {
		return value.Bool(true)
	}})
	r.add(&Spec{Name: "FALSE", MinArgs: 0, MaxArgs: 0, Handler: func(ctx *Context, args []value.Value) value.Value {
		return value.Bool(false)
	}})
	r.add(&Spec{Name: "NOT", MinArgs: 1, MaxArgs: 1, Elementwise: true, Handler: func(ctx *Context, args []value.Value) value.Value {
		b, errv, ok := value.CoerceBool(args[0])
		if !ok {
			return errv
		}
		return value.Bool(!b)
	}})
	r.add(&Spec{Name: "IF", MinArgs: 2, MaxArgs: 3, Elementwise: true, ArgModes: []ArgMode{ArgScalar, ArgAny, ArgAny}, Handler: fnIf})
	r.add(&Spec{Name: "IFS", MinArgs: 2, MaxArgs: -1, ArgModes: []ArgMode{ArgScalar, ArgAny}, Handler: fnIfs})
	r.add(&Spec{Name: "SWITCH", MinArgs: 3, MaxArgs: -1, ArgModes: []ArgMode{ArgScalar, ArgAny}, Handler: fnSwitch})
	r.add(&Spec{Name: "IFERROR", MinArgs: 2, MaxArgs: 2, Elementwise: true, ArgModes: []ArgMode{ArgAny, ArgAny}, Handler: fnIfError})
	r.add(&Spec{Name: "IFNA", MinArgs: 2, MaxArgs: 2, Elementwise: true, ArgModes: []ArgMode{ArgAny, ArgAny}, Handler: fnIfNA})
	r.add(&Spec{Name: "AND", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: boolFold(true, func(acc, b bool) bool { return acc && b })})
	r.add(&Spec{Name: "OR", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: boolFold(false, func(acc, b bool) bool { return acc || b })})
	r.add(&Spec{Name: "XOR", MinArgs: 1, MaxArgs: -1, ArgModes: []ArgMode{ArgReference}, Handler: boolFold(false, func(acc, b bool) bool { return acc != b })})
}

func fnIf(ctx *Context, args []value.Value) value.Value {
	cond, errv, ok := value.CoerceBool(args[0])
	if !ok {
		return errv
	}
	if cond {
		if args[1] == nil {
			return value.Number(0)
		}
		return args[1]
	}
	if len(args) < 3 || args[2] == nil {
		return value.Bool(false)
	}
	return args[2]
}

func fnIfs(ctx *Context, args []value.Value) value.Value {
	if len(args)%2 != 0 {
		return value.Err(value.KindValue)
	}
	for i := 0; i < len(args); i += 2 {
		cond, errv, ok := value.CoerceBool(args[i])
		if !ok {
			return errv
		}
		if cond {
			return args[i+1]
		}
	}
	return value.Err(value.KindNA)
}

func fnSwitch(ctx *Context, args []value.Value) value.Value {
	subject := args[0]
	rest := args[1:]
	for len(rest) >= 2 {
		if value.EqualValues(subject, rest[0]) {
			return rest[1]
		}
		rest = rest[2:]
	}
	if len(rest) == 1 {
		return rest[0]
	}
	return value.Err(value.KindNA)
}

func fnIfError(ctx *Context, args []value.Value) value.Value {
	if _, isErr := args[0].(value.Error); isErr {
		if args[1] == nil {
			return value.Blank{}
		}
		return args[1]
	}
	return args[0]
}

func fnIfNA(ctx *Context, args []value.Value) value.Value {
	if e, isErr := args[0].(value.Error); isErr && e.Kind == value.KindNA {
		if args[1] == nil {
			return value.Blank{}
		}
		return args[1]
	}
	return args[0]
}

// boolFold builds AND/OR/XOR: text and blanks inside ranges are
// skipped, scalar text must coerce, no logical values is #VALUE!.
func boolFold(init bool, combine func(acc, b bool) bool) Handler {
	return func(ctx *Context, args []value.Value) value.Value {
		acc, seen := init, false
		var errv value.Value
		for _, a := range args {
			if a == nil {
				continue
			}
			fromRange := isRangeLike(a)
			ctx.eachValue(a, func(v value.Value) bool {
				switch v := v.(type) {
				case value.Error:
					errv = v
					return false
				case value.Bool:
					acc = combine(acc, bool(v))
					seen = true
				case value.Number:
					acc = combine(acc, v != 0)
					seen = true
				case value.Text:
					if fromRange {
						return true
					}
					b, ev, ok := value.CoerceBool(v)
					if !ok {
						errv = ev
						return false
					}
					acc = combine(acc, b)
					seen = true
				}
				return true
			})
			if errv != nil {
				return errv
			}
		}
		if !seen {
			return value.Err(value.KindValue)
		}
		return value.Bool(acc)
	}
}
