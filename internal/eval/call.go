// internal/eval/call.go
package eval

import (
	"strings"

	"gridcalc/internal/parser"
	"gridcalc/internal/stdlib"
	"gridcalc/internal/value"
)

func (st *state) evalCall(n *parser.FuncCall) value.Value {
	switch n.Name {
	case "LET":
		return st.evalLet(n)
	case "IF":
		if v, handled := st.evalLazyIf(n); handled {
			return v
		}
	case "IFERROR", "IFNA":
		if v, handled := st.evalLazyIfError(n); handled {
			return v
		}
	}
	spec, ok := st.ev.Reg.Lookup(n.Name)
	if !ok {
		// calls of bound lambdas parse as plain function calls, so
		// fall back to LET/lambda scope and then defined names
		if v, found := st.env.lookup(n.Name); found {
			return st.invokeNamed(v, n.Args)
		}
		if expr, found := st.ev.Res.NameExpr(n.Name, st.caller.Sheet); found {
			if st.depth >= maxCallDepth {
				return value.Err(value.KindNum)
			}
			st.depth++
			callee := st.eval(expr)
			st.depth--
			return st.invokeNamed(callee, n.Args)
		}
		if h, udf := st.ev.Reg.ResolveUDF(n.Name); udf {
			return st.callEager(&stdlib.Spec{Name: n.Name, MinArgs: 0, MaxArgs: -1, Handler: h}, n.Args)
		}
		return value.Err(value.KindName)
	}
	if !spec.CheckArity(countArgs(n.Args)) {
		return value.Err(value.KindValue)
	}
	return st.callEager(spec, n.Args)
}

// invokeNamed calls a lambda reached through a name rather than a
// LAMBDA(...)(...) invocation.
func (st *state) invokeNamed(callee value.Value, argExprs []parser.Expr) value.Value {
	if e, ok := callee.(value.Error); ok {
		return e
	}
	lam, ok := callee.(*value.Lambda)
	if !ok {
		return value.Err(value.KindValue)
	}
	args := make([]value.Value, len(argExprs))
	for i, a := range argExprs {
		if a == nil {
			continue
		}
		args[i] = st.eval(a)
	}
	return st.callLambda(lam, args)
}

// countArgs counts the argument slots; trailing omissions still count,
// so IF(A1,,2) has three.
func countArgs(args []parser.Expr) int {
	return len(args)
}

// evalLazyIf short-circuits IF when the condition collapses to a
// scalar; array conditions fall through to the eager elementwise path.
func (st *state) evalLazyIf(n *parser.FuncCall) (value.Value, bool) {
	if len(n.Args) < 2 || len(n.Args) > 3 || n.Args[0] == nil {
		return nil, false
	}
	cond := st.deref(st.eval(n.Args[0]))
	if _, isArr := cond.(*value.Array); isArr {
		return nil, false
	}
	if e, ok := cond.(value.Error); ok {
		return e, true
	}
	b, errv, ok := value.CoerceBool(cond)
	if !ok {
		return errv, true
	}
	if b {
		if n.Args[1] == nil {
			return value.Number(0), true
		}
		return st.deref(st.eval(n.Args[1])), true
	}
	if len(n.Args) < 3 || n.Args[2] == nil {
		return value.Bool(false), true
	}
	return st.deref(st.eval(n.Args[2])), true
}

// evalLazyIfError skips the fallback branch entirely when the first
// argument is clean.
func (st *state) evalLazyIfError(n *parser.FuncCall) (value.Value, bool) {
	if len(n.Args) != 2 || n.Args[0] == nil {
		return nil, false
	}
	first := st.deref(st.eval(n.Args[0]))
	// per-element replacement needs both sides; stay eager for arrays
	if _, isArr := first.(*value.Array); isArr {
		return nil, false
	}
	e, isErr := first.(value.Error)
	caught := isErr
	if n.Name == "IFNA" {
		caught = isErr && e.Kind == value.KindNA
	}
	if !caught {
		return first, true
	}
	if n.Args[1] == nil {
		return value.Blank{}, true
	}
	return st.deref(st.eval(n.Args[1])), true
}

// evalLet binds name/value pairs then evaluates the final body in the
// extended scope.
func (st *state) evalLet(n *parser.FuncCall) value.Value {
	if len(n.Args) < 3 || len(n.Args)%2 == 0 {
		return value.Err(value.KindValue)
	}
	vars := map[string]value.Value{}
	scoped := &state{ev: st.ev, caller: st.caller, env: &frame{vars: vars, parent: st.env}, depth: st.depth}
	for i := 0; i+1 < len(n.Args); i += 2 {
		nameExpr, ok := n.Args[i].(*parser.Name)
		if !ok || nameExpr.HasSheet {
			return value.Err(value.KindValue)
		}
		if n.Args[i+1] == nil {
			return value.Err(value.KindValue)
		}
		vars[strings.ToUpper(nameExpr.Name)] = scoped.eval(n.Args[i+1])
	}
	return scoped.deref(scoped.eval(n.Args[len(n.Args)-1]))
}

// callEager evaluates arguments and dispatches through the shared
// mode/broadcast path.
func (st *state) callEager(spec *stdlib.Spec, argExprs []parser.Expr) value.Value {
	args := make([]value.Value, len(argExprs))
	for i, a := range argExprs {
		if a == nil {
			continue
		}
		args[i] = st.eval(a)
	}
	return DispatchSpec(st.context(), spec, args)
}

// DispatchSpec applies a spec's argument modes to already-evaluated
// values and invokes the handler, broadcasting elementwise functions
// over array arguments. The VM calls functions through this too.
func DispatchSpec(ctx *stdlib.Context, spec *stdlib.Spec, args []value.Value) value.Value {
	for i, v := range args {
		if v == nil {
			continue
		}
		switch spec.Mode(i) {
		case stdlib.ArgReference, stdlib.ArgLambda, stdlib.ArgRaw:
			// handlers iterate references lazily
		case stdlib.ArgAny:
			if ref, ok := v.(*value.Reference); ok {
				args[i] = ctx.Materialize(ref)
			}
		default: // ArgScalar
			args[i] = Deref(ctx, v)
		}
	}
	if !spec.Elementwise {
		return spec.Handler(ctx, args)
	}
	// broadcast shape over scalar-mode array args
	rows, cols := 1, 1
	for i, v := range args {
		if spec.Mode(i) != stdlib.ArgScalar {
			continue
		}
		if arr, ok := v.(*value.Array); ok {
			if arr.Rows > rows {
				rows = arr.Rows
			}
			if arr.Cols > cols {
				cols = arr.Cols
			}
		}
	}
	if rows == 1 && cols == 1 {
		return spec.Handler(ctx, args)
	}
	if rows*cols > maxBroadcastCells {
		return value.Err(value.KindNum)
	}
	out := value.NewArray(rows, cols)
	slot := make([]value.Value, len(args))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			for i, v := range args {
				if spec.Mode(i) == stdlib.ArgScalar {
					slot[i] = broadcastAt(v, r, c)
				} else {
					slot[i] = v
				}
			}
			out.Set(r, c, spec.Handler(ctx, slot))
		}
	}
	return out
}
