// internal/stdlib/registry.go
package stdlib

import (
	"math/rand"
	"strings"
	"time"

	"gridcalc/internal/cell"
	"gridcalc/internal/value"
)

// ArgMode declares how the evaluator prepares an argument before the
// handler sees it.
type ArgMode uint8

const (
	// ArgScalar: references are materialized; arrays broadcast when the
	// function is elementwise.
	ArgScalar ArgMode = iota
	// ArgAny: references are materialized to arrays, arrays pass through.
	ArgAny
	// ArgReference: references stay deferred (*value.Reference) so the
	// handler can iterate lazily or do range arithmetic.
	ArgReference
	// ArgLambda: must evaluate to a lambda value.
	ArgLambda
	// ArgRaw: the unevaluated AST is packaged for the handler (criteria
	// short-circuiting is not needed here; used by IF-family laziness).
	ArgRaw
)

// Handler implements a worksheet function over already-evaluated
// arguments.
type Handler func(ctx *Context, args []value.Value) value.Value

// Spec carries a function's metadata and implementation.
type Spec struct {
	Name        string // canonical uppercase name
	MinArgs     int
	MaxArgs     int // -1 for unbounded
	Volatile    bool
	Elementwise bool      // broadcast scalar args over array args
	ArgModes    []ArgMode // per argument; last entry repeats
	Handler     Handler
}

// Mode returns the declared mode of argument i.
func (s *Spec) Mode(i int) ArgMode {
	if len(s.ArgModes) == 0 {
		return ArgScalar
	}
	if i >= len(s.ArgModes) {
		return s.ArgModes[len(s.ArgModes)-1]
	}
	return s.ArgModes[i]
}

// Source is the registry's read view of the workbook. Implemented by
// the engine; spill projections are already applied.
type Source interface {
	CellValue(addr cell.Address) value.Value
	Dims(sheet cell.SheetID) (rows, cols uint32)
	// UsedRange bounds iteration over open-ended references.
	UsedRange(sheet cell.SheetID) cell.Range
}

// Context is handed to every handler invocation.
type Context struct {
	Caller   cell.Address
	Date1904 bool
	Now      time.Time
	Rand     *rand.Rand
	Source   Source

	// CallLambda invokes a lambda value; wired by the evaluator.
	CallLambda func(lam *value.Lambda, args []value.Value) value.Value
	// ResolveText parses and resolves a reference string for INDIRECT.
	ResolveText func(text string, r1c1 bool) value.Value
	// FormulaAt reports the stored formula text of a cell, if any.
	FormulaAt func(addr cell.Address) (string, bool)
	// SheetCount reports how many sheets the workbook holds.
	SheetCount func() int
}

// Registry holds worksheet functions keyed by canonical name.
type Registry struct {
	funcs  map[string]*Spec
	legacy map[uint16]string // BIFF function id -> canonical name
	udf    func(name string) (Handler, bool)
}

// NewRegistry builds a registry with every builtin family installed.
func NewRegistry() *Registry {
	r := &Registry{
		funcs:  make(map[string]*Spec),
		legacy: make(map[uint16]string),
	}
	registerMath(r)
	registerStats(r)
	registerCriteria(r)
	registerLogical(r)
	registerLookup(r)
	registerText(r)
	registerDateTime(r)
	registerFinancial(r)
	registerEngineering(r)
	registerInfo(r)
	registerDynamic(r)
	registerLegacyIDs(r)
	return r
}

func (r *Registry) add(s *Spec) {
	s.Name = strings.ToUpper(s.Name)
	r.funcs[s.Name] = s
}

// Lookup finds a function by name, case-insensitively.
func (r *Registry) Lookup(name string) (*Spec, bool) {
	s, ok := r.funcs[strings.ToUpper(name)]
	return s, ok
}

// LookupLegacy maps a legacy binary-format function id to its spec.
func (r *Registry) LookupLegacy(id uint16) (*Spec, bool) {
	name, ok := r.legacy[id]
	if !ok {
		return nil, false
	}
	return r.Lookup(name)
}

// Names returns every registered canonical name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		out = append(out, name)
	}
	return out
}

// SetUDFResolver installs the late-bound UDF host hook.
func (r *Registry) SetUDFResolver(fn func(name string) (Handler, bool)) {
	r.udf = fn
}

// ResolveUDF consults the UDF host for an unknown name.
func (r *Registry) ResolveUDF(name string) (Handler, bool) {
	if r.udf == nil {
		return nil, false
	}
	return r.udf(strings.ToUpper(name))
}

// CheckArity validates an argument count against the declared bounds.
func (s *Spec) CheckArity(n int) bool {
	if n < s.MinArgs {
		return false
	}
	if s.MaxArgs >= 0 && n > s.MaxArgs {
		return false
	}
	return true
}
