// Package functions implements spec §6's bounded scalar-function set:
// a handful of geospatial (ST_*) and H3 functions grounded on
// original_source/crates/embucket-functions/src/geospatial/..., plus
// the DATE_PART/TO_TIMESTAMP datetime family grounded on
// .../conversion/to_timestamp.rs. Deliberately narrow: the query
// pipeline's rewrite visitors (internal/sqlfront.SupportedFunctions)
// only need these names to exist for the "unimplemented function" gate
// to pass, since full scalar-UDF evaluation happens in the logical
// planner this core stops short of (see internal/execution's package
// doc). Registry exists anyway, operating directly on Arrow arrays, so
// a planner that does get wired later has real implementations to call
// rather than stubs.
package functions

import (
	"github.com/apache/arrow-go/v18/arrow"

	"github.com/embucket/embucket/internal/apperror"
)

// Func is one registered scalar function: its arity (-1 means
// variadic) and the Arrow-array-in, Arrow-array-out implementation.
type Func struct {
	Name  string
	Arity int
	Call  func(args []arrow.Array) (arrow.Array, error)
}

// Registry is the set of scalar functions this core knows how to
// evaluate, keyed by lower-case name.
type Registry map[string]Func

// New builds the registry: every geospatial, H3, and datetime function
// this package implements.
func New() Registry {
	r := Registry{}
	for _, f := range geospatialFuncs() {
		r[f.Name] = f
	}
	for _, f := range h3Funcs() {
		r[f.Name] = f
	}
	for _, f := range datetimeFuncs() {
		r[f.Name] = f
	}
	return r
}

// Names lists every registered function name.
func (r Registry) Names() []string {
	out := make([]string, 0, len(r))
	for name := range r {
		out = append(out, name)
	}
	return out
}

// Call looks up fn by name and invokes it against args, checking arity
// first so a wrong-arity call fails with a function-specific message
// instead of an out-of-range panic inside the implementation.
func (r Registry) Call(name string, args []arrow.Array) (arrow.Array, error) {
	fn, ok := r[name]
	if !ok {
		return nil, apperror.Newf("functions.Registry.Call", apperror.KindUnimplementedFunction, "function %q is not registered", name)
	}
	if fn.Arity >= 0 && len(args) != fn.Arity {
		return nil, apperror.Newf("functions.Registry.Call", apperror.KindInvalidFunctionArgument, "%s expects %d argument(s), got %d", name, fn.Arity, len(args))
	}
	return fn.Call(args)
}
