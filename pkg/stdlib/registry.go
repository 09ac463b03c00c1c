// Package stdlib implements the tcalc built-in functions and constants.
package stdlib

import (
	"fmt"
	"sort"

	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// Variadic is the arity of built-ins that accept any number of arguments.
// They validate the count themselves.
const Variadic = -1

// Func is a built-in function signature.
type Func func(args []float64) (float64, error)

// Builtin is a named native function with its arity.
type Builtin struct {
	Name  string
	Arity int
	Fn    Func
}

// Registry holds the built-in functions and named constants.
type Registry struct {
	funcs  map[string]Builtin
	consts map[string]float64
}

// NewRegistry creates a new registry with all built-in functions and
// constants registered.
func NewRegistry() *Registry {
	r := &Registry{
		funcs:  make(map[string]Builtin),
		consts: make(map[string]float64),
	}
	r.registerMath()
	r.registerTrig()
	r.registerConstants()
	return r
}

// Register adds a function to the registry, replacing any previous one with
// the same name.
func (r *Registry) Register(name string, arity int, fn Func) {
	r.funcs[name] = Builtin{Name: name, Arity: arity, Fn: fn}
}

// RegisterConstant adds a named constant.
func (r *Registry) RegisterConstant(name string, v float64) {
	r.consts[name] = v
}

// Lookup returns the built-in registered under name.
func (r *Registry) Lookup(name string) (Builtin, bool) {
	b, ok := r.funcs[name]
	return b, ok
}

// Call invokes a built-in by name after checking its arity.
func (r *Registry) Call(name string, args []float64) (float64, error) {
	b, ok := r.funcs[name]
	if !ok {
		return 0, fmt.Errorf("unknown function '%s'", name)
	}
	if b.Arity != Variadic && b.Arity != len(args) {
		return 0, types.NewArityError(name, b.Arity, len(args))
	}
	return b.Fn(args)
}

// Builtins returns every registered function sorted by name.
func (r *Registry) Builtins() []Builtin {
	out := make([]Builtin, 0, len(r.funcs))
	for _, b := range r.funcs {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Constants returns a copy of the constant table.
func (r *Registry) Constants() map[string]float64 {
	out := make(map[string]float64, len(r.consts))
	for k, v := range r.consts {
		out[k] = v
	}
	return out
}
