package runtime

import (
	"errors"
	"math"
	"strings"

	"github.com/lemonberrylabs/tcalc/pkg/expr"
	"github.com/lemonberrylabs/tcalc/pkg/stdlib"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// Variadic marks a function that accepts any number of arguments and checks
// the count itself.
const Variadic = stdlib.Variadic

// Function is an entry in a context's function table. User definitions,
// native built-ins and imported functions all share this interface, so a
// call is evaluated the same way regardless of where the callee came from.
type Function interface {
	// Arity is the number of parameters, or Variadic.
	Arity() int
	// Call invokes the function from ctx with already evaluated arguments.
	Call(ctx *EvalContext, args []float64) (float64, error)
}

// NativeFunc is a function implemented in Go.
type NativeFunc func(args []float64) (float64, error)

// Callable is a native function together with its arity. Import resolvers
// hand these out for every name a module exports.
type Callable struct {
	Arity int
	Fn    NativeFunc
}

// ImportResolver looks up the functions exported by a module.
type ImportResolver interface {
	Resolve(name string) (map[string]Callable, error)
}

// ImportResolverFunc adapts a plain function to ImportResolver.
type ImportResolverFunc func(name string) (map[string]Callable, error)

// Resolve calls f(name).
func (f ImportResolverFunc) Resolve(name string) (map[string]Callable, error) {
	return f(name)
}

// UserFunction is a function defined in tcalc source.
type UserFunction struct {
	Def *expr.FdefNode
}

// Arity implements Function.
func (f *UserFunction) Arity() int {
	return len(f.Def.Params)
}

// Call evaluates the body in a fresh child of ctx holding only the
// parameter bindings.
func (f *UserFunction) Call(ctx *EvalContext, args []float64) (float64, error) {
	frame := ctx.NewChild()
	for i, name := range f.Def.Params {
		frame.SetVariable(name, args[i])
	}
	return evaluate(frame, f.Def.Body)
}

// FunctionWrapper registers a native Go function in a function table.
type FunctionWrapper struct {
	name  string
	arity int
	fn    NativeFunc
}

// NewFunctionWrapper wraps fn under name.
func NewFunctionWrapper(name string, arity int, fn NativeFunc) *FunctionWrapper {
	return &FunctionWrapper{name: name, arity: arity, fn: fn}
}

// Arity implements Function.
func (w *FunctionWrapper) Arity() int {
	return w.arity
}

// Call implements Function. A NaN or infinite result is reported as an
// ArithmeticError rather than leaking into later computation.
func (w *FunctionWrapper) Call(_ *EvalContext, args []float64) (float64, error) {
	v, err := w.fn(args)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, types.NewArithmeticError("%s(%s) has no finite result", w.name, types.FormatNumbers(args, ", "))
	}
	return v, nil
}

// ImportWrapper registers a function exported by an imported module.
type ImportWrapper struct {
	module string
	name   string
	fn     Callable
}

// NewImportWrapper wraps a callable exported as name by module.
func NewImportWrapper(module, name string, fn Callable) *ImportWrapper {
	return &ImportWrapper{module: module, name: name, fn: fn}
}

// Module returns the name of the module the function was imported from.
func (w *ImportWrapper) Module() string {
	return w.module
}

// Arity implements Function.
func (w *ImportWrapper) Arity() int {
	return w.fn.Arity
}

// Call implements Function. Failures that are not already tcalc errors are
// reported as ImportErrors naming the module.
func (w *ImportWrapper) Call(_ *EvalContext, args []float64) (float64, error) {
	v, err := w.fn.Fn(args)
	if err != nil {
		var te *types.Error
		if errors.As(err, &te) {
			return 0, err
		}
		return 0, types.NewImportError("%s.%s: %v", w.module, w.name, err)
	}
	return v, nil
}

// describe renders a function table entry for listings.
func describe(name string, fn Function) string {
	switch f := fn.(type) {
	case *UserFunction:
		return expr.Format(f.Def)
	case *ImportWrapper:
		return name + "(" + params(f.Arity()) + ") from " + f.module
	default:
		return name + "(" + params(fn.Arity()) + ") builtin"
	}
}

func params(arity int) string {
	if arity == Variadic {
		return "..."
	}
	names := make([]string, arity)
	for i := range names {
		names[i] = string(rune('a' + i%26))
	}
	return strings.Join(names, ", ")
}
