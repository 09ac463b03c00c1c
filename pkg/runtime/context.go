// Package runtime evaluates tcalc syntax trees against a persistent
// environment.
package runtime

import (
	"sort"
)

// DefaultMaxCallDepth is the maximum nesting of user function calls.
const DefaultMaxCallDepth = 1000

// EvalContext is the environment an expression is evaluated in: variable
// bindings, the function table and the named constants.
//
// Contexts form a chain for call scoping. A function call runs in a child
// whose variables start with the parameter bindings; the child falls back to
// its ancestors for functions and constants but never for variables, so each
// call frame is isolated. EvalContext is not safe for concurrent use.
type EvalContext struct {
	parent *EvalContext
	vars   map[string]float64
	funcs  map[string]Function
	consts map[string]float64

	depth           int
	maxDepth        int
	definitionValue float64
}

// NewContext creates a root context.
func NewContext() *EvalContext {
	return &EvalContext{
		vars:     make(map[string]float64),
		funcs:    make(map[string]Function),
		consts:   make(map[string]float64),
		maxDepth: DefaultMaxCallDepth,
	}
}

// NewChild creates a call frame beneath c.
func (c *EvalContext) NewChild() *EvalContext {
	return &EvalContext{
		parent:          c,
		vars:            make(map[string]float64),
		funcs:           make(map[string]Function),
		consts:          make(map[string]float64),
		depth:           c.depth + 1,
		maxDepth:        c.maxDepth,
		definitionValue: c.definitionValue,
	}
}

// Parent returns the enclosing context, or nil for the root.
func (c *EvalContext) Parent() *EvalContext {
	return c.parent
}

// Depth is the number of call frames between c and the root.
func (c *EvalContext) Depth() int {
	return c.depth
}

// Variable looks up name in this frame, then among the constants of the
// whole chain. Variables of enclosing frames are not visible.
func (c *EvalContext) Variable(name string) (float64, bool) {
	if v, ok := c.vars[name]; ok {
		return v, true
	}
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if v, ok := ctx.consts[name]; ok {
			return v, true
		}
	}
	return 0, false
}

// SetVariable binds name in this frame, overwriting any previous binding.
func (c *EvalContext) SetVariable(name string, v float64) {
	c.vars[name] = v
}

// DefineConstant registers a named constant in this context.
func (c *EvalContext) DefineConstant(name string, v float64) {
	c.consts[name] = v
}

// Function resolves name in this context, then its ancestors.
func (c *EvalContext) Function(name string) (Function, bool) {
	for ctx := c; ctx != nil; ctx = ctx.parent {
		if fn, ok := ctx.funcs[name]; ok {
			return fn, true
		}
	}
	return nil, false
}

// DefineFunction registers fn under name in this context.
func (c *EvalContext) DefineFunction(name string, fn Function) {
	c.funcs[name] = fn
}

// Variables returns a copy of this frame's variable bindings.
func (c *EvalContext) Variables() map[string]float64 {
	out := make(map[string]float64, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// Constants returns every constant visible from c. Nearer definitions win.
func (c *EvalContext) Constants() map[string]float64 {
	out := make(map[string]float64)
	for ctx := c; ctx != nil; ctx = ctx.parent {
		for k, v := range ctx.consts {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}

// FunctionNames returns the sorted names of every function visible from c.
func (c *EvalContext) FunctionNames() []string {
	seen := make(map[string]bool)
	var names []string
	for ctx := c; ctx != nil; ctx = ctx.parent {
		for name := range ctx.funcs {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// contextState is a shallow copy of one frame's tables.
type contextState struct {
	vars   map[string]float64
	funcs  map[string]Function
	consts map[string]float64
}

func (c *EvalContext) snapshot() contextState {
	s := contextState{
		vars:   make(map[string]float64, len(c.vars)),
		funcs:  make(map[string]Function, len(c.funcs)),
		consts: make(map[string]float64, len(c.consts)),
	}
	for k, v := range c.vars {
		s.vars[k] = v
	}
	for k, v := range c.funcs {
		s.funcs[k] = v
	}
	for k, v := range c.consts {
		s.consts[k] = v
	}
	return s
}

func (c *EvalContext) restore(s contextState) {
	c.vars = s.vars
	c.funcs = s.funcs
	c.consts = s.consts
}
