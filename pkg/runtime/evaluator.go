package runtime

import (
	"sort"

	"github.com/lemonberrylabs/tcalc/pkg/expr"
	"github.com/lemonberrylabs/tcalc/pkg/stdlib"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// AnsVariable holds the most recent value produced by Evaluate or by a
// program statement. Definitions and imports do not update it.
const AnsVariable = "ans"

type options struct {
	definitionValue float64
	rollbackOnError bool
	maxCallDepth    int
	maxNesting      int
	maxSource       int
	resolver        ImportResolver
	registry        *stdlib.Registry
}

// Option configures an Evaluator.
type Option func(*options)

// WithDefinitionValue sets the value a function definition evaluates to.
// The default is 0.
func WithDefinitionValue(v float64) Option {
	return func(o *options) { o.definitionValue = v }
}

// WithRollbackOnError makes a failing Evaluate or EvaluateProgram restore
// the bindings that existed before the call. By default bindings committed
// by earlier statements are kept.
func WithRollbackOnError(rollback bool) Option {
	return func(o *options) { o.rollbackOnError = rollback }
}

// WithMaxCallDepth bounds the nesting of user function calls.
func WithMaxCallDepth(n int) Option {
	return func(o *options) { o.maxCallDepth = n }
}

// WithMaxNestingDepth bounds how deeply parsed expressions may nest.
func WithMaxNestingDepth(n int) Option {
	return func(o *options) { o.maxNesting = n }
}

// WithMaxSourceLength bounds the size of accepted source text in bytes.
func WithMaxSourceLength(n int) Option {
	return func(o *options) { o.maxSource = n }
}

// WithImportResolver sets the resolver used by import statements.
func WithImportResolver(r ImportResolver) Option {
	return func(o *options) { o.resolver = r }
}

// WithRegistry replaces the built-in function registry.
func WithRegistry(r *stdlib.Registry) Option {
	return func(o *options) { o.registry = r }
}

// Evaluator composes parsing and evaluation around one persistent context:
// variables and functions defined by one call are visible to later calls.
// It is not safe for concurrent use; callers serialize access or give each
// goroutine its own Evaluator.
type Evaluator struct {
	opts   options
	parser *expr.Parser
	ctx    *EvalContext
}

// NewEvaluator creates an Evaluator with the built-in functions and
// constants registered.
func NewEvaluator(opts ...Option) *Evaluator {
	o := options{
		maxCallDepth: DefaultMaxCallDepth,
		maxNesting:   expr.DefaultMaxNestingDepth,
		maxSource:    expr.DefaultMaxSourceLength,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = stdlib.NewRegistry()
	}

	ev := &Evaluator{
		opts: o,
		parser: &expr.Parser{
			MaxSourceLength: o.maxSource,
			MaxNestingDepth: o.maxNesting,
		},
	}
	ev.Reset()
	return ev
}

// Reset discards every variable, user function and import, restoring the
// state right after construction.
func (ev *Evaluator) Reset() {
	ctx := NewContext()
	ctx.maxDepth = ev.opts.maxCallDepth
	ctx.definitionValue = ev.opts.definitionValue
	for _, b := range ev.opts.registry.Builtins() {
		ctx.DefineFunction(b.Name, NewFunctionWrapper(b.Name, b.Arity, NativeFunc(b.Fn)))
	}
	for name, v := range ev.opts.registry.Constants() {
		ctx.DefineConstant(name, v)
	}
	ev.ctx = ctx
}

// Context returns the persistent top-level context.
func (ev *Evaluator) Context() *EvalContext {
	return ev.ctx
}

// Parser returns the parser used by Evaluate and EvaluateProgram.
func (ev *Evaluator) Parser() *expr.Parser {
	return ev.parser
}

// SetImportResolver sets the resolver used by import statements.
func (ev *Evaluator) SetImportResolver(r ImportResolver) {
	ev.opts.resolver = r
}

// Evaluate parses src as a single expression and evaluates it.
func (ev *Evaluator) Evaluate(src string) (float64, error) {
	node, err := ev.parser.ParseExpression(src)
	if err != nil {
		return 0, err
	}
	return ev.EvaluateNode(node)
}

// EvaluateNode evaluates an already parsed expression.
func (ev *Evaluator) EvaluateNode(node expr.Node) (float64, error) {
	var saved contextState
	if ev.opts.rollbackOnError {
		saved = ev.ctx.snapshot()
	}

	v, err := evaluate(ev.ctx, node)
	if err != nil {
		if ev.opts.rollbackOnError {
			ev.ctx.restore(saved)
		}
		return 0, err
	}
	ev.record(node, v)
	return v, nil
}

// EvaluateProgram parses src as a program and evaluates it, returning one
// value per non-import statement. If a statement fails, the statements
// before it keep their effects unless WithRollbackOnError is set.
func (ev *Evaluator) EvaluateProgram(src string) ([]float64, error) {
	prog, err := ev.parser.ParseProgram(src)
	if err != nil {
		return nil, err
	}
	return ev.EvaluateProgramNode(prog)
}

// EvaluateProgramNode evaluates an already parsed program.
func (ev *Evaluator) EvaluateProgramNode(prog *expr.ProgramNode) ([]float64, error) {
	var saved contextState
	if ev.opts.rollbackOnError {
		saved = ev.ctx.snapshot()
	}

	pv := NewProgramEvalVisitor(ev.ctx, ev.opts.resolver)
	pv.OnValue = ev.record
	results, err := expr.Walk[[]float64](pv, prog)
	if err != nil {
		if ev.opts.rollbackOnError {
			ev.ctx.restore(saved)
		}
		return nil, err
	}
	return results, nil
}

func (ev *Evaluator) record(node expr.Node, v float64) {
	if _, def := node.(*expr.FdefNode); def {
		return
	}
	ev.ctx.SetVariable(AnsVariable, v)
}

// Call invokes a function visible in the top-level context from Go.
func (ev *Evaluator) Call(name string, args ...float64) (float64, error) {
	fn, ok := ev.ctx.Function(name)
	if !ok {
		return 0, &types.Error{Kind: types.KindUndefinedFunction, Message: "undefined function '" + name + "'"}
	}
	if arity := fn.Arity(); arity != Variadic && arity != len(args) {
		return 0, types.NewArityError(name, arity, len(args))
	}
	return fn.Call(ev.ctx, args)
}

// RegisterFunction adds a native function to the top-level context.
func (ev *Evaluator) RegisterFunction(name string, arity int, fn NativeFunc) {
	ev.ctx.DefineFunction(name, NewFunctionWrapper(name, arity, fn))
}

// DefineConstant adds a named constant to the top-level context.
func (ev *Evaluator) DefineConstant(name string, v float64) {
	ev.ctx.DefineConstant(name, v)
}

// SetVariable binds a top-level variable.
func (ev *Evaluator) SetVariable(name string, v float64) {
	ev.ctx.SetVariable(name, v)
}

// Variable returns a top-level variable or constant.
func (ev *Evaluator) Variable(name string) (float64, bool) {
	return ev.ctx.Variable(name)
}

// Variables returns a copy of the top-level variable bindings.
func (ev *Evaluator) Variables() map[string]float64 {
	return ev.ctx.Variables()
}

// Constants returns the named constants.
func (ev *Evaluator) Constants() map[string]float64 {
	return ev.ctx.Constants()
}

// Functions returns the sorted names of every callable function.
func (ev *Evaluator) Functions() []string {
	return ev.ctx.FunctionNames()
}

// UserFunctions returns the sorted names of functions defined in source.
func (ev *Evaluator) UserFunctions() []string {
	var names []string
	for name, fn := range ev.ctx.funcs {
		if _, ok := fn.(*UserFunction); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Arity returns the arity of the named function.
func (ev *Evaluator) Arity(name string) (int, bool) {
	fn, ok := ev.ctx.Function(name)
	if !ok {
		return 0, false
	}
	return fn.Arity(), true
}

// Describe renders the named function: the canonical source of a user
// definition, or a signature for native and imported functions.
func (ev *Evaluator) Describe(name string) (string, bool) {
	fn, ok := ev.ctx.Function(name)
	if !ok {
		return "", false
	}
	return describe(name, fn), true
}
