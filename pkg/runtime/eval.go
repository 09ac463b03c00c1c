package runtime

import (
	"errors"
	"fmt"

	"github.com/lemonberrylabs/tcalc/pkg/expr"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// EvalVisitor evaluates a single expression to a number against one context.
type EvalVisitor struct {
	ctx *EvalContext
}

// NewEvalVisitor creates an EvalVisitor bound to ctx.
func NewEvalVisitor(ctx *EvalContext) *EvalVisitor {
	return &EvalVisitor{ctx: ctx}
}

// evaluate walks node with a fresh EvalVisitor on ctx.
func evaluate(ctx *EvalContext, node expr.Node) (float64, error) {
	return expr.Walk[float64](NewEvalVisitor(ctx), node)
}

func (e *EvalVisitor) eval(node expr.Node) (float64, error) {
	return expr.Walk[float64](e, node)
}

func (e *EvalVisitor) VisitNumber(n *expr.NumberNode) (float64, error) {
	return n.Value, nil
}

func (e *EvalVisitor) VisitUnaryOp(n *expr.UnaryOpNode) (float64, error) {
	v, err := e.eval(n.Operand)
	if err != nil {
		return 0, err
	}
	switch n.Op {
	case expr.OpPlus:
		return v, nil
	case expr.OpMinus:
		return -v, nil
	case expr.OpNot:
		return types.Bool(!types.Truthy(v)), nil
	default:
		return 0, fmt.Errorf("runtime: unsupported unary operator %s (%d)", n.Op, int(n.Op))
	}
}

func (e *EvalVisitor) VisitBinaryOp(n *expr.BinaryOpNode) (float64, error) {
	left, err := e.eval(n.Left)
	if err != nil {
		return 0, err
	}

	// Logical operators short-circuit.
	switch n.Op {
	case expr.OpAnd:
		if !types.Truthy(left) {
			return 0, nil
		}
		right, err := e.eval(n.Right)
		if err != nil {
			return 0, err
		}
		return types.Bool(types.Truthy(right)), nil
	case expr.OpOr:
		if types.Truthy(left) {
			return 1, nil
		}
		right, err := e.eval(n.Right)
		if err != nil {
			return 0, err
		}
		return types.Bool(types.Truthy(right)), nil
	}

	right, err := e.eval(n.Right)
	if err != nil {
		return 0, err
	}

	switch n.Op {
	case expr.OpPlus:
		return left + right, nil
	case expr.OpMinus:
		return left - right, nil
	case expr.OpMultiply:
		return left * right, nil
	case expr.OpDivide:
		if right == 0 {
			return 0, types.NewZeroDivisionError(n.Pos)
		}
		return left / right, nil
	case expr.OpEq:
		return types.Bool(left == right), nil
	case expr.OpNeq:
		return types.Bool(left != right), nil
	case expr.OpLt:
		return types.Bool(left < right), nil
	case expr.OpLte:
		return types.Bool(left <= right), nil
	case expr.OpGt:
		return types.Bool(left > right), nil
	case expr.OpGte:
		return types.Bool(left >= right), nil
	default:
		return 0, fmt.Errorf("runtime: unsupported binary operator %s (%d)", n.Op, int(n.Op))
	}
}

func (e *EvalVisitor) VisitVarRef(n *expr.VarRefNode) (float64, error) {
	v, ok := e.ctx.Variable(n.Name)
	if !ok {
		return 0, types.NewUndefinedVariableError(n.Pos, n.Name)
	}
	return v, nil
}

func (e *EvalVisitor) VisitVarAssign(n *expr.VarAssignNode) (float64, error) {
	v, err := e.eval(n.Value)
	if err != nil {
		return 0, err
	}
	e.ctx.SetVariable(n.Name, v)
	return v, nil
}

// VisitFdef registers the definition without evaluating its body.
func (e *EvalVisitor) VisitFdef(n *expr.FdefNode) (float64, error) {
	e.ctx.DefineFunction(n.Name, &UserFunction{Def: n})
	return e.ctx.definitionValue, nil
}

func (e *EvalVisitor) VisitFcall(n *expr.FcallNode) (float64, error) {
	fn, ok := e.ctx.Function(n.Name)
	if !ok {
		return 0, types.NewUndefinedFunctionError(n.Pos, n.Name)
	}
	if arity := fn.Arity(); arity != Variadic && arity != len(n.Args) {
		return 0, types.NewArityError(n.Name, arity, len(n.Args)).WithPos(n.Pos)
	}

	args := make([]float64, len(n.Args))
	for i, arg := range n.Args {
		v, err := e.eval(arg)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}

	if _, user := fn.(*UserFunction); user && e.ctx.depth >= e.ctx.maxDepth {
		return 0, types.NewRecursionError(n.Pos, n.Name, e.ctx.maxDepth)
	}

	v, err := fn.Call(e.ctx, args)
	if err != nil {
		return 0, withPos(err, n.Pos)
	}
	return v, nil
}

// VisitIf evaluates exactly one branch.
func (e *EvalVisitor) VisitIf(n *expr.IfNode) (float64, error) {
	cond, err := e.eval(n.Cond)
	if err != nil {
		return 0, err
	}
	if types.Truthy(cond) {
		return e.eval(n.Then)
	}
	return e.eval(n.Else)
}

func (e *EvalVisitor) VisitImport(n *expr.ProgramImportNode) (float64, error) {
	return 0, types.NewInvalidModeError(n.Pos, "import '%s' is only allowed in program mode", n.Name)
}

func (e *EvalVisitor) VisitProgram(n *expr.ProgramNode) (float64, error) {
	return 0, types.NewInvalidModeError(n.Pos, "a program cannot be evaluated as a single expression")
}

// withPos attaches pos to a tcalc error that has no position yet.
func withPos(err error, pos types.Position) error {
	var te *types.Error
	if errors.As(err, &te) && te.Pos == nil {
		return te.WithPos(pos)
	}
	return err
}
