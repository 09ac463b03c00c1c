package runtime

import (
	"sort"

	"github.com/lemonberrylabs/tcalc/pkg/expr"
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// ProgramEvalVisitor evaluates a whole program against one context and
// collects one value per non-import statement, in source order.
type ProgramEvalVisitor struct {
	ctx      *EvalContext
	resolver ImportResolver

	// OnValue, if set, is called after each statement that produced a value.
	OnValue func(stmt expr.Node, v float64)
}

// NewProgramEvalVisitor creates a ProgramEvalVisitor. resolver may be nil,
// in which case every import fails.
func NewProgramEvalVisitor(ctx *EvalContext, resolver ImportResolver) *ProgramEvalVisitor {
	return &ProgramEvalVisitor{ctx: ctx, resolver: resolver}
}

// VisitProgram evaluates the statements in order. The first failure stops
// evaluation; bindings made by earlier statements stay in the context.
func (p *ProgramEvalVisitor) VisitProgram(n *expr.ProgramNode) ([]float64, error) {
	results := make([]float64, 0, len(n.Statements))
	for _, stmt := range n.Statements {
		vs, err := expr.Walk[[]float64](p, stmt)
		if err != nil {
			return nil, err
		}
		results = append(results, vs...)
	}
	return results, nil
}

// VisitImport merges the module's exports into the current function table.
// It contributes no value.
func (p *ProgramEvalVisitor) VisitImport(n *expr.ProgramImportNode) ([]float64, error) {
	if p.resolver == nil {
		return nil, types.NewImportError("cannot import '%s': no import resolver configured", n.Name).WithPos(n.Pos)
	}
	exports, err := p.resolver.Resolve(n.Name)
	if err != nil {
		return nil, withPos(asImportError(n.Name, err), n.Pos)
	}

	names := make([]string, 0, len(exports))
	for name := range exports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.ctx.DefineFunction(name, NewImportWrapper(n.Name, name, exports[name]))
	}
	return nil, nil
}

func (p *ProgramEvalVisitor) statement(n expr.Node) ([]float64, error) {
	v, err := evaluate(p.ctx, n)
	if err != nil {
		return nil, err
	}
	if p.OnValue != nil {
		p.OnValue(n, v)
	}
	return []float64{v}, nil
}

func (p *ProgramEvalVisitor) VisitNumber(n *expr.NumberNode) ([]float64, error) {
	return p.statement(n)
}

func (p *ProgramEvalVisitor) VisitUnaryOp(n *expr.UnaryOpNode) ([]float64, error) {
	return p.statement(n)
}

func (p *ProgramEvalVisitor) VisitBinaryOp(n *expr.BinaryOpNode) ([]float64, error) {
	return p.statement(n)
}

func (p *ProgramEvalVisitor) VisitVarRef(n *expr.VarRefNode) ([]float64, error) {
	return p.statement(n)
}

func (p *ProgramEvalVisitor) VisitVarAssign(n *expr.VarAssignNode) ([]float64, error) {
	return p.statement(n)
}

func (p *ProgramEvalVisitor) VisitFdef(n *expr.FdefNode) ([]float64, error) {
	return p.statement(n)
}

func (p *ProgramEvalVisitor) VisitFcall(n *expr.FcallNode) ([]float64, error) {
	return p.statement(n)
}

func (p *ProgramEvalVisitor) VisitIf(n *expr.IfNode) ([]float64, error) {
	return p.statement(n)
}

// asImportError reports resolver failures under the ImportError kind unless
// they already carry a tcalc kind.
func asImportError(module string, err error) error {
	if types.KindOf(err) != 0 {
		return err
	}
	return types.NewImportError("cannot import '%s': %v", module, err)
}
