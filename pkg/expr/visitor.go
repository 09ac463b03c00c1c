package expr

import (
	"fmt"
)

// Visitor is implemented by every tree-walking pass. R is the result type of
// the pass: float64 for evaluation, []float64 for program evaluation,
// struct{} for printing. Adding a node kind adds a method here, which breaks
// every pass until it handles the new kind.
type Visitor[R any] interface {
	VisitNumber(n *NumberNode) (R, error)
	VisitUnaryOp(n *UnaryOpNode) (R, error)
	VisitBinaryOp(n *BinaryOpNode) (R, error)
	VisitVarRef(n *VarRefNode) (R, error)
	VisitVarAssign(n *VarAssignNode) (R, error)
	VisitFdef(n *FdefNode) (R, error)
	VisitFcall(n *FcallNode) (R, error)
	VisitIf(n *IfNode) (R, error)
	VisitImport(n *ProgramImportNode) (R, error)
	VisitProgram(n *ProgramNode) (R, error)
}

// Walk dispatches node to the matching method of v.
func Walk[R any](v Visitor[R], node Node) (R, error) {
	switch n := node.(type) {
	case *NumberNode:
		return v.VisitNumber(n)
	case *UnaryOpNode:
		return v.VisitUnaryOp(n)
	case *BinaryOpNode:
		return v.VisitBinaryOp(n)
	case *VarRefNode:
		return v.VisitVarRef(n)
	case *VarAssignNode:
		return v.VisitVarAssign(n)
	case *FdefNode:
		return v.VisitFdef(n)
	case *FcallNode:
		return v.VisitFcall(n)
	case *IfNode:
		return v.VisitIf(n)
	case *ProgramImportNode:
		return v.VisitImport(n)
	case *ProgramNode:
		return v.VisitProgram(n)
	default:
		// Unreachable: Node is sealed. A nil node lands here too.
		var zero R
		return zero, fmt.Errorf("expr: unsupported node type %T", node)
	}
}
