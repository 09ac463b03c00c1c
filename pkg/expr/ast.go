package expr

import (
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// Node is the interface for all tcalc AST nodes. The set of implementations
// is closed: the unexported marker method keeps other packages from adding
// node kinds that the visitors in Walk would not know about.
type Node interface {
	Position() types.Position
	node()
}

// Op is the operator tag carried by UnaryOpNode and BinaryOpNode.
type Op int

const (
	OpPlus     Op = iota // + (binary add or unary plus)
	OpMinus              // - (binary subtract or unary negate)
	OpMultiply           // *
	OpDivide             // /
	OpEq                 // ==
	OpNeq                // !=
	OpLt                 // <
	OpLte                // <=
	OpGt                 // >
	OpGte                // >=
	OpAnd                // &&
	OpOr                 // ||
	OpNot                // ! (unary only)
)

// String returns the operator's source symbol.
func (o Op) String() string {
	switch o {
	case OpPlus:
		return "+"
	case OpMinus:
		return "-"
	case OpMultiply:
		return "*"
	case OpDivide:
		return "/"
	case OpEq:
		return "=="
	case OpNeq:
		return "!="
	case OpLt:
		return "<"
	case OpLte:
		return "<="
	case OpGt:
		return ">"
	case OpGte:
		return ">="
	case OpAnd:
		return "&&"
	case OpOr:
		return "||"
	case OpNot:
		return "!"
	default:
		return "?"
	}
}

// NumberNode is a numeric literal.
type NumberNode struct {
	Value float64
	Pos   types.Position
}

// UnaryOpNode is a prefix operation: +x, -x or !x.
type UnaryOpNode struct {
	Op      Op
	Operand Node
	Pos     types.Position
}

// BinaryOpNode is an infix operation. Left is always evaluated before Right.
type BinaryOpNode struct {
	Op    Op
	Left  Node
	Right Node
	Pos   types.Position
}

// VarRefNode reads a variable.
type VarRefNode struct {
	Name string
	Pos  types.Position
}

// VarAssignNode binds Name to the value of Value in the current context.
type VarAssignNode struct {
	Name  string
	Value Node
	Pos   types.Position
}

// FdefNode defines a function. Params are unique within one definition.
type FdefNode struct {
	Name   string
	Params []string
	Body   Node
	Pos    types.Position
}

// FcallNode calls a function with positional arguments.
type FcallNode struct {
	Name string
	Args []Node
	Pos  types.Position
}

// IfNode is a conditional expression; both branches are mandatory.
type IfNode struct {
	Cond Node
	Then Node
	Else Node
	Pos  types.Position
}

// ProgramImportNode asks the import resolver for the module Name.
type ProgramImportNode struct {
	Name string
	Pos  types.Position
}

// ProgramNode is an ordered list of top-level statements.
type ProgramNode struct {
	Statements []Node
	Pos        types.Position
}

func (n *NumberNode) Position() types.Position        { return n.Pos }
func (n *UnaryOpNode) Position() types.Position       { return n.Pos }
func (n *BinaryOpNode) Position() types.Position      { return n.Pos }
func (n *VarRefNode) Position() types.Position        { return n.Pos }
func (n *VarAssignNode) Position() types.Position     { return n.Pos }
func (n *FdefNode) Position() types.Position          { return n.Pos }
func (n *FcallNode) Position() types.Position         { return n.Pos }
func (n *IfNode) Position() types.Position            { return n.Pos }
func (n *ProgramImportNode) Position() types.Position { return n.Pos }
func (n *ProgramNode) Position() types.Position       { return n.Pos }

func (*NumberNode) node()        {}
func (*UnaryOpNode) node()       {}
func (*BinaryOpNode) node()      {}
func (*VarRefNode) node()        {}
func (*VarAssignNode) node()     {}
func (*FdefNode) node()          {}
func (*FcallNode) node()         {}
func (*IfNode) node()            {}
func (*ProgramImportNode) node() {}
func (*ProgramNode) node()       {}
