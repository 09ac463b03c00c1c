package expr

import (
	"io"
	"strings"

	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// PrintVisitor renders a tree back to source text on w. Every compound
// expression is parenthesized, so the output parses back to the same tree
// regardless of precedence.
type PrintVisitor struct {
	w io.Writer
}

// NewPrintVisitor creates a PrintVisitor writing to w.
func NewPrintVisitor(w io.Writer) *PrintVisitor {
	return &PrintVisitor{w: w}
}

// Print writes the canonical rendering of node to w.
func Print(w io.Writer, node Node) error {
	_, err := Walk[struct{}](NewPrintVisitor(w), node)
	return err
}

// Format renders node as canonical source text.
func Format(node Node) string {
	var sb strings.Builder
	if err := Print(&sb, node); err != nil {
		return "<invalid: " + err.Error() + ">"
	}
	return sb.String()
}

func (p *PrintVisitor) write(parts ...string) error {
	for _, s := range parts {
		if _, err := io.WriteString(p.w, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *PrintVisitor) walk(n Node) error {
	_, err := Walk[struct{}](p, n)
	return err
}

func (p *PrintVisitor) VisitNumber(n *NumberNode) (struct{}, error) {
	return struct{}{}, p.write(types.FormatNumber(n.Value))
}

func (p *PrintVisitor) VisitUnaryOp(n *UnaryOpNode) (struct{}, error) {
	if err := p.write("(", n.Op.String()); err != nil {
		return struct{}{}, err
	}
	if err := p.walk(n.Operand); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, p.write(")")
}

func (p *PrintVisitor) VisitBinaryOp(n *BinaryOpNode) (struct{}, error) {
	if err := p.write("("); err != nil {
		return struct{}{}, err
	}
	if err := p.walk(n.Left); err != nil {
		return struct{}{}, err
	}
	if err := p.write(" ", n.Op.String(), " "); err != nil {
		return struct{}{}, err
	}
	if err := p.walk(n.Right); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, p.write(")")
}

func (p *PrintVisitor) VisitVarRef(n *VarRefNode) (struct{}, error) {
	return struct{}{}, p.write(n.Name)
}

func (p *PrintVisitor) VisitVarAssign(n *VarAssignNode) (struct{}, error) {
	if err := p.write("(", n.Name, " = "); err != nil {
		return struct{}{}, err
	}
	if err := p.walk(n.Value); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, p.write(")")
}

func (p *PrintVisitor) VisitFdef(n *FdefNode) (struct{}, error) {
	if err := p.write("(def ", n.Name, "(", strings.Join(n.Params, ", "), ") = "); err != nil {
		return struct{}{}, err
	}
	if err := p.walk(n.Body); err != nil {
		return struct{}{}, err
	}
	return struct{}{}, p.write(")")
}

func (p *PrintVisitor) VisitFcall(n *FcallNode) (struct{}, error) {
	if err := p.write(n.Name, "("); err != nil {
		return struct{}{}, err
	}
	for i, arg := range n.Args {
		if i > 0 {
			if err := p.write(", "); err != nil {
				return struct{}{}, err
			}
		}
		if err := p.walk(arg); err != nil {
			return struct{}{}, err
		}
	}
	return struct{}{}, p.write(")")
}

func (p *PrintVisitor) VisitIf(n *IfNode) (struct{}, error) {
	parts := []struct {
		prefix string
		node   Node
	}{
		{"(if ", n.Cond},
		{" then ", n.Then},
		{" else ", n.Else},
	}
	for _, part := range parts {
		if err := p.write(part.prefix); err != nil {
			return struct{}{}, err
		}
		if err := p.walk(part.node); err != nil {
			return struct{}{}, err
		}
	}
	return struct{}{}, p.write(")")
}

func (p *PrintVisitor) VisitImport(n *ProgramImportNode) (struct{}, error) {
	return struct{}{}, p.write("import ", n.Name)
}

// VisitProgram prints one statement per line.
func (p *PrintVisitor) VisitProgram(n *ProgramNode) (struct{}, error) {
	for i, stmt := range n.Statements {
		if i > 0 {
			if err := p.write("\n"); err != nil {
				return struct{}{}, err
			}
		}
		if err := p.walk(stmt); err != nil {
			return struct{}{}, err
		}
	}
	return struct{}{}, nil
}
