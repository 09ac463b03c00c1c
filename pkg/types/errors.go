package types

import (
	"errors"
	"fmt"
)

// Kind classifies a tcalc failure.
type Kind int

const (
	KindLex Kind = iota + 1
	KindParse
	KindUndefinedVariable
	KindUndefinedFunction
	KindArity
	KindArithmetic
	KindRecursionLimit
	KindInvalidMode
	KindImport
)

// String returns the kind name as reported to users.
func (k Kind) String() string {
	switch k {
	case KindLex:
		return "LexError"
	case KindParse:
		return "ParseError"
	case KindUndefinedVariable:
		return "UndefinedVariableError"
	case KindUndefinedFunction:
		return "UndefinedFunctionError"
	case KindArity:
		return "ArityError"
	case KindArithmetic:
		return "ArithmeticError"
	case KindRecursionLimit:
		return "RecursionLimitError"
	case KindInvalidMode:
		return "InvalidModeError"
	case KindImport:
		return "ImportError"
	default:
		return "Error"
	}
}

// ParseKind is the inverse of Kind.String. It returns 0 for unknown names.
func ParseKind(name string) Kind {
	for k := KindLex; k <= KindImport; k++ {
		if k.String() == name {
			return k
		}
	}
	return 0
}

// Position is a location in source text. Line and Column are 1-based; Offset
// is the 0-based byte offset.
type Position struct {
	Offset int
	Line   int
	Column int
}

// String renders the position as line:column.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Error is the single failure type raised by every stage of the pipeline:
// tokenizer, parser and evaluator.
type Error struct {
	Kind    Kind
	Message string
	Pos     *Position // nil when the failure has no source location
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pos != nil {
		return fmt.Sprintf("%s at %s: %s", e.Kind, e.Pos, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// KindOf returns the kind of err, or 0 if err is not a tcalc error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsKind reports whether err is a tcalc error of the given kind.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// PositionOf returns the source position attached to err, if any.
func PositionOf(err error) (Position, bool) {
	var e *Error
	if errors.As(err, &e) && e.Pos != nil {
		return *e.Pos, true
	}
	return Position{}, false
}

func at(pos Position) *Position {
	return &pos
}

// Common error constructors.

// NewLexError creates a LexError at pos.
func NewLexError(pos Position, format string, args ...any) *Error {
	return &Error{Kind: KindLex, Message: fmt.Sprintf(format, args...), Pos: at(pos)}
}

// NewParseError creates a ParseError at pos.
func NewParseError(pos Position, format string, args ...any) *Error {
	return &Error{Kind: KindParse, Message: fmt.Sprintf(format, args...), Pos: at(pos)}
}

// NewUndefinedVariableError creates an UndefinedVariableError.
func NewUndefinedVariableError(pos Position, name string) *Error {
	return &Error{Kind: KindUndefinedVariable, Message: fmt.Sprintf("undefined variable '%s'", name), Pos: at(pos)}
}

// NewUndefinedFunctionError creates an UndefinedFunctionError.
func NewUndefinedFunctionError(pos Position, name string) *Error {
	return &Error{Kind: KindUndefinedFunction, Message: fmt.Sprintf("undefined function '%s'", name), Pos: at(pos)}
}

// NewArityError creates an ArityError. It carries no position; callers that
// know the call site attach one with WithPos.
func NewArityError(name string, want, got int) *Error {
	return &Error{
		Kind:    KindArity,
		Message: fmt.Sprintf("%s expects %d argument(s), got %d", name, want, got),
	}
}

// NewArithmeticError creates an ArithmeticError.
func NewArithmeticError(format string, args ...any) *Error {
	return &Error{Kind: KindArithmetic, Message: fmt.Sprintf(format, args...)}
}

// NewZeroDivisionError creates the ArithmeticError raised by x / 0.
func NewZeroDivisionError(pos Position) *Error {
	return &Error{Kind: KindArithmetic, Message: "division by zero", Pos: at(pos)}
}

// NewRecursionError creates a RecursionLimitError for call stack overflow.
func NewRecursionError(pos Position, name string, limit int) *Error {
	return &Error{
		Kind:    KindRecursionLimit,
		Message: fmt.Sprintf("call to '%s' exceeded maximum call depth %d", name, limit),
		Pos:     at(pos),
	}
}

// NewInvalidModeError creates an InvalidModeError.
func NewInvalidModeError(pos Position, format string, args ...any) *Error {
	return &Error{Kind: KindInvalidMode, Message: fmt.Sprintf(format, args...), Pos: at(pos)}
}

// NewImportError creates an ImportError.
func NewImportError(format string, args ...any) *Error {
	return &Error{Kind: KindImport, Message: fmt.Sprintf(format, args...)}
}

// WithPos returns a copy of e positioned at pos, unless e already has one.
func (e *Error) WithPos(pos Position) *Error {
	if e.Pos != nil {
		return e
	}
	cp := *e
	cp.Pos = at(pos)
	return &cp
}
