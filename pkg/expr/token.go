// Package expr implements the tcalc tokenizer, parser and abstract syntax
// tree, together with the generic visitor used by every tree-walking pass.
package expr

import (
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Literals and names
	TokenNumber TokenType = iota // numeric literal
	TokenIdent                   // identifier (variable or function name)

	// Arithmetic
	TokenPlus  // +
	TokenMinus // -
	TokenStar  // *
	TokenSlash // /

	// Punctuation
	TokenLParen    // (
	TokenRParen    // )
	TokenComma     // ,
	TokenAssign    // =
	TokenSemicolon // ;
	TokenNewline   // \n

	// Comparison
	TokenEq  // ==
	TokenNeq // !=
	TokenLt  // <
	TokenLte // <=
	TokenGt  // >
	TokenGte // >=

	// Logical
	TokenAnd // &&
	TokenOr  // ||
	TokenNot // !

	// Keywords
	TokenIf     // if
	TokenThen   // then
	TokenElse   // else
	TokenDef    // def
	TokenLet    // let
	TokenImport // import

	// Special
	TokenEOF // end of input
)

// keywords maps reserved words to their token types.
var keywords = map[string]TokenType{
	"if":     TokenIf,
	"then":   TokenThen,
	"else":   TokenElse,
	"def":    TokenDef,
	"let":    TokenLet,
	"import": TokenImport,
}

// Token is a single lexical token. Number is set only for TokenNumber.
type Token struct {
	Type   TokenType
	Value  string  // raw text of the token
	Number float64 // parsed value (for TokenNumber)
	Pos    types.Position
}

// String returns a debug-friendly representation of the token type.
func (t TokenType) String() string {
	switch t {
	case TokenNumber:
		return "NUMBER"
	case TokenIdent:
		return "IDENT"
	case TokenPlus:
		return "PLUS"
	case TokenMinus:
		return "MINUS"
	case TokenStar:
		return "STAR"
	case TokenSlash:
		return "SLASH"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	case TokenComma:
		return "COMMA"
	case TokenAssign:
		return "ASSIGN"
	case TokenSemicolon:
		return "SEMICOLON"
	case TokenNewline:
		return "NEWLINE"
	case TokenEq:
		return "EQ"
	case TokenNeq:
		return "NEQ"
	case TokenLt:
		return "LT"
	case TokenLte:
		return "LTE"
	case TokenGt:
		return "GT"
	case TokenGte:
		return "GTE"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenIf:
		return "IF"
	case TokenThen:
		return "THEN"
	case TokenElse:
		return "ELSE"
	case TokenDef:
		return "DEF"
	case TokenLet:
		return "LET"
	case TokenImport:
		return "IMPORT"
	case TokenEOF:
		return "EOF"
	default:
		return "UNKNOWN"
	}
}

// describe renders a token for error messages.
func (t Token) describe() string {
	switch t.Type {
	case TokenEOF:
		return "end of input"
	case TokenNewline:
		return "newline"
	default:
		return t.Type.String() + " '" + t.Value + "'"
	}
}
