package expr

import (
	"strconv"
	"unicode/utf8"

	"github.com/lemonberrylabs/tcalc/pkg/types"
)

var twoCharOps = map[string]TokenType{
	"==": TokenEq,
	"!=": TokenNeq,
	"<=": TokenLte,
	">=": TokenGte,
	"&&": TokenAnd,
	"||": TokenOr,
}

// Tokenizer scans tcalc source text into tokens. Tokens are produced lazily
// by Next; once the input is exhausted every further call returns EOF.
type Tokenizer struct {
	input string
	pos   int
	line  int
	col   int
}

// NewTokenizer creates a new tokenizer for the given input.
func NewTokenizer(input string) *Tokenizer {
	return &Tokenizer{input: input, line: 1, col: 1}
}

// Tokenize scans the entire input and returns all tokens, ending with EOF.
func (l *Tokenizer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.Next()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

// position returns the current source position.
func (l *Tokenizer) position() types.Position {
	return types.Position{Offset: l.pos, Line: l.line, Column: l.col}
}

// advance consumes n bytes of the current line.
func (l *Tokenizer) advance(n int) {
	l.pos += n
	l.col += n
}

// Next returns the next token from the input.
func (l *Tokenizer) Next() (Token, error) {
	l.skipBlank()

	start := l.position()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: start}, nil
	}

	ch := l.input[l.pos]

	if ch == '\n' {
		l.pos++
		l.line++
		l.col = 1
		return Token{Type: TokenNewline, Value: "\n", Pos: start}, nil
	}

	if isDigit(ch) || (ch == '.' && l.pos+1 < len(l.input) && isDigit(l.input[l.pos+1])) {
		return l.readNumber()
	}

	if isIdentStart(ch) {
		return l.readIdentifier(), nil
	}

	// Two-character operators
	if l.pos+1 < len(l.input) {
		two := l.input[l.pos : l.pos+2]
		if tt, ok := twoCharOps[two]; ok {
			l.advance(2)
			return Token{Type: tt, Value: two, Pos: start}, nil
		}
	}

	// Single-character operators
	var tt TokenType
	switch ch {
	case '+':
		tt = TokenPlus
	case '-':
		tt = TokenMinus
	case '*':
		tt = TokenStar
	case '/':
		tt = TokenSlash
	case '(':
		tt = TokenLParen
	case ')':
		tt = TokenRParen
	case ',':
		tt = TokenComma
	case '=':
		tt = TokenAssign
	case ';':
		tt = TokenSemicolon
	case '<':
		tt = TokenLt
	case '>':
		tt = TokenGt
	case '!':
		tt = TokenNot
	default:
		if ch < 0x20 || ch == 0x7f {
			return Token{}, types.NewLexError(start, "unexpected control character 0x%02x", ch)
		}
		r, _ := utf8.DecodeRuneInString(l.input[l.pos:])
		return Token{}, types.NewLexError(start, "unexpected character %q", r)
	}
	l.advance(1)
	return Token{Type: tt, Value: string(ch), Pos: start}, nil
}

// skipBlank skips spaces, tabs, carriage returns and # comments. Newlines are
// significant and are left for Next.
func (l *Tokenizer) skipBlank() {
	for l.pos < len(l.input) {
		switch l.input[l.pos] {
		case ' ', '\t', '\r', '\f', '\v':
			l.advance(1)
		case '#':
			for l.pos < len(l.input) && l.input[l.pos] != '\n' {
				l.advance(1)
			}
		default:
			return
		}
	}
}

// readNumber reads an integer or decimal literal with an optional exponent.
func (l *Tokenizer) readNumber() (Token, error) {
	startPos := l.position()
	start := l.pos

	digits := func() int {
		n := 0
		for l.pos < len(l.input) && isDigit(l.input[l.pos]) {
			l.advance(1)
			n++
		}
		return n
	}

	digits()
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		l.advance(1)
		if digits() == 0 {
			return Token{}, types.NewLexError(startPos, "malformed number %q", l.input[start:l.pos])
		}
	}
	// An e not followed by exponent digits ends the number, so 2else is 2 then else.
	if l.pos < len(l.input) && (l.input[l.pos] == 'e' || l.input[l.pos] == 'E') {
		mark, col := l.pos, l.col
		l.advance(1)
		if l.pos < len(l.input) && (l.input[l.pos] == '+' || l.input[l.pos] == '-') {
			l.advance(1)
		}
		if digits() == 0 {
			l.pos, l.col = mark, col
		}
	}
	// 1.2.3 and 1e5.2 are malformed, not two adjacent numbers.
	if l.pos < len(l.input) && l.input[l.pos] == '.' {
		end := l.pos + 1
		for end < len(l.input) && (isDigit(l.input[end]) || l.input[end] == '.') {
			end++
		}
		return Token{}, types.NewLexError(startPos, "malformed number %q", l.input[start:end])
	}

	raw := l.input[start:l.pos]
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Token{}, types.NewLexError(startPos, "malformed number %q", raw)
	}
	return Token{Type: TokenNumber, Value: raw, Number: f, Pos: startPos}, nil
}

// readIdentifier reads an identifier or keyword.
func (l *Tokenizer) readIdentifier() Token {
	startPos := l.position()
	start := l.pos
	for l.pos < len(l.input) && isIdentPart(l.input[l.pos]) {
		l.advance(1)
	}

	word := l.input[start:l.pos]
	if tt, ok := keywords[word]; ok {
		return Token{Type: tt, Value: word, Pos: startPos}
	}
	return Token{Type: TokenIdent, Value: word, Pos: startPos}
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch == '_'
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
