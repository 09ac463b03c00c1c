package expr

import (
	"github.com/lemonberrylabs/tcalc/pkg/types"
)

// DefaultMaxSourceLength is the maximum accepted source size in bytes.
const DefaultMaxSourceLength = 64 * 1024

// DefaultMaxNestingDepth bounds how deeply expressions may nest before the
// parser gives up, so hostile input cannot exhaust the stack.
const DefaultMaxNestingDepth = 200

// continuations are tokens that cannot end an expression; newlines right
// after them continue the expression instead of ending the statement.
var continuations = map[TokenType]bool{
	TokenPlus: true, TokenMinus: true, TokenStar: true, TokenSlash: true,
	TokenEq: true, TokenNeq: true, TokenLt: true, TokenLte: true, TokenGt: true, TokenGte: true,
	TokenAnd: true, TokenOr: true, TokenNot: true,
	TokenAssign: true, TokenComma: true, TokenLParen: true,
	TokenIf: true, TokenThen: true, TokenElse: true,
}

// ParserContext holds the bookkeeping of one parse: the token cursor, the
// open-parenthesis count and the nesting depth. It knows nothing about the
// grammar and is discarded when the parse returns.
type ParserContext struct {
	tokens   []Token
	pos      int
	parens   int
	depth    int
	maxDepth int
}

func newParserContext(tokens []Token, maxDepth int) *ParserContext {
	return &ParserContext{tokens: tokens, maxDepth: maxDepth}
}

// Current returns the current token. Inside parentheses newlines are
// insignificant and are skipped.
func (c *ParserContext) Current() Token {
	if c.parens > 0 {
		c.skipNewlines()
	}
	if c.pos >= len(c.tokens) {
		return c.eof()
	}
	return c.tokens[c.pos]
}

// Advance consumes the current token and returns it.
func (c *ParserContext) Advance() Token {
	tok := c.Current()
	if tok.Type == TokenEOF {
		return tok
	}
	c.pos++
	switch tok.Type {
	case TokenLParen:
		c.parens++
	case TokenRParen:
		if c.parens > 0 {
			c.parens--
		}
	}
	if continuations[tok.Type] {
		c.skipNewlines()
	}
	return tok
}

// Expect consumes a token of the expected type or returns a ParseError
// naming what was found instead.
func (c *ParserContext) Expect(tt TokenType, what string) (Token, error) {
	tok := c.Current()
	if tok.Type != tt {
		return tok, types.NewParseError(tok.Pos, "expected %s, got %s", what, tok.describe())
	}
	return c.Advance(), nil
}

// Depth returns the current expression nesting depth.
func (c *ParserContext) Depth() int {
	return c.depth
}

// enter records one more level of nesting and fails past the limit.
func (c *ParserContext) enter() error {
	c.depth++
	if c.maxDepth > 0 && c.depth > c.maxDepth {
		return types.NewParseError(c.Current().Pos, "expression nested deeper than %d levels", c.maxDepth)
	}
	return nil
}

func (c *ParserContext) leave() {
	c.depth--
}

func (c *ParserContext) skipNewlines() {
	for c.pos < len(c.tokens) && c.tokens[c.pos].Type == TokenNewline {
		c.pos++
	}
}

// skipSeparators skips statement separators: semicolons and newlines.
func (c *ParserContext) skipSeparators() {
	for c.pos < len(c.tokens) {
		switch c.tokens[c.pos].Type {
		case TokenNewline, TokenSemicolon:
			c.pos++
		default:
			return
		}
	}
}

func (c *ParserContext) eof() Token {
	if n := len(c.tokens); n > 0 {
		return Token{Type: TokenEOF, Pos: c.tokens[n-1].Pos}
	}
	return Token{Type: TokenEOF, Pos: types.Position{Line: 1, Column: 1}}
}

// Parser is a recursive descent parser for tcalc source. It holds only
// limits, so one Parser may be shared; each call gets its own ParserContext.
type Parser struct {
	MaxSourceLength int
	MaxNestingDepth int
}

// NewParser returns a parser with the default limits.
func NewParser() *Parser {
	return &Parser{
		MaxSourceLength: DefaultMaxSourceLength,
		MaxNestingDepth: DefaultMaxNestingDepth,
	}
}

// ParseExpression parses src as a single expression (expression mode).
func ParseExpression(src string) (Node, error) {
	return NewParser().ParseExpression(src)
}

// ParseProgram parses src as a sequence of statements separated by ';' or
// newlines (program mode).
func ParseProgram(src string) (*ProgramNode, error) {
	return NewParser().ParseProgram(src)
}

func (p *Parser) newContext(src string) (*ParserContext, error) {
	if p.MaxSourceLength > 0 && len(src) > p.MaxSourceLength {
		return nil, types.NewParseError(types.Position{Line: 1, Column: 1},
			"source exceeds maximum length of %d bytes", p.MaxSourceLength)
	}
	tokens, err := NewTokenizer(src).Tokenize()
	if err != nil {
		return nil, err
	}
	return newParserContext(tokens, p.MaxNestingDepth), nil
}

// ParseExpression parses src as a single expression. Trailing separators are
// allowed; anything else after the expression is a ParseError.
func (p *Parser) ParseExpression(src string) (Node, error) {
	ctx, err := p.newContext(src)
	if err != nil {
		return nil, err
	}

	ctx.skipSeparators()
	if tok := ctx.Current(); tok.Type == TokenImport {
		return nil, types.NewInvalidModeError(tok.Pos, "import is only allowed in program mode")
	}

	node, err := p.parseExpression(ctx)
	if err != nil {
		return nil, err
	}

	ctx.skipSeparators()
	if tok := ctx.Current(); tok.Type != TokenEOF {
		return nil, types.NewParseError(tok.Pos, "unexpected %s after end of expression", tok.describe())
	}
	return node, nil
}

// ParseProgram parses src as a program.
func (p *Parser) ParseProgram(src string) (*ProgramNode, error) {
	ctx, err := p.newContext(src)
	if err != nil {
		return nil, err
	}

	prog := &ProgramNode{Pos: types.Position{Line: 1, Column: 1}}
	ctx.skipSeparators()
	for ctx.Current().Type != TokenEOF {
		stmt, err := p.parseStatement(ctx)
		if err != nil {
			return nil, err
		}
		prog.Statements = append(prog.Statements, stmt)

		switch tok := ctx.Current(); tok.Type {
		case TokenEOF, TokenSemicolon, TokenNewline:
		default:
			return nil, types.NewParseError(tok.Pos, "expected ';' or newline after statement, got %s", tok.describe())
		}
		ctx.skipSeparators()
	}
	return prog, nil
}

// parseStatement parses one top-level statement: an import or an expression.
func (p *Parser) parseStatement(ctx *ParserContext) (Node, error) {
	if ctx.Current().Type == TokenImport {
		tok := ctx.Advance()
		name, err := ctx.Expect(TokenIdent, "module name after 'import'")
		if err != nil {
			return nil, err
		}
		return &ProgramImportNode{Name: name.Value, Pos: tok.Pos}, nil
	}
	return p.parseExpression(ctx)
}

// parseExpression is the entry point for one expression.
// Precedence (low to high):
//
//	assignment (x = e, f(a) = e, let, def)
//	if/then/else
//	||
//	&&
//	==, !=, <, <=, >, >=
//	+, -
//	*, /
//	unary +, -, !
//	numbers, names, calls, parentheses
func (p *Parser) parseExpression(ctx *ParserContext) (Node, error) {
	if err := ctx.enter(); err != nil {
		return nil, err
	}
	defer ctx.leave()
	return p.parseAssignment(ctx)
}

func (p *Parser) parseAssignment(ctx *ParserContext) (Node, error) {
	switch ctx.Current().Type {
	case TokenLet:
		return p.parseLet(ctx)
	case TokenDef:
		return p.parseDef(ctx)
	}

	left, err := p.parseConditional(ctx)
	if err != nil {
		return nil, err
	}
	if ctx.Current().Type != TokenAssign {
		return left, nil
	}
	assign := ctx.Advance()

	switch target := left.(type) {
	case *VarRefNode:
		value, err := p.parseExpression(ctx)
		if err != nil {
			return nil, err
		}
		return &VarAssignNode{Name: target.Name, Value: value, Pos: target.Pos}, nil
	case *FcallNode:
		params := make([]string, len(target.Args))
		for i, arg := range target.Args {
			ref, ok := arg.(*VarRefNode)
			if !ok {
				return nil, types.NewParseError(arg.Position(),
					"parameter %d of '%s' must be a plain name", i+1, target.Name)
			}
			params[i] = ref.Name
		}
		if err := checkParams(target.Name, params, target.Args); err != nil {
			return nil, err
		}
		body, err := p.parseExpression(ctx)
		if err != nil {
			return nil, err
		}
		return &FdefNode{Name: target.Name, Params: params, Body: body, Pos: target.Pos}, nil
	default:
		return nil, types.NewParseError(assign.Pos, "invalid assignment target")
	}
}

// parseLet parses: let IDENT = expression
func (p *Parser) parseLet(ctx *ParserContext) (Node, error) {
	ctx.Advance()
	name, err := ctx.Expect(TokenIdent, "variable name after 'let'")
	if err != nil {
		return nil, err
	}
	if _, err := ctx.Expect(TokenAssign, "'=' after variable name"); err != nil {
		return nil, err
	}
	value, err := p.parseExpression(ctx)
	if err != nil {
		return nil, err
	}
	return &VarAssignNode{Name: name.Value, Value: value, Pos: name.Pos}, nil
}

// parseDef parses: def IDENT ( params ) [=] expression
func (p *Parser) parseDef(ctx *ParserContext) (Node, error) {
	ctx.Advance()
	name, err := ctx.Expect(TokenIdent, "function name after 'def'")
	if err != nil {
		return nil, err
	}
	open, err := ctx.Expect(TokenLParen, "'(' after function name")
	if err != nil {
		return nil, err
	}

	var params []string
	seen := make(map[string]bool)
	for ctx.Current().Type != TokenRParen {
		if ctx.Current().Type == TokenEOF {
			return nil, closeParen(ctx, open)
		}
		if len(params) > 0 {
			if _, err := ctx.Expect(TokenComma, "',' between parameters"); err != nil {
				return nil, err
			}
		}
		param, err := ctx.Expect(TokenIdent, "parameter name")
		if err != nil {
			return nil, err
		}
		if seen[param.Value] {
			return nil, types.NewParseError(param.Pos,
				"duplicate parameter '%s' in definition of '%s'", param.Value, name.Value)
		}
		seen[param.Value] = true
		params = append(params, param.Value)
	}
	if err := closeParen(ctx, open); err != nil {
		return nil, err
	}

	if ctx.Current().Type == TokenAssign {
		ctx.Advance()
	}
	body, err := p.parseExpression(ctx)
	if err != nil {
		return nil, err
	}
	return &FdefNode{Name: name.Value, Params: params, Body: body, Pos: name.Pos}, nil
}

// checkParams rejects duplicate parameter names in the f(a, b) = ... form.
func checkParams(fn string, params []string, args []Node) error {
	seen := make(map[string]bool, len(params))
	for i, name := range params {
		if seen[name] {
			return types.NewParseError(args[i].Position(),
				"duplicate parameter '%s' in definition of '%s'", name, fn)
		}
		seen[name] = true
	}
	return nil
}

// parseConditional parses: if expression then expression else expression.
// Branches extend as far right as possible.
func (p *Parser) parseConditional(ctx *ParserContext) (Node, error) {
	if ctx.Current().Type != TokenIf {
		return p.parseOr(ctx)
	}
	tok := ctx.Advance()

	cond, err := p.parseExpression(ctx)
	if err != nil {
		return nil, err
	}
	ctx.skipNewlines()
	if _, err := ctx.Expect(TokenThen, "'then' in if-expression"); err != nil {
		return nil, err
	}
	then, err := p.parseExpression(ctx)
	if err != nil {
		return nil, err
	}
	ctx.skipNewlines()
	if _, err := ctx.Expect(TokenElse, "'else' in if-expression"); err != nil {
		return nil, err
	}
	els, err := p.parseExpression(ctx)
	if err != nil {
		return nil, err
	}
	return &IfNode{Cond: cond, Then: then, Else: els, Pos: tok.Pos}, nil
}

func (p *Parser) parseOr(ctx *ParserContext) (Node, error) {
	left, err := p.parseAnd(ctx)
	if err != nil {
		return nil, err
	}

	for ctx.Current().Type == TokenOr {
		op := ctx.Advance()
		right, err := p.parseAnd(ctx)
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: OpOr, Left: left, Right: right, Pos: op.Pos}
	}
	return left, nil
}

func (p *Parser) parseAnd(ctx *ParserContext) (Node, error) {
	left, err := p.parseComparison(ctx)
	if err != nil {
		return nil, err
	}

	for ctx.Current().Type == TokenAnd {
		op := ctx.Advance()
		right, err := p.parseComparison(ctx)
		if err != nil {
			return nil, err
		}
		left = &BinaryOpNode{Op: OpAnd, Left: left, Right: right, Pos: op.Pos}
	}
	return left, nil
}

var comparisonOps = map[TokenType]Op{
	TokenEq:  OpEq,
	TokenNeq: OpNeq,
	TokenLt:  OpLt,
	TokenLte: OpLte,
	TokenGt:  OpGt,
	TokenGte: OpGte,
}

// parseComparison parses a single, non-chaining comparison.
func (p *Parser) parseComparison(ctx *ParserContext) (Node, error) {
	left, err := p.parseAdditive(ctx)
	if err != nil {
		return nil, err
	}

	op, ok := comparisonOps[ctx.Current().Type]
	if !ok {
		return left, nil
	}
	tok := ctx.Advance()
	right, err := p.parseAdditive(ctx)
	if err != nil {
		return nil, err
	}
	next := ctx.Current()
	if _, chained := comparisonOps[next.Type]; chained {
		return nil, types.NewParseError(next.Pos, "comparisons cannot be chained; use && to combine them")
	}
	return &BinaryOpNode{Op: op, Left: left, Right: right, Pos: tok.Pos}, nil
}

func (p *Parser) parseAdditive(ctx *ParserContext) (Node, error) {
	left, err := p.parseTerm(ctx)
	if err != nil {
		return nil, err
	}

	for ctx.Current().Type == TokenPlus || ctx.Current().Type == TokenMinus {
		tok := ctx.Advance()
		right, err := p.parseTerm(ctx)
		if err != nil {
			return nil, err
		}
		op := OpPlus
		if tok.Type == TokenMinus {
			op = OpMinus
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right, Pos: tok.Pos}
	}
	return left, nil
}

func (p *Parser) parseTerm(ctx *ParserContext) (Node, error) {
	left, err := p.parseUnary(ctx)
	if err != nil {
		return nil, err
	}

	for ctx.Current().Type == TokenStar || ctx.Current().Type == TokenSlash {
		tok := ctx.Advance()
		right, err := p.parseUnary(ctx)
		if err != nil {
			return nil, err
		}
		op := OpMultiply
		if tok.Type == TokenSlash {
			op = OpDivide
		}
		left = &BinaryOpNode{Op: op, Left: left, Right: right, Pos: tok.Pos}
	}
	return left, nil
}

func (p *Parser) parseUnary(ctx *ParserContext) (Node, error) {
	var op Op
	switch ctx.Current().Type {
	case TokenPlus:
		op = OpPlus
	case TokenMinus:
		op = OpMinus
	case TokenNot:
		op = OpNot
	default:
		return p.parsePrimary(ctx)
	}

	if err := ctx.enter(); err != nil {
		return nil, err
	}
	defer ctx.leave()

	tok := ctx.Advance()
	operand, err := p.parseUnary(ctx)
	if err != nil {
		return nil, err
	}
	return &UnaryOpNode{Op: op, Operand: operand, Pos: tok.Pos}, nil
}

func (p *Parser) parsePrimary(ctx *ParserContext) (Node, error) {
	tok := ctx.Current()

	switch tok.Type {
	case TokenNumber:
		ctx.Advance()
		return &NumberNode{Value: tok.Number, Pos: tok.Pos}, nil
	case TokenIdent:
		ctx.Advance()
		if ctx.Current().Type == TokenLParen {
			args, err := p.parseArgList(ctx)
			if err != nil {
				return nil, err
			}
			return &FcallNode{Name: tok.Value, Args: args, Pos: tok.Pos}, nil
		}
		return &VarRefNode{Name: tok.Value, Pos: tok.Pos}, nil
	case TokenLParen:
		open := ctx.Advance()
		node, err := p.parseExpression(ctx)
		if err != nil {
			return nil, err
		}
		if err := closeParen(ctx, open); err != nil {
			return nil, err
		}
		return node, nil
	case TokenIf:
		return p.parseConditional(ctx)
	case TokenRParen:
		return nil, types.NewParseError(tok.Pos, "unmatched ')'")
	case TokenEOF:
		return nil, types.NewParseError(tok.Pos, "unexpected end of input, expected an operand")
	default:
		return nil, types.NewParseError(tok.Pos, "unexpected %s, expected an operand", tok.describe())
	}
}

// parseArgList parses (expression, expression, ...).
func (p *Parser) parseArgList(ctx *ParserContext) ([]Node, error) {
	open := ctx.Advance()

	var args []Node
	for ctx.Current().Type != TokenRParen {
		if ctx.Current().Type == TokenEOF {
			return nil, closeParen(ctx, open)
		}
		if len(args) > 0 {
			if _, err := ctx.Expect(TokenComma, "',' between arguments"); err != nil {
				return nil, err
			}
		}
		arg, err := p.parseExpression(ctx)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}

	if err := closeParen(ctx, open); err != nil {
		return nil, err
	}
	return args, nil
}

// closeParen consumes the ')' matching open.
func closeParen(ctx *ParserContext, open Token) error {
	tok := ctx.Current()
	if tok.Type == TokenRParen {
		ctx.Advance()
		return nil
	}
	return types.NewParseError(tok.Pos, "unmatched '(' opened at %s: expected ')', got %s", open.Pos, tok.describe())
}
