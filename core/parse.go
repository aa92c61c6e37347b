package core

import (
	"fmt"
	"io"
	"strconv"
)

const anonPrefix = "__anon_"

type ParseError struct {
	Tok    token
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("Parse error at %s: %s", e.Tok.Pos, e.Reason)
}

func (e *ParseError) Pos() position { return e.Tok.Pos }

// ErrorWithContext renders the error, the offending source line and a caret
// under the token.
func (e *ParseError) ErrorWithContext(source string) string {
	return errorWithContext(source, e.Tok.Pos, e.Error())
}

type parser struct {
	tokens []token
	index  int
	ops    *OperatorTable
	anon   func() string
}

// NewParser reads top-level forms from tokens. Binary operator prototypes are
// installed into ops as soon as they are read. anon names the functions that
// wrap bare expressions; nil numbers them from 1.
func NewParser(tokens []token, ops *OperatorTable, anon func() string) parser {
	if anon == nil {
		n := 0
		anon = func() string {
			n++
			return anonPrefix + strconv.Itoa(n)
		}
	}
	if len(tokens) == 0 || tokens[len(tokens)-1].Kind != EOF {
		tokens = append(tokens, token{Kind: EOF})
	}
	return parser{tokens: tokens, ops: ops, anon: anon}
}

func (p *parser) isEOF() bool {
	return p.peek().Kind == EOF
}

func (p *parser) peek() token {
	return p.tokens[p.index]
}

func (p *parser) next() token {
	tok := p.tokens[p.index]

	// EOF is sticky
	if p.index < len(p.tokens)-1 {
		p.index++
	}

	return tok
}

func (p *parser) fail(tok token, format string, args ...any) error {
	return &ParseError{Tok: tok, Reason: fmt.Sprintf(format, args...)}
}

func kindName(kind tokenKind) string {
	switch kind {
	case IDENTIFIER:
		return "identifier"
	case NUMBER_LITERAL:
		return "number"
	default:
		return token{Kind: kind}.String()
	}
}

func (p *parser) expect(kind tokenKind) (token, error) {
	next := p.peek()
	if next.Kind != kind {
		return token{Kind: UNKNOWN}, p.fail(next, "expected %s, got %s", kindName(kind), next)
	}
	return p.next(), nil
}

func (p *parser) expectOperator(symbol string) (token, error) {
	next := p.peek()
	if next.Kind != OPERATOR || next.Payload != symbol {
		return token{Kind: UNKNOWN}, p.fail(next, "expected %s, got %s", symbol, next)
	}
	return p.next(), nil
}

// Next returns the next top-level form: a *Prototype for an extern, or a
// *Function for a definition or a wrapped bare expression. It returns io.EOF
// once the input is exhausted.
func (p *parser) Next() (Node, error) {
	for p.peek().Kind == SEMICOLON {
		p.next()
	}

	switch p.peek().Kind {
	case EOF:
		return nil, io.EOF
	case EXTERN_KEYWORD:
		p.next()
		return p.parsePrototype()
	case DEF_KEYWORD:
		return p.parseDefinition()
	default:
		return p.parseTopLevelExpr()
	}
}

func (p *parser) parseDefinition() (Node, error) {
	p.next()
	proto, err := p.parsePrototype()
	if err != nil {
		return nil, err
	}
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &Function{Proto: proto, Body: body}, nil
}

func (p *parser) parseTopLevelExpr() (Node, error) {
	tok := p.peek()
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &Function{Proto: &Prototype{Name: p.anon(), Params: []string{}, tok: &tok}, Body: body}, nil
}

func (p *parser) parsePrototype() (*Prototype, error) {
	nameTok := p.peek()
	proto := &Prototype{Precedence: DefaultBinaryPrecedence, tok: &nameTok}
	kind := UNKNOWN

	switch {
	case nameTok.Kind == IDENTIFIER:
		p.next()
		proto.Name = nameTok.Payload
		kind = nameTok.Sub
	case nameTok.Kind == BINARY_KEYWORD || nameTok.Kind == UNARY_KEYWORD:
		// "binary %" written with a space
		p.next()
		opTok, err := p.expect(OPERATOR)
		if err != nil {
			return nil, err
		}
		proto.Name = nameTok.Payload + opTok.Payload
		kind = nameTok.Kind
	default:
		return nil, p.fail(nameTok, "expected function name in prototype, got %s", nameTok)
	}
	proto.IsOperator = kind != UNKNOWN

	if kind == BINARY_KEYWORD {
		if p.peek().Kind == NUMBER_LITERAL {
			precTok := p.next()
			prec, err := strconv.Atoi(precTok.Payload)
			if err != nil || prec < MinPrecedence || prec > MaxPrecedence {
				return nil, p.fail(precTok, "invalid precedence %s: must be an integer in %d..%d", precTok.Payload, MinPrecedence, MaxPrecedence)
			}
			proto.Precedence = prec
		}
		p.ops.Set(proto.OperatorSymbol(), proto.Precedence, AssocLeft)
	}

	if _, err := p.expect(LEFT_PAREN); err != nil {
		return nil, err
	}
	proto.Params = []string{}
	for p.peek().Kind == IDENTIFIER && p.peek().Sub == UNKNOWN {
		proto.Params = append(proto.Params, p.next().Payload)
	}
	if _, err := p.expect(RIGHT_PAREN); err != nil {
		return nil, err
	}

	switch {
	case kind == BINARY_KEYWORD && len(proto.Params) != 2:
		return nil, p.fail(nameTok, "binary operator %s takes 2 operands, got %d", proto.Name, len(proto.Params))
	case kind == UNARY_KEYWORD && len(proto.Params) != 1:
		return nil, p.fail(nameTok, "unary operator %s takes 1 operand, got %d", proto.Name, len(proto.Params))
	}
	return proto, nil
}

func (p *parser) parseExpression() (Expr, error) {
	lhs, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	return p.parseBinopRHS(0, lhs)
}

// binopInfo describes the current token. Anything that is not an operator
// gets precedence -1 so that it ends the expression.
func (p *parser) binopInfo() (OperatorInfo, error) {
	tok := p.peek()
	if tok.Kind != OPERATOR {
		return OperatorInfo{Precedence: -1, Assoc: AssocUndefined}, nil
	}
	info, ok := p.ops.Get(tok.Payload)
	if !ok {
		return OperatorInfo{}, p.fail(tok, "undefined operator %s", tok.Payload)
	}
	return info, nil
}

func (p *parser) parseBinopRHS(minPrec int, lhs Expr) (Expr, error) {
	for {
		cur, err := p.binopInfo()
		if err != nil {
			return nil, err
		}
		if cur.Precedence < minPrec {
			return lhs, nil
		}

		opTok := p.next()
		rhs, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}

		next, err := p.binopInfo()
		if err != nil {
			return nil, err
		}
		if cur.Precedence < next.Precedence {
			if rhs, err = p.parseBinopRHS(cur.Precedence+1, rhs); err != nil {
				return nil, err
			}
		} else if cur.Precedence == next.Precedence && next.Assoc == AssocRight {
			if rhs, err = p.parseBinopRHS(cur.Precedence, rhs); err != nil {
				return nil, err
			}
		}

		lhs = &BinaryExpr{Op: opTok.Payload, LHS: lhs, RHS: rhs, tok: &opTok}
	}
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.Kind {
	case IDENTIFIER:
		return p.parseIdentifier()
	case NUMBER_LITERAL:
		return p.parseNumber()
	case LEFT_PAREN:
		return p.parseParen()
	case IF_KEYWORD:
		return p.parseIf()
	case FOR_KEYWORD:
		return p.parseFor()
	case VAR_KEYWORD:
		return p.parseVar()
	case OPERATOR:
		p.next()
		operand, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &UnaryExpr{Op: tok.Payload, Operand: operand, tok: &tok}, nil
	case RIGHT_PAREN:
		return nil, p.fail(tok, "mismatched parenthesis: unexpected )")
	case EOF:
		return nil, p.fail(tok, "expression expected before end of input")
	default:
		return nil, p.fail(tok, "expression expected, got %s", tok)
	}
}

func (p *parser) parseNumber() (Expr, error) {
	tok := p.next()
	v, err := strconv.ParseFloat(tok.Payload, 64)
	if err != nil {
		return nil, p.fail(tok, "malformed number %s", tok.Payload)
	}
	return &NumberExpr{Text: tok.Payload, Value: v, tok: &tok}, nil
}

func (p *parser) parseIdentifier() (Expr, error) {
	tok := p.next()
	if p.peek().Kind != LEFT_PAREN {
		return &VariableExpr{Name: tok.Payload, tok: &tok}, nil
	}

	p.next()
	args := []Expr{}
	if p.peek().Kind != RIGHT_PAREN {
		for {
			arg, err := p.parseExpression()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)

			if p.peek().Kind == RIGHT_PAREN {
				break
			}
			if p.peek().Kind != COMMA {
				return nil, p.fail(p.peek(), "expected ) or , in argument list of %s, got %s", tok.Payload, p.peek())
			}
			p.next()
		}
	}
	p.next()

	return &CallExpr{Callee: tok.Payload, Args: args, tok: &tok}, nil
}

func (p *parser) parseParen() (Expr, error) {
	open := p.next()
	expr, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if p.peek().Kind != RIGHT_PAREN {
		return nil, p.fail(p.peek(), "mismatched parenthesis: expected ) to close ( at %s", open.Pos)
	}
	p.next()
	return expr, nil
}

func (p *parser) parseIf() (Expr, error) {
	tok := p.next()
	cond, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(THEN_KEYWORD); err != nil {
		return nil, err
	}
	then, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(ELSE_KEYWORD); err != nil {
		return nil, err
	}
	els, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &IfExpr{Cond: cond, Then: then, Else: els, tok: &tok}, nil
}

func (p *parser) parseFor() (Expr, error) {
	tok := p.next()
	name, err := p.expect(IDENTIFIER)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOperator("="); err != nil {
		return nil, err
	}
	start, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(COMMA); err != nil {
		return nil, err
	}
	end, err := p.parseExpression()
	if err != nil {
		return nil, err
	}

	var step Expr
	if p.peek().Kind == COMMA {
		p.next()
		if step, err = p.parseExpression(); err != nil {
			return nil, err
		}
	}

	if _, err := p.expect(IN_KEYWORD); err != nil {
		return nil, err
	}
	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &ForExpr{Var: name.Payload, Start: start, End: end, Step: step, Body: body, tok: &tok}, nil
}

func (p *parser) parseVar() (Expr, error) {
	tok := p.next()

	// at least one binding
	if p.peek().Kind != IDENTIFIER {
		return nil, p.fail(p.peek(), "expected identifier after var, got %s", p.peek())
	}

	bindings := []Binding{}
	for p.peek().Kind != IN_KEYWORD {
		name, err := p.expect(IDENTIFIER)
		if err != nil {
			return nil, err
		}

		var init Expr
		if next := p.peek(); next.Kind == OPERATOR && next.Payload == "=" {
			p.next()
			if init, err = p.parseExpression(); err != nil {
				return nil, err
			}
		}
		bindings = append(bindings, Binding{Name: name.Payload, Init: init})

		if p.peek().Kind == COMMA {
			p.next()
		}
	}
	p.next()

	body, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	return &VarInExpr{Bindings: bindings, Body: body, tok: &tok}, nil
}
