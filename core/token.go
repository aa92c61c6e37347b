package core

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	UNKNOWN tokenKind = iota
	EOF

	// punctuation
	COMMA
	LEFT_PAREN
	RIGHT_PAREN
	SEMICOLON
	PUNCTUATOR

	// any single character that is not a letter, digit, space or punctuator
	OPERATOR

	// keywords
	DEF_KEYWORD
	EXTERN_KEYWORD
	IF_KEYWORD
	THEN_KEYWORD
	ELSE_KEYWORD
	FOR_KEYWORD
	IN_KEYWORD
	VAR_KEYWORD
	BINARY_KEYWORD
	UNARY_KEYWORD

	// literals
	IDENTIFIER
	NUMBER_LITERAL
)

// punctuators never act as operators
const punctuators = "()[]{};,:_'\""

var keywords = map[string]tokenKind{
	"def":    DEF_KEYWORD,
	"extern": EXTERN_KEYWORD,
	"if":     IF_KEYWORD,
	"then":   THEN_KEYWORD,
	"else":   ELSE_KEYWORD,
	"for":    FOR_KEYWORD,
	"in":     IN_KEYWORD,
	"var":    VAR_KEYWORD,
	"binary": BINARY_KEYWORD,
	"unary":  UNARY_KEYWORD,
}

type position struct {
	line     int
	col      int
	filename string
	Offset   int
}

func (p position) String() string {
	return fmt.Sprintf("[%d:%d]", p.line, p.col)
}

func (p position) Line() int   { return p.line }
func (p position) Column() int { return p.col }

type token struct {
	Kind    tokenKind
	Pos     position
	Payload string
	Length  uint
	// BINARY_KEYWORD or UNARY_KEYWORD for operator identifiers such as "binary%"
	Sub tokenKind
}

func (t token) String() string {
	switch t.Kind {
	case EOF:
		return "end of input"
	case COMMA:
		return ","
	case LEFT_PAREN:
		return "("
	case RIGHT_PAREN:
		return ")"
	case SEMICOLON:
		return ";"
	case PUNCTUATOR:
		return fmt.Sprintf("punctuator(%s)", t.Payload)
	case OPERATOR:
		return fmt.Sprintf("operator(%s)", t.Payload)

	case DEF_KEYWORD:
		return "def"
	case EXTERN_KEYWORD:
		return "extern"
	case IF_KEYWORD:
		return "if"
	case THEN_KEYWORD:
		return "then"
	case ELSE_KEYWORD:
		return "else"
	case FOR_KEYWORD:
		return "for"
	case IN_KEYWORD:
		return "in"
	case VAR_KEYWORD:
		return "var"
	case BINARY_KEYWORD:
		return "binary"
	case UNARY_KEYWORD:
		return "unary"

	case IDENTIFIER:
		return fmt.Sprintf("var(%s)", t.Payload)
	case NUMBER_LITERAL:
		return fmt.Sprintf("number(%s)", t.Payload)

	default:
		return "<unknown>"
	}
}

type tokenizer struct {
	source   []rune
	index    int
	filename string
	line     int
	col      int
}

func NewTokenizer(source string) tokenizer {
	return tokenizer{
		source:   []rune(source),
		index:    0,
		filename: "<input>",
		line:     1,
		col:      0,
	}
}

func (t *tokenizer) isEOF() bool {
	return t.index >= len(t.source)
}

func (t *tokenizer) next() rune {
	char := t.source[t.index]

	// ensure we don't go past EOF
	if t.index < len(t.source) {
		t.index++
	}

	if char == '\n' {
		t.line++
		t.col = 0
	} else {
		t.col++
	}

	return char
}

func (t *tokenizer) peek() rune {
	return t.source[t.index]
}

func (t *tokenizer) readUntil(ch rune) string {
	read := []rune{}
	for !t.isEOF() && t.peek() != ch {
		read = append(read, t.next())
	}

	return string(read)
}

func (t *tokenizer) readIdentifier() string {
	ident := []rune{}
	for !t.isEOF() {
		ch := t.peek()
		if unicode.IsLetter(ch) || unicode.IsDigit(ch) {
			ident = append(ident, t.next())
		} else {
			break
		}
	}

	return string(ident)
}

// readNumber takes every digit and dot; "1.2.3" is rejected by the parser.
func (t *tokenizer) readNumber() string {
	literal := []rune{}

	for !t.isEOF() {
		ch := t.peek()
		if unicode.IsDigit(ch) || ch == '.' {
			literal = append(literal, t.next())
		} else {
			break
		}
	}

	return string(literal)
}

func (t *tokenizer) pos() position {
	offset := t.index
	if offset > 0 {
		offset -= 1
	}
	return position{
		line:     t.line,
		col:      t.col,
		Offset:   offset,
		filename: t.filename,
	}
}

func isOperatorChar(ch rune) bool {
	return !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && !unicode.IsSpace(ch) &&
		!strings.ContainsRune(punctuators, ch) && ch != '#'
}

func (t *tokenizer) nextToken() token {
	ch := t.next()

	switch {
	case ch == ',':
		return token{Kind: COMMA, Pos: t.pos(), Payload: ",", Length: 1}
	case ch == '(':
		return token{Kind: LEFT_PAREN, Pos: t.pos(), Payload: "(", Length: 1}
	case ch == ')':
		return token{Kind: RIGHT_PAREN, Pos: t.pos(), Payload: ")", Length: 1}
	case ch == ';':
		return token{Kind: SEMICOLON, Pos: t.pos(), Payload: ";", Length: 1}
	case strings.ContainsRune(punctuators, ch):
		return token{Kind: PUNCTUATOR, Pos: t.pos(), Payload: string(ch), Length: 1}
	case unicode.IsDigit(ch) || ch == '.':
		pos := t.pos()
		payload := string(ch) + t.readNumber()
		return token{Kind: NUMBER_LITERAL, Pos: pos, Payload: payload, Length: runeLen(payload)}
	case unicode.IsLetter(ch):
		pos := t.pos()
		payload := string(ch) + t.readIdentifier()
		kind, ok := keywords[payload]
		if !ok {
			return token{Kind: IDENTIFIER, Pos: pos, Payload: payload, Length: runeLen(payload)}
		}
		if (kind == BINARY_KEYWORD || kind == UNARY_KEYWORD) && !t.isEOF() && isOperatorChar(t.peek()) {
			payload += string(t.next())
			return token{Kind: IDENTIFIER, Sub: kind, Pos: pos, Payload: payload, Length: runeLen(payload)}
		}
		return token{Kind: kind, Pos: pos, Payload: payload, Length: runeLen(payload)}
	default:
		return token{Kind: OPERATOR, Pos: t.pos(), Payload: string(ch), Length: 1}
	}
}

func (t *tokenizer) skipSpaceAndComments() {
	for !t.isEOF() {
		switch {
		case unicode.IsSpace(t.peek()):
			t.next()
		case t.peek() == '#':
			t.readUntil('\n')
		default:
			return
		}
	}
}

// Tokenize returns every token of the source followed by a single EOF.
func (t *tokenizer) Tokenize() []token {
	tokens := []token{}

	t.skipSpaceAndComments()
	for !t.isEOF() {
		tokens = append(tokens, t.nextToken())
		t.skipSpaceAndComments()
	}

	// EOF sits one column past the last character
	eof := t.pos()
	eof.col++
	eof.Offset = t.index
	tokens = append(tokens, token{Kind: EOF, Pos: eof})

	return tokens
}

func runeLen(s string) uint {
	return uint(utf8.RuneCountInString(s))
}
