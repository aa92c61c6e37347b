package main

import (
	"strings"

	"github.com/fatih/color"

	"github.com/ajkachnic/kal/core"
)

var (
	keywordColor  = color.New(color.FgBlue, color.Bold)
	numberColor   = color.New(color.FgMagenta)
	operatorColor = color.New(color.FgYellow)
	userOpColor   = color.New(color.FgCyan)
	commentColor  = color.New(color.FgHiBlack)
)

func highlight(line []rune) string {
	tokenizer := core.NewTokenizer(string(line))
	tokens := tokenizer.Tokenize()

	builder := strings.Builder{}

	i := 0
	for _, token := range tokens {
		if token.Pos.Offset > i {
			builder.WriteString(gap(line[i:token.Pos.Offset]))
			i = token.Pos.Offset
		}
		if token.Kind == core.EOF {
			break
		}

		text := string(line[token.Pos.Offset : token.Pos.Offset+int(token.Length)])
		switch token.Kind {
		case core.NUMBER_LITERAL:
			builder.WriteString(numberColor.Sprint(text))
		case core.IDENTIFIER:
			if token.Sub != core.UNKNOWN {
				builder.WriteString(userOpColor.Sprint(text))
			} else {
				builder.WriteString(text)
			}
		case core.OPERATOR:
			builder.WriteString(operatorColor.Sprint(text))
		case core.DEF_KEYWORD, core.EXTERN_KEYWORD, core.IF_KEYWORD, core.THEN_KEYWORD,
			core.ELSE_KEYWORD, core.FOR_KEYWORD, core.IN_KEYWORD, core.VAR_KEYWORD,
			core.BINARY_KEYWORD, core.UNARY_KEYWORD:
			builder.WriteString(keywordColor.Sprint(text))
		default:
			builder.WriteString(text)
		}

		i = token.Pos.Offset + int(token.Length)
	}
	if i < len(line) {
		builder.WriteString(gap(line[i:]))
	}

	return builder.String()
}

// gap is the text between two tokens: whitespace, possibly a comment.
func gap(text []rune) string {
	s := string(text)
	if idx := strings.IndexRune(s, '#'); idx >= 0 {
		return s[:idx] + commentColor.Sprint(s[idx:])
	}
	return s
}
