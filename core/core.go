package core

import (
	"errors"
	"io"
)

// Parse reads every top-level form of source using a fresh operator table.
func Parse(source string) ([]Node, error) {
	return ParseWith(source, NewOperatorTable())
}

// ParseWith reads every top-level form of source. Operators defined by
// binary prototypes are added to ops as they are read.
func ParseWith(source string, ops *OperatorTable) ([]Node, error) {
	tokenizer := NewTokenizer(source)
	tokens := tokenizer.Tokenize()

	parser := NewParser(tokens, ops, nil)
	nodes := []Node{}
	for {
		node, err := parser.Next()
		if errors.Is(err, io.EOF) {
			return nodes, nil
		}
		if err != nil {
			return nodes, err
		}
		nodes = append(nodes, node)
	}
}
