package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rivo/uniseg"
)

// ErrInternal marks failures that valid input should never cause, such as
// generated IR that does not verify.
var ErrInternal = errors.New("internal error")

type CodegenError struct {
	Node   Node
	Reason string
}

func (e *CodegenError) Error() string {
	if e.Node == nil {
		return "Codegen error: " + e.Reason
	}
	return fmt.Sprintf("Codegen error at %s: %s", e.Node.pos(), e.Reason)
}

func (e *CodegenError) Pos() position {
	if e.Node == nil {
		return position{}
	}
	return e.Node.pos()
}

func (e *CodegenError) ErrorWithContext(source string) string {
	return errorWithContext(source, e.Pos(), e.Error())
}

// errorWithContext appends the source line at pos and a caret under the
// column. The caret offset is measured in terminal cells.
func errorWithContext(source string, pos position, msg string) string {
	lines := strings.Split(source, "\n")
	if pos.line < 1 || pos.line > len(lines) {
		return msg
	}
	line := strings.TrimRight(lines[pos.line-1], "\r")

	runes := []rune(line)
	col := pos.col - 1
	if col < 0 {
		col = 0
	}
	if col > len(runes) {
		col = len(runes)
	}
	width := uniseg.StringWidth(string(runes[:col]))

	return fmt.Sprintf("%s\n  %s\n  %s^", msg, line, strings.Repeat(" ", width))
}
