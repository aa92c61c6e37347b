package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma"
	"github.com/alecthomas/chroma/formatters"
	"github.com/alecthomas/chroma/lexers"
	"github.com/alecthomas/chroma/styles"
	"github.com/fatih/color"

	"github.com/ajkachnic/kal/core"
)

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func printResult(out io.Writer, result core.Result, opts core.Options) {
	switch result.Kind {
	case core.Dumped:
		fmt.Fprintln(out, color.BlueString(result.Dump))
	case core.IR:
		printIR(out, result.RawIR)
	case core.Declared:
		if result.RawIR != "" {
			printIR(out, result.RawIR)
		}
	case core.Value:
		fmt.Fprintln(out, color.GreenString(formatValue(result.Value)))
	}

	if result.Kind != core.Value || !(opts.Verbose || opts.DumpIR) {
		return
	}
	fmt.Fprintln(out)
	printIR(out, result.RawIR)
	if result.OptIR != "" {
		fmt.Fprintln(out, color.MagentaString("; optimized"))
		printIR(out, result.OptIR)
	}
	if result.Assembly != "" {
		fmt.Fprintln(out, color.YellowString("; assembly"))
		fmt.Fprint(out, result.Assembly)
	}
}

// printIR writes LLVM-style IR, highlighted when colour is on.
func printIR(out io.Writer, ir string) {
	if !strings.HasSuffix(ir, "\n") {
		ir += "\n"
	}
	if color.NoColor {
		fmt.Fprint(out, ir)
		return
	}
	if err := highlightIR(out, ir); err != nil {
		fmt.Fprint(out, ir)
	}
}

func highlightIR(out io.Writer, ir string) error {
	lexer := lexers.Get("llvm")
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	iterator, err := lexer.Tokenise(nil, ir)
	if err != nil {
		return err
	}
	return formatters.Get("terminal").Format(out, styles.Get("monokai"), iterator)
}
