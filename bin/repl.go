package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	basic "github.com/chzyer/readline"
	"github.com/fatih/color"
	"github.com/reeflective/readline"

	"github.com/ajkachnic/kal/config"
	"github.com/ajkachnic/kal/core"
	"github.com/ajkachnic/kal/jit"
)

const replHelp = `
  exit, quit:     Stop and exit the program.
  help, ?:        Print this message.
  options:        Print the current settings.
  <option_name>:  Toggle a setting (optimize, dumpir, noexec, parseonly, verbose).
  reset:          Rebuild the module from the accepted definitions.
  ops:            List the binary operators and their precedence.
  builtins:       List the linked native functions and constants.
  <command>:      Anything else is evaluated. End a line with \ to continue it.
`

var optionNames = []string{"optimize", "dumpir", "noexec", "parseonly", "verbose"}

type repl struct {
	session *core.Session
	engine  *jit.Engine
	opts    core.Options
	out     io.Writer
	prompt  string

	// lines of a command continued with a trailing backslash
	pending []string
}

func newREPL(session *core.Session, engine *jit.Engine, opts core.Options, out io.Writer) *repl {
	return &repl{session: session, engine: engine, opts: opts, out: out, prompt: "K> "}
}

func (r *repl) currentPrompt() string {
	if len(r.pending) > 0 {
		return strings.Repeat(" ", max(len(r.prompt)-2, 0)) + "> "
	}
	return r.prompt
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// lineReader is the part of a line editor the loop needs.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

type fancyReader struct {
	shell *readline.Shell
}

func (f *fancyReader) Readline() (string, error) { return f.shell.Readline() }
func (f *fancyReader) Close() error              { return nil }

type basicReader struct {
	instance *basic.Instance
	r        *repl
}

func (b *basicReader) Readline() (string, error) {
	b.instance.SetPrompt(b.r.currentPrompt())
	line, err := b.instance.Readline()
	if errors.Is(err, basic.ErrInterrupt) {
		// drop the current line, keep going
		b.r.pending = nil
		return "", nil
	}
	return line, err
}

func (b *basicReader) Close() error { return b.instance.Close() }

func (r *repl) newReader(cfg *config.Config) (lineReader, error) {
	if cfg.Editor == config.EditorBasic {
		items := []basic.PrefixCompleterInterface{}
		for _, cmd := range append([]string{"exit", "quit", "help", "options", "reset", "ops", "builtins", "def", "extern"}, optionNames...) {
			items = append(items, basic.PcItem(cmd))
		}
		instance, err := basic.NewEx(&basic.Config{
			Prompt:          r.prompt,
			HistoryFile:     cfg.HistoryFile,
			AutoComplete:    basic.NewPrefixCompleter(items...),
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
		})
		if err != nil {
			return nil, err
		}
		return &basicReader{instance: instance, r: r}, nil
	}

	rl := readline.NewShell()
	rl.Prompt.Primary(r.currentPrompt)
	rl.SyntaxHighlighter = highlight
	return &fancyReader{shell: rl}, nil
}

func (r *repl) run(cfg *config.Config) error {
	if cfg.Prompt != "" {
		r.prompt = cfg.Prompt
	}
	rl, err := r.newReader(cfg)
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintln(r.out, color.YellowString("Type help or a command to be interpreted"))
	for {
		text, err := rl.Readline()
		if err == io.EOF {
			return nil
		} else if err != nil {
			fmt.Fprintln(r.out, err)
			return nil
		}
		if r.handle(text) {
			return nil
		}
	}
}

// handle processes one input line and reports whether the REPL should stop.
func (r *repl) handle(line string) bool {
	if strings.HasSuffix(line, "\\") {
		r.pending = append(r.pending, strings.TrimSuffix(line, "\\"))
		return false
	}
	if len(r.pending) > 0 {
		line = strings.Join(append(r.pending, line), "\n")
		r.pending = nil
	}

	command := strings.TrimSpace(line)
	switch command {
	case "":
	case "exit", "quit":
		return true
	case "help", "?":
		fmt.Fprintln(r.out, color.YellowString(replHelp))
	case "options":
		fmt.Fprintln(r.out, color.YellowString(r.describeOptions()))
	case "reset":
		if err := r.session.Reset(r.session.History()); err != nil {
			printError(r.out, line, err)
			break
		}
		fmt.Fprintln(r.out, color.YellowString("module rebuilt from %d definitions", len(r.session.History())))
	case "ops":
		ops := r.session.Operators()
		for _, op := range ops.Operators() {
			info, _ := ops.Get(op)
			fmt.Fprintf(r.out, "%s\t%d\t%s\n", op, info.Precedence, info.Assoc)
		}
	case "builtins":
		fmt.Fprintln(r.out, "natives:  ", strings.Join(r.engine.Natives(), " "))
		fmt.Fprintln(r.out, "constants:", strings.Join(r.engine.Constants(), " "))
	default:
		if r.toggle(command) {
			break
		}
		results, err := r.session.Evaluate(line, r.opts)
		for _, result := range results {
			printResult(r.out, result, r.opts)
		}
		if err != nil {
			printError(r.out, line, err)
		}
	}
	return false
}

func (r *repl) option(name string) *bool {
	switch name {
	case "optimize":
		return &r.opts.Optimize
	case "dumpir":
		return &r.opts.DumpIR
	case "noexec":
		return &r.opts.NoExec
	case "parseonly":
		return &r.opts.ParseOnly
	case "verbose":
		return &r.opts.Verbose
	}
	return nil
}

func (r *repl) toggle(name string) bool {
	opt := r.option(name)
	if opt == nil {
		return false
	}
	*opt = !*opt
	fmt.Fprintf(r.out, "%s = %t\n", name, *opt)
	return true
}

func (r *repl) describeOptions() string {
	parts := make([]string, len(optionNames))
	for i, name := range optionNames {
		parts[i] = fmt.Sprintf("%s: %t", name, *r.option(name))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
