package main

import (
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"fortio.org/log"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/ajkachnic/kal/config"
	"github.com/ajkachnic/kal/core"
	"github.com/ajkachnic/kal/jit"
	"github.com/ajkachnic/kal/modules"
)

const version = "0.1.0"

const helpMessage = `kal is an interactive compiler for a Kaleidoscope-style language.

Usage:
  kal [flags]            start the REPL
  kal [flags] <file>     run a file, then exit
  kal [flags] -e <expr>  run an expression, then exit
`

//go:embed basiclib.kal
var basiclib string

var (
	expr       = flag.String("e", "", "evaluate `source` and exit")
	configPath = flag.String("config", "", "config file (default $KAL_CONFIG or ~/.kal.yaml)")
	verbose    = flag.Bool("v", false, "verbose logging and verbose results")
	noOpt      = flag.Bool("no-opt", false, "skip the optimizer")
	optLevel   = flag.Int("O", 0, "optimizer `level` (1-3)")
	dumpIR     = flag.Bool("dump-ir", false, "print IR and assembly of every form")
	noExec     = flag.Bool("no-exec", false, "generate code without running it")
	parseOnly  = flag.Bool("parse-only", false, "only parse, printing the AST")
	noPrelude  = flag.Bool("no-prelude", false, "do not load the basic library")
	showVer    = flag.Bool("version", false, "print the version and exit")
)

func main() {
	log.SetDefaultsForClientTools()
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, helpMessage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVer {
		fmt.Println("kal", version)
		return
	}
	if *verbose {
		log.SetLogLevel(log.Verbose)
	}

	path := *configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	applyFlags(cfg)
	setupColor(cfg.Color)

	out := colorable.NewColorableStdout()
	session, engine, err := newSession(cfg, out)
	if err != nil {
		log.Fatalf("%v", err)
	}
	opts := cfg.Options.Core()

	switch args := flag.Args(); {
	case *expr != "":
		os.Exit(runSource(session, *expr, opts, out))
	case len(args) > 0:
		os.Exit(runFile(session, args[0], opts, out))
	default:
		r := newREPL(session, engine, opts, out)
		if err := r.run(cfg); err != nil {
			log.Fatalf("%v", err)
		}
	}
}

// applyFlags lets explicitly set flags win over the config file.
func applyFlags(cfg *config.Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "v":
			cfg.Options.Verbose = *verbose
		case "no-opt":
			cfg.Options.Optimize = !*noOpt
		case "O":
			cfg.Options.Optimize = *optLevel > 0
			cfg.Options.OptLevel = *optLevel
		case "dump-ir":
			cfg.Options.DumpIR = *dumpIR
		case "no-exec":
			cfg.Options.NoExec = *noExec
		case "parse-only":
			cfg.Options.ParseOnly = *parseOnly
		}
	})
}

func setupColor(mode string) {
	switch mode {
	case config.ColorAlways:
		color.NoColor = false
	case config.ColorNever:
		color.NoColor = true
	default:
		fd := os.Stdout.Fd()
		color.NoColor = os.Getenv("NO_COLOR") != "" ||
			(!isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd))
	}
}

func newSession(cfg *config.Config, out io.Writer) (*core.Session, *jit.Engine, error) {
	engine := jit.New()
	if err := modules.Initialize(engine, out); err != nil {
		return nil, nil, err
	}

	opts := []core.SessionOption{}
	switch {
	case *noPrelude:
	case cfg.Prelude != "":
		opts = append(opts, core.WithPreludeFile(cfg.Prelude))
	default:
		opts = append(opts, core.WithPrelude(basiclib))
	}
	session, err := core.NewSession(engine, opts...)
	return session, engine, err
}

func runFile(session *core.Session, path string, opts core.Options, out io.Writer) int {
	content, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintln(out, color.RedString(err.Error()))
		return 1
	}
	return runSource(session, string(content), opts, out)
}

func runSource(session *core.Session, source string, opts core.Options, out io.Writer) int {
	results, err := session.Evaluate(source, opts)
	for _, result := range results {
		printResult(out, result, opts)
	}
	if err != nil {
		printError(out, source, err)
		return 1
	}
	return 0
}

func printError(out io.Writer, source string, err error) {
	var (
		perr *core.ParseError
		cerr *core.CodegenError
		rerr *jit.RuntimeError
	)
	switch {
	case errors.As(err, &perr):
		fmt.Fprintln(out, color.RedString(perr.ErrorWithContext(source)))
	case errors.As(err, &cerr):
		fmt.Fprintln(out, color.RedString(cerr.ErrorWithContext(source)))
	case errors.As(err, &rerr):
		fmt.Fprintln(out, color.RedString(rerr.Error()))
	case errors.Is(err, core.ErrInternal):
		log.Errf("%v", err)
		fmt.Fprintln(out, color.RedString("Internal error: %v", err))
	default:
		fmt.Fprintln(out, color.RedString(err.Error()))
	}
}
