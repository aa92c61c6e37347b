package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"fortio.org/log"

	"github.com/ajkachnic/kal/backend"
)

type Options struct {
	Optimize bool
	// optimizer level used when Optimize is set; 0 means 2
	OptLevel  int
	DumpIR    bool
	NoExec    bool
	ParseOnly bool
	Verbose   bool
}

func DefaultOptions() Options {
	return Options{Optimize: true, OptLevel: 2}
}

type ResultKind int

const (
	// Dumped carries the AST dump of a form that was only parsed.
	Dumped ResultKind = iota
	// IR carries the generated IR of a form that was not executed.
	IR
	// Declared is a definition or extern; it has no value.
	Declared
	// Value is the result of running a bare expression.
	Value
)

func (k ResultKind) String() string {
	switch k {
	case Dumped:
		return "dumped"
	case IR:
		return "ir"
	case Declared:
		return "declared"
	case Value:
		return "value"
	default:
		return "<unknown>"
	}
}

type Result struct {
	Node  Node
	Kind  ResultKind
	Value float64

	Dump     string
	RawIR    string
	OptIR    string
	Assembly string
}

// Session is one interactive compilation context: an operator table, a
// growing module and the history of definitions accepted into it. A Session
// is not safe for concurrent use.
type Session struct {
	backend    backend.Backend
	ops        *OperatorTable
	codegen    *CodeGenerator
	history    []Node
	anonCount  int
	moduleName string

	prelude     string
	preludeName string
}

type SessionOption func(*Session) error

// WithPrelude evaluates source at construction and after every Reset.
func WithPrelude(source string) SessionOption {
	return func(s *Session) error {
		s.prelude = source
		s.preludeName = "<prelude>"
		return nil
	}
}

// WithPreludeFile reads a prelude from path. A missing file is logged and
// skipped.
func WithPreludeFile(path string) SessionOption {
	return func(s *Session) error {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			log.Warnf("prelude %s not found, continuing without it", path)
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading prelude: %w", err)
		}
		s.prelude = string(data)
		s.preludeName = path
		return nil
	}
}

func WithModuleName(name string) SessionOption {
	return func(s *Session) error {
		s.moduleName = name
		return nil
	}
}

func NewSession(b backend.Backend, opts ...SessionOption) (*Session, error) {
	s := &Session{
		backend:    b,
		ops:        NewOperatorTable(),
		moduleName: "kal",
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if err := s.Reset(nil); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) Operators() *OperatorTable { return s.ops }

func (s *Session) Module() backend.Module { return s.codegen.Module() }

// History returns the definitions and externs accepted so far, oldest first.
// Prelude forms and bare expressions are not part of it.
func (s *Session) History() []Node {
	history := make([]Node, len(s.history))
	copy(history, s.history)
	return history
}

// Reset replaces the module with a fresh one, runs the prelude again and
// regenerates history into it. Operators stay defined. If the prelude or any
// replayed form fails, the previous module and history are kept.
func (s *Session) Reset(history []Node) error {
	prevCodegen, prevHistory, prevOps := s.codegen, s.history, s.ops.Clone()
	s.codegen = NewCodeGenerator(s.backend, s.moduleName, s.ops)
	s.history = nil

	if err := s.rebuild(history); err != nil {
		s.codegen, s.history = prevCodegen, prevHistory
		s.ops.Restore(prevOps)
		return err
	}
	log.LogVf("session reset, %d forms replayed", len(s.history))
	return nil
}

func (s *Session) rebuild(history []Node) error {
	if s.prelude != "" {
		if _, err := s.evaluate(s.prelude, DefaultOptions(), false); err != nil {
			return fmt.Errorf("prelude %s: %w", s.preludeName, err)
		}
		log.LogVf("prelude %s loaded", s.preludeName)
	}

	for _, node := range history {
		if _, err := s.codegen.Generate(node); err != nil {
			return fmt.Errorf("replaying %s: %w", node, err)
		}
		s.history = append(s.history, node)
	}
	return nil
}

func (s *Session) nextAnon() string {
	s.anonCount++
	return anonPrefix + strconv.Itoa(s.anonCount)
}

// Evaluate runs every top-level form of source in order and returns one
// result per form. The first error stops evaluation; the results of the forms
// before it are still returned and their effects on the module remain.
func (s *Session) Evaluate(source string, opts Options) ([]Result, error) {
	return s.evaluate(source, opts, true)
}

func (s *Session) evaluate(source string, opts Options, record bool) ([]Result, error) {
	tokenizer := NewTokenizer(source)
	parser := NewParser(tokenizer.Tokenize(), s.ops, s.nextAnon)

	results := []Result{}
	for {
		node, err := parser.Next()
		if errors.Is(err, io.EOF) {
			return results, nil
		}
		if err != nil {
			return results, err
		}
		log.LogVf("parsed %s", node)

		result, err := s.evaluateForm(node, opts, record)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
}

func isAnonymous(node Node) bool {
	fn, ok := node.(*Function)
	return ok && fn.Proto.IsAnonymous()
}

func (s *Session) evaluateForm(node Node, opts Options, record bool) (Result, error) {
	if opts.ParseOnly {
		return Result{Node: node, Kind: Dumped, Dump: Dump(node)}, nil
	}

	fn, err := s.codegen.Generate(node)
	if err != nil {
		return Result{}, err
	}
	raw := fn.String()
	log.LogVf("generated @%s", fn.Name())

	anon := isAnonymous(node)
	if anon {
		// wrappers only live for one evaluation
		defer s.backend.Erase(fn)
	} else if record {
		s.history = append(s.history, node)
	}

	switch {
	case opts.NoExec:
		return Result{Node: node, Kind: IR, RawIR: raw}, nil
	case !anon:
		result := Result{Node: node, Kind: Declared}
		if opts.DumpIR || opts.Verbose {
			result.RawIR = raw
		}
		return result, nil
	}
	return s.run(node, fn, raw, opts)
}

func (s *Session) run(node Node, fn backend.Function, raw string, opts Options) (Result, error) {
	result := Result{Node: node, Kind: Value}
	if opts.DumpIR || opts.Verbose {
		result.RawIR = raw
	}
	module := s.codegen.Module()

	if err := s.backend.Verify(module); err != nil {
		return result, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if opts.Optimize {
		level := opts.OptLevel
		if level <= 0 {
			level = 2
		}
		if err := s.backend.Optimize(module, level); err != nil {
			return result, fmt.Errorf("%w: %v", ErrInternal, err)
		}
		log.LogVf("optimized module %s at level %d", module.Name(), level)
		if opts.DumpIR || opts.Verbose {
			result.OptIR = fn.String()
		}
	}

	img, err := s.backend.Load(module)
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	log.LogVf("loaded module %s", module.Name())
	defer func() {
		if err := s.backend.Unload(img); err != nil {
			log.Errf("unloading module %s: %v", module.Name(), err)
			return
		}
		log.LogVf("unloaded module %s", module.Name())
	}()

	if opts.DumpIR {
		result.Assembly = img.Assembly()
	}
	entry, err := img.Entry(fn.Name())
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	v, err := entry()
	if err != nil {
		return result, err
	}
	result.Value = v
	return result, nil
}
