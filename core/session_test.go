package core

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ajkachnic/kal/jit"
	"github.com/ajkachnic/kal/modules"
)

func newTestSession(t *testing.T, opts ...SessionOption) (*Session, *jit.Engine, *bytes.Buffer) {
	t.Helper()
	engine := jit.New()
	out := &bytes.Buffer{}
	if err := modules.Initialize(engine, out); err != nil {
		t.Fatal(err)
	}
	s, err := NewSession(engine, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return s, engine, out
}

// lastValue evaluates source and returns the value of its last form.
func lastValue(t *testing.T, s *Session, source string) float64 {
	t.Helper()
	results, err := s.Evaluate(source, DefaultOptions())
	if err != nil {
		t.Fatalf("Evaluate(%q) failed: %v", source, err)
	}
	if len(results) == 0 {
		t.Fatalf("Evaluate(%q) returned no results", source)
	}
	last := results[len(results)-1]
	if last.Kind != Value {
		t.Fatalf("Evaluate(%q): last form is %s, not a value", source, last.Kind)
	}
	return last.Value
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		setup    string
		input    string
		expected float64
	}{
		{"arithmetic", "", "3+3*4", 15},
		{"subtraction chain", "", "2+ 3-4", 1},
		{"comparison", "", "(1 < 2) + (2 < 1)", 1},
		{"calls", "def adder(x y) x+y", "adder(5,4)+adder(3,2)", 14},
		{"unary operators", "def unary!(a) 0-a\ndef unary^(a) a*a", "!^10", -100},
		{"unary operators reversed", "def unary!(a) 0-a\ndef unary^(a) a*a", "^!10", 100},
		{"binary operator", "def binary%(a b) a-b", "100 % 5.5", 94.5},
		{"operator precedence", "def binary% 77(a b) a - b", "2 * 10 % 5 * 10", 100},
		{"default var", "", "var x in x", 0},
		{"var bindings", "", "var a = 2, b = a * 3 in a + b", 8},
		{"var shadows parameter", "def f(x) var x = x + 1 in x * 2", "f(4)", 10},
		{"assignment", "def g(x) var y in (y = x * 2) + y", "g(3)", 12},
		{"chained assignment", "def h() var x, y in x = y = 10 + 5", "h()", 15},
		{"for loop", "def oddlessthan(n) for x=1.0, x<n, x+2 in x", "oddlessthan(100)", 101},
		{"for loop without step", "def count(n) var total in (for i = 0, i < n in total = total + i) * 0 + total", "count(5)", 10},
		{"if", "def max(a b) if a < b then b else a", "max(3, 7) + max(9, 2)", 16},
		{"recursion", "def fib(n) if n < 3 then 1 else fib(n-1) + fib(n-2)", "fib(10)", 55},
		{"mutual recursion", "extern odd(n)\ndef even(n) if n < 1 then 1 else odd(n-1)\ndef odd(n) if n < 1 then 0 else even(n-1)", "even(10) + odd(7)", 2},
		{"globals", "", "pi * 0 + e * 0 + 1", 1},
		{"natives", "extern ceil(x)\nextern pow(x y)", "ceil(4.5) + pow(2, 10)", 1029},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, engine, _ := newTestSession(t)
			if tt.setup != "" {
				if _, err := s.Evaluate(tt.setup, DefaultOptions()); err != nil {
					t.Fatalf("setup failed: %v", err)
				}
			}
			if got := lastValue(t, s, tt.input); got != tt.expected {
				t.Errorf("%q: expected %v, got %v", tt.input, tt.expected, got)
			}
			if live := engine.LiveImages(); live != 0 {
				t.Errorf("expected every image to be unloaded, %d live", live)
			}
		})
	}
}

func TestEvaluateWithoutOptimizer(t *testing.T) {
	s, _, _ := newTestSession(t)
	opts := Options{}
	results, err := s.Evaluate("def oddlessthan(n) for x=1.0, x<n, x+2 in x\noddlessthan(100)", opts)
	if err != nil {
		t.Fatal(err)
	}
	if got := results[1].Value; got != 101 {
		t.Errorf("expected 101, got %v", got)
	}
}

func TestEvaluateOutput(t *testing.T) {
	s, _, out := newTestSession(t)
	source := "extern putchard(c)\nextern printd(x)\nputchard(72) + putchard(105) + putchard(10) + printd(2.5)"
	if got := lastValue(t, s, source); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if out.String() != "Hi\n2.5\n" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRedefinition(t *testing.T) {
	s, _, _ := newTestSession(t)

	if _, err := s.Evaluate("extern foo(a b)", DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Evaluate("def foo(a b) a*b", DefaultOptions()); err != nil {
		t.Fatalf("def after extern: %v", err)
	}

	var cerr *CodegenError
	_, err := s.Evaluate("def foo(a b) a+b", DefaultOptions())
	if !errors.As(err, &cerr) {
		t.Errorf("expected CodegenError for a second def, got %v", err)
	}
	_, err = s.Evaluate("def foo(a) a", DefaultOptions())
	if !errors.As(err, &cerr) {
		t.Errorf("expected CodegenError for a different arity, got %v", err)
	}

	if got := lastValue(t, s, "foo(3, 4)"); got != 12 {
		t.Errorf("expected the first definition to survive, got %v", got)
	}
}

func TestResetRecoversHistory(t *testing.T) {
	s, _, _ := newTestSession(t)

	if _, err := s.Evaluate("def sq(x) x*x\ndef binary& 6 (a b) if a then b else 0", DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Evaluate("def sq(x) x", DefaultOptions()); err == nil {
		t.Fatal("expected a redefinition error")
	}
	if _, err := s.Evaluate("def bad(x) nope(x)", DefaultOptions()); err == nil {
		t.Fatal("expected an undefined function error")
	}

	history := s.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 forms in history, got %d", len(history))
	}
	if err := s.Reset(history); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	if got := lastValue(t, s, "sq(3) & sq(4)"); got != 16 {
		t.Errorf("expected 16, got %v", got)
	}
	if _, ok := s.Module().Lookup("bad"); ok {
		t.Errorf("bad should not exist after reset")
	}
}

func TestResetFailureKeepsSession(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.Evaluate("def sq(x) x*x", DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	before := s.Module()

	broken, err := ParseWith("def binary@ 50 (a b) a\ndef bad(x) nope", NewOperatorTable())
	if err != nil {
		t.Fatal(err)
	}
	var cerr *CodegenError
	if err := s.Reset(broken); !errors.As(err, &cerr) {
		t.Fatalf("expected CodegenError, got %v", err)
	}

	if s.Module() != before {
		t.Errorf("a failed reset should keep the previous module")
	}
	if len(s.History()) != 1 {
		t.Errorf("expected the previous history, got %d forms", len(s.History()))
	}
	if _, ok := s.Operators().Get("@"); ok {
		t.Errorf("operators registered by a failed reset should be rolled back")
	}
	if got := lastValue(t, s, "sq(5)"); got != 25 {
		t.Errorf("expected 25, got %v", got)
	}
}

func TestResetEmpty(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.Evaluate("def one() 1\ndef binary~ 15 (a b) a + b", DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	if err := s.Reset(nil); err != nil {
		t.Fatal(err)
	}

	_, err := s.Evaluate("one()", DefaultOptions())
	var cerr *CodegenError
	if !errors.As(err, &cerr) {
		t.Errorf("expected one to be gone, got %v", err)
	}
	if len(s.History()) != 0 {
		t.Errorf("history should be empty")
	}
	// operators outlive the module
	if _, ok := s.Operators().Get("~"); !ok {
		t.Errorf("expected ~ to stay defined")
	}
}

func TestEvaluateStopsAtFirstError(t *testing.T) {
	s, _, _ := newTestSession(t)
	results, err := s.Evaluate("1 + 1; def ok(x) x; nope(1); def never(x) x", DefaultOptions())
	if err == nil {
		t.Fatal("expected an error")
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results before the error, got %d", len(results))
	}
	if results[0].Value != 2 || results[1].Kind != Declared {
		t.Errorf("unexpected results %+v", results)
	}
	if _, ok := s.Module().Lookup("ok"); !ok {
		t.Errorf("ok should have been defined")
	}
	if _, ok := s.Module().Lookup("never"); ok {
		t.Errorf("never should not have been defined")
	}

	var perr *ParseError
	if _, err := s.Evaluate("def unary!(x y) 0", DefaultOptions()); !errors.As(err, &perr) {
		t.Errorf("expected ParseError, got %v", err)
	}
	if _, err := s.Evaluate("def binary$(a) a", DefaultOptions()); !errors.As(err, &perr) {
		t.Errorf("expected ParseError, got %v", err)
	}
}

func TestAnonymousFunctionsAreErased(t *testing.T) {
	s, _, _ := newTestSession(t)
	for _, opts := range []Options{DefaultOptions(), {NoExec: true}} {
		results, err := s.Evaluate("1 + 2", opts)
		if err != nil {
			t.Fatal(err)
		}
		name := results[0].Node.(*Function).Proto.Name
		if !strings.HasPrefix(name, "__anon_") {
			t.Errorf("unexpected wrapper name %s", name)
		}
		if _, ok := s.Module().Lookup(name); ok {
			t.Errorf("%s should have been erased", name)
		}
	}
	if len(s.History()) != 0 {
		t.Errorf("bare expressions should not be recorded")
	}
}

func TestRuntimeError(t *testing.T) {
	s, _, _ := newTestSession(t)
	if _, err := s.Evaluate("def loop(x) loop(x + 1)", DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	_, err := s.Evaluate("loop(0)", Options{})
	var rerr *jit.RuntimeError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected RuntimeError, got %v", err)
	}
	if !errors.Is(err, jit.ErrStackOverflow) {
		t.Errorf("expected a stack overflow, got %v", err)
	}

	_, err = s.Evaluate("extern missing(x)\nmissing(1)", DefaultOptions())
	if !errors.Is(err, jit.ErrUnresolved) {
		t.Errorf("expected ErrUnresolved, got %v", err)
	}

	// the session is still usable
	if got := lastValue(t, s, "4 * 4"); got != 16 {
		t.Errorf("expected 16, got %v", got)
	}
}

func TestDeepRecursion(t *testing.T) {
	for level := 0; level <= 3; level++ {
		s, _, _ := newTestSession(t)
		if _, err := s.Evaluate("def sum(n) if n < 1 then 0 else n + sum(n-1)", DefaultOptions()); err != nil {
			t.Fatal(err)
		}
		opts := Options{Optimize: level > 0, OptLevel: level}
		results, err := s.Evaluate("sum(5000)", opts)
		if err != nil {
			t.Fatalf("level %d: %v", level, err)
		}
		if results[0].Value != 12502500 {
			t.Errorf("level %d: expected 12502500, got %v", level, results[0].Value)
		}
	}
}

func TestEvaluateModes(t *testing.T) {
	s, _, _ := newTestSession(t)

	results, err := s.Evaluate("def f(x) x + 1\nf(2)", Options{ParseOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Kind != Dumped || !strings.Contains(results[0].Dump, "Prototype f") {
		t.Errorf("unexpected parse-only result %+v", results[0])
	}
	if _, ok := s.Module().Lookup("f"); ok {
		t.Errorf("parse-only evaluation should not touch the module")
	}

	results, err = s.Evaluate("def f(x) x + 1\nf(2)", Options{NoExec: true})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Kind != IR || !strings.Contains(results[0].RawIR, "define double @f(double %x)") {
		t.Errorf("unexpected no-exec result %+v", results[0])
	}
	if results[1].Kind != IR || !strings.Contains(results[1].RawIR, "call double @f") {
		t.Errorf("unexpected no-exec result %+v", results[1])
	}

	opts := DefaultOptions()
	opts.DumpIR = true
	results, err = s.Evaluate("f(2) * 2", opts)
	if err != nil {
		t.Fatal(err)
	}
	r := results[0]
	if r.Kind != Value || r.Value != 6 {
		t.Errorf("expected 6, got %+v", r)
	}
	if r.RawIR == "" || r.OptIR == "" || r.Assembly == "" {
		t.Errorf("expected every dump to be filled in: %+v", r)
	}
	if !strings.Contains(r.Assembly, "OpReturnValue") {
		t.Errorf("assembly lacks a return:\n%s", r.Assembly)
	}
}

func TestPrelude(t *testing.T) {
	prelude := "def binary| 5 (a b) if a then 1 else if b then 1 else 0\ndef unary-(v) 0-v"
	s, _, _ := newTestSession(t, WithPrelude(prelude))

	if got := lastValue(t, s, "-(0 | 3)"); got != -1 {
		t.Errorf("expected -1, got %v", got)
	}
	if len(s.History()) != 0 {
		t.Errorf("prelude forms should not be recorded")
	}

	if err := s.Reset(nil); err != nil {
		t.Fatal(err)
	}
	if got := lastValue(t, s, "0 | 0"); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestPreludeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lib.kal")
	if err := os.WriteFile(path, []byte("def inc(x) x + 1"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, _, _ := newTestSession(t, WithPreludeFile(path))
	if got := lastValue(t, s, "inc(inc(1))"); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}

	// a missing prelude is not fatal
	s, _, _ = newTestSession(t, WithPreludeFile(filepath.Join(t.TempDir(), "missing.kal")))
	if got := lastValue(t, s, "1"); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}

	engine := jit.New()
	if _, err := NewSession(engine, WithPrelude("def broken(x) y")); err == nil {
		t.Errorf("expected a broken prelude to fail")
	}
}
