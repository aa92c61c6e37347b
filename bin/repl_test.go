package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"

	"github.com/ajkachnic/kal/core"
	"github.com/ajkachnic/kal/jit"
	"github.com/ajkachnic/kal/modules"
)

func newTestREPL(t *testing.T) (*repl, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	out := &bytes.Buffer{}
	engine := jit.New()
	if err := modules.Initialize(engine, out); err != nil {
		t.Fatal(err)
	}
	session, err := core.NewSession(engine, core.WithPrelude(basiclib))
	if err != nil {
		t.Fatalf("basic library failed to load: %v", err)
	}
	return newREPL(session, engine, core.DefaultOptions(), out), out
}

func TestBasicLibrary(t *testing.T) {
	r, out := newTestREPL(t)

	tests := []struct {
		input    string
		expected string
	}{
		{"factorial(5)", "120"},
		{"max(3, 8) + min(3, 8)", "11"},
		{"-(2 > 1)", "-1"},
		{"(0 | 1) + (1 & 0) + !0", "2"},
		{"(4 ~ 4) + (4 ~ 5)", "1"},
		{"line(61, 3)", "===\n0"},
	}

	for _, tt := range tests {
		out.Reset()
		r.handle(tt.input)
		if got := strings.TrimSpace(out.String()); got != tt.expected {
			t.Errorf("%q: expected %q, got %q", tt.input, tt.expected, got)
		}
	}
}

func TestREPLCommands(t *testing.T) {
	r, out := newTestREPL(t)

	if r.handle("") || r.handle("help") || r.handle("?") {
		t.Fatalf("only exit and quit should stop the REPL")
	}
	if !strings.Contains(out.String(), "Toggle a setting") {
		t.Errorf("help not printed: %q", out.String())
	}
	if !r.handle("exit") || !r.handle("  quit ") {
		t.Errorf("exit and quit should stop the REPL")
	}

	out.Reset()
	r.handle("noexec")
	if !r.opts.NoExec || out.String() != "noexec = true\n" {
		t.Errorf("expected noexec to toggle on, got %q", out.String())
	}
	out.Reset()
	r.handle("options")
	if !strings.Contains(out.String(), "noexec: true") || !strings.Contains(out.String(), "optimize: true") {
		t.Errorf("unexpected options %q", out.String())
	}

	out.Reset()
	r.handle("1 + 2")
	if !strings.Contains(out.String(), "define double @__anon_") {
		t.Errorf("expected IR in no-exec mode, got %q", out.String())
	}
	r.handle("noexec")

	out.Reset()
	r.handle("ops")
	if !strings.Contains(out.String(), "|\t5\tleft") || !strings.Contains(out.String(), "=\t2\tright") {
		t.Errorf("unexpected operator listing %q", out.String())
	}

	out.Reset()
	r.handle("builtins")
	if !strings.Contains(out.String(), "putchard") || !strings.Contains(out.String(), "sin") ||
		!strings.Contains(out.String(), "constants: e pi") {
		t.Errorf("unexpected builtins listing %q", out.String())
	}
}

func TestREPLContinuationAndErrors(t *testing.T) {
	r, out := newTestREPL(t)

	r.handle(`def twice(x) \`)
	if out.Len() != 0 || r.currentPrompt() != " > " {
		t.Fatalf("expected a continuation prompt, got %q and %q", out.String(), r.currentPrompt())
	}
	r.handle("  x * 2")
	r.handle("twice(21)")
	if got := strings.TrimSpace(out.String()); got != "42" {
		t.Errorf("expected 42, got %q", got)
	}

	out.Reset()
	r.handle("twice(1, 2)")
	if !strings.Contains(out.String(), "Codegen error at [1:1]: argument length mismatch: twice takes 1 arguments, called with 2") {
		t.Errorf("unexpected error output %q", out.String())
	}

	out.Reset()
	r.handle("def twice(x) x")
	r.handle("reset")
	r.handle("twice(4)")
	if !strings.HasSuffix(out.String(), "8\n") {
		t.Errorf("expected twice to survive reset, got %q", out.String())
	}

	out.Reset()
	r.handle("1 $ 2")
	if !strings.Contains(out.String(), "Parse error at [1:3]: undefined operator $\n  1 $ 2\n    ^") {
		t.Errorf("unexpected error output %q", out.String())
	}
}

func TestHighlight(t *testing.T) {
	color.NoColor = true
	for _, line := range []string{
		"def binary% 5 (a b) a - b  # comment",
		"# only a comment",
		"1 + 2   ",
		"",
	} {
		if got := highlight([]rune(line)); got != line {
			t.Errorf("highlight without colour should be the identity, got %q for %q", got, line)
		}
	}

	color.NoColor = false
	defer func() { color.NoColor = true }()
	got := highlight([]rune("def f(x) x + 1.5"))
	if !strings.Contains(got, "\x1b[") || !strings.Contains(got, "1.5") {
		t.Errorf("expected colour codes, got %q", got)
	}
	if got := highlight([]rune("x # note")); strings.Count(got, "# note") != 1 {
		t.Errorf("expected the comment once, got %q", got)
	}
}
