package modules

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"github.com/ajkachnic/kal/backend"
	"github.com/ajkachnic/kal/jit"
)

// call runs a native through a tiny module that declares it and calls it
// from an entry function.
func call(t *testing.T, engine *jit.Engine, name string, args ...float64) (float64, error) {
	t.Helper()
	m := engine.NewModule("modules_test")

	params := make([]string, len(args))
	for i := range params {
		params[i] = string(rune('a' + i))
	}
	native, err := engine.DeclareFunction(m, name, params)
	if err != nil {
		t.Fatal(err)
	}
	entry, err := engine.DeclareFunction(m, "entry", nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := engine.BeginBody(entry)
	if err != nil {
		t.Fatal(err)
	}
	values := make([]backend.Value, len(args))
	for i, a := range args {
		values[i] = b.Constant(a)
	}
	b.Ret(b.Call(native, values, "calltmp"))

	img, err := engine.Load(m)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Unload(img)

	fn, err := img.Entry("entry")
	if err != nil {
		t.Fatal(err)
	}
	return fn()
}

func TestMath(t *testing.T) {
	engine := jit.New()
	if err := Initialize(engine, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		args     []float64
		expected float64
	}{
		{"ceil", []float64{4.5}, 5},
		{"floor", []float64{4.5}, 4},
		{"sqrt", []float64{16}, 4},
		{"fabs", []float64{-2.5}, 2.5},
		{"sin", []float64{0}, 0},
		{"cos", []float64{0}, 1},
		{"exp", []float64{0}, 1},
		{"log", []float64{1}, 0},
		{"pow", []float64{2, 10}, 1024},
	}

	for _, tt := range tests {
		got, err := call(t, engine, tt.name, tt.args...)
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if math.Abs(got-tt.expected) > 1e-12 {
			t.Errorf("%s%v: expected %v, got %v", tt.name, tt.args, tt.expected, got)
		}
	}

	consts := engine.Constants()
	if len(consts) != 2 || consts[0] != "e" || consts[1] != "pi" {
		t.Errorf("unexpected constants %v", consts)
	}
}

func TestIO(t *testing.T) {
	engine := jit.New()
	out := &bytes.Buffer{}
	if err := Initialize(engine, out); err != nil {
		t.Fatal(err)
	}

	for _, c := range "ok\n" {
		if _, err := call(t, engine, "putchard", float64(c)); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := call(t, engine, "printd", 0.25); err != nil {
		t.Fatal(err)
	}
	if _, err := call(t, engine, "printd", 1e21); err != nil {
		t.Fatal(err)
	}

	expected := "ok\n0.25\n1e+21\n"
	if out.String() != expected {
		t.Errorf("expected %q, got %q", expected, out.String())
	}
}

func TestArityMismatch(t *testing.T) {
	engine := jit.New()
	if err := Initialize(engine, &bytes.Buffer{}); err != nil {
		t.Fatal(err)
	}

	_, err := call(t, engine, "pow", 2)
	var rerr *jit.RuntimeError
	if !errors.As(err, &rerr) {
		t.Errorf("expected a RuntimeError, got %v", err)
	}
}
