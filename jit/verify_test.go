package jit

import (
	"errors"
	"strings"
	"testing"

	"github.com/ajkachnic/kal/backend"
)

func TestVerifyRejectsMalformedBodies(t *testing.T) {
	tests := []struct {
		name   string
		build  func(e *Engine, m backend.Module, b backend.Builder)
		reason string
	}{
		{
			"missing terminator",
			func(e *Engine, m backend.Module, b backend.Builder) {
				b.Arith(backend.Add, b.Constant(1), b.Constant(2), "addtmp")
			},
			"does not end with a terminator",
		},
		{
			"code after return",
			func(e *Engine, m backend.Module, b backend.Builder) {
				b.Ret(b.Constant(1))
				b.Ret(b.Constant(2))
			},
			"in the middle of the block",
		},
		{
			"phi with a missing edge",
			func(e *Engine, m backend.Module, b backend.Builder) {
				next := b.NewBlock("next")
				b.Jump(next)
				b.SetInsertBlock(next)
				b.Ret(b.Phi("p"))
			},
			"incoming values",
		},
		{
			"wrong arity call",
			func(e *Engine, m backend.Module, b backend.Builder) {
				callee, _ := e.DeclareFunction(m, "g", []string{"x"})
				b.Ret(b.Call(callee, nil, "calltmp"))
			},
			"passes 0 arguments, want 1",
		},
		{
			"branch on a double",
			func(e *Engine, m backend.Module, b backend.Builder) {
				then := b.NewBlock("then")
				b.Branch(b.Constant(1), then, then)
				b.SetInsertBlock(then)
				b.Ret(b.Constant(1))
			},
			"want i1",
		},
		{
			"use before definition",
			func(e *Engine, m backend.Module, b backend.Builder) {
				other := b.NewBlock("other")
				done := b.NewBlock("done")
				b.Jump(done)
				b.SetInsertBlock(other)
				v := b.Arith(backend.Add, b.Constant(1), b.Constant(1), "addtmp")
				b.Jump(done)
				b.SetInsertBlock(done)
				b.Ret(v)
			},
			"does not dominate",
		},
	}

	for _, tt := range tests {
		e := New()
		m := e.NewModule("test")
		fn, _ := e.DeclareFunction(m, "f", nil)
		b, _ := e.BeginBody(fn)
		tt.build(e, m, b)

		err := e.Verify(m)
		var verr *VerifyError
		if !errors.As(err, &verr) {
			t.Errorf("%s: expected a VerifyError, got %v", tt.name, err)
			continue
		}
		if !strings.Contains(verr.Reason, tt.reason) {
			t.Errorf("%s: expected reason containing %q, got %q", tt.name, tt.reason, verr.Reason)
		}
	}
}

func TestMakeOpcode(t *testing.T) {
	tests := []struct {
		op       Opcode
		operands []int
		expected []byte
	}{
		{OpConstant, []int{1, 65534}, []byte{byte(OpConstant), 0, 1, 255, 254}},
		{OpAdd, []int{3, 1, 2}, []byte{byte(OpAdd), 0, 3, 0, 1, 0, 2}},
		{OpCall, []int{4, 0, 2}, []byte{byte(OpCall), 0, 4, 0, 0, 2}},
		{OpJump, []int{258}, []byte{byte(OpJump), 1, 2}},
	}

	for _, tt := range tests {
		ins := makeOpcode(tt.op, tt.operands...)
		if string(ins) != string(tt.expected) {
			t.Errorf("makeOpcode(%s) = %v, want %v", definitions[tt.op].name, ins, tt.expected)
			continue
		}
		operands, read := readOperands(definitions[tt.op], ins[1:])
		if read != len(tt.expected)-1 {
			t.Errorf("readOperands(%s) read %d bytes, want %d", definitions[tt.op].name, read, len(tt.expected)-1)
		}
		for i, want := range tt.operands {
			if operands[i] != want {
				t.Errorf("operand %d of %s = %d, want %d", i, definitions[tt.op].name, operands[i], want)
			}
		}
	}
}

func TestInstructionsString(t *testing.T) {
	var ins Instructions
	ins = append(ins, makeOpcode(OpConstant, 1, 0)...)
	ins = append(ins, makeOpcode(OpAdd, 2, 0, 1)...)
	ins = append(ins, makeOpcode(OpReturnValue, 2)...)

	expected := "0000 OpConstant 1 0\n0005 OpAdd 2 0 1\n0012 OpReturnValue 2\n"
	if ins.String() != expected {
		t.Errorf("wrong disassembly.\nwant=%q\ngot=%q", expected, ins.String())
	}
}

func TestModuleString(t *testing.T) {
	e := New()
	e.LinkConstant("pi", 3.25)
	m := e.NewModule("kal")
	declare(t, e, m, "sin", "x")
	buildMax(t, e, m)

	expected := []string{
		"; ModuleID = 'kal'",
		"@pi = constant double 3.250000e+00",
		"declare double @sin(double %x)",
		"define double @max(double %a, double %b) {",
		"%cmptmp = fcmp ult double %a, %b",
		"%booltmp = uitofp i1 %cmptmp to double",
		"br i1 %ifcond, label %then, label %else",
		"%iftmp = phi double [ %b, %then ], [ %a, %else ]",
		"ret double %iftmp",
	}
	ir := m.String()
	for _, want := range expected {
		if !strings.Contains(ir, want) {
			t.Errorf("expected %q in:\n%s", want, ir)
		}
	}
}
