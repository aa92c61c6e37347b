package jit

import (
	"fmt"
	"strings"
)

func (m *Module) String() string {
	var out strings.Builder
	fmt.Fprintf(&out, "; ModuleID = '%s'\n", m.name)
	for _, g := range m.globals {
		fmt.Fprintf(&out, "%s = constant double %s\n", g, formatDouble(g.value))
	}
	for _, f := range m.funcs {
		out.WriteString("\n")
		out.WriteString(f.String())
	}
	return out.String()
}

func (f *Function) String() string {
	params := make([]string, len(f.params))
	for i, p := range f.params {
		params[i] = "double " + p.String()
	}
	signature := fmt.Sprintf("double @%s(%s)", f.name, strings.Join(params, ", "))
	if !f.defined {
		return "declare " + signature + "\n"
	}

	var out strings.Builder
	out.WriteString("define " + signature + " {\n")
	for i, b := range f.blocks {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(b.name + ":\n")
		for _, ins := range b.instrs {
			out.WriteString("  " + ins.format() + "\n")
		}
	}
	out.WriteString("}\n")
	return out.String()
}

func operand(v value) string {
	return v.irType().String() + " " + v.String()
}

func (i *Instr) format() string {
	switch i.op {
	case InsAlloca:
		return fmt.Sprintf("%s = alloca double", i)
	case InsLoad:
		return fmt.Sprintf("%s = load double, %s", i, operand(i.args[0]))
	case InsStore:
		return fmt.Sprintf("store %s, %s", operand(i.args[0]), operand(i.args[1]))
	case InsLoadGlobal:
		return fmt.Sprintf("%s = load double, double* %s", i, i.global)
	case InsFAdd, InsFSub, InsFMul, InsFDiv, InsFCmpLt, InsFCmpNe:
		return fmt.Sprintf("%s = %s double %s, %s", i, i.op, i.args[0], i.args[1])
	case InsUIToFP:
		return fmt.Sprintf("%s = uitofp %s to double", i, operand(i.args[0]))
	case InsPhi:
		incoming := make([]string, len(i.args))
		for n, arg := range i.args {
			incoming[n] = fmt.Sprintf("[ %s, %%%s ]", arg, i.blocks[n].name)
		}
		return fmt.Sprintf("%s = phi double %s", i, strings.Join(incoming, ", "))
	case InsCall:
		args := make([]string, len(i.args))
		for n, arg := range i.args {
			args[n] = operand(arg)
		}
		return fmt.Sprintf("%s = call double @%s(%s)", i, i.callee.name, strings.Join(args, ", "))
	case InsBr:
		return fmt.Sprintf("br label %%%s", i.blocks[0].name)
	case InsCondBr:
		return fmt.Sprintf("br %s, label %%%s, label %%%s", operand(i.args[0]), i.blocks[0].name, i.blocks[1].name)
	case InsRet:
		return fmt.Sprintf("ret %s", operand(i.args[0]))
	default:
		return fmt.Sprintf("<%s>", i.op)
	}
}
