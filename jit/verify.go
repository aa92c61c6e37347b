package jit

import (
	"fmt"
)

type VerifyError struct {
	Function string
	Block    string
	Reason   string
}

func (e *VerifyError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("verify @%s: %s", e.Function, e.Reason)
	}
	return fmt.Sprintf("verify @%s, block %%%s: %s", e.Function, e.Block, e.Reason)
}

func verifyModule(m *Module) error {
	for _, f := range m.funcs {
		if m.symbols[f.name] != f {
			return &VerifyError{Function: f.name, Reason: "function is not registered in its module"}
		}
		if !f.defined {
			continue
		}
		if err := verifyFunction(f); err != nil {
			return err
		}
	}
	return nil
}

type verifier struct {
	f     *Function
	block *Block
	dom   *domTree
	preds map[*Block][]*Block
	defs  map[*Instr]bool
}

func (v *verifier) fail(format string, args ...any) error {
	err := &VerifyError{Function: v.f.name, Reason: fmt.Sprintf(format, args...)}
	if v.block != nil {
		err.Block = v.block.name
	}
	return err
}

func verifyFunction(f *Function) error {
	v := &verifier{f: f, preds: f.predecessors(), defs: map[*Instr]bool{}}
	if len(f.blocks) == 0 {
		return v.fail("defined function has no blocks")
	}
	for _, b := range f.blocks {
		if b.fn != f || !b.placed {
			v.block = b
			return v.fail("block does not belong to this function")
		}
		for _, ins := range b.instrs {
			v.defs[ins] = true
		}
	}
	v.dom = computeDominators(f)
	for _, b := range f.blocks {
		v.block = b
		if err := v.checkBlock(b); err != nil {
			return err
		}
	}
	return nil
}

func (v *verifier) checkBlock(b *Block) error {
	if len(b.instrs) == 0 {
		return v.fail("empty block")
	}
	last := len(b.instrs) - 1
	for i, ins := range b.instrs {
		if ins.block != b {
			return v.fail("%s is filed under the wrong block", ins.op)
		}
		if ins.isTerminator() && i != last {
			return v.fail("terminator %s in the middle of the block", ins.op)
		}
		if !ins.isTerminator() && i == last {
			return v.fail("block does not end with a terminator")
		}
		if ins.op == InsPhi && i > 0 && b.instrs[i-1].op != InsPhi {
			return v.fail("phi %s is not grouped at the top of the block", ins)
		}
		if ins.op == InsAlloca && b != v.f.entry() {
			return v.fail("alloca %s outside the entry block", ins)
		}
		if err := v.checkOperands(b, i, ins); err != nil {
			return err
		}
		if err := v.checkShape(b, ins); err != nil {
			return err
		}
	}
	return nil
}

var operandTypes = map[Op][]irType{
	InsLoad:   {typePtr},
	InsStore:  {typeDouble, typePtr},
	InsFAdd:   {typeDouble, typeDouble},
	InsFSub:   {typeDouble, typeDouble},
	InsFMul:   {typeDouble, typeDouble},
	InsFDiv:   {typeDouble, typeDouble},
	InsFCmpLt: {typeDouble, typeDouble},
	InsFCmpNe: {typeDouble, typeDouble},
	InsUIToFP: {typeBool},
	InsCondBr: {typeBool},
	InsRet:    {typeDouble},
}

func (v *verifier) checkOperands(b *Block, pos int, ins *Instr) error {
	if want, ok := operandTypes[ins.op]; ok {
		if len(ins.args) != len(want) {
			return v.fail("%s takes %d operands, got %d", ins.op, len(want), len(ins.args))
		}
		for n, arg := range ins.args {
			if arg.irType() != want[n] {
				return v.fail("operand %d of %s is %s, want %s", n, ins.op, arg.irType(), want[n])
			}
		}
	}
	for n, arg := range ins.args {
		if ins.op == InsPhi || ins.op == InsCall {
			if arg.irType() != typeDouble {
				return v.fail("operand %d of %s is %s, want double", n, ins.op, arg.irType())
			}
		}
		switch def := arg.(type) {
		case *Param:
			if def.fn != v.f {
				return v.fail("parameter %s belongs to @%s", def, def.fn.name)
			}
		case *Instr:
			if !v.defs[def] {
				return v.fail("operand %s is not defined in this function", def)
			}
			if def.typ == typeVoid {
				return v.fail("operand %s produces no value", def)
			}
			useBlock := b
			if ins.op == InsPhi {
				useBlock = ins.blocks[n]
			}
			if !v.dom.reachable(useBlock) {
				continue
			}
			if def.block == useBlock {
				if ins.op != InsPhi && def.block.index(def) >= pos {
					return v.fail("%s is used before it is defined", def)
				}
				continue
			}
			if !v.dom.dominates(def.block, useBlock) {
				return v.fail("%s does not dominate its use in %s", def, ins.op)
			}
		}
	}
	return nil
}

func (v *verifier) checkShape(b *Block, ins *Instr) error {
	for _, target := range ins.blocks {
		if target.fn != v.f || !target.placed {
			return v.fail("%s refers to block %%%s outside the function layout", ins.op, target.name)
		}
	}
	switch ins.op {
	case InsBr:
		if len(ins.blocks) != 1 {
			return v.fail("br needs exactly one target")
		}
	case InsCondBr:
		if len(ins.blocks) != 2 {
			return v.fail("conditional br needs two targets")
		}
	case InsPhi:
		if len(ins.args) != len(ins.blocks) {
			return v.fail("phi %s has mismatched incoming lists", ins)
		}
		preds := v.preds[b]
		if len(ins.blocks) != len(preds) {
			return v.fail("phi %s has %d incoming values for %d predecessors", ins, len(ins.blocks), len(preds))
		}
		for _, in := range ins.blocks {
			found := false
			for _, p := range preds {
				if p == in {
					found = true
					break
				}
			}
			if !found {
				return v.fail("phi %s names %%%s, which is not a predecessor", ins, in.name)
			}
		}
	case InsCall:
		if ins.callee == nil || v.f.module.function(ins.callee.name) != ins.callee {
			return v.fail("call to a function outside the module")
		}
		if len(ins.args) != len(ins.callee.params) {
			return v.fail("call to @%s passes %d arguments, want %d", ins.callee.name, len(ins.args), len(ins.callee.params))
		}
	case InsLoadGlobal:
		if ins.global == nil || v.f.module.global(ins.global.name) != ins.global {
			return v.fail("load of a global outside the module")
		}
	}
	return nil
}
