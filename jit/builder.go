package jit

import (
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/ajkachnic/kal/backend"
)

// Builder appends instructions to one block of a function body.
type Builder struct {
	fn    *Function
	block *Block
}

func (b *Builder) Param(i int) backend.Value { return b.fn.params[i] }

func (b *Builder) Constant(v float64) backend.Value { return Const(v) }

// Alloca always lands in the entry block, after the allocas already there.
func (b *Builder) Alloca(name string) backend.Slot {
	entry := b.fn.entry()
	ins := &Instr{op: InsAlloca, name: b.fn.uniqueName(name), typ: typePtr, block: entry}
	pos := 0
	for pos < len(entry.instrs) && entry.instrs[pos].op == InsAlloca {
		pos++
	}
	entry.instrs = slices.Insert(entry.instrs, pos, ins)
	b.fn.invalidate()
	return ins
}

func (b *Builder) Load(slot backend.Slot, name string) backend.Value {
	return b.emit(&Instr{op: InsLoad, name: name, typ: typeDouble, args: []value{slotOf(slot)}})
}

func (b *Builder) Store(slot backend.Slot, v backend.Value) {
	b.emit(&Instr{op: InsStore, args: []value{valueOf(v), slotOf(slot)}})
}

func (b *Builder) LoadGlobal(g backend.Global, name string) backend.Value {
	global, ok := g.(*Global)
	if !ok {
		panic(fmt.Sprintf("jit: %s is not a data global", g.Name()))
	}
	return b.emit(&Instr{op: InsLoadGlobal, name: name, typ: typeDouble, global: global})
}

func (b *Builder) Arith(op backend.ArithOp, x, y backend.Value, name string) backend.Value {
	ins, ok := arithOps[op]
	if !ok {
		panic(fmt.Sprintf("jit: unknown arithmetic op %d", op))
	}
	return b.emit(&Instr{op: ins, name: name, typ: typeDouble, args: []value{valueOf(x), valueOf(y)}})
}

func (b *Builder) CompareLt(x, y backend.Value, name string) backend.Value {
	return b.emit(&Instr{op: InsFCmpLt, name: name, typ: typeBool, args: []value{valueOf(x), valueOf(y)}})
}

func (b *Builder) CompareNe(x, y backend.Value, name string) backend.Value {
	return b.emit(&Instr{op: InsFCmpNe, name: name, typ: typeBool, args: []value{valueOf(x), valueOf(y)}})
}

func (b *Builder) BoolToDouble(v backend.Value, name string) backend.Value {
	return b.emit(&Instr{op: InsUIToFP, name: name, typ: typeDouble, args: []value{valueOf(v)}})
}

// NewBlock creates a block that only joins the function layout once it is
// first made the insert block.
func (b *Builder) NewBlock(name string) backend.Block {
	return &Block{name: b.fn.uniqueName(name), fn: b.fn}
}

func (b *Builder) SetInsertBlock(bb backend.Block) {
	block := blockOf(bb)
	if !block.placed {
		block.placed = true
		b.fn.blocks = append(b.fn.blocks, block)
	}
	b.block = block
}

func (b *Builder) InsertBlock() backend.Block { return b.block }

func (b *Builder) Branch(cond backend.Value, then, els backend.Block) {
	b.emit(&Instr{op: InsCondBr, args: []value{valueOf(cond)}, blocks: []*Block{blockOf(then), blockOf(els)}})
}

func (b *Builder) Jump(target backend.Block) {
	b.emit(&Instr{op: InsBr, blocks: []*Block{blockOf(target)}})
}

func (b *Builder) Phi(name string, incoming ...backend.Incoming) backend.Value {
	ins := &Instr{op: InsPhi, name: name, typ: typeDouble}
	for _, in := range incoming {
		ins.args = append(ins.args, valueOf(in.Value))
		ins.blocks = append(ins.blocks, blockOf(in.Block))
	}
	return b.emit(ins)
}

func (b *Builder) Call(fn backend.Function, args []backend.Value, name string) backend.Value {
	callee, ok := fn.(*Function)
	if !ok {
		panic(fmt.Sprintf("jit: foreign function %T", fn))
	}
	ins := &Instr{op: InsCall, name: name, typ: typeDouble, callee: callee}
	for _, arg := range args {
		ins.args = append(ins.args, valueOf(arg))
	}
	return b.emit(ins)
}

func (b *Builder) Ret(v backend.Value) {
	b.emit(&Instr{op: InsRet, args: []value{valueOf(v)}})
}

func (b *Builder) emit(ins *Instr) *Instr {
	if ins.typ != typeVoid {
		ins.name = b.fn.uniqueName(ins.name)
	}
	ins.block = b.block
	b.block.instrs = append(b.block.instrs, ins)
	b.fn.invalidate()
	return ins
}

// Handles crossing the backend boundary must have come from this package.

func valueOf(v backend.Value) value {
	val, ok := v.(value)
	if !ok {
		panic(fmt.Sprintf("jit: foreign value %T", v))
	}
	return val
}

func slotOf(s backend.Slot) *Instr {
	ins, ok := s.(*Instr)
	if !ok || ins.op != InsAlloca {
		panic(fmt.Sprintf("jit: %v is not a stack slot", s))
	}
	return ins
}

func blockOf(b backend.Block) *Block {
	block, ok := b.(*Block)
	if !ok {
		panic(fmt.Sprintf("jit: foreign block %T", b))
	}
	return block
}
