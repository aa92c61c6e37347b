package jit

import (
	"fmt"
	"math"
	"strings"
)

// compiledFunction is the bytecode for one function body. Registers
// 0..numParams-1 hold the arguments on entry.
type compiledFunction struct {
	name         string
	numParams    int
	numRegs      int
	instructions Instructions
	constants    []float64
	callees      []string
	globals      []string
}

func (c *compiledFunction) String() string {
	var out strings.Builder
	fmt.Fprintf(&out, "%s: params=%d registers=%d\n", c.name, c.numParams, c.numRegs)
	for i, v := range c.constants {
		fmt.Fprintf(&out, "  const %d = %g\n", i, v)
	}
	for i, name := range c.callees {
		fmt.Fprintf(&out, "  callee %d = @%s\n", i, name)
	}
	for i, name := range c.globals {
		fmt.Fprintf(&out, "  global %d = @%s\n", i, name)
	}
	out.WriteString(c.instructions.String())
	return out.String()
}

type lowering struct {
	fn   *Function
	code *compiledFunction

	regs      map[value]int
	constRegs map[uint64]int
	temps     map[*Instr]int
	callees   map[string]int
	globals   map[string]int

	blockPos map[*Block]int
	fixups   []fixup
}

type fixup struct {
	position int
	target   *Block
}

// compileFunction lowers a verified function body to register bytecode.
// Phi nodes become copies on the incoming edges, done in two steps through
// scratch registers so that phis reading each other see the old values.
func compileFunction(f *Function) (*compiledFunction, error) {
	if !f.defined {
		return nil, fmt.Errorf("cannot compile declaration @%s", f.name)
	}
	l := &lowering{
		fn:        f,
		code:      &compiledFunction{name: f.name, numParams: len(f.params)},
		regs:      map[value]int{},
		constRegs: map[uint64]int{},
		temps:     map[*Instr]int{},
		callees:   map[string]int{},
		globals:   map[string]int{},
		blockPos:  map[*Block]int{},
	}
	l.assignRegisters()

	for i, b := range f.blocks {
		l.blockPos[b] = len(l.code.instructions)
		var next *Block
		if i+1 < len(f.blocks) {
			next = f.blocks[i+1]
		}
		for _, ins := range b.instrs {
			if err := l.lower(b, ins, next); err != nil {
				return nil, err
			}
		}
	}
	for _, fix := range l.fixups {
		pos, ok := l.blockPos[fix.target]
		if !ok {
			return nil, fmt.Errorf("@%s: jump to unplaced block %%%s", f.name, fix.target.name)
		}
		l.patchJump(fix.position, pos)
	}
	if len(l.code.instructions) > math.MaxUint16 {
		return nil, fmt.Errorf("@%s: function body too large", f.name)
	}
	if l.code.numRegs > math.MaxUint16 {
		return nil, fmt.Errorf("@%s: too many registers", f.name)
	}
	return l.code, nil
}

func (l *lowering) newRegister() int {
	r := l.code.numRegs
	l.code.numRegs++
	return r
}

func (l *lowering) assignRegisters() {
	for _, p := range l.fn.params {
		l.regs[p] = l.newRegister()
	}
	var constants []int
	for _, b := range l.fn.blocks {
		for _, ins := range b.instrs {
			if ins.typ != typeVoid {
				l.regs[ins] = l.newRegister()
			}
			if ins.op == InsPhi {
				l.temps[ins] = l.newRegister()
			}
			for _, arg := range ins.args {
				v, ok := constantOf(arg)
				if !ok {
					continue
				}
				bits := math.Float64bits(v)
				if _, seen := l.constRegs[bits]; seen {
					continue
				}
				r := l.newRegister()
				l.constRegs[bits] = r
				l.code.constants = append(l.code.constants, v)
				constants = append(constants, r)
			}
		}
	}
	// constant registers are filled once, before the entry block runs
	for i, r := range constants {
		l.emit(OpConstant, r, i)
	}
}

func constantOf(v value) (float64, bool) {
	switch c := v.(type) {
	case Const:
		return float64(c), true
	case BoolConst:
		if c {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (l *lowering) reg(v value) int {
	if c, ok := constantOf(v); ok {
		return l.constRegs[math.Float64bits(c)]
	}
	return l.regs[v]
}

func (l *lowering) calleeIndex(name string) int {
	if i, ok := l.callees[name]; ok {
		return i
	}
	i := len(l.code.callees)
	l.callees[name] = i
	l.code.callees = append(l.code.callees, name)
	return i
}

func (l *lowering) globalIndex(name string) int {
	if i, ok := l.globals[name]; ok {
		return i
	}
	i := len(l.code.globals)
	l.globals[name] = i
	l.code.globals = append(l.code.globals, name)
	return i
}

var binaryOpcodes = map[Op]Opcode{
	InsFAdd:   OpAdd,
	InsFSub:   OpSub,
	InsFMul:   OpMul,
	InsFDiv:   OpDiv,
	InsFCmpLt: OpLess,
	InsFCmpNe: OpNotEq,
}

func (l *lowering) lower(b *Block, ins *Instr, next *Block) error {
	switch ins.op {
	case InsAlloca, InsPhi:
		// registers only
	case InsLoad:
		l.emit(OpGetLocal, l.reg(ins), l.reg(ins.args[0]))
	case InsStore:
		l.emit(OpSetLocal, l.reg(ins.args[1]), l.reg(ins.args[0]))
	case InsLoadGlobal:
		l.emit(OpGetGlobal, l.reg(ins), l.globalIndex(ins.global.name))
	case InsFAdd, InsFSub, InsFMul, InsFDiv, InsFCmpLt, InsFCmpNe:
		l.emit(binaryOpcodes[ins.op], l.reg(ins), l.reg(ins.args[0]), l.reg(ins.args[1]))
	case InsUIToFP:
		l.emit(OpBoolToFloat, l.reg(ins), l.reg(ins.args[0]))
	case InsCall:
		if len(ins.args) > math.MaxUint8 {
			return fmt.Errorf("@%s: call to @%s has too many arguments", l.fn.name, ins.callee.name)
		}
		for _, arg := range ins.args {
			l.emit(OpArg, l.reg(arg))
		}
		l.emit(OpCall, l.reg(ins), l.calleeIndex(ins.callee.name), len(ins.args))
	case InsBr:
		l.edge(b, ins.blocks[0], next)
	case InsCondBr:
		then, els := ins.blocks[0], ins.blocks[1]
		cond := l.reg(ins.args[0])
		if len(els.phis()) == 0 {
			pos := l.emit(OpJumpNotTruthy, cond, 0xffff)
			l.fixups = append(l.fixups, fixup{position: pos, target: els})
			l.edge(b, then, next)
			return nil
		}
		skip := l.emit(OpJumpNotTruthy, cond, 0xffff)
		l.edge(b, then, nil)
		l.patchJump(skip, len(l.code.instructions))
		l.edge(b, els, next)
	case InsRet:
		l.emit(OpReturnValue, l.reg(ins.args[0]))
	default:
		return fmt.Errorf("@%s: cannot lower %s", l.fn.name, ins.op)
	}
	return nil
}

// edge emits the phi copies for from->to and a jump unless to falls through.
func (l *lowering) edge(from, to, next *Block) {
	var copied []*Instr
	for _, phi := range to.phis() {
		for n, in := range phi.blocks {
			if in == from {
				l.emit(OpMove, l.temps[phi], l.reg(phi.args[n]))
				copied = append(copied, phi)
				break
			}
		}
	}
	for _, phi := range copied {
		l.emit(OpMove, l.reg(phi), l.temps[phi])
	}
	if to != next {
		pos := l.emit(OpJump, 0xffff)
		l.fixups = append(l.fixups, fixup{position: pos, target: to})
	}
}

func (l *lowering) emit(op Opcode, operands ...int) int {
	pos := len(l.code.instructions)
	l.code.instructions = append(l.code.instructions, makeOpcode(op, operands...)...)
	return pos
}

// patchJump rewrites the target, always the last operand, of a jump.
func (l *lowering) patchJump(position int, target int) {
	op := Opcode(l.code.instructions[position])
	operands, _ := readOperands(definitions[op], l.code.instructions[position+1:])
	operands[len(operands)-1] = target
	newInstruction := makeOpcode(op, operands...)

	for i := 0; i < len(newInstruction); i++ {
		l.code.instructions[position+i] = newInstruction[i]
	}
}
