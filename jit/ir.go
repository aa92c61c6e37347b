// Package jit is the kal execution backend. It keeps modules in an SSA form
// close to LLVM IR, verifies and optimizes them, lowers each function to a
// compact register bytecode and runs that bytecode on a small VM.
package jit

import (
	"fmt"
	"strconv"

	"github.com/ajkachnic/kal/backend"
)

type irType int

const (
	typeVoid irType = iota
	typeDouble
	typeBool
	typePtr
)

func (t irType) String() string {
	switch t {
	case typeVoid:
		return "void"
	case typeDouble:
		return "double"
	case typeBool:
		return "i1"
	case typePtr:
		return "double*"
	default:
		return "<unknown>"
	}
}

// value is implemented by every operand this package hands out.
type value interface {
	backend.Value
	irType() irType
}

// Const is a double constant.
type Const float64

func (c Const) String() string { return formatDouble(float64(c)) }
func (Const) irType() irType    { return typeDouble }

func formatDouble(v float64) string { return strconv.FormatFloat(v, 'e', 6, 64) }

// BoolConst only appears after constant folding.
type BoolConst bool

func (c BoolConst) String() string { return strconv.FormatBool(bool(c)) }
func (BoolConst) irType() irType   { return typeBool }

// Param is an incoming function argument.
type Param struct {
	name  string
	index int
	fn    *Function
}

func (p *Param) String() string { return "%" + p.name }
func (*Param) irType() irType   { return typeDouble }

// Global is a module-level double constant such as pi.
type Global struct {
	name  string
	value float64
}

func (g *Global) Name() string   { return g.name }
func (g *Global) String() string { return "@" + g.name }
func (*Global) irType() irType   { return typePtr }

type Op int

const (
	InsAlloca Op = iota
	InsLoad
	InsStore
	InsLoadGlobal
	InsFAdd
	InsFSub
	InsFMul
	InsFDiv
	InsFCmpLt
	InsFCmpNe
	InsUIToFP
	InsPhi
	InsCall
	InsBr
	InsCondBr
	InsRet
)

var opNames = map[Op]string{
	InsAlloca:     "alloca",
	InsLoad:       "load",
	InsStore:      "store",
	InsLoadGlobal: "load",
	InsFAdd:       "fadd",
	InsFSub:       "fsub",
	InsFMul:       "fmul",
	InsFDiv:       "fdiv",
	InsFCmpLt:     "fcmp ult",
	InsFCmpNe:     "fcmp one",
	InsUIToFP:     "uitofp",
	InsPhi:        "phi",
	InsCall:       "call",
	InsBr:         "br",
	InsCondBr:     "br",
	InsRet:        "ret",
}

func (op Op) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return fmt.Sprintf("op(%d)", int(op))
}

var arithOps = map[backend.ArithOp]Op{
	backend.Add: InsFAdd,
	backend.Sub: InsFSub,
	backend.Mul: InsFMul,
	backend.Div: InsFDiv,
}

// Instr is a single SSA instruction. Instructions producing a value are
// themselves the value.
type Instr struct {
	op   Op
	name string
	typ  irType
	args []value

	// br: [target]; condbr: [then, else]; phi: incoming blocks, parallel to args
	blocks []*Block

	callee *Function
	global *Global
	block  *Block
}

func (i *Instr) String() string   { return "%" + i.name }
func (i *Instr) SlotName() string { return i.name }
func (i *Instr) irType() irType   { return i.typ }

func (i *Instr) isTerminator() bool {
	switch i.op {
	case InsBr, InsCondBr, InsRet:
		return true
	}
	return false
}

func (i *Instr) hasSideEffects() bool {
	switch i.op {
	case InsStore, InsCall, InsBr, InsCondBr, InsRet:
		return true
	}
	return false
}

type Block struct {
	name   string
	fn     *Function
	instrs []*Instr
	placed bool
}

func (b *Block) Name() string { return b.name }

func (b *Block) terminator() *Instr {
	if len(b.instrs) == 0 {
		return nil
	}
	last := b.instrs[len(b.instrs)-1]
	if !last.isTerminator() {
		return nil
	}
	return last
}

func (b *Block) successors() []*Block {
	term := b.terminator()
	if term == nil || term.op == InsRet {
		return nil
	}
	return term.blocks
}

func (b *Block) phis() []*Instr {
	n := 0
	for n < len(b.instrs) && b.instrs[n].op == InsPhi {
		n++
	}
	return b.instrs[:n]
}

func (b *Block) index(ins *Instr) int {
	for i, other := range b.instrs {
		if other == ins {
			return i
		}
	}
	return -1
}

// Function is a declaration until BeginBody gives it blocks.
type Function struct {
	name    string
	params  []*Param
	blocks  []*Block
	module  *Module
	names   map[string]bool
	defined bool

	// highest level this body has been optimized at
	optLevel int
	// bytecode cached by Load; cleared whenever the IR changes
	code *compiledFunction
}

func newFunction(m *Module, name string, params []string) *Function {
	f := &Function{name: name, module: m}
	f.resetNames(params)
	for i, p := range params {
		f.params = append(f.params, &Param{name: p, index: i, fn: f})
	}
	return f
}

func (f *Function) resetNames(params []string) {
	f.names = make(map[string]bool, len(params))
	for _, p := range params {
		f.names[p] = true
	}
}

func (f *Function) Name() string { return f.name }

func (f *Function) Params() []string {
	names := make([]string, len(f.params))
	for i, p := range f.params {
		names[i] = p.name
	}
	return names
}

func (f *Function) IsDeclaration() bool { return !f.defined }

// uniqueName returns base, or base with the smallest numeric suffix that is
// still free in this function.
func (f *Function) uniqueName(base string) string {
	if base == "" {
		base = "tmp"
	}
	name := base
	for i := 1; f.names[name]; i++ {
		name = base + strconv.Itoa(i)
	}
	f.names[name] = true
	return name
}

func (f *Function) entry() *Block {
	if len(f.blocks) == 0 {
		return nil
	}
	return f.blocks[0]
}

func (f *Function) invalidate() {
	f.code = nil
	f.optLevel = 0
}

func (f *Function) predecessors() map[*Block][]*Block {
	preds := make(map[*Block][]*Block, len(f.blocks))
	for _, b := range f.blocks {
		for _, succ := range b.successors() {
			preds[succ] = append(preds[succ], b)
		}
	}
	return preds
}

// replaceUses rewrites every operand equal to old.
func (f *Function) replaceUses(old, new value) {
	for _, b := range f.blocks {
		for _, ins := range b.instrs {
			for i, arg := range ins.args {
				if arg == old {
					ins.args[i] = new
				}
			}
		}
	}
}

func (f *Function) useCounts() map[*Instr]int {
	counts := make(map[*Instr]int)
	for _, b := range f.blocks {
		for _, ins := range b.instrs {
			for _, arg := range ins.args {
				if def, ok := arg.(*Instr); ok {
					counts[def]++
				}
			}
		}
	}
	return counts
}

// removeInstrs drops every instruction in dead from its block.
func (f *Function) removeInstrs(dead map[*Instr]bool) {
	if len(dead) == 0 {
		return
	}
	for _, b := range f.blocks {
		kept := b.instrs[:0]
		for _, ins := range b.instrs {
			if !dead[ins] {
				kept = append(kept, ins)
			}
		}
		b.instrs = kept
	}
}

type Module struct {
	name    string
	funcs   []*Function
	globals []*Global
	symbols map[string]backend.Global
}

func newModule(name string) *Module {
	return &Module{name: name, symbols: make(map[string]backend.Global)}
}

func (m *Module) Name() string { return m.name }

func (m *Module) Lookup(name string) (backend.Global, bool) {
	g, ok := m.symbols[name]
	return g, ok
}

func (m *Module) Functions() []backend.Function {
	fns := make([]backend.Function, len(m.funcs))
	for i, f := range m.funcs {
		fns[i] = f
	}
	return fns
}

func (m *Module) function(name string) *Function {
	if f, ok := m.symbols[name].(*Function); ok {
		return f
	}
	return nil
}

func (m *Module) global(name string) *Global {
	if g, ok := m.symbols[name].(*Global); ok {
		return g
	}
	return nil
}

func (m *Module) addFunction(f *Function) {
	m.funcs = append(m.funcs, f)
	m.symbols[f.name] = f
}

func (m *Module) removeFunction(f *Function) {
	for i, other := range m.funcs {
		if other == f {
			m.funcs = append(m.funcs[:i], m.funcs[i+1:]...)
			break
		}
	}
	delete(m.symbols, f.name)
}

func (m *Module) defineGlobal(name string, v float64) *Global {
	g := &Global{name: name, value: v}
	m.globals = append(m.globals, g)
	m.symbols[name] = g
	return g
}
