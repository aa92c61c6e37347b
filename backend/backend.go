// Package backend is the narrow collaborator interface between the kal front
// end and whatever turns SSA instructions into running code.
//
// The front end only ever shapes modules and functions, emits instructions
// into the current block of a Builder, and asks for a module to be verified,
// optimized, loaded and unloaded. Handles returned by one Backend must only be
// passed back to that same Backend.
package backend

// Value is an SSA value: a constant, a function parameter or the result of an
// instruction. String renders it as an IR operand.
type Value interface {
	String() string
}

// Slot is a stack slot holding one mutable double.
type Slot interface {
	Value
	SlotName() string
}

// Block is a basic block inside a function body.
type Block interface {
	Name() string
}

// Global is anything with a module-level name.
type Global interface {
	Name() string
}

// Function is a module-level function. Every parameter and the return value
// are doubles.
type Function interface {
	Global
	Params() []string
	IsDeclaration() bool
	String() string
}

// Module accumulates declarations and definitions.
type Module interface {
	Name() string
	Lookup(name string) (Global, bool)
	Functions() []Function
	String() string
}

type ArithOp int

const (
	Add ArithOp = iota
	Sub
	Mul
	Div
)

func (op ArithOp) String() string {
	switch op {
	case Add:
		return "fadd"
	case Sub:
		return "fsub"
	case Mul:
		return "fmul"
	case Div:
		return "fdiv"
	default:
		return "<unknown>"
	}
}

// Incoming is one (value, predecessor) pair of a phi.
type Incoming struct {
	Value Value
	Block Block
}

// Builder emits instructions at the end of its insert block.
type Builder interface {
	Param(i int) Value

	Constant(v float64) Value
	Alloca(name string) Slot
	Load(slot Slot, name string) Value
	Store(slot Slot, v Value)
	LoadGlobal(g Global, name string) Value

	Arith(op ArithOp, a, b Value, name string) Value
	CompareLt(a, b Value, name string) Value
	CompareNe(a, b Value, name string) Value
	BoolToDouble(v Value, name string) Value

	NewBlock(name string) Block
	SetInsertBlock(b Block)
	InsertBlock() Block

	Branch(cond Value, then, els Block)
	Jump(b Block)
	Phi(name string, incoming ...Incoming) Value
	Call(fn Function, args []Value, name string) Value
	Ret(v Value)
}

// Entry is the native entry point of a zero-argument function.
type Entry func() (float64, error)

// Image is a module loaded for execution.
type Image interface {
	Entry(name string) (Entry, error)
	Assembly() string
}

// Backend shapes modules and executes them. Load and Unload must be paired:
// an image that is never unloaded keeps its compiled code alive.
type Backend interface {
	NewModule(name string) Module
	DeclareFunction(m Module, name string, params []string) (Function, error)
	BeginBody(fn Function) (Builder, error)
	// DeleteBody turns a defined function back into a declaration.
	DeleteBody(fn Function)
	// Erase removes a function from its module entirely.
	Erase(fn Function)

	Verify(m Module) error
	Optimize(m Module, level int) error
	Load(m Module) (Image, error)
	Unload(img Image) error
}
