package jit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// MaxFrames bounds call depth. The frame stack grows on demand up to it.
const MaxFrames = 1 << 17
const maxTraceEntries = 16

var ErrStackOverflow = errors.New("stack overflow")

type stackEntry struct {
	name string
	ip   int
}

func (e stackEntry) String() string {
	return fmt.Sprintf("  in fn %s at %04d", e.name, e.ip)
}

type RuntimeError struct {
	Reason     string
	err        error
	stackTrace []stackEntry
}

func (e *RuntimeError) Error() string {
	if len(e.stackTrace) == 0 {
		return "runtime error: " + e.Reason
	}
	trace := make([]string, len(e.stackTrace))
	for i, entry := range e.stackTrace {
		trace[i] = entry.String()
	}
	return fmt.Sprintf("runtime error: %s\n%s", e.Reason, strings.Join(trace, "\n"))
}

func (e *RuntimeError) Unwrap() error { return e.err }

type Frame struct {
	fn   *linkedFunction
	ip   int
	regs []float64
	// caller register receiving the return value
	ret int
}

func newFrame(fn *linkedFunction, args []float64, ret int) *Frame {
	regs := make([]float64, fn.code.numRegs)
	copy(regs, args)
	return &Frame{fn: fn, ip: -1, regs: regs, ret: ret}
}

func (f *Frame) instructions() Instructions {
	return f.fn.code.instructions
}

// VM runs one call into an image at a time.
type VM struct {
	frames      []*Frame
	framesIndex int

	// outgoing arguments collected by OpArg
	args []float64
}

func NewVM() *VM {
	return &VM{frames: make([]*Frame, 0, 64)}
}

func (vm *VM) currentFrame() *Frame {
	return vm.frames[vm.framesIndex-1]
}

func (vm *VM) pushFrame(f *Frame) error {
	if vm.framesIndex >= MaxFrames {
		return vm.fail(ErrStackOverflow, "stack overflow calling "+f.fn.name)
	}
	if vm.framesIndex < len(vm.frames) {
		vm.frames[vm.framesIndex] = f
	} else {
		vm.frames = append(vm.frames, f)
	}
	vm.framesIndex++
	return nil
}

func (vm *VM) popFrame() *Frame {
	vm.framesIndex--
	return vm.frames[vm.framesIndex]
}

func (vm *VM) fail(err error, reason string) *RuntimeError {
	rerr := &RuntimeError{Reason: reason, err: err}
	for i := vm.framesIndex - 1; i >= 0 && len(rerr.stackTrace) < maxTraceEntries; i-- {
		frame := vm.frames[i]
		rerr.stackTrace = append(rerr.stackTrace, stackEntry{name: frame.fn.name, ip: frame.ip})
	}
	return rerr
}

// Call runs fn to completion.
func (vm *VM) Call(fn *linkedFunction, args []float64) (float64, error) {
	if fn.code == nil {
		v, err := fn.callNative(args)
		if err != nil {
			return 0, vm.fail(err, err.Error())
		}
		return v, nil
	}
	base := vm.framesIndex
	if err := vm.pushFrame(newFrame(fn, args, 0)); err != nil {
		return 0, err
	}
	v, err := vm.Run(base)
	if err != nil {
		vm.framesIndex = base
		vm.args = vm.args[:0]
	}
	return v, err
}

// Run executes until the frame above base returns.
func (vm *VM) Run(base int) (float64, error) {
	var ip int
	var ins Instructions
	var op Opcode

	for {
		frame := vm.currentFrame()
		frame.ip++

		ip = frame.ip
		ins = frame.instructions()
		if ip >= len(ins) {
			return 0, vm.fail(nil, "fell off the end of "+frame.fn.name)
		}
		op = Opcode(ins[ip])

		switch op {
		case OpConstant:
			dst := vm.readU16()
			constIndex := vm.readU16()

			frame.regs[dst] = frame.fn.code.constants[constIndex]
		case OpMove, OpGetLocal:
			dst := vm.readU16()
			src := vm.readU16()

			frame.regs[dst] = frame.regs[src]
		case OpSetLocal:
			slot := vm.readU16()
			src := vm.readU16()

			frame.regs[slot] = frame.regs[src]
		case OpGetGlobal:
			dst := vm.readU16()
			globalIndex := vm.readU16()

			frame.regs[dst] = frame.fn.globals[globalIndex]
		case OpAdd, OpSub, OpMul, OpDiv, OpLess, OpNotEq:
			dst := vm.readU16()
			a := frame.regs[vm.readU16()]
			b := frame.regs[vm.readU16()]

			frame.regs[dst] = executeBinary(op, a, b)
		case OpBoolToFloat:
			dst := vm.readU16()
			src := vm.readU16()

			if frame.regs[src] != 0 {
				frame.regs[dst] = 1
			} else {
				frame.regs[dst] = 0
			}
		case OpJump:
			pos := int(vm.readU16())
			frame.ip = pos - 1
		case OpJumpNotTruthy:
			cond := vm.readU16()
			pos := int(vm.readU16())

			if frame.regs[cond] == 0 {
				frame.ip = pos - 1
			}
		case OpArg:
			vm.args = append(vm.args, frame.regs[vm.readU16()])
		case OpCall:
			dst := vm.readU16()
			calleeIndex := vm.readU16()
			numArgs := int(vm.readU8())

			callee := frame.fn.callees[calleeIndex]
			args := vm.args[len(vm.args)-numArgs:]
			vm.args = vm.args[:len(vm.args)-numArgs]

			if callee.code == nil {
				result, err := callee.callNative(args)
				if err != nil {
					return 0, vm.fail(err, err.Error())
				}
				frame.regs[dst] = result
				continue
			}
			if err := vm.pushFrame(newFrame(callee, args, int(dst))); err != nil {
				return 0, err
			}
		case OpReturnValue:
			returnValue := frame.regs[vm.readU16()]

			done := vm.popFrame()
			if vm.framesIndex == base {
				return returnValue, nil
			}
			vm.currentFrame().regs[done.ret] = returnValue
		default:
			return 0, vm.fail(nil, fmt.Sprintf("unknown opcode: %d", op))
		}
	}
}

func (vm *VM) readU16() uint16 {
	frame := vm.currentFrame()
	value := binary.BigEndian.Uint16(frame.instructions()[frame.ip+1:])
	frame.ip += 2

	return value
}

func (vm *VM) readU8() uint8 {
	frame := vm.currentFrame()
	value := frame.instructions()[frame.ip+1]
	frame.ip++

	return value
}

func executeBinary(op Opcode, a, b float64) float64 {
	switch op {
	case OpAdd:
		return a + b
	case OpSub:
		return a - b
	case OpMul:
		return a * b
	case OpDiv:
		return a / b
	case OpLess:
		// unordered compare: NaN on either side is true
		if !(a >= b) {
			return 1
		}
		return 0
	case OpNotEq:
		if a < b || a > b {
			return 1
		}
		return 0
	}
	return 0
}
