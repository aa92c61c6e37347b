package jit

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type Instructions []byte
type Opcode byte

func (ins Instructions) String() string {
	var out bytes.Buffer

	i := 0
	for i < len(ins) {
		def, err := lookupOpcode(ins[i])
		if err != nil {
			fmt.Fprintf(&out, "ERROR: %s\n", err)
			break
		}

		operands, read := readOperands(def, ins[i+1:])

		fmt.Fprintf(&out, "%04d %s\n", i, ins.fmtInstruction(def, operands))

		i += 1 + read
	}

	return out.String()
}

func (ins Instructions) fmtInstruction(def *Definition, operands []int) string {
	operandCount := len(def.operandWidths)

	if len(operands) != operandCount {
		return fmt.Sprintf("ERROR: operand len %d does not match defined %d\n",
			len(operands), operandCount)
	}

	switch operandCount {
	case 0:
		return def.name
	case 1:
		return fmt.Sprintf("%s %d", def.name, operands[0])
	case 2:
		return fmt.Sprintf("%s %d %d", def.name, operands[0], operands[1])
	case 3:
		return fmt.Sprintf("%s %d %d %d", def.name, operands[0], operands[1], operands[2])
	}

	return fmt.Sprintf("ERROR: unhandled operandCount for %s\n", def.name)
}

type Definition struct {
	name          string
	operandWidths []int
}

// Register operands are two bytes wide. The first operand of an
// instruction producing a value is its destination register.
const (
	OpConstant Opcode = iota // dst, constant
	OpMove                   // dst, src
	OpAdd                    // dst, a, b
	OpSub
	OpMul
	OpDiv
	OpLess        // dst, a, b; unordered
	OpNotEq       // dst, a, b; ordered
	OpBoolToFloat // dst, src

	OpGetLocal  // dst, slot
	OpSetLocal  // slot, src
	OpGetGlobal // dst, global

	OpJump          // target
	OpJumpNotTruthy // cond, target

	OpArg         // src
	OpCall        // dst, callee, argc
	OpReturnValue // src
)

var definitions = map[Opcode]*Definition{
	OpConstant:    {"OpConstant", []int{2, 2}},
	OpMove:        {"OpMove", []int{2, 2}},
	OpAdd:         {"OpAdd", []int{2, 2, 2}},
	OpSub:         {"OpSub", []int{2, 2, 2}},
	OpMul:         {"OpMul", []int{2, 2, 2}},
	OpDiv:         {"OpDiv", []int{2, 2, 2}},
	OpLess:        {"OpLess", []int{2, 2, 2}},
	OpNotEq:       {"OpNotEq", []int{2, 2, 2}},
	OpBoolToFloat: {"OpBoolToFloat", []int{2, 2}},

	OpGetLocal:  {"OpGetLocal", []int{2, 2}},
	OpSetLocal:  {"OpSetLocal", []int{2, 2}},
	OpGetGlobal: {"OpGetGlobal", []int{2, 2}},

	OpJump:          {"OpJump", []int{2}},
	OpJumpNotTruthy: {"OpJumpNotTruthy", []int{2, 2}},

	OpArg:         {"OpArg", []int{2}},
	OpCall:        {"OpCall", []int{2, 2, 1}},
	OpReturnValue: {"OpReturnValue", []int{2}},
}

func lookupOpcode(op byte) (*Definition, error) {
	def, ok := definitions[Opcode(op)]
	if !ok {
		return nil, fmt.Errorf("opcode %d undefined", op)
	}

	return def, nil
}

func readOperands(def *Definition, instructions Instructions) ([]int, int) {
	operands := make([]int, len(def.operandWidths))
	offset := 0

	for i, width := range def.operandWidths {
		switch width {
		case 1:
			operands[i] = int(instructions[offset])
		case 2:
			operands[i] = int(binary.BigEndian.Uint16(instructions[offset:]))
		}

		offset += width
	}

	return operands, offset
}

func makeOpcode(op Opcode, operands ...int) []byte {
	def, ok := definitions[op]
	if !ok {
		return []byte{}
	}

	instructionLen := 1
	for _, w := range def.operandWidths {
		instructionLen += w
	}

	instruction := make([]byte, instructionLen)
	instruction[0] = byte(op)

	offset := 1
	for i, o := range operands {
		width := def.operandWidths[i]
		switch width {
		case 1:
			instruction[offset] = byte(o)
		case 2:
			binary.BigEndian.PutUint16(instruction[offset:], uint16(o))
		}
		offset += width
	}

	return instruction
}
