package core

import (
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type Associativity int

const (
	AssocUndefined Associativity = iota
	AssocLeft
	AssocRight
)

func (a Associativity) String() string {
	switch a {
	case AssocLeft:
		return "left"
	case AssocRight:
		return "right"
	default:
		return "undefined"
	}
}

type OperatorInfo struct {
	Precedence int
	Assoc      Associativity
}

// DefaultBinaryPrecedence applies to `def binary<op>` without a literal.
const DefaultBinaryPrecedence = 30

const (
	MinPrecedence = 1
	MaxPrecedence = 100
)

// OperatorTable maps binary operator symbols to their parsing rules. A
// session owns one table; it only grows, except when a failed reset rolls it
// back to a snapshot.
type OperatorTable struct {
	ops map[string]OperatorInfo
}

func NewOperatorTable() *OperatorTable {
	return &OperatorTable{ops: map[string]OperatorInfo{
		"=": {2, AssocRight},
		"<": {10, AssocLeft},
		"+": {20, AssocLeft},
		"-": {20, AssocLeft},
		"*": {40, AssocLeft},
	}}
}

func (t *OperatorTable) Get(op string) (OperatorInfo, bool) {
	info, ok := t.ops[op]
	return info, ok
}

// Set installs or overwrites op.
func (t *OperatorTable) Set(op string, prec int, assoc Associativity) {
	t.ops[op] = OperatorInfo{Precedence: prec, Assoc: assoc}
}

// Operators lists every known symbol in sorted order.
func (t *OperatorTable) Operators() []string {
	ops := maps.Keys(t.ops)
	slices.Sort(ops)
	return ops
}

func (t *OperatorTable) Clone() *OperatorTable {
	return &OperatorTable{ops: maps.Clone(t.ops)}
}

// Restore replaces the contents of t with those of snapshot.
func (t *OperatorTable) Restore(snapshot *OperatorTable) {
	t.ops = maps.Clone(snapshot.ops)
}
