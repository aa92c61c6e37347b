package core

import (
	"fmt"
	"strings"
)

// Node is one of the AST variants below; the set is closed.
type Node interface {
	String() string
	pos() position
}

// Expr is any node that produces a value.
type Expr interface {
	Node
	exprNode()
}

func tokPos(tok *token) position {
	if tok == nil {
		return position{}
	}
	return tok.Pos
}

type NumberExpr struct {
	Text  string
	Value float64
	tok   *token
}

func (n *NumberExpr) String() string { return n.Text }
func (n *NumberExpr) pos() position  { return tokPos(n.tok) }
func (*NumberExpr) exprNode()        {}

type VariableExpr struct {
	Name string
	tok  *token
}

func (n *VariableExpr) String() string { return n.Name }
func (n *VariableExpr) pos() position  { return tokPos(n.tok) }
func (*VariableExpr) exprNode()        {}

type UnaryExpr struct {
	Op      string
	Operand Expr
	tok     *token
}

func (n *UnaryExpr) String() string { return n.Op + n.Operand.String() }
func (n *UnaryExpr) pos() position  { return tokPos(n.tok) }
func (*UnaryExpr) exprNode()        {}

type BinaryExpr struct {
	Op       string
	LHS, RHS Expr
	tok      *token
}

func (n *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", n.LHS, n.Op, n.RHS)
}
func (n *BinaryExpr) pos() position { return tokPos(n.tok) }
func (*BinaryExpr) exprNode()       {}

type CallExpr struct {
	Callee string
	Args   []Expr
	tok    *token
}

func (n *CallExpr) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", n.Callee, strings.Join(args, ", "))
}
func (n *CallExpr) pos() position { return tokPos(n.tok) }
func (*CallExpr) exprNode()       {}

type IfExpr struct {
	Cond, Then, Else Expr
	tok              *token
}

func (n *IfExpr) String() string {
	return fmt.Sprintf("if %s then %s else %s", n.Cond, n.Then, n.Else)
}
func (n *IfExpr) pos() position { return tokPos(n.tok) }
func (*IfExpr) exprNode()       {}

// ForExpr loops while End is non-zero. Step, when present, computes the next
// value of Var; it may be nil.
type ForExpr struct {
	Var        string
	Start, End Expr
	Step       Expr
	Body       Expr
	tok        *token
}

func (n *ForExpr) String() string {
	if n.Step == nil {
		return fmt.Sprintf("for %s = %s, %s in %s", n.Var, n.Start, n.End, n.Body)
	}
	return fmt.Sprintf("for %s = %s, %s, %s in %s", n.Var, n.Start, n.End, n.Step, n.Body)
}
func (n *ForExpr) pos() position { return tokPos(n.tok) }
func (*ForExpr) exprNode()       {}

// Binding is one `name = init` of a var expression. Init may be nil.
type Binding struct {
	Name string
	Init Expr
}

type VarInExpr struct {
	Bindings []Binding
	Body     Expr
	tok      *token
}

func (n *VarInExpr) String() string {
	bindings := make([]string, len(n.Bindings))
	for i, b := range n.Bindings {
		if b.Init == nil {
			bindings[i] = b.Name
		} else {
			bindings[i] = fmt.Sprintf("%s = %s", b.Name, b.Init)
		}
	}
	return fmt.Sprintf("var %s in %s", strings.Join(bindings, ", "), n.Body)
}
func (n *VarInExpr) pos() position { return tokPos(n.tok) }
func (*VarInExpr) exprNode()       {}

// Prototype is a function signature. Operator prototypes are named
// "unary<op>" or "binary<op>".
type Prototype struct {
	Name       string
	Params     []string
	IsOperator bool
	Precedence int
	tok        *token
}

func (n *Prototype) String() string {
	return fmt.Sprintf("%s(%s)", n.Name, strings.Join(n.Params, " "))
}
func (n *Prototype) pos() position { return tokPos(n.tok) }

func (n *Prototype) IsBinaryOp() bool {
	return n.IsOperator && strings.HasPrefix(n.Name, "binary") && len(n.Params) == 2
}

// OperatorSymbol is the operator character of an operator prototype.
func (n *Prototype) OperatorSymbol() string {
	switch {
	case strings.HasPrefix(n.Name, "binary"):
		return strings.TrimPrefix(n.Name, "binary")
	case strings.HasPrefix(n.Name, "unary"):
		return strings.TrimPrefix(n.Name, "unary")
	}
	return ""
}

func (n *Prototype) IsAnonymous() bool {
	return strings.HasPrefix(n.Name, anonPrefix)
}

type Function struct {
	Proto *Prototype
	Body  Expr
}

func (n *Function) String() string {
	if n.Proto.IsAnonymous() {
		return n.Body.String()
	}
	return fmt.Sprintf("def %s %s", n.Proto, n.Body)
}
func (n *Function) pos() position { return n.Proto.pos() }

// Flatten renders node as nested lists headed by the variant name, e.g.
// ["Binary", "+", ["Number", "2"], ["Number", "3"]]. Absent children are nil.
func Flatten(node Node) []any {
	switch n := node.(type) {
	case *NumberExpr:
		return []any{"Number", n.Text}
	case *VariableExpr:
		return []any{"Variable", n.Name}
	case *UnaryExpr:
		return []any{"Unary", n.Op, flattenExpr(n.Operand)}
	case *BinaryExpr:
		return []any{"Binary", n.Op, flattenExpr(n.LHS), flattenExpr(n.RHS)}
	case *CallExpr:
		args := []any{}
		for _, a := range n.Args {
			args = append(args, flattenExpr(a))
		}
		return []any{"Call", n.Callee, args}
	case *IfExpr:
		return []any{"If", flattenExpr(n.Cond), flattenExpr(n.Then), flattenExpr(n.Else)}
	case *ForExpr:
		return []any{"For", n.Var, flattenExpr(n.Start), flattenExpr(n.End), flattenExpr(n.Step), flattenExpr(n.Body)}
	case *VarInExpr:
		bindings := []any{}
		for _, b := range n.Bindings {
			bindings = append(bindings, []any{b.Name, flattenExpr(b.Init)})
		}
		return []any{"VarIn", bindings, flattenExpr(n.Body)}
	case *Prototype:
		params := []any{}
		for _, p := range n.Params {
			params = append(params, p)
		}
		return []any{"Prototype", n.Name, params}
	case *Function:
		return []any{"Function", Flatten(n.Proto), flattenExpr(n.Body)}
	default:
		panic(fmt.Sprintf("Flatten: unexpected node %T", node))
	}
}

func flattenExpr(e Expr) any {
	if e == nil {
		return nil
	}
	return Flatten(e)
}

// Dump is an indented rendering of Flatten(node), one node per line.
func Dump(node Node) string {
	var out strings.Builder
	dump(&out, Flatten(node), 0)
	return out.String()
}

func dump(out *strings.Builder, flattened []any, indent int) {
	out.WriteString(strings.Repeat(" ", indent))
	for i, elem := range flattened {
		list, isList := elem.([]any)
		switch {
		case !isList:
			if i > 0 {
				out.WriteString(" ")
			}
			if elem == nil {
				out.WriteString("nil")
			} else {
				fmt.Fprint(out, elem)
			}
		case len(list) == 0:
			out.WriteString(" []")
		case isNested(list):
			// a list of nodes, e.g. call arguments
			for _, item := range list {
				out.WriteString("\n")
				dump(out, item.([]any), indent+2)
			}
		default:
			out.WriteString("\n")
			dump(out, list, indent+2)
		}
	}
}

func isNested(list []any) bool {
	_, ok := list[0].([]any)
	return ok
}
