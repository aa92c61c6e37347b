package core

import (
	"fmt"

	"github.com/ajkachnic/kal/backend"
)

// CodeGenerator lowers top-level forms into one backend module. Every
// mutable variable (parameters, for counters, var bindings) lives in its own
// stack slot; the optimizer is expected to promote them.
type CodeGenerator struct {
	backend backend.Backend
	module  backend.Module
	builder backend.Builder
	scope   *Scope
	ops     *OperatorTable
}

func NewCodeGenerator(b backend.Backend, moduleName string, ops *OperatorTable) *CodeGenerator {
	return &CodeGenerator{
		backend: b,
		module:  b.NewModule(moduleName),
		ops:     ops,
	}
}

func (c *CodeGenerator) Module() backend.Module {
	return c.module
}

func (c *CodeGenerator) fail(node Node, format string, args ...any) error {
	return &CodegenError{Node: node, Reason: fmt.Sprintf(format, args...)}
}

// Generate adds a *Prototype or *Function to the module. A Function whose
// body fails to generate leaves no body behind: a function it created is
// erased, a declaration it completed goes back to being a declaration.
func (c *CodeGenerator) Generate(node Node) (backend.Function, error) {
	switch n := node.(type) {
	case *Prototype:
		fn, _, err := c.genPrototype(n)
		return fn, err
	case *Function:
		return c.genFunction(n)
	default:
		return nil, c.fail(node, "%T cannot appear at top level", node)
	}
}

func (c *CodeGenerator) genPrototype(p *Prototype) (backend.Function, bool, error) {
	if g, ok := c.module.Lookup(p.Name); ok {
		existing, isFn := g.(backend.Function)
		if !isFn {
			return nil, false, c.fail(p, "function/global name collision: %s", p.Name)
		}
		if !existing.IsDeclaration() {
			return nil, false, c.fail(p, "redefinition of %s", p.Name)
		}
		if len(existing.Params()) != len(p.Params) {
			return nil, false, c.fail(p, "redefinition of %s with a different number of arguments (%d, was %d)",
				p.Name, len(p.Params), len(existing.Params()))
		}
		return existing, false, nil
	}

	fn, err := c.backend.DeclareFunction(c.module, p.Name, p.Params)
	if err != nil {
		return nil, false, c.fail(p, "%v", err)
	}
	return fn, true, nil
}

func (c *CodeGenerator) genFunction(f *Function) (backend.Function, error) {
	fn, created, err := c.genPrototype(f.Proto)
	if err != nil {
		return nil, err
	}
	if f.Proto.IsBinaryOp() {
		c.ops.Set(f.Proto.OperatorSymbol(), f.Proto.Precedence, AssocLeft)
	}

	builder, err := c.backend.BeginBody(fn)
	if err != nil {
		return nil, c.fail(f, "%v", err)
	}
	c.builder = builder
	c.scope = NewScope()
	defer func() {
		c.builder = nil
		c.scope = nil
	}()

	if err := c.genBody(f); err != nil {
		if created {
			c.backend.Erase(fn)
		} else {
			c.backend.DeleteBody(fn)
		}
		return nil, err
	}
	return fn, nil
}

func (c *CodeGenerator) genBody(f *Function) error {
	for i, name := range f.Proto.Params {
		if _, dup := c.scope.Lookup(name); dup {
			return c.fail(f.Proto, "duplicate parameter %s in %s", name, f.Proto.Name)
		}
		slot := c.builder.Alloca(name)
		c.builder.Store(slot, c.builder.Param(i))
		c.scope.Push(name, slot)
	}

	ret, err := c.genExpr(f.Body)
	if err != nil {
		return err
	}
	c.builder.Ret(ret)
	return nil
}

func (c *CodeGenerator) genExpr(node Expr) (backend.Value, error) {
	switch n := node.(type) {
	case *NumberExpr:
		return c.builder.Constant(n.Value), nil
	case *VariableExpr:
		return c.genVariable(n)
	case *UnaryExpr:
		return c.genUnary(n)
	case *BinaryExpr:
		return c.genBinary(n)
	case *CallExpr:
		return c.genCall(n)
	case *IfExpr:
		return c.genIf(n)
	case *ForExpr:
		return c.genFor(n)
	case *VarInExpr:
		return c.genVarIn(n)
	default:
		return nil, c.fail(node, "cannot generate %T", node)
	}
}

func (c *CodeGenerator) genVariable(n *VariableExpr) (backend.Value, error) {
	if slot, ok := c.scope.Lookup(n.Name); ok {
		return c.builder.Load(slot, n.Name), nil
	}
	if g, ok := c.module.Lookup(n.Name); ok {
		if _, isFn := g.(backend.Function); !isFn {
			return c.builder.LoadGlobal(g, n.Name), nil
		}
	}
	return nil, c.fail(n, "undefined variable %s", n.Name)
}

func (c *CodeGenerator) genAssign(n *BinaryExpr) (backend.Value, error) {
	target, ok := n.LHS.(*VariableExpr)
	if !ok {
		return nil, c.fail(n, "left side of = must be a variable, got %s", n.LHS)
	}
	slot, ok := c.scope.Lookup(target.Name)
	if !ok {
		if _, global := c.module.Lookup(target.Name); global {
			return nil, c.fail(target, "cannot assign to global %s", target.Name)
		}
		return nil, c.fail(target, "undefined variable %s", target.Name)
	}

	v, err := c.genExpr(n.RHS)
	if err != nil {
		return nil, err
	}
	c.builder.Store(slot, v)
	return v, nil
}

func (c *CodeGenerator) genBinary(n *BinaryExpr) (backend.Value, error) {
	if n.Op == "=" {
		return c.genAssign(n)
	}

	lhs, err := c.genExpr(n.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := c.genExpr(n.RHS)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case "+":
		return c.builder.Arith(backend.Add, lhs, rhs, "addtmp"), nil
	case "-":
		return c.builder.Arith(backend.Sub, lhs, rhs, "subtmp"), nil
	case "*":
		return c.builder.Arith(backend.Mul, lhs, rhs, "multmp"), nil
	case "<":
		cmp := c.builder.CompareLt(lhs, rhs, "cmptmp")
		return c.builder.BoolToDouble(cmp, "booltmp"), nil
	}

	fn, ok := c.function("binary" + n.Op)
	if !ok {
		return nil, c.fail(n, "unknown binary operator %s", n.Op)
	}
	return c.builder.Call(fn, []backend.Value{lhs, rhs}, "binop"), nil
}

func (c *CodeGenerator) genUnary(n *UnaryExpr) (backend.Value, error) {
	operand, err := c.genExpr(n.Operand)
	if err != nil {
		return nil, err
	}
	fn, ok := c.function("unary" + n.Op)
	if !ok {
		return nil, c.fail(n, "undefined unary operator %s", n.Op)
	}
	return c.builder.Call(fn, []backend.Value{operand}, "unop"), nil
}

func (c *CodeGenerator) function(name string) (backend.Function, bool) {
	g, ok := c.module.Lookup(name)
	if !ok {
		return nil, false
	}
	fn, ok := g.(backend.Function)
	return fn, ok
}

func (c *CodeGenerator) genCall(n *CallExpr) (backend.Value, error) {
	fn, ok := c.function(n.Callee)
	if !ok {
		return nil, c.fail(n, "call to undefined function %s", n.Callee)
	}
	if want := len(fn.Params()); want != len(n.Args) {
		return nil, c.fail(n, "argument length mismatch: %s takes %d arguments, called with %d", n.Callee, want, len(n.Args))
	}

	args := make([]backend.Value, len(n.Args))
	for i, arg := range n.Args {
		v, err := c.genExpr(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return c.builder.Call(fn, args, "calltmp"), nil
}

func (c *CodeGenerator) genIf(n *IfExpr) (backend.Value, error) {
	condV, err := c.genExpr(n.Cond)
	if err != nil {
		return nil, err
	}
	cond := c.builder.CompareNe(condV, c.builder.Constant(0), "ifcond")

	thenBB := c.builder.NewBlock("then")
	elseBB := c.builder.NewBlock("else")
	mergeBB := c.builder.NewBlock("ifcont")
	c.builder.Branch(cond, thenBB, elseBB)

	// either arm may leave the builder in a different block than it started
	c.builder.SetInsertBlock(thenBB)
	thenV, err := c.genExpr(n.Then)
	if err != nil {
		return nil, err
	}
	c.builder.Jump(mergeBB)
	thenEnd := c.builder.InsertBlock()

	c.builder.SetInsertBlock(elseBB)
	elseV, err := c.genExpr(n.Else)
	if err != nil {
		return nil, err
	}
	c.builder.Jump(mergeBB)
	elseEnd := c.builder.InsertBlock()

	c.builder.SetInsertBlock(mergeBB)
	return c.builder.Phi("iftmp",
		backend.Incoming{Value: thenV, Block: thenEnd},
		backend.Incoming{Value: elseV, Block: elseEnd},
	), nil
}

// genFor emits
//
//	  store start, var
//	  br loopcond
//	loopcond:
//	  br (end != 0), loop, afterloop
//	loop:
//	  body
//	  store step (or var + 1), var
//	  br loopcond
//	afterloop:
//	  load var
func (c *CodeGenerator) genFor(n *ForExpr) (backend.Value, error) {
	slot := c.builder.Alloca(n.Var)
	start, err := c.genExpr(n.Start)
	if err != nil {
		return nil, err
	}
	c.builder.Store(slot, start)

	condBB := c.builder.NewBlock("loopcond")
	loopBB := c.builder.NewBlock("loop")
	afterBB := c.builder.NewBlock("afterloop")
	c.builder.Jump(condBB)

	c.scope.Push(n.Var, slot)
	defer c.scope.Pop()

	c.builder.SetInsertBlock(condBB)
	end, err := c.genExpr(n.End)
	if err != nil {
		return nil, err
	}
	c.builder.Branch(c.builder.CompareNe(end, c.builder.Constant(0), "endcond"), loopBB, afterBB)

	c.builder.SetInsertBlock(loopBB)
	if _, err := c.genExpr(n.Body); err != nil {
		return nil, err
	}
	var next backend.Value
	if n.Step != nil {
		if next, err = c.genExpr(n.Step); err != nil {
			return nil, err
		}
	} else {
		cur := c.builder.Load(slot, n.Var)
		next = c.builder.Arith(backend.Add, cur, c.builder.Constant(1), "nextvar")
	}
	c.builder.Store(slot, next)
	c.builder.Jump(condBB)

	c.builder.SetInsertBlock(afterBB)
	return c.builder.Load(slot, n.Var), nil
}

func (c *CodeGenerator) genVarIn(n *VarInExpr) (backend.Value, error) {
	pushed := 0
	defer func() {
		for ; pushed > 0; pushed-- {
			c.scope.Pop()
		}
	}()

	for _, b := range n.Bindings {
		// the initializer cannot see its own binding
		var init backend.Value
		if b.Init == nil {
			init = c.builder.Constant(0)
		} else {
			v, err := c.genExpr(b.Init)
			if err != nil {
				return nil, err
			}
			init = v
		}
		slot := c.builder.Alloca(b.Name)
		c.builder.Store(slot, init)
		c.scope.Push(b.Name, slot)
		pushed++
	}

	return c.genExpr(n.Body)
}
