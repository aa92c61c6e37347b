package modules

import (
	"math"

	"github.com/ajkachnic/kal/jit"
)

type _math struct {
	engine *jit.Engine
}

func loadMath(engine *jit.Engine) error {
	// wrapper struct to allow access to the engine
	c := &_math{engine: engine}

	engine.LinkConstant("pi", math.Pi)
	engine.LinkConstant("e", math.E)

	c.unary("sin", math.Sin)
	c.unary("cos", math.Cos)
	c.unary("tan", math.Tan)
	c.unary("atan", math.Atan)
	c.unary("ceil", math.Ceil)
	c.unary("floor", math.Floor)
	c.unary("sqrt", math.Sqrt)
	c.unary("exp", math.Exp)
	c.unary("log", math.Log)
	c.unary("fabs", math.Abs)

	engine.Link(jit.Native{Name: "pow", Arity: 2, Fn: c.pow})
	return nil
}

func (c *_math) unary(name string, fn func(float64) float64) {
	c.engine.Link(jit.Native{
		Name:  name,
		Arity: 1,
		Fn: func(args []float64) (float64, error) {
			return fn(args[0]), nil
		},
	})
}

func (c *_math) pow(args []float64) (float64, error) {
	return math.Pow(args[0], args[1]), nil
}
