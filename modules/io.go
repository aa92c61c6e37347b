package modules

import (
	"fmt"
	"io"
	"strconv"

	"github.com/ajkachnic/kal/jit"
)

type _io struct {
	out io.Writer
}

func loadIO(engine *jit.Engine, out io.Writer) error {
	c := &_io{out: out}

	engine.Link(jit.Native{Name: "putchard", Arity: 1, Fn: c.putchard})
	engine.Link(jit.Native{Name: "printd", Arity: 1, Fn: c.printd})
	return nil
}

// putchard writes its argument as a character and returns 0.
func (c *_io) putchard(args []float64) (float64, error) {
	if _, err := fmt.Fprintf(c.out, "%c", rune(int32(args[0]))); err != nil {
		return 0, err
	}
	return 0, nil
}

// printd writes its argument on its own line and returns 0.
func (c *_io) printd(args []float64) (float64, error) {
	if _, err := fmt.Fprintln(c.out, strconv.FormatFloat(args[0], 'g', -1, 64)); err != nil {
		return 0, err
	}
	return 0, nil
}
