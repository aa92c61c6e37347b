// Package modules links the host functions and constants kal programs can
// reach through extern declarations.
package modules

import (
	"io"

	"github.com/ajkachnic/kal/jit"
)

// Initialize links every module into engine. Output natives write to out.
func Initialize(engine *jit.Engine, out io.Writer) error {
	if err := loadMath(engine); err != nil {
		return err
	}
	return loadIO(engine, out)
}
