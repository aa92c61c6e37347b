package jit

import (
	"errors"
	"fmt"
	"strings"

	"fortio.org/log"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/ajkachnic/kal/backend"
)

// ErrUnresolved is returned when running code calls a declaration that has
// neither a body nor a linked native.
var ErrUnresolved = errors.New("unresolved external symbol")

// Native is a host function callable from kal code through an extern.
type Native struct {
	Name  string
	Arity int
	Fn    func(args []float64) (float64, error)
}

// Engine implements backend.Backend.
type Engine struct {
	natives   map[string]Native
	constants map[string]float64
	live      map[*Image]struct{}
}

var _ backend.Backend = (*Engine)(nil)

func New() *Engine {
	return &Engine{
		natives:   map[string]Native{},
		constants: map[string]float64{},
		live:      map[*Image]struct{}{},
	}
}

// Link makes n available to externs declared with its name.
func (e *Engine) Link(n Native) {
	e.natives[n.Name] = n
}

// LinkConstant adds a data global to every module created afterwards.
func (e *Engine) LinkConstant(name string, v float64) {
	e.constants[name] = v
}

func (e *Engine) Natives() []string {
	names := maps.Keys(e.natives)
	slices.Sort(names)
	return names
}

func (e *Engine) Constants() []string {
	names := maps.Keys(e.constants)
	slices.Sort(names)
	return names
}

// LiveImages counts images loaded and not yet unloaded.
func (e *Engine) LiveImages() int {
	return len(e.live)
}

func (e *Engine) NewModule(name string) backend.Module {
	m := newModule(name)
	for _, c := range e.Constants() {
		m.defineGlobal(c, e.constants[c])
	}
	return m
}

func moduleOf(bm backend.Module) *Module {
	m, ok := bm.(*Module)
	if !ok {
		panic(fmt.Sprintf("jit: foreign module %T", bm))
	}
	return m
}

func functionOf(bf backend.Function) *Function {
	f, ok := bf.(*Function)
	if !ok {
		panic(fmt.Sprintf("jit: foreign function %T", bf))
	}
	return f
}

func (e *Engine) DeclareFunction(bm backend.Module, name string, params []string) (backend.Function, error) {
	m := moduleOf(bm)
	if _, taken := m.symbols[name]; taken {
		return nil, fmt.Errorf("symbol @%s already exists in module %s", name, m.name)
	}
	f := newFunction(m, name, params)
	m.addFunction(f)
	return f, nil
}

func (e *Engine) BeginBody(bf backend.Function) (backend.Builder, error) {
	f := functionOf(bf)
	if f.defined {
		return nil, fmt.Errorf("@%s already has a body", f.name)
	}
	f.defined = true
	f.blocks = nil
	f.resetNames(f.Params())
	f.invalidate()

	b := &Builder{fn: f}
	b.SetInsertBlock(b.NewBlock("entry"))
	return b, nil
}

func (e *Engine) DeleteBody(bf backend.Function) {
	f := functionOf(bf)
	f.defined = false
	f.blocks = nil
	f.resetNames(f.Params())
	f.invalidate()
}

func (e *Engine) Erase(bf backend.Function) {
	f := functionOf(bf)
	f.module.removeFunction(f)
}

func (e *Engine) Verify(bm backend.Module) error {
	return verifyModule(moduleOf(bm))
}

func (e *Engine) Optimize(bm backend.Module, level int) error {
	m := moduleOf(bm)
	for _, f := range m.funcs {
		optimizeFunction(f, level)
	}
	if err := verifyModule(m); err != nil {
		return fmt.Errorf("after optimization: %w", err)
	}
	return nil
}

// Load links every function of m. Bodies are lowered to bytecode the first
// time they are loaded and reused until their IR changes. Declarations bind
// to natives by name; one with no native only fails when it is called.
func (e *Engine) Load(bm backend.Module) (backend.Image, error) {
	m := moduleOf(bm)
	img := &Image{module: m.name, funcs: map[string]*linkedFunction{}}

	for _, f := range m.funcs {
		lf := &linkedFunction{name: f.name, arity: len(f.params)}
		if f.defined {
			if f.code == nil {
				code, err := compileFunction(f)
				if err != nil {
					return nil, err
				}
				log.Debugf("jit: lowered @%s to %d bytes", f.name, len(code.instructions))
				f.code = code
			}
			lf.code = f.code
		} else if native, ok := e.natives[f.name]; ok {
			lf.native = &native
		}
		img.funcs[f.name] = lf
	}

	for _, lf := range img.funcs {
		if lf.code == nil {
			continue
		}
		for _, name := range lf.code.callees {
			callee, ok := img.funcs[name]
			if !ok {
				return nil, fmt.Errorf("@%s calls @%s, which is not in module %s", lf.name, name, m.name)
			}
			lf.callees = append(lf.callees, callee)
		}
		for _, name := range lf.code.globals {
			g := m.global(name)
			if g == nil {
				return nil, fmt.Errorf("@%s reads @%s, which is not in module %s", lf.name, name, m.name)
			}
			lf.globals = append(lf.globals, g.value)
		}
	}

	e.live[img] = struct{}{}
	return img, nil
}

func (e *Engine) Unload(bi backend.Image) error {
	img, ok := bi.(*Image)
	if !ok {
		return fmt.Errorf("jit: foreign image %T", bi)
	}
	if _, live := e.live[img]; !live {
		return fmt.Errorf("image of module %s is not loaded", img.module)
	}
	delete(e.live, img)
	img.unloaded = true
	return nil
}

type linkedFunction struct {
	name    string
	arity   int
	code    *compiledFunction
	native  *Native
	callees []*linkedFunction
	globals []float64
}

func (lf *linkedFunction) callNative(args []float64) (float64, error) {
	if lf.native == nil {
		return 0, fmt.Errorf("%w %s", ErrUnresolved, lf.name)
	}
	if lf.native.Arity != len(args) {
		return 0, fmt.Errorf("native %s takes %d arguments, called with %d", lf.name, lf.native.Arity, len(args))
	}
	return lf.native.Fn(args)
}

// Image is a loaded module.
type Image struct {
	module   string
	funcs    map[string]*linkedFunction
	unloaded bool
}

func (img *Image) Entry(name string) (backend.Entry, error) {
	lf, ok := img.funcs[name]
	if !ok {
		return nil, fmt.Errorf("no function @%s in module %s", name, img.module)
	}
	if lf.arity != 0 {
		return nil, fmt.Errorf("@%s takes %d arguments and cannot be an entry point", name, lf.arity)
	}
	return func() (float64, error) {
		if img.unloaded {
			return 0, fmt.Errorf("image of module %s was unloaded", img.module)
		}
		return NewVM().Call(lf, nil)
	}, nil
}

// Assembly disassembles every function body in the image.
func (img *Image) Assembly() string {
	names := maps.Keys(img.funcs)
	slices.Sort(names)

	var out strings.Builder
	for _, name := range names {
		lf := img.funcs[name]
		switch {
		case lf.code != nil:
			out.WriteString(lf.code.String())
		case lf.native != nil:
			fmt.Fprintf(&out, "%s: native, arity %d\n", name, lf.native.Arity)
		default:
			fmt.Fprintf(&out, "%s: unresolved\n", name)
		}
	}
	return out.String()
}
