package contextify

import (
	"fmt"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

// Global is the host handle of a context's global object. There is one per
// context; scripts see the same object as this and globalThis. Property
// operations go through the engine, so accessors and bridge traps run
// exactly as they would for script code.
type Global struct {
	eng *engine
	ctx *Context
}

// Run is Context.Run.
func (g *Global) Run(source string, filename ...string) (any, error) {
	return g.ctx.Run(source, filename...)
}

// GetGlobal is Context.GetGlobal; it returns g while the context is active.
func (g *Global) GetGlobal() (*Global, error) {
	return g.ctx.GetGlobal()
}

// Dispose is Context.Dispose. Disposing through either handle counts once.
func (g *Global) Dispose() error {
	return g.ctx.Dispose()
}

// Get reads name from the global as a member access would. Missing names
// yield Undefined.
func (g *Global) Get(name string) (v any, err error) {
	e := g.eng
	err = e.guard(func() {
		v = e.toHost(e.globalObj.Get(name))
	})
	return v, err
}

// Set assigns name on the global. A read-only target reports
// hostobj.ErrReadOnly.
func (g *Global) Set(name string, value any) error {
	ok, err := g.reflect(g.eng.reflect.set, name, value)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", hostobj.ErrReadOnly, name)
	}
	return nil
}

// Delete removes name from the global and the backing object. It reports
// false when the property is not configurable.
func (g *Global) Delete(name string) (bool, error) {
	return g.reflect(g.eng.reflect.deleteProperty, name)
}

// Has reports whether name resolves on the global, including builtins.
func (g *Global) Has(name string) (bool, error) {
	return g.reflect(g.eng.reflect.has, name)
}

// Keys returns the global's own enumerable keys in insertion order.
func (g *Global) Keys() (keys []string, err error) {
	e := g.eng
	err = e.guard(func() { keys = e.globalObj.Keys() })
	return keys, err
}

func (g *Global) reflect(fn goja.Callable, name string, args ...any) (bool, error) {
	e := g.eng
	jsArgs := []goja.Value{e.globalObj, e.vm.ToValue(name)}
	for _, a := range args {
		jsArgs = append(jsArgs, e.toJS(a))
	}
	res, err := fn(goja.Undefined(), jsArgs...)
	if err != nil {
		return false, e.translate(err)
	}
	return res.ToBoolean(), nil
}

// reflectFuncs are the realm's Reflect functions, captured before the
// global is swapped.
type reflectFuncs struct {
	set            goja.Callable
	has            goja.Callable
	deleteProperty goja.Callable
}

func captureReflect(builtins *goja.Object) (reflectFuncs, error) {
	var r reflectFuncs
	obj, ok := builtins.Get("Reflect").(*goja.Object)
	if !ok {
		return r, fmt.Errorf("reflect builtin unavailable")
	}
	for name, dst := range map[string]*goja.Callable{
		"set":            &r.set,
		"has":            &r.has,
		"deleteProperty": &r.deleteProperty,
	} {
		fn, ok := goja.AssertFunction(obj.Get(name))
		if !ok {
			return r, fmt.Errorf("reflect builtin %s unavailable", name)
		}
		*dst = fn
	}
	return r, nil
}
