package contextify

import (
	"github.com/dop251/goja"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

// Func is a host function callable from script code. Storing a Func on a
// sandbox object makes it a global function inside the context. A non-nil
// error is thrown into the calling script.
type Func func(call Call) (any, error)

// Call carries the receiver and arguments of a script call.
type Call struct {
	This any
	Args []any
}

// Argument returns the i-th argument or Undefined.
func (c Call) Argument(i int) any {
	if i < len(c.Args) {
		return c.Args[i]
	}
	return hostobj.Undefined{}
}

// JSObject is a host handle to an object created by script code. Handles
// are cached per context, so the same script object always yields the same
// pointer.
type JSObject struct {
	obj *goja.Object
	eng *engine
}

// Get reads a property through the engine, running getters and traps.
func (o *JSObject) Get(name string) (v any, err error) {
	err = o.eng.guard(func() {
		v = o.eng.toHost(o.obj.Get(name))
	})
	return v, err
}

// Set assigns a property through the engine.
func (o *JSObject) Set(name string, value any) error {
	return o.eng.translate(o.obj.Set(name, o.eng.toJS(value)))
}

// Keys returns the object's own enumerable string keys.
func (o *JSObject) Keys() (keys []string) {
	_ = o.eng.guard(func() { keys = o.obj.Keys() })
	return keys
}

// ClassName returns the script class of the object ("Object", "Array", ...).
func (o *JSObject) ClassName() string {
	return o.obj.ClassName()
}

// Export converts the object into plain Go values (maps, slices,
// primitives) as the engine sees it.
func (o *JSObject) Export() (v any) {
	_ = o.eng.guard(func() { v = o.obj.Export() })
	return v
}

// Function is a host handle to a script function. It keeps its context's
// engine alive, so it remains callable after the sandbox is disposed.
type Function struct {
	JSObject
	fn goja.Callable
}

// Name returns the function's name property.
func (f *Function) Name() string {
	if v := f.obj.Get("name"); v != nil {
		return v.String()
	}
	return ""
}

// Call invokes the function with an undefined receiver, which sloppy-mode
// functions see as their context's global object.
func (f *Function) Call(args ...any) (any, error) {
	return f.CallWith(hostobj.Undefined{}, args...)
}

// CallWith invokes the function with an explicit receiver.
func (f *Function) CallWith(this any, args ...any) (any, error) {
	e := f.eng
	jsArgs := make([]goja.Value, len(args))
	for i, a := range args {
		jsArgs[i] = e.toJS(a)
	}
	res, err := f.fn(e.toJS(this), jsArgs...)
	if err != nil {
		return nil, e.translate(err)
	}
	return e.toHost(res), nil
}
