package contextify

import (
	"fmt"
	"reflect"
	"time"
	"weak"

	"github.com/dop251/goja"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

const gojaPkg = "github.com/dop251/goja"

var (
	timeType       = reflect.TypeOf(time.Time{})
	scriptMapType  = reflect.TypeOf(map[string]any(nil))
	scriptListType = reflect.TypeOf([]any(nil))
	nativeFuncType = reflect.TypeOf(func(goja.FunctionCall) goja.Value(nil))
)

// accessorPair holds the script functions that represent one accessor
// property. Reusing them keeps descriptors stable across reads.
type accessorPair struct {
	get goja.Value
	set goja.Value
}

// toJS converts a host value into a script value of this engine.
func (e *engine) toJS(v any) goja.Value {
	switch v := v.(type) {
	case nil:
		return goja.Null()
	case hostobj.Undefined:
		return goja.Undefined()
	case goja.Value:
		return v
	case *hostobj.Object:
		if v == e.sandbox {
			return e.globalObj
		}
		return e.bridgeFor(v).proxy
	case *Global:
		if v.eng == e {
			return e.globalObj
		}
		return e.toJS(v.eng.sandbox)
	case *Sandbox:
		return e.toJS(v.obj)
	case *Function:
		if v.eng == e {
			return v.obj
		}
		return e.foreignFunc(v)
	case *JSObject:
		if v.eng == e {
			return v.obj
		}
		return e.vm.ToValue(v.Export())
	case Func:
		return e.vm.ToValue(e.wrapFunc(v))
	case func(Call) (any, error):
		return e.vm.ToValue(e.wrapFunc(v))
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = e.toJS(item)
		}
		return e.vm.NewArray(items...)
	case error:
		return e.throwable(v)
	}
	return e.vm.ToValue(v)
}

// toHost converts a script value into its host form. Bridged objects come
// back as the host objects they expose; other objects become cached
// handles.
func (e *engine) toHost(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) {
		return hostobj.Undefined{}
	}
	if goja.IsNull(v) {
		return nil
	}
	obj, ok := v.(*goja.Object)
	if !ok {
		return v.Export()
	}
	if obj == e.globalObj {
		return e.global
	}
	if b, ok := e.hostOf[obj]; ok {
		return b.host
	}
	if ref, ok := e.handles.get(obj); ok {
		if h := ref.value(); h != nil {
			return h
		}
	}
	if isNative(obj) {
		return obj.Export()
	}

	if fn, ok := goja.AssertFunction(obj); ok {
		h := &Function{JSObject: JSObject{obj: obj, eng: e}, fn: fn}
		e.handles.put(obj, handleRef{fn: weak.Make(h)})
		return h
	}
	h := &JSObject{obj: obj, eng: e}
	e.handles.put(obj, handleRef{obj: weak.Make(h)})
	return h
}

// isNative reports whether obj wraps a Go value the engine reflects over,
// in which case the Go value itself is the host form.
func isNative(obj *goja.Object) bool {
	t := obj.ExportType()
	if t == nil {
		return false
	}
	switch t {
	case scriptMapType, scriptListType, nativeFuncType, timeType:
		return false
	}
	base := t
	for base.Kind() == reflect.Ptr {
		base = base.Elem()
	}
	return base.PkgPath() != gojaPkg
}

// wrapFunc adapts a host function to the engine's native calling
// convention. Errors are thrown into the calling script.
func (e *engine) wrapFunc(fn Func) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		args := make([]any, len(call.Arguments))
		for i, a := range call.Arguments {
			args[i] = e.toHost(a)
		}
		res, err := callHost(func() (any, error) {
			return fn(Call{This: e.toHost(call.This), Args: args})
		})
		if err != nil {
			panic(e.throwable(err))
		}
		return e.toJS(res)
	}
}

// foreignFunc wraps a function owned by another context so this engine can
// call it. Arguments and results cross as host values.
func (e *engine) foreignFunc(f *Function) goja.Value {
	return e.vm.ToValue(e.wrapFunc(func(call Call) (any, error) {
		return f.CallWith(call.This, call.Args...)
	}))
}

// jsGetter turns a script getter into a host getter. The receiver is the
// host object the lookup started from.
func (e *engine) jsGetter(fn goja.Value) hostobj.Getter {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return nil
	}
	return func(this *hostobj.Object) (any, error) {
		res, err := call(e.toJS(this))
		if err != nil {
			return nil, e.translate(err)
		}
		return e.toHost(res), nil
	}
}

func (e *engine) jsSetter(fn goja.Value) hostobj.Setter {
	call, ok := goja.AssertFunction(fn)
	if !ok {
		return nil
	}
	return func(this *hostobj.Object, value any) error {
		_, err := call(e.toJS(this), e.toJS(value))
		return e.translate(err)
	}
}

// accessorFuncs returns the script functions standing for the accessor p.
// Accessors defined by scripts map back to their original functions; host
// accessors get wrappers created once per slot.
func (e *engine) accessorFuncs(p *hostobj.Property, owner *hostobj.Object) accessorPair {
	if pair, ok := e.accessors.get(p); ok {
		return pair
	}
	pair := accessorPair{get: goja.Undefined(), set: goja.Undefined()}
	if g := p.Getter; g != nil {
		pair.get = e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			v, err := callHost(func() (any, error) { return g(e.receiver(call.This, owner)) })
			if err != nil {
				panic(e.throwable(err))
			}
			return e.toJS(v)
		})
	}
	if s := p.Setter; s != nil {
		pair.set = e.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			err := callHostErr(func() error { return s(e.receiver(call.This, owner), e.toHost(call.Argument(0))) })
			if err != nil {
				panic(e.throwable(err))
			}
			return goja.Undefined()
		})
	}
	e.accessors.put(p, pair)
	return pair
}

// receiver maps the this value of an accessor call back to a host object,
// falling back to the defining object.
func (e *engine) receiver(this goja.Value, owner *hostobj.Object) *hostobj.Object {
	switch h := e.toHost(this).(type) {
	case *hostobj.Object:
		return h
	case *Global:
		return h.eng.sandbox
	}
	return owner
}

// callHost runs host code, turning a Go panic into an error. Script values
// thrown from nested engine calls keep propagating.
func callHost(fn func() (any, error)) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			if fromEngine(r) {
				panic(r)
			}
			switch r := r.(type) {
			case error:
				err = fmt.Errorf("host panic: %w", r)
			default:
				err = fmt.Errorf("host panic: %v", r)
			}
		}
	}()
	return fn()
}

func callHostErr(fn func() error) error {
	_, err := callHost(func() (any, error) { return nil, fn() })
	return err
}

// fromEngine reports whether a recovered panic is an engine throw that must
// keep unwinding to the engine's own handlers.
func fromEngine(r any) bool {
	switch r.(type) {
	case goja.Value, *goja.Exception, *goja.InterruptedError, *goja.StackOverflowError:
		return true
	}
	t := reflect.TypeOf(r)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() == gojaPkg
}
