package contextify

import (
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

var (
	// ErrDisposed is matched by every use-after-dispose error.
	ErrDisposed = errors.New("context disposed")

	ErrRunAfterDispose       error = &disposedError{"Called run() after dispose()."}
	ErrGetGlobalAfterDispose error = &disposedError{"Called getGlobal() after dispose()."}
	ErrDisposeAfterDispose   error = &disposedError{"Called dispose() after dispose()."}

	// ErrIncompatibleContext is returned by Script.RunInContext for a nil
	// or foreign context handle.
	ErrIncompatibleContext = errors.New("runInContext: argument must be a context")
)

type disposedError struct {
	msg string
}

func (e *disposedError) Error() string { return e.msg }

func (e *disposedError) Is(target error) bool { return target == ErrDisposed }

// Kind classifies a ScriptError.
type Kind int

const (
	KindUnknown Kind = iota
	KindSyntax
	KindReference
	KindType
	KindRange
	KindThrown
	KindHost
	KindUseAfterDispose
	KindEngineFatal
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "SyntaxError"
	case KindReference:
		return "ReferenceError"
	case KindType:
		return "TypeError"
	case KindRange:
		return "RangeError"
	case KindThrown:
		return "UserThrown"
	case KindHost:
		return "HostError"
	case KindUseAfterDispose:
		return "UseAfterDispose"
	case KindEngineFatal:
		return "EngineFatal"
	default:
		return "Unknown"
	}
}

// ScriptError is a failure surfaced while compiling or running script code
// or while a bridged property operation ran host code.
type ScriptError struct {
	Kind    Kind
	Name    string
	Message string
	Stack   string

	// Value is the thrown script value, nil for errors raised before the
	// engine was entered. Thrown is its host form: host objects and
	// handles keep their identity.
	Value  goja.Value
	Thrown any

	cause error
	eng   *engine
}

func (e *ScriptError) Error() string {
	switch {
	case e.Name != "" && e.Message != "":
		return e.Name + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Name != "":
		return e.Name
	}
	return e.Kind.String()
}

// Unwrap returns the Go error a host accessor or function failed with, if
// any.
func (e *ScriptError) Unwrap() error {
	return e.cause
}

// KindOf returns the kind of err when it is or wraps a *ScriptError.
// Use-after-dispose sentinels report KindUseAfterDispose.
func KindOf(err error) Kind {
	var se *ScriptError
	if errors.As(err, &se) {
		return se.Kind
	}
	if errors.Is(err, ErrDisposed) {
		return KindUseAfterDispose
	}
	return KindUnknown
}

// errorCtors are the realm's native error constructors, captured before the
// global object is swapped so sandbox shadowing cannot affect them.
type errorCtors map[Kind]*goja.Object

func captureErrorCtors(builtins *goja.Object) errorCtors {
	ctors := make(errorCtors, 4)
	for kind, name := range map[Kind]string{
		KindSyntax:    "SyntaxError",
		KindReference: "ReferenceError",
		KindType:      "TypeError",
		KindRange:     "RangeError",
	} {
		if ctor, ok := builtins.Get(name).(*goja.Object); ok {
			ctors[kind] = ctor
		}
	}
	return ctors
}

func newTypeError(format string, args ...any) *ScriptError {
	return &ScriptError{Kind: KindType, Name: "TypeError", Message: fmt.Sprintf(format, args...)}
}

// translate maps an engine error into a *ScriptError.
func (e *engine) translate(err error) error {
	if err == nil {
		return nil
	}
	var se *ScriptError
	if errors.As(err, &se) {
		return err
	}

	switch err := err.(type) {
	case *goja.CompilerSyntaxError, *goja.CompilerReferenceError:
		return e.withValue(compileFailure(err))
	case *goja.Exception:
		return e.fromException(err)
	}
	return &ScriptError{Kind: KindEngineFatal, Message: err.Error(), cause: err, eng: e}
}

// withValue binds a compile failure to this engine and gives it an error
// object of the matching native type, so scripts that catch it from a
// nested run see a real error.
func (e *engine) withValue(se *ScriptError) *ScriptError {
	se.eng = e
	if ctor := e.ctors[se.Kind]; ctor != nil {
		if obj, err := e.vm.New(ctor, e.vm.ToValue(se.Message)); err == nil {
			se.Value = obj
			se.Thrown = e.toHost(obj)
		}
	}
	return se
}

func (e *engine) fromException(ex *goja.Exception) *ScriptError {
	val := ex.Value()
	se := &ScriptError{
		Kind:  KindThrown,
		Value: val,
		Stack: ex.String(),
		cause: ex,
		eng:   e,
	}
	if host := ex.Unwrap(); host != nil {
		// A Go error crossed into the script as a GoError and came back
		// out uncaught.
		var inner *ScriptError
		if errors.As(host, &inner) {
			return inner
		}
		se.Kind = KindHost
		if errors.Is(host, ErrDisposed) {
			se.Kind = KindUseAfterDispose
		}
		se.Name = "GoError"
		se.Message = host.Error()
		se.cause = host
		se.Thrown = host
		return se
	}

	se.Thrown = e.toHost(val)
	obj, ok := val.(*goja.Object)
	if !ok {
		if val != nil {
			se.Message = val.String()
		}
		return se
	}

	if exc := e.vm.Try(func() {
		for _, kind := range []Kind{KindSyntax, KindReference, KindType, KindRange} {
			if ctor := e.ctors[kind]; ctor != nil && e.vm.InstanceOf(obj, ctor) {
				se.Kind = kind
				break
			}
		}
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
			se.Name = name.String()
		}
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			se.Message = msg.String()
		}
	}); exc != nil && se.Message == "" {
		se.Message = ex.Error()
	}
	return se
}

// throwable converts a host error into the value to throw into the script.
// A ScriptError from this engine is rethrown as its original value.
func (e *engine) throwable(err error) goja.Value {
	var se *ScriptError
	if errors.As(err, &se) {
		switch {
		case se.Value != nil && se.eng == e:
			return se.Value
		case se.Kind == KindThrown && se.Thrown != nil:
			return e.toJS(se.Thrown)
		}
		if ctor := e.ctors[se.Kind]; ctor != nil {
			if obj, nerr := e.vm.New(ctor, e.vm.ToValue(se.Message)); nerr == nil {
				return obj
			}
		}
	}
	return e.vm.NewGoError(err)
}
