package contextify

import (
	"fmt"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/shared/id"
)

// engine is one execution context: a private goja runtime whose global
// object is the bridge proxy over the sandbox. Handles that outlive the
// owning Context (functions, objects, the global) keep it reachable.
type engine struct {
	id   id.ContextID
	vm   *goja.Runtime
	opts options
	log  *logging.Logger

	sandbox      *hostobj.Object
	builtins     *goja.Object
	builtinNames map[string]struct{}
	ctors        errorCtors
	reflect      reflectFuncs

	root      *bridge
	globalObj *goja.Object
	global    *Global

	bridges   map[*hostobj.Object]*bridge
	hostOf    map[*goja.Object]*bridge
	// Caches keyed weakly so replaced objects and slots can be collected.
	handles   *weakMap[goja.Object, handleRef]
	accessors *weakMap[hostobj.Property, accessorPair]
	frozen    *weakMap[hostobj.Property, goja.Value]

	console *console
}

func newEngine(sb *hostobj.Object, o options) (e *engine, err error) {
	defer func() {
		if r := recover(); r != nil {
			e = nil
			err = &ScriptError{Kind: KindEngineFatal, Name: "EngineFatal", Message: fmt.Sprintf("create context: %v", r)}
		}
	}()

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))
	vm.SetMaxCallStackSize(o.config.MaxCallStackSize)

	e = &engine{
		id:        o.id,
		vm:        vm,
		opts:      o,
		log:       o.logger.With(zap.String("context", o.id.String())),
		sandbox:   sb,
		builtins:  vm.GlobalObject(),
		bridges:   make(map[*hostobj.Object]*bridge),
		hostOf:    make(map[*goja.Object]*bridge),
		handles:   newWeakMap[goja.Object](handleRef.live),
		accessors: newWeakMap[hostobj.Property, accessorPair](nil),
		frozen:    newWeakMap[hostobj.Property, goja.Value](nil),
	}
	e.ctors = captureErrorCtors(e.builtins)
	if e.reflect, err = captureReflect(e.builtins); err != nil {
		return nil, &ScriptError{Kind: KindEngineFatal, Name: "EngineFatal", Message: err.Error(), cause: err}
	}
	if o.config.EnableConsole {
		e.installConsole()
	}

	e.root = e.newBridge(sb, e.builtins)
	e.globalObj = e.root.proxy
	vm.SetGlobalObject(e.globalObj)
	if err := e.builtins.Set("globalThis", e.globalObj); err != nil {
		return nil, &ScriptError{Kind: KindEngineFatal, Name: "EngineFatal", Message: err.Error(), cause: err}
	}

	e.builtinNames = make(map[string]struct{})
	for _, name := range e.builtins.GetOwnPropertyNames() {
		e.builtinNames[name] = struct{}{}
	}
	e.global = &Global{eng: e}

	e.log.Debug("context created", zap.Int("sandbox_keys", sb.Len()))
	return e, nil
}

// compile parses source into a program labelled filename.
func (e *engine) compile(source, filename string) (*goja.Program, error) {
	if filename == "" {
		filename = e.opts.config.Filename
	}
	prg, err := goja.Compile(filename, source, false)
	if err != nil {
		return nil, e.withValue(compileFailure(err))
	}
	return prg, nil
}

// runProgram executes prg and converts its completion value. It may be
// entered recursively from host functions called by a running script.
func (e *engine) runProgram(prg *goja.Program) (any, error) {
	start := time.Now()
	res, err := e.vm.RunProgram(prg)
	if err != nil {
		err = e.translate(err)
		e.finish(err, time.Since(start))
		return nil, err
	}
	v := e.toHost(res)
	e.finish(nil, time.Since(start))
	return v, nil
}

func (e *engine) runSource(source, filename string) (any, error) {
	prg, err := e.compile(source, filename)
	if err != nil {
		e.finish(err, 0)
		return nil, err
	}
	return e.runProgram(prg)
}

func (e *engine) finish(err error, d time.Duration) {
	if err == nil {
		e.opts.observer.RunFinished("", d)
		e.log.Debug("run completed", zap.Duration("duration", d))
		return
	}
	kind := KindOf(err)
	e.opts.observer.RunFinished(kind.String(), d)
	e.log.Debug("run failed", zap.Stringer("kind", kind), zap.Error(err), zap.Duration("duration", d))
}

// guard runs fn, catching script exceptions thrown by traps or getters.
func (e *engine) guard(fn func()) error {
	if ex := e.vm.Try(fn); ex != nil {
		return e.translate(ex)
	}
	return nil
}

func (e *engine) isBuiltin(name string) bool {
	_, ok := e.builtinNames[name]
	return ok
}
