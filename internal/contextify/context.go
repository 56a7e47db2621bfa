package contextify

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
	"github.com/GriffinCanCode/contextify/internal/shared/id"
)

// Context is an isolated execution context whose global object is bridged
// to a host object. Only one script may run in a context at a time.
type Context struct {
	id   id.ContextID
	obj  *hostobj.Object
	opts options
	life *lifecycle

	mu  sync.Mutex
	eng *engine
}

// NewContext builds a context over obj without touching obj. A nil obj is
// replaced by a fresh empty object.
func NewContext(obj *hostobj.Object, opts ...Option) (*Context, error) {
	o := buildOptions(opts)
	if obj == nil {
		obj = hostobj.New()
	}
	eng, err := newEngine(obj, o)
	if err != nil {
		o.logger.Error("failed to create context", zap.String("context", o.id.String()), zap.Error(err))
		return nil, err
	}

	c := &Context{id: o.id, obj: obj, opts: o, life: &lifecycle{}, eng: eng}
	eng.global.ctx = c
	c.life.onRelease(c.release)
	o.observer.ContextCreated()
	return c, nil
}

// ID returns the context identifier.
func (c *Context) ID() id.ContextID {
	return c.id
}

// Object returns the host object backing the context's global.
func (c *Context) Object() *hostobj.Object {
	return c.obj
}

// State returns the lifecycle state.
func (c *Context) State() State {
	return c.life.State()
}

// Run compiles source and runs it in the context, returning the value of
// the last expression statement in host form.
func (c *Context) Run(source string, filename ...string) (any, error) {
	e, err := c.enter(OpRun)
	if err != nil {
		return nil, err
	}
	return e.runSource(source, first(filename))
}

// Execute is Run that also reports console output and timing.
func (c *Context) Execute(source, filename string) (*Result, error) {
	e, err := c.enter(OpRun)
	if err != nil {
		return nil, err
	}
	mark := 0
	if e.console != nil {
		mark = e.console.mark()
	}
	start := time.Now()
	v, err := e.runSource(source, filename)
	res := &Result{Value: v, Duration: time.Since(start)}
	if e.console != nil {
		res.Console = e.console.since(mark)
	}
	return res, err
}

// GetGlobal returns the context's global handle. Repeated calls return the
// same pointer, which is also what scripts see as this.
func (c *Context) GetGlobal() (*Global, error) {
	e, err := c.enter(OpGetGlobal)
	if err != nil {
		return nil, err
	}
	return e.global, nil
}

// Dispose moves the context to StateDisposed and releases its engine.
// Function handles obtained earlier stay usable.
func (c *Context) Dispose() error {
	return c.life.dispose()
}

func (c *Context) enter(op Operation) (*engine, error) {
	if err := c.life.check(op); err != nil {
		return nil, err
	}
	return c.engine()
}

// engine returns the live engine, failing once the context was released.
func (c *Context) engine() (*engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eng == nil {
		return nil, ErrRunAfterDispose
	}
	return c.eng, nil
}

func (c *Context) release() {
	c.mu.Lock()
	e := c.eng
	c.eng = nil
	c.mu.Unlock()
	if e == nil {
		return
	}
	c.opts.observer.ContextDisposed()
	e.log.Debug("context disposed")
}

func first(s []string) string {
	if len(s) > 0 {
		return s[0]
	}
	return ""
}
