package contextify

import (
	"errors"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

// Sandbox is a host object contextified in place: besides the bridged
// context it carries run, getGlobal and dispose as ordinary properties, so
// scripts holding the global can call them too.
type Sandbox struct {
	*Context
}

// New creates a context over obj and attaches the run, getGlobal and
// dispose entry points to it. A nil obj is replaced by an empty object.
func New(obj *hostobj.Object, opts ...Option) (*Sandbox, error) {
	c, err := NewContext(obj, opts...)
	if err != nil {
		return nil, err
	}
	sb := &Sandbox{Context: c}
	entries := []struct {
		name string
		fn   Func
	}{
		{"run", sb.runFunc},
		{"getGlobal", sb.getGlobalFunc},
		{"dispose", sb.disposeFunc},
	}
	for _, entry := range entries {
		if err := sb.obj.Set(entry.name, entry.fn); err != nil && !errors.Is(err, hostobj.ErrReadOnly) {
			_ = c.Dispose()
			return nil, err
		}
	}
	return sb, nil
}

// runFunc backs the script-visible run(source, filename?).
func (sb *Sandbox) runFunc(call Call) (any, error) {
	if err := sb.life.check(OpRun); err != nil {
		return nil, err
	}
	source, ok := call.Argument(0).(string)
	if !ok {
		return nil, newTypeError("run: source must be a string")
	}
	filename, _ := call.Argument(1).(string)
	return sb.Run(source, filename)
}

func (sb *Sandbox) getGlobalFunc(Call) (any, error) {
	g, err := sb.GetGlobal()
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (sb *Sandbox) disposeFunc(Call) (any, error) {
	return hostobj.Undefined{}, sb.Dispose()
}
