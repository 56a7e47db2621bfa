package contextify

import "sync"

// State is the lifecycle state of a sandbox/context pair.
type State int

const (
	StateActive State = iota
	StateDisposed
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Operation names an entry point guarded by the lifecycle.
type Operation int

const (
	OpRun Operation = iota
	OpGetGlobal
	OpDispose
)

func (op Operation) afterDispose() error {
	switch op {
	case OpRun:
		return ErrRunAfterDispose
	case OpGetGlobal:
		return ErrGetGlobalAfterDispose
	default:
		return ErrDisposeAfterDispose
	}
}

// lifecycle is the one state cell shared by the sandbox-side and
// global-side entry points.
type lifecycle struct {
	mu        sync.Mutex
	state     State
	onDispose []func()
}

func (l *lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// check fails with op's after-dispose error once disposed.
func (l *lifecycle) check(op Operation) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == StateDisposed {
		return op.afterDispose()
	}
	return nil
}

// dispose performs the single Active to Disposed transition. Release hooks
// run outside the lock so they may observe the new state.
func (l *lifecycle) dispose() error {
	l.mu.Lock()
	if l.state == StateDisposed {
		l.mu.Unlock()
		return ErrDisposeAfterDispose
	}
	l.state = StateDisposed
	hooks := l.onDispose
	l.onDispose = nil
	l.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
	return nil
}

func (l *lifecycle) onRelease(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onDispose = append(l.onDispose, fn)
}
