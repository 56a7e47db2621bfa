package eventloop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/contextify/internal/contextify"
	"github.com/GriffinCanCode/contextify/internal/hostobj"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
)

// Observer is notified after every callback. monitoring.Metrics
// satisfies it.
type Observer interface {
	CallbackFinished(err error)
}

type timer struct {
	id       int64
	seq      int64
	due      time.Time
	interval time.Duration
	fn       *contextify.Function
	args     []any
}

// Loop runs timer callbacks scheduled by scripts. Callbacks execute on the
// goroutine that calls Run, one at a time.
type Loop struct {
	mu     sync.Mutex
	timers map[int64]*timer
	nextID int64
	seq    int64

	log      *logging.Logger
	observer Observer
	now      func() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop logger.
func WithLogger(l *logging.Logger) Option {
	return func(lp *Loop) { lp.log = l }
}

// WithObserver reports callback outcomes to obs.
func WithObserver(obs Observer) Option {
	return func(lp *Loop) { lp.observer = obs }
}

// New creates an empty loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		timers: make(map[int64]*timer),
		log:    logging.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Install exposes setTimeout, setInterval, clearTimeout and clearInterval
// on obj. Names obj already owns are left alone.
func (l *Loop) Install(obj *hostobj.Object) error {
	funcs := []struct {
		name string
		fn   contextify.Func
	}{
		{"setTimeout", l.scheduleFunc(false)},
		{"setInterval", l.scheduleFunc(true)},
		{"clearTimeout", l.clearFunc},
		{"clearInterval", l.clearFunc},
	}
	for _, f := range funcs {
		if obj.HasOwn(f.name) {
			continue
		}
		if err := obj.Set(f.name, f.fn); err != nil {
			return fmt.Errorf("install %s: %w", f.name, err)
		}
	}
	return nil
}

func (l *Loop) scheduleFunc(repeat bool) contextify.Func {
	return func(call contextify.Call) (any, error) {
		fn, ok := call.Argument(0).(*contextify.Function)
		if !ok {
			return nil, fmt.Errorf("callback must be a function, got %T", call.Argument(0))
		}
		delay := toDuration(call.Argument(1))
		var args []any
		if len(call.Args) > 2 {
			args = append(args, call.Args[2:]...)
		}
		if repeat {
			return l.SetInterval(fn, delay, args...), nil
		}
		return l.SetTimeout(fn, delay, args...), nil
	}
}

func (l *Loop) clearFunc(call contextify.Call) (any, error) {
	switch id := call.Argument(0).(type) {
	case int64:
		l.ClearTimeout(id)
	case float64:
		l.ClearTimeout(int64(id))
	}
	return hostobj.Undefined{}, nil
}

// SetTimeout schedules fn to run once after delay and returns its ID.
func (l *Loop) SetTimeout(fn *contextify.Function, delay time.Duration, args ...any) int64 {
	return l.schedule(fn, delay, 0, args)
}

// SetInterval schedules fn to run every interval until cleared.
func (l *Loop) SetInterval(fn *contextify.Function, interval time.Duration, args ...any) int64 {
	if interval <= 0 {
		interval = time.Millisecond
	}
	return l.schedule(fn, interval, interval, args)
}

// ClearTimeout cancels a pending timeout or interval. Unknown IDs are
// ignored.
func (l *Loop) ClearTimeout(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.timers, id)
}

// Pending returns the number of scheduled callbacks.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

func (l *Loop) schedule(fn *contextify.Function, delay, interval time.Duration, args []any) int64 {
	if delay < 0 {
		delay = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.nextID++
	l.seq++
	l.timers[l.nextID] = &timer{
		id:       l.nextID,
		seq:      l.seq,
		due:      l.now().Add(delay),
		interval: interval,
		fn:       fn,
		args:     args,
	}
	return l.nextID
}

// Run executes callbacks as they become due until none are pending or ctx
// is done. Callback failures do not stop the loop; they are returned
// together once it drains.
func (l *Loop) Run(ctx context.Context) error {
	var result *multierror.Error
	for {
		t, wait := l.next()
		if t == nil {
			return result.ErrorOrNil()
		}
		if wait > 0 {
			tm := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				tm.Stop()
				return multierror.Append(result, ctx.Err()).ErrorOrNil()
			case <-tm.C:
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return multierror.Append(result, err).ErrorOrNil()
		}
		if err := l.fire(t); err != nil {
			result = multierror.Append(result, err)
		}
	}
}

// next returns the earliest timer and how long until it is due.
func (l *Loop) next() (*timer, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var best *timer
	for _, t := range l.timers {
		if best == nil || t.due.Before(best.due) || t.due.Equal(best.due) && t.seq < best.seq {
			best = t
		}
	}
	if best == nil {
		return nil, 0
	}
	return best, best.due.Sub(l.now())
}

func (l *Loop) fire(t *timer) error {
	l.mu.Lock()
	if t.interval > 0 {
		l.seq++
		t.seq = l.seq
		t.due = l.now().Add(t.interval)
	} else {
		delete(l.timers, t.id)
	}
	l.mu.Unlock()

	_, err := t.fn.Call(t.args...)
	if l.observer != nil {
		l.observer.CallbackFinished(err)
	}
	if err != nil {
		l.log.Warn("timer callback failed", zap.Int64("timer", t.id), zap.Error(err))
		return fmt.Errorf("timer %d: %w", t.id, err)
	}
	return nil
}

func toDuration(v any) time.Duration {
	switch n := v.(type) {
	case int64:
		return time.Duration(n) * time.Millisecond
	case float64:
		return time.Duration(n * float64(time.Millisecond))
	}
	return 0
}
