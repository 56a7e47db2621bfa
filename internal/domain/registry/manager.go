package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/contextify/internal/contextify"
	"github.com/GriffinCanCode/contextify/internal/eventloop"
	"github.com/GriffinCanCode/contextify/internal/hostobj"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/contextify/internal/shared/id"
)

var (
	ErrNotFound     = errors.New("context not found")
	ErrLimitReached = errors.New("context limit reached")
	ErrClosed       = errors.New("registry closed")
	ErrQuarantined  = errors.New("context quarantined")
)

// Options configures a Manager.
type Options struct {
	MaxContexts  int           // 0 = unlimited
	IdleTTL      time.Duration // 0 = never expire
	DrainTimeout time.Duration // how long a run waits for its timers
	Engine       contextify.Config
	Logger       *logging.Logger
	Metrics      *monitoring.Metrics
	Tracer       *tracing.Tracer
	// Quarantine stops runs on a context after repeated engine failures.
	// nil disables it.
	Quarantine *resilience.Settings
}

// DefaultOptions returns the registry defaults.
func DefaultOptions() Options {
	return Options{
		MaxContexts:  256,
		IdleTTL:      30 * time.Minute,
		DrainTimeout: time.Second,
		Engine:       contextify.DefaultConfig(),
		Quarantine:   &resilience.Settings{Threshold: 3, Cooldown: 30 * time.Second},
	}
}

// entry is a live context plus the event loop that serves its timers.
// mu serializes every use of the context.
type entry struct {
	mu      sync.Mutex
	ctx     *contextify.Context
	loop    *eventloop.Loop
	timers  []string // timer functions added to the sandbox
	created time.Time
	used    time.Time
	runs    int64
	breaker *resilience.Breaker // nil when quarantine is off
}

// Info describes a registered context.
type Info struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	LastUsed  time.Time `json:"last_used"`
	Runs      int64     `json:"runs"`
	Pending   int       `json:"pending_timers"`
	Breaker   string    `json:"breaker,omitempty"`
}

// RunResult is the outcome of Manager.Run.
type RunResult struct {
	Value          any                   `json:"value"`
	Console        []contextify.LogEntry `json:"console"`
	Duration       time.Duration         `json:"duration_ns"`
	Pending        int                   `json:"pending_timers"`
	CallbackErrors []string              `json:"callback_errors,omitempty"`
}

// Stats summarizes the registry.
type Stats struct {
	Contexts    int   `json:"contexts"`
	MaxContexts int   `json:"max_contexts"`
	Runs        int64 `json:"runs"`
	Pending     int   `json:"pending_timers"`
}

// Manager owns the live contexts served over HTTP and WebSocket.
type Manager struct {
	opts Options
	log  *logging.Logger
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]*entry // Protected by mu
	closed  bool              // Protected by mu
}

// NewManager creates an empty registry.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = time.Second
	}
	return &Manager{
		opts:    opts,
		log:     opts.Logger.Named("registry"),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Create builds a context over seed (nil for an empty sandbox) and
// registers it. The seed becomes the live sandbox: scripts write to it, and
// setTimeout, setInterval, clearTimeout and clearInterval are added to it
// unless it already owns them. Dispose removes the added timer functions.
func (m *Manager) Create(seed *hostobj.Object) (Info, error) {
	m.mu.RLock()
	closed, full := m.closed, m.opts.MaxContexts > 0 && len(m.entries) >= m.opts.MaxContexts
	m.mu.RUnlock()
	if closed {
		return Info{}, ErrClosed
	}
	if full {
		return Info{}, fmt.Errorf("%w (%d)", ErrLimitReached, m.opts.MaxContexts)
	}

	e, err := m.newEntry(seed)
	if err != nil {
		return Info{}, err
	}
	if q := m.opts.Quarantine; q != nil {
		e.breaker = m.newBreaker(e.ctx.ID().String(), *q)
	}
	info := e.info()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = m.dispose(info.ID, e)
		return Info{}, ErrClosed
	}
	// Another Create may have filled the last slot while this one built
	// its context.
	if m.opts.MaxContexts > 0 && len(m.entries) >= m.opts.MaxContexts {
		m.mu.Unlock()
		_ = m.dispose(info.ID, e)
		return Info{}, fmt.Errorf("%w (%d)", ErrLimitReached, m.opts.MaxContexts)
	}
	m.entries[info.ID] = e
	m.mu.Unlock()

	m.log.Info("context created", zap.String("context", info.ID))
	return info, nil
}

func (m *Manager) newEntry(seed *hostobj.Object) (*entry, error) {
	if seed == nil {
		seed = hostobj.New()
	}
	cid := id.NewContextID()
	log := m.opts.Logger.With(zap.String("context", cid.String()))

	loopOpts := []eventloop.Option{eventloop.WithLogger(log)}
	ctxOpts := []contextify.Option{
		contextify.WithID(cid),
		contextify.WithConfig(m.opts.Engine),
		contextify.WithLogger(log),
	}
	if m.opts.Metrics != nil {
		loopOpts = append(loopOpts, eventloop.WithObserver(m.opts.Metrics))
		ctxOpts = append(ctxOpts, contextify.WithObserver(m.opts.Metrics))
	}

	var timers []string
	for _, name := range eventloopNames {
		if !seed.HasOwn(name) {
			timers = append(timers, name)
		}
	}
	loop := eventloop.New(loopOpts...)
	if err := loop.Install(seed); err != nil {
		return nil, err
	}
	c, err := contextify.NewContext(seed, ctxOpts...)
	if err != nil {
		removeNames(seed, timers)
		return nil, err
	}
	now := m.now()
	return &entry{ctx: c, loop: loop, timers: timers, created: now, used: now}, nil
}

// Get describes one context.
func (m *Manager) Get(cid string) (Info, error) {
	e, err := m.lookup(cid)
	if err != nil {
		return Info{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.info(), nil
}

// Run executes source in the context, then drains timers that become due
// within the drain timeout. Timers still pending afterwards stay scheduled
// for the next run.
func (m *Manager) Run(ctx context.Context, cid, source, filename string) (*RunResult, error) {
	e, err := m.lookup(cid)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.breaker == nil {
		return m.run(ctx, cid, e, source, filename)
	}
	res, err := resilience.Do(e.breaker, func() (*RunResult, error) {
		return m.run(ctx, cid, e, source, filename)
	})
	if errors.Is(err, resilience.ErrOpen) {
		return nil, fmt.Errorf("%w: %s", ErrQuarantined, cid)
	}
	return res, err
}

// Eval runs source in a throwaway context built over seed and returns the
// result with the final globals. The context is never registered. Like
// Create it writes to seed; the timer functions it adds are removed before
// Eval returns.
func (m *Manager) Eval(ctx context.Context, seed *hostobj.Object, source, filename string) (*RunResult, map[string]any, error) {
	e, err := m.newEntry(seed)
	if err != nil {
		return nil, nil, err
	}
	cid := e.ctx.ID().String()
	defer func() { _ = m.dispose(cid, e) }()

	res, err := m.run(ctx, cid, e, source, filename)
	if err != nil {
		return nil, nil, err
	}
	return res, e.globals(), nil
}

// run must be called with e.mu held.
func (m *Manager) run(ctx context.Context, cid string, e *entry, source, filename string) (*RunResult, error) {
	var res *RunResult
	err := m.trace(ctx, "context.run", cid, func(ctx context.Context) error {
		e.used = m.now()
		e.runs++

		out, err := e.ctx.Execute(source, filename)
		if err != nil {
			return err
		}
		res = &RunResult{
			Value:    contextify.Export(out.Value),
			Console:  out.Console,
			Duration: out.Duration,
		}

		drainCtx, cancel := context.WithTimeout(ctx, m.opts.DrainTimeout)
		defer cancel()
		res.CallbackErrors = callbackErrors(e.loop.Run(drainCtx))
		res.Pending = e.loop.Pending()
		return nil
	})
	return res, err
}

// callbackErrors drops the drain deadline from the loop's aggregate.
func callbackErrors(err error) []string {
	if err == nil {
		return nil
	}
	var merr *multierror.Error
	if !errors.As(err, &merr) {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range merr.Errors {
		if errors.Is(e, context.DeadlineExceeded) || errors.Is(e, context.Canceled) {
			continue
		}
		out = append(out, e.Error())
	}
	return out
}

// Globals returns a JSON-friendly snapshot of the context's globals.
func (m *Manager) Globals(cid string) (map[string]any, error) {
	e, err := m.lookup(cid)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.globals(), nil
}

var eventloopNames = []string{"setTimeout", "setInterval", "clearTimeout", "clearInterval"}

func removeNames(obj *hostobj.Object, names []string) {
	for _, name := range names {
		obj.Delete(name)
	}
}

// Dispose disposes the context and forgets it.
func (m *Manager) Dispose(cid string) error {
	m.mu.Lock()
	e, ok := m.entries[cid]
	delete(m.entries, cid)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, cid)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return m.dispose(cid, e)
}

func (m *Manager) dispose(cid string, e *entry) error {
	err := e.ctx.Dispose()
	if err != nil && !errors.Is(err, contextify.ErrDisposed) {
		m.log.Warn("dispose failed", zap.String("context", cid), zap.Error(err))
		return err
	}
	removeNames(e.ctx.Object(), e.timers)
	m.log.Info("context disposed", zap.String("context", cid))
	return nil
}

// List describes every context, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.info())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Stats returns manager statistics
func (m *Manager) Stats() Stats {
	s := Stats{MaxContexts: m.opts.MaxContexts}
	for _, info := range m.List() {
		s.Contexts++
		s.Runs += info.Runs
		s.Pending += info.Pending
	}
	return s
}

// Sweep disposes contexts idle for longer than the TTL and returns how many
// were removed. Busy contexts are skipped.
func (m *Manager) Sweep() int {
	if m.opts.IdleTTL <= 0 {
		return 0
	}
	now := m.now()

	m.mu.Lock()
	var expired []string
	for cid, e := range m.entries {
		if !e.mu.TryLock() {
			continue
		}
		if now.Sub(e.used) > m.opts.IdleTTL {
			expired = append(expired, cid)
		}
		e.mu.Unlock()
	}
	m.mu.Unlock()

	removed := 0
	for _, cid := range expired {
		if err := m.Dispose(cid); err == nil {
			removed++
		}
	}
	if removed > 0 {
		m.log.Info("expired idle contexts", zap.Int("count", removed))
	}
	return removed
}

// StartSweeper runs Sweep every interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if m.opts.IdleTTL <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Sweep()
			}
		}
	}()
}

// Close disposes every context. Later calls to Create fail with ErrClosed.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	entries := m.entries
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var result *multierror.Error
	for cid, e := range entries {
		e.mu.Lock()
		if err := m.dispose(cid, e); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", cid, err))
		}
		e.mu.Unlock()
	}
	return result.ErrorOrNil()
}

// newBreaker counts only engine failures. Script errors are the script's
// business and never quarantine a context.
func (m *Manager) newBreaker(cid string, settings resilience.Settings) *resilience.Breaker {
	settings.IsFailure = func(err error) bool {
		return contextify.KindOf(err) == contextify.KindEngineFatal
	}
	settings.OnStateChange = func(name string, from, to resilience.State) {
		m.log.Warn("context breaker changed state",
			zap.String("context", name),
			zap.Stringer("from", from),
			zap.Stringer("to", to))
	}
	return resilience.New(cid, settings)
}

func (m *Manager) lookup(cid string) (*entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[cid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cid)
	}
	return e, nil
}

func (m *Manager) trace(ctx context.Context, name, cid string, fn func(context.Context) error) error {
	if m.opts.Tracer == nil {
		return fn(ctx)
	}
	return m.opts.Tracer.Trace(ctx, name, func(ctx context.Context, span *tracing.Span) error {
		span.SetTag("context", cid)
		return fn(ctx)
	})
}

// globals must be called with e.mu held.
func (e *entry) globals() map[string]any {
	out, _ := contextify.Export(e.ctx.Object()).(map[string]any)
	for _, name := range e.timers {
		delete(out, name)
	}
	return out
}

// info must be called with e.mu held.
func (e *entry) info() Info {
	info := Info{
		ID:        e.ctx.ID().String(),
		State:     e.ctx.State().String(),
		CreatedAt: e.created,
		LastUsed:  e.used,
		Runs:      e.runs,
		Pending:   e.loop.Pending(),
	}
	if e.breaker != nil {
		info.Breaker = e.breaker.State().String()
	}
	return info
}
