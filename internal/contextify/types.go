package contextify

import (
	"time"

	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/shared/id"
)

// DefaultFilename labels scripts compiled without an explicit filename.
const DefaultFilename = "ContextifyScript.<anonymous>"

// DefaultMaxCallStackSize bounds script recursion. Overflow surfaces as
// KindEngineFatal.
const DefaultMaxCallStackSize = 10000

// Config defines engine configuration
type Config struct {
	EnableConsole    bool   // Install a capturing console on the builtins
	ConsoleLimit     int    // Max retained console entries per context, 0 = unlimited
	Filename         string // Default script label
	MaxCallStackSize int    // 0 means DefaultMaxCallStackSize
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		EnableConsole:    true,
		ConsoleLimit:     1000,
		Filename:         DefaultFilename,
		MaxCallStackSize: DefaultMaxCallStackSize,
	}
}

// Result holds the outcome of Context.Execute.
type Result struct {
	Value    any           // Completion value in host form
	Console  []LogEntry    // Console output produced by this run
	Duration time.Duration // Execution time
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    `json:"level"` // log, info, warn, error, debug
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Observer receives lifecycle and run events. monitoring.Metrics
// satisfies it.
type Observer interface {
	ContextCreated()
	ContextDisposed()
	RunFinished(kind string, duration time.Duration)
}

type nopObserver struct{}

func (nopObserver) ContextCreated()                    {}
func (nopObserver) ContextDisposed()                   {}
func (nopObserver) RunFinished(string, time.Duration) {}

type options struct {
	config   Config
	logger   *logging.Logger
	observer Observer
	id       id.ContextID
}

// Option customizes context construction.
type Option func(*options)

// WithConfig replaces the engine configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithLogger sets the logger used for lifecycle and console events.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithObserver reports lifecycle and run events to obs.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithID assigns the context ID instead of generating one.
func WithID(cid id.ContextID) Option {
	return func(o *options) { o.id = cid }
}

func buildOptions(opts []Option) options {
	o := options{config: DefaultConfig()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.observer == nil {
		o.observer = nopObserver{}
	}
	if o.id == "" {
		o.id = id.NewContextID()
	}
	if o.config.Filename == "" {
		o.config.Filename = DefaultFilename
	}
	if o.config.MaxCallStackSize <= 0 {
		o.config.MaxCallStackSize = DefaultMaxCallStackSize
	}
	return o
}
