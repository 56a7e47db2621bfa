package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
)

// Prefix is prepended to every environment variable name.
const Prefix = "CONTEXTIFY"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `envconfig:"SERVER"`
	Engine    EngineConfig    `envconfig:"ENGINE"`
	Logging   LogConfig       `envconfig:"LOG"`
	RateLimit RateLimitConfig `envconfig:"RATE"`
	Registry  RegistryConfig  `envconfig:"REGISTRY"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// EngineConfig holds per-context script engine settings.
type EngineConfig struct {
	Console    bool   `envconfig:"CONSOLE" default:"true"`
	Filename   string `envconfig:"FILENAME" default:"ContextifyScript.<anonymous>"`
	MaxConsole int    `envconfig:"MAX_CONSOLE" default:"1000"`
	MaxStack   int    `envconfig:"MAX_STACK" default:"10000"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LEVEL" default:"info"`
	Development bool   `envconfig:"DEVELOPMENT" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RPS" default:"100"`
	Burst             int  `envconfig:"BURST" default:"200"`
	Enabled           bool `envconfig:"ENABLED" default:"true"`
}

// RegistryConfig bounds the live context registry.
type RegistryConfig struct {
	MaxContexts int           `envconfig:"MAX_CONTEXTS" default:"256"`
	IdleTTL     time.Duration `envconfig:"IDLE_TTL" default:"30m"`
	SweepEvery  time.Duration `envconfig:"SWEEP_INTERVAL" default:"1m"`
	Drain       time.Duration `envconfig:"DRAIN_TIMEOUT" default:"1s"`
	SeedDir     string        `envconfig:"SEED_DIR"`
	SnapshotDir string        `envconfig:"SNAPSHOT_DIR"` // empty keeps snapshots in memory

	// Quarantine stops runs on a context after this many consecutive
	// engine failures. 0 disables it.
	QuarantineAfter    int           `envconfig:"QUARANTINE_AFTER" default:"3"`
	QuarantineCooldown time.Duration `envconfig:"QUARANTINE_COOLDOWN" default:"30s"`
}

// Load reads optional dotenv files, then the environment. Variables already
// present in the environment win over dotenv values.
func Load(envFiles ...string) (*Config, error) {
	if err := LoadEnvFiles(envFiles...); err != nil {
		return nil, err
	}
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnvFiles loads dotenv files, skipping ones that do not exist.
func LoadEnvFiles(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault(envFiles ...string) *Config {
	cfg, err := Load(envFiles...)
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Engine: EngineConfig{
			Console:    true,
			Filename:   "ContextifyScript.<anonymous>",
			MaxConsole: 1000,
			MaxStack:   10000,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Registry: RegistryConfig{
			MaxContexts:        256,
			IdleTTL:            30 * time.Minute,
			SweepEvery:         time.Minute,
			Drain:              time.Second,
			QuarantineAfter:    3,
			QuarantineCooldown: 30 * time.Second,
		},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	port, err := strconv.Atoi(c.Server.Port)
	if err != nil || port < 0 || port > 65535 {
		return fmt.Errorf("invalid server port %q", c.Server.Port)
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Engine.MaxConsole < 0 {
		return fmt.Errorf("invalid console limit %d", c.Engine.MaxConsole)
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit needs positive rps and burst, got %d/%d",
			c.RateLimit.RequestsPerSecond, c.RateLimit.Burst)
	}
	if c.Registry.MaxContexts < 0 {
		return fmt.Errorf("invalid max contexts %d", c.Registry.MaxContexts)
	}
	if c.Registry.IdleTTL < 0 {
		return fmt.Errorf("invalid idle ttl %s", c.Registry.IdleTTL)
	}
	if c.Engine.MaxStack < 0 {
		return fmt.Errorf("invalid max stack %d", c.Engine.MaxStack)
	}
	if c.Registry.QuarantineAfter < 0 || c.Registry.QuarantineCooldown < 0 {
		return fmt.Errorf("invalid quarantine %d/%s", c.Registry.QuarantineAfter, c.Registry.QuarantineCooldown)
	}
	return nil
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// Logger builds the logger described by c.
func (c LogConfig) Logger() (*logging.Logger, error) {
	base := logging.DefaultConfig()
	if c.Development {
		base = logging.DevelopmentConfig()
	}
	if c.Level != "" {
		base.Level = c.Level
	}
	return logging.New(base)
}
