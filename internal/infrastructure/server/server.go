package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/contextify/internal/api/http"
	"github.com/GriffinCanCode/contextify/internal/api/middleware"
	"github.com/GriffinCanCode/contextify/internal/api/ws"
	"github.com/GriffinCanCode/contextify/internal/contextify"
	"github.com/GriffinCanCode/contextify/internal/domain/registry"
	"github.com/GriffinCanCode/contextify/internal/domain/session"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/config"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/tracing"
)

const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	registry *registry.Manager
	tracer   *tracing.Tracer
	metrics  *monitoring.Metrics
	logger   *logging.Logger
	config   *config.Config
}

// NewServer creates a new server instance. A nil logger is built from cfg.
func NewServer(cfg *config.Config, logger *logging.Logger) (*Server, error) {
	if logger == nil {
		var err error
		if logger, err = cfg.Logging.Logger(); err != nil {
			return nil, fmt.Errorf("failed to build logger: %w", err)
		}
	}

	logger.Info("Initializing contextify server",
		zap.String("addr", cfg.Server.Addr()),
		zap.Int("max_contexts", cfg.Registry.MaxContexts),
		zap.Duration("idle_ttl", cfg.Registry.IdleTTL),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("contextify", logger)

	reg := registry.NewManager(RegistryOptions(cfg, logger, metrics, tracer))

	if cfg.Registry.SeedDir != "" {
		seeded, err := registry.NewSeeder(reg, cfg.Registry.SeedDir).Seed(context.Background())
		if err != nil {
			logger.Warn("Failed to seed contexts", zap.Error(err))
		} else {
			logger.Info("Seeded contexts", zap.Int("count", len(seeded)))
		}
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.Recovery(logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	sessions := session.NewManager(reg, cfg.Registry.SnapshotDir, logger)

	apihttp.NewHandlers(reg, sessions, metrics, logger).Register(router)
	ws.NewHandler(reg, metrics, logger).Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Server initialized successfully")

	return &Server{
		router:   router,
		registry: reg,
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}, nil
}

// RegistryOptions maps configuration onto registry options.
func RegistryOptions(cfg *config.Config, logger *logging.Logger, metrics *monitoring.Metrics, tracer *tracing.Tracer) registry.Options {
	opts := registry.DefaultOptions()
	opts.MaxContexts = cfg.Registry.MaxContexts
	opts.IdleTTL = cfg.Registry.IdleTTL
	opts.DrainTimeout = cfg.Registry.Drain
	opts.Engine = contextify.Config{
		EnableConsole:    cfg.Engine.Console,
		ConsoleLimit:     cfg.Engine.MaxConsole,
		Filename:         cfg.Engine.Filename,
		MaxCallStackSize: cfg.Engine.MaxStack,
	}
	opts.Logger = logger
	opts.Metrics = metrics
	opts.Tracer = tracer
	opts.Quarantine = nil
	if cfg.Registry.QuarantineAfter > 0 {
		opts.Quarantine = &resilience.Settings{
			Threshold: cfg.Registry.QuarantineAfter,
			Cooldown:  cfg.Registry.QuarantineCooldown,
		}
	}
	return opts
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the context registry.
func (s *Server) Registry() *registry.Manager {
	return s.registry
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.registry.StartSweeper(ctx, s.config.Registry.SweepEvery)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// Close disposes every context and flushes telemetry.
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var result *multierror.Error
	if err := s.registry.Close(); err != nil {
		s.logger.Error("Failed to dispose contexts", zap.Error(err))
		result = multierror.Append(result, err)
	}
	s.tracer.Close()

	// Sync fails on stderr for some platforms; not worth reporting.
	_ = s.logger.Sync()

	return result.ErrorOrNil()
}
