package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/contextify/internal/domain/registry"
	"github.com/GriffinCanCode/contextify/internal/domain/session"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/monitoring"
)

// Version is reported by the root endpoint.
var Version = "dev"

// Handlers contains all HTTP handlers
type Handlers struct {
	registry *registry.Manager
	sessions *session.Manager
	metrics  *monitoring.Metrics
	log      *logging.Logger
	started  time.Time
}

// NewHandlers creates a new handler set. Snapshot routes are only mounted
// when sessions is non-nil.
func NewHandlers(reg *registry.Manager, sessions *session.Manager, metrics *monitoring.Metrics, log *logging.Logger) *Handlers {
	if log == nil {
		log = logging.NewNop()
	}
	return &Handlers{
		registry: reg,
		sessions: sessions,
		metrics:  metrics,
		log:      log,
		started:  time.Now(),
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)

	v1 := r.Group("/v1")
	v1.POST("/eval", h.Eval)
	v1.POST("/contexts", h.CreateContext)
	v1.GET("/contexts", h.ListContexts)
	v1.GET("/contexts/:id", h.GetContext)
	v1.POST("/contexts/:id/run", h.RunInContext)
	v1.DELETE("/contexts/:id", h.DisposeContext)

	if h.sessions != nil {
		v1.POST("/contexts/:id/snapshots", h.SaveSnapshot)
		v1.GET("/snapshots", h.ListSnapshots)
		v1.GET("/snapshots/:sid", h.GetSnapshot)
		v1.POST("/snapshots/:sid/restore", h.RestoreSnapshot)
		v1.DELETE("/snapshots/:sid", h.DeleteSnapshot)
	}
}

// Root identifies the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "contextify",
		"version": Version,
	})
}

// Health handles detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"uptime":   time.Since(h.started).String(),
		"registry": h.registry.Stats(),
	})
}

// Stats returns running totals alongside registry statistics.
func (h *Handlers) Stats(c *gin.Context) {
	body := gin.H{"registry": h.registry.Stats()}
	if h.metrics != nil {
		body["engine"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}
