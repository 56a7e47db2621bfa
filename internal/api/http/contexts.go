package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

// CreateRequest seeds a new context.
type CreateRequest struct {
	Globals map[string]any `json:"globals"`
}

// RunRequest carries a script to run.
type RunRequest struct {
	Source   string `json:"source" binding:"required"`
	Filename string `json:"filename"`
}

// EvalRequest runs a script in a throwaway context.
type EvalRequest struct {
	Source   string         `json:"source" binding:"required"`
	Filename string         `json:"filename"`
	Globals  map[string]any `json:"globals"`
}

// CreateContext creates a context seeded with the request globals.
func (h *Handlers) CreateContext(c *gin.Context) {
	var req CreateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	if err := req.validate(); err != nil {
		badRequest(c, err)
		return
	}

	info, err := h.registry.Create(hostobj.FromMap(req.Globals))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

// ListContexts lists live contexts.
func (h *Handlers) ListContexts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"contexts": h.registry.List(),
		"stats":    h.registry.Stats(),
	})
}

// GetContext returns a context's metadata and a snapshot of its globals.
func (h *Handlers) GetContext(c *gin.Context) {
	cid := c.Param("id")
	info, err := h.registry.Get(cid)
	if err != nil {
		h.fail(c, err)
		return
	}
	globals, err := h.registry.Globals(cid)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"context": info,
		"globals": globals,
	})
}

// RunInContext runs a script in a live context.
func (h *Handlers) RunInContext(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.validate(); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.registry.Run(c.Request.Context(), c.Param("id"), req.Source, req.Filename)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DisposeContext disposes a context and removes it from the registry.
func (h *Handlers) DisposeContext(c *gin.Context) {
	cid := c.Param("id")
	if err := h.registry.Dispose(cid); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": cid, "state": "disposed"})
}

// Eval runs a script in a fresh context that is discarded afterwards.
func (h *Handlers) Eval(c *gin.Context) {
	var req EvalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := req.validate(); err != nil {
		badRequest(c, err)
		return
	}

	res, globals, err := h.registry.Eval(c.Request.Context(), hostobj.FromMap(req.Globals), req.Source, req.Filename)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"result":  res,
		"globals": globals,
	})
}
