package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/contextify/internal/domain/session"
)

// SnapshotRequest names a snapshot.
type SnapshotRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SaveSnapshot captures a context's globals.
func (h *Handlers) SaveSnapshot(c *gin.Context) {
	var req SnapshotRequest
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

	snap, err := h.sessions.Save(c.Request.Context(), c.Param("id"), session.SaveOptions{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// ListSnapshots lists saved snapshots, newest first.
func (h *Handlers) ListSnapshots(c *gin.Context) {
	list, err := h.sessions.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"snapshots": list,
		"stats":     h.sessions.Stats(),
	})
}

// GetSnapshot returns one snapshot including its globals.
func (h *Handlers) GetSnapshot(c *gin.Context) {
	snap, err := h.sessions.Load(c.Request.Context(), c.Param("sid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// RestoreSnapshot creates a new context from a snapshot.
func (h *Handlers) RestoreSnapshot(c *gin.Context) {
	info, err := h.sessions.Restore(c.Request.Context(), c.Param("sid"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

// DeleteSnapshot removes a snapshot.
func (h *Handlers) DeleteSnapshot(c *gin.Context) {
	sid := c.Param("sid")
	if err := h.sessions.Delete(c.Request.Context(), sid); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": sid, "deleted": true})
}
