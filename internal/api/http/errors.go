package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/contextify/internal/contextify"
	"github.com/GriffinCanCode/contextify/internal/domain/registry"
	"github.com/GriffinCanCode/contextify/internal/domain/session"
)

// ErrorBody is the JSON shape of every failed request.
type ErrorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind,omitempty"`
	Name   string `json:"name,omitempty"`
	Stack  string `json:"stack,omitempty"`
	Thrown any    `json:"thrown,omitempty"`
}

// NewErrorBody describes err, including script details when err carries a
// *contextify.ScriptError.
func NewErrorBody(err error) ErrorBody {
	body := ErrorBody{Error: err.Error()}
	var se *contextify.ScriptError
	if errors.As(err, &se) {
		body.Kind = se.Kind.String()
		body.Name = se.Name
		body.Stack = se.Stack
		if se.Kind == contextify.KindThrown {
			body.Thrown = contextify.Export(se.Thrown)
		}
	} else if errors.Is(err, contextify.ErrDisposed) {
		body.Kind = contextify.KindUseAfterDispose.String()
	}
	return body
}

// StatusOf maps err to an HTTP status code.
func StatusOf(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrLimitReached):
		return http.StatusTooManyRequests
	case errors.Is(err, registry.ErrClosed), errors.Is(err, registry.ErrQuarantined):
		return http.StatusServiceUnavailable
	case errors.Is(err, contextify.ErrDisposed):
		return http.StatusGone
	}
	switch contextify.KindOf(err) {
	case contextify.KindUnknown, contextify.KindEngineFatal:
		return http.StatusInternalServerError
	}
	// The request was well formed but the script failed.
	return http.StatusUnprocessableEntity
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status := StatusOf(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	_ = c.Error(err)
	c.JSON(status, NewErrorBody(err))
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorBody{Error: err.Error()})
}
