package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
)

func TestStartSpanPropagates(t *testing.T) {
	tracer := New("test", logging.NewNop())
	defer tracer.Close()

	parent, ctx := tracer.StartSpan(context.Background(), "parent")
	child, _ := tracer.StartSpan(ctx, "child")

	assert.NotEmpty(t, parent.TraceID)
	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
	assert.NotEqual(t, parent.SpanID, child.SpanID)
}

func TestTraceRecordsError(t *testing.T) {
	tracer := New("test", logging.NewNop())
	defer tracer.Close()

	boom := errors.New("boom")
	var seen *Span
	err := tracer.Trace(context.Background(), "op", func(ctx context.Context, span *Span) error {
		seen = span
		assert.Equal(t, span.SpanID, GetSpanID(ctx))
		return boom
	})

	assert.ErrorIs(t, err, boom)
	require.NotNil(t, seen)
	assert.Equal(t, boom, seen.Error)
	assert.Equal(t, 500, seen.StatusCode)
	assert.False(t, seen.EndTime.IsZero())
}

func TestHTTPMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New("test", logging.NewNop())
	defer tracer.Close()

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	var traceID TraceID
	router.GET("/ping", func(c *gin.Context) {
		traceID = GetTraceID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderTraceID, "incoming-trace")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, TraceID("incoming-trace"), traceID)
	assert.Equal(t, "incoming-trace", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))
}
