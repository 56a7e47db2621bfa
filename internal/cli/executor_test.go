package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/config"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/server"
)

// flakyServer answers the first failures requests with 503 and hands the
// rest to a real server.
func flakyServer(t *testing.T, failures int32) (string, *atomic.Int32) {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	srv, err := server.NewServer(cfg, logging.NewNop())
	require.NoError(t, err)

	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= failures {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"warming up"}`))
			return
		}
		srv.Handler().ServeHTTP(w, r)
	}))
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return ts.URL, &calls
}

func TestRemoteRetriesUnavailable(t *testing.T) {
	url, calls := flakyServer(t, 1)
	exec := newRemoteExecutor(url)

	res, globals, err := exec.eval(context.Background(),
		hostobj.FromMap(map[string]any{"a": 2}), "b = a + 1", "retry.js")
	require.NoError(t, err)
	assert.EqualValues(t, 3, res.Value)
	assert.EqualValues(t, 3, globals["b"])
	assert.EqualValues(t, 2, calls.Load())
}

func TestRemoteGivesUpWithServerError(t *testing.T) {
	url, calls := flakyServer(t, 100)
	exec := newRemoteExecutor(url)

	_, err := exec.create(context.Background(), nil)
	require.Error(t, err)
	var rerr *remoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusServiceUnavailable, rerr.Status)
	assert.Equal(t, "warming up", rerr.Body.Error)
	assert.EqualValues(t, 4, calls.Load(), "one attempt plus three retries")
}

func TestRemoteDoesNotRetryScriptErrors(t *testing.T) {
	url, calls := flakyServer(t, 0)
	exec := newRemoteExecutor(url)

	_, _, err := exec.eval(context.Background(), nil, "missing", "")
	var rerr *remoteError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, http.StatusUnprocessableEntity, rerr.Status)
	assert.Equal(t, "ReferenceError", rerr.Body.Kind)
	assert.EqualValues(t, 1, calls.Load())
}
