package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/contextify/internal/infrastructure/config"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/monitoring"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = "0"
	cfg.Logging.Development = true
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) *Server {
	t.Helper()
	srv, err := NewServer(cfg, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func request(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestRoutesAreWired(t *testing.T) {
	srv := newTestServer(t, testConfig())

	w := request(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Trace-ID"))

	w = request(t, srv, "POST", "/v1/eval", `{"source": "6 * 7"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"value":42`)

	w = request(t, srv, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "contextify_")
}

func TestSeedDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.json"), []byte(`{"name": "app"}`), 0o644))

	cfg := testConfig()
	cfg.Registry.SeedDir = dir
	srv := newTestServer(t, cfg)

	assert.Len(t, srv.Registry().List(), 1)
}

func TestRegistryOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Engine.MaxStack = 123
	cfg.Registry.QuarantineAfter = 0

	opts := RegistryOptions(cfg, logging.NewNop(), monitoring.NewMetrics(), nil)
	assert.Equal(t, 123, opts.Engine.MaxCallStackSize)
	assert.Equal(t, cfg.Registry.MaxContexts, opts.MaxContexts)
	assert.Nil(t, opts.Quarantine)

	cfg.Registry.QuarantineAfter = 5
	opts = RegistryOptions(cfg, logging.NewNop(), nil, nil)
	require.NotNil(t, opts.Quarantine)
	assert.Equal(t, 5, opts.Quarantine.Threshold)
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t, testConfig())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && strings.Contains(string(body), "contextify")
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
