package http

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/contextify/internal/domain/registry"
	"github.com/GriffinCanCode/contextify/internal/domain/session"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/monitoring"
)

type testAPI struct {
	router   *gin.Engine
	registry *registry.Manager
}

func setupAPI(t *testing.T, mutate ...func(*registry.Options)) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	opts := registry.DefaultOptions()
	for _, fn := range mutate {
		fn(&opts)
	}
	reg := registry.NewManager(opts)
	t.Cleanup(func() { _ = reg.Close() })

	router := gin.New()
	NewHandlers(reg, session.NewManager(reg, t.TempDir(), nil), monitoring.NewMetrics(), nil).Register(router)
	return &testAPI{router: router, registry: reg}
}

func (a *testAPI) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	out := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func TestContextLifecycle(t *testing.T) {
	api := setupAPI(t)

	code, created := api.do(t, "POST", "/v1/contexts", `{"globals": {"greeting": "hello"}}`)
	require.Equal(t, http.StatusCreated, code)
	cid, _ := created["id"].(string)
	require.NotEmpty(t, cid)
	assert.Equal(t, "active", created["state"])

	code, res := api.do(t, "POST", "/v1/contexts/"+cid+"/run", `{"source": "console.log(greeting); answer = greeting + ' world'"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "hello world", res["value"])
	console, _ := res["console"].([]any)
	require.Len(t, console, 1)

	code, got := api.do(t, "GET", "/v1/contexts/"+cid, "")
	require.Equal(t, http.StatusOK, code)
	globals, _ := got["globals"].(map[string]any)
	assert.Equal(t, "hello world", globals["answer"])

	code, list := api.do(t, "GET", "/v1/contexts", "")
	require.Equal(t, http.StatusOK, code)
	contexts, _ := list["contexts"].([]any)
	assert.Len(t, contexts, 1)

	code, _ = api.do(t, "DELETE", "/v1/contexts/"+cid, "")
	assert.Equal(t, http.StatusOK, code)

	code, body := api.do(t, "POST", "/v1/contexts/"+cid+"/run", `{"source": "1"}`)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, body["error"], "context not found")
}

func TestCreateWithoutBody(t *testing.T) {
	api := setupAPI(t)
	code, created := api.do(t, "POST", "/v1/contexts", "")
	assert.Equal(t, http.StatusCreated, code)
	assert.NotEmpty(t, created["id"])
}

func TestRunScriptErrors(t *testing.T) {
	api := setupAPI(t)
	info, err := api.registry.Create(nil)
	require.NoError(t, err)
	path := "/v1/contexts/" + info.ID + "/run"

	tests := []struct {
		name   string
		source string
		kind   string
	}{
		{"reference", "doh", "ReferenceError"},
		{"syntax", "function ( {", "SyntaxError"},
		{"type", "null.x", "TypeError"},
		{"thrown", "throw {code: 7}", "UserThrown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := api.do(t, "POST", path, `{"source": "`+tt.source+`"}`)
			assert.Equal(t, http.StatusUnprocessableEntity, code)
			assert.Equal(t, tt.kind, body["kind"])
			assert.NotEmpty(t, body["error"])
		})
	}

	t.Run("thrown value is exported", func(t *testing.T) {
		_, body := api.do(t, "POST", path, `{"source": "throw {code: 7}"}`)
		thrown, _ := body["thrown"].(map[string]any)
		assert.EqualValues(t, 7, thrown["code"])
	})
}

func TestBadRequests(t *testing.T) {
	api := setupAPI(t)
	info, err := api.registry.Create(nil)
	require.NoError(t, err)

	code, _ := api.do(t, "POST", "/v1/contexts/"+info.ID+"/run", `{"filename": "x.js"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, "POST", "/v1/contexts", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, "GET", "/v1/contexts/ctx_missing", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestContextLimitStatus(t *testing.T) {
	api := setupAPI(t, func(o *registry.Options) { o.MaxContexts = 1 })

	code, _ := api.do(t, "POST", "/v1/contexts", "")
	require.Equal(t, http.StatusCreated, code)
	code, _ = api.do(t, "POST", "/v1/contexts", "")
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestEvalEndpoint(t *testing.T) {
	api := setupAPI(t)

	code, body := api.do(t, "POST", "/v1/eval", `{"source": "total = a + b; total * 2", "globals": {"a": 1, "b": 2}}`)
	require.Equal(t, http.StatusOK, code)
	result, _ := body["result"].(map[string]any)
	assert.EqualValues(t, 6, result["value"])
	globals, _ := body["globals"].(map[string]any)
	assert.EqualValues(t, 3, globals["total"])

	assert.Empty(t, api.registry.List())
}

func TestHealthAndStats(t *testing.T) {
	api := setupAPI(t)

	code, body := api.do(t, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])

	code, body = api.do(t, "GET", "/stats", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "registry")
	assert.Contains(t, body, "engine")

	code, body = api.do(t, "GET", "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "contextify", body["service"])
}

func TestSnapshots(t *testing.T) {
	api := setupAPI(t)
	info, err := api.registry.Create(nil)
	require.NoError(t, err)
	_, err = api.registry.Run(t.Context(), info.ID, "score = 10", "")
	require.NoError(t, err)

	code, snap := api.do(t, "POST", "/v1/contexts/"+info.ID+"/snapshots", `{"name": "before"}`)
	require.Equal(t, http.StatusCreated, code)
	sid, _ := snap["id"].(string)
	require.NotEmpty(t, sid)

	code, list := api.do(t, "GET", "/v1/snapshots", "")
	require.Equal(t, http.StatusOK, code)
	snapshots, _ := list["snapshots"].([]any)
	assert.Len(t, snapshots, 1)

	code, restored := api.do(t, "POST", "/v1/snapshots/"+sid+"/restore", "")
	require.Equal(t, http.StatusCreated, code)
	newID, _ := restored["id"].(string)
	assert.NotEqual(t, info.ID, newID)

	code, got := api.do(t, "GET", "/v1/contexts/"+newID, "")
	require.Equal(t, http.StatusOK, code)
	globals, _ := got["globals"].(map[string]any)
	assert.EqualValues(t, 10, globals["score"])

	code, _ = api.do(t, "DELETE", "/v1/snapshots/"+sid, "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = api.do(t, "GET", "/v1/snapshots/"+sid, "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = api.do(t, "GET", "/v1/snapshots/not-an-id", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestRequestValidation(t *testing.T) {
	api := setupAPI(t)
	info, err := api.registry.Create(nil)
	require.NoError(t, err)

	huge := strings.Repeat("1;", MaxSourceSize)
	code, body := api.do(t, "POST", "/v1/contexts/"+info.ID+"/run", `{"source": "`+huge+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "exceeds maximum")

	deep := strings.Repeat(`{"a":`, MaxGlobalsDepth+2) + "1" + strings.Repeat("}", MaxGlobalsDepth+2)
	code, _ = api.do(t, "POST", "/v1/contexts", `{"globals": `+deep+`}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = api.do(t, "POST", "/v1/eval", `{"source": "1", "filename": "a\u0000b"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	// Label limits count bytes: 200 two-byte runes are over, 256 ASCII bytes are not.
	wide := strings.Repeat("é", 200)
	code, body = api.do(t, "POST", "/v1/eval", `{"source": "1", "filename": "`+wide+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, body["error"], "bytes")

	code, _ = api.do(t, "POST", "/v1/eval", `{"source": "1", "filename": "`+strings.Repeat("a", MaxFilenameLength)+`"}`)
	assert.Equal(t, http.StatusOK, code)
}
