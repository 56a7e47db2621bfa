package cli

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/contextify/internal/infrastructure/config"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/logging"
	"github.com/GriffinCanCode/contextify/internal/infrastructure/server"
)

func init() {
	color.NoColor = true
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	}
	return dir
}

func decodeReports(t *testing.T, out string) []map[string]any {
	t.Helper()
	var reports []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		r := map[string]any{}
		require.NoError(t, sonic.UnmarshalString(line, &r), line)
		reports = append(reports, r)
	}
	return reports
}

func TestRunIsolated(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"a.js":     "x = 1; console.log('from a'); x",
		"b.js":     "typeof x",
		"seed.yml": "base: 10\n",
	})

	var out bytes.Buffer
	err := runScripts(context.Background(), &out, runOptions{
		seed:     filepath.Join(dir, "seed.yml"),
		parallel: 2,
		json:     true,
	}, []string{filepath.Join(dir, "*.js")})
	require.NoError(t, err)

	reports := decodeReports(t, out.String())
	require.Len(t, reports, 2)
	assert.Equal(t, filepath.Join(dir, "a.js"), reports[0]["path"])

	a := reports[0]["result"].(map[string]any)
	assert.EqualValues(t, 1, a["value"])
	b := reports[1]["result"].(map[string]any)
	assert.Equal(t, "undefined", b["value"], "contexts do not share globals")
}

func TestRunShared(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"1-define.js": "function double(n) { return n * 2 }",
		"2-use.js":    "total = double(base)",
		"seed.json":   `{"base": 21}`,
	})

	var out bytes.Buffer
	err := runScripts(context.Background(), &out, runOptions{
		seed:    filepath.Join(dir, "seed.json"),
		shared:  true,
		json:    true,
		globals: true,
	}, []string{filepath.Join(dir, "1-define.js"), filepath.Join(dir, "2-use.js")})
	require.NoError(t, err)

	reports := decodeReports(t, out.String())
	require.Len(t, reports, 2)
	last := reports[1]
	assert.EqualValues(t, 42, last["result"].(map[string]any)["value"])
	globals := last["globals"].(map[string]any)
	assert.EqualValues(t, 42, globals["total"])
	assert.EqualValues(t, 21, globals["base"])
}

func TestRunReportsFailures(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"good.js": "'fine'",
		"bad.js":  "nothing.here",
	})

	var out bytes.Buffer
	err := runScripts(context.Background(), &out, runOptions{parallel: 1},
		[]string{filepath.Join(dir, "good.js"), filepath.Join(dir, "bad.js")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.js")
	assert.NotContains(t, err.Error(), "good.js")

	text := out.String()
	assert.Contains(t, text, `"fine"`)
	assert.Contains(t, text, "ReferenceError")
}

func TestRunTextOutput(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"log.js": "console.warn('careful'); setTimeout(function () {}, 60000); ({a: [1, 2]})",
	})

	var out bytes.Buffer
	err := runScripts(context.Background(), &out, runOptions{globals: true},
		[]string{filepath.Join(dir, "log.js")})
	require.NoError(t, err)

	text := out.String()
	assert.Contains(t, text, "==> ")
	assert.Contains(t, text, "[warn] careful")
	assert.Contains(t, text, `{"a":[1,2]}`)
	assert.Contains(t, text, "1 timer(s) still pending")
	assert.Contains(t, text, "globals:")
}

func TestRunErrors(t *testing.T) {
	dir := writeFiles(t, map[string]string{"a.js": "1"})

	err := runScripts(context.Background(), &bytes.Buffer{}, runOptions{},
		[]string{filepath.Join(dir, "*.ts")})
	assert.Error(t, err)

	err = runScripts(context.Background(), &bytes.Buffer{}, runOptions{seed: filepath.Join(dir, "missing.yaml")},
		[]string{filepath.Join(dir, "a.js")})
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.True(t, strings.HasPrefix(out.String(), "contextify "))
}

func startServer(t *testing.T) string {
	t.Helper()
	cfg := config.Default()
	cfg.RateLimit.Enabled = false
	srv, err := server.NewServer(cfg, logging.NewNop())
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	return ts.URL
}

func TestRunRemote(t *testing.T) {
	url := startServer(t)
	dir := writeFiles(t, map[string]string{
		"a.js":      "n = base * 2",
		"b.js":      "n + 1",
		"bad.js":    "throw new TypeError('remote boom')",
		"seed.toml": "base = 4\n",
	})

	t.Run("isolated", func(t *testing.T) {
		var out bytes.Buffer
		err := runScripts(context.Background(), &out, runOptions{
			remote: url,
			seed:   filepath.Join(dir, "seed.toml"),
			json:   true,
		}, []string{filepath.Join(dir, "a.js"), filepath.Join(dir, "bad.js")})
		require.Error(t, err)

		reports := decodeReports(t, out.String())
		require.Len(t, reports, 2)
		assert.EqualValues(t, 8, reports[0]["result"].(map[string]any)["value"])
		failure := reports[1]["error"].(map[string]any)
		assert.Equal(t, "TypeError", failure["kind"])
		assert.Contains(t, failure["error"], "remote boom")
	})

	t.Run("shared", func(t *testing.T) {
		var out bytes.Buffer
		err := runScripts(context.Background(), &out, runOptions{
			remote:  url,
			seed:    filepath.Join(dir, "seed.toml"),
			shared:  true,
			json:    true,
			globals: true,
		}, []string{filepath.Join(dir, "a.js"), filepath.Join(dir, "b.js")})
		require.NoError(t, err)

		reports := decodeReports(t, out.String())
		require.Len(t, reports, 2)
		assert.EqualValues(t, 9, reports[1]["result"].(map[string]any)["value"])
		assert.EqualValues(t, 8, reports[1]["globals"].(map[string]any)["n"])
	})

	t.Run("unreachable", func(t *testing.T) {
		err := runScripts(context.Background(), &bytes.Buffer{}, runOptions{
			remote: "http://127.0.0.1:1",
			shared: true,
		}, []string{filepath.Join(dir, "a.js")})
		assert.Error(t, err)
	})
}
