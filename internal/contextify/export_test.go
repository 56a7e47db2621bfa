package contextify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

func TestExport(t *testing.T) {
	sb, obj := newSandbox(t, map[string]any{"name": "demo"})
	mustRun(t, sb, `list = [1, 'two', {three: 3}]; function named() {}; nothing = undefined`)
	require.NoError(t, obj.Set("self", obj))

	out, ok := Export(obj).(map[string]any)
	require.True(t, ok)

	assert.Equal(t, "demo", out["name"])
	assert.Equal(t, []any{int64(1), "two", map[string]any{"three": int64(3)}}, out["list"])
	assert.Equal(t, "[Function: named]", out["named"])
	assert.Equal(t, "[Function]", out["run"])
	assert.Nil(t, out["nothing"])
	assert.Equal(t, "[Circular]", out["self"])
}

func TestExportGlobal(t *testing.T) {
	sb, _ := newSandbox(t, map[string]any{"a": 1})
	g, err := sb.GetGlobal()
	require.NoError(t, err)

	out, ok := Export(g).(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, out["a"])
	assert.Nil(t, Export(hostobj.Undefined{}))
}
