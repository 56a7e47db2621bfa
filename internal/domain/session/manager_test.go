package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/contextify/internal/domain/registry"
	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

func setup(t *testing.T) (*registry.Manager, string) {
	t.Helper()
	reg := registry.NewManager(registry.DefaultOptions())
	t.Cleanup(func() { _ = reg.Close() })

	info, err := reg.Create(hostobj.FromMap(map[string]any{"count": 1}))
	require.NoError(t, err)
	_, err = reg.Run(context.Background(), info.ID, "count += 41; label = 'x'; items = [1, 'two']", "")
	require.NoError(t, err)
	return reg, info.ID
}

func TestSaveAndRestore(t *testing.T) {
	ctx := context.Background()
	reg, cid := setup(t)
	m := NewManager(reg, t.TempDir(), nil)

	snap, err := m.Save(ctx, cid, SaveOptions{Name: "checkpoint"})
	require.NoError(t, err)
	assert.Equal(t, "checkpoint", snap.Name)
	assert.Equal(t, cid, snap.Context)

	// Changes after the save are not captured.
	_, err = reg.Run(ctx, cid, "count = 0", "")
	require.NoError(t, err)

	info, err := m.Restore(ctx, snap.ID)
	require.NoError(t, err)
	assert.NotEqual(t, cid, info.ID)

	globals, err := reg.Globals(info.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 42, globals["count"])
	assert.Equal(t, "x", globals["label"])
	assert.Equal(t, []any{int64(1), "two"}, globals["items"])
}

func TestLoadFromDisk(t *testing.T) {
	ctx := context.Background()
	reg, cid := setup(t)
	dir := t.TempDir()

	snap, err := NewManager(reg, dir, nil).Save(ctx, cid, SaveOptions{})
	require.NoError(t, err)
	raw, err := os.ReadFile(filepath.Join(dir, snap.ID+snapshotExt))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x28, 0xb5, 0x2f, 0xfd}, raw[:4], "zstd frame magic")

	// A fresh manager only has the file.
	fresh := NewManager(reg, dir, nil)
	loaded, err := fresh.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, cid, loaded.Name)
	assert.Equal(t, int64(42), loaded.Globals["count"])

	list, err := NewManager(reg, dir, nil).List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, snap.ID, list[0].ID)
	assert.Equal(t, 3, list[0].Keys)
}

func TestMemoryOnly(t *testing.T) {
	ctx := context.Background()
	reg, cid := setup(t)
	m := NewManager(reg, "", nil)

	snap, err := m.Save(ctx, cid, SaveOptions{Name: "mem"})
	require.NoError(t, err)

	list, err := m.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, false, m.Stats()["persistent"])

	require.NoError(t, m.Delete(ctx, snap.ID))
	_, err = m.Load(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	reg, cid := setup(t)
	dir := t.TempDir()
	m := NewManager(reg, dir, nil)

	snap, err := m.Save(ctx, cid, SaveOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Delete(ctx, snap.ID))

	_, err = os.Stat(filepath.Join(dir, snap.ID+snapshotExt))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.ErrorIs(t, m.Delete(ctx, snap.ID), ErrNotFound)
}

func TestInvalidIDs(t *testing.T) {
	reg, _ := setup(t)
	m := NewManager(reg, t.TempDir(), nil)

	for _, sid := range []string{"", "../secrets", "ctx_01HZY3N1Q9V5J4X8K2M7P6R0TB"} {
		_, err := m.Load(context.Background(), sid)
		assert.ErrorIs(t, err, ErrInvalidID, sid)
	}
}

func TestSaveUnknownContext(t *testing.T) {
	reg, _ := setup(t)
	m := NewManager(reg, "", nil)

	_, err := m.Save(context.Background(), "ctx_missing", SaveOptions{})
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestListSkipsGarbage(t *testing.T) {
	reg, _ := setup(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snap_01HZY3N1Q9V5J4X8K2M7P6R0TB.json.zst"), []byte("{broken"), 0o644))

	list, err := NewManager(reg, dir, nil).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}
