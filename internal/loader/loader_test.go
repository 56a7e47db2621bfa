package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.js", []byte("1"))
	b := writeFile(t, dir, "nested/deep/b.js", []byte("2"))
	writeFile(t, dir, "nested/readme.txt", []byte("x"))

	files, err := Expand(filepath.Join(dir, "**", "*.js"))
	require.NoError(t, err)
	assert.Equal(t, []string{a, b}, files)

	t.Run("duplicates collapse", func(t *testing.T) {
		files, err := Expand(filepath.Join(dir, "*.js"), a)
		require.NoError(t, err)
		assert.Equal(t, []string{a}, files)
	})

	t.Run("literal paths pass through", func(t *testing.T) {
		missing := filepath.Join(dir, "missing.js")
		files, err := Expand(missing)
		require.NoError(t, err)
		assert.Equal(t, []string{missing}, files)
	})

	t.Run("no matches", func(t *testing.T) {
		_, err := Expand(filepath.Join(dir, "**", "*.ts"))
		assert.ErrorIs(t, err, ErrNoMatches)
	})
}

func TestReadScript(t *testing.T) {
	dir := t.TempDir()

	t.Run("utf-8 with BOM", func(t *testing.T) {
		path := writeFile(t, dir, "bom.js", append([]byte{0xEF, 0xBB, 0xBF}, []byte("x = 'héllo'")...))
		s, err := ReadScript(path)
		require.NoError(t, err)
		assert.Equal(t, "x = 'héllo'", s.Source)
		assert.Equal(t, "utf-8", s.Charset)
	})

	t.Run("latin-1", func(t *testing.T) {
		text := "// Le café est très chaud, la crème brûlée est délicieuse et le garçon a été très gentil.\n" +
			"var phrase = 'À bientôt, mon élève préféré; déjà vu, où est la fenêtre?';\n"
		latin1 := make([]byte, 0, len(text))
		for _, r := range text {
			latin1 = append(latin1, byte(r))
		}
		path := writeFile(t, dir, "latin1.js", latin1)

		s, err := ReadScript(path)
		require.NoError(t, err)
		assert.NotEqual(t, "utf-8", s.Charset)
		assert.Contains(t, s.Source, "café")
	})

	t.Run("binary rejected", func(t *testing.T) {
		png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
		path := writeFile(t, dir, "image.js", png)
		_, err := ReadScript(path)
		assert.ErrorIs(t, err, ErrBinary)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := ReadScript(filepath.Join(dir, "nope.js"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("empty", func(t *testing.T) {
		s, err := ReadScript(writeFile(t, dir, "empty.js", nil))
		require.NoError(t, err)
		assert.Empty(t, s.Source)
	})
}

func TestLoadSeed(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		file string
		data string
	}{
		{"json", "seed.json", `{"name": "demo", "count": 3, "nested": {"enabled": true}, "list": [1, "two"]}`},
		{"yaml", "seed.yaml", "name: demo\ncount: 3\nnested:\n  enabled: true\nlist:\n  - 1\n  - two\n"},
		{"toml", "seed.toml", "name = \"demo\"\ncount = 3\nlist = [1, \"two\"]\n\n[nested]\nenabled = true\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := LoadSeed(writeFile(t, dir, tt.file, []byte(tt.data)))
			require.NoError(t, err)

			assert.Equal(t, "demo", obj.MustGet("name"))
			assert.EqualValues(t, 3, obj.MustGet("count"))

			nested, ok := obj.MustGet("nested").(*hostobj.Object)
			require.True(t, ok)
			assert.Equal(t, true, nested.MustGet("enabled"))

			list, ok := obj.MustGet("list").([]any)
			require.True(t, ok)
			require.Len(t, list, 2)
			assert.EqualValues(t, 1, list[0])
			assert.Equal(t, "two", list[1])
		})
	}
}

func TestYAMLSeedKeepsOrder(t *testing.T) {
	obj, err := ParseSeed([]byte("zeta: 1\nalpha: 2\nmid: 3\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, obj.Keys())
}

func TestSeedErrors(t *testing.T) {
	_, err := FormatOf("seed.ini")
	assert.ErrorIs(t, err, ErrSeedFormat)

	_, err = ParseSeed([]byte("{not json"), FormatJSON)
	assert.Error(t, err)

	_, err = ParseSeed([]byte("x = "), FormatTOML)
	assert.Error(t, err)
}

func TestWalk(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.json", "nested/b.YAML", "nested/deep/c.toml", "notes.txt", "d.js"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	}

	files, err := Walk(context.Background(), dir, ".json", ".yaml", ".toml")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.json"),
		filepath.Join(dir, "nested/b.YAML"),
		filepath.Join(dir, "nested/deep/c.toml"),
	}, files)

	all, err := Walk(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Walk(ctx, dir)
	assert.ErrorIs(t, err, context.Canceled)
}
