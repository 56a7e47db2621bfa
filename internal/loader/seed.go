package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/contextify/internal/hostobj"
)

// Format identifies a seed file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var seedJSON = sonic.Config{UseInt64: true}.Froze()

// FormatOf infers a seed format from a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrSeedFormat, filepath.Ext(path))
}

// LoadSeed reads a JSON, YAML or TOML document into a sandbox object.
func LoadSeed(path string) (*hostobj.Object, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	obj, err := ParseSeed(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return obj, nil
}

// ParseSeed decodes data as format. The top level must be a mapping.
// YAML keeps document order; JSON and TOML keys are sorted.
func ParseSeed(data []byte, format Format) (*hostobj.Object, error) {
	switch format {
	case FormatYAML:
		var doc yaml.MapSlice
		if err := yaml.UnmarshalWithOptions(data, &doc, yaml.UseOrderedMap()); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
		return fromMapSlice(doc), nil

	case FormatTOML:
		m := make(map[string]any)
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse toml: %w", err)
		}
		return hostobj.FromMap(m), nil

	case FormatJSON:
		m := make(map[string]any)
		if err := seedJSON.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse json: %w", err)
		}
		return hostobj.FromMap(m), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrSeedFormat, format)
}

func fromMapSlice(ms yaml.MapSlice) *hostobj.Object {
	obj := hostobj.New()
	for _, item := range ms {
		// Set only fails for read-only inherited props; a fresh object has none.
		_ = obj.Set(fmt.Sprint(item.Key), fromYAML(item.Value))
	}
	return obj
}

func fromYAML(v any) any {
	switch v := v.(type) {
	case yaml.MapSlice:
		return fromMapSlice(v)
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = fromYAML(e)
		}
		return out
	case uint64:
		return int64(v)
	}
	return v
}
