package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/gabriel-vasile/mimetype"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// MaxScriptSize limits script input to 10MB.
const MaxScriptSize = 10 * 1024 * 1024

var (
	ErrNoMatches  = errors.New("no files matched")
	ErrBinary     = errors.New("not a text file")
	ErrTooLarge   = errors.New("file too large")
	ErrSeedFormat = errors.New("unsupported seed format")
)

// Script is a decoded script file.
type Script struct {
	Path    string
	Source  string
	Charset string
}

// Expand resolves glob patterns (with ** support) into a sorted, de-duplicated
// list of files. Patterns without glob meta characters are returned as-is so
// a missing file surfaces as a read error later.
func Expand(patterns ...string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}

	for _, pattern := range patterns {
		if !hasMeta(pattern) {
			add(filepath.Clean(pattern))
			continue
		}
		if !doublestar.ValidatePattern(filepath.ToSlash(pattern)) {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, doublestar.ErrBadPattern)
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			add(m)
		}
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoMatches, strings.Join(patterns, " "))
	}
	return out, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// ReadScript reads path and decodes it to UTF-8. Binary files are rejected.
func ReadScript(path string) (*Script, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > MaxScriptSize {
		return nil, fmt.Errorf("%w: %s (%d bytes)", ErrTooLarge, path, info.Size())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	source, cs, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Script{Path: path, Source: source, Charset: cs}, nil
}

// Decode converts script bytes to a UTF-8 string and reports the detected
// charset.
func Decode(data []byte) (string, string, error) {
	if len(data) == 0 {
		return "", "utf-8", nil
	}
	if !IsText(data) {
		return "", "", fmt.Errorf("%w: %s", ErrBinary, mimetype.Detect(data).String())
	}

	cs := DetectCharset(data)
	var r io.Reader = bytes.NewReader(data)
	if cs == "utf-8" {
		r = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	} else {
		decoded, err := charset.NewReaderLabel(cs, r)
		if err != nil {
			return "", "", fmt.Errorf("decode %s: %w", cs, err)
		}
		r = decoded
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return "", "", fmt.Errorf("decode %s: %w", cs, err)
	}
	return string(out), cs, nil
}

// IsText reports whether data looks like text.
func IsText(data []byte) bool {
	for m := mimetype.Detect(data); m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "text/"),
			m.Is("application/json"),
			m.Is("application/javascript"),
			m.Is("application/xml"):
			return true
		}
	}
	return false
}

// DetectCharset returns the lower-cased best guess for data's charset,
// falling back to utf-8.
func DetectCharset(data []byte) string {
	if isASCIIOrUTF8(data) {
		return "utf-8"
	}
	result, err := chardet.NewTextDetector().DetectBest(data)
	if err != nil || result == nil {
		return "utf-8"
	}
	return strings.ToLower(result.Charset)
}

func isASCIIOrUTF8(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) || utf8.Valid(data)
}
