package http

import (
	"errors"
	"fmt"
	"strings"
)

// Request limits.
const (
	MaxSourceSize     = 1 << 20 // 1MB of script text per request
	MaxFilenameLength = 256
	MaxNameLength     = 256
	MaxGlobalsDepth   = 32
)

var errNullByte = errors.New("contains invalid characters")

func validateSource(source string) error {
	if source == "" {
		return errors.New("source is required")
	}
	if len(source) > MaxSourceSize {
		return fmt.Errorf("source size %d bytes exceeds maximum %d bytes", len(source), MaxSourceSize)
	}
	return nil
}

// validateString checks an optional label field.
func validateString(value, field string, maxLen int) error {
	if value == "" {
		return nil
	}
	if len(value) > maxLen {
		return fmt.Errorf("%s must not exceed %d bytes", field, maxLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("%s %w", field, errNullByte)
	}
	return nil
}

// validateGlobals bounds nesting so a request cannot make conversion
// recurse without limit.
func validateGlobals(globals map[string]any) error {
	return checkDepth(globals, 0)
}

func checkDepth(v any, depth int) error {
	if depth > MaxGlobalsDepth {
		return fmt.Errorf("globals nesting depth exceeds maximum %d", MaxGlobalsDepth)
	}
	switch v := v.(type) {
	case map[string]any:
		for _, item := range v {
			if err := checkDepth(item, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, item := range v {
			if err := checkDepth(item, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *RunRequest) validate() error {
	if err := validateSource(r.Source); err != nil {
		return err
	}
	return validateString(r.Filename, "filename", MaxFilenameLength)
}

func (r *EvalRequest) validate() error {
	if err := validateSource(r.Source); err != nil {
		return err
	}
	if err := validateString(r.Filename, "filename", MaxFilenameLength); err != nil {
		return err
	}
	return validateGlobals(r.Globals)
}

func (r *CreateRequest) validate() error {
	return validateGlobals(r.Globals)
}

func (r *SnapshotRequest) validate() error {
	if err := validateString(r.Name, "name", MaxNameLength); err != nil {
		return err
	}
	return validateString(r.Description, "description", 4*MaxNameLength)
}
