package schema

import (
	"context"
	_ "embed"
	"fmt"
	"os"
)

//go:embed sql/tenant_structure.sql
var defaultScript string

// Source yields the tenant DDL script. It is read once per provisioning call
// so an edited script is picked up without a restart.
type Source interface {
	Load(ctx context.Context) (string, error)
}

// FileSource reads the script from disk
type FileSource struct {
	Path string
}

// Load reads the file
func (s FileSource) Load(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read tenant script %s: %w", s.Path, err)
	}
	return string(data), nil
}

// StaticSource serves a script held in memory
type StaticSource string

// Load returns the script
func (s StaticSource) Load(context.Context) (string, error) {
	return string(s), nil
}

// DefaultSource serves the script compiled into the binary
func DefaultSource() Source {
	return StaticSource(defaultScript)
}

// NewSource returns a FileSource for path, or the built-in script when path is empty
func NewSource(path string) Source {
	if path == "" {
		return DefaultSource()
	}
	return FileSource{Path: path}
}
