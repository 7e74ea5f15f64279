// Package loader reads schema and values files in JSON, TOML, and YAML.
//
// Loaders share the convention that a missing file is not an error; they
// return a nil map so callers can fall through to defaults. Parse
// failures are reported as *ParseError with the source path.
package loader

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/settle/schema"
)

// Loader is the interface for values loaders.
type Loader interface {
	// Load reads values from the source and returns a map.
	// Returns nil, nil if the source doesn't exist (not an error).
	Load() (map[string]any, error)
}

// FileLoader is the interface for loaders that read from files.
type FileLoader interface {
	Loader
	// LoadFrom reads values from a specific path.
	LoadFrom(path string) (map[string]any, error)
}

// ReaderLoader is the interface for loaders that read from io.Reader.
type ReaderLoader interface {
	// LoadFromReader reads values from a reader.
	LoadFromReader(r io.Reader) (map[string]any, error)
}

// FileSystem is an abstraction for file system operations, allowing
// tests to substitute an in-memory file system.
type FileSystem interface {
	fs.FS
	// ReadFile reads the entire file at path.
	ReadFile(path string) ([]byte, error)
	// Stat returns file info for path.
	Stat(path string) (fs.FileInfo, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// Open implements fs.FS.
func (OSFS) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// Stat returns file info for path.
func (OSFS) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// DefaultFS returns the default file system (OS).
func DefaultFS() FileSystem {
	return OSFS{}
}

// ParseError represents an error while parsing a schema or values file.
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ForPath returns the values loader for path based on its extension.
func ForPath(path string) (FileLoader, error) {
	return forPathFS(DefaultFS(), path)
}

func forPathFS(fsys FileSystem, path string) (FileLoader, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONLoaderWithFS(fsys, path), nil
	case ".toml":
		return NewTOMLLoaderWithFS(fsys, path), nil
	case ".yaml", ".yml":
		return NewYAMLLoaderWithFS(fsys, path), nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", path)
	}
}

// LoadValues reads a values file, dispatching on extension.
func LoadValues(path string) (map[string]any, error) {
	return LoadValuesFS(DefaultFS(), path)
}

// LoadValuesFS is LoadValues over a custom file system.
func LoadValuesFS(fsys FileSystem, path string) (map[string]any, error) {
	l, err := forPathFS(fsys, path)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// LoadSchema reads and validates a schema file, dispatching on
// extension. A missing file is an error here; a panel without a schema
// cannot exist.
func LoadSchema(path string) (*schema.Schema, error) {
	return LoadSchemaFS(DefaultFS(), path)
}

// LoadSchemaFS is LoadSchema over a custom file system.
func LoadSchemaFS(fsys FileSystem, path string) (*schema.Schema, error) {
	l, err := forPathFS(fsys, path)
	if err != nil {
		return nil, err
	}
	raw, err := l.Load()
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("schema file not found: %s", path)
	}
	sc, err := schema.FromMap(raw)
	if err != nil {
		return nil, fmt.Errorf("schema %s: %w", path, err)
	}
	return sc, nil
}
