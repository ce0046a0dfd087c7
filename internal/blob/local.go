// Package blob stores raw fetched page bodies keyed by page kind and
// catalog identifier.
package blob

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/netflixcritic/checker/internal/catalog"
)

// Local writes page bodies to the filesystem under
// <base>/<kind>/<id>.html. Puts overwrite, so re-running a batch leaves
// one body per key.
type Local struct {
	baseDir string
}

// NewLocal creates the base directory if needed and verifies it is
// writable.
func NewLocal(baseDir string) (*Local, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	info, err := os.Stat(baseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat base directory: %w", err)
		}
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	testFile := filepath.Join(baseDir, ".writable_test")
	if err := os.WriteFile(testFile, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(testFile); err != nil {
		return nil, fmt.Errorf("clean up test file: %w", err)
	}
	return &Local{baseDir: baseDir}, nil
}

// Put writes the body and returns a file:// URI.
func (s *Local) Put(_ context.Context, kind catalog.PageKind, id catalog.ID, body []byte) (string, error) {
	fullPath, err := s.objectPath(kind, id)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create kind directory: %w", err)
	}
	if err := os.WriteFile(fullPath, body, 0o600); err != nil {
		return "", fmt.Errorf("write body: %w", err)
	}
	return "file://" + fullPath, nil
}

// Get reads a previously stored body.
func (s *Local) Get(_ context.Context, kind catalog.PageKind, id catalog.ID) ([]byte, error) {
	fullPath, err := s.objectPath(kind, id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// objectPath joins and verifies the target stays within baseDir. Kinds
// are a closed set, but the check guards against a crafted base path.
func (s *Local) objectPath(kind catalog.PageKind, id catalog.ID) (string, error) {
	fullPath := filepath.Join(s.baseDir, string(kind), fmt.Sprintf("%d.html", id))
	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return fullPath, nil
}
