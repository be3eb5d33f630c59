// Package storage keeps generated artifacts on the local filesystem.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidName is returned for names that would escape the store root.
var ErrInvalidName = errors.New("invalid object name")

// ObjectInfo describes a stored file.
type ObjectInfo struct {
	Name string
	Path string
	Size int64
}

// LocalStore writes files into a single public directory.
type LocalStore struct {
	root string
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	return &LocalStore{root: dir}, nil
}

// Root returns the directory files are stored in.
func (s *LocalStore) Root() string {
	return s.root
}

// Put writes body under name. Readers never observe a partial file: the data
// goes to a temp file in the same directory which is then renamed.
func (s *LocalStore) Put(ctx context.Context, name string, body io.Reader) (ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return ObjectInfo{}, err
	}

	path, err := s.pathFor(name)
	if err != nil {
		return ObjectInfo{}, err
	}

	tempFile, err := os.CreateTemp(s.root, ".upload-*.tmp")
	if err != nil {
		return ObjectInfo{}, err
	}
	defer os.Remove(tempFile.Name())

	written, err := io.Copy(tempFile, body)
	if err != nil {
		tempFile.Close()
		return ObjectInfo{}, err
	}
	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return ObjectInfo{}, err
	}
	if err := tempFile.Close(); err != nil {
		return ObjectInfo{}, err
	}
	if err := os.Chmod(tempFile.Name(), 0o644); err != nil {
		return ObjectInfo{}, err
	}
	if err := os.Rename(tempFile.Name(), path); err != nil {
		return ObjectInfo{}, err
	}

	return ObjectInfo{Name: name, Path: path, Size: written}, nil
}

func (s *LocalStore) pathFor(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	return filepath.Join(s.root, name), nil
}
