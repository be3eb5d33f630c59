// Package source fetches model weights from the configured model sources.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/ekisa-team/speakpaint/internal/config"
)

// ErrUnsupportedSource is returned for a source type without a downloader.
var ErrUnsupportedSource = errors.New("unsupported model source")

// ErrNoModelFile is returned when a downloaded source holds no usable weights.
var ErrNoModelFile = errors.New("no model file found")

// weightExtensions are the file extensions the native backends can load.
var weightExtensions = []string{".gguf", ".bin", ".safetensors", ".ckpt"}

// Downloader materializes a model source on local disk. It returns the local
// path, whether it was already present, and any error.
type Downloader interface {
	Download(ctx context.Context, modelConfig *config.ModelConfig, targetDir string) (string, bool, error)
}

// GetDownloader returns the downloader for the given source type.
func GetDownloader(_ context.Context, sourceType config.SourceType) (Downloader, error) {
	switch sourceType {
	case config.SourceTypeHuggingFace:
		return &HuggingFaceDownloader{}, nil
	case config.SourceTypeLocal:
		return &LocalDownloader{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, sourceType)
	}
}

// EnsureModelsDirectory creates the models directory if needed and checks
// that it is writable.
func EnsureModelsDirectory(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}

	probe, err := os.CreateTemp(path, ".write-check-*")
	if err != nil {
		return fmt.Errorf("models directory is not writable: %w", err)
	}

	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

// ResolveModelFile turns a download path into the weights file a backend
// loads. Files are returned as is. Directories are searched with the include
// patterns first, then for any known weights extension.
func ResolveModelFile(path string, include []string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return path, nil
	}

	for _, pattern := range include {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return "", fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, match := range matches {
			if fi, err := os.Stat(match); err == nil && !fi.IsDir() {
				return match, nil
			}
		}
	}

	var found []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if slices.Contains(weightExtensions, strings.ToLower(filepath.Ext(p))) {
			found = append(found, p)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if len(found) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoModelFile, path)
	}

	sort.Strings(found)
	return found[0], nil
}
