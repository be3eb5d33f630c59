package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/xfs"
)

// LocalDownloader resolves models that already live on disk.
type LocalDownloader struct{}

// Download checks that the local model exists. Nothing is copied.
func (d *LocalDownloader) Download(_ context.Context, modelConfig *config.ModelConfig, _ string) (string, bool, error) {
	source, err := modelConfig.GetSource()
	if err != nil {
		return "", false, fmt.Errorf("failed to get model source: %w", err)
	}

	local, ok := source.(config.LocalSource)
	if !ok {
		return "", false, fmt.Errorf("invalid source type: %T", source)
	}

	path := xfs.ExpandTilde(local.Path)
	if _, err := os.Stat(path); err != nil {
		return "", false, fmt.Errorf("local model %s: %w", path, err)
	}

	slog.Debug("Using local model", "path", path)
	return path, true, nil
}
