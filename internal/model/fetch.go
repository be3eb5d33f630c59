package model

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/config/source"
)

// FetchedModel describes model weights available on disk.
type FetchedModel struct {
	Service config.ServiceType
	ID      string
	Path    string
	Size    int64
}

// Fetch downloads the weights of every model assigned to a service without
// starting any backend.
func Fetch(ctx context.Context, cfg *config.Config) ([]FetchedModel, error) {
	modelsPath := ModelsPath(cfg)
	if err := source.EnsureModelsDirectory(modelsPath); err != nil {
		return nil, fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
	}

	fetched := make([]FetchedModel, 0, len(config.Services))
	for _, service := range config.Services {
		modelID, modelConfig, err := cfg.AssignedModel(service)
		if err != nil {
			return fetched, err
		}

		path, err := fetchModel(ctx, modelID, &modelConfig, modelsPath)
		if err != nil {
			return fetched, err
		}

		fm := FetchedModel{Service: service, ID: modelID, Path: path}
		if info, err := os.Stat(path); err == nil {
			fm.Size = info.Size()
		}
		fetched = append(fetched, fm)
	}

	return fetched, nil
}

// fetchModel downloads (or locates) a model and returns its weights file.
func fetchModel(ctx context.Context, modelID string, modelConfig *config.ModelConfig, modelsPath string) (string, error) {
	modelSource, err := modelConfig.GetSource()
	if err != nil {
		return "", fmt.Errorf("failed to get model source for %s: %w", modelID, err)
	}

	downloader, err := source.GetDownloader(ctx, modelSource.Type())
	if err != nil {
		return "", fmt.Errorf("failed to get downloader for %s: %w", modelID, err)
	}

	downloadPath, cached, err := downloader.Download(ctx, modelConfig, modelsPath)
	if err != nil {
		return "", fmt.Errorf("failed to download model %s into %s: %w", modelID, modelsPath, err)
	}

	var include []string
	if modelConfig.Source.HuggingFace != nil {
		include = modelConfig.Source.HuggingFace.Include
	}

	modelPath, err := source.ResolveModelFile(downloadPath, include)
	if err != nil {
		return "", fmt.Errorf("failed to locate weights for %s: %w", modelID, err)
	}

	if info, err := os.Stat(modelPath); err == nil {
		slog.Info("Model available",
			"model_id", modelID,
			"source", modelSource.Type(),
			"path", modelPath,
			"size", humanize.Bytes(uint64(info.Size())),
			"cached", cached,
		)
	}

	return modelPath, nil
}
