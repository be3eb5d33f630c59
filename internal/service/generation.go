package service

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"log/slog"
	"strings"

	"github.com/ekisa-team/speakpaint/internal/storage"
	"github.com/ekisa-team/speakpaint/internal/telemetry"
)

// ImageRequest asks for a picture of Prompt, written in Language.
type ImageRequest struct {
	Prompt   string
	Language string
}

// GeneratedImage is a picture stored in the generated folder.
type GeneratedImage struct {
	Filename string
	Path     string
	Width    int
	Height   int
}

// Generation turns prompts into stored PNG files.
type Generation struct {
	images     *Image
	translator *Translation
	store      *storage.LocalStore
	metrics    *telemetry.Metrics
}

// NewGeneration creates a new Generation service.
func NewGeneration(images *Image, translator *Translation, store *storage.LocalStore, metrics *telemetry.Metrics) *Generation {
	return &Generation{
		images:     images,
		translator: translator,
		store:      store,
		metrics:    metrics,
	}
}

// Generate renders the prompt and stores the image under a unique name.
// Stored images are never removed.
func (s *Generation) Generate(ctx context.Context, req ImageRequest) (*GeneratedImage, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}

	if strings.TrimSpace(req.Language) == LanguageOther {
		slog.Info("Translating prompt")

		translated, err := s.translator.ToEnglish(ctx, prompt)
		if err != nil {
			return nil, err
		}
		prompt = translated
	}

	slog.Info("Generating image", "prompt", prompt)

	img, err := s.images.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}

	name, err := uniqueName("img", ".png")
	if err != nil {
		return nil, err
	}

	info, err := s.store.Put(ctx, name, &buf)
	if err != nil {
		return nil, fmt.Errorf("save image: %w", err)
	}
	s.metrics.RecordImageGenerated()

	bounds := img.Bounds()
	return &GeneratedImage{
		Filename: name,
		Path:     info.Path,
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
	}, nil
}
