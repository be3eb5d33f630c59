package service

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"golang.org/x/image/draw"

	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/telemetry"
)

// Image generates pictures from English prompts.
type Image struct {
	models  RegistryProvider
	metrics *telemetry.Metrics
	steps   int
	width   int
	height  int
}

// NewImage creates a new Image service with the generation settings.
func NewImage(models RegistryProvider, metrics *telemetry.Metrics, gen config.GenerationConfig) *Image {
	if gen.Steps <= 0 {
		gen.Steps = config.DefaultSteps
	}
	if gen.OutputWidth <= 0 {
		gen.OutputWidth = config.DefaultOutputWidth
	}
	if gen.OutputHeight <= 0 {
		gen.OutputHeight = config.DefaultOutputHeight
	}

	return &Image{
		models:  models,
		metrics: metrics,
		steps:   gen.Steps,
		width:   gen.OutputWidth,
		height:  gen.OutputHeight,
	}
}

// Generate runs the diffusion model on prompt and returns the first image,
// resized to the output size. The aspect ratio is not preserved.
func (s *Image) Generate(ctx context.Context, prompt string) (image.Image, error) {
	resp, err := infer(ctx, s.models, s.metrics, config.ServiceImage, strings.NewReader(prompt), map[string]any{
		"steps": s.steps,
	})
	if err != nil {
		return nil, err
	}

	img, err := png.Decode(resp.Output)
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}

	return Resize(img, s.width, s.height), nil
}

// Resize scales img to exactly width×height with Catmull-Rom resampling.
func Resize(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}
