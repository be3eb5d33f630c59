package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/telemetry"
)

// STT is a service abstraction for speech-to-text.
type STT struct {
	models  RegistryProvider
	metrics *telemetry.Metrics
}

// NewSTT creates a new STT service.
func NewSTT(models RegistryProvider, metrics *telemetry.Metrics) *STT {
	return &STT{
		models:  models,
		metrics: metrics,
	}
}

// Transcribe transcribes audio. The spoken language is always detected by the
// model; decoding is greedy at temperature zero.
func (s *STT) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := infer(ctx, s.models, s.metrics, config.ServiceSTT, audio, map[string]any{
		"language":    "auto",
		"temperature": 0.0,
		"filename":    filename,
	})
	if err != nil {
		return "", err
	}

	text, err := io.ReadAll(resp.Output)
	if err != nil {
		return "", fmt.Errorf("read transcription: %w", err)
	}

	return strings.TrimSpace(string(text)), nil
}
