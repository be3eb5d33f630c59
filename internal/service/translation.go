package service

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/telemetry"
)

const translatePrompt = "You are a translation engine. Translate the user's text into English. " +
	"Reply with the English translation only, without quotes, notes or explanations."

// Translation translates text from any language into English.
type Translation struct {
	models  RegistryProvider
	metrics *telemetry.Metrics
}

// NewTranslation creates a new Translation service.
func NewTranslation(models RegistryProvider, metrics *telemetry.Metrics) *Translation {
	return &Translation{
		models:  models,
		metrics: metrics,
	}
}

// ToEnglish returns the trimmed English translation of text.
func (s *Translation) ToEnglish(ctx context.Context, text string) (string, error) {
	resp, err := infer(ctx, s.models, s.metrics, config.ServiceTranslation, strings.NewReader(text), map[string]any{
		"system_prompt": translatePrompt,
	})
	if err != nil {
		return "", err
	}

	out, err := io.ReadAll(resp.Output)
	if err != nil {
		return "", fmt.Errorf("read translation: %w", err)
	}

	return strings.TrimSpace(string(out)), nil
}
