// Package service implements transcription, translation and image generation
// on top of the loaded models.
package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/model"
	"github.com/ekisa-team/speakpaint/internal/telemetry"
)

// LanguageOther marks input that is not English and must be translated.
const LanguageOther = "other"

// RegistryProvider hands out the current model registry.
type RegistryProvider interface {
	Registry() (*model.Registry, error)
}

// infer runs one call on the model serving a service.
func infer(ctx context.Context, models RegistryProvider, metrics *telemetry.Metrics, service config.ServiceType, input io.Reader, params map[string]any) (*backend.Response, error) {
	reg, err := models.Registry()
	if err != nil {
		return nil, err
	}

	instance, err := reg.ForService(service)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := instance.Infer(ctx, &backend.Request{Input: input, Parameters: params})
	metrics.RecordInference(string(service), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("%s inference failed: %w", service, err)
	}

	return resp, nil
}
