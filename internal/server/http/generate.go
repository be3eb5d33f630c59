package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/speakpaint/internal/service"
)

// ImageGenerator renders prompts into stored images.
type ImageGenerator interface {
	Generate(ctx context.Context, req service.ImageRequest) (*service.GeneratedImage, error)
}

type (
	GenerateImageRequestDTO struct {
		_        struct{} `json:"-" additionalProperties:"true"`
		Prompt   string   `json:"prompt,omitempty" doc:"What to draw"`
		Language string   `json:"language,omitempty" default:"english" doc:"\"other\" requests translation into English"`
	}

	GenerateImageResponseDTO struct {
		ImageURL string `json:"image_url" doc:"Absolute URL of the generated PNG"`
	}
)

type (
	GenerateImageInput struct {
		Body *GenerateImageRequestDTO `required:"false"`
	}

	GenerateImageOutput struct {
		Body GenerateImageResponseDTO
	}
)

// GenerateHandler handles HTTP requests for image generation.
type GenerateHandler struct {
	service ImageGenerator
}

// NewGenerateHandler creates a new GenerateHandler instance.
func NewGenerateHandler(api huma.API, service ImageGenerator) *GenerateHandler {
	h := &GenerateHandler{service: service}

	huma.Register(api, huma.Operation{
		OperationID:   "generate-image",
		Method:        http.MethodPost,
		Path:          "/generate-image",
		Summary:       "Generate an image from a prompt",
		Tags:          []string{"image"},
		DefaultStatus: http.StatusOK,
		Errors:        []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusServiceUnavailable},
	}, h.handleGenerate)

	return h
}

// handleGenerate handles the generate-image operation.
func (h *GenerateHandler) handleGenerate(ctx context.Context, input *GenerateImageInput) (*GenerateImageOutput, error) {
	var req service.ImageRequest
	if input.Body != nil {
		req = service.ImageRequest{Prompt: input.Body.Prompt, Language: input.Body.Language}
	}

	img, err := h.service.Generate(ctx, req)
	if err != nil {
		return nil, toHTTPError(ctx, "Image generation", err)
	}

	return &GenerateImageOutput{
		Body: GenerateImageResponseDTO{
			ImageURL: baseURL(ctx) + generatedPrefix + img.Filename,
		},
	}, nil
}
