package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/speakpaint/internal/model"
)

// StatusReporter reports model readiness.
type StatusReporter interface {
	Status() model.Status
}

type (
	HealthResponseDTO struct {
		Status    string               `json:"status" enum:"not_ready,loading,ready,failed"`
		Device    string               `json:"device"`
		Precision string               `json:"precision"`
		Error     string               `json:"error,omitempty"`
		Models    []model.InstanceInfo `json:"models"`
	}

	HealthOutput struct {
		Status int
		Body   HealthResponseDTO
	}
)

// HealthHandler reports whether the models can serve requests.
type HealthHandler struct {
	status StatusReporter
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(api huma.API, status StatusReporter) *HealthHandler {
	h := &HealthHandler{status: status}

	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Model readiness",
		Description: "Returns 200 once every model is loaded and 503 before that or after a failed load.",
		Tags:        []string{"operations"},
	}, h.handleHealth)

	return h
}

func (h *HealthHandler) handleHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	s := h.status.Status()

	code := http.StatusServiceUnavailable
	if s.State == model.StateReady {
		code = http.StatusOK
	}

	models := s.Models
	if models == nil {
		models = []model.InstanceInfo{}
	}

	return &HealthOutput{
		Status: code,
		Body: HealthResponseDTO{
			Status:    s.State.String(),
			Device:    s.Device.Name,
			Precision: s.Device.Precision,
			Error:     s.Error,
			Models:    models,
		},
	}, nil
}
