package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/speakpaint/internal/model"
	"github.com/ekisa-team/speakpaint/internal/service"
)

// ErrorBody is the body of every error response: {"error": "..."}.
type ErrorBody struct {
	status  int
	Message string `json:"error"`
}

// Error implements error.
func (e *ErrorBody) Error() string {
	return e.Message
}

// GetStatus implements huma.StatusError.
func (e *ErrorBody) GetStatus() int {
	return e.status
}

func init() {
	huma.NewError = newError
}

// newError replaces huma's RFC 9457 errors. The first validation detail is
// appended so clients still learn what was wrong.
func newError(status int, msg string, errs ...error) huma.StatusError {
	for _, err := range errs {
		if err == nil {
			continue
		}

		var detailer huma.ErrorDetailer
		if errors.As(err, &detailer) {
			msg = msg + ": " + detailer.ErrorDetail().Error()
			break
		}
	}

	return &ErrorBody{status: status, Message: msg}
}

// errorStatus maps service errors to a status and client message.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrNoAudio):
		return http.StatusBadRequest, "No audio uploaded"
	case errors.Is(err, service.ErrEmptyPrompt):
		return http.StatusBadRequest, "Prompt is empty"
	case errors.Is(err, service.ErrNoSpeech):
		return http.StatusInternalServerError, "Whisper could not detect speech"
	case errors.Is(err, model.ErrNotReady):
		return http.StatusServiceUnavailable, model.ErrNotReady.Error()
	default:
		return http.StatusInternalServerError, err.Error()
	}
}

// toHTTPError logs server-side failures and converts err into a response error.
func toHTTPError(ctx context.Context, op string, err error) error {
	status, msg := errorStatus(err)

	switch {
	case status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled):
		slog.ErrorContext(ctx, op+" error", "error", err)
	case status >= http.StatusBadRequest:
		slog.WarnContext(ctx, op+" rejected", "status", status, "error", err)
	}

	return &ErrorBody{status: status, Message: msg}
}

// writeJSONError writes an error body outside of huma.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&ErrorBody{Message: msg})
}
