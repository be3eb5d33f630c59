package http

import (
	"bytes"
	"context"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/speakpaint/internal/service"
)

const (
	maxAudioBytes     = 64 << 20
	multipartInMemory = 8 << 20
	defaultLanguage   = "english"
)

// Transcriber turns an uploaded recording into text and an English prompt.
type Transcriber interface {
	Transcribe(ctx context.Context, upload service.AudioUpload) (*service.TranscriptionResult, error)
}

type (
	TranscribeInput struct {
		ContentType string `header:"Content-Type"`
		RawBody     []byte `contentType:"multipart/form-data"`
	}

	TranscribeOutput struct {
		Body service.TranscriptionResult
	}
)

// TranscribeHandler handles HTTP requests for speech-to-text.
type TranscribeHandler struct {
	service Transcriber
}

// NewTranscribeHandler creates a new TranscribeHandler instance.
func NewTranscribeHandler(api huma.API, service Transcriber) *TranscribeHandler {
	h := &TranscribeHandler{service: service}

	huma.Register(api, huma.Operation{
		OperationID:     "transcribe-audio",
		Method:          http.MethodPost,
		Path:            "/transcribe-audio",
		Summary:         "Transcribe a recording into an image prompt",
		Description:     "Transcribes the uploaded audio. With language \"other\" the text is translated into English to form the prompt.",
		Tags:            []string{"speech"},
		DefaultStatus:   http.StatusOK,
		MaxBodyBytes:    maxAudioBytes,
		BodyReadTimeout: time.Minute,
		RequestBody: &huma.RequestBody{
			// An empty upload is answered by the handler as a missing file.
			Required: false,
			Content: map[string]*huma.MediaType{
				"multipart/form-data": {
					Schema: &huma.Schema{
						Type:     huma.TypeObject,
						Required: []string{"audioFile"},
						Properties: map[string]*huma.Schema{
							"audioFile": {Type: huma.TypeString, Format: "binary", Description: "Recorded audio (wav, mp3, webm, ...)"},
							"language":  {Type: huma.TypeString, Default: defaultLanguage, Description: "\"other\" requests translation into English"},
						},
					},
				},
			},
		},
		Errors: []int{http.StatusBadRequest, http.StatusInternalServerError, http.StatusServiceUnavailable},
	}, h.handleTranscribe)

	return h
}

// handleTranscribe handles the transcribe-audio operation.
func (h *TranscribeHandler) handleTranscribe(ctx context.Context, input *TranscribeInput) (*TranscribeOutput, error) {
	form, err := parseMultipart(input.ContentType, input.RawBody)
	if err != nil {
		return nil, toHTTPError(ctx, "Transcription", service.ErrNoAudio)
	}
	defer form.RemoveAll()

	files := form.File["audioFile"]
	if len(files) == 0 {
		return nil, toHTTPError(ctx, "Transcription", service.ErrNoAudio)
	}

	file, err := files[0].Open()
	if err != nil {
		return nil, toHTTPError(ctx, "Transcription", err)
	}
	defer file.Close()

	language := defaultLanguage
	if values := form.Value["language"]; len(values) > 0 {
		language = strings.TrimSpace(values[0])
	}

	result, err := h.service.Transcribe(ctx, service.AudioUpload{
		Body:     file,
		Filename: files[0].Filename,
		Language: language,
	})
	if err != nil {
		return nil, toHTTPError(ctx, "Transcription", err)
	}

	return &TranscribeOutput{Body: *result}, nil
}

func parseMultipart(contentType string, body []byte) (*multipart.Form, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, err
	}
	if mediaType != "multipart/form-data" || params["boundary"] == "" {
		return nil, http.ErrNotMultipart
	}

	return multipart.NewReader(bytes.NewReader(body), params["boundary"]).ReadForm(multipartInMemory)
}
