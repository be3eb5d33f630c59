package http

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/model"
	"github.com/ekisa-team/speakpaint/internal/service"
	"github.com/ekisa-team/speakpaint/internal/telemetry"
)

type mockTranscriber struct {
	mock.Mock
	received []byte
}

func (m *mockTranscriber) Transcribe(ctx context.Context, upload service.AudioUpload) (*service.TranscriptionResult, error) {
	args := m.Called(ctx, upload)
	if res, ok := args.Get(0).(*service.TranscriptionResult); ok {
		return res, args.Error(1)
	}
	return nil, args.Error(1)
}

type mockImages struct {
	mock.Mock
}

func (m *mockImages) Generate(ctx context.Context, req service.ImageRequest) (*service.GeneratedImage, error) {
	args := m.Called(ctx, req)
	if img, ok := args.Get(0).(*service.GeneratedImage); ok {
		return img, args.Error(1)
	}
	return nil, args.Error(1)
}

type fixedStatus struct {
	status model.Status
}

func (f fixedStatus) Status() model.Status {
	return f.status
}

type testServer struct {
	transcriber  *mockTranscriber
	images       *mockImages
	generatedDir string
	handler      http.Handler
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()

	ts := &testServer{
		transcriber:  &mockTranscriber{},
		images:       &mockImages{},
		generatedDir: t.TempDir(),
	}

	opts := Options{
		Transcriber:  ts.transcriber,
		Images:       ts.images,
		Status:       fixedStatus{status: model.Status{State: model.StateReady, Device: backend.DeviceCPU}},
		GeneratedDir: ts.generatedDir,
		Version:      "test",
	}
	for _, fn := range mutate {
		fn(&opts)
	}

	ts.handler = NewRouter(opts)
	return ts
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func multipartRequest(t *testing.T, fields map[string]string, file []byte, filename string) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if file != nil {
		part, err := w.CreateFormFile("audioFile", filename)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/transcribe-audio", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, path string, body any) *http.Request {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	msg, ok := body["error"].(string)
	require.True(t, ok, "body %s has no error field", rec.Body.String())
	return msg
}

func TestTranscribe_NoAudioFile(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(multipartRequest(t, map[string]string{"language": "english"}, nil, ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No audio uploaded", decodeError(t, rec))
	ts.transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestTranscribe_Success(t *testing.T) {
	ts := newTestServer(t)

	ts.transcriber.On("Transcribe", mock.Anything, mock.MatchedBy(func(u service.AudioUpload) bool {
		return u.Filename == "clip.webm" && u.Language == "other"
	})).Run(func(args mock.Arguments) {
		upload := args.Get(1).(service.AudioUpload)
		data, err := io.ReadAll(upload.Body)
		if assert.NoError(t, err) {
			ts.transcriber.received = data
		}
	}).Return(&service.TranscriptionResult{Text: "un zorro rojo", Prompt: "a red fox"}, nil).Once()

	rec := ts.do(multipartRequest(t, map[string]string{"language": " other "}, []byte("webm-bytes"), "clip.webm"))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "un zorro rojo", body["transcribed_text"])
	assert.Equal(t, "a red fox", body["prompt"])
	assert.Equal(t, []byte("webm-bytes"), ts.transcriber.received)
	ts.transcriber.AssertExpectations(t)
}

func TestTranscribe_DefaultLanguage(t *testing.T) {
	ts := newTestServer(t)

	ts.transcriber.On("Transcribe", mock.Anything, mock.MatchedBy(func(u service.AudioUpload) bool {
		return u.Language == "english"
	})).Return(&service.TranscriptionResult{Text: "a cat", Prompt: "a cat"}, nil).Once()

	rec := ts.do(multipartRequest(t, nil, []byte("RIFF"), "a.wav"))

	assert.Equal(t, http.StatusOK, rec.Code)
	ts.transcriber.AssertExpectations(t)
}

func TestTranscribe_ServiceErrors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"no speech", service.ErrNoSpeech, http.StatusInternalServerError, "Whisper could not detect speech"},
		{"not ready", model.ErrNotReady, http.StatusServiceUnavailable, "models are not ready"},
		{"backend failure", assert.AnError, http.StatusInternalServerError, assert.AnError.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.transcriber.On("Transcribe", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			rec := ts.do(multipartRequest(t, nil, []byte("RIFF"), "a.wav"))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec))
		})
	}
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()

	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, w, h))))
}

func TestGenerate_ReturnsServableURL(t *testing.T) {
	ts := newTestServer(t)

	ts.images.On("Generate", mock.Anything, service.ImageRequest{Prompt: "a red fox", Language: "english"}).
		Run(func(args mock.Arguments) {
			writePNG(t, filepath.Join(ts.generatedDir, "img_test.png"), 512, 400)
		}).
		Return(&service.GeneratedImage{Filename: "img_test.png", Width: 512, Height: 400}, nil).Once()

	req := jsonRequest(t, "/generate-image", map[string]string{"prompt": "a red fox"})
	req.Host = "paint.local:5000"
	rec := ts.do(req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "http://paint.local:5000/generated/img_test.png", body["image_url"])

	get := ts.do(httptest.NewRequest(http.MethodGet, "/generated/img_test.png", nil))
	require.Equal(t, http.StatusOK, get.Code)

	cfg, err := png.DecodeConfig(get.Body)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Width)
	assert.Equal(t, 400, cfg.Height)
	ts.images.AssertExpectations(t)
}

func TestGenerate_ForwardsLanguage(t *testing.T) {
	ts := newTestServer(t)

	ts.images.On("Generate", mock.Anything, service.ImageRequest{Prompt: "un zorro", Language: "other"}).
		Return(&service.GeneratedImage{Filename: "img_a.png"}, nil).Once()

	rec := ts.do(jsonRequest(t, "/generate-image", map[string]string{"prompt": "un zorro", "language": "other"}))

	assert.Equal(t, http.StatusOK, rec.Code)
	ts.images.AssertExpectations(t)
}

func TestGenerate_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"empty prompt", service.ErrEmptyPrompt, http.StatusBadRequest, "Prompt is empty"},
		{"not ready", model.ErrNotReady, http.StatusServiceUnavailable, "models are not ready"},
		{"backend failure", assert.AnError, http.StatusInternalServerError, assert.AnError.Error()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.images.On("Generate", mock.Anything, mock.Anything).Return(nil, tt.err).Once()

			rec := ts.do(jsonRequest(t, "/generate-image", map[string]string{"prompt": "  "}))

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.message, decodeError(t, rec))
		})
	}
}

func TestGenerate_ValidationErrorShape(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(jsonRequest(t, "/generate-image", map[string]any{"prompt": 5}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.NotEmpty(t, decodeError(t, rec))
	ts.images.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		state  model.State
		err    string
		status int
	}{
		{"ready", model.StateReady, "", http.StatusOK},
		{"loading", model.StateLoading, "", http.StatusServiceUnavailable},
		{"failed", model.StateFailed, "boom", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, func(o *Options) {
				o.Status = fixedStatus{status: model.Status{State: tt.state, Device: backend.DeviceCUDA, Error: tt.err}}
			})

			rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
			require.Equal(t, tt.status, rec.Code)

			var body HealthResponseDTO
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.state.String(), body.Status)
			assert.Equal(t, "cuda", body.Device)
			assert.Equal(t, "f16", body.Precision)
			assert.Equal(t, tt.err, body.Error)
			assert.NotNil(t, body.Models)
		})
	}
}

func TestStaticRoutes(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		path     string
		status   int
		contains string
	}{
		{"/", http.StatusOK, "<title>speakpaint</title>"},
		{"/static/script.js", http.StatusOK, "/transcribe-audio"},
		{"/static/style.css", http.StatusOK, "spinner"},
		{"/static/missing.js", http.StatusNotFound, ""},
		{"/static/", http.StatusNotFound, ""},
		{"/generated/", http.StatusNotFound, ""},
		{"/generated/missing.png", http.StatusNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := ts.do(httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.status, rec.Code)
			if tt.contains != "" {
				assert.Contains(t, rec.Body.String(), tt.contains)
			}
		})
	}
}

func TestCORS_AllowsAnyOrigin(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/generate-image", nil)
	req.Header.Set("Origin", "http://elsewhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := ts.do(req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit_OnlyPosts(t *testing.T) {
	ts := newTestServer(t, func(o *Options) { o.RequestsPerMinute = 1 })
	ts.images.On("Generate", mock.Anything, mock.Anything).
		Return(&service.GeneratedImage{Filename: "img_a.png"}, nil)

	first := ts.do(jsonRequest(t, "/generate-image", map[string]string{"prompt": "a"}))
	second := ts.do(jsonRequest(t, "/generate-image", map[string]string{"prompt": "a"}))

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "Too many requests", decodeError(t, second))

	for range 3 {
		rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)

	ts := newTestServer(t, func(o *Options) { o.Metrics = metrics })

	ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `speakpaint_http_requests_total{`), body)
	assert.Contains(t, body, `route="/health"`)
}

func TestOpenAPIDocument(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/transcribe-audio")
	assert.Contains(t, rec.Body.String(), "/generate-image")
}

func TestTranscribe_EmptyBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/transcribe-audio", http.NoBody)
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	rec := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No audio uploaded", decodeError(t, rec))
	ts.transcriber.AssertNotCalled(t, "Transcribe", mock.Anything, mock.Anything)
}

func TestGenerate_EmptyBody(t *testing.T) {
	ts := newTestServer(t)
	ts.images.On("Generate", mock.Anything, service.ImageRequest{}).Return(nil, service.ErrEmptyPrompt).Once()

	req := httptest.NewRequest(http.MethodPost, "/generate-image", http.NoBody)
	req.Header.Set("Content-Type", "application/json")
	rec := ts.do(req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Prompt is empty", decodeError(t, rec))
	ts.images.AssertExpectations(t)
}
