// Package whisper runs speech-to-text on a whisper.cpp server.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/mapsafe"
)

const (
	serverName = "whisper-server"

	// DefaultPort is the port whisper-server listens on.
	DefaultPort = 8082
)

// Config configures the whisper.cpp server backend.
type Config struct {
	BinPath string
	Host    string
	Port    int
	Threads int
	Timeout time.Duration

	// ConvertAudio lets whisper-server convert uploads with ffmpeg so that
	// formats other than 16 kHz WAV are accepted.
	ConvertAudio bool
}

// Backend implements backend.Backend for whisper.cpp.
type Backend struct {
	servers   backend.ServerController
	client    *http.Client
	cfg       Config
	modelPath string
	mu        sync.RWMutex
}

// TranscriptionRequest represents a request to the whisper-server API.
type TranscriptionRequest struct {
	Language     string  `json:"language,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	BeamSize     int     `json:"beam_size,omitempty"`
	BestOf       int     `json:"best_of,omitempty"`
	Translate    bool    `json:"translate,omitempty"`
	NoTimestamps bool    `json:"no_timestamps,omitempty"`
	Prompt       string  `json:"prompt,omitempty"`
}

// TranscriptionResponse represents a response from the whisper-server API.
type TranscriptionResponse struct {
	Task                        string              `json:"task,omitempty"`
	Language                    string              `json:"language,omitempty"`
	Duration                    float64             `json:"duration,omitempty"`
	Text                        string              `json:"text,omitempty"`
	Segments                    []TranscriptSegment `json:"segments,omitempty"`
	DetectedLanguage            string              `json:"detected_language,omitempty"`
	DetectedLanguageProbability float64             `json:"detected_language_probability,omitempty"`
}

// TranscriptSegment represents a single segment in the transcription.
type TranscriptSegment struct {
	ID           int     `json:"id"`
	Text         string  `json:"text"`
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Temperature  float64 `json:"temperature,omitempty"`
	AvgLogprob   float64 `json:"avg_logprob,omitempty"`
	NoSpeechProb float64 `json:"no_speech_prob,omitempty"`
}

// NewBackend creates a new Backend instance.
func NewBackend(cfg Config, servers backend.ServerController) *Backend {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute // Transcription can take longer
	}

	return &Backend{
		cfg:     cfg,
		servers: servers,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderWhisperCPP
}

// Load starts whisper-server with the model.
func (b *Backend) Load(ctx context.Context, req *backend.LoadRequest) error {
	args := b.serverArgs(req)

	if err := b.servers.StartServer(ctx, backend.ServerConfig{
		Name:         serverName,
		BinPath:      b.cfg.BinPath,
		Host:         b.cfg.Host,
		Args:         args,
		Port:         b.cfg.Port,
		HealthPath:   "/", // Whisper server doesn't have a dedicated health endpoint
		ReadyTimeout: 2 * time.Minute,
	}); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	b.mu.Lock()
	b.modelPath = req.ModelPath
	b.mu.Unlock()

	return nil
}

func (b *Backend) serverArgs(req *backend.LoadRequest) []string {
	args := []string{
		"--model", req.ModelPath,
		"--port", strconv.Itoa(b.cfg.Port),
		"--host", b.cfg.Host,
	}

	if !req.Device.Accelerated() {
		args = append(args, "--no-gpu")
	}
	if b.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(b.cfg.Threads))
	}
	if b.cfg.ConvertAudio {
		args = append(args, "--convert")
	}

	return args
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	loaded := b.modelPath != ""
	b.modelPath = ""
	b.mu.Unlock()

	if !loaded {
		return nil
	}

	return b.servers.StopServer(serverName, b.cfg.Port)
}

// Infer transcribes the audio in req.Input.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	b.mu.RLock()
	modelPath := b.modelPath
	b.mu.RUnlock()

	if modelPath == "" {
		return nil, backend.ErrNotLoaded
	}

	params := req.Parameters
	if params == nil {
		params = make(map[string]any)
	}

	var requestBody bytes.Buffer
	writer := multipart.NewWriter(&requestBody)

	part, err := writer.CreateFormFile("file", mapsafe.Get(params, "filename", "audio.wav"))
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, req.Input); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	transcriptionReq := buildTranscriptionRequest(params)
	if err := addTranscriptionParams(writer, transcriptionReq); err != nil {
		return nil, fmt.Errorf("failed to add parameters: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx,
		http.MethodPost,
		fmt.Sprintf("http://%s:%d/inference", b.cfg.Host, b.cfg.Port),
		&requestBody,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	start := time.Now()

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	elapsed := time.Since(start).Seconds()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return nil, fmt.Errorf("request failed with status code %d: %s", resp.StatusCode, body)
	}

	var transcriptionResp TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&transcriptionResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	text := strings.TrimSpace(transcriptionResp.Text)

	return &backend.Response{
		Output: strings.NewReader(text),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           modelPath,
			Timestamp:       time.Now(),
			DurationSeconds: elapsed,
			OutputBytes:     int64(len(text)),
			BackendSpecific: map[string]any{
				"language": transcriptionResp.Language,
				"duration": transcriptionResp.Duration,
				"segments": len(transcriptionResp.Segments),
			},
		},
	}, nil
}

// buildTranscriptionRequest builds a TranscriptionRequest from request parameters.
func buildTranscriptionRequest(p map[string]any) *TranscriptionRequest {
	return &TranscriptionRequest{
		Language:     mapsafe.Get(p, "language", "auto"),
		Temperature:  mapsafe.Get(p, "temperature", 0.0),
		Translate:    mapsafe.Get(p, "translate", false),
		NoTimestamps: mapsafe.Get(p, "no_timestamps", true),
		Prompt:       mapsafe.Get(p, "prompt", ""),
		BeamSize:     mapsafe.Get(p, "beam_size", -1),
		BestOf:       mapsafe.Get(p, "best_of", 2),
	}
}

// addTranscriptionParams adds transcription parameters to the multipart writer.
func addTranscriptionParams(w *multipart.Writer, req *TranscriptionRequest) error {
	params := map[string]string{
		"language":        req.Language,
		"response_format": "verbose_json",
		"temperature":     strconv.FormatFloat(req.Temperature, 'f', 2, 64),
		"translate":       strconv.FormatBool(req.Translate),
		"no_timestamps":   strconv.FormatBool(req.NoTimestamps),
	}

	if req.BeamSize >= 0 {
		params["beam_size"] = strconv.Itoa(req.BeamSize)
	}

	if req.BestOf > 0 {
		params["best_of"] = strconv.Itoa(req.BestOf)
	}

	if req.Prompt != "" {
		params["prompt"] = req.Prompt
	}

	for key, value := range params {
		if err := w.WriteField(key, value); err != nil {
			return fmt.Errorf("failed to write field %s: %w", key, err)
		}
	}

	return nil
}
