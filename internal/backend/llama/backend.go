// Package llama runs chat completions on a llama.cpp server through its
// OpenAI-compatible API.
package llama

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/mapsafe"
)

const (
	serverName = "llama-server"

	// DefaultPort is the port llama-server listens on.
	DefaultPort = 8081

	defaultContextSize = 2048
	defaultMaxTokens   = 512
)

// ErrEmptyCompletion is returned when the server answers without choices.
var ErrEmptyCompletion = errors.New("llama.cpp returned no choices")

// Config configures the llama.cpp server backend.
type Config struct {
	BinPath string
	Host    string
	Port    int
	Threads int
	Timeout time.Duration
}

// Backend implements backend.Backend for llama.cpp.
type Backend struct {
	servers backend.ServerController
	client  *openai.Client
	cfg     Config
	modelID string
	mu      sync.RWMutex
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
		cfg.Timeout = 2 * time.Minute
	}

	clientCfg := openai.DefaultConfig("")
	clientCfg.BaseURL = fmt.Sprintf("http://%s:%d/v1", cfg.Host, cfg.Port)
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Backend{
		cfg:     cfg,
		servers: servers,
		client:  openai.NewClientWithConfig(clientCfg),
	}
}

// Provider implements backend.Backend.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderLlamaCPP
}

// Load starts llama-server with the model.
func (b *Backend) Load(ctx context.Context, req *backend.LoadRequest) error {
	if err := b.servers.StartServer(ctx, backend.ServerConfig{
		Name:         serverName,
		BinPath:      b.cfg.BinPath,
		Host:         b.cfg.Host,
		Args:         b.serverArgs(req),
		Port:         b.cfg.Port,
		HealthPath:   "/health",
		ReadyTimeout: 2 * time.Minute,
	}); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	modelID := req.ModelID
	if modelID == "" {
		modelID = req.ModelPath
	}

	b.mu.Lock()
	b.modelID = modelID
	b.mu.Unlock()

	return nil
}

func (b *Backend) serverArgs(req *backend.LoadRequest) []string {
	p := req.Parameters
	if p == nil {
		p = make(map[string]any)
	}

	gpuLayers := 0
	if req.Device.Accelerated() {
		gpuLayers = mapsafe.Get(p, "n_gpu_layers", 99)
	}

	args := []string{
		"--model", req.ModelPath,
		"--port", strconv.Itoa(b.cfg.Port),
		"--host", b.cfg.Host,
		"--ctx-size", strconv.Itoa(mapsafe.Get(p, "n_ctx", defaultContextSize)),
		"--n-gpu-layers", strconv.Itoa(gpuLayers),
	}

	if b.cfg.Threads > 0 {
		args = append(args, "--threads", strconv.Itoa(b.cfg.Threads))
	}

	return args
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	b.mu.Lock()
	loaded := b.modelID != ""
	b.modelID = ""
	b.mu.Unlock()

	if !loaded {
		return nil
	}

	return b.servers.StopServer(serverName, b.cfg.Port)
}

// Infer sends req.Input as the user message and returns the assistant reply.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	b.mu.RLock()
	modelID := b.modelID
	b.mu.RUnlock()

	if modelID == "" {
		return nil, backend.ErrNotLoaded
	}

	prompt, err := io.ReadAll(req.Input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}

	start := time.Now()

	resp, err := b.client.CreateChatCompletion(ctx, buildChatCompletionRequest(modelID, req.Parameters, string(prompt)))
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyCompletion
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)

	return &backend.Response{
		Output: strings.NewReader(text),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           modelID,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(text)),
			BackendSpecific: map[string]any{
				"finish_reason":     string(resp.Choices[0].FinishReason),
				"prompt_tokens":     resp.Usage.PromptTokens,
				"completion_tokens": resp.Usage.CompletionTokens,
			},
		},
	}, nil
}

// buildChatCompletionRequest builds the completion request from request parameters.
// A zero temperature is dropped by the client and falls back to the server default.
func buildChatCompletionRequest(modelID string, p map[string]any, prompt string) openai.ChatCompletionRequest {
	if p == nil {
		p = make(map[string]any)
	}

	var messages []openai.ChatCompletionMessage
	if system := mapsafe.Get(p, "system_prompt", ""); system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	return openai.ChatCompletionRequest{
		Model:       modelID,
		Messages:    messages,
		Temperature: float32(mapsafe.Get(p, "temperature", 0.1)),
		TopP:        float32(mapsafe.Get(p, "top_p", 0.0)),
		MaxTokens:   mapsafe.Get(p, "max_tokens", defaultMaxTokens),
	}
}
