package llama

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ekisa-team/speakpaint/internal/backend"
)

type mockServers struct {
	mock.Mock
}

func (m *mockServers) StartServer(ctx context.Context, cfg backend.ServerConfig) error {
	return m.Called(ctx, cfg).Error(0)
}

func (m *mockServers) StopServer(name string, port int) error {
	return m.Called(name, port).Error(0)
}

func newTestBackend(t *testing.T, handler http.HandlerFunc) *Backend {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	servers := new(mockServers)
	servers.On("StartServer", mock.Anything, mock.Anything).Return(nil)

	b := NewBackend(Config{BinPath: "llama-server", Host: host, Port: p}, servers)
	require.NoError(t, b.Load(context.Background(), &backend.LoadRequest{
		ModelID:   "qwen",
		ModelPath: "/models/qwen.gguf",
		Device:    backend.DeviceCPU,
	}))

	return b
}

func TestBackend_Infer(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		MaxTokens int `json:"max_tokens"`
	}

	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "1",
			"object": "chat.completion",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "  A red house. \n"}}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
		}`)
	})

	resp, err := b.Infer(context.Background(), &backend.Request{
		Input:      strings.NewReader("Une maison rouge."),
		Parameters: map[string]any{"system_prompt": "Translate to English."},
	})
	require.NoError(t, err)

	text, err := io.ReadAll(resp.Output)
	require.NoError(t, err)
	assert.Equal(t, "A red house.", string(text))

	assert.Equal(t, "qwen", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "Translate to English.", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "Une maison rouge.", got.Messages[1].Content)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)

	assert.Equal(t, "stop", resp.Metadata.BackendSpecific["finish_reason"])
	assert.Equal(t, 16, resp.Metadata.BackendSpecific["prompt_tokens"].(int)+resp.Metadata.BackendSpecific["completion_tokens"].(int))
}

func TestBackend_InferNoChoices(t *testing.T) {
	b := newTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices": []}`)
	})

	_, err := b.Infer(context.Background(), &backend.Request{Input: strings.NewReader("hola")})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestBackend_InferNotLoaded(t *testing.T) {
	b := NewBackend(Config{}, new(mockServers))

	_, err := b.Infer(context.Background(), &backend.Request{Input: strings.NewReader("hola")})
	assert.ErrorIs(t, err, backend.ErrNotLoaded)
}

func TestBackend_ServerArgs(t *testing.T) {
	b := NewBackend(Config{Threads: 8}, new(mockServers))

	cpu := strings.Join(b.serverArgs(&backend.LoadRequest{ModelPath: "m.gguf", Device: backend.DeviceCPU}), " ")
	assert.Contains(t, cpu, "--n-gpu-layers 0")
	assert.Contains(t, cpu, "--threads 8")
	assert.Contains(t, cpu, "--ctx-size 2048")

	gpu := strings.Join(b.serverArgs(&backend.LoadRequest{
		ModelPath:  "m.gguf",
		Device:     backend.DeviceCUDA,
		Parameters: map[string]any{"n_gpu_layers": 20, "n_ctx": 4096},
	}), " ")
	assert.Contains(t, gpu, "--n-gpu-layers 20")
	assert.Contains(t, gpu, "--ctx-size 4096")
}
