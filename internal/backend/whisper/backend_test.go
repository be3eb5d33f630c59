package whisper

import (
	"context"
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

func splitHostPort(t *testing.T, srv *httptest.Server) (string, int) {
	t.Helper()

	host, port, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	p, err := strconv.Atoi(port)
	require.NoError(t, err)

	return host, p
}

func TestBackend_LoadArgs(t *testing.T) {
	servers := new(mockServers)
	b := NewBackend(Config{BinPath: "whisper-server", Threads: 4, ConvertAudio: true}, servers)

	servers.On("StartServer", mock.Anything, mock.MatchedBy(func(cfg backend.ServerConfig) bool {
		args := strings.Join(cfg.Args, " ")
		return cfg.Port == DefaultPort &&
			strings.Contains(args, "--model /models/ggml-base.bin") &&
			strings.Contains(args, "--no-gpu") &&
			strings.Contains(args, "--threads 4") &&
			strings.Contains(args, "--convert")
	})).Return(nil).Once()
	servers.On("StopServer", serverName, DefaultPort).Return(nil).Once()

	err := b.Load(context.Background(), &backend.LoadRequest{
		ModelPath: "/models/ggml-base.bin",
		Device:    backend.DeviceCPU,
	})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	// A second close has nothing to stop.
	require.NoError(t, b.Close())
	servers.AssertExpectations(t)
}

func TestBackend_LoadOnGPUKeepsGPU(t *testing.T) {
	b := NewBackend(Config{BinPath: "whisper-server"}, new(mockServers))

	args := b.serverArgs(&backend.LoadRequest{ModelPath: "m.bin", Device: backend.DeviceCUDA})
	assert.NotContains(t, args, "--no-gpu")
	assert.NotContains(t, args, "--convert")
}

func TestBackend_Infer(t *testing.T) {
	var fields map[string][]string
	var upload string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/inference", r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}

		fields = r.MultipartForm.Value
		f, _, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			return
		}
		data, _ := io.ReadAll(f)
		upload = string(data)

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"task":"transcribe","language":"spanish","duration":1.5,"text":"  hola mundo \n","segments":[{"id":0,"text":"hola mundo"}]}`)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv)
	servers := new(mockServers)
	servers.On("StartServer", mock.Anything, mock.Anything).Return(nil)

	b := NewBackend(Config{BinPath: "whisper-server", Host: host, Port: port}, servers)
	require.NoError(t, b.Load(context.Background(), &backend.LoadRequest{ModelPath: "/m.bin"}))

	resp, err := b.Infer(context.Background(), &backend.Request{
		Input:      strings.NewReader("RIFF...."),
		Parameters: map[string]any{"language": "auto", "temperature": 0.0},
	})
	require.NoError(t, err)

	text, err := io.ReadAll(resp.Output)
	require.NoError(t, err)
	assert.Equal(t, "hola mundo", string(text))
	assert.Equal(t, "RIFF....", upload)
	assert.Equal(t, []string{"auto"}, fields["language"])
	assert.Equal(t, []string{"0.00"}, fields["temperature"])
	assert.Equal(t, []string{"verbose_json"}, fields["response_format"])
	assert.Equal(t, backend.BackendProviderWhisperCPP, resp.Metadata.Provider)
	assert.Equal(t, "spanish", resp.Metadata.BackendSpecific["language"])
}

func TestBackend_InferServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()

	host, port := splitHostPort(t, srv)
	servers := new(mockServers)
	servers.On("StartServer", mock.Anything, mock.Anything).Return(nil)

	b := NewBackend(Config{Host: host, Port: port}, servers)
	require.NoError(t, b.Load(context.Background(), &backend.LoadRequest{ModelPath: "/m.bin"}))

	_, err := b.Infer(context.Background(), &backend.Request{Input: strings.NewReader("x")})
	assert.ErrorContains(t, err, "status code 400")
}

func TestBackend_InferNotLoaded(t *testing.T) {
	b := NewBackend(Config{}, new(mockServers))

	_, err := b.Infer(context.Background(), &backend.Request{Input: strings.NewReader("x")})
	assert.ErrorIs(t, err, backend.ErrNotLoaded)
}
