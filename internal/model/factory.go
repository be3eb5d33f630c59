package model

import (
	"fmt"
	"time"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/backend/llama"
	"github.com/ekisa-team/speakpaint/internal/backend/stablediffusion"
	"github.com/ekisa-team/speakpaint/internal/backend/whisper"
	"github.com/ekisa-team/speakpaint/internal/config"
)

// BackendFactory creates the backend for a provider.
type BackendFactory func(provider backend.BackendProvider, cfg *config.Config) (backend.Backend, error)

// NativeBackends returns a factory for the native whisper.cpp, llama.cpp and
// stable-diffusion.cpp backends. convertAudio enables ffmpeg conversion in
// whisper-server.
func NativeBackends(servers backend.ServerController, convertAudio bool) BackendFactory {
	return func(provider backend.BackendProvider, cfg *config.Config) (backend.Backend, error) {
		switch provider {
		case backend.BackendProviderWhisperCPP:
			bin := cfg.Backends.WhisperCPP
			return whisper.NewBackend(whisper.Config{
				BinPath:      bin.BinPath,
				Port:         bin.Port,
				Threads:      bin.Threads,
				Timeout:      seconds(bin.TimeoutSeconds),
				ConvertAudio: convertAudio,
			}, servers), nil

		case backend.BackendProviderLlamaCPP:
			bin := cfg.Backends.LlamaCPP
			return llama.NewBackend(llama.Config{
				BinPath: bin.BinPath,
				Port:    bin.Port,
				Threads: bin.Threads,
				Timeout: seconds(bin.TimeoutSeconds),
			}, servers), nil

		case backend.BackendProviderStableDiffusionCPP:
			bin := cfg.Backends.StableDiffusionCPP
			return stablediffusion.NewBackend(bin.BinPath, seconds(bin.TimeoutSeconds), bin.Threads, cfg.Server.TempDir)

		default:
			return nil, fmt.Errorf("%w: %q", ErrNoBackend, provider)
		}
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
