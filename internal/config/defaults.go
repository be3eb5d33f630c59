package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/ekisa-team/speakpaint/internal/envvar"
)

const (
	defaultHTTPPort = 5000
	defaultGRPCPort = 5001

	// DefaultSteps is the number of diffusion steps per image.
	DefaultSteps = 30

	// DefaultOutputWidth is the width every generated image is resized to.
	DefaultOutputWidth = 512

	// DefaultOutputHeight is the height every generated image is resized to.
	DefaultOutputHeight = 400

	// DefaultGeneratedDir is the public folder generated images are written to.
	DefaultGeneratedDir = "generated"

	defaultWhisperPort = 8082
	defaultLlamaPort   = 8081
)

// DefaultConfigPath returns the default path for speakpaint config directory.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "speakpaint", "config")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Roaming", "speakpaint")
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "speakpaint")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, "speakpaint")
		}
		return filepath.Join(home, ".config", "speakpaint")
	}
}

// DefaultModelsPath returns the default path for speakpaint models directory.
func DefaultModelsPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "speakpaint", "models")
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(home, "AppData", "Local", "speakpaint", "models")
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "speakpaint", "models")
	default: // Linux, BSD, etc.
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "speakpaint", "models")
		}
		return filepath.Join(home, ".cache", "speakpaint", "models")
	}
}

// DefaultHTTPPort returns the HTTP port from SPEAKPAINT_SERVER_HTTP_PORT or 5000.
func DefaultHTTPPort() int {
	return portFromEnv(envvar.SpeakpaintServerHTTPPort, defaultHTTPPort)
}

// DefaultGRPCPort returns the gRPC port from SPEAKPAINT_SERVER_GRPC_PORT or 5001.
func DefaultGRPCPort() int {
	return portFromEnv(envvar.SpeakpaintServerGRPCPort, defaultGRPCPort)
}

func portFromEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	port, err := strconv.Atoi(raw)
	if err != nil || port <= 0 || port > 65535 {
		return fallback
	}

	return port
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{
		Version: "1",
		Models: map[string]ModelConfig{
			"whisper-base": {
				Type:    string(ServiceSTT),
				Backend: "whisper.cpp",
				Tags:    []string{"multilingual"},
				Source: SourceConfig{HuggingFace: &HuggingFaceSource{
					Repo:    "ggerganov/whisper.cpp",
					Include: []string{"ggml-base.bin"},
				}},
			},
			"qwen2.5-1.5b-translate": {
				Type:    string(ServiceTranslation),
				Backend: "llama.cpp",
				Tags:    []string{"multilingual", "mul-en"},
				Source: SourceConfig{HuggingFace: &HuggingFaceSource{
					Repo:    "Qwen/Qwen2.5-1.5B-Instruct-GGUF",
					Include: []string{"qwen2.5-1.5b-instruct-q4_k_m.gguf"},
				}},
			},
			"sd-v1-5": {
				Type:    string(ServiceImage),
				Backend: "stable-diffusion.cpp",
				Source: SourceConfig{HuggingFace: &HuggingFaceSource{
					Repo:    "second-state/stable-diffusion-v1-5-GGUF",
					Include: []string{"stable-diffusion-v1-5-pruned-emaonly-Q8_0.gguf"},
				}},
			},
		},
		Services: ServicesConfig{
			STT:         ServicesConfigAssignment{Models: []string{"whisper-base"}},
			Translation: ServicesConfigAssignment{Models: []string{"qwen2.5-1.5b-translate"}},
			Image:       ServicesConfigAssignment{Models: []string{"sd-v1-5"}},
		},
	}

	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills every unset field with its default value.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.GeneratedDir == "" {
		cfg.Server.GeneratedDir = DefaultGeneratedDir
	}
	if cfg.Server.TempDir == "" {
		cfg.Server.TempDir = os.TempDir()
	}
	if cfg.Runtime.Device == "" {
		cfg.Runtime.Device = DeviceAuto
	}
	if cfg.Generation.Steps <= 0 {
		cfg.Generation.Steps = DefaultSteps
	}
	if cfg.Generation.OutputWidth <= 0 {
		cfg.Generation.OutputWidth = DefaultOutputWidth
	}
	if cfg.Generation.OutputHeight <= 0 {
		cfg.Generation.OutputHeight = DefaultOutputHeight
	}

	applyBinaryDefaults(&cfg.Backends.WhisperCPP, "whisper-server", defaultWhisperPort, 300)
	applyBinaryDefaults(&cfg.Backends.LlamaCPP, "llama-server", defaultLlamaPort, 120)
	applyBinaryDefaults(&cfg.Backends.StableDiffusionCPP, "sd", 0, 900)
}

func applyBinaryDefaults(b *BackendBinaryConfig, bin string, port, timeoutSeconds int) {
	if b.BinPath == "" {
		b.BinPath = bin
	}
	if b.Port == 0 {
		b.Port = port
	}
	if b.TimeoutSeconds <= 0 {
		b.TimeoutSeconds = timeoutSeconds
	}
}

// ApplyEnv applies environment overrides on top of the file configuration.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(envvar.SpeakpaintGeneratedDir); ok && strings.TrimSpace(v) != "" {
		cfg.Server.GeneratedDir = strings.TrimSpace(v)
	}
	if v, ok := lookup(envvar.SpeakpaintDevice); ok && strings.TrimSpace(v) != "" {
		cfg.Runtime.Device = strings.ToLower(strings.TrimSpace(v))
	}
	if v, ok := lookup(envvar.HuggingFaceToken); ok && strings.TrimSpace(v) != "" {
		for id, mc := range cfg.Models {
			if mc.Source.HuggingFace != nil && mc.Source.HuggingFace.Token == "" {
				hf := *mc.Source.HuggingFace
				hf.Token = strings.TrimSpace(v)
				mc.Source.HuggingFace = &hf
				cfg.Models[id] = mc
			}
		}
	}
}
