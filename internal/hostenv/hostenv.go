// Package hostenv probes the host for the tools and hardware inference needs.
package hostenv

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/config"
)

const probeTimeout = 10 * time.Second

// Checker runs host probes through a CommandRunner.
type Checker struct {
	runner backend.CommandRunner
}

// NewChecker creates a checker that runs real commands.
func NewChecker() *Checker {
	return &Checker{runner: backend.ExecCommandRunner{}}
}

// NewCheckerWithRunner creates a checker with a custom runner.
func NewCheckerWithRunner(runner backend.CommandRunner) *Checker {
	return &Checker{runner: runner}
}

// CheckFFmpeg reports whether ffmpeg can be executed. A missing ffmpeg is not
// fatal: uploads must then already be 16 kHz WAV.
func (c *Checker) CheckFFmpeg(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	stdout, _, err := c.runner.Run(ctx, "ffmpeg", []string{"-version"}, nil)
	if err != nil {
		slog.Warn("FFmpeg not found, audio uploads will not be converted", "error", err)
		return false
	}

	version, _, _ := strings.Cut(string(stdout), "\n")
	slog.Info("FFmpeg detected", "version", strings.TrimSpace(version))
	return true
}

// DetectDevice resolves the configured device. "auto" selects CUDA when
// nvidia-smi lists at least one GPU.
func (c *Checker) DetectDevice(ctx context.Context, preference string) backend.Device {
	switch strings.ToLower(strings.TrimSpace(preference)) {
	case config.DeviceCPU:
		return backend.DeviceCPU
	case config.DeviceCUDA:
		return backend.DeviceCUDA
	}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	stdout, _, err := c.runner.Run(ctx, "nvidia-smi", []string{"-L"}, nil)
	if err != nil || !strings.Contains(string(stdout), "GPU") {
		slog.Info("No CUDA device found, running on CPU")
		return backend.DeviceCPU
	}

	slog.Info("CUDA device detected", "gpus", strings.Count(string(stdout), "GPU "))
	return backend.DeviceCUDA
}
