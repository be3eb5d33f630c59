// Package stablediffusion generates images with the stable-diffusion.cpp CLI.
package stablediffusion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/mapsafe"
)

const (
	// DefaultSteps is the number of sampling steps.
	DefaultSteps = 30

	// DefaultSize is the native resolution of Stable Diffusion 1.5.
	DefaultSize = 512
)

// Backend implements backend.Backend for stable-diffusion.cpp.
type Backend struct {
	executor  *backend.Executor
	tempDir   string
	modelPath string
	device    backend.Device
	threads   int
	mu        sync.RWMutex
}

// NewBackend creates a new stable-diffusion.cpp backend.
func NewBackend(binPath string, timeout time.Duration, threads int, tempDir string) (*Backend, error) {
	executor, err := backend.NewExecutor(binPath, timeout)
	if err != nil {
		return nil, err
	}

	return NewBackendWithExecutor(executor, threads, tempDir), nil
}

// NewBackendWithExecutor creates a backend around an existing executor.
func NewBackendWithExecutor(executor *backend.Executor, threads int, tempDir string) *Backend {
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Backend{
		executor: executor,
		tempDir:  tempDir,
		threads:  threads,
	}
}

// Provider returns the backend provider.
func (b *Backend) Provider() backend.BackendProvider {
	return backend.BackendProviderStableDiffusionCPP
}

// Load records the model to run. The CLI loads weights on every call, so the
// file only has to exist.
func (b *Backend) Load(_ context.Context, req *backend.LoadRequest) error {
	info, err := os.Stat(req.ModelPath)
	if err != nil {
		return fmt.Errorf("stable diffusion model: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("stable diffusion model %s is a directory", req.ModelPath)
	}

	b.mu.Lock()
	b.modelPath = req.ModelPath
	b.device = req.Device
	b.mu.Unlock()

	slog.Info("Stable diffusion model ready",
		"bin", b.executor.BinaryPath(),
		"model", req.ModelPath,
		"device", req.Device.Name,
		"precision", req.Device.Precision,
	)

	return nil
}

// Infer generates an image from the prompt.
// Input: prompt text.
// Output: PNG bytes.
func (b *Backend) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	b.mu.RLock()
	modelPath, device := b.modelPath, b.device
	b.mu.RUnlock()

	if modelPath == "" {
		return nil, backend.ErrNotLoaded
	}

	var prompt bytes.Buffer
	if _, err := prompt.ReadFrom(req.Input); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}

	// sd writes to a file, so a temp file must be used, then read back.
	outputFile := filepath.Join(b.tempDir, fmt.Sprintf("sd_%s.png", uuid.NewString()))
	defer os.Remove(outputFile)

	args := b.buildArgs(modelPath, device, prompt.String(), outputFile, req.Parameters)

	start := time.Now()

	stdout, stderr, err := b.executor.Execute(ctx, args, nil)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("execution failed: %w\nstderr: %s", err, stderr)
	}

	imageData, err := os.ReadFile(outputFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	return &backend.Response{
		Output: bytes.NewReader(imageData),
		Metadata: &backend.ResponseMetadata{
			Provider:        b.Provider(),
			Model:           modelPath,
			Timestamp:       time.Now(),
			DurationSeconds: time.Since(start).Seconds(),
			OutputBytes:     int64(len(imageData)),
			BackendSpecific: map[string]any{
				"device": device.Name,
				"stdout": string(stdout),
				"args":   args,
			},
		},
	}, nil
}

// buildArgs builds sd command-line arguments.
func (b *Backend) buildArgs(modelPath string, device backend.Device, prompt, outputFile string, p map[string]any) []string {
	if p == nil {
		p = make(map[string]any)
	}

	args := []string{
		"--model", modelPath,
		"--prompt", prompt,
		"--output", outputFile,
		"--steps", strconv.Itoa(mapsafe.Get(p, "steps", DefaultSteps)),
		"--width", strconv.Itoa(mapsafe.Get(p, "width", DefaultSize)),
		"--height", strconv.Itoa(mapsafe.Get(p, "height", DefaultSize)),
		"--seed", strconv.Itoa(mapsafe.Get(p, "seed", -1)),
	}

	if v := mapsafe.Get(p, "negative_prompt", ""); v != "" {
		args = append(args, "--negative-prompt", v)
	}
	if v := mapsafe.Get(p, "cfg_scale", 0.0); v > 0 {
		args = append(args, "--cfg-scale", strconv.FormatFloat(v, 'f', 2, 64))
	}
	if v := mapsafe.Get(p, "sampling_method", ""); v != "" {
		args = append(args, "--sampling-method", v)
	}
	// Weights run at the device precision unless the model pins a type.
	if v := mapsafe.Get(p, "weight_type", device.Precision); v != "" {
		args = append(args, "--type", v)
	}
	if device.Accelerated() {
		args = append(args, "--diffusion-fa")
	}
	if b.threads > 0 {
		args = append(args, "--threads", strconv.Itoa(b.threads))
	}

	return args
}

// Close cleans up resources. The CLI holds nothing between calls.
func (b *Backend) Close() error {
	b.mu.Lock()
	b.modelPath = ""
	b.mu.Unlock()

	return nil
}
