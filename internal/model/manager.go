package model

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/config/source"
	"github.com/ekisa-team/speakpaint/internal/envvar"
	"github.com/ekisa-team/speakpaint/internal/xfs"
)

// DeviceDetector resolves the configured device preference.
type DeviceDetector interface {
	DetectDevice(ctx context.Context, preference string) backend.Device
}

// Status is a point-in-time view of the manager for health reporting.
type Status struct {
	State  State
	Device backend.Device
	Error  string
	Models []InstanceInfo
}

// Manager orchestrates the model lifecycle: download, backend start and
// readiness. A load builds a new Registry; readers never see a partial one.
type Manager struct {
	factory   BackendFactory
	detector  DeviceDetector
	observers []func(State)
	registry  atomic.Pointer[Registry]
	lastErr   error
	device    backend.Device
	state     State
	mu        sync.RWMutex
	loadMu    sync.Mutex
	drainWait time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithDeviceDetector sets how the inference device is chosen.
func WithDeviceDetector(d DeviceDetector) Option {
	return func(m *Manager) {
		m.detector = d
	}
}

// WithStateObserver registers a function called on every state change.
func WithStateObserver(fn func(State)) Option {
	return func(m *Manager) {
		m.observers = append(m.observers, fn)
	}
}

// WithDrainTimeout bounds how long a reload waits for in-flight inference.
func WithDrainTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.drainWait = d
	}
}

// NewManager creates a new Manager.
func NewManager(factory BackendFactory, opts ...Option) *Manager {
	m := &Manager{
		factory:   factory,
		device:    backend.DeviceCPU,
		drainWait: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Registry returns the model registry, or ErrNotReady unless every model is loaded.
func (m *Manager) Registry() (*Registry, error) {
	m.mu.RLock()
	state := m.state
	m.mu.RUnlock()

	reg := m.registry.Load()
	if state != StateReady || reg == nil {
		return nil, ErrNotReady
	}

	return reg, nil
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// Status returns the state, device and per-model details.
func (m *Manager) Status() Status {
	m.mu.RLock()
	status := Status{State: m.state, Device: m.device}
	if m.lastErr != nil {
		status.Error = m.lastErr.Error()
	}
	m.mu.RUnlock()

	if reg := m.registry.Load(); reg != nil {
		for _, instance := range reg.List() {
			status.Models = append(status.Models, instance.Info())
		}
	}

	return status
}

// Load downloads and loads every model assigned to a service. When models are
// already loaded, in-flight inference is drained and the old backends are
// closed first, so two native servers never fight over a port.
func (m *Manager) Load(ctx context.Context, cfg *config.Config) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.setState(StateLoading, nil)

	if old := m.registry.Swap(nil); old != nil {
		slog.Info("Unloading current models")

		drainCtx, cancel := context.WithTimeout(ctx, m.drainWait)
		if err := old.Close(drainCtx); err != nil {
			slog.Warn("Failed to unload models cleanly", "error", err)
		}
		cancel()
	}

	start := time.Now()

	reg, err := m.build(ctx, cfg)
	if err != nil {
		m.setState(StateFailed, err)
		return err
	}

	m.registry.Store(reg)
	m.setState(StateReady, nil)

	slog.Info("Models ready", "device", reg.Device().Name, "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Close unloads every model.
func (m *Manager) Close(ctx context.Context) error {
	m.loadMu.Lock()
	defer m.loadMu.Unlock()

	m.setState(StateNotReady, nil)

	if reg := m.registry.Swap(nil); reg != nil {
		return reg.Close(ctx)
	}

	return nil
}

// build creates a registry with every service's model loaded. On error every
// backend started so far is closed.
func (m *Manager) build(ctx context.Context, cfg *config.Config) (*Registry, error) {
	device := backend.DeviceCPU
	if m.detector != nil {
		device = m.detector.DetectDevice(ctx, cfg.Runtime.Device)
	}

	m.mu.Lock()
	m.device = device
	m.mu.Unlock()

	slog.Info("Loading models", "device", device.Name, "precision", device.Precision)

	modelsPath := ModelsPath(cfg)
	if err := source.EnsureModelsDirectory(modelsPath); err != nil {
		return nil, fmt.Errorf("failed to prepare models directory %s: %w", modelsPath, err)
	}

	backends := backend.NewRegistry()
	reg := NewRegistry(device, backends)

	for _, service := range config.Services {
		if err := m.loadService(ctx, cfg, service, modelsPath, reg, backends); err != nil {
			if closeErr := backends.Close(); closeErr != nil {
				slog.Error("Failed to close backends after load failure", "error", closeErr)
			}
			return nil, err
		}
	}

	return reg, nil
}

func (m *Manager) loadService(ctx context.Context, cfg *config.Config, service config.ServiceType, modelsPath string, reg *Registry, backends *backend.Registry) error {
	modelID, modelConfig, err := cfg.AssignedModel(service)
	if err != nil {
		return err
	}

	log := slog.With("service", service, "model_id", modelID, "backend", modelConfig.Backend)

	log.Info("Fetching model")

	modelPath, err := fetchModel(ctx, modelID, &modelConfig, modelsPath)
	if err != nil {
		return err
	}

	b, err := m.factory(backend.BackendProvider(modelConfig.Backend), cfg)
	if err != nil {
		return fmt.Errorf("failed to create backend for %s: %w", modelID, err)
	}

	if err := backends.Register(b); err != nil {
		if closeErr := b.Close(); closeErr != nil {
			log.Warn("Failed to close rejected backend", "error", closeErr)
		}
		return fmt.Errorf("model %s: %w", modelID, err)
	}

	instance := NewModelInstance(&modelConfig, modelID, modelPath, service, b)
	instance.SetStatus(ModelStatusLoading)
	reg.Set(instance)

	start := time.Now()
	if err := b.Load(ctx, &backend.LoadRequest{
		ModelID:    modelID,
		ModelPath:  modelPath,
		Device:     reg.Device(),
		Parameters: modelConfig.Parameters,
	}); err != nil {
		instance.SetError(err)
		return fmt.Errorf("failed to load model %s: %w", modelID, err)
	}

	instance.SetStatus(ModelStatusLoaded)
	log.Info("Model loaded", "elapsed", time.Since(start).Round(time.Millisecond))

	return nil
}

func (m *Manager) setState(state State, err error) {
	m.mu.Lock()
	m.state = state
	m.lastErr = err
	observers := m.observers
	m.mu.Unlock()

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("Model loading failed", "error", err)
	}

	for _, fn := range observers {
		fn(state)
	}
}

// ModelsPath returns the path to the models directory.
// Precedence:
// 1. SPEAKPAINT_MODELS_PATH environment variable.
// 2. ModelsDir field in the config.
// 3. Default models path.
func ModelsPath(cfg *config.Config) string {
	if p := os.Getenv(envvar.SpeakpaintModelsPath); p != "" {
		return xfs.ExpandTilde(p)
	}
	if cfg.Storage.ModelsDir != "" {
		return xfs.ExpandTilde(cfg.Storage.ModelsDir)
	}
	return xfs.ExpandTilde(config.DefaultModelsPath())
}
