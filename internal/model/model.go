package model

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/config"
	"github.com/ekisa-team/speakpaint/internal/mapsafe"
)

// ModelStatus is the current loading status of a model.
type ModelStatus string

const (
	// ModelStatusUnloaded indicates that the model is not loaded.
	ModelStatusUnloaded ModelStatus = "unloaded"

	// ModelStatusLoading indicates that the model is being loaded.
	ModelStatusLoading ModelStatus = "loading"

	// ModelStatusLoaded indicates that the model is loaded.
	ModelStatusLoaded ModelStatus = "loaded"

	// ModelStatusFailed indicates that the model failed to load.
	ModelStatusFailed ModelStatus = "failed"

	// ModelStatusUnloading indicates that the model is being unloaded.
	ModelStatusUnloading ModelStatus = "unloading"
)

// ModelInstance is a model bound to its backend. Inference on one instance is
// serialized: the native engines are not safe for concurrent use.
type ModelInstance struct {
	Config   *config.ModelConfig
	LoadedAt *time.Time
	backend  backend.Backend
	slot     *semaphore.Weighted
	ID       string
	Path     string
	Service  config.ServiceType
	Status   ModelStatus
	Error    string
	mu       sync.RWMutex
	closed   atomic.Bool
}

// InstanceInfo is a point-in-time view of a ModelInstance.
type InstanceInfo struct {
	LoadedAt *time.Time  `json:"loaded_at,omitempty"`
	ID       string      `json:"id"`
	Service  string      `json:"service"`
	Backend  string      `json:"backend"`
	Status   ModelStatus `json:"status"`
	Error    string      `json:"error,omitempty"`
}

// NewModelInstance creates a new model instance.
func NewModelInstance(cfg *config.ModelConfig, id, path string, service config.ServiceType, b backend.Backend) *ModelInstance {
	return &ModelInstance{
		ID:      id,
		Path:    path,
		Service: service,
		Config:  cfg,
		Status:  ModelStatusUnloaded,
		backend: b,
		slot:    semaphore.NewWeighted(1),
	}
}

// SetStatus sets the status of the model instance.
func (mi *ModelInstance) SetStatus(status ModelStatus) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.Status = status
	if status == ModelStatusLoaded {
		now := time.Now()
		mi.LoadedAt = &now
		mi.Error = ""
	}
}

// SetError marks the model instance as failed.
func (mi *ModelInstance) SetError(err error) {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.Status = ModelStatusFailed
	mi.Error = err.Error()
}

// Info returns a snapshot of the instance.
func (mi *ModelInstance) Info() InstanceInfo {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	info := InstanceInfo{
		LoadedAt: mi.LoadedAt,
		ID:       mi.ID,
		Service:  string(mi.Service),
		Status:   mi.Status,
		Error:    mi.Error,
	}
	if mi.Config != nil {
		info.Backend = mi.Config.Backend
	}

	return info
}

// Infer runs one inference call. Calls wait for the instance to be free and
// give up when ctx is done. Model parameters from the config are applied
// first and request parameters override them.
func (mi *ModelInstance) Infer(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if err := mi.slot.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for model %s: %w", mi.ID, err)
	}
	defer mi.slot.Release(1)

	if mi.closed.Load() {
		return nil, fmt.Errorf("model %s: %w", mi.ID, ErrNotReady)
	}

	var base map[string]any
	if mi.Config != nil {
		base = mi.Config.Parameters
	}
	params := mapsafe.Merge(base, req.Parameters)

	return mi.backend.Infer(ctx, &backend.Request{
		ModelPath:  mi.Path,
		Input:      req.Input,
		Parameters: params,
	})
}

// drain blocks until no inference is running. Later calls fail with ErrNotReady.
func (mi *ModelInstance) drain(ctx context.Context) error {
	mi.SetStatus(ModelStatusUnloading)

	if err := mi.slot.Acquire(ctx, 1); err != nil {
		mi.closed.Store(true)
		return err
	}
	mi.closed.Store(true)
	mi.slot.Release(1)

	return nil
}
