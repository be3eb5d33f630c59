package model

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ekisa-team/speakpaint/internal/backend"
	"github.com/ekisa-team/speakpaint/internal/config"
)

// Registry stores the loaded model instances. It is built once per load and
// only read afterwards.
type Registry struct {
	models   map[string]*ModelInstance
	services map[config.ServiceType]*ModelInstance
	backends *backend.Registry
	device   backend.Device
	mu       sync.RWMutex
}

// NewRegistry creates a new model registry.
func NewRegistry(device backend.Device, backends *backend.Registry) *Registry {
	if backends == nil {
		backends = backend.NewRegistry()
	}

	return &Registry{
		models:   make(map[string]*ModelInstance),
		services: make(map[config.ServiceType]*ModelInstance),
		backends: backends,
		device:   device,
	}
}

// Set adds a model instance to the registry.
func (r *Registry) Set(instance *ModelInstance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models[instance.ID] = instance
	if instance.Service != "" {
		r.services[instance.Service] = instance
	}
}

// ForService returns the model instance serving a service.
func (r *Registry) ForService(service config.ServiceType) (*ModelInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instance, ok := r.services[service]
	if !ok {
		return nil, fmt.Errorf("%w: no model for service %s", ErrNotFound, service)
	}

	return instance, nil
}

// List returns all model instances in service order.
func (r *Registry) List() []*ModelInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()

	instances := make([]*ModelInstance, 0, len(r.models))
	for _, instance := range r.models {
		instances = append(instances, instance)
	}

	slices.SortFunc(instances, func(a, b *ModelInstance) int {
		return slices.Index(config.Services, a.Service) - slices.Index(config.Services, b.Service)
	})

	return instances
}

// Device returns the device the models run on.
func (r *Registry) Device() backend.Device {
	return r.device
}

// Close waits for in-flight inference to finish, then closes every backend.
// Backends are closed even when ctx expires first.
func (r *Registry) Close(ctx context.Context) error {
	var errs []error
	for _, instance := range r.List() {
		if err := instance.drain(ctx); err != nil {
			errs = append(errs, fmt.Errorf("drain %s: %w", instance.ID, err))
		}
		instance.SetStatus(ModelStatusUnloaded)
	}

	if err := r.backends.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
