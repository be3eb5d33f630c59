package model

import "errors"

// Error definitions for the model package.
var (
	ErrNotFound  = errors.New("model not found in registry")
	ErrNotReady  = errors.New("models are not ready")
	ErrNoBackend = errors.New("no backend for provider")
)
