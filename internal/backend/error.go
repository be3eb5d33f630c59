package backend

import "errors"

// Error definitions for the backend package.
var (
	ErrNotFound          = errors.New("backend not found in registry")
	ErrAlreadyRegistered = errors.New("backend is already registered in the registry")
	ErrNotLoaded         = errors.New("backend has no model loaded")
	ErrServerNotRunning  = errors.New("server is not running")
)
