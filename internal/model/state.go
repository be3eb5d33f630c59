package model

// State is the readiness of the model manager.
type State int

const (
	// StateNotReady means no load has been attempted.
	StateNotReady State = iota

	// StateLoading means models are being downloaded and loaded.
	StateLoading

	// StateReady means every service has a loaded model.
	StateReady

	// StateFailed means the last load failed.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateNotReady:
		return "not_ready"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
