package backend

import (
	"context"
	"io"
	"time"
)

// BackendProvider is a string identifier for a backend provider.
type BackendProvider string

const (
	BackendProviderLlamaCPP           BackendProvider = "llama.cpp"
	BackendProviderWhisperCPP         BackendProvider = "whisper.cpp"
	BackendProviderStableDiffusionCPP BackendProvider = "stable-diffusion.cpp"
)

// Backend defines the core interface for all inference backends.
type Backend interface {
	// Provider returns the backend identifier.
	Provider() BackendProvider

	// Load prepares the model so that Infer can be called. Server backends
	// start their native server here.
	Load(ctx context.Context, req *LoadRequest) error

	// Infer executes inference and returns complete result.
	Infer(ctx context.Context, req *Request) (*Response, error)

	// Close cleans up resources.
	Close() error
}

// Device describes where inference runs.
type Device struct {
	// Name is "cuda" or "cpu".
	Name string

	// Precision is the preferred weight precision, "f16" or "f32".
	Precision string
}

var (
	// DeviceCPU runs inference on the CPU in full precision.
	DeviceCPU = Device{Name: "cpu", Precision: "f32"}

	// DeviceCUDA runs inference on an NVIDIA GPU in half precision.
	DeviceCUDA = Device{Name: "cuda", Precision: "f16"}
)

// Accelerated reports whether the device is a GPU.
func (d Device) Accelerated() bool {
	return d.Name == DeviceCUDA.Name
}

// String returns the device name.
func (d Device) String() string {
	return d.Name
}

// LoadRequest describes the model a backend should load.
type LoadRequest struct {
	ModelID    string
	ModelPath  string
	Device     Device
	Parameters map[string]any
}

// Request encapsulates all parameters for an inference call.
type Request struct {
	// ModelPath is the path to the model file.
	ModelPath string

	// Input is the raw input data (text, audio bytes, etc.).
	Input io.Reader

	// Parameters contains backend-specific inference parameters.
	Parameters map[string]any
}

// Response contains the result of an inference operation.
type Response struct {
	// Output is the raw output data.
	Output io.Reader

	// Metadata contains backend-specific information.
	Metadata *ResponseMetadata
}

// ResponseMetadata contains metadata about the response.
type ResponseMetadata struct {
	Provider        BackendProvider `json:"provider"`
	Model           string          `json:"model"`
	Timestamp       time.Time       `json:"timestamp"`
	DurationSeconds float64         `json:"duration_seconds"`
	OutputBytes     int64           `json:"output_bytes"`
	BackendSpecific map[string]any  `json:"backend_specific"`
}
