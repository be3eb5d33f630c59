package config

import (
	"errors"
	"fmt"
)

// SourceType represents the type of model source.
type SourceType string

const (
	// SourceTypeHuggingFace represents a Hugging Face model repository source.
	SourceTypeHuggingFace SourceType = "huggingface"

	// SourceTypeLocal represents a model already present on disk.
	SourceTypeLocal SourceType = "local"
)

// ServiceType identifies one of the capabilities the server exposes.
type ServiceType string

const (
	// ServiceSTT is speech-to-text.
	ServiceSTT ServiceType = "stt"

	// ServiceTranslation is translation of arbitrary languages into English.
	ServiceTranslation ServiceType = "translation"

	// ServiceImage is text-to-image generation.
	ServiceImage ServiceType = "image"
)

// Services lists every service in load order.
var Services = []ServiceType{ServiceSTT, ServiceTranslation, ServiceImage}

// Device values accepted by RuntimeConfig.Device.
const (
	DeviceAuto = "auto"
	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

// Config holds the main configuration for the application.
type Config struct {
	Version    string                 `json:"version"              yaml:"version"`
	Server     ServerConfig           `json:"server,omitempty"     yaml:"server,omitempty"`
	Storage    StorageConfig          `json:"storage,omitempty"    yaml:"storage,omitempty"`
	Runtime    RuntimeConfig          `json:"runtime,omitempty"    yaml:"runtime,omitempty"`
	Generation GenerationConfig       `json:"generation,omitempty" yaml:"generation,omitempty"`
	Backends   BackendsConfig         `json:"backends,omitempty"   yaml:"backends,omitempty"`
	Models     map[string]ModelConfig `json:"models"               yaml:"models"`
	Services   ServicesConfig         `json:"services"             yaml:"services"`
}

// ServerConfig holds HTTP-facing settings.
type ServerConfig struct {
	Host         string          `json:"host,omitempty"          yaml:"host,omitempty"`
	GeneratedDir string          `json:"generated_dir,omitempty" yaml:"generated_dir,omitempty"`
	TempDir      string          `json:"temp_dir,omitempty"      yaml:"temp_dir,omitempty"`
	RateLimit    RateLimitConfig `json:"rate_limit,omitempty"    yaml:"rate_limit,omitempty"`
}

// RateLimitConfig limits inference requests per client IP. Zero disables it.
type RateLimitConfig struct {
	RequestsPerMinute int `json:"requests_per_minute,omitempty" yaml:"requests_per_minute,omitempty"`
}

// StorageConfig holds configuration for caching and auto-download.
type StorageConfig struct {
	ModelsDir string `json:"models_dir,omitempty" yaml:"models_dir,omitempty"`
}

// RuntimeConfig selects where inference runs.
type RuntimeConfig struct {
	Device string `json:"device,omitempty" yaml:"device,omitempty"` // auto, cpu or cuda
}

// GenerationConfig holds the fixed image generation settings.
type GenerationConfig struct {
	Steps        int `json:"steps,omitempty"         yaml:"steps,omitempty"`
	OutputWidth  int `json:"output_width,omitempty"  yaml:"output_width,omitempty"`
	OutputHeight int `json:"output_height,omitempty" yaml:"output_height,omitempty"`
}

// BackendsConfig holds the native binaries used by each backend provider.
type BackendsConfig struct {
	WhisperCPP         BackendBinaryConfig `json:"whisper_cpp,omitempty"          yaml:"whisper_cpp,omitempty"`
	LlamaCPP           BackendBinaryConfig `json:"llama_cpp,omitempty"            yaml:"llama_cpp,omitempty"`
	StableDiffusionCPP BackendBinaryConfig `json:"stable_diffusion_cpp,omitempty" yaml:"stable_diffusion_cpp,omitempty"`
}

// BackendBinaryConfig describes how a backend binary is launched.
type BackendBinaryConfig struct {
	BinPath        string `json:"bin_path,omitempty"        yaml:"bin_path,omitempty"`
	Port           int    `json:"port,omitempty"            yaml:"port,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
	Threads        int    `json:"threads,omitempty"         yaml:"threads,omitempty"`
}

// ModelConfig holds configuration for a specific model.
type ModelConfig struct {
	Source     SourceConfig   `json:"source"               yaml:"source"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Type       string         `json:"type"                 yaml:"type"`
	Backend    string         `json:"backend"              yaml:"backend"`
	Tags       []string       `json:"tags"                 yaml:"tags"`
	Order      int            `json:"order"                yaml:"order"`
}

// SourceConfig wraps optional sources (only one should be set).
type SourceConfig struct {
	HuggingFace *HuggingFaceSource `json:"huggingface,omitempty" yaml:"huggingface,omitempty"`
	Local       *LocalSource       `json:"local,omitempty"       yaml:"local,omitempty"`
}

// ServicesConfig holds configuration for all services.
type ServicesConfig struct {
	STT         ServicesConfigAssignment `json:"stt"         yaml:"stt"`
	Translation ServicesConfigAssignment `json:"translation" yaml:"translation"`
	Image       ServicesConfigAssignment `json:"image"       yaml:"image"`
}

// ServicesConfigAssignment holds model assignments for a service.
type ServicesConfigAssignment struct {
	Models []string `json:"models" yaml:"models"` // List of model IDs, first wins
}

// -------------------------
// Source definitions
// -------------------------

// ModelSource represents a source for a model.
type ModelSource interface {
	Type() SourceType
}

// HuggingFaceSource represents a Hugging Face model repository source.
type HuggingFaceSource struct {
	Repo          string   `json:"repo"                     yaml:"repo"`
	Revision      string   `json:"revision,omitempty"       yaml:"revision,omitempty"`
	RepoType      string   `json:"repo_type,omitempty"      yaml:"repo_type,omitempty"`
	Token         string   `json:"token,omitempty"          yaml:"token,omitempty"`
	Include       []string `json:"include,omitempty"        yaml:"include,omitempty"`
	Exclude       []string `json:"exclude,omitempty"        yaml:"exclude,omitempty"`
	MaxWorkers    int      `json:"max_workers,omitempty"    yaml:"max_workers,omitempty"`
	ForceDownload bool     `json:"force_download,omitempty" yaml:"force_download,omitempty"`
}

// Type returns the Hugging Face source type.
func (h HuggingFaceSource) Type() SourceType {
	return SourceTypeHuggingFace
}

// LocalSource points at a model file (or directory) already on disk.
type LocalSource struct {
	Path string `json:"path" yaml:"path"`
}

// Type returns the local source type.
func (l LocalSource) Type() SourceType {
	return SourceTypeLocal
}

// GetSource returns the active source for the model.
func (m *ModelConfig) GetSource() (ModelSource, error) {
	if m.Source.HuggingFace != nil {
		return *m.Source.HuggingFace, nil
	}
	if m.Source.Local != nil {
		return *m.Source.Local, nil
	}

	return nil, errors.New("no source configured for model")
}

// SetHuggingFaceSource sets the Hugging Face source.
func (m *ModelConfig) SetHuggingFaceSource(source HuggingFaceSource) {
	m.Source.HuggingFace = &source
	m.Source.Local = nil
}

// SetLocalSource sets the local source.
func (m *ModelConfig) SetLocalSource(source LocalSource) {
	m.Source.Local = &source
	m.Source.HuggingFace = nil
}

// Assignment returns the model assignment for a service.
func (s *ServicesConfig) Assignment(service ServiceType) ServicesConfigAssignment {
	switch service {
	case ServiceSTT:
		return s.STT
	case ServiceTranslation:
		return s.Translation
	case ServiceImage:
		return s.Image
	default:
		return ServicesConfigAssignment{}
	}
}

// AssignedModel resolves the model serving a service.
func (c *Config) AssignedModel(service ServiceType) (string, ModelConfig, error) {
	assignment := c.Services.Assignment(service)
	if len(assignment.Models) == 0 {
		return "", ModelConfig{}, fmt.Errorf("no model assigned to service %q", service)
	}

	id := assignment.Models[0]
	mc, ok := c.Models[id]
	if !ok {
		return "", ModelConfig{}, fmt.Errorf("model %q assigned to service %q is not defined", id, service)
	}

	if mc.Type != "" && mc.Type != string(service) {
		return "", ModelConfig{}, fmt.Errorf("model %q has type %q but is assigned to service %q", id, mc.Type, service)
	}

	return id, mc, nil
}
