package env

import (
	"os"
	"strings"

	"github.com/ekisa-team/speakpaint/internal/envvar"
)

// Environment is the deployment environment the process runs in.
type Environment string

const (
	// Development enables human-friendly console logging.
	Development Environment = "development"

	// Production switches logging to JSON.
	Production Environment = "production"

	// Test is used by tests that need a quiet logger.
	Test Environment = "test"
)

// FromEnv reads the environment from SPEAKPAINT_ENV, defaulting to Development.
func FromEnv() Environment {
	return Parse(os.Getenv(envvar.SpeakpaintEnv))
}

// Parse converts a raw value into an Environment.
func Parse(value string) Environment {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "prod", "production":
		return Production
	case "test":
		return Test
	default:
		return Development
	}
}

// IsProduction reports whether e is Production.
func (e Environment) IsProduction() bool {
	return e == Production
}
