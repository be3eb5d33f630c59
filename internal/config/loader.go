package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.yaml.in/yaml/v3"
)

const embeddedSchemaURL = "https://speakpaint.dev/schema/speakpaint.v1.schema.json"

//go:embed speakpaint.v1.schema.json
var embeddedSchema []byte

// LoadAndValidate loads and validates the configuration.
// An empty schemaPath validates against the schema embedded in the binary.
func LoadAndValidate(path, schemaPath string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read config: %w", err)
	}

	return Parse(data, schemaPath)
}

// Parse validates raw YAML against the schema and decodes it into a Config
// with defaults applied.
func Parse(data []byte, schemaPath string) (*Config, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: invalid YAML: %w", err)
	}

	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("config: failed to compile schema: %w", err)
	}

	if err := schema.Validate(raw); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal into Config struct: %w", err)
	}

	ApplyDefaults(&config)

	return &config, nil
}

// LoadOrDefault loads the config at path, falling back to Default when the
// file does not exist. The boolean reports whether the file was found.
func LoadOrDefault(path, schemaPath string) (*Config, bool, error) {
	cfg, err := LoadAndValidate(path, schemaPath)
	if err == nil {
		return cfg, true, nil
	}

	if errors.Is(err, fs.ErrNotExist) {
		return Default(), false, nil
	}

	return nil, false, err
}

// compileSchema compiles the schema at schemaPath, or the embedded schema.
func compileSchema(schemaPath string) (*jsonschema.Schema, error) {
	if schemaPath != "" {
		if _, err := os.Stat(schemaPath); err == nil {
			return jsonschema.Compile(schemaPath)
		}
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(embeddedSchemaURL, bytes.NewReader(embeddedSchema)); err != nil {
		return nil, err
	}

	return compiler.Compile(embeddedSchemaURL)
}
