// Package config provides YAML-based configuration loading with environment
// variable expansion and overrides.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Validator is an interface for configuration validation.
type Validator interface {
	Validate() error
}

// Option adjusts how Load reads configuration.
type Option func(*loader)

type loader struct {
	envPrefix    string
	optionalFile bool
}

// WithEnvPrefix applies environment overrides from variables named after
// the target's env tags, each prefixed with prefix.
func WithEnvPrefix(prefix string) Option {
	return func(l *loader) {
		l.envPrefix = prefix
	}
}

// WithOptionalFile keeps the target's current values when the file does
// not exist instead of failing.
func WithOptionalFile() Option {
	return func(l *loader) {
		l.optionalFile = true
	}
}

// Load loads configuration from a YAML file with environment variable
// expansion, applies environment overrides when an env prefix is set and
// finally validates the result.
func Load[T any](filename string, target *T, opts ...Option) error {
	var l loader
	for _, opt := range opts {
		opt(&l)
	}

	data, err := os.ReadFile(filename)
	switch {
	case err == nil:
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), target); err != nil {
			return fmt.Errorf("failed to parse config file %s: %w", filename, err)
		}
	case errors.Is(err, os.ErrNotExist) && l.optionalFile:
	default:
		return fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	if l.envPrefix != "" {
		if err := env.ParseWithOptions(target, env.Options{Prefix: l.envPrefix}); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
	}

	if validator, ok := any(target).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	return nil
}
