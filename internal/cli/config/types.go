// Package config provides configuration management for the querymap CLI.
package config

import (
	"fmt"
)

// Config holds all CLI configuration options.
type Config struct {
	Manifest     string `koanf:"manifest"`
	StatePath    string `koanf:"state_path"`
	Scope        string `koanf:"scope"`
	Verbose      bool   `koanf:"verbose"`
	OutputFormat string `koanf:"output"`
	Workers      int    `koanf:"workers"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultManifest  = "querymap.manifest.yaml"
	DefaultStateFile = ".querymap/state.db"
	DefaultScope     = "default"
	DefaultOutput    = OutputText
	DefaultWorkers   = 4
)

// Output formats.
const (
	OutputText = "text"
	OutputJSON = "json"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Manifest == "" {
		return fmt.Errorf("manifest is required")
	}
	if c.Scope == "" {
		return fmt.Errorf("scope is required")
	}
	switch c.OutputFormat {
	case OutputText, OutputJSON:
	default:
		return fmt.Errorf("unknown output format %q (want text or json)", c.OutputFormat)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}
