package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuntimeConfig is the process-level configuration loaded from terrane.yaml.
// It configures the machinery around a declaration set, never the resources
// themselves.
type RuntimeConfig struct {
	// StatePath is the SQLite state database path. A backend path in the
	// workspace block takes precedence.
	StatePath string `yaml:"state_path"`

	// MaxParallel caps concurrent provider calls during apply.
	MaxParallel int `yaml:"max_parallel"`

	// AWS configures the cloud providers.
	AWS AWSRuntimeConfig `yaml:"aws"`

	// Log configures structured logging.
	Log LogRuntimeConfig `yaml:"log"`

	// Metrics configures the Prometheus endpoint. Empty address disables
	// the listener.
	Metrics MetricsRuntimeConfig `yaml:"metrics"`

	// Tracing configures OTLP trace export.
	Tracing TracingRuntimeConfig `yaml:"tracing"`

	// Policy configures plan policy enforcement.
	Policy PolicyRuntimeConfig `yaml:"policy"`
}

// AWSRuntimeConfig selects the AWS credential and region setup.
type AWSRuntimeConfig struct {
	Region  string `yaml:"region"`
	Profile string `yaml:"profile"`
}

// LogRuntimeConfig configures structured logging.
type LogRuntimeConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`
}

// MetricsRuntimeConfig configures the Prometheus listener.
type MetricsRuntimeConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// TracingRuntimeConfig configures OTLP trace export.
type TracingRuntimeConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`

	// Stdout dumps spans to stdout instead of exporting, for debugging.
	Stdout bool `yaml:"stdout"`
}

// PolicyRuntimeConfig configures plan policy enforcement.
type PolicyRuntimeConfig struct {
	Enabled bool     `yaml:"enabled"`
	Paths   []string `yaml:"paths"`
}

// DefaultRuntimeConfig returns the configuration used when no terrane.yaml
// is present.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		StatePath:   "terrane.db",
		MaxParallel: 10,
		Log: LogRuntimeConfig{
			Level:  "info",
			Format: "console",
		},
		Metrics: MetricsRuntimeConfig{
			Addr: "127.0.0.1:9464",
		},
	}
}

// LoadRuntimeConfig reads the runtime configuration from path. A missing
// file yields the defaults; a malformed file is an error.
func LoadRuntimeConfig(path string) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 10
	}
	if cfg.StatePath == "" {
		cfg.StatePath = "terrane.db"
	}
	return cfg, nil
}
