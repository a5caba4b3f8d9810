package observability

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the complete observability configuration
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig configures logging
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns the default observability configuration
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled:        true,
			PrometheusPort: 9464,
		},
		Tracing: TracingConfig{
			Enabled:        false,
			Exporter:       "otlp",
			OTLPEndpoint:   "localhost:4318",
			SampleRate:     1.0,
			ServiceName:    "overmind-console",
			ServiceVersion: "1.0.0",
		},
	}
}

// File shapes with pointer sections: the config file is shared with the
// runtime loader, so an absent observability section (or subsection) must
// leave the defaults alone rather than zero them out.
type metricsFileSection struct {
	Enabled        *bool `yaml:"enabled"`
	PrometheusPort int   `yaml:"prometheus_port"`
}

type tracingFileSection struct {
	Enabled        *bool   `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"`
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint"`
	JaegerEndpoint string  `yaml:"jaeger_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
}

// LoadConfig loads observability configuration from file
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			configPath = filepath.Join(homeDir, ".overmind", "console.yaml")
		}
	}

	// If file doesn't exist, return defaults
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return config, fmt.Errorf("failed to read config file: %w", err)
	}

	var fileConfig struct {
		Observability struct {
			Logging LoggingConfig       `yaml:"logging"`
			Metrics *metricsFileSection `yaml:"metrics"`
			Tracing *tracingFileSection `yaml:"tracing"`
		} `yaml:"observability"`
	}

	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return config, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Merge with defaults (only override what the file actually sets)
	if fileConfig.Observability.Logging.Level != "" {
		config.Logging.Level = fileConfig.Observability.Logging.Level
	}
	if fileConfig.Observability.Logging.Format != "" {
		config.Logging.Format = fileConfig.Observability.Logging.Format
	}

	if metrics := fileConfig.Observability.Metrics; metrics != nil {
		if metrics.Enabled != nil {
			config.Metrics.Enabled = *metrics.Enabled
		}
		if metrics.PrometheusPort > 0 {
			config.Metrics.PrometheusPort = metrics.PrometheusPort
		}
	}

	if tracing := fileConfig.Observability.Tracing; tracing != nil {
		if tracing.Enabled != nil {
			config.Tracing.Enabled = *tracing.Enabled
		}
		if tracing.Exporter != "" {
			config.Tracing.Exporter = tracing.Exporter
		}
		if tracing.OTLPEndpoint != "" {
			config.Tracing.OTLPEndpoint = tracing.OTLPEndpoint
		}
		if tracing.ZipkinEndpoint != "" {
			config.Tracing.ZipkinEndpoint = tracing.ZipkinEndpoint
		}
		if tracing.JaegerEndpoint != "" {
			config.Tracing.JaegerEndpoint = tracing.JaegerEndpoint
		}
		if tracing.SampleRate > 0 && tracing.SampleRate <= 1.0 {
			config.Tracing.SampleRate = tracing.SampleRate
		}
		if tracing.ServiceName != "" {
			config.Tracing.ServiceName = tracing.ServiceName
		}
		if tracing.ServiceVersion != "" {
			config.Tracing.ServiceVersion = tracing.ServiceVersion
		}
	}

	return config, nil
}
