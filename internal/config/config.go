// Package config loads runtime configuration for the mission console from
// defaults, an optional YAML file, and OVERMIND_* environment overrides, in
// that precedence order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied before file and environment overrides.
const (
	DefaultListenAddr     = ":8480"
	DefaultEventStreamURL = "ws://localhost:8000/ws/mission-events"
	DefaultEnvironment    = "development"
	DefaultReconnectMin   = time.Second
	DefaultReconnectMax   = 30 * time.Second
)

// EnvLookup resolves environment variables; injectable for tests.
type EnvLookup func(key string) (string, bool)

// DefaultEnvLookup reads from the process environment.
func DefaultEnvLookup(key string) (string, bool) {
	return os.LookupEnv(key)
}

// RuntimeConfig holds everything the console needs to run.
type RuntimeConfig struct {
	ListenAddr     string
	EventStreamURL string
	Environment    string
	AllowedOrigins []string
	ReconnectMin   time.Duration
	ReconnectMax   time.Duration
	Debug          bool
}

// fileConfig is the YAML shape of the config file. Durations are Go
// duration strings ("2s", "1m"), parsed on load.
type fileConfig struct {
	ListenAddr     string   `yaml:"listen_addr"`
	EventStreamURL string   `yaml:"event_stream_url"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	ReconnectMin   string   `yaml:"reconnect_min"`
	ReconnectMax   string   `yaml:"reconnect_max"`
	Debug          bool     `yaml:"debug"`
}

type loadOptions struct {
	envLookup EnvLookup
	readFile  func(string) ([]byte, error)
	homeDir   func() (string, error)
	path      string
}

// Option customizes Load, mainly for tests.
type Option func(*loadOptions)

// WithEnvLookup overrides environment resolution.
func WithEnvLookup(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.envLookup = lookup }
}

// WithFileReader overrides config file reading.
func WithFileReader(read func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = read }
}

// WithHomeDir overrides home directory resolution.
func WithHomeDir(home func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = home }
}

// WithPath points Load at an explicit config file.
func WithPath(path string) Option {
	return func(o *loadOptions) { o.path = path }
}

// Load builds the runtime configuration.
func Load(opts ...Option) (RuntimeConfig, error) {
	options := loadOptions{
		envLookup: DefaultEnvLookup,
		readFile:  os.ReadFile,
		homeDir:   os.UserHomeDir,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := RuntimeConfig{
		ListenAddr:     DefaultListenAddr,
		EventStreamURL: DefaultEventStreamURL,
		Environment:    DefaultEnvironment,
		ReconnectMin:   DefaultReconnectMin,
		ReconnectMax:   DefaultReconnectMax,
	}

	if err := applyFile(&cfg, options); err != nil {
		return cfg, err
	}
	applyEnv(&cfg, options.envLookup)

	if cfg.ReconnectMin <= 0 {
		cfg.ReconnectMin = DefaultReconnectMin
	}
	if cfg.ReconnectMax < cfg.ReconnectMin {
		cfg.ReconnectMax = cfg.ReconnectMin
	}

	return cfg, nil
}

func applyFile(cfg *RuntimeConfig, options loadOptions) error {
	path := options.path
	if path == "" {
		home, err := options.homeDir()
		if err != nil {
			return nil
		}
		path = filepath.Join(home, ".overmind", "console.yaml")
	}

	data, err := options.readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// An explicitly requested file that cannot be read is an error;
		// the implicit default location is best-effort.
		if options.path != "" {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	var fileCfg fileConfig
	if err := yaml.Unmarshal(data, &fileCfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	if fileCfg.ListenAddr != "" {
		cfg.ListenAddr = fileCfg.ListenAddr
	}
	if fileCfg.EventStreamURL != "" {
		cfg.EventStreamURL = fileCfg.EventStreamURL
	}
	if fileCfg.Environment != "" {
		cfg.Environment = fileCfg.Environment
	}
	if len(fileCfg.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fileCfg.AllowedOrigins
	}
	if err := applyDuration(&cfg.ReconnectMin, fileCfg.ReconnectMin, path, "reconnect_min"); err != nil {
		return err
	}
	if err := applyDuration(&cfg.ReconnectMax, fileCfg.ReconnectMax, path, "reconnect_max"); err != nil {
		return err
	}
	cfg.Debug = cfg.Debug || fileCfg.Debug

	return nil
}

func applyDuration(dst *time.Duration, raw, path, field string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse config %s: %s: %w", path, field, err)
	}
	if parsed > 0 {
		*dst = parsed
	}
	return nil
}

func applyEnv(cfg *RuntimeConfig, lookup EnvLookup) {
	if lookup == nil {
		return
	}
	if v, ok := lookup("OVERMIND_LISTEN_ADDR"); ok && strings.TrimSpace(v) != "" {
		cfg.ListenAddr = strings.TrimSpace(v)
	}
	if v, ok := lookup("OVERMIND_EVENT_STREAM_URL"); ok && strings.TrimSpace(v) != "" {
		cfg.EventStreamURL = strings.TrimSpace(v)
	}
	if v, ok := lookup("OVERMIND_ENVIRONMENT"); ok && strings.TrimSpace(v) != "" {
		cfg.Environment = strings.TrimSpace(v)
	}
	if v, ok := lookup("OVERMIND_ALLOWED_ORIGINS"); ok && strings.TrimSpace(v) != "" {
		parts := strings.Split(v, ",")
		origins := make([]string, 0, len(parts))
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				origins = append(origins, trimmed)
			}
		}
		cfg.AllowedOrigins = origins
	}
	if v, ok := lookup("OVERMIND_DEBUG"); ok {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.Debug = parsed
		}
	}
}
