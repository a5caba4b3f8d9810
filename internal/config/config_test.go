package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func noFile(string) ([]byte, error) { return nil, os.ErrNotExist }

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(WithEnvLookup(noEnv), WithFileReader(noFile))
	require.NoError(t, err)
	require.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	require.Equal(t, DefaultEventStreamURL, cfg.EventStreamURL)
	require.Equal(t, DefaultEnvironment, cfg.Environment)
	require.Equal(t, DefaultReconnectMin, cfg.ReconnectMin)
	require.Equal(t, DefaultReconnectMax, cfg.ReconnectMax)
	require.False(t, cfg.Debug)
}

func TestLoadFileOverrides(t *testing.T) {
	file := []byte("listen_addr: \":9000\"\nevent_stream_url: ws://orchestrator:8000/ws\nreconnect_min: 2s\nallowed_origins:\n  - https://console.example.com\n")

	cfg, err := Load(
		WithEnvLookup(noEnv),
		WithPath("console.yaml"),
		WithFileReader(func(path string) ([]byte, error) {
			require.Equal(t, "console.yaml", path)
			return file, nil
		}),
	)
	require.NoError(t, err)
	require.Equal(t, ":9000", cfg.ListenAddr)
	require.Equal(t, "ws://orchestrator:8000/ws", cfg.EventStreamURL)
	require.Equal(t, 2*time.Second, cfg.ReconnectMin)
	require.Equal(t, []string{"https://console.example.com"}, cfg.AllowedOrigins)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	env := map[string]string{
		"OVERMIND_LISTEN_ADDR":     ":7000",
		"OVERMIND_ALLOWED_ORIGINS": "https://a.example, https://b.example",
		"OVERMIND_DEBUG":           "true",
	}
	cfg, err := Load(
		WithEnvLookup(func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		}),
		WithPath("console.yaml"),
		WithFileReader(func(string) ([]byte, error) {
			return []byte("listen_addr: \":9000\""), nil
		}),
	)
	require.NoError(t, err)
	require.Equal(t, ":7000", cfg.ListenAddr)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	require.True(t, cfg.Debug)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(
		WithEnvLookup(noEnv),
		WithPath("console.yaml"),
		WithFileReader(func(string) ([]byte, error) {
			return []byte("listen_addr: [broken"), nil
		}),
	)
	require.Error(t, err)
}

func TestLoadClampsReconnectWindow(t *testing.T) {
	cfg, err := Load(
		WithEnvLookup(noEnv),
		WithPath("console.yaml"),
		WithFileReader(func(string) ([]byte, error) {
			return []byte("reconnect_min: 10s\nreconnect_max: 1s"), nil
		}),
	)
	require.NoError(t, err)
	require.Equal(t, 10*time.Second, cfg.ReconnectMin)
	require.Equal(t, 10*time.Second, cfg.ReconnectMax)
}
