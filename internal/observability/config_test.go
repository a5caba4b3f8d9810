package observability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	content := `
observability:
  logging:
    level: debug
  metrics:
    enabled: true
    prometheus_port: 9900
  tracing:
    enabled: true
    exporter: zipkin
    zipkin_endpoint: http://zipkin:9411/api/v2/spans
    sample_rate: 0.25
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Logging.Level)
	require.Equal(t, "text", cfg.Logging.Format)
	require.True(t, cfg.Metrics.Enabled)
	require.Equal(t, 9900, cfg.Metrics.PrometheusPort)
	require.True(t, cfg.Tracing.Enabled)
	require.Equal(t, "zipkin", cfg.Tracing.Exporter)
	require.Equal(t, "http://zipkin:9411/api/v2/spans", cfg.Tracing.ZipkinEndpoint)
	require.InDelta(t, 0.25, cfg.Tracing.SampleRate, 1e-9)
	// Untouched sections keep their defaults.
	require.Equal(t, "overmind-console", cfg.Tracing.ServiceName)
}

func TestLoadConfigKeepsDefaultsWithoutObservabilitySection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	content := `
listen_addr: ":9000"
event_stream_url: ws://orchestrator:8080/events
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	// The file is shared with the runtime loader; its keys must not
	// zero out the observability defaults.
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), cfg)
	require.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfigExplicitDisableStillWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	content := `
observability:
  metrics:
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.False(t, cfg.Metrics.Enabled)
	// The absent tracing section keeps its defaults.
	require.Equal(t, DefaultConfig().Tracing, cfg.Tracing)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "console.yaml")
	require.NoError(t, os.WriteFile(path, []byte("observability: ["), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestDisabledMetricsCollectorIsNoOp(t *testing.T) {
	collector, err := NewMetricsCollector(MetricsConfig{Enabled: false})
	require.NoError(t, err)

	// Nothing to record against, but the calls must be safe.
	ctx := context.Background()
	collector.RecordSnapshot(ctx, true)
	collector.StreamClientConnected(ctx)
	collector.StreamClientDisconnected(ctx)
	require.NoError(t, collector.Shutdown(ctx))
}
