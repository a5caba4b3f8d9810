package observability

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"overmind/internal/timeline"
)

// MetricsCollector manages all metrics for the mission console
type MetricsCollector struct {
	meter metric.Meter

	// Engine metrics
	eventsTotal  metric.Int64Counter
	applyLatency metric.Float64Histogram
	resets       metric.Int64Counter

	// Serving metrics
	snapshotsServed metric.Int64Counter
	streamClients   metric.Int64UpDownCounter

	// Server for Prometheus scraping
	prometheusServer *http.Server
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("overmind")

	eventsTotal, err := meter.Int64Counter(
		"overmind.timeline.events.total",
		metric.WithDescription("Mission events processed, by outcome"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create events counter: %w", err)
	}

	applyLatency, err := meter.Float64Histogram(
		"overmind.timeline.apply.latency",
		metric.WithDescription("Event reduction latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create apply_latency histogram: %w", err)
	}

	resets, err := meter.Int64Counter(
		"overmind.timeline.resets.total",
		metric.WithDescription("Session resets applied"),
		metric.WithUnit("{reset}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resets counter: %w", err)
	}

	snapshotsServed, err := meter.Int64Counter(
		"overmind.api.snapshots.total",
		metric.WithDescription("Projection snapshots served over the API"),
		metric.WithUnit("{snapshot}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create snapshots counter: %w", err)
	}

	streamClients, err := meter.Int64UpDownCounter(
		"overmind.api.stream.clients",
		metric.WithDescription("Connected projection stream clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream_clients gauge: %w", err)
	}

	collector := &MetricsCollector{
		meter:           meter,
		eventsTotal:     eventsTotal,
		applyLatency:    applyLatency,
		resets:          resets,
		snapshotsServed: snapshotsServed,
		streamClients:   streamClients,
	}

	// Start Prometheus HTTP server
	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// StartPrometheusServer starts the Prometheus metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		log.Printf("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m.prometheusServer != nil {
		return m.prometheusServer.Shutdown(ctx)
	}
	return nil
}

// RecordEvent records one processed mission event and its reduction outcome.
func (m *MetricsCollector) RecordEvent(ctx context.Context, outcome timeline.Outcome, latency time.Duration) {
	if m.eventsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome.String()),
	}
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.applyLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))
	if outcome == timeline.OutcomeReset {
		m.resets.Add(ctx, 1)
	}
}

// RecordSnapshot records a projection snapshot served to a consumer.
func (m *MetricsCollector) RecordSnapshot(ctx context.Context, cached bool) {
	if m.snapshotsServed == nil {
		return
	}
	m.snapshotsServed.Add(ctx, 1, metric.WithAttributes(attribute.Bool("cached", cached)))
}

// StreamClientConnected tracks a new projection stream subscriber.
func (m *MetricsCollector) StreamClientConnected(ctx context.Context) {
	if m.streamClients == nil {
		return
	}
	m.streamClients.Add(ctx, 1)
}

// StreamClientDisconnected tracks a departed projection stream subscriber.
func (m *MetricsCollector) StreamClientDisconnected(ctx context.Context) {
	if m.streamClients == nil {
		return
	}
	m.streamClients.Add(ctx, -1)
}
