package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"overmind/internal/config"
	"overmind/internal/eventhub"
	"overmind/internal/ingest"
	"overmind/internal/observability"
	"overmind/internal/server"
	"overmind/internal/shared/logging"
	"overmind/internal/timeline"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the mission console API server",
		Long: `Connects to the orchestrator's mission event stream, reduces it into
a phase timeline, and serves the projection over HTTP and websocket.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}

	cmd.Flags().String("listen", "", "listen address for the API server")
	cmd.Flags().String("stream-url", "", "orchestrator event stream URL")
	cmd.Flags().Bool("no-ingest", false, "serve without connecting to the event stream")
	_ = viper.BindPFlag("listen", cmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("stream-url", cmd.Flags().Lookup("stream-url"))
	_ = viper.BindPFlag("no-ingest", cmd.Flags().Lookup("no-ingest"))

	return cmd
}

func runServe(cmd *cobra.Command) error {
	logger := logging.NewComponentLogger("Serve")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if listen := viper.GetString("listen"); listen != "" {
		cfg.ListenAddr = listen
	}
	if streamURL := viper.GetString("stream-url"); streamURL != "" {
		cfg.EventStreamURL = streamURL
	}
	if viper.GetBool("debug") {
		cfg.Debug = true
	}

	obsConfig, err := observability.LoadConfig("")
	if err != nil {
		return fmt.Errorf("failed to load observability configuration: %w", err)
	}

	metrics, err := observability.NewMetricsCollector(obsConfig.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}

	tracer, err := observability.NewTracerProvider(obsConfig.Tracing)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}

	store := timeline.NewStore()
	hub := eventhub.NewHub()

	srv, err := server.NewServer(server.Config{
		ListenAddr:     cfg.ListenAddr,
		Environment:    cfg.Environment,
		AllowedOrigins: cfg.AllowedOrigins,
		Debug:          cfg.Debug,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
	}, store, hub, server.WithMetrics(metrics), server.WithTracer(tracer))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		logger.Info("Mission console listening on %s", cfg.ListenAddr)
		return srv.Start()
	})

	if !viper.GetBool("no-ingest") {
		subscriber := ingest.NewSubscriber(cfg.EventStreamURL, store, hub,
			ingest.WithRecorder(metrics),
			ingest.WithTracer(tracer),
			ingest.WithReconnectWindow(cfg.ReconnectMin, cfg.ReconnectMax),
		)
		subscription := subscriber.Start(ctx)
		group.Go(func() error {
			<-ctx.Done()
			subscription.Stop()
			return nil
		})
		logger.Info("Ingesting mission events from %s", cfg.EventStreamURL)
	} else {
		logger.Info("Event stream ingest disabled; accepting events via POST /api/events only")
	}

	group.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		hub.Close()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown failed: %v", err)
		}
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Metrics shutdown failed: %v", err)
		}
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer shutdown failed: %v", err)
		}
		return nil
	})

	if err := group.Wait(); err != nil && ctx.Err() == nil {
		return err
	}

	logger.Info("Mission console stopped")
	return nil
}
