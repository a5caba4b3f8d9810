package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"overmind/internal/timeline"
)

func newTailCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow the live mission timeline",
		Long: `Subscribes to a running console's projection stream and prints the
timeline every time it changes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTail(cmd)
		},
	}

	cmd.Flags().String("url", "ws://localhost:8480/api/stream", "console stream URL")
	_ = viper.BindPFlag("tail-url", cmd.Flags().Lookup("url"))

	return cmd
}

func runTail(cmd *cobra.Command) error {
	if !isTTY() {
		color.NoColor = true
	}

	url := viper.GetString("tail-url")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	fmt.Printf("%s %s\n", bold("Following mission timeline at"), cyan(url))

	// Unblock the read loop when interrupted.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		var snapshot timeline.Snapshot
		if err := conn.ReadJSON(&snapshot); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("stream closed: %w", err)
		}
		printSnapshot(snapshot)
	}
}

func printSnapshot(snapshot timeline.Snapshot) {
	stamp := time.Now().Format("15:04:05")
	fmt.Printf("%s %s run=%s seq=%d\n",
		gray(stamp), bold("timeline"), cyan(orDash(snapshot.ActiveRunID)), snapshot.LastSeq)

	if len(snapshot.Timeline) == 0 {
		fmt.Printf("  %s\n", gray("(empty)"))
		return
	}

	for _, entry := range snapshot.Timeline {
		marker := yellow("…")
		if entry.Status == timeline.StatusCompleted {
			marker = green("✓")
		}
		fmt.Printf("  %s %s %s\n", marker, entry.Phase, gray(string(entry.Status)))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
