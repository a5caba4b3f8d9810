package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"overmind/internal/shared/utils"
)

// Color definitions for console output
var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// isTTY checks if the current environment has a TTY available
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewRootCommand creates the root cobra command
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "overmind-console",
		Short: "Mission timeline reconciliation console",
		Long: fmt.Sprintf(`%s

Reconciles the orchestrator's mission event stream into a queryable
phase timeline and serves it over HTTP and websocket.

%s
  overmind-console serve                    # Run the console API
  overmind-console tail                     # Follow the live timeline
  overmind-console version                  # Print version info`,
			bold("Overmind Console "+utils.Version),
			bold("EXAMPLES:")),
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().Bool("debug", false, "enable debug output")
	_ = viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newTailCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("overmind-console %s\n", utils.Version)
			fmt.Printf("  commit:   %s\n", utils.GitCommit)
			fmt.Printf("  built:    %s\n", utils.BuildTime)
			fmt.Printf("  go:       %s\n", utils.GoVersion)
			fmt.Printf("  platform: %s\n", utils.Platform)
		},
	}
}

func init() {
	viper.SetEnvPrefix("OVERMIND")
	viper.AutomaticEnv()
}

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, red("Error: "+err.Error()))
		os.Exit(1)
	}
}
