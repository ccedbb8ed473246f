// Package cmd implements the execctl CLI.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "execctl",
	Short: "Operate the order-execution control plane",
	Long: `execctl is the operational CLI for the order-execution control plane.

It provides tools for:
  - Submitting orders (paper by default) from intent files
  - Previewing the broker order a normalized intent composes to
  - Generating and validating configuration files
  - Inspecting the audit log`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the JSON logger the dispatcher and scheduler log through.
func newLogger(level string) *slog.Logger {
	var slevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		slevel = slog.LevelDebug
	case "warn":
		slevel = slog.LevelWarn
	case "error":
		slevel = slog.LevelError
	default:
		slevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slevel}))
}
