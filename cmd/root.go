package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel string
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tspanneal",
	Short: "Approximate traveling salesman tours with simulated annealing",
	Long: `tspanneal searches short closed tours through 2-D cities using simulated
annealing with 2-opt segment reversals. It runs one-shot from the command line,
tunes annealing schedules, and serves background jobs over HTTP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Logs go to stderr so stdout carries only the tour report
		opts := &slog.HandlerOptions{Level: parseLogLevel(logLevel)}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
