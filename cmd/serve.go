package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/tspanneal/internal/server"
	"github.com/cwbudde/tspanneal/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr    string
	serveDataDir string
	noStore      bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP job server",
	Long: `Starts an HTTP server that runs annealing jobs in the background.

Jobs are created with POST /api/v1/jobs and followed through /status,
/stream (server-sent events), /tour and /trace. Prometheus metrics are on /metrics.
Checkpoints, cost traces and tour reports are written under --data-dir.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "./data", "Base directory for checkpoints and traces")
	serveCmd.Flags().BoolVar(&noStore, "no-store", false, "Run jobs without writing checkpoints or traces")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	var checkpointStore store.Store
	if !noStore {
		fsStore, err := store.NewFSStore(serveDataDir)
		if err != nil {
			return fmt.Errorf("failed to create checkpoint store: %w", err)
		}
		checkpointStore = fsStore
	}

	srv := server.NewServer(serveAddr, checkpointStore)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}
