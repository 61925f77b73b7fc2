// Command vecdb runs the vector database service.
//
// Startup order: open the database (scalar store, indexes, WAL), load the
// latest snapshot, replay the log past the snapshot cursor, then serve RPC
// requests until interrupted.
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

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecdb"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/internal/config"
	"github.com/hupe1980/vecdb/internal/server"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "vecdb",
		Short:         "Durable filtered vector search service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "vecdb.yaml", "path to the optional YAML configuration file")

	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := newLogger(cfg)

	db, err := vecdb.New(func(o *vecdb.Options) {
		o.Dimension = cfg.Dimension
		o.DistanceType = distanceType(cfg)
		o.HNSWM = cfg.HNSW.M
		o.HNSWEF = cfg.HNSW.EF
		o.ScalarPath = cfg.Storage.ScalarPath
		o.WALPath = cfg.Storage.WALPath
		o.CursorPath = cfg.Storage.CursorPath
		o.SnapshotDir = cfg.Storage.SnapshotDir
		o.Compression = compression(cfg)
		o.Logger = logger
	})
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Recover(); err != nil {
		return err
	}

	srv := server.New(db, func(o *server.Options) {
		o.Logger = logger
		o.RateLimitRPS = cfg.RateLimit.RPS
		o.RateLimitBurst = cfg.RateLimit.Burst
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving", "addr", cfg.Addr())
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return httpServer.Shutdown(shutdownCtx)
}

func newLogger(cfg *config.Config) *vecdb.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Log.Format == "json" {
		return vecdb.NewJSONLogger(level)
	}

	return vecdb.NewTextLogger(level)
}

func distanceType(cfg *config.Config) index.DistanceType {
	if cfg.DistanceType == "ip" {
		return index.DistanceTypeInnerProduct
	}
	return index.DistanceTypeSquaredL2
}

func compression(cfg *config.Config) index.Compression {
	switch cfg.Storage.Compression {
	case "zstd":
		return index.CompressionZstd
	case "lz4":
		return index.CompressionLZ4
	default:
		return index.CompressionNone
	}
}
