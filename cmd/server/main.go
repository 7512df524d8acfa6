package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/awrenn/colonyfeed/service/colony"
	"github.com/awrenn/colonyfeed/service/config"
	"github.com/awrenn/colonyfeed/service/feed"
	"github.com/awrenn/colonyfeed/service/metrics"
	"github.com/awrenn/colonyfeed/service/server"
)

func main() {
	// Load and validate configuration from environment
	// This fails fast if any required config is missing or invalid
	cfg := config.MustLoad()

	// Setup structured logging
	logger := setupLogger(cfg.LogLevel)
	logger.Info("starting server",
		"addr", cfg.ServerAddr,
		"log_level", cfg.LogLevel,
		"colony", cfg.ColonyAddress,
	)

	// Token ticker table: built-in defaults, optionally merged with a file
	symbols := colony.DefaultSymbols()
	if cfg.TokenMapPath != "" {
		loaded, err := colony.LoadSymbols(cfg.TokenMapPath)
		if err != nil {
			logger.Error("failed to load token map", "path", cfg.TokenMapPath, "error", err)
			os.Exit(1)
		}
		symbols = loaded
		logger.Info("loaded token map", "path", cfg.TokenMapPath, "entries", len(symbols))
	}

	// Initialize metrics collectors
	m := metrics.NewMetrics(nil)

	// Initialize the chain reader over the Ethereum RPC endpoint
	reader, err := colony.NewEthReader(cfg.EthRPCURL, cfg.ColonyAddress, cfg.RPCTimeout, m, logger)
	if err != nil {
		logger.Error("failed to initialize chain reader", "error", err)
		os.Exit(1)
	}
	logger.Info("initialized eth RPC client", "url", cfg.EthRPCURL)

	// Initialize the feed aggregator
	aggregator := feed.New(reader, symbols, m, logger)

	// Initialize HTTP server
	httpServer := server.New(cfg.ServerAddr, cfg, aggregator, m, logger)
	if err := httpServer.WithTemplates(); err != nil {
		logger.Error("failed to load templates", "error", err)
		os.Exit(1)
	}

	// Warm the feed in the background so the first page load has data
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.RefreshTimeout)
		defer cancel()
		if _, _, err := aggregator.Refresh(ctx); err != nil {
			logger.Error("initial feed refresh failed", "error", err)
		}
	}()

	// Start HTTP server in background
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- httpServer.Start()
	}()

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("server error", "error", err)
		os.Exit(1)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to shutdown server gracefully", "error", err)
			os.Exit(1)
		}

		logger.Info("server shutdown complete")
	}
}

// setupLogger creates a structured logger with the given log level.
func setupLogger(levelStr string) *slog.Logger {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: level,
	}

	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}
