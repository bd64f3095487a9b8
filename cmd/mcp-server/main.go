// Package main provides the MCP server entry point for document retrieval.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/bull/docrag-mcp-server/internal/app"
	"github.com/bull/docrag-mcp-server/internal/config"
	mcpserver "github.com/bull/docrag-mcp-server/internal/mcp"
	"github.com/bull/docrag-mcp-server/internal/metrics"
)

const version = "v0.1.0"

func main() {
	// Load .env file if present (local development), ignore if missing (production)
	envErr := godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	cfg, err := config.Load(os.Getenv("DOCRAG_CONFIG"))
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(2)
	}

	// Stdout carries the stdio transport, so logs always go to stderr.
	logger := app.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)
	if envErr != nil {
		logger.Debug("No .env file found, using environment variables")
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialise", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	server := mcpserver.NewServer(&mcpserver.Config{
		Orchestrator: a.Orchestrator,
		Version:      version,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", mcpserver.NewHealthHandler(a.Store))
	mux.Handle("/mcp", mcpserver.NewHTTPHandler(server, nil))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/", mcpserver.NewLandingHandler())

	httpServer := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Server.Port,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		httpServer.Shutdown(shutdownCtx)
	}()

	if cfg.Server.HTTP {
		logger.Info("Starting HTTP server", "addr", httpServer.Addr, "provider", a.Provider.Name(), "store", cfg.Store.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
		return
	}

	// Stdio mode still serves /health and /metrics for local checks.
	go func() {
		logger.Info("Starting health server", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Health server error", "error", err)
		}
	}()

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
