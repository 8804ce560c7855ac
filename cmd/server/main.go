package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lanternlabs/lantern/internal"
	"github.com/lanternlabs/lantern/internal/handler"
	"github.com/lanternlabs/lantern/internal/metrics"
	"github.com/lanternlabs/lantern/internal/middleware"
	"github.com/lanternlabs/lantern/internal/provider"
	"github.com/lanternlabs/lantern/internal/telemetry"
)

func run() error {
	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Telemetry pipeline: events are written as structured log lines and
	// shipped from there; emission never blocks request handling.
	var sink telemetry.Sink = telemetry.NoopSink{}
	if cfg.TelemetryEnabled {
		sink = telemetry.NewLogSink(logger)
	}
	dispatcher := telemetry.NewDispatcher(sink, cfg.TelemetryBufferSize)
	defer dispatcher.Close()

	analytics := telemetry.NewAnalytics(dispatcher)
	failures := telemetry.NewFailures(dispatcher)

	// Identity provider client
	providerClient, err := provider.NewHTTPClient(provider.Config{
		BaseURL: cfg.ProviderURL,
		AnonKey: cfg.ProviderAnonKey,
		Timeout: cfg.ProviderTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("provider client initialization failed: %w", err)
	}

	// Initialize template renderer
	renderer, err := handler.NewRenderer(handler.RendererConfig{
		TemplatesDir: "web/templates",
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("renderer initialization failed: %w", err)
	}
	logger.Info("Templates loaded", "count", len(renderer.ListTemplates()))

	// Live auth form instances
	registry := handler.NewFormRegistry(cfg.FormTTL, cfg.FormSweepInterval, logger)
	defer registry.Close()

	// Initialize handlers
	authHandler := handler.NewAuthHandler(providerClient, registry, renderer, analytics, failures, logger, cfg.BaseURL)
	pageHandler := handler.NewPageHandler(renderer, analytics, logger)

	// Rate limit the endpoints that reach the identity provider
	authLimiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateWindow, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Static files
	staticFS := http.FileServer(http.Dir("web/static"))
	mux.Handle("GET /static/", http.StripPrefix("/static/", staticFS))

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (optionally behind basic auth)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	pageHandler.RegisterRoutes(mux)
	authHandler.RegisterRoutes(mux, authLimiter.Handler)

	// ==========================================================================
	// Start server
	// ==========================================================================

	isSecure := cfg.Env != "development"
	chain := middleware.Stack(
		middleware.NewRequestLoggingMiddleware(logger).Handler,
		middleware.NewSecurityHeadersMiddleware(isSecure).Handler,
		metrics.Middleware,
	)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: chain(mux),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
