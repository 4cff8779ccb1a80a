// Package app wires the chat relay's components and owns their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"chatrelay/config"
	"chatrelay/internal/core"
	"chatrelay/internal/httpclient"
	"chatrelay/internal/observability"
	"chatrelay/internal/providers/openai"
	"chatrelay/internal/relay"
	"chatrelay/internal/server"
	"chatrelay/internal/usage"
)

// App represents the main application with all its dependencies.
type App struct {
	config *config.Config
	usage  *usage.Result
	relay  *relay.Service
	server *server.Server

	shutdownMu sync.Mutex
	shutdown   bool
}

// New creates a new App with all dependencies initialized.
// The caller must call Shutdown to release resources.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is required")
	}

	app := &App{config: cfg}

	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = observability.NewMetrics(registry)
	}

	usageResult, err := usage.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize usage tracking: %w", err)
	}
	app.usage = usageResult

	app.relay = relay.NewService(
		relay.Config{APIKey: cfg.OpenAI.APIKey, Model: cfg.OpenAI.Model},
		newCompleter(cfg),
		relay.WithUsageRecorder(usageResult.Recorder),
		relay.WithMetrics(metrics),
	)

	app.server = server.New(app.relay, &server.Config{
		BodySizeLimit:       cfg.Server.BodySizeLimit,
		DistinctErrorStatus: cfg.Server.DistinctErrorStatus,
		MetricsEnabled:      cfg.Metrics.Enabled,
		MetricsEndpoint:     cfg.Metrics.Endpoint,
		Gatherer:            registry,
	})

	app.logStartupInfo()
	return app, nil
}

// newCompleter builds the completion client once. Without an API key there is
// nothing to build and every chat request fails with a configuration error.
func newCompleter(cfg *config.Config) core.Completer {
	if cfg.OpenAI.APIKey == "" {
		return nil
	}
	httpCfg := httpclient.DefaultConfig().WithTimeouts(cfg.HTTP.Timeout, cfg.HTTP.ResponseHeaderTimeout)
	return openai.NewWithHTTPClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, httpclient.NewHTTPClient(&httpCfg))
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.server
}

// Start starts the HTTP server and blocks until it stops.
func (a *App) Start(addr string) error {
	if a.server == nil {
		return fmt.Errorf("server is not initialized")
	}
	slog.Info("starting server", "address", addr)
	if err := a.server.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			slog.Info("server stopped gracefully")
			return nil
		}
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, then flushes and closes usage tracking.
// It is idempotent; every step is attempted and failures are joined.
func (a *App) Shutdown(ctx context.Context) error {
	a.shutdownMu.Lock()
	if a.shutdown {
		a.shutdownMu.Unlock()
		return nil
	}
	a.shutdown = true
	a.shutdownMu.Unlock()

	slog.Info("shutting down application...")

	var errs []error

	// Stop accepting requests before the usage queue is drained.
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			slog.Error("server shutdown error", "error", err)
			errs = append(errs, fmt.Errorf("server shutdown: %w", err))
		}
	}

	if a.usage != nil {
		if err := a.usage.Close(); err != nil {
			slog.Error("usage close error", "error", err)
			errs = append(errs, fmt.Errorf("usage close: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}

	slog.Info("application shutdown complete")
	return nil
}

func (a *App) logStartupInfo() {
	cfg := a.config

	if cfg.OpenAI.APIKey == "" {
		slog.Warn("OPENAI_API_KEY not set - every chat request will fail until it is configured")
	}
	slog.Info("completion service configured",
		"base_url", cfg.OpenAI.BaseURL,
		"model", cfg.OpenAI.Model,
	)

	if cfg.Metrics.Enabled {
		slog.Info("prometheus metrics enabled", "endpoint", cfg.Metrics.Endpoint)
	} else {
		slog.Info("prometheus metrics disabled")
	}

	if cfg.Usage.Enabled {
		slog.Info("usage tracking enabled",
			"storage_type", cfg.Storage.Type,
			"buffer_size", cfg.Usage.BufferSize,
			"flush_interval", cfg.Usage.FlushInterval,
			"retention_days", cfg.Usage.RetentionDays,
		)
	} else {
		slog.Info("usage tracking disabled")
	}

	if cfg.Server.DistinctErrorStatus {
		slog.Info("distinct error statuses enabled")
	}
}
