// Package main provides the entry point for the arXivist backend HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/arxivist/arxivist-backend/internal/config"
	"github.com/arxivist/arxivist-backend/internal/observability"
	"github.com/arxivist/arxivist-backend/internal/papers"
	"github.com/arxivist/arxivist-backend/internal/papersources/arxiv"
	httpserver "github.com/arxivist/arxivist-backend/internal/server/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Set up structured logging.
	logger := observability.NewLogger(observability.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		AddSource:  cfg.Logging.AddSource,
		TimeFormat: cfg.Logging.TimeFormat,
	})
	logger = logger.With().Str("component", "server").Logger()
	logger.Info().
		Str("name", cfg.App.Name).
		Str("version", cfg.App.Version).
		Msg("arxivist backend starting")

	// Set up context with graceful shutdown via OS signals.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(cfg.Metrics.Namespace)
	}

	// Build the arXiv provider and the retrieval service on top of it.
	provider := newArxivClient(cfg, metrics, logger)

	serviceOpts := []papers.Option{}
	if metrics != nil {
		serviceOpts = append(serviceOpts, papers.WithMetrics(metrics))
	}
	paperService := papers.NewService(provider, papers.Config{
		DefaultResults:     cfg.Papers.DefaultResults,
		StrictLookupErrors: cfg.Papers.StrictLookupErrors,
	}, logger, serviceOpts...)

	httpCfg := httpserver.Config{
		Address:         cfg.Server.HTTPAddress(),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		APIPrefix:       cfg.Server.APIPrefix,
		AppName:         cfg.App.Name,
		AppVersion:      cfg.App.Version,
		DefaultResults:  cfg.Papers.DefaultResults,
		MaxResults:      cfg.Papers.MaxResults,
		CORS: httpserver.CORSConfig{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
	}
	httpSrv := httpserver.NewServer(httpCfg, paperService, metrics, logger)

	// Set up Prometheus metrics handler on a separate port if configured.
	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsMux := http.NewServeMux()
		metricsMux.Handle(cfg.Metrics.Path, promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress(),
			Handler:      metricsMux,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.ReadTimeout,
		}
	}

	// Channel to collect server errors.
	errCh := make(chan error, 2)

	// Start HTTP REST API server in background.
	go func() {
		if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// Start metrics server if configured.
	if metricsServer != nil {
		go func() {
			logger.Info().
				Str("address", metricsServer.Addr).
				Msg("metrics server starting")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	readyLog := logger.Info().
		Str("http_address", httpCfg.Address).
		Str("arxiv_base_url", cfg.ArXiv.BaseURL)
	if metricsServer != nil {
		readyLog = readyLog.Str("metrics_address", metricsServer.Addr)
	}
	readyLog.Msg("arxivist backend is ready")

	// Wait for shutdown signal or server error.
	select {
	case <-ctx.Done():
		logger.Info().Msg("received shutdown signal")
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	// Graceful shutdown.
	logger.Info().Msg("shutting down arxivist backend")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown error")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("metrics server shutdown error")
		}
	}

	logger.Info().Msg("arxivist backend shutdown complete")
	return nil
}

// newArxivClient builds the arXiv client from configuration.
func newArxivClient(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) *arxiv.Client {
	var opts []arxiv.Option
	if metrics != nil {
		opts = append(opts, arxiv.WithMetrics(metrics))
	}
	return arxiv.New(arxiv.Config{
		BaseURL:          cfg.ArXiv.BaseURL,
		Timeout:          cfg.ArXiv.Timeout,
		RateLimit:        cfg.ArXiv.RateLimit,
		BurstSize:        cfg.ArXiv.BurstSize,
		PageSize:         cfg.ArXiv.PageSize,
		MaxRetries:       cfg.ArXiv.MaxRetries,
		RetryDelay:       cfg.ArXiv.RetryDelay,
		EmptyPageRetries: cfg.ArXiv.EmptyPageRetries,
		UserAgent:        cfg.ArXiv.UserAgent,
	}, logger, opts...)
}
