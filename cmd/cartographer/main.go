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

	"github.com/UnknownOlympus/cartographer/internal/config"
	"github.com/UnknownOlympus/cartographer/internal/geocoding"
	"github.com/UnknownOlympus/cartographer/internal/metrics"
	"github.com/UnknownOlympus/cartographer/internal/repository"
	"github.com/UnknownOlympus/cartographer/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Constants for different environment types.
const (
	envLocal = "local"
	envDev   = "development"
	envProd  = "production"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := config.MustLoad()
	logger := setupLogger(cfg.Env)

	if err := run(cfg, logger); err != nil {
		logger.Error("Application failed", "error", err)
		os.Exit(1)
	}
}

// run wires the application and blocks until SIGINT or SIGTERM.
// Deferred cleanup has finished by the time it returns.
func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appMetrics := metrics.NewMetrics(reg)

	dtb, err := repository.NewDatabase(ctx, cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to connect to DB: %w", err)
	}
	defer dtb.Close()

	repo := repository.NewRepository(dtb, logger)

	geoProvider, err := geocoding.NewProvider(geocoding.ProviderConfig{
		Type:     geocoding.ProviderType(cfg.ProviderType),
		APIKey:   cfg.APIKey,
		Language: cfg.Language,
		Nominatim: geocoding.NominatimConfig{
			BaseURL:   cfg.Nominatim.BaseURL,
			UserAgent: cfg.Nominatim.UserAgent,
			Email:     cfg.Nominatim.Email,
			Zoom:      cfg.Nominatim.Zoom,
			Timeout:   cfg.Nominatim.Timeout,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create geocoding provider: %w", err)
	}

	logger.InfoContext(ctx, "Geocoding provider initialized", "type", cfg.ProviderType)

	geoService := service.NewGeocodingService(
		logger,
		repo,
		geoProvider,
		cfg.ProviderType, // Provider name for metrics
		appMetrics,
		cfg.Workers,
		cfg.Interval,
	)

	logger.InfoContext(ctx, "Application started. Press Ctrl+C to stop.")

	server := newMonitoringServer(ctx, logger, reg, dtb, cfg.Port)
	go func() {
		logger.InfoContext(ctx, "Starting monitoring server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "Monitoring server failed", "error", err)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		geoService.Run(ctx)
	}()

	<-ctx.Done()
	logger.InfoContext(ctx, "Shutdown signal received. Stopping application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		logger.ErrorContext(shutdownCtx, "Failed to stop monitoring server", "error", err)
	}
	<-done

	logger.InfoContext(shutdownCtx, "Application stopped gracefully.")
	return nil
}

// newMonitoringServer builds an HTTP server that provides health check and metrics endpoints.
//
// Parameters:
// - ctx: A context.Context for managing cancellation and timeouts.
// - log: A logger for logging server events and errors.
// - reg: A registry with Prometheus collectors.
// - dtb: A pgxpool connector for database methods (ping)
// - port: The port number on which the server will listen.
func newMonitoringServer(
	ctx context.Context,
	log *slog.Logger,
	reg *prometheus.Registry,
	dtb *pgxpool.Pool,
	port int,
) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, req *http.Request) {
		log.DebugContext(ctx, "Performing health checks...")
		status, body := http.StatusOK, "OK"
		if err := dtb.Ping(req.Context()); err != nil {
			status, body = http.StatusServiceUnavailable, "DB ping failed"
		}
		writer.WriteHeader(status)
		if _, err := writer.Write([]byte(body)); err != nil {
			log.ErrorContext(ctx, "failed to write reply", "error", err)
		}

		log.DebugContext(ctx, "Health checks completed", "status", status)
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	readTimeout := 5
	writeTimeout := 10
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  time.Duration(readTimeout) * time.Second,
		WriteTimeout: time.Duration(writeTimeout) * time.Second,
	}
}

// setupLogger initializes and returns a logger based on the environment provided.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	dropTime := func(_ []string, a slog.Attr) slog.Attr {
		if a.Key == slog.TimeKey {
			return slog.Attr{}
		}
		return a
	}

	switch env {
	case envLocal:
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level:     slog.LevelDebug,
			AddSource: true,
		}))
	case envDev:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	case envProd:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       slog.LevelWarn,
			ReplaceAttr: dropTime,
		}))
	default:
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:       slog.LevelError,
			ReplaceAttr: dropTime,
		}))

		log.Error(
			"The env parameter was not specified or was invalid. Logging will be minimal, by default.",
			slog.String("available_envs", "local, development, production"))
	}

	return log
}
