// Package main provides the entrypoint for the bahnmcp API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/bahnmcp/bahnmcp/internal/api"
	"github.com/bahnmcp/bahnmcp/internal/api/handler"
	"github.com/bahnmcp/bahnmcp/internal/api/middleware"
	"github.com/bahnmcp/bahnmcp/internal/cache"
	"github.com/bahnmcp/bahnmcp/internal/clock"
	"github.com/bahnmcp/bahnmcp/internal/config"
	"github.com/bahnmcp/bahnmcp/internal/provider/resilience"
	"github.com/bahnmcp/bahnmcp/internal/telemetry"
	"github.com/bahnmcp/bahnmcp/internal/transit"
	"github.com/bahnmcp/bahnmcp/internal/transit/bahn"
	"github.com/bahnmcp/bahnmcp/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "bahnmcp-api"

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		errLog := zerolog.New(os.Stderr)
		errLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Setup structured logging
	log := zerolog.New(os.Stdout)
	if cfg.Log.Pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
	log = log.Level(cfg.LogLevel()).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting bahnmcp API")

	// Initialize OpenTelemetry
	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Float64("sample_ratio", cfg.Telemetry.SampleRatio).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	providerMetrics, err := telemetry.NewProviderMetrics(nil, bahn.ProviderName)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1)
	}

	// Upstream client: one attempt per call, shared cookie jar, breaker state
	// reported through the registry.
	jar, err := cookiejar.New(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cookie jar")
	}

	registry := resilience.NewRegistry()

	httpCfg := resilience.DefaultClientConfig(bahn.ProviderName)
	httpCfg.Timeout = cfg.Bahn.Timeout
	httpCfg.Jar = jar
	httpCfg.Registry = registry
	httpCfg.Logger = log

	store := cache.New[[]byte](cfg.Cache.DefaultTTL)

	bahnClient := bahn.NewClient(bahn.ClientConfig{
		BaseURL:    cfg.Bahn.BaseURL,
		HTTPClient: resilience.NewClient(httpCfg),
		Cache:      store,
		TTLs: bahn.TTLs{
			Locations:  cfg.Bahn.StationsTTL,
			Departures: cfg.Bahn.DeparturesTTL,
			Journey:    cfg.Bahn.JourneyTTL,
			Nearby:     cfg.Bahn.NearbyTTL,
		},
		Metrics: providerMetrics,
		Logger:  log,
	})

	service := transit.NewService(transit.ServiceConfig{
		Provider:    bahnClient,
		Logger:      log,
		Clock:       clock.System{},
		SearchLimit: cfg.Bahn.SearchLimit,
		MaxResults:  cfg.Bahn.MaxResults,
	})
	log.Info().
		Str("base_url", cfg.Bahn.BaseURL).
		Dur("timeout", cfg.Bahn.Timeout).
		Msg("departure service initialized")

	// Keep hub boards warm in the background
	jobCtx, stopJobs := context.WithCancel(ctx)
	defer stopJobs()

	var prewarm handler.PrewarmStatter
	if cfg.Prewarm.Enabled {
		job := worker.NewPrewarmJob(worker.PrewarmJobConfig{
			Config: worker.PrewarmConfig{
				Stations:    cfg.Prewarm.Stations,
				Concurrency: cfg.Prewarm.Concurrency,
				Timeout:     cfg.Bahn.Timeout,
				Interval:    cfg.Prewarm.Interval,
			},
			Fetcher: service,
			Logger:  log.With().Str("job", "prewarm").Logger(),
		})
		go job.Start(jobCtx)
		prewarm = job
	}

	// Create router with configuration
	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		Metrics:        metrics,
		Service:        service,
		Registry:       registry,
		Cache:          store,
		Prewarm:        prewarm,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	stopJobs()

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		os.Exit(1)
	}

	log.Info().Msg("server stopped")
}
