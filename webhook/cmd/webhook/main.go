package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/haulwatch/haulwatch-stack/common/logging"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/config"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/dispatcher"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/dlq"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/enricher"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/handlers"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/normalizer"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/ratelimit"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/server"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/service"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/stats"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("webhook"))
	logging.SetDefault(logger)

	slog.Info("Starting webhook service",
		slog.Int("port", cfg.Server.Port),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("bus_backend", cfg.Bus.Backend),
		slog.String("log_level", cfg.Logging.Level),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	if err := run(cfg, logger); err != nil {
		slog.Error("webhook service failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logging.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := openSink(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer store.Close()

	bus, err := openBus(ctx, cfg, logger.Logger)
	if err != nil {
		return err
	}
	defer bus.Close()

	dispatchOpts := []dispatcher.Option{dispatcher.WithLogger(logger.Logger)}
	if cfg.DLQ.Enabled {
		queue, err := dlq.NewJetStreamQueue(ctx, bus.jetstream, logger.Logger)
		if err != nil {
			return fmt.Errorf("initialize dlq: %w", err)
		}
		dispatchOpts = append(dispatchOpts, dispatcher.WithDeadLetter(queue))

		if cfg.DLQ.Redispatch {
			stopRedispatch, err := dlq.NewRedispatcher(bus.publisher, logger.Logger).Start(ctx, bus.jetstream)
			if err != nil {
				return fmt.Errorf("start dlq redispatcher: %w", err)
			}
			defer stopRedispatch()
		}
	} else {
		slog.Info("Dead letter queue disabled")
	}

	policy := dispatcher.Policy{
		NotableTypes:        cfg.Dispatch.NotableTypes,
		SubjectPrefix:       cfg.Dispatch.SubjectPrefix,
		Timeout:             cfg.Dispatch.Timeout,
		MissingCoordinates:  cfg.Dispatch.MissingCoordinates,
		NullIslandAsMissing: cfg.Dispatch.NullIslandAsMissing,
	}
	d, err := dispatcher.New(bus.publisher, policy, dispatchOpts...)
	if err != nil {
		return fmt.Errorf("invalid dispatch policy: %w", err)
	}
	slog.Info("Dispatch configured",
		slog.Any("notable_types", policy.NotableTypes),
		slog.String("subject_prefix", policy.SubjectPrefix),
		slog.String("missing_coordinates", policy.MissingCoordinates))

	limiter := openRateLimiter(cfg)
	defer limiter.Close()

	pipeline := service.New(store,
		normalizer.New(cfg.Ingestion.RelaxedGeometry, logger.Logger),
		enricher.New(enricher.SystemClock{}),
		d,
		service.WithLogger(logger),
		service.WithPayloadLogging(cfg.Ingestion.LogPayloads),
	)

	handler := handlers.NewWebhookHandler(pipeline, limiter, bus.publisher, cfg.Ingestion.MaxBodySize, logger)

	var statsHandler http.Handler
	if cfg.Stats.Enabled {
		client, collector, err := openStats(cfg, logger.Logger)
		if err != nil {
			slog.Warn("Failed to initialize delivery stats, continuing without them",
				slog.String("error", err.Error()))
		} else {
			defer client.Close()
			defer collector.Stop()
			handler.UseRecorder(collector)
			statsHandler = stats.Handler(client)
		}
	}

	router := server.NewRouter(handler, statsHandler, logger.Logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Webhook service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	slog.Info("Server stopped")
	return nil
}

func openStats(cfg *config.Config, logger *slog.Logger) (*stats.Client, *stats.Collector, error) {
	instanceID := cfg.Stats.InstanceID
	if instanceID == "" {
		instanceID, _ = os.Hostname()
	}

	client, err := stats.NewClient(cfg.Redis.URL, instanceID)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Delivery stats enabled",
		slog.String("instance_id", instanceID),
		slog.Duration("flush_interval", cfg.Stats.FlushInterval))
	return client, stats.NewCollector(client, cfg.Stats.FlushInterval, cfg.Stats.MaxEventTypes, logger), nil
}

func openRateLimiter(cfg *config.Config) ratelimit.RateLimiter {
	if !cfg.Ingestion.RateLimitEnabled {
		slog.Info("Rate limiting disabled in configuration")
		return &ratelimit.NoOpRateLimiter{}
	}

	limiter, err := ratelimit.NewRedisRateLimiter(cfg.Redis.URL,
		cfg.Ingestion.RateLimitRequests,
		cfg.Ingestion.RateLimitWindow)
	if err != nil {
		slog.Warn("Failed to initialize Redis rate limiter, continuing without rate limiting",
			slog.String("error", err.Error()))
		return &ratelimit.NoOpRateLimiter{}
	}

	slog.Info("Rate limiting enabled",
		slog.Int("requests", cfg.Ingestion.RateLimitRequests),
		slog.Duration("window", cfg.Ingestion.RateLimitWindow))
	return limiter
}
