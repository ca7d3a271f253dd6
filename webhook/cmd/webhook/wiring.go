package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/haulwatch/haulwatch-stack/common/database"
	"github.com/haulwatch/haulwatch-stack/common/messaging"
	"github.com/haulwatch/haulwatch-stack/common/messaging/mqtt"
	"github.com/haulwatch/haulwatch-stack/common/messaging/nats"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/config"
	"github.com/haulwatch/haulwatch-stack/webhook/internal/sink"
)

// openSink builds the configured storage backend, applying schema setup
// first, and wraps it with storage metrics.
func openSink(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sink.Instrumented, error) {
	sc := cfg.Storage

	switch sc.Backend {
	case sink.BackendPostgres:
		if sc.Postgres.AutoMigrate {
			if err := database.MigrateUp(sc.Postgres.DSN); err != nil {
				return nil, fmt.Errorf("migrate postgres: %w", err)
			}
			logger.Info("Postgres schema up to date")
		}
		s, err := sink.NewPostgres(ctx, sink.PostgresConfig{
			DSN: sc.Postgres.DSN,
			Pool: database.PoolConfig{
				MaxConns:        sc.Postgres.MaxConns,
				MinConns:        sc.Postgres.MinConns,
				MaxConnLifetime: sc.Postgres.MaxConnLifetime,
				MaxConnIdleTime: sc.Postgres.MaxConnIdleTime,
			},
			WriteTimeout: sc.WriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		return sink.Instrument(s, sink.BackendPostgres), nil

	case sink.BackendSQLite:
		s, err := sink.OpenSQLite(ctx, sc.SQLite.Path, sc.WriteTimeout)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info("SQLite sink opened", slog.String("path", sc.SQLite.Path))
		return sink.Instrument(s, sink.BackendSQLite), nil

	case sink.BackendOpenSearch:
		s, err := sink.NewOpenSearch(sink.OpenSearchConfig{
			URL:           sc.OpenSearch.URL,
			Username:      sc.OpenSearch.Username,
			Password:      sc.OpenSearch.Password,
			TLSSkipVerify: sc.OpenSearch.TLSSkipVerify,
			IndexPrefix:   sc.OpenSearch.IndexPrefix,
			Refresh:       sc.OpenSearch.Refresh,
			Timeout:       sc.WriteTimeout,
		})
		if err != nil {
			return nil, err
		}
		if err := s.EnsureIndex(ctx); err != nil {
			return nil, fmt.Errorf("ensure opensearch index: %w", err)
		}
		logger.Info("OpenSearch sink ready", slog.String("index", s.Index()))
		return sink.Instrument(s, sink.BackendOpenSearch), nil

	case sink.BackendMemory:
		logger.Warn("Using in-memory sink; records are lost on restart")
		return sink.Instrument(sink.NewMemory(), sink.BackendMemory), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", sc.Backend)
}

// busClients holds the configured publisher. jetstream is set for the nats
// and jetstream backends when the DLQ needs it.
type busClients struct {
	publisher messaging.Publisher
	jetstream *nats.JetStreamClient
	closers   []func() error
}

func (b *busClients) Close() error {
	var firstErr error
	for _, c := range b.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func openBus(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*busClients, error) {
	bc := cfg.Bus
	natsCfg := nats.Config{
		URL:           bc.NATS.URL,
		Name:          bc.NATS.Name,
		MaxReconnects: bc.NATS.MaxReconnects,
		ReconnectWait: bc.NATS.ReconnectWait,
		Timeout:       bc.NATS.Timeout,
		Username:      bc.NATS.Username,
		Password:      bc.NATS.Password,
		Token:         bc.NATS.Token,
		Logger:        logger,
	}
	b := &busClients{}

	switch bc.Backend {
	case "none":
		logger.Info("Event bus disabled; notable events are stored only")
		return b, nil

	case "nats":
		client, err := nats.NewClient(natsCfg)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		b.publisher = client
		b.closers = append(b.closers, client.Drain)

		if cfg.DLQ.Enabled {
			js, err := nats.NewJetStreamClient(natsCfg)
			if err != nil {
				b.Close()
				return nil, fmt.Errorf("connect nats jetstream for dlq: %w", err)
			}
			b.jetstream = js
			b.closers = append(b.closers, js.Close)
		}
		logger.Info("Publishing to NATS", slog.String("url", bc.NATS.URL))

	case "jetstream":
		js, err := nats.NewJetStreamClient(natsCfg)
		if err != nil {
			return nil, fmt.Errorf("connect nats jetstream: %w", err)
		}
		stream := nats.FleetLocationsStreamFor(cfg.Dispatch.SubjectPrefix)
		if _, err := js.CreateOrUpdateStream(ctx, stream); err != nil {
			js.Close()
			return nil, fmt.Errorf("create stream %s: %w", stream.Name, err)
		}
		b.publisher = js
		b.jetstream = js
		b.closers = append(b.closers, js.Close)
		logger.Info("Publishing to JetStream",
			slog.String("url", bc.NATS.URL),
			slog.String("stream", stream.Name),
			slog.Any("subjects", stream.Subjects))

	case "mqtt":
		client, err := mqtt.NewClient(mqtt.Config{
			Broker:         bc.MQTT.Broker,
			ClientID:       bc.MQTT.ClientID,
			Username:       bc.MQTT.Username,
			Password:       bc.MQTT.Password,
			QoS:            bc.MQTT.QoS,
			TopicPrefix:    bc.MQTT.TopicPrefix,
			ConnectTimeout: bc.MQTT.ConnectTimeout,
			Logger:         logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connect mqtt: %w", err)
		}
		b.publisher = client
		b.closers = append(b.closers, client.Close)
		logger.Info("Publishing to MQTT", slog.String("broker", bc.MQTT.Broker))

	default:
		return nil, fmt.Errorf("unknown bus backend %q", bc.Backend)
	}
	return b, nil
}
