// Package app assembles the certificate service graph from configuration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"certledger/internal/certificate/metrics"
	"certledger/internal/certificate/normalizer"
	"certledger/internal/certificate/ports"
	"certledger/internal/certificate/service"
	"certledger/internal/certificate/store"
	"certledger/internal/ipfs"
	"certledger/internal/ledger"
	"certledger/internal/platform/config"
	"certledger/internal/platform/kafka"
	"certledger/internal/platform/postgres"
	"certledger/internal/platform/redis"
	"certledger/internal/signer"
	audit "certledger/pkg/platform/audit"
	"certledger/pkg/platform/audit/publisher"
	kafkapub "certledger/pkg/platform/audit/publishers/kafka"
	auditmemory "certledger/pkg/platform/audit/store/memory"
	auditpostgres "certledger/pkg/platform/audit/store/postgres"
	"certledger/pkg/platform/circuit"
)

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// App is the assembled service graph.
type App struct {
	Service    *service.Service
	Ledger     *ledger.Client
	Resolver   *ipfs.Resolver
	Cache      *store.CertificateCache
	Collection *store.Collection
	Audit      *publisher.Publisher

	closers []func() error
}

// Build wires every collaborator named in cfg. m may be nil.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	a := &App{}

	backing, err := a.cacheStore(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Cache = store.NewCertificateCache(backing,
		store.WithNamespace(cfg.Cache.Namespace),
		store.WithCacheLogger(logger),
		store.WithCacheMetrics(m),
	)
	a.Collection = store.NewCollection()

	a.Ledger = ledger.New(cfg.Ledger.URL,
		ledger.WithTimeout(cfg.Ledger.Timeout),
		ledger.WithPollInterval(cfg.Ledger.PollInterval),
		ledger.WithLogger(logger),
	)

	breakerOpts := []circuit.Option{circuit.WithCooldown(cfg.IPFS.BreakerCooldown)}
	if cfg.IPFS.BreakerThreshold > 0 {
		breakerOpts = append(breakerOpts, circuit.WithFailureThreshold(cfg.IPFS.BreakerThreshold))
	}
	a.Resolver = ipfs.New(cfg.IPFS.GatewayURL,
		ipfs.WithTimeout(cfg.IPFS.Timeout),
		ipfs.WithBreaker(circuit.New("ipfs", breakerOpts...)),
		ipfs.WithLogger(logger),
	)

	norm := normalizer.New(a.Ledger, a.Resolver,
		normalizer.WithIDGenerator(normalizer.GeneratorFor(normalizer.Mode(cfg.Fetch.IDMode))),
		normalizer.WithLogger(logger),
		normalizer.WithMetrics(m),
	)

	signers := signer.NewProvider(cfg.Signer.Address, cfg.Signer.Key, cfg.Signer.Issuer, cfg.Signer.Audience,
		signer.WithTTL(cfg.Signer.TTL))

	auditStore, err := a.auditStore(ctx, cfg)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Audit = publisher.NewPublisher(auditStore, publisher.WithAsyncBuffer(256), publisher.WithLogger(logger))
	a.closers = append(a.closers, func() error { a.Audit.Close(); return nil })

	emitter, err := a.emitter(ctx, cfg, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	a.Service, err = service.New(a.Ledger, norm, a.Cache, a.Collection, signers,
		service.WithLogger(logger),
		service.WithMetrics(m),
		service.WithAuditor(emitter),
		service.WithConcurrency(cfg.Fetch.Concurrency),
		service.WithRecentLimit(cfg.Fetch.RecentLimit),
		service.WithMaxBatch(cfg.Fetch.MaxBatch),
	)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

// HealthChecks returns the dependencies /healthz probes.
func (a *App) HealthChecks() map[string]HealthChecker {
	return map[string]HealthChecker{
		"cache":  a.Cache,
		"ledger": a.Ledger,
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) cacheStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (ports.CacheStore, error) {
	switch cfg.Cache.Backend {
	case config.CacheRedis:
		client, err := redis.New(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis cache: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		return store.NewRedisCache(client, cfg.Cache.TTL), nil
	case config.CacheBadger:
		db, err := store.NewBadgerCache(cfg.Cache.BadgerDir, cfg.Cache.TTL, logger)
		if err != nil {
			return nil, fmt.Errorf("open badger cache: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		return db, nil
	default:
		return store.NewMemoryCache(cfg.Cache.TTL), nil
	}
}

// auditStore keeps the audit trail in Postgres when configured, in memory
// otherwise.
func (a *App) auditStore(ctx context.Context, cfg config.Config) (audit.Store, error) {
	db, err := postgres.Open(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return auditmemory.NewInMemoryStore(), nil
	}
	a.closers = append(a.closers, db.Close)
	return postgresStore(ctx, db)
}

func postgresStore(ctx context.Context, db *sql.DB) (audit.Store, error) {
	s := auditpostgres.New(db)
	if err := s.EnsureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// emitter fans audit events out to the store publisher and, when brokers
// are configured, to Kafka.
func (a *App) emitter(ctx context.Context, cfg config.Config, logger *slog.Logger) (audit.Emitter, error) {
	client, err := kafka.NewProducer(kafka.Config{
		Brokers:  cfg.Kafka.Brokers,
		Topic:    cfg.Kafka.Topic,
		ClientID: cfg.Kafka.ClientID,
	})
	if err != nil {
		return nil, err
	}
	if client == nil {
		return a.Audit, nil
	}
	a.closers = append(a.closers, closeKafka(client))
	if err := kafka.EnsureTopic(ctx, client, cfg.Kafka.Topic, 1, 1, logger); err != nil {
		logger.WarnContext(ctx, "kafka topic provisioning failed", "topic", cfg.Kafka.Topic, "error", err)
	}
	return audit.Fanout{a.Audit, kafkapub.New(client, cfg.Kafka.Topic)}, nil
}

func closeKafka(c *kgo.Client) func() error {
	return func() error {
		c.Close()
		return nil
	}
}
