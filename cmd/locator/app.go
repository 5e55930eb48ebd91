package main

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lendpool/locator/internal/application/rates"
	"github.com/lendpool/locator/internal/audit"
	"github.com/lendpool/locator/internal/config"
	"github.com/lendpool/locator/internal/datasource"
	"github.com/lendpool/locator/internal/infrastructure/cache"
	"github.com/lendpool/locator/internal/infrastructure/db"
	"github.com/lendpool/locator/internal/metrics"
	"github.com/lendpool/locator/internal/service"
)

// app bundles the components every subcommand needs. The server keeps
// it alive for its lifetime; one-shot commands build it, run, and Close.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	metrics  *metrics.Registry
	cache    *cache.Cache
	db       *db.Manager
	feeds    *datasource.Clients
	resolver *rates.Resolver
}

func buildApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log)

	m := metrics.New()
	cacheTier := cache.New(cfg.Redis, cfg.Cache, m, logger)

	manager, err := db.NewManager(cfg.Postgres, cacheTier, logger)
	if err != nil {
		_ = cacheTier.Close()
		return nil, fmt.Errorf("database: %w", err)
	}

	breakers := datasource.NewBreakerSet(cfg.Upstream.Circuit, m, logger)
	feeds := datasource.NewClients(cfg.Upstream, breakers, m, logger)

	repos := manager.Repository()
	resolver := rates.NewResolver(repos.Stocks, feeds.Borrow, feeds.Volatility, feeds.Events,
		cacheTier, rates.ParamsFromConfig(cfg.Pricing), m, logger)

	return &app{
		cfg:      cfg,
		log:      logger,
		metrics:  m,
		cache:    cacheTier,
		db:       manager,
		feeds:    feeds,
		resolver: resolver,
	}, nil
}

func (a *app) Close() {
	a.db.Close()
	if err := a.cache.Close(); err != nil {
		a.log.Warn().Err(err).Msg("cache close failed")
	}
}

// newTrail wires the configured audit sink behind the async emitter.
// The caller owns Start and Close.
func (a *app) newTrail() *audit.Emitter {
	var sink audit.Sink
	switch a.cfg.Audit.Sink {
	case "postgres":
		sink = audit.NewPostgresSink(a.db.Repository().Audit)
	default:
		sink = audit.NewLogSink(a.log)
	}
	return audit.NewEmitter(sink, a.cfg.Audit.QueueSize, a.metrics, a.log)
}

func (a *app) newService(trail service.AuditTrail) *service.Service {
	return service.New(a.db.Repository().Clients, a.resolver, a.cache, trail,
		a.cfg.Cache.CalculationEnabled, a.metrics, a.log)
}
