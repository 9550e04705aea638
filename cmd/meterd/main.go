package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrymomot/meterkit/pkg/config"
	"github.com/dmitrymomot/meterkit/pkg/httpapi"
	"github.com/dmitrymomot/meterkit/pkg/httpserver"
	"github.com/dmitrymomot/meterkit/pkg/logger"
	"github.com/dmitrymomot/meterkit/pkg/metering"
	"github.com/dmitrymomot/meterkit/pkg/mongostore"
	"github.com/dmitrymomot/meterkit/pkg/pgstore"
	"github.com/dmitrymomot/meterkit/pkg/plan"
	"github.com/dmitrymomot/meterkit/pkg/ratelimit"
)

type appConfig struct {
	StoreDriver      string `env:"STORE_DRIVER" envDefault:"memory"` // memory, mongo or postgres
	CatalogPath      string `env:"PLAN_CATALOG_PATH"`
	RateLimitEnabled bool   `env:"RATE_LIMIT_ENABLED" envDefault:"false"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var logCfg logger.Config
	config.MustLoad(&logCfg)
	log := logger.New(logCfg)
	logger.SetAsDefault(log)

	var cfg appConfig
	config.MustLoad(&cfg)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("meterd exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg appConfig, log *slog.Logger) error {
	catalog, err := loadCatalog(cfg, log)
	if err != nil {
		return err
	}

	store, probe, cleanup, err := buildStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := metering.NewEngine(catalog, store, metering.WithLogger(log))

	opts := []httpapi.Option{httpapi.WithLogger(log)}
	if probe != nil {
		opts = append(opts, httpapi.WithHealthcheck(cfg.StoreDriver, probe))
	}

	if cfg.RateLimitEnabled {
		var redisCfg ratelimit.RedisConfig
		config.MustLoad(&redisCfg)
		redisClient, err := ratelimit.Connect(ctx, redisCfg)
		if err != nil {
			return err
		}
		defer func() { _ = redisClient.Close() }()

		var limitCfg ratelimit.Config
		config.MustLoad(&limitCfg)
		limiter := ratelimit.New(ratelimit.NewRedisStore(redisClient), limitCfg)
		opts = append(opts, httpapi.WithRateLimiter(limiter))
	}

	var srvCfg httpserver.Config
	config.MustLoad(&srvCfg)

	log.Info("starting meterd", slog.String("store", cfg.StoreDriver))
	srv := httpserver.New(srvCfg, httpserver.WithLogger(log))
	return srv.Run(ctx, httpapi.NewRouter(engine, opts...))
}

func loadCatalog(cfg appConfig, log *slog.Logger) (*plan.Catalog, error) {
	if cfg.CatalogPath == "" {
		return plan.Default(), nil
	}
	log.Info("loading plan catalog", slog.String("path", cfg.CatalogPath))
	return plan.LoadFile(cfg.CatalogPath)
}

func buildStore(ctx context.Context, cfg appConfig, log *slog.Logger) (metering.Store, func(context.Context) error, func(), error) {
	switch cfg.StoreDriver {
	case "postgres":
		var pgCfg pgstore.Config
		config.MustLoad(&pgCfg)
		pool, err := pgstore.Connect(ctx, pgCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := pgstore.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, nil, err
		}
		return pgstore.New(pool), pgstore.Healthcheck(pool), pool.Close, nil

	case "mongo":
		var mongoCfg mongostore.Config
		config.MustLoad(&mongoCfg)
		client, err := mongostore.Connect(ctx, mongoCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		cleanup := func() { _ = client.Disconnect(context.Background()) }
		return mongostore.New(client, mongoCfg.Database), mongostore.Healthcheck(client), cleanup, nil

	default:
		log.Warn("using in-memory store: counters and subscriptions are not durable")
		return metering.NewMemoryStore(), nil, func() {}, nil
	}
}
