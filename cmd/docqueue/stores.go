package main

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/docqueue/pkg/config"
	"github.com/dmitrymomot/docqueue/pkg/httpserver"
	"github.com/dmitrymomot/docqueue/pkg/logger"
	"github.com/dmitrymomot/docqueue/pkg/mongo"
	"github.com/dmitrymomot/docqueue/pkg/pg"
	"github.com/dmitrymomot/docqueue/pkg/queue"
	"github.com/dmitrymomot/docqueue/pkg/queue/mongostore"
	"github.com/dmitrymomot/docqueue/pkg/queue/pgstore"
	"github.com/dmitrymomot/docqueue/pkg/queue/redisstore"
	"github.com/dmitrymomot/docqueue/pkg/redis"
)

// backend is an opened store driver: a factory for per-queue stores, the
// readiness checks of its connection, and a function releasing it.
type backend struct {
	stores queue.StoreFactory
	checks []httpserver.CheckFunc
	close  func()
}

func openBackend(ctx context.Context, cfg appConfig, log *slog.Logger) (*backend, error) {
	log = log.With(logger.Component("store"), slog.String("driver", cfg.StoreDriver))

	switch cfg.StoreDriver {
	case driverMongo:
		var mc mongo.Config
		if err := config.Load(&mc); err != nil {
			return nil, err
		}
		db, err := mongo.NewWithDatabase(ctx, mc)
		if err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "connected", slog.String("database", mc.Database))
		return &backend{
			stores: func(name string) (queue.MessageStore, error) {
				return mongostore.New(db.Collection(name), mongostore.WithDoneTTL(cfg.DoneTTL))
			},
			checks: []httpserver.CheckFunc{mongo.Healthcheck(db.Client())},
			close:  func() { _ = db.Client().Disconnect(context.Background()) },
		}, nil

	case driverPostgres:
		var pc pg.Config
		if err := config.Load(&pc); err != nil {
			return nil, err
		}
		pool, err := pg.Connect(ctx, pc)
		if err != nil {
			return nil, err
		}
		if err := pg.Migrate(ctx, pool, pc, pgstore.Migrations, log); err != nil {
			pool.Close()
			return nil, err
		}
		log.InfoContext(ctx, "connected and migrated")
		return &backend{
			stores: func(name string) (queue.MessageStore, error) {
				return pgstore.New(pool, name)
			},
			checks: []httpserver.CheckFunc{pg.Healthcheck(pool)},
			close:  pool.Close,
		}, nil

	case driverRedis:
		var rc redis.Config
		if err := config.Load(&rc); err != nil {
			return nil, err
		}
		client, err := redis.Connect(ctx, rc)
		if err != nil {
			return nil, err
		}
		log.InfoContext(ctx, "connected", slog.String("key_prefix", rc.KeyPrefix))
		return &backend{
			stores: func(name string) (queue.MessageStore, error) {
				return redisstore.New(client, name, redisstore.WithKeyPrefix(rc.KeyPrefix))
			},
			checks: []httpserver.CheckFunc{redis.Healthcheck(client)},
			close:  func() { _ = client.Close() },
		}, nil

	default:
		log.WarnContext(ctx, "messages are kept in memory and lost on restart")
		return &backend{
			stores: func(string) (queue.MessageStore, error) {
				return queue.NewMemoryStorage(), nil
			},
			close: func() {},
		}, nil
	}
}
