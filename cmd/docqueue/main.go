// Command docqueue serves lease-based work queues over HTTP.
//
// Configuration comes from the environment (and a .env file):
//
//	STORE_DRIVER          memory | mongo | postgres | redis (default memory)
//	QUEUE_TOPOLOGY_FILE   YAML file declaring several queues; otherwise QUEUE_* declares one
//	QUEUE_DONE_TTL        mongo only: remove done messages after this long
//	QUEUE_STATS_INTERVAL  how often queue counts are logged (0 disables)
//	QUEUE_CLEAN_DONE      delete done messages after each stats round
//	HTTP_*                listener settings, see pkg/httpserver
//	APP_ENV, APP_NAME, LOG_LEVEL, LOG_FORMAT
//	ENV_FILE              comma-separated .env files loaded before ./.env
//
// Driver settings use the MONGODB_*, PG_* and REDIS_* variables.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/docqueue/pkg/config"
	"github.com/dmitrymomot/docqueue/pkg/httpserver"
	"github.com/dmitrymomot/docqueue/pkg/logger"
	"github.com/dmitrymomot/docqueue/pkg/queue"
	"github.com/dmitrymomot/docqueue/pkg/queueapi"
	"github.com/dmitrymomot/docqueue/pkg/requestid"
)

func main() {
	if files := os.Getenv("ENV_FILE"); files != "" {
		if err := config.LoadEnv(strings.Split(files, ",")...); err != nil {
			fmt.Fprintln(os.Stderr, "docqueue:", err)
			os.Exit(1)
		}
	}

	var logCfg logger.Config
	config.MustLoad(&logCfg)

	log := logger.New(append(logger.FromConfig(logCfg),
		logger.WithContextExtractors(requestid.LoggerExtractor()))...)
	logger.SetAsDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error("docqueue stopped", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	var (
		appCfg  appConfig
		httpCfg httpserver.Config
	)
	if err := config.Load(&appCfg); err != nil {
		return err
	}
	if err := appCfg.validate(); err != nil {
		return err
	}
	if err := config.Load(&httpCfg); err != nil {
		return err
	}

	topo, err := loadTopology(appCfg)
	if err != nil {
		return err
	}

	be, err := openBackend(ctx, appCfg, log)
	if err != nil {
		return err
	}
	defer be.close()

	queues, err := topo.Build(be.stores, queue.WithLogger(log))
	if err != nil {
		return err
	}
	for _, q := range queues {
		if err := q.EnsureIndexes(ctx); err != nil {
			return err
		}
	}
	log.InfoContext(ctx, "queues ready", slog.Int("count", len(queues)))

	api, err := queueapi.New(queues,
		queueapi.WithLogger(log),
		queueapi.WithReadinessTimeout(appCfg.ReadinessTimeout),
		queueapi.WithReadinessChecks(be.checks...))
	if err != nil {
		return err
	}
	srv := httpserver.NewFromConfig(httpCfg, httpserver.WithLogger(log))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, api.Router())
	})
	g.Go(func() error {
		return maintain(gctx, queues, appCfg.StatsInterval, appCfg.CleanDone, log.With(logger.Component("maintenance")))
	})

	return g.Wait()
}
