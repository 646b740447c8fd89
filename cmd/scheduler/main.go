package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/brewit-money/wallet/config"
	"github.com/brewit-money/wallet/internal/aa"
	"github.com/brewit-money/wallet/internal/graceful"
	"github.com/brewit-money/wallet/internal/logging"
	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/internal/postgres"
	"github.com/brewit-money/wallet/internal/scheduler"
	"github.com/brewit-money/wallet/internal/scheduler/scheduler_pg"
	"github.com/brewit-money/wallet/types"
)

func main() {
	ctx, stop := graceful.Context()
	defer stop()

	cfg, err := config.ReadSchedulerConfig()
	if err != nil {
		panic(err)
	}

	logger := logging.FromConfig(cfg.Log)

	metricsServer := metrics.StartMetricsServer(cfg.Metrics, []string{metrics.ServiceHTTP, metrics.ServiceScheduler}, logger)
	if metricsServer != nil {
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				logger.Errorf("failed to stop metrics server: %v", err)
			}
		}()
	}

	signer, err := aa.ECDSASignerFromHex(cfg.SessionKey)
	if err != nil {
		logger.Fatalf("invalid session key: %v", err)
	}

	pool, err := postgres.Connect(ctx, logger, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()
	repo := scheduler_pg.NewRepo(pool)

	connOpt, err := cfg.Redis.AsynqConnOpt()
	if err != nil {
		logger.Fatalf("invalid redis config: %v", err)
	}
	client := asynq.NewClient(connOpt)
	defer func() {
		if err := client.Close(); err != nil {
			fmt.Println("fail to close asynq client,", err)
		}
	}()

	server := scheduler.NewServer(
		scheduler.ServerConfig{Host: cfg.Server.Host, Port: cfg.Server.Port},
		cfg.APIKey,
		repo,
		types.SchedulerDetails{Address: signer.Address().Hex()},
		metrics.NewHTTPMetrics(),
		logger,
	)
	worker := scheduler.NewWorker(
		logger,
		client,
		repo,
		metrics.NewSchedulerMetrics(),
		scheduler.WithPollInterval(cfg.PollInterval),
		scheduler.WithTaskTimeout(cfg.Bundler.TaskTimeout()),
	)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return server.Start(egCtx)
	})
	eg.Go(func() error {
		return worker.Run(egCtx)
	})
	if err := eg.Wait(); err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}
}
