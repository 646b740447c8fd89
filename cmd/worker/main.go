package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/brewit-money/wallet/config"
	"github.com/brewit-money/wallet/internal/aa"
	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/graceful"
	"github.com/brewit-money/wallet/internal/health"
	"github.com/brewit-money/wallet/internal/invest"
	"github.com/brewit-money/wallet/internal/jobs"
	"github.com/brewit-money/wallet/internal/logging"
	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/internal/postgres"
	"github.com/brewit-money/wallet/internal/scheduler"
	"github.com/brewit-money/wallet/internal/scheduler/scheduler_pg"
	"github.com/brewit-money/wallet/internal/storage"
	"github.com/brewit-money/wallet/internal/tasks"
)

func main() {
	ctx, stop := graceful.Context()
	defer stop()

	cfg, err := config.ReadWorkerConfig()
	if err != nil {
		panic(err)
	}

	logger := logging.FromConfig(cfg.Log)

	metricsServer := metrics.StartMetricsServer(cfg.Metrics, []string{metrics.ServiceExecutor}, logger)
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

	deployments, err := chain.LoadDeployments(cfg.DeploymentsFile)
	if err != nil {
		logger.Fatalf("failed to load deployments: %v", err)
	}
	chains, err := chain.Dial(ctx, deployments)
	if err != nil {
		logger.Fatalf("failed to dial chains: %v", err)
	}
	defer chains.Close()

	pool, err := postgres.Connect(ctx, logger, cfg.Database.DSN)
	if err != nil {
		logger.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	executorNetworks := make(map[string]scheduler.Network, len(chains))
	for id, ch := range chains {
		client, err := aa.Dial(ctx, ch, logger, cfg.Bundler.Options()...)
		if err != nil {
			logger.Fatalf("chain %d: failed to dial bundler: %v", id, err)
		}
		executorNetworks[ch.Deployment.ChainIDString()] = scheduler.Network{
			Submitter:        client,
			SessionValidator: ch.Deployment.SessionValidator,
		}
	}
	executor := scheduler.NewExecutor(
		scheduler_pg.NewRepo(pool),
		executorNetworks,
		signer,
		metrics.NewSchedulerMetrics(),
		logger,
	)

	investNetworks, err := invest.DialNetworks(ctx, chains, logger, cfg.Bundler.Options()...)
	if err != nil {
		logger.Fatalf("failed to dial bundlers: %v", err)
	}
	investments := invest.NewService(
		investNetworks,
		jobs.NewClient(cfg.Scheduler.URL, cfg.Scheduler.APIKey, logger),
		storage.NewMemoryStorage(),
		logger,
	)

	connOpt, err := cfg.Redis.AsynqConnOpt()
	if err != nil {
		logger.Fatalf("invalid redis config: %v", err)
	}
	srv := asynq.NewServer(
		connOpt,
		asynq.Config{
			Logger:      logger,
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				tasks.QUEUE_NAME: 10,
			},
		},
	)

	healthServer := health.New(cfg.HealthPort).AddCheck("postgres", pool.Ping)
	go func() {
		if err := healthServer.Start(ctx, logger); err != nil {
			logger.Errorf("health server failed: %v", err)
		}
	}()

	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeExecuteJob, executor.HandleExecuteJob)
	mux.HandleFunc(tasks.TypeScheduleRetry, investments.HandleScheduleRetry)

	if err := srv.Start(mux); err != nil {
		panic(fmt.Errorf("could not start server: %w", err))
	}
	<-ctx.Done()
	logger.Info("got exit signal, shutting down worker...")
	srv.Shutdown()
}
