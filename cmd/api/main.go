package main

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/brewit-money/wallet/config"
	"github.com/brewit-money/wallet/internal/api"
	"github.com/brewit-money/wallet/internal/chain"
	"github.com/brewit-money/wallet/internal/graceful"
	"github.com/brewit-money/wallet/internal/invest"
	"github.com/brewit-money/wallet/internal/jobs"
	"github.com/brewit-money/wallet/internal/logging"
	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/internal/session"
	"github.com/brewit-money/wallet/internal/storage"
	"github.com/brewit-money/wallet/internal/tokendata"
)

func main() {
	ctx, stop := graceful.Context()
	defer stop()

	cfg, err := config.ReadAPIConfig()
	if err != nil {
		panic(err)
	}

	logger := logging.FromConfig(cfg.Log)

	metricsServer := metrics.StartMetricsServer(cfg.Metrics, []string{metrics.ServiceHTTP, metrics.ServiceInvest}, logger)
	if metricsServer != nil {
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				logger.Errorf("failed to stop metrics server: %v", err)
			}
		}()
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

	networks, err := invest.DialNetworks(ctx, chains, logger, cfg.Bundler.Options()...)
	if err != nil {
		logger.Fatalf("failed to dial bundlers: %v", err)
	}

	var store storage.Storage
	opts := []invest.Option{
		invest.WithPendingTTL(cfg.PendingTTL),
		invest.WithMetrics(metrics.NewInvestMetrics()),
	}
	if cfg.Redis.Enabled() {
		redisOpts, err := cfg.Redis.GetRedisOptions()
		if err != nil {
			logger.Fatalf("invalid redis config: %v", err)
		}
		redisStorage, err := storage.NewRedisStorage(ctx, redisOpts)
		if err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
		store = redisStorage

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
		opts = append(opts, invest.WithQueue(client))
	} else {
		logger.Warn("redis not configured, pending operations and sessions are kept in memory")
		store = storage.NewMemoryStorage()
	}
	defer func() {
		_ = store.Close()
	}()

	service := invest.NewService(
		networks,
		jobs.NewClient(cfg.Scheduler.URL, cfg.Scheduler.APIKey, logger),
		store,
		logger,
		opts...,
	)
	sessions := session.NewManager(cfg.Session.JWTSecret, cfg.Session.TTL, store)
	proxy := tokendata.NewProxy(tokendata.Config{
		BaseURL: cfg.TokenData.BaseURL,
		APIKey:  cfg.TokenData.APIKey,
	}, logger)

	server := api.NewServer(
		api.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		},
		service,
		proxy.GetTokens,
		sessions.Middleware(),
		metrics.NewHTTPMetrics(),
		logger,
	)
	if err := server.Start(ctx); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}
