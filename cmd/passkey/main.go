package main

import (
	"context"

	"github.com/brewit-money/wallet/config"
	"github.com/brewit-money/wallet/internal/graceful"
	"github.com/brewit-money/wallet/internal/logging"
	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/internal/passkey"
	"github.com/brewit-money/wallet/internal/session"
	"github.com/brewit-money/wallet/internal/storage"
)

func main() {
	ctx, stop := graceful.Context()
	defer stop()

	cfg, err := config.ReadPasskeyConfig()
	if err != nil {
		panic(err)
	}

	logger := logging.FromConfig(cfg.Log)

	metricsServer := metrics.StartMetricsServer(cfg.Metrics, []string{metrics.ServiceHTTP}, logger)
	if metricsServer != nil {
		defer func() {
			if err := metricsServer.Stop(context.Background()); err != nil {
				logger.Errorf("failed to stop metrics server: %v", err)
			}
		}()
	}

	var store storage.Storage
	if cfg.Redis.Enabled() {
		redisOpts, err := cfg.Redis.GetRedisOptions()
		if err != nil {
			logger.Fatalf("invalid redis config: %v", err)
		}
		store, err = storage.NewRedisStorage(ctx, redisOpts)
		if err != nil {
			logger.Fatalf("failed to connect to redis: %v", err)
		}
	} else {
		store = storage.NewMemoryStorage()
	}
	defer func() {
		_ = store.Close()
	}()

	service, err := passkey.NewService(passkey.Config{
		RPID:          cfg.WebAuthn.RPID,
		RPDisplayName: cfg.WebAuthn.RPDisplayName,
		RPOrigins:     cfg.WebAuthn.RPOrigins,
		ChallengeTTL:  cfg.WebAuthn.ChallengeTTL,
	}, passkey.NewMemoryUserStore(), passkey.NewChallengeStore(store, cfg.WebAuthn.ChallengeTTL), logger)
	if err != nil {
		logger.Fatalf("failed to create passkey service: %v", err)
	}

	server := passkey.NewServer(
		passkey.ServerConfig{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			AllowedOrigins: cfg.Server.AllowedOrigins,
		},
		service,
		session.NewManager(cfg.Session.JWTSecret, cfg.Session.TTL, store),
		metrics.NewHTTPMetrics(),
		logger,
	)
	if err := server.Start(ctx); err != nil {
		logger.Fatalf("server error: %v", err)
	}
}
