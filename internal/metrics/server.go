package metrics

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled,omitempty"`
	Host    string `mapstructure:"host" json:"host,omitempty"`
	Port    int    `mapstructure:"port" json:"port,omitempty"`
	Token   string `mapstructure:"token" json:"token,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Host:    "0.0.0.0",
		Port:    8088,
	}
}

type Server struct {
	server *http.Server
	logger *logrus.Logger
}

func bearerAuthMiddleware(handler http.Handler, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(provided), []byte(token)) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}

func NewServer(cfg Config, logger *logrus.Logger, registry *prometheus.Registry) *Server {
	mux := http.NewServeMux()

	var metricsHandler http.Handler
	if registry != nil {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	} else {
		metricsHandler = promhttp.Handler()
	}

	if cfg.Token != "" {
		metricsHandler = bearerAuthMiddleware(metricsHandler, cfg.Token)
		logger.Info("Metrics endpoint authentication enabled")
	}

	mux.Handle("/metrics", metricsHandler)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	port := cfg.Port
	if port <= 0 {
		port = DefaultConfig().Port
	}
	addr := fmt.Sprintf("%s:%d", cfg.Host, port)

	server := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	return &Server{
		server: server,
		logger: logger.WithField("pkg", "metrics.Server").Logger,
	}
}

func (s *Server) Start() {
	go func() {
		s.logger.Infof("Starting metrics server on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Errorf("Metrics server failed to start: %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down metrics server")
	return s.server.Shutdown(ctx)
}

// StartMetricsServer returns nil when metrics are disabled.
func StartMetricsServer(cfg Config, services []string, logger *logrus.Logger) *Server {
	if !cfg.Enabled {
		logger.Info("Metrics server disabled")
		return nil
	}

	registry := prometheus.NewRegistry()
	RegisterMetrics(services, registry, logger)

	server := NewServer(cfg, logger, registry)
	server.Start()
	return server
}
