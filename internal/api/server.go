package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brewit-money/wallet/internal/invest"
	"github.com/brewit-money/wallet/internal/logging"
	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/internal/uniswap"
	"github.com/brewit-money/wallet/internal/validation"
	"github.com/brewit-money/wallet/types"
)

type Config struct {
	Host           string
	Port           int64
	AllowedOrigins []string
}

// Investments is the orchestration surface behind the handlers.
// *invest.Service satisfies it.
type Investments interface {
	List(ctx context.Context, chainID uint64, account common.Address) (*types.InvestmentList, error)
	Prepare(ctx context.Context, req types.InvestmentRequest) (*invest.PendingOperation, error)
	Pending(ctx context.Context, id uuid.UUID) (*invest.PendingOperation, error)
	Complete(ctx context.Context, id uuid.UUID, signature []byte) (*invest.Result, error)
	PrepareCancel(ctx context.Context, chainID uint64, account common.Address, index int) (*invest.PendingOperation, error)
	PrepareWithdraw(ctx context.Context, req types.WithdrawRequest) (*invest.PendingOperation, error)
	VaultBalance(ctx context.Context, chainID uint64, account, vault common.Address) (types.VaultBalance, error)
	Quote(
		ctx context.Context,
		chainID uint64,
		tokenIn, tokenOut common.Address,
		amount string,
		fee uniswap.FeeAmount,
	) (uniswap.Quote, error)
}

type Server struct {
	cfg         Config
	investments Investments
	tokens      echo.HandlerFunc
	session     echo.MiddlewareFunc
	httpMetrics *metrics.HTTPMetrics
	logger      *logrus.Logger
}

// NewServer wires the handlers. tokens serves the token-data proxy and
// session guards every endpoint that prepares or submits a user operation.
func NewServer(
	cfg Config,
	investments Investments,
	tokens echo.HandlerFunc,
	session echo.MiddlewareFunc,
	httpMetrics *metrics.HTTPMetrics,
	logger *logrus.Logger,
) *Server {
	return &Server{
		cfg:         cfg,
		investments: investments,
		tokens:      tokens,
		session:     session,
		httpMetrics: httpMetrics,
		logger:      logger.WithField("pkg", "api.Server").Logger,
	}
}

func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(logging.LoggerMiddleware(s.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	if s.httpMetrics != nil {
		e.Use(s.httpMetrics.Middleware())
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: s.cfg.AllowedOrigins,
	}))
	limiterStore := middleware.NewRateLimiterMemoryStoreWithConfig(
		middleware.RateLimiterMemoryStoreConfig{Rate: 5, Burst: 30, ExpiresIn: 5 * time.Minute},
	)
	e.Use(middleware.RateLimiter(limiterStore))

	e.Validator = validation.New()

	e.GET("/healthz", s.Healthz)

	v1 := e.Group("/api/v1")
	v1.GET("/data/tokens", s.tokens)
	v1.GET("/investments", s.ListInvestments)
	v1.GET("/vaults/balance", s.GetVaultBalance)
	v1.GET("/quote", s.GetQuote)

	var signed []echo.MiddlewareFunc
	if s.session != nil {
		signed = append(signed, s.session)
	}
	v1.POST("/investments/prepare", s.PrepareInvestment, signed...)
	v1.DELETE("/investments/:index", s.CancelInvestment, signed...)
	v1.POST("/vaults/withdraw/prepare", s.PrepareWithdraw, signed...)
	v1.GET("/operations/:id", s.GetOperation, signed...)
	v1.POST("/operations/:id/submit", s.SubmitOperation, signed...)
	return e
}

func (s *Server) Start(ctx context.Context) error {
	e := s.Echo()

	eg := &errgroup.Group{}
	eg.Go(func() error {
		err := e.Start(fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port))
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to start server: %w", err)
	})
	eg.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down server...")

		c, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		err := e.Shutdown(c)
		if err != nil {
			return fmt.Errorf("failed to shutdown server: %w", err)
		}
		return nil
	})

	return eg.Wait()
}

func (s *Server) Healthz(c echo.Context) error {
	return c.String(http.StatusOK, "wallet api is running")
}
