package scheduler

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brewit-money/wallet/internal/jobs"
	"github.com/brewit-money/wallet/internal/logging"
	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/internal/validation"
	"github.com/brewit-money/wallet/types"
)

type ServerConfig struct {
	Host string `mapstructure:"host" json:"host,omitempty"`
	Port int64  `mapstructure:"port" json:"port,omitempty"`
}

type Server struct {
	cfg         ServerConfig
	apiKey      string
	repo        Storage
	details     types.SchedulerDetails
	httpMetrics *metrics.HTTPMetrics
	logger      *logrus.Logger
	now         func() time.Time
}

func NewServer(
	cfg ServerConfig,
	apiKey string,
	repo Storage,
	details types.SchedulerDetails,
	httpMetrics *metrics.HTTPMetrics,
	logger *logrus.Logger,
) *Server {
	return &Server{
		cfg:         cfg,
		apiKey:      apiKey,
		repo:        repo,
		details:     details,
		httpMetrics: httpMetrics,
		logger:      logger.WithField("pkg", "scheduler.Server").Logger,
		now:         time.Now,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) Echo() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(logging.LoggerMiddleware(s.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("256K"))
	if s.httpMetrics != nil {
		e.Use(s.httpMetrics.Middleware())
	}
	e.Validator = validation.New()

	e.GET("/healthz", s.handleHealthz)

	g := e.Group("", s.APIKeyMiddleware)
	g.GET("/details", s.handleDetails)
	g.POST("/jobs", s.handleCreateJob)
	g.GET("/jobs/:id", s.handleGetJob)
	g.DELETE("/jobs/:id", s.handleCancelJob)
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

// APIKeyMiddleware rejects requests without the shared API key. An empty key
// disables the check.
func (s *Server) APIKeyMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.apiKey == "" {
			return next(c)
		}
		got := c.Request().Header.Get(jobs.APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.apiKey)) != 1 {
			return c.JSON(http.StatusUnauthorized, errorResponse{Error: "invalid API key"})
		}
		return next(c)
	}
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "scheduler is running")
}

func (s *Server) handleDetails(c echo.Context) error {
	return c.JSON(http.StatusOK, s.details)
}

func (s *Server) handleCreateJob(c echo.Context) error {
	var req types.ScheduleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	}

	now := s.now().UTC()
	start := time.Unix(req.Trigger.StartTime, 0).UTC()
	end := time.Unix(req.Trigger.EndTime, 0).UTC()
	if !end.After(now) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "trigger end time is in the past"})
	}

	id := req.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	next := FirstExecution(start, now.Truncate(time.Second))
	job := types.Job{
		ID:            id,
		Status:        types.JobActive,
		ChainID:       req.Data.ChainID,
		Account:       req.Data.Account,
		Target:        req.Data.Call.To,
		Value:         req.Data.Call.Value,
		CallData:      hexutil.Encode(req.Data.Call.Data),
		StartTime:     start,
		EndTime:       end,
		Interval:      req.Trigger.Interval,
		NextExecution: &next,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	ctx := c.Request().Context()
	err := s.repo.Create(ctx, job)
	if errors.Is(err, ErrConflict) {
		return c.JSON(http.StatusConflict, errorResponse{Error: "job already exists"})
	}
	if err != nil {
		s.logger.WithError(err).Error("failed to create job")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to create job"})
	}
	s.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"chain_id": job.ChainID,
		"account":  job.Account,
		"next":     next,
	}).Info("job created")
	return c.JSON(http.StatusCreated, job)
}

func (s *Server) jobID(c echo.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	return id, err == nil
}

func (s *Server) handleGetJob(c echo.Context) error {
	id, ok := s.jobID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid job id"})
	}
	job, err := s.repo.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	if err != nil {
		s.logger.WithError(err).Error("failed to get job")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to get job"})
	}
	return c.JSON(http.StatusOK, job)
}

func (s *Server) handleCancelJob(c echo.Context) error {
	id, ok := s.jobID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid job id"})
	}
	job, err := s.repo.Cancel(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
	}
	if err != nil {
		s.logger.WithError(err).Error("failed to cancel job")
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to cancel job"})
	}
	s.logger.WithField("job_id", id).Info("job cancelled")
	return c.JSON(http.StatusOK, job)
}
