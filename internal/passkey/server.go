package passkey

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brewit-money/wallet/internal/logging"
	"github.com/brewit-money/wallet/internal/metrics"
	"github.com/brewit-money/wallet/internal/session"
)

type ServerConfig struct {
	Host           string   `mapstructure:"host" json:"host,omitempty"`
	Port           int64    `mapstructure:"port" json:"port,omitempty"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins,omitempty"`
}

type Server struct {
	cfg         ServerConfig
	service     *Service
	sessions    *session.Manager
	httpMetrics *metrics.HTTPMetrics
	sanitizer   *bluemonday.Policy
	logger      *logrus.Logger
}

func NewServer(
	cfg ServerConfig,
	service *Service,
	sessions *session.Manager,
	httpMetrics *metrics.HTTPMetrics,
	logger *logrus.Logger,
) *Server {
	return &Server{
		cfg:         cfg,
		service:     service,
		sessions:    sessions,
		httpMetrics: httpMetrics,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.WithField("pkg", "passkey.Server").Logger,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

type registrationOptions struct {
	protocol.PublicKeyCredentialCreationOptions
	UserID string `json:"userId"`
}

type verifyRequest struct {
	UserID     string          `json:"userId"`
	Credential json.RawMessage `json:"credential"`
}

type verifyResponse struct {
	Verified bool         `json:"verified"`
	UserID   string       `json:"userId,omitempty"`
	Message  string       `json:"message,omitempty"`
	Error    string       `json:"error,omitempty"`
	Key      *WebAuthnKey `json:"key,omitempty"`
	Token    string       `json:"token,omitempty"`
}

type healthResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	Users      int    `json:"users"`
	Challenges int    `json:"challenges"`
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
		AllowOrigins:     s.cfg.AllowedOrigins,
		AllowCredentials: true,
	}))

	e.POST("/register/options", s.RegisterOptions)
	e.POST("/register/verify", s.RegisterVerify)
	e.POST("/login/options", s.LoginOptions)
	e.POST("/login/verify", s.LoginVerify)
	e.POST("/logout", s.Logout)
	e.GET("/health", s.Health)
	e.GET("/users", s.Users)
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
		return e.Shutdown(c)
	})
	return eg.Wait()
}

func (s *Server) RegisterOptions(c echo.Context) error {
	var req struct {
		UserName string `json:"userName"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "userName is required"})
	}
	// The name is echoed back by authenticators and the users listing.
	req.UserName = strings.TrimSpace(s.sanitizer.Sanitize(req.UserName))
	if req.UserName == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "userName is required"})
	}

	creation, userID, err := s.service.BeginRegistration(c.Request().Context(), req.UserName)
	if err != nil {
		s.logger.Errorf("registration options error: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to generate registration options"})
	}
	return c.JSON(http.StatusOK, registrationOptions{
		PublicKeyCredentialCreationOptions: creation.Response,
		UserID:                             userID,
	})
}

func (s *Server) bindVerify(c echo.Context) (verifyRequest, bool) {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return verifyRequest{}, false
	}
	if req.UserID == "" || len(req.Credential) == 0 || string(req.Credential) == "null" {
		return verifyRequest{}, false
	}
	return req, true
}

func (s *Server) issue(c echo.Context, user *User, cred *webauthn.Credential, message string) error {
	key, err := KeyFromCredential(*cred)
	if err != nil {
		// RS256 credentials verify fine but cannot back an on-chain validator.
		s.logger.WithField("user_id", user.ID).Warnf("credential has no on-chain key: %v", err)
	}
	keyID := ""
	if err == nil {
		keyID = key.AuthenticatorID
	}

	token, err := s.sessions.Issue(user.ID, user.Name, keyID)
	if err != nil {
		s.logger.Errorf("failed to issue session: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to issue session"})
	}

	resp := verifyResponse{
		Verified: true,
		UserID:   user.ID,
		Message:  message,
		Token:    token,
	}
	if keyID != "" {
		resp.Key = &key
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) RegisterVerify(c echo.Context) error {
	req, ok := s.bindVerify(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "userId and credential are required"})
	}

	user, cred, err := s.service.FinishRegistration(c.Request().Context(), req.UserID, bytes.NewReader(req.Credential))
	switch {
	case errors.Is(err, ErrChallengeNotFound):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Challenge not found"})
	case errors.Is(err, ErrVerification):
		return c.JSON(http.StatusBadRequest, verifyResponse{Verified: false, Error: "Registration verification failed"})
	case err != nil:
		s.logger.Errorf("registration verify error: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to verify registration"})
	}
	return s.issue(c, user, cred, "Registration successful")
}

func (s *Server) LoginOptions(c echo.Context) error {
	var req struct {
		UserID string `json:"userId"`
	}
	if err := c.Bind(&req); err != nil || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "userId is required"})
	}

	assertion, err := s.service.BeginLogin(c.Request().Context(), req.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return c.JSON(http.StatusNotFound, errorResponse{Error: "User not found"})
	}
	if err != nil {
		s.logger.Errorf("login options error: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to generate login options"})
	}
	return c.JSON(http.StatusOK, assertion.Response)
}

func (s *Server) LoginVerify(c echo.Context) error {
	req, ok := s.bindVerify(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "userId and credential are required"})
	}

	user, cred, err := s.service.FinishLogin(c.Request().Context(), req.UserID, bytes.NewReader(req.Credential))
	switch {
	case errors.Is(err, ErrUserNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "User not found"})
	case errors.Is(err, ErrChallengeNotFound):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Challenge not found"})
	case errors.Is(err, ErrVerification):
		return c.JSON(http.StatusBadRequest, verifyResponse{Verified: false, Error: "Login verification failed"})
	case err != nil:
		s.logger.Errorf("login verify error: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to verify login"})
	}
	return s.issue(c, user, cred, "Login successful")
}

func (s *Server) Logout(c echo.Context) error {
	token := session.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if token == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "session token is required"})
	}
	err := s.sessions.Revoke(c.Request().Context(), token)
	if errors.Is(err, session.ErrInvalidToken) {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: err.Error()})
	}
	if err != nil {
		s.logger.Errorf("logout error: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to revoke session"})
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) Health(c echo.Context) error {
	ctx := c.Request().Context()
	users, err := s.service.Users().Count(ctx)
	if err != nil {
		s.logger.Errorf("failed to count users: %v", err)
	}
	challenges, err := s.service.Challenges().Count(ctx)
	if err != nil {
		s.logger.Errorf("failed to count challenges: %v", err)
	}
	return c.JSON(http.StatusOK, healthResponse{
		Status:     "ok",
		Message:    "Passkey server is running",
		Users:      users,
		Challenges: challenges,
	})
}

func (s *Server) Users(c echo.Context) error {
	users, err := s.service.Users().List(c.Request().Context())
	if err != nil {
		s.logger.Errorf("failed to list users: %v", err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "Failed to list users"})
	}
	type userView struct {
		ID          string `json:"id"`
		Name        string `json:"name"`
		DisplayName string `json:"displayName"`
	}
	out := make([]userView, 0, len(users))
	for _, u := range users {
		out = append(out, userView{ID: u.ID, Name: u.Name, DisplayName: u.DisplayName})
	}
	return c.JSON(http.StatusOK, out)
}
