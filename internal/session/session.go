// Package session issues and validates the signed session tokens handed out
// after a passkey ceremony.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/brewit-money/wallet/internal/storage"
)

const (
	DefaultTTL = 24 * time.Hour

	revokedPrefix = "session:revoked:"
	contextKey    = "session"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrRevoked      = errors.New("session revoked")
)

// Credential is the session a passkey login produces. KeyID is the WebAuthn
// credential ID that authorized it.
type Credential struct {
	jwt.RegisteredClaims
	UserID   string `json:"uid"`
	UserName string `json:"name,omitempty"`
	KeyID    string `json:"kid"`
}

type Manager struct {
	secret []byte
	ttl    time.Duration
	store  storage.Storage
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration, store storage.Storage) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		now:    time.Now,
	}
}

func (m *Manager) Issue(userID, userName, keyID string) (string, error) {
	now := m.now()
	claims := &Credential{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		UserID:   userID,
		UserName: userName,
		KeyID:    keyID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session: %w", err)
	}
	return signed, nil
}

func (m *Manager) parse(tokenStr string) (*Credential, error) {
	claims := &Credential{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *Manager) Validate(ctx context.Context, tokenStr string) (*Credential, error) {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return nil, err
	}
	revoked, err := m.store.Exists(ctx, revokedPrefix+claims.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check revocation: %w", err)
	}
	if revoked {
		return nil, ErrRevoked
	}
	return claims, nil
}

// Revoke invalidates the token until it would have expired anyway.
func (m *Manager) Revoke(ctx context.Context, tokenStr string) error {
	claims, err := m.parse(tokenStr)
	if err != nil {
		return err
	}
	remaining := claims.ExpiresAt.Time.Sub(m.now())
	if remaining <= 0 {
		return nil
	}
	return m.store.Set(ctx, revokedPrefix+claims.ID, "1", remaining)
}

func BearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// Middleware rejects requests without a valid session.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if token == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing session token"})
			}
			cred, err := m.Validate(c.Request().Context(), token)
			if err != nil {
				if errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrRevoked) {
					return c.JSON(http.StatusUnauthorized, map[string]string{"error": err.Error()})
				}
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to validate session"})
			}
			c.Set(contextKey, cred)
			return next(c)
		}
	}
}

func FromContext(c echo.Context) (*Credential, bool) {
	cred, ok := c.Get(contextKey).(*Credential)
	return cred, ok
}
