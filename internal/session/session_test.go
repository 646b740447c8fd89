package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brewit-money/wallet/internal/storage"
)

func TestManager_IssueValidateRevoke(t *testing.T) {
	ctx := context.Background()
	m := NewManager("secret", time.Hour, storage.NewMemoryStorage())

	token, err := m.Issue("user-1", "alice", "cred-1")
	require.NoError(t, err)

	cred, err := m.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", cred.UserID)
	assert.Equal(t, "alice", cred.UserName)
	assert.Equal(t, "cred-1", cred.KeyID)

	require.NoError(t, m.Revoke(ctx, token))
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, ErrRevoked)
}

func TestManager_RejectsForeignAndExpired(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	m := NewManager("secret", time.Hour, store)
	other := NewManager("other", time.Hour, store)

	token, err := other.Issue("user-1", "", "cred-1")
	require.NoError(t, err)
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)

	token, err = m.Issue("user-1", "", "cred-1")
	require.NoError(t, err)
	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = m.Validate(ctx, token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestMiddleware(t *testing.T) {
	m := NewManager("secret", time.Hour, storage.NewMemoryStorage())
	token, err := m.Issue("user-1", "", "cred-1")
	require.NoError(t, err)

	e := echo.New()
	handler := m.Middleware()(func(c echo.Context) error {
		cred, ok := FromContext(c)
		require.True(t, ok)
		return c.String(http.StatusOK, cred.UserID)
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "valid", header: "Bearer " + token, status: http.StatusOK},
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer abc", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, status: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			rec := httptest.NewRecorder()
			require.NoError(t, handler(e.NewContext(req, rec)))
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "user-1", rec.Body.String())
			}
		})
	}
}
