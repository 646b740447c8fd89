package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFormat_UnmarshalText(t *testing.T) {
	var f LogFormat
	require.NoError(t, f.UnmarshalText([]byte("JSON")))
	assert.Equal(t, FormatJSON, f)

	require.NoError(t, f.UnmarshalText(nil))
	assert.Equal(t, FormatText, f)

	assert.Error(t, f.UnmarshalText([]byte("xml")))
}

func TestLoggerMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	e := echo.New()
	e.Use(LoggerMiddleware(logger))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/items/:id", func(c echo.Context) error { return c.NoContent(http.StatusTeapot) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Empty(t, buf.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/7", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Contains(t, buf.String(), `"route":"/items/:id"`)
	assert.Contains(t, buf.String(), `"level":"warning"`)
}
