package logging

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

var quietPaths = map[string]struct{}{
	"/healthz": {},
	"/health":  {},
}

// LoggerMiddleware logs one line per request. Probe endpoints are not logged.
func LoggerMiddleware(logger *logrus.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			res := c.Response()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			if _, ok := quietPaths[req.URL.Path]; ok {
				return nil
			}

			latency := time.Since(start)
			entry := logger.WithFields(logrus.Fields{
				"remote_ip":  c.RealIP(),
				"method":     req.Method,
				"uri":        req.RequestURI,
				"route":      c.Path(),
				"user_agent": req.UserAgent(),
				"status":     res.Status,
				"latency":    latency.String(),
				"bytes_in":   req.ContentLength,
				"bytes_out":  res.Size,
			})
			switch {
			case res.Status >= 500:
				entry.Error("HTTP request")
			case res.Status >= 400:
				entry.Warn("HTTP request")
			default:
				entry.Info("HTTP request")
			}

			return nil
		}
	}
}
