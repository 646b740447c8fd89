package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brewit",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code",
		},
		[]string{"method", "path", "status_code"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "brewit",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests by method and path",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	httpActiveRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "brewit",
			Subsystem: "http",
			Name:      "active_requests",
			Help:      "Number of currently active HTTP requests by method and path",
		},
		[]string{"method", "path"},
	)
)

type HTTPMetrics struct{}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{}
}

// Middleware labels requests by route pattern, not raw URL, to keep
// cardinality bounded.
func (hm *HTTPMetrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if hm == nil {
				return next(c)
			}

			start := time.Now()
			method := c.Request().Method
			path := c.Path()

			httpActiveRequests.WithLabelValues(method, path).Inc()
			defer httpActiveRequests.WithLabelValues(method, path).Dec()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
