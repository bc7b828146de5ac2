package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/OldStager01/cloud-vm-monitor/internal/logger"
	"github.com/OldStager01/cloud-vm-monitor/internal/metrics"
)

func routeOf(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// quietRoute reports probe and scrape traffic, which is logged at debug level.
func quietRoute(route string) bool {
	return strings.HasPrefix(route, "/health") || route == "/metrics"
}

// RequestLogger writes one structured entry per request once it has finished.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := routeOf(c)
		status := c.Writer.Status()
		entry := logger.WithFields(logrus.Fields{
			"status":     status,
			"method":     c.Request.Method,
			"route":      route,
			"path":       c.Request.URL.Path,
			"latency_ms": time.Since(start).Milliseconds(),
			"ip":         c.ClientIP(),
		})
		if traceID := GetTraceID(c); traceID != "" {
			entry = entry.WithField("trace_id", traceID)
		}
		if userID := GetUserID(c); userID != "" {
			entry = entry.WithField("user_id", userID)
		}
		if cached := c.Writer.Header().Get(CacheHeader); cached != "" {
			entry = entry.WithField("cache", cached)
		}
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			entry.Error("Request failed")
		case status >= 400:
			entry.Warn("Request rejected")
		case quietRoute(route):
			entry.Debug("Request served")
		default:
			entry.Info("Request served")
		}
	}
}

// Metrics records request counts and latency per matched route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		metrics.Get().ObserveHTTP(c.Request.Method, routeOf(c), c.Writer.Status(), time.Since(start))
	}
}
