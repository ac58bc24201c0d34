package middleware

import (
	"context"
	"errors"
	"time"

	apperrors "sales-service/common/errors"
	awspkg "sales-service/pkg/aws"

	"github.com/gin-gonic/gin"
)

// PartialSuccessKey is set by handlers that answered 2xx while part of the
// work could not be confirmed, such as a sale with failed stock decrements.
const PartialSuccessKey = "partial_success"

// RequestMetrics is the part of the CloudWatch client the middleware needs.
type RequestMetrics interface {
	IsEnabled() bool
	RecordCount(ctx context.Context, metricName string, dimensions map[string]string) error
	RecordLatency(ctx context.Context, metricName string, duration time.Duration, dimensions map[string]string) error
}

// MetricsMiddleware records request count, latency and errors per route.
// Hub upgrades are skipped; a subscriber connection lives for hours.
func MetricsMiddleware(metrics RequestMetrics, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil || !metrics.IsEnabled() || c.IsWebsocket() {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		statusCode := c.Writer.Status()
		dimensions := requestDimensions(c, serviceName, statusCode)

		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = metrics.RecordCount(ctx, awspkg.MetricHTTPRequests, dimensions)
			_ = metrics.RecordLatency(ctx, awspkg.MetricHTTPLatency, duration, dimensions)

			if statusCode >= 400 {
				_ = metrics.RecordCount(ctx, awspkg.MetricHTTPErrors, dimensions)

				if statusCode < 500 {
					_ = metrics.RecordCount(ctx, awspkg.MetricHTTP4xx, dimensions)
				} else {
					_ = metrics.RecordCount(ctx, awspkg.MetricHTTP5xx, dimensions)
				}
			}
		}()
	}
}

func requestDimensions(c *gin.Context, serviceName string, statusCode int) map[string]string {
	// FullPath keeps the cardinality bounded (/api/orders/:id)
	path := c.FullPath()
	if path == "" {
		path = "unmatched"
	}
	return map[string]string{
		"Service": serviceName,
		"Method":  c.Request.Method,
		"Path":    path,
		"Status":  statusCodeToRange(statusCode),
		"Outcome": outcome(c),
	}
}

// outcome is the error kind of the first service error, "partial" for a
// flagged partial success, or "ok".
func outcome(c *gin.Context) string {
	for _, ginErr := range c.Errors {
		var appErr *apperrors.Error
		if errors.As(ginErr.Err, &appErr) {
			return string(appErr.Kind)
		}
	}
	if len(c.Errors) > 0 {
		return "error"
	}
	if partial, ok := c.Get(PartialSuccessKey); ok {
		if flagged, _ := partial.(bool); flagged {
			return "partial"
		}
	}
	return "ok"
}

func statusCodeToRange(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
