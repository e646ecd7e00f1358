package middleware

import (
	"context"
	"time"

	awspkg "github.com/cjsinari/marikiti-backend/pkg/aws"
	"github.com/gin-gonic/gin"
)

// MetricsMiddleware publishes per-route request counts, latency and error
// counts to CloudWatch. Health probes are not counted.
func MetricsMiddleware(metricsClient *awspkg.MetricsClient, serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !metricsClient.IsEnabled() || c.Request.URL.Path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		dims := map[string]string{
			"Service": serviceName,
			"Method":  c.Request.Method,
			"Path":    route,
			"Status":  statusClass(status),
		}
		go recordHTTP(metricsClient, dims, status, time.Since(start))
	}
}

func recordHTTP(client *awspkg.MetricsClient, dims map[string]string, status int, elapsed time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = client.RecordCount(ctx, awspkg.MetricHTTPRequests, dims)
	_ = client.RecordLatency(ctx, awspkg.MetricHTTPLatency, elapsed, dims)
	if status < 400 {
		return
	}
	_ = client.RecordCount(ctx, awspkg.MetricHTTPErrors, dims)
	if status >= 500 {
		_ = client.RecordCount(ctx, awspkg.MetricHTTP5xx, dims)
	} else {
		_ = client.RecordCount(ctx, awspkg.MetricHTTP4xx, dims)
	}
}

func statusClass(status int) string {
	if status < 100 || status > 599 {
		return "unknown"
	}
	return string(rune('0'+status/100)) + "xx"
}
