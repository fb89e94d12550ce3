package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/inkify/engine/internal/metrics"
)

// MetricsMiddleware collects HTTP metrics for Prometheus
func MetricsMiddleware() gin.HandlerFunc {
	m := metrics.Get()

	return func(c *gin.Context) {
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		m.HTTPActiveConnections.WithLabelValues(method, path).Inc()
		defer m.HTTPActiveConnections.WithLabelValues(method, path).Dec()

		contentLength := c.Request.ContentLength
		if contentLength > 0 {
			m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(contentLength))
		}

		// Wrap response writer to capture response size and status
		writer := &metricsResponseWriter{
			ResponseWriter: c.Writer,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = writer

		startTime := time.Now()
		c.Next()

		duration := time.Since(startTime).Seconds()
		// Numeric status as string so Grafana queries like status=~"5.."
		// match 5xx errors
		statusStr := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration)

		if responseSize := writer.body.Len(); responseSize > 0 {
			m.HTTPResponseSize.WithLabelValues(method, path, statusStr).Observe(float64(responseSize))
		}
	}
}

// RecordFeedPage records one assembled feed page
func RecordFeedPage(scope, sort string, duration time.Duration) {
	m := metrics.Get()
	m.FeedGenerationTime.WithLabelValues(scope, sort).Observe(duration.Seconds())
	m.FeedPagesTotal.WithLabelValues(scope, sort).Inc()
}

// RecordLikeToggle records a like transition, direction "liked" or "unliked"
func RecordLikeToggle(direction string) {
	metrics.Get().LikesToggledTotal.WithLabelValues(direction).Inc()
}

// RecordCommentAdded records a comment write, kind "root" or "reply"
func RecordCommentAdded(kind string) {
	metrics.Get().CommentsAddedTotal.WithLabelValues(kind).Inc()
}

// RecordError records an error by type and endpoint
func RecordError(errorType, endpoint string) {
	metrics.Get().ErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}

// metricsResponseWriter intercepts response writes to capture size and status
type metricsResponseWriter struct {
	gin.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

func (w *metricsResponseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *metricsResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
