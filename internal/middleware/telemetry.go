package middleware

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracingMiddleware traces HTTP requests using OpenTelemetry. It wraps
// the official otelgin middleware and adds custom span attributes.
func TracingMiddleware(serviceName string) gin.HandlerFunc {
	base := otelgin.Middleware(serviceName)

	return func(c *gin.Context) {
		base(c)

		span := trace.SpanFromContext(c.Request.Context())
		if span.IsRecording() {
			if userID, exists := c.Get("user_id"); exists {
				if userIDStr, ok := userID.(string); ok {
					span.SetAttributes(attribute.String("user.id", userIDStr))
				}
			}

			if scope := c.Query("scope"); scope != "" {
				span.SetAttributes(attribute.String("feed.scope", scope))
			}
			if sort := c.Query("sort"); sort != "" {
				span.SetAttributes(attribute.String("feed.sort", sort))
			}
			if category := c.Query("category"); category != "" {
				span.SetAttributes(attribute.String("feed.category", category))
			}

			if len(c.Errors) > 0 {
				for _, ginErr := range c.Errors {
					if ginErr.Err != nil {
						span.RecordError(ginErr.Err, trace.WithStackTrace(true))
						span.SetStatus(codes.Error, ginErr.Error())
					}
				}
			}
		}
	}
}
