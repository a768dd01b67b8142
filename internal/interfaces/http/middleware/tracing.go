package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxRequestIDLength caps request ids copied into span attributes
const maxRequestIDLength = 128

// TracingConfig configures request tracing
type TracingConfig struct {
	ServiceName string
	Enabled     bool
	// SkipPaths are path suffixes served without a span, e.g. "/health"
	SkipPaths []string
}

// Tracing returns the otelgin middleware followed by a handler that tags
// the request span with request and caller ids once the route has run.
// Use it as engine.Use(middleware.Tracing(cfg)...).
func Tracing(cfg TracingConfig) gin.HandlersChain {
	if !cfg.Enabled {
		return gin.HandlersChain{func(c *gin.Context) { c.Next() }}
	}

	skip := cfg.SkipPaths
	base := otelgin.Middleware(cfg.ServiceName, otelgin.WithFilter(func(r *http.Request) bool {
		for _, suffix := range skip {
			if strings.HasSuffix(r.URL.Path, suffix) {
				return false
			}
		}
		return true
	}))
	return gin.HandlersChain{base, enrichSpan}
}

func enrichSpan(c *gin.Context) {
	c.Next()

	span := trace.SpanFromContext(c.Request.Context())
	if !span.IsRecording() {
		return
	}

	if requestID := c.GetString(RequestIDKey); requestID != "" {
		if len(requestID) > maxRequestIDLength {
			requestID = requestID[:maxRequestIDLength]
		}
		span.SetAttributes(attribute.String("request_id", requestID))
	}
	if userID := GetUserID(c); userID != uuid.Nil {
		span.SetAttributes(attribute.String("user_id", userID.String()))
	}

	// otelgin marks 5xx itself
	if status := c.Writer.Status(); status >= http.StatusBadRequest && status < http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
}
