package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = tp.Shutdown(t.Context())
	})
	return sr
}

func tracedEngine(cfg TracingConfig) *gin.Engine {
	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		c.Set(RequestIDKey, "req-42")
		c.Next()
	})
	engine.Use(Tracing(cfg)...)

	jobs := engine.Group("/api/v1/generation", RequireUser())
	jobs.GET("/jobs/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	engine.GET("/api/v1/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return engine
}

func spanAttrs(span sdktrace.ReadOnlySpan) map[attribute.Key]string {
	out := map[attribute.Key]string{}
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value.Emit()
	}
	return out
}

func TestTracing_Disabled(t *testing.T) {
	sr := setupTestTracer(t)
	engine := tracedEngine(TracingConfig{ServiceName: "sheets", Enabled: false})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/generation/jobs/1", nil)
	req.Header.Set(UserIDHeader, uuid.NewString())
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_TagsRequestAndUser(t *testing.T) {
	sr := setupTestTracer(t)
	engine := tracedEngine(TracingConfig{ServiceName: "sheets", Enabled: true})
	userID := uuid.New()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/generation/jobs/1", nil)
	req.Header.Set(UserIDHeader, userID.String())
	engine.ServeHTTP(w, req)

	require.Len(t, sr.Ended(), 1)
	span := sr.Ended()[0]
	attrs := spanAttrs(span)
	assert.Equal(t, "req-42", attrs["request_id"])
	assert.Equal(t, userID.String(), attrs["user_id"])
	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestTracing_MarksClientErrors(t *testing.T) {
	sr := setupTestTracer(t)
	engine := tracedEngine(TracingConfig{ServiceName: "sheets", Enabled: true})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/generation/jobs/1", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	require.Len(t, sr.Ended(), 1)
	span := sr.Ended()[0]
	assert.Equal(t, codes.Error, span.Status().Code)
	assert.NotContains(t, spanAttrs(span), attribute.Key("user_id"))
}

func TestTracing_SkipPaths(t *testing.T) {
	sr := setupTestTracer(t)
	engine := tracedEngine(TracingConfig{ServiceName: "sheets", Enabled: true, SkipPaths: []string{"/health"}})

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}
