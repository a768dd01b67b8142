package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func text(body string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, body)
	}
}

func TestNewRouter(t *testing.T) {
	r := NewRouter(gin.New())
	assert.Equal(t, "/api/v1", r.BasePath())
	assert.Empty(t, r.registrars)

	r = NewRouter(gin.New(), WithAPIVersion("v2"))
	assert.Equal(t, "/api/v2", r.BasePath())
}

func TestRouterSetup(t *testing.T) {
	engine := gin.New()
	jobs := NewDomainGroup("jobs", "/jobs").GET("/:id", text("job"))
	shared := NewDomainGroup("shared", "/shared").GET("/:token", text("shared"))

	NewRouter(engine).Register(jobs, shared).Setup()

	w := serve(engine, http.MethodGet, "/api/v1/jobs/42")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "job", w.Body.String())

	w = serve(engine, http.MethodGet, "/api/v1/shared/abc")
	assert.Equal(t, "shared", w.Body.String())

	w = serve(engine, http.MethodGet, "/jobs/42")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDomainGroup_Methods(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("jobs", "/jobs").
		GET("/:id", text("get")).
		POST("", text("post")).
		PUT("/:id", text("put")).
		DELETE("/:id", text("delete")).
		Handle(http.MethodPatch, "/:id", text("patch"))
	g.RegisterRoutes(engine.Group("/api"))

	tests := []struct {
		method string
		target string
		want   string
	}{
		{http.MethodGet, "/api/jobs/1", "get"},
		{http.MethodPost, "/api/jobs", "post"},
		{http.MethodPut, "/api/jobs/1", "put"},
		{http.MethodDelete, "/api/jobs/1", "delete"},
		{http.MethodPatch, "/api/jobs/1", "patch"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := serve(engine, tt.method, tt.target)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, w.Body.String())
		})
	}
}

func TestDomainGroup_MiddlewareReachesSubgroups(t *testing.T) {
	engine := gin.New()
	g := NewDomainGroup("generation", "/generation").Use(func(c *gin.Context) {
		c.Header("X-Checked", "yes")
		c.Next()
	})
	g.Group("jobs", "/jobs").GET("", text("list"))
	g.RegisterRoutes(engine.Group("/api/v1"))

	w := serve(engine, http.MethodGet, "/api/v1/generation/jobs")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "list", w.Body.String())
	assert.Equal(t, "yes", w.Header().Get("X-Checked"))
}

func TestDomainGroup_EmptyPrefix(t *testing.T) {
	engine := gin.New()
	NewDomainGroup("system", "").GET("/health", text("ok")).RegisterRoutes(engine.Group("/api/v1"))

	w := serve(engine, http.MethodGet, "/api/v1/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDomainGroup_Routes(t *testing.T) {
	g := NewDomainGroup("generation", "/generation")
	jobs := g.Group("jobs", "/jobs")
	jobs.POST("", text(""))
	jobs.GET("/:id", text(""))
	jobs.DELETE("/:id/share", text(""))

	assert.Equal(t, "generation", g.Name())
	assert.Equal(t, "/generation", g.Prefix())
	assert.Equal(t, []Route{
		{Method: http.MethodPost, Path: "/generation/jobs"},
		{Method: http.MethodGet, Path: "/generation/jobs/:id"},
		{Method: http.MethodDelete, Path: "/generation/jobs/:id/share"},
	}, g.Routes())
}
