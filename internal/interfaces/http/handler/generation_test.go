package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/application/generation"
	domain "github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	"github.com/rpgsheets/backend/internal/infrastructure/logger"
	"github.com/rpgsheets/backend/internal/infrastructure/persistence"
	"github.com/rpgsheets/backend/internal/infrastructure/printing"
	"github.com/rpgsheets/backend/internal/infrastructure/printing/sheets"
	"github.com/rpgsheets/backend/internal/interfaces/http/dto"
	"github.com/rpgsheets/backend/internal/interfaces/http/middleware"
	"github.com/rpgsheets/backend/internal/interfaces/http/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testAPI is the HTTP surface over in-memory SQLite and the stub engine.
// Jobs are not queued; tests run them with manager.Execute.
type testAPI struct {
	engine     *gin.Engine
	clock      *testClock
	characters *persistence.GormCharacterStore
	manager    *generation.Manager
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, (&persistence.Database{DB: db}).AutoMigrate())

	log := zaptest.NewLogger(t)
	clock := &testClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	storage, err := printing.NewFileSystemStorage(&printing.FileSystemStorageConfig{
		BasePath: t.TempDir(),
		Logger:   log,
		Now:      clock.Now,
	})
	require.NoError(t, err)
	sheetRenderer, err := sheets.NewRenderer(log)
	require.NoError(t, err)

	jobs := persistence.NewGormJobRepository(db).WithClock(clock)
	characters := persistence.NewGormCharacterStore(db)
	manager := generation.NewManager(generation.ManagerDeps{
		Jobs:       jobs,
		Characters: characters,
		Templates:  sheetRenderer,
		Renderer: printing.NewDocumentRenderer(printing.NewStubRenderer(), &printing.DocumentRendererConfig{
			Timeout: 5 * time.Second,
			Logger:  log,
		}),
		Pool:    printing.NewRenderPool(&printing.RenderPoolConfig{Size: 1, MaxQueue: 4, Logger: log}),
		Storage: storage,
		Clock:   clock,
	}, generation.ManagerConfig{Retention: 7 * 24 * time.Hour}, log)
	shares := generation.NewShareService(jobs, clock, 0, log)
	downloads := generation.NewDownloadService(jobs, storage, nil, shares, log)
	cleanup := generation.NewCleanupService(jobs, storage, nil, nil, generation.CleanupConfig{}, log)

	engine := gin.New()
	engine.Use(logger.RequestID(), logger.Recovery(log))
	gen := NewGenerationHandler(manager, shares, downloads)
	router.NewRouter(engine).Register(
		GenerationRoutes(gen, middleware.RequireUser()),
		SharedRoutes(gen),
		AdminRoutes(NewAdminHandler(cleanup, clock), middleware.RequireUser()),
		SystemRoutes(NewSystemHandler("rpgsheets", "test", HealthCheck{
			Name:  "database",
			Check: func(ctx context.Context) error { return sqlDB.PingContext(ctx) },
		})),
	).Setup()

	return &testAPI{engine: engine, clock: clock, characters: characters, manager: manager}
}

func (a *testAPI) seedCharacter(t *testing.T, owner uuid.UUID) uuid.UUID {
	t.Helper()
	c := &domain.Character{
		ID:         uuid.New(),
		OwnerID:    owner,
		Name:       "Rook",
		SystemCode: domain.SystemMonsterhearts,
		Playbook:   "The Ghoul",
		Attributes: map[string]int{"hot": -1, "cold": 2, "volatile": 1, "dark": 1},
	}
	require.NoError(t, a.characters.Save(context.Background(), c))
	return c.ID
}

func (a *testAPI) do(method, target string, user uuid.UUID, body any) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != uuid.Nil {
		req.Header.Set(middleware.UserIDHeader, user.String())
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

// createJob posts a job and returns its id
func (a *testAPI) createJob(t *testing.T, owner uuid.UUID) string {
	t.Helper()
	w := a.do(http.MethodPost, "/api/v1/generation/jobs", owner, map[string]any{
		"character_id":  a.seedCharacter(t, owner),
		"document_type": "CHARACTER_SHEET",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return data(t, w)["id"].(string)
}

func (a *testAPI) completedJob(t *testing.T, owner uuid.UUID) string {
	t.Helper()
	id := a.createJob(t, owner)
	a.manager.Execute(context.Background(), uuid.MustParse(id))
	return id
}

func data(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	resp := decode(t, w)
	require.True(t, resp.Success, w.Body.String())
	m, ok := resp.Data.(map[string]any)
	require.True(t, ok, "data is not an object: %s", w.Body.String())
	return m
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	resp := decode(t, w)
	require.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestGenerationHandler_CreateJob(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()

	w := api.do(http.MethodPost, "/api/v1/generation/jobs", owner, map[string]any{
		"character_id":  api.seedCharacter(t, owner),
		"document_type": "REFERENCE_CARD",
		"options":       map[string]any{"format": "A5", "orientation": "LANDSCAPE"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	job := data(t, w)
	assert.Equal(t, "PENDING", job["status"])
	assert.Equal(t, owner.String(), job["owner_id"])
	assert.Equal(t, "/api/v1/generation/jobs/"+job["id"].(string), w.Header().Get("Location"))
	options := job["options"].(map[string]any)
	assert.Equal(t, "A5", options["format"])
	assert.Equal(t, "LANDSCAPE", options["orientation"])
	assert.NotEmpty(t, w.Header().Get(logger.RequestIDHeader))
}

func TestGenerationHandler_CreateJob_Rejected(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	characterID := api.seedCharacter(t, owner)

	tests := []struct {
		name       string
		user       uuid.UUID
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "anonymous",
			body:       map[string]any{"character_id": characterID, "document_type": "CHARACTER_SHEET"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   dto.ErrCodeUnauthorized,
		},
		{
			name:       "unknown document type",
			user:       owner,
			body:       map[string]any{"character_id": characterID, "document_type": "SPELLBOOK"},
			wantStatus: http.StatusBadRequest,
			wantCode:   shared.CodeValidation,
		},
		{
			name:       "malformed character id",
			user:       owner,
			body:       map[string]any{"character_id": "nope", "document_type": "CHARACTER_SHEET"},
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeValidation,
		},
		{
			name:       "unknown character",
			user:       owner,
			body:       map[string]any{"character_id": uuid.New(), "document_type": "CHARACTER_SHEET"},
			wantStatus: http.StatusNotFound,
			wantCode:   shared.CodeNotFound,
		},
		{
			name:       "someone else's character",
			user:       uuid.New(),
			body:       map[string]any{"character_id": characterID, "document_type": "CHARACTER_SHEET"},
			wantStatus: http.StatusForbidden,
			wantCode:   shared.CodeForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodPost, "/api/v1/generation/jobs", tt.user, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code, w.Body.String())
			assert.Equal(t, tt.wantCode, errorCode(t, w))
		})
	}
}

func TestGenerationHandler_GetJobAndStatus(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	id := api.completedJob(t, owner)

	w := api.do(http.MethodGet, "/api/v1/generation/jobs/"+id, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	job := data(t, w)
	assert.Equal(t, "COMPLETE", job["status"])
	assert.EqualValues(t, 100, job["progress"])

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+id, uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+id+"/status", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	status := data(t, w)
	assert.Equal(t, "COMPLETE", status["status"])
	assert.NotContains(t, status, "owner_id")

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+id+"/status", uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "status is visible to the owner only")

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+uuid.NewString()+"/status", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/not-a-uuid", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+uuid.NewString(), owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerationHandler_ListJobs(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	for range 3 {
		api.createJob(t, owner)
	}
	api.createJob(t, uuid.New())

	w := api.do(http.MethodGet, "/api/v1/generation/jobs?page=1&page_size=2", owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decode(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(3), resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.TotalPages)
	assert.Len(t, resp.Data, 2)

	w = api.do(http.MethodGet, "/api/v1/generation/jobs?status=COMPLETE", owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), decode(t, w).Meta.Total)

	w = api.do(http.MethodGet, "/api/v1/generation/jobs?character_id=zzz", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/generation/jobs?page=abc", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodGet, "/api/v1/generation/jobs?status=LOST", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.CodeValidation, errorCode(t, w))
}

func TestGenerationHandler_RelaunchJob(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	id := api.completedJob(t, owner)

	w := api.do(http.MethodPost, "/api/v1/generation/jobs/"+id+"/relaunch", owner, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, shared.CodeInvalidState, errorCode(t, w))

	w = api.do(http.MethodPost, "/api/v1/generation/jobs/"+id+"/relaunch", uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGenerationHandler_DownloadJob(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	id := api.completedJob(t, owner)

	w := api.do(http.MethodGet, "/api/v1/generation/jobs/"+id+"/download", owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment; filename="))
	assert.Equal(t, id, w.Header().Get("X-Job-ID"))
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+id+"/download", uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+id, owner, nil)
	assert.EqualValues(t, 1, data(t, w)["download_count"])
}

func TestGenerationHandler_DownloadJob_NotReady(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	id := api.createJob(t, owner)

	w := api.do(http.MethodGet, "/api/v1/generation/jobs/"+id+"/download", owner, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, shared.CodeInvalidState, errorCode(t, w))
}

func TestGenerationHandler_ShareLifecycle(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	id := api.completedJob(t, owner)

	w := api.do(http.MethodPost, "/api/v1/generation/jobs/"+id+"/share", owner, map[string]any{"duration_hours": 2})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	token := data(t, w)["token"].(string)
	require.NotEmpty(t, token)

	// Anyone holding the token may download, without an identity.
	w = api.do(http.MethodGet, "/api/v1/shared/"+token, uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, strings.HasPrefix(w.Body.String(), "%PDF-"))

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+id+"/download?token="+token, uuid.New(), nil)
	assert.Equal(t, http.StatusOK, w.Code)

	api.clock.Advance(3 * time.Hour)
	expired := api.do(http.MethodGet, "/api/v1/shared/"+token, uuid.Nil, nil)
	unknown := api.do(http.MethodGet, "/api/v1/shared/no-such-token", uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, expired.Code)
	assert.Equal(t, shared.CodeNotFoundOrExpired, errorCode(t, expired))
	assert.Equal(t, decode(t, unknown).Error.Message, decode(t, expired).Error.Message)

	w = api.do(http.MethodPost, "/api/v1/generation/jobs/"+id+"/share", owner, map[string]any{"duration_hours": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	token = data(t, w)["token"].(string)

	w = api.do(http.MethodDelete, "/api/v1/generation/jobs/"+id+"/share", owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(http.MethodGet, "/api/v1/shared/"+token, uuid.Nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGenerationHandler_ShareJob_Rejected(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	id := api.completedJob(t, owner)
	target := "/api/v1/generation/jobs/" + id + "/share"

	w := api.do(http.MethodPost, target, owner, map[string]any{"duration_hours": 721})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, shared.CodeValidation, errorCode(t, w))

	w = api.do(http.MethodPost, target, owner, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = api.do(http.MethodPost, target, uuid.New(), map[string]any{"duration_hours": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodDelete, target, uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	pending := api.createJob(t, owner)
	w = api.do(http.MethodPost, "/api/v1/generation/jobs/"+pending+"/share", owner, map[string]any{"duration_hours": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGenerationHandler_DeleteJob(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	id := api.completedJob(t, owner)

	w := api.do(http.MethodDelete, "/api/v1/generation/jobs/"+id, uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(http.MethodDelete, "/api/v1/generation/jobs/"+id, owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+id, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodDelete, "/api/v1/generation/jobs/"+id, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_Sweep(t *testing.T) {
	api := newTestAPI(t)
	owner := uuid.New()
	id := api.completedJob(t, owner)
	admin := uuid.New()

	w := api.do(http.MethodPost, "/api/v1/admin/generation/sweep", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = api.do(http.MethodPost, "/api/v1/admin/generation/sweep", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 0, data(t, w)["removed"])

	api.clock.Advance(8 * 24 * time.Hour)
	w = api.do(http.MethodPost, "/api/v1/admin/generation/sweep", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, data(t, w)["removed"])

	w = api.do(http.MethodGet, "/api/v1/generation/jobs/"+id, owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSystemHandler_Health(t *testing.T) {
	api := newTestAPI(t)

	w := api.do(http.MethodGet, "/api/v1/health", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := data(t, w)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, "rpgsheets", health["name"])
	assert.Equal(t, map[string]any{"database": "ok"}, health["checks"])
}
