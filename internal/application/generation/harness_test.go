package generation_test

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/application/generation"
	domain "github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	"github.com/rpgsheets/backend/internal/infrastructure/persistence"
	"github.com/rpgsheets/backend/internal/infrastructure/printing"
	"github.com/rpgsheets/backend/internal/infrastructure/printing/sheets"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var testEpoch = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// fakeClock is a settable shared.Clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingDispatcher remembers submitted jobs and can refuse them
type recordingDispatcher struct {
	mu  sync.Mutex
	ids []uuid.UUID
	err error
}

func (d *recordingDispatcher) Submit(id uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, id)
	return nil
}

func (d *recordingDispatcher) IDs() []uuid.UUID {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uuid.UUID(nil), d.ids...)
}

func (d *recordingDispatcher) SetErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

// recordingHTML keeps the last document the manager rendered
type recordingHTML struct {
	inner *sheets.Renderer
	mu    sync.Mutex
	last  string
}

func (r *recordingHTML) RenderDocument(c *domain.Character, system domain.SystemCode, docType domain.DocumentType, style domain.Style) string {
	html := r.inner.RenderDocument(c, system, docType, style)
	r.mu.Lock()
	r.last = html
	r.mu.Unlock()
	return html
}

func (r *recordingHTML) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// scriptedEngine wraps the stub engine, failing the first failures calls
// and running onRender before each call.
type scriptedEngine struct {
	inner    *printing.StubRenderer
	failures int32
	failWith error
	onRender func()
	calls    atomic.Int32
}

func (e *scriptedEngine) Render(ctx context.Context, req *printing.RenderRequest) (*printing.RenderResult, error) {
	n := e.calls.Add(1)
	if e.onRender != nil {
		e.onRender()
	}
	if n <= e.failures {
		return nil, e.failWith
	}
	return e.inner.Render(ctx, req)
}

func (e *scriptedEngine) Close() error { return nil }

// MockMirror is a testify mock of generation.ArtifactMirror
type MockMirror struct {
	mock.Mock
}

func (m *MockMirror) Upload(ctx context.Context, relPath, localPath string) error {
	return m.Called(ctx, relPath, localPath).Error(0)
}

func (m *MockMirror) Delete(ctx context.Context, relPath string) error {
	return m.Called(ctx, relPath).Error(0)
}

// countingRecorder tallies Recorder events by name and document type
type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *countingRecorder) add(event string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[event] += n
}

func (r *countingRecorder) Count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[event]
}

func (r *countingRecorder) JobCreated(_ context.Context, docType string) {
	r.add("created:"+docType, 1)
}

func (r *countingRecorder) JobCompleted(_ context.Context, docType string, _ time.Duration) {
	r.add("completed:"+docType, 1)
}

func (r *countingRecorder) JobFailed(_ context.Context, docType string, _ time.Duration) {
	r.add("failed:"+docType, 1)
}

func (r *countingRecorder) ArtifactDownloaded(_ context.Context, _ string, viaShare bool) {
	if viaShare {
		r.add("download:share", 1)
		return
	}
	r.add("download:owner", 1)
}

func (r *countingRecorder) ArtifactsSwept(_ context.Context, removed int) {
	r.add("swept", removed)
}

type envOptions struct {
	engine        printing.PDFRenderer
	renderTimeout time.Duration
	dispatcher    generation.Dispatcher
	mirror        generation.ArtifactMirror
	locker        shared.Locker
}

type envOption func(*envOptions)

func withEngine(engine printing.PDFRenderer) envOption {
	return func(o *envOptions) { o.engine = engine }
}

func withRenderTimeout(d time.Duration) envOption {
	return func(o *envOptions) { o.renderTimeout = d }
}

func withDispatcher(d generation.Dispatcher) envOption {
	return func(o *envOptions) { o.dispatcher = d }
}

func withMirror(m generation.ArtifactMirror) envOption {
	return func(o *envOptions) { o.mirror = m }
}

func withLocker(l shared.Locker) envOption {
	return func(o *envOptions) { o.locker = l }
}

// testEnv is the generation stack on in-memory SQLite, the stub engine and
// a temporary output directory.
type testEnv struct {
	db         *gorm.DB
	clock      *fakeClock
	jobs       *persistence.GormJobRepository
	characters *persistence.GormCharacterStore
	storage    *printing.FileSystemStorage
	html       *recordingHTML
	dispatcher *recordingDispatcher
	recorder   *countingRecorder
	manager    *generation.Manager
	shares     *generation.ShareService
	downloads  *generation.DownloadService
	cleanup    *generation.CleanupService
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	o := &envOptions{
		engine:        printing.NewStubRenderer(),
		renderTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, (&persistence.Database{DB: db}).AutoMigrate())

	logger := zaptest.NewLogger(t)
	clock := newFakeClock(testEpoch)

	storage, err := printing.NewFileSystemStorage(&printing.FileSystemStorageConfig{
		BasePath: t.TempDir(),
		Logger:   logger,
		Now:      clock.Now,
	})
	require.NoError(t, err)

	sheetRenderer, err := sheets.NewRenderer(logger)
	require.NoError(t, err)

	env := &testEnv{
		db:         db,
		clock:      clock,
		jobs:       persistence.NewGormJobRepository(db).WithClock(clock),
		characters: persistence.NewGormCharacterStore(db),
		storage:    storage,
		html:       &recordingHTML{inner: sheetRenderer},
		dispatcher: &recordingDispatcher{},
		recorder:   &countingRecorder{},
	}

	dispatcher := o.dispatcher
	if dispatcher == nil {
		dispatcher = env.dispatcher
	}

	env.manager = generation.NewManager(generation.ManagerDeps{
		Jobs:       env.jobs,
		Characters: env.characters,
		Templates:  env.html,
		Renderer: printing.NewDocumentRenderer(o.engine, &printing.DocumentRendererConfig{
			Timeout: o.renderTimeout,
			Logger:  logger,
		}),
		Pool:       printing.NewRenderPool(&printing.RenderPoolConfig{Size: 2, MaxQueue: 8, Logger: logger}),
		Storage:    storage,
		Mirror:     o.mirror,
		Dispatcher: dispatcher,
		Recorder:   env.recorder,
		Clock:      clock,
	}, generation.ManagerConfig{Retention: 7 * 24 * time.Hour}, logger)

	env.shares = generation.NewShareService(env.jobs, clock, 0, logger)
	env.downloads = generation.NewDownloadService(env.jobs, storage, nil, env.shares, logger).
		WithRecorder(env.recorder)
	env.cleanup = generation.NewCleanupService(env.jobs, storage, o.mirror, o.locker,
		generation.CleanupConfig{BatchSize: 2}, logger).
		WithRecorder(env.recorder)
	return env
}

func (e *testEnv) seedCharacter(t *testing.T, ownerID uuid.UUID, name string) *domain.Character {
	t.Helper()
	c := &domain.Character{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Name:       name,
		SystemCode: domain.SystemMonsterhearts,
		Playbook:   "The Witch",
		Attributes: map[string]int{"hot": 2, "cold": 1, "volatile": -1, "dark": 3},
		Moves:      []domain.Move{{Name: "Hex-Casting", Description: "Cast a hex."}},
	}
	require.NoError(t, e.characters.Save(context.Background(), c))
	return c
}

func (e *testEnv) createJob(t *testing.T, ownerID uuid.UUID, docType domain.DocumentType) uuid.UUID {
	t.Helper()
	c := e.seedCharacter(t, ownerID, "Luna")
	resp, err := e.manager.Create(context.Background(), generation.CreateJobRequest{
		CharacterID:  c.ID,
		OwnerID:      ownerID,
		DocumentType: docType.String(),
	})
	require.NoError(t, err)
	return uuid.MustParse(resp.ID)
}

// completedJob creates a job and runs it to COMPLETE
func (e *testEnv) completedJob(t *testing.T, ownerID uuid.UUID) *domain.Job {
	t.Helper()
	id := e.createJob(t, ownerID, domain.DocumentTypeCharacterSheet)
	e.manager.Execute(context.Background(), id)
	job := e.job(t, id)
	require.Equal(t, domain.JobStatusComplete, job.Status, job.ErrorMessage)
	return job
}

func (e *testEnv) job(t *testing.T, id uuid.UUID) *domain.Job {
	t.Helper()
	job, err := e.jobs.FindByID(context.Background(), id)
	require.NoError(t, err)
	return job
}

// pdfFiles lists the PDFs under the output directory
func (e *testEnv) pdfFiles(t *testing.T) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(e.storage.BasePath(), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && filepath.Ext(path) == ".pdf" {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr), "expected a domain error, got %v", err)
	require.Equal(t, code, domainErr.Code, domainErr.Message)
}
