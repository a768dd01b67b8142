package generation_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/application/generation"
	domain "github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	"github.com/rpgsheets/backend/internal/infrastructure/printing"
	"github.com/rpgsheets/backend/internal/infrastructure/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManager_CreateAndExecute(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	luna := env.seedCharacter(t, owner, "Luna")

	resp, err := env.manager.Create(ctx, generation.CreateJobRequest{
		CharacterID:  luna.ID,
		OwnerID:      owner,
		DocumentType: "CHARACTER_SHEET",
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, 0, resp.Progress)
	assert.Equal(t, "A4", resp.Options.Format)
	assert.True(t, resp.ExpiresAt.Equal(testEpoch.Add(7*24*time.Hour)))

	id := uuid.MustParse(resp.ID)
	require.Equal(t, []uuid.UUID{id}, env.dispatcher.IDs())

	env.clock.Advance(2 * time.Second)
	env.manager.Execute(ctx, id)

	job := env.job(t, id)
	assert.Equal(t, domain.JobStatusComplete, job.Status)
	assert.Equal(t, domain.ProgressDone, job.Progress)
	assert.Empty(t, job.ErrorMessage)
	assert.Equal(t, int64(0), job.GenerationTimeMs)
	require.NotEmpty(t, job.OutputPath)
	assert.Contains(t, job.OutputPath, "luna_character-sheet_")

	abs, err := env.storage.Resolve(job.OutputPath)
	require.NoError(t, err)
	info, err := os.Stat(abs)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
	assert.Equal(t, info.Size(), job.OutputSizeBytes)

	html := env.html.Last()
	for _, want := range []string{"Luna", ">2<", ">1<", ">-1<", ">3<"} {
		assert.Contains(t, html, want)
	}
}

func TestManager_Create_Rejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	luna := env.seedCharacter(t, owner, "Luna")

	tests := []struct {
		name string
		req  generation.CreateJobRequest
		code string
	}{
		{
			name: "missing character",
			req:  generation.CreateJobRequest{OwnerID: owner, DocumentType: "CHARACTER_SHEET"},
			code: shared.CodeValidation,
		},
		{
			name: "unknown document type",
			req:  generation.CreateJobRequest{CharacterID: luna.ID, OwnerID: owner, DocumentType: "POSTER"},
			code: shared.CodeValidation,
		},
		{
			name: "unknown format",
			req: generation.CreateJobRequest{CharacterID: luna.ID, OwnerID: owner, DocumentType: "CHARACTER_SHEET",
				Options: &generation.OptionsDTO{Format: "B5"}},
			code: shared.CodeValidation,
		},
		{
			name: "margin too large",
			req: generation.CreateJobRequest{CharacterID: luna.ID, OwnerID: owner, DocumentType: "CHARACTER_SHEET",
				Options: &generation.OptionsDTO{Margins: &generation.MarginsDTO{Top: 60}}},
			code: shared.CodeValidation,
		},
		{
			name: "character does not exist",
			req:  generation.CreateJobRequest{CharacterID: uuid.New(), OwnerID: owner, DocumentType: "CHARACTER_SHEET"},
			code: shared.CodeNotFound,
		},
		{
			name: "someone else's character",
			req:  generation.CreateJobRequest{CharacterID: luna.ID, OwnerID: uuid.New(), DocumentType: "CHARACTER_SHEET"},
			code: shared.CodeForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.manager.Create(ctx, tt.req)
			requireCode(t, err, tt.code)
		})
	}

	page, err := env.manager.ListByOwner(ctx, owner, generation.JobFilter{}, generation.Pagination{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Empty(t, env.dispatcher.IDs())
}

func TestManager_Create_Options(t *testing.T) {
	env := newTestEnv(t)
	owner := uuid.New()
	luna := env.seedCharacter(t, owner, "Luna")
	printBackground := false

	resp, err := env.manager.Create(context.Background(), generation.CreateJobRequest{
		CharacterID:  luna.ID,
		OwnerID:      owner,
		DocumentType: "REFERENCE_CARD",
		Options: &generation.OptionsDTO{
			Format:          "A5",
			Orientation:     "LANDSCAPE",
			Style:           "PRINTER_FRIENDLY",
			Margins:         &generation.MarginsDTO{Top: 0, Right: 5, Bottom: 0, Left: 5},
			PrintBackground: &printBackground,
		},
	})
	require.NoError(t, err)

	job := env.job(t, uuid.MustParse(resp.ID))
	assert.Equal(t, domain.PageFormatA5, job.Options.Format)
	assert.Equal(t, domain.OrientationLandscape, job.Options.Orientation)
	assert.Equal(t, domain.StylePrinterFriendly, job.Options.Style)
	assert.Equal(t, domain.Margins{Right: 5, Left: 5}, job.Options.Margins)
	assert.False(t, job.Options.PrintBackground)
}

func TestManager_Create_QueueFullStaysPending(t *testing.T) {
	env := newTestEnv(t)
	env.dispatcher.SetErr(scheduler.ErrJobQueueFull)

	id := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)

	assert.Equal(t, domain.JobStatusPending, env.job(t, id).Status)
	assert.Empty(t, env.dispatcher.IDs())
}

func TestManager_Execute_RenderFailure(t *testing.T) {
	engine := &scriptedEngine{
		inner:    printing.NewStubRenderer(),
		failures: 1,
		failWith: printing.NewRenderError(printing.ErrCodeRenderFailed, "browser crashed", nil),
	}
	env := newTestEnv(t, withEngine(engine))
	ctx := context.Background()

	id := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)
	env.manager.Execute(ctx, id)

	job := env.job(t, id)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "PDF generation failed. Please try again later.", job.ErrorMessage)
	assert.Empty(t, job.OutputPath)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, env.pdfFiles(t))
}

func TestManager_Execute_Timeout(t *testing.T) {
	env := newTestEnv(t,
		withEngine(&printing.StubRenderer{Delay: 2 * time.Second}),
		withRenderTimeout(20*time.Millisecond))

	id := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)
	env.manager.Execute(context.Background(), id)

	job := env.job(t, id)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "PDF rendering timed out. Please try again.", job.ErrorMessage)
	assert.Empty(t, env.pdfFiles(t))
}

func TestManager_Execute_CharacterDeleted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)
	job := env.job(t, id)
	require.NoError(t, env.db.Exec("DELETE FROM characters WHERE id = ?", job.CharacterID).Error)

	env.manager.Execute(ctx, id)

	job = env.job(t, id)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "Character no longer exists", job.ErrorMessage)
}

func TestManager_Execute_RunsOnce(t *testing.T) {
	engine := &scriptedEngine{inner: printing.NewStubRenderer()}
	env := newTestEnv(t, withEngine(engine))
	ctx := context.Background()

	id := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			env.manager.Execute(ctx, id)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), engine.calls.Load())
	assert.Equal(t, domain.JobStatusComplete, env.job(t, id).Status)
	assert.Len(t, env.pdfFiles(t), 1)

	// A finished job is never executed again.
	env.manager.Execute(ctx, id)
	assert.Equal(t, int32(1), engine.calls.Load())
}

func TestManager_Execute_DeletedWhileRendering(t *testing.T) {
	engine := &scriptedEngine{inner: printing.NewStubRenderer()}
	env := newTestEnv(t, withEngine(engine))
	ctx := context.Background()

	id := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)
	engine.onRender = func() {
		assert.NoError(t, env.jobs.Delete(ctx, id))
	}

	env.manager.Execute(ctx, id)

	_, err := env.jobs.FindByID(ctx, id)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, env.pdfFiles(t))
}

func TestManager_Execute_UnknownJob(t *testing.T) {
	env := newTestEnv(t)
	assert.NotPanics(t, func() {
		env.manager.Execute(context.Background(), uuid.New())
	})
}

func TestManager_Execute_MirrorsArtifact(t *testing.T) {
	mirror := &MockMirror{}
	mirror.On("Upload", mock.Anything, mock.AnythingOfType("string"), mock.AnythingOfType("string")).
		Return(assert.AnError)
	env := newTestEnv(t, withMirror(mirror))

	id := env.createJob(t, uuid.New(), domain.DocumentTypeMovesGuide)
	env.manager.Execute(context.Background(), id)

	job := env.job(t, id)
	assert.Equal(t, domain.JobStatusComplete, job.Status, "a mirror failure does not fail the job")
	abs, err := env.storage.Resolve(job.OutputPath)
	require.NoError(t, err)
	mirror.AssertCalled(t, "Upload", mock.Anything, job.OutputPath, abs)
}

func TestManager_Relaunch(t *testing.T) {
	engine := &scriptedEngine{
		inner:    printing.NewStubRenderer(),
		failures: 1,
		failWith: printing.NewRenderError(printing.ErrCodeRenderFailed, "browser crashed", nil),
	}
	env := newTestEnv(t, withEngine(engine))
	ctx := context.Background()

	id := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)
	env.manager.Execute(ctx, id)
	require.Equal(t, domain.JobStatusFailed, env.job(t, id).Status)

	resp, err := env.manager.Relaunch(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", resp.Status)
	assert.Equal(t, 2, resp.Attempts)
	assert.Empty(t, resp.ErrorMessage)
	assert.Equal(t, []uuid.UUID{id, id}, env.dispatcher.IDs())

	env.manager.Execute(ctx, id)
	job := env.job(t, id)
	assert.Equal(t, domain.JobStatusComplete, job.Status)
	assert.Equal(t, 2, job.Attempts)

	_, err = env.manager.Relaunch(ctx, id)
	requireCode(t, err, shared.CodeInvalidState)
	assert.Equal(t, domain.JobStatusComplete, env.job(t, id).Status)
}

func TestManager_Relaunch_NotFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)
	_, err := env.manager.Relaunch(ctx, pending)
	requireCode(t, err, shared.CodeInvalidState)

	_, err = env.manager.Relaunch(ctx, uuid.New())
	requireCode(t, err, shared.CodeNotFound)
}

func TestManager_WithWorkerPool(t *testing.T) {
	pool, err := scheduler.NewWorkerPool(scheduler.WorkerPoolConfig{Workers: 2, QueueSize: 10}, zaptest.NewLogger(t))
	require.NoError(t, err)
	env := newTestEnv(t, withDispatcher(pool))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, pool.Start(ctx, env.manager.Execute))
	t.Cleanup(func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = pool.Stop(stopCtx)
	})

	owner := uuid.New()
	ids := make([]uuid.UUID, 0, 3)
	for _, docType := range []domain.DocumentType{
		domain.DocumentTypeCharacterSheet,
		domain.DocumentTypeReferenceCard,
		domain.DocumentTypeConditionsTracker,
	} {
		ids = append(ids, env.createJob(t, owner, docType))
	}

	for _, id := range ids {
		assert.Eventually(t, func() bool {
			job, err := env.jobs.FindByID(ctx, id)
			return err == nil && job.Status == domain.JobStatusComplete
		}, 5*time.Second, 10*time.Millisecond)
	}
	assert.Len(t, env.pdfFiles(t), 3)
}

func TestManager_GetJobAndStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	id := env.createJob(t, owner, domain.DocumentTypeCharacterSheet)

	status, err := env.manager.GetStatus(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "PENDING", status.Status)
	assert.Equal(t, 1, status.Attempts)

	job, err := env.manager.GetJob(ctx, id, owner)
	require.NoError(t, err)
	assert.Equal(t, owner.String(), job.OwnerID)

	_, err = env.manager.GetJob(ctx, id, uuid.New())
	requireCode(t, err, shared.CodeForbidden)

	_, err = env.manager.GetStatus(ctx, uuid.New())
	requireCode(t, err, shared.CodeNotFound)
}

func TestManager_Delete(t *testing.T) {
	mirror := &MockMirror{}
	mirror.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	mirror.On("Delete", mock.Anything, mock.Anything).Return(nil)
	env := newTestEnv(t, withMirror(mirror))
	ctx := context.Background()
	owner := uuid.New()

	job := env.completedJob(t, owner)
	require.Len(t, env.pdfFiles(t), 1)

	err := env.manager.Delete(ctx, job.ID, uuid.New())
	requireCode(t, err, shared.CodeForbidden)
	require.Len(t, env.pdfFiles(t), 1)

	require.NoError(t, env.manager.Delete(ctx, job.ID, owner))
	_, err = env.jobs.FindByID(ctx, job.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	assert.Empty(t, env.pdfFiles(t))
	mirror.AssertCalled(t, "Delete", mock.Anything, job.OutputPath)

	err = env.manager.Delete(ctx, job.ID, owner)
	requireCode(t, err, shared.CodeNotFound)
}

func TestManager_Delete_MissingFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	job := env.completedJob(t, owner)
	abs, err := env.storage.Resolve(job.OutputPath)
	require.NoError(t, err)
	require.NoError(t, os.Remove(abs))

	require.NoError(t, env.manager.Delete(ctx, job.ID, owner))
	_, err = env.jobs.FindByID(ctx, job.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestManager_ListByOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()

	env.createJob(t, owner, domain.DocumentTypeCharacterSheet)
	env.clock.Advance(time.Minute)
	env.createJob(t, owner, domain.DocumentTypeMovesGuide)
	env.clock.Advance(time.Minute)
	env.createJob(t, owner, domain.DocumentTypeCharacterSheet)
	env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)

	page, err := env.manager.ListByOwner(ctx, owner, generation.JobFilter{}, generation.Pagination{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, 2, page.TotalPages)

	filtered, err := env.manager.ListByOwner(ctx, owner,
		generation.JobFilter{DocumentType: "CHARACTER_SHEET"}, generation.Pagination{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), filtered.Total)
	for _, item := range filtered.Items {
		assert.Equal(t, "CHARACTER_SHEET", item.DocumentType)
		assert.Equal(t, owner.String(), item.OwnerID)
	}

	_, err = env.manager.ListByOwner(ctx, owner, generation.JobFilter{Status: "DONE"}, generation.Pagination{})
	requireCode(t, err, shared.CodeValidation)

	_, err = env.manager.ListByOwner(ctx, owner, generation.JobFilter{}, generation.Pagination{PageSize: 500})
	requireCode(t, err, shared.CodeValidation)
}

func TestManager_RecoverInterrupted(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)
	job := env.job(t, id)
	require.NoError(t, job.Start(env.clock.Now()))
	require.NoError(t, env.jobs.SaveTransition(ctx, job, domain.JobStatusPending))

	env.clock.Advance(5 * time.Minute)
	recovered, err := env.manager.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Zero(t, recovered, "a job still within its render window is left alone")

	env.clock.Advance(6 * time.Minute)
	recovered, err = env.manager.RecoverInterrupted(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, recovered)

	job = env.job(t, id)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, "generation interrupted", job.ErrorMessage)

	_, err = env.manager.Relaunch(ctx, id)
	require.NoError(t, err)
}

func TestManager_DispatchPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.dispatcher.SetErr(scheduler.ErrJobQueueFull)
	first := env.createJob(t, uuid.New(), domain.DocumentTypeCharacterSheet)
	env.clock.Advance(time.Second)
	second := env.createJob(t, uuid.New(), domain.DocumentTypeNPCSheet)
	env.dispatcher.SetErr(nil)

	dispatched, err := env.manager.DispatchPending(ctx, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, dispatched)

	env.clock.Advance(2 * time.Minute)
	dispatched, err = env.manager.DispatchPending(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, dispatched)
	assert.Equal(t, []uuid.UUID{first, second}, env.dispatcher.IDs())

	env.dispatcher.SetErr(scheduler.ErrJobQueueFull)
	dispatched, err = env.manager.DispatchPending(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, dispatched)
}
