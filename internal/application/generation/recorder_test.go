package generation_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/application/generation"
	domain "github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/infrastructure/printing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_JobOutcomes(t *testing.T) {
	engine := &scriptedEngine{
		inner:    printing.NewStubRenderer(),
		failures: 1,
		failWith: printing.NewRenderError(printing.ErrCodeRenderFailed, "browser crashed", nil),
	}
	env := newTestEnv(t, withEngine(engine))
	ctx := context.Background()
	owner := uuid.New()

	failed := env.createJob(t, owner, domain.DocumentTypeCharacterSheet)
	env.manager.Execute(ctx, failed)
	done := env.createJob(t, owner, domain.DocumentTypeReferenceCard)
	env.manager.Execute(ctx, done)

	assert.Equal(t, 1, env.recorder.Count("created:CHARACTER_SHEET"))
	assert.Equal(t, 1, env.recorder.Count("created:REFERENCE_CARD"))
	assert.Equal(t, 1, env.recorder.Count("failed:CHARACTER_SHEET"))
	assert.Equal(t, 1, env.recorder.Count("completed:REFERENCE_CARD"))
	assert.Zero(t, env.recorder.Count("completed:CHARACTER_SHEET"))
}

func TestRecorder_DownloadsAndSweep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := uuid.New()
	job := env.completedJob(t, owner)

	result, err := env.downloads.Download(ctx, generation.DownloadRequest{JobID: job.ID, RequesterID: owner})
	require.NoError(t, err)
	readAll(t, result)

	share, err := env.shares.Issue(ctx, job.ID, 2)
	require.NoError(t, err)
	result, err = env.downloads.Download(ctx, generation.DownloadRequest{ShareToken: share.Token})
	require.NoError(t, err)
	readAll(t, result)

	assert.Equal(t, 1, env.recorder.Count("download:owner"))
	assert.Equal(t, 1, env.recorder.Count("download:share"))

	env.clock.Advance(8 * 24 * time.Hour)
	removed, err := env.cleanup.Sweep(ctx, env.clock.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, env.recorder.Count("swept"))
}
