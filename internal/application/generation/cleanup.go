package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	infra "github.com/rpgsheets/backend/internal/infrastructure/printing"
	"go.uber.org/zap"
)

// CleanupLockKey names the lock serializing sweeps across instances
const CleanupLockKey = "generation-cleanup"

// CleanupConfig configures the expiry sweep
type CleanupConfig struct {
	// BatchSize is the page size used to walk expired jobs (default: 100)
	BatchSize int
	// OrphanAge removes unreferenced PDFs older than this; 0 disables
	OrphanAge time.Duration
	// LockTTL bounds how long one sweep may hold the lock (default: 10m)
	LockTTL time.Duration
}

// CleanupService reclaims expired jobs and their artifacts.
type CleanupService struct {
	jobs     generation.JobRepository
	storage  infra.ArtifactStorage
	mirror   ArtifactMirror
	locker   shared.Locker
	config   CleanupConfig
	recorder Recorder
	logger   *zap.Logger
}

// NewCleanupService creates a new CleanupService. mirror and locker may be nil.
func NewCleanupService(
	jobs generation.JobRepository,
	storage infra.ArtifactStorage,
	mirror ArtifactMirror,
	locker shared.Locker,
	config CleanupConfig,
	logger *zap.Logger,
) *CleanupService {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.LockTTL <= 0 {
		config.LockTTL = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CleanupService{
		jobs:     jobs,
		storage:  storage,
		mirror:   mirror,
		locker:   locker,
		config:   config,
		recorder: nopRecorder{},
		logger:   logger.Named("cleanup"),
	}
}

// WithRecorder sets the recorder notified after each sweep
func (c *CleanupService) WithRecorder(r Recorder) *CleanupService {
	if r != nil {
		c.recorder = r
	}
	return c
}

// Sweep deletes every job that expired before now together with its files,
// and returns how many job records were removed. Failures on single jobs are
// logged and skipped. A sweep that finds another instance holding the lock
// removes nothing.
func (c *CleanupService) Sweep(ctx context.Context, now time.Time) (int, error) {
	if c.locker != nil {
		release, acquired, err := c.locker.TryLock(ctx, CleanupLockKey, c.config.LockTTL)
		if err != nil {
			return 0, fmt.Errorf("failed to acquire cleanup lock: %w", err)
		}
		if !acquired {
			c.logger.Info("cleanup already running elsewhere, skipping")
			return 0, nil
		}
		defer release()
	}

	removed, skipped := 0, 0
	for {
		if err := ctx.Err(); err != nil {
			return removed, err
		}

		// Removed records drop out of the result set, so only the ones that
		// failed to reclaim move the offset. DeleteIfExpired reporting false
		// means the record already left the set.
		jobs, err := c.jobs.FindExpired(ctx, now, skipped, c.config.BatchSize)
		if err != nil {
			return removed, fmt.Errorf("failed to find expired jobs: %w", err)
		}

		for i := range jobs {
			deleted, err := c.reclaim(ctx, &jobs[i], now)
			if err != nil {
				c.logger.Warn("failed to reclaim expired job",
					zap.String("job_id", jobs[i].ID.String()),
					zap.Error(err))
				skipped++
				continue
			}
			if deleted {
				removed++
			}
		}

		if len(jobs) < c.config.BatchSize {
			break
		}
	}

	if c.config.OrphanAge > 0 {
		orphans, err := c.storage.CleanupOlderThan(ctx, c.config.OrphanAge)
		if err != nil {
			c.logger.Warn("orphan artifact cleanup failed", zap.Error(err))
		} else if orphans > 0 {
			c.logger.Info("orphan artifacts removed", zap.Int("count", orphans))
		}
	}

	c.recorder.ArtifactsSwept(ctx, removed)
	c.logger.Info("cleanup sweep finished",
		zap.Int("removed", removed),
		zap.Int("skipped", skipped),
		zap.Time("now", now))
	return removed, nil
}

// reclaim removes one expired job's artifact and then its record
func (c *CleanupService) reclaim(ctx context.Context, job *generation.Job, now time.Time) (bool, error) {
	if job.HasOutput() {
		if err := c.storage.Delete(ctx, job.OutputPath); err != nil {
			return false, err
		}
		if c.mirror != nil {
			if err := c.mirror.Delete(ctx, job.OutputPath); err != nil {
				c.logger.Warn("failed to delete mirrored artifact",
					zap.String("path", job.OutputPath),
					zap.Error(err))
			}
		}
	}
	return c.jobs.DeleteIfExpired(ctx, job.ID, now)
}
