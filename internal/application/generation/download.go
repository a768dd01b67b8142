package generation

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	infra "github.com/rpgsheets/backend/internal/infrastructure/printing"
	"go.uber.org/zap"
)

const pdfContentType = "application/pdf"

// DownloadService serves artifacts and keeps the download counters.
type DownloadService struct {
	jobs      generation.JobRepository
	storage   infra.ArtifactStorage
	ownership generation.OwnershipChecker
	shares    *ShareService
	recorder  Recorder
	logger    *zap.Logger
}

// NewDownloadService creates a new DownloadService
func NewDownloadService(
	jobs generation.JobRepository,
	storage infra.ArtifactStorage,
	ownership generation.OwnershipChecker,
	shares *ShareService,
	logger *zap.Logger,
) *DownloadService {
	if ownership == nil {
		ownership = generation.OwnerMatch{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DownloadService{
		jobs:      jobs,
		storage:   storage,
		ownership: ownership,
		shares:    shares,
		recorder:  nopRecorder{},
		logger:    logger.Named("download"),
	}
}

// WithRecorder sets the recorder notified of served downloads
func (d *DownloadService) WithRecorder(r Recorder) *DownloadService {
	if r != nil {
		d.recorder = r
	}
	return d
}

// RecordDownload counts one download with a single atomic UPDATE
func (d *DownloadService) RecordDownload(ctx context.Context, jobID uuid.UUID) error {
	if err := d.jobs.IncrementDownload(ctx, jobID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError(shared.CodeNotFound, "Generation job not found")
		}
		return fmt.Errorf("failed to record download: %w", err)
	}
	return nil
}

// Download opens a completed artifact for the owner or for a holder of a
// current share token, and records the download.
func (d *DownloadService) Download(ctx context.Context, req DownloadRequest) (*DownloadResult, error) {
	job, viaShare, err := d.resolve(ctx, req)
	if err != nil {
		return nil, err
	}
	if !job.IsComplete() || !job.HasOutput() {
		return nil, shared.NewDomainError(shared.CodeInvalidState, "Document is not ready for download")
	}

	content, size, err := d.storage.Open(ctx, job.OutputPath)
	if err != nil {
		if infra.ErrorCode(err) == infra.ErrCodeArtifactNotFound {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Document file is no longer available")
		}
		return nil, toDomainError(err)
	}

	if err := d.RecordDownload(ctx, job.ID); err != nil {
		_ = content.Close()
		return nil, err
	}

	d.recorder.ArtifactDownloaded(ctx, job.DocumentType.String(), viaShare)
	d.logger.Debug("artifact downloaded",
		zap.String("job_id", job.ID.String()),
		zap.Bool("via_share", viaShare))

	return &DownloadResult{
		JobID:       job.ID,
		FileName:    filepath.Base(job.OutputPath),
		ContentType: pdfContentType,
		Size:        size,
		Content:     content,
	}, nil
}

// resolve finds the job the request may read and reports whether access
// was granted by a share token rather than ownership
func (d *DownloadService) resolve(ctx context.Context, req DownloadRequest) (*generation.Job, bool, error) {
	if req.JobID == uuid.Nil {
		if req.ShareToken == "" {
			return nil, false, shared.NewDomainError(shared.CodeValidation, "Job ID or share token is required")
		}
		job, err := d.shares.Resolve(ctx, req.ShareToken)
		return job, true, err
	}

	job, err := d.jobs.FindByID(ctx, req.JobID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, false, shared.NewDomainError(shared.CodeNotFound, "Generation job not found")
		}
		return nil, false, fmt.Errorf("failed to get job: %w", err)
	}

	if req.RequesterID != uuid.Nil {
		allowed, err := d.ownership.Verify(ctx, req.RequesterID, job.OwnerID)
		if err != nil {
			return nil, false, fmt.Errorf("failed to verify ownership: %w", err)
		}
		if allowed {
			return job, false, nil
		}
	}

	if req.ShareToken != "" {
		sharedJob, err := d.shares.Resolve(ctx, req.ShareToken)
		if err != nil {
			return nil, false, err
		}
		if sharedJob.ID == job.ID {
			return job, true, nil
		}
	}

	return nil, false, shared.NewDomainError(shared.CodeForbidden, "You do not have access to this document")
}
