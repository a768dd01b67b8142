package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	"github.com/rpgsheets/backend/internal/infrastructure/logger"
	infra "github.com/rpgsheets/backend/internal/infrastructure/printing"
	"github.com/rpgsheets/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// ManagerConfig holds job lifecycle settings
type ManagerConfig struct {
	// Retention is how long a job and its artifact live (default: 7 days)
	Retention time.Duration
	// DispatchBatch bounds how many jobs one recovery or dispatch pass reads
	DispatchBatch int
	// StaleAfter is how long a job may stay IN_PROGRESS before it is
	// considered abandoned by a crashed worker (default: 10 minutes)
	StaleAfter time.Duration
}

// DefaultManagerConfig returns the default lifecycle settings
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Retention:     7 * 24 * time.Hour,
		DispatchBatch: 50,
		StaleAfter:    10 * time.Minute,
	}
}

// ManagerDeps groups the collaborators of a Manager
type ManagerDeps struct {
	Jobs       generation.JobRepository
	Characters generation.CharacterStore
	Ownership  generation.OwnershipChecker
	Templates  HTMLRenderer
	Renderer   DocumentRenderer
	Pool       SlotRunner
	Storage    infra.ArtifactStorage
	Mirror     ArtifactMirror
	Dispatcher Dispatcher
	Recorder   Recorder
	Clock      shared.Clock
}

// Manager drives generation jobs through their lifecycle. Create returns as
// soon as the job is persisted; Execute runs on a worker.
type Manager struct {
	jobs       generation.JobRepository
	characters generation.CharacterStore
	ownership  generation.OwnershipChecker
	templates  HTMLRenderer
	renderer   DocumentRenderer
	pool       SlotRunner
	storage    infra.ArtifactStorage
	mirror     ArtifactMirror
	dispatcher Dispatcher
	recorder   Recorder
	clock      shared.Clock
	validate   *validator.Validate
	config     ManagerConfig
	logger     *zap.Logger
}

// NewManager creates a new Manager
func NewManager(deps ManagerDeps, config ManagerConfig, zapLogger *zap.Logger) *Manager {
	if zapLogger == nil {
		zapLogger = zap.NewNop()
	}
	defaults := DefaultManagerConfig()
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if config.DispatchBatch <= 0 {
		config.DispatchBatch = defaults.DispatchBatch
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = defaults.StaleAfter
	}
	if deps.Ownership == nil {
		deps.Ownership = generation.OwnerMatch{}
	}
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}
	if deps.Recorder == nil {
		deps.Recorder = nopRecorder{}
	}
	return &Manager{
		jobs:       deps.Jobs,
		characters: deps.Characters,
		ownership:  deps.Ownership,
		templates:  deps.Templates,
		renderer:   deps.Renderer,
		pool:       deps.Pool,
		storage:    deps.Storage,
		mirror:     deps.Mirror,
		dispatcher: deps.Dispatcher,
		recorder:   deps.Recorder,
		clock:      deps.Clock,
		validate:   newValidator(),
		config:     config,
		logger:     zapLogger.Named("generation"),
	}
}

// =============================================================================
// Job Operations
// =============================================================================

// Create validates the request, persists a PENDING job and queues it.
// Nothing is persisted when validation, lookup or permission checks fail.
func (m *Manager) Create(ctx context.Context, req CreateJobRequest) (*JobResponse, error) {
	if err := m.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	character, err := m.characters.FindByID(ctx, req.CharacterID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Character not found")
		}
		return nil, fmt.Errorf("failed to load character: %w", err)
	}

	allowed, err := m.ownership.Verify(ctx, req.OwnerID, character.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ownership: %w", err)
	}
	if !allowed {
		return nil, shared.NewDomainError(shared.CodeForbidden, "You do not have access to this character")
	}

	job, err := generation.NewJob(
		req.CharacterID,
		req.OwnerID,
		generation.DocumentType(req.DocumentType),
		req.Options.toDomain(),
		m.clock.Now(),
		m.config.Retention,
	)
	if err != nil {
		return nil, err
	}

	if err := m.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save generation job: %w", err)
	}

	m.logger.Info("generation job created",
		zap.String("job_id", job.ID.String()),
		zap.String("character_id", job.CharacterID.String()),
		zap.String("document_type", job.DocumentType.String()))
	m.recorder.JobCreated(ctx, job.DocumentType.String())

	m.submit(job.ID)
	return toJobResponse(job), nil
}

// GetStatus returns the progress view of a job
func (m *Manager) GetStatus(ctx context.Context, jobID uuid.UUID) (*JobStatusResponse, error) {
	job, err := m.findJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return toStatusResponse(job), nil
}

// GetJob returns the full job if requesterID may see it
func (m *Manager) GetJob(ctx context.Context, jobID, requesterID uuid.UUID) (*JobResponse, error) {
	job, err := m.authorize(ctx, jobID, requesterID)
	if err != nil {
		return nil, err
	}
	return toJobResponse(job), nil
}

// Relaunch resets a FAILED job to PENDING and queues it again
func (m *Manager) Relaunch(ctx context.Context, jobID uuid.UUID) (*JobResponse, error) {
	job, err := m.findJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := job.Relaunch(m.clock.Now()); err != nil {
		return nil, err
	}
	if err := m.jobs.SaveTransition(ctx, job, generation.JobStatusFailed); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, shared.NewDomainError(shared.CodeInvalidState, "Job is no longer in FAILED state")
		}
		return nil, fmt.Errorf("failed to relaunch job: %w", err)
	}

	m.logger.Info("generation job relaunched",
		zap.String("job_id", job.ID.String()),
		zap.Int("attempt", job.Attempts))

	m.submit(job.ID)
	return toJobResponse(job), nil
}

// Delete removes a job, its artifact and the mirrored copy
func (m *Manager) Delete(ctx context.Context, jobID, requesterID uuid.UUID) error {
	job, err := m.authorize(ctx, jobID, requesterID)
	if err != nil {
		return err
	}

	if job.HasOutput() {
		if err := m.storage.Delete(ctx, job.OutputPath); err != nil {
			return toDomainError(err)
		}
		m.deleteMirror(ctx, job.OutputPath)
	}

	if err := m.jobs.Delete(ctx, job.ID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete job: %w", err)
	}

	m.logger.Info("generation job deleted",
		zap.String("job_id", job.ID.String()),
		zap.String("status", job.Status.String()))
	return nil
}

// ListByOwner returns one page of an owner's jobs
func (m *Manager) ListByOwner(ctx context.Context, ownerID uuid.UUID, filter JobFilter, page Pagination) (*shared.Paginated[JobResponse], error) {
	if err := m.validate.Struct(filter); err != nil {
		return nil, validationError(err)
	}
	if err := m.validate.Struct(page); err != nil {
		return nil, validationError(err)
	}

	query := generation.JobFilter{
		Filter: shared.Filter{
			Page:     page.Page,
			PageSize: page.PageSize,
			OrderBy:  page.OrderBy,
			OrderDir: page.OrderDir,
		}.Normalize(),
		CharacterID: filter.CharacterID,
	}
	if filter.DocumentType != "" {
		docType := generation.DocumentType(filter.DocumentType)
		query.DocumentType = &docType
	}
	if filter.Status != "" {
		status := generation.JobStatus(filter.Status)
		query.Status = &status
	}

	jobs, total, err := m.jobs.FindByOwner(ctx, ownerID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	items := make([]JobResponse, len(jobs))
	for i := range jobs {
		items[i] = *toJobResponse(&jobs[i])
	}
	result := shared.NewPaginated(items, total, query.Page, query.PageSize)
	return &result, nil
}

// =============================================================================
// Execution
// =============================================================================

// Execute runs one job to COMPLETE or FAILED. It is called by workers only,
// never returns an error and never panics; outcomes are recorded on the job.
func (m *Manager) Execute(ctx context.Context, jobID uuid.UUID) {
	ctx, log := logger.WithJobID(ctx, m.logger, jobID.String())
	ctx, span := telemetry.StartServiceSpan(ctx, "generation", "execute",
		telemetry.WithAttribute(telemetry.SpanAttrJobID, jobID),
		telemetry.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	job, err := m.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			log.Debug("job vanished before execution")
		} else {
			log.Error("failed to load job for execution", zap.Error(err))
		}
		return
	}
	if job.Status != generation.JobStatusPending {
		log.Debug("job not pending, skipping", zap.String("status", job.Status.String()))
		return
	}
	ctx, log = logger.WithDocumentType(ctx, log, job.DocumentType.String())
	telemetry.SetAttributes(span,
		telemetry.SpanAttrDocumentType, job.DocumentType.String(),
		telemetry.SpanAttrCharacterID, job.CharacterID.String())

	if err := job.Start(m.clock.Now()); err != nil {
		log.Error("failed to start job", zap.Error(err))
		return
	}
	if err := m.jobs.SaveTransition(ctx, job, generation.JobStatusPending); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			log.Debug("job claimed by another worker")
		} else {
			log.Error("failed to mark job in progress", zap.Error(err))
		}
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("job execution panicked", zap.Any("panic", r), zap.Stack("stacktrace"))
			m.fail(ctx, log, job, "PDF generation failed due to an internal error.")
		}
	}()

	relPath, size, err := m.produce(ctx, log, job)
	if err != nil {
		log.Warn("generation failed", zap.Error(err))
		telemetry.RecordError(span, err)
		m.fail(ctx, log, job, failureMessage(err))
		return
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrBytes, size)
	m.complete(ctx, log, job, relPath, size)
}

// produce renders the job's document and returns the artifact path and size.
// Profiles taken meanwhile are labelled with the document type and style.
func (m *Manager) produce(ctx context.Context, log *zap.Logger, job *generation.Job) (relPath string, size int64, err error) {
	labels := telemetry.JobProfileLabels(job.DocumentType.String(), job.Options.Style.String())
	telemetry.WithProfilingLabels(ctx, labels, func(ctx context.Context) {
		relPath, size, err = m.generate(ctx, log, job)
	})
	return relPath, size, err
}

func (m *Manager) generate(ctx context.Context, log *zap.Logger, job *generation.Job) (string, int64, error) {
	character, err := m.characters.FindByID(ctx, job.CharacterID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return "", 0, shared.NewDomainError(shared.CodeNotFound, "Character no longer exists")
		}
		return "", 0, fmt.Errorf("failed to load character: %w", err)
	}

	html := m.templates.RenderDocument(character, character.SystemCode, job.DocumentType, job.Options.Style)
	m.reportProgress(ctx, log, job.ID, generation.ProgressRendered)

	relPath := infra.ArtifactPath(job.OwnerID, character.Name, job.DocumentType, job.CreatedAt, job.ID)
	absPath, err := m.storage.Resolve(relPath)
	if err != nil {
		return "", 0, err
	}

	title := character.Name
	if title == "" {
		title = job.DocumentType.DisplayName()
	}
	opts := infra.OptionsFromGeneration(job.Options, title)

	renderCtx, span := telemetry.StartServiceSpan(ctx, "generation", "render")
	defer span.End()

	var size int64
	err = m.pool.WithSlot(renderCtx, func(ctx context.Context) error {
		var renderErr error
		size, renderErr = m.renderer.RenderToFile(ctx, html, absPath, opts)
		return renderErr
	})
	if err != nil {
		telemetry.RecordError(span, err)
		return "", 0, err
	}
	m.reportProgress(ctx, log, job.ID, generation.ProgressWritten)
	return relPath, size, nil
}

func (m *Manager) complete(ctx context.Context, log *zap.Logger, job *generation.Job, relPath string, size int64) {
	if err := job.Complete(relPath, size, m.clock.Now()); err != nil {
		log.Error("failed to complete job", zap.Error(err))
		m.removeArtifact(ctx, log, relPath)
		return
	}
	if err := m.jobs.SaveTransition(ctx, job, generation.JobStatusInProgress); err != nil {
		// The job was deleted or reset while rendering; its file has no owner.
		log.Warn("job changed during execution, discarding artifact", zap.Error(err))
		m.removeArtifact(ctx, log, relPath)
		return
	}

	m.recorder.JobCompleted(ctx, job.DocumentType.String(), time.Duration(job.GenerationTimeMs)*time.Millisecond)
	log.Info("generation job complete",
		zap.String("path", relPath),
		zap.Int64("bytes", size),
		zap.Int64("generation_time_ms", job.GenerationTimeMs))

	if m.mirror != nil {
		absPath, err := m.storage.Resolve(relPath)
		if err == nil {
			err = m.mirror.Upload(ctx, relPath, absPath)
		}
		if err != nil {
			log.Warn("failed to mirror artifact", zap.String("path", relPath), zap.Error(err))
		}
	}
}

func (m *Manager) fail(ctx context.Context, log *zap.Logger, job *generation.Job, message string) {
	if err := job.Fail(message, m.clock.Now()); err != nil {
		log.Error("failed to mark job failed", zap.Error(err))
		return
	}
	if err := m.jobs.SaveTransition(ctx, job, generation.JobStatusInProgress); err != nil {
		log.Warn("could not record job failure", zap.Error(err))
		return
	}
	m.recorder.JobFailed(ctx, job.DocumentType.String(), time.Duration(job.GenerationTimeMs)*time.Millisecond)
}

func (m *Manager) reportProgress(ctx context.Context, log *zap.Logger, jobID uuid.UUID, progress int) {
	if err := m.jobs.UpdateProgress(ctx, jobID, progress); err != nil {
		log.Debug("progress not recorded", zap.Int("progress", progress), zap.Error(err))
	}
}

func (m *Manager) removeArtifact(ctx context.Context, log *zap.Logger, relPath string) {
	if err := m.storage.Delete(ctx, relPath); err != nil {
		log.Warn("failed to remove artifact", zap.String("path", relPath), zap.Error(err))
	}
}

// =============================================================================
// Recovery and dispatch
// =============================================================================

// RecoverInterrupted fails jobs left IN_PROGRESS longer than StaleAfter,
// which only happens when the worker running them died. They can then be
// relaunched. Returns the number of jobs recovered.
func (m *Manager) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := m.jobs.FindByStatus(ctx, generation.JobStatusInProgress, m.config.DispatchBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to find in-progress jobs: %w", err)
	}

	now := m.clock.Now()
	recovered := 0
	for i := range jobs {
		job := &jobs[i]
		if job.StartedAt != nil && now.Sub(*job.StartedAt) < m.config.StaleAfter {
			continue
		}
		if err := job.Fail("generation interrupted", now); err != nil {
			continue
		}
		if err := m.jobs.SaveTransition(ctx, job, generation.JobStatusInProgress); err != nil {
			if !errors.Is(err, shared.ErrConcurrencyConflict) {
				return recovered, fmt.Errorf("failed to recover job %s: %w", job.ID, err)
			}
			continue
		}
		recovered++
	}

	if recovered > 0 {
		m.logger.Warn("interrupted generation jobs marked failed", zap.Int("count", recovered))
	}
	return recovered, nil
}

// DispatchPending re-submits PENDING jobs untouched for at least minAge,
// oldest first. It stops early when the worker queue is full.
func (m *Manager) DispatchPending(ctx context.Context, minAge time.Duration) (int, error) {
	if m.dispatcher == nil {
		return 0, nil
	}
	jobs, err := m.jobs.FindByStatus(ctx, generation.JobStatusPending, m.config.DispatchBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	cutoff := m.clock.Now().Add(-minAge)
	dispatched := 0
	for i := range jobs {
		if jobs[i].UpdatedAt.After(cutoff) {
			continue
		}
		if err := m.dispatcher.Submit(jobs[i].ID); err != nil {
			m.logger.Debug("dispatch stopped", zap.Int("dispatched", dispatched), zap.Error(err))
			break
		}
		dispatched++
	}

	if dispatched > 0 {
		m.logger.Info("pending generation jobs dispatched", zap.Int("count", dispatched))
	}
	return dispatched, nil
}

// =============================================================================
// Helper Functions
// =============================================================================

func (m *Manager) submit(jobID uuid.UUID) {
	if m.dispatcher == nil {
		return
	}
	if err := m.dispatcher.Submit(jobID); err != nil {
		// The job stays PENDING and is picked up by DispatchPending.
		m.logger.Warn("job not queued",
			zap.String("job_id", jobID.String()),
			zap.Error(err))
	}
}

func (m *Manager) findJob(ctx context.Context, jobID uuid.UUID) (*generation.Job, error) {
	job, err := m.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Generation job not found")
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// authorize loads a job and checks requesterID may act on it
func (m *Manager) authorize(ctx context.Context, jobID, requesterID uuid.UUID) (*generation.Job, error) {
	job, err := m.findJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	allowed, err := m.ownership.Verify(ctx, requesterID, job.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ownership: %w", err)
	}
	if !allowed {
		return nil, shared.NewDomainError(shared.CodeForbidden, "You do not have access to this job")
	}
	return job, nil
}

func (m *Manager) deleteMirror(ctx context.Context, relPath string) {
	if m.mirror == nil {
		return
	}
	if err := m.mirror.Delete(ctx, relPath); err != nil {
		m.logger.Warn("failed to delete mirrored artifact", zap.String("path", relPath), zap.Error(err))
	}
}
