package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	"github.com/rpgsheets/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GenerationJobSortFields defines allowed sort fields for generation jobs
var GenerationJobSortFields = map[string]bool{
	"created_at":     true,
	"updated_at":     true,
	"expires_at":     true,
	"completed_at":   true,
	"document_type":  true,
	"status":         true,
	"download_count": true,
}

// GormJobRepository implements generation.JobRepository using GORM
type GormJobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormJobRepository creates a new GormJobRepository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock used to stamp updated_at on targeted updates
func (r *GormJobRepository) WithClock(clock shared.Clock) *GormJobRepository {
	r.now = clock.Now
	return r
}

func (r *GormJobRepository) model(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.GenerationJobModel{})
}

// FindByID finds a job by ID
func (r *GormJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*generation.Job, error) {
	var model models.GenerationJobModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Generation job not found")
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByShareToken finds the job currently holding token
func (r *GormJobRepository) FindByShareToken(ctx context.Context, token string) (*generation.Job, error) {
	if token == "" {
		return nil, shared.ErrNotFound
	}
	var model models.GenerationJobModel
	if err := r.db.WithContext(ctx).
		Where("share_token = ?", token).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByOwner returns one page of an owner's jobs and the total count
func (r *GormJobRepository) FindByOwner(ctx context.Context, ownerID uuid.UUID, filter generation.JobFilter) ([]generation.Job, int64, error) {
	query := r.model(ctx).Where("owner_id = ?", ownerID)
	if filter.DocumentType != nil {
		query = query.Where("document_type = ?", string(*filter.DocumentType))
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.CharacterID != nil {
		query = query.Where("character_id = ?", *filter.CharacterID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := filter.Filter.Normalize()
	sortField := ValidateSortField(page.OrderBy, GenerationJobSortFields, "created_at")
	sortOrder := ValidateSortOrder(page.OrderDir)

	var jobModels []models.GenerationJobModel
	if err := query.
		Order(sortField + " " + sortOrder).
		Offset(page.Offset()).
		Limit(page.PageSize).
		Find(&jobModels).Error; err != nil {
		return nil, 0, err
	}
	return toDomainJobs(jobModels), total, nil
}

// FindByStatus returns up to limit jobs in status, oldest first
func (r *GormJobRepository) FindByStatus(ctx context.Context, status generation.JobStatus, limit int) ([]generation.Job, error) {
	var jobModels []models.GenerationJobModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", string(status)).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobModels).Error; err != nil {
		return nil, err
	}
	return toDomainJobs(jobModels), nil
}

// FindExpired returns jobs with expires_at before now, oldest first
func (r *GormJobRepository) FindExpired(ctx context.Context, now time.Time, offset, limit int) ([]generation.Job, error) {
	var jobModels []models.GenerationJobModel
	if err := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Order("expires_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&jobModels).Error; err != nil {
		return nil, err
	}
	return toDomainJobs(jobModels), nil
}

// Create inserts a new job
func (r *GormJobRepository) Create(ctx context.Context, job *generation.Job) error {
	model := models.GenerationJobModelFromDomain(job)
	return r.db.WithContext(ctx).Create(model).Error
}

// SaveTransition writes the lifecycle columns guarded by the expected status.
func (r *GormJobRepository) SaveTransition(ctx context.Context, job *generation.Job, from generation.JobStatus) error {
	result := r.model(ctx).
		Where("id = ? AND status = ?", job.ID, string(from)).
		Updates(map[string]any{
			"status":             string(job.Status),
			"progress":           job.Progress,
			"output_path":        job.OutputPath,
			"output_size_bytes":  job.OutputSizeBytes,
			"error_message":      job.ErrorMessage,
			"started_at":         job.StartedAt,
			"completed_at":       job.CompletedAt,
			"generation_time_ms": job.GenerationTimeMs,
			"attempts":           job.Attempts,
			"updated_at":         job.UpdatedAt,
			"version":            gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// UpdateProgress sets the progress column of an IN_PROGRESS job
func (r *GormJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error {
	result := r.model(ctx).
		Where("id = ? AND status = ?", id, string(generation.JobStatusInProgress)).
		Updates(map[string]any{
			"progress":   progress,
			"updated_at": r.now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// SaveShare persists the share token fields of a COMPLETE job
func (r *GormJobRepository) SaveShare(ctx context.Context, job *generation.Job) error {
	result := r.model(ctx).
		Where("id = ? AND status = ?", job.ID, string(generation.JobStatusComplete)).
		Updates(map[string]any{
			"share_token":      models.NullableString(job.ShareToken),
			"share_expires_at": job.ShareExpiresAt,
			"updated_at":       job.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// IncrementDownload bumps download_count in a single statement.
func (r *GormJobRepository) IncrementDownload(ctx context.Context, id uuid.UUID) error {
	result := r.model(ctx).
		Where("id = ?", id).
		Updates(map[string]any{
			"download_count": gorm.Expr("download_count + ?", 1),
			"downloaded":     true,
			"updated_at":     r.now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeNotFound, "Generation job not found")
	}
	return nil
}

// Delete deletes a job by ID
func (r *GormJobRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.GenerationJobModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.NewDomainError(shared.CodeNotFound, "Generation job not found")
	}
	return nil
}

// DeleteIfExpired removes the job only while expires_at is still before now
func (r *GormJobRepository) DeleteIfExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND expires_at < ?", id, now).
		Delete(&models.GenerationJobModel{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func toDomainJobs(jobModels []models.GenerationJobModel) []generation.Job {
	jobs := make([]generation.Job, len(jobModels))
	for i := range jobModels {
		jobs[i] = *jobModels[i].ToDomain()
	}
	return jobs
}

// Ensure GormJobRepository implements generation.JobRepository
var _ generation.JobRepository = (*GormJobRepository)(nil)
