package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/shared"
)

// JobRepository defines the persistence operations for generation jobs.
// Every mutating method is a targeted conditional update so that concurrent
// writers touching different columns never lose each other's changes.
type JobRepository interface {
	// FindByID finds a job by ID
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// FindByShareToken finds the job currently holding token
	FindByShareToken(ctx context.Context, token string) (*Job, error)

	// FindByOwner returns one page of an owner's jobs and the total count
	FindByOwner(ctx context.Context, ownerID uuid.UUID, filter JobFilter) ([]Job, int64, error)

	// FindByStatus returns up to limit jobs in status, oldest first
	FindByStatus(ctx context.Context, status JobStatus, limit int) ([]Job, error)

	// FindExpired returns jobs with expires_at before now, oldest first
	FindExpired(ctx context.Context, now time.Time, offset, limit int) ([]Job, error)

	// Create inserts a new job
	Create(ctx context.Context, job *Job) error

	// SaveTransition persists the job's status and lifecycle fields only if
	// the stored status still equals from. Returns shared.ErrConcurrencyConflict
	// when another writer got there first or the job no longer exists.
	SaveTransition(ctx context.Context, job *Job, from JobStatus) error

	// UpdateProgress sets the progress column of an IN_PROGRESS job
	UpdateProgress(ctx context.Context, id uuid.UUID, progress int) error

	// SaveShare persists the share token fields of a COMPLETE job
	SaveShare(ctx context.Context, job *Job) error

	// IncrementDownload atomically bumps download_count and sets downloaded
	IncrementDownload(ctx context.Context, id uuid.UUID) error

	// Delete removes a job record
	Delete(ctx context.Context, id uuid.UUID) error

	// DeleteIfExpired removes the job only if it is still expired at now
	DeleteIfExpired(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

// JobFilter narrows owner job listings
type JobFilter struct {
	shared.Filter
	DocumentType *DocumentType
	Status       *JobStatus
	CharacterID  *uuid.UUID
}

// CharacterStore reads characters owned by the wider application
type CharacterStore interface {
	// FindByID returns shared.ErrNotFound when the character does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Character, error)
}

// OwnershipChecker decides whether a requester may act on a resource
type OwnershipChecker interface {
	Verify(ctx context.Context, requesterID, resourceOwnerID uuid.UUID) (bool, error)
}

// OwnerMatch grants access only when the requester is the resource owner
type OwnerMatch struct{}

// Verify compares the two ids
func (OwnerMatch) Verify(_ context.Context, requesterID, resourceOwnerID uuid.UUID) (bool, error) {
	return requesterID != uuid.Nil && requesterID == resourceOwnerID, nil
}
