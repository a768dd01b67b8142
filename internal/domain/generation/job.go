package generation

import (
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/shared"
)

// Job tracks one PDF generation request from creation to reclamation.
type Job struct {
	shared.BaseAggregateRoot
	CharacterID      uuid.UUID
	OwnerID          uuid.UUID
	DocumentType     DocumentType
	Status           JobStatus
	Progress         int
	Options          GenerationOptions
	OutputPath       string
	OutputSizeBytes  int64
	ShareToken       string
	ShareExpiresAt   *time.Time
	ErrorMessage     string
	ExpiresAt        time.Time
	StartedAt        *time.Time
	CompletedAt      *time.Time
	GenerationTimeMs int64
	Attempts         int
	Downloaded       bool
	DownloadCount    int64
}

// Progress checkpoints reported while a job executes
const (
	ProgressStarted  = 10
	ProgressRendered = 30
	ProgressWritten  = 90
	ProgressDone     = 100
)

// NewJob creates a PENDING job that becomes reclaimable after retention.
func NewJob(
	characterID, ownerID uuid.UUID,
	docType DocumentType,
	options GenerationOptions,
	now time.Time,
	retention time.Duration,
) (*Job, error) {
	if characterID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "Character ID cannot be empty")
	}
	if ownerID == uuid.Nil {
		return nil, shared.NewDomainError(shared.CodeValidation, "Owner ID cannot be empty")
	}
	if !docType.IsValid() {
		return nil, shared.NewDomainError(shared.CodeValidation, "Invalid document type: "+docType.String())
	}
	if retention <= 0 {
		return nil, shared.NewDomainError(shared.CodeValidation, "Retention must be positive")
	}
	options = options.WithDefaults()
	if err := options.Validate(); err != nil {
		return nil, err
	}

	return &Job{
		BaseAggregateRoot: shared.NewBaseAggregateRootAt(now),
		CharacterID:       characterID,
		OwnerID:           ownerID,
		DocumentType:      docType,
		Status:            JobStatusPending,
		Options:           options,
		ExpiresAt:         now.Add(retention),
		Attempts:          1,
	}, nil
}

func (j *Job) transition(target JobStatus, now time.Time) error {
	if !j.Status.CanTransitionTo(target) {
		return shared.NewDomainError(shared.CodeInvalidState,
			"Cannot move job from "+j.Status.String()+" to "+target.String())
	}
	j.Status = target
	j.UpdatedAt = now
	j.IncrementVersion()
	return nil
}

// Start moves the job from PENDING to IN_PROGRESS
func (j *Job) Start(now time.Time) error {
	if err := j.transition(JobStatusInProgress, now); err != nil {
		return err
	}
	j.StartedAt = &now
	j.Progress = ProgressStarted
	return nil
}

// Complete marks the job as finished with the artifact location
func (j *Job) Complete(outputPath string, sizeBytes int64, now time.Time) error {
	if outputPath == "" {
		return shared.NewDomainError(shared.CodeValidation, "Output path cannot be empty")
	}
	if err := j.transition(JobStatusComplete, now); err != nil {
		return err
	}
	j.OutputPath = outputPath
	j.OutputSizeBytes = sizeBytes
	j.Progress = ProgressDone
	j.ErrorMessage = ""
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.GenerationTimeMs = now.Sub(*j.StartedAt).Milliseconds()
	}
	return nil
}

// Fail marks the job as failed with a human readable reason
func (j *Job) Fail(message string, now time.Time) error {
	if err := j.transition(JobStatusFailed, now); err != nil {
		return err
	}
	if message == "" {
		message = "generation failed"
	}
	j.ErrorMessage = message
	j.OutputPath = ""
	j.OutputSizeBytes = 0
	j.CompletedAt = &now
	if j.StartedAt != nil {
		j.GenerationTimeMs = now.Sub(*j.StartedAt).Milliseconds()
	}
	return nil
}

// Relaunch resets a FAILED job to PENDING for another attempt
func (j *Job) Relaunch(now time.Time) error {
	if j.Status != JobStatusFailed {
		return shared.NewDomainError(shared.CodeInvalidState,
			"Only failed jobs can be relaunched, current status: "+j.Status.String())
	}
	if err := j.transition(JobStatusPending, now); err != nil {
		return err
	}
	j.ErrorMessage = ""
	j.Progress = 0
	j.StartedAt = nil
	j.CompletedAt = nil
	j.GenerationTimeMs = 0
	j.Attempts++
	return nil
}

// IssueShare stores a share token valid until expiresAt, replacing any
// previously issued token.
func (j *Job) IssueShare(token string, expiresAt time.Time, now time.Time) error {
	if j.Status != JobStatusComplete {
		return shared.NewDomainError(shared.CodeInvalidState,
			"Share links can only be issued for complete jobs")
	}
	if token == "" {
		return shared.NewDomainError(shared.CodeValidation, "Share token cannot be empty")
	}
	if !expiresAt.After(now) {
		return shared.NewDomainError(shared.CodeValidation, "Share expiry must be in the future")
	}
	j.ShareToken = token
	j.ShareExpiresAt = &expiresAt
	j.UpdatedAt = now
	return nil
}

// RevokeShare clears the share token
func (j *Job) RevokeShare(now time.Time) {
	j.ShareToken = ""
	j.ShareExpiresAt = nil
	j.UpdatedAt = now
}

// ShareActive reports whether token is the job's current, unexpired token.
func (j *Job) ShareActive(token string, now time.Time) bool {
	if token == "" || j.ShareToken == "" || j.ShareExpiresAt == nil {
		return false
	}
	if j.Status != JobStatusComplete {
		return false
	}
	return j.ShareToken == token && now.Before(*j.ShareExpiresAt)
}

// IsExpired reports whether the job is due for reclamation
func (j *Job) IsExpired(now time.Time) bool {
	return j.ExpiresAt.Before(now)
}

// IsOwnedBy returns true if userID owns the job
func (j *Job) IsOwnedBy(userID uuid.UUID) bool {
	return j.OwnerID == userID
}

// HasOutput returns true if an artifact has been written
func (j *Job) HasOutput() bool {
	return j.OutputPath != ""
}

// IsComplete returns true if the job is complete
func (j *Job) IsComplete() bool {
	return j.Status == JobStatusComplete
}

// IsFailed returns true if the job failed
func (j *Job) IsFailed() bool {
	return j.Status == JobStatusFailed
}
