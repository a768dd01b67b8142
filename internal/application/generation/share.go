package generation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
	"github.com/rpgsheets/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	// shareTokenBytes is the entropy of a share token before encoding
	shareTokenBytes = 32
	// DefaultShareMaxHours caps share link lifetime at 30 days
	DefaultShareMaxHours = 720
)

// ShareService issues, resolves and revokes share links for completed jobs.
type ShareService struct {
	jobs     generation.JobRepository
	clock    shared.Clock
	maxHours int
	logger   *zap.Logger
}

// NewShareService creates a new ShareService
func NewShareService(jobs generation.JobRepository, clock shared.Clock, maxHours int, logger *zap.Logger) *ShareService {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if maxHours <= 0 {
		maxHours = DefaultShareMaxHours
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShareService{
		jobs:     jobs,
		clock:    clock,
		maxHours: maxHours,
		logger:   logger.Named("share"),
	}
}

// Issue creates a share token valid for durationHours, replacing any token
// the job already had.
func (s *ShareService) Issue(ctx context.Context, jobID uuid.UUID, durationHours int) (*ShareResponse, error) {
	if durationHours < 1 || durationHours > s.maxHours {
		return nil, shared.NewDomainError(shared.CodeValidation,
			"Share duration must be between 1 and "+strconv.Itoa(s.maxHours)+" hours")
	}

	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError(shared.CodeNotFound, "Generation job not found")
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	token, err := newShareToken()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	expiresAt := now.Add(time.Duration(durationHours) * time.Hour)
	if err := job.IssueShare(token, expiresAt, now); err != nil {
		return nil, err
	}
	if err := s.jobs.SaveShare(ctx, job); err != nil {
		if errors.Is(err, shared.ErrConcurrencyConflict) {
			return nil, shared.NewDomainError(shared.CodeInvalidState,
				"Share links can only be issued for complete jobs")
		}
		return nil, fmt.Errorf("failed to save share link: %w", err)
	}

	s.logger.Info("share link issued",
		zap.String("job_id", job.ID.String()),
		zap.Time("expires_at", expiresAt))

	return &ShareResponse{
		JobID:     job.ID.String(),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// Resolve returns the job holding token if the token is current. Unknown,
// revoked and expired tokens all yield shared.ErrNotFoundOrExpired.
func (s *ShareService) Resolve(ctx context.Context, token string) (*generation.Job, error) {
	if token == "" {
		return nil, shared.ErrNotFoundOrExpired
	}

	job, err := s.jobs.FindByShareToken(ctx, token)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrNotFoundOrExpired
		}
		return nil, fmt.Errorf("failed to resolve share link: %w", err)
	}

	if !job.ShareActive(token, s.clock.Now()) {
		return nil, shared.ErrNotFoundOrExpired
	}
	return job, nil
}

// Revoke clears the job's share token. Revoking a job without one is a no-op.
func (s *ShareService) Revoke(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.NewDomainError(shared.CodeNotFound, "Generation job not found")
		}
		return fmt.Errorf("failed to get job: %w", err)
	}
	if job.ShareToken == "" {
		return nil
	}

	job.RevokeShare(s.clock.Now())
	if err := s.jobs.SaveShare(ctx, job); err != nil {
		return fmt.Errorf("failed to revoke share link: %w", err)
	}

	s.logger.Info("share link revoked", zap.String("job_id", job.ID.String()))
	return nil
}

// newShareToken returns 32 random bytes, base64url encoded without padding
func newShareToken() (string, error) {
	buf := make([]byte, shareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
