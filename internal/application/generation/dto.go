package generation

import (
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
)

// =============================================================================
// Job DTOs
// =============================================================================

// CreateJobRequest represents a request to generate a document for a character
type CreateJobRequest struct {
	CharacterID  uuid.UUID   `json:"character_id" validate:"required"`
	OwnerID      uuid.UUID   `json:"-" validate:"required"`
	DocumentType string      `json:"document_type" validate:"required,oneof=CHARACTER_SHEET NPC_SHEET REFERENCE_CARD MOVES_GUIDE CONDITIONS_TRACKER SESSION_NOTES"`
	Options      *OptionsDTO `json:"options"`
}

// OptionsDTO carries generation options. Unset fields take defaults.
type OptionsDTO struct {
	Format          string      `json:"format" validate:"omitempty,oneof=A4 A5 LETTER"`
	Orientation     string      `json:"orientation" validate:"omitempty,oneof=PORTRAIT LANDSCAPE"`
	Style           string      `json:"style" validate:"omitempty,oneof=CLASSIC MINIMAL PRINTER_FRIENDLY"`
	Margins         *MarginsDTO `json:"margins"`
	PrintBackground *bool       `json:"print_background"`
}

// MarginsDTO represents page margins in millimeters
type MarginsDTO struct {
	Top    int `json:"top" validate:"min=0,max=50"`
	Right  int `json:"right" validate:"min=0,max=50"`
	Bottom int `json:"bottom" validate:"min=0,max=50"`
	Left   int `json:"left" validate:"min=0,max=50"`
}

// toDomain converts the DTO, filling defaults for anything unset
func (o *OptionsDTO) toDomain() generation.GenerationOptions {
	opts := generation.DefaultGenerationOptions()
	if o == nil {
		return opts
	}
	opts.Format = generation.PageFormat(o.Format)
	opts.Orientation = generation.Orientation(o.Orientation)
	opts.Style = generation.Style(o.Style)
	if o.Margins != nil {
		opts.Margins = generation.Margins{
			Top:    o.Margins.Top,
			Right:  o.Margins.Right,
			Bottom: o.Margins.Bottom,
			Left:   o.Margins.Left,
		}
	}
	if o.PrintBackground != nil {
		opts.PrintBackground = *o.PrintBackground
	}
	return opts.WithDefaults()
}

// JobFilter narrows an owner's job listing
type JobFilter struct {
	DocumentType string     `form:"document_type" validate:"omitempty,oneof=CHARACTER_SHEET NPC_SHEET REFERENCE_CARD MOVES_GUIDE CONDITIONS_TRACKER SESSION_NOTES"`
	Status       string     `form:"status" validate:"omitempty,oneof=PENDING IN_PROGRESS COMPLETE FAILED"`
	CharacterID  *uuid.UUID `form:"character_id"`
}

// Pagination selects one page of a listing
type Pagination struct {
	Page     int    `form:"page" validate:"omitempty,min=1"`
	PageSize int    `form:"page_size" validate:"omitempty,min=1,max=100"`
	OrderBy  string `form:"order_by"`
	OrderDir string `form:"order_dir" validate:"omitempty,oneof=asc desc ASC DESC"`
}

// JobResponse represents a generation job
type JobResponse struct {
	ID               string     `json:"id"`
	CharacterID      string     `json:"character_id"`
	OwnerID          string     `json:"owner_id"`
	DocumentType     string     `json:"document_type"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	Options          OptionsDTO `json:"options"`
	OutputSizeBytes  int64      `json:"output_size_bytes,omitempty"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	Shared           bool       `json:"shared"`
	ShareExpiresAt   *time.Time `json:"share_expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ExpiresAt        time.Time  `json:"expires_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	GenerationTimeMs int64      `json:"generation_time_ms,omitempty"`
	Attempts         int        `json:"attempts"`
	Downloaded       bool       `json:"downloaded"`
	DownloadCount    int64      `json:"download_count"`
}

// JobStatusResponse is the read-only progress view of a job
type JobStatusResponse struct {
	ID               string     `json:"id"`
	Status           string     `json:"status"`
	Progress         int        `json:"progress"`
	ErrorMessage     string     `json:"error_message,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	GenerationTimeMs int64      `json:"generation_time_ms,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at"`
	Attempts         int        `json:"attempts"`
}

// =============================================================================
// Share and download DTOs
// =============================================================================

// ShareRequest represents a request to issue a share link
type ShareRequest struct {
	DurationHours int `json:"duration_hours" binding:"required"`
}

// ShareResponse carries a freshly issued share token
type ShareResponse struct {
	JobID     string    `json:"job_id"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DownloadRequest identifies an artifact and the caller's claim to it.
// Either JobID with an owner RequesterID, or a ShareToken, or both.
type DownloadRequest struct {
	JobID       uuid.UUID
	RequesterID uuid.UUID
	ShareToken  string
}

// DownloadResult is an open artifact stream. The caller must close Content.
type DownloadResult struct {
	JobID       uuid.UUID
	FileName    string
	ContentType string
	Size        int64
	Content     io.ReadCloser
}

// SweepResponse reports one cleanup pass
type SweepResponse struct {
	Removed int       `json:"removed"`
	At      time.Time `json:"at"`
}

// =============================================================================
// Mapping
// =============================================================================

func toOptionsDTO(o generation.GenerationOptions) OptionsDTO {
	printBackground := o.PrintBackground
	return OptionsDTO{
		Format:      o.Format.String(),
		Orientation: o.Orientation.String(),
		Style:       o.Style.String(),
		Margins: &MarginsDTO{
			Top:    o.Margins.Top,
			Right:  o.Margins.Right,
			Bottom: o.Margins.Bottom,
			Left:   o.Margins.Left,
		},
		PrintBackground: &printBackground,
	}
}

func toJobResponse(j *generation.Job) *JobResponse {
	return &JobResponse{
		ID:               j.ID.String(),
		CharacterID:      j.CharacterID.String(),
		OwnerID:          j.OwnerID.String(),
		DocumentType:     j.DocumentType.String(),
		Status:           j.Status.String(),
		Progress:         j.Progress,
		Options:          toOptionsDTO(j.Options),
		OutputSizeBytes:  j.OutputSizeBytes,
		ErrorMessage:     j.ErrorMessage,
		Shared:           j.ShareToken != "",
		ShareExpiresAt:   j.ShareExpiresAt,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		ExpiresAt:        j.ExpiresAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		GenerationTimeMs: j.GenerationTimeMs,
		Attempts:         j.Attempts,
		Downloaded:       j.Downloaded,
		DownloadCount:    j.DownloadCount,
	}
}

func toStatusResponse(j *generation.Job) *JobStatusResponse {
	return &JobStatusResponse{
		ID:               j.ID.String(),
		Status:           j.Status.String(),
		Progress:         j.Progress,
		ErrorMessage:     j.ErrorMessage,
		CreatedAt:        j.CreatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		GenerationTimeMs: j.GenerationTimeMs,
		ExpiresAt:        j.ExpiresAt,
		Attempts:         j.Attempts,
	}
}
