package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
	"go.uber.org/zap"
)

// logger for model conversion errors
var modelLogger = zap.L().Named("generation.models")

// GenerationJobModel is the GORM model for the generation_jobs table
type GenerationJobModel struct {
	AggregateModel
	CharacterID      uuid.UUID  `gorm:"column:character_id;type:uuid;not null;index"`
	OwnerID          uuid.UUID  `gorm:"column:owner_id;type:uuid;not null;index"`
	DocumentType     string     `gorm:"column:document_type;type:varchar(32);not null"`
	Status           string     `gorm:"type:varchar(20);not null;default:'PENDING';index"`
	Progress         int        `gorm:"not null;default:0"`
	OptionsJSON      string     `gorm:"column:generation_options;type:jsonb;not null"`
	OutputPath       string     `gorm:"column:output_path;type:text"`
	OutputSizeBytes  int64      `gorm:"column:output_size_bytes;not null;default:0"`
	ShareToken       *string    `gorm:"column:share_token;type:varchar(64);uniqueIndex"`
	ShareExpiresAt   *time.Time `gorm:"column:share_expires_at"`
	ErrorMessage     string     `gorm:"column:error_message;type:text"`
	ExpiresAt        time.Time  `gorm:"column:expires_at;not null;index"`
	StartedAt        *time.Time `gorm:"column:started_at"`
	CompletedAt      *time.Time `gorm:"column:completed_at"`
	GenerationTimeMs int64      `gorm:"column:generation_time_ms;not null;default:0"`
	Attempts         int        `gorm:"not null;default:1"`
	Downloaded       bool       `gorm:"not null;default:false"`
	DownloadCount    int64      `gorm:"column:download_count;not null;default:0"`
}

// TableName returns the table name for GenerationJobModel
func (GenerationJobModel) TableName() string {
	return "generation_jobs"
}

// ToDomain converts GenerationJobModel to domain Job
func (m *GenerationJobModel) ToDomain() *generation.Job {
	job := &generation.Job{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		CharacterID:       m.CharacterID,
		OwnerID:           m.OwnerID,
		DocumentType:      generation.DocumentType(m.DocumentType),
		Status:            generation.JobStatus(m.Status),
		Progress:          m.Progress,
		Options:           generation.DefaultGenerationOptions(),
		OutputPath:        m.OutputPath,
		OutputSizeBytes:   m.OutputSizeBytes,
		ShareExpiresAt:    m.ShareExpiresAt,
		ErrorMessage:      m.ErrorMessage,
		ExpiresAt:         m.ExpiresAt,
		StartedAt:         m.StartedAt,
		CompletedAt:       m.CompletedAt,
		GenerationTimeMs:  m.GenerationTimeMs,
		Attempts:          m.Attempts,
		Downloaded:        m.Downloaded,
		DownloadCount:     m.DownloadCount,
	}
	if m.ShareToken != nil {
		job.ShareToken = *m.ShareToken
	}
	if m.OptionsJSON != "" {
		var opts generation.GenerationOptions
		if err := json.Unmarshal([]byte(m.OptionsJSON), &opts); err != nil {
			modelLogger.Warn("failed to parse generation_options JSON",
				zap.String("job_id", m.ID.String()),
				zap.String("raw_json", m.OptionsJSON),
				zap.Error(err))
		} else {
			job.Options = opts.WithDefaults()
		}
	}
	return job
}

// GenerationJobModelFromDomain creates a GenerationJobModel from domain Job
func GenerationJobModelFromDomain(j *generation.Job) *GenerationJobModel {
	m := &GenerationJobModel{
		CharacterID:      j.CharacterID,
		OwnerID:          j.OwnerID,
		DocumentType:     string(j.DocumentType),
		Status:           string(j.Status),
		Progress:         j.Progress,
		OutputPath:       j.OutputPath,
		OutputSizeBytes:  j.OutputSizeBytes,
		ShareToken:       NullableString(j.ShareToken),
		ShareExpiresAt:   j.ShareExpiresAt,
		ErrorMessage:     j.ErrorMessage,
		ExpiresAt:        j.ExpiresAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
		GenerationTimeMs: j.GenerationTimeMs,
		Attempts:         j.Attempts,
		Downloaded:       j.Downloaded,
		DownloadCount:    j.DownloadCount,
	}
	if b, err := json.Marshal(j.Options); err == nil {
		m.OptionsJSON = string(b)
	} else {
		m.OptionsJSON = "{}"
	}
	m.FromDomainAggregateRoot(j.BaseAggregateRoot)
	return m
}

// NullableString maps "" to NULL so unique indexes ignore unset values
func NullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
