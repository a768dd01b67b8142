package generation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rpgsheets/backend/internal/domain/generation"
	infra "github.com/rpgsheets/backend/internal/infrastructure/printing"
)

// HTMLRenderer turns a character into a self-contained HTML document
type HTMLRenderer interface {
	RenderDocument(
		character *generation.Character,
		systemCode generation.SystemCode,
		docType generation.DocumentType,
		style generation.Style,
	) string
}

// DocumentRenderer writes a PDF for an HTML document
type DocumentRenderer interface {
	RenderToFile(ctx context.Context, html, outputPath string, opts infra.RenderOptions) (int64, error)
}

// SlotRunner bounds how many renders run at once
type SlotRunner interface {
	WithSlot(ctx context.Context, fn func(ctx context.Context) error) error
}

// Dispatcher hands a job to the worker queue without blocking
type Dispatcher interface {
	Submit(jobID uuid.UUID) error
}

// ArtifactMirror keeps an off-host copy of generated PDFs
type ArtifactMirror interface {
	Upload(ctx context.Context, relPath, localPath string) error
	Delete(ctx context.Context, relPath string) error
}

// Recorder receives lifecycle measurements
type Recorder interface {
	JobCreated(ctx context.Context, documentType string)
	JobCompleted(ctx context.Context, documentType string, elapsed time.Duration)
	JobFailed(ctx context.Context, documentType string, elapsed time.Duration)
	ArtifactDownloaded(ctx context.Context, documentType string, viaShare bool)
	ArtifactsSwept(ctx context.Context, removed int)
}

type nopRecorder struct{}

func (nopRecorder) JobCreated(context.Context, string)                  {}
func (nopRecorder) JobCompleted(context.Context, string, time.Duration) {}
func (nopRecorder) JobFailed(context.Context, string, time.Duration)    {}
func (nopRecorder) ArtifactDownloaded(context.Context, string, bool)    {}
func (nopRecorder) ArtifactsSwept(context.Context, int)                 {}
