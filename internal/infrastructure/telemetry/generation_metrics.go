package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

// Outcome values carried by AttrJobOutcome
const (
	OutcomeComplete = "complete"
	OutcomeFailed   = "failed"
)

// GenerationMetrics holds the instruments for the sheet generation pipeline
type GenerationMetrics struct {
	jobsCreated   *Counter
	jobsFinished  *Counter
	renderTime    *Histogram
	downloads     *Counter
	sweptArtifact *Counter
}

// NewGenerationMetrics registers the generation instruments on meter
func NewGenerationMetrics(meter metric.Meter) (*GenerationMetrics, error) {
	created, err := NewCounter(meter, "generation.jobs.created", "Generation jobs accepted", "{job}")
	if err != nil {
		return nil, err
	}
	finished, err := NewCounter(meter, "generation.jobs.finished", "Generation jobs that reached a terminal state", "{job}")
	if err != nil {
		return nil, err
	}
	renderTime, err := NewHistogram(meter, HistogramOpts{
		Name:        "generation.jobs.duration",
		Description: "Time from job start to terminal state",
		Unit:        "s",
		Boundaries:  RenderDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	downloads, err := NewCounter(meter, "generation.downloads", "Artifacts served", "{download}")
	if err != nil {
		return nil, err
	}
	swept, err := NewCounter(meter, "generation.cleanup.removed", "Expired jobs removed by retention sweeps", "{job}")
	if err != nil {
		return nil, err
	}
	return &GenerationMetrics{
		jobsCreated:   created,
		jobsFinished:  finished,
		renderTime:    renderTime,
		downloads:     downloads,
		sweptArtifact: swept,
	}, nil
}

// JobCreated counts an accepted job
func (m *GenerationMetrics) JobCreated(ctx context.Context, documentType string) {
	m.jobsCreated.Inc(ctx, AttrDocumentType.String(documentType))
}

// JobCompleted counts a successful job and records its duration
func (m *GenerationMetrics) JobCompleted(ctx context.Context, documentType string, elapsed time.Duration) {
	m.finish(ctx, documentType, OutcomeComplete, elapsed)
}

// JobFailed counts a failed job and records its duration
func (m *GenerationMetrics) JobFailed(ctx context.Context, documentType string, elapsed time.Duration) {
	m.finish(ctx, documentType, OutcomeFailed, elapsed)
}

func (m *GenerationMetrics) finish(ctx context.Context, documentType, outcome string, elapsed time.Duration) {
	m.jobsFinished.Inc(ctx, AttrDocumentType.String(documentType), AttrJobOutcome.String(outcome))
	m.renderTime.RecordDuration(ctx, elapsed, AttrDocumentType.String(documentType), AttrJobOutcome.String(outcome))
}

// ArtifactDownloaded counts a served artifact, split by owner or share access
func (m *GenerationMetrics) ArtifactDownloaded(ctx context.Context, documentType string, viaShare bool) {
	access := "owner"
	if viaShare {
		access = "share"
	}
	m.downloads.Inc(ctx, AttrDocumentType.String(documentType), AttrAccess.String(access))
}

// ArtifactsSwept counts jobs removed by one retention sweep
func (m *GenerationMetrics) ArtifactsSwept(ctx context.Context, removed int) {
	if removed > 0 {
		m.sweptArtifact.Add(ctx, int64(removed))
	}
}
