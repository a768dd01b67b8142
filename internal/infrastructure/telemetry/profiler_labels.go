package telemetry

import (
	"context"
	"slices"
	"strings"

	"github.com/grafana/pyroscope-go"
)

// Profiling label keys. Job and user ids are left out: one series per job
// would explode profile storage.
const (
	ProfilingLabelOperation    = "operation"
	ProfilingLabelDocumentType = "document_type"
	ProfilingLabelStyle        = "style"
)

// maxLabelValueLength truncates label values
const maxLabelValueLength = 64

var highCardinalityLabels = map[string]bool{
	"job_id":      true,
	"user_id":     true,
	"owner_id":    true,
	"request_id":  true,
	"trace_id":    true,
	"share_token": true,
}

// JobProfileLabels labels CPU and heap samples taken while a job renders
func JobProfileLabels(documentType, style string) map[string]string {
	return map[string]string{
		ProfilingLabelOperation:    "generate",
		ProfilingLabelDocumentType: documentType,
		ProfilingLabelStyle:        style,
	}
}

// WithProfilingLabels runs fn with pprof labels attached, so samples can be
// sliced by them in Pyroscope. Empty and high-cardinality labels are dropped.
func WithProfilingLabels(ctx context.Context, labels map[string]string, fn func(context.Context)) {
	pairs := sanitizeLabels(labels)
	if len(pairs) == 0 {
		fn(ctx)
		return
	}
	pyroscope.TagWrapper(ctx, pyroscope.Labels(pairs...), fn)
}

// sanitizeLabels returns deterministic key/value pairs
func sanitizeLabels(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	pairs := make([]string, 0, len(labels)*2)
	for _, key := range keys {
		value := labels[key]
		if value == "" || highCardinalityLabels[key] {
			continue
		}
		key = sanitizeLabelKey(key)
		if key == "" {
			continue
		}
		if len(value) > maxLabelValueLength {
			value = value[:maxLabelValueLength]
		}
		pairs = append(pairs, key, value)
	}
	return pairs
}

// sanitizeLabelKey lowercases the key and keeps only [a-z0-9_]
func sanitizeLabelKey(key string) string {
	key = strings.ToLower(strings.NewReplacer(" ", "_", "-", "_").Replace(key))
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return -1
	}, key)
}
