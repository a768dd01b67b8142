package printing

import (
	"context"
	"errors"
	"time"

	"github.com/rpgsheets/backend/internal/domain/generation"
)

// RenderRequest contains the parameters for rendering HTML to PDF
type RenderRequest struct {
	// HTML is a complete, self-contained document
	HTML string
	// Format defines the output paper dimensions
	Format generation.PageFormat
	// Orientation defines portrait or landscape
	Orientation generation.Orientation
	// Margins in millimeters
	Margins generation.Margins
	// PrintBackground prints background colors and images
	PrintBackground bool
	// Title for the PDF document metadata
	Title string
	// Timeout overrides the engine's default rendering timeout
	Timeout time.Duration
}

// RenderResult contains the output from PDF rendering
type RenderResult struct {
	// PDFData is the raw PDF file content
	PDFData []byte
	// PageCount is the number of pages in the PDF
	PageCount int
	// RenderDuration is how long the rendering took
	RenderDuration time.Duration
}

// PDFRenderer is a headless rendering engine turning HTML into PDF bytes.
// Implementations must acquire a fresh engine instance per Render call and
// release it before returning.
type PDFRenderer interface {
	// Render converts HTML content to a PDF document
	Render(ctx context.Context, req *RenderRequest) (*RenderResult, error)
	// Close releases any resources held by the renderer
	Close() error
}

// RenderError represents an error during PDF rendering or storage
type RenderError struct {
	Code    string
	Message string
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

// Error codes for rendering failures
const (
	ErrCodeRenderTimeout     = "RENDER_TIMEOUT"
	ErrCodeRenderFailed      = "RENDER_FAILED"
	ErrCodeInvalidHTML       = "INVALID_HTML"
	ErrCodeBinaryNotFound    = "BINARY_NOT_FOUND"
	ErrCodeInvalidPaperSize  = "INVALID_PAPER_SIZE"
	ErrCodeStorageFailed     = "STORAGE_FAILED"
	ErrCodeCapacityExceeded  = "CAPACITY_EXCEEDED"
	ErrCodeArtifactNotFound  = "ARTIFACT_NOT_FOUND"
	ErrCodeInvalidOutputPath = "INVALID_OUTPUT_PATH"
)

// NewRenderError creates a new RenderError
func NewRenderError(code, message string, cause error) *RenderError {
	return &RenderError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode returns the RenderError code carried by err, or "" if none.
func ErrorCode(err error) string {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// IsTimeout reports whether err is a render timeout
func IsTimeout(err error) bool {
	return ErrorCode(err) == ErrCodeRenderTimeout
}
