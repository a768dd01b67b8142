package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError carrying the same code, so that
// errors.Is(err, ErrNotFound) matches any NOT_FOUND error regardless of message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Error codes
const (
	CodeValidation          = "VALIDATION_ERROR"
	CodeNotFound            = "NOT_FOUND"
	CodeForbidden           = "FORBIDDEN"
	CodeInvalidState        = "INVALID_STATE"
	CodeConcurrencyConflict = "CONCURRENCY_CONFLICT"
	CodeRenderTimeout       = "RENDER_TIMEOUT"
	CodeRenderFailed        = "RENDER_FAILED"
	CodeStorageFailed       = "STORAGE_FAILED"
	CodeCapacityExceeded    = "CAPACITY_EXCEEDED"
	CodeNotFoundOrExpired   = "NOT_FOUND_OR_EXPIRED"
)

// Common domain errors
var (
	ErrValidation          = NewDomainError(CodeValidation, "Invalid input provided")
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrForbidden           = NewDomainError(CodeForbidden, "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError(CodeInvalidState, "Operation not allowed in current state")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrRenderTimeout       = NewDomainError(CodeRenderTimeout, "Document rendering timed out")
	ErrRenderFailed        = NewDomainError(CodeRenderFailed, "Document rendering failed")
	ErrStorageFailed       = NewDomainError(CodeStorageFailed, "Failed to store document")
	ErrCapacityExceeded    = NewDomainError(CodeCapacityExceeded, "Rendering capacity exceeded, try again later")
	// ErrNotFoundOrExpired is deliberately the only outcome of a failed share
	// token lookup.
	ErrNotFoundOrExpired = NewDomainError(CodeNotFoundOrExpired, "Share link not found or expired")
)
