package dto

import (
	"net/http"

	"github.com/rpgsheets/backend/internal/domain/shared"
)

// Domain error codes travel to clients unchanged. These are the codes only
// the HTTP layer produces.
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeUnauthorized is used when the caller identity is missing
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeRequestTooLarge is used when the body exceeds the limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable is used when a dependency is down
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
	// ErrCodeRateLimited is used when a client exceeds its request budget
	ErrCodeRateLimited = "RATE_LIMITED"

	ErrCodeValidation = shared.CodeValidation
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
	ErrCodeRateLimited:     http.StatusTooManyRequests,

	shared.CodeValidation:          http.StatusBadRequest,
	shared.CodeForbidden:           http.StatusForbidden,
	shared.CodeNotFound:            http.StatusNotFound,
	shared.CodeNotFoundOrExpired:   http.StatusNotFound,
	shared.CodeConcurrencyConflict: http.StatusConflict,
	shared.CodeInvalidState:        http.StatusUnprocessableEntity,
	shared.CodeCapacityExceeded:    http.StatusServiceUnavailable,
	shared.CodeRenderTimeout:       http.StatusGatewayTimeout,
	shared.CodeRenderFailed:        http.StatusInternalServerError,
	shared.CodeStorageFailed:       http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes are 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
