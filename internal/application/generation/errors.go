package generation

import (
	"errors"

	"github.com/rpgsheets/backend/internal/domain/shared"
	infra "github.com/rpgsheets/backend/internal/infrastructure/printing"
)

// renderErrorCodes maps infrastructure render codes to domain codes
var renderErrorCodes = map[string]string{
	infra.ErrCodeRenderTimeout:     shared.CodeRenderTimeout,
	infra.ErrCodeRenderFailed:      shared.CodeRenderFailed,
	infra.ErrCodeInvalidHTML:       shared.CodeRenderFailed,
	infra.ErrCodeBinaryNotFound:    shared.CodeRenderFailed,
	infra.ErrCodeInvalidPaperSize:  shared.CodeRenderFailed,
	infra.ErrCodeStorageFailed:     shared.CodeStorageFailed,
	infra.ErrCodeInvalidOutputPath: shared.CodeStorageFailed,
	infra.ErrCodeArtifactNotFound:  shared.CodeNotFound,
	infra.ErrCodeCapacityExceeded:  shared.CodeCapacityExceeded,
}

// toDomainError converts infrastructure render errors to domain errors.
// Domain errors and unknown errors pass through unchanged.
func toDomainError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var renderErr *infra.RenderError
	if errors.As(err, &renderErr) {
		code, ok := renderErrorCodes[renderErr.Code]
		if !ok {
			code = shared.CodeRenderFailed
		}
		return shared.NewDomainError(code, renderErr.Message)
	}
	return err
}

// failureMessage is the user-facing error stored on a FAILED job
func failureMessage(err error) string {
	var domainErr *shared.DomainError
	if errors.As(toDomainError(err), &domainErr) {
		switch domainErr.Code {
		case shared.CodeRenderTimeout:
			return "PDF rendering timed out. Please try again."
		case shared.CodeCapacityExceeded:
			return "The rendering service is busy. Please try again later."
		case shared.CodeStorageFailed:
			return "Failed to save the PDF file. Please try again later."
		case shared.CodeNotFound:
			return domainErr.Message
		case shared.CodeRenderFailed:
			return "PDF generation failed. Please try again later."
		}
	}
	return "PDF generation failed due to an internal error."
}
