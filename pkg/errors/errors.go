// Package errors defines the error taxonomy shared by the consistency
// manager, the auditor, and the admin API, plus the HTTP status mapping
// used by the latter.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound     = errors.New("document not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrDocumentBusy         = errors.New("document is locked by another operation")
	ErrStoreFailed          = errors.New("chunk store saga failed")
	ErrDeleteFailed         = errors.New("chunk delete saga failed")
	ErrCompensationFailed   = errors.New("saga compensation failed")
	ErrConsistencyViolation = errors.New("relational and vector stores disagree")
	ErrEmbeddingFailed      = errors.New("embedding generation failed")
	ErrJournalUnavailable   = errors.New("saga journal unavailable")
	ErrInternal             = errors.New("internal error")
	ErrTimeout              = errors.New("operation timed out")
)

// AppError pairs a sentinel with a human-readable message and the HTTP
// status the admin API returns for it.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrDocumentBusy):
		return http.StatusConflict
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
