package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("Validation Error")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrSandboxSetup        = errors.New("sandbox setup failed")
	ErrUnavailable         = errors.New("unavailable")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
	Cause   error  // Optional: underlying failure, never shown to clients
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is/As.
func (e *AppError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// UnsupportedLanguage is returned for a language outside the supported set.
// It is raised before any sandbox resource is allocated.
func UnsupportedLanguage(language string) *AppError {
	return &AppError{
		Err:     ErrUnsupportedLanguage,
		Message: fmt.Sprintf("unsupported language %q", language),
		Field:   "language",
	}
}

// SandboxSetup wraps a provisioning failure (working directory, source file,
// container or process start) that happened before the program could run.
func SandboxSetup(op string, cause error) *AppError {
	return &AppError{
		Err:     ErrSandboxSetup,
		Message: fmt.Sprintf("sandbox setup failed during %s", op),
		Cause:   cause,
	}
}

// Unavailable reports a dependency this server was started without.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}
