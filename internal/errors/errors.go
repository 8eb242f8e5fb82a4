package errors

import (
	"errors"
	"fmt"
)

// SiftError is the structured error type for docsift.
// It carries enough context for logging, CLI output and errors.Is matching.
type SiftError struct {
	// Code is the unique error code (e.g., "ERR_401_INVALID_FILTER").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Validation, Internal).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *SiftError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *SiftError) Unwrap() error {
	return e.Cause
}

// Is matches another SiftError by code.
func (e *SiftError) Is(target error) bool {
	if t, ok := target.(*SiftError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *SiftError) WithDetail(key, value string) *SiftError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *SiftError) WithSuggestion(suggestion string) *SiftError {
	e.Suggestion = suggestion
	return e
}

// New creates a new SiftError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *SiftError {
	return &SiftError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code string, format string, args ...any) *SiftError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// Wrap creates a SiftError from an existing error.
func Wrap(code string, err error) *SiftError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *SiftError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates an input validation error.
func ValidationError(message string, cause error) *SiftError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *SiftError {
	return New(ErrCodeInternal, message, cause)
}

// NotFound reports a document missing from the document-of-record.
func NotFound(id int64) *SiftError {
	return Newf(ErrCodeDocumentNotFound, "document %d not found", id).
		WithDetail("document_id", fmt.Sprint(id))
}

// as finds the first SiftError in the chain.
func as(err error) (*SiftError, bool) {
	var se *SiftError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if se, ok := as(err); ok {
		return se.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors abort the current operation, including batch evaluation.
func IsFatal(err error) bool {
	if se, ok := as(err); ok {
		return se.Severity == SeverityFatal
	}
	return false
}

// IsNotFound reports whether err is a document-not-found error.
func IsNotFound(err error) bool {
	return GetCode(err) == ErrCodeDocumentNotFound
}

// IsValidation reports whether err belongs to the validation category.
func IsValidation(err error) bool {
	return GetCategory(err) == CategoryValidation
}

// GetCode extracts the error code from a SiftError.
// Returns empty string if there is none in the chain.
func GetCode(err error) string {
	if se, ok := as(err); ok {
		return se.Code
	}
	return ""
}

// GetCategory extracts the category from a SiftError.
func GetCategory(err error) Category {
	if se, ok := as(err); ok {
		return se.Category
	}
	return ""
}
