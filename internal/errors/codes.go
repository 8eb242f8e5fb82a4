// Package errors provides structured error handling for docsift.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and index storage errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, index and database I/O errors.
	CategoryIO Category = "IO"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	ErrCodeIndexOpen     = "ERR_202_INDEX_OPEN"
	ErrCodeIndexLocked   = "ERR_203_INDEX_LOCKED"
	ErrCodeCorruptIndex  = "ERR_205_CORRUPT_INDEX"
	ErrCodeDatabase      = "ERR_206_DATABASE"
	ErrCodeReaderClosed  = "ERR_207_READER_CLOSED"
	ErrCodeSchemaVersion = "ERR_208_SCHEMA_VERSION"

	// Validation errors (400-499)
	ErrCodeInvalidInput     = "ERR_401_INVALID_INPUT"
	ErrCodeInvalidFilter    = "ERR_402_INVALID_FILTER"
	ErrCodeInvalidQuery     = "ERR_403_INVALID_QUERY"
	ErrCodeInvalidPattern   = "ERR_404_INVALID_PATTERN"
	ErrCodeDocumentNotFound = "ERR_405_DOCUMENT_NOT_FOUND"

	// Internal errors (500-599)
	ErrCodeInternal             = "ERR_501_INTERNAL"
	ErrCodeUnsupportedAlgorithm = "ERR_502_UNSUPPORTED_ALGORITHM"
	ErrCodeSearchFailed         = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed          = "ERR_505_INDEX_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "101" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeUnsupportedAlgorithm:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeIndexLocked:
		return true
	default:
		return false
	}
}
