// Package errors provides structured error handling for AskDocs.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and corpus storage errors
//   - 3XX: Remote capability errors (embedding, generation)
//   - 4XX: Validation errors (bad documents, bad queries)
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and corpus storage errors.
	CategoryIO Category = "IO"
	// CategoryCapability indicates remote capability (embedding/generation) errors.
	CategoryCapability Category = "CAPABILITY"
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
	ErrCodeCorruptCorpus = "ERR_202_CORRUPT_CORPUS"
	ErrCodeCorpusLocked  = "ERR_203_CORPUS_LOCKED"

	// Capability errors (300-399), retryable
	ErrCodeEmbeddingCapability  = "ERR_301_EMBEDDING_CAPABILITY"
	ErrCodeGenerationCapability = "ERR_302_GENERATION_CAPABILITY"
	ErrCodeCapabilityTimeout    = "ERR_303_CAPABILITY_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeUnprocessableDocument = "ERR_401_UNPROCESSABLE_DOCUMENT"
	ErrCodeUnsupportedFormat     = "ERR_402_UNSUPPORTED_FORMAT"
	ErrCodeDimensionMismatch     = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty            = "ERR_404_QUERY_EMPTY"

	// Internal errors (500-599)
	ErrCodeInternal    = "ERR_501_INTERNAL"
	ErrCodeStoreFailed = "ERR_502_STORE_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryCapability
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptCorpus, ErrCodeCorpusLocked:
		return SeverityFatal
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
// Remote capability failures are transient; everything else is not.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingCapability, ErrCodeGenerationCapability, ErrCodeCapabilityTimeout:
		return true
	}
	return false
}
