package errors

import (
	"fmt"
)

// AskError is the structured error type for AskDocs.
// It provides rich context for error handling, logging, and user presentation.
type AskError struct {
	// Code is the unique error code (e.g., "ERR_401_UNPROCESSABLE_DOCUMENT").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Capability, etc.).
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
func (e *AskError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *AskError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with AskError.
func (e *AskError) Is(target error) bool {
	if t, ok := target.(*AskError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *AskError) WithDetail(key, value string) *AskError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *AskError) WithSuggestion(suggestion string) *AskError {
	e.Suggestion = suggestion
	return e
}

// New creates a new AskError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *AskError {
	return &AskError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates an AskError from an existing error.
// The error's message becomes the AskError message.
func Wrap(code string, err error) *AskError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *AskError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// UnprocessableDocument creates an error for a document whose content cannot
// be extracted. Ingestion of the offending document aborts; other documents
// in the same batch are unaffected.
func UnprocessableDocument(filename string, cause error) *AskError {
	return New(ErrCodeUnprocessableDocument,
		fmt.Sprintf("cannot process document %q", filename), cause).
		WithDetail("filename", filename)
}

// EmbeddingCapability creates an error for a failed embedding call.
// These are transient: retried with backoff, then surfaced.
func EmbeddingCapability(message string, cause error) *AskError {
	return New(ErrCodeEmbeddingCapability, message, cause)
}

// GenerationCapability creates an error for a failed answer-generation call.
// Same retry policy as embedding failures.
func GenerationCapability(message string, cause error) *AskError {
	return New(ErrCodeGenerationCapability, message, cause)
}

// StoreError creates an error for a failed corpus store operation.
func StoreError(message string, cause error) *AskError {
	return New(ErrCodeStoreFailed, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *AskError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if an error is retryable.
// Returns true if the error is an AskError with Retryable flag set.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AskError); ok {
		return ae.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if ae, ok := err.(*AskError); ok {
		return ae.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from an AskError.
// Returns empty string if not an AskError.
func GetCode(err error) string {
	if ae, ok := err.(*AskError); ok {
		return ae.Code
	}
	return ""
}
