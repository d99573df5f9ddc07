package providers

import (
	"fmt"
)

// Error types surfaced by the transcript engine
const (
	ErrorTypeMalformedTranscript = "malformed_transcript"
	ErrorTypeIncompleteResponse  = "incomplete_response"
	ErrorTypeSelectorNotFound    = "selector_not_found"
	ErrorTypeAssertionFailed     = "assertion_failed"
)

// ProviderError is the base error type for parsing, selection and receipt checks
type ProviderError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Cause   error  `json:"cause,omitempty"`
}

// Sentinels for errors.Is; they match any ProviderError of the same Type.
var (
	ErrMalformedTranscript = &ProviderError{Type: ErrorTypeMalformedTranscript}
	ErrIncompleteResponse  = &ProviderError{Type: ErrorTypeIncompleteResponse}
	ErrSelectorNotFound    = &ProviderError{Type: ErrorTypeSelectorNotFound}
	ErrAssertionFailed     = &ProviderError{Type: ErrorTypeAssertionFailed}
)

// Error implements the error interface
func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements the error unwrapping interface
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// Is matches on Type so callers can test against the sentinels
func (e *ProviderError) Is(target error) bool {
	t, ok := target.(*ProviderError)
	if !ok {
		return false
	}
	return t.Type == e.Type
}

func newMalformedTranscriptError(format string, args ...any) *ProviderError {
	return &ProviderError{Type: ErrorTypeMalformedTranscript, Message: fmt.Sprintf(format, args...)}
}

func newIncompleteResponseError(format string, args ...any) *ProviderError {
	return &ProviderError{Type: ErrorTypeIncompleteResponse, Message: fmt.Sprintf(format, args...)}
}

// newSelectorNotFoundError names the expression that could not be located
func newSelectorNotFoundError(kind SelectorKind, expr string, cause error) *ProviderError {
	return &ProviderError{
		Type:    ErrorTypeSelectorNotFound,
		Message: fmt.Sprintf("Failed to find %s: %q", kind, expr),
		Cause:   cause,
	}
}

func newAssertionError(format string, args ...any) *ProviderError {
	return &ProviderError{Type: ErrorTypeAssertionFailed, Message: fmt.Sprintf(format, args...)}
}
