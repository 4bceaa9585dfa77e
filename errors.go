package viewplane

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of error
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeDenied     ErrorType = "denied"
	ErrorTypeStorage    ErrorType = "storage"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes used across the engine
const (
	ErrCodeFormNotFound      = "FORM_NOT_FOUND"
	ErrCodeFieldNotFound     = "FIELD_NOT_FOUND"
	ErrCodeDashboardNotFound = "DASHBOARD_NOT_FOUND"
	ErrCodePanelNotFound     = "PANEL_NOT_FOUND"
	ErrCodeThingNotFound     = "THING_NOT_FOUND"
	ErrCodeAccessDenied      = "ACCESS_DENIED"
	ErrCodeFieldResolve      = "FIELD_RESOLVE_FAILED"
	ErrCodeOverrideCorrupt   = "OVERRIDE_CORRUPT"
	ErrCodeStorageFailed     = "STORAGE_FAILED"
	ErrCodeControlUnknown    = "CONTROL_UNKNOWN"
	ErrCodeNodeUnknown       = "NODE_UNKNOWN"
	ErrCodeSendFailed        = "SEND_FAILED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// ViewError is the unified error type surfaced by the engine. NotFound and
// AccessDenied conditions on the request path deliberately return nil
// results instead of a ViewError so that field existence is never leaked;
// ViewError is reserved for genuinely broken inputs and storage failures.
type ViewError struct {
	Type    ErrorType      `json:"type"`
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Field   string         `json:"field,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *ViewError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("[%s:%s] field '%s': %s", e.Type, e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

func (e *ViewError) Unwrap() error {
	return e.Cause
}

// WithDetail adds a single detail to the error
func (e *ViewError) WithDetail(key string, value any) *ViewError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause attaches the underlying cause
func (e *ViewError) WithCause(cause error) *ViewError {
	e.Cause = cause
	return e
}

// WithField adds field context to the error
func (e *ViewError) WithField(field string) *ViewError {
	e.Field = field
	return e
}

// NewViewError creates a new ViewError
func NewViewError(errorType ErrorType, code, message string) *ViewError {
	return &ViewError{
		Type:    errorType,
		Code:    code,
		Message: message,
		Details: make(map[string]any),
	}
}

// NewStorageError creates a storage error with an underlying cause
func NewStorageError(message string, cause error) *ViewError {
	return &ViewError{
		Type:    ErrorTypeStorage,
		Code:    ErrCodeStorageFailed,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewOverrideCorruptError creates an error for an unreadable layout
// override record
func NewOverrideCorruptError(key string, cause error) *ViewError {
	return &ViewError{
		Type:    ErrorTypeValidation,
		Code:    ErrCodeOverrideCorrupt,
		Message: fmt.Sprintf("layout override record '%s' is corrupt", key),
		Cause:   cause,
		Details: map[string]any{"key": key},
	}
}

// NewFieldResolveError creates an error for a single field that failed to
// resolve during materialization
func NewFieldResolveError(field string, cause error) *ViewError {
	return &ViewError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeFieldResolve,
		Message: "field resolution failed",
		Field:   field,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// NewInternalError creates an internal error
func NewInternalError(message string, cause error) *ViewError {
	return &ViewError{
		Type:    ErrorTypeInternal,
		Code:    ErrCodeInternalError,
		Message: message,
		Cause:   cause,
		Details: make(map[string]any),
	}
}

// IsStorageError checks whether an error is a storage error
func IsStorageError(err error) bool {
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve.Type == ErrorTypeStorage
	}
	return false
}

// IsOverrideCorruptError checks whether an error marks a corrupt override
// record
func IsOverrideCorruptError(err error) bool {
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve.Code == ErrCodeOverrideCorrupt
	}
	return false
}

// IsValidationError checks whether an error is a validation error
func IsValidationError(err error) bool {
	var ve *ViewError
	if errors.As(err, &ve) {
		return ve.Type == ErrorTypeValidation
	}
	return false
}
