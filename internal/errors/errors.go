package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Infrastructure errors
	ErrCodeConfigLoad     ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodeAPIRequest     ErrorCode = "API_REQUEST_FAILED"
	ErrCodeAPIStatus      ErrorCode = "API_UNEXPECTED_STATUS"
	ErrCodeInstanceLookup ErrorCode = "INSTANCE_LOOKUP_FAILED"
	ErrCodeIngest         ErrorCode = "INGEST_FAILED"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// CollectorError represents a structured error with context
type CollectorError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Component string                 `json:"component,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"` // Original error
}

// Error implements the error interface
func (e *CollectorError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s: %s", e.Code, e.Component, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
}

// Unwrap returns the underlying error
func (e *CollectorError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *CollectorError) Is(target error) bool {
	if t, ok := target.(*CollectorError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *CollectorError) WithMetadata(key string, value interface{}) *CollectorError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// NewError creates a new CollectorError
func NewError(code ErrorCode, component, message string) *CollectorError {
	return &CollectorError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewErrorWithCause creates a new CollectorError with an underlying cause
func NewErrorWithCause(code ErrorCode, component, message string, cause error) *CollectorError {
	return &CollectorError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
		Details:   cause.Error(),
	}
}

// WrapError wraps an existing error with CollectorError structure
func WrapError(err error, code ErrorCode, component, message string) *CollectorError {
	if err == nil {
		return nil
	}

	return &CollectorError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// IsCollectorError checks if an error is a CollectorError
func IsCollectorError(err error) bool {
	var cErr *CollectorError
	return errors.As(err, &cErr)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var cErr *CollectorError
	if errors.As(err, &cErr) {
		return cErr.Code
	}
	return ErrCodeInternalError
}
