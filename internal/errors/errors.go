package errors

import (
	"errors"
	"fmt"
	"time"
)

/**
 * Custom error types for the HealthScan scan worker
 *
 * Candidate-level errors are recovered inside the ensemble and only logged;
 * fatal errors surface to the queue consumer and the caller.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Candidate-level errors (recovered locally, never abort a request)
	ErrorImageDecode        ErrorCode = "IMAGE_DECODE"
	ErrorEngineUnavailable  ErrorCode = "ENGINE_UNAVAILABLE"
	ErrorRecognitionTimeout ErrorCode = "RECOGNITION_TIMEOUT"

	// Fatal errors (surface to the caller)
	ErrorAllEnginesFailed        ErrorCode = "ALL_ENGINES_FAILED"
	ErrorUnsupportedMimeType     ErrorCode = "UNSUPPORTED_MIME_TYPE"
	ErrorRequestDeadlineExceeded ErrorCode = "REQUEST_DEADLINE_EXCEEDED"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"
)

// ScanError represents a structured processing error
type ScanError struct {
	Code      ErrorCode
	Message   string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ScanError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScanError) Unwrap() error {
	return e.Cause
}

// IsCode reports whether err is (or wraps) a ScanError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *ScanError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// Factory functions for common errors

func NewImageDecodeError(profileID string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorImageDecode,
		Message:   fmt.Sprintf("Failed to decode image for profile: %s", profileID),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"profile_id": profileID,
		},
		Cause: cause,
	}
}

func NewEngineUnavailableError(engineID string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorEngineUnavailable,
		Message:   fmt.Sprintf("Recognition engine unavailable: %s", engineID),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine_id": engineID,
		},
		Cause: cause,
	}
}

func NewRecognitionTimeoutError(engineID, profileID, mode string, timeout time.Duration) *ScanError {
	return &ScanError{
		Code:      ErrorRecognitionTimeout,
		Message:   fmt.Sprintf("Recognition timed out after %v", timeout),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"engine_id":  engineID,
			"profile_id": profileID,
			"mode":       mode,
			"timeout":    timeout.String(),
		},
	}
}

func NewAllEnginesFailedError(attempted int) *ScanError {
	return &ScanError{
		Code:      ErrorAllEnginesFailed,
		Message:   "No recognition candidate could be produced for this document",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"candidates_attempted": attempted,
		},
	}
}

func NewUnsupportedMimeTypeError(mimeType string) *ScanError {
	return &ScanError{
		Code:      ErrorUnsupportedMimeType,
		Message:   fmt.Sprintf("Unsupported MIME type: %s", mimeType),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"mime_type": mimeType,
		},
	}
}

func NewRequestDeadlineExceededError(deadline time.Duration) *ScanError {
	return &ScanError{
		Code:      ErrorRequestDeadlineExceeded,
		Message:   fmt.Sprintf("Request deadline of %v expired before any candidate completed", deadline),
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"deadline": deadline.String(),
		},
	}
}

func NewStorageFailedError(jobID string, cause error) *ScanError {
	return &ScanError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store processing results",
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"job_id": jobID,
		},
		Cause: cause,
	}
}

// ToMap converts error to map for database storage
func (e *ScanError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
