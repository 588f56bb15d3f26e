// internal/common/errors/errors.go
// Package errors provides standardized error handling for the case
// management core.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation            ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidTransition     ErrorCode = "INVALID_TRANSITION"
	ErrCodeCapacityExceeded      ErrorCode = "CAPACITY_EXCEEDED"
	ErrCodeNoEligibleDCA         ErrorCode = "NO_ELIGIBLE_DCA"
	ErrCodeConcurrencyConflict   ErrorCode = "CONCURRENCY_CONFLICT"
	ErrCodeCaseNotFound          ErrorCode = "CASE_NOT_FOUND"
	ErrCodeDCANotFound           ErrorCode = "DCA_NOT_FOUND"
	ErrCodeComplianceCheckFailed ErrorCode = "COMPLIANCE_CHECK_FAILED"

	ErrCodeDatabaseFailed     ErrorCode = "DATABASE_OPERATION_FAILED"
	ErrCodeNotificationFailed ErrorCode = "NOTIFICATION_PUBLISH_FAILED"
	ErrCodePredictionFailed   ErrorCode = "PREDICTION_SERVICE_FAILED"
	ErrCodeInternal           ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// NewValidationError creates a non-retryable validation error; callers
// retry with corrected input.
func NewValidationError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeValidation,
		Message:   "Input validation failed",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewInvalidTransitionError creates a non-retryable state machine
// error; the case state is untouched.
func NewInvalidTransitionError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidTransition,
		Message:   "Illegal case status transition",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewCapacityExceededError indicates the agency has no free slot; the
// allocation engine marks the candidate ineligible rather than retry.
func NewCapacityExceededError(dcaID string, requested int) *StandardError {
	return &StandardError{
		Code:      ErrCodeCapacityExceeded,
		Message:   "Agency has no free capacity slot",
		Details:   fmt.Sprintf("dcaId: %s, requested: %d", dcaID, requested),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoEligibleDCAError indicates no agency satisfies the allocation
// constraints; the case stays unallocated and is deferred.
func NewNoEligibleDCAError(caseID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoEligibleDCA,
		Message:   "No eligible agency for case",
		Details:   fmt.Sprintf("caseId: %s", caseID),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewConcurrencyConflictError indicates a lost race on capacity or
// status; callers retry the whole operation a bounded number of times.
func NewConcurrencyConflictError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConcurrencyConflict,
		Message:   "Concurrent mutation conflict",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCaseNotFoundError creates a non-retryable lookup error.
func NewCaseNotFoundError(caseID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeCaseNotFound,
		Message:   "Case not found",
		Details:   fmt.Sprintf("caseId: %s", caseID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDCANotFoundError creates a non-retryable lookup error.
func NewDCANotFoundError(dcaID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDCANotFound,
		Message:   "Agency not found",
		Details:   fmt.Sprintf("dcaId: %s", dcaID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewComplianceCheckFailedError blocks an ESCALATED->LEGAL transition.
func NewComplianceCheckFailedError(caseID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeComplianceCheckFailed,
		Message:   "Compliance check required before legal handover",
		Details:   fmt.Sprintf("caseId: %s", caseID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseError creates a retryable persistence error.
func NewDatabaseError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseFailed,
		Message:   "Database operation failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationFailedError creates a retryable publish error.
func NewNotificationFailedError(eventType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationFailed,
		Message:   "Notification event publish failed",
		Details:   fmt.Sprintf("type: %s, error: %s", eventType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewPredictionFailedError creates a retryable prediction-service
// error; predictions are advisory so callers usually degrade instead.
func NewPredictionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePredictionFailed,
		Message:   "Predictive scoring service error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseFailed, ErrCodeNotificationFailed, ErrCodePredictionFailed:
		return 3
	case ErrCodeConcurrencyConflict:
		return 2
	default:
		return 0 // business errors: no retry
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// CodeOf extracts the error code from err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Normalize ensures callers always observe a StandardError.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}
