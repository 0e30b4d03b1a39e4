package domain

import (
	"fmt"
	"time"
)

// EvaluationError represents an evaluation-level failure (configuration or
// data, never a clinical NOT_MET) surfaced to callers of the pipeline.
type EvaluationError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface.
func (e *EvaluationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios.
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodePolicyNotFound = "POLICY_NOT_FOUND"
	ErrCodeNoCriteria     = "NO_CRITERIA_CONFIGURED"
	ErrCodeCacheError     = "CACHE_ERROR"
	ErrCodeDatabaseError  = "DATABASE_ERROR"
	ErrCodeEvaluation     = "EVALUATION_ERROR"
	ErrCodeRateLimit      = "RATE_LIMIT_EXCEEDED"
	ErrCodeInternalServer = "INTERNAL_SERVER_ERROR"
	ErrCodeValidation     = "VALIDATION_ERROR"
)

// ValidationError represents input validation errors.
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewEvaluationError creates a new EvaluationError with timestamp.
func NewEvaluationError(code, message, details, requestID string) *EvaluationError {
	return &EvaluationError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
