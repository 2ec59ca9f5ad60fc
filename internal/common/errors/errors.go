// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Drafting workflow error codes.
const (
	ErrCodeInsufficientCredit      ErrorCode = "INSUFFICIENT_CREDIT"
	ErrCodeNoRevisionsRemaining    ErrorCode = "NO_REVISIONS_REMAINING"
	ErrCodeAnalysisUnavailable     ErrorCode = "ANALYSIS_UNAVAILABLE"
	ErrCodeGenerationFailed        ErrorCode = "GENERATION_FAILED"
	ErrCodeAmbiguousTrackSelection ErrorCode = "AMBIGUOUS_TRACK_SELECTION"
	ErrCodeUnparsableField         ErrorCode = "UNPARSABLE_FIELD"
	ErrCodeMalformedModelResponse  ErrorCode = "MALFORMED_MODEL_RESPONSE"

	ErrCodeSessionNotFound     ErrorCode = "SESSION_NOT_FOUND"
	ErrCodeSessionPhaseInvalid ErrorCode = "SESSION_PHASE_INVALID"
	ErrCodeSessionFinalized    ErrorCode = "SESSION_FINALIZED"
	ErrCodePaymentMismatch     ErrorCode = "PAYMENT_MISMATCH"

	ErrCodeAnnouncementNotFound ErrorCode = "ANNOUNCEMENT_NOT_FOUND"
	ErrCodeDraftNotFound        ErrorCode = "DRAFT_NOT_FOUND"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeQueryExecutionFailed     ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeCacheUnavailable         ErrorCode = "CACHE_UNAVAILABLE"

	ErrCodeLLMTimeout             ErrorCode = "LLM_TIMEOUT"
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
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

// Is lets errors.Is match two StandardErrors by code.
func (e *StandardError) Is(target error) bool {
	var other *StandardError
	if errors.As(target, &other) {
		return e.Code == other.Code
	}
	return false
}

// CodeOf extracts the ErrorCode from err, or empty when err is not standardized.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ""
}

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// Error Constructors
// ==========================

// NewInsufficientCreditError creates a non-retryable ledger error. Never
// retried with different pricing.
func NewInsufficientCreditError(userID string, balance, price int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeInsufficientCredit,
		Message:   "Credit balance does not cover the selected tier",
		Details:   fmt.Sprintf("userId: %s, balance: %d, price: %d", userID, balance, price),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewNoRevisionsRemainingError creates a non-retryable ledger error.
func NewNoRevisionsRemainingError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeNoRevisionsRemaining,
		Message:   "No revisions remaining for this session",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAnalysisUnavailableError creates a retryable analyzer error. The
// announcement does not change between attempts, so retrying is safe.
func NewAnalysisUnavailableError(announcementID string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAnalysisUnavailable,
		Message:   "Announcement analysis is unavailable",
		Details:   fmt.Sprintf("announcementId: %s, error: %v", announcementID, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewGenerationFailedError creates a per-style generation error. An
// individual style failure never fails the whole composition pass.
func NewGenerationFailedError(style string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeGenerationFailed,
		Message:   "Draft generation failed",
		Details:   fmt.Sprintf("style: %s, error: %v", style, err),
		Retryable: true,
		Metadata:  map[string]interface{}{"style": style},
		Timestamp: time.Now().UTC(),
	}
}

// NewAmbiguousTrackSelectionError creates a non-retryable re-prompt error.
// The collector never guesses a track.
func NewAmbiguousTrackSelectionError(reply string, trackCount int) *StandardError {
	return &StandardError{
		Code:      ErrCodeAmbiguousTrackSelection,
		Message:   "Track selection could not be resolved",
		Details:   fmt.Sprintf("reply: %q, trackCount: %d", reply, trackCount),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewUnparsableFieldError creates a non-retryable extraction error. The field
// is left absent rather than recorded incorrectly.
func NewUnparsableFieldError(field, raw string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnparsableField,
		Message:   "Field value could not be parsed unambiguously",
		Details:   fmt.Sprintf("field: %s, raw: %q", field, raw),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewMalformedModelResponseError creates a non-retryable model response error.
// Callers fall back to treating the raw text as a human-readable message.
func NewMalformedModelResponseError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeMalformedModelResponse,
		Message:   "Model response could not be parsed as the declared JSON object",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionNotFoundError creates a non-retryable lookup error.
func NewSessionNotFoundError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionNotFound,
		Message:   "Drafting session not found",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionPhaseInvalidError creates a non-retryable phase transition error.
func NewSessionPhaseInvalidError(from, to string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionPhaseInvalid,
		Message:   "Session phase transition not permitted",
		Details:   fmt.Sprintf("from: %s, to: %s", from, to),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewSessionFinalizedError creates a non-retryable error for mutations on a
// finalized session.
func NewSessionFinalizedError(sessionID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSessionFinalized,
		Message:   "Session is finalized and read-only",
		Details:   fmt.Sprintf("sessionId: %s", sessionID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPaymentMismatchError creates a non-retryable payment event error.
func NewPaymentMismatchError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePaymentMismatch,
		Message:   "Payment event does not match the session",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAnnouncementNotFoundError creates a non-retryable lookup error.
func NewAnnouncementNotFoundError(announcementID, source string) *StandardError {
	return &StandardError{
		Code:      ErrCodeAnnouncementNotFound,
		Message:   "Announcement not found",
		Details:   fmt.Sprintf("announcementId: %s, source: %s", announcementID, source),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDraftNotFoundError creates a non-retryable lookup error.
func NewDraftNotFoundError(sessionID, style string) *StandardError {
	return &StandardError{
		Code:      ErrCodeDraftNotFound,
		Message:   "Draft not found for session",
		Details:   fmt.Sprintf("sessionId: %s, style: %s", sessionID, style),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewQueryExecutionFailedError creates a retryable query execution error.
func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeQueryExecutionFailed,
		Message:   "Database query execution error",
		Details:   fmt.Sprintf("operation: %s, error: %v", operation, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewCacheUnavailableError creates a retryable cache error.
func NewCacheUnavailableError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCacheUnavailable,
		Message:   "Requirements profile cache unavailable",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLMTimeoutError creates a retryable model call timeout error.
func NewLLMTimeoutError(operation string) *StandardError {
	return &StandardError{
		Code:      ErrCodeLLMTimeout,
		Message:   "Model call exceeded its timeout",
		Details:   fmt.Sprintf("operation: %s", operation),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewNotificationSendFailedError creates a retryable notification error.
func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("channel: %s, error: %v", channel, err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// Generic constructors

func NewBusinessRuleError(message, details string) *StandardError {
	return &StandardError{
		Code:      "BUSINESS_RULE_VIOLATION",
		Message:   message,
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// ==========================
// Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended retry count per error code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseConnectionFailed,
		ErrCodeQueryExecutionFailed,
		ErrCodeCacheUnavailable,
		ErrCodeNotificationSendFailed:
		return 3 // Retryable technical errors

	case ErrCodeAnalysisUnavailable,
		ErrCodeGenerationFailed:
		return 2 // Model-backed operations retry with backoff

	case ErrCodeLLMTimeout:
		return 1

	default:
		return 0 // Business errors: no retry
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CREDIT") || strings.Contains(codeStr, "REVISIONS") || strings.Contains(codeStr, "PAYMENT"):
		return "LEDGER"
	case strings.Contains(codeStr, "SESSION"):
		return "SESSION"
	case strings.Contains(codeStr, "DATABASE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "CACHE"):
		return "DATABASE"
	case strings.Contains(codeStr, "ANALYSIS") || strings.Contains(codeStr, "GENERATION") || strings.Contains(codeStr, "MODEL") || strings.Contains(codeStr, "LLM"):
		return "AI"
	case strings.Contains(codeStr, "TRACK") || strings.Contains(codeStr, "FIELD"):
		return "COLLECTION"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
