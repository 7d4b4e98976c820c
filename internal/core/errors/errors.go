package errors

import (
	"time"

	v1 "github.com/eventinbox-lab/eventinbox/internal/api/v1"
)

// Error codes surfaced in the HTTP error envelope.
const (
	CodeValidationError   = "VALIDATION_ERROR"
	CodeInvalidCursor     = "INVALID_CURSOR"
	CodeNotFound          = "NOT_FOUND"
	CodeConflict          = "CONFLICT"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodeInternalError     = "INTERNAL_ERROR"
)

// ErrorInfo is the inner error object of the envelope.
type ErrorInfo struct {
	Code      string          `json:"code"`
	Message   string          `json:"message"`
	Details   []v1.FieldError `json:"details,omitempty"`
	Timestamp string          `json:"timestamp"`
	RequestID string          `json:"request_id,omitempty"`
}

// ErrorResponse is the JSON body for every non-2xx response.
type ErrorResponse struct {
	Error ErrorInfo `json:"error"`
}

// Envelope builds an ErrorResponse stamped with the current time.
func Envelope(code, message, requestID string, details ...v1.FieldError) ErrorResponse {
	return ErrorResponse{
		Error: ErrorInfo{
			Code:      code,
			Message:   message,
			Details:   details,
			Timestamp: time.Now().UTC().Format(v1.TimeFormat),
			RequestID: requestID,
		},
	}
}
