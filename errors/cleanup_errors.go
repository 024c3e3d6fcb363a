package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Stable wire error codes. These are part of the API contract and must not
// change between releases.
const (
	CodeExpired         = "CODE_EXPIRED"
	CodeInvalid         = "CODE_INVALID"
	RateLimited         = "RATE_LIMITED"
	IdentityNotFound    = "IDENTITY_NOT_FOUND"
	NotOrphaned         = "NOT_ORPHANED"
	TransactionFailed   = "TRANSACTION_FAILED"
	InvalidInput        = "INVALID_INPUT"
	DeliveryFailed      = "DELIVERY_FAILED"
	OperationInProgress = "OPERATION_IN_PROGRESS"
)

// CleanupError is a standardized protocol error carrying a stable wire code.
type CleanupError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`

	// RetryAfter is set only for RATE_LIMITED errors and is surfaced as the
	// Retry-After header by the API layer.
	RetryAfter time.Duration `json:"-"`
}

func (e *CleanupError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// AsCleanupError unwraps err to a *CleanupError, or nil.
func AsCleanupError(err error) *CleanupError {
	var ce *CleanupError
	if errors.As(err, &ce) {
		return ce
	}
	return nil
}

// HTTPStatus maps a wire code to its HTTP status.
func HTTPStatus(code string) int {
	switch code {
	case InvalidInput:
		return http.StatusBadRequest
	case IdentityNotFound:
		return http.StatusNotFound
	case OperationInProgress:
		return http.StatusConflict
	case NotOrphaned:
		return http.StatusConflict
	case CodeExpired, CodeInvalid:
		return http.StatusUnprocessableEntity
	case RateLimited:
		return http.StatusTooManyRequests
	case DeliveryFailed:
		return http.StatusBadGateway
	case TransactionFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func NewCodeExpired() *CleanupError {
	return &CleanupError{Code: CodeExpired, Message: "The verification code has expired. Request a new one."}
}

func NewCodeInvalid() *CleanupError {
	return &CleanupError{Code: CodeInvalid, Message: "The verification code is not valid."}
}

func NewRateLimited(retryAfter time.Duration) *CleanupError {
	secs := int(retryAfter.Round(time.Second).Seconds())
	if secs < 1 {
		secs = 1
	}
	return &CleanupError{
		Code:       RateLimited,
		Message:    "Too many requests. Try again later.",
		Details:    map[string]any{"retryAfterSeconds": secs},
		RetryAfter: retryAfter,
	}
}

func NewIdentityNotFound() *CleanupError {
	return &CleanupError{Code: IdentityNotFound, Message: "No identity exists for this email address."}
}

func NewNotOrphaned() *CleanupError {
	return &CleanupError{Code: NotOrphaned, Message: "This identity has completed registration. Sign in normally."}
}

func NewTransactionFailed(detail string) *CleanupError {
	e := &CleanupError{Code: TransactionFailed, Message: "The operation could not be completed. Try again."}
	if detail != "" {
		e.Details = map[string]any{"reason": detail}
	}
	return e
}

func NewInvalidInput(detail string) *CleanupError {
	e := &CleanupError{Code: InvalidInput, Message: "The request is malformed."}
	if detail != "" {
		e.Details = map[string]any{"reason": detail}
	}
	return e
}

func NewDeliveryFailed() *CleanupError {
	return &CleanupError{Code: DeliveryFailed, Message: "The verification code could not be delivered. Try again."}
}

func NewOperationInProgress() *CleanupError {
	return &CleanupError{Code: OperationInProgress, Message: "A cleanup operation is already in progress for this identity."}
}
