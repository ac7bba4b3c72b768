package errors

import (
	"errors"
	"fmt"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeBusiness   ErrorType = "business"
	ErrorTypeInternal   ErrorType = "internal"
	ErrorTypeExternal   ErrorType = "external"
	ErrorTypeNotFound   ErrorType = "not_found"
	ErrorTypeForbidden  ErrorType = "forbidden"
	ErrorTypeIdentity   ErrorType = "identity"
	ErrorTypePolicy     ErrorType = "policy"
	ErrorTypeFraud      ErrorType = "fraud"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Cause      error                  `json:"-"`
	Retryable  bool                   `json:"retryable"`
	StatusCode int                    `json:"status_code"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Code:       code,
		Message:    message,
		Retryable:  false,
		StatusCode: 400,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "RESOURCE_NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		Retryable:  false,
		StatusCode: 404,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Code:       "INTERNAL_ERROR",
		Message:    message,
		Retryable:  true,
		StatusCode: 500,
	}
}

func NewExternalError(service, message string) *AppError {
	return &AppError{
		Type:       ErrorTypeExternal,
		Code:       "EXTERNAL_SERVICE_ERROR",
		Message:    fmt.Sprintf("%s service error: %s", service, message),
		Retryable:  true,
		StatusCode: 502,
		Details:    map[string]interface{}{"service": service},
	}
}

// NewIdentityNotFoundError signals that no identity is registered under the
// given identifier.
func NewIdentityNotFoundError(identityID string) *AppError {
	return &AppError{
		Type:       ErrorTypeIdentity,
		Code:       "IDENTITY_NOT_FOUND",
		Message:    "identity not found",
		Retryable:  false,
		StatusCode: 404,
		Details:    map[string]interface{}{"identity_id": identityID},
	}
}

// NewIdentityExpiredError signals that the identity exists but its validity
// window has passed.
func NewIdentityExpiredError(identityID string) *AppError {
	return &AppError{
		Type:       ErrorTypeIdentity,
		Code:       "IDENTITY_EXPIRED",
		Message:    "identity has expired",
		Retryable:  false,
		StatusCode: 401,
		Details:    map[string]interface{}{"identity_id": identityID},
	}
}

// NewInsufficientTierError carries both the held and the required tier.
func NewInsufficientTierError(held, required string) *AppError {
	return &AppError{
		Type:       ErrorTypeForbidden,
		Code:       "INSUFFICIENT_TIER",
		Message:    fmt.Sprintf("tier %s is below required tier %s", held, required),
		Retryable:  false,
		StatusCode: 403,
		Details:    map[string]interface{}{"held_tier": held, "required_tier": required},
	}
}

// NewPolicyDeniedError carries the denying policy's name and reason.
func NewPolicyDeniedError(policyName, reason string) *AppError {
	return &AppError{
		Type:       ErrorTypePolicy,
		Code:       "POLICY_DENIED",
		Message:    fmt.Sprintf("denied by policy %s: %s", policyName, reason),
		Retryable:  false,
		StatusCode: 403,
		Details:    map[string]interface{}{"policy": policyName, "reason": reason},
	}
}

// NewFraudBlockedError carries the names of the triggered fraud rules.
func NewFraudBlockedError(rules []string) *AppError {
	return &AppError{
		Type:       ErrorTypeFraud,
		Code:       "FRAUD_BLOCKED",
		Message:    "request blocked by fraud detection",
		Retryable:  false,
		StatusCode: 403,
		Details:    map[string]interface{}{"triggered_rules": rules},
	}
}

// NewUnknownAlertError signals a resolve attempt against an unknown alert id.
func NewUnknownAlertError(alertID string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Code:       "ALERT_NOT_FOUND",
		Message:    "alert not found",
		Retryable:  false,
		StatusCode: 404,
		Details:    map[string]interface{}{"alert_id": alertID},
	}
}

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetStatusCode extracts HTTP status code from error
func GetStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return 500
}
