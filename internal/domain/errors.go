package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Authentication Errors (AUTH_*)
	ErrorCodeAuthInvalid ErrorCode = "AUTH_INVALID"

	// Scheduling Errors (SCHEDULE_*)
	ErrorCodeNoQualifyingDay ErrorCode = "SCHEDULE_NO_QUALIFYING_DAY"

	// Subscription Errors (SUBSCRIPTION_*)
	ErrorCodeSubscriptionInvalidConfig     ErrorCode = "SUBSCRIPTION_INVALID_CONFIG"
	ErrorCodeSubscriptionNotFound          ErrorCode = "SUBSCRIPTION_NOT_FOUND"
	ErrorCodeSubscriptionInvalidTransition ErrorCode = "SUBSCRIPTION_INVALID_TRANSITION"
	ErrorCodeSubscriptionDuplicate         ErrorCode = "SUBSCRIPTION_DUPLICATE"

	// Order Errors (ORDER_*)
	ErrorCodeOrderNotFound          ErrorCode = "ORDER_NOT_FOUND"
	ErrorCodeOrderDuplicate         ErrorCode = "ORDER_DUPLICATE"
	ErrorCodeOrderInvalidTransition ErrorCode = "ORDER_INVALID_TRANSITION"

	// Order Backend Errors (BACKEND_*)
	ErrorCodeBackendTransient ErrorCode = "BACKEND_TRANSIENT"
	ErrorCodeBackendRejected  ErrorCode = "BACKEND_REJECTED"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so errors.Is works
// against the sentinel instances below.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a detail field to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsNotFoundError checks if an error represents a "not found" condition
func IsNotFoundError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeSubscriptionNotFound ||
		code == ErrorCodeOrderNotFound
}

// IsRetriable reports whether the failed step may succeed on the next pass.
// Only transient backend and database errors qualify; configuration and
// rejection errors need an operator.
func IsRetriable(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeBackendTransient ||
		code == ErrorCodeDatabaseError
}

// IsConfigurationError checks if a subscription's own data prevents scheduling
func IsConfigurationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeSubscriptionInvalidConfig ||
		code == ErrorCodeNoQualifyingDay
}

var (
	ErrAuthInvalid = NewDomainError(ErrorCodeAuthInvalid, "invalid authentication")

	ErrNoQualifyingDay = NewDomainError(ErrorCodeNoQualifyingDay, "no delivery day within search bound")

	ErrSubscriptionInvalidConfig     = NewDomainError(ErrorCodeSubscriptionInvalidConfig, "invalid subscription configuration")
	ErrSubscriptionNotFound          = NewDomainError(ErrorCodeSubscriptionNotFound, "subscription not found")
	ErrSubscriptionInvalidTransition = NewDomainError(ErrorCodeSubscriptionInvalidTransition, "subscription status transition not allowed")
	ErrDuplicateSubscription         = NewDomainError(ErrorCodeSubscriptionDuplicate, "subscription already exists for payment order")

	ErrOrderNotFound          = NewDomainError(ErrorCodeOrderNotFound, "delivery order not found")
	ErrDuplicateOrder         = NewDomainError(ErrorCodeOrderDuplicate, "delivery order already exists for shipping date")
	ErrOrderInvalidTransition = NewDomainError(ErrorCodeOrderInvalidTransition, "order status transition not allowed")

	ErrBackendTransient = NewDomainError(ErrorCodeBackendTransient, "order backend temporarily unavailable")
	ErrBackendRejected  = NewDomainError(ErrorCodeBackendRejected, "order backend rejected the order")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
