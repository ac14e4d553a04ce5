package domain

import (
	"errors"
	"fmt"
)

// Application error codes
const (
	EINVALID      = "invalid"      // Invalid input or validation failure
	EUNAUTHORIZED = "unauthorized" // Authentication required
	EFORBIDDEN    = "forbidden"    // Permission denied
	ENOTFOUND     = "not_found"    // Resource not found
	ECONFLICT     = "conflict"     // Resource conflict (e.g., duplicate)
	ERATELIMIT    = "rate_limit"   // Rate limit exceeded
	EINTERNAL     = "internal"     // Internal server error
	ENOTIMPL      = "not_impl"     // Not implemented
	EPAYMENT      = "payment"      // Payment required
	EUNAVAILABLE  = "unavailable"  // Dependency unavailable
)

// Business reasons surfaced to API clients alongside the error code.
// Clients branch on these (upgrade prompts, toasts), so they are part of the API.
const (
	ReasonUnauthorized      = "UNAUTHORIZED"
	ReasonForbidden         = "FORBIDDEN"
	ReasonOnlyVolunteer     = "ONLY_VOLUNTEER"
	ReasonOnlyNGO           = "ONLY_NGO"
	ReasonInvalidBody       = "INVALID_BODY"
	ReasonPlanRoleMismatch  = "PLAN_ROLE_MISMATCH"
	ReasonLimitReached      = "LIMIT_REACHED"
	ReasonPlanExpired       = "PLAN_EXPIRED"
	ReasonInvalidPlan       = "INVALID_PLAN"
	ReasonAlreadyApplied    = "ALREADY_APPLIED"
	ReasonJobUnavailable    = "JOB_UNAVAILABLE"
	ReasonInvalidSignature  = "INVALID_SIGNATURE"
	ReasonProfileComplete   = "PROFILE_COMPLETE"
	ReasonRoleRequired      = "ROLE_REQUIRED"
	ReasonSameRole          = "SAME_ROLE"
	ReasonNotPaidPlan       = "NOT_PAID_PLAN"
	ReasonOrderNotFound     = "ORDER_NOT_FOUND"
	ReasonBillingDisabled   = "BILLING_DISABLED"
	ReasonInvalidTransition = "INVALID_TRANSITION"
	ReasonPaymentIncomplete = "PAYMENT_INCOMPLETE"
)

// Error represents an application error with structured information.
type Error struct {
	Code    string         // Machine-readable error class, drives the HTTP status
	Reason  string         // Business reason shown to API clients (e.g. LIMIT_REACHED)
	Op      string         // Operation that failed (e.g., "ApplicationService.Apply")
	Message string         // Human-readable message
	Details map[string]any // Optional structured context (e.g. active/limit)
	Err     error          // Underlying error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithReason sets the business reason and returns the error for chaining.
func (e *Error) WithReason(reason string) *Error {
	e.Reason = reason
	return e
}

// WithDetail attaches a structured detail and returns the error for chaining.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Errorf creates a new Error with the given code, operation, and formatted message.
func Errorf(code, op, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an existing error with additional context.
func Wrap(err error, code, op, message string) *Error {
	return &Error{
		Code:    code,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the root error, or EINTERNAL if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorReason returns the business reason of the error, if any.
func ErrorReason(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// ErrorDetails returns structured details attached to the error, if any.
func ErrorDetails(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) && e.Code != EINTERNAL {
		return e.Details
	}
	return nil
}

// ErrorMessage returns the human-readable message of the error.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		// For internal errors, return generic message
		if e.Code == EINTERNAL {
			return "An internal error occurred. Please try again later."
		}
		return e.Message
	}
	return "An internal error occurred. Please try again later."
}

// ErrorOp returns the operation of the root error, if any.
func ErrorOp(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return ""
}

// Convenience constructors for common error types

// NotFound creates a not found error.
func NotFound(op, resource, id string) *Error {
	return &Error{
		Code:    ENOTFOUND,
		Op:      op,
		Message: fmt.Sprintf("%s with ID %q not found", resource, id),
	}
}

// Invalid creates a validation error.
func Invalid(op, message string) *Error {
	return &Error{
		Code:    EINVALID,
		Reason:  ReasonInvalidBody,
		Op:      op,
		Message: message,
	}
}

// Unauthorized creates an authentication error.
func Unauthorized(op, message string) *Error {
	return &Error{
		Code:    EUNAUTHORIZED,
		Reason:  ReasonUnauthorized,
		Op:      op,
		Message: message,
	}
}

// Forbidden creates a permission error.
func Forbidden(op, message string) *Error {
	return &Error{
		Code:    EFORBIDDEN,
		Reason:  ReasonForbidden,
		Op:      op,
		Message: message,
	}
}

// Conflict creates a conflict error.
func Conflict(op, message string) *Error {
	return &Error{
		Code:    ECONFLICT,
		Op:      op,
		Message: message,
	}
}

// PaymentRequired creates a 402 error carrying a business reason.
func PaymentRequired(op, reason, message string) *Error {
	return &Error{
		Code:    EPAYMENT,
		Reason:  reason,
		Op:      op,
		Message: message,
	}
}

// QuotaExceeded creates the LIMIT_REACHED error for an exhausted free-tier quota.
func QuotaExceeded(op string, kind QuotaKind, used, limit int) *Error {
	return PaymentRequired(op, ReasonLimitReached,
		fmt.Sprintf("Your free plan allows %d %s. Upgrade to continue.", limit, kind.unit(limit))).
		WithDetail("active", used).
		WithDetail("limit", limit)
}

// Internal creates an internal error, wrapping the underlying error.
func Internal(err error, op, message string) *Error {
	return &Error{
		Code:    EINTERNAL,
		Op:      op,
		Message: message,
		Err:     err,
	}
}

// RateLimit creates a rate limit error.
func RateLimit(op string) *Error {
	return &Error{
		Code:    ERATELIMIT,
		Op:      op,
		Message: "Too many requests. Please try again later.",
	}
}

// ValidationError represents field-level validation errors.
type ValidationError struct {
	Op     string
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: validation failed", e.Op)
}

// NewValidationError creates a new validation error with the first field error.
func NewValidationError(op, field, message string) *ValidationError {
	return &ValidationError{
		Op: op,
		Fields: map[string]string{
			field: message,
		},
	}
}
