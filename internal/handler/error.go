package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/ngolink/internal/auth"
	"github.com/DukeRupert/ngolink/internal/domain"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload carries the error class, the business reason clients branch
// on, a human-readable message, and optional structured details.
type ErrorPayload struct {
	Code    string         `json:"code"`
	Reason  string         `json:"reason"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse writes an error response to the client.
// It maps domain error codes to HTTP status codes. Internal errors are
// reported with a generic message and no details.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		validationErrorResponse(w, r, logger, ve)
		return
	}

	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	reason := domain.ErrorReason(err)
	if reason == "" {
		reason = defaultReason(code)
	}

	logError(logger, r, err, code, reason, domain.ErrorOp(err), status)

	writeJSON(w, status, ErrorBody{Error: ErrorPayload{
		Code:    code,
		Reason:  reason,
		Message: domain.ErrorMessage(err),
		Details: domain.ErrorDetails(err),
	}})
}

// ErrorCodeToHTTPStatus maps domain error codes to HTTP status codes.
func ErrorCodeToHTTPStatus(code string) int {
	switch code {
	case domain.EINVALID:
		return http.StatusBadRequest // 400
	case domain.EUNAUTHORIZED:
		return http.StatusUnauthorized // 401
	case domain.EPAYMENT:
		return http.StatusPaymentRequired // 402
	case domain.EFORBIDDEN:
		return http.StatusForbidden // 403
	case domain.ENOTFOUND:
		return http.StatusNotFound // 404
	case domain.ECONFLICT:
		return http.StatusConflict // 409
	case domain.ERATELIMIT:
		return http.StatusTooManyRequests // 429
	case domain.EINTERNAL:
		return http.StatusInternalServerError // 500
	case domain.ENOTIMPL:
		return http.StatusNotImplemented // 501
	case domain.EUNAVAILABLE:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusInternalServerError // 500
	}
}

// defaultReason fills in the reason for errors that carry none.
func defaultReason(code string) string {
	switch code {
	case domain.EINVALID:
		return domain.ReasonInvalidBody
	case domain.EUNAUTHORIZED:
		return domain.ReasonUnauthorized
	case domain.EFORBIDDEN:
		return domain.ReasonForbidden
	case domain.ENOTFOUND:
		return "NOT_FOUND"
	case domain.ECONFLICT:
		return "CONFLICT"
	case domain.EPAYMENT:
		return "PAYMENT_REQUIRED"
	case domain.ERATELIMIT:
		return "RATE_LIMITED"
	case domain.ENOTIMPL:
		return "NOT_IMPLEMENTED"
	case domain.EUNAVAILABLE:
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// validationErrorResponse writes field-level validation errors. The
// operation name stays in the logs.
func validationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, ve *domain.ValidationError) {
	logger.Info("validation error",
		"op", ve.Op,
		"field_count", len(ve.Fields),
		"path", r.URL.Path,
	)

	writeJSON(w, http.StatusBadRequest, ErrorBody{Error: ErrorPayload{
		Code:    domain.EINVALID,
		Reason:  domain.ReasonInvalidBody,
		Message: "Validation failed",
		Details: map[string]any{"fields": ve.Fields},
	}})
}

// NotFoundResponse is a convenience wrapper for 404 errors.
func NotFoundResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	err := domain.Errorf(domain.ENOTFOUND, "", "The requested resource was not found")
	ErrorResponse(w, r, logger, err)
}

// UnauthorizedResponse is a convenience wrapper for 401 errors.
func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Unauthorized("", "Authentication required"))
}

// ForbiddenResponse is a convenience wrapper for 403 errors.
func ForbiddenResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Forbidden("", "Insufficient permissions"))
}

// InternalErrorResponse logs the error and returns a generic 500 response.
func InternalErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	ErrorResponse(w, r, logger, domain.Internal(err, "", "An unexpected error occurred"))
}

// logError logs at Error for 5xx and Info for 4xx.
func logError(logger *slog.Logger, r *http.Request, err error, code, reason, op string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"reason", reason,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}
	if op != "" {
		attrs = append(attrs, "op", op)
	}
	if info := auth.GetRequestInfo(r.Context()); info != nil {
		attrs = append(attrs, "request_id", info.ID)
	}

	if status >= 500 {
		logger.Error("server error", attrs...)
	} else if status >= 400 {
		logger.Info("client error", attrs...)
	}
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
