package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serveError(t *testing.T, err error) (*httptest.ResponseRecorder, ErrorBody) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/test", nil)
	ErrorResponse(rec, req, discardLogger(), err)

	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

// =============================================================================
// Error Response Tests - Security Focus
// =============================================================================

func TestValidationErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	ve := domain.NewValidationError("UserService.Register", "email", "Email is required")

	rec, body := serveError(t, ve)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "UserService")
	assert.Equal(t, "Validation failed", body.Error.Message)
	assert.Equal(t, domain.ReasonInvalidBody, body.Error.Reason)
	assert.Equal(t, map[string]any{"email": "Email is required"}, body.Error.Details["fields"])
}

func TestErrorResponse_InternalErrorHidesDetails(t *testing.T) {
	err := domain.Internal(errors.New("pq: connection refused to 10.0.0.5"), "UserRepository.Create", "Failed to create user")

	rec, body := serveError(t, err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.5")
	assert.NotContains(t, rec.Body.String(), "UserRepository")
	assert.Equal(t, "INTERNAL", body.Error.Reason)
}

func TestErrorResponse_PlainErrorIsInternal(t *testing.T) {
	rec, body := serveError(t, errors.New("boom"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, domain.EINTERNAL, body.Error.Code)
	assert.False(t, strings.Contains(body.Error.Message, "boom"))
}

// =============================================================================
// Status and Reason Mapping
// =============================================================================

func TestErrorResponse_StatusAndReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		reason string
	}{
		{"quota", domain.QuotaExceeded("op", "applications", 1, 1), http.StatusPaymentRequired, domain.ReasonLimitReached},
		{"plan expired", domain.PaymentRequired("op", domain.ReasonPlanExpired, "expired"), http.StatusPaymentRequired, domain.ReasonPlanExpired},
		{"duplicate", domain.Conflict("op", "dup").WithReason(domain.ReasonAlreadyApplied), http.StatusConflict, domain.ReasonAlreadyApplied},
		{"conflict without reason", domain.Conflict("op", "taken"), http.StatusConflict, "CONFLICT"},
		{"bad signature", domain.Invalid("op", "bad").WithReason(domain.ReasonInvalidSignature), http.StatusBadRequest, domain.ReasonInvalidSignature},
		{"invalid default", domain.Invalid("op", "bad"), http.StatusBadRequest, domain.ReasonInvalidBody},
		{"unauthorized", domain.Unauthorized("op", "login"), http.StatusUnauthorized, domain.ReasonUnauthorized},
		{"only ngo", domain.Forbidden("op", "ngo").WithReason(domain.ReasonOnlyNGO), http.StatusForbidden, domain.ReasonOnlyNGO},
		{"not found", domain.NotFound("op", "job", "x"), http.StatusNotFound, "NOT_FOUND"},
		{"billing disabled", domain.Errorf(domain.ENOTIMPL, "op", "off").WithReason(domain.ReasonBillingDisabled), http.StatusNotImplemented, domain.ReasonBillingDisabled},
		{"provider down", domain.Errorf(domain.EUNAVAILABLE, "op", "down"), http.StatusServiceUnavailable, "UNAVAILABLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := serveError(t, tt.err)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.reason, body.Error.Reason)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestErrorResponse_QuotaDetails(t *testing.T) {
	_, body := serveError(t, domain.QuotaExceeded("op", "jobs", 3, 3))

	assert.Equal(t, float64(3), body.Error.Details["active"])
	assert.Equal(t, float64(3), body.Error.Details["limit"])
}

func TestErrorCodeToHTTPStatus_Unknown(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, ErrorCodeToHTTPStatus("weird"))
}
