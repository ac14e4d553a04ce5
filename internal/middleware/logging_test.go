package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/ngolink/internal/auth"
	"github.com/DukeRupert/ngolink/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Request Logging Middleware Tests
// =============================================================================

// serveLogged runs req through the logging middleware in front of h and
// returns the recorder and log output.
func serveLogged(h http.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, string) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))
	rec := httptest.NewRecorder()
	mw.Handler(h).ServeHTTP(rec, req)
	return rec, buf.String()
}

func statusHandler(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}
}

func TestRequestLoggingMiddleware_LogsBasicInfo(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/jobs", nil)
	req.RemoteAddr = "10.0.0.1:8080"
	req.Header.Set("X-Forwarded-For", "203.0.113.195")
	req.Header.Set("User-Agent", "Mozilla/5.0 TestBrowser")

	_, out := serveLogged(statusHandler(http.StatusNotFound), req)

	assert.Contains(t, out, "method=GET")
	assert.Contains(t, out, "path=/api/jobs")
	assert.Contains(t, out, "status=404")
	assert.Contains(t, out, "duration_ms=")
	assert.Contains(t, out, "ip=203.0.113.195")
	assert.Contains(t, out, "TestBrowser")
	assert.Contains(t, out, "level=INFO")
}

func TestRequestLoggingMiddleware_ServerErrorsLogAtWarn(t *testing.T) {
	_, out := serveLogged(statusHandler(http.StatusInternalServerError), httptest.NewRequest("POST", "/api/jobs", nil))

	assert.Contains(t, out, "status=500")
	assert.Contains(t, out, "level=WARN")
}

func TestRequestLoggingMiddleware_RedactsSensitiveQueryParams(t *testing.T) {
	tests := []struct {
		query  string
		secret string
	}{
		{"token=secrettoken123", "secrettoken123"},
		{"razorpay_signature=abc123secret", "abc123secret"},
		{"Signature=MixedCase1", "MixedCase1"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			_, out := serveLogged(statusHandler(http.StatusOK),
				httptest.NewRequest("GET", "/api/billing/status?page=2&"+tt.query, nil))

			assert.NotContains(t, out, tt.secret)
			assert.Contains(t, out, "[REDACTED]")
			assert.Contains(t, out, "page=2")
		})
	}
}

func TestRequestLoggingMiddleware_PassesResponseThrough(t *testing.T) {
	h := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Custom", "value")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("response body"))
	}

	rec, _ := serveLogged(h, httptest.NewRequest("POST", "/api/jobs", nil))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "value", rec.Header().Get("X-Custom"))
	assert.Equal(t, "response body", rec.Body.String())
}

func TestRequestLoggingMiddleware_SkipsNoisyEndpoints(t *testing.T) {
	for _, path := range []string{"/health", "/metrics"} {
		_, out := serveLogged(statusHandler(http.StatusOK), httptest.NewRequest("GET", path, nil))
		assert.Empty(t, out, path)
	}
}

func TestRequestLoggingMiddleware_RequestID(t *testing.T) {
	t.Run("minted when absent", func(t *testing.T) {
		var seen string
		h := func(w http.ResponseWriter, r *http.Request) {
			seen = auth.GetRequestInfo(r.Context()).ID
		}
		rec, out := serveLogged(h, httptest.NewRequest("GET", "/api/jobs", nil))

		id := rec.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, seen)
		assert.Contains(t, out, "request_id="+id)
	})

	t.Run("reused when well formed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/jobs", nil)
		req.Header.Set(RequestIDHeader, "edge-1234.abc")
		rec, _ := serveLogged(statusHandler(http.StatusOK), req)

		assert.Equal(t, "edge-1234.abc", rec.Header().Get(RequestIDHeader))
	})

	t.Run("replaced when malformed", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/api/jobs", nil)
		req.Header.Set(RequestIDHeader, "bad id\nX-Injected: 1")
		rec, _ := serveLogged(statusHandler(http.StatusOK), req)

		assert.NotEqual(t, "bad id\nX-Injected: 1", rec.Header().Get(RequestIDHeader))
	})
}

func TestRequestLoggingMiddleware_LogsAuthenticatedUser(t *testing.T) {
	user := &domain.User{ID: uuid.New(), PlanState: domain.PlanState{Role: domain.RoleNGO}}
	h := func(w http.ResponseWriter, r *http.Request) {
		// Authentication runs inside logging and works on a derived context.
		_ = auth.SetUser(r.Context(), user)
	}

	_, out := serveLogged(h, httptest.NewRequest("GET", "/api/jobs/mine", nil))

	assert.Contains(t, out, "user_id="+user.ID.String())
	assert.Contains(t, out, "role=ngo")
}

func TestRecover_ConvertsPanicTo500(t *testing.T) {
	var buf bytes.Buffer
	mw := NewRequestLoggingMiddleware(slog.New(slog.NewTextHandler(&buf, nil)))

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("nil map write")
	})

	rec := httptest.NewRecorder()
	mw.Recover(h).ServeHTTP(rec, httptest.NewRequest("GET", "/api/jobs", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "nil map write")
	assert.Contains(t, buf.String(), "nil map write")
}
