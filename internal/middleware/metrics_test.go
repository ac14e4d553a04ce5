package middleware

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMetricsAuth(user, pass string) http.Handler {
	mw := NewMetricsAuthMiddleware(user, pass, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("metrics data"))
	}))
}

func TestMetricsAuthMiddleware_AllowsValidCredentials(t *testing.T) {
	req := httptest.NewRequest("GET", "/metrics", nil)
	req.SetBasicAuth("admin", "secret123")
	rec := httptest.NewRecorder()

	newMetricsAuth("admin", "secret123").ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics data", rec.Body.String())
}

func TestMetricsAuthMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no credentials", ""},
		{"wrong username", basicHeader("wronguser", "secret123")},
		{"wrong password", basicHeader("admin", "wrongpassword")},
		{"empty credentials", basicHeader("", "")},
		{"prefix of password", basicHeader("admin", "secret")},
		{"malformed header", "Basic notvalidbase64!!!"},
		{"header injection", basicHeader("admin", "secret123\r\nX-Injected: header")},
	}

	h := newMetricsAuth("admin", "secret123")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, `Basic realm="metrics"`, rec.Header().Get("WWW-Authenticate"))

			var body struct {
				Error struct {
					Reason string `json:"reason"`
				} `json:"error"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, "UNAUTHORIZED", body.Error.Reason)
		})
	}
}

func TestMetricsAuthMiddleware_DisabledWhenNoCredentials(t *testing.T) {
	rec := httptest.NewRecorder()
	newMetricsAuth("", "").ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func basicHeader(user, pass string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+pass))
}
