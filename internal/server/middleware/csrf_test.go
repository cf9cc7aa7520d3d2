package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/aishu/internal/csrf"
	"github.com/iudanet/aishu/internal/server/handlers"
)

// recordingCSRFObserver запоминает причины отказов
type recordingCSRFObserver struct {
	reasons []string
}

func (o *recordingCSRFObserver) ObserveCSRFRejection(reason string) {
	o.reasons = append(o.reasons, reason)
}

func TestCSRFMiddleware(t *testing.T) {
	guard, err := csrf.New([]byte("test-csrf-key"))
	require.NoError(t, err)

	valid, err := guard.Issue("session-1")
	require.NoError(t, err)
	otherSession, err := guard.Issue("session-2")
	require.NoError(t, err)

	oldGuard, err := csrf.New([]byte("test-csrf-key"), csrf.WithClock(func() time.Time {
		return time.Now().Add(-2 * time.Hour)
	}))
	require.NoError(t, err)
	expired, err := oldGuard.Issue("session-1")
	require.NoError(t, err)

	tests := []struct {
		name         string
		method       string
		header       string
		cookie       string
		expectedCode int
		reason       string
	}{
		{"GET is not protected", http.MethodGet, "", "", http.StatusOK, ""},
		{"HEAD is not protected", http.MethodHead, "", "", http.StatusOK, ""},
		{"OPTIONS is not protected", http.MethodOptions, "", "", http.StatusOK, ""},
		{"valid header", http.MethodPost, valid, "", http.StatusOK, ""},
		{"valid cookie", http.MethodDelete, "", valid, http.StatusOK, ""},
		{"header wins over cookie", http.MethodPut, valid, "garbage", http.StatusOK, ""},
		{"missing token", http.MethodPost, "", "", http.StatusForbidden, "missing"},
		{"malformed token", http.MethodPatch, "%%%", "", http.StatusForbidden, "malformed"},
		{"other session", http.MethodPut, otherSession, "", http.StatusForbidden, "session_mismatch"},
		{"expired token", http.MethodPost, expired, "", http.StatusForbidden, "expired"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			observer := &recordingCSRFObserver{}
			handler := CSRFMiddleware(setupTestLogger(), guard, observer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/api/v1/admin/flags/beta", nil)
			req = req.WithContext(handlers.WithSessionID(req.Context(), "session-1"))
			if tt.header != "" {
				req.Header.Set(csrf.HeaderName, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: csrf.CookieName, Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusForbidden {
				// Тело одинаковое для всех причин
				assert.JSONEq(t, `{"error":"Forbidden","message":"invalid or missing CSRF token"}`, w.Body.String())
				assert.Equal(t, []string{tt.reason}, observer.reasons)
			} else {
				assert.Empty(t, observer.reasons)
			}
		})
	}
}

func TestCSRFMiddleware_NoSession(t *testing.T) {
	guard, err := csrf.New([]byte("test-csrf-key"))
	require.NoError(t, err)
	token, err := guard.Issue("session-1")
	require.NoError(t, err)

	handler := CSRFMiddleware(setupTestLogger(), guard, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(csrf.HeaderName, token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestCSRFMiddleware_WithSessionMiddleware(t *testing.T) {
	cfg := setupSessionConfig(t)
	logger := setupTestLogger()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/csrf", handlers.NewCSRFHandler(logger, cfg.Guard, true).Token)
	mux.HandleFunc("PUT /api/v1/admin/flags/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	handler := SessionMiddleware(logger, cfg)(CSRFMiddleware(logger, cfg.Guard, nil)(mux))

	// Получаем токен и cookie анонимной сессии
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/csrf", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	session := findCookie(w.Result().Cookies(), SessionCookieName)
	require.NotNil(t, session)

	t.Run("same session passes", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/flags/beta", nil)
		req.AddCookie(session)
		req.Header.Set(csrf.HeaderName, resp.CSRFToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("token without session cookie is rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/api/v1/admin/flags/beta", nil)
		req.Header.Set(csrf.HeaderName, resp.CSRFToken)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
