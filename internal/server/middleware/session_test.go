package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/aishu/internal/csrf"
	"github.com/iudanet/aishu/internal/server/handlers"
)

func setupSessionConfig(t *testing.T) SessionConfig {
	t.Helper()
	guard, err := csrf.New([]byte("test-csrf-key"))
	require.NoError(t, err)
	return SessionConfig{
		Guard:         guard,
		Key:           []byte("test-session-key"),
		SecureCookies: true,
	}
}

// sessionEcho отдает идентификатор сессии из контекста
func sessionEcho() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, _ := handlers.GetSessionID(r.Context())
		_, _ = w.Write([]byte(sessionID))
	}
}

func findCookie(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSessionMiddleware_AnonymousRoundTrip(t *testing.T) {
	handler := SessionMiddleware(setupTestLogger(), setupSessionConfig(t))(sessionEcho())

	// Первый запрос: сессия создается, cookie выставляется
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/csrf", nil))

	require.Equal(t, http.StatusOK, w.Code)
	sessionID := w.Body.String()
	assert.Len(t, sessionID, 2*csrf.SessionIDSize)

	cookie := findCookie(w.Result().Cookies(), SessionCookieName)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, "/", cookie.Path)
	assert.NotContains(t, cookie.Value, sessionID, "cookie value is a signed token")

	// Второй запрос с cookie получает ту же сессию и не перевыставляет cookie
	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/flags/x", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, sessionID, w.Body.String())
	assert.Nil(t, findCookie(w.Result().Cookies(), SessionCookieName))
}

func TestSessionMiddleware_TamperedCookie(t *testing.T) {
	cfg := setupSessionConfig(t)
	handler := SessionMiddleware(setupTestLogger(), cfg)(sessionEcho())

	forged, err := handlers.GenerateSessionToken([]byte("attacker-key"), "victim-session", SessionCookieTTL)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: forged})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	// Подделанная сессия игнорируется, выдается новая
	assert.NotEqual(t, "victim-session", w.Body.String())
	assert.NotEmpty(t, w.Body.String())
	assert.NotNil(t, findCookie(w.Result().Cookies(), SessionCookieName))
}

func TestSessionMiddleware_AuthenticatedUser(t *testing.T) {
	handler := SessionMiddleware(setupTestLogger(), setupSessionConfig(t))(sessionEcho())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(handlers.WithUser(req.Context(), "user123", ""))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, "user123", w.Body.String())
	assert.Nil(t, findCookie(w.Result().Cookies(), SessionCookieName))
}
