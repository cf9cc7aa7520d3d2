package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/aishu/internal/csrf"
	"github.com/iudanet/aishu/internal/server/handlers"
)

const (
	// SessionCookieName cookie с подписанным идентификатором анонимной сессии
	SessionCookieName = "aishu-session"
	// SessionCookieTTL время жизни анонимной сессии
	SessionCookieTTL = 7 * 24 * time.Hour
)

// SessionConfig параметры SessionMiddleware
type SessionConfig struct {
	Guard         *csrf.Guard
	Key           []byte // ключ подписи cookie, отдельный от ключа CSRF
	SecureCookies bool
}

// SessionMiddleware определяет идентификатор сессии, к которой привязываются CSRF токены
// Для аутентифицированного пользователя это user_id, для анонимного
// идентификатор из подписанного cookie aishu-session; при его отсутствии
// создается новый и cookie выставляется в ответе
func SessionMiddleware(logger *slog.Logger, cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			if userID, ok := handlers.GetUserID(ctx); ok {
				next.ServeHTTP(w, r.WithContext(handlers.WithSessionID(ctx, userID)))
				return
			}

			if c, err := r.Cookie(SessionCookieName); err == nil {
				sessionID, err := handlers.ValidateSessionToken(cfg.Key, c.Value)
				if err == nil {
					next.ServeHTTP(w, r.WithContext(handlers.WithSessionID(ctx, sessionID)))
					return
				}
				logger.Debug("Ignoring invalid session cookie", "error", err)
			}

			sessionID, err := cfg.Guard.SessionIdentifier("")
			if err != nil {
				logger.Error("Failed to create session identifier", "error", err)
				handlers.SendError(w, logger, "internal server error", http.StatusInternalServerError)
				return
			}

			signed, err := handlers.GenerateSessionToken(cfg.Key, sessionID, SessionCookieTTL)
			if err != nil {
				logger.Error("Failed to sign session cookie", "error", err)
				handlers.SendError(w, logger, "internal server error", http.StatusInternalServerError)
				return
			}

			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookieName,
				Value:    signed,
				Path:     "/",
				MaxAge:   int(SessionCookieTTL.Seconds()),
				HttpOnly: true,
				Secure:   cfg.SecureCookies,
				SameSite: http.SameSiteLaxMode,
			})

			next.ServeHTTP(w, r.WithContext(handlers.WithSessionID(ctx, sessionID)))
		})
	}
}
