package middleware

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/aishu/internal/csrf"
	"github.com/iudanet/aishu/internal/server/handlers"
)

// csrfRejectMessage единое сообщение для клиента; причина отказа не раскрывается
const csrfRejectMessage = "invalid or missing CSRF token"

// CSRFObserver получает причины отклоненных запросов (метрики)
type CSRFObserver interface {
	ObserveCSRFRejection(reason string)
}

// CSRFMiddleware проверяет CSRF токен для изменяющих методов (POST, PUT, PATCH, DELETE)
// Токен берется из заголовка X-CSRF-Token, затем из cookie csrf-token,
// и сверяется с идентификатором сессии из контекста
// observer может быть nil
func CSRFMiddleware(logger *slog.Logger, guard *csrf.Guard, observer CSRFObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !csrf.RequiresProtection(r.Method) {
				next.ServeHTTP(w, r)
				return
			}

			var err error
			token, ok := csrf.ExtractToken(r)
			sessionID, _ := handlers.GetSessionID(r.Context())
			if ok {
				err = guard.Check(token, sessionID)
			} else {
				err = csrf.ErrMissingToken
			}

			if err != nil {
				reason := csrf.Reason(err)
				logger.Warn("CSRF validation failed",
					"reason", reason,
					"method", r.Method,
					"path", sanitizePath(r.URL.Path),
					"remote_addr", r.RemoteAddr,
				)
				if observer != nil {
					observer.ObserveCSRFRejection(reason)
				}

				handlers.SendError(w, logger, csrfRejectMessage, http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
