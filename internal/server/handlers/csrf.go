package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/aishu/internal/csrf"
	"github.com/iudanet/aishu/pkg/api"
)

// CSRFHandler выдает CSRF токены браузерным клиентам
type CSRFHandler struct {
	logger        *slog.Logger
	guard         *csrf.Guard
	secureCookies bool
}

// NewCSRFHandler создает новый handler для выдачи CSRF токенов
func NewCSRFHandler(logger *slog.Logger, guard *csrf.Guard, secureCookies bool) *CSRFHandler {
	return &CSRFHandler{
		logger:        logger,
		guard:         guard,
		secureCookies: secureCookies,
	}
}

// Token обрабатывает GET /api/v1/csrf
// Токен привязан к сессии запроса и дублируется в cookie csrf-token
func (h *CSRFHandler) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sessionID, ok := GetSessionID(ctx)
	if !ok {
		// Без SessionMiddleware сессию определяем по пользователю
		userID, _ := GetUserID(ctx)
		var err error
		sessionID, err = h.guard.SessionIdentifier(userID)
		if err != nil {
			h.logger.ErrorContext(ctx, "failed to create session identifier", slog.Any("error", err))
			SendError(w, h.logger, "failed to issue token", http.StatusInternalServerError)
			return
		}
	}

	token, err := h.guard.Issue(sessionID)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to issue CSRF token", slog.Any("error", err))
		SendError(w, h.logger, "failed to issue token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, csrf.Cookie(token, h.secureCookies))
	w.Header().Set("Cache-Control", "no-store")

	sendJSON(w, h.logger, api.CSRFTokenResponse{
		CSRFToken: token,
		ExpiresIn: int64(csrf.MaxAge.Seconds()),
	}, http.StatusOK)
}
