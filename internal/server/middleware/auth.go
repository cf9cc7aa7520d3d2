package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/aishu/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки JWT токена
// Запрос без заголовка Authorization проходит как анонимный
// Невалидный токен отклоняется с 401
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
				logger.Warn("Invalid Authorization header format")
				handlers.SendError(w, logger, "invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, parts[1])
			if err != nil {
				logger.Warn("Invalid access token", "error", err)
				handlers.SendError(w, logger, "invalid token", http.StatusUnauthorized)
				return
			}

			ctx := handlers.WithUser(r.Context(), claims.UserID, claims.Role)
			logger.Debug("User authenticated", "user_id", claims.UserID, "role", claims.Role)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole пропускает только пользователей с указанной ролью
// Анонимный запрос получает 401, чужая роль 403
func RequireRole(logger *slog.Logger, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := handlers.GetUserID(r.Context())
			if !ok {
				handlers.SendError(w, logger, "authentication required", http.StatusUnauthorized)
				return
			}

			if got, _ := handlers.GetRole(r.Context()); got != role {
				logger.Warn("Access denied", "user_id", userID, "required_role", role)
				handlers.SendError(w, logger, "insufficient permissions", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
