package handlers

import "context"

// contextKey тип для ключей контекста
type contextKey string

const (
	// UserIDKey ключ для хранения user_id в контексте
	UserIDKey contextKey = "user_id"
	// RoleKey ключ для хранения роли пользователя в контексте
	RoleKey contextKey = "role"
	// SessionIDKey ключ для хранения идентификатора сессии (для CSRF)
	SessionIDKey contextKey = "session_id"
)

// RoleAdmin роль, которой разрешено управлять флагами
const RoleAdmin = "admin"

// GetUserID извлекает user_id из контекста запроса
// Для анонимных запросов возвращает false
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// GetRole извлекает роль из контекста запроса
func GetRole(ctx context.Context) (string, bool) {
	role, ok := ctx.Value(RoleKey).(string)
	return role, ok
}

// GetSessionID извлекает идентификатор сессии из контекста запроса
func GetSessionID(ctx context.Context) (string, bool) {
	sessionID, ok := ctx.Value(SessionIDKey).(string)
	return sessionID, ok && sessionID != ""
}

// WithSessionID возвращает контекст с идентификатором сессии
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

// WithUser возвращает контекст с данными аутентифицированного пользователя
func WithUser(ctx context.Context, userID, role string) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, userID)
	return context.WithValue(ctx, RoleKey, role)
}
