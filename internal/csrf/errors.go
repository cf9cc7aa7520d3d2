package csrf

import "errors"

// Причины отказа в валидации CSRF токена
// Используются только для логов и метрик, клиенту не отдаются
var (
	// ErrEmptySecret секрет для подписи не задан
	ErrEmptySecret = errors.New("csrf: signing secret is empty")

	// ErrInvalidSessionID session id пустой
	ErrInvalidSessionID = errors.New("csrf: invalid session id")

	// ErrMissingToken токен отсутствует в запросе
	ErrMissingToken = errors.New("csrf: token missing")

	// ErrMalformedToken токен не декодируется или имеет неверную структуру
	ErrMalformedToken = errors.New("csrf: malformed token")

	// ErrSessionMismatch токен выдан для другой сессии
	ErrSessionMismatch = errors.New("csrf: session mismatch")

	// ErrTokenExpired токен старше MaxAge
	ErrTokenExpired = errors.New("csrf: token expired")

	// ErrInvalidSignature подпись не совпадает
	ErrInvalidSignature = errors.New("csrf: invalid signature")
)

// Reason возвращает короткую метку причины отказа для метрик
func Reason(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrMissingToken):
		return "missing"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	case errors.Is(err, ErrSessionMismatch):
		return "session_mismatch"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrInvalidSignature):
		return "bad_signature"
	default:
		return "other"
	}
}
