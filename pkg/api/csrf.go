package api

// CSRFTokenResponse ответ на GET /api/v1/csrf
// Клиент отправляет csrf_token в заголовке X-CSRF-Token в изменяющих запросах
type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
	ExpiresIn int64  `json:"expires_in"` // время жизни токена в секундах
}
