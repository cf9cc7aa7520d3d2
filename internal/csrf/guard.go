// Package csrf реализует защиту от CSRF по схеме double-submit cookie.
//
// Токен имеет вид base64(sessionID:issuedAtMs:nonce:signature), где
// signature = hex(HMAC-SHA256(key, "sessionID:issuedAtMs:nonce")).
// Токен не хранится на сервере: всё необходимое для проверки закодировано в нем.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/iudanet/aishu/internal/crypto"
)

const (
	// HeaderName заголовок, в котором клиент возвращает токен
	HeaderName = "X-CSRF-Token"
	// CookieName cookie, в которой сервер выдает токен
	CookieName = "csrf-token"
	// MaxAge время жизни токена
	MaxAge = time.Hour

	// NonceSize размер nonce в байтах
	NonceSize = 16
	// SessionIDSize размер анонимного session id в байтах
	SessionIDSize = 16

	separator  = ":"
	fieldCount = 4
	// допустимое расхождение часов для токенов "из будущего"
	clockSkew = time.Minute
)

// Guard выдает и проверяет CSRF токены
// Не содержит изменяемого состояния и безопасен для конкурентного использования
type Guard struct {
	now    func() time.Time
	random io.Reader
	key    []byte
}

// Option настраивает Guard
type Option func(*Guard)

// WithClock подменяет источник времени (для тестов)
func WithClock(now func() time.Time) Option {
	return func(g *Guard) {
		g.now = now
	}
}

// WithRandom подменяет источник случайности (для тестов)
func WithRandom(r io.Reader) Option {
	return func(g *Guard) {
		g.random = r
	}
}

// New создает Guard с ключом подписи key
func New(key []byte, opts ...Option) (*Guard, error) {
	if len(key) == 0 {
		return nil, ErrEmptySecret
	}

	g := &Guard{
		key:    append([]byte(nil), key...),
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Issue выдает новый токен, привязанный к sessionID
func (g *Guard) Issue(sessionID string) (string, error) {
	if sessionID == "" {
		return "", ErrInvalidSessionID
	}

	nonce, err := crypto.RandomHexFrom(g.random, NonceSize)
	if err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	issuedAt := strconv.FormatInt(g.now().UnixMilli(), 10)
	payload := sessionID + separator + issuedAt + separator + nonce
	raw := payload + separator + g.sign(payload)

	return base64.StdEncoding.EncodeToString([]byte(raw)), nil
}

// Validate проверяет токен для sessionID
// Любая ошибка (формат, сессия, возраст, подпись) дает false
func (g *Guard) Validate(token, sessionID string) bool {
	return g.Check(token, sessionID) == nil
}

// Check проверяет токен и возвращает причину отказа
func (g *Guard) Check(token, sessionID string) error {
	if token == "" {
		return ErrMissingToken
	}

	decoded, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return ErrMalformedToken
	}

	tokenSession, issuedAtRaw, nonce, signature, ok := splitToken(string(decoded))
	if !ok {
		return ErrMalformedToken
	}

	issuedAtMs, err := strconv.ParseInt(issuedAtRaw, 10, 64)
	if err != nil {
		return ErrMalformedToken
	}

	if subtle.ConstantTimeCompare([]byte(tokenSession), []byte(sessionID)) != 1 {
		return ErrSessionMismatch
	}

	age := g.now().Sub(time.UnixMilli(issuedAtMs))
	if age > MaxAge || age < -clockSkew {
		return ErrTokenExpired
	}

	expected := g.sign(tokenSession + separator + issuedAtRaw + separator + nonce)
	// ConstantTimeCompare сразу возвращает 0 при разной длине
	if subtle.ConstantTimeCompare([]byte(signature), []byte(expected)) != 1 {
		return ErrInvalidSignature
	}

	return nil
}

// splitToken разбирает sessionID:issuedAtMs:nonce:signature справа налево.
// Последние три поля разделителя не содержат, поэтому sessionID может
// включать ':' (например "google-oauth2:1234")
func splitToken(raw string) (sessionID, issuedAt, nonce, signature string, ok bool) {
	fields := make([]string, fieldCount-1)
	rest := raw
	for i := len(fields) - 1; i >= 0; i-- {
		idx := strings.LastIndex(rest, separator)
		if idx < 0 {
			return "", "", "", "", false
		}
		fields[i] = rest[idx+len(separator):]
		rest = rest[:idx]
	}
	if rest == "" {
		return "", "", "", "", false
	}
	return rest, fields[0], fields[1], fields[2], true
}

// SessionIdentifier возвращает идентичность, к которой привязывается токен:
// userID для аутентифицированных пользователей, иначе новый случайный id.
// Случайный id нужно сохранить в сессионной cookie, иначе следующий запрос
// получит другой id и проверка токена не пройдет.
func (g *Guard) SessionIdentifier(userID string) (string, error) {
	if userID != "" {
		return userID, nil
	}
	return crypto.RandomHexFrom(g.random, SessionIDSize)
}

func (g *Guard) sign(payload string) string {
	mac := hmac.New(sha256.New, g.key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// RequiresProtection сообщает, нужен ли CSRF токен для метода
// GET/HEAD/OPTIONS и прочие безопасные методы проходят без проверки
func RequiresProtection(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// ExtractToken достает токен из запроса: сначала заголовок X-CSRF-Token,
// затем cookie csrf-token
func ExtractToken(r *http.Request) (string, bool) {
	if token := strings.TrimSpace(r.Header.Get(HeaderName)); token != "" {
		return token, true
	}

	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}

	return cookie.Value, true
}

// Cookie формирует cookie для выдачи токена клиенту
func Cookie(token string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
