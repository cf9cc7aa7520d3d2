package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/iudanet/aishu/pkg/api"
)

// csrfHeader заголовок, в котором сервер ожидает CSRF токен
const csrfHeader = "X-CSRF-Token"

// StatusError ответ сервера с кодом вне 2xx
type StatusError struct {
	Message    string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (%d)", e.StatusCode)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

// Client представляет HTTP клиент сервиса флагов
// Для изменяющих запросов сам получает CSRF токен и повторяет запрос
// один раз, если токен устарел
type Client struct {
	httpClient  *http.Client
	baseURL     string
	accessToken string
	csrfToken   string
	mu          sync.Mutex
}

// NewClient создает новый API клиент
// accessToken может быть пустым для анонимного доступа
func NewClient(baseURL, accessToken string) *Client {
	// cookiejar.New не возвращает ошибку при nil options
	jar, _ := cookiejar.New(nil)

	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		accessToken: accessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			// Cookie анонимной сессии нужна, чтобы CSRF токен совпадал с сессией
			Jar: jar,
		},
	}
}

// Features возвращает состояние всех флагов для текущего пользователя
func (c *Client) Features(ctx context.Context) (map[string]bool, error) {
	var resp api.FeaturesResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/features", nil, &resp); err != nil {
		return nil, fmt.Errorf("features request failed: %w", err)
	}
	return resp.Flags, nil
}

// Feature сообщает, включен ли флаг для текущего пользователя
func (c *Client) Feature(ctx context.Context, name string) (bool, error) {
	var resp api.FeatureResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/features/"+url.PathEscape(name), nil, &resp); err != nil {
		return false, fmt.Errorf("feature request failed: %w", err)
	}
	return resp.Enabled, nil
}

// CSRFToken получает новый CSRF токен и запоминает его
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	var resp api.CSRFTokenResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/csrf", nil, &resp); err != nil {
		return "", fmt.Errorf("csrf request failed: %w", err)
	}

	c.mu.Lock()
	c.csrfToken = resp.CSRFToken
	c.mu.Unlock()

	return resp.CSRFToken, nil
}

// ListFlags возвращает все флаги (роль admin)
func (c *Client) ListFlags(ctx context.Context) ([]api.Flag, error) {
	var resp api.FlagListResponse
	if err := c.doRequest(ctx, http.MethodGet, "/api/v1/admin/flags", nil, &resp); err != nil {
		return nil, fmt.Errorf("list flags request failed: %w", err)
	}
	return resp.Flags, nil
}

// SetFlag создает или обновляет флаг (роль admin)
func (c *Client) SetFlag(ctx context.Context, name string, req api.FlagPatchRequest) (*api.Flag, error) {
	var resp api.Flag
	if err := c.doProtected(ctx, http.MethodPut, "/api/v1/admin/flags/"+url.PathEscape(name), req, &resp); err != nil {
		return nil, fmt.Errorf("set flag request failed: %w", err)
	}
	return &resp, nil
}

// SetOverride включает или выключает флаг для пользователя (роль admin)
func (c *Client) SetOverride(ctx context.Context, name, userID string, enabled bool) error {
	path := fmt.Sprintf("/api/v1/admin/flags/%s/overrides/%s", url.PathEscape(name), url.PathEscape(userID))
	if err := c.doProtected(ctx, http.MethodPut, path, api.OverrideRequest{Enabled: &enabled}, nil); err != nil {
		return fmt.Errorf("set override request failed: %w", err)
	}
	return nil
}

// RemoveOverride удаляет override пользователя (роль admin)
func (c *Client) RemoveOverride(ctx context.Context, name, userID string) error {
	path := fmt.Sprintf("/api/v1/admin/flags/%s/overrides/%s", url.PathEscape(name), url.PathEscape(userID))
	if err := c.doProtected(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("remove override request failed: %w", err)
	}
	return nil
}

// doProtected выполняет изменяющий запрос с CSRF токеном
// При 403 токен перевыпускается и запрос повторяется один раз
func (c *Client) doProtected(ctx context.Context, method, path string, body, result interface{}) error {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()

	if token == "" {
		var err error
		if token, err = c.CSRFToken(ctx); err != nil {
			return err
		}
	}

	err := c.doRequestWithCSRF(ctx, method, path, token, body, result)
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusForbidden {
		return err
	}

	token, err = c.CSRFToken(ctx)
	if err != nil {
		return err
	}
	return c.doRequestWithCSRF(ctx, method, path, token, body, result)
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	return c.doRequestWithCSRF(ctx, method, path, "", body, result)
}

func (c *Client) doRequestWithCSRF(ctx context.Context, method, path, csrfToken string, body, result interface{}) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}
	if csrfToken != "" {
		req.Header.Set(csrfHeader, csrfToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil {
			statusErr.Message = errResp.Message
		} else {
			statusErr.Message = strings.TrimSpace(string(respBody))
		}
		return statusErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
