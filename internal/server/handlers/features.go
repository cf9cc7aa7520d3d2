package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/iudanet/aishu/internal/rollout"
	"github.com/iudanet/aishu/internal/validation"
	"github.com/iudanet/aishu/pkg/api"
)

// FlagEvaluator вычисляет флаги для пользователя
type FlagEvaluator interface {
	Decide(ctx context.Context, name, userID string) rollout.Decision
	EvaluateAll(ctx context.Context, userID string) map[string]bool
}

// FeaturesHandler отдает клиентам состояние флагов
type FeaturesHandler struct {
	logger    *slog.Logger
	evaluator FlagEvaluator
}

// NewFeaturesHandler создает новый handler для чтения флагов
func NewFeaturesHandler(logger *slog.Logger, evaluator FlagEvaluator) *FeaturesHandler {
	return &FeaturesHandler{
		logger:    logger,
		evaluator: evaluator,
	}
}

// List обрабатывает GET /api/v1/features
// Анонимный запрос получает случайный результат для процентных флагов
func (h *FeaturesHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := GetUserID(r.Context())

	flags := h.evaluator.EvaluateAll(r.Context(), userID)
	if flags == nil {
		flags = map[string]bool{}
	}

	sendJSON(w, h.logger, api.FeaturesResponse{Flags: flags}, http.StatusOK)
}

// Get обрабатывает GET /api/v1/features/{name}
// Неизвестный флаг считается выключенным
func (h *FeaturesHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if err := validation.ValidateFlagName(name); err != nil {
		SendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	userID, _ := GetUserID(r.Context())
	d := h.evaluator.Decide(r.Context(), name, userID)

	sendJSON(w, h.logger, api.FeatureResponse{Name: name, Enabled: d.Enabled}, http.StatusOK)
}
