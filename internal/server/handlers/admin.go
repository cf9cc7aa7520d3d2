package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/rollout"
	"github.com/iudanet/aishu/internal/server/storage"
	"github.com/iudanet/aishu/internal/validation"
	"github.com/iudanet/aishu/pkg/api"
)

const (
	// DefaultStatsWindow окно статистики по умолчанию
	DefaultStatsWindow = 24 * time.Hour
	// DefaultAuditLimit количество записей журнала по умолчанию
	DefaultAuditLimit = 50
	// MaxAuditLimit максимальное количество записей журнала за запрос
	MaxAuditLimit = 500
)

// FlagManager административные операции над флагами
type FlagManager interface {
	SetFlag(ctx context.Context, name string, patch models.FlagPatch, actorID string) (*models.FeatureFlag, error)
	SetOverride(ctx context.Context, name, userID string, enabled bool, actorID string) bool
	RemoveOverride(ctx context.Context, name, userID, actorID string) bool
}

// AdminHandler обрабатывает административные запросы к флагам
type AdminHandler struct {
	logger      *slog.Logger
	manager     FlagManager
	flags       storage.FlagStorage
	evaluations storage.EvaluationStorage
	audit       storage.AuditStorage
	now         func() time.Time
}

// NewAdminHandler создает новый handler для администрирования флагов
func NewAdminHandler(
	logger *slog.Logger,
	manager FlagManager,
	flags storage.FlagStorage,
	evaluations storage.EvaluationStorage,
	audit storage.AuditStorage,
) *AdminHandler {
	return &AdminHandler{
		logger:      logger,
		manager:     manager,
		flags:       flags,
		evaluations: evaluations,
		audit:       audit,
		now:         time.Now,
	}
}

// ListFlags обрабатывает GET /api/v1/admin/flags
func (h *AdminHandler) ListFlags(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	flags, err := h.flags.ListFlags(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list flags", slog.Any("error", err))
		SendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.FlagListResponse{Flags: make([]api.Flag, 0, len(flags))}
	for _, f := range flags {
		resp.Flags = append(resp.Flags, toAPIFlag(f))
	}
	sendJSON(w, h.logger, resp, http.StatusOK)
}

// UpsertFlag обрабатывает PUT /api/v1/admin/flags/{name}
// Создает флаг, если его нет; отсутствующие поля тела не меняются
func (h *AdminHandler) UpsertFlag(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	actorID, _ := GetUserID(ctx)

	var req api.FlagPatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode flag patch", slog.Any("error", err))
		SendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	patch := models.FlagPatch{
		Enabled:           req.Enabled,
		RolloutPercentage: req.RolloutPercentage,
		Description:       req.Description,
	}
	if req.Environment != nil {
		env := models.Environment(*req.Environment)
		patch.Environment = &env
	}

	flag, err := h.manager.SetFlag(ctx, name, patch, actorID)
	if err != nil {
		switch {
		case errors.Is(err, validation.ErrInvalidFlagName),
			errors.Is(err, validation.ErrRolloutOutOfRange),
			errors.Is(err, validation.ErrUnknownEnvironment):
			SendError(w, h.logger, err.Error(), http.StatusBadRequest)
		case errors.Is(err, rollout.ErrMissingActor):
			SendError(w, h.logger, "authentication required", http.StatusUnauthorized)
		default:
			h.logger.ErrorContext(ctx, "failed to save flag", slog.String("flag", name), slog.Any("error", err))
			SendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		}
		return
	}

	sendJSON(w, h.logger, toAPIFlag(flag), http.StatusOK)
}

// ListOverrides обрабатывает GET /api/v1/admin/flags/{name}/overrides
func (h *AdminHandler) ListOverrides(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	if !h.flagExists(w, r, name) {
		return
	}

	overrides, err := h.flags.ListOverrides(ctx, name)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list overrides", slog.String("flag", name), slog.Any("error", err))
		SendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.OverrideListResponse{Flag: name, Overrides: make([]api.Override, 0, len(overrides))}
	for _, o := range overrides {
		resp.Overrides = append(resp.Overrides, api.Override{
			UserID:    o.UserID,
			Enabled:   o.Enabled,
			CreatedBy: o.CreatedBy,
			CreatedAt: o.CreatedAt,
		})
	}
	sendJSON(w, h.logger, resp, http.StatusOK)
}

// SetOverride обрабатывает PUT /api/v1/admin/flags/{name}/overrides/{userID}
func (h *AdminHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	userID := r.PathValue("userID")
	actorID, _ := GetUserID(ctx)

	var req api.OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		SendError(w, h.logger, "request body must contain boolean field enabled", http.StatusBadRequest)
		return
	}
	if userID == "" {
		SendError(w, h.logger, "user id is required", http.StatusBadRequest)
		return
	}

	if !h.flagExists(w, r, name) {
		return
	}

	if !h.manager.SetOverride(ctx, name, userID, *req.Enabled, actorID) {
		SendError(w, h.logger, "failed to set override", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// DeleteOverride обрабатывает DELETE /api/v1/admin/flags/{name}/overrides/{userID}
func (h *AdminHandler) DeleteOverride(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")
	userID := r.PathValue("userID")
	actorID, _ := GetUserID(ctx)

	if !h.manager.RemoveOverride(ctx, name, userID, actorID) {
		SendError(w, h.logger, "override not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Stats обрабатывает GET /api/v1/admin/flags/{name}/stats?window=24h
func (h *AdminHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	window := DefaultStatsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			SendError(w, h.logger, "window must be a positive duration", http.StatusBadRequest)
			return
		}
		window = parsed
	}

	if !h.flagExists(w, r, name) {
		return
	}

	since := h.now().Add(-window)
	stats, err := h.evaluations.EvaluationStats(ctx, name, since.UnixMilli())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load evaluation stats", slog.String("flag", name), slog.Any("error", err))
		SendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	sendJSON(w, h.logger, api.FlagStatsResponse{
		Flag:    name,
		Since:   since.UTC(),
		Total:   stats.Total,
		Enabled: stats.Enabled,
	}, http.StatusOK)
}

// Audit обрабатывает GET /api/v1/admin/flags/{name}/audit?limit=50
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := r.PathValue("name")

	limit := DefaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			SendError(w, h.logger, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = min(parsed, MaxAuditLimit)
	}

	entries, err := h.audit.ListAudit(ctx, name, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to load audit log", slog.String("flag", name), slog.Any("error", err))
		SendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.AuditResponse{Flag: name, Entries: make([]api.AuditEntry, 0, len(entries))}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, api.AuditEntry{
			ID:        e.ID,
			ActorID:   e.ActorID,
			Action:    string(e.Action),
			Details:   e.Details,
			CreatedAt: e.CreatedAt,
		})
	}
	sendJSON(w, h.logger, resp, http.StatusOK)
}

// flagExists пишет 404/500 в ответ и возвращает false, если флаг недоступен
func (h *AdminHandler) flagExists(w http.ResponseWriter, r *http.Request, name string) bool {
	_, err := h.flags.GetFlag(r.Context(), name)
	switch {
	case err == nil:
		return true
	case errors.Is(err, storage.ErrFlagNotFound):
		SendError(w, h.logger, "flag not found", http.StatusNotFound)
	default:
		h.logger.ErrorContext(r.Context(), "failed to load flag", slog.String("flag", name), slog.Any("error", err))
		SendError(w, h.logger, "internal server error", http.StatusInternalServerError)
	}
	return false
}

func toAPIFlag(f *models.FeatureFlag) api.Flag {
	return api.Flag{
		Name:              f.Name,
		Description:       f.Description,
		Environment:       string(f.Environment),
		UpdatedBy:         f.UpdatedBy,
		CreatedAt:         f.CreatedAt,
		UpdatedAt:         f.UpdatedAt,
		RolloutPercentage: f.RolloutPercentage,
		Enabled:           f.Enabled,
	}
}
