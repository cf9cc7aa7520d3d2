package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/pkg/api"
)

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger      *slog.Logger
	version     string
	environment models.Environment
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, version string, env models.Environment) *HealthHandler {
	if version == "" {
		version = "dev"
	}
	return &HealthHandler{
		logger:      logger,
		version:     version,
		environment: env,
	}
}

// Health обрабатывает GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:      "ok",
		Version:     h.version,
		Environment: string(h.environment),
	}
	sendJSON(w, h.logger, resp, http.StatusOK)
}
