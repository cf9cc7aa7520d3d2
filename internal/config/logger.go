package config

import (
	"io"
	"log/slog"

	"github.com/iudanet/aishu/internal/models"
)

// NewLogger создает логгер: JSON в production, текст в остальных окружениях
func NewLogger(w io.Writer, env models.Environment, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if env == models.EnvProduction {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
