package handlers

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/rollout"
	"github.com/iudanet/aishu/internal/server/storage/sqlite"
)

// setupTestLogger creates a logger for testing
func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestGate создает Gate поверх in-memory SQLite
func setupTestGate(t *testing.T) (*rollout.Gate, *sqlite.Storage) {
	t.Helper()

	store, err := sqlite.New(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	gate := rollout.New(store, models.EnvProduction, setupTestLogger(),
		rollout.WithAudit(store),
		rollout.WithDraw(func() int { return 0 }),
	)
	return gate, store
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
