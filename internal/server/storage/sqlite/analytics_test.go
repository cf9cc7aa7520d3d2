package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/aishu/internal/models"
)

func TestEvaluationStorage_Stats(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	base := time.Now()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.RecordEvaluation(ctx, &models.FlagEvaluation{
			ID:          uuid.New().String(),
			FlagName:    "beta_widget",
			UserID:      fmt.Sprintf("user-%d", i),
			Enabled:     i%2 == 0,
			Reason:      "bucket",
			EvaluatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	// Другой флаг не должен попадать в статистику
	require.NoError(t, s.RecordEvaluation(ctx, &models.FlagEvaluation{
		ID:          uuid.New().String(),
		FlagName:    "other",
		Enabled:     true,
		EvaluatedAt: base,
	}))

	stats, err := s.EvaluationStats(ctx, "beta_widget", 0)
	require.NoError(t, err)
	assert.Equal(t, "beta_widget", stats.FlagName)
	assert.Equal(t, int64(10), stats.Total)
	assert.Equal(t, int64(5), stats.Enabled)

	stats, err = s.EvaluationStats(ctx, "beta_widget", base.Add(5*time.Second).UnixMilli())
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Total)
	assert.Equal(t, int64(2), stats.Enabled)

	stats, err = s.EvaluationStats(ctx, "nothing", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
	assert.Equal(t, int64(0), stats.Enabled)
}

func TestAuditStorage_RecordAndList(t *testing.T) {
	ctx := context.Background()
	s, cleanup := setupTestStorage(t)
	defer cleanup()

	base := time.Now().UTC()
	actions := []models.AuditAction{
		models.AuditFlagUpsert,
		models.AuditOverrideSet,
		models.AuditOverrideRemove,
	}
	for i, action := range actions {
		require.NoError(t, s.RecordAudit(ctx, &models.AuditEntry{
			ID:        uuid.New().String(),
			FlagName:  "beta_widget",
			ActorID:   "admin-1",
			Action:    action,
			Details:   `{"user_id":"u1"}`,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := s.ListAudit(ctx, "beta_widget", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, models.AuditOverrideRemove, entries[0].Action)
	assert.Equal(t, models.AuditFlagUpsert, entries[2].Action)
	assert.Equal(t, "admin-1", entries[0].ActorID)

	limited, err := s.ListAudit(ctx, "beta_widget", 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	none, err := s.ListAudit(ctx, "other", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
