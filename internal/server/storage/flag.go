package storage

import (
	"context"

	"github.com/iudanet/aishu/internal/models"
)

// FlagStorage defines interface for feature flag and override persistence
type FlagStorage interface {
	// GetFlag retrieves flag by name
	// Returns ErrFlagNotFound if flag doesn't exist
	GetFlag(ctx context.Context, name string) (*models.FeatureFlag, error)

	// ListFlags retrieves all flags ordered by name
	// Returns empty slice if no flags found
	ListFlags(ctx context.Context) ([]*models.FeatureFlag, error)

	// UpsertFlag creates or replaces a flag
	// CreatedAt of an existing flag is preserved
	UpsertFlag(ctx context.Context, flag *models.FeatureFlag) error

	// GetOverride retrieves override for flag and user
	// Returns ErrOverrideNotFound if there is no override
	GetOverride(ctx context.Context, flagName, userID string) (*models.FlagOverride, error)

	// ListOverrides retrieves all overrides of a flag
	ListOverrides(ctx context.Context, flagName string) ([]*models.FlagOverride, error)

	// UpsertOverride creates or replaces override for flag and user
	// Returns ErrFlagNotFound if flag doesn't exist
	UpsertOverride(ctx context.Context, override *models.FlagOverride) error

	// DeleteOverride deletes override for flag and user
	// Returns ErrOverrideNotFound if there is no override
	DeleteOverride(ctx context.Context, flagName, userID string) error
}

// EvaluationStorage defines append-only sink for flag evaluation analytics
type EvaluationStorage interface {
	// RecordEvaluation appends an evaluation record
	RecordEvaluation(ctx context.Context, evaluation *models.FlagEvaluation) error

	// EvaluationStats aggregates evaluations of a flag since given unix millis
	EvaluationStats(ctx context.Context, flagName string, since int64) (*models.EvaluationStats, error)
}

// AuditStorage defines append-only journal of administrative changes
type AuditStorage interface {
	// RecordAudit appends an audit entry
	RecordAudit(ctx context.Context, entry *models.AuditEntry) error

	// ListAudit returns latest entries for a flag, newest first
	ListAudit(ctx context.Context, flagName string, limit int) ([]*models.AuditEntry, error)
}

// Storage объединяет все хранилища, которые реализуют sqlite и boltdb
type Storage interface {
	FlagStorage
	EvaluationStorage
	AuditStorage
	Close() error
}
