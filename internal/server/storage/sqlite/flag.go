package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/server/storage"
)

const flagColumns = `name, description, enabled, rollout_percentage, environment, updated_by, created_at, updated_at`

// scanner покрывает *sql.Row и *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanFlag(row scanner) (*models.FeatureFlag, error) {
	flag := &models.FeatureFlag{}
	var environment string

	if err := row.Scan(
		&flag.Name,
		&flag.Description,
		&flag.Enabled,
		&flag.RolloutPercentage,
		&environment,
		&flag.UpdatedBy,
		&flag.CreatedAt,
		&flag.UpdatedAt,
	); err != nil {
		return nil, err
	}
	flag.Environment = models.Environment(environment)

	return flag, nil
}

// GetFlag retrieves flag by name
func (s *Storage) GetFlag(ctx context.Context, name string) (*models.FeatureFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM feature_flags WHERE name = ?`

	flag, err := scanFlag(s.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrFlagNotFound
		}
		return nil, fmt.Errorf("failed to get flag: %w", err)
	}

	return flag, nil
}

// ListFlags retrieves all flags ordered by name
func (s *Storage) ListFlags(ctx context.Context) ([]*models.FeatureFlag, error) {
	query := `SELECT ` + flagColumns + ` FROM feature_flags ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query flags: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	flags := make([]*models.FeatureFlag, 0)
	for rows.Next() {
		flag, err := scanFlag(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flag: %w", err)
		}
		flags = append(flags, flag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return flags, nil
}

// UpsertFlag creates or replaces a flag, preserving created_at
func (s *Storage) UpsertFlag(ctx context.Context, flag *models.FeatureFlag) error {
	query := `
		INSERT INTO feature_flags (` + flagColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description        = excluded.description,
			enabled            = excluded.enabled,
			rollout_percentage = excluded.rollout_percentage,
			environment        = excluded.environment,
			updated_by         = excluded.updated_by,
			updated_at         = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		flag.Name,
		flag.Description,
		flag.Enabled,
		flag.RolloutPercentage,
		string(flag.Environment),
		flag.UpdatedBy,
		flag.CreatedAt,
		flag.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert flag: %w", err)
	}

	return nil
}

// GetOverride retrieves override for flag and user
func (s *Storage) GetOverride(ctx context.Context, flagName, userID string) (*models.FlagOverride, error) {
	query := `
		SELECT flag_name, user_id, enabled, created_by, created_at
		FROM feature_flag_overrides
		WHERE flag_name = ? AND user_id = ?
	`

	override := &models.FlagOverride{}
	err := s.db.QueryRowContext(ctx, query, flagName, userID).Scan(
		&override.FlagName,
		&override.UserID,
		&override.Enabled,
		&override.CreatedBy,
		&override.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrOverrideNotFound
		}
		return nil, fmt.Errorf("failed to get override: %w", err)
	}

	return override, nil
}

// ListOverrides retrieves all overrides of a flag
func (s *Storage) ListOverrides(ctx context.Context, flagName string) ([]*models.FlagOverride, error) {
	query := `
		SELECT flag_name, user_id, enabled, created_by, created_at
		FROM feature_flag_overrides
		WHERE flag_name = ?
		ORDER BY user_id
	`

	rows, err := s.db.QueryContext(ctx, query, flagName)
	if err != nil {
		return nil, fmt.Errorf("failed to query overrides: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	overrides := make([]*models.FlagOverride, 0)
	for rows.Next() {
		o := &models.FlagOverride{}
		if err := rows.Scan(&o.FlagName, &o.UserID, &o.Enabled, &o.CreatedBy, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan override: %w", err)
		}
		overrides = append(overrides, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return overrides, nil
}

// UpsertOverride creates or replaces override for flag and user
func (s *Storage) UpsertOverride(ctx context.Context, override *models.FlagOverride) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Проверяем существование флага явно, чтобы вернуть sentinel error
	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM feature_flags WHERE name = ?`, override.FlagName).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrFlagNotFound
		}
		return fmt.Errorf("failed to check flag: %w", err)
	}

	query := `
		INSERT INTO feature_flag_overrides (flag_name, user_id, enabled, created_by, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(flag_name, user_id) DO UPDATE SET
			enabled    = excluded.enabled,
			created_by = excluded.created_by,
			created_at = excluded.created_at
	`
	if _, err := tx.ExecContext(ctx, query,
		override.FlagName,
		override.UserID,
		override.Enabled,
		override.CreatedBy,
		override.CreatedAt,
	); err != nil {
		return fmt.Errorf("failed to upsert override: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit override: %w", err)
	}

	return nil
}

// DeleteOverride deletes override for flag and user
func (s *Storage) DeleteOverride(ctx context.Context, flagName, userID string) error {
	query := `DELETE FROM feature_flag_overrides WHERE flag_name = ? AND user_id = ?`

	result, err := s.db.ExecContext(ctx, query, flagName, userID)
	if err != nil {
		return fmt.Errorf("failed to delete override: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return storage.ErrOverrideNotFound
	}

	return nil
}
