package sqlite

import (
	"context"
	"fmt"

	"github.com/iudanet/aishu/internal/models"
)

// RecordEvaluation appends an evaluation record
func (s *Storage) RecordEvaluation(ctx context.Context, evaluation *models.FlagEvaluation) error {
	query := `
		INSERT INTO feature_flag_evaluations (id, flag_name, user_id, enabled, reason, evaluated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		evaluation.ID,
		evaluation.FlagName,
		evaluation.UserID,
		evaluation.Enabled,
		evaluation.Reason,
		evaluation.EvaluatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to record evaluation: %w", err)
	}

	return nil
}

// EvaluationStats aggregates evaluations of a flag since given unix millis
func (s *Storage) EvaluationStats(ctx context.Context, flagName string, since int64) (*models.EvaluationStats, error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(enabled), 0)
		FROM feature_flag_evaluations
		WHERE flag_name = ? AND evaluated_at >= ?
	`

	stats := &models.EvaluationStats{FlagName: flagName}
	if err := s.db.QueryRowContext(ctx, query, flagName, since).Scan(&stats.Total, &stats.Enabled); err != nil {
		return nil, fmt.Errorf("failed to aggregate evaluations: %w", err)
	}

	return stats, nil
}

// RecordAudit appends an audit entry
func (s *Storage) RecordAudit(ctx context.Context, entry *models.AuditEntry) error {
	query := `
		INSERT INTO feature_flag_audit (id, flag_name, actor_id, action, details, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.FlagName,
		entry.ActorID,
		string(entry.Action),
		entry.Details,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	return nil
}

// ListAudit returns latest entries for a flag, newest first
func (s *Storage) ListAudit(ctx context.Context, flagName string, limit int) ([]*models.AuditEntry, error) {
	query := `
		SELECT id, flag_name, actor_id, action, details, created_at
		FROM feature_flag_audit
		WHERE flag_name = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, flagName, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	entries := make([]*models.AuditEntry, 0)
	for rows.Next() {
		entry := &models.AuditEntry{}
		var action string
		if err := rows.Scan(
			&entry.ID,
			&entry.FlagName,
			&entry.ActorID,
			&action,
			&entry.Details,
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Action = models.AuditAction(action)
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return entries, nil
}
