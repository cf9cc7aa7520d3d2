package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/iudanet/aishu/internal/models"
)

// RecordEvaluation appends an evaluation record
// Ключ: flag\x00<ms big-endian>\x00id
func (s *Storage) RecordEvaluation(ctx context.Context, evaluation *models.FlagEvaluation) error {
	data, err := json.Marshal(evaluation)
	if err != nil {
		return fmt.Errorf("failed to marshal evaluation: %w", err)
	}

	key := compositeKey(
		[]byte(evaluation.FlagName),
		timeKey(evaluation.EvaluatedAt.UnixMilli()),
		[]byte(evaluation.ID),
	)

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketEvaluations).Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to record evaluation: %w", err)
	}

	return nil
}

// EvaluationStats aggregates evaluations of a flag since given unix millis
func (s *Storage) EvaluationStats(ctx context.Context, flagName string, since int64) (*models.EvaluationStats, error) {
	stats := &models.EvaluationStats{FlagName: flagName}
	prefix := prefixKey(flagName)
	start := compositeKey([]byte(flagName), timeKey(since))

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketEvaluations).Cursor()
		for k, v := c.Seek(start); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var e models.FlagEvaluation
			if err := json.Unmarshal(v, &e); err != nil {
				return err
			}
			stats.Total++
			if e.Enabled {
				stats.Enabled++
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate evaluations: %w", err)
	}

	return stats, nil
}

// RecordAudit appends an audit entry
func (s *Storage) RecordAudit(ctx context.Context, entry *models.AuditEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	key := compositeKey(
		[]byte(entry.FlagName),
		timeKey(entry.CreatedAt.UnixNano()),
		[]byte(entry.ID),
	)

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAudit).Put(key, data)
	})
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}

	return nil
}

// ListAudit returns latest entries for a flag, newest first
func (s *Storage) ListAudit(ctx context.Context, flagName string, limit int) ([]*models.AuditEntry, error) {
	entries := make([]*models.AuditEntry, 0)
	prefix := prefixKey(flagName)
	// Первый ключ после всех записей флага: flag\x01
	end := append([]byte(flagName), keySep+1)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAudit).Cursor()

		k, v := c.Seek(end)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}

		for ; k != nil && bytes.HasPrefix(k, prefix) && len(entries) < limit; k, v = c.Prev() {
			entry := &models.AuditEntry{}
			if err := json.Unmarshal(v, entry); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list audit: %w", err)
	}

	return entries, nil
}
