package boltdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.etcd.io/bbolt"

	"github.com/iudanet/aishu/internal/models"
	"github.com/iudanet/aishu/internal/server/storage"
)

// GetFlag retrieves flag by name
func (s *Storage) GetFlag(ctx context.Context, name string) (*models.FeatureFlag, error) {
	var flag models.FeatureFlag

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketFlags).Get([]byte(name))
		if data == nil {
			return storage.ErrFlagNotFound
		}
		return json.Unmarshal(data, &flag)
	})
	if err != nil {
		if errors.Is(err, storage.ErrFlagNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get flag: %w", err)
	}

	return &flag, nil
}

// ListFlags retrieves all flags ordered by name
// BoltDB хранит ключи отсортированными, поэтому порядок совпадает с sqlite
func (s *Storage) ListFlags(ctx context.Context) ([]*models.FeatureFlag, error) {
	flags := make([]*models.FeatureFlag, 0)

	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketFlags).ForEach(func(_, v []byte) error {
			flag := &models.FeatureFlag{}
			if err := json.Unmarshal(v, flag); err != nil {
				return err
			}
			flags = append(flags, flag)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list flags: %w", err)
	}

	return flags, nil
}

// UpsertFlag creates or replaces a flag, preserving created_at
func (s *Storage) UpsertFlag(ctx context.Context, flag *models.FeatureFlag) error {
	if err := validateFlag(flag); err != nil {
		return err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketFlags)
		toSave := *flag

		if existing := bucket.Get([]byte(flag.Name)); existing != nil {
			var prev models.FeatureFlag
			if err := json.Unmarshal(existing, &prev); err != nil {
				return err
			}
			toSave.CreatedAt = prev.CreatedAt
		}

		data, err := json.Marshal(&toSave)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(flag.Name), data)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert flag: %w", err)
	}

	return nil
}

// validateFlag повторяет CHECK ограничения sqlite схемы
func validateFlag(flag *models.FeatureFlag) error {
	if flag.RolloutPercentage < 0 || flag.RolloutPercentage > 100 {
		return fmt.Errorf("failed to upsert flag: rollout percentage %d out of range", flag.RolloutPercentage)
	}
	switch flag.Environment {
	case models.EnvDevelopment, models.EnvStaging, models.EnvProduction, models.EnvAll:
		return nil
	default:
		return fmt.Errorf("failed to upsert flag: unknown environment %q", flag.Environment)
	}
}

// GetOverride retrieves override for flag and user
func (s *Storage) GetOverride(ctx context.Context, flagName, userID string) (*models.FlagOverride, error) {
	var override models.FlagOverride

	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketOverrides).Get(compositeKey([]byte(flagName), []byte(userID)))
		if data == nil {
			return storage.ErrOverrideNotFound
		}
		return json.Unmarshal(data, &override)
	})
	if err != nil {
		if errors.Is(err, storage.ErrOverrideNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to get override: %w", err)
	}

	return &override, nil
}

// ListOverrides retrieves all overrides of a flag
func (s *Storage) ListOverrides(ctx context.Context, flagName string) ([]*models.FlagOverride, error) {
	overrides := make([]*models.FlagOverride, 0)
	prefix := prefixKey(flagName)

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketOverrides).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			o := &models.FlagOverride{}
			if err := json.Unmarshal(v, o); err != nil {
				return err
			}
			overrides = append(overrides, o)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list overrides: %w", err)
	}

	sort.Slice(overrides, func(i, j int) bool {
		return overrides[i].UserID < overrides[j].UserID
	})

	return overrides, nil
}

// UpsertOverride creates or replaces override for flag and user
func (s *Storage) UpsertOverride(ctx context.Context, override *models.FlagOverride) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketFlags).Get([]byte(override.FlagName)) == nil {
			return storage.ErrFlagNotFound
		}

		data, err := json.Marshal(override)
		if err != nil {
			return err
		}
		key := compositeKey([]byte(override.FlagName), []byte(override.UserID))
		return tx.Bucket(bucketOverrides).Put(key, data)
	})
	if err != nil {
		if errors.Is(err, storage.ErrFlagNotFound) {
			return err
		}
		return fmt.Errorf("failed to upsert override: %w", err)
	}

	return nil
}

// DeleteOverride deletes override for flag and user
func (s *Storage) DeleteOverride(ctx context.Context, flagName, userID string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketOverrides)
		key := compositeKey([]byte(flagName), []byte(userID))
		if bucket.Get(key) == nil {
			return storage.ErrOverrideNotFound
		}
		return bucket.Delete(key)
	})
	if err != nil {
		if errors.Is(err, storage.ErrOverrideNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete override: %w", err)
	}

	return nil
}
