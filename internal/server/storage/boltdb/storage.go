// Package boltdb реализует хранилище флагов поверх встраиваемой BoltDB.
// Значения хранятся в JSON, составные ключи разделяются нулевым байтом.
package boltdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/iudanet/aishu/internal/server/storage"
)

var (
	// BoltDB bucket names
	bucketFlags       = []byte("flags")
	bucketOverrides   = []byte("overrides")
	bucketEvaluations = []byte("evaluations")
	bucketAudit       = []byte("audit")
)

const keySep = 0x00

var _ storage.Storage = (*Storage)(nil)

// Storage represents BoltDB storage implementation for feature flags
type Storage struct {
	db *bbolt.DB
}

// New creates a new BoltDB storage instance
// dbPath is the path to the BoltDB database file
func New(ctx context.Context, dbPath string) (*Storage, error) {
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open boltdb: %w", err)
	}

	s := &Storage{db: db}

	if err := s.initBuckets(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize buckets: %w", err)
	}

	return s, nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// initBuckets создает необходимые buckets если они не существуют
func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketFlags, bucketOverrides, bucketEvaluations, bucketAudit} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

// compositeKey собирает ключ вида a\x00b\x00...
func compositeKey(parts ...[]byte) []byte {
	return bytes.Join(parts, []byte{keySep})
}

// prefixKey возвращает префикс "name\x00" для сканирования по флагу
func prefixKey(name string) []byte {
	return append([]byte(name), keySep)
}

// timeKey кодирует unix millis в big-endian для лексикографической сортировки
// Отрицательные значения приводятся к 0, иначе uint64 переполняется
func timeKey(ms int64) []byte {
	if ms < 0 {
		ms = 0
	}
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(ms))
	return b
}
