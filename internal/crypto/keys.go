package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// KeySize - длина производного ключа в байтах
const KeySize = 32

// Назначения производных ключей. Разные info строки дают независимые ключи
const (
	PurposeCSRF    = "aishu/csrf-token/v1"
	PurposeSession = "aishu/anon-session/v1"
)

// DeriveKey выводит ключ фиксированной длины из секрета через HKDF-SHA256
// purpose используется как info, чтобы ключи CSRF и сессий не совпадали
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret cannot be empty")
	}
	if purpose == "" {
		return nil, fmt.Errorf("purpose cannot be empty")
	}

	key := make([]byte, KeySize)
	reader := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return key, nil
}
