package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
)

// RandomHex возвращает n криптографически случайных байт в hex
func RandomHex(n int) (string, error) {
	return RandomHexFrom(rand.Reader, n)
}

// RandomHexFrom как RandomHex, но читает из переданного источника
func RandomHexFrom(r io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("invalid random length: %d", n)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}

	return hex.EncodeToString(buf), nil
}
