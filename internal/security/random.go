package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateSecret returns n random bytes encoded as hex.
func GenerateSecret(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("security: invalid secret length %d", n)
	}
	buf := make([]byte, n)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("security: read random: %w", errRead)
	}
	return hex.EncodeToString(buf), nil
}
