package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// GenerateAccessKey returns a 32-byte random API access key encoded as hex.
func GenerateAccessKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating access key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
