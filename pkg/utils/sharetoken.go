package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// GenerateShareToken returns a 32-byte random token encoded as unpadded
// base64url, suitable for use in a share URL path segment.
func GenerateShareToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed generating share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
