package utils

import (
	"strings"
	"testing"
)

func TestGenerateShareToken(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		token, err := GenerateShareToken()
		if err != nil {
			t.Fatalf("GenerateShareToken() error = %v", err)
		}
		if token == "" {
			t.Fatalf("expected non-empty token")
		}
		// Tokens are embedded in URLs, so the alphabet must be URL-safe.
		if strings.ContainsAny(token, "+/=") {
			t.Fatalf("expected URL-safe token, got %q", token)
		}
		if seen[token] {
			t.Fatalf("expected unique tokens, got duplicate %q", token)
		}
		seen[token] = true
	}
}
