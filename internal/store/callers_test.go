package store

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestGenerateAPIKey(t *testing.T) {
	key, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(key, "tsk_") {
		t.Errorf("expected tsk_ prefix, got %s", key)
	}
	if len(key) != 68 {
		t.Errorf("expected 68 chars, got %d", len(key))
	}
	if prefix != key[:KeyPrefixLength] {
		t.Errorf("prefix %q does not match key", prefix)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
		t.Errorf("hash does not verify: %v", err)
	}
}

func TestGenerateAPIKey_Unique(t *testing.T) {
	a, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	b, _, _, err := GenerateAPIKey()
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Error("expected distinct keys")
	}
}
