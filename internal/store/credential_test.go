// ABOUTME: Tests for credential hashing helpers
// ABOUTME: Validates one-way hashing and verification behavior

package store

import (
	"strings"
	"testing"
)

func TestHashCredential_RoundTrip(t *testing.T) {
	hash, err := HashCredential("s3cret-token")
	if err != nil {
		t.Fatalf("HashCredential failed: %v", err)
	}
	if hash == "" || hash == "s3cret-token" {
		t.Fatal("expected non-empty hash distinct from the credential")
	}

	if !VerifyCredential(hash, "s3cret-token") {
		t.Error("expected credential to verify against its hash")
	}
	if VerifyCredential(hash, "wrong") {
		t.Error("expected mismatched credential to fail verification")
	}
}

func TestHashCredential_Empty(t *testing.T) {
	hash, err := HashCredential("")
	if err != nil {
		t.Fatalf("HashCredential failed: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash for empty credential, got %q", hash)
	}
	if VerifyCredential("", "") {
		t.Error("empty hash must never verify")
	}
}

func TestHashCredential_LongToken(t *testing.T) {
	// Opaque API tokens routinely exceed bcrypt's 72-byte input cap.
	long := strings.Repeat("tok-", 40)
	hash, err := HashCredential(long)
	if err != nil {
		t.Fatalf("HashCredential failed on long credential: %v", err)
	}
	if !VerifyCredential(hash, long) {
		t.Error("expected long credential to verify against its hash")
	}
	if VerifyCredential(hash, long[:72]) {
		t.Error("expected truncated credential to fail verification")
	}
}
