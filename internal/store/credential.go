// ABOUTME: One-way credential hashing for server record secrets
// ABOUTME: Raw credentials are never persisted, only their bcrypt hash

package store

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashCredential returns a one-way hash of a server credential suitable for
// ServerRecord.CredentialHash. The raw credential is never stored. The
// credential is digested with SHA-256 first since bcrypt truncates input at
// 72 bytes and opaque API tokens routinely run longer.
func HashCredential(credential string) (string, error) {
	if credential == "" {
		return "", nil
	}
	sum := sha256.Sum256([]byte(credential))
	hash, err := bcrypt.GenerateFromPassword(sum[:], bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing credential: %w", err)
	}
	return string(hash), nil
}

// VerifyCredential reports whether the credential matches the stored hash.
func VerifyCredential(hash, credential string) bool {
	if hash == "" || credential == "" {
		return false
	}
	sum := sha256.Sum256([]byte(credential))
	return bcrypt.CompareHashAndPassword([]byte(hash), sum[:]) == nil
}
