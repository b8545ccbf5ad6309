// Package pin issues and verifies the 6-digit pickup PINs. The plaintext PIN
// is never persisted; only a salted PBKDF2 hash is stored.
package pin

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pinSpace   = 1000000
	saltBytes  = 16
	iterations = 100000
	keyBytes   = 64
	tokenBytes = 32
)

// Generate returns a uniformly random zero-padded 6-digit PIN together with
// its stored hash in "salt_hex:hash_hex" form.
func Generate() (plaintext, storedHash string, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinSpace))
	if err != nil {
		return "", "", fmt.Errorf("failed to draw random pin: %w", err)
	}
	plaintext = fmt.Sprintf("%06d", n.Int64())

	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("failed to draw pin salt: %w", err)
	}

	key := pbkdf2.Key([]byte(plaintext), salt, iterations, keyBytes, sha256.New)
	storedHash = hex.EncodeToString(salt) + ":" + hex.EncodeToString(key)
	return plaintext, storedHash, nil
}

// Verify checks a candidate PIN against a stored "salt_hex:hash_hex" value.
// Any malformed stored hash fails closed: the answer is false, never an error.
// The hex-string comparison is not constant-time; at a 6-digit PIN space the
// online rate limit, not timing, is the effective defense.
func Verify(storedHash, candidate string) bool {
	parts := strings.Split(storedHash, ":")
	if len(parts) != 2 {
		return false
	}

	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}

	key := pbkdf2.Key([]byte(candidate), salt, iterations, keyBytes, sha256.New)
	return hex.EncodeToString(key) == parts[1]
}

// NewToken returns a fresh PIN-generation token: the single-use secret
// embedded in the emailed link.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to draw token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
