package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// NewResetToken generates a password-reset token. The raw value is handed to
// the user out-of-band; only the hash is ever persisted.
func NewResetToken() (raw, hash string, err error) {
	var buf [32]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(buf[:])
	return raw, HashResetToken(raw), nil
}

// HashResetToken derives the stored form of a raw reset token.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
