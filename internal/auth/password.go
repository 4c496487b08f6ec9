// Package auth holds the credential primitives: password hashing, session
// token signing/verification, and reset-token generation. Everything here is
// pure computation over the configured secret; persistence lives in store.
package auth

import "golang.org/x/crypto/bcrypt"

// HashPassword produces a salted bcrypt digest of the plaintext. The salt is
// generated per call and embedded in the digest.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CheckPassword reports whether the plaintext matches the digest. bcrypt's
// comparison is constant-time over the derived key.
func CheckPassword(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
