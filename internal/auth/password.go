package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Password length bounds enforced before hashing. The upper bound
// stays under bcrypt's 72-byte input limit with margin.
const (
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// ErrPasswordLength is returned when a plaintext password falls
// outside the accepted bounds.
var ErrPasswordLength = fmt.Errorf("password must be between %d and %d characters", MinPasswordLen, MaxPasswordLen)

// ValidatePassword checks plaintext password bounds.
func ValidatePassword(pw string) error {
	if len(pw) < MinPasswordLen || len(pw) > MaxPasswordLen {
		return ErrPasswordLength
	}
	return nil
}

// HashPassword hashes a plaintext password with bcrypt at the default
// cost.
func HashPassword(pw string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether the plaintext password matches the
// stored bcrypt hash.
func VerifyPassword(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
