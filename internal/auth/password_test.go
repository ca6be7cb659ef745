package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NotEmpty(t, hash)
	assert.NotContains(t, hash, "correct horse", "hash must not embed the plaintext")

	assert.True(t, VerifyPassword("correct horse battery staple", hash))
	assert.False(t, VerifyPassword("wrong password", hash))
	assert.False(t, VerifyPassword("", hash))
}

func TestHashPassword_Unique(t *testing.T) {
	t.Parallel()

	// bcrypt salts per call; identical inputs must not collide.
	h1, err := HashPassword("same-password-1")
	require.NoError(t, err)
	h2, err := HashPassword("same-password-1")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestVerifyPassword_BadHash(t *testing.T) {
	t.Parallel()

	assert.False(t, VerifyPassword("anything", "not-a-bcrypt-hash"))
	assert.False(t, VerifyPassword("anything", ""))
}

func TestValidatePassword(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pw      string
		wantErr bool
	}{
		{"minimum length", strings.Repeat("a", MinPasswordLen), false},
		{"maximum length", strings.Repeat("a", MaxPasswordLen), false},
		{"too short", strings.Repeat("a", MinPasswordLen-1), true},
		{"too long", strings.Repeat("a", MaxPasswordLen+1), true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidatePassword(tt.pw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPasswordLength)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
