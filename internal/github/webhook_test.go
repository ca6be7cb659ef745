package github

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
)

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	t.Parallel()

	body := []byte(`{"action":"created"}`)

	assert.True(t, VerifySignature(body, signBody(body, "topsecret"), "topsecret"))
	assert.False(t, VerifySignature(body, signBody(body, "wrong"), "topsecret"))
	assert.False(t, VerifySignature([]byte(`{"action":"deleted"}`), signBody(body, "topsecret"), "topsecret"))
	assert.False(t, VerifySignature(body, "", "topsecret"))
	assert.False(t, VerifySignature(body, "sha256=zzzz", "topsecret"))
}
