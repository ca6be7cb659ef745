package jira

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// WebhookEvent is the slice of a webhook delivery the service acts on.
type WebhookEvent struct {
	Event string        `json:"webhookEvent"`
	Issue *WebhookIssue `json:"issue,omitempty"`
}

// WebhookIssue identifies the issue an event concerns.
type WebhookIssue struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

// WebhookResult reports how a delivery was handled.
type WebhookResult struct {
	Status   string `json:"status"`
	Event    string `json:"event,omitempty"`
	IssueKey string `json:"issue_key,omitempty"`
	Action   string `json:"action,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// VerifySignature checks a webhook body against the X-Jira-Signature
// header: lowercase hex HMAC-SHA256 of the raw body, no prefix.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
