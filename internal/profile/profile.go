// Package profile links internal users to their Jira and GitHub
// identities. It stores one resource profile per user, caches workload
// figures, and matches accounts across the two directories by email
// and fuzzy name similarity.
package profile

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound indicates no profile exists for the requested key.
	ErrNotFound = errors.New("profile not found")

	// ErrExists indicates the user already has a profile.
	ErrExists = errors.New("profile already exists for this user")

	// ErrAlreadyConnected indicates the external identity is recorded
	// on a different user's profile.
	ErrAlreadyConnected = errors.New("account already connected to another user")
)

// Profile links one user to external identities. Identity strings are
// empty when that side is not connected; HasJira and HasGithub are
// derived on read, never stored.
type Profile struct {
	ID     int64     `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	JiraAccountID   string     `json:"jira_account_id,omitempty"`
	JiraDisplayName string     `json:"jira_display_name,omitempty"`
	JiraEmail       string     `json:"jira_email,omitempty"`
	JiraAvatarURL   string     `json:"jira_avatar_url,omitempty"`
	JiraConnectedAt *time.Time `json:"jira_connected_at,omitempty"`
	HasJira         bool       `json:"has_jira"`

	GithubID          int64      `json:"github_id,omitempty"`
	GithubLogin       string     `json:"github_login,omitempty"`
	GithubDisplayName string     `json:"github_display_name,omitempty"`
	GithubEmail       string     `json:"github_email,omitempty"`
	GithubAvatarURL   string     `json:"github_avatar_url,omitempty"`
	GithubConnectedAt *time.Time `json:"github_connected_at,omitempty"`
	HasGithub         bool       `json:"has_github"`

	Skills  []string `json:"skills"`
	Domains []string `json:"domains"`

	JiraWorkload      int        `json:"jira_workload"`
	GithubWorkload    int        `json:"github_workload"`
	TotalWorkload     int        `json:"total_workload"`
	WorkloadUpdatedAt *time.Time `json:"workload_updated_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JiraIdentity is the external identity recorded by ConnectJira.
type JiraIdentity struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// GithubIdentity is the external identity recorded by ConnectGithub.
type GithubIdentity struct {
	ID          int64  `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// Workload is one row of the cached workload listing. DisplayName
// prefers the Jira identity and falls back to the GitHub one.
type Workload struct {
	UserID         uuid.UUID  `json:"user_id"`
	DisplayName    string     `json:"display_name,omitempty"`
	JiraWorkload   int        `json:"jira_workload"`
	GithubWorkload int        `json:"github_workload"`
	TotalWorkload  int        `json:"total_workload"`
	LastUpdated    *time.Time `json:"last_updated,omitempty"`
}

// splitCSV turns a stored comma-separated column into a slice. Always
// returns a non-nil slice so JSON renders [] rather than null.
func splitCSV(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// joinCSV is the inverse of splitCSV.
func joinCSV(vals []string) string {
	parts := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, ",")
}
