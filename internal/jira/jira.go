// Package jira integrates with Jira Cloud: OAuth 2.0 (3LO) token
// management, a REST v3 client, issue-to-context distillation, vector
// sync, and live workload scoring per assignee.
package jira

import (
	"errors"
	"time"
)

var (
	// ErrOAuthDisabled indicates the Atlassian OAuth client settings
	// are not configured.
	ErrOAuthDisabled = errors.New("atlassian oauth is not configured")

	// ErrInvalidState indicates an OAuth callback carried a state
	// token that failed verification or expired.
	ErrInvalidState = errors.New("invalid or expired state")

	// ErrNoToken indicates no OAuth token has been stored yet.
	ErrNoToken = errors.New("no jira oauth token stored")

	// ErrNoRefreshToken indicates the stored token is expiring and
	// cannot be renewed.
	ErrNoRefreshToken = errors.New("token expiring and no refresh token available")

	// ErrNotConfigured indicates neither OAuth nor basic-auth
	// credentials are available.
	ErrNotConfigured = errors.New("jira credentials not configured")

	// ErrUnauthorized indicates Jira rejected the credentials. The
	// usual causes are an unauthorized OAuth app, a token for the
	// wrong workspace, or missing read:jira-work scope.
	ErrUnauthorized = errors.New("jira rejected the credentials: verify the OAuth app authorization, workspace, and granted scopes")

	// ErrVectorNotFound indicates no issue vector matched the lookup.
	ErrVectorNotFound = errors.New("issue vector not found")
)

// Project is a Jira project reachable with the active credentials.
type Project struct {
	ID   string `json:"id"`
	Key  string `json:"key"`
	Name string `json:"name"`
}

// User is a Jira Cloud account.
type User struct {
	AccountID    string `json:"account_id"`
	DisplayName  string `json:"display_name,omitempty"`
	EmailAddress string `json:"email_address,omitempty"`
	AvatarURL    string `json:"avatar_url,omitempty"`
	Active       bool   `json:"active"`
}

// Comment is one issue comment.
type Comment struct {
	ID      string     `json:"id"`
	Author  *User      `json:"author,omitempty"`
	Body    string     `json:"body"`
	Created time.Time  `json:"created"`
	Updated *time.Time `json:"updated,omitempty"`
}

// IssueContent is a Jira issue together with the context document
// built from it.
type IssueContent struct {
	IssueID     string     `json:"issue_id"`
	IssueKey    string     `json:"issue_key"`
	ProjectKey  string     `json:"project_key"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	IssueType   string     `json:"issue_type"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority,omitempty"`
	Labels      []string   `json:"labels,omitempty"`
	Assignee    *User      `json:"assignee,omitempty"`
	Reporter    *User      `json:"reporter,omitempty"`
	IssueURL    string     `json:"issue_url"`
	Comments    []Comment  `json:"comments,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
	Context     string     `json:"context,omitempty"`
}

// OAuthToken is a stored Atlassian access token. SiteURL is the
// customer-facing site for browse links; API calls go through the
// api.atlassian.com gateway keyed by CloudID.
type OAuthToken struct {
	ID           int64     `json:"id"`
	CloudID      string    `json:"cloud_id,omitempty"`
	SiteURL      string    `json:"jira_site_url,omitempty"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
	TokenType    string    `json:"token_type"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Integration is the stored Jira site connection used as a basic-auth
// fallback and as the default project list for syncs.
type Integration struct {
	ID          int64     `json:"id"`
	JiraURL     string    `json:"jira_url"`
	JiraEmail   string    `json:"jira_email"`
	ProjectKeys string    `json:"project_keys,omitempty"` // comma-separated
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Workload is the weighted load of one assignee, computed live from
// their open issues.
type Workload struct {
	AccountID           string     `json:"jira_account_id"`
	DisplayName         string     `json:"display_name,omitempty"`
	Email               string     `json:"email,omitempty"`
	OpenIssues          int        `json:"open_issues"`
	InProgressIssues    int        `json:"in_progress_issues"`
	InReviewIssues      int        `json:"in_review_issues"`
	TotalActiveIssues   int        `json:"total_active_issues"`
	HighPriorityCount   int        `json:"high_priority_count"`
	MediumPriorityCount int        `json:"medium_priority_count"`
	LowPriorityCount    int        `json:"low_priority_count"`
	BugsCount           int        `json:"bugs_count"`
	TasksCount          int        `json:"tasks_count"`
	StoriesCount        int        `json:"stories_count"`
	OtherCount          int        `json:"other_count"`
	WorkloadScore       float64    `json:"workload_score"`
	LastUpdated         *time.Time `json:"last_updated,omitempty"`
}

// SyncRequest selects what a manual issue sync covers.
type SyncRequest struct {
	ProjectKeys        []string `json:"project_keys,omitempty"`
	MaxResults         int      `json:"max_results"`
	IncludeClosed      *bool    `json:"include_closed,omitempty"`
	SyncComments       *bool    `json:"sync_comments,omitempty"`
	GenerateEmbeddings *bool    `json:"generate_embeddings,omitempty"`
}

// SyncResult reports one sync run.
type SyncResult struct {
	Status              string   `json:"status"`
	ProjectsSynced      []string `json:"projects_synced"`
	IssuesSynced        int      `json:"issues_synced"`
	IssuesUpdated       int      `json:"issues_updated"`
	IssuesCreated       int      `json:"issues_created"`
	EmbeddingsGenerated int      `json:"embeddings_generated"`
	Errors              []string `json:"errors"`
	DurationSeconds     float64  `json:"sync_duration_seconds"`
}
