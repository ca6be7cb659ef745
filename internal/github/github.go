// Package github talks to GitHub as a GitHub App installation. It
// resolves organization members, sweeps closed pull requests per
// author, and condenses each pull request into a context document
// suitable for embedding.
package github

import (
	"errors"
	"time"
)

var (
	// ErrNotConfigured indicates no GitHub App installation has been
	// recorded yet (the installation webhook has not fired).
	ErrNotConfigured = errors.New("github integration not configured")

	// ErrAuthorNotFound indicates the login is not a member of the
	// installed organization.
	ErrAuthorNotFound = errors.New("author not found in organization")
)

// Member is an organization member. Name and Email are only present
// when the member was loaded through the user endpoint; the org member
// listing omits them.
type Member struct {
	Login     string `json:"login"`
	ID        int64  `json:"id"`
	Name      string `json:"name,omitempty"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	HTMLURL   string `json:"html_url,omitempty"`
}

// FileChange is one changed file within a pull request.
type FileChange struct {
	Filename string `json:"filename"`
	Status   string `json:"status"` // added, removed, modified, renamed
}

// PRContent is a closed pull request together with the context
// document built from its metadata, file changes, and commits.
type PRContent struct {
	ID           int64    `json:"id"`
	Number       int      `json:"number"`
	Title        string   `json:"title"`
	Body         string   `json:"body,omitempty"`
	HTMLURL      string   `json:"html_url"`
	RepoName     string   `json:"repo_name"`
	Labels       []string `json:"labels,omitempty"`
	ChangedFiles []string `json:"changed_files,omitempty"`
	Author       Member   `json:"author"`
	Context      string   `json:"context,omitempty"`
}

// Integration is the recorded GitHub App installation for the
// organization. The table holds at most one meaningful row.
type Integration struct {
	ID        int64     `json:"id"`
	InstallID string    `json:"github_install_id"`
	OrgName   string    `json:"org_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SyncResult reports one author's vector sync.
type SyncResult struct {
	Author          string   `json:"author"`
	PRsFetched      int      `json:"prs_fetched"`
	VectorsStored   int      `json:"vectors_stored"`
	Errors          []string `json:"errors"`
	DurationSeconds float64  `json:"duration_seconds"`
}
