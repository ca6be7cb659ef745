package jira

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	apiGatewayBase = "https://api.atlassian.com/ex/jira/"
	searchPageSize = 100
	defaultMaxResults = 100
)

// issueFields is every field the context builder and workload scoring
// consume.
var issueFields = strings.Join([]string{
	"summary", "description", "issuetype", "status", "priority",
	"labels", "assignee", "reporter", "created", "updated",
	"resolutiondate", "comment",
}, ",")

// Client is a minimal Jira Cloud REST v3 client. OAuth access goes
// through the api.atlassian.com gateway keyed by cloud id; basic auth
// talks to the site directly.
type Client struct {
	apiBase    string
	browseBase string
	bearer     string
	email      string
	apiToken   string
	httpClient *http.Client
}

// NewOAuthClient builds a Client for a tenant discovered during the
// OAuth flow.
func NewOAuthClient(cloudID, siteURL, accessToken string, httpClient *http.Client) (*Client, error) {
	if cloudID == "" {
		return nil, fmt.Errorf("no cloud id available for oauth access, token may predate tenant discovery")
	}
	if accessToken == "" {
		return nil, fmt.Errorf("access token is required")
	}
	return &Client{
		apiBase:    apiGatewayBase + cloudID,
		browseBase: strings.TrimRight(strings.TrimSpace(siteURL), "/"),
		bearer:     accessToken,
		httpClient: orDefaultClient(httpClient),
	}, nil
}

// NewBasicClient builds a Client using email + API token against the
// site URL. Used when no OAuth token is stored.
func NewBasicClient(jiraURL, email, apiToken string, httpClient *http.Client) (*Client, error) {
	if jiraURL == "" || email == "" || apiToken == "" {
		return nil, ErrNotConfigured
	}
	base := strings.TrimRight(strings.TrimSpace(jiraURL), "/")
	return &Client{
		apiBase:    base,
		browseBase: base,
		email:      email,
		apiToken:   apiToken,
		httpClient: orDefaultClient(httpClient),
	}, nil
}

func orDefaultClient(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// BrowseURL returns the user-facing link for an issue key.
func (c *Client) BrowseURL(issueKey string) string {
	return c.browseBase + "/browse/" + issueKey
}

// Projects returns every project reachable with the credentials.
func (c *Client) Projects(ctx context.Context) ([]Project, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/rest/api/3/project", nil, &raw); err != nil {
		return nil, err
	}

	// Bare array on most sites, {"values": [...]} on some.
	var projects []Project
	if err := json.Unmarshal(raw, &projects); err == nil {
		return projects, nil
	}
	var wrapped struct {
		Values []Project `json:"values"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("decoding projects: %w", err)
	}
	return wrapped.Values, nil
}

// Users returns up to max Atlassian accounts, excluding app and
// customer accounts.
func (c *Client) Users(ctx context.Context, max int) ([]User, error) {
	if max <= 0 {
		max = defaultMaxResults
	}
	q := url.Values{"maxResults": {strconv.Itoa(max)}}

	var raw []apiUser
	if err := c.get(ctx, "/rest/api/3/users/search", q, &raw); err != nil {
		return nil, err
	}

	users := make([]User, 0, len(raw))
	for i := range raw {
		if raw[i].AccountType != "atlassian" {
			continue
		}
		users = append(users, raw[i].toUser())
	}
	return users, nil
}

// ProjectUsers returns the accounts assignable to issues in one
// project.
func (c *Client) ProjectUsers(ctx context.Context, projectKey string, max int) ([]User, error) {
	if max <= 0 {
		max = defaultMaxResults
	}
	q := url.Values{
		"project":    {projectKey},
		"maxResults": {strconv.Itoa(max)},
	}

	var raw []apiUser
	if err := c.get(ctx, "/rest/api/3/user/assignable/search", q, &raw); err != nil {
		return nil, err
	}

	users := make([]User, 0, len(raw))
	for i := range raw {
		users = append(users, raw[i].toUser())
	}
	return users, nil
}

// UserByAccountID returns one account.
func (c *Client) UserByAccountID(ctx context.Context, accountID string) (*User, error) {
	q := url.Values{"accountId": {accountID}}

	var raw apiUser
	if err := c.get(ctx, "/rest/api/3/user", q, &raw); err != nil {
		return nil, err
	}
	u := raw.toUser()
	return &u, nil
}

// SearchIssues runs a JQL query, paging until max issues are parsed.
func (c *Client) SearchIssues(ctx context.Context, jql string, max int, withComments bool) ([]IssueContent, error) {
	if max <= 0 {
		max = defaultMaxResults
	}

	var out []IssueContent
	startAt := 0
	for len(out) < max {
		page := max - len(out)
		if page > searchPageSize {
			page = searchPageSize
		}
		q := url.Values{
			"jql":        {jql},
			"startAt":    {strconv.Itoa(startAt)},
			"maxResults": {strconv.Itoa(page)},
			"fields":     {issueFields},
		}

		var resp struct {
			Issues []apiIssue `json:"issues"`
			Total  int        `json:"total"`
		}
		if err := c.get(ctx, "/rest/api/3/search", q, &resp); err != nil {
			return nil, err
		}
		if len(resp.Issues) == 0 {
			break
		}
		for i := range resp.Issues {
			out = append(out, c.parseIssue(resp.Issues[i], withComments))
		}
		startAt += len(resp.Issues)
		if startAt >= resp.Total {
			break
		}
	}
	return out, nil
}

// IssueByKey fetches and parses one issue.
func (c *Client) IssueByKey(ctx context.Context, key string, withComments bool) (*IssueContent, error) {
	q := url.Values{"fields": {issueFields}}

	var raw apiIssue
	if err := c.get(ctx, "/rest/api/3/issue/"+url.PathEscape(key), q, &raw); err != nil {
		return nil, err
	}
	issue := c.parseIssue(raw, withComments)
	return &issue, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.apiBase + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building jira request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	} else {
		req.SetBasicAuth(c.email, c.apiToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling jira %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("jira %s returned %d: %s", path, resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding jira %s response: %w", path, err)
	}
	return nil
}

// Wire types for REST v3 payloads.

type apiUser struct {
	AccountID    string            `json:"accountId"`
	AccountType  string            `json:"accountType"`
	DisplayName  string            `json:"displayName"`
	EmailAddress string            `json:"emailAddress"`
	Active       bool              `json:"active"`
	AvatarURLs   map[string]string `json:"avatarUrls"`
}

func (u *apiUser) toUser() User {
	return User{
		AccountID:    u.AccountID,
		DisplayName:  u.DisplayName,
		EmailAddress: u.EmailAddress,
		AvatarURL:    u.AvatarURLs["48x48"],
		Active:       u.Active,
	}
}

func (u *apiUser) toUserPtr() *User {
	if u == nil {
		return nil
	}
	v := u.toUser()
	return &v
}

type apiNamed struct {
	Name string `json:"name"`
}

type apiComment struct {
	ID      string          `json:"id"`
	Author  *apiUser        `json:"author"`
	Body    json.RawMessage `json:"body"`
	Created string          `json:"created"`
	Updated string          `json:"updated"`
}

type apiIssue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary        string          `json:"summary"`
		Description    json.RawMessage `json:"description"`
		IssueType      *apiNamed       `json:"issuetype"`
		Status         *apiNamed       `json:"status"`
		Priority       *apiNamed       `json:"priority"`
		Labels         []string        `json:"labels"`
		Assignee       *apiUser        `json:"assignee"`
		Reporter       *apiUser        `json:"reporter"`
		Created        string          `json:"created"`
		Updated        string          `json:"updated"`
		ResolutionDate string          `json:"resolutiondate"`
		Comment        *struct {
			Comments []apiComment `json:"comments"`
		} `json:"comment"`
	} `json:"fields"`
}

func (c *Client) parseIssue(raw apiIssue, withComments bool) IssueContent {
	f := raw.Fields

	issue := IssueContent{
		IssueID:     raw.ID,
		IssueKey:    raw.Key,
		ProjectKey:  projectKeyOf(raw.Key),
		Summary:     f.Summary,
		Description: plainText(f.Description),
		IssueType:   namedOr(f.IssueType, "Unknown"),
		Status:      namedOr(f.Status, "Unknown"),
		Priority:    namedOr(f.Priority, ""),
		Labels:      f.Labels,
		Assignee:    f.Assignee.toUserPtr(),
		Reporter:    f.Reporter.toUserPtr(),
		IssueURL:    c.BrowseURL(raw.Key),
		CreatedAt:   parseTime(f.Created),
		UpdatedAt:   parseTime(f.Updated),
		ResolvedAt:  parseTime(f.ResolutionDate),
	}

	if withComments && f.Comment != nil {
		for _, rc := range f.Comment.Comments {
			author := rc.Author.toUserPtr()
			if author == nil {
				continue
			}
			comment := Comment{ID: rc.ID, Author: author, Body: plainText(rc.Body)}
			if created := parseTime(rc.Created); created != nil {
				comment.Created = *created
			}
			comment.Updated = parseTime(rc.Updated)
			issue.Comments = append(issue.Comments, comment)
		}
	}

	issue.Context = BuildIssueContext(issue)
	return issue
}

func namedOr(n *apiNamed, fallback string) string {
	if n == nil {
		return fallback
	}
	return n.Name
}

func projectKeyOf(issueKey string) string {
	if i := strings.Index(issueKey, "-"); i >= 0 {
		return issueKey[:i]
	}
	return issueKey
}

// jiraTimeLayouts covers RFC 3339 plus Jira's millisecond offset form
// ("2024-01-15T10:30:00.000+0000").
var jiraTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05.999-0700"}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range jiraTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
