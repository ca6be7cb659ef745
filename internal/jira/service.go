package jira

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	defaultSyncMaxResults = 100
	workloadMaxIssues     = 500
)

// IssueAPI is the slice of the REST client the service depends on.
type IssueAPI interface {
	Projects(ctx context.Context) ([]Project, error)
	Users(ctx context.Context, max int) ([]User, error)
	ProjectUsers(ctx context.Context, projectKey string, max int) ([]User, error)
	UserByAccountID(ctx context.Context, accountID string) (*User, error)
	SearchIssues(ctx context.Context, jql string, max int, withComments bool) ([]IssueContent, error)
	IssueByKey(ctx context.Context, key string, withComments bool) (*IssueContent, error)
	BrowseURL(issueKey string) string
}

// Connector yields an authenticated IssueAPI. It is called per
// operation so OAuth token refreshes take effect immediately.
type Connector interface {
	Connect(ctx context.Context) (IssueAPI, error)
}

// IntegrationSource reads the stored site connection.
type IntegrationSource interface {
	First(ctx context.Context) (*Integration, error)
}

// Embedder turns issue contexts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorPersister is the slice of VectorStore the service uses.
type VectorPersister interface {
	Upsert(ctx context.Context, v *IssueVector) (bool, error)
	SearchSimilar(ctx context.Context, embedding []float32, opts ...VectorSearchOption) ([]VectorSearchResult, error)
	DeleteByIssueID(ctx context.Context, issueID string) error
}

// BasicCredentials is the email + API token fallback used when no
// OAuth token is stored.
type BasicCredentials struct {
	URL      string
	Email    string
	APIToken string
}

// ClientProvider is the production Connector: it prefers a stored
// OAuth token and falls back to basic credentials.
type ClientProvider struct {
	oauth      *OAuth // nil when 3LO is not configured
	fallback   BasicCredentials
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClientProvider builds a ClientProvider. oauth may be nil.
func NewClientProvider(oauth *OAuth, fallback BasicCredentials, httpClient *http.Client, logger *slog.Logger) *ClientProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClientProvider{
		oauth:      oauth,
		fallback:   fallback,
		httpClient: orDefaultClient(httpClient),
		logger:     logger,
	}
}

// Connect returns an authenticated client or ErrNotConfigured when
// neither an OAuth token nor basic credentials are available.
func (p *ClientProvider) Connect(ctx context.Context) (IssueAPI, error) {
	if p.oauth != nil {
		token, err := p.oauth.ActiveToken(ctx)
		switch {
		case err == nil:
			if token.CloudID == "" {
				return nil, fmt.Errorf("stored oauth token has no cloud id, reconnect via the jira auth flow")
			}
			return NewOAuthClient(token.CloudID, token.SiteURL, token.AccessToken, p.httpClient)
		case errors.Is(err, ErrNoToken), errors.Is(err, ErrNoRefreshToken):
			p.logger.Debug("no usable oauth token, trying basic credentials", slog.Any("reason", err))
		default:
			return nil, err
		}
	}

	client, err := NewBasicClient(p.fallback.URL, p.fallback.Email, p.fallback.APIToken, p.httpClient)
	if err != nil {
		return nil, ErrNotConfigured
	}
	return client, nil
}

// Service exposes Jira directory lookups, issue syncing into the
// vector store, live workload scoring and webhook processing.
type Service struct {
	connector    Connector
	integrations IntegrationSource // optional, supplies default project keys
	embedder     Embedder
	vectors      VectorPersister
	logger       *slog.Logger
}

// NewService wires a Jira service. integrations may be nil.
func NewService(connector Connector, integrations IntegrationSource, embedder Embedder, vectors VectorPersister, logger *slog.Logger) (*Service, error) {
	if connector == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if vectors == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		connector:    connector,
		integrations: integrations,
		embedder:     embedder,
		vectors:      vectors,
		logger:       logger,
	}, nil
}

// Projects lists the projects visible with the active credentials.
func (s *Service) Projects(ctx context.Context) ([]Project, error) {
	api, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return api.Projects(ctx)
}

// Users lists up to max human accounts on the site.
func (s *Service) Users(ctx context.Context, max int) ([]User, error) {
	api, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return api.Users(ctx, max)
}

// ProjectUsers lists the accounts assignable in one project.
func (s *Service) ProjectUsers(ctx context.Context, projectKey string, max int) ([]User, error) {
	api, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return api.ProjectUsers(ctx, projectKey, max)
}

// UserByAccountID returns one account.
func (s *Service) UserByAccountID(ctx context.Context, accountID string) (*User, error) {
	api, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return api.UserByAccountID(ctx, accountID)
}

// IssueContext fetches one issue with comments and its rendered
// embedding context.
func (s *Service) IssueContext(ctx context.Context, issueKey string) (*IssueContent, error) {
	api, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return api.IssueByKey(ctx, issueKey, true)
}

// BrowseURLs maps issue keys to links on the connected site.
func (s *Service) BrowseURLs(ctx context.Context, issueKeys []string) ([]string, error) {
	api, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	links := make([]string, len(issueKeys))
	for i, key := range issueKeys {
		links[i] = api.BrowseURL(key)
	}
	return links, nil
}

// Sync pulls issues for the requested projects and upserts their
// embeddings. Project keys fall back to the stored integration's list,
// then to every visible project. With GenerateEmbeddings false it only
// counts what a real run would fetch.
func (s *Service) Sync(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{
		Status:         "completed",
		ProjectsSynced: []string{},
		Errors:         []string{},
	}
	defer func() {
		result.DurationSeconds = round2(time.Since(start).Seconds())
	}()

	api, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}

	keys, err := s.resolveProjectKeys(ctx, api, req.ProjectKeys)
	if err != nil {
		return nil, err
	}

	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = defaultSyncMaxResults
	}
	includeClosed := boolOr(req.IncludeClosed, false)
	syncComments := boolOr(req.SyncComments, true)
	generate := boolOr(req.GenerateEmbeddings, true)

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		issues, err := api.SearchIssues(ctx, projectJQL(key, includeClosed), maxResults, syncComments)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("project %s: %v", key, err))
			continue
		}
		result.ProjectsSynced = append(result.ProjectsSynced, key)
		result.IssuesSynced += len(issues)
		if generate {
			s.embedProject(ctx, key, issues, result)
		}
	}

	if len(result.Errors) > 0 {
		result.Status = "completed_with_errors"
	}
	s.logger.Info("jira sync finished",
		slog.String("status", result.Status),
		slog.Int("projects", len(result.ProjectsSynced)),
		slog.Int("issues", result.IssuesSynced),
		slog.Int("embeddings", result.EmbeddingsGenerated),
		slog.Int("errors", len(result.Errors)),
	)
	return result, nil
}

func (s *Service) embedProject(ctx context.Context, projectKey string, issues []IssueContent, result *SyncResult) {
	if len(issues) == 0 {
		return
	}

	texts := make([]string, len(issues))
	for i := range issues {
		texts[i] = issues[i].Context
	}
	embeddings, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("project %s: embedding: %v", projectKey, err))
		return
	}

	for i := range issues {
		if i >= len(embeddings) || embeddings[i] == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("embedding issue %s failed", issues[i].IssueKey))
			continue
		}
		created, err := s.vectors.Upsert(ctx, vectorOf(&issues[i], embeddings[i]))
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("storing issue %s: %v", issues[i].IssueKey, err))
			continue
		}
		result.EmbeddingsGenerated++
		if created {
			result.IssuesCreated++
		} else {
			result.IssuesUpdated++
		}
	}
}

func (s *Service) resolveProjectKeys(ctx context.Context, api IssueAPI, requested []string) ([]string, error) {
	if keys := cleanKeys(requested); len(keys) > 0 {
		return keys, nil
	}

	if s.integrations != nil {
		integ, err := s.integrations.First(ctx)
		switch {
		case err == nil:
			if keys := cleanKeys(strings.Split(integ.ProjectKeys, ",")); len(keys) > 0 {
				return keys, nil
			}
		case !errors.Is(err, ErrNotConfigured):
			return nil, err
		}
	}

	projects, err := api.Projects(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing projects: %w", err)
	}
	keys := make([]string, 0, len(projects))
	for _, p := range projects {
		keys = append(keys, p.Key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("no projects visible with the active credentials")
	}
	return keys, nil
}

// Workload computes one assignee's live workload from their open
// issues.
func (s *Service) Workload(ctx context.Context, accountID string) (*Workload, error) {
	api, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}
	return s.workloadVia(ctx, api, accountID)
}

// Workloads computes workloads for several assignees, least loaded
// first. Assignees whose lookup fails are logged and skipped.
func (s *Service) Workloads(ctx context.Context, accountIDs []string) ([]Workload, error) {
	api, err := s.connector.Connect(ctx)
	if err != nil {
		return nil, err
	}

	workloads := make([]Workload, 0, len(accountIDs))
	for _, accountID := range accountIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w, err := s.workloadVia(ctx, api, accountID)
		if err != nil {
			s.logger.Warn("skipping workload",
				slog.String("account_id", accountID),
				slog.Any("error", err),
			)
			continue
		}
		workloads = append(workloads, *w)
	}

	sort.SliceStable(workloads, func(i, j int) bool {
		return workloads[i].WorkloadScore < workloads[j].WorkloadScore
	})
	return workloads, nil
}

func (s *Service) workloadVia(ctx context.Context, api IssueAPI, accountID string) (*Workload, error) {
	jql := fmt.Sprintf("assignee = %s AND statusCategory != Done", jqlQuote(accountID))
	issues, err := api.SearchIssues(ctx, jql, workloadMaxIssues, false)
	if err != nil {
		return nil, fmt.Errorf("searching issues for %s: %w", accountID, err)
	}
	w := ComputeWorkload(accountID, issues, time.Now().UTC())
	return &w, nil
}

// SearchSimilar embeds the query and returns the nearest stored issue
// vectors, optionally scoped to a project or assignee.
func (s *Service) SearchSimilar(ctx context.Context, query string, topK int, projectKey, assigneeAccountID string) ([]VectorSearchResult, error) {
	embedding, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	opts := []VectorSearchOption{WithIssueTopK(topK)}
	if projectKey != "" {
		opts = append(opts, WithProject(projectKey))
	}
	if assigneeAccountID != "" {
		opts = append(opts, WithAssignee(assigneeAccountID))
	}
	return s.vectors.SearchSimilar(ctx, embedding, opts...)
}

// ProcessWebhookEvent reacts to a verified webhook delivery. Failures
// are reported in the result rather than returned, so deliveries are
// always acknowledged.
func (s *Service) ProcessWebhookEvent(ctx context.Context, ev WebhookEvent) *WebhookResult {
	res := &WebhookResult{Event: ev.Event}

	switch {
	case ev.Event == "jira:issue_created" || ev.Event == "jira:issue_updated":
		action := "created"
		if ev.Event == "jira:issue_updated" {
			action = "updated"
		}
		return s.reembedIssue(ctx, ev, action)

	case ev.Event == "jira:issue_deleted":
		if ev.Issue == nil || ev.Issue.ID == "" {
			res.Status = "ignored"
			res.Reason = "no issue in payload"
			return res
		}
		res.IssueKey = ev.Issue.Key
		err := s.vectors.DeleteByIssueID(ctx, ev.Issue.ID)
		switch {
		case errors.Is(err, ErrVectorNotFound):
			res.Status = "ignored"
			res.Reason = "no stored vector"
		case err != nil:
			res.Status = "error"
			res.Error = err.Error()
		default:
			res.Status = "processed"
			res.Action = "deleted"
		}
		return res

	case strings.HasPrefix(ev.Event, "comment_"):
		return s.reembedIssue(ctx, ev, "resynced")

	case strings.HasPrefix(ev.Event, "sprint_"):
		res.Status = "acknowledged"
		return res

	default:
		res.Status = "ignored"
		return res
	}
}

func (s *Service) reembedIssue(ctx context.Context, ev WebhookEvent, action string) *WebhookResult {
	res := &WebhookResult{Event: ev.Event}
	if ev.Issue == nil || ev.Issue.Key == "" {
		res.Status = "ignored"
		res.Reason = "no issue in payload"
		return res
	}
	res.IssueKey = ev.Issue.Key

	if err := s.syncIssue(ctx, ev.Issue.Key); err != nil {
		s.logger.Error("webhook issue sync failed",
			slog.String("event", ev.Event),
			slog.String("issue_key", ev.Issue.Key),
			slog.Any("error", err),
		)
		res.Status = "error"
		res.Error = err.Error()
		return res
	}
	res.Status = "processed"
	res.Action = action
	return res
}

func (s *Service) syncIssue(ctx context.Context, issueKey string) error {
	api, err := s.connector.Connect(ctx)
	if err != nil {
		return err
	}
	issue, err := api.IssueByKey(ctx, issueKey, true)
	if err != nil {
		return err
	}
	embedding, err := s.embedder.EmbedOne(ctx, issue.Context)
	if err != nil {
		return fmt.Errorf("embedding issue %s: %w", issueKey, err)
	}
	if _, err := s.vectors.Upsert(ctx, vectorOf(issue, embedding)); err != nil {
		return err
	}
	return nil
}

func vectorOf(issue *IssueContent, embedding []float32) *IssueVector {
	v := &IssueVector{
		IssueID:    issue.IssueID,
		IssueKey:   issue.IssueKey,
		ProjectKey: issue.ProjectKey,
		Embedding:  embedding,
		Context:    issue.Context,
	}
	if issue.Assignee != nil {
		v.AssigneeAccountID = issue.Assignee.AccountID
	}
	return v
}

func projectJQL(projectKey string, includeClosed bool) string {
	jql := "project = " + jqlQuote(projectKey)
	if !includeClosed {
		jql += " AND statusCategory != Done"
	}
	return jql + " ORDER BY updated DESC"
}

// jqlQuote double-quotes a value for interpolation into JQL, which has
// no parameter binding.
func jqlQuote(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `"`, `\"`)
	return `"` + v + `"`
}

func cleanKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
