package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/resourceiq/resourceiq/internal/jira"
)

// JiraService is the slice of the Jira integration service the API
// consumes.
type JiraService interface {
	Projects(ctx context.Context) ([]jira.Project, error)
	Users(ctx context.Context, max int) ([]jira.User, error)
	ProjectUsers(ctx context.Context, projectKey string, max int) ([]jira.User, error)
	UserByAccountID(ctx context.Context, accountID string) (*jira.User, error)
	Sync(ctx context.Context, req jira.SyncRequest) (*jira.SyncResult, error)
	Workload(ctx context.Context, accountID string) (*jira.Workload, error)
	Workloads(ctx context.Context, accountIDs []string) ([]jira.Workload, error)
	SearchSimilar(ctx context.Context, query string, topK int, projectKey, assigneeAccountID string) ([]jira.VectorSearchResult, error)
	IssueContext(ctx context.Context, issueKey string) (*jira.IssueContent, error)
	ProcessWebhookEvent(ctx context.Context, ev jira.WebhookEvent) *jira.WebhookResult
}

// OAuthFlow is the 3-legged OAuth flow the auth routes drive.
type OAuthFlow interface {
	AuthorizationURL() (authURL, state string, err error)
	HandleCallback(ctx context.Context, code, state string) (*jira.OAuthToken, error)
}

// IssueVectorReader reads stored issue vectors for the listing routes.
type IssueVectorReader interface {
	List(ctx context.Context, projectKey, assigneeAccountID string, limit int) ([]*jira.IssueVector, error)
	GetByKey(ctx context.Context, issueKey string) (*jira.IssueVector, error)
}

// vectorContextPreviewLen bounds the context string on listing
// responses; the full text stays in the database.
const vectorContextPreviewLen = 500

type jiraConnectResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

type jiraCallbackResponse struct {
	Status    string    `json:"status"`
	CloudID   string    `json:"cloud_id,omitempty"`
	SiteURL   string    `json:"jira_site_url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	Scope     string    `json:"scope,omitempty"`
}

// jiraHandler serves the Jira integration routes.
type jiraHandler struct {
	service       JiraService
	oauth         OAuthFlow
	vectors       IssueVectorReader
	profiles      ProfileStore
	webhookSecret string
	logger        *slog.Logger
}

// writeJiraErr maps Jira service failures onto HTTP statuses shared by
// the Jira routes.
func writeJiraErr(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, jira.ErrVectorNotFound):
		WriteError(w, http.StatusNotFound, "vector_not_found", jira.ErrVectorNotFound.Error(), logger)
	case errors.Is(err, jira.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "jira_unauthorized", err.Error(), logger)
	case errors.Is(err, jira.ErrNotConfigured), errors.Is(err, jira.ErrOAuthDisabled), errors.Is(err, jira.ErrNoToken):
		WriteError(w, http.StatusServiceUnavailable, "not_configured", err.Error(), logger)
	default:
		logger.Error("jira request failed", "error", err)
		WriteError(w, http.StatusBadGateway, "upstream_error", err.Error(), logger)
	}
}

// authConnect handles GET /api/v1/jira/auth/connect: starts the 3LO
// flow and hands the authorization URL to the caller.
func (h *jiraHandler) authConnect(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		WriteError(w, http.StatusServiceUnavailable, "not_configured", jira.ErrOAuthDisabled.Error(), h.logger)
		return
	}

	authURL, state, err := h.oauth.AuthorizationURL()
	if err != nil {
		h.logger.Error("starting oauth flow", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, jiraConnectResponse{AuthURL: authURL, State: state})
}

// authCallback handles GET /api/v1/jira/auth/callback.
func (h *jiraHandler) authCallback(w http.ResponseWriter, r *http.Request) {
	if h.oauth == nil {
		WriteError(w, http.StatusServiceUnavailable, "not_configured", jira.ErrOAuthDisabled.Error(), h.logger)
		return
	}

	q := r.URL.Query()
	code, state := q.Get("code"), q.Get("state")
	if code == "" || state == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "code and state are required", h.logger)
		return
	}

	token, err := h.oauth.HandleCallback(r.Context(), code, state)
	if errors.Is(err, jira.ErrInvalidState) {
		WriteError(w, http.StatusBadRequest, "invalid_state", jira.ErrInvalidState.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("oauth callback failed", "error", err)
		WriteError(w, http.StatusBadGateway, "upstream_error", err.Error(), h.logger)
		return
	}

	WriteJSON(w, http.StatusOK, jiraCallbackResponse{
		Status:    "connected",
		CloudID:   token.CloudID,
		SiteURL:   token.SiteURL,
		ExpiresAt: token.ExpiresAt,
		Scope:     token.Scope,
	})
}

// projects handles GET /api/v1/jira/projects.
func (h *jiraHandler) projects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.service.Projects(r.Context())
	if err != nil {
		writeJiraErr(w, err, h.logger)
		return
	}
	if projects == nil {
		projects = []jira.Project{}
	}
	WriteJSON(w, http.StatusOK, projects)
}

// users handles GET /api/v1/jira/users.
func (h *jiraHandler) users(w http.ResponseWriter, r *http.Request) {
	max, err := queryInt(r, "max_results", 100, 1, 1000)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	users, err := h.service.Users(r.Context(), max)
	if err != nil {
		writeJiraErr(w, err, h.logger)
		return
	}
	if users == nil {
		users = []jira.User{}
	}
	WriteJSON(w, http.StatusOK, users)
}

// projectUsers handles GET /api/v1/jira/projects/{key}/users.
func (h *jiraHandler) projectUsers(w http.ResponseWriter, r *http.Request) {
	max, err := queryInt(r, "max_results", 100, 1, 1000)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	users, err := h.service.ProjectUsers(r.Context(), r.PathValue("key"), max)
	if err != nil {
		writeJiraErr(w, err, h.logger)
		return
	}
	if users == nil {
		users = []jira.User{}
	}
	WriteJSON(w, http.StatusOK, users)
}

// userByAccountID handles GET /api/v1/jira/users/{account_id}.
func (h *jiraHandler) userByAccountID(w http.ResponseWriter, r *http.Request) {
	u, err := h.service.UserByAccountID(r.Context(), r.PathValue("account_id"))
	if err != nil {
		writeJiraErr(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, u)
}

// sync handles POST /api/v1/jira/sync.
func (h *jiraHandler) sync(w http.ResponseWriter, r *http.Request) {
	var req jira.SyncRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}

	result, err := h.service.Sync(r.Context(), req)
	if err != nil {
		writeJiraErr(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// listVectors handles GET /api/v1/jira/vectors. Contexts are truncated
// for the listing; embeddings are never serialized.
func (h *jiraHandler) listVectors(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 50, 1, 500)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	q := r.URL.Query()
	vectors, err := h.vectors.List(r.Context(), q.Get("project_key"), q.Get("assignee_account_id"), limit)
	if err != nil {
		h.logger.Error("listing issue vectors", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	if vectors == nil {
		vectors = []*jira.IssueVector{}
	}
	for _, v := range vectors {
		v.Context = truncateRunes(v.Context, vectorContextPreviewLen)
	}
	WriteJSON(w, http.StatusOK, vectors)
}

// getVector handles GET /api/v1/jira/vectors/{issue_key}.
func (h *jiraHandler) getVector(w http.ResponseWriter, r *http.Request) {
	v, err := h.vectors.GetByKey(r.Context(), r.PathValue("issue_key"))
	if errors.Is(err, jira.ErrVectorNotFound) {
		WriteError(w, http.StatusNotFound, "vector_not_found", jira.ErrVectorNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("loading issue vector", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, v)
}

// workload handles GET /api/v1/jira/workload/{account_id}: live load
// figures for one assignee.
func (h *jiraHandler) workload(w http.ResponseWriter, r *http.Request) {
	wl, err := h.service.Workload(r.Context(), r.PathValue("account_id"))
	if err != nil {
		writeJiraErr(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, wl)
}

// workloads handles GET /api/v1/jira/workloads: live load for every
// profile with a connected Jira account, least busy first.
func (h *jiraHandler) workloads(w http.ResponseWriter, r *http.Request) {
	hasJira := true
	profiles, err := h.profiles.List(r.Context(), &hasJira, nil, 500)
	if err != nil {
		h.logger.Error("listing jira-connected profiles", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	accountIDs := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if p.JiraAccountID != "" {
			accountIDs = append(accountIDs, p.JiraAccountID)
		}
	}

	workloads, err := h.service.Workloads(r.Context(), accountIDs)
	if err != nil {
		writeJiraErr(w, err, h.logger)
		return
	}
	if workloads == nil {
		workloads = []jira.Workload{}
	}
	WriteJSON(w, http.StatusOK, workloads)
}

// searchSimilar handles POST /api/v1/jira/search/similar.
func (h *jiraHandler) searchSimilar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("query")
	if query == "" || len(query) > maxSearchQueryLen {
		WriteError(w, http.StatusBadRequest, "validation_error", "query must be between 1 and 1000 characters", h.logger)
		return
	}
	n, err := queryInt(r, "n_results", 5, 1, 50)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	results, err := h.service.SearchSimilar(r.Context(), query, n, q.Get("project_key"), q.Get("assignee_account_id"))
	if err != nil {
		writeJiraErr(w, err, h.logger)
		return
	}
	if results == nil {
		results = []jira.VectorSearchResult{}
	}
	WriteJSON(w, http.StatusOK, results)
}

// issueContext handles GET /api/v1/jira/issues/{issue_key}/context.
func (h *jiraHandler) issueContext(w http.ResponseWriter, r *http.Request) {
	issue, err := h.service.IssueContext(r.Context(), r.PathValue("issue_key"))
	if err != nil {
		writeJiraErr(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, issue)
}

// webhook handles POST /api/v1/jira/webhook. Jira Cloud has no native
// delivery signing, so verification runs only when a shared secret is
// configured; without one deliveries are accepted with a warning.
func (h *jiraHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "unreadable body", h.logger)
		return
	}

	if h.webhookSecret == "" {
		h.logger.Warn("jira webhook secret not configured, skipping signature verification")
	} else if !jira.VerifySignature(body, r.Header.Get("X-Jira-Signature"), h.webhookSecret) {
		WriteError(w, http.StatusForbidden, "invalid_signature", "invalid signature", h.logger)
		return
	}

	var ev jira.WebhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "invalid JSON payload", h.logger)
		return
	}

	h.logger.Info("jira webhook received", "event", ev.Event)
	WriteJSON(w, http.StatusOK, h.service.ProcessWebhookEvent(r.Context(), ev))
}

// webhookTest handles GET /api/v1/jira/webhook/test, a reachability
// probe for webhook configuration.
func (h *jiraHandler) webhookTest(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"message": "Jira webhook endpoint is active",
	})
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
