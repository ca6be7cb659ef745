package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/resourceiq/resourceiq/internal/profile"
)

// ProfileStore is the slice of the resource profile store the API
// consumes.
type ProfileStore interface {
	Create(ctx context.Context, userID uuid.UUID, skills, domains []string) (*profile.Profile, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
	EnsureForUser(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
	GetByJiraAccountID(ctx context.Context, accountID string) (*profile.Profile, error)
	GetByGithubLogin(ctx context.Context, login string) (*profile.Profile, error)
	List(ctx context.Context, hasJira, hasGithub *bool, limit int) ([]*profile.Profile, error)
	ConnectJira(ctx context.Context, userID uuid.UUID, identity profile.JiraIdentity) (*profile.Profile, error)
	ConnectGithub(ctx context.Context, userID uuid.UUID, identity profile.GithubIdentity) (*profile.Profile, error)
	DisconnectJira(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
	DisconnectGithub(ctx context.Context, userID uuid.UUID) (*profile.Profile, error)
	UpdateSkills(ctx context.Context, userID uuid.UUID, skills, domains []string) (*profile.Profile, error)
	Workloads(ctx context.Context, sortBy string) ([]profile.Workload, error)
}

// AccountMatcher pairs GitHub organization members with Jira accounts.
type AccountMatcher interface {
	MatchJiraGithub(ctx context.Context, threshold float64) ([]profile.Match, error)
}

type profileCreateRequest struct {
	UserID  uuid.UUID `json:"user_id"`
	Skills  []string  `json:"skills"`
	Domains []string  `json:"domains"`
}

type jiraConnectRequest struct {
	AccountID   string `json:"jira_account_id"`
	DisplayName string `json:"jira_display_name"`
	Email       string `json:"jira_email"`
	AvatarURL   string `json:"jira_avatar_url"`
}

type githubConnectRequest struct {
	ID          int64  `json:"github_id"`
	Login       string `json:"github_login"`
	DisplayName string `json:"github_display_name"`
	Email       string `json:"github_email"`
	AvatarURL   string `json:"github_avatar_url"`
}

type skillsUpdateRequest struct {
	Skills  []string `json:"skills"`
	Domains []string `json:"domains"`
}

// profileHandler serves the resource profile routes.
type profileHandler struct {
	profiles ProfileStore
	matcher  AccountMatcher
	logger   *slog.Logger
}

// me handles GET /api/v1/profiles/me, creating an empty profile on
// first access.
func (h *profileHandler) me(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	p, err := h.profiles.EnsureForUser(r.Context(), u.ID)
	if err != nil {
		h.logger.Error("ensuring profile", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// create handles POST /api/v1/profiles/.
func (h *profileHandler) create(w http.ResponseWriter, r *http.Request) {
	var req profileCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if req.UserID == uuid.Nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "user_id is required", h.logger)
		return
	}

	p, err := h.profiles.Create(r.Context(), req.UserID, req.Skills, req.Domains)
	if errors.Is(err, profile.ErrExists) {
		WriteError(w, http.StatusBadRequest, "profile_exists", profile.ErrExists.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("creating profile", "error", err, "user_id", req.UserID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// list handles GET /api/v1/profiles/ with optional has_jira /
// has_github presence filters.
func (h *profileHandler) list(w http.ResponseWriter, r *http.Request) {
	hasJira, err := queryBool(r, "has_jira")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}
	hasGithub, err := queryBool(r, "has_github")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}
	limit, err := queryInt(r, "limit", 50, 1, 500)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	profiles, err := h.profiles.List(r.Context(), hasJira, hasGithub, limit)
	if err != nil {
		h.logger.Error("listing profiles", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, profiles)
}

// workloads handles GET /api/v1/profiles/workloads, lightest first.
func (h *profileHandler) workloads(w http.ResponseWriter, r *http.Request) {
	sortBy := r.URL.Query().Get("sort_by")
	if sortBy == "" {
		sortBy = "total"
	}

	out, err := h.profiles.Workloads(r.Context(), sortBy)
	if err != nil {
		h.logger.Error("listing workloads", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, out)
}

// byJira handles GET /api/v1/profiles/by-jira/{account_id}.
func (h *profileHandler) byJira(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetByJiraAccountID(r.Context(), r.PathValue("account_id"))
	if errors.Is(err, profile.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "profile_not_found", profile.ErrNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("loading profile by jira account", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// byGithub handles GET /api/v1/profiles/by-github/{login}.
func (h *profileHandler) byGithub(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.GetByGithubLogin(r.Context(), r.PathValue("login"))
	if errors.Is(err, profile.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "profile_not_found", profile.ErrNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("loading profile by github login", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// connectJira handles POST /api/v1/profiles/me/connect/jira.
func (h *profileHandler) connectJira(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	var req jiraConnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if req.AccountID == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "jira_account_id is required", h.logger)
		return
	}

	p, err := h.profiles.ConnectJira(r.Context(), u.ID, profile.JiraIdentity{
		AccountID:   req.AccountID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		AvatarURL:   req.AvatarURL,
	})
	if errors.Is(err, profile.ErrAlreadyConnected) {
		WriteError(w, http.StatusBadRequest, "already_connected", "jira account already connected to another user", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("connecting jira account", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// connectGithub handles POST /api/v1/profiles/me/connect/github.
func (h *profileHandler) connectGithub(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	var req githubConnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}
	if req.Login == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "github_login is required", h.logger)
		return
	}

	p, err := h.profiles.ConnectGithub(r.Context(), u.ID, profile.GithubIdentity{
		ID:          req.ID,
		Login:       req.Login,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		AvatarURL:   req.AvatarURL,
	})
	if errors.Is(err, profile.ErrAlreadyConnected) {
		WriteError(w, http.StatusBadRequest, "already_connected", "github account already connected to another user", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("connecting github account", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// disconnectJira handles DELETE /api/v1/profiles/me/disconnect/jira.
func (h *profileHandler) disconnectJira(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	p, err := h.profiles.DisconnectJira(r.Context(), u.ID)
	if errors.Is(err, profile.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "profile_not_found", profile.ErrNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("disconnecting jira account", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// disconnectGithub handles DELETE /api/v1/profiles/me/disconnect/github.
func (h *profileHandler) disconnectGithub(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	p, err := h.profiles.DisconnectGithub(r.Context(), u.ID)
	if errors.Is(err, profile.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "profile_not_found", profile.ErrNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("disconnecting github account", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// updateSkills handles PUT /api/v1/profiles/me/skills. Omitted fields
// keep their current value.
func (h *profileHandler) updateSkills(w http.ResponseWriter, r *http.Request) {
	u, _ := currentUser(r.Context())

	var req skillsUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}

	p, err := h.profiles.UpdateSkills(r.Context(), u.ID, req.Skills, req.Domains)
	if errors.Is(err, profile.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "profile_not_found", profile.ErrNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("updating skills", "error", err, "user_id", u.ID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

// matchAccounts handles GET /api/v1/profiles/match-jira-github.
func (h *profileHandler) matchAccounts(w http.ResponseWriter, r *http.Request) {
	if h.matcher == nil {
		WriteError(w, http.StatusServiceUnavailable, "not_configured", "account matching is not configured", h.logger)
		return
	}

	threshold, err := queryFloat(r, "threshold", profile.DefaultMatchThreshold, 0, 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	matches, err := h.matcher.MatchJiraGithub(r.Context(), threshold)
	if err != nil {
		h.logger.Error("matching accounts", "error", err)
		WriteError(w, http.StatusBadGateway, "upstream_error", err.Error(), h.logger)
		return
	}
	if matches == nil {
		matches = []profile.Match{}
	}
	WriteJSON(w, http.StatusOK, matches)
}

// get handles GET /api/v1/profiles/{user_id}.
func (h *profileHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, err := pathUUID(r, "user_id")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	p, err := h.profiles.GetByUserID(r.Context(), userID)
	if errors.Is(err, profile.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "profile_not_found", profile.ErrNotFound.Error(), h.logger)
		return
	}
	if err != nil {
		h.logger.Error("loading profile", "error", err, "user_id", userID)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}
