package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/resourceiq/resourceiq/internal/github"
)

// InstallationRecorder persists the GitHub App installation captured by
// the webhook.
type InstallationRecorder interface {
	UpsertInstallation(ctx context.Context, installID int64, orgName string) error
}

// githubWebhookPayload is the subset of the installation event the
// handler reads.
type githubWebhookPayload struct {
	Action       string `json:"action"`
	Installation *struct {
		ID      int64 `json:"id"`
		Account struct {
			Login string `json:"login"`
		} `json:"account"`
	} `json:"installation"`
}

// githubHandler serves the developer listing and webhook routes.
type githubHandler struct {
	service       GithubService
	installations InstallationRecorder
	webhookSecret string
	logger        *slog.Logger
}

// developers handles GET /api/v1/github/developers.
func (h *githubHandler) developers(w http.ResponseWriter, r *http.Request) {
	members, err := h.service.Developers(r.Context())
	if err != nil {
		writeGithubErr(w, err, h.logger)
		return
	}
	if members == nil {
		members = []github.Member{}
	}
	WriteJSON(w, http.StatusOK, members)
}

// authorPRs handles GET /api/v1/github/developers/{login}/prs. Returns
// pull request contexts without embedding or storing anything.
func (h *githubHandler) authorPRs(w http.ResponseWriter, r *http.Request) {
	maxPRs, err := queryInt(r, "max_prs", 100, 1, 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	prs, err := h.service.AuthorPRs(r.Context(), r.PathValue("login"), maxPRs)
	if err != nil {
		writeGithubErr(w, err, h.logger)
		return
	}
	if prs == nil {
		prs = []github.PRContent{}
	}
	WriteJSON(w, http.StatusOK, prs)
}

// webhook handles POST /api/v1/github/webhook. The delivery must carry
// a valid X-Hub-Signature-256; only installation "created" events are
// acted on, everything else is acknowledged and dropped.
func (h *githubHandler) webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "unreadable body", h.logger)
		return
	}

	if !github.VerifySignature(body, r.Header.Get("X-Hub-Signature-256"), h.webhookSecret) {
		WriteError(w, http.StatusForbidden, "invalid_signature", "invalid signature", h.logger)
		return
	}

	var payload githubWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "malformed JSON body", h.logger)
		return
	}

	if payload.Action == "created" && payload.Installation != nil {
		installID := payload.Installation.ID
		orgName := payload.Installation.Account.Login

		if err := h.installations.UpsertInstallation(r.Context(), installID, orgName); err != nil {
			h.logger.Error("recording installation", "error", err, "install_id", installID, "org", orgName)
			WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
			return
		}

		h.logger.Info("github app installation linked", "org", orgName, "install_id", installID)
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
}
