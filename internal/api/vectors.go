package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/resourceiq/resourceiq/internal/embedding"
	"github.com/resourceiq/resourceiq/internal/github"
)

// GithubService is the slice of the GitHub sync service the API
// consumes.
type GithubService interface {
	Developers(ctx context.Context) ([]github.Member, error)
	AuthorPRs(ctx context.Context, login string, maxPRs int) ([]github.PRContent, error)
	SyncAuthor(ctx context.Context, login string, maxPRs int) (*github.SyncResult, error)
	SyncAll(ctx context.Context, maxPRsPerAuthor int) ([]*github.SyncResult, error)
	SearchSimilar(ctx context.Context, query string, n int, authorLogin string) ([]embedding.SearchResult, error)
}

const maxSearchQueryLen = 1000

type searchResponse struct {
	Results []embedding.SearchResult `json:"results"`
}

// vectorHandler serves the pull request vector sync and search routes.
type vectorHandler struct {
	service GithubService
	logger  *slog.Logger
}

// writeGithubErr maps GitHub service failures onto HTTP statuses,
// shared by the vector and developer routes.
func writeGithubErr(w http.ResponseWriter, err error, logger *slog.Logger) {
	switch {
	case errors.Is(err, github.ErrAuthorNotFound):
		WriteError(w, http.StatusNotFound, "author_not_found", "author not found", logger)
	case errors.Is(err, github.ErrNotConfigured):
		WriteError(w, http.StatusServiceUnavailable, "not_configured", github.ErrNotConfigured.Error(), logger)
	default:
		logger.Error("github request failed", "error", err)
		WriteError(w, http.StatusBadGateway, "upstream_error", err.Error(), logger)
	}
}

// syncAuthor handles POST /api/v1/vectors/sync/author.
func (h *vectorHandler) syncAuthor(w http.ResponseWriter, r *http.Request) {
	login := r.URL.Query().Get("author_login")
	if login == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "author_login is required", h.logger)
		return
	}
	maxPRs, err := queryInt(r, "max_prs", 100, 1, 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	result, err := h.service.SyncAuthor(r.Context(), login, maxPRs)
	if err != nil {
		writeGithubErr(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// syncAll handles POST /api/v1/vectors/sync/all.
func (h *vectorHandler) syncAll(w http.ResponseWriter, r *http.Request) {
	maxPRs, err := queryInt(r, "max_prs_per_author", 50, 1, 100)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	results, err := h.service.SyncAll(r.Context(), maxPRs)
	if err != nil {
		writeGithubErr(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, results)
}

// search handles POST /api/v1/vectors/search.
func (h *vectorHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" || len(query) > maxSearchQueryLen {
		WriteError(w, http.StatusBadRequest, "validation_error", "query must be between 1 and 1000 characters", h.logger)
		return
	}
	n, err := queryInt(r, "n_results", 5, 1, 50)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error(), h.logger)
		return
	}

	results, err := h.service.SearchSimilar(r.Context(), query, n, r.URL.Query().Get("author_login"))
	if err != nil {
		writeGithubErr(w, err, h.logger)
		return
	}
	if results == nil {
		results = []embedding.SearchResult{}
	}
	WriteJSON(w, http.StatusOK, searchResponse{Results: results})
}
