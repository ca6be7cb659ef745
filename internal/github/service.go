package github

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/resourceiq/resourceiq/internal/embedding"
)

// API is the GitHub surface the service consumes. *Client implements
// it; tests substitute fakes.
type API interface {
	OrgMembers(ctx context.Context, org string) ([]Member, error)
	MemberProfile(ctx context.Context, login string) (Member, error)
	ClosedPRsByAuthor(ctx context.Context, org string, author Member, maxPRs int) ([]PRContent, error)
}

// Dialer builds an API client for one installation id. The id is
// stored by the installation webhook, so clients are constructed per
// call rather than at startup.
type Dialer func(installationID int64) (API, error)

// IntegrationStore resolves the recorded App installation.
type IntegrationStore interface {
	Get(ctx context.Context) (*Integration, error)
}

// Embedder turns context documents into normalized vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// VectorStore persists and searches pull request vectors.
type VectorStore interface {
	Upsert(ctx context.Context, v *embedding.PRVector) error
	SearchSimilar(ctx context.Context, emb []float32, opts ...embedding.SearchOption) ([]embedding.SearchResult, error)
}

// Service ties the GitHub client to the embedding pipeline: it sweeps
// closed pull requests per author and keeps github_pr_vectors current.
type Service struct {
	integrations IntegrationStore
	dial         Dialer
	embedder     Embedder
	vectors      VectorStore
	logger       *slog.Logger
}

// NewService creates a GitHub sync Service.
func NewService(integrations IntegrationStore, dial Dialer, embedder Embedder, vectors VectorStore, logger *slog.Logger) (*Service, error) {
	if integrations == nil {
		return nil, fmt.Errorf("integration store is required")
	}
	if dial == nil {
		return nil, fmt.Errorf("dialer is required")
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
		integrations: integrations,
		dial:         dial,
		embedder:     embedder,
		vectors:      vectors,
		logger:       logger,
	}, nil
}

// connect resolves the stored installation and dials the API.
func (s *Service) connect(ctx context.Context) (API, string, error) {
	integ, err := s.integrations.Get(ctx)
	if err != nil {
		return nil, "", err
	}
	installID, err := strconv.ParseInt(integ.InstallID, 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("invalid installation id %q: %w", integ.InstallID, err)
	}
	api, err := s.dial(installID)
	if err != nil {
		return nil, "", fmt.Errorf("dialing github: %w", err)
	}
	return api, integ.OrgName, nil
}

// Developers lists the members of the installed organization.
func (s *Service) Developers(ctx context.Context) ([]Member, error) {
	api, org, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	return api.OrgMembers(ctx, org)
}

// DevelopersDetailed lists organization members enriched with the
// public name and email from the user endpoint. A member whose profile
// cannot be loaded is kept with the listing fields only.
func (s *Service) DevelopersDetailed(ctx context.Context) ([]Member, error) {
	api, org, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	members, err := api.OrgMembers(ctx, org)
	if err != nil {
		return nil, err
	}
	for i, m := range members {
		detailed, err := api.MemberProfile(ctx, m.Login)
		if err != nil {
			s.logger.Warn("keeping bare member listing", "login", m.Login, "error", err)
			continue
		}
		members[i] = detailed
	}
	return members, nil
}

// AuthorPRs returns up to maxPRs closed pull requests by one member,
// contexts included, without embedding or storing anything.
func (s *Service) AuthorPRs(ctx context.Context, login string, maxPRs int) ([]PRContent, error) {
	api, org, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	author, err := s.findMember(ctx, api, org, login)
	if err != nil {
		return nil, err
	}
	return api.ClosedPRsByAuthor(ctx, org, author, maxPRs)
}

// SyncAuthor fetches, embeds, and stores pull request vectors for one
// member. Unknown logins return ErrAuthorNotFound; failures past that
// point are collected in the result instead of aborting the run.
func (s *Service) SyncAuthor(ctx context.Context, login string, maxPRs int) (*SyncResult, error) {
	api, org, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	author, err := s.findMember(ctx, api, org, login)
	if err != nil {
		return nil, err
	}
	return s.syncAuthor(ctx, api, org, author, maxPRs), nil
}

// SyncAll syncs every organization member in turn. A failing member is
// reported in its own result and never stops the others.
func (s *Service) SyncAll(ctx context.Context, maxPRsPerAuthor int) ([]*SyncResult, error) {
	api, org, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	members, err := api.OrgMembers(ctx, org)
	if err != nil {
		return nil, err
	}

	results := make([]*SyncResult, 0, len(members))
	for _, m := range members {
		if ctx.Err() != nil {
			return results, ctx.Err()
		}
		results = append(results, s.syncAuthor(ctx, api, org, m, maxPRsPerAuthor))
	}
	return results, nil
}

// SearchSimilar embeds the query and returns the nearest stored pull
// request vectors.
func (s *Service) SearchSimilar(ctx context.Context, query string, n int, authorLogin string) ([]embedding.SearchResult, error) {
	vec, err := s.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	opts := []embedding.SearchOption{embedding.WithTopK(n)}
	if authorLogin != "" {
		opts = append(opts, embedding.WithAuthor(authorLogin))
	}
	return s.vectors.SearchSimilar(ctx, vec, opts...)
}

func (s *Service) findMember(ctx context.Context, api API, org, login string) (Member, error) {
	members, err := api.OrgMembers(ctx, org)
	if err != nil {
		return Member{}, err
	}
	for _, m := range members {
		if m.Login == login {
			return m, nil
		}
	}
	return Member{}, ErrAuthorNotFound
}

func (s *Service) syncAuthor(ctx context.Context, api API, org string, author Member, maxPRs int) *SyncResult {
	start := time.Now()
	result := &SyncResult{Author: author.Login, Errors: []string{}}
	defer func() {
		result.DurationSeconds = roundSeconds(time.Since(start))
	}()

	prs, err := api.ClosedPRsByAuthor(ctx, org, author, maxPRs)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("fetching pull requests: %v", err))
		return result
	}
	result.PRsFetched = len(prs)
	if len(prs) == 0 {
		return result
	}

	texts := make([]string, len(prs))
	for i, pr := range prs {
		texts[i] = pr.Context
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("generating embeddings: %v", err))
		return result
	}

	for i, vec := range vecs {
		if vec == nil {
			result.Errors = append(result.Errors, fmt.Sprintf("embedding pr #%d failed", prs[i].Number))
			continue
		}
		if err := s.vectors.Upsert(ctx, toPRVector(prs[i], vec)); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("storing pr #%d: %v", prs[i].Number, err))
			continue
		}
		result.VectorsStored++
	}

	s.logger.Info("synced author pull requests",
		"author", author.Login,
		"fetched", result.PRsFetched,
		"stored", result.VectorsStored,
		"errors", len(result.Errors))
	return result
}

func toPRVector(pr PRContent, vec []float32) *embedding.PRVector {
	return &embedding.PRVector{
		PRID:        strconv.FormatInt(pr.ID, 10),
		PRNumber:    pr.Number,
		AuthorLogin: pr.Author.Login,
		AuthorID:    pr.Author.ID,
		RepoName:    pr.RepoName,
		Title:       pr.Title,
		URL:         pr.HTMLURL,
		Description: pr.Body,
		Embedding:   vec,
		Context:     pr.Context,
		Metadata: embedding.PRMetadata{
			ChangedFiles: pr.ChangedFiles,
			Labels:       pr.Labels,
		},
	}
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
