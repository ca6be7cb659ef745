package score

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/resourceiq/resourceiq/internal/embedding"
	"github.com/resourceiq/resourceiq/internal/jira"
	"github.com/resourceiq/resourceiq/internal/profile"
)

const (
	defaultMaxResults = 5
	maxResultsCap     = 100

	// prHistoryDepth bounds how many recent pull requests feed a
	// GitHub score.
	prHistoryDepth = 50

	// issueTopK bounds the similar issues feeding a Jira score.
	issueTopK = 5

	// profileScanLimit matches the profile store's listing cap.
	profileScanLimit = 500
)

// Embedder turns the task text into a vector.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// ProfileSource lists resource profiles.
type ProfileSource interface {
	List(ctx context.Context, hasJira, hasGithub *bool, limit int) ([]*profile.Profile, error)
}

// PRVectorSource reads stored pull request vectors per author.
type PRVectorSource interface {
	RecentByAuthorID(ctx context.Context, authorID int64, limit int) ([]*embedding.PRVector, error)
}

// IssueVectorSource searches stored issue vectors.
type IssueVectorSource interface {
	SearchSimilar(ctx context.Context, emb []float32, opts ...jira.VectorSearchOption) ([]jira.VectorSearchResult, error)
}

// IssueLinker renders browse links for issue keys.
type IssueLinker interface {
	BrowseURLs(ctx context.Context, issueKeys []string) ([]string, error)
}

// Service scores and ranks profiles for a task.
type Service struct {
	profiles     ProfileSource
	embedder     Embedder
	prVectors    PRVectorSource
	issueVectors IssueVectorSource
	linker       IssueLinker
	logger       *slog.Logger
}

// NewService wires a scoring Service.
func NewService(profiles ProfileSource, embedder Embedder, prVectors PRVectorSource,
	issueVectors IssueVectorSource, linker IssueLinker, logger *slog.Logger) (*Service, error) {
	if profiles == nil {
		return nil, fmt.Errorf("profile source is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if prVectors == nil {
		return nil, fmt.Errorf("pr vector source is required")
	}
	if issueVectors == nil {
		return nil, fmt.Errorf("issue vector source is required")
	}
	if linker == nil {
		return nil, fmt.Errorf("issue linker is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		profiles:     profiles,
		embedder:     embedder,
		prVectors:    prVectors,
		issueVectors: issueVectors,
		linker:       linker,
		logger:       logger,
	}, nil
}

// BestFits embeds the task and ranks every connected profile by how
// similar its pull request and issue history is to the task. Profiles
// that fail to score are logged and skipped, never fatal.
func (s *Service) BestFits(ctx context.Context, input BestFitInput) ([]ScoreProfile, error) {
	if strings.TrimSpace(input.TaskTitle) == "" {
		return nil, fmt.Errorf("task title is required")
	}
	maxResults := input.MaxResults
	if maxResults <= 0 {
		maxResults = defaultMaxResults
	}
	if maxResults > maxResultsCap {
		maxResults = maxResultsCap
	}

	profiles, err := s.profiles.List(ctx, nil, nil, profileScanLimit)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	if len(profiles) == 0 {
		return []ScoreProfile{}, nil
	}

	taskVec, err := s.embedder.EmbedOne(ctx, taskText(input))
	if err != nil {
		return nil, fmt.Errorf("embedding task: %w", err)
	}

	scored := make([]ScoreProfile, 0, len(profiles))
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if p.GithubID == 0 && p.JiraAccountID == "" {
			continue
		}
		sp, err := s.scoreProfile(ctx, p, taskVec)
		if err != nil {
			s.logger.Warn("skipping profile", "user_id", p.UserID, "error", err)
			continue
		}
		scored = append(scored, sp)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].TotalScore > scored[j].TotalScore
	})
	if len(scored) > maxResults {
		scored = scored[:maxResults]
	}

	s.logger.Info("ranked best fits",
		"profiles", len(profiles), "scored", len(scored), "max_results", maxResults)
	return scored, nil
}

func (s *Service) scoreProfile(ctx context.Context, p *profile.Profile, taskVec []float32) (ScoreProfile, error) {
	sp := ScoreProfile{
		UserID:     p.UserID,
		UserName:   displayName(p),
		PRInfo:     []PRScoreInfo{},
		IssueLinks: []string{},
	}

	if p.GithubID != 0 {
		score, info, err := s.githubScore(ctx, p.GithubID, taskVec)
		if err != nil {
			return ScoreProfile{}, fmt.Errorf("github score: %w", err)
		}
		sp.GithubPRScore = score
		sp.PRInfo = info
	}

	if p.JiraAccountID != "" {
		score, links, err := s.jiraScore(ctx, p.JiraAccountID, taskVec)
		if err != nil {
			return ScoreProfile{}, fmt.Errorf("jira score: %w", err)
		}
		sp.JiraIssueScore = score
		sp.IssueLinks = links
	}

	sp.TotalScore = round2(sp.GithubPRScore + sp.JiraIssueScore)
	return sp, nil
}

// githubScore averages the task's cosine similarity across the
// author's most recent stored pull requests, as a percentage.
func (s *Service) githubScore(ctx context.Context, githubID int64, taskVec []float32) (float64, []PRScoreInfo, error) {
	prs, err := s.prVectors.RecentByAuthorID(ctx, githubID, prHistoryDepth)
	if err != nil {
		return 0, nil, err
	}

	info := make([]PRScoreInfo, 0, len(prs))
	var sum float64
	for _, pr := range prs {
		if len(pr.Embedding) == 0 {
			continue
		}
		sim, err := cosineSimilarity(taskVec, pr.Embedding)
		if err != nil {
			return 0, nil, err
		}
		sum += sim
		info = append(info, PRScoreInfo{
			PRID:            pr.PRID,
			Title:           pr.Title,
			Description:     pr.Description,
			URL:             pr.URL,
			MatchPercentage: round2(sim * 100),
		})
	}
	if len(info) == 0 {
		return 0, info, nil
	}
	return round2(sum / float64(len(info)) * 100), info, nil
}

// jiraScore averages the similarity of the assignee's closest stored
// issues, as a percentage, and resolves their browse links.
func (s *Service) jiraScore(ctx context.Context, accountID string, taskVec []float32) (float64, []string, error) {
	results, err := s.issueVectors.SearchSimilar(ctx, taskVec,
		jira.WithIssueTopK(issueTopK), jira.WithAssignee(accountID))
	if err != nil {
		return 0, nil, err
	}
	if len(results) == 0 {
		return 0, []string{}, nil
	}

	keys := make([]string, len(results))
	var sum float64
	for i, r := range results {
		keys[i] = r.IssueKey
		sum += r.Similarity
	}

	links, err := s.linker.BrowseURLs(ctx, keys)
	if err != nil {
		s.logger.Warn("issue links unavailable, returning keys", "error", err)
		links = keys
	}
	return round2(sum / float64(len(results)) * 100), links, nil
}

func taskText(input BestFitInput) string {
	return strings.TrimSpace(input.TaskTitle + "\n\n" + input.TaskDescription)
}

func displayName(p *profile.Profile) string {
	if p.JiraDisplayName != "" {
		return p.JiraDisplayName
	}
	return p.GithubDisplayName
}

// cosineSimilarity computes similarity between two equal-length
// vectors, accumulating in float32 like the stored embeddings.
func cosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return float64(dot) / (math.Sqrt(float64(normA)) * math.Sqrt(float64(normB))), nil
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
