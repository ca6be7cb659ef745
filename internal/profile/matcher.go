package profile

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	fuzzy "github.com/paul-mannino/go-fuzzywuzzy"

	"github.com/resourceiq/resourceiq/internal/github"
	"github.com/resourceiq/resourceiq/internal/jira"
)

// DefaultMatchThreshold keeps only confident account pairings.
const DefaultMatchThreshold = 75

// matcherMaxJiraUsers caps the site directory fetch.
const matcherMaxJiraUsers = 1000

const (
	nameWeight  = 0.5
	loginWeight = 0.5
	// Logins of one or two runes barely narrow the search.
	shortLoginWeight = 0.2
)

// GithubDirectory lists organization members with profile details.
type GithubDirectory interface {
	DevelopersDetailed(ctx context.Context) ([]github.Member, error)
}

// JiraDirectory lists site user accounts.
type JiraDirectory interface {
	Users(ctx context.Context, max int) ([]jira.User, error)
}

// Match pairs a GitHub member with the Jira account it most likely
// belongs to.
type Match struct {
	GithubAccount github.Member `json:"github_account"`
	JiraAccount   jira.User     `json:"jira_account"`
	MatchScore    float64       `json:"match_score"`
}

// Matcher correlates GitHub organization members with Jira site users.
type Matcher struct {
	github GithubDirectory
	jira   JiraDirectory
	logger *slog.Logger
}

// NewMatcher creates a Matcher.
func NewMatcher(gh GithubDirectory, jr JiraDirectory, logger *slog.Logger) (*Matcher, error) {
	if gh == nil {
		return nil, fmt.Errorf("github directory is required")
	}
	if jr == nil {
		return nil, fmt.Errorf("jira directory is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{github: gh, jira: jr, logger: logger}, nil
}

// MatchJiraGithub pairs every GitHub member with its best-scoring Jira
// account and keeps pairs scoring at or above threshold (0..100).
func (m *Matcher) MatchJiraGithub(ctx context.Context, threshold float64) ([]Match, error) {
	if threshold < 0 || threshold > 100 {
		return nil, fmt.Errorf("threshold must be between 0 and 100 inclusive, got %g", threshold)
	}

	members, err := m.github.DevelopersDetailed(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing github members: %w", err)
	}
	jiraUsers, err := m.jira.Users(ctx, matcherMaxJiraUsers)
	if err != nil {
		return nil, fmt.Errorf("listing jira users: %w", err)
	}

	matches := make([]Match, 0)
	for _, member := range members {
		best, score, ok := bestJiraMatch(member, jiraUsers)
		if ok && score >= threshold {
			matches = append(matches, Match{
				GithubAccount: member,
				JiraAccount:   best,
				MatchScore:    score,
			})
		}
	}

	m.logger.Info("matched github and jira accounts",
		"github_members", len(members),
		"jira_users", len(jiraUsers),
		"matches", len(matches),
		"threshold", threshold)
	return matches, nil
}

// bestJiraMatch scores one member against every Jira user. An email
// match wins outright at 100. Otherwise display-name similarity
// carries half the score and login similarity the other half, and ok
// is false when nothing scored above zero.
func bestJiraMatch(member github.Member, jiraUsers []jira.User) (jira.User, float64, bool) {
	ghEmail := normalize(member.Email)
	ghName := normalize(member.Name)
	ghLogin := normalize(member.Login)

	var (
		best  jira.User
		score float64
		ok    bool
	)
	for _, ju := range jiraUsers {
		jrEmail := normalize(ju.EmailAddress)
		jrName := normalize(ju.DisplayName)

		if ghEmail != "" && ghEmail == jrEmail {
			return ju, 100, true
		}

		var points float64
		if ghName != "" && jrName != "" {
			points += float64(fuzzy.TokenSetRatio(ghName, jrName)) * nameWeight
		}
		if ghLogin != "" && jrName != "" {
			weight := loginWeight
			if len(ghLogin) <= 2 {
				weight = shortLoginWeight
			}
			points += float64(fuzzy.PartialRatio(ghLogin, jrName)) * weight
		}

		if points > score {
			best, score, ok = ju, points, true
		}
	}
	return best, round2(score), ok
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
