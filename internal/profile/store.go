package profile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// profileCols is the standard SELECT column list for scanProfile.
const profileCols = `id, user_id,
	COALESCE(jira_account_id, ''), COALESCE(jira_display_name, ''),
	COALESCE(jira_email, ''), COALESCE(jira_avatar_url, ''), jira_connected_at,
	COALESCE(github_id, 0), COALESCE(github_login, ''), COALESCE(github_display_name, ''),
	COALESCE(github_email, ''), COALESCE(github_avatar_url, ''), github_connected_at,
	COALESCE(skills, ''), COALESCE(domains, ''),
	jira_workload, github_workload, total_workload, workload_updated_at,
	created_at, updated_at`

// workloadSortColumns whitelists ORDER BY targets for Workloads.
var workloadSortColumns = map[string]string{
	"total":  "total_workload",
	"jira":   "jira_workload",
	"github": "github_workload",
}

// Store manages resource profiles backed by PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a profile Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create inserts a profile for the user. A second profile for the same
// user returns ErrExists.
func (s *Store) Create(ctx context.Context, userID uuid.UUID, skills, domains []string) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO resource_profiles (user_id, skills, domains)
		 VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
		 RETURNING `+profileCols,
		userID, joinCSV(skills), joinCSV(domains))

	p, err := scanProfile(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrExists
		}
		return nil, fmt.Errorf("inserting profile for %s: %w", userID, err)
	}
	return p, nil
}

// GetByUserID fetches the profile owned by one user.
func (s *Store) GetByUserID(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileCols+` FROM resource_profiles WHERE user_id = $1`, userID)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile of %s: %w", userID, err)
	}
	return p, nil
}

// EnsureForUser returns the user's profile, creating an empty one on
// first access.
func (s *Store) EnsureForUser(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO resource_profiles (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return nil, fmt.Errorf("ensuring profile for %s: %w", userID, err)
	}
	return s.GetByUserID(ctx, userID)
}

// GetByJiraAccountID fetches the profile holding a Jira account.
func (s *Store) GetByJiraAccountID(ctx context.Context, accountID string) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileCols+` FROM resource_profiles WHERE jira_account_id = $1`, accountID)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile by jira account: %w", err)
	}
	return p, nil
}

// GetByGithubLogin fetches the profile holding a GitHub login.
func (s *Store) GetByGithubLogin(ctx context.Context, login string) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileCols+` FROM resource_profiles WHERE github_login = $1`, login)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying profile by github login: %w", err)
	}
	return p, nil
}

// List returns profiles filtered by connection state; a nil filter
// means either. Presence is judged the way the API exposes it:
// jira_account_id for Jira, github_login for GitHub.
func (s *Store) List(ctx context.Context, hasJira, hasGithub *bool, limit int) ([]*Profile, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	query := `SELECT ` + profileCols + ` FROM resource_profiles`
	var conds []string
	if hasJira != nil {
		conds = append(conds, presenceCond("jira_account_id", *hasJira))
	}
	if hasGithub != nil {
		conds = append(conds, presenceCond("github_login", *hasGithub))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY id ASC LIMIT $1"

	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}
	return profiles, nil
}

// ConnectJira records the Jira identity on the user's profile, creating
// the profile if missing. An account held by a different profile
// returns ErrAlreadyConnected.
func (s *Store) ConnectJira(ctx context.Context, userID uuid.UUID, identity JiraIdentity) (*Profile, error) {
	if identity.AccountID == "" {
		return nil, fmt.Errorf("jira account id is required")
	}
	if _, err := s.EnsureForUser(ctx, userID); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE resource_profiles SET
		   jira_account_id = $2,
		   jira_display_name = NULLIF($3, ''),
		   jira_email = NULLIF($4, ''),
		   jira_avatar_url = NULLIF($5, ''),
		   jira_connected_at = now(),
		   updated_at = now()
		 WHERE user_id = $1
		 RETURNING `+profileCols,
		userID, identity.AccountID, identity.DisplayName, identity.Email, identity.AvatarURL)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyConnected
		}
		return nil, fmt.Errorf("connecting jira account for %s: %w", userID, err)
	}
	return p, nil
}

// ConnectGithub records the GitHub identity on the user's profile,
// creating the profile if missing. An identity held by a different
// profile returns ErrAlreadyConnected.
func (s *Store) ConnectGithub(ctx context.Context, userID uuid.UUID, identity GithubIdentity) (*Profile, error) {
	if identity.Login == "" {
		return nil, fmt.Errorf("github login is required")
	}
	if _, err := s.EnsureForUser(ctx, userID); err != nil {
		return nil, err
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE resource_profiles SET
		   github_id = NULLIF($2::bigint, 0),
		   github_login = $3,
		   github_display_name = NULLIF($4, ''),
		   github_email = NULLIF($5, ''),
		   github_avatar_url = NULLIF($6, ''),
		   github_connected_at = now(),
		   updated_at = now()
		 WHERE user_id = $1
		 RETURNING `+profileCols,
		userID, identity.ID, identity.Login, identity.DisplayName, identity.Email, identity.AvatarURL)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyConnected
		}
		return nil, fmt.Errorf("connecting github account for %s: %w", userID, err)
	}
	return p, nil
}

// DisconnectJira clears the Jira identity and its cached workload,
// keeping total_workload consistent.
func (s *Store) DisconnectJira(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE resource_profiles SET
		   jira_account_id = NULL,
		   jira_display_name = NULL,
		   jira_email = NULL,
		   jira_avatar_url = NULL,
		   jira_connected_at = NULL,
		   jira_workload = 0,
		   total_workload = github_workload,
		   updated_at = now()
		 WHERE user_id = $1
		 RETURNING `+profileCols, userID)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("disconnecting jira account for %s: %w", userID, err)
	}
	return p, nil
}

// DisconnectGithub clears the GitHub identity and its cached workload,
// keeping total_workload consistent.
func (s *Store) DisconnectGithub(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE resource_profiles SET
		   github_id = NULL,
		   github_login = NULL,
		   github_display_name = NULL,
		   github_email = NULL,
		   github_avatar_url = NULL,
		   github_connected_at = NULL,
		   github_workload = 0,
		   total_workload = jira_workload,
		   updated_at = now()
		 WHERE user_id = $1
		 RETURNING `+profileCols, userID)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("disconnecting github account for %s: %w", userID, err)
	}
	return p, nil
}

// UpdateSkills replaces the skill and domain lists. A nil slice keeps
// the current value; an empty one clears it.
func (s *Store) UpdateSkills(ctx context.Context, userID uuid.UUID, skills, domains []string) (*Profile, error) {
	var skillsCSV, domainsCSV *string
	if skills != nil {
		v := joinCSV(skills)
		skillsCSV = &v
	}
	if domains != nil {
		v := joinCSV(domains)
		domainsCSV = &v
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE resource_profiles SET
		   skills = CASE WHEN $2::text IS NULL THEN skills ELSE NULLIF($2, '') END,
		   domains = CASE WHEN $3::text IS NULL THEN domains ELSE NULLIF($3, '') END,
		   updated_at = now()
		 WHERE user_id = $1
		 RETURNING `+profileCols,
		userID, skillsCSV, domainsCSV)

	p, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating skills for %s: %w", userID, err)
	}
	return p, nil
}

// Workloads lists cached workload figures, lightest first. sortBy is
// total, jira, or github; anything else falls back to total.
func (s *Store) Workloads(ctx context.Context, sortBy string) ([]Workload, error) {
	col, ok := workloadSortColumns[sortBy]
	if !ok {
		col = "total_workload"
	}

	rows, err := s.pool.Query(ctx,
		`SELECT user_id, COALESCE(jira_display_name, github_display_name, ''),
		        jira_workload, github_workload, total_workload, workload_updated_at
		 FROM resource_profiles
		 ORDER BY `+col+` ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing workloads: %w", err)
	}
	defer rows.Close()

	var out []Workload
	for rows.Next() {
		var w Workload
		if err := rows.Scan(&w.UserID, &w.DisplayName, &w.JiraWorkload,
			&w.GithubWorkload, &w.TotalWorkload, &w.LastUpdated); err != nil {
			return nil, fmt.Errorf("scanning workload: %w", err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating workloads: %w", err)
	}
	return out, nil
}

func presenceCond(col string, present bool) string {
	if present {
		return col + " IS NOT NULL"
	}
	return col + " IS NULL"
}

// scanProfile reads a Profile from a row using the profileCols column
// order and derives the presence booleans.
func scanProfile(row pgx.Row) (*Profile, error) {
	p := &Profile{}
	var skills, domains string
	if err := row.Scan(
		&p.ID, &p.UserID,
		&p.JiraAccountID, &p.JiraDisplayName, &p.JiraEmail, &p.JiraAvatarURL, &p.JiraConnectedAt,
		&p.GithubID, &p.GithubLogin, &p.GithubDisplayName, &p.GithubEmail, &p.GithubAvatarURL, &p.GithubConnectedAt,
		&skills, &domains,
		&p.JiraWorkload, &p.GithubWorkload, &p.TotalWorkload, &p.WorkloadUpdatedAt,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Skills = splitCSV(skills)
	p.Domains = splitCSV(domains)
	p.HasJira = p.JiraAccountID != ""
	p.HasGithub = p.GithubID != 0 || p.GithubLogin != ""
	return p, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
