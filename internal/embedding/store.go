package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrVectorNotFound indicates no vector row matched the lookup.
var ErrVectorNotFound = errors.New("vector not found")

// PRVector is one embedded pull request.
type PRVector struct {
	ID          int64      `json:"id"`
	PRID        string     `json:"pr_id"`
	PRNumber    int        `json:"pr_number"`
	AuthorLogin string     `json:"author_login"`
	AuthorID    int64      `json:"author_id"`
	RepoName    string     `json:"repo_name"`
	Title       string     `json:"pr_title"`
	URL         string     `json:"pr_url"`
	Description string     `json:"pr_description"`
	Embedding   []float32  `json:"-"`
	Context     string     `json:"context,omitempty"`
	Metadata    PRMetadata `json:"metadata"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PRMetadata is the jsonb payload stored next to each vector.
type PRMetadata struct {
	ChangedFiles []string `json:"changed_files,omitempty"`
	Labels       []string `json:"labels,omitempty"`
}

// SearchResult pairs a stored vector with its cosine similarity to the
// query, in [0, 1] for normalized embeddings.
type SearchResult struct {
	PRVector
	Similarity float64 `json:"similarity"`
}

// prVectorCols is the standard SELECT column list for scanPRVector.
const prVectorCols = `id, pr_id, pr_number, author_login, author_id, repo_name,
	pr_title, pr_url, pr_description, embedding, context,
	COALESCE(metadata, '{}'::jsonb), created_at, updated_at`

// Store persists pull request embeddings in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a pull request vector Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Upsert inserts or refreshes the vector row for a pull request,
// keyed by pr_id. Re-syncing an author is therefore idempotent.
func (s *Store) Upsert(ctx context.Context, v *PRVector) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO github_pr_vectors
		   (pr_id, pr_number, author_login, author_id, repo_name,
		    pr_title, pr_url, pr_description, embedding, context, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (pr_id) DO UPDATE SET
		   pr_number = EXCLUDED.pr_number,
		   author_login = EXCLUDED.author_login,
		   author_id = EXCLUDED.author_id,
		   repo_name = EXCLUDED.repo_name,
		   pr_title = EXCLUDED.pr_title,
		   pr_url = EXCLUDED.pr_url,
		   pr_description = EXCLUDED.pr_description,
		   embedding = EXCLUDED.embedding,
		   context = EXCLUDED.context,
		   metadata = EXCLUDED.metadata,
		   updated_at = now()`,
		v.PRID, v.PRNumber, v.AuthorLogin, v.AuthorID, v.RepoName,
		v.Title, v.URL, v.Description, pgvector.NewVector(v.Embedding),
		v.Context, v.Metadata,
	)
	if err != nil {
		return fmt.Errorf("upserting pr vector %s: %w", v.PRID, err)
	}
	return nil
}

// SearchOption adjusts a similarity search.
type SearchOption func(*searchParams)

type searchParams struct {
	topK        int
	authorLogin string
}

// WithTopK limits the number of results (default 10).
func WithTopK(k int) SearchOption {
	return func(p *searchParams) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithAuthor restricts results to one author's pull requests.
func WithAuthor(login string) SearchOption {
	return func(p *searchParams) {
		p.authorLogin = login
	}
}

// SearchSimilar returns the stored vectors nearest to the query
// embedding by cosine distance, most similar first.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, opts ...SearchOption) ([]SearchResult, error) {
	params := searchParams{topK: 10}
	for _, opt := range opts {
		opt(&params)
	}

	var author *string
	if params.authorLogin != "" {
		author = &params.authorLogin
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+prVectorCols+`, 1 - (embedding <=> $1) AS similarity
		 FROM github_pr_vectors
		 WHERE $2::text IS NULL OR author_login = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		pgvector.NewVector(embedding), author, params.topK)
	if err != nil {
		return nil, fmt.Errorf("searching pr vectors: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := scanPRVector(rows, &r.PRVector, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// RecentByAuthorID returns up to limit vectors for the author, newest
// pull requests first.
func (s *Store) RecentByAuthorID(ctx context.Context, authorID int64, limit int) ([]*PRVector, error) {
	if limit <= 0 {
		limit = 50
	}

	// pr_id holds a formatted GitHub id; cast so newest means numerically
	// largest rather than lexicographically.
	rows, err := s.pool.Query(ctx,
		`SELECT `+prVectorCols+`
		 FROM github_pr_vectors
		 WHERE author_id = $1
		 ORDER BY pr_id::bigint DESC
		 LIMIT $2`,
		authorID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying vectors for author %d: %w", authorID, err)
	}
	defer rows.Close()

	var vectors []*PRVector
	for rows.Next() {
		v := &PRVector{}
		if err := scanPRVector(rows, v, nil); err != nil {
			return nil, fmt.Errorf("scanning pr vector: %w", err)
		}
		vectors = append(vectors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pr vectors: %w", err)
	}
	return vectors, nil
}

// CountByAuthor returns the number of stored vectors for one author login.
func (s *Store) CountByAuthor(ctx context.Context, login string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM github_pr_vectors WHERE author_login = $1`,
		login).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting vectors for %s: %w", login, err)
	}
	return count, nil
}

// Count returns the total number of stored vectors.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM github_pr_vectors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return count, nil
}

// DeleteByPRID removes the vector for one pull request.
func (s *Store) DeleteByPRID(ctx context.Context, prID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM github_pr_vectors WHERE pr_id = $1`, prID)
	if err != nil {
		return fmt.Errorf("deleting pr vector %s: %w", prID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVectorNotFound
	}
	return nil
}

// scanPRVector reads a PRVector (and optionally a trailing similarity
// column) using the prVectorCols column order.
func scanPRVector(row pgx.Row, v *PRVector, similarity *float64) error {
	var emb pgvector.Vector
	dest := []any{
		&v.ID, &v.PRID, &v.PRNumber, &v.AuthorLogin, &v.AuthorID, &v.RepoName,
		&v.Title, &v.URL, &v.Description, &emb, &v.Context,
		&v.Metadata, &v.CreatedAt, &v.UpdatedAt,
	}
	if similarity != nil {
		dest = append(dest, similarity)
	}
	if err := row.Scan(dest...); err != nil {
		return err
	}
	v.Embedding = emb.Slice()
	return nil
}
