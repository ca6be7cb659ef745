package jira

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

// IssueVector is one embedded Jira issue.
type IssueVector struct {
	ID                int64     `json:"id"`
	IssueID           string    `json:"issue_id"`
	IssueKey          string    `json:"issue_key"`
	ProjectKey        string    `json:"project_key"`
	AssigneeAccountID string    `json:"assignee_account_id,omitempty"`
	Embedding         []float32 `json:"-"`
	Context           string    `json:"context,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// VectorSearchResult pairs a stored issue vector with its cosine
// similarity to the query, in [0, 1] for normalized embeddings.
type VectorSearchResult struct {
	IssueVector
	Similarity float64 `json:"similarity"`
}

// issueVectorCols is the standard SELECT column list for scanIssueVector.
const issueVectorCols = `id, issue_id, issue_key, project_key,
	COALESCE(assignee_account_id, ''), embedding, context, created_at, updated_at`

// VectorStore persists issue embeddings in PostgreSQL.
//
// VectorStore is safe for concurrent use by multiple goroutines.
type VectorStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewVectorStore creates an issue vector VectorStore.
func NewVectorStore(pool *pgxpool.Pool, logger *slog.Logger) (*VectorStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorStore{pool: pool, logger: logger}, nil
}

// Upsert inserts or refreshes the vector row for an issue, keyed by
// issue_id. created reports whether a new row was inserted; (xmax = 0)
// is true only for rows the statement created.
func (s *VectorStore) Upsert(ctx context.Context, v *IssueVector) (created bool, err error) {
	err = s.pool.QueryRow(ctx,
		`INSERT INTO jira_issue_vectors
		   (issue_id, issue_key, project_key, assignee_account_id, embedding, context)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		 ON CONFLICT (issue_id) DO UPDATE SET
		   issue_key = EXCLUDED.issue_key,
		   project_key = EXCLUDED.project_key,
		   assignee_account_id = EXCLUDED.assignee_account_id,
		   embedding = EXCLUDED.embedding,
		   context = EXCLUDED.context,
		   updated_at = now()
		 RETURNING (xmax = 0)`,
		v.IssueID, v.IssueKey, v.ProjectKey, v.AssigneeAccountID,
		pgvector.NewVector(v.Embedding), v.Context,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upserting issue vector %s: %w", v.IssueKey, err)
	}
	return created, nil
}

// VectorSearchOption adjusts a similarity search.
type VectorSearchOption func(*vectorSearchParams)

type vectorSearchParams struct {
	topK              int
	projectKey        string
	assigneeAccountID string
}

// WithIssueTopK limits the number of results (default 10).
func WithIssueTopK(k int) VectorSearchOption {
	return func(p *vectorSearchParams) {
		if k > 0 {
			p.topK = k
		}
	}
}

// WithProject restricts results to one project key.
func WithProject(key string) VectorSearchOption {
	return func(p *vectorSearchParams) {
		p.projectKey = key
	}
}

// WithAssignee restricts results to issues assigned to one account.
func WithAssignee(accountID string) VectorSearchOption {
	return func(p *vectorSearchParams) {
		p.assigneeAccountID = accountID
	}
}

// SearchSimilar returns the stored vectors nearest to the query
// embedding by cosine distance, most similar first.
func (s *VectorStore) SearchSimilar(ctx context.Context, embedding []float32, opts ...VectorSearchOption) ([]VectorSearchResult, error) {
	params := vectorSearchParams{topK: 10}
	for _, opt := range opts {
		opt(&params)
	}

	var project, assignee *string
	if params.projectKey != "" {
		project = &params.projectKey
	}
	if params.assigneeAccountID != "" {
		assignee = &params.assigneeAccountID
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+issueVectorCols+`, 1 - (embedding <=> $1) AS similarity
		 FROM jira_issue_vectors
		 WHERE ($2::text IS NULL OR project_key = $2)
		   AND ($3::text IS NULL OR assignee_account_id = $3)
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		pgvector.NewVector(embedding), project, assignee, params.topK)
	if err != nil {
		return nil, fmt.Errorf("searching issue vectors: %w", err)
	}
	defer rows.Close()

	var results []VectorSearchResult
	for rows.Next() {
		var r VectorSearchResult
		if err := scanIssueVector(rows, &r.IssueVector, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search result: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// List returns stored vectors, optionally filtered by project key and
// assignee, most recently updated first.
func (s *VectorStore) List(ctx context.Context, projectKey, assigneeAccountID string, limit int) ([]*IssueVector, error) {
	if limit <= 0 {
		limit = 50
	}

	var project, assignee *string
	if projectKey != "" {
		project = &projectKey
	}
	if assigneeAccountID != "" {
		assignee = &assigneeAccountID
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+issueVectorCols+`
		 FROM jira_issue_vectors
		 WHERE ($1::text IS NULL OR project_key = $1)
		   AND ($2::text IS NULL OR assignee_account_id = $2)
		 ORDER BY updated_at DESC
		 LIMIT $3`,
		project, assignee, limit)
	if err != nil {
		return nil, fmt.Errorf("listing issue vectors: %w", err)
	}
	defer rows.Close()

	var vectors []*IssueVector
	for rows.Next() {
		v := &IssueVector{}
		if err := scanIssueVector(rows, v, nil); err != nil {
			return nil, fmt.Errorf("scanning issue vector: %w", err)
		}
		vectors = append(vectors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating issue vectors: %w", err)
	}
	return vectors, nil
}

// GetByKey returns the vector for one issue key.
func (s *VectorStore) GetByKey(ctx context.Context, issueKey string) (*IssueVector, error) {
	v := &IssueVector{}
	row := s.pool.QueryRow(ctx,
		`SELECT `+issueVectorCols+` FROM jira_issue_vectors WHERE issue_key = $1`,
		issueKey)
	if err := scanIssueVector(row, v, nil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVectorNotFound
		}
		return nil, fmt.Errorf("getting issue vector %s: %w", issueKey, err)
	}
	return v, nil
}

// DeleteByIssueID removes the vector for one issue.
func (s *VectorStore) DeleteByIssueID(ctx context.Context, issueID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jira_issue_vectors WHERE issue_id = $1`, issueID)
	if err != nil {
		return fmt.Errorf("deleting issue vector %s: %w", issueID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrVectorNotFound
	}
	return nil
}

// scanIssueVector reads an IssueVector (and optionally a trailing
// similarity column) using the issueVectorCols column order.
func scanIssueVector(row pgx.Row, v *IssueVector, similarity *float64) error {
	var emb pgvector.Vector
	dest := []any{
		&v.ID, &v.IssueID, &v.IssueKey, &v.ProjectKey,
		&v.AssigneeAccountID, &emb, &v.Context, &v.CreatedAt, &v.UpdatedAt,
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
