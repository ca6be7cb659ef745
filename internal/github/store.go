package github

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists the GitHub App installation record.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a GitHub integration Store.
func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Get returns the recorded installation, or ErrNotConfigured when the
// installation webhook has never fired.
func (s *Store) Get(ctx context.Context) (*Integration, error) {
	var integ Integration
	err := s.pool.QueryRow(ctx,
		`SELECT id, github_install_id, org_name, created_at, updated_at
		 FROM org_integrations_github
		 ORDER BY id
		 LIMIT 1`).Scan(
		&integ.ID, &integ.InstallID, &integ.OrgName, &integ.CreatedAt, &integ.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("getting github integration: %w", err)
	}
	return &integ, nil
}

// UpsertInstallation records the App installation, updating the first
// row when one exists. The table carries a single meaningful row.
func (s *Store) UpsertInstallation(ctx context.Context, installID int64, orgName string) error {
	id := strconv.FormatInt(installID, 10)

	tag, err := s.pool.Exec(ctx,
		`UPDATE org_integrations_github
		 SET github_install_id = $1, org_name = $2, updated_at = now()
		 WHERE id = (SELECT id FROM org_integrations_github ORDER BY id LIMIT 1)`,
		id, orgName)
	if err != nil {
		return fmt.Errorf("updating github integration: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO org_integrations_github (github_install_id, org_name)
		 VALUES ($1, $2)`,
		id, orgName)
	if err != nil {
		return fmt.Errorf("inserting github integration: %w", err)
	}
	return nil
}
