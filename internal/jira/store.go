package jira

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// tokenCols is the standard SELECT column list for scanning OAuthToken.
const tokenCols = `id, COALESCE(cloud_id, ''), COALESCE(jira_site_url, ''), access_token,
	COALESCE(refresh_token, ''), expires_at, COALESCE(scope, ''), token_type,
	created_at, updated_at`

// TokenStore persists Atlassian OAuth tokens.
//
// TokenStore is safe for concurrent use by multiple goroutines.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates an OAuth token store.
func NewTokenStore(pool *pgxpool.Pool) (*TokenStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TokenStore{pool: pool}, nil
}

// Latest returns the token expiring furthest in the future, or
// ErrNoToken when the OAuth flow has never completed.
func (s *TokenStore) Latest(ctx context.Context) (*OAuthToken, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tokenCols+`
		 FROM jira_oauth_tokens
		 ORDER BY expires_at DESC
		 LIMIT 1`)

	tok, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("getting latest oauth token: %w", err)
	}
	return tok, nil
}

// Upsert writes the token, targeting the row with the same cloud id
// when one exists, otherwise the newest row, otherwise inserting.
// Empty cloud id and site URL never overwrite stored values, so a
// refresh response that omits them keeps the original discovery.
func (s *TokenStore) Upsert(ctx context.Context, tok *OAuthToken) (*OAuthToken, error) {
	siteURL := strings.TrimRight(strings.TrimSpace(tok.SiteURL), "/")
	tokenType := tok.TokenType
	if tokenType == "" {
		tokenType = "Bearer"
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE jira_oauth_tokens
		 SET access_token = $1,
		     refresh_token = NULLIF($2, ''),
		     expires_at = $3,
		     scope = NULLIF($4, ''),
		     token_type = $5,
		     cloud_id = COALESCE(NULLIF($6, ''), cloud_id),
		     jira_site_url = COALESCE(NULLIF($7, ''), jira_site_url),
		     updated_at = now()
		 WHERE id = (
		     SELECT id FROM jira_oauth_tokens
		     ORDER BY (cloud_id IS NOT NULL AND cloud_id = $6) DESC, created_at DESC, id DESC
		     LIMIT 1
		 )
		 RETURNING `+tokenCols,
		tok.AccessToken, tok.RefreshToken, tok.ExpiresAt, tok.Scope, tokenType,
		tok.CloudID, siteURL)

	updated, err := scanToken(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("updating oauth token: %w", err)
	}

	row = s.pool.QueryRow(ctx,
		`INSERT INTO jira_oauth_tokens
		   (access_token, refresh_token, expires_at, scope, token_type, cloud_id, jira_site_url)
		 VALUES ($1, NULLIF($2, ''), $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''))
		 RETURNING `+tokenCols,
		tok.AccessToken, tok.RefreshToken, tok.ExpiresAt, tok.Scope, tokenType,
		tok.CloudID, siteURL)

	inserted, err := scanToken(row)
	if err != nil {
		return nil, fmt.Errorf("inserting oauth token: %w", err)
	}
	return inserted, nil
}

func scanToken(row pgx.Row) (*OAuthToken, error) {
	var tok OAuthToken
	err := row.Scan(
		&tok.ID, &tok.CloudID, &tok.SiteURL, &tok.AccessToken,
		&tok.RefreshToken, &tok.ExpiresAt, &tok.Scope, &tok.TokenType,
		&tok.CreatedAt, &tok.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// IntegrationStore reads the stored Jira site connection.
type IntegrationStore struct {
	pool *pgxpool.Pool
}

// NewIntegrationStore creates a Jira integration store.
func NewIntegrationStore(pool *pgxpool.Pool) (*IntegrationStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &IntegrationStore{pool: pool}, nil
}

// First returns the stored site connection, or ErrNotConfigured when
// none exists. Callers fall back to environment configuration.
func (s *IntegrationStore) First(ctx context.Context) (*Integration, error) {
	var integ Integration
	err := s.pool.QueryRow(ctx,
		`SELECT id, jira_url, jira_email, COALESCE(project_keys, ''), created_at, updated_at
		 FROM org_integrations_jira
		 ORDER BY id
		 LIMIT 1`).Scan(
		&integ.ID, &integ.JiraURL, &integ.JiraEmail, &integ.ProjectKeys,
		&integ.CreatedAt, &integ.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("getting jira integration: %w", err)
	}
	return &integ, nil
}
