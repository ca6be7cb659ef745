package user

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

	"github.com/resourceiq/resourceiq/internal/auth"
)

// userCols is the standard SELECT column list for scanUser.
const userCols = `id, email, hashed_password, is_active, is_superuser,
	COALESCE(full_name, ''), role, created_at, updated_at`

// dummyHash is a structurally valid bcrypt hash compared against when
// the email is unknown, so lookups take the same time either way.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Store manages users backed by PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a user Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create inserts a new user. Emails are stored lowercase; a duplicate
// returns ErrEmailTaken.
func (s *Store) Create(ctx context.Context, p CreateParams) (*User, error) {
	role := p.Role
	if role == "" {
		role = auth.RoleUser
	}
	if !role.Valid() {
		return nil, auth.ErrInvalidRole
	}

	row := s.pool.QueryRow(ctx,
		`INSERT INTO users (email, hashed_password, is_active, is_superuser, full_name, role)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
		 RETURNING `+userCols,
		strings.ToLower(strings.TrimSpace(p.Email)), p.HashedPassword,
		p.IsActive, p.IsSuperuser, p.FullName, string(role),
	)

	u, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("inserting user: %w", err)
	}
	return u, nil
}

// GetByID fetches a user by primary key.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1`, id)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user %s: %w", id, err)
	}
	return u, nil
}

// GetByEmail fetches a user by email (case-insensitive).
func (s *Store) GetByEmail(ctx context.Context, email string) (*User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE email = $1`,
		strings.ToLower(strings.TrimSpace(email)))

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}
	return u, nil
}

// List returns users ordered by creation time, plus the total count.
func (s *Store) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("counting users: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+userCols+` FROM users
		 ORDER BY created_at ASC, id ASC
		 LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating users: %w", err)
	}

	return users, count, nil
}

// Update applies a partial update and returns the updated user.
// Returns ErrNotFound if the user doesn't exist and ErrEmailTaken on
// an email conflict.
func (s *Store) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*User, error) {
	if p.Role != nil && !p.Role.Valid() {
		return nil, auth.ErrInvalidRole
	}

	var email *string
	if p.Email != nil {
		normalized := strings.ToLower(strings.TrimSpace(*p.Email))
		email = &normalized
	}
	var role *string
	if p.Role != nil {
		r := string(*p.Role)
		role = &r
	}

	row := s.pool.QueryRow(ctx,
		`UPDATE users SET
		   email = COALESCE($2, email),
		   full_name = COALESCE(NULLIF($3, ''), full_name),
		   hashed_password = COALESCE($4, hashed_password),
		   is_active = COALESCE($5, is_active),
		   is_superuser = COALESCE($6, is_superuser),
		   role = COALESCE($7, role),
		   updated_at = now()
		 WHERE id = $1
		 RETURNING `+userCols,
		id, email, derefOrEmpty(p.FullName), p.HashedPassword,
		p.IsActive, p.IsSuperuser, role,
	)

	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("updating user %s: %w", id, err)
	}
	return u, nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(ctx context.Context, id uuid.UUID, hashedPassword string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE users SET hashed_password = $2, updated_at = now() WHERE id = $1`,
		id, hashedPassword)
	if err != nil {
		return fmt.Errorf("updating password for %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a user. Owned items and the resource profile cascade.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting user %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Authenticate verifies email+password. Both unknown email and wrong
// password return ErrInvalidCredentials so responses can't be used to
// probe registered addresses.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*User, error) {
	u, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		// Burn a comparison anyway to keep timing roughly uniform.
		auth.VerifyPassword(password, dummyHash)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if !auth.VerifyPassword(password, u.HashedPassword) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// EnsureFirstSuperuser seeds the initial admin account if the email is
// not registered yet. Idempotent; reports whether a row was created.
func (s *Store) EnsureFirstSuperuser(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}

	_, err := s.GetByEmail(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}

	_, err = s.Create(ctx, CreateParams{
		Email:          email,
		HashedPassword: hash,
		IsActive:       true,
		IsSuperuser:    true,
		Role:           auth.RoleAdmin,
	})
	if errors.Is(err, ErrEmailTaken) {
		// Lost a race with a concurrent seed; the account exists.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	s.logger.Info("seeded first superuser", "email", email)
	return true, nil
}

// scanUser reads a User from a row using the userCols column order.
func scanUser(row pgx.Row) (*User, error) {
	u := &User{}
	var role string
	if err := row.Scan(
		&u.ID, &u.Email, &u.HashedPassword, &u.IsActive, &u.IsSuperuser,
		&u.FullName, &role, &u.CreatedAt, &u.UpdatedAt,
	); err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	return u, nil
}

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
