package item

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// itemCols is the standard SELECT column list for scanItem.
const itemCols = `id, title, COALESCE(description, ''), owner_id, created_at, updated_at`

// Store manages items backed by PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates an item Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Create inserts a new item for the given owner.
func (s *Store) Create(ctx context.Context, p CreateParams) (*Item, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO items (title, description, owner_id)
		 VALUES ($1, NULLIF($2, ''), $3)
		 RETURNING `+itemCols,
		p.Title, p.Description, p.OwnerID,
	)

	it, err := scanItem(row)
	if err != nil {
		return nil, fmt.Errorf("inserting item: %w", err)
	}
	return it, nil
}

// GetByID fetches an item by primary key.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+itemCols+` FROM items WHERE id = $1`, id)

	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying item %s: %w", id, err)
	}
	return it, nil
}

// ListAll returns items across all owners ordered by creation time,
// plus the total count.
func (s *Store) ListAll(ctx context.Context, limit, offset int) ([]*Item, int, error) {
	return s.list(ctx, uuid.Nil, limit, offset)
}

// ListByOwner returns the owner's items ordered by creation time, plus
// the owner's total count.
func (s *Store) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Item, int, error) {
	return s.list(ctx, ownerID, limit, offset)
}

// list implements both listing variants. A nil ownerID means no owner
// filter.
func (s *Store) list(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Item, int, error) {
	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM items WHERE $1::uuid IS NULL OR owner_id = $1`,
		nullableUUID(ownerID)).Scan(&count); err != nil {
		return nil, 0, fmt.Errorf("counting items: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+itemCols+` FROM items
		 WHERE $1::uuid IS NULL OR owner_id = $1
		 ORDER BY created_at ASC, id ASC
		 LIMIT $2 OFFSET $3`,
		nullableUUID(ownerID), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating items: %w", err)
	}

	return items, count, nil
}

// Update applies a partial update and returns the updated item.
func (s *Store) Update(ctx context.Context, id uuid.UUID, p UpdateParams) (*Item, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE items SET
		   title = COALESCE($2, title),
		   description = COALESCE(NULLIF($3, ''), description),
		   updated_at = now()
		 WHERE id = $1
		 RETURNING `+itemCols,
		id, p.Title, derefOrEmpty(p.Description),
	)

	it, err := scanItem(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("updating item %s: %w", id, err)
	}
	return it, nil
}

// Delete removes an item.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanItem reads an Item from a row using the itemCols column order.
func scanItem(row pgx.Row) (*Item, error) {
	it := &Item{}
	if err := row.Scan(
		&it.ID, &it.Title, &it.Description, &it.OwnerID,
		&it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return it, nil
}

// nullableUUID maps uuid.Nil to SQL NULL so it can disable a filter.
func nullableUUID(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
