// Package item provides the item model and its PostgreSQL store.
package item

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates the requested item does not exist.
var ErrNotFound = errors.New("item not found")

// MaxTitleLen bounds the stored title column.
const MaxTitleLen = 255

// Item is a record owned by a single user. Deleting the owner cascades
// to their items.
type Item struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateParams holds the fields for inserting an item.
type CreateParams struct {
	Title       string
	Description string
	OwnerID     uuid.UUID
}

// UpdateParams holds optional fields for a partial update. Nil fields
// keep their current value.
type UpdateParams struct {
	Title       *string
	Description *string
}
