// Package user provides the user model and its PostgreSQL store,
// including credential verification and the first-superuser seed.
package user

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/resourceiq/resourceiq/internal/auth"
)

var (
	// ErrNotFound indicates the requested user does not exist.
	ErrNotFound = errors.New("user not found")

	// ErrEmailTaken indicates another user already registered the email.
	ErrEmailTaken = errors.New("a user with this email already exists")

	// ErrInvalidCredentials indicates authentication failed. Callers
	// must not reveal whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("incorrect email or password")
)

// MaxEmailLen bounds the stored email column.
const MaxEmailLen = 255

// User is a registered account.
type User struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"`
	IsActive       bool      `json:"is_active"`
	IsSuperuser    bool      `json:"is_superuser"`
	FullName       string    `json:"full_name,omitempty"`
	Role           auth.Role `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CreateParams holds the fields for inserting a user. Password must
// already be hashed.
type CreateParams struct {
	Email          string
	HashedPassword string
	IsActive       bool
	IsSuperuser    bool
	FullName       string
	Role           auth.Role
}

// UpdateParams holds optional fields for a partial update. Nil fields
// keep their current value. HashedPassword must be pre-hashed.
type UpdateParams struct {
	Email          *string
	FullName       *string
	HashedPassword *string
	IsActive       *bool
	IsSuperuser    *bool
	Role           *auth.Role
}
