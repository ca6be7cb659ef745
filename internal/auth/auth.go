// Package auth provides password hashing, access token issuance and
// verification, and the role model used for authorization decisions.
package auth

import "errors"

var (
	// ErrInvalidToken indicates a token that failed signature,
	// structure, or expiry checks. All parse failures collapse into
	// this one error so handlers can't leak why a token was rejected.
	ErrInvalidToken = errors.New("could not validate credentials")

	// ErrInvalidRole indicates an unknown role name.
	ErrInvalidRole = errors.New("invalid role")
)

// Role is the coarse permission level attached to a user.
type Role string

// Roles ordered from most to least privileged.
const (
	RoleAdmin     Role = "admin"
	RoleModerator Role = "moderator"
	RoleUser      Role = "user"
	RoleGuest     Role = "guest"
)

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleModerator, RoleUser, RoleGuest:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

// Valid reports whether the role is one of the defined levels.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// IsAdmin reports whether the role grants administrative access.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// IsModeratorOrAdmin reports whether the role grants moderation access.
func (r Role) IsModeratorOrAdmin() bool {
	return r == RoleAdmin || r == RoleModerator
}
