package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	for _, valid := range []string{"admin", "moderator", "user", "guest"} {
		role, err := ParseRole(valid)
		require.NoError(t, err, "role %q", valid)
		assert.Equal(t, Role(valid), role)
		assert.True(t, role.Valid())
	}

	for _, invalid := range []string{"", "root", "Admin", "superuser"} {
		_, err := ParseRole(invalid)
		assert.ErrorIs(t, err, ErrInvalidRole, "role %q", invalid)
	}
}

func TestRolePredicates(t *testing.T) {
	t.Parallel()

	assert.True(t, RoleAdmin.IsAdmin())
	assert.False(t, RoleModerator.IsAdmin())

	assert.True(t, RoleAdmin.IsModeratorOrAdmin())
	assert.True(t, RoleModerator.IsModeratorOrAdmin())
	assert.False(t, RoleUser.IsModeratorOrAdmin())
	assert.False(t, RoleGuest.IsModeratorOrAdmin())
}
