package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleFromResourceAccess(t *testing.T) {
	t.Parallel()

	ra := map[string]ClientRoles{
		"my-client": {Roles: []string{"admin", "user"}},
		"empty":     {},
	}

	t.Run("first listed role wins", func(t *testing.T) {
		assert.Equal(t, "admin", RoleFromResourceAccess(ra, "my-client"))
	})

	t.Run("no matching client defaults to user", func(t *testing.T) {
		assert.Equal(t, "user", RoleFromResourceAccess(ra, "other-client"))
	})

	t.Run("empty role list defaults to user", func(t *testing.T) {
		assert.Equal(t, "user", RoleFromResourceAccess(ra, "empty"))
	})

	t.Run("nil claim map defaults to user", func(t *testing.T) {
		assert.Equal(t, "user", RoleFromResourceAccess(nil, "my-client"))
	})

	t.Run("empty client id defaults to user", func(t *testing.T) {
		assert.Equal(t, "user", RoleFromResourceAccess(ra, ""))
	})
}
