package service

import (
	"context"
	"testing"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestRolesService(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	user, _ := h.signup(t, "olivia")

	t.Run("signup grants the user role only", func(t *testing.T) {
		ok, err := h.roles.HasRole(ctx, user.ID, domain.RoleUser)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = h.roles.HasPermission(ctx, user.ID, "update:note:own")
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = h.roles.HasPermission(ctx, user.ID, "delete:user:any")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("admin grants any access", func(t *testing.T) {
		require.NoError(t, h.roles.AssignRole(ctx, user.ID, domain.RoleAdmin))
		require.NoError(t, h.roles.AssignRole(ctx, user.ID, domain.RoleAdmin))

		ok, err := h.roles.HasPermission(ctx, user.ID, "delete:user:any")
		require.NoError(t, err)
		require.True(t, ok)

		users, err := h.roles.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, users, 1)
		require.Equal(t, []string{domain.RoleAdmin, domain.RoleUser}, users[0].Roles)
	})

	t.Run("unknown names", func(t *testing.T) {
		require.ErrorIs(t, h.roles.AssignRole(ctx, "missing", domain.RoleAdmin), ErrUserNotFound)
		require.ErrorIs(t, h.roles.AssignRole(ctx, user.ID, "superuser"), ErrRoleNotFound)
		require.ErrorIs(t, h.roles.DeleteUser(ctx, "missing"), ErrUserNotFound)

		_, err := h.roles.HasPermission(ctx, user.ID, "delete-everything")
		require.Error(t, err)
	})

	t.Run("delete user", func(t *testing.T) {
		require.NoError(t, h.roles.DeleteUser(ctx, user.ID))

		ok, err := h.roles.HasRole(ctx, user.ID, domain.RoleUser)
		require.NoError(t, err)
		require.False(t, ok)
	})
}
