package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

// RolesService answers authorization questions about users and runs the
// administrative user operations they guard.
type RolesService struct {
	Store store.Store
}

// HasRole implements httpx.RoleChecker.
func (s *RolesService) HasRole(ctx context.Context, userID, role string) (bool, error) {
	ok, err := s.Store.Roles().UserHasRole(ctx, userID, role)
	if err != nil {
		return false, fmt.Errorf("failed to check role: %w", err)
	}
	return ok, nil
}

// HasPermission implements httpx.PermissionChecker. permission is an
// "action:entity:access" string such as "delete:user:any".
func (s *RolesService) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	p, err := domain.ParsePermission(permission)
	if err != nil {
		return false, err
	}

	ok, err := s.Store.Roles().UserHasPermission(ctx, userID, p)
	if err != nil {
		return false, fmt.Errorf("failed to check permission: %w", err)
	}
	return ok, nil
}

// AssignRole grants the named role to userID.
func (s *RolesService) AssignRole(ctx context.Context, userID, roleName string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().GetUserByID(ctx, userID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return fmt.Errorf("failed to get user: %w", err)
		}

		role, err := tx.Roles().GetRoleByName(ctx, roleName)
		if errors.Is(err, store.ErrNotFound) {
			return ErrRoleNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get role: %w", err)
		}

		if err := tx.Roles().AssignRole(ctx, userID, role.ID); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		return nil
	})
}

// ListUsers returns every account with its role names.
func (s *RolesService) ListUsers(ctx context.Context) ([]UserWithRoles, error) {
	users, err := s.Store.Users().ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]UserWithRoles, len(users))
	for i, u := range users {
		roles, err := s.Store.Roles().ListUserRoles(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list roles: %w", err)
		}
		out[i] = UserWithRoles{User: u, Roles: roleNames(roles)}
	}
	return out, nil
}

// DeleteUser removes an account. Its sessions go with it, so the user is
// signed out everywhere on their next request.
func (s *RolesService) DeleteUser(ctx context.Context, userID string) error {
	err := s.Store.Users().DeleteUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	slogx.FromContext(ctx).Info("user deleted", "deleted_user_id", userID)
	return nil
}

// UserWithRoles is one row of the admin user listing.
type UserWithRoles struct {
	User  domain.User
	Roles []string
}

func roleNames(roles []domain.Role) []string {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = r.Name
	}
	return names
}
