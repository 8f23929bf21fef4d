package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

// RoleChecker reports whether a user holds a named role.
type RoleChecker interface {
	HasRole(ctx context.Context, userID, role string) (bool, error)
}

// PermissionChecker reports whether a user's roles grant an
// "action:entity:access" permission.
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID, permission string) (bool, error)
}

// RequireRole rejects callers that do not hold role. It must run after a required
// SessionMiddleware.
func RequireRole(roles RoleChecker, role string) Middleware {
	return requireGrant("role", role, roles.HasRole)
}

// RequirePermission rejects callers whose roles do not grant permission. It must run
// after a required SessionMiddleware.
func RequirePermission(perms PermissionChecker, permission string) Middleware {
	return requireGrant("permission", permission, perms.HasPermission)
}

func requireGrant(kind, name string, check func(ctx context.Context, userID, name string) (bool, error)) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			// 1. Anonymous callers never reach the check.
			userID, ok := UserIDFromContext(ctx)
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Sign in to continue")
				return
			}

			// 2. Ask the store.
			granted, err := check(ctx, userID, name)
			if err != nil {
				log.Error("failed to check "+kind, kind, name, "error", err)
				WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
				return
			}
			if !granted {
				log.Warn("forbidden", kind, name)
				WriteError(w, http.StatusForbidden, "forbidden", "Missing required "+kind+": "+name)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
