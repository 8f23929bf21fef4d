package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// AdminListUsers lists every account. The caller needs the admin role.
func (c *SDKClient) AdminListUsers(ctx context.Context) ([]AdminUserResponse, error) {
	var out []AdminUserResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/admin/users", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminAssignRole grants a role to a user. The caller needs update:user:any.
func (c *SDKClient) AdminAssignRole(ctx context.Context, userID string, req AssignRoleRequest) error {
	path := "/v1/admin/users/" + url.PathEscape(userID) + "/roles"
	return c.doJSON(ctx, http.MethodPost, path, req, nil, http.StatusNoContent)
}

// AdminDeleteUser deletes an account and signs it out everywhere. The
// caller needs delete:user:any.
func (c *SDKClient) AdminDeleteUser(ctx context.Context, userID string) error {
	path := "/v1/admin/users/" + url.PathEscape(userID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, http.StatusNoContent)
}
