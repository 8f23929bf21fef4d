package http

import (
	"net/http"

	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/pkg/authsdk"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
)

// AdminHandler serves account administration. Access is enforced by the
// role and permission middleware in front of each route.
type AdminHandler struct {
	Roles *service.RolesService
}

// HandleListUsers handles GET /v1/admin/users
//
//	@Summary		List users
//	@Description	Lists every account with its roles. Requires the admin role.
//	@Tags			Admin
//	@Security		SessionCookie
//	@Produce		json
//	@Success		200	{array}		authsdk.AdminUserResponse	"Users"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Not signed in"
//	@Failure		403	{object}	authsdk.ErrorResponse		"Missing role"
//	@Router			/v1/admin/users [get].
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Roles.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]authsdk.AdminUserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, authsdk.AdminUserResponse{
			ID:        u.User.ID,
			Email:     u.User.Email,
			Username:  u.User.Username,
			Name:      u.User.Name,
			Roles:     u.Roles,
			CreatedAt: u.User.CreatedAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleAssignRole handles POST /v1/admin/users/{id}/roles
//
//	@Summary		Assign a role
//	@Description	Grants a role to a user. Requires the update:user:any permission.
//	@Tags			Admin
//	@Security		SessionCookie
//	@Accept			json
//	@Param			id		path	string						true	"User ID"
//	@Param			request	body	authsdk.AssignRoleRequest	true	"Role"
//	@Success		204		"Assigned"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Not signed in"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Missing permission"
//	@Failure		404		{object}	authsdk.ErrorResponse	"User or role not found"
//	@Router			/v1/admin/users/{id}/roles [post].
func (h *AdminHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AssignRoleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.Roles.AssignRole(r.Context(), r.PathValue("id"), req.Role); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDeleteUser handles DELETE /v1/admin/users/{id}
//
//	@Summary		Delete a user
//	@Description	Deletes an account with its sessions and connections. Requires the delete:user:any permission.
//	@Tags			Admin
//	@Security		SessionCookie
//	@Param			id	path	string	true	"User ID"
//	@Success		204	"Deleted"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Not signed in"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Missing permission"
//	@Failure		404	{object}	authsdk.ErrorResponse	"User not found"
//	@Router			/v1/admin/users/{id} [delete].
func (h *AdminHandler) HandleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if err := h.Roles.DeleteUser(r.Context(), r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
