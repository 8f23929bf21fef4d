package http

import (
	"net/http"

	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/pkg/authsdk"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
)

// ProfileHandler serves the signed-in user's settings. Every route requires
// a session.
type ProfileHandler struct {
	Auth        *service.AuthService
	Accounts    *service.AccountService
	TwoFactor   *service.TwoFactorService
	Connections *service.ConnectionService
}

// HandleMe handles GET /v1/me
//
//	@Summary		Current user
//	@Description	Returns the profile, roles, two-factor status and connections of the signed-in user.
//	@Tags			Profile
//	@Security		SessionCookie
//	@Produce		json
//	@Success		200	{object}	authsdk.ProfileResponse	"Profile"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Not signed in"
//	@Router			/v1/me [get].
func (h *ProfileHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, _ := identity(r)

	p, err := h.Accounts.Profile(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	conns, err := h.Connections.List(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.ProfileResponse{
		ID:               p.User.ID,
		Email:            p.User.Email,
		Username:         p.User.Username,
		Name:             p.User.Name,
		Roles:            p.Roles,
		HasPassword:      p.HasPassword,
		TwoFactorEnabled: p.TwoFactorEnabled,
		Connections:      connectionResponses(conns),
		CreatedAt:        p.User.CreatedAt,
	})
}

// HandleChangePassword handles POST /v1/me/password
//
//	@Summary		Change password
//	@Description	Replaces the password and signs out every other session. Accounts without a password may set one
//	@Description	without the current password.
//	@Tags			Profile
//	@Security		SessionCookie
//	@Accept			json
//	@Param			request	body	authsdk.ChangePasswordRequest	true	"Passwords"
//	@Success		204		"Password changed"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Validation error or incorrect password"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Not signed in"
//	@Router			/v1/me/password [post].
func (h *ProfileHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ChangePasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, sessionID := identity(r)
	if err := h.Auth.ChangePassword(r.Context(), userID, sessionID, req.CurrentPassword, req.NewPassword); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleChangeEmail handles POST /v1/me/email
//
//	@Summary		Begin email change
//	@Description	Emails a code to the new address. Two-factor accounts must have passed the second factor recently.
//	@Tags			Profile
//	@Security		SessionCookie
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ChangeEmailRequest	true	"New email"
//	@Success		200		{object}	authsdk.FlowResponse		"Verify page"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Invalid email"
//	@Failure		401		{object}	authsdk.ErrorResponse		"Not signed in"
//	@Failure		403		{object}	authsdk.ErrorResponse		"Recent verification required"
//	@Failure		409		{object}	authsdk.ErrorResponse		"Email taken"
//	@Router			/v1/me/email [post].
func (h *ProfileHandler) HandleChangeEmail(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ChangeEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}

	userID, sessionID := identity(r)
	redirectTo, err := h.Accounts.BeginEmailChange(r.Context(), userID, sessionID, req.Email)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.FlowResponse{RedirectTo: redirectTo})
}

// HandleTwoFactorStatus handles GET /v1/me/two-factor
//
//	@Summary		Two-factor status
//	@Tags			Two-Factor
//	@Security		SessionCookie
//	@Produce		json
//	@Success		200	{object}	authsdk.TwoFactorStatusResponse	"Status"
//	@Failure		401	{object}	authsdk.ErrorResponse			"Not signed in"
//	@Router			/v1/me/two-factor [get].
func (h *ProfileHandler) HandleTwoFactorStatus(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity(r)
	enabled, err := h.TwoFactor.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorStatusResponse{Enabled: enabled})
}

// HandleTwoFactorEnroll handles POST /v1/me/two-factor
//
//	@Summary		Enrol an authenticator
//	@Description	Returns the otpauth:// URI to scan and the verify page where the first code enables two-factor.
//	@Tags			Two-Factor
//	@Security		SessionCookie
//	@Produce		json
//	@Success		200	{object}	authsdk.TwoFactorEnrollResponse	"Authenticator setup"
//	@Failure		401	{object}	authsdk.ErrorResponse			"Not signed in"
//	@Failure		409	{object}	authsdk.ErrorResponse			"Already enabled"
//	@Router			/v1/me/two-factor [post].
func (h *ProfileHandler) HandleTwoFactorEnroll(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity(r)
	e, err := h.TwoFactor.Enroll(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.TwoFactorEnrollResponse{
		KeyURI:     e.KeyURI,
		RedirectTo: e.RedirectTo,
	})
}

// HandleTwoFactorDisable handles DELETE /v1/me/two-factor
//
//	@Summary		Disable two-factor
//	@Description	Removes the authenticator. The second factor must have been passed recently.
//	@Tags			Two-Factor
//	@Security		SessionCookie
//	@Success		204	"Disabled"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Not signed in"
//	@Failure		403	{object}	authsdk.ErrorResponse	"Recent verification required"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Not enabled"
//	@Router			/v1/me/two-factor [delete].
func (h *ProfileHandler) HandleTwoFactorDisable(w http.ResponseWriter, r *http.Request) {
	userID, sessionID := identity(r)
	if err := h.TwoFactor.Disable(r.Context(), userID, sessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
