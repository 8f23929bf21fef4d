package http

import (
	"net/http"

	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/pkg/authsdk"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
)

// ConnectionsHandler handles provider sign-in and linked accounts.
type ConnectionsHandler struct {
	Connections *service.ConnectionService
	sessions    *sessionWriter
}

// HandleBegin handles GET /v1/auth/{provider}
//
//	@Summary		Begin provider sign-in
//	@Description	Redirects to the provider's authorization page. Used both to sign in and, when signed in, to connect
//	@Description	the provider account.
//	@Tags			Connections
//	@Param			provider	path	string	true	"Provider name"
//	@Param			redirectTo	query	string	false	"Where to go after signing in"
//	@Success		302			"Redirect to the provider"
//	@Failure		404			{object}	authsdk.ErrorResponse	"Unknown provider"
//	@Router			/v1/auth/{provider} [get].
func (h *ConnectionsHandler) HandleBegin(w http.ResponseWriter, r *http.Request) {
	authURL, err := h.Connections.Begin(r.Context(), r.PathValue("provider"), r.URL.Query().Get("redirectTo"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.NoCache(w)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleCallback handles GET /v1/auth/{provider}/callback
//
//	@Summary		Provider callback
//	@Description	Completes provider sign-in. The response redirects to the next page and its body names the branch
//	@Description	taken: auth_failed, already_connected_self, already_connected_other, logged_in, connected or
//	@Description	onboarding.
//	@Tags			Connections
//	@Produce		json
//	@Param			provider	path		string					true	"Provider name"
//	@Param			code		query		string					true	"Authorization code"
//	@Param			state		query		string					true	"State token"
//	@Success		302			{object}	authsdk.FlowResponse	"Next page"
//	@Failure		404			{object}	authsdk.ErrorResponse	"Unknown provider"
//	@Router			/v1/auth/{provider}/callback [get].
func (h *ConnectionsHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity(r)
	q := r.URL.Query()

	out, err := h.Connections.HandleCallback(r.Context(), service.CallbackInput{
		Provider: r.PathValue("provider"),
		Code:     q.Get("code"),
		State:    q.Get("state"),
		UserID:   userID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.FlowResponse{
		RedirectTo: out.RedirectTo,
		Message:    out.Message,
		Result:     string(out.Result),
	}
	if out.Session != nil {
		if err := h.sessions.commit(w, r, *out.Session); err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp.TwoFactorRequired = out.Session.TwoFactorRequired
	}

	w.Header().Set("Location", out.RedirectTo)
	httpx.WriteJSON(w, http.StatusFound, resp)
}

// HandleList handles GET /v1/me/connections
//
//	@Summary		List connections
//	@Tags			Connections
//	@Security		SessionCookie
//	@Produce		json
//	@Success		200	{array}		authsdk.ConnectionResponse	"Connections"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Not signed in"
//	@Router			/v1/me/connections [get].
func (h *ConnectionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity(r)
	conns, err := h.Connections.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, connectionResponses(conns))
}

// HandleDisconnect handles DELETE /v1/me/connections/{id}
//
//	@Summary		Disconnect a provider
//	@Description	Removes a linked provider account unless it is the only way left to sign in.
//	@Tags			Connections
//	@Security		SessionCookie
//	@Param			id	path	string	true	"Connection ID"
//	@Success		204	"Disconnected"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Not signed in"
//	@Failure		404	{object}	authsdk.ErrorResponse	"Connection not found"
//	@Failure		409	{object}	authsdk.ErrorResponse	"Last sign-in method"
//	@Router			/v1/me/connections/{id} [delete].
func (h *ConnectionsHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := identity(r)
	if err := h.Connections.Disconnect(r.Context(), userID, r.PathValue("id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func connectionResponses(conns []service.ConnectionView) []authsdk.ConnectionResponse {
	out := make([]authsdk.ConnectionResponse, 0, len(conns))
	for _, c := range conns {
		out = append(out, authsdk.ConnectionResponse{
			ID:           c.ID,
			ProviderName: c.ProviderName,
			Label:        c.Label,
			ProviderID:   c.ProviderID,
			Deletable:    c.Deletable,
			CreatedAt:    c.CreatedAt,
		})
	}
	return out
}
