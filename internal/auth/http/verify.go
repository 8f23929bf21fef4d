package http

import (
	"net/http"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/pkg/authsdk"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
)

// VerifyHandler completes verification challenges, from an emailed link
// (GET) or a submitted form (POST).
type VerifyHandler struct {
	Verifications *service.VerificationService
	sessions      *sessionWriter
}

// HandleGet handles GET /v1/verify
//
//	@Summary		Verify from a link
//	@Description	Completes the challenge named by the query. Emailed links carry the code; links without one are
//	@Description	rejected so the client can show the code form instead.
//	@Tags			Verification
//	@Produce		json
//	@Param			type		query		string					true	"Verification type"	Enums(onboarding, reset-password, 2fa, 2fa-verify, change-email)
//	@Param			target		query		string					true	"Email or user id"
//	@Param			code		query		string					true	"Code"
//	@Param			redirectTo	query		string					false	"Where to go afterwards"
//	@Success		200			{object}	authsdk.FlowResponse	"Next page"
//	@Failure		400			{object}	authsdk.ErrorResponse	"Invalid code"
//	@Failure		401			{object}	authsdk.ErrorResponse	"Sign-in required for this type"
//	@Router			/v1/verify [get].
func (h *VerifyHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.complete(w, r, authsdk.VerifyRequest{
		Code:       q.Get("code"),
		Type:       q.Get("type"),
		Target:     q.Get("target"),
		RedirectTo: q.Get("redirectTo"),
	})
}

// HandlePost handles POST /v1/verify
//
//	@Summary		Submit a code
//	@Description	Completes a verification challenge. What happens next depends on the type: onboarding and
//	@Description	reset-password continue their flow in this browser, 2fa promotes a pending login or refreshes the
//	@Description	session, 2fa-verify enables two-factor and change-email applies the new address.
//	@Tags			Verification
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyRequest	true	"Code"
//	@Success		200		{object}	authsdk.FlowResponse	"Next page"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid code"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Sign-in required for this type"
//	@Failure		409		{object}	authsdk.ErrorResponse	"New email already taken"
//	@Router			/v1/verify [post].
func (h *VerifyHandler) HandlePost(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.complete(w, r, req)
}

func (h *VerifyHandler) complete(w http.ResponseWriter, r *http.Request, req authsdk.VerifyRequest) {
	if req.Code == "" {
		writeServiceError(w, r, &service.ValidationError{Field: "code", Message: "code is required"})
		return
	}
	t, err := domain.ParseVerificationType(req.Type)
	if err != nil {
		writeServiceError(w, r, &service.ValidationError{Field: "type", Message: "unknown verification type"})
		return
	}

	userID, sessionID := identity(r)
	out, err := h.Verifications.Complete(r.Context(), service.CompleteInput{
		Code:       req.Code,
		Type:       t,
		Target:     req.Target,
		RedirectTo: req.RedirectTo,
		SessionID:  sessionID,
		UserID:     userID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	err = h.sessions.commit(w, r, service.SessionOutcome{Session: out.Session, Remember: out.Remember})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.FlowResponse{
		RedirectTo: out.RedirectTo,
		Message:    out.Message,
	})
}
