package http

import (
	"net/http"

	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/pkg/authsdk"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

// AuthHandler handles signup, onboarding, login, logout and password resets.
type AuthHandler struct {
	Auth     *service.AuthService
	Accounts *service.AccountService
	sessions *sessionWriter
}

// HandleSignup handles POST /v1/signup
//
//	@Summary		Begin signup
//	@Description	Emails an onboarding code to the address and returns the verify page.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.SignupRequest	true	"Email address"
//	@Success		200		{object}	authsdk.FlowResponse	"Verify page"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid email"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Email already registered"
//	@Failure		502		{object}	authsdk.ErrorResponse	"Email could not be sent"
//	@Router			/v1/signup [post].
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SignupRequest
	if !decodeBody(w, r, &req) {
		return
	}

	redirectTo, err := h.Accounts.BeginSignup(r.Context(), req.Email, req.RedirectTo)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.FlowResponse{RedirectTo: redirectTo})
}

// HandlePendingOnboarding handles GET /v1/onboarding
//
//	@Summary		Pending onboarding
//	@Description	Returns the verified email (and provider profile) waiting for account details in this browser.
//	@Tags			Auth
//	@Produce		json
//	@Success		200	{object}	authsdk.PendingOnboardingResponse	"Pending onboarding"
//	@Failure		400	{object}	authsdk.ErrorResponse				"Nothing pending"
//	@Router			/v1/onboarding [get].
func (h *AuthHandler) HandlePendingOnboarding(w http.ResponseWriter, r *http.Request) {
	p, err := h.Accounts.PendingOnboarding(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := authsdk.PendingOnboardingResponse{Email: p.Email, ProviderName: p.ProviderName}
	if p.Prefill != nil {
		resp.Prefill = &authsdk.ProviderPrefill{
			Username: p.Prefill.Username,
			Name:     p.Prefill.Name,
			ImageURL: p.Prefill.ImageURL,
		}
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

// HandleOnboarding handles POST /v1/onboarding
//
//	@Summary		Complete signup
//	@Description	Creates the account for the email verified in this browser and signs in.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.OnboardingRequest	true	"Account details"
//	@Success		201		{object}	authsdk.FlowResponse		"Signed in"
//	@Failure		400		{object}	authsdk.ErrorResponse		"Validation error or onboarding expired"
//	@Failure		409		{object}	authsdk.ErrorResponse		"Username or email taken"
//	@Router			/v1/onboarding [post].
func (h *AuthHandler) HandleOnboarding(w http.ResponseWriter, r *http.Request) {
	var req authsdk.OnboardingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.Accounts.CompleteOnboarding(r.Context(), onboardingInput(req))
	h.finishSignup(w, r, out, err)
}

// HandleProviderOnboarding handles POST /v1/onboarding/{provider}
//
//	@Summary		Complete provider signup
//	@Description	Creates a password-less account linked to the provider identity returned by the OAuth callback.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			provider	path		string						true	"Provider name"
//	@Param			request		body		authsdk.OnboardingRequest	true	"Account details"
//	@Success		201			{object}	authsdk.FlowResponse		"Signed in"
//	@Failure		400			{object}	authsdk.ErrorResponse		"Validation error or onboarding expired"
//	@Failure		409			{object}	authsdk.ErrorResponse		"Username, email or provider account taken"
//	@Router			/v1/onboarding/{provider} [post].
func (h *AuthHandler) HandleProviderOnboarding(w http.ResponseWriter, r *http.Request) {
	var req authsdk.OnboardingRequest
	if !decodeBody(w, r, &req) {
		return
	}

	out, err := h.Accounts.CompleteProviderOnboarding(r.Context(), r.PathValue("provider"), onboardingInput(req))
	h.finishSignup(w, r, out, err)
}

func (h *AuthHandler) finishSignup(w http.ResponseWriter, r *http.Request, out service.SessionOutcome, err error) {
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.sessions.commit(w, r, out); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, flowResponse(out))
}

func onboardingInput(req authsdk.OnboardingRequest) service.OnboardingInput {
	return service.OnboardingInput{
		Username:   req.Username,
		Name:       req.Name,
		Password:   req.Password,
		Remember:   req.Remember,
		RedirectTo: req.RedirectTo,
	}
}

// HandleLogin handles POST /v1/login
//
//	@Summary		Login
//	@Description	Authenticates with username and password. Accounts with two-factor enabled get two_factor_required
//	@Description	and the verify page instead of a session.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.FlowResponse	"Signed in, or second factor required"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid username or password"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/v1/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.LoginRequest
	if !decodeBody(w, r, &req) {
		return
	}

	sess, err := h.Auth.Login(ctx, req.Username, req.Password)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out, err := h.Auth.StartSession(ctx, sess, req.Remember, req.RedirectTo)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.sessions.commit(w, r, out); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, flowResponse(out))
}

// HandleLogout handles POST /v1/logout
//
//	@Summary		Logout
//	@Description	Deletes the current session and clears the session cookie.
//	@Tags			Auth
//	@Success		204	"Signed out"
//	@Router			/v1/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	_, sessionID := identity(r)
	if err := h.Auth.Logout(r.Context(), sessionID); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.sessions.cookies.Clear(w)
	slogx.FromContext(r.Context()).Info("logged out")
	w.WriteHeader(http.StatusNoContent)
}

// HandleForgotPassword handles POST /v1/forgot-password
//
//	@Summary		Begin password reset
//	@Description	Emails a reset code when the username or email belongs to an account. The response is the same either way.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ForgotPasswordRequest	true	"Username or email"
//	@Success		200		{object}	authsdk.FlowResponse			"Verify page"
//	@Failure		400		{object}	authsdk.ErrorResponse			"Missing username or email"
//	@Router			/v1/forgot-password [post].
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ForgotPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	redirectTo, err := h.Accounts.ForgotPassword(r.Context(), req.UsernameOrEmail, req.RedirectTo)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.FlowResponse{RedirectTo: redirectTo})
}

// HandleResetPassword handles POST /v1/reset-password
//
//	@Summary		Finish password reset
//	@Description	Sets a new password for the account whose reset code was verified in this browser and signs out
//	@Description	all of its sessions.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ResetPasswordRequest	true	"New password"
//	@Success		200		{object}	authsdk.FlowResponse			"Login page"
//	@Failure		400		{object}	authsdk.ErrorResponse			"Validation error or reset expired"
//	@Router			/v1/reset-password [post].
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.Accounts.ResetPassword(r.Context(), req.Password); err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.FlowResponse{RedirectTo: service.PathLogin})
}
