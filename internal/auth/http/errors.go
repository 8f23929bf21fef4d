package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/notesauth/internal/auth/provider"
	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/pkg/authsdk"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

// writeServiceError maps a service error to its response. Anything
// unrecognised is logged and answered with a 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *service.ValidationError
		reverify   *service.ReverificationRequiredError
	)

	switch {
	case errors.As(err, &validation):
		apiErr := authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeValidation, validation.Message)
		apiErr.Field = validation.Field
		apiErr.WriteError(w)

	case errors.As(err, &reverify):
		apiErr := authsdk.NewAPIError(http.StatusForbidden, authsdk.ErrorCodeReverificationRequired,
			"Please verify your account before proceeding")
		apiErr.RedirectTo = reverify.RedirectTo
		apiErr.WriteError(w)

	case errors.Is(err, service.ErrInvalidCredentials):
		authsdk.NewAPIError(http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, err.Error()).WriteError(w)

	case errors.Is(err, service.ErrIncorrectPassword):
		apiErr := authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidCredentials, err.Error())
		apiErr.Field = "current_password"
		apiErr.WriteError(w)

	case errors.Is(err, service.ErrInvalidCode):
		apiErr := authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidCode, "Invalid code")
		apiErr.Field = "code"
		apiErr.WriteError(w)

	case errors.Is(err, service.ErrNotAuthenticated):
		authsdk.ErrUnauthenticated.WriteError(w)

	case errors.Is(err, service.ErrEmailTaken):
		conflict(w, err, "email")

	case errors.Is(err, service.ErrUsernameTaken):
		conflict(w, err, "username")

	case errors.Is(err, service.ErrConnectionTaken),
		errors.Is(err, service.ErrLastAuthMethod),
		errors.Is(err, service.ErrTwoFactorEnabled):
		conflict(w, err, "")

	case errors.Is(err, service.ErrTwoFactorNotEnabled):
		authsdk.NewAPIError(http.StatusNotFound, authsdk.ErrorCodeNotFound, err.Error()).WriteError(w)

	case errors.Is(err, service.ErrOnboardingExpired),
		errors.Is(err, service.ErrResetExpired),
		errors.Is(err, service.ErrEmailChangeExpired),
		errors.Is(err, service.ErrSessionToVerifyNotFound):
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeExpired, err.Error()).WriteError(w)

	case errors.Is(err, service.ErrConnectionNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrRoleNotFound),
		errors.Is(err, provider.ErrUnknownProvider):
		authsdk.NewAPIError(http.StatusNotFound, authsdk.ErrorCodeNotFound, err.Error()).WriteError(w)

	case errors.Is(err, service.ErrEmailDelivery):
		authsdk.NewAPIError(http.StatusBadGateway, authsdk.ErrorCodeUpstream, err.Error()).WriteError(w)

	default:
		slogx.FromContext(r.Context()).Error("request failed", "error", err)
		authsdk.ErrServerError.WriteError(w)
	}
}

func conflict(w http.ResponseWriter, err error, field string) {
	apiErr := authsdk.NewAPIError(http.StatusConflict, authsdk.ErrorCodeConflict, err.Error())
	apiErr.Field = field
	apiErr.WriteError(w)
}

// decodeBody decodes the JSON request body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		slogx.FromContext(r.Context()).Warn("failed to parse request", "error", err)
		authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, err.Error()).WriteError(w)
		return false
	}
	return true
}
