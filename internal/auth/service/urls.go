package service

import (
	"net/url"
	"strings"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
)

// Client-side paths returned as redirect targets.
const (
	PathVerify        = "/verify"
	PathOnboarding    = "/onboarding"
	PathResetPassword = "/reset-password"
	PathLogin         = "/login"
	PathHome          = "/"
	PathProfile       = "/settings/profile"
	PathTwoFactor     = "/settings/profile/two-factor"
	PathConnections   = "/settings/profile/connections"
)

// Query parameter names of verification links.
const (
	queryType       = "type"
	queryTarget     = "target"
	queryCode       = "code"
	queryRedirectTo = "redirectTo"
)

// VerifyURL is the one builder for verification links. An empty origin
// yields a relative URL; an empty code or redirectTo is omitted.
func VerifyURL(origin string, t domain.VerificationType, target, code, redirectTo string) string {
	q := url.Values{}
	q.Set(queryType, string(t))
	q.Set(queryTarget, target)
	if code != "" {
		q.Set(queryCode, code)
	}
	if redirectTo != "" {
		q.Set(queryRedirectTo, redirectTo)
	}
	return strings.TrimSuffix(origin, "/") + PathVerify + "?" + q.Encode()
}

// SafeRedirect accepts only same-site absolute paths and falls back to def.
func SafeRedirect(to, def string) string {
	if to == "" || !strings.HasPrefix(to, "/") || strings.HasPrefix(to, "//") || strings.HasPrefix(to, "/\\") {
		return def
	}
	return to
}

// withRedirect appends a redirectTo query parameter to path when set.
func withRedirect(path, redirectTo string) string {
	redirectTo = SafeRedirect(redirectTo, "")
	if redirectTo == "" {
		return path
	}
	return path + "?" + url.Values{queryRedirectTo: {redirectTo}}.Encode()
}
