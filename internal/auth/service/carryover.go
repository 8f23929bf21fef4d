package service

import "context"

// Side-channel keys. The side-channel lives only across the verification
// round trip and never shares the main session cookie.
const (
	KeyUnverifiedSessionID   = "unverified-session-id"
	KeyRememberMe            = "remember-me"
	KeyOnboardingEmail       = "onboarding-email"
	KeyPrefilledProfile      = "prefilled-profile"
	KeyProviderID            = "provider-id"
	KeyProviderName          = "provider-name"
	KeyResetPasswordUsername = "reset-password-username"
	KeyNewEmailAddress       = "new-email-address"
	KeyOAuthState            = "oauth-state"
	KeyOAuthRedirectTo       = "oauth-redirect-to"
)

// SideChannel is the short-lived per-browser store behind the verification
// cookie. *scs.SessionManager implements it; ctx must carry loaded session
// data.
type SideChannel interface {
	Put(ctx context.Context, key string, val any)
	GetString(ctx context.Context, key string) string
	PopString(ctx context.Context, key string) string
	PopBool(ctx context.Context, key string) bool
	Remove(ctx context.Context, key string)
}
