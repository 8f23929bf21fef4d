package authsdk

import "time"

// ============================================================================
// Error Types
// ============================================================================

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	// Error is a stable machine readable code (e.g. "invalid_code")
	Error string `json:"error"`

	// ErrorDescription is the user-facing message
	ErrorDescription string `json:"error_description,omitempty"`

	// Field names the rejected input field for validation errors
	Field string `json:"field,omitempty"`

	// RedirectTo is set when the client must visit another page first,
	// e.g. the verify page when a recent second factor is required
	RedirectTo string `json:"redirect_to,omitempty"`
}

// ============================================================================
// Health Types
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the state of each dependency.
type HealthChecks struct {
	Database string `json:"database"`
}

// ============================================================================
// Flow Types
// ============================================================================

// FlowResponse tells the browser where to go next. Every step of a login,
// signup or verification flow answers with one.
type FlowResponse struct {
	// RedirectTo is the next page (relative)
	RedirectTo string `json:"redirect_to"`

	// Message is an optional user-facing notice
	Message string `json:"message,omitempty"`

	// TwoFactorRequired is true when the session waits for a second factor
	// at RedirectTo
	TwoFactorRequired bool `json:"two_factor_required,omitempty"`

	// Result names the branch taken by an OAuth callback
	Result string `json:"result,omitempty"`
}

// SignupRequest starts email onboarding.
type SignupRequest struct {
	Email      string `json:"email"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// OnboardingRequest finishes a signup after the email was verified. Password
// is ignored when onboarding through a provider.
type OnboardingRequest struct {
	Username   string `json:"username"`
	Name       string `json:"name,omitempty"`
	Password   string `json:"password,omitempty"`
	Remember   bool   `json:"remember,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// PendingOnboardingResponse prefills the account completion form.
type PendingOnboardingResponse struct {
	Email        string          `json:"email"`
	ProviderName string          `json:"provider_name,omitempty"`
	Prefill      *ProviderPrefill `json:"prefill,omitempty"`
}

// ProviderPrefill is the profile returned by the identity provider, with the
// username already sanitized.
type ProviderPrefill struct {
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// LoginRequest authenticates with a username and password.
type LoginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	Remember   bool   `json:"remember,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// VerifyRequest submits a verification code.
type VerifyRequest struct {
	Code       string `json:"code"`
	Type       string `json:"type"`
	Target     string `json:"target"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// ForgotPasswordRequest starts a password reset.
type ForgotPasswordRequest struct {
	UsernameOrEmail string `json:"username_or_email"`
	RedirectTo      string `json:"redirect_to,omitempty"`
}

// ResetPasswordRequest finishes a password reset in the browser that
// verified the reset code.
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// ============================================================================
// Profile Types
// ============================================================================

// ProfileResponse is returned by GET /v1/me.
type ProfileResponse struct {
	ID               string               `json:"id"`
	Email            string               `json:"email"`
	Username         string               `json:"username"`
	Name             string               `json:"name,omitempty"`
	Roles            []string             `json:"roles"`
	HasPassword      bool                 `json:"has_password"`
	TwoFactorEnabled bool                 `json:"two_factor_enabled"`
	Connections      []ConnectionResponse `json:"connections"`
	CreatedAt        time.Time            `json:"created_at"`
}

// ChangePasswordRequest replaces the password. CurrentPassword may be empty
// for accounts that never had one.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password"`
}

// ChangeEmailRequest starts an email change.
type ChangeEmailRequest struct {
	Email string `json:"email"`
}

// TwoFactorStatusResponse is returned by GET /v1/me/two-factor.
type TwoFactorStatusResponse struct {
	Enabled bool `json:"enabled"`
}

// TwoFactorEnrollResponse carries the authenticator setup.
type TwoFactorEnrollResponse struct {
	// KeyURI is the otpauth:// URI to render as a QR code
	KeyURI string `json:"key_uri"`

	// RedirectTo is the verify page that confirms the first code
	RedirectTo string `json:"redirect_to"`
}

// ConnectionResponse is one linked identity provider account.
type ConnectionResponse struct {
	ID           string    `json:"id"`
	ProviderName string    `json:"provider_name"`
	Label        string    `json:"label"`
	ProviderID   string    `json:"provider_id"`
	Deletable    bool      `json:"deletable"`
	CreatedAt    time.Time `json:"created_at"`
}

// ============================================================================
// Admin Types
// ============================================================================

// AdminUserResponse is one account in GET /v1/admin/users.
type AdminUserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	Name      string    `json:"name,omitempty"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// AssignRoleRequest grants a role by name.
type AssignRoleRequest struct {
	Role string `json:"role"`
}

// MessageResponse is a plain acknowledgement.
type MessageResponse struct {
	Message string `json:"message"`
}
