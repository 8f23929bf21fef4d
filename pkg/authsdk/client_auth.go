package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Signup emails an onboarding code and returns the verify page.
func (c *SDKClient) Signup(ctx context.Context, req SignupRequest) (*FlowResponse, error) {
	var out FlowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/signup", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// PendingOnboarding returns the verified email waiting for account details.
func (c *SDKClient) PendingOnboarding(ctx context.Context) (*PendingOnboardingResponse, error) {
	var out PendingOnboardingResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/onboarding", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteOnboarding creates the account and signs in.
func (c *SDKClient) CompleteOnboarding(ctx context.Context, req OnboardingRequest) (*FlowResponse, error) {
	var out FlowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/onboarding", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteProviderOnboarding creates a provider-linked account and signs in.
func (c *SDKClient) CompleteProviderOnboarding(ctx context.Context, provider string, req OnboardingRequest) (*FlowResponse, error) {
	var out FlowResponse
	path := "/v1/onboarding/" + url.PathEscape(provider)
	if err := c.doJSON(ctx, http.MethodPost, path, req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login authenticates with a password. When the account has two-factor
// enabled the response has TwoFactorRequired set and no session yet.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*FlowResponse, error) {
	var out FlowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/login", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the current session.
func (c *SDKClient) Logout(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/logout", nil, nil, http.StatusNoContent)
}

// Verify submits a verification code.
func (c *SDKClient) Verify(ctx context.Context, req VerifyRequest) (*FlowResponse, error) {
	var out FlowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/verify", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyLink follows an emailed verification link. Only the path and query
// of link are used.
func (c *SDKClient) VerifyLink(ctx context.Context, link string) (*FlowResponse, error) {
	u, err := url.Parse(link)
	if err != nil {
		return nil, err
	}

	var out FlowResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/verify?"+u.RawQuery, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ForgotPassword emails a reset code when the account exists.
func (c *SDKClient) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) (*FlowResponse, error) {
	var out FlowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/forgot-password", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetPassword sets a new password after the reset code was verified.
func (c *SDKClient) ResetPassword(ctx context.Context, req ResetPasswordRequest) (*FlowResponse, error) {
	var out FlowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/reset-password", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
