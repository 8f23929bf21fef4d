package authsdk

import (
	"context"
	"net/http"
	"net/url"
)

// Me returns the signed-in user's profile.
func (c *SDKClient) Me(ctx context.Context) (*ProfileResponse, error) {
	var out ProfileResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChangePassword replaces the password and signs out other sessions.
func (c *SDKClient) ChangePassword(ctx context.Context, req ChangePasswordRequest) error {
	return c.doJSON(ctx, http.MethodPost, "/v1/me/password", req, nil, http.StatusNoContent)
}

// ChangeEmail emails a code to the new address. Accounts with two-factor
// get a 403 *APIError pointing at the verify page when their last second
// factor is not recent.
func (c *SDKClient) ChangeEmail(ctx context.Context, req ChangeEmailRequest) (*FlowResponse, error) {
	var out FlowResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/me/email", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TwoFactorStatus reports whether two-factor is enabled.
func (c *SDKClient) TwoFactorStatus(ctx context.Context) (*TwoFactorStatusResponse, error) {
	var out TwoFactorStatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/me/two-factor", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// EnrollTwoFactor starts authenticator enrolment.
func (c *SDKClient) EnrollTwoFactor(ctx context.Context) (*TwoFactorEnrollResponse, error) {
	var out TwoFactorEnrollResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/me/two-factor", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DisableTwoFactor removes the authenticator.
func (c *SDKClient) DisableTwoFactor(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/me/two-factor", nil, nil, http.StatusNoContent)
}

// Connections lists linked provider accounts.
func (c *SDKClient) Connections(ctx context.Context) ([]ConnectionResponse, error) {
	var out []ConnectionResponse
	if err := c.doJSON(ctx, http.MethodGet, "/v1/me/connections", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Disconnect unlinks a provider account.
func (c *SDKClient) Disconnect(ctx context.Context, connectionID string) error {
	path := "/v1/me/connections/" + url.PathEscape(connectionID)
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, http.StatusNoContent)
}
