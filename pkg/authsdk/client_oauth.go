package authsdk

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// BeginOAuth starts a provider login and returns the authorization URL the
// browser would be redirected to.
func (c *SDKClient) BeginOAuth(ctx context.Context, provider, redirectTo string) (string, error) {
	path := "/v1/auth/" + url.PathEscape(provider)
	if redirectTo != "" {
		path += "?" + url.Values{"redirectTo": {redirectTo}}.Encode()
	}

	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusFound {
		return "", decodeJSON(resp, nil, http.StatusFound)
	}
	_ = resp.Body.Close()

	location := resp.Header.Get("Location")
	if location == "" {
		return "", fmt.Errorf("authorization redirect has no location")
	}
	return location, nil
}

// OAuthCallback delivers the provider callback (code and state) as the
// browser would after authorizing.
func (c *SDKClient) OAuthCallback(ctx context.Context, provider, code, state string) (*FlowResponse, error) {
	q := url.Values{"code": {code}, "state": {state}}
	path := "/v1/auth/" + url.PathEscape(provider) + "/callback?" + q.Encode()

	var out FlowResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out, http.StatusFound); err != nil {
		return nil, err
	}
	return &out, nil
}
