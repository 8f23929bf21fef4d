package authsdk

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// SDKClient talks to the authentication service the way a browser does: the
// session and verification cookies live in its cookie jar. Redirects are
// never followed so each flow step can be inspected.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient creates a client with an empty cookie jar.
func NewSDKClient(baseURL string) (*SDKClient, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// Cookie returns the value of the named cookie held for BaseURL.
func (c *SDKClient) Cookie(name string) (string, bool) {
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"/", nil)
	if err != nil {
		return "", false
	}
	for _, cookie := range c.HTTPClient.Jar.Cookies(req.URL) {
		if cookie.Name == name {
			return cookie.Value, true
		}
	}
	return "", false
}
