package httpx

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/notesauth/pkg/jwtx"
)

// SessionCookie reads and writes the signed session cookie.
type SessionCookie struct {
	Name    string
	Secure  bool
	Keyring *jwtx.Keyring
	// Now is used for the issued-at claim; defaults to time.Now.
	Now func() time.Time
}

// Write sets the cookie for sessionID. A zero expires makes it a browser
// session cookie.
func (c *SessionCookie) Write(w http.ResponseWriter, sessionID string, expires time.Time) error {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	token, err := c.Keyring.Sign(sessionID, now())
	if err != nil {
		return err
	}

	cookie := c.base()
	cookie.Value = token
	if !expires.IsZero() {
		cookie.Expires = expires.UTC()
	}
	http.SetCookie(w, cookie)
	return nil
}

// Read returns the session id carried by the request, if the cookie is
// present and its signature verifies.
func (c *SessionCookie) Read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return "", false
	}
	claims, err := c.Keyring.Parse(cookie.Value)
	if err != nil {
		return "", false
	}
	return claims.SID, true
}

// Clear expires the cookie in the browser.
func (c *SessionCookie) Clear(w http.ResponseWriter) {
	cookie := c.base()
	cookie.MaxAge = -1
	cookie.Expires = time.Unix(0, 0)
	http.SetCookie(w, cookie)
}

func (c *SessionCookie) base() *http.Cookie {
	return &http.Cookie{
		Name:     c.Name,
		Path:     "/",
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
