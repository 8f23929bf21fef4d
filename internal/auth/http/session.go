package http

import (
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/pkg/authsdk"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
)

// sessionWriter commits sessions produced by the services to the client.
type sessionWriter struct {
	cookies     *httpx.SessionCookie
	sideChannel *scs.SessionManager
}

// commit writes the session cookie when out carries a session. The
// side-channel token is renewed so a token seen before sign-in cannot be
// replayed after it.
func (sw *sessionWriter) commit(w http.ResponseWriter, r *http.Request, out service.SessionOutcome) error {
	if out.Session == nil {
		return nil
	}
	if err := sw.sideChannel.RenewToken(r.Context()); err != nil {
		return err
	}
	return sw.cookies.Write(w, out.Session.ID, out.CookieExpiry())
}

// identity returns the signed-in caller, if any.
func identity(r *http.Request) (userID, sessionID string) {
	userID, _ = httpx.UserIDFromContext(r.Context())
	sessionID, _ = httpx.SessionIDFromContext(r.Context())
	return userID, sessionID
}

func flowResponse(out service.SessionOutcome) authsdk.FlowResponse {
	return authsdk.FlowResponse{
		RedirectTo:        out.RedirectTo,
		TwoFactorRequired: out.TwoFactorRequired,
	}
}
