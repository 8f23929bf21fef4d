package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain applies mws to h so that the first middleware is the outermost.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// SessionAuthenticator resolves a session id to its user. ok is false when the
// session is unknown or expired; err is reserved for storage failures.
type SessionAuthenticator interface {
	AuthenticateSession(ctx context.Context, sessionID string) (userID string, ok bool, err error)
}

// SessionMiddleware resolves the session cookie and stores the user and
// session ids in the request context. A cookie that no longer maps to a live
// session is cleared. When required is true anonymous requests get a 401.
func SessionMiddleware(cookies *SessionCookie, auth SessionAuthenticator, required bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			sessionID, present := cookies.Read(r)
			if present {
				userID, ok, err := auth.AuthenticateSession(ctx, sessionID)
				if err != nil {
					log.Error("failed to resolve session", "error", err)
					WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
					return
				}
				if ok {
					ctx = contextWithSession(ctx, userID, sessionID)
					ctx = slogx.WithAttrs(ctx, "user_id", userID)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
				log.Debug("clearing stale session cookie")
				cookies.Clear(w)
			} else if _, err := r.Cookie(cookies.Name); err == nil {
				log.Debug("clearing unverifiable session cookie")
				cookies.Clear(w)
			}

			if required {
				WriteError(w, http.StatusUnauthorized, "unauthenticated", "Sign in to continue")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
