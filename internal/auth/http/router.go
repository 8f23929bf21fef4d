package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/metrics"
	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"

	_ "github.com/aussiebroadwan/notesauth/api/auth" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	sessions     *sessionWriter
	metrics      *metrics.Metrics
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	store         store.Store
	Auth          *service.AuthService
	Verifications *service.VerificationService
	Accounts      *service.AccountService
	TwoFactor     *service.TwoFactorService
	Connections   *service.ConnectionService
	Roles         *service.RolesService
}

func NewRouter(
	cookies *httpx.SessionCookie,
	sideChannel *scs.SessionManager,
	m *metrics.Metrics,
	buildVersion string,
	st store.Store,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		sessions:     &sessionWriter{cookies: cookies, sideChannel: sideChannel},
		metrics:      m,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
	}

	// Logging wraps the side-channel so its store errors are logged with
	// the request.
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger, m.ObserveRequest),
		sideChannel.LoadAndSave,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerVerify()
	r.registerProfile()
	r.registerConnections()
	r.registerAdmin()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Notes Authentication Service API
//	@version		0.1.0
//	@description	Session-based authentication for the notes app: email onboarding, password login, verification
//	@description	codes, authenticator two-factor and OAuth provider connections.
//	@description
//	@description				Every flow step answers with the next page in redirect_to.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/notesauth
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	SessionCookie
//	@in							cookie
//	@name						en_session
//	@description				Signed session cookie set by login, onboarding and verification.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// optionalSession resolves the session cookie when present.
func (r *Router) optionalSession() httpx.Middleware {
	return httpx.SessionMiddleware(r.sessions.cookies, r.Auth, false)
}

// requireSession rejects anonymous requests with a 401.
func (r *Router) requireSession() httpx.Middleware {
	return httpx.SessionMiddleware(r.sessions.cookies, r.Auth, true)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.Auth, Accounts: r.Accounts, sessions: r.sessions}
	limited := r.metrics.RateLimited

	// Signup and onboarding send mail or create accounts - strict by IP
	r.Mux.Handle("POST /v1/signup",
		httpx.Chain(http.HandlerFunc(h.HandleSignup),
			httpx.RateLimitByIP(httpx.StrictLimit, limited),
		),
	)
	r.Mux.Handle("GET /v1/onboarding",
		httpx.Chain(http.HandlerFunc(h.HandlePendingOnboarding),
			httpx.RateLimitByIP(httpx.LenientLimit, limited),
		),
	)
	r.Mux.Handle("POST /v1/onboarding",
		httpx.Chain(http.HandlerFunc(h.HandleOnboarding),
			httpx.RateLimitByIP(httpx.StrictLimit, limited),
		),
	)
	r.Mux.Handle("POST /v1/onboarding/{provider}",
		httpx.Chain(http.HandlerFunc(h.HandleProviderOnboarding),
			httpx.RateLimitByIP(httpx.StrictLimit, limited),
		),
	)

	// POST /login - rate limited by IP + username to slow down guessing
	r.Mux.Handle("POST /v1/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "username", limited),
		),
	)
	r.Mux.Handle("POST /v1/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			r.optionalSession(),
			httpx.RateLimitByIP(httpx.ModerateLimit, limited),
		),
	)

	r.Mux.Handle("POST /v1/forgot-password",
		httpx.Chain(http.HandlerFunc(h.HandleForgotPassword),
			httpx.RateLimitByIP(httpx.StrictLimit, limited),
		),
	)
	r.Mux.Handle("POST /v1/reset-password",
		httpx.Chain(http.HandlerFunc(h.HandleResetPassword),
			httpx.RateLimitByIP(httpx.StrictLimit, limited),
		),
	)
}

func (r *Router) registerVerify() {
	h := &VerifyHandler{Verifications: r.Verifications, sessions: r.sessions}

	// Codes are short - strict by IP
	for pattern, fn := range map[string]http.HandlerFunc{
		"GET /v1/verify":  h.HandleGet,
		"POST /v1/verify": h.HandlePost,
	} {
		r.Mux.Handle(pattern,
			httpx.Chain(fn,
				r.optionalSession(),
				httpx.RateLimitByIP(httpx.StrictLimit, r.metrics.RateLimited),
			),
		)
	}
}

func (r *Router) registerProfile() {
	h := &ProfileHandler{
		Auth:        r.Auth,
		Accounts:    r.Accounts,
		TwoFactor:   r.TwoFactor,
		Connections: r.Connections,
	}

	secured := func(fn http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
		return httpx.Chain(fn,
			r.requireSession(),
			httpx.RateLimitByUser(limit, r.metrics.RateLimited),
		)
	}

	r.Mux.Handle("GET /v1/me", secured(h.HandleMe, httpx.LenientLimit))
	r.Mux.Handle("POST /v1/me/password", secured(h.HandleChangePassword, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/me/email", secured(h.HandleChangeEmail, httpx.ModerateLimit))
	r.Mux.Handle("GET /v1/me/two-factor", secured(h.HandleTwoFactorStatus, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/me/two-factor", secured(h.HandleTwoFactorEnroll, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /v1/me/two-factor", secured(h.HandleTwoFactorDisable, httpx.ModerateLimit))
}

func (r *Router) registerConnections() {
	h := &ConnectionsHandler{Connections: r.Connections, sessions: r.sessions}
	limited := r.metrics.RateLimited

	r.Mux.Handle("GET /v1/auth/{provider}",
		httpx.Chain(http.HandlerFunc(h.HandleBegin),
			httpx.RateLimitByIP(httpx.LenientLimit, limited),
		),
	)
	r.Mux.Handle("GET /v1/auth/{provider}/callback",
		httpx.Chain(http.HandlerFunc(h.HandleCallback),
			r.optionalSession(),
			httpx.RateLimitByIP(httpx.StrictLimit, limited),
		),
	)

	r.Mux.Handle("GET /v1/me/connections",
		httpx.Chain(http.HandlerFunc(h.HandleList),
			r.requireSession(),
			httpx.RateLimitByUser(httpx.ModerateLimit, limited),
		),
	)
	r.Mux.Handle("DELETE /v1/me/connections/{id}",
		httpx.Chain(http.HandlerFunc(h.HandleDisconnect),
			r.requireSession(),
			httpx.RateLimitByUser(httpx.ModerateLimit, limited),
		),
	)
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{Roles: r.Roles}

	guarded := func(fn http.HandlerFunc, guard httpx.Middleware) http.Handler {
		return httpx.Chain(fn,
			r.requireSession(),
			httpx.RateLimitByUser(httpx.ModerateLimit, r.metrics.RateLimited),
			guard,
		)
	}

	r.Mux.Handle("GET /v1/admin/users",
		guarded(h.HandleListUsers, httpx.RequireRole(r.Roles, domain.RoleAdmin)))
	r.Mux.Handle("POST /v1/admin/users/{id}/roles",
		guarded(h.HandleAssignRole, httpx.RequirePermission(r.Roles, "update:user:any")))
	r.Mux.Handle("DELETE /v1/admin/users/{id}",
		guarded(h.HandleDeleteUser, httpx.RequirePermission(r.Roles, "delete:user:any")))
}

func (r *Router) registerSystem() {
	// Health check endpoints - lenient rate limits (monitoring systems may poll frequently)
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /metrics",
		httpx.Chain(r.metrics.Handler(),
			httpx.RateLimitByIP(httpx.PublicLimit),
		),
	)
}
