package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/notesauth/internal/auth/http"
	"github.com/aussiebroadwan/notesauth/internal/auth/metrics"
	"github.com/aussiebroadwan/notesauth/internal/auth/provider"
	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/aussiebroadwan/notesauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/notesauth/pkg/cryptox"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
	"github.com/aussiebroadwan/notesauth/pkg/jwtx"
	"github.com/aussiebroadwan/notesauth/pkg/mailx"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

// BuildVersion is overridden at build time with -ldflags "-X".
var BuildVersion = "v0.1.0"

const (
	sessionCookieName      = "en_session"
	verificationCookieName = "en_verification"
	sideChannelLifetime    = 10 * time.Minute
)

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db          store.Store
	metrics     *metrics.Metrics
	mailer      mailx.Sender
	providers   *provider.Registry
	cookies     *httpx.SessionCookie
	sideChannel *scs.SessionManager

	// Services
	authService         *service.AuthService
	verificationService *service.VerificationService
	accountService      *service.AccountService
	twoFactorService    *service.TwoFactorService
	connectionService   *service.ConnectionService
	rolesService        *service.RolesService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "auth-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	// Pepper for password hashing, master key for sealed TOTP secrets
	cryptox.SetPepperPath(app.cfg.PepperFile)
	cryptox.SetMasterKeyPath(app.cfg.MasterKeyPath)
	cryptox.AllowEphemeralMasterKey(app.cfg.Env == "dev")
	if err := cryptox.LoadMasterKey(); err != nil {
		return nil, fmt.Errorf("failed to load master key: %w", err)
	}

	proxies, err := httpx.ParseTrustedProxies(app.cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}
	httpx.SetTrustedProxies(proxies)

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initSessions(); err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.initIntegrations()
	app.initServices()
	if err := app.grantAdmins(context.Background()); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	// Start housekeeping service
	app.housekeepingService.Start()

	app.logger.Info("auth service starting", "port", app.cfg.Port, "version", BuildVersion, "origin", app.cfg.Origin)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Block until we receive a shutdown signal or server error
	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		// Perform graceful shutdown
		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down auth service...")

	// Give outstanding requests a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	// Shutdown the HTTP server
	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// Stop the housekeeping service
	app.housekeepingService.Stop()

	// Close database connection
	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("auth service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	db, err := sqlite.NewStore(app.cfg.DatabaseFile)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initSessions configures the signed session cookie and the short-lived
// side-channel that carries flow state between requests.
func (app *Application) initSessions() error {
	keyring, err := jwtx.NewKeyring(app.cfg.SessionSecrets...)
	if err != nil {
		return fmt.Errorf("failed to initialize session keyring: %w", err)
	}
	app.cookies = &httpx.SessionCookie{
		Name:    sessionCookieName,
		Secure:  app.cfg.SecureCookies(),
		Keyring: keyring,
	}

	sm := scs.New()
	sm.Store = store.NewSideChannelAdapter(app.db)
	sm.Lifetime = sideChannelLifetime
	sm.Cookie.Name = verificationCookieName
	sm.Cookie.HttpOnly = true
	sm.Cookie.Path = "/"
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Secure = app.cfg.SecureCookies()
	sm.ErrorFunc = func(w http.ResponseWriter, r *http.Request, err error) {
		slogx.FromContext(r.Context()).Error("side-channel failure", "error", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "Internal server error")
	}
	app.sideChannel = sm
	return nil
}

// initIntegrations selects the mailer and identity providers. Mocks replace
// both so the service runs without outbound network access.
func (app *Application) initIntegrations() {
	if app.cfg.Mocks || app.cfg.ResendAPIKey == "" {
		app.mailer = &mailx.Console{Logger: app.logger}
		app.logger.Warn("emails are logged, not sent")
	} else {
		app.mailer = &mailx.Resend{APIKey: app.cfg.ResendAPIKey, From: app.cfg.EmailFrom}
	}

	var providers []provider.Provider
	switch {
	case app.cfg.Mocks:
		providers = append(providers, provider.NewMock("github", "GitHub", app.cfg.GitHubRedirectURL))
		app.logger.Warn("using mock identity providers")
	case app.cfg.GitHubClientID != "":
		providers = append(providers, provider.NewGitHub(provider.GitHubConfig{
			ClientID:     app.cfg.GitHubClientID,
			ClientSecret: app.cfg.GitHubClientSecret,
			RedirectURL:  app.cfg.GitHubRedirectURL,
		}))
	}
	app.providers = provider.NewRegistry(providers...)
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	app.authService = &service.AuthService{
		Store:         app.db,
		SideChannel:   app.sideChannel,
		Metrics:       app.metrics,
		SessionTTL:    app.cfg.SessionTTL,
		ReverifyAfter: app.cfg.ReverifyAfter,
	}
	app.verificationService = &service.VerificationService{
		Store:       app.db,
		SideChannel: app.sideChannel,
		Mailer:      app.mailer,
		Metrics:     app.metrics,
		Origin:      app.cfg.Origin,
	}
	app.accountService = &service.AccountService{
		Store:         app.db,
		Auth:          app.authService,
		Verifications: app.verificationService,
		SideChannel:   app.sideChannel,
		Mailer:        app.mailer,
		Metrics:       app.metrics,
	}
	app.twoFactorService = &service.TwoFactorService{
		Store:  app.db,
		Auth:   app.authService,
		Issuer: service.DefaultIssuer,
	}
	app.connectionService = &service.ConnectionService{
		Store:       app.db,
		Auth:        app.authService,
		Providers:   app.providers,
		SideChannel: app.sideChannel,
		Metrics:     app.metrics,
	}
	app.rolesService = &service.RolesService{Store: app.db}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.metrics,
		app.cfg.HousekeepingInterval,
	)
}

// grantAdmins gives the admin role to the configured usernames. Users that
// have not signed up yet are skipped and picked up on a later start.
func (app *Application) grantAdmins(ctx context.Context) error {
	for _, username := range app.cfg.AdminUsernames {
		user, err := app.db.Users().GetUserByUsername(ctx, username)
		if errors.Is(err, store.ErrNotFound) {
			app.logger.Warn("admin user does not exist yet", "username", username)
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to look up admin %q: %w", username, err)
		}

		if err := app.rolesService.AssignRole(ctx, user.ID, domain.RoleAdmin); err != nil {
			return fmt.Errorf("failed to grant admin to %q: %w", username, err)
		}
		app.logger.Info("admin role granted", "username", username)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.cookies,
		app.sideChannel,
		app.metrics,
		BuildVersion,
		app.db,
		app.logger,
	)

	// Wire services to router
	router.Auth = app.authService
	router.Verifications = app.verificationService
	router.Accounts = app.accountService
	router.TwoFactor = app.twoFactorService
	router.Connections = app.connectionService
	router.Roles = app.rolesService
	router.ApplyRoutes()

	app.router = router

	// Initialize HTTP server
	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
