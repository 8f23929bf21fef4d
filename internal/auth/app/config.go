package app

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Origin string // Public origin used in emailed links (default: http://localhost:<port>)

	SessionSecrets []string      // Required: cookie signing secrets, newest first (comma separated)
	SessionTTL     time.Duration // Optional: session lifetime (default: 30 days)
	ReverifyAfter  time.Duration // Optional: second factor freshness window (default: 2h)

	EmailFrom    string // Optional: sender address (default: noreply@notesauth.local)
	ResendAPIKey string // Optional: when empty, emails are logged instead of sent

	GitHubClientID     string // Optional: enables the GitHub provider
	GitHubClientSecret string
	GitHubRedirectURL  string // Optional: default <origin>/v1/auth/github/callback

	Mocks bool // Use the console mailer and a mock GitHub provider (default: false)

	AdminUsernames []string // Optional: existing users granted the admin role at startup (comma separated)
	TrustedProxies []string // Optional: proxy addresses or CIDRs whose X-Forwarded-For is honoured (comma separated)

	MasterKeyPath        string        // Optional: path to master key used to seal verification secrets
	DatabaseFile         string        // Optional: path to SQLite database file (default: ./auth.db)
	PepperFile           string        // Optional: path to file containing pepper for password hashing (default: ./pepper)
	Env                  string        // Environment (dev, staging, prod) (default: dev)
	LogLevel             string        // Log level (debug, info, warn, error) (default: info)
	LogFormat            string        // Log format (json, text) (default: json)
	Port                 int           // HTTP server port (default: 8080)
	ShutdownGracePeriod  time.Duration // Graceful shutdown timeout (default: 10s)
	HousekeepingInterval time.Duration // Housekeeping interval (default: 1h)
}

// LoadConfig reads the environment. Variables from a .env file in the
// working directory are loaded first but never override the real
// environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	cfg := Config{
		SessionSecrets:       splitList(os.Getenv("SESSION_SECRET")),
		SessionTTL:           getEnvDurationOrDefault("SESSION_TTL", 30*24*time.Hour),
		ReverifyAfter:        getEnvDurationOrDefault("REVERIFY_AFTER", 2*time.Hour),
		EmailFrom:            getEnvOrDefault("EMAIL_FROM", "noreply@notesauth.local"),
		ResendAPIKey:         os.Getenv("RESEND_API_KEY"),
		GitHubClientID:       os.Getenv("GITHUB_CLIENT_ID"),
		GitHubClientSecret:   os.Getenv("GITHUB_CLIENT_SECRET"),
		GitHubRedirectURL:    os.Getenv("GITHUB_REDIRECT_URL"),
		Mocks:                getEnvBoolOrDefault("MOCKS", false),
		AdminUsernames:       splitList(os.Getenv("ADMIN_USERNAMES")),
		TrustedProxies:       splitList(os.Getenv("TRUSTED_PROXIES")),
		MasterKeyPath:        os.Getenv("AUTH_MASTER_KEY_PATH"),
		DatabaseFile:         getEnvOrDefault("AUTH_DATABASE_FILE", "auth.db"),
		PepperFile:           getEnvOrDefault("AUTH_PEPPER_FILE", "pepper"),
		Env:                  getEnvOrDefault("ENV", "dev"),
		LogLevel:             getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:            getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                 getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod:  getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		HousekeepingInterval: getEnvDurationOrDefault("HOUSEKEEPING_INTERVAL", 1*time.Hour),
	}

	cfg.Origin = strings.TrimSuffix(getEnvOrDefault("AUTH_ORIGIN", "http://localhost:"+strconv.Itoa(cfg.Port)), "/")
	if cfg.GitHubRedirectURL == "" {
		cfg.GitHubRedirectURL = cfg.Origin + "/v1/auth/github/callback"
	}

	if len(cfg.SessionSecrets) == 0 {
		return Config{}, errors.New("SESSION_SECRET is required")
	}
	return cfg, nil
}

// SecureCookies is true when the origin is served over TLS.
func (c Config) SecureCookies() bool {
	return strings.HasPrefix(c.Origin, "https://")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes (for backwards compatibility)
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
