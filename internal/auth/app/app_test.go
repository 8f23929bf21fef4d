package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/notesauth/pkg/cryptox"
	"github.com/aussiebroadwan/notesauth/pkg/httpx"
	"github.com/aussiebroadwan/notesauth/pkg/idx"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, env string) Config {
	t.Helper()
	dir := t.TempDir()

	t.Setenv("AUTH_MASTER_KEY", "")
	t.Cleanup(cryptox.ResetMasterKeyForTesting)
	t.Cleanup(func() { httpx.SetTrustedProxies(nil) })

	return Config{
		Origin:         "http://localhost:8080",
		SessionSecrets: []string{"app-test-secret"},
		DatabaseFile:   filepath.Join(dir, "auth.db"),
		PepperFile:     filepath.Join(dir, "pepper"),
		Env:            env,
		LogLevel:       "error",
		LogFormat:      "text",
	}
}

func newApp(t *testing.T, cfg Config) *Application {
	t.Helper()

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.db.Close() })
	return app
}

func TestNewRequiresMasterKeyOutsideDev(t *testing.T) {
	t.Run("refused in prod", func(t *testing.T) {
		_, err := New(testConfig(t, "prod"))
		require.ErrorIs(t, err, cryptox.ErrNoMasterKey)
	})

	t.Run("env key accepted in prod", func(t *testing.T) {
		cfg := testConfig(t, "prod")
		t.Setenv("AUTH_MASTER_KEY", "prod-master-key")
		newApp(t, cfg)
	})

	t.Run("ephemeral key in dev", func(t *testing.T) {
		newApp(t, testConfig(t, "dev"))

		sealed, err := cryptox.Seal("value")
		require.NoError(t, err)
		plain, err := cryptox.Open(sealed)
		require.NoError(t, err)
		require.Equal(t, "value", plain)
	})
}

func TestNewRejectsInvalidTrustedProxies(t *testing.T) {
	cfg := testConfig(t, "dev")
	cfg.TrustedProxies = []string{"10.0.0.0/8", "proxy.internal"}

	_, err := New(cfg)
	require.ErrorContains(t, err, "proxy.internal")
}

func TestNewGrantsConfiguredAdmins(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t, "dev")
	cfg.AdminUsernames = []string{"alice", "not-signed-up-yet"}

	st, err := sqlite.NewStore(cfg.DatabaseFile)
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	alice := domain.User{ID: idx.New().String(), Email: "alice@example.com", Username: "alice"}
	require.NoError(t, st.Users().CreateUser(ctx, alice))
	require.NoError(t, st.Close())

	app := newApp(t, cfg)

	ok, err := app.rolesService.HasRole(ctx, alice.ID, domain.RoleAdmin)
	require.NoError(t, err)
	require.True(t, ok)
}
