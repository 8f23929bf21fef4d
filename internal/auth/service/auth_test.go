package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/stretchr/testify/require"
)

func TestSignup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	t.Run("creates user, password, role and session", func(t *testing.T) {
		sess, err := h.auth.Signup(ctx, SignupInput{
			Email:    "  Alice@Example.com ",
			Username: "Alice",
			Password: "alice-password",
			Name:     "Alice",
		})
		require.NoError(t, err)

		user, err := h.store.Users().GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, "alice", user.Username)
		require.Equal(t, user.ID, sess.UserID)

		_, err = h.store.Passwords().GetPassword(ctx, user.ID)
		require.NoError(t, err)

		roles, err := h.store.Roles().ListUserRoles(ctx, user.ID)
		require.NoError(t, err)
		require.Len(t, roles, 1)
		require.Equal(t, domain.RoleUser, roles[0].Name)

		got, err := h.store.Sessions().GetValidSession(ctx, sess.ID)
		require.NoError(t, err)
		require.Equal(t, user.ID, got.UserID)
	})

	t.Run("rejects taken email and username", func(t *testing.T) {
		_, err := h.auth.Signup(ctx, SignupInput{Email: "alice@example.com", Username: "other", Password: "password"})
		require.ErrorIs(t, err, ErrEmailTaken)

		_, err = h.auth.Signup(ctx, SignupInput{Email: "other@example.com", Username: "alice", Password: "password"})
		require.ErrorIs(t, err, ErrUsernameTaken)
	})

	t.Run("validates input", func(t *testing.T) {
		tests := []struct {
			name  string
			in    SignupInput
			field string
		}{
			{"bad email", SignupInput{Email: "nope", Username: "bob", Password: "password"}, "email"},
			{"short username", SignupInput{Email: "bob@example.com", Username: "bo", Password: "password"}, "username"},
			{"username symbols", SignupInput{Email: "bob@example.com", Username: "bob!", Password: "password"}, "username"},
			{"short password", SignupInput{Email: "bob@example.com", Username: "bob", Password: "pw"}, "password"},
			{"long name", SignupInput{Email: "bob@example.com", Username: "bob", Password: "password", Name: strings.Repeat("n", 41)}, "name"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := h.auth.Signup(ctx, tt.in)
				var verr *ValidationError
				require.True(t, errors.As(err, &verr), err)
				require.Equal(t, tt.field, verr.Field)
			})
		}

		_, err := h.store.Users().GetUserByUsername(ctx, "bob")
		require.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	user, _ := h.signup(t, "kody")

	t.Run("valid credentials", func(t *testing.T) {
		sess, err := h.auth.Login(ctx, " KODY ", "kody-password")
		require.NoError(t, err)
		require.Equal(t, user.ID, sess.UserID)
		require.NotEmpty(t, sess.ID)
	})

	t.Run("every failure looks the same", func(t *testing.T) {
		_, err := h.auth.Login(ctx, "kody", "wrong-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = h.auth.Login(ctx, "nobody", "kody-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("provider-only users cannot log in with a password", func(t *testing.T) {
		_, err := h.auth.SignupWithConnection(ctx, SignupInput{Email: "gh@example.com", Username: "ghuser"}, "github", "gh_42")
		require.NoError(t, err)

		_, err = h.auth.Login(ctx, "ghuser", "")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestAuthenticateAndLogout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	user, sess := h.signup(t, "kody")

	got, gotSess, err := h.auth.Authenticate(ctx, sess.ID)
	require.NoError(t, err)
	require.Equal(t, user.ID, got.ID)
	require.Equal(t, sess.ID, gotSess.ID)

	userID, ok, err := h.auth.AuthenticateSession(ctx, sess.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, user.ID, userID)

	require.NoError(t, h.auth.Logout(ctx, sess.ID))
	require.NoError(t, h.auth.Logout(ctx, sess.ID))
	require.NoError(t, h.auth.Logout(ctx, ""))

	_, _, err = h.auth.Authenticate(ctx, sess.ID)
	require.ErrorIs(t, err, ErrNotAuthenticated)

	_, ok, err = h.auth.AuthenticateSession(ctx, sess.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestAuthenticateRemovesOrphanedSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	// A connection without foreign keys can leave a session behind its user.
	db, err := sql.Open("sqlite", "file:"+h.dbPath+"?_pragma=busy_timeout(5000)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires_at, created_at) VALUES (?, ?, ?, ?)`,
		"orphan", "deleted-user", time.Now().Add(time.Hour).UnixMilli(), time.Now().UnixMilli())
	require.NoError(t, err)

	_, err = h.store.Sessions().GetValidSession(ctx, "orphan")
	require.NoError(t, err)

	_, _, err = h.auth.Authenticate(ctx, "orphan")
	require.ErrorIs(t, err, ErrNotAuthenticated)

	var n int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = 'orphan'`).Scan(&n))
	require.Zero(t, n)

	_, ok, err := h.auth.AuthenticateSession(ctx, "orphan")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestStartSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	t.Run("without two-factor the session is committed", func(t *testing.T) {
		ctx := h.browser(t)
		_, sess := h.signup(t, "plain")

		out, err := h.auth.StartSession(ctx, sess, false, "/notes")
		require.NoError(t, err)
		require.False(t, out.TwoFactorRequired)
		require.NotNil(t, out.Session)
		require.Equal(t, sess.ID, out.Session.ID)
		require.Equal(t, "/notes", out.RedirectTo)
		require.True(t, out.CookieExpiry().IsZero())

		out, err = h.auth.StartSession(ctx, sess, true, "//evil.example.com")
		require.NoError(t, err)
		require.Equal(t, PathHome, out.RedirectTo)
		require.Equal(t, sess.ExpiresAt, out.CookieExpiry())
	})

	t.Run("with two-factor the session is parked", func(t *testing.T) {
		ctx := h.browser(t)
		user, _ := h.signup(t, "guarded")
		h.enableTwoFactor(t, user.ID)

		sess, err := h.auth.Login(ctx, "guarded", "guarded-password")
		require.NoError(t, err)

		out, err := h.auth.StartSession(ctx, sess, true, "/notes")
		require.NoError(t, err)
		require.True(t, out.TwoFactorRequired)
		require.Nil(t, out.Session)
		require.Equal(t, string(domain.VerificationTwoFactor), queryParam(t, out.RedirectTo, "type"))
		require.Equal(t, user.ID, queryParam(t, out.RedirectTo, "target"))
		require.Equal(t, "/notes", queryParam(t, out.RedirectTo, "redirectTo"))
		require.Empty(t, queryParam(t, out.RedirectTo, "code"))

		require.Equal(t, sess.ID, h.sm.GetString(ctx, KeyUnverifiedSessionID))
		require.True(t, h.sm.GetBool(ctx, KeyRememberMe))
	})
}

func TestRequireRecentVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	t.Run("users without two-factor always pass", func(t *testing.T) {
		user, sess := h.signup(t, "plain")
		require.NoError(t, h.auth.RequireRecentVerification(ctx, sess.ID, user.ID, "/settings"))
	})

	t.Run("two-factor users need a fresh check", func(t *testing.T) {
		user, sess := h.signup(t, "guarded")
		h.enableTwoFactor(t, user.ID)

		err := h.auth.RequireRecentVerification(ctx, sess.ID, user.ID, "/settings")
		var rerr *ReverificationRequiredError
		require.True(t, errors.As(err, &rerr), err)
		require.Equal(t, user.ID, queryParam(t, rerr.RedirectTo, "target"))
		require.Equal(t, "/settings", queryParam(t, rerr.RedirectTo, "redirectTo"))

		verifiedAt := time.Now()
		require.NoError(t, h.store.Sessions().MarkSessionVerified(ctx, sess.ID, verifiedAt))
		require.NoError(t, h.auth.RequireRecentVerification(ctx, sess.ID, user.ID, "/settings"))

		later := &AuthService{Store: h.store, Now: func() time.Time { return verifiedAt.Add(3 * time.Hour) }}
		err = later.RequireRecentVerification(ctx, sess.ID, user.ID, "/settings")
		require.True(t, errors.As(err, &rerr), err)
	})

	t.Run("foreign session is rejected", func(t *testing.T) {
		user, _ := h.signup(t, "victim")
		h.enableTwoFactor(t, user.ID)
		_, other := h.signup(t, "intruder")

		err := h.auth.RequireRecentVerification(ctx, other.ID, user.ID, "")
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})
}

func TestChangePassword(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	t.Run("requires the current password and signs out other sessions", func(t *testing.T) {
		user, current := h.signup(t, "kody")
		other, err := h.auth.Login(ctx, "kody", "kody-password")
		require.NoError(t, err)

		err = h.auth.ChangePassword(ctx, user.ID, current.ID, "wrong-password", "new-password")
		require.ErrorIs(t, err, ErrIncorrectPassword)

		err = h.auth.ChangePassword(ctx, user.ID, current.ID, "kody-password", "new")
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), err)

		require.NoError(t, h.auth.ChangePassword(ctx, user.ID, current.ID, "kody-password", "new-password"))

		_, err = h.store.Sessions().GetValidSession(ctx, current.ID)
		require.NoError(t, err)
		_, err = h.store.Sessions().GetValidSession(ctx, other.ID)
		require.ErrorIs(t, err, store.ErrNotFound)

		_, err = h.auth.Login(ctx, "kody", "kody-password")
		require.ErrorIs(t, err, ErrInvalidCredentials)
		_, err = h.auth.Login(ctx, "kody", "new-password")
		require.NoError(t, err)
	})

	t.Run("provider-only users may set a first password", func(t *testing.T) {
		sess, err := h.auth.SignupWithConnection(ctx, SignupInput{Email: "gh@example.com", Username: "ghuser"}, "github", "gh_1")
		require.NoError(t, err)

		require.NoError(t, h.auth.ChangePassword(ctx, sess.UserID, sess.ID, "", "first-password"))
		_, err = h.auth.Login(ctx, "ghuser", "first-password")
		require.NoError(t, err)
	})
}
