package http_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/service"
	"github.com/aussiebroadwan/notesauth/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

func TestSystemEndpoints(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ctx := context.Background()

	live, err := c.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := c.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)

	for _, path := range []string{"/metrics", "/swagger/doc.json"} {
		resp, err := http.Get(ts.srv.URL + path)
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode, path)

		switch path {
		case "/metrics":
			require.Contains(t, string(body), "notesauth_http_requests_total")
		default:
			require.Contains(t, string(body), "/v1/login")
		}
	}
}

func TestSignupFlow(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ctx := context.Background()

	flow, err := c.Signup(ctx, authsdk.SignupRequest{Email: "Alice@Example.com", RedirectTo: "/notes"})
	require.NoError(t, err)
	require.Equal(t, "onboarding", queryParam(t, flow.RedirectTo, "type"))
	require.Equal(t, "alice@example.com", queryParam(t, flow.RedirectTo, "target"))
	require.Empty(t, queryParam(t, flow.RedirectTo, "code"))

	_, err = c.PendingOnboarding(ctx)
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeExpired)

	flow, err = c.VerifyLink(ctx, ts.linkSentTo(t, "alice@example.com"))
	require.NoError(t, err)
	require.Equal(t, service.PathOnboarding+"?redirectTo=%2Fnotes", flow.RedirectTo)

	pending, err := c.PendingOnboarding(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", pending.Email)
	require.Nil(t, pending.Prefill)

	t.Run("validation errors name the field", func(t *testing.T) {
		_, err := c.CompleteOnboarding(ctx, authsdk.OnboardingRequest{Username: "x", Password: "alice-password"})
		apiErr := requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeValidation)
		require.Equal(t, "username", apiErr.Field)
	})

	flow, err = c.CompleteOnboarding(ctx, authsdk.OnboardingRequest{
		Username:   "alice",
		Name:       "Alice",
		Password:   "alice-password",
		RedirectTo: "/notes",
	})
	require.NoError(t, err)
	require.Equal(t, "/notes", flow.RedirectTo)
	_, ok := c.Cookie("en_session")
	require.True(t, ok)

	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "alice", me.Username)
	require.Equal(t, "alice@example.com", me.Email)
	require.True(t, me.HasPassword)
	require.False(t, me.TwoFactorEnabled)
	require.Contains(t, me.Roles, "user")

	t.Run("email cannot sign up twice", func(t *testing.T) {
		_, err := ts.browser(t).Signup(ctx, authsdk.SignupRequest{Email: "alice@example.com"})
		apiErr := requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeConflict)
		require.Equal(t, "email", apiErr.Field)
	})

	require.NoError(t, c.Logout(ctx))
	_, err = c.Me(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeUnauthenticated)
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	c := ts.signup(t, "bob")
	ctx := context.Background()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "bob", me.Username)

	t.Run("wrong password", func(t *testing.T) {
		_, err := ts.browser(t).Login(ctx, authsdk.LoginRequest{Username: "bob", Password: "nope-nope"})
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := ts.browser(t).Login(ctx, authsdk.LoginRequest{Username: "nobody", Password: "whatever1"})
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	})

	t.Run("offsite redirect ignored", func(t *testing.T) {
		flow, err := ts.browser(t).Login(ctx, authsdk.LoginRequest{
			Username:   "bob",
			Password:   "bob-password",
			RedirectTo: "//evil.example.com",
		})
		require.NoError(t, err)
		require.Equal(t, service.PathHome, flow.RedirectTo)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp, err := http.Post(ts.srv.URL+"/v1/login", "application/json", strings.NewReader(`{"username":`))
		require.NoError(t, err)
		_ = resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ctx := context.Background()

	var err error
	for range 10 {
		_, err = c.Login(ctx, authsdk.LoginRequest{Username: "mallory", Password: "guess-guess"})
	}
	requireAPIError(t, err, http.StatusTooManyRequests, authsdk.ErrorCodeRateLimited)
}

func TestStaleSessionCookieCleared(t *testing.T) {
	ts := newTestServer(t)
	c := ts.signup(t, "carol")
	ctx := context.Background()

	user, err := ts.store.Users().GetUserByUsername(ctx, "carol")
	require.NoError(t, err)
	require.NoError(t, ts.store.Sessions().DeleteUserSessions(ctx, user.ID, ""))

	_, err = c.Me(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeUnauthenticated)
	_, ok := c.Cookie("en_session")
	require.False(t, ok)
}

func TestDeletedUserIsSignedOut(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	t.Run("sessions cascade", func(t *testing.T) {
		c := ts.signup(t, "nina")
		require.NoError(t, ts.store.Users().DeleteUser(ctx, ts.userID(t, "nina")))

		_, err := c.Me(ctx)
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeUnauthenticated)
		_, ok := c.Cookie("en_session")
		require.False(t, ok)
	})

	t.Run("orphaned session is removed", func(t *testing.T) {
		c := ts.signup(t, "oscar")
		userID := ts.userID(t, "oscar")

		// Without foreign keys the user row goes but its session stays.
		db := ts.rawDB(t)
		_, err := db.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
		require.NoError(t, err)
		var n int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&n))
		require.Equal(t, 1, n)

		_, err = c.Me(ctx)
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeUnauthenticated)
		_, ok := c.Cookie("en_session")
		require.False(t, ok)

		require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE user_id = ?`, userID).Scan(&n))
		require.Zero(t, n)
	})
}

func TestExpiredSessionCookieCleared(t *testing.T) {
	ts := newTestServer(t)
	c := ts.signup(t, "peggy")
	ctx := context.Background()

	_, err := ts.rawDB(t).ExecContext(ctx,
		`UPDATE sessions SET expires_at = ? WHERE user_id = ?`,
		time.Now().Add(-time.Minute).UnixMilli(), ts.userID(t, "peggy"))
	require.NoError(t, err)

	_, err = c.Me(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeUnauthenticated)
	_, ok := c.Cookie("en_session")
	require.False(t, ok)
}

func TestTwoFactorLogin(t *testing.T) {
	ts := newTestServer(t)
	c := ts.signup(t, "dave")
	ctx := context.Background()

	p := ts.enableTwoFactor(t, c)
	status, err := c.TwoFactorStatus(ctx)
	require.NoError(t, err)
	require.True(t, status.Enabled)

	_, err = c.EnrollTwoFactor(ctx)
	requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeConflict)

	other := ts.browser(t)
	flow, err := other.Login(ctx, authsdk.LoginRequest{
		Username:   "dave",
		Password:   "dave-password",
		Remember:   true,
		RedirectTo: "/notes",
	})
	require.NoError(t, err)
	require.True(t, flow.TwoFactorRequired)
	require.Equal(t, domain.VerificationTwoFactor.String(), queryParam(t, flow.RedirectTo, "type"))
	_, ok := other.Cookie("en_session")
	require.False(t, ok, "no session before the second factor")

	_, err = other.Me(ctx)
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeUnauthenticated)

	target := queryParam(t, flow.RedirectTo, "target")
	_, err = other.Verify(ctx, authsdk.VerifyRequest{Code: "000000", Type: "2fa", Target: target})
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode)

	flow, err = other.Verify(ctx, authsdk.VerifyRequest{
		Code:       ts.code(t, p),
		Type:       "2fa",
		Target:     target,
		RedirectTo: queryParam(t, flow.RedirectTo, "redirectTo"),
	})
	require.NoError(t, err)
	require.Equal(t, "/notes", flow.RedirectTo)

	me, err := other.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, "dave", me.Username)
	require.True(t, me.TwoFactorEnabled)
}

func TestReverification(t *testing.T) {
	ts := newTestServer(t)
	c := ts.signup(t, "erin")
	ctx := context.Background()
	p := ts.enableTwoFactor(t, c)

	// Enrolment just verified the session.
	flow, err := c.ChangeEmail(ctx, authsdk.ChangeEmailRequest{Email: "erin2@example.com"})
	require.NoError(t, err)
	require.Equal(t, "change-email", queryParam(t, flow.RedirectTo, "type"))

	ts.skew.Store(int64(3 * time.Hour))

	_, err = c.ChangeEmail(ctx, authsdk.ChangeEmailRequest{Email: "erin3@example.com"})
	apiErr := requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeReverificationRequired)
	require.Equal(t, "2fa", queryParam(t, apiErr.RedirectTo, "type"))

	err = c.DisableTwoFactor(ctx)
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeReverificationRequired)

	flow, err = c.Verify(ctx, authsdk.VerifyRequest{
		Code:   ts.code(t, p),
		Type:   "2fa",
		Target: queryParam(t, apiErr.RedirectTo, "target"),
	})
	require.NoError(t, err)
	require.Equal(t, "You have re-verified your account.", flow.Message)

	require.NoError(t, c.DisableTwoFactor(ctx))
	status, err := c.TwoFactorStatus(ctx)
	require.NoError(t, err)
	require.False(t, status.Enabled)

	err = c.DisableTwoFactor(ctx)
	requireAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound)
}

func TestProfileChanges(t *testing.T) {
	ts := newTestServer(t)
	c := ts.signup(t, "frank")
	ctx := context.Background()

	t.Run("password", func(t *testing.T) {
		err := c.ChangePassword(ctx, authsdk.ChangePasswordRequest{
			CurrentPassword: "wrong-password",
			NewPassword:     "frank-new-password",
		})
		apiErr := requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidCredentials)
		require.Equal(t, "current_password", apiErr.Field)

		require.NoError(t, c.ChangePassword(ctx, authsdk.ChangePasswordRequest{
			CurrentPassword: "frank-password",
			NewPassword:     "frank-new-password",
		}))

		_, err = ts.browser(t).Login(ctx, authsdk.LoginRequest{Username: "frank", Password: "frank-new-password"})
		require.NoError(t, err)
	})

	t.Run("email", func(t *testing.T) {
		_, err := c.ChangeEmail(ctx, authsdk.ChangeEmailRequest{Email: "frank@new.example.com"})
		require.NoError(t, err)

		// The code only works in the browser that asked for it.
		link := ts.linkSentTo(t, "frank@new.example.com")
		_, err = ts.signup(t, "grace").VerifyLink(ctx, link)
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeUnauthenticated)

		flow, err := c.VerifyLink(ctx, link)
		require.NoError(t, err)
		require.Equal(t, service.PathProfile, flow.RedirectTo)
		require.Contains(t, flow.Message, "frank@new.example.com")

		me, err := c.Me(ctx)
		require.NoError(t, err)
		require.Equal(t, "frank@new.example.com", me.Email)

		_, ok := ts.mail.Last("frank@example.com")
		require.True(t, ok, "old address is notified")
	})
}

func TestPasswordReset(t *testing.T) {
	ts := newTestServer(t)
	ts.signup(t, "heidi")
	c := ts.browser(t)
	ctx := context.Background()

	unknown, err := c.ForgotPassword(ctx, authsdk.ForgotPasswordRequest{UsernameOrEmail: "nobody"})
	require.NoError(t, err)
	require.Equal(t, "reset-password", queryParam(t, unknown.RedirectTo, "type"))
	require.Len(t, ts.mail.Sent(), 0)

	_, err = c.ForgotPassword(ctx, authsdk.ForgotPasswordRequest{UsernameOrEmail: "heidi"})
	require.NoError(t, err)

	_, err = c.ResetPassword(ctx, authsdk.ResetPasswordRequest{Password: "heidi-new-password"})
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeExpired)

	link := ts.linkSentTo(t, "heidi@example.com")
	flow, err := c.VerifyLink(ctx, link)
	require.NoError(t, err)
	require.Equal(t, service.PathResetPassword, flow.RedirectTo)

	// Codes are single use.
	_, err = c.VerifyLink(ctx, link)
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidCode)

	flow, err = c.ResetPassword(ctx, authsdk.ResetPasswordRequest{Password: "heidi-new-password"})
	require.NoError(t, err)
	require.Equal(t, service.PathLogin, flow.RedirectTo)

	_, err = c.Login(ctx, authsdk.LoginRequest{Username: "heidi", Password: "heidi-new-password"})
	require.NoError(t, err)
}

func TestVerifyRejectsIncompleteRequests(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ctx := context.Background()

	_, err := c.VerifyLink(ctx, "/verify?type=onboarding&target=a%40example.com")
	apiErr := requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeValidation)
	require.Equal(t, "code", apiErr.Field)

	_, err = c.Verify(ctx, authsdk.VerifyRequest{Code: "123456", Type: "magic", Target: "a@example.com"})
	apiErr = requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeValidation)
	require.Equal(t, "type", apiErr.Field)

	_, err = c.Verify(ctx, authsdk.VerifyRequest{Code: "123456", Type: "2fa-verify", Target: "someone"})
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeUnauthenticated)
}
