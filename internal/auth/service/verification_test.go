package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/stretchr/testify/require"
)

func TestHandlerTableCoversEveryType(t *testing.T) {
	t.Parallel()

	require.Len(t, verificationHandlers, len(domain.VerificationTypes()))
	for _, vt := range domain.VerificationTypes() {
		h, ok := verificationHandlers[vt]
		require.True(t, ok, "no handler for %s", vt)
		require.NotNil(t, h.handle, vt)
	}

	require.False(t, verificationHandlers[domain.VerificationTwoFactor].consume)
	require.True(t, verificationHandlers[domain.VerificationTwoFactorSetup].consume)
}

func TestPrepareAndIsCodeValid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	p, err := h.verify.Prepare(ctx, PrepareInput{
		Type:       domain.VerificationOnboarding,
		Target:     "new@example.com",
		RedirectTo: "/notes",
	})
	require.NoError(t, err)
	require.Len(t, p.Code, 6)

	require.True(t, strings.HasPrefix(p.VerifyURL, testOrigin+PathVerify+"?"))
	require.Equal(t, p.Code, queryParam(t, p.VerifyURL, "code"))
	require.Equal(t, "new@example.com", queryParam(t, p.VerifyURL, "target"))
	require.Equal(t, "/notes", queryParam(t, p.VerifyURL, "redirectTo"))

	require.True(t, strings.HasPrefix(p.RedirectTo, PathVerify+"?"))
	require.Empty(t, queryParam(t, p.RedirectTo, "code"))

	v, err := h.store.Verifications().GetVerification(ctx, domain.VerificationOnboarding, "new@example.com")
	require.NoError(t, err)
	require.Equal(t, "SHA256", v.Algorithm)
	require.Equal(t, DefaultCodePeriod, v.Period)
	require.NotNil(t, v.ExpiresAt)
	require.NotEmpty(t, v.Secret)

	ok, err := h.verify.IsCodeValid(ctx, p.Code, domain.VerificationOnboarding, "new@example.com")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = h.verify.IsCodeValid(ctx, wrongCode(p.Code), domain.VerificationOnboarding, "new@example.com")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = h.verify.IsCodeValid(ctx, p.Code, domain.VerificationOnboarding, "other@example.com")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = h.verify.IsCodeValid(ctx, p.Code, domain.VerificationResetPassword, "new@example.com")
	require.NoError(t, err)
	require.False(t, ok)

	t.Run("a new challenge supersedes the old one", func(t *testing.T) {
		again, err := h.verify.Prepare(ctx, PrepareInput{Type: domain.VerificationOnboarding, Target: "new@example.com"})
		require.NoError(t, err)

		if again.Code != p.Code {
			ok, err := h.verify.IsCodeValid(ctx, p.Code, domain.VerificationOnboarding, "new@example.com")
			require.NoError(t, err)
			require.False(t, ok)
		}
		ok, err := h.verify.IsCodeValid(ctx, again.Code, domain.VerificationOnboarding, "new@example.com")
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func TestCompleteRejectsBadInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)

	p, err := h.verify.Prepare(ctx, PrepareInput{Type: domain.VerificationOnboarding, Target: "new@example.com"})
	require.NoError(t, err)

	t.Run("wrong code leaves the challenge in place", func(t *testing.T) {
		_, err := h.verify.Complete(h.browser(t), CompleteInput{
			Code: wrongCode(p.Code), Type: domain.VerificationOnboarding, Target: "new@example.com",
		})
		require.ErrorIs(t, err, ErrInvalidCode)

		_, err = h.store.Verifications().GetVerification(ctx, domain.VerificationOnboarding, "new@example.com")
		require.NoError(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := h.verify.Complete(h.browser(t), CompleteInput{
			Code: p.Code, Type: domain.VerificationType("magic"), Target: "new@example.com",
		})
		require.ErrorIs(t, err, ErrInvalidCode)
	})

	t.Run("user-targeted types need the signed-in user", func(t *testing.T) {
		_, err := h.verify.Complete(h.browser(t), CompleteInput{
			Code: p.Code, Type: domain.VerificationChangeEmail, Target: "some-user",
		})
		require.ErrorIs(t, err, ErrNotAuthenticated)
	})
}

func TestCompleteConsumesExactlyOnce(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	p, err := h.verify.Prepare(context.Background(), PrepareInput{
		Type:   domain.VerificationOnboarding,
		Target: "race@example.com",
	})
	require.NoError(t, err)

	const racers = 8
	ctxs := make([]context.Context, racers)
	for i := range ctxs {
		ctxs[i] = h.browser(t)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		invalid int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(ctx context.Context) {
			defer wg.Done()
			_, err := h.verify.Complete(ctx, CompleteInput{
				Code: p.Code, Type: domain.VerificationOnboarding, Target: "race@example.com",
			})

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrInvalidCode):
				invalid++
			}
		}(ctxs[i])
	}
	wg.Wait()

	require.Equal(t, 1, wins)
	require.Equal(t, racers-1, invalid)
}

func TestTwoFactorLogin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	user, _ := h.signup(t, "guarded")
	params := h.enableTwoFactor(t, user.ID)

	t.Run("pending session is promoted", func(t *testing.T) {
		browser := h.browser(t)
		sess, err := h.auth.Login(browser, "guarded", "guarded-password")
		require.NoError(t, err)
		gate, err := h.auth.StartSession(browser, sess, true, "/notes")
		require.NoError(t, err)
		require.True(t, gate.TwoFactorRequired)

		out, err := h.verify.Complete(browser, CompleteInput{
			Code:       currentCode(t, params),
			Type:       domain.VerificationTwoFactor,
			Target:     user.ID,
			RedirectTo: "/notes",
		})
		require.NoError(t, err)
		require.NotNil(t, out.Session)
		require.Equal(t, sess.ID, out.Session.ID)
		require.True(t, out.Remember)
		require.Equal(t, "/notes", out.RedirectTo)
		require.Empty(t, h.sm.GetString(browser, KeyUnverifiedSessionID))

		got, err := h.store.Sessions().GetValidSession(ctx, sess.ID)
		require.NoError(t, err)
		require.NotNil(t, got.VerifiedAt)

		_, err = h.store.Verifications().GetVerification(ctx, domain.VerificationTwoFactor, user.ID)
		require.NoError(t, err, "the permanent verifier must survive use")
	})

	t.Run("missing pending session", func(t *testing.T) {
		browser := h.browser(t)
		h.sm.Put(browser, KeyUnverifiedSessionID, "gone")

		_, err := h.verify.Complete(browser, CompleteInput{
			Code: currentCode(t, params), Type: domain.VerificationTwoFactor, Target: user.ID,
		})
		require.ErrorIs(t, err, ErrSessionToVerifyNotFound)
	})

	t.Run("pending session of another user", func(t *testing.T) {
		_, other := h.signup(t, "other")
		browser := h.browser(t)
		h.sm.Put(browser, KeyUnverifiedSessionID, other.ID)

		_, err := h.verify.Complete(browser, CompleteInput{
			Code: currentCode(t, params), Type: domain.VerificationTwoFactor, Target: user.ID,
		})
		require.ErrorIs(t, err, ErrSessionToVerifyNotFound)
	})

	t.Run("live session is re-verified", func(t *testing.T) {
		sess, err := h.auth.CreateSession(ctx, user.ID)
		require.NoError(t, err)

		out, err := h.verify.Complete(h.browser(t), CompleteInput{
			Code:      currentCode(t, params),
			Type:      domain.VerificationTwoFactor,
			Target:    user.ID,
			SessionID: sess.ID,
			UserID:    user.ID,
		})
		require.NoError(t, err)
		require.Nil(t, out.Session)
		require.Equal(t, PathHome, out.RedirectTo)
		require.NoError(t, h.auth.RequireRecentVerification(ctx, sess.ID, user.ID, ""))
	})
}

func TestTwoFactorEnrolment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	user, sess := h.signup(t, "kody")

	enabled, err := h.twoFA.Status(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, enabled)

	err = h.twoFA.Disable(ctx, user.ID, sess.ID)
	require.ErrorIs(t, err, ErrTwoFactorNotEnabled)

	enrolment, err := h.twoFA.Enroll(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(enrolment.KeyURI, "otpauth://totp/"))
	require.Equal(t, string(domain.VerificationTwoFactorSetup), queryParam(t, enrolment.RedirectTo, "type"))

	pending, err := h.store.Verifications().GetVerification(ctx, domain.VerificationTwoFactorSetup, user.ID)
	require.NoError(t, err)
	require.NotNil(t, pending.ExpiresAt)

	code := currentCode(t, paramsOf(pending, queryParam(t, enrolment.KeyURI, "secret")))

	_, other := h.signup(t, "other")
	_, err = h.verify.Complete(h.browser(t), CompleteInput{
		Code: code, Type: domain.VerificationTwoFactorSetup, Target: user.ID,
		SessionID: other.ID, UserID: other.UserID,
	})
	require.ErrorIs(t, err, ErrNotAuthenticated)

	out, err := h.verify.Complete(h.browser(t), CompleteInput{
		Code: code, Type: domain.VerificationTwoFactorSetup, Target: user.ID,
		SessionID: sess.ID, UserID: user.ID,
	})
	require.NoError(t, err)
	require.Equal(t, PathTwoFactor, out.RedirectTo)

	_, err = h.store.Verifications().GetVerification(ctx, domain.VerificationTwoFactorSetup, user.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	permanent, err := h.store.Verifications().GetVerification(ctx, domain.VerificationTwoFactor, user.ID)
	require.NoError(t, err)
	require.Nil(t, permanent.ExpiresAt)
	require.NotEqual(t, pending.ID, permanent.ID)

	ok, err := h.verify.IsCodeValid(ctx, code, domain.VerificationTwoFactor, user.ID)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.twoFA.Enroll(ctx, user.ID)
	require.ErrorIs(t, err, ErrTwoFactorEnabled)

	// Enrolment verified the session, so disabling needs no extra check.
	require.NoError(t, h.twoFA.Disable(ctx, user.ID, sess.ID))
	enabled, err = h.twoFA.Status(ctx, user.ID)
	require.NoError(t, err)
	require.False(t, enabled)
}

func TestDisableTwoFactorRequiresRecentVerification(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	user, sess := h.signup(t, "kody")
	h.enableTwoFactor(t, user.ID)

	err := h.twoFA.Disable(ctx, user.ID, sess.ID)
	var rerr *ReverificationRequiredError
	require.ErrorAs(t, err, &rerr)

	enabled, err := h.twoFA.Status(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, enabled)
}

func TestChangeEmail(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	user, sess := h.signup(t, "kody")
	_, _ = h.signup(t, "taken")

	browser := h.browser(t)

	_, err := h.account.BeginEmailChange(browser, user.ID, sess.ID, "taken@example.com")
	require.ErrorIs(t, err, ErrEmailTaken)

	redirectTo, err := h.account.BeginEmailChange(browser, user.ID, sess.ID, "New@Example.com")
	require.NoError(t, err)
	require.Equal(t, string(domain.VerificationChangeEmail), queryParam(t, redirectTo, "type"))
	require.Equal(t, user.ID, queryParam(t, redirectTo, "target"))

	code := h.codeSentTo(t, "new@example.com")

	t.Run("another browser cannot finish the change", func(t *testing.T) {
		otherBrowser := h.browser(t)
		ok, err := h.verify.IsCodeValid(otherBrowser, code, domain.VerificationChangeEmail, user.ID)
		require.NoError(t, err)
		require.True(t, ok)
		require.Empty(t, h.sm.GetString(otherBrowser, KeyNewEmailAddress))
	})

	out, err := h.verify.Complete(browser, CompleteInput{
		Code: code, Type: domain.VerificationChangeEmail, Target: user.ID,
		SessionID: sess.ID, UserID: user.ID,
	})
	require.NoError(t, err)
	require.Equal(t, PathProfile, out.RedirectTo)
	require.Contains(t, out.Message, "new@example.com")

	got, err := h.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", got.Email)

	notice, ok := h.mail.Last("kody@example.com")
	require.True(t, ok)
	require.Contains(t, notice.Text, "new@example.com")
}

func TestChangeEmailWithoutSideChannel(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	user, sess := h.signup(t, "kody")

	_, err := h.account.BeginEmailChange(h.browser(t), user.ID, sess.ID, "new@example.com")
	require.NoError(t, err)

	_, err = h.verify.Complete(h.browser(t), CompleteInput{
		Code: h.codeSentTo(t, "new@example.com"), Type: domain.VerificationChangeEmail, Target: user.ID,
		SessionID: sess.ID, UserID: user.ID,
	})
	require.ErrorIs(t, err, ErrEmailChangeExpired)

	got, err := h.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "kody@example.com", got.Email)
}
