package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/metrics"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/aussiebroadwan/notesauth/pkg/cryptox"
	"github.com/aussiebroadwan/notesauth/pkg/idx"
	"github.com/aussiebroadwan/notesauth/pkg/mailx"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
	"github.com/aussiebroadwan/notesauth/pkg/totpx"
)

// DefaultCodePeriod is the validity window of emailed codes in seconds.
const DefaultCodePeriod = 10 * 60

// VerificationService issues challenges and completes them through the
// per-type handler table.
type VerificationService struct {
	Store       store.Store
	SideChannel SideChannel
	Mailer      mailx.Sender
	Metrics     *metrics.Metrics

	// Origin is the public base URL used in emailed links.
	Origin string
	Now    func() time.Time
}

type PrepareInput struct {
	Type       domain.VerificationType
	Target     string
	Period     int // seconds, DefaultCodePeriod when zero
	RedirectTo string
}

// Prepared is a stored challenge ready to be delivered.
type Prepared struct {
	Code string
	// VerifyURL is absolute and embeds the code; it goes into emails.
	VerifyURL string
	// RedirectTo is the relative verify page without the code.
	RedirectTo string
}

type CompleteInput struct {
	Code       string
	Type       domain.VerificationType
	Target     string
	RedirectTo string

	// SessionID and UserID identify the signed-in caller, if any.
	SessionID string
	UserID    string
}

// VerificationOutcome tells the transport where to go next.
type VerificationOutcome struct {
	RedirectTo string
	Message    string
	// Session is set when a pending two-factor login was promoted and must
	// be written to the session cookie.
	Session  *domain.Session
	Remember bool
}

type verificationHandler struct {
	// consume deletes the challenge before handle runs.
	consume bool
	// targetIsUser requires the target to be the signed-in user's id.
	targetIsUser bool
	handle       func(s *VerificationService, ctx context.Context, in CompleteInput, v domain.Verification) (VerificationOutcome, error)
}

var verificationHandlers = map[domain.VerificationType]verificationHandler{
	domain.VerificationOnboarding: {
		consume: true,
		handle:  (*VerificationService).handleOnboarding,
	},
	domain.VerificationResetPassword: {
		consume: true,
		handle:  (*VerificationService).handleResetPassword,
	},
	domain.VerificationTwoFactor: {
		consume: false,
		handle:  (*VerificationService).handleTwoFactor,
	},
	domain.VerificationTwoFactorSetup: {
		consume:      true,
		targetIsUser: true,
		handle:       (*VerificationService).handleTwoFactorSetup,
	},
	domain.VerificationChangeEmail: {
		consume:      true,
		targetIsUser: true,
		handle:       (*VerificationService).handleChangeEmail,
	},
}

func (s *VerificationService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Prepare generates a SHA256 challenge for (Type, Target), replacing any
// previous one, and expiring after Period.
func (s *VerificationService) Prepare(ctx context.Context, in PrepareInput) (Prepared, error) {
	period := in.Period
	if period <= 0 {
		period = DefaultCodePeriod
	}

	now := s.now()
	code, err := totpx.Generate(
		totpx.WithAlgorithm("SHA256"),
		totpx.WithPeriod(period),
		totpx.WithTime(now),
	)
	if err != nil {
		return Prepared{}, fmt.Errorf("failed to generate code: %w", err)
	}

	expiresAt := now.Add(time.Duration(period) * time.Second)
	if err := storeVerification(ctx, s.Store, in.Type, in.Target, code.Params, &expiresAt, now); err != nil {
		return Prepared{}, err
	}

	redirectTo := SafeRedirect(in.RedirectTo, "")
	return Prepared{
		Code:       code.Code,
		VerifyURL:  VerifyURL(s.Origin, in.Type, in.Target, code.Code, redirectTo),
		RedirectTo: VerifyURL("", in.Type, in.Target, "", redirectTo),
	}, nil
}

// storeVerification seals the secret and upserts the challenge under a new
// version id.
func storeVerification(
	ctx context.Context,
	st store.Store,
	t domain.VerificationType,
	target string,
	p totpx.Params,
	expiresAt *time.Time,
	now time.Time,
) error {
	sealed, err := cryptox.Seal(p.Secret)
	if err != nil {
		return fmt.Errorf("failed to seal secret: %w", err)
	}

	err = st.Verifications().UpsertVerification(ctx, domain.Verification{
		ID:        idx.New().String(),
		Type:      t,
		Target:    target,
		Secret:    sealed,
		Algorithm: p.Algorithm,
		Period:    p.Period,
		Digits:    p.Digits,
		CharSet:   p.CharSet,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to store verification: %w", err)
	}
	return nil
}

// IsCodeValid reports whether code matches the unexpired challenge for
// (t, target). A missing challenge is (false, nil).
func (s *VerificationService) IsCodeValid(ctx context.Context, code string, t domain.VerificationType, target string) (bool, error) {
	_, ok, err := s.lookup(ctx, code, t, target)
	return ok, err
}

func (s *VerificationService) lookup(
	ctx context.Context,
	code string,
	t domain.VerificationType,
	target string,
) (domain.Verification, bool, error) {
	v, err := s.Store.Verifications().GetVerification(ctx, t, target)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Verification{}, false, nil
	}
	if err != nil {
		return domain.Verification{}, false, fmt.Errorf("failed to get verification: %w", err)
	}
	return v, s.matches(ctx, v, code), nil
}

func (s *VerificationService) matches(ctx context.Context, v domain.Verification, code string) bool {
	secret, err := cryptox.Open(v.Secret)
	if err != nil {
		slogx.FromContext(ctx).Error("failed to open verification secret",
			"type", v.Type.String(), "error", err)
		return false
	}

	ok, err := totpx.VerifyAt(code, totpx.Params{
		Secret:    secret,
		Algorithm: v.Algorithm,
		Period:    v.Period,
		Digits:    v.Digits,
		CharSet:   v.CharSet,
	}, s.now())
	if err != nil {
		slogx.FromContext(ctx).Error("stored verification is malformed",
			"type", v.Type.String(), "error", err)
		return false
	}
	return ok
}

// Complete validates the code once, consumes the challenge when its type is
// single-use, and runs the type's handler. Of several concurrent callers with
// the same code exactly one gets past the consume.
func (s *VerificationService) Complete(ctx context.Context, in CompleteInput) (VerificationOutcome, error) {
	h, ok := verificationHandlers[in.Type]
	if !ok {
		return VerificationOutcome{}, ErrInvalidCode
	}
	if h.targetIsUser && (in.UserID == "" || in.UserID != in.Target) {
		return VerificationOutcome{}, ErrNotAuthenticated
	}

	v, ok, err := s.lookup(ctx, in.Code, in.Type, in.Target)
	if err != nil {
		s.Metrics.Verification(in.Type.String(), metrics.OutcomeError)
		return VerificationOutcome{}, err
	}
	if !ok {
		s.Metrics.Verification(in.Type.String(), metrics.OutcomeInvalid)
		return VerificationOutcome{}, ErrInvalidCode
	}

	if h.consume {
		err := s.Store.Verifications().ConsumeVerification(ctx, in.Type, in.Target, v.ID)
		if errors.Is(err, store.ErrNotFound) {
			s.Metrics.Verification(in.Type.String(), metrics.OutcomeInvalid)
			return VerificationOutcome{}, ErrInvalidCode
		}
		if err != nil {
			s.Metrics.Verification(in.Type.String(), metrics.OutcomeError)
			return VerificationOutcome{}, fmt.Errorf("failed to consume verification: %w", err)
		}
	}

	out, err := h.handle(s, ctx, in, v)
	if err != nil {
		s.Metrics.Verification(in.Type.String(), metrics.OutcomeError)
		return VerificationOutcome{}, err
	}
	s.Metrics.Verification(in.Type.String(), metrics.OutcomeSuccess)
	return out, nil
}

func (s *VerificationService) handleOnboarding(
	ctx context.Context,
	in CompleteInput,
	_ domain.Verification,
) (VerificationOutcome, error) {
	s.SideChannel.Put(ctx, KeyOnboardingEmail, in.Target)
	return VerificationOutcome{
		RedirectTo: withRedirect(PathOnboarding, in.RedirectTo),
	}, nil
}

func (s *VerificationService) handleResetPassword(
	ctx context.Context,
	in CompleteInput,
	_ domain.Verification,
) (VerificationOutcome, error) {
	user, err := s.Store.Users().GetUserByEmailOrUsername(ctx, in.Target)
	if errors.Is(err, store.ErrNotFound) {
		return VerificationOutcome{}, ErrInvalidCode
	}
	if err != nil {
		return VerificationOutcome{}, fmt.Errorf("failed to get user: %w", err)
	}

	s.SideChannel.Put(ctx, KeyResetPasswordUsername, user.Username)
	return VerificationOutcome{RedirectTo: PathResetPassword}, nil
}

// handleTwoFactor promotes a session parked at login, or refreshes the
// verification time of the caller's live session.
func (s *VerificationService) handleTwoFactor(
	ctx context.Context,
	in CompleteInput,
	_ domain.Verification,
) (VerificationOutcome, error) {
	now := s.now()
	redirectTo := SafeRedirect(in.RedirectTo, PathHome)

	if pendingID := s.SideChannel.PopString(ctx, KeyUnverifiedSessionID); pendingID != "" {
		remember := s.SideChannel.PopBool(ctx, KeyRememberMe)

		sess, err := s.Store.Sessions().GetValidSession(ctx, pendingID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && sess.UserID != in.Target) {
			return VerificationOutcome{}, ErrSessionToVerifyNotFound
		}
		if err != nil {
			return VerificationOutcome{}, fmt.Errorf("failed to get session: %w", err)
		}

		if err := s.markVerified(ctx, sess.ID, now); err != nil {
			return VerificationOutcome{}, err
		}
		sess.VerifiedAt = &now

		slogx.FromContext(ctx).Info("two-factor login completed", "user_id", sess.UserID)
		return VerificationOutcome{
			RedirectTo: redirectTo,
			Session:    &sess,
			Remember:   remember,
		}, nil
	}

	if in.SessionID == "" || in.UserID != in.Target {
		return VerificationOutcome{}, ErrSessionToVerifyNotFound
	}
	if err := s.markVerified(ctx, in.SessionID, now); err != nil {
		return VerificationOutcome{}, err
	}
	return VerificationOutcome{RedirectTo: redirectTo, Message: "You have re-verified your account."}, nil
}

// handleTwoFactorSetup turns a confirmed enrolment into the permanent
// verifier.
func (s *VerificationService) handleTwoFactorSetup(
	ctx context.Context,
	in CompleteInput,
	v domain.Verification,
) (VerificationOutcome, error) {
	err := s.Store.Verifications().UpsertVerification(ctx, domain.Verification{
		ID:        idx.New().String(),
		Type:      domain.VerificationTwoFactor,
		Target:    v.Target,
		Secret:    v.Secret,
		Algorithm: v.Algorithm,
		Period:    v.Period,
		Digits:    v.Digits,
		CharSet:   v.CharSet,
		CreatedAt: s.now(),
	})
	if err != nil {
		return VerificationOutcome{}, fmt.Errorf("failed to enable two-factor: %w", err)
	}

	if in.SessionID != "" {
		if err := s.markVerified(ctx, in.SessionID, s.now()); err != nil {
			return VerificationOutcome{}, err
		}
	}

	slogx.FromContext(ctx).Info("two-factor enabled", "user_id", v.Target)
	return VerificationOutcome{
		RedirectTo: PathTwoFactor,
		Message:    "Two-factor authentication has been enabled.",
	}, nil
}

func (s *VerificationService) handleChangeEmail(
	ctx context.Context,
	in CompleteInput,
	_ domain.Verification,
) (VerificationOutcome, error) {
	newEmail := s.SideChannel.PopString(ctx, KeyNewEmailAddress)
	if newEmail == "" {
		return VerificationOutcome{}, ErrEmailChangeExpired
	}

	user, err := s.Store.Users().GetUserByID(ctx, in.Target)
	if errors.Is(err, store.ErrNotFound) {
		return VerificationOutcome{}, ErrNotAuthenticated
	}
	if err != nil {
		return VerificationOutcome{}, fmt.Errorf("failed to get user: %w", err)
	}

	err = s.Store.Users().UpdateEmail(ctx, user.ID, newEmail)
	if errors.Is(err, store.ErrAlreadyExists) {
		return VerificationOutcome{}, ErrEmailTaken
	}
	if err != nil {
		return VerificationOutcome{}, fmt.Errorf("failed to update email: %w", err)
	}

	// The change already happened; a failed notice is only logged.
	_ = send(ctx, s.Mailer, s.Metrics, emailChangedNotice(user.Email, newEmail))

	slogx.FromContext(ctx).Info("email changed", "user_id", user.ID)
	return VerificationOutcome{
		RedirectTo: PathProfile,
		Message:    fmt.Sprintf("Your email has been changed to %s.", newEmail),
	}, nil
}

func (s *VerificationService) markVerified(ctx context.Context, sessionID string, at time.Time) error {
	err := s.Store.Sessions().MarkSessionVerified(ctx, sessionID, at)
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionToVerifyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to mark session verified: %w", err)
	}
	return nil
}
