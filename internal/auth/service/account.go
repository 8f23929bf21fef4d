package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/metrics"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/aussiebroadwan/notesauth/pkg/cryptox"
	"github.com/aussiebroadwan/notesauth/pkg/mailx"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

// AccountService runs the multi-step account flows that go through an
// emailed code: onboarding, password reset and email change.
type AccountService struct {
	Store         store.Store
	Auth          *AuthService
	Verifications *VerificationService
	SideChannel   SideChannel
	Mailer        mailx.Sender
	Metrics       *metrics.Metrics
}

// OnboardingInput completes a signup started by BeginSignup or by a provider
// callback. Password is ignored for provider onboarding.
type OnboardingInput struct {
	Username   string
	Name       string
	Password   string
	Remember   bool
	RedirectTo string
}

// PendingOnboarding is what the account-completion form is prefilled with.
type PendingOnboarding struct {
	Email        string                  `json:"email"`
	ProviderName string                  `json:"provider_name,omitempty"`
	Prefill      *domain.ProviderProfile `json:"prefill,omitempty"`
}

// Profile is the signed-in user's account overview.
type Profile struct {
	User             domain.User
	Roles            []string
	HasPassword      bool
	TwoFactorEnabled bool
	Connections      []domain.Connection
}

// BeginSignup emails an onboarding code to email and returns the verify
// page to send the browser to.
func (s *AccountService) BeginSignup(ctx context.Context, email, redirectTo string) (string, error) {
	email = normalize(email)
	if err := validateEmail(email); err != nil {
		return "", err
	}

	if _, err := s.Store.Users().GetUserByEmail(ctx, email); err == nil {
		return "", ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to check email: %w", err)
	}

	p, err := s.Verifications.Prepare(ctx, PrepareInput{
		Type:       domain.VerificationOnboarding,
		Target:     email,
		RedirectTo: redirectTo,
	})
	if err != nil {
		return "", err
	}

	if err := send(ctx, s.Mailer, s.Metrics, onboardingEmail(email, p.Code, p.VerifyURL)); err != nil {
		return "", err
	}
	return p.RedirectTo, nil
}

// PendingOnboarding returns the verified email (and provider prefill) waiting
// in the side-channel.
func (s *AccountService) PendingOnboarding(ctx context.Context) (PendingOnboarding, error) {
	email := s.SideChannel.GetString(ctx, KeyOnboardingEmail)
	if email == "" {
		return PendingOnboarding{}, ErrOnboardingExpired
	}

	p := PendingOnboarding{
		Email:        email,
		ProviderName: s.SideChannel.GetString(ctx, KeyProviderName),
	}
	if raw := s.SideChannel.GetString(ctx, KeyPrefilledProfile); raw != "" {
		var prefill domain.ProviderProfile
		if err := json.Unmarshal([]byte(raw), &prefill); err != nil {
			slogx.FromContext(ctx).Warn("dropping unreadable onboarding prefill", "error", err)
		} else {
			p.Prefill = &prefill
		}
	}
	return p, nil
}

// CompleteOnboarding creates the account for the verified email and signs
// it in.
func (s *AccountService) CompleteOnboarding(ctx context.Context, in OnboardingInput) (SessionOutcome, error) {
	email := s.SideChannel.GetString(ctx, KeyOnboardingEmail)
	if email == "" {
		return SessionOutcome{}, ErrOnboardingExpired
	}

	sess, err := s.Auth.Signup(ctx, SignupInput{
		Email:    email,
		Username: in.Username,
		Password: in.Password,
		Name:     in.Name,
	})
	if err != nil {
		return SessionOutcome{}, err
	}

	s.SideChannel.Remove(ctx, KeyOnboardingEmail)
	return s.Auth.StartSession(ctx, sess, in.Remember, in.RedirectTo)
}

// CompleteProviderOnboarding creates a password-less account linked to the
// provider identity stashed by the OAuth callback.
func (s *AccountService) CompleteProviderOnboarding(
	ctx context.Context,
	providerName string,
	in OnboardingInput,
) (SessionOutcome, error) {
	email := s.SideChannel.GetString(ctx, KeyOnboardingEmail)
	providerID := s.SideChannel.GetString(ctx, KeyProviderID)
	stashed := s.SideChannel.GetString(ctx, KeyProviderName)
	if email == "" || providerID == "" || !strings.EqualFold(stashed, providerName) {
		return SessionOutcome{}, ErrOnboardingExpired
	}

	sess, err := s.Auth.SignupWithConnection(ctx, SignupInput{
		Email:    email,
		Username: in.Username,
		Name:     in.Name,
	}, stashed, providerID)
	if err != nil {
		return SessionOutcome{}, err
	}

	for _, key := range []string{KeyOnboardingEmail, KeyProviderID, KeyProviderName, KeyPrefilledProfile} {
		s.SideChannel.Remove(ctx, key)
	}
	return s.Auth.StartSession(ctx, sess, in.Remember, in.RedirectTo)
}

// ForgotPassword emails a reset code to the matching user. The returned
// verify page is the same whether or not a user matched.
func (s *AccountService) ForgotPassword(ctx context.Context, usernameOrEmail, redirectTo string) (string, error) {
	target := normalize(usernameOrEmail)
	if target == "" {
		return "", &ValidationError{Field: "username_or_email", Message: "username or email is required"}
	}

	user, err := s.Store.Users().GetUserByEmailOrUsername(ctx, target)
	if errors.Is(err, store.ErrNotFound) {
		slogx.FromContext(ctx).Info("password reset requested for unknown user")
		return VerifyURL("", domain.VerificationResetPassword, target, "", SafeRedirect(redirectTo, "")), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get user: %w", err)
	}

	p, err := s.Verifications.Prepare(ctx, PrepareInput{
		Type:       domain.VerificationResetPassword,
		Target:     target,
		RedirectTo: redirectTo,
	})
	if err != nil {
		return "", err
	}

	if err := send(ctx, s.Mailer, s.Metrics, resetPasswordEmail(user.Email, user.Username, p.Code, p.VerifyURL)); err != nil {
		return "", err
	}
	return p.RedirectTo, nil
}

// ResetPassword sets a new password for the user whose reset code was
// verified in this browser and signs out all of their sessions.
func (s *AccountService) ResetPassword(ctx context.Context, password string) error {
	username := s.SideChannel.GetString(ctx, KeyResetPasswordUsername)
	if username == "" {
		return ErrResetExpired
	}
	if err := validatePassword("password", password); err != nil {
		return err
	}

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		s.SideChannel.Remove(ctx, KeyResetPasswordUsername)
		return ErrResetExpired
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Passwords().SetPassword(ctx, user.ID, hash); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
		if err := tx.Sessions().DeleteUserSessions(ctx, user.ID, ""); err != nil {
			return fmt.Errorf("failed to delete sessions: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.SideChannel.Remove(ctx, KeyResetPasswordUsername)
	slogx.FromContext(ctx).Info("password reset", "user_id", user.ID)
	return nil
}

// BeginEmailChange emails a code to newEmail. The address is held in this
// browser's side-channel until the code is verified.
func (s *AccountService) BeginEmailChange(ctx context.Context, userID, sessionID, newEmail string) (string, error) {
	if err := s.Auth.RequireRecentVerification(ctx, sessionID, userID, PathProfile); err != nil {
		return "", err
	}

	newEmail = normalize(newEmail)
	if err := validateEmail(newEmail); err != nil {
		return "", err
	}
	if _, err := s.Store.Users().GetUserByEmail(ctx, newEmail); err == nil {
		return "", ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("failed to check email: %w", err)
	}

	p, err := s.Verifications.Prepare(ctx, PrepareInput{
		Type:       domain.VerificationChangeEmail,
		Target:     userID,
		RedirectTo: PathProfile,
	})
	if err != nil {
		return "", err
	}

	s.SideChannel.Put(ctx, KeyNewEmailAddress, newEmail)
	if err := send(ctx, s.Mailer, s.Metrics, changeEmailEmail(newEmail, p.Code, p.VerifyURL)); err != nil {
		return "", err
	}
	return p.RedirectTo, nil
}

// Profile collects the account overview for userID.
func (s *AccountService) Profile(ctx context.Context, userID string) (Profile, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Profile{}, ErrNotAuthenticated
	}
	if err != nil {
		return Profile{}, fmt.Errorf("failed to get user: %w", err)
	}

	roles, err := s.Store.Roles().ListUserRoles(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to list roles: %w", err)
	}

	_, err = s.Store.Passwords().GetPassword(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return Profile{}, fmt.Errorf("failed to get password: %w", err)
	}
	hasPassword := err == nil

	enabled, err := s.Auth.twoFactorEnabled(ctx, userID)
	if err != nil {
		return Profile{}, err
	}

	conns, err := s.Store.Connections().ListUserConnections(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("failed to list connections: %w", err)
	}

	p := Profile{
		User:             user,
		HasPassword:      hasPassword,
		TwoFactorEnabled: enabled,
		Roles:            roleNames(roles),
		Connections:      conns,
	}
	return p, nil
}
