package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
	"github.com/aussiebroadwan/notesauth/pkg/totpx"
)

const (
	DefaultIssuer       = "Epic Notes"
	enrolmentExpiration = 10 * time.Minute
)

// TwoFactorService manages authenticator-app enrolment.
type TwoFactorService struct {
	Store store.Store
	Auth  *AuthService

	// Issuer labels the account in authenticator apps.
	Issuer string
	Now    func() time.Time
}

// Enrolment is a pending authenticator setup.
type Enrolment struct {
	// KeyURI is the otpauth:// URI rendered as a QR code.
	KeyURI string
	// RedirectTo is the verify page that confirms the first code.
	RedirectTo string
}

func (s *TwoFactorService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Status reports whether userID has two-factor enabled.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (bool, error) {
	return s.Auth.twoFactorEnabled(ctx, userID)
}

// Enroll starts a new enrolment with authenticator-app defaults. A previous
// unconfirmed enrolment is replaced.
func (s *TwoFactorService) Enroll(ctx context.Context, userID string) (Enrolment, error) {
	enabled, err := s.Status(ctx, userID)
	if err != nil {
		return Enrolment{}, err
	}
	if enabled {
		return Enrolment{}, ErrTwoFactorEnabled
	}

	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return Enrolment{}, ErrNotAuthenticated
	}
	if err != nil {
		return Enrolment{}, fmt.Errorf("failed to get user: %w", err)
	}

	now := s.now()
	code, err := totpx.Generate(totpx.WithTime(now))
	if err != nil {
		return Enrolment{}, fmt.Errorf("failed to generate secret: %w", err)
	}

	issuer := s.Issuer
	if issuer == "" {
		issuer = DefaultIssuer
	}
	keyURI, err := totpx.KeyURI(issuer, user.Email, code.Params)
	if err != nil {
		return Enrolment{}, fmt.Errorf("failed to build key uri: %w", err)
	}

	expiresAt := now.Add(enrolmentExpiration)
	if err := storeVerification(ctx, s.Store, domain.VerificationTwoFactorSetup, userID, code.Params, &expiresAt, now); err != nil {
		return Enrolment{}, err
	}

	return Enrolment{
		KeyURI:     keyURI,
		RedirectTo: VerifyURL("", domain.VerificationTwoFactorSetup, userID, "", PathTwoFactor),
	}, nil
}

// Disable removes the permanent verifier. The session must have passed the
// second factor recently.
func (s *TwoFactorService) Disable(ctx context.Context, userID, sessionID string) error {
	if err := s.Auth.RequireRecentVerification(ctx, sessionID, userID, PathTwoFactor); err != nil {
		return err
	}

	enabled, err := s.Status(ctx, userID)
	if err != nil {
		return err
	}
	if !enabled {
		return ErrTwoFactorNotEnabled
	}

	if err := s.Store.Verifications().DeleteVerification(ctx, domain.VerificationTwoFactor, userID); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}
	slogx.FromContext(ctx).Info("two-factor disabled", "user_id", userID)
	return nil
}
