package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/metrics"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/aussiebroadwan/notesauth/pkg/cryptox"
	"github.com/aussiebroadwan/notesauth/pkg/idx"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

const (
	DefaultSessionTTL    = 30 * 24 * time.Hour
	DefaultReverifyAfter = 2 * time.Hour
)

// AuthService owns the session lifecycle: credential checks, account
// creation, the two-factor gate and self-healing lookups.
type AuthService struct {
	Store       store.Store
	SideChannel SideChannel
	Metrics     *metrics.Metrics

	SessionTTL    time.Duration
	ReverifyAfter time.Duration
	Now           func() time.Time
}

// SignupInput is the profile of a new account. Password is empty for
// accounts created through a provider.
type SignupInput struct {
	Email    string
	Username string
	Password string
	Name     string
}

// SessionOutcome is the result of the two-factor gate.
type SessionOutcome struct {
	// Session is set when the session can be written to the client now.
	Session *domain.Session
	// Remember asks for a persistent cookie instead of a browser-session one.
	Remember bool
	// TwoFactorRequired means the session waits in the side-channel until
	// the second factor is verified at RedirectTo.
	TwoFactorRequired bool
	RedirectTo        string
}

// CookieExpiry is the cookie expiry to use for Session, zero for a
// browser-session cookie.
func (o SessionOutcome) CookieExpiry() time.Time {
	if o.Session == nil || !o.Remember {
		return time.Time{}
	}
	return o.Session.ExpiresAt
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) sessionTTL() time.Duration {
	if s.SessionTTL > 0 {
		return s.SessionTTL
	}
	return DefaultSessionTTL
}

func (s *AuthService) reverifyAfter() time.Duration {
	if s.ReverifyAfter > 0 {
		return s.ReverifyAfter
	}
	return DefaultReverifyAfter
}

func (s *AuthService) newSession(userID string) (domain.Session, error) {
	id, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to generate session id: %w", err)
	}
	now := s.now()
	return domain.Session{
		ID:        id,
		UserID:    userID,
		ExpiresAt: now.Add(s.sessionTTL()),
		CreatedAt: now,
	}, nil
}

// CreateSession persists a new session for userID.
func (s *AuthService) CreateSession(ctx context.Context, userID string) (domain.Session, error) {
	sess, err := s.newSession(userID)
	if err != nil {
		return domain.Session{}, err
	}
	if err := s.Store.Sessions().CreateSession(ctx, sess); err != nil {
		return domain.Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	s.Metrics.SessionCreated()
	return sess, nil
}

// Login checks a username and password. Every failure is
// ErrInvalidCredentials and costs one password hash, whether or not the
// user exists.
func (s *AuthService) Login(ctx context.Context, username, password string) (domain.Session, error) {
	l := slogx.FromContext(ctx)
	username = normalize(username)

	user, err := s.Store.Users().GetUserByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		cryptox.EqualizeTiming(password)
		s.Metrics.Login(metrics.OutcomeInvalid)
		return domain.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to get user: %w", err)
	}

	pw, err := s.Store.Passwords().GetPassword(ctx, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		cryptox.EqualizeTiming(password)
		s.Metrics.Login(metrics.OutcomeInvalid)
		return domain.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to get password: %w", err)
	}

	if err := cryptox.VerifyPassword(password, pw.Hash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			l.Error("stored password hash is unusable", "user_id", user.ID, "error", err)
		}
		s.Metrics.Login(metrics.OutcomeInvalid)
		return domain.Session{}, ErrInvalidCredentials
	}

	sess, err := s.CreateSession(ctx, user.ID)
	if err != nil {
		return domain.Session{}, err
	}
	s.Metrics.Login(metrics.OutcomeSuccess)
	l.Info("user logged in", "user_id", user.ID)
	return sess, nil
}

func (in *SignupInput) normalize() error {
	in.Email = normalize(in.Email)
	in.Username = normalize(in.Username)
	in.Name = strings.TrimSpace(in.Name)

	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validateUsername(in.Username); err != nil {
		return err
	}
	return validateName(in.Name)
}

// Signup creates the user, password, default role and first session in one
// transaction.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (domain.Session, error) {
	if err := in.normalize(); err != nil {
		return domain.Session{}, err
	}
	if err := validatePassword("password", in.Password); err != nil {
		return domain.Session{}, err
	}

	hash, err := cryptox.HashPassword(in.Password)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to hash password: %w", err)
	}

	return s.createAccount(ctx, in, func(tx store.Tx, userID string) error {
		if err := tx.Passwords().SetPassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
		return nil
	})
}

// SignupWithConnection creates a password-less user linked to a provider
// account, together with its first session.
func (s *AuthService) SignupWithConnection(
	ctx context.Context,
	in SignupInput,
	providerName, providerID string,
) (domain.Session, error) {
	if err := in.normalize(); err != nil {
		return domain.Session{}, err
	}

	return s.createAccount(ctx, in, func(tx store.Tx, userID string) error {
		err := tx.Connections().CreateConnection(ctx, domain.Connection{
			ID:           idx.New().String(),
			ProviderName: providerName,
			ProviderID:   providerID,
			UserID:       userID,
			CreatedAt:    s.now(),
		})
		if errors.Is(err, store.ErrAlreadyExists) {
			return ErrConnectionTaken
		}
		if err != nil {
			return fmt.Errorf("failed to create connection: %w", err)
		}
		return nil
	})
}

func (s *AuthService) createAccount(
	ctx context.Context,
	in SignupInput,
	credential func(tx store.Tx, userID string) error,
) (domain.Session, error) {
	user := domain.User{
		ID:        idx.New().String(),
		Email:     in.Email,
		Username:  in.Username,
		Name:      in.Name,
		CreatedAt: s.now(),
	}
	sess, err := s.newSession(user.ID)
	if err != nil {
		return domain.Session{}, err
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().GetUserByEmail(ctx, user.Email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check email: %w", err)
		}
		if _, err := tx.Users().GetUserByUsername(ctx, user.Username); err == nil {
			return ErrUsernameTaken
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to check username: %w", err)
		}

		if err := tx.Users().CreateUser(ctx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if err := credential(tx, user.ID); err != nil {
			return err
		}

		role, err := tx.Roles().GetRoleByName(ctx, domain.RoleUser)
		if err != nil {
			return fmt.Errorf("failed to get default role: %w", err)
		}
		if err := tx.Roles().AssignRole(ctx, user.ID, role.ID); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}

		if err := tx.Sessions().CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}

	s.Metrics.SessionCreated()
	slogx.FromContext(ctx).Info("user signed up", "user_id", user.ID)
	return sess, nil
}

// StartSession applies the two-factor gate to a freshly created session.
// Users with two-factor enabled get their session parked in the
// side-channel and a verification redirect; everyone else gets the session
// back to commit.
func (s *AuthService) StartSession(
	ctx context.Context,
	sess domain.Session,
	remember bool,
	redirectTo string,
) (SessionOutcome, error) {
	enabled, err := s.twoFactorEnabled(ctx, sess.UserID)
	if err != nil {
		return SessionOutcome{}, err
	}

	if enabled {
		s.SideChannel.Put(ctx, KeyUnverifiedSessionID, sess.ID)
		s.SideChannel.Put(ctx, KeyRememberMe, remember)
		s.Metrics.Login(metrics.OutcomeTwoFactor)
		return SessionOutcome{
			TwoFactorRequired: true,
			RedirectTo: VerifyURL("", domain.VerificationTwoFactor, sess.UserID, "",
				SafeRedirect(redirectTo, "")),
		}, nil
	}

	return SessionOutcome{
		Session:    &sess,
		Remember:   remember,
		RedirectTo: SafeRedirect(redirectTo, PathHome),
	}, nil
}

func (s *AuthService) twoFactorEnabled(ctx context.Context, userID string) (bool, error) {
	_, err := s.Store.Verifications().GetVerification(ctx, domain.VerificationTwoFactor, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check two-factor status: %w", err)
	}
	return true, nil
}

// RequireRecentVerification returns *ReverificationRequiredError when a
// two-factor user's session has not passed the second factor within
// ReverifyAfter. Users without two-factor always pass.
func (s *AuthService) RequireRecentVerification(ctx context.Context, sessionID, userID, redirectTo string) error {
	enabled, err := s.twoFactorEnabled(ctx, userID)
	if err != nil || !enabled {
		return err
	}

	sess, err := s.Store.Sessions().GetValidSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) || (err == nil && sess.UserID != userID) {
		return ErrNotAuthenticated
	}
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	if sess.VerifiedWithin(s.reverifyAfter(), s.now()) {
		return nil
	}
	return &ReverificationRequiredError{
		RedirectTo: VerifyURL("", domain.VerificationTwoFactor, userID, "", SafeRedirect(redirectTo, "")),
	}
}

// Authenticate resolves a session id to its live session and user. A
// session whose user no longer exists is deleted; both cases are
// ErrNotAuthenticated.
func (s *AuthService) Authenticate(ctx context.Context, sessionID string) (domain.User, domain.Session, error) {
	sess, err := s.Store.Sessions().GetValidSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, domain.Session{}, ErrNotAuthenticated
	}
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("failed to get session: %w", err)
	}

	user, err := s.Store.Users().GetUserByID(ctx, sess.UserID)
	if errors.Is(err, store.ErrNotFound) {
		slogx.FromContext(ctx).Warn("session references missing user", "user_id", sess.UserID)
		if err := s.Store.Sessions().DeleteSession(ctx, sess.ID); err != nil {
			return domain.User{}, domain.Session{}, fmt.Errorf("failed to delete orphaned session: %w", err)
		}
		return domain.User{}, domain.Session{}, ErrNotAuthenticated
	}
	if err != nil {
		return domain.User{}, domain.Session{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, sess, nil
}

// AuthenticateSession implements httpx.SessionAuthenticator.
func (s *AuthService) AuthenticateSession(ctx context.Context, sessionID string) (string, bool, error) {
	user, _, err := s.Authenticate(ctx, sessionID)
	if errors.Is(err, ErrNotAuthenticated) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return user.ID, true, nil
}

// Logout deletes the session; deleting a missing session is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	if err := s.Store.Sessions().DeleteSession(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ChangePassword replaces the user's password and signs out every other
// session. Users created through a provider have no password yet and may
// set one without current.
func (s *AuthService) ChangePassword(ctx context.Context, userID, sessionID, current, next string) error {
	if err := validatePassword("new_password", next); err != nil {
		return err
	}

	pw, err := s.Store.Passwords().GetPassword(ctx, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return fmt.Errorf("failed to get password: %w", err)
	default:
		if err := cryptox.VerifyPassword(current, pw.Hash); err != nil {
			return ErrIncorrectPassword
		}
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Passwords().SetPassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("failed to store password: %w", err)
		}
		if err := tx.Sessions().DeleteUserSessions(ctx, userID, sessionID); err != nil {
			return fmt.Errorf("failed to delete other sessions: %w", err)
		}
		return nil
	})
}
