package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/metrics"
	"github.com/aussiebroadwan/notesauth/internal/auth/provider"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/aussiebroadwan/notesauth/pkg/cryptox"
	"github.com/aussiebroadwan/notesauth/pkg/idx"
	"github.com/aussiebroadwan/notesauth/pkg/slogx"
)

// CallbackResult names the branch an OAuth callback took.
type CallbackResult string

const (
	ResultAuthFailed           CallbackResult = "auth_failed"
	ResultAlreadyConnectedSelf CallbackResult = "already_connected_self"
	ResultAlreadyConnected     CallbackResult = "already_connected_other"
	ResultLoggedIn             CallbackResult = "logged_in"
	ResultConnected            CallbackResult = "connected"
	ResultOnboarding           CallbackResult = "onboarding"
)

// ConnectionService links provider identities to local users.
type ConnectionService struct {
	Store       store.Store
	Auth        *AuthService
	Providers   *provider.Registry
	SideChannel SideChannel
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

type CallbackInput struct {
	Provider string
	Code     string
	State    string
	// UserID is the signed-in caller, empty when anonymous.
	UserID string
}

type CallbackOutcome struct {
	Result     CallbackResult
	Message    string
	RedirectTo string
	// Session is the two-factor gate result when the callback signed the
	// caller in.
	Session *SessionOutcome
}

// ConnectionView is a connection as listed on the profile page.
type ConnectionView struct {
	domain.Connection
	Label string
	// Deletable is false when removing the connection would leave the user
	// without any way to sign in.
	Deletable bool
}

func (s *ConnectionService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Begin stores a fresh state token in the side-channel and returns the
// provider's authorization URL.
func (s *ConnectionService) Begin(ctx context.Context, providerName, redirectTo string) (string, error) {
	p, err := s.Providers.Get(providerName)
	if err != nil {
		return "", err
	}

	state, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	s.SideChannel.Put(ctx, KeyOAuthState, state)
	if redirectTo = SafeRedirect(redirectTo, ""); redirectTo != "" {
		s.SideChannel.Put(ctx, KeyOAuthRedirectTo, redirectTo)
	} else {
		s.SideChannel.Remove(ctx, KeyOAuthRedirectTo)
	}
	return p.AuthCodeURL(state), nil
}

// HandleCallback resolves a provider callback to one of the CallbackResult
// branches. Provider failures never surface as errors; only persistence
// failures do.
func (s *ConnectionService) HandleCallback(ctx context.Context, in CallbackInput) (CallbackOutcome, error) {
	p, err := s.Providers.Get(in.Provider)
	if err != nil {
		return CallbackOutcome{}, err
	}

	out, err := s.handleCallback(ctx, p, in)
	if err != nil {
		s.Metrics.OAuthCallback(p.Name(), metrics.OutcomeError)
		return CallbackOutcome{}, err
	}
	s.Metrics.OAuthCallback(p.Name(), string(out.Result))
	return out, nil
}

func (s *ConnectionService) handleCallback(ctx context.Context, p provider.Provider, in CallbackInput) (CallbackOutcome, error) {
	l := slogx.FromContext(ctx).With("provider", p.Name())
	label := p.Label()

	state := s.SideChannel.PopString(ctx, KeyOAuthState)
	redirectTo := s.SideChannel.PopString(ctx, KeyOAuthRedirectTo)

	if state == "" || !cryptox.EqualTokens(state, in.State) {
		l.Warn("oauth state mismatch")
		return authFailed(label), nil
	}

	profile, err := p.Exchange(ctx, in.Code)
	if err != nil {
		l.Error("oauth exchange failed", "error", err)
		return authFailed(label), nil
	}
	if profile.ID == "" || profile.Email == "" {
		l.Error("oauth profile is incomplete", "provider_id", profile.ID)
		return authFailed(label), nil
	}

	conn, err := s.Store.Connections().GetConnectionByProviderID(ctx, p.Name(), profile.ID)
	found := err == nil
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return CallbackOutcome{}, fmt.Errorf("failed to get connection: %w", err)
	}

	switch {
	case found && in.UserID != "":
		if conn.UserID == in.UserID {
			return CallbackOutcome{
				Result:     ResultAlreadyConnectedSelf,
				Message:    fmt.Sprintf("Your %q %s account is already connected.", profile.Username, label),
				RedirectTo: PathConnections,
			}, nil
		}
		return alreadyConnectedOther(profile, label), nil

	case in.UserID != "":
		err := s.connect(ctx, p.Name(), profile.ID, in.UserID)
		if errors.Is(err, ErrConnectionTaken) {
			return alreadyConnectedOther(profile, label), nil
		}
		if err != nil {
			return CallbackOutcome{}, err
		}
		l.Info("provider connected", "user_id", in.UserID)
		return CallbackOutcome{
			Result:     ResultConnected,
			Message:    connectedMessage(profile, label),
			RedirectTo: PathConnections,
		}, nil

	case found:
		sess, err := s.signIn(ctx, conn.UserID, redirectTo)
		if err != nil {
			return CallbackOutcome{}, err
		}
		return CallbackOutcome{
			Result:     ResultLoggedIn,
			RedirectTo: sess.RedirectTo,
			Session:    &sess,
		}, nil
	}

	user, err := s.Store.Users().GetUserByEmail(ctx, profile.Email)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return CallbackOutcome{}, fmt.Errorf("failed to get user: %w", err)
	}
	if err == nil {
		if err := s.connect(ctx, p.Name(), profile.ID, user.ID); err != nil {
			return CallbackOutcome{}, err
		}
		sess, err := s.signIn(ctx, user.ID, SafeRedirect(redirectTo, PathConnections))
		if err != nil {
			return CallbackOutcome{}, err
		}
		l.Info("provider connected by email", "user_id", user.ID)
		return CallbackOutcome{
			Result:     ResultConnected,
			Message:    connectedMessage(profile, label),
			RedirectTo: sess.RedirectTo,
			Session:    &sess,
		}, nil
	}

	prefill := profile
	prefill.Username = provider.SanitizeUsername(profile.Username)
	raw, err := json.Marshal(prefill)
	if err != nil {
		return CallbackOutcome{}, fmt.Errorf("failed to encode prefill: %w", err)
	}

	s.SideChannel.Put(ctx, KeyOnboardingEmail, profile.Email)
	s.SideChannel.Put(ctx, KeyPrefilledProfile, string(raw))
	s.SideChannel.Put(ctx, KeyProviderID, profile.ID)
	s.SideChannel.Put(ctx, KeyProviderName, p.Name())

	return CallbackOutcome{
		Result:     ResultOnboarding,
		RedirectTo: withRedirect(PathOnboarding+"/"+p.Name(), redirectTo),
	}, nil
}

func authFailed(label string) CallbackOutcome {
	return CallbackOutcome{
		Result:     ResultAuthFailed,
		Message:    fmt.Sprintf("There was an error authenticating with %s.", label),
		RedirectTo: PathLogin,
	}
}

func alreadyConnectedOther(profile domain.ProviderProfile, label string) CallbackOutcome {
	return CallbackOutcome{
		Result:     ResultAlreadyConnected,
		Message:    fmt.Sprintf("The %q %s account is already connected to another account.", profile.Username, label),
		RedirectTo: PathConnections,
	}
}

func connectedMessage(profile domain.ProviderProfile, label string) string {
	return fmt.Sprintf("Your %q %s account has been connected.", profile.Username, label)
}

func (s *ConnectionService) connect(ctx context.Context, providerName, providerID, userID string) error {
	err := s.Store.Connections().CreateConnection(ctx, domain.Connection{
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
}

// signIn mints a remembered session and runs it through the two-factor gate.
func (s *ConnectionService) signIn(ctx context.Context, userID, redirectTo string) (SessionOutcome, error) {
	sess, err := s.Auth.CreateSession(ctx, userID)
	if err != nil {
		return SessionOutcome{}, err
	}
	return s.Auth.StartSession(ctx, sess, true, redirectTo)
}

// Disconnect deletes the caller's connection unless it is their last way to
// sign in.
func (s *ConnectionService) Disconnect(ctx context.Context, userID, connectionID string) error {
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		conn, err := tx.Connections().GetConnection(ctx, connectionID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && conn.UserID != userID) {
			return ErrConnectionNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get connection: %w", err)
		}

		deletable, err := canDisconnect(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !deletable {
			return ErrLastAuthMethod
		}

		if err := tx.Connections().DeleteConnection(ctx, connectionID); err != nil {
			return fmt.Errorf("failed to delete connection: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("provider disconnected", "user_id", userID)
	return nil
}

// List returns the user's connections with their provider labels.
func (s *ConnectionService) List(ctx context.Context, userID string) ([]ConnectionView, error) {
	conns, err := s.Store.Connections().ListUserConnections(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}

	deletable, err := canDisconnect(ctx, s.Store, userID)
	if err != nil {
		return nil, err
	}

	views := make([]ConnectionView, 0, len(conns))
	for _, c := range conns {
		label := c.ProviderName
		if p, err := s.Providers.Get(c.ProviderName); err == nil {
			label = p.Label()
		}
		views = append(views, ConnectionView{Connection: c, Label: label, Deletable: deletable})
	}
	return views, nil
}

// canDisconnect reports whether the user keeps a sign-in method after
// losing one connection: a password or another connection.
func canDisconnect(ctx context.Context, st store.Store, userID string) (bool, error) {
	_, err := st.Passwords().GetPassword(ctx, userID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("failed to get password: %w", err)
	}

	n, err := st.Connections().CountUserConnections(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to count connections: %w", err)
	}
	return n > 1, nil
}
