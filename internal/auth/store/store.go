package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Drivers implement it and expose
// sub-repositories so that a Tx can hand out the same repos bound to the
// transaction, and nested transactions are impossible by construction.
type Store interface {
	Users() Users
	Passwords() Passwords
	Roles() Roles
	Sessions() Sessions
	Verifications() Verifications
	Connections() Connections
	SideChannel() SideChannel

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// GetUserByEmailOrUsername matches either column against value.
	GetUserByEmailOrUsername(ctx context.Context, value string) (domain.User, error)

	// CreateUser inserts a new user. Unique violations map to ErrAlreadyExists.
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateEmail changes the email and bumps updated_at.
	UpdateEmail(ctx context.Context, userID, email string) error

	// ListUsers returns every user, oldest first.
	ListUsers(ctx context.Context) ([]domain.User, error)

	// DeleteUser cascades to passwords, roles, sessions and connections.
	// Unknown ids return ErrNotFound.
	DeleteUser(ctx context.Context, userID string) error
}

type Passwords interface {
	// GetPassword returns ErrNotFound for users without a password.
	GetPassword(ctx context.Context, userID string) (domain.Password, error)

	// SetPassword inserts or overwrites the user's hash.
	SetPassword(ctx context.Context, userID, hash string) error
}

type Roles interface {
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)
	AssignRole(ctx context.Context, userID, roleID string) error
	ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error)

	UserHasRole(ctx context.Context, userID, roleName string) (bool, error)

	// UserHasPermission reports whether any of the user's roles grants
	// p.Action on p.Entity at one of p.Accesses().
	UserHasPermission(ctx context.Context, userID string, p domain.Permission) (bool, error)
}

type Sessions interface {
	CreateSession(ctx context.Context, s domain.Session) error

	// GetValidSession returns ErrNotFound for absent and expired sessions alike.
	GetValidSession(ctx context.Context, id string) (domain.Session, error)

	// MarkSessionVerified records a successful second-factor check.
	MarkSessionVerified(ctx context.Context, id string, at time.Time) error

	// DeleteSession is idempotent.
	DeleteSession(ctx context.Context, id string) error

	// DeleteUserSessions removes every session of userID except exceptID
	// (which may be empty).
	DeleteUserSessions(ctx context.Context, userID, exceptID string) error

	DeleteExpiredSessions(ctx context.Context) (int64, error)
}

type Verifications interface {
	// UpsertVerification replaces any challenge for the same (type, target).
	UpsertVerification(ctx context.Context, v domain.Verification) error

	// GetVerification returns the unexpired challenge or ErrNotFound.
	GetVerification(ctx context.Context, t domain.VerificationType, target string) (domain.Verification, error)

	// ConsumeVerification deletes the challenge only if it is still the
	// version id and unexpired. Exactly one concurrent caller succeeds; the
	// rest get ErrNotFound.
	ConsumeVerification(ctx context.Context, t domain.VerificationType, target, id string) error

	// DeleteVerification is idempotent.
	DeleteVerification(ctx context.Context, t domain.VerificationType, target string) error

	DeleteExpiredVerifications(ctx context.Context) (int64, error)
}

type Connections interface {
	// CreateConnection maps a duplicate (provider, provider id) to ErrAlreadyExists.
	CreateConnection(ctx context.Context, c domain.Connection) error
	GetConnectionByProviderID(ctx context.Context, providerName, providerID string) (domain.Connection, error)
	GetConnection(ctx context.Context, id string) (domain.Connection, error)
	ListUserConnections(ctx context.Context, userID string) ([]domain.Connection, error)
	CountUserConnections(ctx context.Context, userID string) (int, error)
	DeleteConnection(ctx context.Context, id string) error
}

// SideChannel persists the short-lived verification side-channel records
// behind SideChannelAdapter.
type SideChannel interface {
	FindSideChannel(ctx context.Context, token string) (data []byte, found bool, err error)
	SaveSideChannel(ctx context.Context, token string, data []byte, expiry time.Time) error
	DeleteSideChannel(ctx context.Context, token string) error
	DeleteExpiredSideChannel(ctx context.Context) (int64, error)
}
