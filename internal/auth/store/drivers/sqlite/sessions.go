package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

type sessionsRepo struct {
	q querier
}

type sessionRow struct {
	ID         string        `db:"id"`
	UserID     string        `db:"user_id"`
	ExpiresAt  int64         `db:"expires_at"`
	VerifiedAt sql.NullInt64 `db:"verified_at"`
	CreatedAt  int64         `db:"created_at"`
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	_, err := sqlx.NamedExecContext(ctx, r.q,
		`INSERT INTO sessions (id, user_id, expires_at, verified_at, created_at)
		 VALUES (:id, :user_id, :expires_at, :verified_at, :created_at)`,
		sessionRow{
			ID:         s.ID,
			UserID:     s.UserID,
			ExpiresAt:  toMillis(s.ExpiresAt),
			VerifiedAt: toNullMillis(s.VerifiedAt),
			CreatedAt:  toMillis(s.CreatedAt),
		},
	)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetValidSession(ctx context.Context, id string) (domain.Session, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT id, user_id, expires_at, verified_at, created_at
		 FROM sessions WHERE id = ? AND expires_at > ?`,
		id, toMillis(time.Now()),
	)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	return domain.Session{
		ID:         row.ID,
		UserID:     row.UserID,
		ExpiresAt:  fromMillis(row.ExpiresAt),
		VerifiedAt: fromNullMillis(row.VerifiedAt),
		CreatedAt:  fromMillis(row.CreatedAt),
	}, nil
}

func (r *sessionsRepo) MarkSessionVerified(ctx context.Context, id string, at time.Time) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET verified_at = ? WHERE id = ? AND expires_at > ?`,
		toMillis(at), id, toMillis(time.Now()),
	)
	return requireAffected(res, err)
}

func (r *sessionsRepo) DeleteSession(ctx context.Context, id string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	return err
}

func (r *sessionsRepo) DeleteUserSessions(ctx context.Context, userID, exceptID string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND id != ?`, userID, exceptID)
	return err
}

func (r *sessionsRepo) DeleteExpiredSessions(ctx context.Context) (int64, error) {
	return affected(r.q.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires_at <= ?`, toMillis(time.Now())))
}
