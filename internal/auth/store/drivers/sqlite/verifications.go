package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/jmoiron/sqlx"
)

type verificationsRepo struct {
	q querier
}

type verificationRow struct {
	ID        string        `db:"id"`
	Type      string        `db:"type"`
	Target    string        `db:"target"`
	Secret    string        `db:"secret"`
	Algorithm string        `db:"algorithm"`
	Period    int           `db:"period"`
	Digits    int           `db:"digits"`
	CharSet   string        `db:"char_set"`
	ExpiresAt sql.NullInt64 `db:"expires_at"`
	CreatedAt int64         `db:"created_at"`
}

// unexpired is the single expiry predicate shared by every lookup.
const unexpired = `(expires_at IS NULL OR expires_at > ?)`

func (r *verificationsRepo) UpsertVerification(ctx context.Context, v domain.Verification) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	_, err := sqlx.NamedExecContext(ctx, r.q,
		`INSERT INTO verifications
		   (type, target, id, secret, algorithm, period, digits, char_set, expires_at, created_at)
		 VALUES
		   (:type, :target, :id, :secret, :algorithm, :period, :digits, :char_set, :expires_at, :created_at)
		 ON CONFLICT(type, target) DO UPDATE SET
		   id = excluded.id,
		   secret = excluded.secret,
		   algorithm = excluded.algorithm,
		   period = excluded.period,
		   digits = excluded.digits,
		   char_set = excluded.char_set,
		   expires_at = excluded.expires_at,
		   created_at = excluded.created_at`,
		verificationRow{
			ID:        v.ID,
			Type:      string(v.Type),
			Target:    v.Target,
			Secret:    v.Secret,
			Algorithm: v.Algorithm,
			Period:    v.Period,
			Digits:    v.Digits,
			CharSet:   v.CharSet,
			ExpiresAt: toNullMillis(v.ExpiresAt),
			CreatedAt: toMillis(v.CreatedAt),
		},
	)
	return mapConstraint(err)
}

func (r *verificationsRepo) GetVerification(
	ctx context.Context,
	t domain.VerificationType,
	target string,
) (domain.Verification, error) {
	var row verificationRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT id, type, target, secret, algorithm, period, digits, char_set, expires_at, created_at
		 FROM verifications WHERE type = ? AND target = ? AND `+unexpired,
		string(t), target, toMillis(time.Now()),
	)
	if err != nil {
		return domain.Verification{}, mapNotFound(err)
	}
	return mapVerification(row), nil
}

func (r *verificationsRepo) ConsumeVerification(
	ctx context.Context,
	t domain.VerificationType,
	target, id string,
) error {
	var consumed string
	err := sqlx.GetContext(ctx, r.q, &consumed,
		`DELETE FROM verifications
		 WHERE type = ? AND target = ? AND id = ? AND `+unexpired+`
		 RETURNING id`,
		string(t), target, id, toMillis(time.Now()),
	)
	if err != nil {
		return mapNotFound(err)
	}
	if consumed != id {
		return store.ErrNotFound
	}
	return nil
}

func (r *verificationsRepo) DeleteVerification(ctx context.Context, t domain.VerificationType, target string) error {
	_, err := r.q.ExecContext(ctx,
		`DELETE FROM verifications WHERE type = ? AND target = ?`, string(t), target)
	return err
}

func (r *verificationsRepo) DeleteExpiredVerifications(ctx context.Context) (int64, error) {
	return affected(r.q.ExecContext(ctx,
		`DELETE FROM verifications WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		toMillis(time.Now())))
}

func mapVerification(row verificationRow) domain.Verification {
	return domain.Verification{
		ID:        row.ID,
		Type:      domain.VerificationType(row.Type),
		Target:    row.Target,
		Secret:    row.Secret,
		Algorithm: row.Algorithm,
		Period:    row.Period,
		Digits:    row.Digits,
		CharSet:   row.CharSet,
		ExpiresAt: fromNullMillis(row.ExpiresAt),
		CreatedAt: fromMillis(row.CreatedAt),
	}
}
