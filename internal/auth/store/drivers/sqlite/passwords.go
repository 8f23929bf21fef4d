package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

type passwordsRepo struct {
	q querier
}

type passwordRow struct {
	UserID    string `db:"user_id"`
	Hash      string `db:"hash"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r *passwordsRepo) GetPassword(ctx context.Context, userID string) (domain.Password, error) {
	var row passwordRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT user_id, hash, updated_at FROM passwords WHERE user_id = ?`, userID)
	if err != nil {
		return domain.Password{}, mapNotFound(err)
	}
	return domain.Password{
		UserID:    row.UserID,
		Hash:      row.Hash,
		UpdatedAt: fromMillis(row.UpdatedAt),
	}, nil
}

func (r *passwordsRepo) SetPassword(ctx context.Context, userID, hash string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO passwords (user_id, hash, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET hash = excluded.hash, updated_at = excluded.updated_at`,
		userID, hash, toMillis(time.Now()),
	)
	return err
}
