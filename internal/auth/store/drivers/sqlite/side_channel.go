package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/store"
	"github.com/jmoiron/sqlx"
)

type sideChannelRepo struct {
	q querier
}

func (r *sideChannelRepo) FindSideChannel(ctx context.Context, token string) ([]byte, bool, error) {
	var data []byte
	err := sqlx.GetContext(ctx, r.q, &data,
		`SELECT data FROM side_channel WHERE token = ? AND expiry > ?`,
		token, toMillis(time.Now()),
	)
	if errors.Is(mapNotFound(err), store.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *sideChannelRepo) SaveSideChannel(ctx context.Context, token string, data []byte, expiry time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO side_channel (token, data, expiry) VALUES (?, ?, ?)
		 ON CONFLICT(token) DO UPDATE SET data = excluded.data, expiry = excluded.expiry`,
		token, data, toMillis(expiry),
	)
	return err
}

func (r *sideChannelRepo) DeleteSideChannel(ctx context.Context, token string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM side_channel WHERE token = ?`, token)
	return err
}

func (r *sideChannelRepo) DeleteExpiredSideChannel(ctx context.Context) (int64, error) {
	return affected(r.q.ExecContext(ctx,
		`DELETE FROM side_channel WHERE expiry <= ?`, toMillis(time.Now())))
}
