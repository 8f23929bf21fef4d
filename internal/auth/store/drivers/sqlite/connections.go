package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

type connectionsRepo struct {
	q querier
}

type connectionRow struct {
	ID           string `db:"id"`
	ProviderName string `db:"provider_name"`
	ProviderID   string `db:"provider_id"`
	UserID       string `db:"user_id"`
	CreatedAt    int64  `db:"created_at"`
}

const selectConnection = `SELECT id, provider_name, provider_id, user_id, created_at FROM connections`

func (r *connectionsRepo) CreateConnection(ctx context.Context, c domain.Connection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := sqlx.NamedExecContext(ctx, r.q,
		`INSERT INTO connections (id, provider_name, provider_id, user_id, created_at)
		 VALUES (:id, :provider_name, :provider_id, :user_id, :created_at)`,
		connectionRow{
			ID:           c.ID,
			ProviderName: c.ProviderName,
			ProviderID:   c.ProviderID,
			UserID:       c.UserID,
			CreatedAt:    toMillis(c.CreatedAt),
		},
	)
	return mapConstraint(err)
}

func (r *connectionsRepo) get(ctx context.Context, query string, args ...any) (domain.Connection, error) {
	var row connectionRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		return domain.Connection{}, mapNotFound(err)
	}
	return mapConnection(row), nil
}

func (r *connectionsRepo) GetConnectionByProviderID(
	ctx context.Context,
	providerName, providerID string,
) (domain.Connection, error) {
	return r.get(ctx, selectConnection+` WHERE provider_name = ? AND provider_id = ?`, providerName, providerID)
}

func (r *connectionsRepo) GetConnection(ctx context.Context, id string) (domain.Connection, error) {
	return r.get(ctx, selectConnection+` WHERE id = ?`, id)
}

func (r *connectionsRepo) ListUserConnections(ctx context.Context, userID string) ([]domain.Connection, error) {
	var rows []connectionRow
	if err := sqlx.SelectContext(ctx, r.q, &rows,
		selectConnection+` WHERE user_id = ? ORDER BY created_at, id`, userID); err != nil {
		return nil, err
	}

	conns := make([]domain.Connection, len(rows))
	for i, row := range rows {
		conns[i] = mapConnection(row)
	}
	return conns, nil
}

func (r *connectionsRepo) CountUserConnections(ctx context.Context, userID string) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.q, &n, `SELECT COUNT(*) FROM connections WHERE user_id = ?`, userID)
	return n, err
}

func (r *connectionsRepo) DeleteConnection(ctx context.Context, id string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM connections WHERE id = ?`, id)
	return requireAffected(res, err)
}

func mapConnection(row connectionRow) domain.Connection {
	return domain.Connection{
		ID:           row.ID,
		ProviderName: row.ProviderName,
		ProviderID:   row.ProviderID,
		UserID:       row.UserID,
		CreatedAt:    fromMillis(row.CreatedAt),
	}
}
