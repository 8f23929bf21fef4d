package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

type usersRepo struct {
	q querier
}

type userRow struct {
	ID        string         `db:"id"`
	Email     string         `db:"email"`
	Username  string         `db:"username"`
	Name      sql.NullString `db:"name"`
	CreatedAt int64          `db:"created_at"`
	UpdatedAt int64          `db:"updated_at"`
}

const selectUser = `SELECT id, email, username, name, created_at, updated_at FROM users`

func (r *usersRepo) get(ctx context.Context, query string, args ...any) (domain.User, error) {
	var row userRow
	if err := sqlx.GetContext(ctx, r.q, &row, query, args...); err != nil {
		return domain.User{}, mapNotFound(err)
	}
	return mapUser(row), nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.get(ctx, selectUser+` WHERE id = ?`, id)
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.get(ctx, selectUser+` WHERE username = ?`, username)
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return r.get(ctx, selectUser+` WHERE email = ?`, email)
}

func (r *usersRepo) GetUserByEmailOrUsername(ctx context.Context, value string) (domain.User, error) {
	return r.get(ctx,
		selectUser+` WHERE email = ? OR username = ? ORDER BY (email = ?) DESC LIMIT 1`,
		value, value, value,
	)
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	_, err := sqlx.NamedExecContext(ctx, r.q,
		`INSERT INTO users (id, email, username, name, created_at, updated_at)
		 VALUES (:id, :email, :username, :name, :created_at, :updated_at)`,
		userRow{
			ID:        u.ID,
			Email:     u.Email,
			Username:  u.Username,
			Name:      mapStringNull(u.Name),
			CreatedAt: toMillis(u.CreatedAt),
			UpdatedAt: toMillis(now),
		},
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdateEmail(ctx context.Context, userID, email string) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE users SET email = ?, updated_at = ? WHERE id = ?`,
		email, toMillis(time.Now()), userID,
	)
	return requireAffected(res, mapConstraint(err))
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := sqlx.SelectContext(ctx, r.q, &rows, selectUser+` ORDER BY created_at, id`); err != nil {
		return nil, err
	}

	users := make([]domain.User, len(rows))
	for i, row := range rows {
		users[i] = mapUser(row)
	}
	return users, nil
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, userID)
	return requireAffected(res, err)
}

func mapUser(row userRow) domain.User {
	return domain.User{
		ID:        row.ID,
		Email:     row.Email,
		Username:  row.Username,
		Name:      row.Name.String,
		CreatedAt: fromMillis(row.CreatedAt),
		UpdatedAt: fromMillis(row.UpdatedAt),
	}
}
