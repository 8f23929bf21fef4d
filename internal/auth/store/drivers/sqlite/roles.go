package sqlite

import (
	"context"

	"github.com/aussiebroadwan/notesauth/internal/auth/domain"
	"github.com/jmoiron/sqlx"
)

type rolesRepo struct {
	q querier
}

type roleRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	CreatedAt   int64  `db:"created_at"`
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var row roleRow
	err := sqlx.GetContext(ctx, r.q, &row,
		`SELECT id, name, description, created_at FROM roles WHERE name = ?`, name)
	if err != nil {
		return domain.Role{}, mapNotFound(err)
	}
	return mapRole(row), nil
}

func (r *rolesRepo) AssignRole(ctx context.Context, userID, roleID string) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		userID, roleID,
	)
	return err
}

func (r *rolesRepo) ListUserRoles(ctx context.Context, userID string) ([]domain.Role, error) {
	var rows []roleRow
	err := sqlx.SelectContext(ctx, r.q, &rows,
		`SELECT r.id, r.name, r.description, r.created_at
		 FROM roles r JOIN user_roles ur ON ur.role_id = r.id
		 WHERE ur.user_id = ? ORDER BY r.name`, userID)
	if err != nil {
		return nil, err
	}

	roles := make([]domain.Role, len(rows))
	for i, row := range rows {
		roles[i] = mapRole(row)
	}
	return roles, nil
}

func (r *rolesRepo) UserHasRole(ctx context.Context, userID, roleName string) (bool, error) {
	var found bool
	err := sqlx.GetContext(ctx, r.q, &found,
		`SELECT EXISTS (
			SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = ? AND r.name = ?
		)`, userID, roleName)
	return found, err
}

func (r *rolesRepo) UserHasPermission(ctx context.Context, userID string, p domain.Permission) (bool, error) {
	query, args, err := sqlx.In(
		`SELECT EXISTS (
			SELECT 1 FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ur.user_id = ? AND p.action = ? AND p.entity = ? AND p.access IN (?)
		)`, userID, p.Action, p.Entity, p.Accesses())
	if err != nil {
		return false, err
	}

	var found bool
	err = sqlx.GetContext(ctx, r.q, &found, query, args...)
	return found, err
}

func mapRole(row roleRow) domain.Role {
	return domain.Role{
		ID:          row.ID,
		Name:        row.Name,
		Description: row.Description,
		CreatedAt:   fromMillis(row.CreatedAt),
	}
}
