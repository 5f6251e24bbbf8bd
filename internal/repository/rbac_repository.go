package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"adminpanel/api/internal/models"
)

// RBACRepository reads the role -> module -> permission graph.
type RBACRepository struct {
	pool *pgxpool.Pool
}

func NewRBACRepository(pool *pgxpool.Pool) *RBACRepository {
	return &RBACRepository{pool: pool}
}

// ListGrants returns one row per (module, permission) reachable from the
// user's enabled roles. Modules without any permission come back once with
// NULL permission columns.
func (r *RBACRepository) ListGrants(ctx context.Context, userID int64) ([]models.ModuleGrant, error) {
	const query = `
		SELECT m.id, COALESCE(m.module_key, ''), m.description, m.path, COALESCE(m.icon, ''), m.parent_id,
		       rm.is_default,
		       p.id, COALESCE(p.permission_key, ''), COALESCE(p.description, ''),
		       COALESCE(p.enabled, FALSE), COALESCE(rmp.enabled, FALSE)
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id AND r.enabled
		JOIN role_modules rm ON rm.role_id = ur.role_id AND rm.enabled
		JOIN modules m ON m.id = rm.module_id AND m.enabled
		LEFT JOIN role_module_permissions rmp ON rmp.role_id = rm.role_id AND rmp.module_id = rm.module_id
		LEFT JOIN permissions p ON p.id = rmp.permission_id
		WHERE ur.user_id = $1 AND ur.enabled
		ORDER BY m.id, p.id
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	grants := make([]models.ModuleGrant, 0)
	for rows.Next() {
		var g models.ModuleGrant
		if err := rows.Scan(
			&g.ModuleID,
			&g.ModuleKey,
			&g.ModuleLabel,
			&g.ModulePath,
			&g.ModuleIcon,
			&g.ParentID,
			&g.IsDefault,
			&g.PermissionID,
			&g.PermissionKey,
			&g.PermissionLabel,
			&g.PermissionEnabled,
			&g.GrantEnabled,
		); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}
