package repo

import (
	"context"
	"database/sql"

	"canvass/internal/domain"
)

// Project access overrides grant a user an explicit level on a single
// project on top of the org-wide membership level.

func (r Repo) UpsertProjectAccess(ctx context.Context, tx *sql.Tx, a domain.ProjectAccess) error {
	exec := r.DB.ExecContext
	if tx != nil {
		exec = tx.ExecContext
	}
	_, err := exec(ctx, `INSERT INTO project_access(org_id,project_id,user_id,level,created_at) VALUES (?,?,?,?,?)
ON CONFLICT(org_id,project_id,user_id) DO UPDATE SET level=excluded.level`,
		a.OrgID, a.ProjectID, a.UserID, a.Level, a.CreatedAt)
	return err
}

func (r Repo) ListProjectAccess(ctx context.Context, orgID, userID string) ([]domain.ProjectAccess, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT org_id,project_id,user_id,level,created_at FROM project_access WHERE org_id=? AND user_id=? ORDER BY project_id`, orgID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ProjectAccess
	for rows.Next() {
		var a domain.ProjectAccess
		if err := rows.Scan(&a.OrgID, &a.ProjectID, &a.UserID, &a.Level, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ProjectLevel returns the effective level of a user on a project: the
// override when present, the org membership level otherwise.
func (r Repo) ProjectLevel(ctx context.Context, orgID, projectID, userID string) (int, error) {
	var level int
	err := r.DB.QueryRowContext(ctx, `SELECT level FROM project_access WHERE org_id=? AND project_id=? AND user_id=?`,
		orgID, projectID, userID).Scan(&level)
	if err == nil {
		return level, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}
	return r.MembershipLevel(ctx, nil, orgID, userID)
}

func (r Repo) DeleteProjectAccess(ctx context.Context, tx *sql.Tx, orgID, projectID, userID string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM project_access WHERE org_id=? AND project_id=? AND user_id=?`, orgID, projectID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
