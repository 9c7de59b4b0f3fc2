package repo

import (
	"context"
	"database/sql"

	"canvass/internal/domain"
)

func (r Repo) InsertIntegration(ctx context.Context, tx *sql.Tx, in domain.Integration) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO integrations(id,org_id,kind,config_json,created_by,created_at,updated_at)
VALUES (?,?,?,?,?,?,?)`,
		in.ID, in.OrgID, in.Kind, in.ConfigJSON, in.CreatedBy, in.CreatedAt, in.UpdatedAt)
	return err
}

func (r Repo) GetIntegration(ctx context.Context, id string) (domain.Integration, error) {
	var in domain.Integration
	err := r.DB.QueryRowContext(ctx, `SELECT id,org_id,kind,config_json,created_by,created_at,updated_at FROM integrations WHERE id=?`, id).
		Scan(&in.ID, &in.OrgID, &in.Kind, &in.ConfigJSON, &in.CreatedBy, &in.CreatedAt, &in.UpdatedAt)
	if err == sql.ErrNoRows {
		return in, ErrNotFound
	}
	return in, err
}

func (r Repo) ListIntegrations(ctx context.Context, orgID, kind string) ([]domain.Integration, error) {
	query := `SELECT id,org_id,kind,config_json,created_by,created_at,updated_at FROM integrations WHERE org_id=?`
	args := []any{orgID}
	if kind != "" {
		query += ` AND kind=?`
		args = append(args, kind)
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Integration
	for rows.Next() {
		var in domain.Integration
		if err := rows.Scan(&in.ID, &in.OrgID, &in.Kind, &in.ConfigJSON, &in.CreatedBy, &in.CreatedAt, &in.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, in)
	}
	return res, rows.Err()
}

func (r Repo) UpdateIntegrationConfig(ctx context.Context, tx *sql.Tx, id, configJSON, now string) error {
	res, err := tx.ExecContext(ctx, `UPDATE integrations SET config_json=?, updated_at=? WHERE id=?`, configJSON, now, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteIntegration(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM integrations WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
