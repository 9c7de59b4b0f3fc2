package repo

import (
	"context"
	"database/sql"
	"strings"

	"canvass/internal/domain"
)

func (r Repo) InsertInvite(ctx context.Context, tx *sql.Tx, inv domain.Invite) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO invites(id,org_id,target_email,first_name,level,message,private_access_json,created_by,created_at,expires_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		inv.ID, inv.OrgID, inv.TargetEmail, nullable(inv.FirstName), inv.Level, nullable(inv.Message),
		nullableStringPtr(inv.PrivateAccess), inv.CreatedBy, inv.CreatedAt, inv.ExpiresAt)
	return err
}

func scanInvite(scan func(dest ...any) error) (domain.Invite, error) {
	var inv domain.Invite
	var first, msg, access sql.NullString
	err := scan(&inv.ID, &inv.OrgID, &inv.TargetEmail, &first, &inv.Level, &msg, &access,
		&inv.CreatedBy, &inv.CreatedAt, &inv.ExpiresAt)
	if err == sql.ErrNoRows {
		return inv, ErrNotFound
	}
	if err != nil {
		return inv, err
	}
	inv.FirstName = first.String
	inv.Message = msg.String
	if access.Valid {
		inv.PrivateAccess = &access.String
	}
	return inv, nil
}

const inviteColumns = `id,org_id,target_email,first_name,level,message,private_access_json,created_by,created_at,expires_at`

func (r Repo) GetInvite(ctx context.Context, id string) (domain.Invite, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE id=?`, id)
	return scanInvite(row.Scan)
}

// PendingInviteForEmail looks up an open invite by address, case-insensitively.
func (r Repo) PendingInviteForEmail(ctx context.Context, tx *sql.Tx, orgID, email string) (domain.Invite, error) {
	query := r.DB.QueryRowContext
	if tx != nil {
		query = tx.QueryRowContext
	}
	row := query(ctx, `SELECT `+inviteColumns+` FROM invites WHERE org_id=? AND lower(target_email)=?`,
		orgID, strings.ToLower(email))
	return scanInvite(row.Scan)
}

func (r Repo) ListInvites(ctx context.Context, orgID string) ([]domain.Invite, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+inviteColumns+` FROM invites WHERE org_id=? ORDER BY created_at DESC, id DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Invite
	for rows.Next() {
		inv, err := scanInvite(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, inv)
	}
	return res, rows.Err()
}

func (r Repo) DeleteInvite(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM invites WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteInviteByEmail(ctx context.Context, tx *sql.Tx, orgID, email string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM invites WHERE org_id=? AND lower(target_email)=?`, orgID, strings.ToLower(email))
	return err
}
