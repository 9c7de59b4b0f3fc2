package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"

	"canvass/internal/domain"
)

// HashSecret returns a stable SHA-256 hex digest for a client secret or
// API key. Plaintext values are never stored.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(secret)))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertOAuthApp(ctx context.Context, tx *sql.Tx, app domain.OAuthApp) error {
	if app.ID == "" {
		return errors.New("id required")
	}
	if app.ClientID == "" {
		return errors.New("client_id required")
	}
	if app.SecretHash == "" {
		return errors.New("secret_hash required")
	}
	_, err := tx.ExecContext(ctx, `INSERT INTO oauth_apps(id,org_id,name,client_id,secret_hash,redirect_uris_json,created_by,created_at)
VALUES (?,?,?,?,?,?,?,?)`,
		app.ID, app.OrgID, app.Name, app.ClientID, app.SecretHash, app.RedirectURIs, app.CreatedBy, app.CreatedAt)
	return err
}

const oauthAppColumns = `id,org_id,name,client_id,secret_hash,redirect_uris_json,created_by,created_at`

func scanOAuthApp(scan func(dest ...any) error) (domain.OAuthApp, error) {
	var app domain.OAuthApp
	err := scan(&app.ID, &app.OrgID, &app.Name, &app.ClientID, &app.SecretHash, &app.RedirectURIs, &app.CreatedBy, &app.CreatedAt)
	if err == sql.ErrNoRows {
		return app, ErrNotFound
	}
	return app, err
}

func (r Repo) GetOAuthApp(ctx context.Context, id string) (domain.OAuthApp, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+oauthAppColumns+` FROM oauth_apps WHERE id=?`, id)
	return scanOAuthApp(row.Scan)
}

func (r Repo) GetOAuthAppByClientID(ctx context.Context, clientID string) (domain.OAuthApp, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+oauthAppColumns+` FROM oauth_apps WHERE client_id=?`, clientID)
	return scanOAuthApp(row.Scan)
}

func (r Repo) ListOAuthApps(ctx context.Context, orgID string) ([]domain.OAuthApp, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+oauthAppColumns+` FROM oauth_apps WHERE org_id=? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OAuthApp
	for rows.Next() {
		app, err := scanOAuthApp(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, app)
	}
	return res, rows.Err()
}

func (r Repo) UpdateOAuthApp(ctx context.Context, tx *sql.Tx, id, name, redirectURIsJSON string) error {
	res, err := tx.ExecContext(ctx, `UPDATE oauth_apps SET name=?, redirect_uris_json=? WHERE id=?`, name, redirectURIsJSON, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// RotateOAuthAppSecret replaces the stored secret hash.
func (r Repo) RotateOAuthAppSecret(ctx context.Context, tx *sql.Tx, id, secretHash string) error {
	res, err := tx.ExecContext(ctx, `UPDATE oauth_apps SET secret_hash=? WHERE id=?`, secretHash, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteOAuthApp(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM oauth_apps WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
