package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"canvass/internal/domain"
	"canvass/internal/events"
	"canvass/internal/repo"
)

func validateRedirectURIs(uris []string) error {
	if len(uris) == 0 {
		return errors.New("at least one redirect URI is required")
	}
	for _, raw := range uris {
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("invalid redirect URI %q", raw)
		}
		if u.Scheme == "https" {
			continue
		}
		if u.Scheme == "http" && (u.Hostname() == "localhost" || u.Hostname() == "127.0.0.1") {
			continue
		}
		return fmt.Errorf("redirect URI %q must use https (http allowed for localhost only)", raw)
	}
	return nil
}

// CreateOAuthApp registers an OAuth application. The client secret is
// returned exactly once; only its hash is stored.
func (e Engine) CreateOAuthApp(ctx context.Context, orgID, name string, redirectURIs []string, actorID string) (domain.OAuthApp, string, error) {
	if strings.TrimSpace(name) == "" {
		return domain.OAuthApp{}, "", errors.New("name is required")
	}
	if err := validateRedirectURIs(redirectURIs); err != nil {
		return domain.OAuthApp{}, "", err
	}
	uris, err := json.Marshal(redirectURIs)
	if err != nil {
		return domain.OAuthApp{}, "", err
	}
	secret := "cvs_sk_" + uuid.NewString()
	app := domain.OAuthApp{
		ID:           uuid.NewString(),
		OrgID:        orgID,
		Name:         name,
		ClientID:     "cvs_app_" + uuid.NewString(),
		SecretHash:   repo.HashSecret(secret),
		RedirectURIs: string(uris),
		CreatedBy:    actorID,
		CreatedAt:    e.now().UTC().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OAuthApp{}, "", err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelAdmin); err != nil {
		return domain.OAuthApp{}, "", err
	}
	if err := e.Repo.InsertOAuthApp(ctx, tx, app); err != nil {
		return domain.OAuthApp{}, "", err
	}
	if err := e.Events.Append(ctx, tx, "app.created", orgID, "oauth_app", app.ID, actorID, events.EventPayload{
		"name": app.Name, "client_id": app.ClientID,
	}); err != nil {
		return domain.OAuthApp{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.OAuthApp{}, "", err
	}
	return app, secret, nil
}

// UpdateOAuthApp renames an app or replaces its redirect URIs.
func (e Engine) UpdateOAuthApp(ctx context.Context, id, name string, redirectURIs []string, actorID string) (domain.OAuthApp, error) {
	app, err := e.Repo.GetOAuthApp(ctx, id)
	if err != nil {
		return domain.OAuthApp{}, err
	}
	if name != "" {
		app.Name = name
	}
	if redirectURIs != nil {
		if err := validateRedirectURIs(redirectURIs); err != nil {
			return domain.OAuthApp{}, err
		}
		uris, err := json.Marshal(redirectURIs)
		if err != nil {
			return domain.OAuthApp{}, err
		}
		app.RedirectURIs = string(uris)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OAuthApp{}, err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, app.OrgID, actorID, domain.LevelAdmin); err != nil {
		return domain.OAuthApp{}, err
	}
	if err := e.Repo.UpdateOAuthApp(ctx, tx, app.ID, app.Name, app.RedirectURIs); err != nil {
		return domain.OAuthApp{}, err
	}
	if err := e.Events.Append(ctx, tx, "app.updated", app.OrgID, "oauth_app", app.ID, actorID, nil); err != nil {
		return domain.OAuthApp{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OAuthApp{}, err
	}
	return app, nil
}

// RotateOAuthAppSecret issues a fresh client secret, invalidating the old one.
func (e Engine) RotateOAuthAppSecret(ctx context.Context, id, actorID string) (string, error) {
	app, err := e.Repo.GetOAuthApp(ctx, id)
	if err != nil {
		return "", err
	}
	secret := "cvs_sk_" + uuid.NewString()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, app.OrgID, actorID, domain.LevelAdmin); err != nil {
		return "", err
	}
	if err := e.Repo.RotateOAuthAppSecret(ctx, tx, app.ID, repo.HashSecret(secret)); err != nil {
		return "", err
	}
	if err := e.Events.Append(ctx, tx, "app.secret.rotated", app.OrgID, "oauth_app", app.ID, actorID, nil); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return secret, nil
}

func (e Engine) DeleteOAuthApp(ctx context.Context, id, actorID string) error {
	app, err := e.Repo.GetOAuthApp(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, app.OrgID, actorID, domain.LevelAdmin); err != nil {
		return err
	}
	if err := e.Repo.DeleteOAuthApp(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "app.deleted", app.OrgID, "oauth_app", app.ID, actorID, events.EventPayload{
		"name": app.Name,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// CreatePersonalAPIKey mints a personal API key for a user. The plaintext
// value is returned once.
func (e Engine) CreatePersonalAPIKey(ctx context.Context, userID, name string) (domain.PersonalAPIKey, string, error) {
	if userID == "" {
		return domain.PersonalAPIKey{}, "", errors.New("user_id required")
	}
	value := "cvs_" + uuid.NewString()
	key := domain.PersonalAPIKey{
		ID:        uuid.NewString(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashSecret(value),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.PersonalAPIKey{}, "", err
	}
	return key, value, nil
}

// CreateIntegration stores a third-party integration config for an org.
func (e Engine) CreateIntegration(ctx context.Context, orgID, kind string, cfg map[string]any, actorID string) (domain.Integration, error) {
	if strings.TrimSpace(kind) == "" {
		return domain.Integration{}, errors.New("kind is required")
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return domain.Integration{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	in := domain.Integration{
		ID:         uuid.NewString(),
		OrgID:      orgID,
		Kind:       kind,
		ConfigJSON: string(data),
		CreatedBy:  actorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Integration{}, err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelAdmin); err != nil {
		return domain.Integration{}, err
	}
	if err := e.Repo.InsertIntegration(ctx, tx, in); err != nil {
		return domain.Integration{}, err
	}
	if err := e.Events.Append(ctx, tx, "integration.created", orgID, "integration", in.ID, actorID, events.EventPayload{
		"kind": kind,
	}); err != nil {
		return domain.Integration{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Integration{}, err
	}
	return in, nil
}

func (e Engine) UpdateIntegration(ctx context.Context, id string, cfg map[string]any, actorID string) (domain.Integration, error) {
	in, err := e.Repo.GetIntegration(ctx, id)
	if err != nil {
		return domain.Integration{}, err
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return domain.Integration{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Integration{}, err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, in.OrgID, actorID, domain.LevelAdmin); err != nil {
		return domain.Integration{}, err
	}
	if err := e.Repo.UpdateIntegrationConfig(ctx, tx, id, string(data), now); err != nil {
		return domain.Integration{}, err
	}
	if err := e.Events.Append(ctx, tx, "integration.updated", in.OrgID, "integration", in.ID, actorID, events.EventPayload{
		"kind": in.Kind,
	}); err != nil {
		return domain.Integration{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Integration{}, err
	}
	in.ConfigJSON = string(data)
	in.UpdatedAt = now
	return in, nil
}

func (e Engine) DeleteIntegration(ctx context.Context, id, actorID string) error {
	in, err := e.Repo.GetIntegration(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, in.OrgID, actorID, domain.LevelAdmin); err != nil {
		return err
	}
	if err := e.Repo.DeleteIntegration(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "integration.deleted", in.OrgID, "integration", in.ID, actorID, events.EventPayload{
		"kind": in.Kind,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
