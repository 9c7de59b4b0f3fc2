package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"canvass/internal/config"
	"canvass/internal/domain"
	"canvass/internal/engine/auth"
	"canvass/internal/events"
	"canvass/internal/repo"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Auth   auth.Service
	Config *config.Config
	Now    func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Auth:   auth.Service{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// InitOrg creates an organization with the acting user as its owner and
// seeds the default config.
func (e Engine) InitOrg(ctx context.Context, orgID, name, actorID string) (domain.Organization, error) {
	if orgID == "" {
		return domain.Organization{}, errors.New("org id is required")
	}
	if actorID == "" {
		return domain.Organization{}, errors.New("actor is required")
	}
	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Organization{}, err
	}
	defer tx.Rollback()

	o := domain.Organization{ID: orgID, Name: name, CreatedAt: now}
	if o.Name == "" {
		o.Name = orgID
	}
	if err := e.Repo.InsertOrg(ctx, tx, o); err != nil {
		return domain.Organization{}, fmt.Errorf("insert organization: %w", err)
	}
	if err := e.Repo.EnsureUser(ctx, tx, actorID, "", "", now); err != nil {
		return domain.Organization{}, fmt.Errorf("ensure user: %w", err)
	}
	if err := e.Repo.UpsertMembership(ctx, tx, domain.Membership{
		OrgID: o.ID, UserID: actorID, Level: domain.LevelOwner, JoinedAt: now, UpdatedAt: now,
	}); err != nil {
		return domain.Organization{}, fmt.Errorf("create owner membership: %w", err)
	}
	if err := e.Repo.UpsertOrgConfigTx(ctx, tx, o.ID, config.Default(o.ID)); err != nil {
		return domain.Organization{}, fmt.Errorf("seed org config: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "org.created", o.ID, "org", o.ID, actorID, events.EventPayload{"name": o.Name}); err != nil {
		return domain.Organization{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Organization{}, err
	}
	return o, nil
}

// RequireLevel checks the actor's membership level against min outside of
// any transaction. Mutating operations check inside their transaction via
// e.Auth instead.
func (e Engine) RequireLevel(ctx context.Context, orgID, userID string, min int) (int, error) {
	return e.Auth.RequireLevel(ctx, nil, orgID, userID, min)
}

// RevokeProjectAccess drops a member's per-project override; their org
// level still applies everywhere.
func (e Engine) RevokeProjectAccess(ctx context.Context, orgID, projectID, targetID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelAdmin); err != nil {
		return err
	}
	if err := e.Repo.DeleteProjectAccess(ctx, tx, orgID, projectID, targetID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "member.access.revoked", orgID, "member", targetID, actorID, events.EventPayload{
		"project_id": projectID,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteOrg removes the organization and everything under it. Only the
// owner can do this; the cascade takes members, invites, surveys, apps and
// integrations with it.
func (e Engine) DeleteOrg(ctx context.Context, orgID, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelOwner); err != nil {
		return err
	}
	if err := e.Repo.DeleteOrg(ctx, tx, orgID); err != nil {
		return err
	}
	return tx.Commit()
}

// SetMemberLevel changes a member's level. Ownership is transferred, not
// shared: granting owner demotes the current owner to admin.
func (e Engine) SetMemberLevel(ctx context.Context, orgID, targetID string, level int, actorID string) (domain.Membership, error) {
	if !domain.ValidLevel(level) {
		return domain.Membership{}, fmt.Errorf("invalid membership level %d", level)
	}
	if targetID == actorID {
		return domain.Membership{}, errors.New("cannot change your own membership level")
	}
	target, err := e.Repo.GetMembership(ctx, orgID, targetID)
	if err != nil {
		return domain.Membership{}, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()

	actorLevel, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelAdmin)
	if err != nil {
		return domain.Membership{}, err
	}
	if level == domain.LevelOwner && actorLevel != domain.LevelOwner {
		return domain.Membership{}, auth.ForbiddenError{Required: domain.LevelOwner}
	}
	if target.Level >= actorLevel && actorLevel != domain.LevelOwner {
		return domain.Membership{}, auth.ForbiddenError{Required: domain.LevelOwner}
	}
	if level > actorLevel {
		return domain.Membership{}, fmt.Errorf("cannot grant a level above your own (%s)", domain.LevelName(actorLevel))
	}

	if level == domain.LevelOwner {
		if err := e.Repo.UpdateMembershipLevel(ctx, tx, orgID, actorID, domain.LevelAdmin, now); err != nil {
			return domain.Membership{}, fmt.Errorf("demote previous owner: %w", err)
		}
		if err := e.Events.Append(ctx, tx, "org.ownership.transferred", orgID, "org", orgID, actorID, events.EventPayload{
			"from": actorID, "to": targetID,
		}); err != nil {
			return domain.Membership{}, err
		}
	}
	if err := e.Repo.UpdateMembershipLevel(ctx, tx, orgID, targetID, level, now); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "member.level.changed", orgID, "member", targetID, actorID, events.EventPayload{
		"previous_level": target.Level,
		"level":          level,
	}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	target.Level = level
	target.UpdatedAt = now
	return target, nil
}

// RemoveMember deletes a membership. Members may leave on their own; the
// owner may not be removed at all.
func (e Engine) RemoveMember(ctx context.Context, orgID, targetID, actorID string) error {
	target, err := e.Repo.GetMembership(ctx, orgID, targetID)
	if err != nil {
		return err
	}
	if target.Level == domain.LevelOwner {
		return errors.New("the owner cannot be removed; transfer ownership first")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if targetID != actorID {
		actorLevel, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelAdmin)
		if err != nil {
			return err
		}
		if target.Level >= actorLevel && actorLevel != domain.LevelOwner {
			return auth.ForbiddenError{Required: domain.LevelOwner}
		}
	}
	if err := e.Repo.DeleteMembership(ctx, tx, orgID, targetID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM project_access WHERE org_id=? AND user_id=?`, orgID, targetID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "member.removed", orgID, "member", targetID, actorID, events.EventPayload{
		"level": target.Level,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
