package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"canvass/internal/domain"
	"canvass/internal/events"
	"canvass/internal/invite"
	"canvass/internal/repo"
)

// CreateInvites sends a validated invite batch. The whole batch is
// committed or rejected as one unit.
func (e Engine) CreateInvites(ctx context.Context, orgID string, batch invite.Batch, actorID string) ([]domain.Invite, error) {
	now := e.now().UTC()
	createdAt := now.Format(time.RFC3339)
	expiresAt := now.AddDate(0, 0, e.Config.InviteExpiryDays()).Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	actorLevel, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelAdmin)
	if err != nil {
		return nil, err
	}
	if reason := batch.BlockedReason(); reason != "" {
		return nil, GateError{Reason: reason}
	}
	rows := batch.Sendable()
	for _, row := range rows {
		if row.Level > actorLevel {
			return nil, fmt.Errorf("cannot invite %s at a level above your own (%s)",
				row.TargetEmail, domain.LevelName(actorLevel))
		}
	}
	for _, row := range rows {
		if member, err := e.memberByEmail(ctx, tx, orgID, row.TargetEmail); err == nil {
			return nil, fmt.Errorf("%s is already a member (user %s)", row.TargetEmail, member)
		} else if err != repo.ErrNotFound {
			return nil, err
		}
		if _, err := e.Repo.PendingInviteForEmail(ctx, tx, orgID, row.TargetEmail); err == nil {
			return nil, fmt.Errorf("%s already has a pending invite", row.TargetEmail)
		} else if err != repo.ErrNotFound {
			return nil, err
		}
	}

	var out []domain.Invite
	for _, row := range rows {
		inv := domain.Invite{
			ID:          uuid.NewString(),
			OrgID:       orgID,
			TargetEmail: row.TargetEmail,
			FirstName:   row.FirstName,
			Level:       row.Level,
			Message:     row.Message,
			CreatedBy:   actorID,
			CreatedAt:   createdAt,
			ExpiresAt:   expiresAt,
		}
		if len(row.PrivateAccess) > 0 {
			data, err := json.Marshal(row.PrivateAccess)
			if err != nil {
				return nil, fmt.Errorf("encode private access: %w", err)
			}
			str := string(data)
			inv.PrivateAccess = &str
		}
		if err := e.Repo.InsertInvite(ctx, tx, inv); err != nil {
			return nil, err
		}
		if err := e.Events.Append(ctx, tx, "invite.created", orgID, "invite", inv.ID, actorID, events.EventPayload{
			"target_email": inv.TargetEmail,
			"level":        inv.Level,
		}); err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteInvite revokes a pending invite.
func (e Engine) DeleteInvite(ctx context.Context, orgID, inviteID, actorID string) error {
	inv, err := e.Repo.GetInvite(ctx, inviteID)
	if err != nil {
		return err
	}
	if inv.OrgID != orgID {
		return repo.ErrNotFound
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelAdmin); err != nil {
		return err
	}
	if err := e.Repo.DeleteInvite(ctx, tx, inviteID); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "invite.deleted", orgID, "invite", inviteID, actorID, events.EventPayload{
		"target_email": inv.TargetEmail,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// RevokeInviteByEmail deletes the pending invite addressed to the email,
// matched case-insensitively.
func (e Engine) RevokeInviteByEmail(ctx context.Context, orgID, email, actorID string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelAdmin); err != nil {
		return err
	}
	inv, err := e.Repo.PendingInviteForEmail(ctx, tx, orgID, email)
	if err != nil {
		return err
	}
	if err := e.Repo.DeleteInviteByEmail(ctx, tx, orgID, email); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "invite.deleted", orgID, "invite", inv.ID, actorID, events.EventPayload{
		"target_email": inv.TargetEmail,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// AcceptInvite turns a pending invite into a membership for the accepting
// user, applying any per-project access overrides it carried.
func (e Engine) AcceptInvite(ctx context.Context, inviteID, userID string) (domain.Membership, error) {
	inv, err := e.Repo.GetInvite(ctx, inviteID)
	if err != nil {
		return domain.Membership{}, err
	}
	now := e.now().UTC()
	if expires, perr := time.Parse(time.RFC3339, inv.ExpiresAt); perr == nil && now.After(expires) {
		return domain.Membership{}, fmt.Errorf("invite for %s expired on %s", inv.TargetEmail, inv.ExpiresAt)
	}
	ts := now.Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Membership{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.EnsureUser(ctx, tx, userID, inv.TargetEmail, inv.FirstName, ts); err != nil {
		return domain.Membership{}, err
	}
	m := domain.Membership{
		OrgID: inv.OrgID, UserID: userID, Level: inv.Level, JoinedAt: ts, UpdatedAt: ts,
	}
	if err := e.Repo.UpsertMembership(ctx, tx, m); err != nil {
		return domain.Membership{}, err
	}
	if inv.PrivateAccess != nil {
		var access []domain.ProjectAccess
		if err := json.Unmarshal([]byte(*inv.PrivateAccess), &access); err != nil {
			return domain.Membership{}, fmt.Errorf("decode private access: %w", err)
		}
		for _, a := range access {
			a.OrgID = inv.OrgID
			a.UserID = userID
			a.CreatedAt = ts
			if err := e.Repo.UpsertProjectAccess(ctx, tx, a); err != nil {
				return domain.Membership{}, err
			}
		}
	}
	if err := e.Repo.DeleteInvite(ctx, tx, inv.ID); err != nil {
		return domain.Membership{}, err
	}
	if err := e.Events.Append(ctx, tx, "invite.accepted", inv.OrgID, "member", userID, userID, events.EventPayload{
		"target_email": inv.TargetEmail,
		"level":        inv.Level,
	}); err != nil {
		return domain.Membership{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Membership{}, err
	}
	return m, nil
}

func (e Engine) memberByEmail(ctx context.Context, tx *sql.Tx, orgID, email string) (string, error) {
	var userID string
	err := tx.QueryRowContext(ctx, `
SELECT u.id FROM users u
JOIN org_memberships m ON m.user_id = u.id
WHERE m.org_id=? AND lower(u.email)=?`, orgID, strings.ToLower(email)).Scan(&userID)
	if err == sql.ErrNoRows {
		return "", repo.ErrNotFound
	}
	return userID, err
}
