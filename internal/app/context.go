package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"canvass/internal/config"
	"canvass/internal/domain"
	"canvass/internal/repo"
)

// ResolveOrgAndConfig picks the active organization and ensures an org and
// config row exist in the DB, seeding defaults when missing. It prefers the
// override, then the org named by the workspace canvass.yml, then the
// single-org DB. If the org does not exist it is created on the fly with
// the actor as owner.
func ResolveOrgAndConfig(ctx context.Context, workspace, orgOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	fileCfg, err := config.LoadOptional(workspace)
	if err != nil {
		return "", nil, err
	}
	orgID := orgOverride
	if orgID == "" && fileCfg != nil {
		orgID = fileCfg.Org.ID
	}
	if orgID == "" {
		o, err := r.SingleOrg(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("organization not specified; use --org or a workspace canvass.yml")
		}
		orgID = o.ID
	}
	seedCfg := fileCfg
	if seedCfg == nil || seedCfg.Org.ID != orgID {
		seedCfg = config.Default(orgID)
	}

	if _, err := r.GetOrg(ctx, orgID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createOrg(ctx, r, orgID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetOrgConfig(ctx, orgID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertOrgConfig(ctx, orgID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed org config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Org.ID = orgID
	return orgID, cfg, nil
}

// createOrg inserts a minimal org footprint with the actor as owner.
func createOrg(ctx context.Context, r repo.Repo, orgID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(orgID)
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.EnsureOrg(ctx, tx, orgID, seedCfg.Org.Name, now); err != nil {
		return fmt.Errorf("ensure org: %w", err)
	}
	if err := r.UpsertOrgConfigTx(ctx, tx, orgID, seedCfg); err != nil {
		return fmt.Errorf("insert org config: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	if err := r.EnsureUser(ctx, tx, actorID, "", "", now); err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	if err := r.UpsertMembership(ctx, tx, domain.Membership{
		OrgID:     orgID,
		UserID:    actorID,
		Level:     domain.LevelOwner,
		JoinedAt:  now,
		UpdatedAt: now,
	}); err != nil {
		return fmt.Errorf("seed owner membership: %w", err)
	}
	return tx.Commit()
}
