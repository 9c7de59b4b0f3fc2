package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"canvass/internal/config"
	"canvass/internal/db"
	"canvass/internal/domain"
	"canvass/internal/engine/auth"
	"canvass/internal/invite"
	"canvass/internal/migrate"
	"canvass/internal/repo"
	"canvass/internal/survey"
)

const testOrg = "acme"

func newTestEngine(t *testing.T) Engine {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := New(conn, config.Default(testOrg))
	if _, err := e.InitOrg(context.Background(), testOrg, "Acme", "owner-user"); err != nil {
		t.Fatalf("init org: %v", err)
	}
	return e
}

func addMember(t *testing.T, e Engine, userID, email string, level int) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)
	if err := e.Repo.EnsureUser(ctx, nil, userID, email, "", now); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := e.Repo.UpsertMembership(ctx, nil, domain.Membership{
		OrgID: testOrg, UserID: userID, Level: level, JoinedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("upsert membership: %v", err)
	}
}

func validDraft() survey.Draft {
	d := survey.NewDraft()
	d.Name = "Onboarding feedback"
	d.Questions = []survey.Question{{
		Type:     survey.QuestionRating,
		Question: "How was your first week?",
		Scale:    5,
	}}
	return d
}

func TestInitOrgCreatesOwner(t *testing.T) {
	e := newTestEngine(t)
	m, err := e.Repo.GetMembership(context.Background(), testOrg, "owner-user")
	if err != nil {
		t.Fatalf("get membership: %v", err)
	}
	if m.Level != domain.LevelOwner {
		t.Fatalf("owner level = %d, want %d", m.Level, domain.LevelOwner)
	}
	if _, err := e.Repo.GetOrgConfig(context.Background(), testOrg); err != nil {
		t.Fatalf("org config not seeded: %v", err)
	}
}

func TestCreateSurveyGate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.CreateSurvey(ctx, testOrg, survey.NewDraft(), "owner-user")
	var ge GateError
	if !errors.As(err, &ge) {
		t.Fatalf("expected gate error, got %v", err)
	}

	s, err := e.CreateSurvey(ctx, testOrg, validDraft(), "owner-user")
	if err != nil {
		t.Fatalf("create survey: %v", err)
	}
	if s.Status != SurveyStatusDraft {
		t.Fatalf("status = %s, want draft", s.Status)
	}
	if s.Schedule != "once" || s.IterationCount != 0 {
		t.Fatalf("schedule not normalized: %s %d", s.Schedule, s.IterationCount)
	}
}

func TestCreateSurveyRequiresMembership(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.CreateSurvey(context.Background(), testOrg, validDraft(), "stranger")
	var nm auth.NotAMemberError
	if !errors.As(err, &nm) {
		t.Fatalf("expected not-a-member error, got %v", err)
	}
}

func TestSurveyLifecycle(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	s, err := e.CreateSurvey(ctx, testOrg, validDraft(), "owner-user")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := e.SetSurveyStatus(ctx, s.ID, SurveyStatusStopped, "owner-user"); err == nil {
		t.Fatal("draft -> stopped should be rejected")
	}

	launched, err := e.SetSurveyStatus(ctx, s.ID, SurveyStatusLaunched, "owner-user")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if launched.LaunchedAt == nil {
		t.Fatal("launched_at not stamped")
	}

	stopped, err := e.SetSurveyStatus(ctx, s.ID, SurveyStatusStopped, "owner-user")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stopped.StoppedAt == nil {
		t.Fatal("stopped_at not stamped")
	}

	resumed, err := e.SetSurveyStatus(ctx, s.ID, SurveyStatusLaunched, "owner-user")
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if resumed.StoppedAt != nil {
		t.Fatal("stopped_at not cleared on resume")
	}

	if _, err := e.SetSurveyStatus(ctx, s.ID, SurveyStatusStopped, "owner-user"); err != nil {
		t.Fatalf("stop again: %v", err)
	}
	archived, err := e.SetSurveyStatus(ctx, s.ID, SurveyStatusArchived, "owner-user")
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if archived.Status != SurveyStatusArchived {
		t.Fatalf("status = %s", archived.Status)
	}

	name := "renamed"
	_, err = e.UpdateSurvey(ctx, s.ID, SurveyPatches{Fields: &survey.Patch{Name: &name}}, "owner-user")
	if err == nil || !strings.Contains(err.Error(), "archived") {
		t.Fatalf("editing archived survey: %v", err)
	}
}

func TestUpdateSurveyRecordsChanges(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	s, err := e.CreateSurvey(ctx, testOrg, validDraft(), "owner-user")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	sched := survey.ScheduleRecurring
	count := 2
	updated, err := e.UpdateSurvey(ctx, s.ID, SurveyPatches{
		Fields: &survey.Patch{Schedule: &sched, IterationCount: &count},
	}, "owner-user")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Schedule != "recurring" || updated.IterationCount != 2 || updated.IterationFrequencyDays != 1 {
		t.Fatalf("schedule = %s %d/%d", updated.Schedule, updated.IterationCount, updated.IterationFrequencyDays)
	}

	evts, err := e.Repo.LatestEvents(ctx, 5, testOrg, "survey.updated", "", "")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 1 || !strings.Contains(evts[0].Payload, "recurring") {
		t.Fatalf("update event missing: %+v", evts)
	}
}

func TestInviteBatchRules(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	batch := invite.Batch{Rows: []invite.Row{{TargetEmail: "boss@acme.com", Level: domain.LevelOwner}}}
	if _, err := e.CreateInvites(ctx, testOrg, batch, "owner-user"); err == nil {
		t.Fatal("owner invite without confirmation accepted")
	}

	batch.Confirmation = "Send Invites"
	sent, err := e.CreateInvites(ctx, testOrg, batch, "owner-user")
	if err != nil {
		t.Fatalf("create invites: %v", err)
	}
	if len(sent) != 1 || sent[0].Level != domain.LevelOwner {
		t.Fatalf("sent = %+v", sent)
	}

	if _, err := e.CreateInvites(ctx, testOrg, batch, "owner-user"); err == nil ||
		!strings.Contains(err.Error(), "pending") {
		t.Fatalf("duplicate pending invite: %v", err)
	}
}

func TestInviteLevelCapped(t *testing.T) {
	e := newTestEngine(t)
	addMember(t, e, "admin-user", "admin@acme.com", domain.LevelAdmin)

	batch := invite.Batch{
		Rows:         []invite.Row{{TargetEmail: "new-owner@acme.com", Level: domain.LevelOwner}},
		Confirmation: "send invites",
	}
	_, err := e.CreateInvites(context.Background(), testOrg, batch, "admin-user")
	if err == nil || !strings.Contains(err.Error(), "above your own") {
		t.Fatalf("admin inviting owner: %v", err)
	}

	mem := invite.Batch{Rows: []invite.Row{{TargetEmail: "dev@acme.com", Level: domain.LevelMember}}}
	if _, err := e.CreateInvites(context.Background(), testOrg, mem, "admin-user"); err != nil {
		t.Fatalf("admin inviting member: %v", err)
	}
}

func TestInviteExistingMemberRejected(t *testing.T) {
	e := newTestEngine(t)
	addMember(t, e, "dev", "dev@acme.com", domain.LevelMember)
	batch := invite.Batch{Rows: []invite.Row{{TargetEmail: "Dev@Acme.com", Level: domain.LevelMember}}}
	_, err := e.CreateInvites(context.Background(), testOrg, batch, "owner-user")
	if err == nil || !strings.Contains(err.Error(), "already a member") {
		t.Fatalf("existing member invite: %v", err)
	}
}

func TestAcceptInvite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	batch := invite.Batch{Rows: []invite.Row{{
		TargetEmail: "dev@acme.com",
		Level:       domain.LevelMember,
		PrivateAccess: []domain.ProjectAccess{
			{ProjectID: "proj-1", Level: domain.LevelAdmin},
		},
	}}}
	sent, err := e.CreateInvites(ctx, testOrg, batch, "owner-user")
	if err != nil {
		t.Fatalf("create invites: %v", err)
	}

	m, err := e.AcceptInvite(ctx, sent[0].ID, "dev-user")
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if m.Level != domain.LevelMember {
		t.Fatalf("level = %d", m.Level)
	}
	level, err := e.Repo.ProjectLevel(ctx, testOrg, "proj-1", "dev-user")
	if err != nil {
		t.Fatalf("project level: %v", err)
	}
	if level != domain.LevelAdmin {
		t.Fatalf("project override level = %d, want admin", level)
	}
	if _, err := e.Repo.GetInvite(ctx, sent[0].ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("invite not consumed: %v", err)
	}
}

func TestAcceptExpiredInvite(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	base := time.Now().UTC()
	e.Now = func() time.Time { return base }
	sent, err := e.CreateInvites(ctx, testOrg, invite.Batch{
		Rows: []invite.Row{{TargetEmail: "late@acme.com", Level: domain.LevelMember}},
	}, "owner-user")
	if err != nil {
		t.Fatalf("create invites: %v", err)
	}
	e.Now = func() time.Time { return base.AddDate(0, 0, e.Config.InviteExpiryDays()+1) }
	if _, err := e.AcceptInvite(ctx, sent[0].ID, "late-user"); err == nil ||
		!strings.Contains(err.Error(), "expired") {
		t.Fatalf("expired invite accepted: %v", err)
	}
}

func TestSetMemberLevel(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	addMember(t, e, "admin-user", "admin@acme.com", domain.LevelAdmin)
	addMember(t, e, "dev", "dev@acme.com", domain.LevelMember)

	if _, err := e.SetMemberLevel(ctx, testOrg, "owner-user", domain.LevelMember, "admin-user"); err == nil {
		t.Fatal("admin demoting owner accepted")
	}
	if _, err := e.SetMemberLevel(ctx, testOrg, "dev", domain.LevelOwner, "admin-user"); err == nil {
		t.Fatal("admin granting owner accepted")
	}
	if _, err := e.SetMemberLevel(ctx, testOrg, "admin-user", domain.LevelOwner, "admin-user"); err == nil {
		t.Fatal("self level change accepted")
	}

	m, err := e.SetMemberLevel(ctx, testOrg, "dev", domain.LevelAdmin, "admin-user")
	if err != nil {
		t.Fatalf("promote member: %v", err)
	}
	if m.Level != domain.LevelAdmin {
		t.Fatalf("level = %d", m.Level)
	}
}

func TestOwnershipTransfer(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	addMember(t, e, "admin-user", "admin@acme.com", domain.LevelAdmin)

	if _, err := e.SetMemberLevel(ctx, testOrg, "admin-user", domain.LevelOwner, "owner-user"); err != nil {
		t.Fatalf("transfer ownership: %v", err)
	}
	newOwner, _ := e.Repo.GetMembership(ctx, testOrg, "admin-user")
	oldOwner, _ := e.Repo.GetMembership(ctx, testOrg, "owner-user")
	if newOwner.Level != domain.LevelOwner {
		t.Fatalf("new owner level = %d", newOwner.Level)
	}
	if oldOwner.Level != domain.LevelAdmin {
		t.Fatalf("previous owner level = %d, want admin", oldOwner.Level)
	}
}

func TestRemoveMember(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	addMember(t, e, "admin-user", "admin@acme.com", domain.LevelAdmin)
	addMember(t, e, "dev", "dev@acme.com", domain.LevelMember)

	if err := e.RemoveMember(ctx, testOrg, "owner-user", "admin-user"); err == nil {
		t.Fatal("removing owner accepted")
	}
	if err := e.RemoveMember(ctx, testOrg, "admin-user", "dev"); err == nil {
		t.Fatal("member removing admin accepted")
	}
	if err := e.RemoveMember(ctx, testOrg, "dev", "admin-user"); err != nil {
		t.Fatalf("admin removing member: %v", err)
	}
	// self-leave
	if err := e.RemoveMember(ctx, testOrg, "admin-user", "admin-user"); err != nil {
		t.Fatalf("self leave: %v", err)
	}
}

func TestOAuthAppSecretHandling(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, _, err := e.CreateOAuthApp(ctx, testOrg, "Zapier", []string{"ftp://example.com"}, "owner-user")
	if err == nil {
		t.Fatal("non-https redirect accepted")
	}

	app, secret, err := e.CreateOAuthApp(ctx, testOrg, "Zapier", []string{
		"https://zapier.com/oauth/callback",
		"http://localhost:4000/callback",
	}, "owner-user")
	if err != nil {
		t.Fatalf("create app: %v", err)
	}
	if secret == "" || app.SecretHash == secret {
		t.Fatal("secret stored in plaintext")
	}
	if app.SecretHash != repo.HashSecret(secret) {
		t.Fatal("stored hash does not match issued secret")
	}

	rotated, err := e.RotateOAuthAppSecret(ctx, app.ID, "owner-user")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	fresh, err := e.Repo.GetOAuthApp(ctx, app.ID)
	if err != nil {
		t.Fatalf("get app: %v", err)
	}
	if fresh.SecretHash != repo.HashSecret(rotated) {
		t.Fatal("rotation did not replace the hash")
	}
}

func TestPersonalAPIKeyLookup(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	key, value, err := e.CreatePersonalAPIKey(ctx, "owner-user", "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	found, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashSecret(value))
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if found.ID != key.ID || found.UserID != "owner-user" {
		t.Fatalf("lookup mismatch: %+v", found)
	}
}

func TestRevokeProjectAccess(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	sent, err := e.CreateInvites(ctx, testOrg, invite.Batch{Rows: []invite.Row{{
		TargetEmail:   "dev@acme.com",
		Level:         domain.LevelMember,
		PrivateAccess: []domain.ProjectAccess{{ProjectID: "proj-1", Level: domain.LevelAdmin}},
	}}}, "owner-user")
	if err != nil {
		t.Fatalf("create invites: %v", err)
	}
	if _, err := e.AcceptInvite(ctx, sent[0].ID, "dev-user"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	addMember(t, e, "plain-user", "plain@acme.com", domain.LevelMember)
	err = e.RevokeProjectAccess(ctx, testOrg, "proj-1", "dev-user", "plain-user")
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("member could revoke access: %v", err)
	}

	if err := e.RevokeProjectAccess(ctx, testOrg, "proj-1", "dev-user", "owner-user"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	level, err := e.Repo.ProjectLevel(ctx, testOrg, "proj-1", "dev-user")
	if err != nil {
		t.Fatalf("project level: %v", err)
	}
	if level != domain.LevelMember {
		t.Fatalf("level after revoke = %d, want org level", level)
	}
}

func TestRevokeInviteByEmail(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	if _, err := e.CreateInvites(ctx, testOrg, invite.Batch{Rows: []invite.Row{{
		TargetEmail: "dev@acme.com",
		Level:       domain.LevelMember,
	}}}, "owner-user"); err != nil {
		t.Fatalf("create invites: %v", err)
	}
	if err := e.RevokeInviteByEmail(ctx, testOrg, "Dev@Acme.com", "owner-user"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	invites, err := e.Repo.ListInvites(ctx, testOrg)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(invites) != 0 {
		t.Fatalf("invite still pending: %+v", invites)
	}
}

func TestUpdateIntegration(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	in, err := e.CreateIntegration(ctx, testOrg, "slack", map[string]any{"channel": "#alerts"}, "owner-user")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	updated, err := e.UpdateIntegration(ctx, in.ID, map[string]any{"channel": "#surveys"}, "owner-user")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(updated.ConfigJSON, "#surveys") {
		t.Fatalf("config not replaced: %s", updated.ConfigJSON)
	}
}

func TestDeleteOrgOwnerOnly(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	addMember(t, e, "admin-user", "admin@acme.com", domain.LevelAdmin)
	err := e.DeleteOrg(ctx, testOrg, "admin-user")
	var fe auth.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("admin could delete the org: %v", err)
	}
	if err := e.DeleteOrg(ctx, testOrg, "owner-user"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.Repo.GetOrg(ctx, testOrg); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("org still present: %v", err)
	}
}

func TestCreateSurveyDefaultsRatingScale(t *testing.T) {
	e := newTestEngine(t)
	d := survey.NewDraft()
	d.Name = "Pulse"
	d.Questions = []survey.Question{{
		Type:     survey.QuestionRating,
		Question: "How likely are you to recommend us?",
	}}
	s, err := e.CreateSurvey(context.Background(), testOrg, d, "owner-user")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := DraftOf(s)
	if err != nil {
		t.Fatalf("draft of: %v", err)
	}
	if got.Questions[0].Scale != 5 || got.Questions[0].Display != survey.QuestionDisplayNumber {
		t.Fatalf("rating not defaulted: %+v", got.Questions[0])
	}
}

func TestMemberLevelCheckedInTransaction(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := e.Repo.EnsureUser(ctx, tx, "late-admin", "late@acme.com", "", now); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	if err := e.Repo.UpsertMembership(ctx, tx, domain.Membership{
		OrgID: testOrg, UserID: "late-admin", Level: domain.LevelAdmin, JoinedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("upsert membership: %v", err)
	}
	if level, err := e.Auth.RequireLevel(ctx, tx, testOrg, "late-admin", domain.LevelAdmin); err != nil || level != domain.LevelAdmin {
		t.Fatalf("in-tx check: level=%d err=%v", level, err)
	}
	tx.Rollback()

	var nm auth.NotAMemberError
	if _, err := e.Auth.RequireLevel(ctx, nil, testOrg, "late-admin", domain.LevelAdmin); !errors.As(err, &nm) {
		t.Fatalf("rolled-back membership still passes the check: %v", err)
	}
}
