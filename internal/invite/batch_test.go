package invite

import (
	"strings"
	"testing"

	"canvass/internal/domain"
)

func TestValidEmail(t *testing.T) {
	for _, addr := range []string{"a@b.co", "first.last@example.org", "x+tag@sub.domain.io"} {
		if !ValidEmail(addr) {
			t.Errorf("ValidEmail(%q) = false", addr)
		}
	}
	for _, addr := range []string{"", "not-an-email", "a@b", "a @b.co", "@b.co", "a@.co", "Ana <ana@example.com>"} {
		if ValidEmail(addr) {
			t.Errorf("ValidEmail(%q) = true", addr)
		}
	}
}

func TestEmptyBatchBlocked(t *testing.T) {
	b := Batch{Rows: []Row{{}, {}}}
	if r := b.BlockedReason(); !strings.Contains(r, "at least one") {
		t.Fatalf("reason = %q", r)
	}
}

func TestInvalidRowBlocksWholeBatch(t *testing.T) {
	b := Batch{Rows: []Row{
		{TargetEmail: "ok@example.com", Level: domain.LevelMember},
		{TargetEmail: "not-an-email", Level: domain.LevelMember},
	}}
	if b.Submittable() {
		t.Fatal("batch with malformed email passed the gate")
	}
	if r := b.BlockedReason(); !strings.Contains(r, "Row 2") {
		t.Fatalf("reason = %q, want the bad row called out", r)
	}
}

func TestBlankRowsIgnored(t *testing.T) {
	b := Batch{Rows: []Row{
		{TargetEmail: "ok@example.com", Level: domain.LevelMember},
		{},
	}}
	if !b.Submittable() {
		t.Fatalf("blocked: %q", b.BlockedReason())
	}
	if got := b.Sendable(); len(got) != 1 || got[0].TargetEmail != "ok@example.com" {
		t.Fatalf("Sendable = %+v", got)
	}
}

func TestOwnerRowRequiresConfirmation(t *testing.T) {
	b := Batch{Rows: []Row{{TargetEmail: "boss@example.com", Level: domain.LevelOwner}}}
	if b.Submittable() {
		t.Fatal("owner invite passed without confirmation")
	}

	for _, phrase := range []string{"send invites", "SEND INVITES", "  Send Invites  "} {
		b.Confirmation = phrase
		if !b.Submittable() {
			t.Errorf("confirmation %q rejected: %q", phrase, b.BlockedReason())
		}
	}

	b.Confirmation = "send the invites"
	if b.Submittable() {
		t.Fatal("wrong confirmation phrase accepted")
	}
}

func TestNoConfirmationNeededBelowOwner(t *testing.T) {
	b := Batch{Rows: []Row{
		{TargetEmail: "a@example.com", Level: domain.LevelMember},
		{TargetEmail: "b@example.com", Level: domain.LevelAdmin},
	}}
	if !b.Submittable() {
		t.Fatalf("blocked: %q", b.BlockedReason())
	}
}

func TestDuplicateEmailsBlocked(t *testing.T) {
	b := Batch{Rows: []Row{
		{TargetEmail: "a@example.com", Level: domain.LevelMember},
		{TargetEmail: "A@Example.com", Level: domain.LevelAdmin},
	}}
	if b.Submittable() {
		t.Fatal("duplicate emails passed the gate")
	}
}
