// Package invite holds the bulk invite draft and its submission gate.
package invite

import (
	"fmt"
	"net/mail"
	"strings"

	"canvass/internal/domain"
)

// ConfirmationPhrase must be typed by the inviter when any row grants the
// owner level. Compared case-insensitively after trimming.
const ConfirmationPhrase = "send invites"

// ValidEmail checks that addr is a bare RFC 5322 address with a dotted
// domain. Display-name forms like "Ana <ana@example.com>" are rejected;
// deliverability is the mail server's problem.
func ValidEmail(addr string) bool {
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return false
	}
	domainPart := addr[strings.LastIndex(addr, "@")+1:]
	return strings.Contains(domainPart, ".")
}

// Row is one draft invite in a batch.
type Row struct {
	TargetEmail   string                 `json:"target_email"`
	FirstName     string                 `json:"first_name,omitempty"`
	Level         int                    `json:"level"`
	Message       string                 `json:"message,omitempty"`
	PrivateAccess []domain.ProjectAccess `json:"private_access,omitempty"`
}

// Valid reports whether the row could be sent as-is. Rows with no email are
// treated as not yet filled in rather than broken.
func (r Row) Valid() bool {
	return r.TargetEmail != "" && ValidEmail(r.TargetEmail) && domain.ValidLevel(r.Level)
}

// Batch is a draft invite list plus the typed confirmation, mirroring what
// the invite form holds before submission.
type Batch struct {
	Rows         []Row  `json:"rows"`
	Confirmation string `json:"confirmation,omitempty"`
}

// RequiresConfirmation reports whether any row grants the owner level.
func (b Batch) RequiresConfirmation() bool {
	for _, r := range b.Rows {
		if r.Level == domain.LevelOwner {
			return true
		}
	}
	return false
}

// BlockedReason explains why the batch cannot be sent, or returns "" when
// it can. Any row with a malformed email blocks the whole batch even when
// other rows are fine.
func (b Batch) BlockedReason() string {
	filled := 0
	for i, r := range b.Rows {
		if r.TargetEmail == "" {
			continue
		}
		if !ValidEmail(r.TargetEmail) {
			return fmt.Sprintf("Row %d has an invalid email address.", i+1)
		}
		if !domain.ValidLevel(r.Level) {
			return fmt.Sprintf("Row %d has an unknown membership level.", i+1)
		}
		filled++
	}
	if filled == 0 {
		return "Please fill out at least one invite."
	}
	if b.RequiresConfirmation() && !confirmed(b.Confirmation) {
		return fmt.Sprintf("Inviting an owner requires typing %q to confirm.", ConfirmationPhrase)
	}
	if dup := firstDuplicate(b.Rows); dup != "" {
		return fmt.Sprintf("%s appears more than once.", dup)
	}
	return ""
}

// Submittable reports whether the batch passes the gate.
func (b Batch) Submittable() bool {
	return b.BlockedReason() == ""
}

// Sendable returns the rows that will actually be sent, dropping the blank
// trailing rows the form keeps around.
func (b Batch) Sendable() []Row {
	var out []Row
	for _, r := range b.Rows {
		if r.TargetEmail != "" {
			out = append(out, r)
		}
	}
	return out
}

func confirmed(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), ConfirmationPhrase)
}

func firstDuplicate(rows []Row) string {
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		if r.TargetEmail == "" {
			continue
		}
		key := strings.ToLower(r.TargetEmail)
		if seen[key] {
			return r.TargetEmail
		}
		seen[key] = true
	}
	return ""
}
