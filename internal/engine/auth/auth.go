package auth

import (
	"context"
	"database/sql"
	"fmt"

	"canvass/internal/domain"
)

// ForbiddenError indicates the caller's membership level is too low.
type ForbiddenError struct {
	Required int
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("%s level required", domain.LevelName(e.Required))
}

// NotAMemberError indicates the caller has no membership in the org.
type NotAMemberError struct {
	OrgID string
}

func (e NotAMemberError) Error() string {
	return fmt.Sprintf("not a member of organization %s", e.OrgID)
}

// Service provides membership-level checks backed by SQL. Mutating
// operations pass their open transaction so the check and the write see
// the same state; read paths pass a nil tx.
type Service struct {
	DB *sql.DB
}

func (s Service) MemberLevel(ctx context.Context, tx *sql.Tx, orgID, userID string) (int, error) {
	query := s.DB.QueryRowContext
	if tx != nil {
		query = tx.QueryRowContext
	}
	var level int
	err := query(ctx, `SELECT level FROM org_memberships WHERE org_id=? AND user_id=?`, orgID, userID).Scan(&level)
	if err == sql.ErrNoRows {
		return 0, NotAMemberError{OrgID: orgID}
	}
	return level, err
}

// RequireLevel fails with ForbiddenError when the user's level is below min.
func (s Service) RequireLevel(ctx context.Context, tx *sql.Tx, orgID, userID string, min int) (int, error) {
	level, err := s.MemberLevel(ctx, tx, orgID, userID)
	if err != nil {
		return 0, err
	}
	if level < min {
		return level, ForbiddenError{Required: min}
	}
	return level, nil
}
