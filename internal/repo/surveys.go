package repo

import (
	"context"
	"database/sql"
	"strings"

	"canvass/internal/domain"
)

const surveyColumns = `id,org_id,name,COALESCE(description,''),kind,status,COALESCE(title,''),questions_json,conditions_json,appearance_json,schedule,iteration_count,iteration_frequency_days,linked_flag_key,created_by,created_at,updated_at,launched_at,stopped_at`

func scanSurvey(scan func(dest ...any) error) (domain.Survey, error) {
	var s domain.Survey
	var conditions, appearance, flag, launched, stopped sql.NullString
	err := scan(&s.ID, &s.OrgID, &s.Name, &s.Description, &s.Kind, &s.Status, &s.Title,
		&s.QuestionsJSON, &conditions, &appearance, &s.Schedule,
		&s.IterationCount, &s.IterationFrequencyDays, &flag,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt, &launched, &stopped)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	if conditions.Valid {
		s.ConditionsJSON = &conditions.String
	}
	if appearance.Valid {
		s.AppearanceJSON = &appearance.String
	}
	if flag.Valid {
		s.LinkedFlagKey = &flag.String
	}
	if launched.Valid {
		s.LaunchedAt = &launched.String
	}
	if stopped.Valid {
		s.StoppedAt = &stopped.String
	}
	return s, nil
}

func (r Repo) InsertSurvey(ctx context.Context, tx *sql.Tx, s domain.Survey) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO surveys(id,org_id,name,description,kind,status,title,questions_json,conditions_json,appearance_json,schedule,iteration_count,iteration_frequency_days,linked_flag_key,created_by,created_at,updated_at,launched_at,stopped_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.OrgID, s.Name, nullable(s.Description), s.Kind, s.Status, nullable(s.Title),
		s.QuestionsJSON, nullableStringPtr(s.ConditionsJSON), nullableStringPtr(s.AppearanceJSON),
		s.Schedule, s.IterationCount, s.IterationFrequencyDays, nullableStringPtr(s.LinkedFlagKey),
		s.CreatedBy, s.CreatedAt, s.UpdatedAt, nullableStringPtr(s.LaunchedAt), nullableStringPtr(s.StoppedAt))
	return err
}

func (r Repo) GetSurvey(ctx context.Context, id string) (domain.Survey, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+surveyColumns+` FROM surveys WHERE id=?`, id)
	return scanSurvey(row.Scan)
}

// UpdateSurvey rewrites the mutable columns of a survey row.
func (r Repo) UpdateSurvey(ctx context.Context, tx *sql.Tx, s domain.Survey) error {
	res, err := tx.ExecContext(ctx, `UPDATE surveys SET name=?,description=?,kind=?,status=?,title=?,questions_json=?,conditions_json=?,appearance_json=?,schedule=?,iteration_count=?,iteration_frequency_days=?,linked_flag_key=?,updated_at=?,launched_at=?,stopped_at=? WHERE id=?`,
		s.Name, nullable(s.Description), s.Kind, s.Status, nullable(s.Title),
		s.QuestionsJSON, nullableStringPtr(s.ConditionsJSON), nullableStringPtr(s.AppearanceJSON),
		s.Schedule, s.IterationCount, s.IterationFrequencyDays, nullableStringPtr(s.LinkedFlagKey),
		s.UpdatedAt, nullableStringPtr(s.LaunchedAt), nullableStringPtr(s.StoppedAt), s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteSurvey(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM surveys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SurveyFilters narrow ListSurveys. Cursor fields page on (created_at,id)
// descending.
type SurveyFilters struct {
	OrgID           string
	Status          string
	Kind            string
	Search          string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListSurveys(ctx context.Context, f SurveyFilters) ([]domain.Survey, error) {
	clauses := []string{"org_id=?"}
	args := []any{f.OrgID}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Kind != "" {
		clauses = append(clauses, "kind=?")
		args = append(args, f.Kind)
	}
	if f.Search != "" {
		clauses = append(clauses, "name LIKE ?")
		args = append(args, "%"+f.Search+"%")
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	query := `SELECT ` + surveyColumns + ` FROM surveys WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Survey
	for rows.Next() {
		s, err := scanSurvey(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) CountSurveysByStatus(ctx context.Context, orgID string) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM surveys WHERE org_id=? GROUP BY status`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
