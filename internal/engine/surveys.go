package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canvass/internal/domain"
	"canvass/internal/events"
	"canvass/internal/survey"
)

const (
	SurveyStatusDraft    = "draft"
	SurveyStatusLaunched = "launched"
	SurveyStatusStopped  = "stopped"
	SurveyStatusArchived = "archived"
)

// GateError carries the human-readable reason a draft failed the
// submission gate.
type GateError struct {
	Reason string
}

func (e GateError) Error() string { return e.Reason }

func checkSurveyTransition(from, to string) error {
	allowed := map[string][]string{
		SurveyStatusDraft:    {SurveyStatusLaunched, SurveyStatusArchived},
		SurveyStatusLaunched: {SurveyStatusStopped},
		SurveyStatusStopped:  {SurveyStatusLaunched, SurveyStatusArchived},
		SurveyStatusArchived: {},
	}
	for _, next := range allowed[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("invalid survey transition %s -> %s", from, to)
}

// DraftOf rebuilds the editable draft from a stored survey row.
func DraftOf(s domain.Survey) (survey.Draft, error) {
	d := survey.Draft{
		Name:                   s.Name,
		Description:            s.Description,
		Kind:                   survey.SurveyKind(s.Kind),
		Title:                  s.Title,
		Schedule:               survey.ScheduleKind(s.Schedule),
		IterationCount:         s.IterationCount,
		IterationFrequencyDays: s.IterationFrequencyDays,
	}
	if s.LinkedFlagKey != nil {
		d.LinkedFlagKey = *s.LinkedFlagKey
	}
	if s.QuestionsJSON != "" {
		if err := json.Unmarshal([]byte(s.QuestionsJSON), &d.Questions); err != nil {
			return d, fmt.Errorf("decode questions: %w", err)
		}
	}
	if s.ConditionsJSON != nil {
		var c survey.Conditions
		if err := json.Unmarshal([]byte(*s.ConditionsJSON), &c); err != nil {
			return d, fmt.Errorf("decode conditions: %w", err)
		}
		d.Conditions = &c
	}
	if s.AppearanceJSON != nil {
		var a survey.Appearance
		if err := json.Unmarshal([]byte(*s.AppearanceJSON), &a); err != nil {
			return d, fmt.Errorf("decode appearance: %w", err)
		}
		d.Appearance = &a
	}
	return d, nil
}

func (e Engine) applyDraft(s *domain.Survey, d survey.Draft) error {
	d = d.Normalized()
	questions, err := json.Marshal(d.Questions)
	if err != nil {
		return fmt.Errorf("encode questions: %w", err)
	}
	s.Name = d.Name
	s.Description = d.Description
	s.Kind = string(d.Kind)
	s.Title = d.Title
	s.QuestionsJSON = string(questions)
	s.Schedule = string(d.Schedule)
	s.IterationCount = d.IterationCount
	s.IterationFrequencyDays = d.IterationFrequencyDays
	s.ConditionsJSON = nil
	if d.Conditions != nil {
		data, err := json.Marshal(d.Conditions)
		if err != nil {
			return fmt.Errorf("encode conditions: %w", err)
		}
		str := string(data)
		s.ConditionsJSON = &str
	}
	s.AppearanceJSON = nil
	if d.Appearance != nil {
		data, err := json.Marshal(d.Appearance)
		if err != nil {
			return fmt.Errorf("encode appearance: %w", err)
		}
		str := string(data)
		s.AppearanceJSON = &str
	}
	s.LinkedFlagKey = nil
	if d.LinkedFlagKey != "" {
		key := d.LinkedFlagKey
		s.LinkedFlagKey = &key
	}
	return nil
}

// CreateSurvey persists a submitted draft. The submission gate must pass;
// the new survey starts in draft status until launched.
func (e Engine) CreateSurvey(ctx context.Context, orgID string, d survey.Draft, actorID string) (domain.Survey, error) {
	d = d.Normalized()
	if reason := d.BlockedReason(); reason != "" {
		return domain.Survey{}, GateError{Reason: reason}
	}
	now := e.now().UTC().Format(time.RFC3339)
	s := domain.Survey{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Status:    SurveyStatusDraft,
		CreatedBy: actorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.applyDraft(&s, d); err != nil {
		return domain.Survey{}, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Survey{}, err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, orgID, actorID, domain.LevelMember); err != nil {
		return domain.Survey{}, err
	}
	if err := e.Repo.InsertSurvey(ctx, tx, s); err != nil {
		return domain.Survey{}, err
	}
	if err := e.Events.Append(ctx, tx, "survey.created", orgID, "survey", s.ID, actorID, events.EventPayload{
		"name": s.Name, "kind": s.Kind, "schedule": s.Schedule,
	}); err != nil {
		return domain.Survey{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Survey{}, err
	}
	return s, nil
}

// SurveyPatches bundles the three patch shapes a single update may carry.
type SurveyPatches struct {
	Fields     *survey.Patch
	Conditions *survey.ConditionsPatch
	Appearance *survey.AppearancePatch
}

// UpdateSurvey applies patches to a stored survey and re-runs the gate.
// Archived surveys are immutable.
func (e Engine) UpdateSurvey(ctx context.Context, id string, p SurveyPatches, actorID string) (domain.Survey, error) {
	s, err := e.Repo.GetSurvey(ctx, id)
	if err != nil {
		return domain.Survey{}, err
	}
	if s.Status == SurveyStatusArchived {
		return domain.Survey{}, errors.New("archived surveys cannot be edited")
	}
	before, err := DraftOf(s)
	if err != nil {
		return domain.Survey{}, err
	}
	after := before
	if p.Fields != nil {
		after = after.Apply(*p.Fields)
	}
	if p.Conditions != nil {
		after = after.ApplyConditions(*p.Conditions)
	}
	if p.Appearance != nil {
		after = after.ApplyAppearance(*p.Appearance)
	}
	if reason := after.BlockedReason(); reason != "" {
		return domain.Survey{}, GateError{Reason: reason}
	}
	if err := e.applyDraft(&s, after); err != nil {
		return domain.Survey{}, err
	}
	s.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Survey{}, err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, s.OrgID, actorID, domain.LevelMember); err != nil {
		return domain.Survey{}, err
	}
	if err := e.Repo.UpdateSurvey(ctx, tx, s); err != nil {
		return domain.Survey{}, err
	}
	changes := survey.Describe(before, after)
	if len(changes) > 0 {
		if err := e.Events.Append(ctx, tx, "survey.updated", s.OrgID, "survey", s.ID, actorID, events.EventPayload{
			"changes": changes,
		}); err != nil {
			return domain.Survey{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Survey{}, err
	}
	return s, nil
}

// SetSurveyStatus moves a survey through its lifecycle, guarding
// transitions and stamping launched_at/stopped_at.
func (e Engine) SetSurveyStatus(ctx context.Context, id, status, actorID string) (domain.Survey, error) {
	s, err := e.Repo.GetSurvey(ctx, id)
	if err != nil {
		return domain.Survey{}, err
	}
	min := domain.LevelMember
	if status == SurveyStatusArchived {
		min = domain.LevelAdmin
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Survey{}, err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, s.OrgID, actorID, min); err != nil {
		return domain.Survey{}, err
	}
	if err := checkSurveyTransition(s.Status, status); err != nil {
		return domain.Survey{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	previous := s.Status
	s.Status = status
	s.UpdatedAt = now
	switch status {
	case SurveyStatusLaunched:
		s.LaunchedAt = &now
		s.StoppedAt = nil
	case SurveyStatusStopped:
		s.StoppedAt = &now
	}

	if err := e.Repo.UpdateSurvey(ctx, tx, s); err != nil {
		return domain.Survey{}, err
	}
	evtType := "survey." + status
	if status == SurveyStatusLaunched && previous == SurveyStatusStopped {
		evtType = "survey.resumed"
	}
	if err := e.Events.Append(ctx, tx, evtType, s.OrgID, "survey", s.ID, actorID, events.EventPayload{
		"previous_status": previous,
	}); err != nil {
		return domain.Survey{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Survey{}, err
	}
	return s, nil
}

// DeleteSurvey removes a survey. Requires admin level.
func (e Engine) DeleteSurvey(ctx context.Context, id, actorID string) error {
	s, err := e.Repo.GetSurvey(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := e.Auth.RequireLevel(ctx, tx, s.OrgID, actorID, domain.LevelAdmin); err != nil {
		return err
	}
	if err := e.Repo.DeleteSurvey(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "survey.deleted", s.OrgID, "survey", s.ID, actorID, events.EventPayload{
		"name": s.Name,
	}); err != nil {
		return err
	}
	return tx.Commit()
}
