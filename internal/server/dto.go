package server

import (
	"encoding/json"

	"canvass/internal/config"
	"canvass/internal/domain"
	"canvass/internal/engine"
	"canvass/internal/invite"
	"canvass/internal/survey"
)

// Request payloads

type CreateOrgRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type UpdateOrgRequest struct {
	Name *string `json:"name,omitempty"`
}

type SetMemberLevelRequest struct {
	Level int `json:"level" enum:"1,8,15"`
}

type CreateInvitesRequest struct {
	Rows         []invite.Row `json:"rows"`
	Confirmation string       `json:"confirmation,omitempty"`
}

type CreateSurveyRequest struct {
	Name                   string              `json:"name"`
	Description            *string             `json:"description,omitempty"`
	Kind                   *survey.SurveyKind  `json:"kind,omitempty" enum:"popover,widget,api,announcement"`
	Title                  *string             `json:"title,omitempty"`
	Questions              []survey.Question   `json:"questions,omitempty"`
	Conditions             *survey.Conditions  `json:"conditions,omitempty"`
	Appearance             *survey.Appearance  `json:"appearance,omitempty"`
	Schedule               *survey.ScheduleKind `json:"schedule,omitempty" enum:"once,recurring,always"`
	IterationCount         *int                `json:"iteration_count,omitempty"`
	IterationFrequencyDays *int                `json:"iteration_frequency_days,omitempty"`
	LinkedFlagKey          *string             `json:"linked_flag_key,omitempty"`
}

func (r CreateSurveyRequest) toDraft() survey.Draft {
	d := survey.NewDraft()
	d.Name = r.Name
	if r.Description != nil {
		d.Description = *r.Description
	}
	if r.Kind != nil {
		d.Kind = *r.Kind
	}
	if r.Title != nil {
		d.Title = *r.Title
	}
	d.Questions = r.Questions
	d.Conditions = r.Conditions
	d.Appearance = r.Appearance
	if r.Schedule != nil {
		d.Schedule = *r.Schedule
	}
	if r.IterationCount != nil {
		d.IterationCount = *r.IterationCount
	}
	if r.IterationFrequencyDays != nil {
		d.IterationFrequencyDays = *r.IterationFrequencyDays
	}
	if r.LinkedFlagKey != nil {
		d.LinkedFlagKey = *r.LinkedFlagKey
	}
	return d
}

type UpdateSurveyRequest struct {
	survey.Patch
	Conditions *survey.ConditionsPatch `json:"conditions,omitempty"`
	Appearance *survey.AppearancePatch `json:"appearance,omitempty"`
}

type SetSurveyStatusRequest struct {
	Status string `json:"status" enum:"launched,stopped,archived"`
}

type CreateOAuthAppRequest struct {
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

type UpdateOAuthAppRequest struct {
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type CreateIntegrationRequest struct {
	Kind   string         `json:"kind"`
	Config map[string]any `json:"config,omitempty"`
}

type UpdateIntegrationRequest struct {
	Config map[string]any `json:"config"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	OrgID  string `json:"org_id,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

// Response payloads

type OrgResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type MemberResponse struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	Level     int    `json:"level" enum:"1,8,15"`
	LevelName string `json:"level_name" enum:"member,admin,owner"`
	JoinedAt  string `json:"joined_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
	// Access lists per-project overrides on top of the org level. Empty
	// means no access configured.
	Access []domain.ProjectAccess `json:"access,omitempty"`
}

type InviteResponse struct {
	ID            string                 `json:"id"`
	OrgID         string                 `json:"org_id"`
	TargetEmail   string                 `json:"target_email"`
	FirstName     string                 `json:"first_name,omitempty"`
	Level         int                    `json:"level" enum:"1,8,15"`
	LevelName     string                 `json:"level_name" enum:"member,admin,owner"`
	Message       string                 `json:"message,omitempty"`
	PrivateAccess []domain.ProjectAccess `json:"private_access,omitempty"`
	CreatedBy     string                 `json:"created_by"`
	CreatedAt     string                 `json:"created_at" format:"date-time"`
	ExpiresAt     string                 `json:"expires_at" format:"date-time"`
}

type SurveyResponse struct {
	ID                     string             `json:"id"`
	OrgID                  string             `json:"org_id"`
	Status                 string             `json:"status" enum:"draft,launched,stopped,archived"`
	Name                   string             `json:"name"`
	Description            string             `json:"description,omitempty"`
	Kind                   string             `json:"kind" enum:"popover,widget,api,announcement"`
	Title                  string             `json:"title,omitempty"`
	Questions              []survey.Question  `json:"questions"`
	Conditions             *survey.Conditions `json:"conditions,omitempty"`
	Appearance             *survey.Appearance `json:"appearance,omitempty"`
	Schedule               string             `json:"schedule" enum:"once,recurring,always"`
	IterationCount         int                `json:"iteration_count"`
	IterationFrequencyDays int                `json:"iteration_frequency_days"`
	LinkedFlagKey          string             `json:"linked_flag_key,omitempty"`
	CreatedBy              string             `json:"created_by"`
	CreatedAt              string             `json:"created_at" format:"date-time"`
	UpdatedAt              string             `json:"updated_at" format:"date-time"`
	LaunchedAt             *string            `json:"launched_at,omitempty" format:"date-time"`
	StoppedAt              *string            `json:"stopped_at,omitempty" format:"date-time"`
}

// ResponseCountResponse reports how many response events the survey has
// accumulated.
type ResponseCountResponse struct {
	SurveyID  string `json:"survey_id"`
	Responses int    `json:"responses"`
}

type GateResponse struct {
	Submittable bool   `json:"submittable"`
	Reason      string `json:"reason,omitempty"`
}

type OAuthAppResponse struct {
	ID           string   `json:"id"`
	OrgID        string   `json:"org_id"`
	Name         string   `json:"name"`
	ClientID     string   `json:"client_id"`
	RedirectURIs []string `json:"redirect_uris"`
	CreatedBy    string   `json:"created_by"`
	CreatedAt    string   `json:"created_at" format:"date-time"`
}

type CreatedOAuthAppResponse struct {
	OAuthAppResponse
	// ClientSecret is only returned on creation; a hash is stored.
	ClientSecret string `json:"client_secret"`
}

type RotatedSecretResponse struct {
	ClientSecret string `json:"client_secret"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type CreatedAPIKeyResponse struct {
	APIKeyResponse
	// Key is only returned on creation; a hash is stored.
	Key string `json:"key"`
}

type IntegrationResponse struct {
	ID        string         `json:"id"`
	OrgID     string         `json:"org_id"`
	Kind      string         `json:"kind"`
	Config    map[string]any `json:"config,omitempty"`
	CreatedBy string         `json:"created_by"`
	CreatedAt string         `json:"created_at" format:"date-time"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type WhoAmIResponse struct {
	UserID    string `json:"user_id"`
	OrgID     string `json:"org_id,omitempty"`
	Level     int    `json:"level,omitempty"`
	LevelName string `json:"level_name,omitempty"`
	Source    string `json:"source"`
}

type OrgConfigResponse struct {
	Org     orgConfigSection     `json:"org"`
	Surveys surveysConfigSection `json:"surveys"`
	Invites invitesConfigSection `json:"invites"`
}

type orgConfigSection struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type surveysConfigSection struct {
	DefaultKind     string            `json:"default_kind"`
	DefaultSchedule string            `json:"default_schedule"`
	Appearance      map[string]string `json:"appearance,omitempty"`
	DeviceTypes     []string          `json:"device_types,omitempty"`
}

type invitesConfigSection struct {
	ExpiryDays   int `json:"expiry_days"`
	DefaultLevel int `json:"default_level,omitempty"`
}

type paginatedSurveys struct {
	Items      []SurveyResponse `json:"items"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func orgResponse(o domain.Organization) OrgResponse {
	return OrgResponse(o)
}

func memberResponse(m domain.Membership) MemberResponse {
	return MemberResponse{
		UserID:    m.UserID,
		Email:     m.Email,
		FirstName: m.FirstName,
		Level:     m.Level,
		LevelName: domain.LevelName(m.Level),
		JoinedAt:  m.JoinedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func inviteResponse(inv domain.Invite) InviteResponse {
	var access []domain.ProjectAccess
	if inv.PrivateAccess != nil && *inv.PrivateAccess != "" {
		_ = json.Unmarshal([]byte(*inv.PrivateAccess), &access)
	}
	return InviteResponse{
		ID:            inv.ID,
		OrgID:         inv.OrgID,
		TargetEmail:   inv.TargetEmail,
		FirstName:     inv.FirstName,
		Level:         inv.Level,
		LevelName:     domain.LevelName(inv.Level),
		Message:       inv.Message,
		PrivateAccess: access,
		CreatedBy:     inv.CreatedBy,
		CreatedAt:     inv.CreatedAt,
		ExpiresAt:     inv.ExpiresAt,
	}
}

func surveyResponse(s domain.Survey) SurveyResponse {
	d, _ := engine.DraftOf(s)
	return SurveyResponse{
		ID:                     s.ID,
		OrgID:                  s.OrgID,
		Status:                 s.Status,
		Name:                   d.Name,
		Description:            d.Description,
		Kind:                   string(d.Kind),
		Title:                  d.Title,
		Questions:              nonNilSlice(d.Questions),
		Conditions:             d.Conditions,
		Appearance:             d.Appearance,
		Schedule:               string(d.Schedule),
		IterationCount:         d.IterationCount,
		IterationFrequencyDays: d.IterationFrequencyDays,
		LinkedFlagKey:          d.LinkedFlagKey,
		CreatedBy:              s.CreatedBy,
		CreatedAt:              s.CreatedAt,
		UpdatedAt:              s.UpdatedAt,
		LaunchedAt:             s.LaunchedAt,
		StoppedAt:              s.StoppedAt,
	}
}

func oauthAppResponse(a domain.OAuthApp) OAuthAppResponse {
	return OAuthAppResponse{
		ID:           a.ID,
		OrgID:        a.OrgID,
		Name:         a.Name,
		ClientID:     a.ClientID,
		RedirectURIs: nonNilSlice(decodeStringSlice(&a.RedirectURIs)),
		CreatedBy:    a.CreatedBy,
		CreatedAt:    a.CreatedAt,
	}
}

func apiKeyResponse(k domain.PersonalAPIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func integrationResponse(in domain.Integration) IntegrationResponse {
	return IntegrationResponse{
		ID:        in.ID,
		OrgID:     in.OrgID,
		Kind:      in.Kind,
		Config:    decodeJSONMap(&in.ConfigJSON),
		CreatedBy: in.CreatedBy,
		CreatedAt: in.CreatedAt,
		UpdatedAt: in.UpdatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		OrgID:      e.OrgID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(&e.Payload),
	}
}

func configResponse(cfg *config.Config) OrgConfigResponse {
	res := OrgConfigResponse{
		Org: orgConfigSection{
			ID:   cfg.Org.ID,
			Name: cfg.Org.Name,
		},
		Surveys: surveysConfigSection{
			DefaultKind:     cfg.Surveys.DefaultKind,
			DefaultSchedule: cfg.Surveys.DefaultSchedule,
			DeviceTypes:     cfg.Surveys.DeviceTypes,
		},
		Invites: invitesConfigSection{
			ExpiryDays:   cfg.InviteExpiryDays(),
			DefaultLevel: cfg.Invites.DefaultLevel,
		},
	}
	appearance := map[string]string{}
	if v := cfg.Surveys.Appearance.ButtonColor; v != "" {
		appearance["button_color"] = v
	}
	if v := cfg.Surveys.Appearance.ButtonTextColor; v != "" {
		appearance["button_text_color"] = v
	}
	if v := cfg.Surveys.Appearance.BackgroundColor; v != "" {
		appearance["background_color"] = v
	}
	if v := cfg.Surveys.Appearance.Position; v != "" {
		appearance["position"] = v
	}
	if len(appearance) > 0 {
		res.Surveys.Appearance = appearance
	}
	return res
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func decodeStringSlice(raw *string) []string {
	if raw == nil || *raw == "" {
		return nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(*raw), &arr); err != nil {
		return nil
	}
	return arr
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
