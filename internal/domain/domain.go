package domain

// Membership levels are ordinal: a higher value strictly contains the
// capabilities of a lower one.
const (
	LevelMember = 1
	LevelAdmin  = 8
	LevelOwner  = 15
)

// LevelName maps an ordinal membership level to its display name.
func LevelName(level int) string {
	switch level {
	case LevelOwner:
		return "owner"
	case LevelAdmin:
		return "admin"
	case LevelMember:
		return "member"
	default:
		return "unknown"
	}
}

// ValidLevel reports whether level is one of the three membership levels.
func ValidLevel(level int) bool {
	return level == LevelMember || level == LevelAdmin || level == LevelOwner
}

type Organization struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type User struct {
	ID        string `json:"id"`
	Email     string `json:"email" format:"email"`
	FirstName string `json:"first_name,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Membership struct {
	OrgID     string `json:"org_id"`
	UserID    string `json:"user_id"`
	Level     int    `json:"level" enum:"1,8,15"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	JoinedAt  string `json:"joined_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Invite struct {
	ID            string  `json:"id"`
	OrgID         string  `json:"org_id"`
	TargetEmail   string  `json:"target_email"`
	FirstName     string  `json:"first_name,omitempty"`
	Level         int     `json:"level" enum:"1,8,15"`
	Message       string  `json:"message,omitempty"`
	PrivateAccess *string `json:"private_access_json,omitempty"`
	CreatedBy     string  `json:"created_by"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	ExpiresAt     string  `json:"expires_at" format:"date-time"`
}

// ProjectAccess is a per-project override granted on top of an org membership.
type ProjectAccess struct {
	OrgID     string `json:"org_id"`
	ProjectID string `json:"project_id"`
	UserID    string `json:"user_id"`
	Level     int    `json:"level" enum:"1,8,15"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Survey struct {
	ID                     string  `json:"id"`
	OrgID                  string  `json:"org_id"`
	Name                   string  `json:"name"`
	Description            string  `json:"description,omitempty"`
	Kind                   string  `json:"kind" enum:"popover,widget,api,announcement"`
	Status                 string  `json:"status" enum:"draft,launched,stopped,archived"`
	Title                  string  `json:"title,omitempty"`
	QuestionsJSON          string  `json:"questions_json"`
	ConditionsJSON         *string `json:"conditions_json,omitempty"`
	AppearanceJSON         *string `json:"appearance_json,omitempty"`
	Schedule               string  `json:"schedule" enum:"once,recurring,always"`
	IterationCount         int     `json:"iteration_count"`
	IterationFrequencyDays int     `json:"iteration_frequency_days"`
	LinkedFlagKey          *string `json:"linked_flag_key,omitempty"`
	CreatedBy              string  `json:"created_by"`
	CreatedAt              string  `json:"created_at" format:"date-time"`
	UpdatedAt              string  `json:"updated_at" format:"date-time"`
	LaunchedAt             *string `json:"launched_at,omitempty" format:"date-time"`
	StoppedAt              *string `json:"stopped_at,omitempty" format:"date-time"`
}

type OAuthApp struct {
	ID           string `json:"id"`
	OrgID        string `json:"org_id"`
	Name         string `json:"name"`
	ClientID     string `json:"client_id"`
	SecretHash   string `json:"secret_hash"`
	RedirectURIs string `json:"redirect_uris_json"`
	CreatedBy    string `json:"created_by"`
	CreatedAt    string `json:"created_at" format:"date-time"`
}

type PersonalAPIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Integration struct {
	ID         string `json:"id"`
	OrgID      string `json:"org_id"`
	Kind       string `json:"kind"`
	ConfigJSON string `json:"config_json"`
	CreatedBy  string `json:"created_by"`
	CreatedAt  string `json:"created_at" format:"date-time"`
	UpdatedAt  string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
