package canvasssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Canvass HTTP API client.
type Client struct {
	BaseURL     string
	OrgID       string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, orgID string) *Client {
	return &Client{
		BaseURL: baseURL,
		OrgID:   orgID,
		Timeout: 10 * time.Second,
	}
}

// Survey represents the API survey model (partial).
type Survey struct {
	ID         string  `json:"id"`
	OrgID      string  `json:"org_id"`
	Status     string  `json:"status"`
	Name       string  `json:"name"`
	Kind       string  `json:"kind"`
	Schedule   string  `json:"schedule"`
	CreatedBy  string  `json:"created_by"`
	CreatedAt  string  `json:"created_at"`
	LaunchedAt *string `json:"launched_at,omitempty"`
	StoppedAt  *string `json:"stopped_at,omitempty"`
}

// Gate reports whether a survey would be accepted for launch.
type Gate struct {
	Submittable bool   `json:"submittable"`
	Reason      string `json:"reason,omitempty"`
}

// Member represents an organization member.
type Member struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email,omitempty"`
	Level     int    `json:"level"`
	LevelName string `json:"level_name"`
	JoinedAt  string `json:"joined_at"`
}

// Invite represents a pending invite.
type Invite struct {
	ID          string `json:"id"`
	OrgID       string `json:"org_id"`
	TargetEmail string `json:"target_email"`
	Level       int    `json:"level"`
	LevelName   string `json:"level_name"`
	Message     string `json:"message,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

// InviteRow is one row of an invite batch.
type InviteRow struct {
	TargetEmail string `json:"target_email"`
	FirstName   string `json:"first_name,omitempty"`
	Level       int    `json:"level,omitempty"`
	Message     string `json:"message,omitempty"`
}

// OAuthApp represents an OAuth application. ClientSecret is only set on
// the response to a create or rotate call.
type OAuthApp struct {
	ID           string   `json:"id"`
	OrgID        string   `json:"org_id"`
	Name         string   `json:"name"`
	ClientID     string   `json:"client_id"`
	RedirectURIs []string `json:"redirect_uris"`
	ClientSecret string   `json:"client_secret,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	OrgID      string         `json:"org_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses, decoding the error envelope when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedSurveys wraps survey list responses with cursors.
type PaginatedSurveys struct {
	Items      []Survey `json:"items"`
	NextCursor string   `json:"next_cursor"`
}

// PaginatedEvents wraps event list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateSurvey creates a draft survey. The draft argument is marshalled
// as the request body, so it can be a map or any struct matching the API.
func (c *Client) CreateSurvey(ctx context.Context, draft any) (Survey, error) {
	var resp Survey
	err := c.do(ctx, http.MethodPost, c.orgPath("surveys"), draft, &resp)
	return resp, err
}

// Surveys returns surveys in the organization.
func (c *Client) Surveys(ctx context.Context, limit int) ([]Survey, error) {
	page, err := c.SurveysPage(ctx, limit, "")
	return page.Items, err
}

// SurveysPage returns a paginated survey listing.
func (c *Client) SurveysPage(ctx context.Context, limit int, cursor string) (PaginatedSurveys, error) {
	var resp PaginatedSurveys
	err := c.do(ctx, http.MethodGet, c.listEndpoint("surveys", limit, cursor), nil, &resp)
	return resp, err
}

// GetSurvey fetches a survey by id.
func (c *Client) GetSurvey(ctx context.Context, id string) (Survey, error) {
	var resp Survey
	endpoint := c.orgPath(fmt.Sprintf("surveys/%s", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// SetSurveyStatus launches, stops or archives a survey.
func (c *Client) SetSurveyStatus(ctx context.Context, id, status string) (Survey, error) {
	var resp Survey
	endpoint := c.orgPath(fmt.Sprintf("surveys/%s/status", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"status": status}, &resp)
	return resp, err
}

// SurveyGate reports whether a survey would pass the submission gate.
func (c *Client) SurveyGate(ctx context.Context, id string) (Gate, error) {
	var resp Gate
	endpoint := c.orgPath(fmt.Sprintf("surveys/%s/gate", url.PathEscape(id)))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Members returns organization members.
func (c *Client) Members(ctx context.Context) ([]Member, error) {
	var resp []Member
	err := c.do(ctx, http.MethodGet, c.orgPath("members"), nil, &resp)
	return resp, err
}

// SetMemberLevel changes a member's level.
func (c *Client) SetMemberLevel(ctx context.Context, userID string, level int) (Member, error) {
	var resp Member
	endpoint := c.orgPath(fmt.Sprintf("members/%s", url.PathEscape(userID)))
	err := c.do(ctx, http.MethodPatch, endpoint, map[string]any{"level": level}, &resp)
	return resp, err
}

// CreateInvites sends a batch of invites. A non-empty confirmation phrase
// is required when any row grants the owner level.
func (c *Client) CreateInvites(ctx context.Context, rows []InviteRow, confirmation string) ([]Invite, error) {
	body := map[string]any{
		"rows":         rows,
		"confirmation": confirmation,
	}
	var resp []Invite
	err := c.do(ctx, http.MethodPost, c.orgPath("invites"), body, &resp)
	return resp, err
}

// Invites returns pending invites.
func (c *Client) Invites(ctx context.Context) ([]Invite, error) {
	var resp []Invite
	err := c.do(ctx, http.MethodGet, c.orgPath("invites"), nil, &resp)
	return resp, err
}

// AcceptInvite accepts an invite as the authenticated user.
func (c *Client) AcceptInvite(ctx context.Context, id string) (Member, error) {
	var resp Member
	endpoint := fmt.Sprintf("v0/invites/%s/accept", url.PathEscape(id))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CreateOAuthApp registers an OAuth application. The returned ClientSecret
// is shown once; only a hash is stored.
func (c *Client) CreateOAuthApp(ctx context.Context, name string, redirectURIs []string) (OAuthApp, error) {
	body := map[string]any{
		"name":          name,
		"redirect_uris": redirectURIs,
	}
	var resp OAuthApp
	err := c.do(ctx, http.MethodPost, c.orgPath("apps"), body, &resp)
	return resp, err
}

// OAuthApps returns registered OAuth applications.
func (c *Client) OAuthApps(ctx context.Context) ([]OAuthApp, error) {
	var resp []OAuthApp
	err := c.do(ctx, http.MethodGet, c.orgPath("apps"), nil, &resp)
	return resp, err
}

// RotateOAuthAppSecret replaces an application's secret and returns the
// new plaintext value.
func (c *Client) RotateOAuthAppSecret(ctx context.Context, id string) (string, error) {
	var resp struct {
		ClientSecret string `json:"client_secret"`
	}
	endpoint := c.orgPath(fmt.Sprintf("apps/%s/rotate-secret", url.PathEscape(id)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp.ClientSecret, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, c.listEndpoint("events", limit, cursor), nil, &resp)
	return resp, err
}

func (c *Client) listEndpoint(resource string, limit int, cursor string) string {
	endpoint := c.orgPath(resource)
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	return endpoint
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) orgPath(p string) string {
	org := url.PathEscape(c.OrgID)
	return fmt.Sprintf("v0/orgs/%s/%s", org, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
