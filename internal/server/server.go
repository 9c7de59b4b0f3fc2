package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"canvass/internal/domain"
	"canvass/internal/engine"
	"canvass/internal/engine/auth"
	"canvass/internal/invite"
	"canvass/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"validation_failed"`
	Message string         `json:"message" example:"Please fill out at least one invite."`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"level\":15}"`
}

// apiError models the required error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the Canvass API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the requested envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Canvass API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerOrgs(group, cfg.Engine)
	registerMembers(group, cfg.Engine)
	registerInvites(group, cfg.Engine)
	registerSurveys(group, cfg.Engine)
	registerApps(group, cfg.Engine)
	registerKeys(group, cfg.Engine)
	registerIntegrations(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerDevAuth(group, cfg.Auth)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

	return router, nil
}

type requestKey struct{}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"required_level": fe.Required})
	}
	var nm auth.NotAMemberError
	if errors.As(err, &nm) {
		return newAPIError(http.StatusForbidden, "not_a_member", err.Error(), map[string]any{"org_id": nm.OrgID})
	}
	var ge engine.GateError
	if errors.As(err, &ge) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", ge.Reason, nil)
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "unique constraint"):
		return newAPIError(http.StatusConflict, "conflict", "already exists", nil)
	case strings.Contains(lowered, "transition"),
		strings.Contains(lowered, "archived surveys"),
		strings.Contains(lowered, "already a member"),
		strings.Contains(lowered, "pending invite"):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case strings.Contains(lowered, "expired"):
		return newAPIError(http.StatusGone, "invite_expired", msg, nil)
	case strings.Contains(lowered, "cannot") || strings.Contains(lowered, "only the owner"):
		return newAPIError(http.StatusForbidden, "forbidden", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

// requireLevel resolves the authenticated user and checks their membership
// level in the org. It returns the user id for use as the acting user.
func requireLevel(ctx context.Context, e engine.Engine, orgID string, min int) (string, huma.StatusError) {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return "", authErr
	}
	if _, err := e.RequireLevel(ctx, orgID, principal.UserID, min); err != nil {
		return "", handleError(err)
	}
	return principal.UserID, nil
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	open := map[string]bool{
		"/" + strings.TrimPrefix(path.Join(basePath, "health"), "/"):         true,
		"/" + strings.TrimPrefix(path.Join(basePath, "auth/dev/login"), "/"): true,
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if open[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Canvass API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerOrgs(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-org",
		Method:        http.MethodPost,
		Path:          "/orgs",
		Summary:       "Create organization",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateOrgRequest `json:"body"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		if input.Body.ID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "id is required", nil)
		}
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.InitOrg(ctx, input.Body.ID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-orgs",
		Method:      http.MethodGet,
		Path:        "/orgs",
		Summary:     "List organizations",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []OrgResponse `json:"body"`
	}, error) {
		if _, authErr := userIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListOrgs(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]OrgResponse, 0, len(items))
		for _, o := range items {
			res = append(res, orgResponse(o))
		}
		return &struct {
			Body []OrgResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}",
		Summary:     "Get organization",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		o, err := e.Repo.GetOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-org",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}",
		Summary:     "Update organization",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string           `path:"org_id"`
		Body  UpdateOrgRequest `json:"body"`
	}) (*struct {
		Body OrgResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelAdmin); authErr != nil {
			return nil, authErr
		}
		if input.Body.Name != nil {
			if err := e.Repo.UpdateOrgName(ctx, input.OrgID, *input.Body.Name); err != nil {
				return nil, handleError(err)
			}
		}
		o, err := e.Repo.GetOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgResponse `json:"body"`
		}{Body: orgResponse(o)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "org-status",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/status",
		Summary:     "Organization status",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		o, err := e.Repo.GetOrg(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		counts, err := e.Repo.CountSurveysByStatus(ctx, o.ID)
		if err != nil {
			return nil, handleError(err)
		}
		members, err := e.Repo.ListMembers(ctx, o.ID)
		if err != nil {
			return nil, handleError(err)
		}
		invites, err := e.Repo.ListInvites(ctx, o.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"org_id":          o.ID,
			"survey_counts":   counts,
			"member_count":    len(members),
			"pending_invites": len(invites),
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-org-config",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/config",
		Summary:     "Get organization config",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body OrgConfigResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		cfg, err := e.Repo.GetOrgConfig(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body OrgConfigResponse `json:"body"`
		}{Body: configResponse(cfg)}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/members",
		Summary:     "List members",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []MemberResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListMembers(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]MemberResponse, 0, len(items))
		for _, m := range items {
			mr := memberResponse(m)
			// A failed access lookup reads as "no access configured"
			// rather than failing the whole listing.
			if access, err := e.Repo.ListProjectAccess(ctx, input.OrgID, m.UserID); err == nil {
				mr.Access = access
			}
			res = append(res, mr)
		}
		return &struct {
			Body []MemberResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-member-level",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/members/{user_id}",
		Summary:     "Change a member's level",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID  string                `path:"org_id"`
		UserID string                `path:"user_id"`
		Body   SetMemberLevelRequest `json:"body"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.SetMemberLevel(ctx, input.OrgID, input.UserID, input.Body.Level, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "revoke-member-access",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/members/{user_id}/access/{project_id}",
		Summary:     "Drop a member's per-project access override",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID     string `path:"org_id"`
		UserID    string `path:"user_id"`
		ProjectID string `path:"project_id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RevokeProjectAccess(ctx, input.OrgID, input.ProjectID, input.UserID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-member",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/members/{user_id}",
		Summary:     "Remove a member",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		UserID string `path:"user_id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.RemoveMember(ctx, input.OrgID, input.UserID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerInvites(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-invites",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/invites",
		Summary:       "Send a batch of invites",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string               `path:"org_id"`
		Body  CreateInvitesRequest `json:"body"`
	}) (*struct {
		Body []InviteResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		batch := invite.Batch{Rows: input.Body.Rows, Confirmation: input.Body.Confirmation}
		sent, err := e.CreateInvites(ctx, input.OrgID, batch, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]InviteResponse, 0, len(sent))
		for _, inv := range sent {
			res = append(res, inviteResponse(inv))
		}
		return &struct {
			Body []InviteResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-invites",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/invites",
		Summary:     "List pending invites",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []InviteResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListInvites(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]InviteResponse, 0, len(items))
		for _, inv := range items {
			res = append(res, inviteResponse(inv))
		}
		return &struct {
			Body []InviteResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-invite",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/invites/{id}",
		Summary:     "Revoke a pending invite",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteInvite(ctx, input.OrgID, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "accept-invite",
		Method:      http.MethodPost,
		Path:        "/invites/{id}/accept",
		Summary:     "Accept an invite as the authenticated user",
		Errors: []int{
			http.StatusNotFound,
			http.StatusGone,
		},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body MemberResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AcceptInvite(ctx, input.ID, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body MemberResponse `json:"body"`
		}{Body: memberResponse(m)}, nil
	})
}

func registerSurveys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-survey",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/surveys",
		Summary:       "Create a survey",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string              `path:"org_id"`
		Body  CreateSurveyRequest `json:"body"`
	}) (*struct {
		Body SurveyResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateSurvey(ctx, input.OrgID, input.Body.toDraft(), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SurveyResponse `json:"body"`
		}{Body: surveyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-surveys",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/surveys",
		Summary:     "List surveys",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID  string `path:"org_id"`
		Status string `query:"status" enum:"draft,launched,stopped,archived"`
		Kind   string `query:"kind" enum:"popover,widget,api,announcement"`
		Search string `query:"search"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedSurveys `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		cursorCreated, cursorID, err := parseCompositeCursor(input.Cursor)
		if err != nil {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
		}
		items, err := e.Repo.ListSurveys(ctx, repo.SurveyFilters{
			OrgID:           input.OrgID,
			Status:          input.Status,
			Kind:            input.Kind,
			Search:          input.Search,
			Limit:           limit + 1,
			CursorCreatedAt: cursorCreated,
			CursorID:        cursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedSurveys{Items: []SurveyResponse{}}
		if len(items) > limit {
			resp.NextCursor = composeCursor(items[limit].CreatedAt, items[limit].ID)
			items = items[:limit]
		}
		for _, s := range items {
			resp.Items = append(resp.Items, surveyResponse(s))
		}
		return &struct {
			Body paginatedSurveys `json:"body"`
		}{Body: resp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-survey",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/surveys/{id}",
		Summary:     "Get survey",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct {
		Body SurveyResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		s, err := e.Repo.GetSurvey(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if s.OrgID != input.OrgID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "survey not found in org", nil)
		}
		return &struct {
			Body SurveyResponse `json:"body"`
		}{Body: surveyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-survey-gate",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/surveys/{id}/gate",
		Summary:     "Check whether the survey passes the submission gate",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct {
		Body GateResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		s, err := e.Repo.GetSurvey(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if s.OrgID != input.OrgID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "survey not found in org", nil)
		}
		d, err := engine.DraftOf(s)
		if err != nil {
			return nil, handleError(err)
		}
		reason := d.BlockedReason()
		return &struct {
			Body GateResponse `json:"body"`
		}{Body: GateResponse{Submittable: reason == "", Reason: reason}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-survey-response-count",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/surveys/{id}/responses/count",
		Summary:     "Count responses recorded for the survey",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct {
		Body ResponseCountResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		s, err := e.Repo.GetSurvey(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if s.OrgID != input.OrgID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "survey not found in org", nil)
		}
		n, err := e.Repo.CountEvents(ctx, input.OrgID, "survey.response_received", "survey", s.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ResponseCountResponse `json:"body"`
		}{Body: ResponseCountResponse{SurveyID: s.ID, Responses: n}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-survey",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/surveys/{id}",
		Summary:     "Update a survey draft",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string              `path:"org_id"`
		ID    string              `path:"id"`
		Body  UpdateSurveyRequest `json:"body"`
	}) (*struct {
		Body SurveyResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if s, err := e.Repo.GetSurvey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		} else if s.OrgID != input.OrgID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "survey not found in org", nil)
		}
		patches := engine.SurveyPatches{
			Fields:     &input.Body.Patch,
			Conditions: input.Body.Conditions,
			Appearance: input.Body.Appearance,
		}
		s, err := e.UpdateSurvey(ctx, input.ID, patches, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SurveyResponse `json:"body"`
		}{Body: surveyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-survey-status",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/surveys/{id}/status",
		Summary:     "Launch, stop, resume or archive a survey",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string                 `path:"org_id"`
		ID    string                 `path:"id"`
		Body  SetSurveyStatusRequest `json:"body"`
	}) (*struct {
		Body SurveyResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if s, err := e.Repo.GetSurvey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		} else if s.OrgID != input.OrgID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "survey not found in org", nil)
		}
		s, err := e.SetSurveyStatus(ctx, input.ID, input.Body.Status, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SurveyResponse `json:"body"`
		}{Body: surveyResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-survey",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/surveys/{id}",
		Summary:     "Delete a survey",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if s, err := e.Repo.GetSurvey(ctx, input.ID); err != nil {
			return nil, handleError(err)
		} else if s.OrgID != input.OrgID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "survey not found in org", nil)
		}
		if err := e.DeleteSurvey(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerApps(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-app",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/apps",
		Summary:       "Register an OAuth application",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string                `path:"org_id"`
		Body  CreateOAuthAppRequest `json:"body"`
	}) (*struct {
		Body CreatedOAuthAppResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		app, secret, err := e.CreateOAuthApp(ctx, input.OrgID, input.Body.Name, input.Body.RedirectURIs, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreatedOAuthAppResponse `json:"body"`
		}{Body: CreatedOAuthAppResponse{
			OAuthAppResponse: oauthAppResponse(app),
			ClientSecret:     secret,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-apps",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/apps",
		Summary:     "List OAuth applications",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
	}) (*struct {
		Body []OAuthAppResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelAdmin); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListOAuthApps(ctx, input.OrgID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]OAuthAppResponse, 0, len(items))
		for _, a := range items {
			res = append(res, oauthAppResponse(a))
		}
		return &struct {
			Body []OAuthAppResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-app",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/apps/{id}",
		Summary:     "Get an OAuth application by id or client id",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct {
		Body OAuthAppResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelAdmin); authErr != nil {
			return nil, authErr
		}
		app, err := e.Repo.GetOAuthApp(ctx, input.ID)
		if errors.Is(err, repo.ErrNotFound) {
			app, err = e.Repo.GetOAuthAppByClientID(ctx, input.ID)
		}
		if err != nil {
			return nil, handleError(err)
		}
		if app.OrgID != input.OrgID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "app not found in org", nil)
		}
		return &struct {
			Body OAuthAppResponse `json:"body"`
		}{Body: oauthAppResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-app",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/apps/{id}",
		Summary:     "Update an OAuth application",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string                `path:"org_id"`
		ID    string                `path:"id"`
		Body  UpdateOAuthAppRequest `json:"body"`
	}) (*struct {
		Body OAuthAppResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		app, err := e.UpdateOAuthApp(ctx, input.ID, input.Body.Name, input.Body.RedirectURIs, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		if app.OrgID != input.OrgID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "app not found in org", nil)
		}
		return &struct {
			Body OAuthAppResponse `json:"body"`
		}{Body: oauthAppResponse(app)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "rotate-app-secret",
		Method:      http.MethodPost,
		Path:        "/orgs/{org_id}/apps/{id}/rotate-secret",
		Summary:     "Rotate an OAuth application secret",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct {
		Body RotatedSecretResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		secret, err := e.RotateOAuthAppSecret(ctx, input.ID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RotatedSecretResponse `json:"body"`
		}{Body: RotatedSecretResponse{ClientSecret: secret}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-app",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/apps/{id}",
		Summary:     "Delete an OAuth application",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteOAuthApp(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerKeys(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-key",
		Method:        http.MethodPost,
		Path:          "/me/keys",
		Summary:       "Create a personal API key",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreatedAPIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, value, err := e.CreatePersonalAPIKey(ctx, userID, input.Body.Name)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CreatedAPIKeyResponse `json:"body"`
		}{Body: CreatedAPIKeyResponse{
			APIKeyResponse: apiKeyResponse(key),
			Key:            value,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-keys",
		Method:      http.MethodGet,
		Path:        "/me/keys",
		Summary:     "List personal API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]APIKeyResponse, 0, len(items))
		for _, k := range items {
			res = append(res, apiKeyResponse(k))
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-key",
		Method:      http.MethodDelete,
		Path:        "/me/keys/{id}",
		Summary:     "Delete a personal API key",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct{}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := e.Repo.ListAPIKeys(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		for _, k := range keys {
			if k.ID == input.ID {
				if err := e.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
					return nil, handleError(err)
				}
				return &struct{}{}, nil
			}
		}
		return nil, newAPIError(http.StatusNotFound, "not_found", "key not found", nil)
	})
}

func registerIntegrations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-integration",
		Method:        http.MethodPost,
		Path:          "/orgs/{org_id}/integrations",
		Summary:       "Connect an integration",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string                   `path:"org_id"`
		Body  CreateIntegrationRequest `json:"body"`
	}) (*struct {
		Body IntegrationResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.CreateIntegration(ctx, input.OrgID, input.Body.Kind, input.Body.Config, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntegrationResponse `json:"body"`
		}{Body: integrationResponse(in)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-integrations",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/integrations",
		Summary:     "List integrations",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		Kind  string `query:"kind"`
	}) (*struct {
		Body []IntegrationResponse `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListIntegrations(ctx, input.OrgID, input.Kind)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]IntegrationResponse, 0, len(items))
		for _, in := range items {
			res = append(res, integrationResponse(in))
		}
		return &struct {
			Body []IntegrationResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-integration",
		Method:      http.MethodPatch,
		Path:        "/orgs/{org_id}/integrations/{id}",
		Summary:     "Update an integration's config",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		OrgID string                   `path:"org_id"`
		ID    string                   `path:"id"`
		Body  UpdateIntegrationRequest `json:"body"`
	}) (*struct {
		Body IntegrationResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		existing, err := e.Repo.GetIntegration(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if existing.OrgID != input.OrgID {
			return nil, newAPIError(http.StatusNotFound, "not_found", "integration not found in org", nil)
		}
		in, err := e.UpdateIntegration(ctx, input.ID, input.Body.Config, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body IntegrationResponse `json:"body"`
		}{Body: integrationResponse(in)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-integration",
		Method:      http.MethodDelete,
		Path:        "/orgs/{org_id}/integrations/{id}",
		Summary:     "Disconnect an integration",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		OrgID string `path:"org_id"`
		ID    string `path:"id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteIntegration(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/orgs/{org_id}/events",
		Summary:     "List recent activity",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		OrgID      string `path:"org_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind" enum:"org,member,invite,survey,oauth_app,integration"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, authErr := requireLevel(ctx, e, input.OrgID, domain.LevelMember); authErr != nil {
			return nil, authErr
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.OrgID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors: []int{
			http.StatusUnauthorized,
		},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res := WhoAmIResponse{
			UserID: principal.UserID,
			OrgID:  principal.OrgID,
			Source: principal.Source,
		}
		orgID := principal.OrgID
		if orgID == "" && e.Config != nil {
			orgID = e.Config.Org.ID
		}
		if orgID != "" {
			if m, err := e.Repo.GetMembership(ctx, orgID, principal.UserID); err == nil {
				res.OrgID = orgID
				res.Level = m.Level
				res.LevelName = domain.LevelName(m.Level)
			}
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: res}, nil
	})
}

func registerDevAuth(api huma.API, authCfg AuthConfig) {
	huma.Register(api, huma.Operation{
		OperationID: "dev-login",
		Method:      http.MethodPost,
		Path:        "/auth/dev/login",
		Summary:     "DEV ONLY: mint a JWT for local testing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body DevLoginRequest `json:"body"`
	}) (*struct {
		Body DevLoginResponse `json:"body"`
	}, error) {
		userID := strings.TrimSpace(input.Body.UserID)
		if userID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "user_id is required", nil)
		}
		token, err := signToken(authCfg.JWTSecret, userID, strings.TrimSpace(input.Body.OrgID), 24*time.Hour, time.Now())
		if err != nil {
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", err.Error(), nil)
		}
		return &struct {
			Body DevLoginResponse `json:"body"`
		}{Body: DevLoginResponse{Token: token}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}

func parseCompositeCursor(cursor string) (string, string, error) {
	if cursor == "" {
		return "", "", nil
	}
	parts := strings.SplitN(cursor, "|", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid cursor")
	}
	return parts[0], parts[1], nil
}

func composeCursor(ts, id string) string {
	if ts == "" || id == "" {
		return ""
	}
	return ts + "|" + id
}
