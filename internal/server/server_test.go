package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"canvass/internal/config"
	"canvass/internal/db"
	"canvass/internal/engine"
	"canvass/internal/migrate"
)

const (
	testOrgID     = "canvass"
	testJWTSecret = "test-secret"
)

type testServer struct {
	URL    string
	engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default(testOrgID)
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	if _, err := e.InitOrg(context.Background(), testOrgID, "Canvass", "owner-user"); err != nil {
		t.Fatalf("init org: %v", err)
	}
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testJWTSecret},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func mintToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := signToken(testJWTSecret, userID, testOrgID, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func authHeaders(t *testing.T, userID string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + mintToken(t, userID)}
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return envelope.Error.Code
}

func TestRequestsWithoutCredentialsRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/orgs/"+testOrgID+"/surveys", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "unauthorized" {
		t.Fatalf("code = %s", code)
	}
}

func TestSurveyLifecycleOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := authHeaders(t, "owner-user")

	createRes, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orgs/"+testOrgID+"/surveys", map[string]any{
		"name": "NPS check-in",
		"questions": []map[string]any{
			{"type": "rating", "question": "How likely are you to recommend us?", "scale": 10},
		},
	}, owner)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create survey status %d: %s", createRes.StatusCode, string(data))
	}
	var created SurveyResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal survey: %v", err)
	}
	if created.Status != "draft" || created.Schedule != "once" {
		t.Fatalf("created survey: %+v", created)
	}

	launchRes, launchBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/orgs/"+testOrgID+"/surveys/"+created.ID+"/status", map[string]any{
		"status": "launched",
	}, owner)
	if launchRes.StatusCode != http.StatusOK {
		t.Fatalf("launch status %d: %s", launchRes.StatusCode, string(launchBody))
	}
	var launched SurveyResponse
	_ = json.Unmarshal(launchBody, &launched)
	if launched.LaunchedAt == nil {
		t.Fatal("launched_at not set")
	}

	badRes, badBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/orgs/"+testOrgID+"/surveys/"+created.ID+"/status", map[string]any{
		"status": "archived",
	}, owner)
	if badRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected transition conflict, got %d: %s", badRes.StatusCode, string(badBody))
	}

	stopRes, stopBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/orgs/"+testOrgID+"/surveys/"+created.ID+"/status", map[string]any{
		"status": "stopped",
	}, owner)
	if stopRes.StatusCode != http.StatusOK {
		t.Fatalf("stop status %d: %s", stopRes.StatusCode, string(stopBody))
	}

	archiveRes, archiveBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/orgs/"+testOrgID+"/surveys/"+created.ID+"/status", map[string]any{
		"status": "archived",
	}, owner)
	if archiveRes.StatusCode != http.StatusOK {
		t.Fatalf("archive status %d: %s", archiveRes.StatusCode, string(archiveBody))
	}

	editRes, editBody := doJSON(t, client, http.MethodPatch, srv.URL+"/v0/orgs/"+testOrgID+"/surveys/"+created.ID, map[string]any{
		"name": "renamed",
	}, owner)
	if editRes.StatusCode != http.StatusConflict {
		t.Fatalf("expected archived-edit conflict, got %d: %s", editRes.StatusCode, string(editBody))
	}
}

func TestSurveyGateBlocksLaunch(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	owner := authHeaders(t, "owner-user")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/orgs/"+testOrgID+"/surveys", map[string]any{
		"name": "No questions yet",
	}, owner)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "validation_failed" {
		t.Fatalf("code = %s", code)
	}
}

func TestInviteBatchOverHTTP(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := authHeaders(t, "owner-user")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orgs/"+testOrgID+"/invites", map[string]any{
		"rows": []map[string]any{
			{"target_email": "boss@example.com", "level": 15},
		},
	}, owner)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected confirmation gate 422, got %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/orgs/"+testOrgID+"/invites", map[string]any{
		"rows": []map[string]any{
			{"target_email": "boss@example.com", "level": 15},
			{"target_email": "dev@example.com", "level": 1},
		},
		"confirmation": "Send Invites",
	}, owner)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create invites status %d: %s", res.StatusCode, string(data))
	}
	var sent []InviteResponse
	if err := json.Unmarshal(data, &sent); err != nil {
		t.Fatalf("unmarshal invites: %v", err)
	}
	if len(sent) != 2 {
		t.Fatalf("sent %d invites", len(sent))
	}

	acceptRes, acceptBody := doJSON(t, client, http.MethodPost, srv.URL+"/v0/invites/"+sent[1].ID+"/accept", nil, authHeaders(t, "dev-user"))
	if acceptRes.StatusCode != http.StatusOK {
		t.Fatalf("accept status %d: %s", acceptRes.StatusCode, string(acceptBody))
	}
	var member MemberResponse
	_ = json.Unmarshal(acceptBody, &member)
	if member.LevelName != "member" {
		t.Fatalf("accepted level = %s", member.LevelName)
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/orgs/"+testOrgID+"/members", nil, authHeaders(t, "dev-user"))
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list members status %d: %s", listRes.StatusCode, string(listBody))
	}
}

func TestMemberLevelForbiddenForMembers(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := authHeaders(t, "owner-user")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orgs/"+testOrgID+"/invites", map[string]any{
		"rows": []map[string]any{{"target_email": "dev@example.com", "level": 1}},
	}, owner)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create invite: %d %s", res.StatusCode, string(data))
	}
	var sent []InviteResponse
	_ = json.Unmarshal(data, &sent)
	if acceptRes, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/invites/"+sent[0].ID+"/accept", nil, authHeaders(t, "dev-user")); acceptRes.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", acceptRes.StatusCode, string(body))
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v0/orgs/"+testOrgID+"/members/owner-user", map[string]any{
		"level": 1,
	}, authHeaders(t, "dev-user"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", res.StatusCode, string(data))
	}
}

func TestAPIKeyAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := authHeaders(t, "owner-user")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/me/keys", map[string]any{
		"name": "ci",
	}, owner)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key status %d: %s", res.StatusCode, string(data))
	}
	var created CreatedAPIKeyResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal key: %v", err)
	}
	if created.Key == "" {
		t.Fatal("key value not returned")
	}

	meRes, meBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": created.Key})
	if meRes.StatusCode != http.StatusOK {
		t.Fatalf("me via api key status %d: %s", meRes.StatusCode, string(meBody))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(meBody, &who)
	if who.UserID != "owner-user" || who.Source != "api_key" {
		t.Fatalf("whoami = %+v", who)
	}
}

func TestOAuthAppSecretReturnedOnce(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := authHeaders(t, "owner-user")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orgs/"+testOrgID+"/apps", map[string]any{
		"name":          "Zapier",
		"redirect_uris": []string{"https://zapier.com/oauth/callback"},
	}, owner)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create app status %d: %s", res.StatusCode, string(data))
	}
	var created CreatedOAuthAppResponse
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal app: %v", err)
	}
	if created.ClientSecret == "" {
		t.Fatal("client secret not returned on creation")
	}

	listRes, listBody := doJSON(t, client, http.MethodGet, srv.URL+"/v0/orgs/"+testOrgID+"/apps", nil, owner)
	if listRes.StatusCode != http.StatusOK {
		t.Fatalf("list apps status %d: %s", listRes.StatusCode, string(listBody))
	}
	if bytes.Contains(listBody, []byte(created.ClientSecret)) {
		t.Fatal("client secret leaked in list response")
	}
}

func TestCreateOrgDuplicateConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	owner := authHeaders(t, "owner-user")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/orgs", map[string]any{
		"id": testOrgID, "name": "Canvass Again",
	}, owner)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", res.StatusCode, string(data))
	}
	if code := errorCode(t, data); code != "conflict" {
		t.Fatalf("code = %s", code)
	}
	if bytes.Contains(data, []byte("UNIQUE constraint")) {
		t.Fatalf("raw database error leaked: %s", string(data))
	}
}
