// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package routing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperclast/pagesync/collabapi/hub"
	"github.com/hyperclast/pagesync/collabapi/producers"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/test"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/auth"
	"github.com/hyperclast/pagesync/workspaceapi/routing"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

// recordingSession captures control events delivered to a room.
type recordingSession struct {
	id  string
	mu  sync.Mutex
	msg []types.ControlMessage
}

func (s *recordingSession) ID() string                { return s.id }
func (s *recordingSession) QueueFrame([]byte) bool    { return true }
func (s *recordingSession) Kick(string)               {}
func (s *recordingSession) QueueControl(msg types.ControlMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msg = append(s.msg, msg)
	return true
}

func (s *recordingSession) controls() []types.ControlMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.ControlMessage(nil), s.msg...)
}

type rig struct {
	db      storage.Database
	authn   *auth.Authenticator
	routers httputil.Routers
	hub     *hub.Hub
}

func newRig(t *testing.T) (*rig, func()) {
	t.Helper()
	connStr, closeDB := test.PrepareDBConnectionString(t, test.DBTypeSQLite)
	cm := sqlutil.NewConnectionManager(nil, config.DatabaseOptions{})
	caches := caching.NewRistrettoCache(8*1024*1024, time.Hour, caching.DisableMetrics)
	db, err := storage.NewDatabase(cm, &config.DatabaseOptions{ConnectionString: connStr}, caches)
	require.NoError(t, err)

	cfg := &config.WorkspaceAPI{}
	cfg.Defaults(config.DefaultOpts{})
	cfg.Auth.JWTSecret = "test-secret"
	// Tests hammer endpoints from one address; the limiter is covered by
	// its own package tests.
	cfg.RateLimiting.Enabled = false

	h := hub.NewHub(hub.NoBackplane{})
	authn := auth.NewAuthenticator(&cfg.Auth, db)
	routers := httputil.NewRouters()
	routing.Setup(routers.Workspace, cfg, db, authn, producers.NewControlEvents(h))

	return &rig{db: db, authn: authn, routers: routers, hub: h}, closeDB
}

func (r *rig) request(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.routers.Workspace.ServeHTTP(rec, req)
	return rec
}

// mustUser creates an account and returns it with a valid session token.
func (r *rig) mustUser(t *testing.T, email string) (*api.User, string) {
	t.Helper()
	hash, err := auth.HashPassword("a long enough password")
	require.NoError(t, err)
	user, err := r.db.CreateUser(context.Background(), email, hash, email)
	require.NoError(t, err)
	token, err := r.authn.IssueToken(user.ID, time.Now())
	require.NoError(t, err)
	return user, token
}

// listen attaches a recording session to the page's room.
func (r *rig) listen(pageExternalID string) *recordingSession {
	s := &recordingSession{id: "rec-" + pageExternalID}
	r.hub.Join(types.RoomID(pageExternalID), s)
	return s
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestLogin(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()
	user, _ := r.mustUser(t, "ada@example.com")

	rec := r.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "a long enough password",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeJSON[map[string]any](t, rec)
	assert.Equal(t, float64(user.ID), resp["user_id"])
	token, _ := resp["token"].(string)
	require.NotEmpty(t, token)

	// The issued token authenticates follow-up requests.
	rec = r.request(t, http.MethodPost, "/api/orgs", token, map[string]string{"name": "Acme"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Wrong password and unknown email are indistinguishable.
	rec = r.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "wrong password here",
	})
	wrongPass := rec.Code
	rec = r.request(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "nobody@example.com", "password": "a long enough password",
	})
	assert.Equal(t, http.StatusUnauthorized, wrongPass)
	assert.Equal(t, wrongPass, rec.Code)
}

func TestAuthRequired(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()

	rec := r.request(t, http.MethodPost, "/api/orgs", "", map[string]string{"name": "Acme"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = r.request(t, http.MethodPost, "/api/orgs", "not.a.token", map[string]string{"name": "Acme"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProjectCreationRequiresMembership(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()
	_, adminToken := r.mustUser(t, "admin@example.com")
	_, strangerToken := r.mustUser(t, "stranger@example.com")

	rec := r.request(t, http.MethodPost, "/api/orgs", adminToken, map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)
	org := decodeJSON[api.Org](t, rec)

	rec = r.request(t, http.MethodPost, "/api/projects", strangerToken, map[string]any{
		"org_id": org.ID, "name": "Docs",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = r.request(t, http.MethodPost, "/api/projects", adminToken, map[string]any{
		"org_id": org.ID, "name": "Docs", "org_members_can_access": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	project := decodeJSON[api.Project](t, rec)
	assert.True(t, project.OrgMembersCanAccess)
}

// buildWorkspace creates admin+org+project and returns the pieces most
// tests start from.
func buildWorkspace(t *testing.T, r *rig) (adminToken string, admin *api.User, project api.Project) {
	t.Helper()
	admin, adminToken = r.mustUser(t, "admin@example.com")
	rec := r.request(t, http.MethodPost, "/api/orgs", adminToken, map[string]string{"name": "Acme"})
	require.Equal(t, http.StatusCreated, rec.Code)
	org := decodeJSON[api.Org](t, rec)
	rec = r.request(t, http.MethodPost, "/api/projects", adminToken, map[string]any{
		"org_id": org.ID, "name": "Docs",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	project = decodeJSON[api.Project](t, rec)
	return adminToken, admin, project
}

func TestPageLifecycleOverREST(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()
	adminToken, _, project := buildWorkspace(t, r)
	_, outsiderToken := r.mustUser(t, "outsider@example.com")

	rec := r.request(t, http.MethodPost, "/api/pages", adminToken, map[string]any{
		"project_id": project.ID, "title": "Welcome",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	page := decodeJSON[api.Page](t, rec)
	require.NotEmpty(t, page.ExternalID)

	// Outsiders cannot create pages or read this one.
	rec = r.request(t, http.MethodPost, "/api/pages", outsiderToken, map[string]any{
		"project_id": project.ID, "title": "Nope",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = r.request(t, http.MethodGet, "/api/pages/"+page.ExternalID, outsiderToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = r.request(t, http.MethodGet, "/api/pages/"+page.ExternalID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[api.Page](t, rec)
	assert.Equal(t, "Welcome", got.Title)

	rec = r.request(t, http.MethodGet, "/api/pages/no-such-page", adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdatePagePublishesLinksUpdated(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()
	adminToken, _, project := buildWorkspace(t, r)

	rec := r.request(t, http.MethodPost, "/api/pages", adminToken, map[string]any{
		"project_id": project.ID, "title": "Welcome",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	page := decodeJSON[api.Page](t, rec)
	listener := r.listen(page.ExternalID)

	rec = r.request(t, http.MethodPut, "/api/pages/"+page.ExternalID, adminToken, map[string]string{
		"title": "Welcome!",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	msgs := listener.controls()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.ControlLinksUpdated, msgs[0].Code)
	assert.Equal(t, page.ExternalID, msgs[0].Page)

	rec = r.request(t, http.MethodGet, "/api/pages/"+page.ExternalID, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Welcome!", decodeJSON[api.Page](t, rec).Title)
}

func TestPageEditorDowngradePublishesWriteRevoked(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()
	adminToken, _, project := buildWorkspace(t, r)
	target, _ := r.mustUser(t, "target@example.com")

	rec := r.request(t, http.MethodPost, "/api/pages", adminToken, map[string]any{
		"project_id": project.ID, "title": "Welcome",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	page := decodeJSON[api.Page](t, rec)
	listener := r.listen(page.ExternalID)
	editorPath := fmt.Sprintf("/api/pages/%s/editors/%d", page.ExternalID, target.ID)

	// The initial grant is not a downgrade, no control event.
	rec = r.request(t, http.MethodPut, editorPath, adminToken, map[string]string{"role": "editor"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Empty(t, listener.controls())

	rec = r.request(t, http.MethodPut, editorPath, adminToken, map[string]string{"role": "viewer"})
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := listener.controls()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.ControlWriteRevoked, msgs[0].Code)
	assert.Equal(t, target.ID, msgs[0].UserID)

	// viewer -> viewer is not a downgrade either.
	rec = r.request(t, http.MethodPut, editorPath, adminToken, map[string]string{"role": "viewer"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, listener.controls(), 1)

	rec = r.request(t, http.MethodPut, editorPath, adminToken, map[string]string{"role": "owner"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPageEditorRemovalPublishesAccessRevoked(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()
	adminToken, _, project := buildWorkspace(t, r)
	target, _ := r.mustUser(t, "target@example.com")

	rec := r.request(t, http.MethodPost, "/api/pages", adminToken, map[string]any{
		"project_id": project.ID, "title": "Welcome",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	page := decodeJSON[api.Page](t, rec)
	editorPath := fmt.Sprintf("/api/pages/%s/editors/%d", page.ExternalID, target.ID)

	rec = r.request(t, http.MethodDelete, editorPath, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "no grant to remove yet")

	rec = r.request(t, http.MethodPut, editorPath, adminToken, map[string]string{"role": "editor"})
	require.Equal(t, http.StatusOK, rec.Code)

	listener := r.listen(page.ExternalID)
	rec = r.request(t, http.MethodDelete, editorPath, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := listener.controls()
	require.Len(t, msgs, 1)
	assert.Equal(t, types.ControlAccessRevoked, msgs[0].Code)
	assert.Equal(t, target.ID, msgs[0].UserID)
}

func TestEditorManagementRequiresAdmin(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()
	adminToken, _, project := buildWorkspace(t, r)
	target, _ := r.mustUser(t, "target@example.com")
	_, peonToken := r.mustUser(t, "peon@example.com")

	rec := r.request(t, http.MethodPost, "/api/pages", adminToken, map[string]any{
		"project_id": project.ID, "title": "Welcome",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	page := decodeJSON[api.Page](t, rec)
	editorPath := fmt.Sprintf("/api/pages/%s/editors/%d", page.ExternalID, target.ID)

	rec = r.request(t, http.MethodPut, editorPath, peonToken, map[string]string{"role": "editor"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Even a project editor cannot manage grants.
	grantPath := fmt.Sprintf("/api/projects/%d/editors/%d", project.ID, target.ID)
	rec = r.request(t, http.MethodPut, grantPath, peonToken, map[string]string{"role": "editor"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestProjectEditorRemovalFansOut(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()
	adminToken, _, project := buildWorkspace(t, r)
	target, _ := r.mustUser(t, "target@example.com")

	var listeners []*recordingSession
	for i := 0; i < 3; i++ {
		rec := r.request(t, http.MethodPost, "/api/pages", adminToken, map[string]any{
			"project_id": project.ID, "title": fmt.Sprintf("page %d", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		listeners = append(listeners, r.listen(decodeJSON[api.Page](t, rec).ExternalID))
	}

	grantPath := fmt.Sprintf("/api/projects/%d/editors/%d", project.ID, target.ID)
	rec := r.request(t, http.MethodPut, grantPath, adminToken, map[string]string{"role": "editor"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = r.request(t, http.MethodDelete, grantPath, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	for i, listener := range listeners {
		msgs := listener.controls()
		require.Len(t, msgs, 1, "page %d", i)
		assert.Equal(t, types.ControlAccessRevoked, msgs[0].Code)
		assert.Equal(t, target.ID, msgs[0].UserID)
	}
}

func TestOrgMemberRemovalFansOutAcrossProjects(t *testing.T) {
	r, closeDB := newRig(t)
	defer closeDB()
	adminToken, _, project := buildWorkspace(t, r)
	target, _ := r.mustUser(t, "target@example.com")

	// A second project in the same org.
	rec := r.request(t, http.MethodPost, "/api/projects", adminToken, map[string]any{
		"org_id": project.OrgID, "name": "Wiki",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	wiki := decodeJSON[api.Project](t, rec)

	var listeners []*recordingSession
	for _, projectID := range []int64{project.ID, wiki.ID} {
		rec = r.request(t, http.MethodPost, "/api/pages", adminToken, map[string]any{
			"project_id": projectID, "title": "p",
		})
		require.Equal(t, http.StatusCreated, rec.Code)
		listeners = append(listeners, r.listen(decodeJSON[api.Page](t, rec).ExternalID))
	}

	require.NoError(t, r.db.UpsertOrgMember(context.Background(), project.OrgID, target.ID, api.OrgRoleMember))

	memberPath := fmt.Sprintf("/api/orgs/%d/members/%d", project.OrgID, target.ID)

	// Non-admins cannot remove members.
	_, peonToken := r.mustUser(t, "peon@example.com")
	rec = r.request(t, http.MethodDelete, memberPath, peonToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = r.request(t, http.MethodDelete, memberPath, adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	for i, listener := range listeners {
		msgs := listener.controls()
		require.Len(t, msgs, 1, "project %d", i)
		assert.Equal(t, types.ControlAccessRevoked, msgs[0].Code)
		assert.Equal(t, target.ID, msgs[0].UserID)
	}

	rec = r.request(t, http.MethodDelete, memberPath, adminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "membership already gone")
}
