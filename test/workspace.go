// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

// Workspace is a ready-made org/project/page fixture with one admin user.
type Workspace struct {
	DB      storage.Database
	Admin   *api.User
	Org     *api.Org
	Project *api.Project
	Page    *api.Page

	userSeq int
}

// NewWorkspaceDatabase opens a workspace database against a fresh test
// database of the requested type.
func NewWorkspaceDatabase(t *testing.T, dbType DBType) (storage.Database, func()) {
	t.Helper()
	connStr, closeDB := PrepareDBConnectionString(t, dbType)
	cm := sqlutil.NewConnectionManager(nil, config.DatabaseOptions{})
	caches := caching.NewRistrettoCache(8*1024*1024, time.Hour, caching.DisableMetrics)
	db, err := storage.NewDatabase(cm, &config.DatabaseOptions{ConnectionString: connStr}, caches)
	if err != nil {
		closeDB()
		t.Fatalf("storage.NewDatabase: %s", err)
	}
	return db, closeDB
}

// NewWorkspace builds the standard fixture: an admin user owning an org
// with one project and one page in it.
func NewWorkspace(t *testing.T, dbType DBType) (*Workspace, func()) {
	t.Helper()
	db, closeDB := NewWorkspaceDatabase(t, dbType)
	ctx := context.Background()

	admin, err := db.CreateUser(ctx, "admin@test.local", "unusable-hash", "Admin")
	if err != nil {
		t.Fatalf("CreateUser: %s", err)
	}
	org, err := db.CreateOrg(ctx, "Test Org", admin.ID)
	if err != nil {
		t.Fatalf("CreateOrg: %s", err)
	}
	project, err := db.CreateProject(ctx, org.ID, "Test Project", admin.ID, false)
	if err != nil {
		t.Fatalf("CreateProject: %s", err)
	}
	page, err := db.CreatePage(ctx, project.ID, admin.ID, "Test Page")
	if err != nil {
		t.Fatalf("CreatePage: %s", err)
	}

	return &Workspace{DB: db, Admin: admin, Org: org, Project: project, Page: page}, closeDB
}

// NewUser creates an additional user with no grants anywhere.
func (w *Workspace) NewUser(t *testing.T) *api.User {
	t.Helper()
	w.userSeq++
	email := fmt.Sprintf("user%d@test.local", w.userSeq)
	user, err := w.DB.CreateUser(context.Background(), email, "unusable-hash", email)
	if err != nil {
		t.Fatalf("CreateUser: %s", err)
	}
	return user
}

// GrantPageRole gives the user a page-level role on the fixture page.
func (w *Workspace) GrantPageRole(t *testing.T, user *api.User, role api.EditorRole) {
	t.Helper()
	if err := w.DB.UpsertPageEditor(context.Background(), w.Page.ID, user.ID, role); err != nil {
		t.Fatalf("UpsertPageEditor: %s", err)
	}
}

// GrantProjectRole gives the user a project-level role on the fixture
// project.
func (w *Workspace) GrantProjectRole(t *testing.T, user *api.User, role api.EditorRole) {
	t.Helper()
	if err := w.DB.UpsertProjectEditor(context.Background(), w.Project.ID, user.ID, role); err != nil {
		t.Fatalf("UpsertProjectEditor: %s", err)
	}
}
