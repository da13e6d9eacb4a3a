// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/test"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

func mustCreateDatabase(t *testing.T, dbType test.DBType) (storage.Database, func()) {
	t.Helper()
	connStr, closeDB := test.PrepareDBConnectionString(t, dbType)
	cm := sqlutil.NewConnectionManager(nil, config.DatabaseOptions{})
	caches := caching.NewRistrettoCache(8*1024*1024, time.Hour, caching.DisableMetrics)
	db, err := storage.NewDatabase(cm, &config.DatabaseOptions{
		ConnectionString: connStr,
	}, caches)
	require.NoError(t, err)
	return db, closeDB
}

func TestUserRoundTrip(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		created, err := db.CreateUser(ctx, "ada@example.com", "$2a$10$hash", "Ada")
		require.NoError(t, err)
		require.NotZero(t, created.ID)

		byEmail, hash, err := db.UserByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, created.ID, byEmail.ID)
		assert.Equal(t, "$2a$10$hash", hash)
		assert.Equal(t, "Ada", byEmail.DisplayName)

		byID, err := db.UserByID(ctx, created.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Equal(t, "ada@example.com", byID.Email)

		missing, _, err := db.UserByEmail(ctx, "nobody@example.com")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestCreateOrgMakesCreatorAdmin(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		creator, err := db.CreateUser(ctx, "boss@example.com", "h", "Boss")
		require.NoError(t, err)
		org, err := db.CreateOrg(ctx, "Acme", creator.ID)
		require.NoError(t, err)

		admin, err := db.SelectOrgAdmin(ctx, org.ID, creator.ID)
		require.NoError(t, err)
		assert.True(t, admin)

		member, err := db.SelectOrgMember(ctx, org.ID, creator.ID)
		require.NoError(t, err)
		assert.True(t, member)

		stranger, err := db.SelectOrgMember(ctx, org.ID, creator.ID+1)
		require.NoError(t, err)
		assert.False(t, stranger)
	})
}

func TestOrgMemberRoleUpsertAndRemoval(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		creator, err := db.CreateUser(ctx, "boss@example.com", "h", "Boss")
		require.NoError(t, err)
		org, err := db.CreateOrg(ctx, "Acme", creator.ID)
		require.NoError(t, err)
		other, err := db.CreateUser(ctx, "member@example.com", "h", "Member")
		require.NoError(t, err)

		require.NoError(t, db.UpsertOrgMember(ctx, org.ID, other.ID, api.OrgRoleMember))
		admin, err := db.SelectOrgAdmin(ctx, org.ID, other.ID)
		require.NoError(t, err)
		assert.False(t, admin, "plain member is not an admin")

		// Promoting replaces the role in place.
		require.NoError(t, db.UpsertOrgMember(ctx, org.ID, other.ID, api.OrgRoleAdmin))
		admin, err = db.SelectOrgAdmin(ctx, org.ID, other.ID)
		require.NoError(t, err)
		assert.True(t, admin)

		removed, err := db.RemoveOrgMember(ctx, org.ID, other.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		member, err := db.SelectOrgMember(ctx, org.ID, other.ID)
		require.NoError(t, err)
		assert.False(t, member)

		removed, err = db.RemoveOrgMember(ctx, org.ID, other.ID)
		require.NoError(t, err)
		assert.False(t, removed, "second removal finds nothing")
	})
}

func TestPageLifecycle(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		creator, err := db.CreateUser(ctx, "boss@example.com", "h", "Boss")
		require.NoError(t, err)
		org, err := db.CreateOrg(ctx, "Acme", creator.ID)
		require.NoError(t, err)
		project, err := db.CreateProject(ctx, org.ID, "Docs", creator.ID, false)
		require.NoError(t, err)

		page, err := db.CreatePage(ctx, project.ID, creator.ID, "Welcome")
		require.NoError(t, err)
		require.NotEmpty(t, page.ExternalID)

		got, err := db.PageByExternalID(ctx, page.ExternalID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Welcome", got.Title)
		assert.Equal(t, project.ID, got.ProjectID)

		updated, err := db.UpdatePageTitle(ctx, page.ExternalID, "Welcome!")
		require.NoError(t, err)
		assert.True(t, updated)
		got, err = db.PageByExternalID(ctx, page.ExternalID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Welcome!", got.Title)

		deleted, err := db.SoftDeletePage(ctx, page.ExternalID)
		require.NoError(t, err)
		assert.True(t, deleted)
		got, err = db.PageByExternalID(ctx, page.ExternalID)
		require.NoError(t, err)
		assert.Nil(t, got, "soft-deleted pages read as absent")

		// Mutations against a deleted page report no match.
		updated, err = db.UpdatePageTitle(ctx, page.ExternalID, "zombie")
		require.NoError(t, err)
		assert.False(t, updated)
		deleted, err = db.SoftDeletePage(ctx, page.ExternalID)
		require.NoError(t, err)
		assert.False(t, deleted)
	})
}

func TestProjectByIDHidesDeleted(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		creator, err := db.CreateUser(ctx, "boss@example.com", "h", "Boss")
		require.NoError(t, err)
		org, err := db.CreateOrg(ctx, "Acme", creator.ID)
		require.NoError(t, err)
		project, err := db.CreateProject(ctx, org.ID, "Docs", creator.ID, true)
		require.NoError(t, err)

		got, err := db.ProjectByID(ctx, project.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.True(t, got.OrgMembersCanAccess)

		missing, err := db.ProjectByID(ctx, project.ID+100)
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestEditorGrants(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		creator, err := db.CreateUser(ctx, "boss@example.com", "h", "Boss")
		require.NoError(t, err)
		org, err := db.CreateOrg(ctx, "Acme", creator.ID)
		require.NoError(t, err)
		project, err := db.CreateProject(ctx, org.ID, "Docs", creator.ID, false)
		require.NoError(t, err)
		page, err := db.CreatePage(ctx, project.ID, creator.ID, "Welcome")
		require.NoError(t, err)
		guest, err := db.CreateUser(ctx, "guest@example.com", "h", "Guest")
		require.NoError(t, err)

		_, grantExists, err := db.SelectProjectEditorRole(ctx, project.ID, guest.ID)
		require.NoError(t, err)
		assert.False(t, grantExists)

		require.NoError(t, db.UpsertProjectEditor(ctx, project.ID, guest.ID, api.EditorRoleViewer))
		role, grantExists, err := db.SelectProjectEditorRole(ctx, project.ID, guest.ID)
		require.NoError(t, err)
		require.True(t, grantExists)
		assert.Equal(t, api.EditorRoleViewer, role)

		// Upsert over an existing grant changes the role.
		require.NoError(t, db.UpsertProjectEditor(ctx, project.ID, guest.ID, api.EditorRoleEditor))
		role, _, err = db.SelectProjectEditorRole(ctx, project.ID, guest.ID)
		require.NoError(t, err)
		assert.Equal(t, api.EditorRoleEditor, role)

		require.NoError(t, db.UpsertPageEditor(ctx, page.ID, guest.ID, api.EditorRoleEditor))
		role, grantExists, err = db.SelectPageEditorRole(ctx, page.ID, guest.ID)
		require.NoError(t, err)
		require.True(t, grantExists)
		assert.Equal(t, api.EditorRoleEditor, role)

		removed, err := db.RemovePageEditor(ctx, page.ID, guest.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		removed, err = db.RemoveProjectEditor(ctx, project.ID, guest.ID)
		require.NoError(t, err)
		assert.True(t, removed)
		_, grantExists, err = db.SelectPageEditorRole(ctx, page.ID, guest.ID)
		require.NoError(t, err)
		assert.False(t, grantExists)
	})
}

func TestPageExternalIDsByOrgSpansProjects(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		creator, err := db.CreateUser(ctx, "boss@example.com", "h", "Boss")
		require.NoError(t, err)
		org, err := db.CreateOrg(ctx, "Acme", creator.ID)
		require.NoError(t, err)
		otherOrg, err := db.CreateOrg(ctx, "Umbrella", creator.ID)
		require.NoError(t, err)

		docs, err := db.CreateProject(ctx, org.ID, "Docs", creator.ID, false)
		require.NoError(t, err)
		wiki, err := db.CreateProject(ctx, org.ID, "Wiki", creator.ID, false)
		require.NoError(t, err)
		foreign, err := db.CreateProject(ctx, otherOrg.ID, "Elsewhere", creator.ID, false)
		require.NoError(t, err)

		want := map[string]bool{}
		for _, projectID := range []int64{docs.ID, wiki.ID} {
			for i := 0; i < 2; i++ {
				page, err := db.CreatePage(ctx, projectID, creator.ID, "p")
				require.NoError(t, err)
				want[page.ExternalID] = true
			}
		}
		outside, err := db.CreatePage(ctx, foreign.ID, creator.ID, "outside")
		require.NoError(t, err)
		gone, err := db.CreatePage(ctx, docs.ID, creator.ID, "gone")
		require.NoError(t, err)
		_, err = db.SoftDeletePage(ctx, gone.ExternalID)
		require.NoError(t, err)

		ids, err := db.PageExternalIDsByOrg(ctx, org.ID)
		require.NoError(t, err)
		assert.Len(t, ids, len(want))
		for _, id := range ids {
			assert.True(t, want[id], "unexpected page %s", id)
			assert.NotEqual(t, outside.ExternalID, id)
			assert.NotEqual(t, gone.ExternalID, id)
		}
	})
}
