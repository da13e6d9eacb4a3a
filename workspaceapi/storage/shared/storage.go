// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package shared

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/storage/tables"
)

// Database is the engine-independent logic over the workspace tables.
// Pages and projects sit on the hot path of every WebSocket handshake, so
// both are read through the ristretto caches.
type Database struct {
	DB     *sql.DB
	Writer sqlutil.Writer
	Caches *caching.Caches

	Users          tables.Users
	Orgs           tables.Orgs
	OrgMembers     tables.OrgMembers
	Projects       tables.Projects
	ProjectEditors tables.ProjectEditors
	Pages          tables.Pages
	PageEditors    tables.PageEditors
}

func (d *Database) CreateUser(ctx context.Context, email, passwordHash, displayName string) (*api.User, error) {
	user := &api.User{
		Email:       email,
		DisplayName: displayName,
		CreatedTS:   types.AsTimestamp(time.Now()),
	}
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		id, err := d.Users.InsertUser(ctx, txn, email, passwordHash, displayName, user.CreatedTS)
		if err != nil {
			return fmt.Errorf("d.Users.InsertUser: %w", err)
		}
		user.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (d *Database) UserByEmail(ctx context.Context, email string) (*api.User, string, error) {
	return d.Users.SelectUserByEmail(ctx, email)
}

func (d *Database) UserByID(ctx context.Context, id int64) (*api.User, error) {
	return d.Users.SelectUserByID(ctx, id)
}

// CreateOrg creates the org and makes the creator its first admin in the
// same transaction.
func (d *Database) CreateOrg(ctx context.Context, name string, creatorID int64) (*api.Org, error) {
	org := &api.Org{
		Name:      name,
		CreatedTS: types.AsTimestamp(time.Now()),
	}
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		id, err := d.Orgs.InsertOrg(ctx, txn, name, org.CreatedTS)
		if err != nil {
			return fmt.Errorf("d.Orgs.InsertOrg: %w", err)
		}
		org.ID = id
		if err = d.OrgMembers.UpsertOrgMember(ctx, txn, id, creatorID, api.OrgRoleAdmin); err != nil {
			return fmt.Errorf("d.OrgMembers.UpsertOrgMember: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (d *Database) OrgByID(ctx context.Context, id int64) (*api.Org, error) {
	return d.Orgs.SelectOrgByID(ctx, id)
}

func (d *Database) UpsertOrgMember(ctx context.Context, orgID, userID int64, role api.OrgRole) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.OrgMembers.UpsertOrgMember(ctx, txn, orgID, userID, role)
	})
}

func (d *Database) RemoveOrgMember(ctx context.Context, orgID, userID int64) (bool, error) {
	var removed bool
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) (err error) {
		removed, err = d.OrgMembers.DeleteOrgMember(ctx, txn, orgID, userID)
		return err
	})
	return removed, err
}

func (d *Database) CreateProject(
	ctx context.Context, orgID int64, name string, creatorID int64, orgMembersCanAccess bool,
) (*api.Project, error) {
	project := &api.Project{
		OrgID:               orgID,
		Name:                name,
		CreatorID:           creatorID,
		OrgMembersCanAccess: orgMembersCanAccess,
		CreatedTS:           types.AsTimestamp(time.Now()),
	}
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		id, err := d.Projects.InsertProject(ctx, txn, orgID, name, creatorID, orgMembersCanAccess, project.CreatedTS)
		if err != nil {
			return fmt.Errorf("d.Projects.InsertProject: %w", err)
		}
		project.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.Caches.Projects.Set(project.ID, *project)
	return project, nil
}

// ProjectByID returns nil for unknown and soft-deleted projects. Deleted
// rows are never cached, so an un-delete would be picked up immediately.
func (d *Database) ProjectByID(ctx context.Context, id int64) (*api.Project, error) {
	if cached, ok := d.Caches.Projects.Get(id); ok {
		return &cached, nil
	}
	project, err := d.Projects.SelectProjectByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("d.Projects.SelectProjectByID: %w", err)
	}
	if project == nil || project.Deleted {
		return nil, nil
	}
	d.Caches.Projects.Set(id, *project)
	return project, nil
}

func (d *Database) ProjectIDsByOrg(ctx context.Context, orgID int64) ([]int64, error) {
	return d.Projects.SelectProjectIDsByOrg(ctx, orgID)
}

// CreatePage assigns the page's external id server-side.
func (d *Database) CreatePage(ctx context.Context, projectID, creatorID int64, title string) (*api.Page, error) {
	page := &api.Page{
		ExternalID: uuid.NewString(),
		ProjectID:  projectID,
		CreatorID:  creatorID,
		Title:      title,
		CreatedTS:  types.AsTimestamp(time.Now()),
	}
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		id, err := d.Pages.InsertPage(ctx, txn, page.ExternalID, projectID, creatorID, title, page.CreatedTS)
		if err != nil {
			return fmt.Errorf("d.Pages.InsertPage: %w", err)
		}
		page.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	d.Caches.Pages.Set(page.ExternalID, *page)
	return page, nil
}

// PageByExternalID returns nil for unknown and soft-deleted pages.
func (d *Database) PageByExternalID(ctx context.Context, externalID string) (*api.Page, error) {
	if cached, ok := d.Caches.Pages.Get(externalID); ok {
		return &cached, nil
	}
	page, err := d.Pages.SelectPageByExternalID(ctx, externalID)
	if err != nil {
		return nil, fmt.Errorf("d.Pages.SelectPageByExternalID: %w", err)
	}
	if page == nil || page.Deleted {
		return nil, nil
	}
	d.Caches.Pages.Set(externalID, *page)
	return page, nil
}

func (d *Database) UpdatePageTitle(ctx context.Context, externalID, title string) (bool, error) {
	var updated bool
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) (err error) {
		updated, err = d.Pages.UpdatePageTitle(ctx, txn, externalID, title)
		return err
	})
	if updated {
		d.Caches.Pages.Unset(externalID)
	}
	return updated, err
}

func (d *Database) SoftDeletePage(ctx context.Context, externalID string) (bool, error) {
	var deleted bool
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) (err error) {
		deleted, err = d.Pages.SoftDeletePage(ctx, txn, externalID)
		return err
	})
	if deleted {
		d.Caches.Pages.Unset(externalID)
	}
	return deleted, err
}

func (d *Database) PageExternalIDsByProject(ctx context.Context, projectID int64) ([]string, error) {
	return d.Pages.SelectPageExternalIDsByProject(ctx, projectID)
}

// PageExternalIDsByOrg lists every live page in every live project of the
// org. Used to fan access_revoked out when an org membership is removed.
func (d *Database) PageExternalIDsByOrg(ctx context.Context, orgID int64) ([]string, error) {
	projectIDs, err := d.Projects.SelectProjectIDsByOrg(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("d.Projects.SelectProjectIDsByOrg: %w", err)
	}
	var externalIDs []string
	for _, projectID := range projectIDs {
		ids, err := d.Pages.SelectPageExternalIDsByProject(ctx, projectID)
		if err != nil {
			return nil, fmt.Errorf("d.Pages.SelectPageExternalIDsByProject: %w", err)
		}
		externalIDs = append(externalIDs, ids...)
	}
	return externalIDs, nil
}

func (d *Database) UpsertProjectEditor(ctx context.Context, projectID, userID int64, role api.EditorRole) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.ProjectEditors.UpsertProjectEditor(ctx, txn, projectID, userID, role)
	})
}

func (d *Database) RemoveProjectEditor(ctx context.Context, projectID, userID int64) (bool, error) {
	var removed bool
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) (err error) {
		removed, err = d.ProjectEditors.DeleteProjectEditor(ctx, txn, projectID, userID)
		return err
	})
	return removed, err
}

func (d *Database) UpsertPageEditor(ctx context.Context, pageID, userID int64, role api.EditorRole) error {
	return d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.PageEditors.UpsertPageEditor(ctx, txn, pageID, userID, role)
	})
}

func (d *Database) RemovePageEditor(ctx context.Context, pageID, userID int64) (bool, error) {
	var removed bool
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) (err error) {
		removed, err = d.PageEditors.DeletePageEditor(ctx, txn, pageID, userID)
		return err
	})
	return removed, err
}

// The four methods below are the permission resolver's query surface. Each
// issues exactly one query.

func (d *Database) SelectOrgAdmin(ctx context.Context, orgID, userID int64) (bool, error) {
	role, ok, err := d.OrgMembers.SelectOrgMemberRole(ctx, orgID, userID)
	if err != nil {
		return false, fmt.Errorf("d.OrgMembers.SelectOrgMemberRole: %w", err)
	}
	return ok && role == api.OrgRoleAdmin, nil
}

func (d *Database) SelectOrgMember(ctx context.Context, orgID, userID int64) (bool, error) {
	_, ok, err := d.OrgMembers.SelectOrgMemberRole(ctx, orgID, userID)
	if err != nil {
		return false, fmt.Errorf("d.OrgMembers.SelectOrgMemberRole: %w", err)
	}
	return ok, nil
}

func (d *Database) SelectProjectEditorRole(ctx context.Context, projectID, userID int64) (api.EditorRole, bool, error) {
	return d.ProjectEditors.SelectProjectEditorRole(ctx, projectID, userID)
}

func (d *Database) SelectPageEditorRole(ctx context.Context, pageID, userID int64) (api.EditorRole, bool, error) {
	return d.PageEditors.SelectPageEditorRole(ctx, pageID, userID)
}
