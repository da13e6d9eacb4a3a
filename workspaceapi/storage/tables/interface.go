// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package tables

import (
	"context"
	"database/sql"

	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/workspaceapi/api"
)

type Users interface {
	InsertUser(ctx context.Context, txn *sql.Tx, email, passwordHash, displayName string, ts types.Timestamp) (int64, error)
	// SelectUserByEmail returns nil, "", nil when no such user exists.
	SelectUserByEmail(ctx context.Context, email string) (*api.User, string, error)
	SelectUserByID(ctx context.Context, id int64) (*api.User, error)
}

type Orgs interface {
	InsertOrg(ctx context.Context, txn *sql.Tx, name string, ts types.Timestamp) (int64, error)
	SelectOrgByID(ctx context.Context, id int64) (*api.Org, error)
}

type OrgMembers interface {
	UpsertOrgMember(ctx context.Context, txn *sql.Tx, orgID, userID int64, role api.OrgRole) error
	// SelectOrgMemberRole issues exactly one query; the permission
	// resolver's cost contract depends on that.
	SelectOrgMemberRole(ctx context.Context, orgID, userID int64) (api.OrgRole, bool, error)
	DeleteOrgMember(ctx context.Context, txn *sql.Tx, orgID, userID int64) (bool, error)
}

type Projects interface {
	InsertProject(ctx context.Context, txn *sql.Tx, orgID int64, name string, creatorID int64, orgMembersCanAccess bool, ts types.Timestamp) (int64, error)
	// SelectProjectByID returns soft-deleted rows too; filtering is the
	// caller's concern.
	SelectProjectByID(ctx context.Context, id int64) (*api.Project, error)
	SelectProjectIDsByOrg(ctx context.Context, orgID int64) ([]int64, error)
}

type ProjectEditors interface {
	UpsertProjectEditor(ctx context.Context, txn *sql.Tx, projectID, userID int64, role api.EditorRole) error
	SelectProjectEditorRole(ctx context.Context, projectID, userID int64) (api.EditorRole, bool, error)
	DeleteProjectEditor(ctx context.Context, txn *sql.Tx, projectID, userID int64) (bool, error)
}

type Pages interface {
	InsertPage(ctx context.Context, txn *sql.Tx, externalID string, projectID, creatorID int64, title string, ts types.Timestamp) (int64, error)
	SelectPageByExternalID(ctx context.Context, externalID string) (*api.Page, error)
	UpdatePageTitle(ctx context.Context, txn *sql.Tx, externalID, title string) (bool, error)
	SoftDeletePage(ctx context.Context, txn *sql.Tx, externalID string) (bool, error)
	SelectPageExternalIDsByProject(ctx context.Context, projectID int64) ([]string, error)
}

type PageEditors interface {
	UpsertPageEditor(ctx context.Context, txn *sql.Tx, pageID, userID int64, role api.EditorRole) error
	SelectPageEditorRole(ctx context.Context, pageID, userID int64) (api.EditorRole, bool, error)
	DeletePageEditor(ctx context.Context, txn *sql.Tx, pageID, userID int64) (bool, error)
}
