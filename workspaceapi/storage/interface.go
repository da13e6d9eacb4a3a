// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package storage

import (
	"context"

	"github.com/hyperclast/pagesync/workspaceapi/api"
)

// Database is the full workspace storage surface. It is a superset of what
// the collab core needs: the page/project lookups consumed on every
// WebSocket handshake, the permission resolver's query methods, and the
// mutation methods backing the REST API.
type Database interface {
	// Users.
	CreateUser(ctx context.Context, email, passwordHash, displayName string) (*api.User, error)
	// UserByEmail also returns the stored password hash. Both the user and
	// the hash are zero-valued when the email is unknown.
	UserByEmail(ctx context.Context, email string) (*api.User, string, error)
	UserByID(ctx context.Context, id int64) (*api.User, error)

	// Orgs and memberships.
	CreateOrg(ctx context.Context, name string, creatorID int64) (*api.Org, error)
	OrgByID(ctx context.Context, id int64) (*api.Org, error)
	UpsertOrgMember(ctx context.Context, orgID, userID int64, role api.OrgRole) error
	RemoveOrgMember(ctx context.Context, orgID, userID int64) (bool, error)

	// Projects.
	CreateProject(ctx context.Context, orgID int64, name string, creatorID int64, orgMembersCanAccess bool) (*api.Project, error)
	// ProjectByID returns nil for unknown and soft-deleted projects.
	ProjectByID(ctx context.Context, id int64) (*api.Project, error)
	ProjectIDsByOrg(ctx context.Context, orgID int64) ([]int64, error)
	UpsertProjectEditor(ctx context.Context, projectID, userID int64, role api.EditorRole) error
	RemoveProjectEditor(ctx context.Context, projectID, userID int64) (bool, error)

	// Pages.
	CreatePage(ctx context.Context, projectID, creatorID int64, title string) (*api.Page, error)
	// PageByExternalID returns nil for unknown and soft-deleted pages.
	PageByExternalID(ctx context.Context, externalID string) (*api.Page, error)
	UpdatePageTitle(ctx context.Context, externalID, title string) (bool, error)
	SoftDeletePage(ctx context.Context, externalID string) (bool, error)
	PageExternalIDsByProject(ctx context.Context, projectID int64) ([]string, error)
	PageExternalIDsByOrg(ctx context.Context, orgID int64) ([]string, error)
	UpsertPageEditor(ctx context.Context, pageID, userID int64, role api.EditorRole) error
	RemovePageEditor(ctx context.Context, pageID, userID int64) (bool, error)

	// Permission resolver queries. Each issues exactly one query.
	SelectOrgAdmin(ctx context.Context, orgID, userID int64) (bool, error)
	SelectOrgMember(ctx context.Context, orgID, userID int64) (bool, error)
	SelectProjectEditorRole(ctx context.Context, projectID, userID int64) (api.EditorRole, bool, error)
	SelectPageEditorRole(ctx context.Context, pageID, userID int64) (api.EditorRole, bool, error)
}
