// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package api defines the workspace records consumed by the collab core:
// users, orgs, projects, pages and the membership tables the permission
// resolver evaluates.
package api

import "github.com/hyperclast/pagesync/collabapi/types"

// OrgRole is a user's standing within an org.
type OrgRole string

const (
	OrgRoleAdmin  OrgRole = "admin"
	OrgRoleMember OrgRole = "member"
)

// EditorRole is an explicit per-project or per-page grant.
type EditorRole string

const (
	EditorRoleEditor EditorRole = "editor"
	EditorRoleViewer EditorRole = "viewer"
)

// AccessLevel maps an editor role to the access level it yields.
func (r EditorRole) AccessLevel() types.AccessLevel {
	switch r {
	case EditorRoleEditor:
		return types.AccessEditor
	case EditorRoleViewer:
		return types.AccessViewer
	default:
		return types.AccessNone
	}
}

// Valid reports whether the role is one of the known grants.
func (r EditorRole) Valid() bool {
	return r == EditorRoleEditor || r == EditorRoleViewer
}

type User struct {
	ID          int64           `json:"id"`
	Email       string          `json:"email"`
	DisplayName string          `json:"display_name"`
	CreatedTS   types.Timestamp `json:"created_ts"`
}

type Org struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	CreatedTS types.Timestamp `json:"created_ts"`
}

type Project struct {
	ID        int64  `json:"id"`
	OrgID     int64  `json:"org_id"`
	Name      string `json:"name"`
	CreatorID int64  `json:"creator_id"`
	// OrgMembersCanAccess opens the project to every org member at editor
	// level without an explicit project_editors row.
	OrgMembersCanAccess bool            `json:"org_members_can_access"`
	Deleted             bool            `json:"-"`
	CreatedTS           types.Timestamp `json:"created_ts"`
}

type Page struct {
	ID         int64           `json:"id"`
	ExternalID string          `json:"external_id"`
	ProjectID  int64           `json:"project_id"`
	CreatorID  int64           `json:"creator_id"`
	Title      string          `json:"title"`
	Deleted    bool            `json:"-"`
	CreatedTS  types.Timestamp `json:"created_ts"`
}

// RoomID returns the collab room id hosting this page.
func (p *Page) RoomID() string {
	return types.RoomID(p.ExternalID)
}
