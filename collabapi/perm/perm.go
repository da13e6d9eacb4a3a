// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package perm computes a user's access level for a page. Evaluation is
// tiered and short-circuits: project creator, then org admin, then org-wide
// project access, then explicit project grants, then explicit page grants.
// The tiers are ordered so that the broadest grants cost the fewest
// queries; a full miss costs exactly four.
package perm

import (
	"context"
	"fmt"

	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/workspaceapi/api"
)

// Store is the slice of workspace storage the resolver needs. Each method
// issues exactly one query; the resolver's cost contract depends on that.
type Store interface {
	// SelectOrgAdmin reports whether the user holds the admin role in the org.
	SelectOrgAdmin(ctx context.Context, orgID, userID int64) (bool, error)
	// SelectOrgMember reports whether the user is a member of the org at any role.
	SelectOrgMember(ctx context.Context, orgID, userID int64) (bool, error)
	// SelectProjectEditorRole returns the user's explicit project grant, if any.
	SelectProjectEditorRole(ctx context.Context, projectID, userID int64) (api.EditorRole, bool, error)
	// SelectPageEditorRole returns the user's explicit page grant, if any.
	SelectPageEditorRole(ctx context.Context, pageID, userID int64) (api.EditorRole, bool, error)
}

type Resolver struct {
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// AccessLevel evaluates the tiers in order and returns the first hit.
// Anonymous users resolve to none without touching storage, as does the
// project creator (at admin). An explicit viewer grant at the project tier
// is final: a page-tier editor grant cannot override it, because the
// project grant is the more deliberate one.
func (r *Resolver) AccessLevel(ctx context.Context, user *api.User, page *api.Page, project *api.Project) (types.AccessLevel, error) {
	if user == nil {
		return types.AccessNone, nil
	}
	if project.CreatorID == user.ID {
		return types.AccessAdmin, nil
	}

	admin, err := r.store.SelectOrgAdmin(ctx, project.OrgID, user.ID)
	if err != nil {
		return types.AccessNone, fmt.Errorf("store.SelectOrgAdmin: %w", err)
	}
	if admin {
		return types.AccessAdmin, nil
	}

	member, err := r.store.SelectOrgMember(ctx, project.OrgID, user.ID)
	if err != nil {
		return types.AccessNone, fmt.Errorf("store.SelectOrgMember: %w", err)
	}
	if member && project.OrgMembersCanAccess {
		return types.AccessEditor, nil
	}

	role, ok, err := r.store.SelectProjectEditorRole(ctx, project.ID, user.ID)
	if err != nil {
		return types.AccessNone, fmt.Errorf("store.SelectProjectEditorRole: %w", err)
	}
	if ok {
		return role.AccessLevel(), nil
	}

	role, ok, err = r.store.SelectPageEditorRole(ctx, page.ID, user.ID)
	if err != nil {
		return types.AccessNone, fmt.Errorf("store.SelectPageEditorRole: %w", err)
	}
	if ok {
		return role.AccessLevel(), nil
	}

	return types.AccessNone, nil
}
