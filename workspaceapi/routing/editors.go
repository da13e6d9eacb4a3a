// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package routing

import (
	"net/http"

	"github.com/matrix-org/util"

	"github.com/hyperclast/pagesync/collabapi/producers"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

type editorRoleRequest struct {
	Role api.EditorRole `json:"role"`
}

// UpsertPageEditor grants or changes a per-page editor role. A downgrade
// from editor to viewer publishes write_permission_revoked so live sessions
// of the target drop to read-only without reconnecting.
func UpsertPageEditor(
	req *http.Request, db storage.Database, producer *producers.ControlEvents, user *api.User,
) util.JSONResponse {
	var body editorRoleRequest
	if errResp := httputil.UnmarshalJSONRequest(req, &body); errResp != nil {
		return *errResp
	}
	if !body.Role.Valid() {
		return httputil.BadRequestError("Role must be editor or viewer")
	}

	page, project, resp := loadPage(req, db)
	if resp != nil {
		return *resp
	}
	targetID, resp := pathID(req, "userID")
	if resp != nil {
		return *resp
	}
	if resp := requireProjectAdmin(req, db, user, project); resp != nil {
		return *resp
	}
	if resp := requireUserExists(req, db, targetID); resp != nil {
		return *resp
	}

	previous, hadGrant, err := db.SelectPageEditorRole(req.Context(), page.ID, targetID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to look up page editor role")
		return httputil.InternalServerError()
	}
	if err = db.UpsertPageEditor(req.Context(), page.ID, targetID, body.Role); err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to upsert page editor")
		return httputil.InternalServerError()
	}
	if hadGrant && previous == api.EditorRoleEditor && body.Role == api.EditorRoleViewer {
		producer.WritePermissionRevoked(req.Context(), page.ExternalID, targetID)
	}
	return util.JSONResponse{Code: http.StatusOK, JSON: struct{}{}}
}

// RemovePageEditor drops a per-page grant and publishes access_revoked.
// Sessions holding access through another tier survive the re-check.
func RemovePageEditor(
	req *http.Request, db storage.Database, producer *producers.ControlEvents, user *api.User,
) util.JSONResponse {
	page, project, resp := loadPage(req, db)
	if resp != nil {
		return *resp
	}
	targetID, resp := pathID(req, "userID")
	if resp != nil {
		return *resp
	}
	if resp := requireProjectAdmin(req, db, user, project); resp != nil {
		return *resp
	}

	removed, err := db.RemovePageEditor(req.Context(), page.ID, targetID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to remove page editor")
		return httputil.InternalServerError()
	}
	if !removed {
		return httputil.NotFoundError("No such grant")
	}
	producer.AccessRevoked(req.Context(), page.ExternalID, targetID)
	return util.JSONResponse{Code: http.StatusOK, JSON: struct{}{}}
}

// UpsertProjectEditor grants or changes a project-wide editor role. The
// downgrade rule matches the per-page endpoint but fans out to every live
// page in the project.
func UpsertProjectEditor(
	req *http.Request, db storage.Database, producer *producers.ControlEvents, user *api.User,
) util.JSONResponse {
	var body editorRoleRequest
	if errResp := httputil.UnmarshalJSONRequest(req, &body); errResp != nil {
		return *errResp
	}
	if !body.Role.Valid() {
		return httputil.BadRequestError("Role must be editor or viewer")
	}

	project, resp := loadProject(req, db)
	if resp != nil {
		return *resp
	}
	targetID, resp := pathID(req, "userID")
	if resp != nil {
		return *resp
	}
	if resp := requireProjectAdmin(req, db, user, project); resp != nil {
		return *resp
	}
	if resp := requireUserExists(req, db, targetID); resp != nil {
		return *resp
	}

	previous, hadGrant, err := db.SelectProjectEditorRole(req.Context(), project.ID, targetID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to look up project editor role")
		return httputil.InternalServerError()
	}
	if err = db.UpsertProjectEditor(req.Context(), project.ID, targetID, body.Role); err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to upsert project editor")
		return httputil.InternalServerError()
	}
	if hadGrant && previous == api.EditorRoleEditor && body.Role == api.EditorRoleViewer {
		fanOut(req, db, project.ID, func(externalID string) {
			producer.WritePermissionRevoked(req.Context(), externalID, targetID)
		})
	}
	return util.JSONResponse{Code: http.StatusOK, JSON: struct{}{}}
}

// RemoveProjectEditor drops a project-wide grant and publishes
// access_revoked for every page in the project.
func RemoveProjectEditor(
	req *http.Request, db storage.Database, producer *producers.ControlEvents, user *api.User,
) util.JSONResponse {
	project, resp := loadProject(req, db)
	if resp != nil {
		return *resp
	}
	targetID, resp := pathID(req, "userID")
	if resp != nil {
		return *resp
	}
	if resp := requireProjectAdmin(req, db, user, project); resp != nil {
		return *resp
	}

	removed, err := db.RemoveProjectEditor(req.Context(), project.ID, targetID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to remove project editor")
		return httputil.InternalServerError()
	}
	if !removed {
		return httputil.NotFoundError("No such grant")
	}
	fanOut(req, db, project.ID, func(externalID string) {
		producer.AccessRevoked(req.Context(), externalID, targetID)
	})
	return util.JSONResponse{Code: http.StatusOK, JSON: struct{}{}}
}

func loadProject(req *http.Request, db storage.Database) (*api.Project, *util.JSONResponse) {
	projectID, resp := pathID(req, "projectID")
	if resp != nil {
		return nil, resp
	}
	project, err := db.ProjectByID(req.Context(), projectID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to look up project")
		errResp := httputil.InternalServerError()
		return nil, &errResp
	}
	if project == nil {
		errResp := httputil.NotFoundError("No such project")
		return nil, &errResp
	}
	return project, nil
}

func requireProjectAdmin(
	req *http.Request, db storage.Database, user *api.User, project *api.Project,
) *util.JSONResponse {
	level, err := projectAccessLevel(req.Context(), db, user, project)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to evaluate project access")
		resp := httputil.InternalServerError()
		return &resp
	}
	if level < types.AccessAdmin {
		resp := httputil.ForbiddenError("Only project admins can manage editors")
		return &resp
	}
	return nil
}

func requireUserExists(req *http.Request, db storage.Database, userID int64) *util.JSONResponse {
	target, err := db.UserByID(req.Context(), userID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to look up user")
		resp := httputil.InternalServerError()
		return &resp
	}
	if target == nil {
		resp := httputil.NotFoundError("No such user")
		return &resp
	}
	return nil
}

// fanOut applies f to every live page of the project. Failures to list are
// logged, not surfaced: the grant change is already committed and sessions
// re-check on their next connect regardless.
func fanOut(req *http.Request, db storage.Database, projectID int64, f func(externalID string)) {
	externalIDs, err := db.PageExternalIDsByProject(req.Context(), projectID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to list project pages for fan-out")
		return
	}
	for _, externalID := range externalIDs {
		f(externalID)
	}
}
