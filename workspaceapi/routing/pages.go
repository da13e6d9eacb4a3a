// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package routing

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/matrix-org/util"

	"github.com/hyperclast/pagesync/collabapi/perm"
	"github.com/hyperclast/pagesync/collabapi/producers"
	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

type createPageRequest struct {
	ProjectID int64  `json:"project_id"`
	Title     string `json:"title"`
}

// CreatePage creates a page in a project the caller can edit. The page's
// external id is assigned server-side; clients never pick room names.
func CreatePage(req *http.Request, db storage.Database, user *api.User) util.JSONResponse {
	var body createPageRequest
	if errResp := httputil.UnmarshalJSONRequest(req, &body); errResp != nil {
		return *errResp
	}

	project, err := db.ProjectByID(req.Context(), body.ProjectID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to look up project")
		return httputil.InternalServerError()
	}
	if project == nil {
		return httputil.NotFoundError("No such project")
	}
	level, err := projectAccessLevel(req.Context(), db, user, project)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to evaluate project access")
		return httputil.InternalServerError()
	}
	if !level.CanWrite() {
		return httputil.ForbiddenError("You do not have edit access to this project")
	}

	page, err := db.CreatePage(req.Context(), project.ID, user.ID, body.Title)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to create page")
		return httputil.InternalServerError()
	}
	return util.JSONResponse{Code: http.StatusCreated, JSON: page}
}

// GetPage returns the page record to any caller with read access.
func GetPage(
	req *http.Request, db storage.Database, resolver *perm.Resolver, user *api.User,
) util.JSONResponse {
	page, project, resp := loadPage(req, db)
	if resp != nil {
		return *resp
	}
	level, err := resolver.AccessLevel(req.Context(), user, page, project)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to evaluate access")
		return httputil.InternalServerError()
	}
	if !level.CanRead() {
		return httputil.ForbiddenError("You do not have access to this page")
	}
	return util.JSONResponse{Code: http.StatusOK, JSON: page}
}

type updatePageRequest struct {
	Title string `json:"title"`
}

// UpdatePage renames the page and notifies live sessions that listing
// surfaces went stale.
func UpdatePage(
	req *http.Request, db storage.Database, resolver *perm.Resolver,
	producer *producers.ControlEvents, user *api.User,
) util.JSONResponse {
	var body updatePageRequest
	if errResp := httputil.UnmarshalJSONRequest(req, &body); errResp != nil {
		return *errResp
	}

	page, project, resp := loadPage(req, db)
	if resp != nil {
		return *resp
	}
	level, err := resolver.AccessLevel(req.Context(), user, page, project)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to evaluate access")
		return httputil.InternalServerError()
	}
	if !level.CanWrite() {
		return httputil.ForbiddenError("You do not have edit access to this page")
	}

	updated, err := db.UpdatePageTitle(req.Context(), page.ExternalID, body.Title)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to update page")
		return httputil.InternalServerError()
	}
	if !updated {
		return httputil.NotFoundError("No such page")
	}
	producer.LinksUpdated(req.Context(), page.ExternalID)

	page.Title = body.Title
	return util.JSONResponse{Code: http.StatusOK, JSON: page}
}

// loadPage fetches the page and its project, mapping unknown and
// soft-deleted records to 404.
func loadPage(req *http.Request, db storage.Database) (*api.Page, *api.Project, *util.JSONResponse) {
	externalID := mux.Vars(req)["pageExternalID"]
	page, err := db.PageByExternalID(req.Context(), externalID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to look up page")
		resp := httputil.InternalServerError()
		return nil, nil, &resp
	}
	if page == nil {
		resp := httputil.NotFoundError("No such page")
		return nil, nil, &resp
	}
	project, err := db.ProjectByID(req.Context(), page.ProjectID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to look up project")
		resp := httputil.InternalServerError()
		return nil, nil, &resp
	}
	if project == nil {
		resp := httputil.NotFoundError("No such page")
		return nil, nil, &resp
	}
	return page, project, nil
}
