// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package routing

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/matrix-org/util"

	"github.com/hyperclast/pagesync/collabapi/producers"
	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

type createOrgRequest struct {
	Name string `json:"name"`
}

// CreateOrg creates an org with the caller as its first admin.
func CreateOrg(req *http.Request, db storage.Database, user *api.User) util.JSONResponse {
	var body createOrgRequest
	if errResp := httputil.UnmarshalJSONRequest(req, &body); errResp != nil {
		return *errResp
	}
	if body.Name == "" {
		return httputil.BadRequestError("A non-empty name is required")
	}

	org, err := db.CreateOrg(req.Context(), body.Name, user.ID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to create org")
		return httputil.InternalServerError()
	}
	return util.JSONResponse{Code: http.StatusCreated, JSON: org}
}

type createProjectRequest struct {
	OrgID               int64  `json:"org_id"`
	Name                string `json:"name"`
	OrgMembersCanAccess bool   `json:"org_members_can_access"`
}

// CreateProject creates a project in an org the caller belongs to.
func CreateProject(req *http.Request, db storage.Database, user *api.User) util.JSONResponse {
	var body createProjectRequest
	if errResp := httputil.UnmarshalJSONRequest(req, &body); errResp != nil {
		return *errResp
	}
	if body.Name == "" {
		return httputil.BadRequestError("A non-empty name is required")
	}

	member, err := db.SelectOrgMember(req.Context(), body.OrgID, user.ID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to check org membership")
		return httputil.InternalServerError()
	}
	if !member {
		return httputil.ForbiddenError("You are not a member of this org")
	}

	project, err := db.CreateProject(req.Context(), body.OrgID, body.Name, user.ID, body.OrgMembersCanAccess)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to create project")
		return httputil.InternalServerError()
	}
	return util.JSONResponse{Code: http.StatusCreated, JSON: project}
}

// RemoveOrgMember removes a user from an org and raises access_revoked for
// every live page in every project of the org, so any open sessions held
// only through the membership re-check their grants.
func RemoveOrgMember(
	req *http.Request, db storage.Database, producer *producers.ControlEvents, user *api.User,
) util.JSONResponse {
	orgID, resp := pathID(req, "orgID")
	if resp != nil {
		return *resp
	}
	targetID, resp := pathID(req, "userID")
	if resp != nil {
		return *resp
	}

	admin, err := db.SelectOrgAdmin(req.Context(), orgID, user.ID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to check org role")
		return httputil.InternalServerError()
	}
	if !admin {
		return httputil.ForbiddenError("Only org admins can remove members")
	}

	removed, err := db.RemoveOrgMember(req.Context(), orgID, targetID)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to remove org member")
		return httputil.InternalServerError()
	}
	if !removed {
		return httputil.NotFoundError("No such membership")
	}

	pageIDs, err := db.PageExternalIDsByOrg(req.Context(), orgID)
	if err != nil {
		// The membership is already gone; the fan-out is best effort and
		// sessions re-check on their next connect anyway.
		util.GetLogger(req.Context()).WithError(err).Error("Failed to list org pages for revocation fan-out")
	}
	for _, externalID := range pageIDs {
		producer.AccessRevoked(req.Context(), externalID, targetID)
	}

	return util.JSONResponse{Code: http.StatusOK, JSON: struct{}{}}
}

// pathID parses an int64 path variable.
func pathID(req *http.Request, name string) (int64, *util.JSONResponse) {
	id, err := strconv.ParseInt(mux.Vars(req)[name], 10, 64)
	if err != nil {
		resp := httputil.BadRequestError("Invalid " + name)
		return 0, &resp
	}
	return id, nil
}
