// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package routing registers the workspace REST handlers. The editor and
// membership endpoints double as the control plane for live rooms: grant
// changes publish control events so affected sessions react immediately.
package routing

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/matrix-org/util"

	"github.com/hyperclast/pagesync/collabapi/perm"
	"github.com/hyperclast/pagesync/collabapi/producers"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/auth"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

// Setup registers every REST endpoint on the workspace router.
func Setup(
	workspaceRouter *mux.Router,
	cfg *config.WorkspaceAPI,
	db storage.Database,
	authn *auth.Authenticator,
	producer *producers.ControlEvents,
) {
	rateLimits := httputil.NewRateLimits(&cfg.RateLimiting)
	resolver := perm.NewResolver(db)

	workspaceRouter.Handle("/auth/login",
		httputil.MakeExternalAPI("login", func(req *http.Request) util.JSONResponse {
			if r := rateLimits.Limit(req, nil); r != nil {
				return *r
			}
			return Login(req, db, authn)
		}),
	).Methods(http.MethodPost, http.MethodOptions)

	workspaceRouter.Handle("/orgs",
		authenticated("create_org", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return CreateOrg(req, db, user)
		}),
	).Methods(http.MethodPost, http.MethodOptions)

	workspaceRouter.Handle("/orgs/{orgID}/members/{userID}",
		authenticated("remove_org_member", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return RemoveOrgMember(req, db, producer, user)
		}),
	).Methods(http.MethodDelete, http.MethodOptions)

	workspaceRouter.Handle("/projects",
		authenticated("create_project", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return CreateProject(req, db, user)
		}),
	).Methods(http.MethodPost, http.MethodOptions)

	workspaceRouter.Handle("/projects/{projectID}/editors/{userID}",
		authenticated("upsert_project_editor", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return UpsertProjectEditor(req, db, producer, user)
		}),
	).Methods(http.MethodPut, http.MethodOptions)

	workspaceRouter.Handle("/projects/{projectID}/editors/{userID}",
		authenticated("remove_project_editor", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return RemoveProjectEditor(req, db, producer, user)
		}),
	).Methods(http.MethodDelete, http.MethodOptions)

	workspaceRouter.Handle("/pages",
		authenticated("create_page", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return CreatePage(req, db, user)
		}),
	).Methods(http.MethodPost, http.MethodOptions)

	workspaceRouter.Handle("/pages/{pageExternalID}",
		authenticated("get_page", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return GetPage(req, db, resolver, user)
		}),
	).Methods(http.MethodGet, http.MethodOptions)

	workspaceRouter.Handle("/pages/{pageExternalID}",
		authenticated("update_page", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return UpdatePage(req, db, resolver, producer, user)
		}),
	).Methods(http.MethodPut, http.MethodOptions)

	workspaceRouter.Handle("/pages/{pageExternalID}/editors/{userID}",
		authenticated("upsert_page_editor", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return UpsertPageEditor(req, db, producer, user)
		}),
	).Methods(http.MethodPut, http.MethodOptions)

	workspaceRouter.Handle("/pages/{pageExternalID}/editors/{userID}",
		authenticated("remove_page_editor", authn, rateLimits, func(req *http.Request, user *api.User) util.JSONResponse {
			return RemovePageEditor(req, db, producer, user)
		}),
	).Methods(http.MethodDelete, http.MethodOptions)
}

// authenticated wraps a handler with rate limiting and mandatory auth.
func authenticated(
	metricsName string,
	authn *auth.Authenticator,
	rateLimits *httputil.RateLimits,
	f func(req *http.Request, user *api.User) util.JSONResponse,
) http.Handler {
	return httputil.MakeExternalAPI(metricsName, func(req *http.Request) util.JSONResponse {
		user, err := authn.UserFromRequest(req)
		if err != nil {
			util.GetLogger(req.Context()).WithError(err).Error("Failed to resolve user")
			return httputil.InternalServerError()
		}
		if r := rateLimits.Limit(req, user); r != nil {
			return *r
		}
		if user == nil {
			return httputil.UnauthorizedError("A valid session token is required")
		}
		return f(req, user)
	})
}

// projectAccessLevel evaluates the permission tiers that apply at project
// scope: the page-grant tier does not exist here.
func projectAccessLevel(
	ctx context.Context, db storage.Database, user *api.User, project *api.Project,
) (types.AccessLevel, error) {
	if user == nil {
		return types.AccessNone, nil
	}
	if project.CreatorID == user.ID {
		return types.AccessAdmin, nil
	}
	admin, err := db.SelectOrgAdmin(ctx, project.OrgID, user.ID)
	if err != nil {
		return types.AccessNone, err
	}
	if admin {
		return types.AccessAdmin, nil
	}
	if project.OrgMembersCanAccess {
		member, err := db.SelectOrgMember(ctx, project.OrgID, user.ID)
		if err != nil {
			return types.AccessNone, err
		}
		if member {
			return types.AccessEditor, nil
		}
	}
	role, ok, err := db.SelectProjectEditorRole(ctx, project.ID, user.ID)
	if err != nil {
		return types.AccessNone, err
	}
	if ok {
		return role.AccessLevel(), nil
	}
	return types.AccessNone, nil
}
