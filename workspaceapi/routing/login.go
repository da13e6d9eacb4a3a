// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package routing

import (
	"net/http"
	"time"

	"github.com/matrix-org/util"

	"github.com/hyperclast/pagesync/internal/httputil"
	iutil "github.com/hyperclast/pagesync/internal/util"
	"github.com/hyperclast/pagesync/workspaceapi/auth"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token  string `json:"token"`
	UserID int64  `json:"user_id"`
}

// Login exchanges an email and password for a session token. Unknown
// emails and wrong passwords return the same response so the endpoint
// cannot be used to enumerate accounts.
func Login(req *http.Request, db storage.Database, authn *auth.Authenticator) util.JSONResponse {
	var body loginRequest
	if errResp := httputil.UnmarshalJSONRequest(req, &body); errResp != nil {
		return *errResp
	}
	if body.Email == "" || body.Password == "" {
		return httputil.BadRequestError("Both email and password are required")
	}

	user, hash, err := db.UserByEmail(req.Context(), iutil.NormalizeEmail(body.Email))
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to look up user")
		return httputil.InternalServerError()
	}
	if user == nil || !auth.CheckPassword(hash, body.Password) {
		return httputil.UnauthorizedError("Incorrect email or password")
	}

	token, err := authn.IssueToken(user.ID, time.Now())
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("Failed to issue token")
		return httputil.InternalServerError()
	}
	return util.JSONResponse{
		Code: http.StatusOK,
		JSON: loginResponse{Token: token, UserID: user.ID},
	}
}
