// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package httputil

import (
	"encoding/json"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/matrix-org/util"
)

// ErrorBody is the JSON shape of every REST error response, mirroring the
// `{code, message}` control frames on the collab socket.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}

func InternalServerError() util.JSONResponse {
	return util.JSONResponse{
		Code: http.StatusInternalServerError,
		JSON: ErrorBody{Code: "internal_error", Message: "Internal server error"},
	}
}

func NotFoundError(msg string) util.JSONResponse {
	return util.JSONResponse{
		Code: http.StatusNotFound,
		JSON: ErrorBody{Code: "not_found", Message: msg},
	}
}

func ForbiddenError(msg string) util.JSONResponse {
	return util.JSONResponse{
		Code: http.StatusForbidden,
		JSON: ErrorBody{Code: "forbidden", Message: msg},
	}
}

func UnauthorizedError(msg string) util.JSONResponse {
	return util.JSONResponse{
		Code: http.StatusUnauthorized,
		JSON: ErrorBody{Code: "unauthorized", Message: msg},
	}
}

func BadRequestError(msg string) util.JSONResponse {
	return util.JSONResponse{
		Code: http.StatusBadRequest,
		JSON: ErrorBody{Code: "bad_request", Message: msg},
	}
}

func LimitExceededError() util.JSONResponse {
	return util.JSONResponse{
		Code: http.StatusTooManyRequests,
		JSON: ErrorBody{Code: "rate_limited", Message: "You are sending too many requests too quickly!"},
	}
}

// UnmarshalJSONRequest into the given interface pointer. Returns an error
// JSON response if there was a problem unmarshalling. Calling this function
// consumes the request body.
func UnmarshalJSONRequest(req *http.Request, iface interface{}) *util.JSONResponse {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		util.GetLogger(req.Context()).WithError(err).Error("io.ReadAll failed")
		resp := InternalServerError()
		return &resp
	}
	return UnmarshalJSON(body, iface)
}

func UnmarshalJSON(body []byte, iface interface{}) *util.JSONResponse {
	if !utf8.Valid(body) {
		resp := BadRequestError("Body contains invalid UTF-8")
		return &resp
	}
	if err := json.Unmarshal(body, iface); err != nil {
		resp := BadRequestError("The request body could not be decoded into valid JSON. " + err.Error())
		return &resp
	}
	return nil
}
