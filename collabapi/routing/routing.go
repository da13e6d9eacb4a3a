// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package routing

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/hyperclast/pagesync/collabapi/sync"
)

// Setup registers the WebSocket endpoint on the collab router. The path is
// registered with and without the trailing slash; clients are split on
// which one they produce.
func Setup(collabRouter *mux.Router, server *sync.Server) {
	handler := func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		server.HandlePage(w, req, vars["pageExternalID"])
	}
	collabRouter.HandleFunc("/pages/{pageExternalID}/", handler).Methods(http.MethodGet)
	collabRouter.HandleFunc("/pages/{pageExternalID}", handler).Methods(http.MethodGet)
}
