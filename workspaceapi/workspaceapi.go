// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package workspaceapi

import (
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/collabapi/producers"
	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/auth"
	"github.com/hyperclast/pagesync/workspaceapi/routing"
	"github.com/hyperclast/pagesync/workspaceapi/storage"
)

// NewWorkspaceStorage opens the workspace database and builds the token
// authenticator over it. Runs before the collab component is wired, which
// consumes both for handshake lookups.
func NewWorkspaceStorage(
	cfg *config.Pagesync, cm *sqlutil.Connections, caches *caching.Caches,
) (storage.Database, *auth.Authenticator) {
	db, err := storage.NewDatabase(cm, &cfg.WorkspaceAPI.Database, caches)
	if err != nil {
		logrus.WithError(err).Panic("failed to connect to workspace db")
	}
	return db, auth.NewAuthenticator(&cfg.WorkspaceAPI.Auth, db)
}

// AddPublicRoutes registers the REST surface. The producer raises control
// events into live collab sessions when grants change.
func AddPublicRoutes(
	routers httputil.Routers,
	cfg *config.Pagesync,
	db storage.Database,
	authn *auth.Authenticator,
	producer *producers.ControlEvents,
) {
	routing.Setup(routers.Workspace, &cfg.WorkspaceAPI, db, authn, producer)
}
