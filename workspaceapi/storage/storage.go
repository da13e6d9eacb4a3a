// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package storage

import (
	"fmt"

	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/storage/postgres"
	"github.com/hyperclast/pagesync/workspaceapi/storage/sqlite3"
)

// NewDatabase opens a workspace database for the connection string in the
// given options, selecting the engine by scheme.
func NewDatabase(cm *sqlutil.Connections, dbProperties *config.DatabaseOptions, caches *caching.Caches) (Database, error) {
	connectionString := dbProperties.ConnectionString
	db, writer, err := cm.Connection(dbProperties)
	if err != nil {
		return nil, fmt.Errorf("cm.Connection: %w", err)
	}
	switch {
	case connectionString.IsSQLite():
		return sqlite3.NewDatabase(db, writer, caches)
	case connectionString.IsPostgres():
		return postgres.NewDatabase(db, writer, caches)
	case connectionString == "":
		// Using the shared global pool; engine follows whatever it is.
		if _, ok := writer.(*sqlutil.ExclusiveWriter); ok {
			return sqlite3.NewDatabase(db, writer, caches)
		}
		return postgres.NewDatabase(db, writer, caches)
	default:
		return nil, fmt.Errorf("unexpected database type %q", connectionString)
	}
}
