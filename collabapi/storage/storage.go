// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package storage

import (
	"fmt"

	"github.com/hyperclast/pagesync/collabapi/storage/postgres"
	"github.com/hyperclast/pagesync/collabapi/storage/sqlite3"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup/config"
)

// NewDatabase opens a collab database for the connection string in the
// given options, selecting the engine by scheme.
func NewDatabase(cm *sqlutil.Connections, dbProperties *config.DatabaseOptions) (Database, error) {
	connectionString := dbProperties.ConnectionString
	db, writer, err := cm.Connection(dbProperties)
	if err != nil {
		return nil, fmt.Errorf("cm.Connection: %w", err)
	}
	switch {
	case connectionString.IsSQLite():
		return sqlite3.NewDatabase(db, writer)
	case connectionString.IsPostgres():
		return postgres.NewDatabase(db, writer)
	case connectionString == "":
		// Using the shared global pool; engine follows whatever it is.
		if _, ok := writer.(*sqlutil.ExclusiveWriter); ok {
			return sqlite3.NewDatabase(db, writer)
		}
		return postgres.NewDatabase(db, writer)
	default:
		return nil, fmt.Errorf("unexpected database type %q", connectionString)
	}
}
