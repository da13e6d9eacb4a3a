// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"database/sql"
	"fmt"

	// Import the sqlite3 database driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperclast/pagesync/collabapi/storage/shared"
	"github.com/hyperclast/pagesync/internal/sqlutil"
)

// NewDatabase opens the SQLite collab database and prepares its tables.
func NewDatabase(db *sql.DB, writer sqlutil.Writer) (*shared.Database, error) {
	updates, err := NewSqliteUpdatesTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewSqliteUpdatesTable: %w", err)
	}
	snapshots, err := NewSqliteSnapshotsTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewSqliteSnapshotsTable: %w", err)
	}
	return &shared.Database{
		DB:        db,
		Writer:    writer,
		Updates:   updates,
		Snapshots: snapshots,
	}, nil
}
