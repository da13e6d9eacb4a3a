// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package postgres

import (
	"database/sql"
	"fmt"

	// Import the postgres database driver.
	_ "github.com/lib/pq"

	"github.com/hyperclast/pagesync/collabapi/storage/shared"
	"github.com/hyperclast/pagesync/internal/sqlutil"
)

// NewDatabase opens the postgres collab database and prepares its tables.
func NewDatabase(db *sql.DB, writer sqlutil.Writer) (*shared.Database, error) {
	updates, err := NewPostgresUpdatesTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresUpdatesTable: %w", err)
	}
	snapshots, err := NewPostgresSnapshotsTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresSnapshotsTable: %w", err)
	}
	return &shared.Database{
		DB:        db,
		Writer:    writer,
		Updates:   updates,
		Snapshots: snapshots,
	}, nil
}
