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

	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/workspaceapi/storage/shared"
)

// NewDatabase opens the SQLite workspace database and prepares its tables.
func NewDatabase(db *sql.DB, writer sqlutil.Writer, caches *caching.Caches) (*shared.Database, error) {
	users, err := NewSqliteUsersTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewSqliteUsersTable: %w", err)
	}
	orgs, orgMembers, err := NewSqliteOrgsTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewSqliteOrgsTable: %w", err)
	}
	projects, projectEditors, err := NewSqliteProjectsTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewSqliteProjectsTable: %w", err)
	}
	pages, pageEditors, err := NewSqlitePagesTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewSqlitePagesTable: %w", err)
	}
	return &shared.Database{
		DB:             db,
		Writer:         writer,
		Caches:         caches,
		Users:          users,
		Orgs:           orgs,
		OrgMembers:     orgMembers,
		Projects:       projects,
		ProjectEditors: projectEditors,
		Pages:          pages,
		PageEditors:    pageEditors,
	}, nil
}
