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

	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/workspaceapi/storage/shared"
)

// NewDatabase opens the Postgres workspace database and prepares its tables.
func NewDatabase(db *sql.DB, writer sqlutil.Writer, caches *caching.Caches) (*shared.Database, error) {
	users, err := NewPostgresUsersTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresUsersTable: %w", err)
	}
	orgs, orgMembers, err := NewPostgresOrgsTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresOrgsTable: %w", err)
	}
	projects, projectEditors, err := NewPostgresProjectsTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresProjectsTable: %w", err)
	}
	pages, pageEditors, err := NewPostgresPagesTable(db)
	if err != nil {
		return nil, fmt.Errorf("NewPostgresPagesTable: %w", err)
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
