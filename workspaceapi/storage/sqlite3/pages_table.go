// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"context"
	"database/sql"

	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/storage/tables"
)

const pagesSchema = `
CREATE TABLE IF NOT EXISTS workspaceapi_pages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	external_id TEXT NOT NULL UNIQUE,
	project_id BIGINT NOT NULL,
	creator_id BIGINT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	deleted BOOLEAN NOT NULL DEFAULT 0,
	created_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS workspaceapi_pages_project_id ON workspaceapi_pages(project_id);

CREATE TABLE IF NOT EXISTS workspaceapi_page_editors (
	page_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	role TEXT NOT NULL,
	PRIMARY KEY (page_id, user_id)
);
`

const insertPageSQL = "" +
	"INSERT INTO workspaceapi_pages (external_id, project_id, creator_id, title, created_ts)" +
	" VALUES ($1, $2, $3, $4, $5)"

const selectPageByExternalIDSQL = "" +
	"SELECT id, external_id, project_id, creator_id, title, deleted, created_ts" +
	" FROM workspaceapi_pages WHERE external_id = $1"

const updatePageTitleSQL = "" +
	"UPDATE workspaceapi_pages SET title = $2 WHERE external_id = $1 AND NOT deleted"

const softDeletePageSQL = "" +
	"UPDATE workspaceapi_pages SET deleted = 1 WHERE external_id = $1 AND NOT deleted"

const selectPageExternalIDsByProjectSQL = "" +
	"SELECT external_id FROM workspaceapi_pages WHERE project_id = $1 AND NOT deleted"

const upsertPageEditorSQL = "" +
	"INSERT INTO workspaceapi_page_editors (page_id, user_id, role) VALUES ($1, $2, $3)" +
	" ON CONFLICT (page_id, user_id) DO UPDATE SET role = $3"

const selectPageEditorRoleSQL = "" +
	"SELECT role FROM workspaceapi_page_editors WHERE page_id = $1 AND user_id = $2"

const deletePageEditorSQL = "" +
	"DELETE FROM workspaceapi_page_editors WHERE page_id = $1 AND user_id = $2"

type pagesStatements struct {
	insertPageStmt                     *sql.Stmt
	selectPageByExternalIDStmt         *sql.Stmt
	updatePageTitleStmt                *sql.Stmt
	softDeletePageStmt                 *sql.Stmt
	selectPageExternalIDsByProjectStmt *sql.Stmt
	upsertPageEditorStmt               *sql.Stmt
	selectPageEditorRoleStmt           *sql.Stmt
	deletePageEditorStmt               *sql.Stmt
}

func NewSqlitePagesTable(db *sql.DB) (tables.Pages, tables.PageEditors, error) {
	_, err := db.Exec(pagesSchema)
	if err != nil {
		return nil, nil, err
	}
	s := &pagesStatements{}
	return s, s, sqlutil.StatementList{
		{&s.insertPageStmt, insertPageSQL},
		{&s.selectPageByExternalIDStmt, selectPageByExternalIDSQL},
		{&s.updatePageTitleStmt, updatePageTitleSQL},
		{&s.softDeletePageStmt, softDeletePageSQL},
		{&s.selectPageExternalIDsByProjectStmt, selectPageExternalIDsByProjectSQL},
		{&s.upsertPageEditorStmt, upsertPageEditorSQL},
		{&s.selectPageEditorRoleStmt, selectPageEditorRoleSQL},
		{&s.deletePageEditorStmt, deletePageEditorSQL},
	}.Prepare(db)
}

func (s *pagesStatements) InsertPage(
	ctx context.Context, txn *sql.Tx, externalID string, projectID, creatorID int64,
	title string, ts types.Timestamp,
) (int64, error) {
	result, err := sqlutil.TxStmt(txn, s.insertPageStmt).ExecContext(
		ctx, externalID, projectID, creatorID, title, ts,
	)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *pagesStatements) SelectPageByExternalID(
	ctx context.Context, externalID string,
) (*api.Page, error) {
	var page api.Page
	err := s.selectPageByExternalIDStmt.QueryRowContext(ctx, externalID).Scan(
		&page.ID, &page.ExternalID, &page.ProjectID, &page.CreatorID,
		&page.Title, &page.Deleted, &page.CreatedTS,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *pagesStatements) UpdatePageTitle(
	ctx context.Context, txn *sql.Tx, externalID, title string,
) (bool, error) {
	result, err := sqlutil.TxStmt(txn, s.updatePageTitleStmt).ExecContext(ctx, externalID, title)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (s *pagesStatements) SoftDeletePage(
	ctx context.Context, txn *sql.Tx, externalID string,
) (bool, error) {
	result, err := sqlutil.TxStmt(txn, s.softDeletePageStmt).ExecContext(ctx, externalID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

func (s *pagesStatements) SelectPageExternalIDsByProject(
	ctx context.Context, projectID int64,
) ([]string, error) {
	rows, err := s.selectPageExternalIDsByProjectStmt.QueryContext(ctx, projectID)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectPageExternalIDsByProject: rows.close() failed")
	var ids []string
	for rows.Next() {
		var id string
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *pagesStatements) UpsertPageEditor(
	ctx context.Context, txn *sql.Tx, pageID, userID int64, role api.EditorRole,
) error {
	_, err := sqlutil.TxStmt(txn, s.upsertPageEditorStmt).ExecContext(ctx, pageID, userID, string(role))
	return err
}

func (s *pagesStatements) SelectPageEditorRole(
	ctx context.Context, pageID, userID int64,
) (api.EditorRole, bool, error) {
	var role string
	err := s.selectPageEditorRoleStmt.QueryRowContext(ctx, pageID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return api.EditorRole(role), true, nil
}

func (s *pagesStatements) DeletePageEditor(
	ctx context.Context, txn *sql.Tx, pageID, userID int64,
) (bool, error) {
	result, err := sqlutil.TxStmt(txn, s.deletePageEditorStmt).ExecContext(ctx, pageID, userID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}
