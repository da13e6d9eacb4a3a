// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package postgres

import (
	"context"
	"database/sql"

	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/storage/tables"
)

const projectsSchema = `
CREATE TABLE IF NOT EXISTS workspaceapi_projects (
	id BIGSERIAL PRIMARY KEY,
	org_id BIGINT NOT NULL,
	name TEXT NOT NULL,
	creator_id BIGINT NOT NULL,
	org_members_can_access BOOLEAN NOT NULL DEFAULT FALSE,
	deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS workspaceapi_projects_org_id ON workspaceapi_projects(org_id);

CREATE TABLE IF NOT EXISTS workspaceapi_project_editors (
	project_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	role TEXT NOT NULL,
	PRIMARY KEY (project_id, user_id)
);
`

const insertProjectSQL = "" +
	"INSERT INTO workspaceapi_projects (org_id, name, creator_id, org_members_can_access, created_ts)" +
	" VALUES ($1, $2, $3, $4, $5)" +
	" RETURNING id"

const selectProjectByIDSQL = "" +
	"SELECT id, org_id, name, creator_id, org_members_can_access, deleted, created_ts" +
	" FROM workspaceapi_projects WHERE id = $1"

const selectProjectIDsByOrgSQL = "" +
	"SELECT id FROM workspaceapi_projects WHERE org_id = $1 AND NOT deleted"

const upsertProjectEditorSQL = "" +
	"INSERT INTO workspaceapi_project_editors (project_id, user_id, role) VALUES ($1, $2, $3)" +
	" ON CONFLICT (project_id, user_id) DO UPDATE SET role = $3"

const selectProjectEditorRoleSQL = "" +
	"SELECT role FROM workspaceapi_project_editors WHERE project_id = $1 AND user_id = $2"

const deleteProjectEditorSQL = "" +
	"DELETE FROM workspaceapi_project_editors WHERE project_id = $1 AND user_id = $2"

type projectsStatements struct {
	insertProjectStmt           *sql.Stmt
	selectProjectByIDStmt       *sql.Stmt
	selectProjectIDsByOrgStmt   *sql.Stmt
	upsertProjectEditorStmt     *sql.Stmt
	selectProjectEditorRoleStmt *sql.Stmt
	deleteProjectEditorStmt     *sql.Stmt
}

func NewPostgresProjectsTable(db *sql.DB) (tables.Projects, tables.ProjectEditors, error) {
	_, err := db.Exec(projectsSchema)
	if err != nil {
		return nil, nil, err
	}
	s := &projectsStatements{}
	return s, s, sqlutil.StatementList{
		{&s.insertProjectStmt, insertProjectSQL},
		{&s.selectProjectByIDStmt, selectProjectByIDSQL},
		{&s.selectProjectIDsByOrgStmt, selectProjectIDsByOrgSQL},
		{&s.upsertProjectEditorStmt, upsertProjectEditorSQL},
		{&s.selectProjectEditorRoleStmt, selectProjectEditorRoleSQL},
		{&s.deleteProjectEditorStmt, deleteProjectEditorSQL},
	}.Prepare(db)
}

func (s *projectsStatements) InsertProject(
	ctx context.Context, txn *sql.Tx, orgID int64, name string, creatorID int64,
	orgMembersCanAccess bool, ts types.Timestamp,
) (int64, error) {
	var id int64
	err := sqlutil.TxStmt(txn, s.insertProjectStmt).QueryRowContext(
		ctx, orgID, name, creatorID, orgMembersCanAccess, ts,
	).Scan(&id)
	return id, err
}

func (s *projectsStatements) SelectProjectByID(
	ctx context.Context, id int64,
) (*api.Project, error) {
	var project api.Project
	err := s.selectProjectByIDStmt.QueryRowContext(ctx, id).Scan(
		&project.ID, &project.OrgID, &project.Name, &project.CreatorID,
		&project.OrgMembersCanAccess, &project.Deleted, &project.CreatedTS,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &project, nil
}

func (s *projectsStatements) SelectProjectIDsByOrg(
	ctx context.Context, orgID int64,
) ([]int64, error) {
	rows, err := s.selectProjectIDsByOrgStmt.QueryContext(ctx, orgID)
	if err != nil {
		return nil, err
	}
	defer internal.CloseAndLogIfError(ctx, rows, "SelectProjectIDsByOrg: rows.close() failed")
	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *projectsStatements) UpsertProjectEditor(
	ctx context.Context, txn *sql.Tx, projectID, userID int64, role api.EditorRole,
) error {
	_, err := sqlutil.TxStmt(txn, s.upsertProjectEditorStmt).ExecContext(ctx, projectID, userID, string(role))
	return err
}

func (s *projectsStatements) SelectProjectEditorRole(
	ctx context.Context, projectID, userID int64,
) (api.EditorRole, bool, error) {
	var role string
	err := s.selectProjectEditorRoleStmt.QueryRowContext(ctx, projectID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return api.EditorRole(role), true, nil
}

func (s *projectsStatements) DeleteProjectEditor(
	ctx context.Context, txn *sql.Tx, projectID, userID int64,
) (bool, error) {
	result, err := sqlutil.TxStmt(txn, s.deleteProjectEditorStmt).ExecContext(ctx, projectID, userID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}
