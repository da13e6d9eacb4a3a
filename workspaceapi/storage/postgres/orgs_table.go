// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package postgres

import (
	"context"
	"database/sql"

	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/workspaceapi/api"
	"github.com/hyperclast/pagesync/workspaceapi/storage/tables"
)

const orgsSchema = `
CREATE TABLE IF NOT EXISTS workspaceapi_orgs (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	created_ts BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS workspaceapi_org_members (
	org_id BIGINT NOT NULL,
	user_id BIGINT NOT NULL,
	role TEXT NOT NULL,
	PRIMARY KEY (org_id, user_id)
);
`

const insertOrgSQL = "" +
	"INSERT INTO workspaceapi_orgs (name, created_ts) VALUES ($1, $2) RETURNING id"

const selectOrgByIDSQL = "" +
	"SELECT id, name, created_ts FROM workspaceapi_orgs WHERE id = $1"

const upsertOrgMemberSQL = "" +
	"INSERT INTO workspaceapi_org_members (org_id, user_id, role) VALUES ($1, $2, $3)" +
	" ON CONFLICT (org_id, user_id) DO UPDATE SET role = $3"

const selectOrgMemberRoleSQL = "" +
	"SELECT role FROM workspaceapi_org_members WHERE org_id = $1 AND user_id = $2"

const deleteOrgMemberSQL = "" +
	"DELETE FROM workspaceapi_org_members WHERE org_id = $1 AND user_id = $2"

type orgsStatements struct {
	insertOrgStmt           *sql.Stmt
	selectOrgByIDStmt       *sql.Stmt
	upsertOrgMemberStmt     *sql.Stmt
	selectOrgMemberRoleStmt *sql.Stmt
	deleteOrgMemberStmt     *sql.Stmt
}

// NewPostgresOrgsTable prepares both the orgs and org_members tables; they
// share a lifecycle.
func NewPostgresOrgsTable(db *sql.DB) (tables.Orgs, tables.OrgMembers, error) {
	_, err := db.Exec(orgsSchema)
	if err != nil {
		return nil, nil, err
	}
	s := &orgsStatements{}
	return s, s, sqlutil.StatementList{
		{&s.insertOrgStmt, insertOrgSQL},
		{&s.selectOrgByIDStmt, selectOrgByIDSQL},
		{&s.upsertOrgMemberStmt, upsertOrgMemberSQL},
		{&s.selectOrgMemberRoleStmt, selectOrgMemberRoleSQL},
		{&s.deleteOrgMemberStmt, deleteOrgMemberSQL},
	}.Prepare(db)
}

func (s *orgsStatements) InsertOrg(
	ctx context.Context, txn *sql.Tx, name string, ts types.Timestamp,
) (int64, error) {
	var id int64
	err := sqlutil.TxStmt(txn, s.insertOrgStmt).QueryRowContext(ctx, name, ts).Scan(&id)
	return id, err
}

func (s *orgsStatements) SelectOrgByID(ctx context.Context, id int64) (*api.Org, error) {
	var org api.Org
	err := s.selectOrgByIDStmt.QueryRowContext(ctx, id).Scan(&org.ID, &org.Name, &org.CreatedTS)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *orgsStatements) UpsertOrgMember(
	ctx context.Context, txn *sql.Tx, orgID, userID int64, role api.OrgRole,
) error {
	_, err := sqlutil.TxStmt(txn, s.upsertOrgMemberStmt).ExecContext(ctx, orgID, userID, string(role))
	return err
}

func (s *orgsStatements) SelectOrgMemberRole(
	ctx context.Context, orgID, userID int64,
) (api.OrgRole, bool, error) {
	var role string
	err := s.selectOrgMemberRoleStmt.QueryRowContext(ctx, orgID, userID).Scan(&role)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return api.OrgRole(role), true, nil
}

func (s *orgsStatements) DeleteOrgMember(
	ctx context.Context, txn *sql.Tx, orgID, userID int64,
) (bool, error) {
	result, err := sqlutil.TxStmt(txn, s.deleteOrgMemberStmt).ExecContext(ctx, orgID, userID)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}
