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

const usersSchema = `
CREATE TABLE IF NOT EXISTS workspaceapi_users (
	id BIGSERIAL PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	display_name TEXT NOT NULL DEFAULT '',
	created_ts BIGINT NOT NULL
);
`

const insertUserSQL = "" +
	"INSERT INTO workspaceapi_users (email, password_hash, display_name, created_ts)" +
	" VALUES ($1, $2, $3, $4)" +
	" RETURNING id"

const selectUserByEmailSQL = "" +
	"SELECT id, email, password_hash, display_name, created_ts FROM workspaceapi_users" +
	" WHERE email = $1"

const selectUserByIDSQL = "" +
	"SELECT id, email, display_name, created_ts FROM workspaceapi_users" +
	" WHERE id = $1"

type usersStatements struct {
	insertUserStmt        *sql.Stmt
	selectUserByEmailStmt *sql.Stmt
	selectUserByIDStmt    *sql.Stmt
}

func NewPostgresUsersTable(db *sql.DB) (tables.Users, error) {
	_, err := db.Exec(usersSchema)
	if err != nil {
		return nil, err
	}
	s := &usersStatements{}
	return s, sqlutil.StatementList{
		{&s.insertUserStmt, insertUserSQL},
		{&s.selectUserByEmailStmt, selectUserByEmailSQL},
		{&s.selectUserByIDStmt, selectUserByIDSQL},
	}.Prepare(db)
}

func (s *usersStatements) InsertUser(
	ctx context.Context, txn *sql.Tx, email, passwordHash, displayName string, ts types.Timestamp,
) (int64, error) {
	var id int64
	err := sqlutil.TxStmt(txn, s.insertUserStmt).QueryRowContext(ctx, email, passwordHash, displayName, ts).Scan(&id)
	return id, err
}

func (s *usersStatements) SelectUserByEmail(
	ctx context.Context, email string,
) (*api.User, string, error) {
	var user api.User
	var hash string
	err := s.selectUserByEmailStmt.QueryRowContext(ctx, email).Scan(
		&user.ID, &user.Email, &hash, &user.DisplayName, &user.CreatedTS,
	)
	if err == sql.ErrNoRows {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return &user, hash, nil
}

func (s *usersStatements) SelectUserByID(
	ctx context.Context, id int64,
) (*api.User, error) {
	var user api.User
	err := s.selectUserByIDStmt.QueryRowContext(ctx, id).Scan(
		&user.ID, &user.Email, &user.DisplayName, &user.CreatedTS,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
