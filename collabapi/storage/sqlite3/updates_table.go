// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sqlite3

import (
	"context"
	"database/sql"

	"github.com/hyperclast/pagesync/collabapi/storage/tables"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/sqlutil"
)

// AUTOINCREMENT keeps rowids monotonic even after pruning deletes the tail
// of the log; the exclusive writer keeps concurrent inserts ordered.
const updatesSchema = `
CREATE TABLE IF NOT EXISTS collabapi_updates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	room_id TEXT NOT NULL,
	update_bytes BLOB NOT NULL,
	meta_bytes BLOB,
	ts BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS collabapi_updates_room_id ON collabapi_updates(room_id, id);
`

const insertUpdateSQL = "" +
	"INSERT INTO collabapi_updates (room_id, update_bytes, meta_bytes, ts)" +
	" VALUES ($1, $2, $3, $4)"

const selectUpdatesSinceSQL = "" +
	"SELECT id, update_bytes, meta_bytes, ts FROM collabapi_updates" +
	" WHERE room_id = $1 AND id > $2" +
	" ORDER BY id ASC"

const selectMaxUpdateIDSQL = "" +
	"SELECT MAX(id) FROM collabapi_updates WHERE room_id = $1"

const deleteUpdatesThroughSQL = "" +
	"DELETE FROM collabapi_updates WHERE room_id = $1 AND id <= $2"

type updatesStatements struct {
	db                       *sql.DB
	insertUpdateStmt         *sql.Stmt
	selectUpdatesSinceStmt   *sql.Stmt
	selectMaxUpdateIDStmt    *sql.Stmt
	deleteUpdatesThroughStmt *sql.Stmt
}

func NewSqliteUpdatesTable(db *sql.DB) (tables.Updates, error) {
	_, err := db.Exec(updatesSchema)
	if err != nil {
		return nil, err
	}
	s := &updatesStatements{db: db}
	return s, sqlutil.StatementList{
		{&s.insertUpdateStmt, insertUpdateSQL},
		{&s.selectUpdatesSinceStmt, selectUpdatesSinceSQL},
		{&s.selectMaxUpdateIDStmt, selectMaxUpdateIDSQL},
		{&s.deleteUpdatesThroughStmt, deleteUpdatesThroughSQL},
	}.Prepare(db)
}

func (s *updatesStatements) InsertUpdate(
	ctx context.Context, txn *sql.Tx, roomID string, update, meta []byte, ts types.Timestamp,
) (int64, error) {
	result, err := sqlutil.TxStmt(txn, s.insertUpdateStmt).ExecContext(ctx, roomID, update, meta, ts)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *updatesStatements) SelectUpdatesSince(
	ctx context.Context, roomID string, sinceID int64,
) (*sql.Rows, error) {
	return s.selectUpdatesSinceStmt.QueryContext(ctx, roomID, sinceID)
}

func (s *updatesStatements) SelectMaxUpdateID(
	ctx context.Context, roomID string,
) (id int64, err error) {
	var nullableID sql.NullInt64
	err = s.selectMaxUpdateIDStmt.QueryRowContext(ctx, roomID).Scan(&nullableID)
	if nullableID.Valid {
		id = nullableID.Int64
	}
	return
}

func (s *updatesStatements) DeleteUpdatesThrough(
	ctx context.Context, txn *sql.Tx, roomID string, throughID int64,
) (int64, error) {
	result, err := sqlutil.TxStmt(txn, s.deleteUpdatesThroughStmt).ExecContext(ctx, roomID, throughID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
