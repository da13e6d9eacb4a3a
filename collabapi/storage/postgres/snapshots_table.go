// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package postgres

import (
	"context"
	"database/sql"

	"github.com/hyperclast/pagesync/collabapi/storage/tables"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/sqlutil"
)

const snapshotsSchema = `
-- At most one full-state snapshot per room. Updates with id <=
-- last_update_id are folded into the snapshot and may be pruned.
CREATE TABLE IF NOT EXISTS collabapi_snapshots (
	room_id TEXT PRIMARY KEY,
	snapshot_bytes BYTEA NOT NULL,
	last_update_id BIGINT NOT NULL,
	ts BIGINT NOT NULL
);
`

const upsertSnapshotSQL = "" +
	"INSERT INTO collabapi_snapshots (room_id, snapshot_bytes, last_update_id, ts)" +
	" VALUES ($1, $2, $3, $4)" +
	" ON CONFLICT (room_id)" +
	" DO UPDATE SET snapshot_bytes = $2, last_update_id = $3, ts = $4"

const selectSnapshotSQL = "" +
	"SELECT snapshot_bytes, last_update_id, ts FROM collabapi_snapshots" +
	" WHERE room_id = $1"

type snapshotsStatements struct {
	upsertSnapshotStmt *sql.Stmt
	selectSnapshotStmt *sql.Stmt
}

func NewPostgresSnapshotsTable(db *sql.DB) (tables.Snapshots, error) {
	_, err := db.Exec(snapshotsSchema)
	if err != nil {
		return nil, err
	}
	s := &snapshotsStatements{}
	return s, sqlutil.StatementList{
		{&s.upsertSnapshotStmt, upsertSnapshotSQL},
		{&s.selectSnapshotStmt, selectSnapshotSQL},
	}.Prepare(db)
}

func (s *snapshotsStatements) UpsertSnapshot(
	ctx context.Context, txn *sql.Tx, roomID string, snapshot []byte, lastUpdateID int64, ts types.Timestamp,
) error {
	_, err := sqlutil.TxStmt(txn, s.upsertSnapshotStmt).ExecContext(ctx, roomID, snapshot, lastUpdateID, ts)
	return err
}

func (s *snapshotsStatements) SelectSnapshot(
	ctx context.Context, roomID string,
) (*types.Snapshot, error) {
	snapshot := types.Snapshot{RoomID: roomID}
	err := s.selectSnapshotStmt.QueryRowContext(ctx, roomID).Scan(
		&snapshot.Snapshot, &snapshot.LastUpdateID, &snapshot.Timestamp,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}
