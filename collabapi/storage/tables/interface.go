// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package tables

import (
	"context"
	"database/sql"

	"github.com/hyperclast/pagesync/collabapi/types"
)

// Updates is the append-only per-room log of CRDT update blobs. Ids are
// assigned at insertion and are strictly monotonic within a room; gaps are
// fine, reordering is not.
type Updates interface {
	InsertUpdate(ctx context.Context, txn *sql.Tx, roomID string, update, meta []byte, ts types.Timestamp) (int64, error)
	// SelectUpdatesSince returns a cursor over updates with id > sinceID in
	// id order. Pass sinceID < 0 for the whole log. The caller owns the
	// returned rows and must close them.
	SelectUpdatesSince(ctx context.Context, roomID string, sinceID int64) (*sql.Rows, error)
	SelectMaxUpdateID(ctx context.Context, roomID string) (int64, error)
	// DeleteUpdatesThrough removes updates with id <= throughID and reports
	// how many rows went away. Idempotent.
	DeleteUpdatesThrough(ctx context.Context, txn *sql.Tx, roomID string, throughID int64) (int64, error)
}

// Snapshots holds at most one full-state record per room.
type Snapshots interface {
	UpsertSnapshot(ctx context.Context, txn *sql.Tx, roomID string, snapshot []byte, lastUpdateID int64, ts types.Timestamp) error
	// SelectSnapshot returns nil, nil when the room has no snapshot.
	SelectSnapshot(ctx context.Context, roomID string) (*types.Snapshot, error)
}
