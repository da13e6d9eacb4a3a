// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package shared

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hyperclast/pagesync/collabapi/storage/tables"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/sqlutil"
)

// Database implements the collab storage over the table interfaces. Both
// engines share this logic; only the SQL underneath differs.
type Database struct {
	DB        *sql.DB
	Writer    sqlutil.Writer
	Updates   tables.Updates
	Snapshots tables.Snapshots
}

func (d *Database) AppendUpdate(ctx context.Context, roomID string, update, meta []byte) (id int64, err error) {
	err = d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		var err error
		id, err = d.Updates.InsertUpdate(ctx, txn, roomID, update, meta, types.AsTimestamp(time.Now()))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("d.Updates.InsertUpdate: %w", err)
	}
	return id, nil
}

func (d *Database) ReadAllUpdates(ctx context.Context, roomID string) (*UpdateStream, error) {
	rows, err := d.Updates.SelectUpdatesSince(ctx, roomID, -1)
	if err != nil {
		return nil, fmt.Errorf("d.Updates.SelectUpdatesSince: %w", err)
	}
	return newUpdateStream(ctx, rows, roomID), nil
}

func (d *Database) ReadUpdatesSince(ctx context.Context, roomID string, sinceID int64) (*UpdateStream, error) {
	rows, err := d.Updates.SelectUpdatesSince(ctx, roomID, sinceID)
	if err != nil {
		return nil, fmt.Errorf("d.Updates.SelectUpdatesSince: %w", err)
	}
	return newUpdateStream(ctx, rows, roomID), nil
}

func (d *Database) MaxUpdateID(ctx context.Context, roomID string) (int64, error) {
	id, err := d.Updates.SelectMaxUpdateID(ctx, roomID)
	if err != nil {
		return 0, fmt.Errorf("d.Updates.SelectMaxUpdateID: %w", err)
	}
	return id, nil
}

func (d *Database) SelectSnapshot(ctx context.Context, roomID string) (*types.Snapshot, error) {
	snapshot, err := d.Snapshots.SelectSnapshot(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("d.Snapshots.SelectSnapshot: %w", err)
	}
	return snapshot, nil
}

func (d *Database) UpsertSnapshot(ctx context.Context, roomID string, snapshot []byte, lastUpdateID int64) error {
	err := d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		return d.Snapshots.UpsertSnapshot(ctx, txn, roomID, snapshot, lastUpdateID, types.AsTimestamp(time.Now()))
	})
	if err != nil {
		return fmt.Errorf("d.Snapshots.UpsertSnapshot: %w", err)
	}
	return nil
}

func (d *Database) PruneUpdates(ctx context.Context, roomID string, throughID int64) (count int64, err error) {
	err = d.Writer.Do(d.DB, nil, func(txn *sql.Tx) error {
		var err error
		count, err = d.Updates.DeleteUpdatesThrough(ctx, txn, roomID, throughID)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("d.Updates.DeleteUpdatesThrough: %w", err)
	}
	return count, nil
}
