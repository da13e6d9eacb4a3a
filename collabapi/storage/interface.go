// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package storage

import (
	"context"

	"github.com/hyperclast/pagesync/collabapi/storage/shared"
	"github.com/hyperclast/pagesync/collabapi/types"
)

// Database is the durable store behind collab rooms: the per-room append
// log of CRDT updates plus the per-room snapshot.
type Database interface {
	// AppendUpdate persists one update atomically and returns its assigned
	// id, strictly greater than any id previously assigned for the room.
	AppendUpdate(ctx context.Context, roomID string, update, meta []byte) (int64, error)
	// ReadAllUpdates streams the room's whole log in id order.
	ReadAllUpdates(ctx context.Context, roomID string) (*shared.UpdateStream, error)
	// ReadUpdatesSince streams updates with id > sinceID in id order. A
	// sinceID at or beyond the maximum yields an empty stream.
	ReadUpdatesSince(ctx context.Context, roomID string, sinceID int64) (*shared.UpdateStream, error)
	// MaxUpdateID returns the highest stored id for the room, 0 when empty.
	MaxUpdateID(ctx context.Context, roomID string) (int64, error)
	// SelectSnapshot returns the room's snapshot, or nil, nil if there is
	// none. Validity of the snapshot bytes is the caller's concern.
	SelectSnapshot(ctx context.Context, roomID string) (*types.Snapshot, error)
	// UpsertSnapshot replaces the room's snapshot. Last-writer-wins is safe
	// because each writer supplies the last update id it observed.
	UpsertSnapshot(ctx context.Context, roomID string, snapshot []byte, lastUpdateID int64) error
	// PruneUpdates deletes updates with id <= throughID and returns the
	// number removed. Idempotent.
	PruneUpdates(ctx context.Context, roomID string, throughID int64) (int64, error)
}
