// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package shared

import (
	"context"
	"database/sql"

	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal"
)

// UpdateStream is a finite, in-order cursor over a room's update log. It
// streams rows straight off the database so large rooms are never
// materialized in memory. Not restartable; always Close it.
type UpdateStream struct {
	ctx    context.Context
	rows   *sql.Rows
	roomID string
	cur    types.Update
	err    error
}

func newUpdateStream(ctx context.Context, rows *sql.Rows, roomID string) *UpdateStream {
	return &UpdateStream{ctx: ctx, rows: rows, roomID: roomID}
}

// Next advances the stream. It returns false at the end of the log or on
// error; check Err afterwards.
func (s *UpdateStream) Next() bool {
	if s.err != nil || !s.rows.Next() {
		return false
	}
	s.cur = types.Update{RoomID: s.roomID}
	s.err = s.rows.Scan(&s.cur.ID, &s.cur.Update, &s.cur.Meta, &s.cur.Timestamp)
	return s.err == nil
}

// Update returns the record the stream is positioned on.
func (s *UpdateStream) Update() types.Update {
	return s.cur
}

func (s *UpdateStream) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}

func (s *UpdateStream) Close() {
	internal.CloseAndLogIfError(s.ctx, s.rows, "UpdateStream: rows.close() failed")
}
