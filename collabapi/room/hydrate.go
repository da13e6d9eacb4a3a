// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package room

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/collabapi/storage/shared"
	"github.com/hyperclast/pagesync/collabapi/types"
)

// hydrate reconstructs the document from storage. Fast path: apply the
// snapshot and replay only the updates it does not cover. Slow path, taken
// when there is no snapshot or the stored bytes are the trivial sentinel:
// replay the whole log. A snapshot that fails to apply is treated the same
// as a trivial one; only a malformed record in the log itself aborts.
//
// Runs in the first Attach's actor turn, so hydration is serialized with
// respect to writes.
func (r *Room) hydrate(ctx context.Context) error {
	snap, err := r.db.SelectSnapshot(ctx, r.id)
	if err != nil {
		return errors.Wrap(err, "failed to read snapshot")
	}

	sinceID := int64(-1)
	if snap != nil && types.ValidSnapshot(snap.Snapshot) {
		if applyErr := r.doc.ApplyUpdate(snap.Snapshot); applyErr != nil {
			// A rejected apply leaves the replica untouched, so the full
			// log replays onto the same document.
			logrus.WithError(applyErr).WithField("room_id", r.id).Warn("Stored snapshot failed to apply, replaying full log")
		} else {
			sinceID = snap.LastUpdateID
		}
	}

	var stream *shared.UpdateStream
	if sinceID >= 0 {
		stream, err = r.db.ReadUpdatesSince(ctx, r.id, sinceID)
	} else {
		stream, err = r.db.ReadAllUpdates(ctx, r.id)
	}
	if err != nil {
		return errors.Wrap(err, "failed to open update stream")
	}
	defer stream.Close()

	replayed := 0
	for stream.Next() {
		update := stream.Update()
		if applyErr := r.doc.ApplyUpdate(update.Update); applyErr != nil {
			return errors.Wrapf(applyErr, "update %d is malformed", update.ID)
		}
		replayed++
	}
	if err = stream.Err(); err != nil {
		return errors.Wrap(err, "failed to stream updates")
	}

	logrus.WithFields(logrus.Fields{
		"room_id":       r.id,
		"from_snapshot": sinceID >= 0,
		"replayed":      replayed,
	}).Debug("Hydrated room")
	return nil
}
