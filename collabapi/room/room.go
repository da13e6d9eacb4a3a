// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package room hosts the live CRDT replicas. Each room is an actor owning
// one document; every read and write of the replica happens in an actor
// turn, so per room the persisted id order, the in-memory apply order and
// the broadcast order all agree.
package room

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/Arceliar/phony"
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/collabapi/crdt"
	"github.com/hyperclast/pagesync/collabapi/hub"
	"github.com/hyperclast/pagesync/collabapi/storage"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/setup/config"
)

// PostSnapshotHook runs after a checkpoint whose snapshot content differs
// from the previous one. The default hook publishes links_updated for the
// page so listing surfaces re-render.
type PostSnapshotHook func(ctx context.Context, roomID string, snapshotHash [sha256.Size]byte)

// Room is one live document replica plus its bookkeeping. All fields below
// the inbox are owned by the actor and must only be touched in a turn.
type Room struct {
	phony.Inbox

	id  string
	db  storage.Database
	hub *hub.Hub
	cfg *config.Snapshot

	postSnapshot PostSnapshotHook

	doc      *crdt.Doc
	hydrated bool
	refs     int

	editsSinceCheckpoint int64
	lastCheckpoint       time.Time
	lastSnapshotHash     [sha256.Size]byte
	haveSnapshotHash     bool
}

func newRoom(id string, db storage.Database, h *hub.Hub, cfg *config.Snapshot, hook PostSnapshotHook) *Room {
	return &Room{
		id:           id,
		db:           db,
		hub:          h,
		cfg:          cfg,
		postSnapshot: hook,
		doc:          crdt.NewDoc(),
	}
}

// ID returns the room id. Immutable, safe outside the actor.
func (r *Room) ID() string { return r.id }

// Attach registers one more session on the replica, hydrating it from
// storage on first use. Hydration failures leave the room unhydrated so the
// next Attach retries.
func (r *Room) Attach(ctx context.Context) error {
	var err error
	phony.Block(r, func() {
		if !r.hydrated {
			if err = r.hydrate(ctx); err != nil {
				return
			}
			r.hydrated = true
			r.lastCheckpoint = time.Now()
		}
		r.refs++
	})
	return err
}

// Detach releases one session's hold on the replica. When the last session
// leaves, the document is checkpointed and the replica released; the
// returned count tells the manager whether to drop the room.
func (r *Room) Detach(ctx context.Context) int {
	var remaining int
	phony.Block(r, func() {
		r.refs--
		remaining = r.refs
		if r.refs > 0 {
			return
		}
		if r.hydrated {
			r.checkpoint(ctx)
		}
		r.doc = crdt.NewDoc()
		r.hydrated = false
	})
	return remaining
}

// ApplyUpdate runs one admitted mutation: merge into the replica, append to
// the log, broadcast the original wire frame to the room's other sessions.
// A rejected merge (malformed update, clock gap) fails before anything is
// persisted or broadcast. Checkpoints opportunistically afterwards.
func (r *Room) ApplyUpdate(ctx context.Context, update, meta, frame []byte, exceptSessionID string) error {
	var err error
	phony.Block(r, func() {
		if err = r.doc.ApplyUpdate(update); err != nil {
			return
		}
		if _, err = r.db.AppendUpdate(ctx, r.id, update, meta); err != nil {
			return
		}
		r.hub.Broadcast(ctx, r.id, frame, exceptSessionID)

		r.editsSinceCheckpoint++
		if r.editsSinceCheckpoint >= r.cfg.AfterEditCount ||
			time.Since(r.lastCheckpoint) >= time.Duration(r.cfg.IntervalSeconds)*time.Second {
			r.checkpoint(ctx)
		}
	})
	return err
}

// ApplyRemote merges an update that another worker already persisted and
// broadcast. Local sessions receive the frame via the backplane consumer;
// here only the replica catches up.
func (r *Room) ApplyRemote(update []byte) error {
	var err error
	phony.Block(r, func() {
		err = r.doc.ApplyUpdate(update)
	})
	return err
}

// StateVector returns the replica's current state vector.
func (r *Room) StateVector() []byte {
	var sv []byte
	phony.Block(r, func() {
		sv = r.doc.EncodeStateVector()
	})
	return sv
}

// Diff encodes the operations missing from the holder of the given state
// vector.
func (r *Room) Diff(stateVector []byte) ([]byte, error) {
	var (
		diff []byte
		err  error
	)
	phony.Block(r, func() {
		diff, err = r.doc.DiffUpdate(stateVector)
	})
	return diff, err
}

// Checkpoint forces a snapshot outside the opportunistic schedule.
func (r *Room) Checkpoint(ctx context.Context) {
	phony.Block(r, func() {
		r.checkpoint(ctx)
	})
}

// checkpoint persists the current document as the room's snapshot. Runs in
// an actor turn. An empty document encodes to the two-byte sentinel; such
// snapshots reconstruct nothing and poison later hydrations, so they are
// never written.
func (r *Room) checkpoint(ctx context.Context) {
	r.editsSinceCheckpoint = 0
	r.lastCheckpoint = time.Now()

	encoded := r.doc.EncodeStateAsUpdate()
	if !types.ValidSnapshot(encoded) {
		return
	}
	maxID, err := r.db.MaxUpdateID(ctx, r.id)
	if err != nil {
		logrus.WithError(err).WithField("room_id", r.id).Error("Failed to read max update id, skipping snapshot")
		return
	}
	if err = r.db.UpsertSnapshot(ctx, r.id, encoded, maxID); err != nil {
		logrus.WithError(err).WithField("room_id", r.id).Error("Failed to write snapshot")
		return
	}
	snapshotsWritten.Inc()
	if r.cfg.Prune() {
		if _, err = r.db.PruneUpdates(ctx, r.id, maxID); err != nil {
			logrus.WithError(err).WithField("room_id", r.id).Error("Failed to prune updates")
		}
	}

	hash := sha256.Sum256(encoded)
	if r.haveSnapshotHash && hash == r.lastSnapshotHash {
		return
	}
	r.lastSnapshotHash = hash
	r.haveSnapshotHash = true
	if r.postSnapshot != nil {
		r.postSnapshot(ctx, r.id, hash)
	}
}
