// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package room_test

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyperclast/pagesync/collabapi/crdt"
	"github.com/hyperclast/pagesync/collabapi/hub"
	"github.com/hyperclast/pagesync/collabapi/room"
	"github.com/hyperclast/pagesync/collabapi/storage"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/test"
)

func snapshotConfig(prune bool, afterEdits int64) *config.Snapshot {
	cfg := &config.Snapshot{
		IntervalSeconds:    3600, // keep the timer out of the way
		AfterEditCount:     afterEdits,
		PruneAfterSnapshot: &prune,
	}
	return cfg
}

func mustCreateDatabase(t *testing.T, dbType test.DBType) (storage.Database, func()) {
	t.Helper()
	connStr, closeDB := test.PrepareDBConnectionString(t, dbType)
	cm := sqlutil.NewConnectionManager(nil, config.DatabaseOptions{})
	db, err := storage.NewDatabase(cm, &config.DatabaseOptions{
		ConnectionString: connStr,
	})
	require.NoError(t, err)
	return db, closeDB
}

func TestHydrationFastAndSlowPathsAgree(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()
		h := hub.NewHub(hub.NoBackplane{})

		// Build a history: attach, write edits past the snapshot trigger so
		// a snapshot lands, then a few more edits the snapshot won't cover.
		mgr := room.NewManager(db, h, snapshotConfig(false, 3), nil)
		r, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		for i := uint64(0); i < 5; i++ {
			update := crdt.NewUpdate(1, i, []byte{byte(i)})
			require.NoError(t, r.ApplyUpdate(ctx, update, nil, update, ""))
		}
		fastVector := r.StateVector()
		mgr.Release(ctx, r)

		// Fast path: snapshot exists, tail replayed on top of it.
		r2, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		got := r2.StateVector()
		mgr.Release(ctx, r2)
		if diff := cmp.Diff(fastVector, got); diff != "" {
			t.Fatalf("fast-path hydration mismatch (-want +got):\n%s", diff)
		}

		// Slow path: with the snapshot gone the full log must reconstruct
		// the same state.
		require.NoError(t, db.UpsertSnapshot(ctx, "page_a", []byte{0, 0}, 0))
		r3, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		got = r3.StateVector()
		mgr.Release(ctx, r3)
		if diff := cmp.Diff(fastVector, got); diff != "" {
			t.Fatalf("slow-path hydration mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestTrivialSnapshotIsNeverWritten(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		mgr := room.NewManager(db, hub.NewHub(hub.NoBackplane{}), snapshotConfig(true, 50), nil)
		r, err := mgr.Attach(ctx, "page_empty")
		require.NoError(t, err)
		// Session connected and disconnected without editing: the empty
		// document must not leave a poisonous two-byte snapshot behind.
		mgr.Release(ctx, r)

		snap, err := db.SelectSnapshot(ctx, "page_empty")
		require.NoError(t, err)
		assert.Nil(t, snap)
	})
}

func TestLastDetachSnapshotsAndPrunes(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		mgr := room.NewManager(db, hub.NewHub(hub.NoBackplane{}), snapshotConfig(true, 50), nil)
		r, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		update := crdt.NewUpdate(1, 0, []byte("hello"))
		require.NoError(t, r.ApplyUpdate(ctx, update, nil, update, ""))
		// Captured before the detach checkpoint prunes the log.
		maxID, err := db.MaxUpdateID(ctx, "page_a")
		require.NoError(t, err)
		mgr.Release(ctx, r)

		snap, err := db.SelectSnapshot(ctx, "page_a")
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.Equal(t, maxID, snap.LastUpdateID)

		// Pruning removed the records the snapshot covers.
		stream, err := db.ReadAllUpdates(ctx, "page_a")
		require.NoError(t, err)
		defer stream.Close()
		assert.False(t, stream.Next())
		require.NoError(t, stream.Err())

		// And the pruned room still hydrates to the same document.
		r2, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		defer mgr.Release(ctx, r2)
		diff, err := r2.Diff(crdt.NewDoc().EncodeStateVector())
		require.NoError(t, err)
		assert.Equal(t, snap.Snapshot, diff)
	})
}

func TestApplyUpdateRejectsClockGapWithoutPersisting(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		mgr := room.NewManager(db, hub.NewHub(hub.NoBackplane{}), snapshotConfig(false, 50), nil)
		r, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		defer mgr.Release(ctx, r)

		// Clock 5 with nothing before it cannot be integrated.
		gap := crdt.NewUpdate(1, 5, []byte("orphan"))
		require.Error(t, r.ApplyUpdate(ctx, gap, nil, gap, ""))

		maxID, err := db.MaxUpdateID(ctx, "page_a")
		require.NoError(t, err)
		assert.Equal(t, int64(0), maxID, "rejected update must not be persisted")
	})
}

func TestRejectedUpdateNeverReachesSnapshots(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		mgr := room.NewManager(db, hub.NewHub(hub.NoBackplane{}), snapshotConfig(true, 50), nil)
		r, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		update := crdt.NewUpdate(1, 0, []byte("hello"))
		require.NoError(t, r.ApplyUpdate(ctx, update, nil, update, ""))

		// Build a two-section update via a diff: client 1's section would
		// apply cleanly on its own, client 2's starts at clock 5 in a room
		// that has never seen client 2. The whole update must bounce
		// without the first section leaking into the replica.
		source := crdt.NewDoc()
		require.NoError(t, source.ApplyUpdate(crdt.NewUpdate(1, 0, []byte("hello"), []byte("smuggled"))))
		require.NoError(t, source.ApplyUpdate(crdt.NewUpdate(2, 0,
			[]byte("p0"), []byte("p1"), []byte("p2"), []byte("p3"), []byte("p4"), []byte("p5"))))
		known := crdt.NewDoc()
		require.NoError(t, known.ApplyUpdate(crdt.NewUpdate(1, 0, []byte("hello"))))
		require.NoError(t, known.ApplyUpdate(crdt.NewUpdate(2, 0,
			[]byte("p0"), []byte("p1"), []byte("p2"), []byte("p3"), []byte("p4"))))
		spliced, err := source.DiffUpdate(known.EncodeStateVector())
		require.NoError(t, err)

		require.Error(t, r.ApplyUpdate(ctx, spliced, nil, spliced, ""))
		sv := r.StateVector()
		mgr.Release(ctx, r)

		// The detach checkpoint must capture only what the log holds.
		snap, err := db.SelectSnapshot(ctx, "page_a")
		require.NoError(t, err)
		require.NotNil(t, snap)
		restored := crdt.NewDoc()
		require.NoError(t, restored.ApplyUpdate(snap.Snapshot))
		assert.Equal(t, 1, restored.Ops())
		assert.Equal(t, sv, restored.EncodeStateVector())
	})
}

func TestApplyUpdateBroadcastsToOthers(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		h := hub.NewHub(hub.NoBackplane{})
		alice := newRecordingSession("alice")
		bob := newRecordingSession("bob")
		h.Join("page_a", alice)
		h.Join("page_a", bob)

		mgr := room.NewManager(db, h, snapshotConfig(false, 50), nil)
		r, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		defer mgr.Release(ctx, r)

		update := crdt.NewUpdate(1, 0, []byte("x"))
		frame := append([]byte{0, 2}, update...) // wire frame as the session would send it
		require.NoError(t, r.ApplyUpdate(ctx, update, nil, frame, "alice"))

		assert.Empty(t, alice.frames)
		require.Len(t, bob.frames, 1)
		assert.Equal(t, frame, bob.frames[0])
	})
}

func TestPostSnapshotHookFiresOnContentChangeOnly(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		var calls int
		hook := func(ctx context.Context, roomID string, hash [sha256.Size]byte) {
			calls++
		}
		mgr := room.NewManager(db, hub.NewHub(hub.NoBackplane{}), snapshotConfig(false, 100), hook)
		r, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		defer mgr.Release(ctx, r)

		update := crdt.NewUpdate(1, 0, []byte("x"))
		require.NoError(t, r.ApplyUpdate(ctx, update, nil, update, ""))
		r.Checkpoint(ctx)
		assert.Equal(t, 1, calls)

		// Same content, new checkpoint: no notification.
		r.Checkpoint(ctx)
		assert.Equal(t, 1, calls)

		update2 := crdt.NewUpdate(1, 1, []byte("y"))
		require.NoError(t, r.ApplyUpdate(ctx, update2, nil, update2, ""))
		r.Checkpoint(ctx)
		assert.Equal(t, 2, calls)
	})
}

func TestManagerLookup(t *testing.T) {
	test.WithAllDatabases(t, func(t *testing.T, dbType test.DBType) {
		db, closeDB := mustCreateDatabase(t, dbType)
		defer closeDB()
		ctx := context.Background()

		mgr := room.NewManager(db, hub.NewHub(hub.NoBackplane{}), snapshotConfig(false, 50), nil)
		_, ok := mgr.Lookup("page_a")
		assert.False(t, ok)

		r, err := mgr.Attach(ctx, "page_a")
		require.NoError(t, err)
		got, ok := mgr.Lookup("page_a")
		require.True(t, ok)
		assert.Same(t, r, got)

		mgr.Release(ctx, r)
		_, ok = mgr.Lookup("page_a")
		assert.False(t, ok, "last release drops the room")
	})
}

type recordingSession struct {
	id     string
	frames [][]byte
}

func newRecordingSession(id string) *recordingSession {
	return &recordingSession{id: id}
}

func (s *recordingSession) ID() string { return s.id }

func (s *recordingSession) QueueFrame(frame []byte) bool {
	s.frames = append(s.frames, frame)
	return true
}

func (s *recordingSession) QueueControl(msg types.ControlMessage) bool { return true }

func (s *recordingSession) Kick(reason string) {}
