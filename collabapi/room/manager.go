// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package room

import (
	"context"
	"sync"
	"time"

	"github.com/Arceliar/phony"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/singleflight"

	"github.com/hyperclast/pagesync/collabapi/hub"
	"github.com/hyperclast/pagesync/collabapi/storage"
	"github.com/hyperclast/pagesync/setup/config"
)

var (
	hydrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pagesync",
			Subsystem: "collabapi",
			Name:      "room_hydration_duration_seconds",
			Help:      "Time taken to reconstruct a room's document from storage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		},
	)
	liveRooms = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pagesync",
			Subsystem: "collabapi",
			Name:      "live_rooms",
			Help:      "Number of rooms with a hydrated in-memory replica.",
		},
	)
	snapshotsWritten = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "collabapi",
			Name:      "snapshots_written_total",
			Help:      "Snapshots persisted across all rooms.",
		},
	)
)

// Manager owns the registry of live rooms. Concurrent attaches to the same
// not-yet-live room are collapsed into one creation.
type Manager struct {
	db   storage.Database
	hub  *hub.Hub
	cfg  *config.Snapshot
	hook PostSnapshotHook

	mu     sync.Mutex
	rooms  map[string]*Room
	create singleflight.Group
}

func NewManager(db storage.Database, h *hub.Hub, cfg *config.Snapshot, hook PostSnapshotHook) *Manager {
	return &Manager{
		db:    db,
		hub:   h,
		cfg:   cfg,
		hook:  hook,
		rooms: make(map[string]*Room),
	}
}

// Attach returns the live room for the id, creating and hydrating it if
// needed, with the caller registered as one attached session. Callers must
// pair every successful Attach with a Release.
func (m *Manager) Attach(ctx context.Context, roomID string) (*Room, error) {
	v, err, _ := m.create.Do(roomID, func() (any, error) {
		m.mu.Lock()
		r, ok := m.rooms[roomID]
		if !ok {
			r = newRoom(roomID, m.db, m.hub, m.cfg, m.hook)
			m.rooms[roomID] = r
			liveRooms.Inc()
		}
		m.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	r := v.(*Room)

	start := time.Now()
	if err := r.Attach(ctx); err != nil {
		m.dropIfIdle(r)
		return nil, err
	}
	hydrationDuration.Observe(time.Since(start).Seconds())
	return r, nil
}

// Release undoes one Attach. The last release checkpoints the room and
// drops the replica.
func (m *Manager) Release(ctx context.Context, r *Room) {
	if r.Detach(ctx) > 0 {
		return
	}
	m.dropIfIdle(r)
}

// Lookup returns the live room for the id without creating one. Used by
// the backplane consumer: a frame for a room with no local replica needs
// no replica catch-up.
func (m *Manager) Lookup(roomID string) (*Room, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

// dropIfIdle removes the room from the registry unless a racing Attach
// claimed it again.
func (m *Manager) dropIfIdle(r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var refs int
	phony.Block(r, func() { refs = r.refs })
	if refs == 0 && m.rooms[r.id] == r {
		delete(m.rooms, r.id)
		liveRooms.Dec()
	}
}
