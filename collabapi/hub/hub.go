// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package hub

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/exp/maps"

	"github.com/hyperclast/pagesync/collabapi/types"
)

// Session is the hub's view of one attached WebSocket. Queue methods must
// not block: they hand the payload to the session's outbound queue and
// report false when the queue is full.
type Session interface {
	ID() string
	QueueFrame(frame []byte) bool
	QueueControl(msg types.ControlMessage) bool
	Kick(reason string)
}

var (
	sessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pagesync",
			Subsystem: "collabapi",
			Name:      "hub_sessions",
			Help:      "Number of WebSocket sessions attached to the hub.",
		},
	)
	slowConsumerKicks = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "pagesync",
			Subsystem: "collabapi",
			Name:      "hub_slow_consumer_kicks_total",
			Help:      "Sessions dropped because their outbound queue was full.",
		},
	)
)

// Hub tracks which sessions are attached to which rooms and fans frames and
// control events out to them, locally and over the backplane. A session that
// cannot keep up with its queue is kicked rather than allowed to stall the
// room.
type Hub struct {
	backplane Backplane

	mu    sync.RWMutex
	rooms map[string]map[string]Session
}

func NewHub(backplane Backplane) *Hub {
	return &Hub{
		backplane: backplane,
		rooms:     make(map[string]map[string]Session),
	}
}

// Join attaches a session to a room. A session may be attached to at most
// one room; the session id must be unique across the process.
func (h *Hub) Join(roomID string, s Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sessions := h.rooms[roomID]
	if sessions == nil {
		sessions = make(map[string]Session)
		h.rooms[roomID] = sessions
	}
	sessions[s.ID()] = s
	sessionsGauge.Inc()
}

// Leave detaches a session from a room. Detaching a session that already
// left is a no-op.
func (h *Hub) Leave(roomID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	sessions := h.rooms[roomID]
	if _, ok := sessions[sessionID]; !ok {
		return
	}
	delete(sessions, sessionID)
	if len(sessions) == 0 {
		delete(h.rooms, roomID)
	}
	sessionsGauge.Dec()
}

// RoomIDs returns the ids of all rooms with at least one local session.
func (h *Hub) RoomIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Keys(h.rooms)
}

// SessionCount returns the number of local sessions attached to the room.
func (h *Hub) SessionCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Broadcast delivers a binary frame to every local session in the room
// except the originator, then publishes it to the backplane for other
// workers.
func (h *Hub) Broadcast(ctx context.Context, roomID string, frame []byte, exceptSessionID string) {
	h.BroadcastLocal(roomID, frame, exceptSessionID)
	if err := h.backplane.PublishFrame(ctx, roomID, frame); err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to publish frame to backplane")
	}
}

// BroadcastLocal delivers a binary frame to local sessions only. Used when
// the frame arrived over the backplane and must not be re-published.
func (h *Hub) BroadcastLocal(roomID string, frame []byte, exceptSessionID string) {
	for _, s := range h.roomSessions(roomID) {
		if s.ID() == exceptSessionID {
			continue
		}
		if !s.QueueFrame(frame) {
			h.kickSlow(roomID, s)
		}
	}
}

// SendControl delivers a control event to every local session in the room,
// then publishes it to the backplane. Each session filters events targeted
// at other users itself.
func (h *Hub) SendControl(ctx context.Context, roomID string, msg types.ControlMessage) {
	h.SendControlLocal(roomID, msg)
	if err := h.backplane.PublishControl(ctx, roomID, msg); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"room_id": roomID,
			"code":    msg.Code,
		}).Error("Failed to publish control event to backplane")
	}
}

// SendControlLocal delivers a control event to local sessions only.
func (h *Hub) SendControlLocal(roomID string, msg types.ControlMessage) {
	for _, s := range h.roomSessions(roomID) {
		if !s.QueueControl(msg) {
			h.kickSlow(roomID, s)
		}
	}
}

// roomSessions snapshots the room's member list so delivery happens outside
// the lock. Kicked sessions call Leave from their own goroutine.
func (h *Hub) roomSessions(roomID string) []Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return maps.Values(h.rooms[roomID])
}

func (h *Hub) kickSlow(roomID string, s Session) {
	slowConsumerKicks.Inc()
	logrus.WithFields(logrus.Fields{
		"room_id":    roomID,
		"session_id": s.ID(),
	}).Warn("Kicking slow consumer")
	h.Leave(roomID, s.ID())
	s.Kick("slow consumer")
}
