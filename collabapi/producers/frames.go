// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package producers

import (
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/collabapi/crdt"
	"github.com/hyperclast/pagesync/collabapi/hub"
	"github.com/hyperclast/pagesync/collabapi/room"
)

// Frames delivers binary room frames into this worker's sessions. Local
// sessions broadcast through their room actor; this producer is the entry
// point for frames that arrive from other workers and must catch the live
// replica up before fan-out, so late joiners hydrate against current state.
type Frames struct {
	hub   *hub.Hub
	rooms *room.Manager
}

func NewFrames(h *hub.Hub, rooms *room.Manager) *Frames {
	return &Frames{hub: h, rooms: rooms}
}

// Relay applies a remote frame to the local replica when the room is live
// on this worker, then forwards it verbatim to local sessions.
func (p *Frames) Relay(roomID string, frame []byte) {
	if r, ok := p.rooms.Lookup(roomID); ok {
		p.applyToReplica(r, frame)
	}
	p.hub.BroadcastLocal(roomID, frame, "")
}

func (p *Frames) applyToReplica(r *room.Room, frame []byte) {
	msg, err := crdt.DecodeMessage(frame)
	if err != nil {
		logrus.WithError(err).WithField("room_id", r.ID()).Warn("Undecodable remote frame")
		return
	}
	if msg.Type != crdt.MsgSync || msg.Step == crdt.SyncStep1 {
		return // awareness and step 1 frames carry no document state
	}
	if err := r.ApplyRemote(msg.Payload); err != nil {
		logrus.WithError(err).WithField("room_id", r.ID()).Warn("Remote update did not apply")
	}
}
