// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sync

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/collabapi/types"
)

// controlLoop reacts to control events delivered through the hub. Events
// carrying a user id are targeted: sessions of other users drop them.
// Revocations re-evaluate access from storage rather than trusting the
// event, because the user may hold access through a second grant that was
// not revoked.
func (s *session) controlLoop(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.ctrl:
			s.handleControl(ctx, msg)
		}
	}
}

func (s *session) handleControl(ctx context.Context, msg types.ControlMessage) {
	if msg.UserID != 0 && (s.user == nil || s.user.ID != msg.UserID) {
		return
	}

	switch msg.Code {
	case types.ControlAccessRevoked:
		level, ok := s.reevaluateAccess(ctx)
		if !ok {
			return
		}
		if !level.CanRead() {
			// The client hears that access is gone before the socket
			// closes with 4001.
			s.sendControlThenClose(msg, types.CloseAccessRevoked, "access revoked")
			return
		}
		// Still readable through another grant; the session survives at
		// the recomputed level.
		s.setAccessLevel(level)
		s.queueControl(msg)

	case types.ControlWriteRevoked:
		level, ok := s.reevaluateAccess(ctx)
		if !ok {
			return
		}
		if !level.CanRead() {
			// The downgrade event found no surviving read access at all,
			// so the client is told access is gone, not merely write.
			s.sendControlThenClose(types.ControlMessage{
				Code:   types.ControlAccessRevoked,
				UserID: msg.UserID,
			}, types.CloseAccessRevoked, "access revoked")
			return
		}
		s.setAccessLevel(level)
		s.queueControl(msg)

	case types.ControlLinksUpdated:
		s.queueControl(msg)

	default:
		s.queueControl(msg)
	}
}

// reevaluateAccess recomputes the session's access level against current
// grants. On storage failure the cached level stays: failing open on a
// transient error beats kicking every editor in the room.
func (s *session) reevaluateAccess(ctx context.Context) (types.AccessLevel, bool) {
	level, err := s.server.resolver.AccessLevel(ctx, s.user, s.page, s.project)
	if err != nil {
		logrus.WithError(err).WithField("session_id", s.id).Error("Failed to re-evaluate access")
		return 0, false
	}
	return level, true
}
