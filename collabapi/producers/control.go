// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package producers gives the REST surface a typed API for raising control
// events into live rooms, locally and across workers.
package producers

import (
	"context"

	"github.com/hyperclast/pagesync/collabapi/hub"
	"github.com/hyperclast/pagesync/collabapi/types"
)

type ControlEvents struct {
	hub *hub.Hub
}

func NewControlEvents(h *hub.Hub) *ControlEvents {
	return &ControlEvents{hub: h}
}

// AccessRevoked tells the user's sessions in the room to re-evaluate their
// access. Sessions that retain access through another grant survive.
func (p *ControlEvents) AccessRevoked(ctx context.Context, pageExternalID string, userID int64) {
	p.hub.SendControl(ctx, types.RoomID(pageExternalID), types.ControlMessage{
		Code:   types.ControlAccessRevoked,
		UserID: userID,
	})
}

// WritePermissionRevoked tells the user's sessions to downgrade their
// cached access level.
func (p *ControlEvents) WritePermissionRevoked(ctx context.Context, pageExternalID string, userID int64) {
	p.hub.SendControl(ctx, types.RoomID(pageExternalID), types.ControlMessage{
		Code:   types.ControlWriteRevoked,
		UserID: userID,
	})
}

// LinksUpdated notifies every session in the room that the page's metadata
// or outbound links changed and listing surfaces should refresh.
func (p *ControlEvents) LinksUpdated(ctx context.Context, pageExternalID string) {
	p.hub.SendControl(ctx, types.RoomID(pageExternalID), types.ControlMessage{
		Code: types.ControlLinksUpdated,
		Page: pageExternalID,
	})
}
