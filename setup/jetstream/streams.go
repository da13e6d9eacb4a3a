// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package jetstream

import (
	"time"

	natsclient "github.com/nats-io/nats.go"
)

// Stream names. The config's topic_prefix is prepended to these when the
// streams are created and when subjects are published.
const (
	RoomFrameEvent    = "PagesyncRoomFrame"
	ControlEvent      = "PagesyncControlEvent"
)

// Message header keys used on backplane envelopes.
const (
	RoomIDHeader = "room_id"
	OriginHeader = "origin"
	KindHeader   = "kind"
)

// Backplane streams carry transient fan-out traffic: interest retention so
// messages vanish once every worker has seen them, and a short age cap so
// a wedged consumer cannot pin memory forever.
var streams = []*natsclient.StreamConfig{
	{
		Name:      RoomFrameEvent,
		Retention: natsclient.InterestPolicy,
		Storage:   natsclient.MemoryStorage,
		MaxAge:    time.Minute * 5,
	},
	{
		Name:      ControlEvent,
		Retention: natsclient.InterestPolicy,
		Storage:   natsclient.MemoryStorage,
		MaxAge:    time.Minute * 5,
	},
}
