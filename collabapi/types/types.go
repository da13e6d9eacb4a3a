// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package types

import (
	"strings"
	"time"
)

// AccessLevel is the computed authorization outcome for a (user, page)
// pair. It is never persisted.
type AccessLevel int

const (
	AccessNone AccessLevel = iota
	AccessViewer
	AccessEditor
	AccessAdmin
)

func (a AccessLevel) String() string {
	switch a {
	case AccessViewer:
		return "viewer"
	case AccessEditor:
		return "editor"
	case AccessAdmin:
		return "admin"
	default:
		return "none"
	}
}

// CanRead reports whether the level admits reading the document at all.
func (a AccessLevel) CanRead() bool {
	return a > AccessNone
}

// CanWrite reports whether the level admits mutation frames.
func (a AccessLevel) CanWrite() bool {
	return a >= AccessEditor
}

// RoomPrefix is prepended to a page's external id to form its room id.
const RoomPrefix = "page_"

// RoomID returns the room id for the given page external id.
func RoomID(pageExternalID string) string {
	return RoomPrefix + pageExternalID
}

// PageExternalID strips the room prefix from a room id. ok is false if the
// room id is not page-shaped.
func PageExternalID(roomID string) (string, bool) {
	external := strings.TrimPrefix(roomID, RoomPrefix)
	if external == roomID || external == "" {
		return "", false
	}
	return external, true
}

// Timestamp is a moment in time in milliseconds since the unix epoch, which
// is how both storage engines persist times.
type Timestamp int64

func AsTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UnixMilli())
}

func (t Timestamp) Time() time.Time {
	return time.UnixMilli(int64(t))
}

// Update is one persisted CRDT update record. Once written it is immutable;
// the id is assigned at insertion and is strictly monotonic per room.
type Update struct {
	ID        int64
	RoomID    string
	Update    []byte
	Meta      []byte
	Timestamp Timestamp
}

// Snapshot is the per-room singleton full-state record. Update records with
// id <= LastUpdateID are folded into Update and may be pruned.
type Snapshot struct {
	RoomID       string
	Snapshot     []byte
	LastUpdateID int64
	Timestamp    Timestamp
}

// An empty document encodes to exactly two zero bytes. A snapshot of that
// length (or shorter) reconstructs nothing and, once persisted, poisons
// every subsequent hydration, so such snapshots are never written and are
// ignored when read.
const trivialSnapshotLength = 2

// ValidSnapshot reports whether the encoded snapshot carries any state.
func ValidSnapshot(data []byte) bool {
	return len(data) > trivialSnapshotLength
}

// WebSocket close codes used by the collab endpoint.
const (
	CloseNormal        = 1000
	CloseAccessRevoked = 4001
	CloseForbidden     = 4003
	ClosePageNotFound  = 4004
	CloseRateLimited   = 4029
)

// Control message codes carried on text frames and on the backplane.
const (
	ControlRateLimited     = "rate_limited"
	ControlReadOnly        = "read_only"
	ControlAccessRevoked   = "access_revoked"
	ControlWriteRevoked    = "write_permission_revoked"
	ControlLinksUpdated    = "links_updated"
	ControlError           = "error"
)

// ControlMessage is the JSON shape of text frames sent to clients and of
// control events relayed between workers. UserID targets revocation events
// at one user; each session filters for itself. Page carries the external
// page id on links_updated notifications.
type ControlMessage struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	UserID  int64  `json:"user_id,omitempty"`
	Page    string `json:"page,omitempty"`
}
