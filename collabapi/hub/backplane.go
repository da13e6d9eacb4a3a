// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package hub

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/hyperclast/pagesync/collabapi/types"
)

// Envelope kinds carried on the backplane.
const (
	KindFrame   = "frame"
	KindControl = "control"
)

// Backplane relays room frames and control events between workers. Every
// worker sees every published message and suppresses its own by origin, so
// implementations must tag messages with the publishing instance's name.
type Backplane interface {
	PublishFrame(ctx context.Context, roomID string, frame []byte) error
	PublishControl(ctx context.Context, roomID string, msg types.ControlMessage) error
	Close() error
}

// Envelope is one decoded backplane message.
type Envelope struct {
	Origin  string
	Kind    string
	RoomID  string
	Payload []byte
}

// EncodeEnvelope packs a backplane message as JSON with a base64 payload.
// Used by transports without native message headers.
func EncodeEnvelope(e Envelope) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "origin", e.Origin)
	out, _ = sjson.SetBytes(out, "kind", e.Kind)
	out, _ = sjson.SetBytes(out, "room_id", e.RoomID)
	out, _ = sjson.SetBytes(out, "payload", base64.StdEncoding.EncodeToString(e.Payload))
	return out
}

// DecodeEnvelope unpacks a JSON envelope produced by EncodeEnvelope.
func DecodeEnvelope(data []byte) (Envelope, error) {
	if !gjson.ValidBytes(data) {
		return Envelope{}, fmt.Errorf("envelope is not valid JSON")
	}
	parsed := gjson.ParseBytes(data)
	payload, err := base64.StdEncoding.DecodeString(parsed.Get("payload").String())
	if err != nil {
		return Envelope{}, fmt.Errorf("base64.StdEncoding.DecodeString: %w", err)
	}
	e := Envelope{
		Origin:  parsed.Get("origin").String(),
		Kind:    parsed.Get("kind").String(),
		RoomID:  parsed.Get("room_id").String(),
		Payload: payload,
	}
	if e.Kind != KindFrame && e.Kind != KindControl {
		return Envelope{}, fmt.Errorf("unknown envelope kind %q", e.Kind)
	}
	if e.RoomID == "" {
		return Envelope{}, fmt.Errorf("envelope has no room id")
	}
	return e, nil
}

// NoBackplane drops every publish. Suitable only for single-worker
// deployments.
type NoBackplane struct{}

func (NoBackplane) PublishFrame(context.Context, string, []byte) error { return nil }

func (NoBackplane) PublishControl(context.Context, string, types.ControlMessage) error {
	return nil
}

func (NoBackplane) Close() error { return nil }
