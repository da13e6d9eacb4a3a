// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package hub

import (
	"context"
	"encoding/json"
	"fmt"

	natsclient "github.com/nats-io/nats.go"

	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/setup/jetstream"
)

// JetStreamBackplane publishes room traffic onto the process's JetStream
// streams. Envelope fields ride in message headers so the frame bytes go on
// the wire untouched.
type JetStreamBackplane struct {
	js     natsclient.JetStreamContext
	cfg    *config.JetStream
	origin string
}

func NewJetStreamBackplane(js natsclient.JetStreamContext, cfg *config.JetStream, origin string) *JetStreamBackplane {
	return &JetStreamBackplane{
		js:     js,
		cfg:    cfg,
		origin: origin,
	}
}

func (b *JetStreamBackplane) PublishFrame(ctx context.Context, roomID string, frame []byte) error {
	msg := natsclient.NewMsg(b.cfg.Prefixed(jetstream.RoomFrameEvent))
	msg.Header.Set(jetstream.RoomIDHeader, roomID)
	msg.Header.Set(jetstream.OriginHeader, b.origin)
	msg.Header.Set(jetstream.KindHeader, KindFrame)
	msg.Data = frame
	if _, err := b.js.PublishMsg(msg, natsclient.Context(ctx)); err != nil {
		return fmt.Errorf("js.PublishMsg: %w", err)
	}
	return nil
}

func (b *JetStreamBackplane) PublishControl(ctx context.Context, roomID string, control types.ControlMessage) error {
	payload, err := json.Marshal(control)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	msg := natsclient.NewMsg(b.cfg.Prefixed(jetstream.ControlEvent))
	msg.Header.Set(jetstream.RoomIDHeader, roomID)
	msg.Header.Set(jetstream.OriginHeader, b.origin)
	msg.Header.Set(jetstream.KindHeader, KindControl)
	msg.Data = payload
	if _, err := b.js.PublishMsg(msg, natsclient.Context(ctx)); err != nil {
		return fmt.Errorf("js.PublishMsg: %w", err)
	}
	return nil
}

// Close is a no-op: the NATS connection is owned by the process, not the
// backplane.
func (b *JetStreamBackplane) Close() error { return nil }
