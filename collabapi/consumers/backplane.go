// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package consumers pulls room frames and control events published by other
// workers off the backplane and feeds them to this worker's hub.
package consumers

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"
	natsclient "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/collabapi/hub"
	"github.com/hyperclast/pagesync/collabapi/producers"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/setup/jetstream"
	"github.com/hyperclast/pagesync/setup/process"
)

// BackplaneConsumer receives the other workers' traffic. Every worker
// consumes every message and drops its own echoes by origin instance name.
type BackplaneConsumer struct {
	ctx      context.Context
	cfg      *config.CollabAPI
	jsCfg    *config.JetStream
	origin   string
	js       natsclient.JetStreamContext
	redis    *redis.Client
	hub      *hub.Hub
	frames   *producers.Frames
	frameSub string
	ctrlSub  string
}

func NewBackplaneConsumer(
	process *process.ProcessContext,
	cfg *config.CollabAPI,
	jsCfg *config.JetStream,
	origin string,
	js natsclient.JetStreamContext,
	redisClient *redis.Client,
	h *hub.Hub,
	frames *producers.Frames,
) *BackplaneConsumer {
	return &BackplaneConsumer{
		ctx:      process.Context(),
		cfg:      cfg,
		jsCfg:    jsCfg,
		origin:   origin,
		js:       js,
		redis:    redisClient,
		hub:      h,
		frames:   frames,
		frameSub: jsCfg.Prefixed(jetstream.RoomFrameEvent),
		ctrlSub:  jsCfg.Prefixed(jetstream.ControlEvent),
	}
}

// Start begins consumption for the configured backplane type.
func (c *BackplaneConsumer) Start() error {
	switch c.cfg.Backplane.Type {
	case config.BackplaneJetStream:
		return c.startJetStream()
	case config.BackplaneRedis:
		go c.consumeRedis()
		return nil
	case config.BackplaneNone:
		return nil
	}
	return nil
}

func (c *BackplaneConsumer) startJetStream() error {
	// Durable names carry the instance name: each worker owns its own
	// cursor over the shared streams. DeliverNew because a restarted worker
	// has no sessions that could want history.
	frameDurable := c.jsCfg.Durable("CollabFrame_" + c.origin)
	if err := jetstream.JetStreamConsumer(
		c.ctx, c.js, c.frameSub, frameDurable, 1,
		c.onJetStreamMessage, natsclient.DeliverNew(), natsclient.ManualAck(),
	); err != nil {
		return err
	}
	ctrlDurable := c.jsCfg.Durable("CollabControl_" + c.origin)
	return jetstream.JetStreamConsumer(
		c.ctx, c.js, c.ctrlSub, ctrlDurable, 1,
		c.onJetStreamMessage, natsclient.DeliverNew(), natsclient.ManualAck(),
	)
}

func (c *BackplaneConsumer) onJetStreamMessage(ctx context.Context, msgs []*natsclient.Msg) bool {
	msg := msgs[0] // batch size is 1
	e := hub.Envelope{
		Origin:  msg.Header.Get(jetstream.OriginHeader),
		Kind:    msg.Header.Get(jetstream.KindHeader),
		RoomID:  msg.Header.Get(jetstream.RoomIDHeader),
		Payload: msg.Data,
	}
	c.deliver(e)
	return true
}

func (c *BackplaneConsumer) consumeRedis() {
	frames := c.redis.PSubscribe(c.ctx, hub.RedisRoomChannelPattern)
	controls := c.redis.Subscribe(c.ctx, hub.RedisControlChannel)
	defer frames.Close()   // nolint: errcheck
	defer controls.Close() // nolint: errcheck

	frameCh := frames.Channel()
	controlCh := controls.Channel()
	for {
		var payload string
		select {
		case <-c.ctx.Done():
			return
		case msg, ok := <-frameCh:
			if !ok {
				return
			}
			payload = msg.Payload
		case msg, ok := <-controlCh:
			if !ok {
				return
			}
			payload = msg.Payload
		}
		e, err := hub.DecodeEnvelope([]byte(payload))
		if err != nil {
			logrus.WithError(err).Warn("Dropping malformed backplane envelope")
			continue
		}
		c.deliver(e)
	}
}

// deliver hands one remote message to the local hub.
func (c *BackplaneConsumer) deliver(e hub.Envelope) {
	if e.Origin == c.origin {
		return // our own echo
	}
	if e.RoomID == "" {
		return
	}
	switch e.Kind {
	case hub.KindFrame:
		c.frames.Relay(e.RoomID, e.Payload)
	case hub.KindControl:
		var msg types.ControlMessage
		if err := json.Unmarshal(e.Payload, &msg); err != nil {
			logrus.WithError(err).Warn("Dropping malformed backplane control event")
			return
		}
		c.hub.SendControlLocal(e.RoomID, msg)
	}
}
