// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/hyperclast/pagesync/collabapi/types"
)

// Redis channel layout. Frames go on a per-room channel so consumers can
// pattern-subscribe; control events share one channel because they are rare
// and every worker wants all of them anyway.
const (
	RedisRoomChannelPrefix  = "pagesync.room."
	RedisControlChannel     = "pagesync.control"
	RedisRoomChannelPattern = RedisRoomChannelPrefix + "*"
)

// RedisRoomChannel returns the pub/sub channel carrying the room's frames.
func RedisRoomChannel(roomID string) string {
	return RedisRoomChannelPrefix + roomID
}

// RoomIDFromRedisChannel recovers the room id from a frame channel name.
func RoomIDFromRedisChannel(channel string) (string, bool) {
	if len(channel) <= len(RedisRoomChannelPrefix) {
		return "", false
	}
	if channel[:len(RedisRoomChannelPrefix)] != RedisRoomChannelPrefix {
		return "", false
	}
	return channel[len(RedisRoomChannelPrefix):], true
}

// RedisBackplane publishes room traffic over Redis pub/sub. Unlike
// JetStream there are no message headers, so everything is wrapped in a
// JSON envelope.
type RedisBackplane struct {
	client *redis.Client
	origin string
}

func NewRedisBackplane(client *redis.Client, origin string) *RedisBackplane {
	return &RedisBackplane{
		client: client,
		origin: origin,
	}
}

func (b *RedisBackplane) PublishFrame(ctx context.Context, roomID string, frame []byte) error {
	envelope := EncodeEnvelope(Envelope{
		Origin:  b.origin,
		Kind:    KindFrame,
		RoomID:  roomID,
		Payload: frame,
	})
	if err := b.client.Publish(ctx, RedisRoomChannel(roomID), envelope).Err(); err != nil {
		return fmt.Errorf("redis.Publish: %w", err)
	}
	return nil
}

func (b *RedisBackplane) PublishControl(ctx context.Context, roomID string, control types.ControlMessage) error {
	payload, err := json.Marshal(control)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	envelope := EncodeEnvelope(Envelope{
		Origin:  b.origin,
		Kind:    KindControl,
		RoomID:  roomID,
		Payload: payload,
	})
	if err := b.client.Publish(ctx, RedisControlChannel, envelope).Err(); err != nil {
		return fmt.Errorf("redis.Publish: %w", err)
	}
	return nil
}

func (b *RedisBackplane) Close() error {
	return b.client.Close()
}
