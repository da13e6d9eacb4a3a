// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCounter shares connect windows between workers.
type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis.Incr: %w", err)
	}
	// The first increment of the window owns setting the TTL. A crash
	// between INCR and EXPIRE leaves the key without a TTL, so refresh the
	// TTL whenever it is missing rather than only on count == 1.
	if count == 1 {
		if err := c.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("redis.Expire: %w", err)
		}
	} else {
		ttl, err := c.client.TTL(ctx, key).Result()
		if err == nil && ttl < 0 {
			_ = c.client.Expire(ctx, key, window).Err()
		}
	}
	return count, nil
}
