// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package ratelimit caps WebSocket connect attempts with a fixed-window
// counter, keyed by user id for authenticated connects and by client IP for
// anonymous ones. The buckets are independent: an anonymous flood from an
// IP does not lock out an authenticated user behind the same NAT.
package ratelimit

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/api"
)

const (
	userKeyPrefix = "ws_rate_user_"
	ipKeyPrefix   = "ws_rate_ip_"
)

var connectRejections = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "pagesync",
		Subsystem: "collabapi",
		Name:      "connect_rate_limit_rejections_total",
		Help:      "WebSocket connect attempts rejected by the rate limiter.",
	},
)

// Counter is an atomic increment-with-TTL. The first increment of a key
// starts its window; the key expires when the window ends.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// ConnectionLimiter applies the configured connect budget. Backed by a
// process-local counter by default, or Redis when workers must share
// buckets.
type ConnectionLimiter struct {
	cfg     *config.ConnectionRateLimiting
	counter Counter

	exemptUsers map[string]struct{}
	exemptNets  []*net.IPNet
}

func NewConnectionLimiter(cfg *config.ConnectionRateLimiting, counter Counter) *ConnectionLimiter {
	l := &ConnectionLimiter{
		cfg:         cfg,
		counter:     counter,
		exemptUsers: make(map[string]struct{}, len(cfg.ExemptUserIDs)),
	}
	for _, id := range cfg.ExemptUserIDs {
		l.exemptUsers[id] = struct{}{}
	}
	for _, exempt := range cfg.ExemptIPAddresses {
		if _, network, err := net.ParseCIDR(exempt); err == nil {
			l.exemptNets = append(l.exemptNets, network)
			continue
		}
		if ip := net.ParseIP(exempt); ip != nil {
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			l.exemptNets = append(l.exemptNets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
		}
	}
	return l
}

// AllowConnect reports whether the connect attempt fits the window. On
// counter backend failure the attempt is allowed: a broken Redis must not
// take the product down with it.
func (l *ConnectionLimiter) AllowConnect(ctx context.Context, user *api.User, remoteIP net.IP) bool {
	if !l.cfg.Enabled {
		return true
	}
	var key string
	if user != nil {
		id := strconv.FormatInt(user.ID, 10)
		if _, ok := l.exemptUsers[id]; ok {
			return true
		}
		key = userKeyPrefix + id
	} else {
		for _, network := range l.exemptNets {
			if network.Contains(remoteIP) {
				return true
			}
		}
		key = ipKeyPrefix + remoteIP.String()
	}

	window := time.Duration(l.cfg.WindowSeconds) * time.Second
	count, err := l.counter.Incr(ctx, key, window)
	if err != nil {
		return true
	}
	if count > l.cfg.Connections {
		connectRejections.Inc()
		return false
	}
	return true
}

// LocalCounter keeps windows in process memory.
type LocalCounter struct {
	cache *gocache.Cache
}

func NewLocalCounter() *LocalCounter {
	return &LocalCounter{
		cache: gocache.New(gocache.NoExpiration, time.Minute),
	}
}

func (c *LocalCounter) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	// Add only succeeds for an absent (or expired) key, which is exactly
	// the start of a new window. An existing key keeps its TTL.
	_ = c.cache.Add(key, int64(0), window)
	count, err := c.cache.IncrementInt64(key, 1)
	if err != nil {
		return 0, fmt.Errorf("cache.IncrementInt64: %w", err)
	}
	return count, nil
}
