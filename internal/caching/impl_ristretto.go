// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package caching

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/workspaceapi/api"
)

// Single-byte prefixes keep partitions of the shared ristretto instance
// from colliding on equal keys.
const (
	pagesCache byte = iota + 1
	projectsCache
)

// NewRistrettoCache creates a new ristretto cache with the given capacity
// and maximum entry age, and carves the typed partitions out of it.
func NewRistrettoCache(maxCost config.DataUnit, maxAge time.Duration, enableMetrics bool) *Caches {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: int64(maxCost) / 10,
		MaxCost:     int64(maxCost),
		BufferItems: 64,
		Metrics:     true,
	})
	if err != nil {
		panic(err)
	}
	if enableMetrics {
		promauto.With(prometheus.DefaultRegisterer).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "pagesync",
			Subsystem: "caching_ristretto",
			Name:      "ratio",
		}, func() float64 {
			return cache.Metrics.Ratio()
		})
		promauto.With(prometheus.DefaultRegisterer).NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "pagesync",
			Subsystem: "caching_ristretto",
			Name:      "cost",
		}, func() float64 {
			return float64(cache.Metrics.CostAdded() - cache.Metrics.CostEvicted())
		})
	}
	return &Caches{
		Pages: &RistrettoCachePartition[string, api.Page]{
			cache:  cache,
			prefix: pagesCache,
			maxAge: maxAge,
		},
		Projects: &RistrettoCachePartition[int64, api.Project]{
			cache:  cache,
			prefix: projectsCache,
			maxAge: maxAge,
		},
	}
}

// RistrettoCachePartition is one typed view over the shared cache.
type RistrettoCachePartition[K keyable, V any] struct {
	cache  *ristretto.Cache
	prefix byte
	maxAge time.Duration
}

func (c *RistrettoCachePartition[K, V]) key(key K) string {
	return fmt.Sprintf("%c%v", c.prefix, key)
}

func (c *RistrettoCachePartition[K, V]) Set(key K, value V) {
	c.cache.SetWithTTL(c.key(key), value, 1, c.maxAge)
}

func (c *RistrettoCachePartition[K, V]) Unset(key K) {
	c.cache.Del(c.key(key))
}

func (c *RistrettoCachePartition[K, V]) Get(key K) (value V, ok bool) {
	v, ok := c.cache.Get(c.key(key))
	if !ok || v == nil {
		var empty V
		return empty, false
	}
	value, ok = v.(V)
	return value, ok
}
