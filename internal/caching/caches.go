// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package caching

import (
	"github.com/hyperclast/pagesync/workspaceapi/api"
)

// Caches contains a set of references to caches. They may be shared
// partitions of a larger cache or entirely separate caches; the consumers
// should not care.
type Caches struct {
	// Pages maps a page external id to its record, saving a workspace
	// lookup on every reconnect to a busy page. Entries are dropped on
	// title updates and deletes.
	Pages Cache[string, api.Page]
	// Projects maps a project id to its record.
	Projects Cache[int64, api.Project]
}

// Cache is the interface that an implementation must satisfy.
type Cache[K keyable, V any] interface {
	Get(key K) (value V, ok bool)
	Set(key K, value V)
	Unset(key K)
}

type keyable interface {
	~string | ~int64
}

const (
	// Whether to enable prometheus metrics for the cache.
	EnableMetrics  = true
	DisableMetrics = false
)
