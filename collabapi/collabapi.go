// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package collabapi

import (
	"context"
	"crypto/sha256"

	"github.com/go-redis/redis/v8"
	natsclient "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/collabapi/consumers"
	"github.com/hyperclast/pagesync/collabapi/hub"
	"github.com/hyperclast/pagesync/collabapi/perm"
	"github.com/hyperclast/pagesync/collabapi/producers"
	"github.com/hyperclast/pagesync/collabapi/ratelimit"
	"github.com/hyperclast/pagesync/collabapi/room"
	"github.com/hyperclast/pagesync/collabapi/routing"
	"github.com/hyperclast/pagesync/collabapi/storage"
	"github.com/hyperclast/pagesync/collabapi/sync"
	"github.com/hyperclast/pagesync/collabapi/types"
	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/setup/jetstream"
	"github.com/hyperclast/pagesync/setup/process"
)

// WorkspaceStore is the slice of workspace storage the collab side consumes:
// page resolution for the handshake and the four grant lookups for the
// permission resolver.
type WorkspaceStore interface {
	sync.Workspace
	perm.Store
}

// AddPublicRoutes wires up the collab component: storage, backplane, hub,
// room manager, rate limiter and the WebSocket endpoint. The returned
// control event producer is how the REST surface reaches live sessions.
func AddPublicRoutes(
	processContext *process.ProcessContext,
	routers httputil.Routers,
	cfg *config.Pagesync,
	cm *sqlutil.Connections,
	natsInstance *jetstream.NATSInstance,
	workspace WorkspaceStore,
	auth sync.UserAuthenticator,
) *producers.ControlEvents {
	db, err := storage.NewDatabase(cm, &cfg.CollabAPI.Database)
	if err != nil {
		logrus.WithError(err).Panic("failed to connect to collab db")
	}

	backplane, js, redisClient := prepareBackplane(processContext, cfg, natsInstance)
	h := hub.NewHub(backplane)
	controlEvents := producers.NewControlEvents(h)

	// Resolution of what happens after a checkpoint: peers and listing
	// surfaces learn that the page content changed.
	hook := func(ctx context.Context, roomID string, _ [sha256.Size]byte) {
		if externalID, ok := types.PageExternalID(roomID); ok {
			controlEvents.LinksUpdated(ctx, externalID)
		}
	}
	rooms := room.NewManager(db, h, &cfg.CollabAPI.Snapshot, hook)

	limiter := ratelimit.NewConnectionLimiter(&cfg.CollabAPI.RateLimiting, prepareCounter(&cfg.CollabAPI.RateLimiting))
	resolver := perm.NewResolver(workspace)

	server := sync.NewServer(
		processContext.Context(), &cfg.CollabAPI,
		h, rooms, resolver, limiter, workspace, auth,
	)
	routing.Setup(routers.Collab, server)

	consumer := consumers.NewBackplaneConsumer(
		processContext, &cfg.CollabAPI, &cfg.Global.JetStream,
		cfg.Global.InstanceName, js, redisClient, h, producers.NewFrames(h, rooms),
	)
	if err := consumer.Start(); err != nil {
		logrus.WithError(err).Panic("failed to start backplane consumer")
	}

	return controlEvents
}

func prepareBackplane(
	processContext *process.ProcessContext,
	cfg *config.Pagesync,
	natsInstance *jetstream.NATSInstance,
) (hub.Backplane, natsclient.JetStreamContext, *redis.Client) {
	switch cfg.CollabAPI.Backplane.Type {
	case config.BackplaneJetStream:
		js, _ := natsInstance.Prepare(processContext, &cfg.Global.JetStream)
		return hub.NewJetStreamBackplane(js, &cfg.Global.JetStream, cfg.Global.InstanceName), js, nil
	case config.BackplaneRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.CollabAPI.Backplane.RedisAddress})
		return hub.NewRedisBackplane(client, cfg.Global.InstanceName), nil, client
	default:
		return hub.NoBackplane{}, nil, nil
	}
}

func prepareCounter(cfg *config.ConnectionRateLimiting) ratelimit.Counter {
	if cfg.RedisAddress != "" {
		return ratelimit.NewRedisCounter(redis.NewClient(&redis.Options{Addr: cfg.RedisAddress}))
	}
	return ratelimit.NewLocalCounter()
}
