// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package jetstream

import (
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	natsserver "github.com/nats-io/nats-server/v2/server"
	natsclient "github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/setup/process"
)

// The embedded NATS server is only supported from this version upwards;
// older releases ship JetStream bugs around interest-based retention that
// lose backplane messages.
const natsMinimumVersion = "2.9.0"

// NATSInstance holds the embedded NATS server (when no external addresses
// are configured) and the process's connection to it.
type NATSInstance struct {
	*natsserver.Server
	nc *natsclient.Conn
	js natsclient.JetStreamContext
	sync.Mutex
}

// DeleteAllStreams removes every Pagesync stream from the instance. Used by
// the test rigs to get a clean slate between runs.
func DeleteAllStreams(js natsclient.JetStreamContext, cfg *config.JetStream) {
	for _, stream := range streams {
		name := cfg.Prefixed(stream.Name)
		_ = js.DeleteStream(name)
	}
}

// Prepare returns a JetStream context for the configured deployment,
// starting an embedded server on first use when no external addresses are
// given. Panics if the setup fails; there is nothing useful a pagesync
// process can do without its backplane.
func (s *NATSInstance) Prepare(process *process.ProcessContext, cfg *config.JetStream) (natsclient.JetStreamContext, *natsclient.Conn) {
	s.Lock()
	defer s.Unlock()
	// Check if we need to start a NATS server in-process. If so, make sure
	// we only start it once.
	if len(cfg.Addresses) == 0 {
		mustHaveRecentNATS()
		if s.Server == nil {
			var err error
			opts := &natsserver.Options{
				ServerName:       "pagesync",
				DontListen:       true,
				JetStream:        true,
				StoreDir:         string(cfg.StoragePath),
				NoSystemAccount:  true,
				MaxPayload:       16 * 1024 * 1024,
				NoSigs:           true,
				NoLog:            cfg.NoLog,
				SyncAlways:       true,
			}
			s.Server, err = natsserver.NewServer(opts)
			if err != nil {
				logrus.WithError(err).Panic("Failed to create embedded NATS server")
			}
			if !cfg.NoLog {
				s.Server.ConfigureLogger()
			}
			process.ComponentStarted()
			go func() {
				s.Server.Start()
				process.ComponentFinished()
			}()
			go func() {
				<-process.WaitForShutdown()
				s.Server.Shutdown()
				s.Server.WaitForShutdown()
			}()
		}
		if !s.Server.ReadyForConnections(time.Second * 60) {
			logrus.Panic("NATS did not start in time")
		}
		if s.nc == nil {
			var err error
			s.nc, err = natsclient.Connect("", natsclient.InProcessServer(s))
			if err != nil {
				logrus.WithError(err).Panic("Failed to create NATS client")
			}
		}
		return setupNATS(process, cfg, s.nc)
	}
	if s.nc == nil {
		var err error
		opts := []natsclient.Option{}
		if cfg.DisableTLSValidation {
			opts = append(opts, natsclient.Secure())
		}
		s.nc, err = natsclient.Connect(strings.Join(cfg.Addresses, ","), opts...)
		if err != nil {
			logrus.WithError(err).Panic("Unable to connect to NATS")
		}
	}
	return setupNATS(process, cfg, s.nc)
}

func setupNATS(process *process.ProcessContext, cfg *config.JetStream, nc *natsclient.Conn) (natsclient.JetStreamContext, *natsclient.Conn) {
	js, err := nc.JetStream()
	if err != nil {
		logrus.WithError(err).Panic("Unable to get JetStream context")
	}

	for _, stream := range streams {
		name := cfg.Prefixed(stream.Name)
		info, err := js.StreamInfo(name)
		if err != nil && err != natsclient.ErrStreamNotFound {
			logrus.WithError(err).Fatal("Unable to get stream info")
		}
		if info == nil {
			// Namespace the streams without modifying the original streams
			// array, otherwise we end up with namespaces on namespaces.
			namespaced := *stream
			namespaced.Name = name
			namespaced.Subjects = []string{name}
			if cfg.InMemory {
				namespaced.Storage = natsclient.MemoryStorage
			}
			if _, err = js.AddStream(&namespaced); err != nil {
				logrus.WithError(err).WithField("stream", name).Fatal("Unable to add stream")
			}
		}
	}

	return js, nc
}

func mustHaveRecentNATS() {
	serverVersion, err := semver.NewVersion(natsserver.VERSION)
	if err != nil {
		logrus.WithError(err).Warnf("Unable to parse NATS server version %q", natsserver.VERSION)
		return
	}
	minimumVersion := semver.MustParse(natsMinimumVersion)
	if serverVersion.LessThan(minimumVersion) {
		logrus.Fatalf("Embedded NATS server version %s is too old, need at least %s", serverVersion, minimumVersion)
	}
}
