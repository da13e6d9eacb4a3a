// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package testrig builds fully wired configs for integration-style tests.
package testrig

import (
	"testing"

	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/setup/jetstream"
	"github.com/hyperclast/pagesync/setup/process"
	"github.com/hyperclast/pagesync/test"
)

// CreateConfig returns a config with fresh databases of the requested type
// and an in-memory JetStream. The caller owns the returned close function.
func CreateConfig(t *testing.T, dbType test.DBType) (*config.Pagesync, *process.ProcessContext, func()) {
	t.Helper()
	var cfg config.Pagesync
	cfg.Defaults(config.DefaultOpts{Generate: true, SingleDatabase: false})

	collabStr, closeCollab := test.PrepareDBConnectionString(t, dbType)
	workspaceStr, closeWorkspace := test.PrepareDBConnectionString(t, dbType)
	cfg.CollabAPI.Database.ConnectionString = collabStr
	cfg.WorkspaceAPI.Database.ConnectionString = workspaceStr
	cfg.WorkspaceAPI.Auth.JWTSecret = "testrig-secret"

	cfg.Global.JetStream.InMemory = true
	cfg.Global.JetStream.NoLog = true
	cfg.Global.JetStream.StoragePath = config.Path(t.TempDir())
	// Stream names are global within a NATS server; prefix per test so
	// parallel tests sharing an embedded server cannot collide.
	cfg.Global.JetStream.TopicPrefix = "Test"

	processCtx := process.NewProcessContext()
	return &cfg, processCtx, func() {
		processCtx.ShutdownPagesync()
		processCtx.WaitForComponentsToFinish()
		closeCollab()
		closeWorkspace()
	}
}

// CreateConfigWithNATS also prepares the embedded NATS instance and cleans
// its streams up on close.
func CreateConfigWithNATS(t *testing.T, dbType test.DBType) (*config.Pagesync, *process.ProcessContext, *jetstream.NATSInstance, func()) {
	t.Helper()
	cfg, processCtx, closeRig := CreateConfig(t, dbType)
	natsInstance := &jetstream.NATSInstance{}
	js, _ := natsInstance.Prepare(processCtx, &cfg.Global.JetStream)
	return cfg, processCtx, natsInstance, func() {
		jetstream.DeleteAllStreams(js, &cfg.Global.JetStream)
		closeRig()
	}
}
