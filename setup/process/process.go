// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package process

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// ProcessContext keeps track of the components running inside this process.
// Long-running components mark themselves with ComponentStarted and
// ComponentFinished so that shutdown can wait for them to wind down.
type ProcessContext struct {
	wg       sync.WaitGroup     // used to wait for components to shutdown
	ctx      context.Context    // cancelled when Shutdown is called
	shutdown context.CancelFunc // shut down the process
	degraded sync.Once
}

func NewProcessContext() *ProcessContext {
	ctx, shutdown := context.WithCancel(context.Background())
	return &ProcessContext{
		ctx:      ctx,
		shutdown: shutdown,
	}
}

func (b *ProcessContext) Context() context.Context {
	return context.WithValue(b.ctx, "scope", "process") // nolint:staticcheck
}

func (b *ProcessContext) ComponentStarted() {
	b.wg.Add(1)
}

func (b *ProcessContext) ComponentFinished() {
	b.wg.Done()
}

func (b *ProcessContext) ShutdownPagesync() {
	b.shutdown()
}

// WaitForShutdown returns a channel that is closed once ShutdownPagesync
// has been called.
func (b *ProcessContext) WaitForShutdown() <-chan struct{} {
	return b.ctx.Done()
}

// WaitForComponentsToFinish blocks until every component that called
// ComponentStarted has called ComponentFinished.
func (b *ProcessContext) WaitForComponentsToFinish() {
	b.wg.Wait()
}

// Degraded logs that the process is running in a degraded state, at most
// once per process lifetime.
func (b *ProcessContext) Degraded(err error) {
	b.degraded.Do(func() {
		logrus.WithError(err).Warn("Pagesync is running in a degraded state")
	})
}
