// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

// Package setup assembles the public HTTP surface of a pagesync process.
package setup

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/setup/process"
)

// CreateRouter mounts the component routers and the operational endpoints
// on one external router.
func CreateRouter(cfg *config.Pagesync, routers httputil.Routers) *mux.Router {
	external := mux.NewRouter().SkipClean(true).UseEncodedPath()
	external.PathPrefix(httputil.PublicWorkspaceAPIPathPrefix).Handler(routers.Workspace)
	external.PathPrefix(httputil.PublicCollabPathPrefix).Handler(routers.Collab)
	external.HandleFunc("/health", httputil.HealthHandler).Methods(http.MethodGet)
	if cfg.Global.Metrics.Enabled {
		external.Handle("/metrics", httputil.WrapHandlerInBasicAuth(
			promhttp.Handler(), httputil.BasicAuth(cfg.Global.Metrics.BasicAuth),
		)).Methods(http.MethodGet)
	}
	return external
}

// ServeHTTP runs the external listener until the process shuts down. Only
// the header read carries a timeout: the collab endpoint holds connections
// open indefinitely, so request-level timeouts would sever live sessions.
func ServeHTTP(processContext *process.ProcessContext, handler http.Handler, addr string) {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	processContext.ComponentStarted()
	go func() {
		defer processContext.ComponentFinished()
		logrus.WithField("address", addr).Info("Starting external listener")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to serve HTTP")
		}
	}()
	go func() {
		<-processContext.WaitForShutdown()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}()
}

// WaitForShutdown blocks until a termination signal arrives or a component
// requests shutdown, then stops every component and flushes Sentry.
func WaitForShutdown(processContext *process.ProcessContext, sentryEnabled bool) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigs:
	case <-processContext.WaitForShutdown():
	}
	signal.Reset(syscall.SIGINT, syscall.SIGTERM)

	logrus.Warn("Shutdown signal received")
	processContext.ShutdownPagesync()
	processContext.WaitForComponentsToFinish()
	if sentryEnabled {
		if !sentry.Flush(time.Second * 5) {
			logrus.Warn("failed to flush all Sentry events!")
		}
	}
	logrus.Warn("Pagesync is exiting now")
}
