// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"github.com/hyperclast/pagesync/collabapi"
	"github.com/hyperclast/pagesync/internal"
	"github.com/hyperclast/pagesync/internal/caching"
	"github.com/hyperclast/pagesync/internal/httputil"
	"github.com/hyperclast/pagesync/internal/sqlutil"
	"github.com/hyperclast/pagesync/setup"
	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/setup/jetstream"
	"github.com/hyperclast/pagesync/setup/process"
	"github.com/hyperclast/pagesync/workspaceapi"

	// Loads a .env file into the environment when one is present.
	_ "github.com/joho/godotenv/autoload"
	// Allows running as a Windows service.
	_ "github.com/kardianos/minwinsvc"
)

var (
	configPath   = flag.String("config", "pagesync.yaml", "The path to the config file. For more information, see the config file in this repository")
	httpBindAddr = flag.String("http-bind-address", ":8008", "The HTTP listening port for the server")
	showVersion  = flag.Bool("version", false, "Shows the current version and exits")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Println(internal.VersionString())
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.Fatalf("Invalid config file: %s", err)
	}

	internal.SetupStdLogging()
	internal.SetupHookLogging(cfg.Logging)
	logrus.Infof("Pagesync version %s", internal.VersionString())

	if cfg.Global.Sentry.Enabled {
		logrus.Info("Setting up Sentry for debugging...")
		err = sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.Global.Sentry.DSN,
			Environment:      cfg.Global.Sentry.Environment,
			Release:          "pagesync@" + internal.VersionString(),
			AttachStacktrace: true,
		})
		if err != nil {
			logrus.WithError(err).Panic("failed to start Sentry")
		}
	}

	closer, err := cfg.SetupTracing()
	if err != nil {
		logrus.WithError(err).Panic("failed to start opentracing")
	}
	defer closer.Close() // nolint: errcheck

	processCtx := process.NewProcessContext()
	cm := sqlutil.NewConnectionManager(processCtx, cfg.Global.DatabaseOptions)
	caches := caching.NewRistrettoCache(
		cfg.Global.Cache.EstimatedMaxSize,
		cfg.Global.Cache.MaxAge,
		cfg.Global.Metrics.Enabled,
	)
	natsInstance := &jetstream.NATSInstance{}
	routers := httputil.NewRouters()

	// The workspace store opens first: the collab component resolves pages
	// and grants through it. The control event producer comes back from the
	// collab side and closes the loop for the REST surface.
	workspaceDB, authn := workspaceapi.NewWorkspaceStorage(cfg, cm, caches)
	controlEvents := collabapi.AddPublicRoutes(
		processCtx, routers, cfg, cm, natsInstance, workspaceDB, authn,
	)
	workspaceapi.AddPublicRoutes(routers, cfg, workspaceDB, authn, controlEvents)

	externalRouter := setup.CreateRouter(cfg, routers)
	setup.ServeHTTP(processCtx, externalRouter, *httpBindAddr)

	setup.WaitForShutdown(processCtx, cfg.Global.Sentry.Enabled)
}
