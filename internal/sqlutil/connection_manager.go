// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sqlutil

import (
	"database/sql"
	"sync"

	"github.com/hyperclast/pagesync/setup/config"
	"github.com/hyperclast/pagesync/setup/process"
)

// Connections hands out database connections to components. Components with
// their own `database` config block get their own connection and writer;
// everything else shares the single global connection, so that a deployment
// with one connection string really does use one pool.
type Connections struct {
	globalConfig   config.DatabaseOptions
	processContext *process.ProcessContext

	mutex        sync.Mutex
	globalDB     *sql.DB
	globalWriter Writer
}

func NewConnectionManager(processCtx *process.ProcessContext, globalConfig config.DatabaseOptions) *Connections {
	return &Connections{
		globalConfig:   globalConfig,
		processContext: processCtx,
	}
}

// Connection returns the database connection and writer for the given
// component options. If the options carry no connection string, the global
// connection is returned, opening it on first use.
func (c *Connections) Connection(dbProperties *config.DatabaseOptions) (*sql.DB, Writer, error) {
	if dbProperties.ConnectionString != "" {
		writer := writerFor(dbProperties.ConnectionString)
		db, err := Open(dbProperties, writer)
		if err != nil {
			return nil, nil, err
		}
		return db, writer, nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.globalDB == nil {
		c.globalWriter = writerFor(c.globalConfig.ConnectionString)
		db, err := Open(&c.globalConfig, c.globalWriter)
		if err != nil {
			return nil, nil, err
		}
		c.globalDB = db
	}
	return c.globalDB, c.globalWriter, nil
}

func writerFor(connectionString config.DataSource) Writer {
	if connectionString.IsSQLite() {
		return NewExclusiveWriter()
	}
	return NewDummyWriter()
}
