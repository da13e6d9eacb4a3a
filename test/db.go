// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package test

import (
	"database/sql"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperclast/pagesync/setup/config"
)

type DBType int

const (
	DBTypeSQLite DBType = iota
	DBTypePostgres
)

// PostgresDSNEnv names a postgres connection string with rights to create
// and drop databases. When unset, postgres test cases are skipped.
const PostgresDSNEnv = "PAGESYNC_TEST_POSTGRES_DSN"

// WithAllDatabases runs the given test body once per database engine.
// SQLite always runs against a temp file; postgres runs only when
// PAGESYNC_TEST_POSTGRES_DSN is set.
func WithAllDatabases(t *testing.T, testFn func(t *testing.T, dbType DBType)) {
	t.Helper()
	t.Run("sqlite", func(t *testing.T) {
		testFn(t, DBTypeSQLite)
	})
	t.Run("postgres", func(t *testing.T) {
		if os.Getenv(PostgresDSNEnv) == "" {
			t.Skipf("%s not set", PostgresDSNEnv)
		}
		testFn(t, DBTypePostgres)
	})
}

// PrepareDBConnectionString returns a connection string for a fresh,
// empty database of the requested type and a function that tears it down.
func PrepareDBConnectionString(t *testing.T, dbType DBType) (config.DataSource, func()) {
	t.Helper()
	if dbType == DBTypeSQLite {
		path := filepath.Join(t.TempDir(), "pagesync_test.db")
		return config.DataSource("file:" + path), func() {}
	}

	baseDSN := os.Getenv(PostgresDSNEnv)
	if baseDSN == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}
	dbName := fmt.Sprintf("pagesync_test_%d", rand.Int63()) // nolint:gosec
	admin, err := sql.Open("postgres", baseDSN)
	if err != nil {
		t.Fatalf("open postgres admin connection: %s", err)
	}
	if _, err = admin.Exec("CREATE DATABASE " + dbName); err != nil {
		admin.Close()
		t.Fatalf("create test database: %s", err)
	}

	u, err := url.Parse(baseDSN)
	if err != nil {
		t.Fatalf("parse %s: %s", PostgresDSNEnv, err)
	}
	u.Path = "/" + dbName
	dsn := u.String()

	return config.DataSource(dsn), func() {
		_, _ = admin.Exec("DROP DATABASE IF EXISTS " + dbName)
		admin.Close()
	}
}
