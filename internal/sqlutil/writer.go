// Copyright 2025 Hyperclast Ltd.
//
// SPDX-License-Identifier: AGPL-3.0-only
// Please see LICENSE files in the repository root for full details.

package sqlutil

import (
	"database/sql"
)

// The Writer interface is designed to solve the problem that
// SQLite databases can only be written by one writer at a time, else
// everything that tries to write at the same time will fail with
// "database is locked" errors.
//
// Queries submitted to the writer are processed in order. Perform reads
// outside of the writer wherever possible so they are not serialized
// behind writes.
//
// Writing with a transaction is preferable to writing without one; a
// transaction guarantees the unit either fully commits or rolls back.
type Writer interface {
	// Queue up one or more database write operations within the
	// provided function to be executed when it is safe to do so.
	// Either the database or transaction supplied may be nil, in
	// which case the function is responsible for supplying its own
	// execution target.
	Do(db *sql.DB, txn *sql.Tx, f func(txn *sql.Tx) error) error
}

// NewDummyWriter returns a new dummy writer. Suitable for PostgreSQL,
// which tolerates concurrent writers natively.
func NewDummyWriter() Writer {
	return &DummyWriter{}
}

// DummyWriter executes the work immediately on the caller's goroutine.
type DummyWriter struct{}

func (w *DummyWriter) Do(db *sql.DB, txn *sql.Tx, f func(txn *sql.Tx) error) error {
	if db != nil && txn == nil {
		return WithTransaction(db, f)
	}
	return f(txn)
}
