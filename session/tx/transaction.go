/*
Copyright 2025 eatmoreapple

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tx

import (
	"context"
	"database/sql"
	dbsqldriver "database/sql/driver"
	"errors"
	"sync"

	"github.com/gosqlmap/sqlmap/pool"
)

var (
	// ErrTransactionAlreadyBegun is the error that transaction already begun.
	ErrTransactionAlreadyBegun = errors.New("tx: transaction already begun")

	// ErrTransactionNotBegun is the error that transaction not begun.
	ErrTransactionNotBegun = errors.New("tx: transaction not begun")
)

// Transaction binds one pooled connection to a {Get, Commit, Rollback, Close}
// lifecycle. A Session holds exactly one Transaction for its whole life.
type Transaction interface {
	// Get lazily obtains (and, the first time, begins) the underlying
	// connection, applying the configured isolation level and autocommit
	// preference.
	Get(ctx context.Context) (*pool.PooledConnection, error)
	Commit() error
	Rollback() error
	Close() error
}

// ManagedTransaction owns a *pool.PooledConnection it checked out itself: it
// starts a driver-level transaction on first Get (unless autocommit was
// requested) and returns the connection to its pool on Close.
type ManagedTransaction struct {
	pool       *pool.Pool
	opts       []TransactionOptionFunc
	autocommit bool

	mu   sync.Mutex
	conn *pool.PooledConnection
}

// NewManagedTransaction creates a ManagedTransaction that checks out
// connections from p. autocommit, when true, skips BeginTx entirely -
// Commit/Rollback then become no-ops, matching a caller that wants plain
// auto-committing statements rather than an explicit transaction.
func NewManagedTransaction(p *pool.Pool, autocommit bool, opts ...TransactionOptionFunc) *ManagedTransaction {
	return &ManagedTransaction{pool: p, opts: opts, autocommit: autocommit}
}

// Get implements Transaction.
func (t *ManagedTransaction) Get(ctx context.Context) (*pool.PooledConnection, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return t.conn, nil
	}
	conn, err := t.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !t.autocommit {
		var sqlOpts sql.TxOptions
		for _, fn := range t.opts {
			fn(&sqlOpts)
		}
		o := dbsqldriver.TxOptions{
			Isolation: dbsqldriver.IsolationLevel(sqlOpts.Isolation),
			ReadOnly:  sqlOpts.ReadOnly,
		}
		if err := conn.BeginTx(ctx, o); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	t.conn = conn
	return conn, nil
}

// Commit is a no-op when the transaction was opened autocommit.
func (t *ManagedTransaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.autocommit || t.conn == nil {
		return nil
	}
	return t.conn.Commit()
}

// Rollback is a no-op when the transaction was opened autocommit.
func (t *ManagedTransaction) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.autocommit || t.conn == nil {
		return nil
	}
	return t.conn.Rollback()
}

// Close rolls back any transaction still open on the connection (unless it
// was opened autocommit), leaving it in autocommit mode, and returns it to
// its pool.
func (t *ManagedTransaction) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	if !t.autocommit {
		_ = t.conn.Rollback()
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// ExternalTransaction wraps a connection supplied by the caller - e.g. a
// nested session sharing a caller's already-open transaction. It never
// owns the lifecycle: Commit, Rollback and Close are all no-ops, leaving
// the outer caller in full control, matching the caller-supplied-handler
// pattern of Atomic.
type ExternalTransaction struct {
	conn *pool.PooledConnection
}

// NewExternalTransaction wraps an already-acquired connection.
func NewExternalTransaction(conn *pool.PooledConnection) *ExternalTransaction {
	return &ExternalTransaction{conn: conn}
}

// Get implements Transaction.
func (t *ExternalTransaction) Get(context.Context) (*pool.PooledConnection, error) {
	return t.conn, nil
}

// Commit implements Transaction as a no-op.
func (t *ExternalTransaction) Commit() error { return nil }

// Rollback implements Transaction as a no-op.
func (t *ExternalTransaction) Rollback() error { return nil }

// Close implements Transaction as a no-op.
func (t *ExternalTransaction) Close() error { return nil }
