/*
Copyright 2023 eatmoreapple

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

package sqlmap

import (
	"context"
	"database/sql"

	"github.com/gosqlmap/sqlmap/cache"
	"github.com/gosqlmap/sqlmap/session"
	"github.com/gosqlmap/sqlmap/session/tx"
)

// Manager is an interface for managing database operations.
// It provides a high-level abstraction for executing SQL operations
// through the Object method which returns a SQLRowsExecutor.
type Manager interface {
	Object(v any) SQLRowsExecutor
}

// NewGenericManager returns a new GenericManager. The returned manager owns
// one session-scoped local cache shared by every Executor it hands out via
// Object, so repeated reads of the same statement+param within this session
// - including the nested selects NestedSelector issues while mapping rows -
// are served from memory instead of the database.
func NewGenericManager[T any](manager Manager) *GenericManager[T] {
	return &GenericManager[T]{Manager: manager, localCache: newLocalCache("session")}
}

// GenericManager is a generic manager for a specific type T
// that provides type-safe database operations.
type GenericManager[T any] struct {
	Manager

	// localCache is the base executor's session-scoped local cache (C13).
	localCache cache.Cache[statementCacheKey]
}

// Object returns a typed Executor for v that shares this manager's local cache.
func (s *GenericManager[T]) Object(v any) Executor[T] {
	exe := &GenericExecutor[T]{SQLRowsExecutor: s.Manager.Object(v), localCache: s.localCache}
	return exe
}

// TxManager is a transactional manager that extends the base Manager interface
// with transaction control capabilities. It provides methods for beginning,
// committing, and rolling back database transactions.
type TxManager interface {
	Manager

	// Begin begins a new database transaction.
	// Returns an error if transaction is already started or if there's a database error.
	Begin() error

	// Commit commits the current transaction.
	// Returns an error if there's no active transaction or if commit fails.
	Commit() error

	// Rollback aborts the current transaction.
	// Returns an error if there's no active transaction or if rollback fails.
	Rollback() error
}

// basicTxManager is the state shared by every handle onto the same open
// transaction: the Engine it was opened against, the context it was opened
// with, and the Transaction itself (nil until Begin). It is unexported so
// every caller is forced through Manager/TxManager; BasicTxManager embeds a
// pointer to one so a cloned handle and the one stashed via
// ContextWithManager inside Transaction() always observe the same state.
type basicTxManager struct {
	engine *Engine
	ctx    context.Context
	session.Transaction
}

// Object implements the Manager interface.
func (t *basicTxManager) Object(v any) SQLRowsExecutor {
	if t.Transaction == nil {
		return inValidExecutor(tx.ErrTransactionNotBegun)
	}
	statement, err := t.engine.GetConfiguration().GetStatement(v)
	if err != nil {
		return inValidExecutor(err)
	}
	drv := t.engine.Driver()
	statementHandler := NewBatchStatementHandler(drv, t.Transaction, t.engine.middlewares...)
	return NewSQLRowsExecutor(statement, statementHandler, drv)
}

// Begin begins the transaction with the driver's default options.
func (t *basicTxManager) Begin() (err error) {
	if t.Transaction != nil {
		return tx.ErrTransactionAlreadyBegun
	}
	t.Transaction, err = t.engine.DB().BeginTx(t.ctx, nil)
	return err
}

// Commit commits the transaction.
func (t *basicTxManager) Commit() error {
	if t.Transaction == nil {
		return tx.ErrTransactionNotBegun
	}
	return t.Transaction.Commit()
}

// Rollback rollbacks the transaction.
func (t *basicTxManager) Rollback() error {
	if t.Transaction == nil {
		return tx.ErrTransactionNotBegun
	}
	return t.Transaction.Rollback()
}

// Raw runs a literal query against the open transaction.
func (t *basicTxManager) Raw(query string) Runner {
	if t.Transaction == nil {
		return NewErrorRunner(tx.ErrTransactionNotBegun)
	}
	return NewRunner(query, t.engine, t.Transaction)
}

var _ TxManager = (*basicTxManager)(nil)

// BasicTxManager is the public handle Engine.Tx/ContextTx return. It adds the
// sql.TxOptions Begin should open the transaction with; every other method is
// promoted from the embedded *basicTxManager.
type BasicTxManager struct {
	*basicTxManager

	// txOptions configures the transaction behavior.
	// If nil, default database transaction options are used.
	txOptions *sql.TxOptions
}

// Begin begins the transaction with the configured txOptions.
func (t *BasicTxManager) Begin() (err error) {
	if t.Transaction != nil {
		return tx.ErrTransactionAlreadyBegun
	}
	t.Transaction, err = t.engine.DB().BeginTx(t.ctx, t.txOptions)
	return err
}

var _ TxManager = (*BasicTxManager)(nil)

type managerKey struct{}

// managerFromContext returns the Manager from the context.
func managerFromContext(ctx context.Context) (Manager, bool) {
	manager, ok := ctx.Value(managerKey{}).(Manager)
	return manager, ok
}

// ManagerFromContext returns the Manager stashed in ctx by ContextWithManager,
// or ErrNoManagerFoundInContext if none is present.
func ManagerFromContext(ctx context.Context) (Manager, error) {
	manager, ok := managerFromContext(ctx)
	if !ok {
		return nil, ErrNoManagerFoundInContext
	}
	return manager, nil
}

// ContextWithManager returns a new context with the given Manager.
func ContextWithManager(ctx context.Context, manager Manager) context.Context {
	return context.WithValue(ctx, managerKey{}, manager)
}

// IsTxManager returns true if the manager is a TxManager.
func IsTxManager(manager Manager) bool {
	_, ok := manager.(TxManager)
	return ok
}
