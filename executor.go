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
	"errors"
	"fmt"
	"reflect"

	"github.com/gosqlmap/sqlmap/cache"
	"github.com/gosqlmap/sqlmap/driver"
	sqllib "github.com/gosqlmap/sqlmap/sql"
)

// ErrInvalidExecutor is a custom error type that is used when an invalid executor is found.
var ErrInvalidExecutor = errors.New("sqlmap: invalid executor")

// Executor is a generic sqlRowsExecutor.
type Executor[T any] interface {
	// QueryContext executes the query and returns the direct result.
	// The args are for any placeholder parameters in the query.
	QueryContext(ctx context.Context, param Param) (T, error)

	// ExecContext executes a query without returning any rows.
	// The args are for any placeholder parameters in the query.
	ExecContext(ctx context.Context, param Param) (sql.Result, error)

	// Statement returns the Statement of the current Executor.
	Statement() Statement

	// Driver returns the driver of the current Executor.
	Driver() driver.Driver
}

// invalidExecutor wraps the error who implements the SQLRowsExecutor interface.
type invalidExecutor struct {
	_   struct{}
	err error
}

// QueryContext implements the SQLRowsExecutor interface.
func (b invalidExecutor) QueryContext(_ context.Context, _ Param) (*sql.Rows, error) {
	return nil, b.err
}

// ExecContext implements the SQLRowsExecutor interface.
func (b invalidExecutor) ExecContext(_ context.Context, _ Param) (sql.Result, error) {
	return nil, b.err
}

// Statement implements the SQLRowsExecutor interface.
func (b invalidExecutor) Statement() Statement { return nil }

func (b invalidExecutor) Driver() driver.Driver { return nil }

// SQLRowsExecutor defines the interface of the sqlRowsExecutor.
type SQLRowsExecutor Executor[*sql.Rows]

// inValidExecutor is an invalid sqlRowsExecutor.
func inValidExecutor(err error) SQLRowsExecutor {
	err = errors.Join(ErrInvalidExecutor, err)
	return &invalidExecutor{err: err}
}

// InValidExecutor returns an invalid sqlRowsExecutor.
func InValidExecutor() SQLRowsExecutor {
	return inValidExecutor(nil)
}

// isInvalidExecutor checks if the sqlRowsExecutor is a invalidExecutor.
func isInvalidExecutor(e SQLRowsExecutor) (*invalidExecutor, bool) {
	exe, ok := e.(*invalidExecutor)
	return exe, ok
}

// ensure that the defaultExecutor implements the SQLRowsExecutor interface.
var _ SQLRowsExecutor = (*invalidExecutor)(nil)

// sqlRowsExecutor implements the SQLRowsExecutor interface.
type sqlRowsExecutor struct {
	statement        Statement
	statementHandler StatementHandler
	driver           driver.Driver
}

// QueryContext executes the query and returns the result.
func (e *sqlRowsExecutor) QueryContext(ctx context.Context, param Param) (*sql.Rows, error) {
	return e.statementHandler.QueryContext(ctx, e.Statement(), param)
}

// ExecContext executes the query and returns the result.
func (e *sqlRowsExecutor) ExecContext(ctx context.Context, param Param) (sql.Result, error) {
	return e.statementHandler.ExecContext(ctx, e.Statement(), param)
}

// Statement returns the xmlSQLStatement.
func (e *sqlRowsExecutor) Statement() Statement { return e.statement }

// Driver returns the driver of the sqlRowsExecutor.
func (e *sqlRowsExecutor) Driver() driver.Driver { return e.driver }

func NewSQLRowsExecutor(statement Statement, statementHandler StatementHandler, driver driver.Driver) SQLRowsExecutor {
	return &sqlRowsExecutor{
		statement:        statement,
		statementHandler: statementHandler,
		driver:           driver,
	}
}

// ensure that the sqlRowsExecutor implements the SQLRowsExecutor interface.
var _ SQLRowsExecutor = (*sqlRowsExecutor)(nil)

// statementHandlerExposer is implemented by SQLRowsExecutor implementations
// that can hand their StatementHandler back out, so a GenericExecutor can
// build a sibling executor for a nested-select mapping that runs through the
// same session/transaction and the same caching StatementHandler chain.
type statementHandlerExposer interface {
	nestedStatementHandler() StatementHandler
}

func (e *sqlRowsExecutor) nestedStatementHandler() StatementHandler { return e.statementHandler }

var _ statementHandlerExposer = (*sqlRowsExecutor)(nil)

// GenericExecutor is a generic sqlRowsExecutor.
type GenericExecutor[T any] struct {
	SQLRowsExecutor

	// localCache is the base executor's session-scoped local cache (C13),
	// shared with every other Executor the same GenericManager hands out.
	// Nil disables caching entirely (the zero value, and every GenericExecutor
	// built by hand outside NewGenericManager, behaves exactly as before).
	localCache cache.Cache[statementCacheKey]
}

// QueryContext executes the query and returns the scanner.
func (e *GenericExecutor[T]) QueryContext(ctx context.Context, p Param) (result T, err error) {
	// check the error of the sqlRowsExecutor
	if exe, ok := isInvalidExecutor(e.SQLRowsExecutor); ok {
		return result, exe.err
	}
	statement := e.Statement()

	var key statementCacheKey
	useCache := e.localCache != nil && cacheable(statement)
	if useCache {
		key = newStatementCacheKey(statement, p)
		if cached, ok := e.localCache.Get(key); ok {
			if typed, ok := cached.(T); ok {
				return typed, nil
			}
		}
	}

	var retMap sqllib.ResultMap
	if selectorer, ok := statement.(ResultMapWithSelectorer); ok {
		retMap, err = selectorer.ResultMapWithSelector(e)
	} else {
		retMap, err = statement.ResultMap()
	}

	// ErrResultMapNotSet means the result map is not set, use the default result map.
	if err != nil {
		if !errors.Is(err, ErrResultMapNotSet) {
			return result, err
		}
	}

	// try to query the database.
	rows, err := e.SQLRowsExecutor.QueryContext(ctx, p)
	if err != nil {
		return result, err
	}
	defer func() { _ = rows.Close() }()

	result, err = BindWithResultMap[T](rows, retMap)
	if err == nil && useCache {
		e.localCache.Put(key, result)
	}
	return result, err
}

// ExecContext executes the query and returns the result. A successful write
// invalidates the whole local cache: the base executor has no way to know
// which cached reads the write affects, so it clears all of them, mirroring
// zsy619-yyhertz's BaseExecutor.Update (clearLocalCache then doUpdate).
func (e *GenericExecutor[_]) ExecContext(ctx context.Context, p Param) (result sql.Result, err error) {
	// check the error of the sqlRowsExecutor
	if exe, ok := isInvalidExecutor(e.SQLRowsExecutor); ok {
		return nil, exe.err
	}
	result, err = e.SQLRowsExecutor.ExecContext(ctx, p)
	if err == nil && e.localCache != nil {
		e.localCache.Clear()
	}
	return result, err
}

// SelectNested implements NestedSelector: it looks statementID up in the
// same Configuration the owning statement was parsed under, runs it through
// the owning executor's own StatementHandler (so a nested select inside a
// transaction stays inside that transaction, and inside a caching
// StatementHandler stays cached), and binds every row into dest.
func (e *GenericExecutor[T]) SelectNested(statementID string, param any, dest any) error {
	exposer, ok := e.SQLRowsExecutor.(statementHandlerExposer)
	if !ok {
		return fmt.Errorf("sqlmap: nested select %q: executor %T does not support nested selects", statementID, e.SQLRowsExecutor)
	}
	statement, err := e.Statement().Configuration().GetStatement(statementID)
	if err != nil {
		return fmt.Errorf("sqlmap: nested select %q: %w", statementID, err)
	}

	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr {
		return fmt.Errorf("sqlmap: nested select %q: dest must be a pointer, got %T", statementID, dest)
	}

	var key statementCacheKey
	useCache := e.localCache != nil && cacheable(statement)
	if useCache {
		key = newStatementCacheKey(statement, param)
		if cached, ok := e.localCache.Get(key); ok {
			if cv := reflect.ValueOf(cached); cv.IsValid() && cv.Type() == rv.Elem().Type() {
				rv.Elem().Set(cv)
				return nil
			}
		}
	}

	nested := &sqlRowsExecutor{statement: statement, statementHandler: exposer.nestedStatementHandler(), driver: e.Driver()}

	var retMap sqllib.ResultMap
	if selectorer, ok := statement.(ResultMapWithSelectorer); ok {
		retMap, err = selectorer.ResultMapWithSelector(e)
	} else {
		retMap, err = statement.ResultMap()
	}
	if err != nil && !errors.Is(err, ErrResultMapNotSet) {
		return fmt.Errorf("sqlmap: nested select %q: %w", statementID, err)
	}

	rows, err := nested.QueryContext(context.Background(), param)
	if err != nil {
		return fmt.Errorf("sqlmap: nested select %q: %w", statementID, err)
	}
	defer func() { _ = rows.Close() }()

	if retMap == nil {
		err = sqllib.BindValue(rows, dest, nil)
	} else {
		err = retMap.MapTo(rv, rows)
	}
	if err != nil {
		return err
	}
	if useCache {
		e.localCache.Put(key, rv.Elem().Interface())
	}
	return nil
}

var _ NestedSelector = (*GenericExecutor[any])(nil)

// ensure GenericExecutor implements Executor.
var _ Executor[any] = (*GenericExecutor[any])(nil)
