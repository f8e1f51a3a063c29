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

package sql

import (
	"cmp"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"time"
)

// ErrTooManyRows is returned when the result set has too many rows but
// exactly one row was expected.
var ErrTooManyRows = errors.New("sql: too many rows in result set")

// ResultMap maps the rows of a query into a destination reflect.Value. It is
// the auto-mapping fallback a Statement falls back to when no declarative
// resultmap.ResultMap is registered for it.
type ResultMap interface {
	// MapTo maps the data from the SQL rows to the provided reflect.Value.
	MapTo(rv reflect.Value, rows Rows) error
}

// RowScanner lets a destination type take over its own row scanning instead
// of being auto-mapped column-by-column via struct tags.
type RowScanner interface {
	ScanRows(rows Rows) error
}

var (
	rowScannerType = reflect.TypeOf((*RowScanner)(nil)).Elem()
	scannerType    = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	timeType       = reflect.TypeOf((*time.Time)(nil)).Elem()
)

func isImplementsRowScanner(t reflect.Type) bool {
	return t.Implements(rowScannerType)
}

// SingleRowResultMap maps exactly one row to a non-slice destination.
type SingleRowResultMap struct{}

// MapTo implements ResultMap. It returns ErrTooManyRows if more than one row
// is returned from the query.
func (SingleRowResultMap) MapTo(rv reflect.Value, rows Rows) error {
	if rv.Kind() != reflect.Ptr {
		return ErrPointerRequired
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error occurred while fetching row: %w", err)
		}
		return sql.ErrNoRows
	}

	if rowScanner, ok := rv.Interface().(RowScanner); ok {
		if err := rowScanner.ScanRows(rows); err != nil {
			return fmt.Errorf("failed to scan row using RowScanner: %w", err)
		}
		if rows.Next() {
			return ErrTooManyRows
		}
		return rows.Err()
	}

	columns, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("failed to get columns: %w", err)
	}

	columnDest := &rowDestination{}

	dest, err := columnDest.Destination(rv, columns)
	if err != nil {
		return fmt.Errorf("failed to create destination mapping: %w", err)
	}

	if err = rows.Scan(dest...); err != nil {
		return fmt.Errorf("failed to scan row: %w", err)
	}

	if err = rows.Err(); err != nil {
		return fmt.Errorf("error occurred during row scanning: %w", err)
	}

	if rows.Next() {
		return ErrTooManyRows
	}

	return nil
}

// resultMapPreserveNilSlice controls whether MultiRowsResultMap leaves a nil
// slice destination nil on an empty result set instead of allocating an
// empty, non-nil slice.
var resultMapPreserveNilSlice = os.Getenv("SQLMAP_RESULT_MAP_PRESERVE_NIL_SLICE") == "true"

// MultiRowsResultMap maps every row of a query into a slice destination.
type MultiRowsResultMap struct {
	New func() reflect.Value
}

// MapTo implements ResultMap. rv must be a pointer to a slice.
func (m MultiRowsResultMap) MapTo(rv reflect.Value, rows Rows) error {
	if err := m.validateInput(rv); err != nil {
		return err
	}

	target := rv.Elem()
	elementType := target.Type().Elem()
	isPointer, useScanner := m.resolveTypes(elementType)

	if m.New == nil {
		targetElementType := elementType
		if isPointer {
			targetElementType = targetElementType.Elem()
		}
		m.New = func() reflect.Value { return reflect.New(targetElementType) }
	}

	values, err := m.mapRows(rows, isPointer, useScanner)
	if err != nil {
		return err
	}

	if len(values) > 0 {
		target.Grow(len(values))
		target.Set(reflect.Append(target, values...))
	} else if !resultMapPreserveNilSlice {
		target.Set(reflect.MakeSlice(target.Type(), 0, 0))
	}
	return nil
}

func (m MultiRowsResultMap) validateInput(rv reflect.Value) error {
	if rv.Kind() != reflect.Ptr {
		return fmt.Errorf("%w: expected pointer to slice", ErrPointerRequired)
	}
	if rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("expected pointer to slice, got pointer to %v", rv.Elem().Kind())
	}
	return nil
}

func (m MultiRowsResultMap) resolveTypes(elementType reflect.Type) (bool, bool) {
	isPointer := elementType.Kind() == reflect.Ptr
	pointerType := elementType
	if !isPointer {
		pointerType = reflect.PointerTo(elementType)
	}
	return isPointer, isImplementsRowScanner(pointerType)
}

func (m MultiRowsResultMap) mapRows(rows Rows, isPointer, useScanner bool) ([]reflect.Value, error) {
	if useScanner {
		return m.mapWithRowScanner(rows, isPointer)
	}
	return m.mapWithColumnDestination(rows, isPointer)
}

func (m MultiRowsResultMap) mapWithRowScanner(rows Rows, isPointer bool) ([]reflect.Value, error) {
	values := make([]reflect.Value, 0, 8)

	for rows.Next() {
		newValue := m.New()
		if err := newValue.Interface().(RowScanner).ScanRows(rows); err != nil {
			return nil, fmt.Errorf("failed to scan row using RowScanner: %w", err)
		}
		if isPointer {
			values = append(values, newValue)
		} else {
			values = append(values, newValue.Elem())
		}
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error occurred while iterating rows: %w", err)
	}

	return values, nil
}

func (m MultiRowsResultMap) mapWithColumnDestination(rows Rows, isPointer bool) ([]reflect.Value, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}
	columnDest := &rowDestination{}
	values := make([]reflect.Value, 0, 8)

	for rows.Next() {
		newValue := m.New()

		dest, err := columnDest.Destination(newValue, columns)
		if err != nil {
			return nil, fmt.Errorf("failed to get destination: %w", err)
		}

		if err = rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		if isPointer {
			values = append(values, newValue)
		} else {
			values = append(values, newValue.Elem())
		}
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error occurred while iterating rows: %w", err)
	}

	return values, nil
}

// ColumnDestination maps a reflect.Value and a row's columns to scan targets.
type ColumnDestination interface {
	Destination(rv reflect.Value, columns []string) ([]any, error)
}

// sink discards unmapped columns during scanning. Safe as a package global:
// it is write-only, and concurrent writes to it are harmless.
var sink any

// columnTagName is the struct tag auto-mapping reads column names from.
var columnTagName = cmp.Or(os.Getenv("SQLMAP_COLUMN_TAG_NAME"), "column")

// SetColumnTagName overrides the struct tag auto-mapping reads column names
// from (default "column").
func SetColumnTagName(tagName string) {
	if tagName == "" {
		panic("column tag name cannot be empty")
	}
	columnTagName = tagName
}

// rowDestination is the auto-mapping ColumnDestination: it resolves each
// query column to a struct field path by tag name, memoizing the resolved
// field indexes across repeated scans of the same statement's rows.
type rowDestination struct {
	indexes [][]int
	checked bool
	dest    []any
}

func (s *rowDestination) Destination(rv reflect.Value, columns []string) ([]any, error) {
	dest, err := s.destination(rv, columns)
	if err != nil {
		return nil, err
	}
	if !s.checked {
		if err = checkDestination(dest); err != nil {
			return nil, err
		}
		s.checked = true
	}
	return dest, nil
}

func (s *rowDestination) destinationForOneColumn(rv reflect.Value, columns []string) ([]any, error) {
	if rv.Elem().Type() == timeType || rv.Type().Implements(scannerType) {
		return []any{rv.Interface()}, nil
	}
	if reflect.Indirect(rv).Kind() == reflect.Struct {
		return s.destinationForStruct(rv, columns)
	}
	return []any{rv.Interface()}, nil
}

func (s *rowDestination) destination(rv reflect.Value, columns []string) ([]any, error) {
	if len(columns) == 1 {
		return s.destinationForOneColumn(rv, columns)
	}
	kind := reflect.Indirect(rv).Kind()
	if kind == reflect.Struct {
		return s.destinationForStruct(rv, columns)
	}
	return nil, fmt.Errorf("expected struct, but got %s", kind)
}

func (s *rowDestination) destinationForStruct(rv reflect.Value, columns []string) ([]any, error) {
	rv = reflect.Indirect(rv)
	if len(s.indexes) == 0 {
		s.setIndexes(rv, columns)
	}
	if s.dest == nil {
		s.dest = make([]any, len(columns))
	} else {
		clear(s.dest)
	}
	for i, indexes := range s.indexes {
		if len(indexes) == 0 {
			s.dest[i] = &sink
		} else {
			s.dest[i] = rv.FieldByIndex(indexes).Addr().Interface()
		}
	}
	return s.dest, nil
}

func (s *rowDestination) setIndexes(rv reflect.Value, columns []string) {
	tp := rv.Type()
	s.indexes = make([][]int, len(columns))

	columnIndex := make(map[string]int, len(columns))
	for i, column := range columns {
		columnIndex[column] = i
	}

	s.findFromStruct(tp, columnIndex, nil)
}

func (s *rowDestination) findFromStruct(tp reflect.Type, columnIndex map[string]int, walk []int) {
	finished := func() bool {
		return slices.IndexFunc(s.indexes, func(v []int) bool { return len(v) == 0 }) == -1
	}

	for i := 0; i < tp.NumField(); i++ {
		if finished() {
			break
		}
		field := tp.Field(i)
		tag := field.Tag.Get(columnTagName)
		if skip := tag == "" && !field.Anonymous || tag == "-"; skip {
			continue
		}
		if deepScan := field.Anonymous && field.Type.Kind() == reflect.Struct && len(tag) == 0; deepScan {
			s.findFromStruct(field.Type, columnIndex, append(append([]int(nil), walk...), i))
			continue
		}
		index, ok := columnIndex[tag]
		if !ok {
			continue
		}
		s.indexes[index] = append(walk, field.Index...)
	}
}

var errRawBytesScan = errors.New("sql: RawBytes isn't allowed on scan")

func checkDestination(dest []any) error {
	for _, dp := range dest {
		if _, ok := dp.(*sql.RawBytes); ok {
			return errRawBytesScan
		}
	}
	return nil
}
