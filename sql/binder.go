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
	"errors"
	"iter"
	"reflect"
)

// bindWithResultMap is the core binding routine every Bind variant funnels
// through: it validates the destination, lets a RowScanner take over if the
// destination implements one, and otherwise dispatches to resultMap (picking
// a default SingleRowResultMap/MultiRowsResultMap by destination kind when
// resultMap is nil).
func bindWithResultMap(rows Rows, v any, resultMap ResultMap) error {
	if v == nil {
		return ErrNilDestination
	}
	if rows == nil {
		return ErrNilRows
	}
	if rowScanner, ok := v.(RowScanner); ok {
		return rowScanner.ScanRows(rows)
	}
	rv := reflect.ValueOf(v)

	if rv.Kind() != reflect.Ptr {
		return ErrPointerRequired
	}

	if resultMap == nil {
		if kd := reflect.Indirect(rv).Kind(); kd == reflect.Slice {
			resultMap = MultiRowsResultMap{}
		} else {
			resultMap = SingleRowResultMap{}
		}
	}
	return resultMap.MapTo(rv, rows)
}

// BindValue maps rows into dest using resultMap, picking a default
// SingleRowResultMap/MultiRowsResultMap by dest's shape when resultMap is
// nil. Unlike BindWithResultMap it takes dest directly rather than
// allocating one from a type parameter, for callers - such as nested-select
// execution - that only have a reflect-shaped destination, not a T to hang
// a generic off of. dest must be a pointer, or implement RowScanner.
func BindValue(rows Rows, dest any, resultMap ResultMap) error {
	return bindWithResultMap(rows, dest, resultMap)
}

// BindWithResultMap maps rows to an entity of type T using resultMap. T may
// be a struct, a pointer to a struct, a slice of either, or any type
// implementing RowScanner. rows is left open; the caller closes it.
func BindWithResultMap[T any](rows Rows, resultMap ResultMap) (result T, err error) {
	var ptr any = &result

	if t := reflect.TypeOf(result); t != nil && t.Kind() == reflect.Ptr {
		result = reflect.New(t.Elem()).Interface().(T)
		ptr = result
	}
	err = bindWithResultMap(rows, ptr, resultMap)
	return
}

// Bind maps rows to an entity of type T using the default, tag-based
// auto-mapping ResultMap.
func Bind[T any](rows Rows) (result T, err error) {
	return BindWithResultMap[T](rows, nil)
}

// List maps every row to a []T. Unlike Bind, it always returns a slice
// rather than picking single-vs-multi behavior from T's own shape.
func List[T any](rows Rows) (result []T, err error) {
	var multiRowsResultMap MultiRowsResultMap

	element := reflect.TypeOf((*T)(nil)).Elem()
	if element.Kind() != reflect.Ptr {
		multiRowsResultMap.New = func() reflect.Value { return reflect.ValueOf(new(T)) }
	}

	err = bindWithResultMap(rows, &result, multiRowsResultMap)
	return
}

// List2 is List but returns []*T, useful when callers need to mutate
// elements in place or T is an expensive-to-copy struct.
func List2[T any](rows Rows) ([]*T, error) {
	items, err := List[T](rows)
	if err != nil {
		return nil, err
	}
	result := make([]*T, len(items))
	for i := range items {
		result[i] = &items[i]
	}
	return result, nil
}

// RowsIter adapts Rows to Go's range-over-func iteration.
type RowsIter[T any] struct {
	rows Rows
	err  error
}

// Err reports any error encountered while iterating, joined with the
// underlying rows' own terminal error.
func (r *RowsIter[T]) Err() error {
	return errors.Join(r.err, r.rows.Err())
}

// Iter returns the iter.Seq[T] sequence of rows, yielding until rows is
// exhausted, an error occurs, or the consumer stops ranging.
func (r *RowsIter[T]) Iter() iter.Seq[T] {
	columns, err := r.rows.Columns()
	if err != nil {
		r.err = err
		return func(func(T) bool) {}
	}
	columnDest := &rowDestination{}
	t := reflect.TypeFor[T]()

	objectFactory := func() T { return *new(T) }
	isPtr := t.Kind() == reflect.Ptr
	if isPtr {
		objectFactory = func() T { return reflect.New(t.Elem()).Interface().(T) }
	}

	handler := func() (T, error) {
		v := objectFactory()

		var rv reflect.Value
		if isPtr {
			rv = reflect.ValueOf(v)
		} else {
			rv = reflect.ValueOf(&v)
		}

		dest, err := columnDest.Destination(rv, columns)
		if err != nil {
			return v, err
		}
		if err = r.rows.Scan(dest...); err != nil {
			return v, err
		}
		return v, nil
	}

	return func(yield func(T) bool) {
		for r.rows.Next() {
			value, err := handler()
			if err != nil {
				r.err = err
				return
			}
			if !yield(value) {
				return
			}
		}
	}
}

// Iter wraps rows for range-over-func iteration; the caller still closes
// rows once done.
func Iter[T any](rows Rows) *RowsIter[T] {
	return &RowsIter[T]{rows: rows}
}
