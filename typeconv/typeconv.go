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

// Package typeconv is the type conversion registry: a mapping from an
// application Go type to the Converter that knows how to bind it into a
// driver statement and decode it back out of a row, optionally narrowed by
// the driver-reported column type. It generalizes the teacher's single
// hard-coded convertAssign call (sql/rows.go, sql/buf.go) into a registry
// keyed by (application type, driver type) pairs, with enum-like and
// embedded-type fallback resolution and an UnknownConverter catch-all.
package typeconv

import (
	"database/sql/driver"
	"fmt"
	"reflect"
	"sync"
)

// BindTarget receives a positional bind value, the seam a StatementHandler
// binds parameters through.
type BindTarget interface {
	Bind(index int, value any) error
}

// RowReader reads column values out of the current cursor row by name or
// index, the seam the Result Set Handler decodes through.
type RowReader interface {
	ColumnByName(name string) (any, error)
	ColumnByIndex(index int) (any, error)
}

// CallableRow reads OUT-parameter values produced by a callable statement.
type CallableRow interface {
	OutByIndex(index int) (any, error)
}

// Converter binds an application value into a statement and decodes driver
// values back into it. A Converter registered under an application type
// must be able to bind any value assignable to that type.
type Converter interface {
	Bind(target BindTarget, index int, driverTypeHint string, v any) error
	DecodeByName(row RowReader, name string) (any, error)
	DecodeByIndex(row RowReader, index int) (any, error)
	DecodeOut(row CallableRow, index int) (any, error)
}

// sentinelAbsent marks an application type that was already searched for a
// converter and found to have none - memoized so repeat lookups for the
// same miss don't re-walk the type hierarchy.
var sentinelAbsent = map[string]Converter{}

type driverTable map[string]Converter // "" key is the nil-driver-type default

// Registry resolves a Converter for (application type, driver type) pairs.
// It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	table map[reflect.Type]driverTable
	cache sync.Map // reflect.Type -> driverTable (hierarchy-climbed results)

	unknown            Converter
	defaultEnumString  func(reflect.Type) Converter
	defaultEnumInteger func(reflect.Type) Converter
}

// New creates an empty Registry. unknown handles application type `any`
// and any column whose driver type is reported UNSUPPORTED.
func New(unknown Converter) *Registry {
	return &Registry{
		table:   make(map[reflect.Type]driverTable),
		unknown: unknown,
	}
}

// WithDefaultEnumConverters configures the fallback converter constructors
// used when an enum-like application type (a named string or integer type)
// has no explicit registration. stringBacked/integerBacked are selected by
// the enum's underlying Kind.
func (r *Registry) WithDefaultEnumConverters(stringBacked, integerBacked func(reflect.Type) Converter) *Registry {
	r.defaultEnumString = stringBacked
	r.defaultEnumInteger = integerBacked
	return r
}

// Register binds conv as the Converter for appType, optionally narrowed to
// driverType ("" means "the default for any driver type").
func (r *Registry) Register(appType reflect.Type, driverType string, conv Converter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.table[appType]
	if !ok {
		t = make(driverTable)
		r.table[appType] = t
	}
	t[driverType] = conv
	r.cache.Delete(appType)
}

// Resolve returns the Converter for appType narrowed by driverType,
// climbing the type hierarchy (enum-like named types via their interfaces,
// embedded structs otherwise) on a first miss and caching the result -
// including memoizing a confirmed absence so repeat misses are O(1).
func (r *Registry) Resolve(appType reflect.Type, driverType string) (Converter, error) {
	table, ok := r.lookupTable(appType)
	if !ok {
		return nil, fmt.Errorf("typeconv: no converter registered for %s", appType)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("typeconv: no converter registered for %s", appType)
	}
	if conv, ok := table[driverType]; ok {
		return conv, nil
	}
	if conv, ok := table[""]; ok {
		return conv, nil
	}
	// Unique-handler fallback: if every registered driver type maps to the
	// same single Converter, use it.
	var unique Converter
	for _, conv := range table {
		if unique == nil {
			unique = conv
			continue
		}
		if unique != conv {
			return nil, fmt.Errorf("typeconv: ambiguous converter for %s/%s", appType, driverType)
		}
	}
	if unique != nil {
		return unique, nil
	}
	return nil, fmt.Errorf("typeconv: no converter registered for %s/%s", appType, driverType)
}

func (r *Registry) lookupTable(appType reflect.Type) (driverTable, bool) {
	if cached, ok := r.cache.Load(appType); ok {
		t := cached.(driverTable)
		return t, len(t) > 0
	}

	r.mu.RLock()
	direct, ok := r.table[appType]
	r.mu.RUnlock()
	if ok {
		r.cache.Store(appType, direct)
		return direct, true
	}

	if climbed := r.climb(appType); climbed != nil {
		r.cache.Store(appType, climbed)
		return climbed, true
	}

	if def := r.enumDefault(appType); def != nil {
		t := driverTable{"": def}
		r.mu.Lock()
		r.table[appType] = t
		r.mu.Unlock()
		r.cache.Store(appType, t)
		return t, true
	}

	r.cache.Store(appType, driverTable(sentinelAbsent))
	return nil, false
}

// climb walks appType's ancestry: for a named string/int kind, its
// underlying kind's registered converter; for a struct, each embedded
// field's type, depth-first.
func (r *Registry) climb(appType reflect.Type) driverTable {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch appType.Kind() {
	case reflect.Struct:
		for i := 0; i < appType.NumField(); i++ {
			f := appType.Field(i)
			if !f.Anonymous {
				continue
			}
			if t, ok := r.table[f.Type]; ok {
				return t
			}
		}
	}
	return nil
}

func (r *Registry) enumDefault(appType reflect.Type) Converter {
	switch appType.Kind() {
	case reflect.String:
		if r.defaultEnumString != nil && appType.Name() != "" {
			return r.defaultEnumString(appType)
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if r.defaultEnumInteger != nil && appType.Name() != "" {
			return r.defaultEnumInteger(appType)
		}
	}
	return nil
}

// Unknown returns the catch-all Converter for application type `any` and
// driver-reported UNSUPPORTED columns.
func (r *Registry) Unknown() Converter { return r.unknown }

// stdConverter adapts the teacher's linkname'd convertAssign primitive
// (sql.Rows/sql.RowsBuffer's own convertAssign) into the Converter
// interface for any application type with no narrower registration -
// grounded on //go:linkname convertAssign database/sql.convertAssign.
type stdConverter struct {
	assign func(dest, src any) error
}

// NewStdConverter wraps assign (typically database/sql's own unexported
// convertAssign, reached via go:linkname in the sql package) as a
// general-purpose Converter.
func NewStdConverter(assign func(dest, src any) error) Converter {
	return stdConverter{assign: assign}
}

func (c stdConverter) Bind(target BindTarget, index int, _ string, v any) error {
	if nv, ok := v.(driver.Valuer); ok {
		value, err := nv.Value()
		if err != nil {
			return err
		}
		return target.Bind(index, value)
	}
	return target.Bind(index, v)
}

func (c stdConverter) DecodeByName(row RowReader, name string) (any, error) {
	return row.ColumnByName(name)
}

func (c stdConverter) DecodeByIndex(row RowReader, index int) (any, error) {
	return row.ColumnByIndex(index)
}

func (c stdConverter) DecodeOut(row CallableRow, index int) (any, error) {
	return row.OutByIndex(index)
}

// Assign exposes the wrapped assign function directly, for callers (the
// Result Set Handler) that already hold a concrete dest pointer and just
// need convertAssign's semantics without going through BindTarget/RowReader.
func (c stdConverter) Assign(dest, src any) error { return c.assign(dest, src) }
