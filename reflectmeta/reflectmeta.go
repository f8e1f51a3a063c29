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

// Package reflectmeta caches per-struct-type reflection metadata: which
// fields are readable/writable by column or property name, their declared
// type, and a precomputed FieldByIndex path for each. It plays the role
// MyBatis' getter/setter-resolving MetaClass plays, collapsed onto Go's
// selector semantics - reflect.VisibleFields already implements
// "most-derived/shallowest field wins" shadowing the same way Go's own
// field selectors do, so no separate accessor-resolution pass is needed.
//
// Grounded on the teacher's db.go sync.Map-of-singletons idiom (conns
// sync.Map + sync.Once per entry), applied here to metadata instead of
// live connections: a process-wide cache, built lazily on first use, that
// is never evicted (re-deriving it mid result-set traversal would violate
// identity assumptions nested result mapping depends on - this is exactly
// why golang-lru is reserved for the C6 cache layers instead of used here).
package reflectmeta

import (
	"reflect"
	"strings"
	"sync"
)

// Property describes one readable and/or writable struct field.
type Property struct {
	// Name is the resolved column/property name: the "column" or
	// "property" tag value if present, else the Go field name.
	Name string
	// Index is the FieldByIndex path, walking through embedded structs.
	Index []int
	// Type is the field's declared type.
	Type reflect.Type
	// Writable reports whether the field is settable (exported, not "-").
	Writable bool
}

// Metadata is the cached reflection descriptor for one struct type.
type Metadata struct {
	typ reflect.Type

	// byName indexes every readable property by its resolved Name.
	byName map[string]*Property
	// byUpper is byName's case-insensitive, upper-cased mirror - used to
	// resolve a driver column name against a property name regardless of
	// case, matching useColumnLabel-style case-insensitive mapping.
	byUpper map[string]*Property

	writable []*Property
	readable []*Property
}

var registry sync.Map // reflect.Type -> *Metadata

// Of returns the cached Metadata for t, building it on first access. t may
// be a struct type or a pointer to one; pointers are unwrapped.
func Of(t reflect.Type) *Metadata {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if cached, ok := registry.Load(t); ok {
		return cached.(*Metadata)
	}
	built := build(t)
	actual, _ := registry.LoadOrStore(t, built)
	return actual.(*Metadata)
}

func build(t reflect.Type) *Metadata {
	m := &Metadata{
		typ:     t,
		byName:  make(map[string]*Property),
		byUpper: make(map[string]*Property),
	}
	if t.Kind() != reflect.Struct {
		return m
	}

	for _, f := range reflect.VisibleFields(t) {
		if !f.IsExported() {
			continue
		}
		if f.Anonymous && !hasExplicitTag(f) {
			// Anonymous fields are only surfaced as properties in their own
			// right if explicitly tagged; otherwise their promoted fields
			// already appear individually via VisibleFields.
			continue
		}
		name, skip := propertyName(f)
		if skip || name == "_" {
			continue
		}
		prop := &Property{
			Name:     name,
			Index:    append([]int(nil), f.Index...),
			Type:     f.Type,
			Writable: true,
		}
		m.byName[name] = prop
		m.byUpper[strings.ToUpper(name)] = prop
		m.readable = append(m.readable, prop)
		m.writable = append(m.writable, prop)
	}
	return m
}

func hasExplicitTag(f reflect.StructField) bool {
	_, ok1 := f.Tag.Lookup("column")
	_, ok2 := f.Tag.Lookup("property")
	return ok1 || ok2
}

// propertyName resolves a struct field's property name, preferring a
// "column" tag, then a "property" tag, falling back to the Go field name.
// skip is true for an explicit "-" tag (the Go idiom for "ignore me").
func propertyName(f reflect.StructField) (name string, skip bool) {
	if tag, ok := f.Tag.Lookup("column"); ok {
		tag = strings.Split(tag, ",")[0]
		if tag == "-" {
			return "", true
		}
		if tag != "" {
			return tag, false
		}
	}
	if tag, ok := f.Tag.Lookup("property"); ok {
		tag = strings.Split(tag, ",")[0]
		if tag == "-" {
			return "", true
		}
		if tag != "" {
			return tag, false
		}
	}
	return f.Name, false
}

// Type returns the struct type this Metadata describes.
func (m *Metadata) Type() reflect.Type { return m.typ }

// New allocates a new zero-value instance, returning an addressable
// reflect.Value (i.e. reflect.New(t).Elem()).
func (m *Metadata) New() reflect.Value {
	return reflect.New(m.typ).Elem()
}

// FieldIndex resolves name (case-insensitive) to a FieldByIndex path.
func (m *Metadata) FieldIndex(name string) ([]int, bool) {
	if p, ok := m.byName[name]; ok {
		return p.Index, true
	}
	if p, ok := m.byUpper[strings.ToUpper(name)]; ok {
		return p.Index, true
	}
	return nil, false
}

// Property resolves name (case-insensitive) to its full Property
// descriptor.
func (m *Metadata) Property(name string) (*Property, bool) {
	if p, ok := m.byName[name]; ok {
		return p, true
	}
	p, ok := m.byUpper[strings.ToUpper(name)]
	return p, ok
}

// Writable returns every settable property, in declaration order.
func (m *Metadata) Writable() []*Property { return m.writable }

// Readable returns every readable property, in declaration order.
func (m *Metadata) Readable() []*Property { return m.readable }

// FieldByIndex reads a property off a struct value (or pointer to one),
// dereferencing and auto-allocating through nil pointers along the path.
func (m *Metadata) FieldByIndex(v reflect.Value, index []int) reflect.Value {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	for i, x := range index {
		if i > 0 {
			for v.Kind() == reflect.Pointer {
				if v.IsNil() {
					if !v.CanSet() {
						return reflect.Value{}
					}
					v.Set(reflect.New(v.Type().Elem()))
				}
				v = v.Elem()
			}
		}
		v = v.Field(x)
	}
	return v
}
