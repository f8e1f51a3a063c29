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

// Package propath parses dotted, index-bracketed property paths (the same
// shape as a #{order[0].item[key].name} parameter token, minus the
// surrounding #{}) and walks object graphs through them via reflectmeta.
// It generalizes the single-level dotted lookup the teacher's paramRegex
// (node.go) and eval/paramter.go perform into a full lazy segment iterator
// with bracketed numeric-index and map-key support.
package propath

import (
	"fmt"
	"iter"
	"reflect"
	"strconv"
	"strings"

	"github.com/gosqlmap/sqlmap/reflectmeta"
)

// Segment is one dotted/bracketed step of a parsed Path.
type Segment struct {
	// Base is the field or map-key name before any bracket.
	Base string
	// Index is the bracket contents, or "" if this segment has no bracket.
	Index string
	// HasIndex reports whether a bracket was present (distinguishes an
	// explicit empty key from no index at all).
	HasIndex bool
}

// IndexedName returns Base with its bracketed Index re-appended, or Base
// unchanged if there was no bracket.
func (s Segment) IndexedName() string {
	if !s.HasIndex {
		return s.Base
	}
	return s.Base + "[" + s.Index + "]"
}

// IntIndex reports whether Index parses as a non-negative integer, for
// slice/array addressing.
func (s Segment) IntIndex() (int, bool) {
	if !s.HasIndex {
		return 0, false
	}
	n, err := strconv.Atoi(s.Index)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Path is a parsed property path, ready to be iterated any number of times.
type Path string

// Segments lazily yields each dotted segment of the path in order.
func (p Path) Segments() iter.Seq[Segment] {
	return func(yield func(Segment) bool) {
		for _, raw := range strings.Split(string(p), ".") {
			if raw == "" {
				continue
			}
			seg := parseSegment(raw)
			if !yield(seg) {
				return
			}
		}
	}
}

func parseSegment(raw string) Segment {
	open := strings.IndexByte(raw, '[')
	if open < 0 || !strings.HasSuffix(raw, "]") {
		return Segment{Base: raw}
	}
	return Segment{Base: raw[:open], Index: raw[open+1 : len(raw)-1], HasIndex: true}
}

// Get walks root through every segment of the path, returning the final
// value. It yields a zero reflect.Value (IsValid() == false) when reading
// through a missing link - a nil map entry, an out-of-range index, or a nil
// pointer - rather than erroring, matching dynamic-SQL's "undefined means
// falsy/absent" convention.
func Get(root reflect.Value, path Path) reflect.Value {
	current := root
	for seg := range path.Segments() {
		if !current.IsValid() {
			return reflect.Value{}
		}
		current = getSegment(current, seg)
	}
	return current
}

func getSegment(v reflect.Value, seg Segment) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}

	var field reflect.Value
	switch v.Kind() {
	case reflect.Map:
		field = v.MapIndex(reflect.ValueOf(seg.Base).Convert(v.Type().Key()))
		if !field.IsValid() {
			return reflect.Value{}
		}
	case reflect.Struct:
		meta := reflectmeta.Of(v.Type())
		idx, ok := meta.FieldIndex(seg.Base)
		if !ok {
			return reflect.Value{}
		}
		field = v.FieldByIndex(idx)
	default:
		return reflect.Value{}
	}

	if !seg.HasIndex {
		return field
	}
	return indexInto(field, seg)
}

func indexInto(v reflect.Value, seg Segment) reflect.Value {
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		n, ok := seg.IntIndex()
		if !ok || n < 0 || n >= v.Len() {
			return reflect.Value{}
		}
		return v.Index(n)
	case reflect.Map:
		key := reflect.ValueOf(seg.Index)
		if !key.Type().AssignableTo(v.Type().Key()) {
			if !key.Type().ConvertibleTo(v.Type().Key()) {
				return reflect.Value{}
			}
			key = key.Convert(v.Type().Key())
		}
		value := v.MapIndex(key)
		return value
	default:
		return reflect.Value{}
	}
}

// Set walks root through every segment but the last, auto-creating
// intermediate zero-value structs/maps and growing slices as needed, then
// writes value into the final segment. It returns an error if an
// intermediate link is an unaddressable or unsupported kind.
func Set(root reflect.Value, path Path, value reflect.Value) error {
	segs := make([]Segment, 0, 4)
	for seg := range path.Segments() {
		segs = append(segs, seg)
	}
	if len(segs) == 0 {
		return fmt.Errorf("propath: empty path")
	}

	current := root
	for _, seg := range segs[:len(segs)-1] {
		next, err := intoSegment(current, seg)
		if err != nil {
			return err
		}
		current = next
	}
	return setSegment(current, segs[len(segs)-1], value)
}

// intoSegment resolves (auto-creating as needed) the value addressed by seg
// within v, returning an addressable reflect.Value ready for the next step.
func intoSegment(v reflect.Value, seg Segment) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			if !v.CanSet() {
				return reflect.Value{}, fmt.Errorf("propath: cannot allocate through unaddressable nil pointer")
			}
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.Struct:
		meta := reflectmeta.Of(v.Type())
		idx, ok := meta.FieldIndex(seg.Base)
		if !ok {
			return reflect.Value{}, fmt.Errorf("propath: no field %q on %s", seg.Base, v.Type())
		}
		field := v.FieldByIndex(idx)
		if !seg.HasIndex {
			return field, nil
		}
		return growInto(field, seg)
	case reflect.Map:
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		key := reflect.ValueOf(seg.Base).Convert(v.Type().Key())
		elem := v.MapIndex(key)
		if !elem.IsValid() {
			elem = reflect.New(v.Type().Elem()).Elem()
		} else {
			// map values aren't addressable; copy into an addressable temp
			// and write it back after mutation via a defer on the caller
			// chain is impractical here, so require pointer/struct element
			// types for nested map writes, matching reflectmeta's general
			// writable-property contract.
			tmp := reflect.New(v.Type().Elem()).Elem()
			tmp.Set(elem)
			elem = tmp
		}
		v.SetMapIndex(key, elem)
		if !seg.HasIndex {
			return elem, nil
		}
		return growInto(elem, seg)
	default:
		return reflect.Value{}, fmt.Errorf("propath: unsupported container kind %s", v.Kind())
	}
}

func growInto(v reflect.Value, seg Segment) (reflect.Value, error) {
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			v.Set(reflect.New(v.Type().Elem()))
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Slice:
		n, ok := seg.IntIndex()
		if !ok {
			return reflect.Value{}, fmt.Errorf("propath: non-numeric index %q into slice", seg.Index)
		}
		for v.Len() <= n {
			v.Set(reflect.Append(v, reflect.Zero(v.Type().Elem())))
		}
		return v.Index(n), nil
	case reflect.Map:
		if v.IsNil() {
			v.Set(reflect.MakeMap(v.Type()))
		}
		key := reflect.ValueOf(seg.Index).Convert(v.Type().Key())
		elem := reflect.New(v.Type().Elem()).Elem()
		v.SetMapIndex(key, elem)
		return elem, nil
	default:
		return reflect.Value{}, fmt.Errorf("propath: cannot index into %s", v.Kind())
	}
}

func setSegment(v reflect.Value, seg Segment, value reflect.Value) error {
	target, err := intoSegment(v, Segment{Base: seg.Base})
	if err != nil {
		return err
	}
	if seg.HasIndex {
		target, err = growInto(target, seg)
		if err != nil {
			return err
		}
	}
	if !target.CanSet() {
		return fmt.Errorf("propath: target %q is not settable", seg.IndexedName())
	}
	if value.Type().AssignableTo(target.Type()) {
		target.Set(value)
		return nil
	}
	if value.Type().ConvertibleTo(target.Type()) {
		target.Set(value.Convert(target.Type()))
		return nil
	}
	return fmt.Errorf("propath: value of type %s not assignable to %s", value.Type(), target.Type())
}
