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

package sqlmap

import (
	"fmt"
	"reflect"

	"github.com/gosqlmap/sqlmap/propath"
	"github.com/gosqlmap/sqlmap/typeconv"
)

// ParameterMode is the direction a CALLABLE parameter flows, the Go reading
// of <parameterMap>'s mode="IN|OUT|INOUT" attribute.
type ParameterMode int

const (
	// ModeIn binds a Go value into the call and reads nothing back.
	ModeIn ParameterMode = iota
	// ModeOut reads a value back from the call into a Go property; no bind.
	ModeOut
	// ModeInOut both binds a Go value in and reads a (possibly different)
	// value back after the call.
	ModeInOut
)

// ParameterMapping binds one positional CALLABLE argument to a property of
// the statement's parameter object.
type ParameterMapping struct {
	Property string
	JdbcType string
	Mode     ParameterMode
}

// ParameterMap is the Go-native reading of a <parameterMap>: an ordered list
// of positional bindings for a CALLABLE statement, resolved against a
// single parameter object rather than the free-form #{} substitution used
// by the other statement kinds.
type ParameterMap struct {
	ID       string
	Mappings []ParameterMapping
}

// Bind resolves every IN/INOUT mapping's property off param and binds it
// into target at its positional index via conv (typeconv.Unknown() if the
// registry has no Converter for the property's type).
func (pm *ParameterMap) Bind(target typeconv.BindTarget, param any, registry *typeconv.Registry) error {
	rv := reflect.ValueOf(param)
	for i, m := range pm.Mappings {
		if m.Mode == ModeOut {
			continue
		}
		v := propath.Get(rv, propath.Path(m.Property))
		if !v.IsValid() {
			return fmt.Errorf("parametermap %q: property %q not found on %T", pm.ID, m.Property, param)
		}
		conv, err := pm.converterFor(registry, v.Type())
		if err != nil {
			return err
		}
		if err := conv.Bind(target, i, m.JdbcType, v.Interface()); err != nil {
			return fmt.Errorf("parametermap %q: bind %q: %w", pm.ID, m.Property, err)
		}
	}
	return nil
}

// Collect reads every OUT/INOUT mapping back from row into the matching
// property of param, which must be a pointer so the written-back values are
// observable to the caller.
func (pm *ParameterMap) Collect(row typeconv.CallableRow, param any, registry *typeconv.Registry) error {
	rv := reflect.ValueOf(param)
	for i, m := range pm.Mappings {
		if m.Mode == ModeIn {
			continue
		}
		target := propath.Get(rv, propath.Path(m.Property))
		if !target.IsValid() || !target.CanSet() {
			return fmt.Errorf("parametermap %q: out property %q is not settable on %T", pm.ID, m.Property, param)
		}
		conv, err := pm.converterFor(registry, target.Type())
		if err != nil {
			return err
		}
		out, err := conv.DecodeOut(row, i)
		if err != nil {
			return fmt.Errorf("parametermap %q: decode out %q: %w", pm.ID, m.Property, err)
		}
		if err := assignInto(target, out); err != nil {
			return fmt.Errorf("parametermap %q: assign out %q: %w", pm.ID, m.Property, err)
		}
	}
	return nil
}

func (pm *ParameterMap) converterFor(registry *typeconv.Registry, t reflect.Type) (typeconv.Converter, error) {
	if registry == nil {
		return nil, fmt.Errorf("parametermap %q: no type converter registry configured", pm.ID)
	}
	return registry.Resolve(t, "")
}

// ParameterMapRegistry stores ParameterMaps by fully-qualified id, the same
// namespacing scheme ResultMapRegistry uses for <resultMap>.
type ParameterMapRegistry struct {
	maps map[string]*ParameterMap
}

// NewParameterMapRegistry creates an empty registry.
func NewParameterMapRegistry() *ParameterMapRegistry {
	return &ParameterMapRegistry{maps: make(map[string]*ParameterMap)}
}

// Register adds pm under its ID, replacing any previous registration.
func (r *ParameterMapRegistry) Register(pm *ParameterMap) {
	r.maps[pm.ID] = pm
}

// Get looks up a previously registered ParameterMap by id.
func (r *ParameterMapRegistry) Get(id string) (*ParameterMap, bool) {
	pm, ok := r.maps[id]
	return pm, ok
}
