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
	stdsql "database/sql"
	"fmt"
	"reflect"
	"strings"

	"github.com/gosqlmap/sqlmap/propath"
	"github.com/gosqlmap/sqlmap/reflectmeta"
	"github.com/gosqlmap/sqlmap/sql"
)

// NestedKind distinguishes how a nested mapping attaches to its owning
// object: a single embedded object (association) or a repeated one
// (collection), mirroring MyBatis's <association>/<collection> tags.
type NestedKind int

const (
	// NestedNone marks a ResultMapping with no nested object.
	NestedNone NestedKind = iota
	// NestedAssociation marks a single nested object, set directly on the property.
	NestedAssociation
	// NestedCollection marks a repeated nested object, appended to a slice property.
	NestedCollection
)

// ResultMapping binds one result column to one destination property. A
// mapping with NestedResultMap set recurses into another DeclarativeResultMap
// against the same row (an inline join result); one with NestedSelect
// delegates to a separately executed statement (requires a NestedSelector).
type ResultMapping struct {
	Column   string
	Property string
	ID       bool

	NestedResultMap string
	NestedSelect    string
	NestedKind      NestedKind
	ColumnPrefix    string
}

func (m ResultMapping) effectiveColumn() string {
	return strings.ToLower(m.ColumnPrefix + m.Column)
}

// DeclarativeResultMap is the Go-native reading of a <resultMap>: since Go
// has no parameterized-constructor call, "instantiate via the selected
// constructor" realizes as allocate-the-zero-value-then-set-constructor-
// flagged-fields-directly (Constructor mappings are applied before any other
// property mapping, but are otherwise ordinary ResultMappings).
type DeclarativeResultMap struct {
	ID string
	// Type is the destination type, set directly by callers building a
	// DeclarativeResultMap in code. TypeAlias is the markup-driven
	// alternative: a name resolved against the owning registry's type
	// aliases (see ResultMapRegistry.RegisterType) the first time this
	// result map is used, since a <resultMap type="..."> string has no
	// built-in way to become a reflect.Type in Go.
	Type      reflect.Type
	TypeAlias string
	Extends   string

	Constructor      []ResultMapping
	IDMappings       []ResultMapping
	PropertyMappings []ResultMapping

	Discriminator *Discriminator

	// AutoMap enables mapping unmapped columns onto same-named writable
	// properties via reflectmeta, the PARTIAL/FULL autoMappingBehavior path.
	AutoMap bool
}

func (rm *DeclarativeResultMap) allMappings() []ResultMapping {
	out := make([]ResultMapping, 0, len(rm.Constructor)+len(rm.IDMappings)+len(rm.PropertyMappings))
	out = append(out, rm.Constructor...)
	out = append(out, rm.IDMappings...)
	out = append(out, rm.PropertyMappings...)
	return out
}

// NestedSelector executes a separately Mapped Statement for a NestedSelect
// mapping, the seam the owning Executor supplies so nested fetches still go
// through its local cache/dedup machinery instead of a raw new query.
type NestedSelector interface {
	// SelectNested runs statementID with param and binds every row produced
	// into dest, which is either a pointer to a struct (NestedAssociation) or
	// a pointer to a slice (NestedCollection).
	SelectNested(statementID string, param any, dest any) error
}

// ResultMapRegistry stores DeclarativeResultMaps by fully-qualified id and
// resolves <extends> chains, guarding against cycles.
type ResultMapRegistry struct {
	maps    map[string]*DeclarativeResultMap
	aliases map[string]reflect.Type
}

// NewResultMapRegistry creates an empty registry.
func NewResultMapRegistry() *ResultMapRegistry {
	return &ResultMapRegistry{
		maps:    make(map[string]*DeclarativeResultMap),
		aliases: make(map[string]reflect.Type),
	}
}

// RegisterType binds alias (the value a <resultMap type="..."> attribute
// carries) to sample's type, since Go has no built-in way to turn an
// arbitrary string into a reflect.Type. Call this once per destination type
// before running a statement whose result map references alias - typically
// from an init function alongside the mapper's XML, mirroring how the
// teacher's generated mapper code binds a statement id to a concrete Go
// type at compile time.
func (r *ResultMapRegistry) RegisterType(alias string, sample any) {
	r.aliases[alias] = reflect.TypeOf(sample)
}

func (r *ResultMapRegistry) resolveType(rm *DeclarativeResultMap) (reflect.Type, error) {
	if rm.Type != nil {
		return rm.Type, nil
	}
	if rm.TypeAlias == "" {
		return nil, fmt.Errorf("sqlmap: result map %q has no destination type", rm.ID)
	}
	t, ok := r.aliases[rm.TypeAlias]
	if !ok {
		return nil, fmt.Errorf("sqlmap: result map %q: type alias %q is not registered (call ResultMapRegistry.RegisterType first)", rm.ID, rm.TypeAlias)
	}
	rm.Type = t
	return t, nil
}

// Register adds rm under its ID, replacing any previous registration with
// the same id.
func (r *ResultMapRegistry) Register(rm *DeclarativeResultMap) {
	r.maps[rm.ID] = rm
}

// Raw returns the ResultMap exactly as registered, with no <extends> merge applied.
func (r *ResultMapRegistry) Raw(id string) (*DeclarativeResultMap, bool) {
	rm, ok := r.maps[id]
	return rm, ok
}

// Resolve returns rm with its <extends> chain flattened into one effective
// ResultMap: the parent's mappings first, the child's appended after. Since
// mappings are applied in order, a child mapping for the same property is
// applied last and its value wins.
func (r *ResultMapRegistry) Resolve(id string) (*DeclarativeResultMap, error) {
	return r.resolve(id, make(map[string]bool))
}

func (r *ResultMapRegistry) resolve(id string, visited map[string]bool) (*DeclarativeResultMap, error) {
	if visited[id] {
		return nil, fmt.Errorf("sqlmap: result map %q participates in an extends cycle", id)
	}
	visited[id] = true

	rm, ok := r.maps[id]
	if !ok {
		return nil, fmt.Errorf("sqlmap: result map %q is not registered", id)
	}
	if rm.Extends == "" {
		return rm, nil
	}

	parent, err := r.resolve(rm.Extends, visited)
	if err != nil {
		return nil, err
	}

	merged := &DeclarativeResultMap{
		ID:               rm.ID,
		Type:             rm.Type,
		TypeAlias:        rm.TypeAlias,
		Constructor:      append(append([]ResultMapping(nil), parent.Constructor...), rm.Constructor...),
		IDMappings:       append(append([]ResultMapping(nil), parent.IDMappings...), rm.IDMappings...),
		PropertyMappings: append(append([]ResultMapping(nil), parent.PropertyMappings...), rm.PropertyMappings...),
		Discriminator:    rm.Discriminator,
		AutoMap:          rm.AutoMap,
	}
	if merged.Type == nil && merged.TypeAlias == "" {
		merged.Type = parent.Type
		merged.TypeAlias = parent.TypeAlias
	}
	if merged.Discriminator == nil {
		merged.Discriminator = parent.Discriminator
	}
	return merged, nil
}

// ResultMapFor binds id (resolved through registry) into an sql.ResultMap a
// Statement can return from ResultMap(). selector may be nil, in which case
// NestedSelect mappings are left unset (documented: wiring a NestedSelector
// is the owning Executor's job, added once the statement executes inside
// one).
func (r *ResultMapRegistry) ResultMapFor(id string, selector NestedSelector) (sql.ResultMap, error) {
	if _, err := r.Resolve(id); err != nil {
		return nil, err
	}
	return &boundResultMap{registry: r, id: id, selector: selector}, nil
}

// boundResultMap adapts one registered DeclarativeResultMap to sql.ResultMap.
type boundResultMap struct {
	registry *ResultMapRegistry
	id       string
	selector NestedSelector
}

// MapTo implements sql.ResultMap.
func (b *boundResultMap) MapTo(rv reflect.Value, rows sql.Rows) error {
	if rv.Kind() != reflect.Ptr {
		return sql.ErrPointerRequired
	}
	rm, err := b.registry.Resolve(b.id)
	if err != nil {
		return err
	}

	target := rv.Elem()
	if target.Kind() == reflect.Slice {
		return b.mapMany(rm, target, rows)
	}
	return b.mapOne(rm, rv, rows)
}

func (b *boundResultMap) mapMany(rm *DeclarativeResultMap, target reflect.Value, rows sql.Rows) error {
	values, err := b.mapRows(rm, rows)
	if err != nil {
		return err
	}
	elementType := target.Type().Elem()
	isPointer := elementType.Kind() == reflect.Ptr

	out := make([]reflect.Value, 0, len(values))
	for _, v := range values {
		if isPointer {
			out = append(out, v)
		} else {
			out = append(out, v.Elem())
		}
	}
	if len(out) > 0 {
		target.Grow(len(out))
		target.Set(reflect.Append(target, out...))
	} else {
		target.Set(reflect.MakeSlice(target.Type(), 0, 0))
	}
	return nil
}

func (b *boundResultMap) mapOne(rm *DeclarativeResultMap, rv reflect.Value, rows sql.Rows) error {
	values, err := b.mapRows(rm, rows)
	if err != nil {
		return err
	}
	switch len(values) {
	case 0:
		return stdsql.ErrNoRows
	case 1:
		rv.Elem().Set(values[0].Elem())
		return nil
	default:
		return sql.ErrTooManyRows
	}
}

// mapRows walks every row of the cursor, folding rows that share a root
// identity (per rm's IDMappings) into one object via an identity map, and
// returns the distinct root objects in first-seen order.
func (b *boundResultMap) mapRows(rm *DeclarativeResultMap, rows sql.Rows) ([]reflect.Value, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("resultmap: failed to get columns: %w", err)
	}

	identity := make(map[string]reflect.Value)
	var order []string
	seenNested := make(map[string]bool)

	rowIndex := 0
	for rows.Next() {
		colValues, err := scanRawRow(rows, columns)
		if err != nil {
			return nil, fmt.Errorf("resultmap: failed to scan row: %w", err)
		}

		effective, err := b.discriminate(rm, colValues, "")
		if err != nil {
			return nil, err
		}

		key := rowKey(effective, colValues, "", rowIndex)
		root, existed := identity[key]
		if !existed {
			root, err = b.instantiate(effective, colValues, "")
			if err != nil {
				return nil, err
			}
			identity[key] = root
			order = append(order, key)
		}

		if err := b.applyProperties(effective, root, colValues, "", key, seenNested); err != nil {
			return nil, err
		}
		rowIndex++
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]reflect.Value, len(order))
	for i, k := range order {
		out[i] = identity[k]
	}
	return out, nil
}

func scanRawRow(rows sql.Rows, columns []string) (map[string]any, error) {
	raw := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	out := make(map[string]any, len(columns))
	for i, c := range columns {
		out[strings.ToLower(c)] = raw[i]
	}
	return out, nil
}

// discriminate follows rm's discriminator chain (if any) to the concrete
// ResultMap a row actually belongs to, guarding against a case cycling back
// to an already-visited id.
func (b *boundResultMap) discriminate(rm *DeclarativeResultMap, colValues map[string]any, prefix string) (*DeclarativeResultMap, error) {
	return b.discriminateVisited(rm, colValues, prefix, make(map[string]bool))
}

func (b *boundResultMap) discriminateVisited(rm *DeclarativeResultMap, colValues map[string]any, prefix string, visited map[string]bool) (*DeclarativeResultMap, error) {
	if rm.Discriminator == nil {
		return rm, nil
	}
	if visited[rm.ID] {
		return nil, fmt.Errorf("resultmap: discriminator cycle at result map %q", rm.ID)
	}
	visited[rm.ID] = true

	val := colValues[strings.ToLower(prefix+rm.Discriminator.Column)]
	caseValue := fmt.Sprint(val)

	nextID, ok := rm.Discriminator.Cases[caseValue]
	if !ok {
		nextID = rm.Discriminator.DefaultResultMapID
	}
	if nextID == "" {
		return rm, nil
	}

	next, err := b.registry.Resolve(nextID)
	if err != nil {
		return nil, err
	}
	return b.discriminateVisited(next, colValues, prefix, visited)
}

func (b *boundResultMap) instantiate(rm *DeclarativeResultMap, colValues map[string]any, prefix string) (reflect.Value, error) {
	t, err := b.registry.resolveType(rm)
	if err != nil {
		return reflect.Value{}, err
	}
	root := reflect.New(t)
	for _, m := range rm.Constructor {
		if m.NestedKind != NestedNone {
			continue // constructor args populated by nested object are set in applyProperties
		}
		v, ok := colValues[strings.ToLower(prefix+m.ColumnPrefix+m.Column)]
		if !ok {
			continue
		}
		if err := setProperty(root, m.Property, v); err != nil {
			return reflect.Value{}, fmt.Errorf("resultmap: constructor property %q: %w", m.Property, err)
		}
	}
	return root, nil
}

func (b *boundResultMap) applyProperties(rm *DeclarativeResultMap, root reflect.Value, colValues map[string]any, prefix, rootKey string, seenNested map[string]bool) error {
	mapped := make(map[string]bool)

	apply := func(m ResultMapping) error {
		mapped[m.effectiveColumn()] = true
		mapped[strings.ToLower(prefix+m.effectiveColumn())] = true

		switch m.NestedKind {
		case NestedAssociation:
			return b.applyAssociation(m, root, colValues, prefix)
		case NestedCollection:
			return b.applyCollection(m, root, colValues, prefix, rootKey, seenNested)
		default:
			v, ok := colValues[strings.ToLower(prefix+m.ColumnPrefix+m.Column)]
			if !ok {
				return nil
			}
			return setProperty(root, m.Property, v)
		}
	}

	for _, m := range rm.Constructor {
		if m.NestedKind == NestedNone {
			continue // plain constructor args were set by instantiate
		}
		if err := apply(m); err != nil {
			return fmt.Errorf("resultmap: constructor property %q: %w", m.Property, err)
		}
	}
	for _, m := range rm.IDMappings {
		if err := apply(m); err != nil {
			return fmt.Errorf("resultmap: property %q: %w", m.Property, err)
		}
	}
	for _, m := range rm.PropertyMappings {
		if err := apply(m); err != nil {
			return fmt.Errorf("resultmap: property %q: %w", m.Property, err)
		}
	}

	if rm.AutoMap {
		if err := b.autoMapUnmapped(rm, root, colValues, prefix, mapped); err != nil {
			return err
		}
	}
	return nil
}

func (b *boundResultMap) autoMapUnmapped(rm *DeclarativeResultMap, root reflect.Value, colValues map[string]any, prefix string, mapped map[string]bool) error {
	meta := reflectmeta.Of(root.Type())
	for column, value := range colValues {
		if !strings.HasPrefix(column, strings.ToLower(prefix)) {
			continue
		}
		bare := strings.TrimPrefix(column, strings.ToLower(prefix))
		if mapped[column] || mapped[bare] {
			continue
		}
		index, ok := meta.FieldIndex(bare)
		if !ok {
			continue
		}
		field := meta.FieldByIndex(root, index)
		if !field.CanSet() {
			continue
		}
		if err := assignInto(field, value); err != nil {
			return fmt.Errorf("resultmap: auto-map column %q: %w", column, err)
		}
	}
	return nil
}

func (b *boundResultMap) applyAssociation(m ResultMapping, root reflect.Value, colValues map[string]any, prefix string) error {
	if m.NestedSelect != "" {
		return b.applyNestedSelect(m, root, colValues, prefix)
	}
	if m.NestedResultMap == "" {
		return fmt.Errorf("association %q has neither a nested select nor a nested result map", m.Property)
	}
	nestedRM, err := b.registry.Resolve(m.NestedResultMap)
	if err != nil {
		return err
	}
	nestedPrefix := prefix + m.ColumnPrefix
	effective, err := b.discriminate(nestedRM, colValues, nestedPrefix)
	if err != nil {
		return err
	}
	if allNestedColumnsNull(effective, colValues, nestedPrefix) {
		return nil
	}
	nested, err := b.instantiate(effective, colValues, nestedPrefix)
	if err != nil {
		return err
	}
	if err := b.applyProperties(effective, nested, colValues, nestedPrefix, "", make(map[string]bool)); err != nil {
		return err
	}
	return propath.Set(root, propath.Path(m.Property), nested)
}

func (b *boundResultMap) applyCollection(m ResultMapping, root reflect.Value, colValues map[string]any, prefix, rootKey string, seenNested map[string]bool) error {
	if m.NestedSelect != "" {
		return b.applyNestedSelect(m, root, colValues, prefix)
	}
	if m.NestedResultMap == "" {
		return fmt.Errorf("collection %q has neither a nested select nor a nested result map", m.Property)
	}
	nestedRM, err := b.registry.Resolve(m.NestedResultMap)
	if err != nil {
		return err
	}
	nestedPrefix := prefix + m.ColumnPrefix
	effective, err := b.discriminate(nestedRM, colValues, nestedPrefix)
	if err != nil {
		return err
	}
	if allNestedColumnsNull(effective, colValues, nestedPrefix) {
		return nil
	}

	nestedKey := rootKey + "/" + m.Property + "/" + rowKey(effective, colValues, nestedPrefix, len(seenNested))
	if seenNested[nestedKey] {
		return nil
	}
	seenNested[nestedKey] = true

	nested, err := b.instantiate(effective, colValues, nestedPrefix)
	if err != nil {
		return err
	}
	if err := b.applyProperties(effective, nested, colValues, nestedPrefix, "", make(map[string]bool)); err != nil {
		return err
	}

	slice := propath.Get(root, propath.Path(m.Property))
	if !slice.IsValid() {
		return fmt.Errorf("collection property %q not found", m.Property)
	}
	elem := nested
	if slice.Type().Elem().Kind() != reflect.Ptr {
		elem = nested.Elem()
	}
	grown := reflect.Append(slice, elem)
	return propath.Set(root, propath.Path(m.Property), grown)
}

func (b *boundResultMap) applyNestedSelect(m ResultMapping, root reflect.Value, colValues map[string]any, prefix string) error {
	if b.selector == nil {
		return nil
	}
	param := map[string]any{strings.TrimPrefix(m.Column, prefix): colValues[strings.ToLower(prefix+m.Column)]}

	switch m.NestedKind {
	case NestedAssociation:
		dest := reflect.New(propath.Get(root, propath.Path(m.Property)).Type())
		if err := b.selector.SelectNested(m.NestedSelect, param, dest.Interface()); err != nil {
			return err
		}
		return propath.Set(root, propath.Path(m.Property), dest.Elem())
	case NestedCollection:
		slice := propath.Get(root, propath.Path(m.Property))
		dest := reflect.New(slice.Type())
		dest.Elem().Set(slice)
		if err := b.selector.SelectNested(m.NestedSelect, param, dest.Interface()); err != nil {
			return err
		}
		return propath.Set(root, propath.Path(m.Property), dest.Elem())
	}
	return nil
}

func allNestedColumnsNull(rm *DeclarativeResultMap, colValues map[string]any, prefix string) bool {
	for _, m := range rm.allMappings() {
		if m.NestedKind != NestedNone {
			continue
		}
		if v, ok := colValues[strings.ToLower(prefix+m.ColumnPrefix+m.Column)]; ok && v != nil {
			return false
		}
	}
	return len(rm.allMappings()) > 0
}

func rowKey(rm *DeclarativeResultMap, colValues map[string]any, prefix string, rowIndex int) string {
	if len(rm.IDMappings) == 0 {
		return fmt.Sprintf("#%d", rowIndex)
	}
	var b strings.Builder
	for _, m := range rm.IDMappings {
		fmt.Fprintf(&b, "%s=%v|", m.effectiveColumn(), colValues[strings.ToLower(prefix+m.ColumnPrefix+m.Column)])
	}
	return b.String()
}

func setProperty(root reflect.Value, property string, value any) error {
	target := propath.Get(root, propath.Path(property))
	if target.IsValid() && target.CanSet() {
		return assignInto(target, value)
	}
	return propath.Set(root, propath.Path(property), reflect.ValueOf(value))
}

// assignInto sets dst from v, converting when the types differ but are
// convertible, and deferring to sql.Scanner when dst implements it.
func assignInto(dst reflect.Value, v any) error {
	if v == nil {
		return nil
	}
	if scanner, ok := dst.Addr().Interface().(stdsql.Scanner); ok {
		return scanner.Scan(v)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(dst.Type()) {
		dst.Set(rv)
		return nil
	}
	if rv.Type().ConvertibleTo(dst.Type()) {
		dst.Set(rv.Convert(dst.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %s to %s", rv.Type(), dst.Type())
}
