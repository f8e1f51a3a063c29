package sqlmap

import (
	"fmt"
	"strings"

	"github.com/gosqlmap/sqlmap/internal/container"
	"github.com/gosqlmap/sqlmap/sql"
)

// Mapper defines a set of statements.
type Mapper struct {
	namespace  string
	mappers    *Mappers
	statements map[string]*xmlSQLStatement
	sqlNodes   map[string]*SQLNode
	attrs      map[string]string
}

// Namespace returns the namespace of the mapper.
func (m *Mapper) Namespace() string {
	return m.namespace
}

func (m *Mapper) setAttribute(key, value string) {
	if m.attrs == nil {
		m.attrs = make(map[string]string)
	}
	m.attrs[key] = value
}

func (m *Mapper) setSqlNode(n *SQLNode) error {
	if m.sqlNodes == nil {
		m.sqlNodes = make(map[string]*SQLNode)
	}
	if _, exists := m.sqlNodes[n.ID()]; exists {
		return fmt.Errorf("sql node %s already exists", n.ID())
	}
	m.sqlNodes[n.ID()] = n
	return nil
}

// Attribute returns the attribute value by key.
func (m *Mapper) Attribute(key string) string {
	return m.attrs[key]
}

func (m *Mapper) GetSQLNodeByID(id string) (Node, error) {
	// if the id is not cross-namespace
	isCrossNamespace := strings.Contains(id, ".")

	if !isCrossNamespace {
		n, exists := m.sqlNodes[id]
		if !exists {
			return nil, fmt.Errorf("SQL node %q not found in mapper %q", id, m.namespace)
		}
		return n, nil
	}

	return m.mappers.GetSQLNodeByID(id)
}

func (m *Mapper) GetStatementByID(id string) (Statement, bool) {
	statement, exists := m.statements[id]
	return statement, exists
}

// qualify prefixes a bare (no-dot) id with this mapper's namespace, the same
// convention GetStatementByID/GetSQLNodeByID already apply to cross-mapper
// references. An already-qualified id is returned unchanged.
func (m *Mapper) qualify(id string) string {
	if strings.Contains(id, ".") {
		return id
	}
	return m.namespace + "." + id
}

// registerResultMap qualifies rm's id (and every same-namespace reference it
// carries - Extends, Discriminator cases/default, nested result maps) to
// this mapper's namespace and stores it in the shared, module-wide registry.
func (m *Mapper) registerResultMap(rm *DeclarativeResultMap) {
	rm.ID = m.qualify(rm.ID)
	if rm.Extends != "" {
		rm.Extends = m.qualify(rm.Extends)
	}
	if rm.Discriminator != nil {
		for k, v := range rm.Discriminator.Cases {
			rm.Discriminator.Cases[k] = m.qualify(v)
		}
		if rm.Discriminator.DefaultResultMapID != "" {
			rm.Discriminator.DefaultResultMapID = m.qualify(rm.Discriminator.DefaultResultMapID)
		}
	}
	for _, group := range [][]ResultMapping{rm.Constructor, rm.IDMappings, rm.PropertyMappings} {
		for i := range group {
			if group[i].NestedResultMap != "" {
				group[i].NestedResultMap = m.qualify(group[i].NestedResultMap)
			}
		}
	}
	m.mappers.resultMapRegistry().Register(rm)
}

// registerParameterMap qualifies pm's id to this mapper's namespace and
// stores it in the shared, module-wide registry.
func (m *Mapper) registerParameterMap(pm *ParameterMap) {
	pm.ID = m.qualify(pm.ID)
	m.mappers.parameterMapRegistry().Register(pm)
}

// Mappers is a container for all mappers.
type Mappers struct {
	attrs map[string]string
	cfg   IConfiguration
	// mappers uses Trie instead of map because mapper namespaces often share common prefixes
	// (e.g., "com.example.user", "com.example.order"). Trie provides both memory efficiency
	// by storing shared prefixes only once and fast prefix-based lookups
	mappers *container.Trie[*Mapper]

	// resultMaps and parameterMaps are shared module-wide so a <resultMap>
	// or <parameterMap> declared in one mapper can be referenced (fully
	// qualified) from another's extends/resultMap/parameterMap attribute.
	resultMaps    *ResultMapRegistry
	parameterMaps *ParameterMapRegistry
}

func (m *Mappers) resultMapRegistry() *ResultMapRegistry {
	if m.resultMaps == nil {
		m.resultMaps = NewResultMapRegistry()
	}
	return m.resultMaps
}

func (m *Mappers) parameterMapRegistry() *ParameterMapRegistry {
	if m.parameterMaps == nil {
		m.parameterMaps = NewParameterMapRegistry()
	}
	return m.parameterMaps
}

// ResultMap resolves a fully-qualified result map id into an sql.ResultMap,
// wiring selector in as its NestedSelector for any nested-select mappings it
// carries. selector may be nil.
func (m *Mappers) ResultMap(id string, selector NestedSelector) (sql.ResultMap, error) {
	return m.resultMapRegistry().ResultMapFor(id, selector)
}

// ParameterMap resolves a fully-qualified parameter map id.
func (m *Mappers) ParameterMap(id string) (*ParameterMap, bool) {
	return m.parameterMapRegistry().Get(id)
}

// RegisterType binds a type="..." alias used by any mapper's <resultMap> to
// a concrete Go type, since markup cannot express a reflect.Type directly.
func (m *Mappers) RegisterType(alias string, sample any) {
	m.resultMapRegistry().RegisterType(alias, sample)
}

func (m *Mappers) setMapper(key string, mapper *Mapper) error {
	if prefix := m.Prefix(); prefix != "" {
		key = fmt.Sprintf("%s.%s", prefix, key)
	}
	if m.mappers == nil {
		m.mappers = container.NewTrie[*Mapper]()
	}
	if _, exists := m.mappers.Get(key); exists {
		return fmt.Errorf("mapper %s already exists", key)
	}
	mapper.mappers = m
	m.mappers.Insert(key, mapper)
	return nil
}

func (m *Mappers) GetMapperByNamespace(namespace string) (*Mapper, bool) {
	if m == nil || m.mappers == nil {
		return nil, false
	}
	return m.mappers.Get(namespace)
}

func (m *Mappers) getMapperAndNodeID(id string) (mapper *Mapper, key string, err error) {
	lastDotIndex := strings.LastIndex(id, ".")
	if lastDotIndex <= 0 {
		return nil, "", fmt.Errorf("mapper id %q does not have a .id", id)
	}

	namespace, nodeID := id[:lastDotIndex], id[lastDotIndex+1:]

	mapper, exists := m.GetMapperByNamespace(namespace)
	if !exists {
		return nil, "", fmt.Errorf("mapper %s not found", namespace)
	}
	return mapper, nodeID, nil
}

// GetStatementByID returns a Statement by id.
// The id should be in the format of "namespace.statementName"
// For example: "main.UserMapper.SelectUser"
func (m *Mappers) GetStatementByID(id string) (Statement, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: statement '%s' not found in mapper configuration", ErrNoStatementFound, id)
	}

	mapper, statementID, err := m.getMapperAndNodeID(id)
	if err != nil {
		return nil, err
	}

	statement, exists := mapper.GetStatementByID(statementID)
	if !exists {
		return nil, fmt.Errorf("statement '%s' not found in namespace '%s'", statementID, mapper.Namespace())
	}

	return statement, nil
}

// GetStatement resolves v (a string id, a StatementIDProvider, a mapper
// interface method value, or a registered struct type) into a Statement.
func (m *Mappers) GetStatement(v any) (Statement, error) {
	id, err := extractStatementID(v)
	if err != nil {
		return nil, err
	}
	return m.GetStatementByID(id)
}

func (m *Mappers) GetSQLNodeByID(id string) (Node, error) {
	mapper, sqlNodeID, err := m.getMapperAndNodeID(id)
	if err != nil {
		return nil, err
	}
	return mapper.GetSQLNodeByID(sqlNodeID)
}

// Configuration returns the configuration these mappers belong to.
func (m *Mappers) Configuration() IConfiguration {
	return m.cfg
}

// setAttribute sets an attribute.
// same as setAttribute, but it is used for Mappers.
func (m *Mappers) setAttribute(key, value string) {
	if m.attrs == nil {
		m.attrs = make(map[string]string)
	}
	m.attrs[key] = value
}

// Attribute returns an attribute from the Mappers attributes.
func (m *Mappers) Attribute(key string) string {
	return m.attrs[key]
}

// Prefix returns the prefix of the Mappers.
func (m *Mappers) Prefix() string {
	return m.Attribute("prefix")
}
