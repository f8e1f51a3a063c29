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
	"errors"
	"reflect"

	"github.com/gosqlmap/sqlmap/eval"
)

// BindNode represents a top-level <bind> declaration on a xmlSQLStatement:
// it evaluates an expression once per invocation and makes the result
// available under Name to every node in the statement's tree, including
// nested <if>/<choose>/<foreach> conditions.
type BindNode struct {
	Name string
	expr eval.Expression
}

// Parse compiles the given expression string and stores the result.
func (b *BindNode) Parse(expression string) (err error) {
	b.expr, err = eval.Compile(expression)
	return err
}

// Execute evaluates the compiled expression against the supplied Parameter.
func (b *BindNode) Execute(p eval.Parameter) (reflect.Value, error) {
	return b.expr.Execute(p)
}

// BindNodeGroup is an ordered set of statement-level bind declarations.
type BindNodeGroup []*BindNode

// ErrBindVariableNotFound is returned when a bind variable lookup fails.
var ErrBindVariableNotFound = errors.New("sqlmap: bind variable not found")

// bindScope resolves a name against the declared BindNodes, evaluating
// lazily and caching the result for the lifetime of one Accept call.
type bindScope struct {
	nodes     BindNodeGroup
	parameter eval.Parameter
	resolved  map[string]reflect.Value
}

func (s *bindScope) Get(name string) (reflect.Value, error) {
	if value, ok := s.resolved[name]; ok {
		return value, nil
	}
	for _, n := range s.nodes {
		if n.Name != name {
			continue
		}
		value, err := n.Execute(s.parameter)
		if err != nil {
			return reflect.Value{}, err
		}
		if s.resolved == nil {
			s.resolved = make(map[string]reflect.Value, len(s.nodes))
		}
		s.resolved[name] = value
		return value, nil
	}
	return reflect.Value{}, ErrBindVariableNotFound
}

type boundParameterDecorator struct {
	scope *bindScope
}

// Get implements eval.Parameter.
func (d boundParameterDecorator) Get(name string) (reflect.Value, bool) {
	value, err := d.scope.Get(name)
	if err != nil {
		return reflect.Value{}, false
	}
	return value, true
}

// ConvertParameter decorates parameter with the bind scope so that
// #{...}/${...} substitutions and <if> expressions can resolve bind
// variable names declared at the statement level.
func (b BindNodeGroup) ConvertParameter(parameter eval.Parameter) eval.Parameter {
	if len(b) == 0 {
		return parameter
	}
	decorated := boundParameterDecorator{scope: &bindScope{nodes: b, parameter: parameter}}
	// the decorator goes first so a bind name always shadows a same-named
	// property on the caller's own parameter object.
	return eval.ParamGroup{decorated, parameter}
}
