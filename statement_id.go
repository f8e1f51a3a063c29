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
)

// StatementIDProvider is implemented by a type (typically a GetMapper[T]
// proxy invocation payload) that knows its own fully-qualified statement id
// without reflection.
type StatementIDProvider interface {
	StatementID() string
}

// extractStatementID turns any of the value shapes Session/Engine accept
// for a statement lookup into the "namespace.id" string GetStatementByID
// expects:
//   - nil is always rejected.
//   - a string is used directly.
//   - a StatementIDProvider is asked for its id.
//   - a func is identified by its qualified runtime name (cachedRuntimeFuncName),
//     the same mechanism GetMapper[T]'s dispatch table uses.
//   - a struct (or pointer to one) is identified by its qualified type name.
//
// Anything else (ints, maps, channels, ...) has no natural notion of a
// statement id and is rejected.
func extractStatementID(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", fmt.Errorf("cannot extract statement ID: nil statement query")
	case string:
		return t, nil
	case StatementIDProvider:
		id := t.StatementID()
		if id == "" {
			return "", fmt.Errorf("cannot extract statement ID: empty StatementID()")
		}
		return id, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Func:
		return cachedRuntimeFuncName(rv.Pointer()), nil
	case reflect.Ptr:
		rv = rv.Elem()
		fallthrough
	case reflect.Struct:
		rt := rv.Type()
		return replacer.Replace(rt.PkgPath()) + "." + rt.Name(), nil
	default:
		return "", fmt.Errorf("cannot extract statement ID: unsupported type %T", v)
	}
}
