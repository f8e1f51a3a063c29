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

// Package stmt reaches into the unexported query text database/sql.Stmt
// keeps on itself, so a cached *sql.Stmt can be compared against a new
// query before deciding whether to reprepare it. database/sql exposes no
// public accessor for this, so it is read via reflection on the struct's
// unexported "query" field.
package stmt

import (
	"database/sql"
	"reflect"
)

// Query returns the query text a prepared *sql.Stmt was created with, or
// the empty string if it cannot be determined (e.g. a future Go release
// renames the field).
func Query(s *sql.Stmt) string {
	if s == nil {
		return ""
	}
	v := reflect.ValueOf(s).Elem().FieldByName("query")
	if !v.IsValid() || v.Kind() != reflect.String {
		return ""
	}
	return v.String()
}
