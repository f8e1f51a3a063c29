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

import "github.com/gosqlmap/sqlmap/sql"

// Action is an alias for sql.Action, kept at the root so mapper/parser/
// statement code that never otherwise needs the sql subpackage can still
// name a statement's action without an extra import.
type Action = sql.Action

const (
	// Select is an Action for query
	Select = sql.Select

	// Insert is an Action for insert
	Insert = sql.Insert

	// Update is an Action for update
	Update = sql.Update

	// Delete is an Action for delete
	Delete = sql.Delete
)
