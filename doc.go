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

/*
Package sqlmap is a declarative SQL mapping and execution framework for Go.

It compiles XML mapping definitions into a statement registry, assembles
dynamic SQL against caller-supplied parameters, drives a pooled connection
through a layered executor, and materializes result rows into Go structs,
with two-tier (session-local and cross-session) caching.

Basic Usage:

	cfg, err := sqlmap.NewXMLConfiguration("config.xml")
	if err != nil {
		// handle error
		panic(err)
	}
	engine, err := sqlmap.New(cfg)
	if err != nil {
		// handle error
		panic(err)
	}
	defer engine.Close()

	rows, err := engine.Raw(`select "hello world"`).Select(context.Background(), nil)
	if err != nil {
		// handle error
		panic(err)
	}
	defer rows.Close()

	result, err := sqlmap.Bind[string](rows)
	if err != nil {
		// handle error
		panic(err)
	}
	fmt.Println(result)

Features:

  - XML-based SQL configuration, including declarative result maps and discriminators
  - Pooled connection broker with overdue-claim and health-check semantics
  - Two-tier caching (session-local, cross-session) with composable decorators
  - Raw SQL execution
  - Result mapping to structs
  - Transaction support
  - Generic result binding
  - Parameter binding with #{} syntax
  - Middleware support

For more information and examples, visit: https://github.com/gosqlmap/sqlmap
*/
package sqlmap
