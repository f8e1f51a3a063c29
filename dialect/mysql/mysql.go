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

// Package mysql registers driver.MySQLDriver under "mysql" and imports
// github.com/go-sql-driver/mysql for its database/sql driver side effect.
// Importing this package (like database/sql drivers themselves) is what
// makes "mysql" available to Source.Driver / <environment> dataSource
// configuration.
package mysql

import (
	_ "github.com/go-sql-driver/mysql"

	"github.com/gosqlmap/sqlmap/driver"
)

func init() {
	driver.Register("mysql", driver.MySQLDriver{})
}
