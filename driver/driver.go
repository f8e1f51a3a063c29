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

// Package driver defines the seam between the mapping engine and a concrete
// database/sql driver. It mirrors database/sql's own Register/Get pattern
// (see database/sql.Register) but layers a Translator on top, since
// database/sql/driver has no notion of named-placeholder rewriting.
package driver

import (
	"fmt"
	"sync"
)

// Translator rewrites a named placeholder (as captured from a #{name} token)
// into the positional marker a particular driver expects. MySQL always wants
// "?"; a numbered-placeholder dialect like Postgres would return "$1", "$2", ...
// tracking its own counter across a single statement build.
type Translator interface {
	Translate(name string) string
}

// TranslateFunc adapts a plain function to the Translator interface, handy
// for tests that don't need a stateful dialect.
type TranslateFunc func(name string) string

// Translate implements Translator.
func (f TranslateFunc) Translate(name string) string { return f(name) }

// Driver groups the two things the mapping engine needs from a registered
// database/sql driver: its registration name (used as the databaseId
// selector in <if databaseId="..."> style conditionals) and a Translator.
type Driver interface {
	// Name returns the name the driver was registered under.
	Name() string

	// Translator returns the placeholder Translator for this driver.
	// A fresh Translator should be obtained per statement build when the
	// dialect is stateful (numbered placeholders).
	Translator() Translator
}

// anonymousTranslator always emits "?", the placeholder style shared by
// MySQL and SQLite. Both ship as concrete Driver values below so tests and
// callers that don't need driver registration can construct one directly.
type anonymousTranslator struct{}

func (anonymousTranslator) Translate(string) string { return "?" }

// MySQLDriver is a concrete Driver for MySQL, registered under "mysql" by
// github.com/gosqlmap/sqlmap/dialect/mysql's init function and also usable
// standalone (e.g. in tests) without importing that package.
type MySQLDriver struct{}

// Name implements Driver.
func (MySQLDriver) Name() string { return "mysql" }

// Translator implements Driver.
func (MySQLDriver) Translator() Translator { return anonymousTranslator{} }

// SQLiteDriver is a concrete Driver for SQLite, sharing MySQL's anonymous
// "?" placeholder style.
type SQLiteDriver struct{}

// Name implements Driver.
func (*SQLiteDriver) Name() string { return "sqlite3" }

// Translator implements Driver.
func (*SQLiteDriver) Translator() Translator { return anonymousTranslator{} }

var (
	mu       sync.RWMutex
	registry = make(map[string]Driver)
)

// Register makes a Driver available under the given name. It panics if
// Register is called twice for the same name or with a nil driver, matching
// database/sql.Register's own behavior.
func Register(name string, d Driver) {
	mu.Lock()
	defer mu.Unlock()
	if d == nil {
		panic("sqlmap/driver: Register driver is nil")
	}
	if _, dup := registry[name]; dup {
		panic("sqlmap/driver: Register called twice for driver " + name)
	}
	registry[name] = d
}

// Get returns the Driver registered under name.
func Get(name string) (Driver, error) {
	mu.RLock()
	defer mu.RUnlock()
	d, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("sqlmap/driver: unknown driver %q (forgot to import it?)", name)
	}
	return d, nil
}

// Drivers returns the names of all registered drivers, sorted is not
// guaranteed; callers that need a stable order should sort the result.
func Drivers() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
