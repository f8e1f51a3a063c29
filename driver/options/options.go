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

// Package options configures *sql.DB pool parameters through functional
// options, so the settings parsed from a dataSource mapping element
// (maxOpenConnNum, maxIdleConnNum, ...) have somewhere idiomatic to land.
package options

import (
	"database/sql"
	"time"
)

// connectConfig collects the pool tuning knobs applied after sql.Open.
// Zero values are left untouched - database/sql's own defaults apply.
type connectConfig struct {
	maxOpenConns    int
	maxIdleConns    int
	connMaxLifetime time.Duration
	connMaxIdleTime time.Duration
}

// ConnectOption configures a connectConfig.
type ConnectOption func(*connectConfig)

// ConnectWithMaxOpenConnNum sets the maximum number of open connections to the database.
func ConnectWithMaxOpenConnNum(n int) ConnectOption {
	return func(c *connectConfig) { c.maxOpenConns = n }
}

// ConnectWithMaxIdleConnNum sets the maximum number of idle connections in the pool.
func ConnectWithMaxIdleConnNum(n int) ConnectOption {
	return func(c *connectConfig) { c.maxIdleConns = n }
}

// ConnectWithMaxConnLifetime sets the maximum amount of time a connection may be reused.
func ConnectWithMaxConnLifetime(d time.Duration) ConnectOption {
	return func(c *connectConfig) { c.connMaxLifetime = d }
}

// ConnectWithMaxIdleConnLifetime sets the maximum amount of time a connection may be idle.
func ConnectWithMaxIdleConnLifetime(d time.Duration) ConnectOption {
	return func(c *connectConfig) { c.connMaxIdleTime = d }
}

// Connect opens a *sql.DB for driverName/dsn and applies the given pool options.
// It does not verify the connection; callers that need to fail fast should
// call db.PingContext themselves.
func Connect(driverName, dsn string, opts ...ConnectOption) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	var cfg connectConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.maxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}
	if cfg.maxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	if cfg.connMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.connMaxLifetime)
	}
	if cfg.connMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(cfg.connMaxIdleTime)
	}
	return db, nil
}
