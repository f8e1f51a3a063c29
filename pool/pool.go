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

// Package pool implements a bounded, thread-safe connection broker over a
// raw database/sql/driver factory. Unlike database/sql's own pool (which
// db.go's DBManager delegates to for ordinary application traffic), this
// pool is used where the caller needs to observe and bound checkout time,
// overdue reclamation, and bad-connection tolerance explicitly - the same
// bookkeeping DBManager applies to *sql.DB handles, applied here one level
// lower, to raw driver.Conn values.
package pool

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrPoolExhausted is returned by Acquire when no connection could be
// obtained within the configured wait and bad-connection tolerance.
var ErrPoolExhausted = errors.New("pool: exhausted")

// ErrPoolClosed is returned by Acquire after the pool has been closed.
var ErrPoolClosed = errors.New("pool: closed")

// ErrTxNotBegun is returned by PooledConnection.Commit/Rollback when no
// transaction was opened via BeginTx.
var ErrTxNotBegun = errors.New("pool: transaction not begun")

// Factory opens a brand new, unpooled driver connection. Typically a thin
// adapter over a registered database/sql/driver.Driver's Open method.
type Factory interface {
	Connect(ctx context.Context) (driver.Conn, error)
}

// FactoryFunc adapts a plain function to Factory.
type FactoryFunc func(ctx context.Context) (driver.Conn, error)

// Connect implements Factory.
func (f FactoryFunc) Connect(ctx context.Context) (driver.Conn, error) { return f(ctx) }

// options holds every pool knob, set via functional Option values.
type options struct {
	maxActive              int
	maxIdle                int
	maxCheckoutTime        time.Duration
	timeToWait             time.Duration
	badConnectionTolerance int
	pingQuery              string
	pingEnabled            bool
	pingNotUsedFor         time.Duration
	logger                 logrus.FieldLogger
}

func defaultOptions() options {
	return options{
		maxActive:              10,
		maxIdle:                5,
		maxCheckoutTime:        20 * time.Second,
		timeToWait:             20 * time.Second,
		badConnectionTolerance: 3,
		pingQuery:              "",
		pingEnabled:            true,
		pingNotUsedFor:         time.Minute,
		logger:                 logrus.StandardLogger(),
	}
}

// Option configures a Pool. Passing any Option to Reconfigure triggers a
// force-close of every live connection (see Pool.Reconfigure).
type Option func(*options)

// WithMaxActive bounds the number of connections concurrently checked out.
func WithMaxActive(n int) Option { return func(o *options) { o.maxActive = n } }

// WithMaxIdle bounds the number of connections kept idle for reuse.
func WithMaxIdle(n int) Option { return func(o *options) { o.maxIdle = n } }

// WithMaxCheckoutTime bounds how long a connection may stay checked out
// before it becomes eligible for overdue reclamation.
func WithMaxCheckoutTime(d time.Duration) Option { return func(o *options) { o.maxCheckoutTime = d } }

// WithTimeToWait bounds how long Acquire blocks on the pool's condition
// variable before retrying.
func WithTimeToWait(d time.Duration) Option { return func(o *options) { o.timeToWait = d } }

// WithBadConnectionTolerance sets how many invalid candidates, on top of
// maxIdle, a single Acquire call will discard: Acquire gives up with
// ErrPoolExhausted once it has discarded more than maxIdle + n.
func WithBadConnectionTolerance(n int) Option {
	return func(o *options) { o.badConnectionTolerance = n }
}

// WithPingQuery sets the SQL text executed to validate an idle connection.
// Empty means fall back to the driver's own Pinger, if it implements one.
func WithPingQuery(q string) Option { return func(o *options) { o.pingQuery = q } }

// WithPingEnabled toggles connection validation entirely.
func WithPingEnabled(b bool) Option { return func(o *options) { o.pingEnabled = b } }

// WithPingNotUsedFor sets the idle duration past which a candidate is
// revalidated before being handed out again.
func WithPingNotUsedFor(d time.Duration) Option { return func(o *options) { o.pingNotUsedFor = d } }

// WithLogger overrides the logger used for rollback/ping failure reporting.
func WithLogger(l logrus.FieldLogger) Option { return func(o *options) { o.logger = l } }

// PooledConnection is the only permitted handle onto a live driver.Conn.
// Close returns ownership to the owning Pool; it is a documented no-op on
// an already-invalidated wrapper, since the overdue-claim path in Acquire
// may invalidate a wrapper out from under a caller that still holds it.
type PooledConnection struct {
	pool *Pool
	conn driver.Conn
	tx   driver.Tx

	valid        atomic.Bool
	connTypeCode int64
	checkedOutAt time.Time
	lastUsedAt   time.Time
}

// Raw returns the underlying driver.Conn for statement preparation.
func (c *PooledConnection) Raw() driver.Conn { return c.conn }

// BeginTx starts a transaction on the underlying connection, marking the
// wrapper non-autocommit until Commit/Rollback/Close clears it.
func (c *PooledConnection) BeginTx(ctx context.Context, opts driver.TxOptions) error {
	if cb, ok := c.conn.(driver.ConnBeginTx); ok {
		tx, err := cb.BeginTx(ctx, opts)
		if err != nil {
			return err
		}
		c.tx = tx
		return nil
	}
	tx, err := c.conn.Begin()
	if err != nil {
		return err
	}
	c.tx = tx
	return nil
}

// autocommit reports whether no explicit transaction is currently open.
func (c *PooledConnection) autocommit() bool { return c.tx == nil }

// Commit commits the transaction opened by BeginTx. Returns ErrTxNotBegun
// if none is open.
func (c *PooledConnection) Commit() error {
	if c.tx == nil {
		return ErrTxNotBegun
	}
	err := c.tx.Commit()
	c.tx = nil
	return err
}

// Rollback rolls back the transaction opened by BeginTx. Returns
// ErrTxNotBegun if none is open.
func (c *PooledConnection) Rollback() error {
	if c.tx == nil {
		return ErrTxNotBegun
	}
	err := c.tx.Rollback()
	c.tx = nil
	return err
}

func (c *PooledConnection) rollbackIfOpen() {
	if c.tx == nil {
		return
	}
	if err := c.tx.Rollback(); err != nil {
		c.pool.opts.logger.WithError(err).Warn("pool: rollback on reclaimed connection failed")
	}
	c.tx = nil
}

// Close returns the connection to its owning Pool. Safe to call multiple
// times; only the first call has an effect.
func (c *PooledConnection) Close() error {
	if !c.valid.CompareAndSwap(true, false) {
		return nil
	}
	return c.pool.release(c)
}

// Pool is a bounded broker over a Factory of raw driver connections.
type Pool struct {
	mu   sync.Mutex
	cond *sync.Cond

	factory Factory
	opts    options

	idle   []*PooledConnection
	active []*PooledConnection

	connTypeCode atomic.Int64
	overdueCount atomic.Int64
	closed       atomic.Bool
}

// New creates a Pool drawing raw connections from factory.
func New(factory Factory, opts ...Option) *Pool {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	p := &Pool{factory: factory, opts: o}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Stats reports point-in-time pool occupancy, useful for metrics/logging.
type Stats struct {
	Active  int
	Idle    int
	Overdue int64
}

// Stats returns a snapshot of the pool's current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Active: len(p.active), Idle: len(p.idle), Overdue: p.overdueCount.Load()}
}

// Acquire implements the bounded acquire algorithm: reuse an idle
// connection, open a new one under the active cap, reclaim an overdue
// checkout, or wait for one to free up - validating the candidate before
// handing it back.
func (p *Pool) Acquire(ctx context.Context) (*PooledConnection, error) {
	badCount := 0
	wantType := p.connTypeCode.Load()

	for {
		if p.closed.Load() {
			return nil, ErrPoolClosed
		}

		p.mu.Lock()
		candidate, overdueReuse := p.nextCandidateLocked()
		if candidate == nil {
			if len(p.active) < p.opts.maxActive {
				p.mu.Unlock()
				raw, err := p.factory.Connect(ctx)
				if err != nil {
					return nil, fmt.Errorf("pool: connect: %w", err)
				}
				candidate = &PooledConnection{pool: p, conn: raw}
				candidate.valid.Store(true)
				p.mu.Lock()
				p.active = append(p.active, candidate)
				p.mu.Unlock()
				candidate.connTypeCode = wantType
				candidate.checkedOutAt = time.Now()
				candidate.lastUsedAt = candidate.checkedOutAt
				return candidate, nil
			}

			overdue, ok := p.oldestActiveLocked()
			if ok && time.Since(overdue.checkedOutAt) > p.opts.maxCheckoutTime {
				p.overdueCount.Add(1)
				p.removeActiveLocked(overdue)
				overdue.valid.Store(false)
				p.mu.Unlock()
				overdue.rollbackIfOpen()
				reused := &PooledConnection{pool: p, conn: overdue.conn}
				reused.valid.Store(true)
				p.mu.Lock()
				p.active = append(p.active, reused)
				p.mu.Unlock()
				reused.connTypeCode = wantType
				reused.checkedOutAt = time.Now()
				reused.lastUsedAt = reused.checkedOutAt
				return reused, nil
			}

			if !p.waitLocked(ctx) {
				p.mu.Unlock()
				return nil, ctx.Err()
			}
			p.mu.Unlock()
			continue
		}
		_ = overdueReuse
		p.mu.Unlock()

		if !p.ping(candidate) {
			badCount++
			p.mu.Lock()
			p.removeActiveLocked(candidate)
			p.mu.Unlock()
			candidate.valid.Store(false)
			_ = candidate.conn.Close()
			if badCount > p.opts.maxIdle+p.opts.badConnectionTolerance {
				return nil, ErrPoolExhausted
			}
			continue
		}

		if candidate.connTypeCode != wantType {
			candidate.rollbackIfOpen()
			candidate.connTypeCode = wantType
		} else if !candidate.autocommit() {
			candidate.rollbackIfOpen()
		}
		candidate.checkedOutAt = time.Now()
		candidate.lastUsedAt = candidate.checkedOutAt
		return candidate, nil
	}
}

// nextCandidateLocked pops the head idle connection, moving it to active,
// or reports none available. Caller must hold p.mu.
func (p *Pool) nextCandidateLocked() (*PooledConnection, bool) {
	if len(p.idle) == 0 {
		return nil, false
	}
	c := p.idle[0]
	p.idle = p.idle[1:]
	p.active = append(p.active, c)
	return c, true
}

func (p *Pool) oldestActiveLocked() (*PooledConnection, bool) {
	if len(p.active) == 0 {
		return nil, false
	}
	oldest := p.active[0]
	for _, c := range p.active[1:] {
		if c.checkedOutAt.Before(oldest.checkedOutAt) {
			oldest = c
		}
	}
	return oldest, true
}

func (p *Pool) removeActiveLocked(target *PooledConnection) {
	for i, c := range p.active {
		if c == target {
			p.active = append(p.active[:i], p.active[i+1:]...)
			return
		}
	}
}

// waitLocked blocks on the pool's condition for at most timeToWait. It
// returns false if ctx is done (Acquire then fails with ctx's error) and
// true after a timeout or a wake-up (the caller loops and retries).
func (p *Pool) waitLocked(ctx context.Context) bool {
	woke := make(chan struct{})
	timer := time.AfterFunc(p.opts.timeToWait, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	defer timer.Stop()
	go func() {
		select {
		case <-ctx.Done():
			p.mu.Lock()
			p.cond.Broadcast()
			p.mu.Unlock()
		case <-woke:
		}
	}()
	p.cond.Wait()
	close(woke)
	return ctx.Err() == nil
}

// ping validates a candidate before handing it out. Returns false
// immediately if the driver reports the connection closed; if ping is
// enabled and the candidate has been idle longer than pingNotUsedFor, it
// additionally executes the configured ping query (or the driver's own
// Pinger).
func (p *Pool) ping(c *PooledConnection) bool {
	if pr, ok := c.conn.(driver.Pinger); ok {
		if err := pr.Ping(context.Background()); err != nil {
			return false
		}
	}
	if !p.opts.pingEnabled || time.Since(c.lastUsedAt) < p.opts.pingNotUsedFor {
		return true
	}
	if p.opts.pingQuery == "" {
		return true
	}
	execer, ok := c.conn.(driver.ExecerContext)
	if !ok {
		return true
	}
	if _, err := execer.ExecContext(context.Background(), p.opts.pingQuery, nil); err != nil {
		p.opts.logger.WithError(err).Warn("pool: ping query failed, discarding connection")
		return false
	}
	return true
}

// release implements the release/return-to-pool half of the algorithm.
func (p *Pool) release(c *PooledConnection) error {
	p.mu.Lock()
	p.removeActiveLocked(c)

	if c.connTypeCode == p.connTypeCode.Load() && len(p.idle) < p.opts.maxIdle {
		p.mu.Unlock()
		c.rollbackIfOpen()
		fresh := &PooledConnection{pool: p, conn: c.conn, connTypeCode: c.connTypeCode, lastUsedAt: time.Now()}
		fresh.valid.Store(true)
		p.mu.Lock()
		p.idle = append(p.idle, fresh)
		p.cond.Signal()
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	c.rollbackIfOpen()
	return c.conn.Close()
}

// Reconfigure applies opts and force-closes every live connection: the
// active/idle lists are drained, wrappers invalidated, and underlying
// connections closed (rolling back any open transaction first). The next
// Acquire rebuilds the pool under the new parameters.
func (p *Pool) Reconfigure(opts ...Option) error {
	p.mu.Lock()
	for _, opt := range opts {
		opt(&p.opts)
	}
	p.connTypeCode.Add(1)
	drained := make([]*PooledConnection, 0, len(p.active)+len(p.idle))
	drained = append(drained, p.active...)
	drained = append(drained, p.idle...)
	p.active = nil
	p.idle = nil
	p.cond.Broadcast()
	p.mu.Unlock()

	var errs []error
	for _, c := range drained {
		c.valid.Store(false)
		c.rollbackIfOpen()
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close force-closes every connection and marks the pool unusable.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.mu.Lock()
	p.cond.Broadcast()
	p.mu.Unlock()
	return p.Reconfigure()
}
