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

// Package cache implements the namespace-level (second-tier) cache layers:
// a plain in-memory store decorated with eviction, blocking, serialization,
// logging and synchronization policies that compose around it. Every
// layer implements the same Cache interface so they nest transparently -
// grounded verbatim on zsy619-yyhertz's framework/mybatis/cache/cache.go
// PerpetualCache/LruCache/FifoCache/BlockingCache/SynchronizedCache family,
// generalized to use real ecosystem packages (golang-lru/v2, singleflight)
// in place of that file's hand-rolled linked list and per-key mutex map.
package cache

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// CacheKey identifies one cached entry. Its string form is used as the
// singleflight and gob-serialization key, so it must be comparable and
// stringify deterministically for equal logical keys.
type CacheKey interface {
	fmt.Stringer
	comparable
}

// Cache is the common interface every layer (the plain store and every
// decorator) implements.
type Cache[K CacheKey] interface {
	ID() string
	Put(key K, value any)
	Get(key K) (any, bool)
	Remove(key K)
	Clear()
	Size() int
}

// PerpetualCache is the innermost store: a plain guarded map with no
// eviction policy at all, grounded verbatim on zsy619-yyhertz's PerpetualCache.
type PerpetualCache[K CacheKey] struct {
	id    string
	mu    sync.RWMutex
	store map[K]any
}

// NewPerpetual creates an empty PerpetualCache identified by id (the
// mapping namespace).
func NewPerpetual[K CacheKey](id string) *PerpetualCache[K] {
	return &PerpetualCache[K]{id: id, store: make(map[K]any)}
}

func (c *PerpetualCache[K]) ID() string { return c.id }

func (c *PerpetualCache[K]) Put(key K, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store[key] = value
}

func (c *PerpetualCache[K]) Get(key K) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.store[key]
	return v, ok
}

func (c *PerpetualCache[K]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.store, key)
}

func (c *PerpetualCache[K]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store = make(map[K]any)
}

func (c *PerpetualCache[K]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

// LRUCache bounds the delegate to capacity entries, evicting the least
// recently used key from both the tracker and the delegate on overflow.
// Wraps github.com/hashicorp/golang-lru/v2 in place of zsy619-yyhertz's
// hand-rolled intrusive linked list, per spec.md's explicit preference for
// the real ecosystem package where one is confirmed in-pack (forbearing-gst).
type LRUCache[K CacheKey] struct {
	delegate Cache[K]
	tracker  *lru.Cache[K, struct{}]
}

// NewLRU wraps delegate with an LRU eviction policy bounded at capacity.
// The tracker's eviction callback removes the evicted key from delegate
// too, keeping the two in lockstep.
func NewLRU[K CacheKey](delegate Cache[K], capacity int) *LRUCache[K] {
	c := &LRUCache[K]{delegate: delegate}
	tracker, _ := lru.NewWithEvict[K, struct{}](capacity, func(key K, _ struct{}) {
		c.delegate.Remove(key)
	})
	c.tracker = tracker
	return c
}

func (c *LRUCache[K]) ID() string { return c.delegate.ID() }

func (c *LRUCache[K]) Put(key K, value any) {
	c.delegate.Put(key, value)
	c.tracker.Add(key, struct{}{})
}

func (c *LRUCache[K]) Get(key K) (any, bool) {
	if _, ok := c.tracker.Get(key); !ok {
		return nil, false
	}
	return c.delegate.Get(key)
}

func (c *LRUCache[K]) Remove(key K) {
	c.tracker.Remove(key)
	c.delegate.Remove(key)
}

func (c *LRUCache[K]) Clear() {
	c.tracker.Purge()
	c.delegate.Clear()
}

func (c *LRUCache[K]) Size() int { return c.delegate.Size() }

// FIFOCache bounds insertion order with a plain queue; on overflow it
// removes the oldest inserted key, grounded directly on zsy619-yyhertz's
// FifoCache.
type FIFOCache[K CacheKey] struct {
	delegate Cache[K]
	mu       sync.Mutex
	queue    []K
	capacity int
}

// NewFIFO wraps delegate with a first-in-first-out eviction policy.
func NewFIFO[K CacheKey](delegate Cache[K], capacity int) *FIFOCache[K] {
	return &FIFOCache[K]{delegate: delegate, capacity: capacity}
}

func (c *FIFOCache[K]) ID() string { return c.delegate.ID() }

func (c *FIFOCache[K]) Put(key K, value any) {
	c.mu.Lock()
	if len(c.queue) >= c.capacity {
		oldest := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		c.delegate.Remove(oldest)
	} else {
		c.mu.Unlock()
	}
	c.mu.Lock()
	c.queue = append(c.queue, key)
	c.mu.Unlock()
	c.delegate.Put(key, value)
}

func (c *FIFOCache[K]) Get(key K) (any, bool) { return c.delegate.Get(key) }
func (c *FIFOCache[K]) Remove(key K)          { c.delegate.Remove(key) }
func (c *FIFOCache[K]) Clear() {
	c.mu.Lock()
	c.queue = c.queue[:0]
	c.mu.Unlock()
	c.delegate.Clear()
}
func (c *FIFOCache[K]) Size() int { return c.delegate.Size() }

// ScheduledCache clears the delegate whenever more than interval has
// elapsed since the last clear, checked on every access.
type ScheduledCache[K CacheKey] struct {
	delegate  Cache[K]
	interval  time.Duration
	mu        sync.Mutex
	lastClear time.Time
}

// NewScheduled wraps delegate, clearing it lazily once interval elapses.
func NewScheduled[K CacheKey](delegate Cache[K], interval time.Duration) *ScheduledCache[K] {
	return &ScheduledCache[K]{delegate: delegate, interval: interval, lastClear: time.Now()}
}

func (c *ScheduledCache[K]) ID() string { return c.delegate.ID() }

func (c *ScheduledCache[K]) clearIfDue() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if time.Since(c.lastClear) <= c.interval {
		return false
	}
	c.lastClear = time.Now()
	return true
}

func (c *ScheduledCache[K]) Put(key K, value any) {
	if c.clearIfDue() {
		c.delegate.Clear()
	}
	c.delegate.Put(key, value)
}

func (c *ScheduledCache[K]) Get(key K) (any, bool) {
	if c.clearIfDue() {
		c.delegate.Clear()
		return nil, false
	}
	return c.delegate.Get(key)
}

func (c *ScheduledCache[K]) Remove(key K) { c.delegate.Remove(key) }
func (c *ScheduledCache[K]) Clear()       { c.delegate.Clear() }
func (c *ScheduledCache[K]) Size() int    { return c.delegate.Size() }

// SoftWeakCache is a deliberate simplification of MyBatis' GC-driven
// soft/weak reference caches, which Go has no language equivalent for:
// instead of tying eviction to collector pressure, it keeps a bounded FIFO
// of the last N accessed keys as "hard" references and otherwise stores
// values directly in the delegate, so the decorator's observable contract
// ("a bounded set of entries survives access, older ones may vanish") is
// preserved without claiming real weak-reference collection timing.
type SoftWeakCache[K CacheKey] struct {
	delegate Cache[K]
	mu       sync.Mutex
	hard     []K
	capacity int
}

// NewSoftWeak wraps delegate, retaining only the last capacity accessed
// keys as protected ("hard") entries.
func NewSoftWeak[K CacheKey](delegate Cache[K], capacity int) *SoftWeakCache[K] {
	return &SoftWeakCache[K]{delegate: delegate, capacity: capacity}
}

func (c *SoftWeakCache[K]) ID() string { return c.delegate.ID() }

func (c *SoftWeakCache[K]) touch(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, k := range c.hard {
		if k == key {
			c.hard = append(c.hard[:i], c.hard[i+1:]...)
			break
		}
	}
	c.hard = append(c.hard, key)
	if len(c.hard) > c.capacity {
		stale := c.hard[0]
		c.hard = c.hard[1:]
		c.mu.Unlock()
		c.delegate.Remove(stale)
		c.mu.Lock()
	}
}

func (c *SoftWeakCache[K]) Put(key K, value any) {
	c.touch(key)
	c.delegate.Put(key, value)
}

func (c *SoftWeakCache[K]) Get(key K) (any, bool) {
	v, ok := c.delegate.Get(key)
	if ok {
		c.touch(key)
	}
	return v, ok
}

func (c *SoftWeakCache[K]) Remove(key K) { c.delegate.Remove(key) }
func (c *SoftWeakCache[K]) Clear() {
	c.mu.Lock()
	c.hard = nil
	c.mu.Unlock()
	c.delegate.Clear()
}
func (c *SoftWeakCache[K]) Size() int { return c.delegate.Size() }

// ErrCacheLockTimeout names the blocking-cache timeout condition.
// BlockingCache.Get does not return it: a Get that times out reports
// ok=false instead.
var ErrCacheLockTimeout = fmt.Errorf("cache: lock timeout")

// BlockingCache collapses overlapping Get calls for the same key into a
// single delegate lookup using golang.org/x/sync/singleflight; with a
// timeout set, a Get that waits longer than it reports ok=false. The key is
// not held after the lookup returns: a miss does not block later Get calls
// until a Put or Remove for that key. Grounded on zsy619-yyhertz's
// hand-rolled per-key *sync.Mutex map (BlockingCache), generalized to the
// ecosystem singleflight primitive.
type BlockingCache[K CacheKey] struct {
	delegate Cache[K]
	group    singleflight.Group
	timeout  time.Duration
}

// NewBlocking wraps delegate, optionally bounding how long a Get blocks
// waiting on another goroutine's in-flight load (0 means no timeout).
func NewBlocking[K CacheKey](delegate Cache[K], timeout time.Duration) *BlockingCache[K] {
	return &BlockingCache[K]{delegate: delegate, timeout: timeout}
}

func (c *BlockingCache[K]) ID() string { return c.delegate.ID() }

func (c *BlockingCache[K]) Put(key K, value any) {
	c.delegate.Put(key, value)
	c.group.Forget(key.String())
}

func (c *BlockingCache[K]) Get(key K) (any, bool) {
	type result struct {
		value any
		ok    bool
	}
	do := func() (any, error) {
		v, ok := c.delegate.Get(key)
		return result{value: v, ok: ok}, nil
	}

	if c.timeout <= 0 {
		v, _, _ := c.group.Do(key.String(), do)
		r := v.(result)
		return r.value, r.ok
	}

	ch := c.group.DoChan(key.String(), do)
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, false
		}
		r := res.Val.(result)
		return r.value, r.ok
	case <-ctx.Done():
		return nil, false
	}
}

func (c *BlockingCache[K]) Remove(key K) {
	c.delegate.Remove(key)
	c.group.Forget(key.String())
}

// Release forgets any in-flight singleflight call for key without supplying
// a value, so the next Get for that key starts a fresh delegate lookup
// instead of joining the old one; goroutines already waiting on the old
// call keep waiting for it. Used by txcache.TxCache.Rollback.
func (c *BlockingCache[K]) Release(key K) { c.group.Forget(key.String()) }

func (c *BlockingCache[K]) Clear() { c.delegate.Clear() }
func (c *BlockingCache[K]) Size() int { return c.delegate.Size() }

// SerializedCache round-trips every value through encoding/gob on the way
// in and out - the stdlib counterpart to Java's serialization step,
// matching the teacher's preference for the standard library where no
// ecosystem serializer is otherwise pulled into the dependency graph for
// this narrow internal concern (see DESIGN.md).
type SerializedCache[K CacheKey] struct {
	delegate Cache[K]
}

// NewSerialized wraps delegate, gob-encoding values on Put and decoding on
// Get. Values containing channels or funcs fail to encode; Put silently
// drops such entries (gob would error on registration, not on a type it
// has never seen, so this is surfaced via Get returning ok=false instead
// of a panic).
func NewSerialized[K CacheKey](delegate Cache[K]) *SerializedCache[K] {
	return &SerializedCache[K]{delegate: delegate}
}

func (c *SerializedCache[K]) ID() string { return c.delegate.ID() }

func (c *SerializedCache[K]) Put(key K, value any) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&value); err != nil {
		return
	}
	c.delegate.Put(key, buf.Bytes())
}

func (c *SerializedCache[K]) Get(key K) (any, bool) {
	raw, ok := c.delegate.Get(key)
	if !ok {
		return nil, false
	}
	b, ok := raw.([]byte)
	if !ok {
		return nil, false
	}
	var value any
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&value); err != nil {
		return nil, false
	}
	return value, true
}

func (c *SerializedCache[K]) Remove(key K) { c.delegate.Remove(key) }
func (c *SerializedCache[K]) Clear()       { c.delegate.Clear() }
func (c *SerializedCache[K]) Size() int    { return c.delegate.Size() }

// SynchronizedCache applies one coarse sync.RWMutex around every
// operation, grounded directly on zsy619-yyhertz's SynchronizedCache.
type SynchronizedCache[K CacheKey] struct {
	delegate Cache[K]
	mu       sync.RWMutex
}

// NewSynchronized wraps delegate with a single coarse RWMutex.
func NewSynchronized[K CacheKey](delegate Cache[K]) *SynchronizedCache[K] {
	return &SynchronizedCache[K]{delegate: delegate}
}

func (c *SynchronizedCache[K]) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delegate.ID()
}

func (c *SynchronizedCache[K]) Put(key K, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Put(key, value)
}

func (c *SynchronizedCache[K]) Get(key K) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delegate.Get(key)
}

func (c *SynchronizedCache[K]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Remove(key)
}

func (c *SynchronizedCache[K]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delegate.Clear()
}

func (c *SynchronizedCache[K]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.delegate.Size()
}

// LoggingCache counts requests and hits, periodically logging the hit
// ratio through an injected logrus.FieldLogger.
type LoggingCache[K CacheKey] struct {
	delegate Cache[K]
	logger   logrus.FieldLogger
	every    int64

	requests atomic.Int64
	hits     atomic.Int64
}

// NewLogging wraps delegate, logging its hit ratio every `every` requests
// (every <= 0 disables periodic logging but still counts).
func NewLogging[K CacheKey](delegate Cache[K], logger logrus.FieldLogger, every int64) *LoggingCache[K] {
	return &LoggingCache[K]{delegate: delegate, logger: logger, every: every}
}

func (c *LoggingCache[K]) ID() string { return c.delegate.ID() }

func (c *LoggingCache[K]) Put(key K, value any) { c.delegate.Put(key, value) }

func (c *LoggingCache[K]) Get(key K) (any, bool) {
	requests := c.requests.Add(1)
	v, ok := c.delegate.Get(key)
	if ok {
		c.hits.Add(1)
	}
	if c.every > 0 && requests%c.every == 0 && c.logger != nil {
		hits := c.hits.Load()
		c.logger.WithFields(logrus.Fields{
			"cache":    c.delegate.ID(),
			"requests": requests,
			"hits":     hits,
			"hitRatio": float64(hits) / float64(requests),
		}).Info("cache hit ratio")
	}
	return v, ok
}

func (c *LoggingCache[K]) Remove(key K) { c.delegate.Remove(key) }
func (c *LoggingCache[K]) Clear()       { c.delegate.Clear() }
func (c *LoggingCache[K]) Size() int    { return c.delegate.Size() }
