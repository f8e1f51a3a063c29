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

// Package txcache is the session-scoped, second-tier cache manager that
// sits in front of a shared namespace cache.Cache: reads pass straight
// through, but writes and removes stage in a per-session map until Commit
// or Rollback, so one session's uncommitted writes never become visible
// to another session sharing the same statement namespace. Grounded on
// zsy619-yyhertz's mybatis/cache TransactionalCache (entriesToAddOnCommit/
// entriesMissedInCache), generalized with a release hook for the Blocking
// cache layer's in-flight singleflight calls on rollback.
package txcache

import "github.com/gosqlmap/sqlmap/cache"

// Releaser is implemented by a cache.BlockingCache-shaped layer that needs
// to release an in-flight singleflight call when a session rolls back
// without ever having produced a value for a key it had started loading -
// otherwise every other session blocked on that same key would wedge.
type Releaser[K cache.CacheKey] interface {
	Release(key K)
}

// TxCache stages writes/removes against a shared delegate cache.Cache for
// one session, committing or discarding them atomically.
type TxCache[K cache.CacheKey] struct {
	delegate cache.Cache[K]

	pendingPuts    map[K]any
	pendingRemoves map[K]struct{}
	clearOnCommit  bool

	missed map[K]struct{}
}

// New wraps delegate for one session's staged writes.
func New[K cache.CacheKey](delegate cache.Cache[K]) *TxCache[K] {
	return &TxCache[K]{
		delegate:       delegate,
		pendingPuts:    make(map[K]any),
		pendingRemoves: make(map[K]struct{}),
		missed:         make(map[K]struct{}),
	}
}

// ID returns the delegate's namespace id.
func (t *TxCache[K]) ID() string { return t.delegate.ID() }

// Get reads straight through to the delegate (second-tier lookups are
// always live - only writes/removes are staged). A miss is recorded so
// Rollback can release anything that was left half-loaded.
func (t *TxCache[K]) Get(key K) (any, bool) {
	if v, ok := t.pendingPuts[key]; ok {
		return v, true
	}
	if _, removed := t.pendingRemoves[key]; removed {
		return nil, false
	}
	v, ok := t.delegate.Get(key)
	if !ok {
		t.missed[key] = struct{}{}
	}
	return v, ok
}

// Put stages value under key until Commit.
func (t *TxCache[K]) Put(key K, value any) {
	delete(t.pendingRemoves, key)
	t.pendingPuts[key] = value
}

// Remove stages key for removal until Commit.
func (t *TxCache[K]) Remove(key K) {
	delete(t.pendingPuts, key)
	t.pendingRemoves[key] = struct{}{}
}

// Clear stages a full-cache clear, applied on Commit in place of any
// individually staged puts/removes.
func (t *TxCache[K]) Clear() {
	t.clearOnCommit = true
	t.pendingPuts = make(map[K]any)
	t.pendingRemoves = make(map[K]struct{})
}

// Commit flushes every staged write and removal to the delegate
// atomically (from the caller's perspective - the delegate's own
// Synchronized layer, if present, serializes against other sessions).
func (t *TxCache[K]) Commit() {
	if t.clearOnCommit {
		t.delegate.Clear()
	}
	for key := range t.pendingRemoves {
		t.delegate.Remove(key)
	}
	for key, value := range t.pendingPuts {
		t.delegate.Put(key, value)
	}
	t.reset()
}

// Rollback discards every staged write and removal, then also removes any
// keys this session observed missing while staging (a stale miss must not
// be left for another session to treat as authoritative) and releases any
// Blocking-cache singleflight calls tied to those keys so a failed reader
// doesn't wedge other sessions waiting on the same key.
func (t *TxCache[K]) Rollback(releaser Releaser[K]) {
	for key := range t.missed {
		t.delegate.Remove(key)
		if releaser != nil {
			releaser.Release(key)
		}
	}
	t.reset()
}

func (t *TxCache[K]) reset() {
	t.pendingPuts = make(map[K]any)
	t.pendingRemoves = make(map[K]struct{})
	t.missed = make(map[K]struct{})
	t.clearOnCommit = false
}
