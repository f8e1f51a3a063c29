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

	"github.com/gosqlmap/sqlmap/cache"
)

// statementCacheKey identifies one cached read: the fully-qualified
// statement name plus a stable rendering of its bound parameter. Grounded
// on zsy619-yyhertz's BaseExecutor Cache Key (statement id + SQL + every
// parameter value); the SQL text itself is left out here since it is a
// pure function of the statement and param already.
type statementCacheKey struct {
	id    string
	param string
}

// String implements cache.CacheKey.
func (k statementCacheKey) String() string { return k.id + "?" + k.param }

func newStatementCacheKey(statement Statement, param any) statementCacheKey {
	return statementCacheKey{id: statement.Name(), param: fmt.Sprintf("%#v", param)}
}

// newLocalCache builds the session-scoped local cache a GenericManager
// hands every GenericExecutor it produces, so repeated reads of the same
// statement+param - most notably the nested-select calls NestedSelector
// issues while mapping one result set - are served once per session
// instead of round-tripping the database for every row. Grounded on
// zsy619-yyhertz's BaseExecutor local cache: cache.NewLruCache(cache.NewPerpetualCache(name), 256),
// generalized with the Synchronized decorator since one session's executors
// may be touched by more than one goroutine while deferred associations load.
func newLocalCache(name string) cache.Cache[statementCacheKey] {
	return cache.NewSynchronized[statementCacheKey](cache.NewLRU[statementCacheKey](cache.NewPerpetual[statementCacheKey](name), 256))
}

// cacheable reports whether statement's result may be served from/stored
// into a local cache: it must be a read, and the statement's settings must
// not have explicitly disabled caching (the default, absent any setting,
// is enabled - matching defaultSettings().CacheEnabled and the codebase's
// existing Settings().Get(key) == "false" idiom for opt-out booleans).
func cacheable(statement Statement) bool {
	if statement == nil || !statement.Action().ForRead() {
		return false
	}
	return statement.Configuration().Settings().Get("cacheEnabled") != "false"
}
